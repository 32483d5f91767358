package oracle

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type cachedPrice struct {
	price     decimal.Decimal
	timestamp time.Time
}

// priceCache is a process-wide TTL cache. Concurrent callers may see
// the same stale value within the TTL window; no stronger freshness is
// promised.
type priceCache struct {
	mu     sync.Mutex
	ttl    time.Duration
	prices map[string]cachedPrice
}

func newPriceCache(ttl time.Duration) *priceCache {
	return &priceCache{
		ttl:    ttl,
		prices: make(map[string]cachedPrice),
	}
}

func (c *priceCache) get(key string) (decimal.Decimal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.prices[key]
	if !ok || time.Since(entry.timestamp) > c.ttl {
		return decimal.Zero, false
	}
	return entry.price, true
}

func (c *priceCache) set(key string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.prices[key] = cachedPrice{price: price, timestamp: time.Now()}
}
