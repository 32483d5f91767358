// Package oracle fetches USD token prices from CoinGecko. Results are
// cached process-wide with a shared TTL; callers fall back to
// configured prices when the oracle is unreachable.
package oracle

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PriceSource is what the fee calculator consumes.
type PriceSource interface {
	USDPrice(ctx context.Context, coingeckoID string) (decimal.Decimal, error)
}

type Config struct {
	BaseURL  string
	APIKey   string
	CacheTTL time.Duration
	Timeout  time.Duration
}

type CoinGeckoClient struct {
	http  *resty.Client
	cache *priceCache
}

func NewCoinGeckoClient(cfg Config) *CoinGeckoClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("x-cg-demo-api-key", cfg.APIKey)
	}

	return &CoinGeckoClient{
		http:  client,
		cache: newPriceCache(cfg.CacheTTL),
	}
}

func (c *CoinGeckoClient) USDPrice(ctx context.Context, coingeckoID string) (decimal.Decimal, error) {
	if price, ok := c.cache.get(coingeckoID); ok {
		return price, nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("ids", coingeckoID).
		SetQueryParam("vs_currencies", "usd").
		SetResult(map[string]map[string]float64{}).
		Get("/simple/price")
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "fetch price for %s", coingeckoID)
	}
	if resp.IsError() {
		return decimal.Zero, errors.Errorf("price api status %d for %s", resp.StatusCode(), coingeckoID)
	}

	data := *resp.Result().(*map[string]map[string]float64)
	usd := data[coingeckoID]["usd"]
	if usd <= 0 {
		return decimal.Zero, errors.Errorf("no usd price for %s", coingeckoID)
	}

	price := decimal.NewFromFloat(usd)
	c.cache.set(coingeckoID, price)
	logrus.WithFields(logrus.Fields{"id": coingeckoID, "usd": usd}).Debug("price cached")
	return price, nil
}
