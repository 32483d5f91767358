// Package notifier delivers signed events to subscribers when a
// payment request is created or paid. Delivery runs on a bounded work
// queue with at-least-once retry and a dead-letter log; it happens
// strictly after the triggering state transition commits and never
// blocks or rolls it back.
package notifier

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"payrequest_back/models"
)

type SubscriptionSource interface {
	ActiveByEvent(ctx context.Context, event string) ([]models.WebhookSubscription, error)
}

type Config struct {
	QueueSize       int
	Workers         int
	MaxAttempts     int
	RetryBackoff    time.Duration
	DeliveryTimeout time.Duration
}

func (c *Config) fillDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = 10 * time.Second
	}
}

type deliveryJob struct {
	subscription models.WebhookSubscription
	event        string
	body         []byte
}

type Dispatcher struct {
	subs   SubscriptionSource
	mailer *Mailer
	http   *resty.Client
	cfg    Config

	queue  chan deliveryJob
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewDispatcher builds a dispatcher; mailer may be nil when the mail
// channel is disabled.
func NewDispatcher(subs SubscriptionSource, mailer *Mailer, cfg Config) *Dispatcher {
	cfg.fillDefaults()
	return &Dispatcher{
		subs:   subs,
		mailer: mailer,
		http:   resty.New().SetTimeout(cfg.DeliveryTimeout),
		cfg:    cfg,
		queue:  make(chan deliveryJob, cfg.QueueSize),
	}
}

func (d *Dispatcher) Start() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Stop drains the queue and waits for in-flight deliveries.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

// Dispatch fans the event out to every active subscription. It returns
// immediately; a full queue drops the delivery with a warning rather
// than stalling the caller.
func (d *Dispatcher) Dispatch(event string, snapshot models.PaymentRequest) {
	envelope := models.WebhookEvent{
		Event:     event,
		Timestamp: time.Now().UTC(),
		Data:      snapshot,
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		logrus.WithError(err).Error("encode webhook event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	subscriptions, err := d.subs.ActiveByEvent(ctx, event)
	if err != nil {
		logrus.WithError(err).WithField("event", event).Error("list webhook subscriptions")
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	for _, sub := range subscriptions {
		select {
		case d.queue <- deliveryJob{subscription: sub, event: event, body: body}:
		default:
			logrus.WithFields(logrus.Fields{
				"event":        event,
				"subscription": sub.ID,
			}).Warn("notification queue full, delivery dropped")
		}
	}

	if event == models.EventPaymentRequestPaid && d.mailer != nil {
		d.mailer.SendPaidAsync(snapshot)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.queue {
		d.deliver(job)
	}
}

func (d *Dispatcher) deliver(job deliveryJob) {
	signature := Sign(job.subscription.Secret, job.body)

	backoff := d.cfg.RetryBackoff
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		resp, err := d.http.R().
			SetHeader("Content-Type", "application/json").
			SetHeader("X-Webhook-Event", job.event).
			SetHeader("X-Webhook-Signature", signature).
			SetBody(job.body).
			Post(job.subscription.URL)
		if err == nil && !resp.IsError() {
			return
		}

		fields := logrus.Fields{
			"event":        job.event,
			"subscription": job.subscription.ID,
			"attempt":      attempt,
		}
		if err != nil {
			fields["error"] = err.Error()
		} else {
			fields["status"] = resp.StatusCode()
		}

		if attempt == d.cfg.MaxAttempts {
			fields["payload"] = string(job.body)
			logrus.WithFields(fields).Error("webhook delivery dead-lettered")
			return
		}
		logrus.WithFields(fields).Warn("webhook delivery failed, retrying")
		time.Sleep(backoff)
		backoff *= 2
	}
}

// Sign computes the hex HMAC-SHA256 of body with the subscription
// secret; subscribers recompute it to authenticate the payload.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
