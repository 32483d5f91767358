package models

import "time"

// Webhook event names fired by the dispatcher.
const (
	EventPaymentRequestCreated = "payment_request.created"
	EventPaymentRequestPaid    = "payment_request.paid"
)

// WebhookSubscription is the dispatch-side view of a subscription.
// Registration CRUD lives outside this service.
type WebhookSubscription struct {
	ID     string `db:"id" json:"id"`
	Event  string `db:"event" json:"event"`
	URL    string `db:"url" json:"url"`
	Secret string `db:"secret" json:"-"`
	Active bool   `db:"active" json:"active"`
}

// WebhookEvent is the envelope delivered to subscribers. The signature
// is computed over the canonical JSON encoding of this struct.
type WebhookEvent struct {
	Event     string         `json:"event"`
	Timestamp time.Time      `json:"timestamp"`
	Data      PaymentRequest `json:"data"`
}
