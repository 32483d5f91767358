package models

import "time"

type PaymentRequestStatus string

const (
	StatusPending   PaymentRequestStatus = "PENDING"
	StatusPaid      PaymentRequestStatus = "PAID"
	StatusExpired   PaymentRequestStatus = "EXPIRED"
	StatusCancelled PaymentRequestStatus = "CANCELLED"
)

// PaymentRequest is the core entity. Immutable after creation except
// for the single PENDING->PAID transition and a creator cancel.
type PaymentRequest struct {
	ID              string               `db:"id" json:"id"`
	Token           string               `db:"token" json:"token"`
	Amount          string               `db:"amount" json:"amount"`
	Receiver        string               `db:"receiver" json:"receiver"`
	Payer           *string              `db:"payer" json:"payer,omitempty"`
	Description     string               `db:"description" json:"description,omitempty"`
	Network         string               `db:"network" json:"network"`
	Status          PaymentRequestStatus `db:"status" json:"status"`
	CreatedAt       time.Time            `db:"created_at" json:"createdAt"`
	ExpiresAt       *time.Time           `db:"expires_at" json:"expiresAt,omitempty"`
	TxHash          *string              `db:"tx_hash" json:"txHash,omitempty"`
	PaidAt          *time.Time           `db:"paid_at" json:"paidAt,omitempty"`
	CreatorWallet   string               `db:"creator_wallet" json:"creatorWallet"`
	CreatorIdentity string               `db:"creator_identity" json:"creatorIdentity"`
	PayerIdentity   *string              `db:"payer_identity" json:"payerIdentity,omitempty"`
}

// Expired is a derived, read-time property. Storage keeps PENDING;
// every read path must treat an expired PENDING request as unpayable.
func (p *PaymentRequest) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

// Payable reports whether a settle or quote may proceed.
func (p *PaymentRequest) Payable(now time.Time) bool {
	return p.Status == StatusPending && !p.Expired(now)
}

type CreatePaymentRequestInput struct {
	Token         string `json:"token" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
	Receiver      string `json:"receiver" binding:"required"`
	Network       string `json:"network" binding:"required"`
	Description   string `json:"description"`
	ExpiresInDays int    `json:"expiresInDays"`
}

type SettleInput struct {
	RequestID string    `json:"requestId"`
	TxHash    string    `json:"txHash" binding:"required"`
	FeeQuote  *FeeQuote `json:"feeQuote,omitempty"`
}

type QuoteInput struct {
	Payer string `json:"payer" binding:"required"`
}
