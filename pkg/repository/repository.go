package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"payrequest_back/models"
)

// PaymentRequests is the store for payment-request rows. MarkPaid and
// Transition are conditional writes: they return false (no error) when
// the row was not in the expected state, which is the sole guard
// against concurrent settlement.
type PaymentRequests interface {
	Create(ctx context.Context, req *models.PaymentRequest) error
	GetByID(ctx context.Context, id string) (models.PaymentRequest, error)
	GetByTxHash(ctx context.Context, txHash string) (models.PaymentRequest, error)
	ListByCreator(ctx context.Context, creatorIdentity string) ([]models.PaymentRequest, error)
	MarkPaid(ctx context.Context, id, txHash, payerIdentity string, paidAt time.Time) (bool, error)
	Transition(ctx context.Context, id string, from, to models.PaymentRequestStatus) (bool, error)
}

type FeeTransactions interface {
	Create(ctx context.Context, record *models.FeeTransactionRecord) error
	GetByPaymentRequest(ctx context.Context, paymentRequestID string) ([]models.FeeTransactionRecord, error)
}

type Webhooks interface {
	ActiveByEvent(ctx context.Context, event string) ([]models.WebhookSubscription, error)
}

type Repository struct {
	PaymentRequests
	FeeTransactions
	Webhooks
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{
		PaymentRequests: NewPaymentPostgres(db),
		FeeTransactions: NewFeePostgres(db),
		Webhooks:        NewWebhookPostgres(db),
	}
}
