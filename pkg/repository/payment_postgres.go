package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"payrequest_back/models"
	"payrequest_back/pkg/apperr"
)

// pq error code for unique_violation; backstop behind the service's
// own duplicate-txHash lookup.
const pgUniqueViolation = "23505"

type PaymentPostgres struct {
	db *sqlx.DB
}

func NewPaymentPostgres(db *sqlx.DB) *PaymentPostgres {
	return &PaymentPostgres{db: db}
}

func (r *PaymentPostgres) Create(ctx context.Context, req *models.PaymentRequest) error {
	query := `
        INSERT INTO payment_requests
            (id, token, amount, receiver, payer, description, network, status,
             created_at, expires_at, creator_wallet, creator_identity)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `
	_, err := r.db.ExecContext(ctx, query,
		req.ID, req.Token, req.Amount, req.Receiver, req.Payer, req.Description,
		req.Network, req.Status, req.CreatedAt, req.ExpiresAt,
		req.CreatorWallet, req.CreatorIdentity,
	)
	return errors.Wrap(err, "insert payment request")
}

const paymentColumns = `
    id, token, amount, receiver, payer, description, network, status,
    created_at, expires_at, tx_hash, paid_at,
    creator_wallet, creator_identity, payer_identity
`

func (r *PaymentPostgres) GetByID(ctx context.Context, id string) (models.PaymentRequest, error) {
	var req models.PaymentRequest
	query := `SELECT ` + paymentColumns + ` FROM payment_requests WHERE id = $1`
	err := r.db.GetContext(ctx, &req, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return req, apperr.New(apperr.CodeNotFound, "payment request not found")
	}
	return req, errors.Wrap(err, "get payment request")
}

func (r *PaymentPostgres) GetByTxHash(ctx context.Context, txHash string) (models.PaymentRequest, error) {
	var req models.PaymentRequest
	query := `SELECT ` + paymentColumns + ` FROM payment_requests WHERE tx_hash = $1`
	err := r.db.GetContext(ctx, &req, query, txHash)
	if errors.Is(err, sql.ErrNoRows) {
		return req, apperr.New(apperr.CodeNotFound, "no payment request with this tx hash")
	}
	return req, errors.Wrap(err, "get payment request by tx hash")
}

func (r *PaymentPostgres) ListByCreator(ctx context.Context, creatorIdentity string) ([]models.PaymentRequest, error) {
	var reqs []models.PaymentRequest
	query := `SELECT ` + paymentColumns + ` FROM payment_requests
              WHERE creator_identity = $1 ORDER BY created_at DESC`
	err := r.db.SelectContext(ctx, &reqs, query, creatorIdentity)
	return reqs, errors.Wrap(err, "list payment requests")
}

// MarkPaid is the single atomic conditional write for PENDING->PAID.
// Returns false when a concurrent call already moved the row out of
// PENDING.
func (r *PaymentPostgres) MarkPaid(ctx context.Context, id, txHash, payerIdentity string, paidAt time.Time) (bool, error) {
	query := `
        UPDATE payment_requests
        SET status = $1, tx_hash = $2, paid_at = $3, payer_identity = $4
        WHERE id = $5 AND status = $6
    `
	result, err := r.db.ExecContext(ctx, query,
		models.StatusPaid, txHash, paidAt, payerIdentity, id, models.StatusPending)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
			return false, apperr.New(apperr.CodeDuplicateTxHash,
				"tx hash already recorded on another payment request")
		}
		return false, errors.Wrap(err, "mark paid")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "mark paid rows affected")
	}
	return affected == 1, nil
}

func (r *PaymentPostgres) Transition(ctx context.Context, id string, from, to models.PaymentRequestStatus) (bool, error) {
	query := `UPDATE payment_requests SET status = $1 WHERE id = $2 AND status = $3`
	result, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return false, errors.Wrap(err, "transition payment request")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "transition rows affected")
	}
	return affected == 1, nil
}
