package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"payrequest_back/models"
)

type FeePostgres struct {
	db *sqlx.DB
}

func NewFeePostgres(db *sqlx.DB) *FeePostgres {
	return &FeePostgres{db: db}
}

func (r *FeePostgres) Create(ctx context.Context, record *models.FeeTransactionRecord) error {
	query := `
        INSERT INTO fee_transactions
            (id, payment_request_id, payer_wallet, creator_wallet,
             fee_token, fee_total, platform_share, creator_reward,
             payment_tx_hash, fee_tx_hash, reward_tx_hash, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `
	_, err := r.db.ExecContext(ctx, query,
		record.ID, record.PaymentRequestID, record.PayerWallet, record.CreatorWallet,
		record.FeeToken, record.FeeTotal, record.PlatformShare, record.CreatorReward,
		record.PaymentTxHash, record.FeeTxHash, record.RewardTxHash,
		record.Status, record.CreatedAt,
	)
	return errors.Wrap(err, "insert fee transaction")
}

func (r *FeePostgres) GetByPaymentRequest(ctx context.Context, paymentRequestID string) ([]models.FeeTransactionRecord, error) {
	var records []models.FeeTransactionRecord
	query := `
        SELECT id, payment_request_id, payer_wallet, creator_wallet,
               fee_token, fee_total, platform_share, creator_reward,
               payment_tx_hash, fee_tx_hash, reward_tx_hash, status, created_at
        FROM fee_transactions WHERE payment_request_id = $1 ORDER BY created_at
    `
	err := r.db.SelectContext(ctx, &records, query, paymentRequestID)
	return records, errors.Wrap(err, "list fee transactions")
}
