package models

import "time"

// FeeQuote is the fee decision for one intended settlement.
// PlatformShare + CreatorReward always equals FeeTotal exactly.
type FeeQuote struct {
	FeeToken               string `json:"feeToken"`
	FeeTokenAddress        string `json:"feeTokenAddress,omitempty"`
	FeeTotal               string `json:"feeTotal"`
	PlatformShare          string `json:"platformShare"`
	CreatorReward          string `json:"creatorReward"`
	FeeDeductedFromPayment bool   `json:"feeDeductedFromPayment"`
}

// TransferInstruction is one leg of a settlement. TokenAddress is
// empty for a native-currency transfer. Legs are ordered: payment,
// platform fee, creator reward.
type TransferInstruction struct {
	Token        string `json:"token"`
	TokenAddress string `json:"tokenAddress,omitempty"`
	Amount       string `json:"amount"`
	Recipient    string `json:"recipient"`
}

type FeeTransactionStatus string

const (
	FeeStatusPending   FeeTransactionStatus = "PENDING"
	FeeStatusCollected FeeTransactionStatus = "COLLECTED"
	FeeStatusFailed    FeeTransactionStatus = "FAILED"
)

// FeeTransactionRecord is bookkeeping written after a settlement.
// A failed write never rolls back the payment transition.
type FeeTransactionRecord struct {
	ID               string               `db:"id" json:"id"`
	PaymentRequestID string               `db:"payment_request_id" json:"paymentRequestId"`
	PayerWallet      string               `db:"payer_wallet" json:"payerWallet"`
	CreatorWallet    string               `db:"creator_wallet" json:"creatorWallet"`
	FeeToken         string               `db:"fee_token" json:"feeToken"`
	FeeTotal         string               `db:"fee_total" json:"feeTotal"`
	PlatformShare    string               `db:"platform_share" json:"platformShare"`
	CreatorReward    string               `db:"creator_reward" json:"creatorReward"`
	PaymentTxHash    string               `db:"payment_tx_hash" json:"paymentTxHash"`
	FeeTxHash        *string              `db:"fee_tx_hash" json:"feeTxHash,omitempty"`
	RewardTxHash     *string              `db:"reward_tx_hash" json:"rewardTxHash,omitempty"`
	Status           FeeTransactionStatus `db:"status" json:"status"`
	CreatedAt        time.Time            `db:"created_at" json:"createdAt"`
}

// VerificationResult reports whether a claimed transaction performed
// the expected transfer. Code is set when Valid is false, or when an
// RPC failure prevented a verdict.
type VerificationResult struct {
	Valid       bool   `json:"valid"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	Code        string `json:"code,omitempty"`
	Details     string `json:"details,omitempty"`
}
