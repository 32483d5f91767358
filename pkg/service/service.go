package service

import (
	"context"
	"time"

	"payrequest_back/models"
	"payrequest_back/pkg/chainclient"
	"payrequest_back/pkg/oracle"
	"payrequest_back/pkg/registry"
	"payrequest_back/pkg/repository"
)

// Fees decides the fee currency and split for one intended settlement.
type Fees interface {
	Quote(ctx context.Context, req models.PaymentRequest, payer string) (models.FeeQuote, []models.TransferInstruction, error)
}

type VerifyParams struct {
	Network  string
	TxHash   string
	Amount   string
	Token    string
	Receiver string
}

// Verifier confirms a claimed on-chain transfer. The error return is
// reserved for RPC/infrastructure failures; a verification verdict
// always comes back in the result.
type Verifier interface {
	Verify(ctx context.Context, params VerifyParams) (models.VerificationResult, error)
}

// PaymentRequests owns the request lifecycle.
type PaymentRequests interface {
	Create(ctx context.Context, identity string, input models.CreatePaymentRequestInput) (models.PaymentRequest, error)
	Get(ctx context.Context, id string) (models.PaymentRequest, error)
	ListByCreator(ctx context.Context, identity string) ([]models.PaymentRequest, error)
	Quote(ctx context.Context, id, payer string) (models.FeeQuote, []models.TransferInstruction, error)
	Settle(ctx context.Context, payerIdentity string, input models.SettleInput) (models.PaymentRequest, error)
	Cancel(ctx context.Context, identity, id string) (models.PaymentRequest, error)
}

// Events receives state-change notifications after they commit.
type Events interface {
	Dispatch(event string, snapshot models.PaymentRequest)
}

type noopEvents struct{}

func (noopEvents) Dispatch(string, models.PaymentRequest) {}

type FeeConfig struct {
	// LoyaltyToken is the symbol whose balance decides the fee
	// currency; threshold and total are in whole loyalty units.
	LoyaltyToken     string
	LoyaltyThreshold string
	LoyaltyFeeTotal  string
	PlatformWallet   string
	// FallbackPrices maps token symbol to a USD price used when the
	// oracle is unreachable. Operator-configured.
	FallbackPrices map[string]string
	LookupTimeout  time.Duration
}

type VerifyConfig struct {
	MinConfirmations    uint64
	ReceiptPollAttempts int
	ReceiptPollInterval time.Duration
}

type Deps struct {
	Repos      *repository.Repository
	Registry   *registry.ChainRegistry
	Readers    map[string]chainclient.ChainReader
	Prices     oracle.PriceSource
	Events     Events
	FeeConfig  FeeConfig
	VerifyCfg  VerifyConfig
	ExpiryDays int
}

type Service struct {
	Fees
	Verifier
	PaymentRequests
}

func NewService(deps Deps) *Service {
	if deps.Events == nil {
		deps.Events = noopEvents{}
	}
	fees := NewFeeService(deps.Registry, deps.Readers, deps.Prices, deps.FeeConfig)
	verifier := NewVerifierService(deps.Registry, deps.Readers, deps.VerifyCfg)
	payments := NewPaymentService(deps.Repos, deps.Registry, deps.Readers, fees, verifier, deps.Events, deps.ExpiryDays)
	return &Service{
		Fees:            fees,
		Verifier:        verifier,
		PaymentRequests: payments,
	}
}
