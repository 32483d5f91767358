package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"payrequest_back/models"
	"payrequest_back/pkg/apperr"
	"payrequest_back/pkg/chainclient"
	"payrequest_back/pkg/registry"
	"payrequest_back/pkg/repository"
)

// PaymentService owns the payment-request lifecycle:
// PENDING -> PAID | EXPIRED | CANCELLED, all terminal. The
// PENDING->PAID transition funnels through the store's conditional
// write; that single choke point is what makes arbitrary request
// parallelism safe.
type PaymentService struct {
	repos      *repository.Repository
	registry   *registry.ChainRegistry
	readers    map[string]chainclient.ChainReader
	fees       Fees
	verifier   Verifier
	events     Events
	expiryDays int
}

func NewPaymentService(
	repos *repository.Repository,
	reg *registry.ChainRegistry,
	readers map[string]chainclient.ChainReader,
	fees Fees,
	verifier Verifier,
	events Events,
	expiryDays int,
) *PaymentService {
	return &PaymentService{
		repos:      repos,
		registry:   reg,
		readers:    readers,
		fees:       fees,
		verifier:   verifier,
		events:     events,
		expiryDays: expiryDays,
	}
}

func (s *PaymentService) Create(ctx context.Context, identity string, input models.CreatePaymentRequestInput) (models.PaymentRequest, error) {
	amount, err := decimal.NewFromString(input.Amount)
	if err != nil || amount.Sign() <= 0 {
		return models.PaymentRequest{}, apperr.New(apperr.CodeValidation,
			"amount must be a positive decimal string")
	}

	network, err := s.registry.Resolve(input.Network)
	if err != nil {
		return models.PaymentRequest{}, err
	}
	if _, err := s.registry.Token(network, input.Token); err != nil {
		return models.PaymentRequest{}, err
	}
	if reader, ok := s.readers[network]; ok && !reader.ValidAddress(input.Receiver) {
		return models.PaymentRequest{}, apperr.New(apperr.CodeValidation,
			fmt.Sprintf("receiver %q is not a valid address on %s", input.Receiver, network))
	}

	now := time.Now().UTC()
	req := models.PaymentRequest{
		ID:              uuid.NewString(),
		Token:           input.Token,
		Amount:          amount.String(),
		Receiver:        input.Receiver,
		Description:     input.Description,
		Network:         network,
		Status:          models.StatusPending,
		CreatedAt:       now,
		CreatorWallet:   identity,
		CreatorIdentity: identity,
	}
	days := input.ExpiresInDays
	if days <= 0 {
		days = s.expiryDays
	}
	if days > 0 {
		expires := now.AddDate(0, 0, days)
		req.ExpiresAt = &expires
	}

	if err := s.repos.PaymentRequests.Create(ctx, &req); err != nil {
		return models.PaymentRequest{}, err
	}
	s.events.Dispatch(models.EventPaymentRequestCreated, req)
	return req, nil
}

func (s *PaymentService) Get(ctx context.Context, id string) (models.PaymentRequest, error) {
	return s.repos.PaymentRequests.GetByID(ctx, id)
}

func (s *PaymentService) ListByCreator(ctx context.Context, identity string) ([]models.PaymentRequest, error) {
	return s.repos.PaymentRequests.ListByCreator(ctx, identity)
}

// Quote prices a settlement for a pending, unexpired request.
func (s *PaymentService) Quote(ctx context.Context, id, payer string) (models.FeeQuote, []models.TransferInstruction, error) {
	req, err := s.repos.PaymentRequests.GetByID(ctx, id)
	if err != nil {
		return models.FeeQuote{}, nil, err
	}
	if err := payable(req); err != nil {
		return models.FeeQuote{}, nil, err
	}
	return s.fees.Quote(ctx, req, payer)
}

// Settle verifies the claimed transaction and applies the single
// PENDING->PAID conditional write.
func (s *PaymentService) Settle(ctx context.Context, payerIdentity string, input models.SettleInput) (models.PaymentRequest, error) {
	req, err := s.repos.PaymentRequests.GetByID(ctx, input.RequestID)
	if err != nil {
		return models.PaymentRequest{}, err
	}
	if err := payable(req); err != nil {
		return models.PaymentRequest{}, err
	}

	// One real transfer must never settle two requests: reject reused
	// hashes before touching the state machine. The store's unique
	// constraint backstops this lookup.
	if existing, err := s.repos.PaymentRequests.GetByTxHash(ctx, input.TxHash); err == nil {
		if existing.ID != req.ID {
			return models.PaymentRequest{}, apperr.New(apperr.CodeDuplicateTxHash,
				"tx hash already settled another payment request")
		}
		return models.PaymentRequest{}, apperr.New(apperr.CodeAlreadyProcessed,
			"payment request already settled with this tx hash")
	} else if !apperr.Is(err, apperr.CodeNotFound) {
		return models.PaymentRequest{}, err
	}

	// Callers may pass the quote they settled against to avoid
	// re-pricing after balance drift.
	quote := input.FeeQuote
	var transfers []models.TransferInstruction
	if quote == nil {
		q, t, err := s.fees.Quote(ctx, req, payerIdentity)
		if err != nil {
			return models.PaymentRequest{}, err
		}
		quote, transfers = &q, t
	} else {
		if err := s.checkSuppliedQuote(ctx, req, *quote); err != nil {
			return models.PaymentRequest{}, err
		}
		transfers = expectedTransfers(req, *quote)
	}

	result, err := s.verifier.Verify(ctx, VerifyParams{
		Network:  req.Network,
		TxHash:   input.TxHash,
		Amount:   transfers[0].Amount,
		Token:    req.Token,
		Receiver: req.Receiver,
	})
	if err != nil {
		return models.PaymentRequest{}, err
	}
	if !result.Valid {
		code := apperr.Code(result.Code)
		switch code {
		case apperr.CodeNotFound, apperr.CodePendingConfirmation:
			return models.PaymentRequest{}, apperr.New(code, result.Details)
		default:
			return models.PaymentRequest{}, apperr.New(apperr.CodeVerificationFailed,
				fmt.Sprintf("%s: %s", result.Code, result.Details))
		}
	}

	paidAt := time.Now().UTC()
	applied, err := s.repos.PaymentRequests.MarkPaid(ctx, req.ID, input.TxHash, payerIdentity, paidAt)
	if err != nil {
		return models.PaymentRequest{}, err
	}
	if !applied {
		// A concurrent settlement won the conditional write. Benign.
		return models.PaymentRequest{}, apperr.New(apperr.CodeAlreadyProcessed,
			"payment request was settled concurrently")
	}

	s.recordFee(ctx, req, *quote, payerIdentity, input.TxHash)

	settled, err := s.repos.PaymentRequests.GetByID(ctx, req.ID)
	if err != nil {
		settled = req
		settled.Status = models.StatusPaid
		settled.TxHash = &input.TxHash
		settled.PaidAt = &paidAt
		settled.PayerIdentity = &payerIdentity
	}
	s.events.Dispatch(models.EventPaymentRequestPaid, settled)
	return settled, nil
}

// recordFee writes settlement bookkeeping. The on-chain transfer is
// irreversible, so a failed write logs a warning and nothing more.
func (s *PaymentService) recordFee(ctx context.Context, req models.PaymentRequest, quote models.FeeQuote, payer, txHash string) {
	record := models.FeeTransactionRecord{
		ID:               uuid.NewString(),
		PaymentRequestID: req.ID,
		PayerWallet:      payer,
		CreatorWallet:    req.CreatorWallet,
		FeeToken:         quote.FeeToken,
		FeeTotal:         quote.FeeTotal,
		PlatformShare:    quote.PlatformShare,
		CreatorReward:    quote.CreatorReward,
		PaymentTxHash:    txHash,
		Status:           models.FeeStatusPending,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.repos.FeeTransactions.Create(ctx, &record); err != nil {
		logrus.WithError(err).WithField("request", req.ID).
			Warn("fee transaction bookkeeping failed after settlement")
	}
}

func (s *PaymentService) Cancel(ctx context.Context, identity, id string) (models.PaymentRequest, error) {
	req, err := s.repos.PaymentRequests.GetByID(ctx, id)
	if err != nil {
		return models.PaymentRequest{}, err
	}
	if req.CreatorIdentity != identity {
		return models.PaymentRequest{}, apperr.New(apperr.CodeForbidden,
			"only the creator may cancel a payment request")
	}
	applied, err := s.repos.PaymentRequests.Transition(ctx, id, models.StatusPending, models.StatusCancelled)
	if err != nil {
		return models.PaymentRequest{}, err
	}
	if !applied {
		return models.PaymentRequest{}, apperr.New(apperr.CodeNotFound,
			"payment request is no longer pending")
	}
	req.Status = models.StatusCancelled
	return req, nil
}

// payable rejects settlement and quoting of requests that are no
// longer (or never were) payable. Expiry is derived at read time; the
// stored status may still say PENDING.
func payable(req models.PaymentRequest) error {
	switch req.Status {
	case models.StatusPaid:
		return apperr.New(apperr.CodeAlreadyProcessed, "payment request already paid")
	case models.StatusCancelled:
		return apperr.New(apperr.CodeValidation, "payment request was cancelled")
	case models.StatusExpired:
		return apperr.New(apperr.CodeExpired, "payment request expired")
	}
	if req.Expired(time.Now().UTC()) {
		return apperr.New(apperr.CodeExpired, "payment request expired")
	}
	return nil
}

// checkSuppliedQuote guards the re-pricing shortcut. The supplied quote
// decides how much of the payment the verifier expects on chain, so a
// fee deducted from the payment is capped by the current server-side
// fee; an inflated FeeTotal would otherwise shrink the verified
// transfer to dust.
func (s *PaymentService) checkSuppliedQuote(ctx context.Context, req models.PaymentRequest, quote models.FeeQuote) error {
	total, err := decimal.NewFromString(quote.FeeTotal)
	if err != nil || total.Sign() <= 0 {
		return apperr.New(apperr.CodeValidation, "fee quote total must be a positive decimal")
	}
	platform, err := decimal.NewFromString(quote.PlatformShare)
	if err != nil || platform.Sign() < 0 {
		return apperr.New(apperr.CodeValidation, "fee quote platform share must be a non-negative decimal")
	}
	creator, err := decimal.NewFromString(quote.CreatorReward)
	if err != nil || creator.Sign() < 0 {
		return apperr.New(apperr.CodeValidation, "fee quote creator reward must be a non-negative decimal")
	}
	if !platform.Add(creator).Equal(total) {
		return apperr.New(apperr.CodeValidation, "fee quote shares do not sum to the total")
	}
	if _, err := s.registry.Token(req.Network, quote.FeeToken); err != nil {
		return err
	}
	if quote.FeeDeductedFromPayment != strings.EqualFold(quote.FeeToken, req.Token) {
		return apperr.New(apperr.CodeValidation, "fee quote deduction flag does not match the fee token")
	}
	if !quote.FeeDeductedFromPayment {
		// The verifier expects the full request amount; the quote
		// cannot reduce it.
		return nil
	}

	// Pricing with a zero loyalty balance always lands on the
	// in-payment-token fee, which is the ceiling a deducted quote may
	// claim.
	current, _, err := s.fees.Quote(ctx, req, "")
	if err != nil {
		return err
	}
	ceiling, err := decimal.NewFromString(current.FeeTotal)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeValidation, "re-priced fee total")
	}
	if total.Cmp(ceiling) > 0 {
		return apperr.New(apperr.CodeValidation,
			fmt.Sprintf("fee quote total %s %s exceeds the current fee %s; request a new quote",
				quote.FeeTotal, quote.FeeToken, current.FeeTotal))
	}
	return nil
}

// expectedTransfers rebuilds the settlement legs from a caller-supplied
// quote without re-pricing.
func expectedTransfers(req models.PaymentRequest, quote models.FeeQuote) []models.TransferInstruction {
	paymentAmount := req.Amount
	if quote.FeeDeductedFromPayment {
		amount, errA := decimal.NewFromString(req.Amount)
		feeTotal, errF := decimal.NewFromString(quote.FeeTotal)
		if errA == nil && errF == nil {
			paymentAmount = amount.Sub(feeTotal).String()
		}
	}
	return []models.TransferInstruction{
		{Token: req.Token, Amount: paymentAmount, Recipient: req.Receiver},
	}
}
