package service

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payrequest_back/models"
	"payrequest_back/pkg/apperr"
	"payrequest_back/pkg/chainclient"
	"payrequest_back/pkg/repository"
)

func newTestService(reader *fakeReader) (*Service, *repository.Repository, *repository.MemoryStore) {
	repos, store, _ := repository.NewMemoryRepository()
	svc := NewService(Deps{
		Repos:     repos,
		Registry:  testRegistry(),
		Readers:   map[string]chainclient.ChainReader{"ethereum": reader, "sepolia": reader},
		Prices:    dollarPrices(),
		FeeConfig: testFeeConfig(),
		VerifyCfg: VerifyConfig{
			MinConfirmations:    1,
			ReceiptPollAttempts: 1,
			ReceiptPollInterval: time.Millisecond,
		},
		ExpiryDays: 7,
	})
	return svc, repos, store
}

func createInput() models.CreatePaymentRequestInput {
	return models.CreatePaymentRequestInput{
		Token:    "USDC",
		Amount:   "100",
		Receiver: receiverWallet,
		Network:  "ethereum",
	}
}

func TestCreateNormalizesNetworkAlias(t *testing.T) {
	svc, _, _ := newTestService(&fakeReader{})
	ctx := context.Background()

	input := createInput()
	input.Network = "Eth-Sepolia"
	req, err := svc.PaymentRequests.Create(ctx, creatorWallet, input)
	require.NoError(t, err)

	assert.Equal(t, "sepolia", req.Network)
	assert.Equal(t, models.StatusPending, req.Status)
	assert.Equal(t, creatorWallet, req.CreatorIdentity)
	require.NotNil(t, req.ExpiresAt)
	assert.WithinDuration(t, time.Now().UTC().AddDate(0, 0, 7), *req.ExpiresAt, time.Minute)

	stored, err := svc.PaymentRequests.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, stored.ID)
}

func TestCreateRejectsBadAmount(t *testing.T) {
	svc, _, _ := newTestService(&fakeReader{})
	for _, amount := range []string{"0", "-5", "abc", ""} {
		input := createInput()
		input.Amount = amount
		_, err := svc.PaymentRequests.Create(context.Background(), creatorWallet, input)
		require.Error(t, err, amount)
		assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err), amount)
	}
}

func TestCreateRejectsUnknownNetwork(t *testing.T) {
	svc, _, _ := newTestService(&fakeReader{})
	input := createInput()
	input.Network = "solana"
	_, err := svc.PaymentRequests.Create(context.Background(), creatorWallet, input)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeUnsupportedChain, apperr.CodeOf(err))
}

func TestSettleHappyPath(t *testing.T) {
	reader := &fakeReader{proofs: map[string]*chainclient.TxProof{
		"0xabc": usdcProof(big.NewInt(96_000_000)),
	}}
	svc, repos, _ := newTestService(reader)
	ctx := context.Background()

	req, err := svc.PaymentRequests.Create(ctx, creatorWallet, createInput())
	require.NoError(t, err)

	settled, err := svc.PaymentRequests.Settle(ctx, payerWallet, models.SettleInput{
		RequestID: req.ID,
		TxHash:    "0xabc",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPaid, settled.Status)
	require.NotNil(t, settled.TxHash)
	assert.Equal(t, "0xabc", *settled.TxHash)
	require.NotNil(t, settled.PayerIdentity)
	assert.Equal(t, payerWallet, *settled.PayerIdentity)
	require.NotNil(t, settled.PaidAt)

	records, err := repos.FeeTransactions.GetByPaymentRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "USDC", records[0].FeeToken)
	assert.Equal(t, "4", records[0].FeeTotal)
	assert.Equal(t, "0xabc", records[0].PaymentTxHash)
}

func TestSettleWithSuppliedQuote(t *testing.T) {
	reader := &fakeReader{proofs: map[string]*chainclient.TxProof{
		"0xabc": usdcProof(big.NewInt(96_000_000)),
	}}
	svc, _, _ := newTestService(reader)
	ctx := context.Background()

	req, err := svc.PaymentRequests.Create(ctx, creatorWallet, createInput())
	require.NoError(t, err)

	settled, err := svc.PaymentRequests.Settle(ctx, payerWallet, models.SettleInput{
		RequestID: req.ID,
		TxHash:    "0xabc",
		FeeQuote: &models.FeeQuote{
			FeeToken:               "USDC",
			FeeTotal:               "4",
			PlatformShare:          "2",
			CreatorReward:          "2",
			FeeDeductedFromPayment: true,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, settled.Status)
}

// A supplied quote must never shrink the verified transfer below what
// the current fee allows.
func TestSettleRejectsInflatedSuppliedQuote(t *testing.T) {
	reader := &fakeReader{proofs: map[string]*chainclient.TxProof{
		"0xabc": usdcProof(big.NewInt(1)),
	}}
	svc, _, _ := newTestService(reader)
	ctx := context.Background()

	req, err := svc.PaymentRequests.Create(ctx, creatorWallet, createInput())
	require.NoError(t, err)

	_, err = svc.PaymentRequests.Settle(ctx, payerWallet, models.SettleInput{
		RequestID: req.ID,
		TxHash:    "0xabc",
		FeeQuote: &models.FeeQuote{
			FeeToken:               "USDC",
			FeeTotal:               "99.999999",
			PlatformShare:          "49.999999",
			CreatorReward:          "50",
			FeeDeductedFromPayment: true,
		},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))

	stored, err := svc.PaymentRequests.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestSettleRejectsInconsistentSuppliedQuote(t *testing.T) {
	reader := &fakeReader{proofs: map[string]*chainclient.TxProof{
		"0xabc": usdcProof(big.NewInt(96_000_000)),
	}}
	svc, _, _ := newTestService(reader)
	ctx := context.Background()

	req, err := svc.PaymentRequests.Create(ctx, creatorWallet, createInput())
	require.NoError(t, err)

	for name, quote := range map[string]*models.FeeQuote{
		"shares do not sum": {
			FeeToken: "USDC", FeeTotal: "4", PlatformShare: "1", CreatorReward: "2",
			FeeDeductedFromPayment: true,
		},
		"negative share": {
			FeeToken: "USDC", FeeTotal: "4", PlatformShare: "-1", CreatorReward: "5",
			FeeDeductedFromPayment: true,
		},
		"zero total": {
			FeeToken: "USDC", FeeTotal: "0", PlatformShare: "0", CreatorReward: "0",
			FeeDeductedFromPayment: true,
		},
		"deduction flag without matching token": {
			FeeToken: "PLTA", FeeTotal: "4", PlatformShare: "2", CreatorReward: "2",
			FeeDeductedFromPayment: true,
		},
		"unknown fee token": {
			FeeToken: "DOGE", FeeTotal: "4", PlatformShare: "2", CreatorReward: "2",
		},
	} {
		_, err := svc.PaymentRequests.Settle(ctx, payerWallet, models.SettleInput{
			RequestID: req.ID,
			TxHash:    "0xabc",
			FeeQuote:  quote,
		})
		require.Error(t, err, name)
	}

	stored, err := svc.PaymentRequests.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
}

// A loyalty quote issued before the payer's balance dropped still
// settles: the fee was owed off-payment, so the verifier expects the
// full amount.
func TestSettleSuppliedLoyaltyQuoteAfterBalanceDrift(t *testing.T) {
	reader := &fakeReader{proofs: map[string]*chainclient.TxProof{
		"0xabc": usdcProof(big.NewInt(100_000_000)),
	}}
	svc, _, _ := newTestService(reader)
	ctx := context.Background()

	req, err := svc.PaymentRequests.Create(ctx, creatorWallet, createInput())
	require.NoError(t, err)

	settled, err := svc.PaymentRequests.Settle(ctx, payerWallet, models.SettleInput{
		RequestID: req.ID,
		TxHash:    "0xabc",
		FeeQuote: &models.FeeQuote{
			FeeToken:      "PLTA",
			FeeTotal:      "4",
			PlatformShare: "2",
			CreatorReward: "2",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaid, settled.Status)
}

func TestSettleTwiceSameHash(t *testing.T) {
	reader := &fakeReader{proofs: map[string]*chainclient.TxProof{
		"0xabc": usdcProof(big.NewInt(96_000_000)),
	}}
	svc, _, _ := newTestService(reader)
	ctx := context.Background()

	req, err := svc.PaymentRequests.Create(ctx, creatorWallet, createInput())
	require.NoError(t, err)

	input := models.SettleInput{RequestID: req.ID, TxHash: "0xabc"}
	_, err = svc.PaymentRequests.Settle(ctx, payerWallet, input)
	require.NoError(t, err)

	_, err = svc.PaymentRequests.Settle(ctx, payerWallet, input)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeAlreadyProcessed, apperr.CodeOf(err))
}

func TestSettleTxHashReusedAcrossRequests(t *testing.T) {
	reader := &fakeReader{proofs: map[string]*chainclient.TxProof{
		"0xabc": usdcProof(big.NewInt(96_000_000)),
	}}
	svc, _, _ := newTestService(reader)
	ctx := context.Background()

	first, err := svc.PaymentRequests.Create(ctx, creatorWallet, createInput())
	require.NoError(t, err)
	second, err := svc.PaymentRequests.Create(ctx, creatorWallet, createInput())
	require.NoError(t, err)

	_, err = svc.PaymentRequests.Settle(ctx, payerWallet, models.SettleInput{RequestID: first.ID, TxHash: "0xabc"})
	require.NoError(t, err)

	_, err = svc.PaymentRequests.Settle(ctx, payerWallet, models.SettleInput{RequestID: second.ID, TxHash: "0xabc"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeDuplicateTxHash, apperr.CodeOf(err))
}

func TestSettleConcurrentSingleWinner(t *testing.T) {
	reader := &fakeReader{proofs: map[string]*chainclient.TxProof{
		"0xabc": usdcProof(big.NewInt(96_000_000)),
	}}
	svc, _, _ := newTestService(reader)
	ctx := context.Background()

	req, err := svc.PaymentRequests.Create(ctx, creatorWallet, createInput())
	require.NoError(t, err)

	const settlers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < settlers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PaymentRequests.Settle(ctx, payerWallet, models.SettleInput{RequestID: req.ID, TxHash: "0xabc"})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.Equal(t, apperr.CodeAlreadyProcessed, apperr.CodeOf(err))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestSettleVerificationFailure(t *testing.T) {
	reader := &fakeReader{proofs: map[string]*chainclient.TxProof{
		"0xabc": usdcProof(big.NewInt(50_000_000)),
	}}
	svc, _, _ := newTestService(reader)
	ctx := context.Background()

	req, err := svc.PaymentRequests.Create(ctx, creatorWallet, createInput())
	require.NoError(t, err)

	_, err = svc.PaymentRequests.Settle(ctx, payerWallet, models.SettleInput{RequestID: req.ID, TxHash: "0xabc"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeVerificationFailed, apperr.CodeOf(err))

	// A failed settlement leaves the request payable.
	stored, err := svc.PaymentRequests.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
}

func TestSettleUnminedTransaction(t *testing.T) {
	svc, _, _ := newTestService(&fakeReader{})
	ctx := context.Background()

	req, err := svc.PaymentRequests.Create(ctx, creatorWallet, createInput())
	require.NoError(t, err)

	_, err = svc.PaymentRequests.Settle(ctx, payerWallet, models.SettleInput{RequestID: req.ID, TxHash: "0xmissing"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}

func TestCancelOnlyByCreator(t *testing.T) {
	svc, _, _ := newTestService(&fakeReader{})
	ctx := context.Background()

	req, err := svc.PaymentRequests.Create(ctx, creatorWallet, createInput())
	require.NoError(t, err)

	_, err = svc.PaymentRequests.Cancel(ctx, "0xIntruder", req.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	cancelled, err := svc.PaymentRequests.Cancel(ctx, creatorWallet, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	_, err = svc.PaymentRequests.Settle(ctx, payerWallet, models.SettleInput{RequestID: req.ID, TxHash: "0xabc"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestQuoteAndSettleRejectExpiredRequest(t *testing.T) {
	svc, _, store := newTestService(&fakeReader{})
	ctx := context.Background()

	expired := time.Now().UTC().Add(-time.Hour)
	req := models.PaymentRequest{
		ID:              "req-expired",
		Token:           "USDC",
		Amount:          "100",
		Receiver:        receiverWallet,
		Network:         "ethereum",
		Status:          models.StatusPending,
		CreatedAt:       time.Now().UTC().AddDate(0, 0, -8),
		ExpiresAt:       &expired,
		CreatorWallet:   creatorWallet,
		CreatorIdentity: creatorWallet,
	}
	require.NoError(t, store.Create(ctx, &req))

	_, _, err := svc.PaymentRequests.Quote(ctx, req.ID, payerWallet)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeExpired, apperr.CodeOf(err))

	_, err = svc.PaymentRequests.Settle(ctx, payerWallet, models.SettleInput{RequestID: req.ID, TxHash: "0xabc"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeExpired, apperr.CodeOf(err))

	// The stored row still says PENDING; expiry is a read-time property.
	stored, err := store.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
}
