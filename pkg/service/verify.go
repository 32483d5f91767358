package service

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"payrequest_back/models"
	"payrequest_back/pkg/apperr"
	"payrequest_back/pkg/chainclient"
	"payrequest_back/pkg/registry"
)

// VerifierService checks that a claimed transaction hash performed the
// expected transfer. Amount comparison is exact to the base unit; no
// tolerance band, so partial payments never verify.
type VerifierService struct {
	registry *registry.ChainRegistry
	readers  map[string]chainclient.ChainReader
	cfg      VerifyConfig
}

func NewVerifierService(reg *registry.ChainRegistry, readers map[string]chainclient.ChainReader, cfg VerifyConfig) *VerifierService {
	if cfg.MinConfirmations == 0 {
		cfg.MinConfirmations = 1
	}
	if cfg.ReceiptPollAttempts <= 0 {
		cfg.ReceiptPollAttempts = 3
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = 2 * time.Second
	}
	return &VerifierService{registry: reg, readers: readers, cfg: cfg}
}

func (s *VerifierService) Verify(ctx context.Context, params VerifyParams) (models.VerificationResult, error) {
	chain, err := s.registry.Resolve(params.Network)
	if err != nil {
		return models.VerificationResult{}, err
	}
	reader, ok := s.readers[chain]
	if !ok {
		return models.VerificationResult{}, apperr.New(apperr.CodeUnsupportedChain,
			fmt.Sprintf("no rpc client for chain %q", chain))
	}

	token, err := s.registry.Token(chain, params.Token)
	if err != nil {
		return models.VerificationResult{}, err
	}
	amount, err := decimal.NewFromString(params.Amount)
	if err != nil || amount.Sign() <= 0 {
		return models.VerificationResult{}, apperr.New(apperr.CodeValidation, "amount must be a positive decimal")
	}
	expected := amount.Shift(int32(token.Decimals)).BigInt()

	proof, err := s.awaitProof(ctx, reader, params.TxHash)
	if err != nil {
		return models.VerificationResult{}, err
	}
	if !proof.Found {
		return models.VerificationResult{
			Code:    string(apperr.CodeNotFound),
			Details: "transaction not found; it may not be mined yet",
		}, nil
	}
	if proof.Reverted {
		return models.VerificationResult{
			BlockNumber: proof.BlockNumber,
			Code:        string(apperr.CodeVerificationFailed),
			Details:     "transaction reverted on chain",
		}, nil
	}
	if proof.Confirmations < s.cfg.MinConfirmations {
		return models.VerificationResult{
			BlockNumber: proof.BlockNumber,
			Code:        string(apperr.CodePendingConfirmation),
			Details: fmt.Sprintf("%d of %d confirmations",
				proof.Confirmations, s.cfg.MinConfirmations),
		}, nil
	}

	if token.Address == "" {
		return verifyNative(proof, expected, params.Receiver), nil
	}
	return verifyToken(proof, token.Address, expected, params.Receiver), nil
}

// awaitProof polls for the receipt within the configured bound. RPC
// failures surface as errors so callers never mistake an outage for an
// invalid payment.
func (s *VerifierService) awaitProof(ctx context.Context, reader chainclient.ChainReader, txHash string) (*chainclient.TxProof, error) {
	for attempt := 1; ; attempt++ {
		proof, err := reader.TransactionProof(ctx, txHash)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeRPC, "chain rpc failure")
		}
		if proof.Found || attempt >= s.cfg.ReceiptPollAttempts {
			return proof, nil
		}
		select {
		case <-ctx.Done():
			return nil, apperr.Wrap(ctx.Err(), apperr.CodeRPC, "verification deadline exceeded")
		case <-time.After(s.cfg.ReceiptPollInterval):
		}
	}
}

func verifyNative(proof *chainclient.TxProof, expected *big.Int, receiver string) models.VerificationResult {
	if proof.NativeValue == nil || proof.NativeValue.Cmp(expected) != 0 {
		got := "0"
		if proof.NativeValue != nil {
			got = proof.NativeValue.String()
		}
		return models.VerificationResult{
			BlockNumber: proof.BlockNumber,
			Code:        string(apperr.CodeAmountMismatch),
			Details:     fmt.Sprintf("expected %s base units, transaction carries %s", expected, got),
		}
	}
	if !chainclient.SameAddress(proof.NativeTo, receiver) {
		return models.VerificationResult{
			BlockNumber: proof.BlockNumber,
			Code:        string(apperr.CodeReceiverMismatch),
			Details:     fmt.Sprintf("transaction pays %s, expected %s", proof.NativeTo, receiver),
		}
	}
	return models.VerificationResult{Valid: true, BlockNumber: proof.BlockNumber}
}

func verifyToken(proof *chainclient.TxProof, tokenAddress string, expected *big.Int, receiver string) models.VerificationResult {
	tokenSeen := false
	receiverSeen := false
	var wrongValue *big.Int

	for _, transfer := range proof.Transfers {
		if !chainclient.SameAddress(transfer.Token, tokenAddress) {
			continue
		}
		tokenSeen = true
		if !chainclient.SameAddress(transfer.To, receiver) {
			continue
		}
		receiverSeen = true
		if transfer.Value.Cmp(expected) == 0 {
			return models.VerificationResult{Valid: true, BlockNumber: proof.BlockNumber}
		}
		wrongValue = transfer.Value
	}

	result := models.VerificationResult{BlockNumber: proof.BlockNumber}
	switch {
	case receiverSeen:
		result.Code = string(apperr.CodeAmountMismatch)
		result.Details = fmt.Sprintf("expected %s base units, transfer carries %s", expected, wrongValue)
	case tokenSeen:
		result.Code = string(apperr.CodeReceiverMismatch)
		result.Details = fmt.Sprintf("no transfer of the expected token pays %s", receiver)
	default:
		result.Code = string(apperr.CodeTokenMismatch)
		result.Details = fmt.Sprintf("no transfer event from token contract %s", strings.ToLower(tokenAddress))
	}
	return result
}
