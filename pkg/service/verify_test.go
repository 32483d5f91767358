package service

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payrequest_back/pkg/apperr"
	"payrequest_back/pkg/chainclient"
)

func newVerifier(reader *fakeReader) *VerifierService {
	return NewVerifierService(testRegistry(), map[string]chainclient.ChainReader{"ethereum": reader}, VerifyConfig{
		MinConfirmations:    1,
		ReceiptPollAttempts: 1,
		ReceiptPollInterval: time.Millisecond,
	})
}

func usdcParams(txHash, amount string) VerifyParams {
	return VerifyParams{
		Network:  "ethereum",
		TxHash:   txHash,
		Amount:   amount,
		Token:    "USDC",
		Receiver: receiverWallet,
	}
}

func usdcProof(value *big.Int) *chainclient.TxProof {
	return &chainclient.TxProof{
		Found:         true,
		BlockNumber:   100,
		Confirmations: 5,
		Transfers: []chainclient.TokenTransfer{
			{Token: usdcAddress, From: payerWallet, To: receiverWallet, Value: value},
		},
	}
}

func TestVerifyValidTokenTransfer(t *testing.T) {
	reader := &fakeReader{proofs: map[string]*chainclient.TxProof{
		"0xabc": usdcProof(big.NewInt(96_000_000)),
	}}
	result, err := newVerifier(reader).Verify(context.Background(), usdcParams("0xabc", "96"))
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, uint64(100), result.BlockNumber)
}

func TestVerifyAmountOffByOneBaseUnit(t *testing.T) {
	reader := &fakeReader{proofs: map[string]*chainclient.TxProof{
		"0xabc": usdcProof(big.NewInt(95_999_999)),
	}}
	result, err := newVerifier(reader).Verify(context.Background(), usdcParams("0xabc", "96"))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, string(apperr.CodeAmountMismatch), result.Code)
}

func TestVerifyWrongTokenContract(t *testing.T) {
	proof := usdcProof(big.NewInt(96_000_000))
	proof.Transfers[0].Token = "0x000000000000000000000000000000000000dEaD"
	reader := &fakeReader{proofs: map[string]*chainclient.TxProof{"0xabc": proof}}

	result, err := newVerifier(reader).Verify(context.Background(), usdcParams("0xabc", "96"))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, string(apperr.CodeTokenMismatch), result.Code)
}

func TestVerifyWrongRecipient(t *testing.T) {
	proof := usdcProof(big.NewInt(96_000_000))
	proof.Transfers[0].To = "0xSomebodyElse"
	reader := &fakeReader{proofs: map[string]*chainclient.TxProof{"0xabc": proof}}

	result, err := newVerifier(reader).Verify(context.Background(), usdcParams("0xabc", "96"))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, string(apperr.CodeReceiverMismatch), result.Code)
}

func TestVerifyAddressComparisonIsCaseInsensitive(t *testing.T) {
	proof := usdcProof(big.NewInt(96_000_000))
	proof.Transfers[0].Token = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	proof.Transfers[0].To = "0XRECEIVERWALLET"
	reader := &fakeReader{proofs: map[string]*chainclient.TxProof{"0xabc": proof}}

	result, err := newVerifier(reader).Verify(context.Background(), usdcParams("0xabc", "96"))
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestVerifyPendingConfirmation(t *testing.T) {
	proof := usdcProof(big.NewInt(96_000_000))
	proof.Confirmations = 1
	reader := &fakeReader{proofs: map[string]*chainclient.TxProof{"0xabc": proof}}

	verifier := NewVerifierService(testRegistry(), map[string]chainclient.ChainReader{"ethereum": reader}, VerifyConfig{
		MinConfirmations:    3,
		ReceiptPollAttempts: 1,
		ReceiptPollInterval: time.Millisecond,
	})
	result, err := verifier.Verify(context.Background(), usdcParams("0xabc", "96"))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, string(apperr.CodePendingConfirmation), result.Code)
}

func TestVerifyTransactionNotFound(t *testing.T) {
	reader := &fakeReader{}
	result, err := newVerifier(reader).Verify(context.Background(), usdcParams("0xmissing", "96"))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, string(apperr.CodeNotFound), result.Code)
}

func TestVerifyRevertedTransaction(t *testing.T) {
	proof := usdcProof(big.NewInt(96_000_000))
	proof.Reverted = true
	reader := &fakeReader{proofs: map[string]*chainclient.TxProof{"0xabc": proof}}

	result, err := newVerifier(reader).Verify(context.Background(), usdcParams("0xabc", "96"))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, string(apperr.CodeVerificationFailed), result.Code)
}

// An RPC outage must surface as an error, never as an invalid verdict.
func TestVerifyRPCFailureIsAnError(t *testing.T) {
	reader := &fakeReader{proofErr: errors.New("connection refused")}
	_, err := newVerifier(reader).Verify(context.Background(), usdcParams("0xabc", "96"))
	require.Error(t, err)
	assert.Equal(t, apperr.CodeRPC, apperr.CodeOf(err))
	assert.True(t, apperr.Retryable(err))
}

func TestVerifyNativeTransfer(t *testing.T) {
	expected, _ := new(big.Int).SetString("1500000000000000000", 10)
	reader := &fakeReader{proofs: map[string]*chainclient.TxProof{
		"0xeth": {
			Found:         true,
			BlockNumber:   200,
			Confirmations: 2,
			NativeTo:      receiverWallet,
			NativeValue:   expected,
		},
	}}

	params := usdcParams("0xeth", "1.5")
	params.Token = "ETH"
	result, err := newVerifier(reader).Verify(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestVerifyNativeAmountMismatch(t *testing.T) {
	reader := &fakeReader{proofs: map[string]*chainclient.TxProof{
		"0xeth": {
			Found:         true,
			BlockNumber:   200,
			Confirmations: 2,
			NativeTo:      receiverWallet,
			NativeValue:   big.NewInt(1),
		},
	}}

	params := usdcParams("0xeth", "1.5")
	params.Token = "ETH"
	result, err := newVerifier(reader).Verify(context.Background(), params)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, string(apperr.CodeAmountMismatch), result.Code)
}

func TestVerifyUnknownChain(t *testing.T) {
	reader := &fakeReader{}
	params := usdcParams("0xabc", "96")
	params.Network = "solana"
	_, err := newVerifier(reader).Verify(context.Background(), params)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeUnsupportedChain, apperr.CodeOf(err))
}
