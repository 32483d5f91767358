package service

import (
	"context"
	"math/big"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"payrequest_back/models"
	"payrequest_back/pkg/chainclient"
	"payrequest_back/pkg/registry"
)

const (
	usdcAddress    = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	loyaltyAddress = "0x3f9E33AC0dF1a6d3E0fB1f5cE18d0c9b6f0a7C11"
	platformWallet = "0xPlatformWallet"
	creatorWallet  = "0xCreatorWallet"
	receiverWallet = "0xReceiverWallet"
	payerWallet    = "0xPayerWallet"
)

func testRegistry() *registry.ChainRegistry {
	r, err := registry.New([]models.ChainDescriptor{
		{
			ID:             "ethereum",
			Aliases:        []string{"eth", "mainnet"},
			ChainID:        1,
			Family:         models.FamilyEVM,
			NativeSymbol:   "ETH",
			NativeDecimals: 18,
			Tokens: map[string]models.TokenConfig{
				"USDC": {Address: usdcAddress, Decimals: 6, CoingeckoID: "usd-coin"},
				"PLTA": {Address: loyaltyAddress, Decimals: 18, CoingeckoID: "plata-token"},
			},
		},
		{
			ID:             "sepolia",
			Aliases:        []string{"eth-sepolia"},
			ChainID:        11155111,
			Testnet:        true,
			Family:         models.FamilyEVM,
			NativeSymbol:   "ETH",
			NativeDecimals: 18,
			Tokens: map[string]models.TokenConfig{
				"USDC": {Address: usdcAddress, Decimals: 6, CoingeckoID: "usd-coin"},
			},
		},
	})
	if err != nil {
		panic(err)
	}
	return r
}

// fakeReader serves canned balances and proofs keyed by tx hash.
type fakeReader struct {
	balances   map[string]*big.Int
	balanceErr error
	proofs     map[string]*chainclient.TxProof
	proofErr   error
}

func (f *fakeReader) TokenBalance(_ context.Context, tokenAddress, holder string) (*big.Int, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	key := strings.ToLower(tokenAddress) + "|" + strings.ToLower(holder)
	if balance, ok := f.balances[key]; ok {
		return balance, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeReader) TransactionProof(_ context.Context, txHash string) (*chainclient.TxProof, error) {
	if f.proofErr != nil {
		return nil, f.proofErr
	}
	if proof, ok := f.proofs[txHash]; ok {
		return proof, nil
	}
	return &chainclient.TxProof{}, nil
}

func (f *fakeReader) ValidAddress(addr string) bool {
	return addr != ""
}

func (f *fakeReader) setBalance(tokenAddress, holder string, balance *big.Int) {
	if f.balances == nil {
		f.balances = make(map[string]*big.Int)
	}
	f.balances[strings.ToLower(tokenAddress)+"|"+strings.ToLower(holder)] = balance
}

// fakePrices returns fixed USD prices per coingecko id.
type fakePrices struct {
	prices map[string]decimal.Decimal
	err    error
}

func (f *fakePrices) USDPrice(_ context.Context, coingeckoID string) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	if price, ok := f.prices[coingeckoID]; ok {
		return price, nil
	}
	return decimal.Zero, errors.New("unknown coin")
}

func testFeeConfig() FeeConfig {
	return FeeConfig{
		LoyaltyToken:     "PLTA",
		LoyaltyThreshold: "4",
		LoyaltyFeeTotal:  "4",
		PlatformWallet:   platformWallet,
	}
}

func usdcRequest(amount string) models.PaymentRequest {
	return models.PaymentRequest{
		ID:              "req-1",
		Token:           "USDC",
		Amount:          amount,
		Receiver:        receiverWallet,
		Network:         "ethereum",
		Status:          models.StatusPending,
		CreatorWallet:   creatorWallet,
		CreatorIdentity: creatorWallet,
	}
}

func loyaltyUnits(whole int64) *big.Int {
	return decimal.NewFromInt(whole).Shift(18).BigInt()
}
