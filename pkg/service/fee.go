package service

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"payrequest_back/models"
	"payrequest_back/pkg/apperr"
	"payrequest_back/pkg/chainclient"
	"payrequest_back/pkg/oracle"
	"payrequest_back/pkg/registry"
)

// FeeService implements the fee algorithm: payers holding enough of
// the loyalty token pay the fee in it at a fixed total; everyone else
// pays in the payment's own token, priced off the loyalty token's USD
// value. Quote is side-effect free and deterministic under retry.
type FeeService struct {
	registry *registry.ChainRegistry
	readers  map[string]chainclient.ChainReader
	prices   oracle.PriceSource
	cfg      FeeConfig

	loyaltyThreshold decimal.Decimal
	loyaltyFeeTotal  decimal.Decimal
}

func NewFeeService(reg *registry.ChainRegistry, readers map[string]chainclient.ChainReader, prices oracle.PriceSource, cfg FeeConfig) *FeeService {
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 10 * time.Second
	}
	threshold, err := decimal.NewFromString(cfg.LoyaltyThreshold)
	if err != nil || threshold.Sign() <= 0 {
		threshold = decimal.NewFromInt(4)
	}
	total, err := decimal.NewFromString(cfg.LoyaltyFeeTotal)
	if err != nil || total.Sign() <= 0 {
		total = decimal.NewFromInt(4)
	}
	// Config loaders may lowercase map keys; lookups are by symbol.
	fallback := make(map[string]string, len(cfg.FallbackPrices))
	for symbol, price := range cfg.FallbackPrices {
		fallback[strings.ToUpper(symbol)] = price
	}
	cfg.FallbackPrices = fallback
	return &FeeService{
		registry:         reg,
		readers:          readers,
		prices:           prices,
		cfg:              cfg,
		loyaltyThreshold: threshold,
		loyaltyFeeTotal:  total,
	}
}

func (s *FeeService) Quote(ctx context.Context, req models.PaymentRequest, payer string) (models.FeeQuote, []models.TransferInstruction, error) {
	payToken, err := s.registry.Token(req.Network, req.Token)
	if err != nil {
		return models.FeeQuote{}, nil, err
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.Sign() <= 0 {
		return models.FeeQuote{}, nil, apperr.New(apperr.CodeValidation, "amount must be a positive decimal")
	}

	loyalty, loyaltyConfigured := s.loyaltyOn(req.Network)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()

	// Balance check and price fetches are independent round trips;
	// issue them concurrently to bound latency.
	balanceCh := make(chan *big.Int, 1)
	loyaltyPriceCh := make(chan decimal.Decimal, 1)
	payPriceCh := make(chan decimal.Decimal, 1)

	go func() {
		balanceCh <- s.loyaltyBalance(ctx, req.Network, loyalty, loyaltyConfigured, payer)
	}()
	go func() {
		loyaltyPriceCh <- s.usdPrice(ctx, s.cfg.LoyaltyToken, loyalty.CoingeckoID)
	}()
	go func() {
		payPriceCh <- s.usdPrice(ctx, req.Token, payToken.CoingeckoID)
	}()

	balance := <-balanceCh
	loyaltyPrice := <-loyaltyPriceCh
	payPrice := <-payPriceCh

	var quote models.FeeQuote
	if loyaltyConfigured && s.meetsThreshold(balance, loyalty.Decimals) {
		quote = s.loyaltyQuote(loyalty)
	} else {
		quote = s.fallbackQuote(req.Token, payToken, loyaltyPrice, payPrice)
	}
	quote.FeeDeductedFromPayment = strings.EqualFold(quote.FeeToken, req.Token)

	if quote.FeeDeductedFromPayment {
		feeTotal, _ := decimal.NewFromString(quote.FeeTotal)
		if amount.Cmp(feeTotal) <= 0 {
			minimum := feeTotal.Add(decimal.New(1, -int32(payToken.Decimals)))
			return models.FeeQuote{}, nil, apperr.New(apperr.CodeInsufficientForFee,
				fmt.Sprintf("amount %s %s does not cover the %s fee; minimum is %s",
					req.Amount, req.Token, quote.FeeTotal, minimum))
		}
	}

	transfers := s.transfers(req, quote)
	return quote, transfers, nil
}

func (s *FeeService) loyaltyOn(network string) (models.TokenConfig, bool) {
	loyalty, err := s.registry.Token(network, s.cfg.LoyaltyToken)
	if err != nil || loyalty.Address == "" {
		return models.TokenConfig{}, false
	}
	return loyalty, true
}

// loyaltyBalance returns the payer's loyalty-token balance, or zero on
// any failure: a balance read error degrades to the fallback fee
// rather than failing the request.
func (s *FeeService) loyaltyBalance(ctx context.Context, network string, loyalty models.TokenConfig, configured bool, payer string) *big.Int {
	if !configured || payer == "" {
		return big.NewInt(0)
	}
	reader, ok := s.readers[network]
	if !ok {
		return big.NewInt(0)
	}
	balance, err := reader.TokenBalance(ctx, loyalty.Address, payer)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"network": network,
			"payer":   payer,
		}).Warn("loyalty balance read failed, using fallback fee")
		return big.NewInt(0)
	}
	return balance
}

// usdPrice consults the oracle and degrades to the operator-configured
// fallback price (1 USD when unconfigured) on any failure.
func (s *FeeService) usdPrice(ctx context.Context, symbol, coingeckoID string) decimal.Decimal {
	if coingeckoID != "" && s.prices != nil {
		price, err := s.prices.USDPrice(ctx, coingeckoID)
		if err == nil && price.Sign() > 0 {
			return price
		}
		logrus.WithError(err).WithField("token", symbol).Warn("price oracle failed, using fallback price")
	}
	if raw, ok := s.cfg.FallbackPrices[strings.ToUpper(symbol)]; ok {
		if price, err := decimal.NewFromString(raw); err == nil && price.Sign() > 0 {
			return price
		}
	}
	return decimal.NewFromInt(1)
}

func (s *FeeService) meetsThreshold(balance *big.Int, decimals int) bool {
	if balance == nil || balance.Sign() <= 0 {
		return false
	}
	threshold := s.loyaltyThreshold.Shift(int32(decimals)).BigInt()
	return balance.Cmp(threshold) >= 0
}

// loyaltyQuote charges the fixed loyalty fee, split evenly.
func (s *FeeService) loyaltyQuote(loyalty models.TokenConfig) models.FeeQuote {
	totalBase := s.loyaltyFeeTotal.Shift(int32(loyalty.Decimals)).BigInt()
	platformBase, creatorBase := splitFee(totalBase)
	return models.FeeQuote{
		FeeToken:        strings.ToUpper(s.cfg.LoyaltyToken),
		FeeTokenAddress: loyalty.Address,
		FeeTotal:        baseToDecimal(totalBase, loyalty.Decimals),
		PlatformShare:   baseToDecimal(platformBase, loyalty.Decimals),
		CreatorReward:   baseToDecimal(creatorBase, loyalty.Decimals),
	}
}

// fallbackQuote converts the loyalty fee target into payment-token
// units at oracle prices. Rounds the total up to the next base unit so
// the fee never vanishes on cheap tokens.
func (s *FeeService) fallbackQuote(paySymbol string, payToken models.TokenConfig, loyaltyPrice, payPrice decimal.Decimal) models.FeeQuote {
	feeUSD := s.loyaltyFeeTotal.Mul(loyaltyPrice)
	feeInPayToken := feeUSD.Div(payPrice)

	totalBase := feeInPayToken.Shift(int32(payToken.Decimals)).Ceil().BigInt()
	if totalBase.Sign() <= 0 {
		totalBase = big.NewInt(1)
	}
	platformBase, creatorBase := splitFee(totalBase)
	return models.FeeQuote{
		FeeToken:        strings.ToUpper(paySymbol),
		FeeTokenAddress: payToken.Address,
		FeeTotal:        baseToDecimal(totalBase, payToken.Decimals),
		PlatformShare:   baseToDecimal(platformBase, payToken.Decimals),
		CreatorReward:   baseToDecimal(creatorBase, payToken.Decimals),
	}
}

// splitFee halves the total in base units; any odd remainder goes to
// the creator, deterministically. platform + creator == total always.
func splitFee(totalBase *big.Int) (platform, creator *big.Int) {
	platform = new(big.Int).Div(totalBase, big.NewInt(2))
	creator = new(big.Int).Sub(totalBase, platform)
	return platform, creator
}

// transfers builds the ordered settlement legs: payment, platform fee,
// creator reward.
func (s *FeeService) transfers(req models.PaymentRequest, quote models.FeeQuote) []models.TransferInstruction {
	payAddress, _ := s.registry.TokenAddress(req.Network, req.Token)

	paymentAmount := req.Amount
	if quote.FeeDeductedFromPayment {
		amount, _ := decimal.NewFromString(req.Amount)
		feeTotal, _ := decimal.NewFromString(quote.FeeTotal)
		paymentAmount = amount.Sub(feeTotal).String()
	}

	return []models.TransferInstruction{
		{Token: strings.ToUpper(req.Token), TokenAddress: payAddress, Amount: paymentAmount, Recipient: req.Receiver},
		{Token: quote.FeeToken, TokenAddress: quote.FeeTokenAddress, Amount: quote.PlatformShare, Recipient: s.cfg.PlatformWallet},
		{Token: quote.FeeToken, TokenAddress: quote.FeeTokenAddress, Amount: quote.CreatorReward, Recipient: req.CreatorWallet},
	}
}

func baseToDecimal(base *big.Int, decimals int) string {
	return decimal.NewFromBigInt(base, -int32(decimals)).String()
}
