package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/backoffice-ledger/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// FeeRateProvider looks up the configured percentage for a fee type.
// ok is false when no rate is configured.
type FeeRateProvider interface {
	LookupFeeRate(ctx context.Context, feeType domain.FeeType) (pct decimal.Decimal, ok bool, err error)
}

// FeeQuote is the outcome of a fee computation.
type FeeQuote struct {
	Percentage decimal.Decimal
	Fee        domain.Money
	Gross      domain.Money
}

// FeeCalculator derives fee and gross amounts for a requested amount.
type FeeCalculator struct {
	rates FeeRateProvider
}

func NewFeeCalculator(rates FeeRateProvider) *FeeCalculator {
	return &FeeCalculator{rates: rates}
}

// Compute returns fee = round_half_up(requested * pct / 100, 2) and
// gross = requested + fee. A missing rate or a failed lookup is treated as 0%.
func (c *FeeCalculator) Compute(ctx context.Context, requested domain.Money, feeType *domain.FeeType) (FeeQuote, error) {
	if !requested.IsPositive() {
		return FeeQuote{}, fmt.Errorf("%w: %s", domain.ErrInvalidAmount, requested)
	}

	pct := decimal.Zero
	if feeType != nil && c.rates != nil {
		rate, ok, err := c.rates.LookupFeeRate(ctx, *feeType)
		switch {
		case err != nil:
			zap.L().Warn("fee rate lookup failed, applying zero fee",
				zap.String("fee_type", string(*feeType)),
				zap.Error(err),
			)
		case ok:
			pct = rate
		}
	}

	fee, err := domain.MoneyFromDecimal(requested.Decimal().Mul(pct).Div(hundred))
	if err != nil {
		return FeeQuote{}, fmt.Errorf("fee for %s: %w", requested, err)
	}
	gross, err := requested.CheckedAdd(fee)
	if err != nil {
		return FeeQuote{}, fmt.Errorf("gross for %s: %w", requested, err)
	}
	return FeeQuote{
		Percentage: pct,
		Fee:        fee,
		Gross:      gross,
	}, nil
}
