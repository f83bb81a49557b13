package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/backoffice-ledger/internal/domain"
	"github.com/ayo6706/backoffice-ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	feeRateKeyPrefix = "fee_rate"
	// Cached marker for "no rate configured".
	feeRateMissing = "-"
)

var (
	ErrFeeRateNotFound = errors.New("fee rate not found")
	ErrInvalidFeeRate  = errors.New("invalid fee rate")
)

// FeeRate is the admin view of a configured fee percentage.
type FeeRate struct {
	FeeType    domain.FeeType  `json:"fee_type"`
	Percentage decimal.Decimal `json:"percentage"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// FeeRateService reads and manages fee rates. Reads go through an optional
// Redis cache; writes invalidate it.
type FeeRateService struct {
	store QueryStore
	redis redis.Cmdable
	ttl   time.Duration
}

func NewFeeRateService(store QueryStore, cache redis.Cmdable, ttl time.Duration) *FeeRateService {
	return &FeeRateService{store: store, redis: cache, ttl: ttl}
}

var _ FeeRateProvider = (*FeeRateService)(nil)

// LookupFeeRate implements FeeRateProvider.
func (s *FeeRateService) LookupFeeRate(ctx context.Context, feeType domain.FeeType) (decimal.Decimal, bool, error) {
	if pct, ok, hit := s.cached(ctx, feeType); hit {
		return pct, ok, nil
	}

	row, err := s.store.Queries().GetFeeRate(ctx, string(feeType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.cache(ctx, feeType, feeRateMissing)
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, fmt.Errorf("get fee rate: %w", err)
	}

	pct, err := decimal.NewFromString(row.Percentage)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("parse fee rate %q: %w", row.Percentage, err)
	}
	s.cache(ctx, feeType, pct.String())
	return pct, true, nil
}

// Get returns the configured rate for feeType.
func (s *FeeRateService) Get(ctx context.Context, feeType domain.FeeType) (*FeeRate, error) {
	row, err := s.store.Queries().GetFeeRate(ctx, string(feeType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("fee rate %s: %w", feeType, ErrFeeRateNotFound)
		}
		return nil, fmt.Errorf("get fee rate: %w", err)
	}
	return toFeeRate(row)
}

// Set upserts the percentage for feeType. pct must be within [0, 100] with at
// most two decimal places.
func (s *FeeRateService) Set(ctx context.Context, feeType domain.FeeType, pct decimal.Decimal, actorID *uuid.UUID) (*FeeRate, error) {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return nil, fmt.Errorf("%w: percentage must be between 0 and 100", ErrInvalidFeeRate)
	}
	if !pct.Equal(pct.Truncate(2)) {
		return nil, fmt.Errorf("%w: percentage has more than 2 decimal places", ErrInvalidFeeRate)
	}

	var out *FeeRate
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		row, err := qtx.UpsertFeeRate(ctx, repository.UpsertFeeRateParams{
			FeeType:    string(feeType),
			Percentage: pct.StringFixed(2),
		})
		if err != nil {
			return fmt.Errorf("upsert fee rate: %w", err)
		}
		out, err = toFeeRate(row)
		if err != nil {
			return err
		}
		return NewAuditService().Write(ctx, qtx, "fee_rate", feeRateEntityID(feeType), actorID, "fee_rate_updated", "", out.Percentage.StringFixed(2), nil)
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, feeType)
	return out, nil
}

func (s *FeeRateService) cached(ctx context.Context, feeType domain.FeeType) (decimal.Decimal, bool, bool) {
	if s.redis == nil {
		return decimal.Zero, false, false
	}
	val, err := s.redis.Get(ctx, feeRateKey(feeType)).Result()
	if err != nil {
		if err != redis.Nil {
			zap.L().Warn("redis fee rate lookup failed", zap.Error(err))
		}
		return decimal.Zero, false, false
	}
	if val == feeRateMissing {
		return decimal.Zero, false, true
	}
	pct, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false, false
	}
	return pct, true, true
}

func (s *FeeRateService) cache(ctx context.Context, feeType domain.FeeType, val string) {
	if s.redis == nil || s.ttl <= 0 {
		return
	}
	if err := s.redis.Set(ctx, feeRateKey(feeType), val, s.ttl).Err(); err != nil {
		zap.L().Warn("redis fee rate cache set failed", zap.Error(err))
	}
}

func (s *FeeRateService) invalidate(ctx context.Context, feeType domain.FeeType) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, feeRateKey(feeType)).Err(); err != nil {
		zap.L().Warn("redis fee rate invalidate failed", zap.Error(err))
	}
}

// feeRateEntityID derives a stable audit entity id from the fee type.
func feeRateEntityID(feeType domain.FeeType) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("fee_rate:"+string(feeType)))
}

func feeRateKey(feeType domain.FeeType) string {
	return fmt.Sprintf("%s:%s", feeRateKeyPrefix, feeType)
}

func toFeeRate(row repository.FeeRate) (*FeeRate, error) {
	pct, err := decimal.NewFromString(row.Percentage)
	if err != nil {
		return nil, fmt.Errorf("parse fee rate %q: %w", row.Percentage, err)
	}
	return &FeeRate{
		FeeType:    domain.FeeType(row.FeeType),
		Percentage: pct,
		UpdatedAt:  row.UpdatedAt.Time,
	}, nil
}
