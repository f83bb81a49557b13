package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ayo6706/backoffice-ledger/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "deadline", err: fmt.Errorf("lock account: %w", context.DeadlineExceeded), want: domain.ErrStorageTimeout},
		{name: "statement timeout", err: &pgconn.PgError{Code: "57014"}, want: domain.ErrStorageTimeout},
		{name: "serialization failure", err: &pgconn.PgError{Code: "40001"}, want: domain.ErrStorageUnavailable},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: domain.ErrStorageUnavailable},
		{name: "admin shutdown", err: &pgconn.PgError{Code: "57P01"}, want: domain.ErrStorageUnavailable},
		{name: "connection failure", err: &pgconn.PgError{Code: "08006"}, want: domain.ErrStorageUnavailable},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.err)
			assert.ErrorIs(t, got, tc.want)
			assert.True(t, domain.IsRetryable(got))
		})
	}
}

func TestClassifyPassesThroughDomainErrors(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505"}
	cases := []error{
		nil,
		domain.ErrInsufficientBalance,
		fmt.Errorf("lock account: %w", pgx.ErrNoRows),
		unique,
		errors.New("boom"),
	}

	for _, err := range cases {
		got := classify(err)
		assert.Equal(t, err, got)
		assert.False(t, domain.IsRetryable(got))
	}
	assert.True(t, IsUniqueViolation(fmt.Errorf("create transaction: %w", unique)))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
}
