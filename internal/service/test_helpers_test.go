package service

import (
	"context"
	"testing"

	"github.com/ayo6706/backoffice-ledger/internal/domain"
	"github.com/ayo6706/backoffice-ledger/internal/repository"
	"github.com/ayo6706/backoffice-ledger/internal/testutil/memstore"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// newMemLedger wires a ledger over the in-memory store with a 5% withdraw fee
// and a 0% deposit fee.
func newMemLedger(t *testing.T) (*LedgerService, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	rates := NewFeeRateService(store, nil, 0)
	_, err := rates.Set(context.Background(), domain.FeeTypeWithdraw, decimal.RequireFromString("5"), nil)
	require.NoError(t, err)
	_, err = rates.Set(context.Background(), domain.FeeTypeDeposit, decimal.Zero, nil)
	require.NoError(t, err)
	return NewLedgerService(store, NewFeeCalculator(rates)), store
}

func seedAccount(t *testing.T, store QueryStore, balance string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := store.Queries().CreateAccount(context.Background(), repository.CreateAccountParams{
		ID:      repository.ToPgUUID(id),
		Balance: money(t, balance).Cents(),
		Status:  string(domain.AccountStatusActive),
	})
	require.NoError(t, err)
	return id
}

func balanceOf(t *testing.T, store QueryStore, id uuid.UUID) domain.Money {
	t.Helper()
	row, err := store.Queries().GetAccount(context.Background(), repository.ToPgUUID(id))
	require.NoError(t, err)
	return domain.NewMoneyFromCents(row.Balance)
}

func money(t *testing.T, s string) domain.Money {
	t.Helper()
	m, err := domain.ParseMoney(s)
	require.NoError(t, err)
	return m
}

func feeType(ft domain.FeeType) *domain.FeeType {
	return &ft
}

func withdrawReq(accountID uuid.UUID, amount domain.Money, reference string) CreateRequest {
	return CreateRequest{
		AccountID: accountID,
		Amount:    amount,
		FeeType:   feeType(domain.FeeTypeWithdraw),
		Reference: reference,
	}
}

func depositReq(accountID uuid.UUID, amount domain.Money, reference string) CreateRequest {
	return CreateRequest{
		AccountID: accountID,
		Amount:    amount,
		FeeType:   feeType(domain.FeeTypeDeposit),
		Reference: reference,
	}
}
