package service

import (
	"errors"
	"fmt"

	"github.com/ayo6706/backoffice-ledger/internal/domain"
	"github.com/ayo6706/backoffice-ledger/internal/repository"
	"github.com/jackc/pgx/v5"
)

func requireExactlyOne(rows int64, operation string) error {
	if rows != 1 {
		return fmt.Errorf("%s affected %d rows", operation, rows)
	}
	return nil
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return err
}

func toDomainAccount(row repository.Account) *domain.Account {
	return &domain.Account{
		ID:             repository.FromPgUUID(row.ID),
		Balance:        domain.NewMoneyFromCents(row.Balance),
		OpeningBalance: domain.NewMoneyFromCents(row.OpeningBalance),
		Status:         domain.AccountStatus(row.Status),
		CreatedAt:      row.CreatedAt.Time,
		UpdatedAt:      row.UpdatedAt.Time,
	}
}

func toDomainTransaction(row repository.Transaction) (*domain.Transaction, error) {
	kind, err := domain.ParseKind(row.Kind)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", repository.FromPgUUID(row.ID), err)
	}
	status, err := domain.ParseStatus(row.Status)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", repository.FromPgUUID(row.ID), err)
	}
	var feeType *domain.FeeType
	if row.FeeType != nil {
		ft := domain.FeeType(*row.FeeType)
		feeType = &ft
	}
	return &domain.Transaction{
		ID:              repository.FromPgUUID(row.ID),
		Reference:       row.Reference,
		AccountID:       repository.FromPgUUID(row.AccountID),
		Kind:            kind,
		Status:          status,
		RequestedAmount: domain.NewMoneyFromCents(row.RequestedAmount),
		FeeType:         feeType,
		FeeAmount:       domain.NewMoneyFromCents(row.FeeAmount),
		GrossAmount:     domain.NewMoneyFromCents(row.GrossAmount),
		BalanceAfter:    domain.NewMoneyFromCents(row.BalanceAfter),
		Routing: domain.Routing{
			CurrencyID:  row.CurrencyID,
			NetworkID:   row.NetworkID,
			Destination: row.Destination,
		},
		Note:      row.Note,
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
	}, nil
}

func toDomainEntry(row repository.Entry) domain.Entry {
	return domain.Entry{
		ID:            repository.FromPgUUID(row.ID),
		TransactionID: repository.FromPgUUID(row.TransactionID),
		AccountID:     repository.FromPgUUID(row.AccountID),
		Amount:        domain.NewMoneyFromCents(row.Amount),
		Direction:     row.Direction,
		BalanceAfter:  domain.NewMoneyFromCents(row.BalanceAfter),
		CreatedAt:     row.CreatedAt.Time,
	}
}
