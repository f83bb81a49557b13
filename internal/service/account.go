package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/backoffice-ledger/internal/domain"
	"github.com/ayo6706/backoffice-ledger/internal/repository"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type AccountService struct {
	store QueryStore
	audit *AuditService
}

func NewAccountService(store QueryStore) *AccountService {
	return &AccountService{
		store: store,
		audit: NewAuditService(),
	}
}

func (s *AccountService) GetBalance(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	row, err := s.store.Queries().GetAccount(ctx, repository.ToPgUUID(accountID))
	if err != nil {
		return nil, fmt.Errorf("get account: %w", notFound(err, domain.ErrAccountNotFound))
	}
	return toDomainAccount(row), nil
}

// Statement is one page of an account's balance movements, newest first.
type Statement struct {
	Account  *domain.Account `json:"account"`
	Entries  []domain.Entry  `json:"entries"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

func (s *AccountService) GetStatement(ctx context.Context, accountID uuid.UUID, page, pageSize int) (*Statement, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	offset := (page - 1) * pageSize

	account, err := s.GetBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.Queries().ListEntriesByAccount(ctx, repository.ListEntriesByAccountParams{
		AccountID: repository.ToPgUUID(accountID),
		Limit:     int32(pageSize),
		Offset:    int32(offset),
	})
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	entries := make([]domain.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, toDomainEntry(row))
	}
	return &Statement{Account: account, Entries: entries, Page: page, PageSize: pageSize}, nil
}

// ListTransactions returns one page of the account's records, newest first.
func (s *AccountService) ListTransactions(ctx context.Context, accountID uuid.UUID, page, pageSize int) ([]*domain.Transaction, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}
	rows, err := s.store.Queries().ListTransactionsByAccount(ctx, repository.ListTransactionsByAccountParams{
		AccountID: repository.ToPgUUID(accountID),
		Limit:     int32(pageSize),
		Offset:    int32((page - 1) * pageSize),
	})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	out := make([]*domain.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := toDomainTransaction(row)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

// CreateAccount provisions an account with an opening balance.
func (s *AccountService) CreateAccount(ctx context.Context, openingBalance domain.Money, status domain.AccountStatus, actorID *uuid.UUID) (*domain.Account, error) {
	if openingBalance.IsNegative() {
		return nil, fmt.Errorf("%w: opening balance %s", domain.ErrInvalidAmount, openingBalance)
	}
	if status == "" {
		status = domain.AccountStatusActive
	}
	if status != domain.AccountStatusActive && status != domain.AccountStatusInactive {
		return nil, fmt.Errorf("invalid account status %q", status)
	}

	var created repository.Account
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		var err error
		created, err = qtx.CreateAccount(ctx, repository.CreateAccountParams{
			ID:      repository.ToPgUUID(uuid.New()),
			Balance: openingBalance.Cents(),
			Status:  string(status),
		})
		if err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		return s.audit.Write(ctx, qtx, "account", repository.FromPgUUID(created.ID), actorID, "created", "", string(status), nil)
	})
	if err != nil {
		return nil, err
	}
	return toDomainAccount(created), nil
}
