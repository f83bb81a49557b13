package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

// Querier is the ledger data contract. *Queries implements it over Postgres;
// tests may substitute an in-memory implementation.
type Querier interface {
	CreateAccount(ctx context.Context, arg CreateAccountParams) (Account, error)
	GetAccount(ctx context.Context, id pgtype.UUID) (Account, error)
	GetAccountForUpdate(ctx context.Context, id pgtype.UUID) (Account, error)
	UpdateAccountBalance(ctx context.Context, arg UpdateAccountBalanceParams) (int64, error)
	GetAccountImbalances(ctx context.Context) ([]GetAccountImbalancesRow, error)

	CreateTransaction(ctx context.Context, arg CreateTransactionParams) (Transaction, error)
	GetTransaction(ctx context.Context, id pgtype.UUID) (Transaction, error)
	GetTransactionForUpdate(ctx context.Context, id pgtype.UUID) (Transaction, error)
	GetTransactionByReference(ctx context.Context, reference string) (Transaction, error)
	UpdateTransactionStatus(ctx context.Context, arg UpdateTransactionStatusParams) (int64, error)
	ListTransactionsByAccount(ctx context.Context, arg ListTransactionsByAccountParams) ([]Transaction, error)

	CreateEntry(ctx context.Context, arg CreateEntryParams) (Entry, error)
	ListEntriesByAccount(ctx context.Context, arg ListEntriesByAccountParams) ([]Entry, error)

	GetFeeRate(ctx context.Context, feeType string) (FeeRate, error)
	UpsertFeeRate(ctx context.Context, arg UpsertFeeRateParams) (FeeRate, error)

	InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (int64, error)
}

var _ Querier = (*Queries)(nil)
