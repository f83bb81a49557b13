package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const transactionColumns = `id, reference, account_id, kind, status, requested_amount, fee_type, fee_amount,
       gross_amount, balance_after, currency_id, network_id, destination, note, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (Transaction, error) {
	var i Transaction
	err := row.Scan(
		&i.ID,
		&i.Reference,
		&i.AccountID,
		&i.Kind,
		&i.Status,
		&i.RequestedAmount,
		&i.FeeType,
		&i.FeeAmount,
		&i.GrossAmount,
		&i.BalanceAfter,
		&i.CurrencyID,
		&i.NetworkID,
		&i.Destination,
		&i.Note,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createTransaction = `-- name: CreateTransaction :one
INSERT INTO transactions (
    id, reference, account_id, kind, status, requested_amount, fee_type, fee_amount,
    gross_amount, balance_after, currency_id, network_id, destination, note, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
RETURNING ` + transactionColumns

type CreateTransactionParams struct {
	ID              pgtype.UUID
	Reference       string
	AccountID       pgtype.UUID
	Kind            string
	Status          string
	RequestedAmount int64
	FeeType         *string
	FeeAmount       int64
	GrossAmount     int64
	BalanceAfter    int64
	CurrencyID      *string
	NetworkID       *string
	Destination     *string
	Note            *string
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (Transaction, error) {
	row := q.db.QueryRow(ctx, createTransaction,
		arg.ID,
		arg.Reference,
		arg.AccountID,
		arg.Kind,
		arg.Status,
		arg.RequestedAmount,
		arg.FeeType,
		arg.FeeAmount,
		arg.GrossAmount,
		arg.BalanceAfter,
		arg.CurrencyID,
		arg.NetworkID,
		arg.Destination,
		arg.Note,
	)
	return scanTransaction(row)
}

const getTransaction = `-- name: GetTransaction :one
SELECT ` + transactionColumns + `
FROM transactions
WHERE id = $1
`

func (q *Queries) GetTransaction(ctx context.Context, id pgtype.UUID) (Transaction, error) {
	return scanTransaction(q.db.QueryRow(ctx, getTransaction, id))
}

const getTransactionForUpdate = `-- name: GetTransactionForUpdate :one
SELECT ` + transactionColumns + `
FROM transactions
WHERE id = $1
FOR UPDATE
`

func (q *Queries) GetTransactionForUpdate(ctx context.Context, id pgtype.UUID) (Transaction, error) {
	return scanTransaction(q.db.QueryRow(ctx, getTransactionForUpdate, id))
}

const getTransactionByReference = `-- name: GetTransactionByReference :one
SELECT ` + transactionColumns + `
FROM transactions
WHERE reference = $1
`

func (q *Queries) GetTransactionByReference(ctx context.Context, reference string) (Transaction, error) {
	return scanTransaction(q.db.QueryRow(ctx, getTransactionByReference, reference))
}

const updateTransactionStatus = `-- name: UpdateTransactionStatus :execrows
UPDATE transactions
SET status = $1, balance_after = $2, updated_at = NOW()
WHERE id = $3
`

type UpdateTransactionStatusParams struct {
	Status       string
	BalanceAfter int64
	ID           pgtype.UUID
}

func (q *Queries) UpdateTransactionStatus(ctx context.Context, arg UpdateTransactionStatusParams) (int64, error) {
	result, err := q.db.Exec(ctx, updateTransactionStatus, arg.Status, arg.BalanceAfter, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listTransactionsByAccount = `-- name: ListTransactionsByAccount :many
SELECT ` + transactionColumns + `
FROM transactions
WHERE account_id = $1
ORDER BY created_at DESC, id
LIMIT $2 OFFSET $3
`

type ListTransactionsByAccountParams struct {
	AccountID pgtype.UUID
	Limit     int32
	Offset    int32
}

func (q *Queries) ListTransactionsByAccount(ctx context.Context, arg ListTransactionsByAccountParams) ([]Transaction, error) {
	rows, err := q.db.Query(ctx, listTransactionsByAccount, arg.AccountID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		i, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
