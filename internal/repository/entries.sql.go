package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const createEntry = `-- name: CreateEntry :one
INSERT INTO entries (id, transaction_id, account_id, amount, direction, balance_after, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
RETURNING id, transaction_id, account_id, amount, direction, balance_after, created_at
`

type CreateEntryParams struct {
	ID            pgtype.UUID
	TransactionID pgtype.UUID
	AccountID     pgtype.UUID
	Amount        int64
	Direction     string
	BalanceAfter  int64
}

func (q *Queries) CreateEntry(ctx context.Context, arg CreateEntryParams) (Entry, error) {
	row := q.db.QueryRow(ctx, createEntry,
		arg.ID,
		arg.TransactionID,
		arg.AccountID,
		arg.Amount,
		arg.Direction,
		arg.BalanceAfter,
	)
	var i Entry
	err := row.Scan(
		&i.ID,
		&i.TransactionID,
		&i.AccountID,
		&i.Amount,
		&i.Direction,
		&i.BalanceAfter,
		&i.CreatedAt,
	)
	return i, err
}

const listEntriesByAccount = `-- name: ListEntriesByAccount :many
SELECT id, transaction_id, account_id, amount, direction, balance_after, created_at
FROM entries
WHERE account_id = $1
ORDER BY created_at DESC, id
LIMIT $2 OFFSET $3
`

type ListEntriesByAccountParams struct {
	AccountID pgtype.UUID
	Limit     int32
	Offset    int32
}

func (q *Queries) ListEntriesByAccount(ctx context.Context, arg ListEntriesByAccountParams) ([]Entry, error) {
	rows, err := q.db.Query(ctx, listEntriesByAccount, arg.AccountID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Entry
	for rows.Next() {
		var i Entry
		if err := rows.Scan(
			&i.ID,
			&i.TransactionID,
			&i.AccountID,
			&i.Amount,
			&i.Direction,
			&i.BalanceAfter,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
