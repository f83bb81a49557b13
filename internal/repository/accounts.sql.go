package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const createAccount = `-- name: CreateAccount :one
INSERT INTO accounts (id, balance, opening_balance, status, created_at, updated_at)
VALUES ($1, $2, $2, $3, NOW(), NOW())
RETURNING id, balance, opening_balance, status, created_at, updated_at
`

type CreateAccountParams struct {
	ID      pgtype.UUID
	Balance int64
	Status  string
}

func (q *Queries) CreateAccount(ctx context.Context, arg CreateAccountParams) (Account, error) {
	row := q.db.QueryRow(ctx, createAccount, arg.ID, arg.Balance, arg.Status)
	var i Account
	err := row.Scan(
		&i.ID,
		&i.Balance,
		&i.OpeningBalance,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getAccount = `-- name: GetAccount :one
SELECT id, balance, opening_balance, status, created_at, updated_at
FROM accounts
WHERE id = $1
`

func (q *Queries) GetAccount(ctx context.Context, id pgtype.UUID) (Account, error) {
	row := q.db.QueryRow(ctx, getAccount, id)
	var i Account
	err := row.Scan(
		&i.ID,
		&i.Balance,
		&i.OpeningBalance,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getAccountForUpdate = `-- name: GetAccountForUpdate :one
SELECT id, balance, opening_balance, status, created_at, updated_at
FROM accounts
WHERE id = $1
FOR UPDATE
`

func (q *Queries) GetAccountForUpdate(ctx context.Context, id pgtype.UUID) (Account, error) {
	row := q.db.QueryRow(ctx, getAccountForUpdate, id)
	var i Account
	err := row.Scan(
		&i.ID,
		&i.Balance,
		&i.OpeningBalance,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const updateAccountBalance = `-- name: UpdateAccountBalance :execrows
UPDATE accounts
SET balance = $1, updated_at = NOW()
WHERE id = $2
`

type UpdateAccountBalanceParams struct {
	Balance int64
	ID      pgtype.UUID
}

func (q *Queries) UpdateAccountBalance(ctx context.Context, arg UpdateAccountBalanceParams) (int64, error) {
	result, err := q.db.Exec(ctx, updateAccountBalance, arg.Balance, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const getAccountImbalances = `-- name: GetAccountImbalances :many
SELECT a.id,
       a.balance,
       (a.opening_balance + COALESCE(SUM(CASE WHEN e.direction = 'credit' THEN e.amount ELSE -e.amount END), 0))::BIGINT AS expected_balance
FROM accounts a
LEFT JOIN entries e ON e.account_id = a.id
GROUP BY a.id, a.balance, a.opening_balance
HAVING a.balance <> a.opening_balance + COALESCE(SUM(CASE WHEN e.direction = 'credit' THEN e.amount ELSE -e.amount END), 0)
`

type GetAccountImbalancesRow struct {
	ID              pgtype.UUID
	Balance         int64
	ExpectedBalance int64
}

func (q *Queries) GetAccountImbalances(ctx context.Context) ([]GetAccountImbalancesRow, error) {
	rows, err := q.db.Query(ctx, getAccountImbalances)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GetAccountImbalancesRow
	for rows.Next() {
		var i GetAccountImbalancesRow
		if err := rows.Scan(&i.ID, &i.Balance, &i.ExpectedBalance); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
