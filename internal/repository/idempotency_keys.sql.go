package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const idempotencyKeyColumns = `idempotency_key, account_id, request_hash, method, path, response_status, response_body,
       content_type, in_progress, created_at, updated_at`

func scanIdempotencyKey(row rowScanner) (IdempotencyKey, error) {
	var i IdempotencyKey
	err := row.Scan(
		&i.IdempotencyKey,
		&i.AccountID,
		&i.RequestHash,
		&i.Method,
		&i.Path,
		&i.ResponseStatus,
		&i.ResponseBody,
		&i.ContentType,
		&i.InProgress,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getIdempotencyKey = `-- name: GetIdempotencyKey :one
SELECT ` + idempotencyKeyColumns + `
FROM idempotency_keys
WHERE idempotency_key = $1
`

func (q *Queries) GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKey, error) {
	return scanIdempotencyKey(q.db.QueryRow(ctx, getIdempotencyKey, key))
}

const reserveIdempotencyKey = `-- name: ReserveIdempotencyKey :one
INSERT INTO idempotency_keys (idempotency_key, account_id, request_hash, method, path, in_progress, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, TRUE, NOW(), NOW())
ON CONFLICT (idempotency_key) DO NOTHING
RETURNING ` + idempotencyKeyColumns

type ReserveIdempotencyKeyParams struct {
	IdempotencyKey string
	AccountID      string
	RequestHash    string
	Method         string
	Path           string
}

func (q *Queries) ReserveIdempotencyKey(ctx context.Context, arg ReserveIdempotencyKeyParams) (IdempotencyKey, error) {
	return scanIdempotencyKey(q.db.QueryRow(ctx, reserveIdempotencyKey,
		arg.IdempotencyKey,
		arg.AccountID,
		arg.RequestHash,
		arg.Method,
		arg.Path,
	))
}

const finalizeIdempotencyKey = `-- name: FinalizeIdempotencyKey :one
UPDATE idempotency_keys
SET response_status = $1, response_body = $2, content_type = $3, in_progress = FALSE, updated_at = NOW()
WHERE idempotency_key = $4 AND account_id = $5 AND request_hash = $6 AND in_progress
RETURNING ` + idempotencyKeyColumns

type FinalizeIdempotencyKeyParams struct {
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	IdempotencyKey string
	AccountID      string
	RequestHash    string
}

func (q *Queries) FinalizeIdempotencyKey(ctx context.Context, arg FinalizeIdempotencyKeyParams) (IdempotencyKey, error) {
	return scanIdempotencyKey(q.db.QueryRow(ctx, finalizeIdempotencyKey,
		arg.ResponseStatus,
		arg.ResponseBody,
		arg.ContentType,
		arg.IdempotencyKey,
		arg.AccountID,
		arg.RequestHash,
	))
}

const releaseIdempotencyKey = `-- name: ReleaseIdempotencyKey :execrows
DELETE FROM idempotency_keys
WHERE idempotency_key = $1 AND account_id = $2 AND request_hash = $3 AND in_progress
`

type ReleaseIdempotencyKeyParams struct {
	IdempotencyKey string
	AccountID      string
	RequestHash    string
}

func (q *Queries) ReleaseIdempotencyKey(ctx context.Context, arg ReleaseIdempotencyKeyParams) (int64, error) {
	result, err := q.db.Exec(ctx, releaseIdempotencyKey, arg.IdempotencyKey, arg.AccountID, arg.RequestHash)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deleteExpiredIdempotencyKeys = `-- name: DeleteExpiredIdempotencyKeys :execrows
DELETE FROM idempotency_keys
WHERE NOT in_progress AND updated_at < $1
`

func (q *Queries) DeleteExpiredIdempotencyKeys(ctx context.Context, before pgtype.Timestamptz) (int64, error) {
	result, err := q.db.Exec(ctx, deleteExpiredIdempotencyKeys, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
