package repository

import (
	"context"
)

const getFeeRate = `-- name: GetFeeRate :one
SELECT fee_type, percentage::TEXT, updated_at
FROM fee_rates
WHERE fee_type = $1
`

func (q *Queries) GetFeeRate(ctx context.Context, feeType string) (FeeRate, error) {
	row := q.db.QueryRow(ctx, getFeeRate, feeType)
	var i FeeRate
	err := row.Scan(&i.FeeType, &i.Percentage, &i.UpdatedAt)
	return i, err
}

const upsertFeeRate = `-- name: UpsertFeeRate :one
INSERT INTO fee_rates (fee_type, percentage, updated_at)
VALUES ($1, $2::NUMERIC, NOW())
ON CONFLICT (fee_type) DO UPDATE
SET percentage = EXCLUDED.percentage, updated_at = NOW()
RETURNING fee_type, percentage::TEXT, updated_at
`

type UpsertFeeRateParams struct {
	FeeType    string
	Percentage string
}

func (q *Queries) UpsertFeeRate(ctx context.Context, arg UpsertFeeRateParams) (FeeRate, error) {
	row := q.db.QueryRow(ctx, upsertFeeRate, arg.FeeType, arg.Percentage)
	var i FeeRate
	err := row.Scan(&i.FeeType, &i.Percentage, &i.UpdatedAt)
	return i, err
}
