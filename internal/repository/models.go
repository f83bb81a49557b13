package repository

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type Account struct {
	ID             pgtype.UUID
	Balance        int64
	OpeningBalance int64
	Status         string
	CreatedAt      pgtype.Timestamptz
	UpdatedAt      pgtype.Timestamptz
}

type Transaction struct {
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
	CreatedAt       pgtype.Timestamptz
	UpdatedAt       pgtype.Timestamptz
}

type Entry struct {
	ID            pgtype.UUID
	TransactionID pgtype.UUID
	AccountID     pgtype.UUID
	Amount        int64
	Direction     string
	BalanceAfter  int64
	CreatedAt     pgtype.Timestamptz
}

type FeeRate struct {
	FeeType    string
	Percentage string
	UpdatedAt  pgtype.Timestamptz
}

type IdempotencyKey struct {
	IdempotencyKey string
	AccountID      string
	RequestHash    string
	Method         string
	Path           string
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	InProgress     bool
	CreatedAt      pgtype.Timestamptz
	UpdatedAt      pgtype.Timestamptz
}
