package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind is the direction of a transaction record.
type Kind uint8

const (
	KindDeposit Kind = iota
	KindWithdraw

	kindCount
)

var kindNames = [kindCount]string{
	KindDeposit:  "DEPOSIT",
	KindWithdraw: "WITHDRAW",
}

// Kinds returns every defined kind.
func Kinds() []Kind {
	return []Kind{KindDeposit, KindWithdraw}
}

func (k Kind) Valid() bool { return k < kindCount }

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// ParseKind maps the stored/wire name to a Kind.
func ParseKind(s string) (Kind, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKind, uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Status is the lifecycle state of a transaction record.
type Status uint8

const (
	StatusPending Status = iota
	StatusInReview
	StatusCompleted
	StatusFailed
	StatusRefund

	statusCount
)

var statusNames = [statusCount]string{
	StatusPending:   "PENDING",
	StatusInReview:  "IN_REVIEW",
	StatusCompleted: "COMPLETED",
	StatusFailed:    "FAILED",
	StatusRefund:    "REFUND",
}

// Statuses returns every defined status in declaration order.
func Statuses() []Status {
	return []Status{StatusPending, StatusInReview, StatusCompleted, StatusFailed, StatusRefund}
}

func (s Status) Valid() bool { return s < statusCount }

func (s Status) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
	return statusNames[s]
}

// ParseStatus maps the stored/wire name to a Status.
func ParseStatus(s string) (Status, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for st, n := range statusNames {
		if n == name {
			return Status(st), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidStatus, uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// FeeType keys the fee-rate catalog.
type FeeType string

const (
	FeeTypeDeposit  FeeType = "DEPOSIT"
	FeeTypeWithdraw FeeType = "WITHDRAW"
)

func ParseFeeType(s string) (FeeType, error) {
	switch ft := FeeType(strings.ToUpper(strings.TrimSpace(s))); ft {
	case FeeTypeDeposit, FeeTypeWithdraw:
		return ft, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFeeType, s)
	}
}

// AccountStatus gates withdrawals. It is maintained by account provisioning.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive"
)

type Account struct {
	ID             uuid.UUID     `json:"id"`
	Balance        Money         `json:"balance"`
	OpeningBalance Money         `json:"opening_balance"`
	Status         AccountStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (a Account) Active() bool {
	return a.Status == AccountStatusActive
}

// Routing carries the opaque currency/network references a record may point at.
type Routing struct {
	CurrencyID  *string `json:"currency_id,omitempty"`
	NetworkID   *string `json:"network_id,omitempty"`
	Destination *string `json:"destination,omitempty"`
}

// Transaction is a single deposit or withdraw record. Records are never deleted.
type Transaction struct {
	ID              uuid.UUID `json:"id"`
	Reference       string    `json:"reference"`
	AccountID       uuid.UUID `json:"account_id"`
	Kind            Kind      `json:"kind"`
	Status          Status    `json:"status"`
	RequestedAmount Money     `json:"requested_amount"`
	FeeType         *FeeType  `json:"fee_type"`
	FeeAmount       Money     `json:"fee_amount"`
	GrossAmount     Money     `json:"gross_amount"`
	BalanceAfter    Money     `json:"balance_after"`
	Routing
	Note      *string   `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Direction of a balance movement.
const (
	DirectionDebit  = "debit"
	DirectionCredit = "credit"
)

// Entry is one balance movement caused by a transaction.
type Entry struct {
	ID            uuid.UUID `json:"id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	AccountID     uuid.UUID `json:"account_id"`
	Amount        Money     `json:"amount"`
	Direction     string    `json:"direction"`
	BalanceAfter  Money     `json:"balance_after"`
	CreatedAt     time.Time `json:"created_at"`
}
