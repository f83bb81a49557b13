package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountInactive     = errors.New("account is not active")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be greater than zero")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrKindMismatch        = errors.New("transaction kind mismatch")
	ErrMissingReference    = errors.New("reference is required")
	ErrConflict            = errors.New("reference already used by a different request")
	ErrInvalidStatus       = errors.New("unknown transaction status")
	ErrInvalidKind         = errors.New("unknown transaction kind")
	ErrInvalidFeeType      = errors.New("unknown fee type")

	// Retryable: the unit of work was rolled back and nothing was applied.
	ErrStorageTimeout     = errors.New("storage timeout")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// TransitionError reports a rejected status change together with the
// statuses that would have been accepted from the current one.
type TransitionError struct {
	Kind    Kind
	From    Status
	To      Status
	Allowed StatusSet
}

func NewTransitionError(kind Kind, from, to Status) *TransitionError {
	return &TransitionError{Kind: kind, From: from, To: to, Allowed: AllowedNext(kind, from)}
}

func (e *TransitionError) Error() string {
	allowed := "none"
	if names := e.Allowed.Strings(); len(names) > 0 {
		allowed = strings.Join(names, ", ")
	}
	return fmt.Sprintf("cannot move %s transaction from %s to %s (allowed: %s)", e.Kind, e.From, e.To, allowed)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// IsRetryable reports whether err is a storage failure that is safe to retry
// with the same reference.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageTimeout) || errors.Is(err, ErrStorageUnavailable)
}
