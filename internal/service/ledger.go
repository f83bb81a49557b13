package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/backoffice-ledger/internal/domain"
	"github.com/ayo6706/backoffice-ledger/internal/observability"
	"github.com/ayo6706/backoffice-ledger/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// LedgerService creates deposit and withdraw records and moves them through
// the status table, keeping account balances in step.
type LedgerService struct {
	store QueryStore
	fees  *FeeCalculator
	audit *AuditService
}

func NewLedgerService(store QueryStore, fees *FeeCalculator) *LedgerService {
	if fees == nil {
		fees = NewFeeCalculator(nil)
	}
	return &LedgerService{
		store: store,
		fees:  fees,
		audit: NewAuditService(),
	}
}

// CreateRequest holds the parameters shared by withdraw and deposit creation.
type CreateRequest struct {
	AccountID uuid.UUID
	Amount    domain.Money
	FeeType   *domain.FeeType
	Routing   domain.Routing
	Note      *string
	// Reference is the caller's idempotency key. It is unique across records.
	Reference string
	ActorID   *uuid.UUID
}

// CreateResult is returned by the create operations. Replayed is true when
// the reference had already been used by an identical request and the
// original record is returned untouched.
type CreateResult struct {
	Transaction *domain.Transaction
	Replayed    bool
}

// ChangeStatusRequest moves a record to Status. When Kind is set the record
// must be of that kind.
type ChangeStatusRequest struct {
	TransactionID uuid.UUID
	Status        domain.Status
	Kind          *domain.Kind
	ActorID       *uuid.UUID
	Note          string
}

// CreateWithdraw debits requested amount plus fee from the account and
// records a PENDING withdraw.
func (s *LedgerService) CreateWithdraw(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	res, err := s.create(ctx, domain.KindWithdraw, req)
	observability.IncrementLedgerOperation("create_withdraw", operationResult(res, err))
	return res, err
}

// CreateDeposit records a PENDING deposit. The balance is credited only when
// the deposit is settled.
func (s *LedgerService) CreateDeposit(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	res, err := s.create(ctx, domain.KindDeposit, req)
	observability.IncrementLedgerOperation("create_deposit", operationResult(res, err))
	return res, err
}

func (s *LedgerService) create(ctx context.Context, kind domain.Kind, req CreateRequest) (*CreateResult, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidAmount, req.Amount)
	}
	req.Reference = strings.TrimSpace(req.Reference)
	if req.Reference == "" {
		return nil, domain.ErrMissingReference
	}

	if res, err := s.replay(ctx, s.store.Queries(), kind, req); res != nil || err != nil {
		return res, err
	}

	quote, err := s.fees.Compute(ctx, req.Amount, req.FeeType)
	if err != nil {
		return nil, err
	}

	var created repository.Transaction
	err = s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		account, err := qtx.GetAccountForUpdate(ctx, repository.ToPgUUID(req.AccountID))
		if err != nil {
			return fmt.Errorf("lock account: %w", notFound(err, domain.ErrAccountNotFound))
		}

		balanceAfter := account.Balance
		if kind == domain.KindWithdraw {
			if account.Status != string(domain.AccountStatusActive) {
				return domain.ErrAccountInactive
			}
			if account.Balance < quote.Gross.Cents() {
				return fmt.Errorf("%w: balance %s, required %s", domain.ErrInsufficientBalance,
					domain.NewMoneyFromCents(account.Balance), quote.Gross)
			}
			balanceAfter = account.Balance - quote.Gross.Cents()

			rows, err := qtx.UpdateAccountBalance(ctx, repository.UpdateAccountBalanceParams{
				Balance: balanceAfter,
				ID:      account.ID,
			})
			if err != nil {
				return fmt.Errorf("debit account: %w", err)
			}
			if err := requireExactlyOne(rows, "debit account"); err != nil {
				return err
			}
		}

		var feeType *string
		if req.FeeType != nil {
			ft := string(*req.FeeType)
			feeType = &ft
		}
		created, err = qtx.CreateTransaction(ctx, repository.CreateTransactionParams{
			ID:              repository.ToPgUUID(uuid.New()),
			Reference:       req.Reference,
			AccountID:       account.ID,
			Kind:            kind.String(),
			Status:          domain.StatusPending.String(),
			RequestedAmount: req.Amount.Cents(),
			FeeType:         feeType,
			FeeAmount:       quote.Fee.Cents(),
			GrossAmount:     quote.Gross.Cents(),
			BalanceAfter:    balanceAfter,
			CurrencyID:      req.Routing.CurrencyID,
			NetworkID:       req.Routing.NetworkID,
			Destination:     req.Routing.Destination,
			Note:            req.Note,
		})
		if err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}

		if kind == domain.KindWithdraw {
			if _, err := qtx.CreateEntry(ctx, repository.CreateEntryParams{
				ID:            repository.ToPgUUID(uuid.New()),
				TransactionID: created.ID,
				AccountID:     account.ID,
				Amount:        quote.Gross.Cents(),
				Direction:     domain.DirectionDebit,
				BalanceAfter:  balanceAfter,
			}); err != nil {
				return fmt.Errorf("create debit entry: %w", err)
			}
		}

		metadata, err := json.Marshal(map[string]any{
			"reference":     req.Reference,
			"requested":     req.Amount,
			"fee":           quote.Fee,
			"gross":         quote.Gross,
			"fee_percent":   quote.Percentage.String(),
			"balance_after": domain.NewMoneyFromCents(balanceAfter),
		})
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		return s.audit.Write(ctx, qtx, "transaction", repository.FromPgUUID(created.ID), req.ActorID, "created", "", domain.StatusPending.String(), metadata)
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			// A concurrent request with the same reference committed first.
			if res, replayErr := s.replay(ctx, s.store.Queries(), kind, req); res != nil || replayErr != nil {
				return res, replayErr
			}
			return nil, fmt.Errorf("%w: %s", domain.ErrConflict, req.Reference)
		}
		return nil, err
	}

	tx, err := toDomainTransaction(created)
	if err != nil {
		return nil, err
	}
	zap.L().Info("transaction created",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("kind", kind.String()),
		zap.String("account_id", req.AccountID.String()),
		zap.Stringer("gross", quote.Gross),
	)
	return &CreateResult{Transaction: tx}, nil
}

// replay returns the stored record when reference was already used by the
// same request, ErrConflict when it was used by a different one, and
// (nil, nil) when the reference is unused.
func (s *LedgerService) replay(ctx context.Context, q repository.Querier, kind domain.Kind, req CreateRequest) (*CreateResult, error) {
	existing, err := q.GetTransactionByReference(ctx, req.Reference)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("check reference: %w", err)
	}
	if !sameRequest(existing, kind, req) {
		return nil, fmt.Errorf("%w: %s", domain.ErrConflict, req.Reference)
	}
	tx, err := toDomainTransaction(existing)
	if err != nil {
		return nil, err
	}
	return &CreateResult{Transaction: tx, Replayed: true}, nil
}

// sameRequest reports whether a stored record was created by a request with
// the same kind, account, amount, fee type and routing as req.
func sameRequest(existing repository.Transaction, kind domain.Kind, req CreateRequest) bool {
	var feeType *string
	if req.FeeType != nil {
		ft := string(*req.FeeType)
		feeType = &ft
	}
	return existing.Kind == kind.String() &&
		repository.FromPgUUID(existing.AccountID) == req.AccountID &&
		existing.RequestedAmount == req.Amount.Cents() &&
		equalOptional(existing.FeeType, feeType) &&
		equalOptional(existing.CurrencyID, req.Routing.CurrencyID) &&
		equalOptional(existing.NetworkID, req.Routing.NetworkID) &&
		equalOptional(existing.Destination, req.Routing.Destination)
}

func equalOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ChangeStatus moves a record to req.Status, applying the balance effect of
// the target status. Requesting the current status is a no-op.
func (s *LedgerService) ChangeStatus(ctx context.Context, req ChangeStatusRequest) (*domain.Transaction, error) {
	tx, err := s.changeStatus(ctx, req)
	observability.IncrementLedgerOperation("change_status", operationResult(nil, err))
	return tx, err
}

// SettleDeposit completes a deposit and credits its gross amount.
func (s *LedgerService) SettleDeposit(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (*domain.Transaction, error) {
	return s.ChangeStatus(ctx, kindGuarded(id, domain.KindDeposit, domain.StatusCompleted, actorID))
}

// RefundWithdraw refunds a withdraw and restores its requested amount.
// The fee is not returned.
func (s *LedgerService) RefundWithdraw(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (*domain.Transaction, error) {
	return s.ChangeStatus(ctx, kindGuarded(id, domain.KindWithdraw, domain.StatusRefund, actorID))
}

// RefundDeposit marks a deposit refunded. The balance is not touched.
func (s *LedgerService) RefundDeposit(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) (*domain.Transaction, error) {
	return s.ChangeStatus(ctx, kindGuarded(id, domain.KindDeposit, domain.StatusRefund, actorID))
}

func kindGuarded(id uuid.UUID, kind domain.Kind, status domain.Status, actorID *uuid.UUID) ChangeStatusRequest {
	return ChangeStatusRequest{TransactionID: id, Status: status, Kind: &kind, ActorID: actorID}
}

func (s *LedgerService) changeStatus(ctx context.Context, req ChangeStatusRequest) (*domain.Transaction, error) {
	if !req.Status.Valid() {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidStatus, req.Status)
	}

	var (
		result   repository.Transaction
		kind     domain.Kind
		previous domain.Status
		changed  bool
	)
	err := s.store.RunInTx(ctx, func(qtx repository.Querier) error {
		row, err := qtx.GetTransactionForUpdate(ctx, repository.ToPgUUID(req.TransactionID))
		if err != nil {
			return fmt.Errorf("lock transaction: %w", notFound(err, domain.ErrTransactionNotFound))
		}
		current, err := toDomainTransaction(row)
		if err != nil {
			return err
		}
		kind, previous = current.Kind, current.Status

		if req.Kind != nil && *req.Kind != kind {
			return fmt.Errorf("%w: transaction %s is a %s", domain.ErrKindMismatch, current.ID, kind)
		}
		if previous == req.Status {
			result = row
			return nil
		}

		metadata, err := json.Marshal(map[string]any{
			"note": req.Note,
		})
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		if _, err := transitionTransactionState(ctx, qtx, s.audit, row, kind, previous, req.Status, req.ActorID, metadata); err != nil {
			return err
		}

		result, err = qtx.GetTransaction(ctx, row.ID)
		if err != nil {
			return fmt.Errorf("reload transaction: %w", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		observability.IncrementTransition(kind.String(), previous.String(), req.Status.String())
		zap.L().Info("transaction status changed",
			zap.String("transaction_id", req.TransactionID.String()),
			zap.String("kind", kind.String()),
			zap.String("from", previous.String()),
			zap.String("to", req.Status.String()),
		)
	}
	return toDomainTransaction(result)
}

// GetTransaction returns a single record by id.
func (s *LedgerService) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	row, err := s.store.Queries().GetTransaction(ctx, repository.ToPgUUID(id))
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", notFound(err, domain.ErrTransactionNotFound))
	}
	return toDomainTransaction(row)
}

func operationResult(res *CreateResult, err error) string {
	switch {
	case err == nil && res != nil && res.Replayed:
		return "replay"
	case err == nil:
		return "ok"
	case domain.IsRetryable(err):
		return "retryable"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
