package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/backoffice-ledger/internal/domain"
	"github.com/ayo6706/backoffice-ledger/internal/repository"
	"github.com/google/uuid"
)

// balanceEffect returns the amount credited to the account when a record of
// kind moves to next. Only deposit settlement and withdraw refund move money
// after creation.
func balanceEffect(kind domain.Kind, next domain.Status, row repository.Transaction) int64 {
	switch {
	case kind == domain.KindDeposit && next == domain.StatusCompleted:
		return row.GrossAmount
	case kind == domain.KindWithdraw && next == domain.StatusRefund:
		return row.RequestedAmount
	default:
		return 0
	}
}

// transitionTransactionState moves a locked transaction row to nextState,
// applying its balance effect and writing the audit row. The caller must hold
// the row lock and have already handled the same-status case.
func transitionTransactionState(ctx context.Context, qtx repository.Querier, audit *AuditService, row repository.Transaction, kind domain.Kind, current, nextState domain.Status, actorID *uuid.UUID, metadata []byte) (repository.Transaction, error) {
	if !domain.IsAllowed(kind, current, nextState) {
		return row, domain.NewTransitionError(kind, current, nextState)
	}

	transactionID := repository.FromPgUUID(row.ID)
	balanceAfter := row.BalanceAfter
	if credit := balanceEffect(kind, nextState, row); credit > 0 {
		account, err := qtx.GetAccountForUpdate(ctx, row.AccountID)
		if err != nil {
			return row, fmt.Errorf("lock account: %w", notFound(err, domain.ErrAccountNotFound))
		}
		credited, err := domain.NewMoneyFromCents(account.Balance).CheckedAdd(domain.NewMoneyFromCents(credit))
		if err != nil {
			return row, fmt.Errorf("credit account: %w", err)
		}
		balanceAfter = credited.Cents()

		rows, err := qtx.UpdateAccountBalance(ctx, repository.UpdateAccountBalanceParams{
			Balance: balanceAfter,
			ID:      row.AccountID,
		})
		if err != nil {
			return row, fmt.Errorf("credit account: %w", err)
		}
		if err := requireExactlyOne(rows, "credit account"); err != nil {
			return row, err
		}

		if _, err := qtx.CreateEntry(ctx, repository.CreateEntryParams{
			ID:            repository.ToPgUUID(uuid.New()),
			TransactionID: row.ID,
			AccountID:     row.AccountID,
			Amount:        credit,
			Direction:     domain.DirectionCredit,
			BalanceAfter:  balanceAfter,
		}); err != nil {
			return row, fmt.Errorf("create credit entry: %w", err)
		}
	}

	rows, err := qtx.UpdateTransactionStatus(ctx, repository.UpdateTransactionStatusParams{
		Status:       nextState.String(),
		BalanceAfter: balanceAfter,
		ID:           row.ID,
	})
	if err != nil {
		return row, fmt.Errorf("update transaction state: %w", err)
	}
	if err := requireExactlyOne(rows, "update transaction state"); err != nil {
		return row, err
	}

	if err := audit.Write(ctx, qtx, "transaction", transactionID, actorID, "status_changed", current.String(), nextState.String(), metadata); err != nil {
		return row, err
	}

	row.Status = nextState.String()
	row.BalanceAfter = balanceAfter
	return row, nil
}
