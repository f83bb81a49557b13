package service

import (
	"context"
	"fmt"

	"github.com/ayo6706/backoffice-ledger/internal/domain"
	"github.com/ayo6706/backoffice-ledger/internal/observability"
	"github.com/ayo6706/backoffice-ledger/internal/repository"
	"go.uber.org/zap"
)

// Imbalance describes an account whose stored balance disagrees with its entries.
type Imbalance struct {
	AccountID string       `json:"account_id"`
	Balance   domain.Money `json:"balance"`
	Expected  domain.Money `json:"expected"`
}

// ReconciliationService verifies ledger integrity invariants.
type ReconciliationService struct {
	store QueryStore
}

// NewReconciliationService creates a reconciliation service.
func NewReconciliationService(store QueryStore) *ReconciliationService {
	return &ReconciliationService{store: store}
}

// Run checks that every account balance equals its opening balance plus
// credits minus debits, and reports the accounts that do not.
func (s *ReconciliationService) Run(ctx context.Context) ([]Imbalance, error) {
	rows, err := s.store.Queries().GetAccountImbalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("run account imbalance query: %w", err)
	}

	if len(rows) == 0 {
		zap.L().Info("Ledger Balanced")
		return nil, nil
	}

	out := make([]Imbalance, 0, len(rows))
	for _, row := range rows {
		accountID := repository.FromPgUUID(row.ID).String()
		observability.IncrementLedgerImbalance(accountID)
		zap.L().Error("CRITICAL: ledger imbalance detected",
			zap.String("account_id", accountID),
			zap.Int64("balance", row.Balance),
			zap.Int64("expected_balance", row.ExpectedBalance),
		)
		out = append(out, Imbalance{
			AccountID: accountID,
			Balance:   domain.NewMoneyFromCents(row.Balance),
			Expected:  domain.NewMoneyFromCents(row.ExpectedBalance),
		})
	}
	return out, nil
}
