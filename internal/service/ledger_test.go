package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/ayo6706/backoffice-ledger/internal/domain"
	"github.com/ayo6706/backoffice-ledger/internal/repository"
	"github.com/ayo6706/backoffice-ledger/internal/testutil/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestCreateWithdraw_DebitsGross(t *testing.T) {
	ledger, store := newMemLedger(t)
	ctx := context.Background()
	accountID := seedAccount(t, store, "100.00")

	res, err := ledger.CreateWithdraw(ctx, withdrawReq(accountID, money(t, "40.00"), "wd-1"))
	require.NoError(t, err)
	require.False(t, res.Replayed)

	tx := res.Transaction
	assert.Equal(t, domain.KindWithdraw, tx.Kind)
	assert.Equal(t, domain.StatusPending, tx.Status)
	assert.Equal(t, "40.00", tx.RequestedAmount.String())
	assert.Equal(t, "2.00", tx.FeeAmount.String())
	assert.Equal(t, "42.00", tx.GrossAmount.String())
	assert.Equal(t, "58.00", tx.BalanceAfter.String())
	assert.Equal(t, "58.00", balanceOf(t, store, accountID).String())

	entries := store.Entries(repository.ToPgUUID(accountID))
	require.Len(t, entries, 1)
	assert.Equal(t, domain.DirectionDebit, entries[0].Direction)
	assert.Equal(t, int64(4200), entries[0].Amount)
	assert.Equal(t, int64(5800), entries[0].BalanceAfter)

	audit := store.AuditLog()
	require.NotEmpty(t, audit)
	last := audit[len(audit)-1]
	assert.Equal(t, "transaction", last.EntityType)
	assert.Equal(t, "created", last.Action)
	require.NotNil(t, last.NextState)
	assert.Equal(t, "PENDING", *last.NextState)
}

func TestCreateWithdraw_InsufficientBalance(t *testing.T) {
	ledger, store := newMemLedger(t)
	ctx := context.Background()
	accountID := seedAccount(t, store, "100.00")

	_, err := ledger.CreateWithdraw(ctx, withdrawReq(accountID, money(t, "40.00"), "wd-1"))
	require.NoError(t, err)

	// 60.00 + 3.00 fee exceeds the remaining 58.00.
	_, err = ledger.CreateWithdraw(ctx, withdrawReq(accountID, money(t, "60.00"), "wd-2"))
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Equal(t, "58.00", balanceOf(t, store, accountID).String())
	assert.Len(t, store.Transactions(), 1)
}

func TestCreateWithdraw_ExactBalanceAllowed(t *testing.T) {
	ledger, store := newMemLedger(t)
	accountID := seedAccount(t, store, "42.00")

	res, err := ledger.CreateWithdraw(context.Background(), withdrawReq(accountID, money(t, "40.00"), "wd-exact"))
	require.NoError(t, err)
	assert.Equal(t, "0.00", res.Transaction.BalanceAfter.String())
	assert.Equal(t, "0.00", balanceOf(t, store, accountID).String())
}

func TestCreateWithdraw_Validation(t *testing.T) {
	ledger, store := newMemLedger(t)
	ctx := context.Background()
	accountID := seedAccount(t, store, "100.00")

	_, err := ledger.CreateWithdraw(ctx, withdrawReq(accountID, 0, "wd-zero"))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = ledger.CreateWithdraw(ctx, withdrawReq(accountID, money(t, "-1.00"), "wd-neg"))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = ledger.CreateWithdraw(ctx, withdrawReq(accountID, money(t, "1.00"), "  "))
	require.ErrorIs(t, err, domain.ErrMissingReference)

	_, err = ledger.CreateWithdraw(ctx, withdrawReq(uuid.New(), money(t, "1.00"), "wd-ghost"))
	require.ErrorIs(t, err, domain.ErrAccountNotFound)

	assert.Equal(t, "100.00", balanceOf(t, store, accountID).String())
	assert.Empty(t, store.Transactions())
}

func TestCreateWithdraw_InactiveAccount(t *testing.T) {
	ledger, store := newMemLedger(t)
	id := uuid.New()
	_, err := store.Queries().CreateAccount(context.Background(), repository.CreateAccountParams{
		ID:      repository.ToPgUUID(id),
		Balance: 10_000,
		Status:  string(domain.AccountStatusInactive),
	})
	require.NoError(t, err)

	_, err = ledger.CreateWithdraw(context.Background(), withdrawReq(id, money(t, "1.00"), "wd-inactive"))
	require.ErrorIs(t, err, domain.ErrAccountInactive)
	assert.Equal(t, "100.00", balanceOf(t, store, id).String())
}

func TestCreateWithdraw_IdempotentReference(t *testing.T) {
	ledger, store := newMemLedger(t)
	ctx := context.Background()
	accountID := seedAccount(t, store, "100.00")

	first, err := ledger.CreateWithdraw(ctx, withdrawReq(accountID, money(t, "40.00"), "wd-same"))
	require.NoError(t, err)

	second, err := ledger.CreateWithdraw(ctx, withdrawReq(accountID, money(t, "40.00"), "wd-same"))
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
	assert.Equal(t, "58.00", balanceOf(t, store, accountID).String())
	assert.Len(t, store.Entries(repository.ToPgUUID(accountID)), 1)

	_, err = ledger.CreateWithdraw(ctx, withdrawReq(accountID, money(t, "41.00"), "wd-same"))
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = ledger.CreateDeposit(ctx, depositReq(accountID, money(t, "40.00"), "wd-same"))
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, "58.00", balanceOf(t, store, accountID).String())
}

func TestCreateWithdraw_ReferenceReusedWithDifferentDetails(t *testing.T) {
	ledger, store := newMemLedger(t)
	ctx := context.Background()
	accountID := seedAccount(t, store, "100.00")
	otherID := seedAccount(t, store, "100.00")

	dest := "wallet-1"
	req := withdrawReq(accountID, money(t, "10.00"), "wd-details")
	req.Routing = domain.Routing{Destination: &dest}
	_, err := ledger.CreateWithdraw(ctx, req)
	require.NoError(t, err)

	otherDest := "wallet-2"
	cases := map[string]func(r *CreateRequest){
		"other account":     func(r *CreateRequest) { r.AccountID = otherID },
		"other destination": func(r *CreateRequest) { r.Routing.Destination = &otherDest },
		"no destination":    func(r *CreateRequest) { r.Routing.Destination = nil },
		"no fee type":       func(r *CreateRequest) { r.FeeType = nil },
		"other fee type":    func(r *CreateRequest) { r.FeeType = feeType(domain.FeeTypeDeposit) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			retry := req
			mutate(&retry)
			_, err := ledger.CreateWithdraw(ctx, retry)
			require.ErrorIs(t, err, domain.ErrConflict)
		})
	}

	replayed, err := ledger.CreateWithdraw(ctx, req)
	require.NoError(t, err)
	assert.True(t, replayed.Replayed)
	assert.Equal(t, "89.50", balanceOf(t, store, accountID).String())
	assert.Equal(t, "100.00", balanceOf(t, store, otherID).String())
	assert.Len(t, store.Transactions(), 1)
}

func TestCreate_RejectsAmountsThatOverflow(t *testing.T) {
	ledger, store := newMemLedger(t)
	ctx := context.Background()
	accountID := seedAccount(t, store, "100.00")

	// 5% fee on the largest representable amount pushes gross past int64.
	_, err := ledger.CreateWithdraw(ctx, withdrawReq(accountID, domain.MaxMoney, "wd-huge"))
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Equal(t, "100.00", balanceOf(t, store, accountID).String())
	assert.Empty(t, store.Transactions())
}

func TestDeposit_SettleRejectsBalanceOverflow(t *testing.T) {
	ledger, store := newMemLedger(t)
	ctx := context.Background()
	accountID := seedAccount(t, store, "0.00")

	first, err := ledger.CreateDeposit(ctx, depositReq(accountID, domain.MaxMoney, "dep-max"))
	require.NoError(t, err)
	_, err = ledger.SettleDeposit(ctx, first.Transaction.ID, nil)
	require.NoError(t, err)

	second, err := ledger.CreateDeposit(ctx, depositReq(accountID, money(t, "0.01"), "dep-over"))
	require.NoError(t, err)
	_, err = ledger.SettleDeposit(ctx, second.Transaction.ID, nil)
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	assert.Equal(t, domain.MaxMoney, balanceOf(t, store, accountID))
	tx, err := ledger.GetTransaction(ctx, second.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, tx.Status)
}

func TestCreateWithdraw_ConcurrentSameReference(t *testing.T) {
	ledger, store := newMemLedger(t)
	ctx := context.Background()
	accountID := seedAccount(t, store, "100.00")

	const workers = 8
	ids := make([]uuid.UUID, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			res, err := ledger.CreateWithdraw(ctx, withdrawReq(accountID, money(t, "10.00"), "wd-race"))
			if err != nil {
				return err
			}
			ids[i] = res.Transaction.ID
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, "89.50", balanceOf(t, store, accountID).String())
	assert.Len(t, store.Transactions(), 1)
}

func TestWithdraw_CompleteThenRefundRestoresPrincipal(t *testing.T) {
	ledger, store := newMemLedger(t)
	ctx := context.Background()
	accountID := seedAccount(t, store, "100.00")

	res, err := ledger.CreateWithdraw(ctx, withdrawReq(accountID, money(t, "40.00"), "wd-1"))
	require.NoError(t, err)
	id := res.Transaction.ID

	completed, err := ledger.ChangeStatus(ctx, ChangeStatusRequest{TransactionID: id, Status: domain.StatusCompleted})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)
	assert.Equal(t, "58.00", balanceOf(t, store, accountID).String())

	refunded, err := ledger.RefundWithdraw(ctx, id, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefund, refunded.Status)
	assert.Equal(t, "98.00", refunded.BalanceAfter.String())
	assert.Equal(t, "98.00", balanceOf(t, store, accountID).String())

	entries := store.Entries(repository.ToPgUUID(accountID))
	require.Len(t, entries, 2)
	assert.Equal(t, domain.DirectionCredit, entries[1].Direction)
	assert.Equal(t, int64(4000), entries[1].Amount)
}

func TestWithdraw_RefundFromEveryRefundableStatus(t *testing.T) {
	paths := map[string][]domain.Status{
		"pending":   nil,
		"in_review": {domain.StatusInReview},
		"failed":    {domain.StatusFailed},
		"completed": {domain.StatusCompleted},
	}
	for name, path := range paths {
		t.Run(name, func(t *testing.T) {
			ledger, store := newMemLedger(t)
			ctx := context.Background()
			accountID := seedAccount(t, store, "100.00")

			res, err := ledger.CreateWithdraw(ctx, withdrawReq(accountID, money(t, "40.00"), "wd-"+name))
			require.NoError(t, err)
			for _, st := range path {
				_, err := ledger.ChangeStatus(ctx, ChangeStatusRequest{TransactionID: res.Transaction.ID, Status: st})
				require.NoError(t, err)
				assert.Equal(t, "58.00", balanceOf(t, store, accountID).String())
			}

			_, err = ledger.ChangeStatus(ctx, ChangeStatusRequest{TransactionID: res.Transaction.ID, Status: domain.StatusRefund})
			require.NoError(t, err)
			assert.Equal(t, "98.00", balanceOf(t, store, accountID).String())
		})
	}
}

func TestDeposit_SettleCreditsGross(t *testing.T) {
	ledger, store := newMemLedger(t)
	ctx := context.Background()
	accountID := seedAccount(t, store, "10.00")

	res, err := ledger.CreateDeposit(ctx, depositReq(accountID, money(t, "100.00"), "dep-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.KindDeposit, res.Transaction.Kind)
	assert.Equal(t, domain.StatusPending, res.Transaction.Status)
	assert.Equal(t, "10.00", res.Transaction.BalanceAfter.String())
	assert.Equal(t, "10.00", balanceOf(t, store, accountID).String())

	settled, err := ledger.SettleDeposit(ctx, res.Transaction.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, settled.Status)
	assert.Equal(t, "110.00", settled.BalanceAfter.String())
	assert.Equal(t, "110.00", balanceOf(t, store, accountID).String())

	// Deposit refund only changes status.
	refunded, err := ledger.RefundDeposit(ctx, res.Transaction.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRefund, refunded.Status)
	assert.Equal(t, "110.00", balanceOf(t, store, accountID).String())
}

func TestDeposit_CannotRefundFromPending(t *testing.T) {
	ledger, store := newMemLedger(t)
	ctx := context.Background()
	accountID := seedAccount(t, store, "0.00")

	res, err := ledger.CreateDeposit(ctx, depositReq(accountID, money(t, "5.00"), "dep-1"))
	require.NoError(t, err)

	_, err = ledger.RefundDeposit(ctx, res.Transaction.ID, nil)
	var terr *domain.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, domain.StatusPending, terr.From)
	assert.Equal(t, []string{"IN_REVIEW", "COMPLETED", "FAILED"}, terr.Allowed.Strings())
}

func TestChangeStatus_RefundIsTerminal(t *testing.T) {
	ledger, store := newMemLedger(t)
	ctx := context.Background()
	accountID := seedAccount(t, store, "100.00")

	res, err := ledger.CreateWithdraw(ctx, withdrawReq(accountID, money(t, "40.00"), "wd-1"))
	require.NoError(t, err)
	_, err = ledger.RefundWithdraw(ctx, res.Transaction.ID, nil)
	require.NoError(t, err)

	for _, to := range []domain.Status{domain.StatusPending, domain.StatusInReview, domain.StatusCompleted, domain.StatusFailed} {
		_, err := ledger.ChangeStatus(ctx, ChangeStatusRequest{TransactionID: res.Transaction.ID, Status: to})
		require.ErrorIs(t, err, domain.ErrInvalidTransition)
		var terr *domain.TransitionError
		require.ErrorAs(t, err, &terr)
		assert.True(t, terr.Allowed.Empty())
	}
	assert.Equal(t, "98.00", balanceOf(t, store, accountID).String())
}

func TestChangeStatus_SameStatusIsNoop(t *testing.T) {
	ledger, store := newMemLedger(t)
	ctx := context.Background()
	accountID := seedAccount(t, store, "100.00")

	res, err := ledger.CreateWithdraw(ctx, withdrawReq(accountID, money(t, "40.00"), "wd-1"))
	require.NoError(t, err)
	auditBefore := len(store.AuditLog())

	tx, err := ledger.ChangeStatus(ctx, ChangeStatusRequest{TransactionID: res.Transaction.ID, Status: domain.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, tx.Status)
	assert.Len(t, store.AuditLog(), auditBefore)
	assert.Equal(t, "58.00", balanceOf(t, store, accountID).String())
}

func TestChangeStatus_Errors(t *testing.T) {
	ledger, store := newMemLedger(t)
	ctx := context.Background()
	accountID := seedAccount(t, store, "100.00")

	_, err := ledger.ChangeStatus(ctx, ChangeStatusRequest{TransactionID: uuid.New(), Status: domain.StatusCompleted})
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)

	res, err := ledger.CreateWithdraw(ctx, withdrawReq(accountID, money(t, "1.00"), "wd-1"))
	require.NoError(t, err)

	_, err = ledger.SettleDeposit(ctx, res.Transaction.ID, nil)
	require.ErrorIs(t, err, domain.ErrKindMismatch)

	_, err = ledger.ChangeStatus(ctx, ChangeStatusRequest{TransactionID: res.Transaction.ID, Status: domain.Status(42)})
	require.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = ledger.GetTransaction(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestChangeStatus_WritesAuditRow(t *testing.T) {
	ledger, store := newMemLedger(t)
	ctx := context.Background()
	accountID := seedAccount(t, store, "100.00")
	actor := uuid.New()

	res, err := ledger.CreateWithdraw(ctx, withdrawReq(accountID, money(t, "1.00"), "wd-1"))
	require.NoError(t, err)

	_, err = ledger.ChangeStatus(ctx, ChangeStatusRequest{
		TransactionID: res.Transaction.ID,
		Status:        domain.StatusInReview,
		ActorID:       &actor,
		Note:          "manual check",
	})
	require.NoError(t, err)

	audit := store.AuditLog()
	last := audit[len(audit)-1]
	assert.Equal(t, "status_changed", last.Action)
	assert.Equal(t, "PENDING", *last.PrevState)
	assert.Equal(t, "IN_REVIEW", *last.NextState)
	assert.Equal(t, actor, repository.FromPgUUID(last.ActorID))
	assert.Contains(t, string(last.Metadata), "manual check")
}

func TestAtomicity_FailureAfterBalanceWriteRollsBack(t *testing.T) {
	ledger, store := newMemLedger(t)
	ctx := context.Background()
	accountID := seedAccount(t, store, "100.00")

	store.FailOn("CreateTransaction", errors.New("disk full"))
	_, err := ledger.CreateWithdraw(ctx, withdrawReq(accountID, money(t, "40.00"), "wd-1"))
	require.Error(t, err)
	assert.Equal(t, "100.00", balanceOf(t, store, accountID).String())
	assert.Empty(t, store.Transactions())
	assert.Empty(t, store.Entries(repository.ToPgUUID(accountID)))

	// The same reference can be retried after a rolled-back unit.
	res, err := ledger.CreateWithdraw(ctx, withdrawReq(accountID, money(t, "40.00"), "wd-1"))
	require.NoError(t, err)
	assert.False(t, res.Replayed)

	store.FailOn("UpdateTransactionStatus", errors.New("connection reset"))
	_, err = ledger.RefundWithdraw(ctx, res.Transaction.ID, nil)
	require.Error(t, err)
	assert.Equal(t, "58.00", balanceOf(t, store, accountID).String())

	tx, err := ledger.GetTransaction(ctx, res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, tx.Status)
}

func TestConcurrentWithdrawalsNeverOverdraw(t *testing.T) {
	ledger, store := newMemLedger(t)
	ctx := context.Background()
	accountID := seedAccount(t, store, "100.00")

	const attempts = 20
	results := make([]error, attempts)
	var g errgroup.Group
	for i := 0; i < attempts; i++ {
		g.Go(func() error {
			_, results[i] = ledger.CreateWithdraw(ctx, withdrawReq(accountID, money(t, "10.00"), fmt.Sprintf("wd-%d", i)))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	}
	// Each withdraw costs 10.50; nine fit into 100.00.
	assert.Equal(t, 9, succeeded)
	assert.Equal(t, "5.50", balanceOf(t, store, accountID).String())
}

func TestConservationUnderInterleavedOperations(t *testing.T) {
	ledger, store := newMemLedger(t)
	ctx := context.Background()

	accounts := []uuid.UUID{
		seedAccount(t, store, "500.00"),
		seedAccount(t, store, "50.00"),
		seedAccount(t, store, "0.00"),
	}

	var g errgroup.Group
	for w := 0; w < 6; w++ {
		rng := rand.New(rand.NewSource(int64(w)))
		g.Go(func() error {
			var mine []uuid.UUID
			for i := 0; i < 40; i++ {
				accountID := accounts[rng.Intn(len(accounts))]
				amount := domain.NewMoneyFromCents(int64(rng.Intn(5000) + 1))
				ref := fmt.Sprintf("w%d-%d", w, i)
				switch rng.Intn(4) {
				case 0:
					res, err := ledger.CreateWithdraw(ctx, withdrawReq(accountID, amount, ref))
					if err == nil {
						mine = append(mine, res.Transaction.ID)
					} else if !errors.Is(err, domain.ErrInsufficientBalance) {
						return err
					}
				case 1:
					res, err := ledger.CreateDeposit(ctx, depositReq(accountID, amount, ref))
					if err != nil {
						return err
					}
					mine = append(mine, res.Transaction.ID)
				default:
					if len(mine) == 0 {
						continue
					}
					id := mine[rng.Intn(len(mine))]
					to := domain.Statuses()[rng.Intn(len(domain.Statuses()))]
					_, err := ledger.ChangeStatus(ctx, ChangeStatusRequest{TransactionID: id, Status: to})
					if err != nil && !errors.Is(err, domain.ErrInvalidTransition) {
						return err
					}
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	imbalances, err := NewReconciliationService(store).Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, imbalances)

	// Replay the committed records against the opening balances.
	expected := map[uuid.UUID]int64{accounts[0]: 50_000, accounts[1]: 5_000, accounts[2]: 0}
	for _, row := range store.Transactions() {
		tx, err := toDomainTransaction(row)
		require.NoError(t, err)
		switch tx.Kind {
		case domain.KindWithdraw:
			expected[tx.AccountID] -= tx.GrossAmount.Cents()
			if tx.Status == domain.StatusRefund {
				expected[tx.AccountID] += tx.RequestedAmount.Cents()
			}
		case domain.KindDeposit:
			// A settled deposit stays credited even if later refunded.
			if tx.Status == domain.StatusCompleted || (tx.Status == domain.StatusRefund && hasCredit(store, tx)) {
				expected[tx.AccountID] += tx.GrossAmount.Cents()
			}
		}
	}
	for _, id := range accounts {
		balance := balanceOf(t, store, id)
		assert.Equal(t, expected[id], balance.Cents(), "account %s", id)
		assert.False(t, balance.IsNegative())
	}
}

func hasCredit(store *memstore.Store, tx *domain.Transaction) bool {
	for _, e := range store.Entries(repository.ToPgUUID(tx.AccountID)) {
		if repository.FromPgUUID(e.TransactionID) == tx.ID && e.Direction == domain.DirectionCredit {
			return true
		}
	}
	return false
}
