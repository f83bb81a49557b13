package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ayo6706/backoffice-ledger/internal/domain"
	"github.com/ayo6706/backoffice-ledger/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockSweeper struct {
	mock.Mock
}

func (m *MockSweeper) Sweep(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Run(ctx context.Context) ([]service.Imbalance, error) {
	args := m.Called(ctx)
	imbalances, _ := args.Get(0).([]service.Imbalance)
	return imbalances, args.Error(1)
}

func TestIdempotencyJanitorSweepOnceUsesRetentionCutoff(t *testing.T) {
	now := time.Date(2026, 1, 2, 15, 0, 0, 0, time.UTC)
	sweeper := new(MockSweeper)
	sweeper.On("Sweep", mock.Anything, now.Add(-24*time.Hour)).Return(int64(3), nil).Once()

	janitor := NewIdempotencyJanitor(sweeper, 24*time.Hour)
	janitor.now = func() time.Time { return now }

	assert.Equal(t, int64(3), janitor.SweepOnce(context.Background()))
	sweeper.AssertExpectations(t)
}

func TestIdempotencyJanitorSweepOnceFailures(t *testing.T) {
	sweeper := new(MockSweeper)
	sweeper.On("Sweep", mock.Anything, mock.Anything).Return(int64(0), errors.New("connection reset")).Once()

	janitor := NewIdempotencyJanitor(sweeper, time.Hour)
	assert.Equal(t, int64(0), janitor.SweepOnce(context.Background()))
	sweeper.AssertExpectations(t)

	disabled := NewIdempotencyJanitor(sweeper, 0)
	assert.Equal(t, int64(0), disabled.SweepOnce(context.Background()))
	sweeper.AssertNumberOfCalls(t, "Sweep", 1)
}

func TestIdempotencyJanitorStopsOnStop(t *testing.T) {
	sweeper := new(MockSweeper)
	sweeper.On("Sweep", mock.Anything, mock.Anything).Return(int64(0), nil).Maybe()

	janitor := NewIdempotencyJanitor(sweeper, time.Hour).WithInterval(5 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		janitor.Start(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	janitor.Stop()
	janitor.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestReconciliationWorkerRunOnce(t *testing.T) {
	cases := []struct {
		name       string
		imbalances []service.Imbalance
		err        error
	}{
		{name: "balanced"},
		{name: "imbalanced", imbalances: []service.Imbalance{{AccountID: "a", Balance: domain.NewMoneyFromCents(100), Expected: domain.NewMoneyFromCents(90)}}},
		{name: "failed", err: errors.New("query failed")},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			reconciler := new(MockReconciler)
			reconciler.On("Run", mock.Anything).Return(tc.imbalances, tc.err).Once()

			NewReconciliationWorker(reconciler).RunOnce(context.Background())
			reconciler.AssertExpectations(t)
		})
	}
}

func TestReconciliationWorkerStopsOnContextCancel(t *testing.T) {
	reconciler := new(MockReconciler)
	reconciler.On("Run", mock.Anything).Return(nil, nil).Maybe()

	ctx, cancel := context.WithCancel(context.Background())
	w := NewReconciliationWorker(reconciler).WithInterval(5 * time.Millisecond)
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
