package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/allocation"
	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/services"
)

type fakeLedger struct {
	mu       sync.Mutex
	budgets  []core.Budget
	calls    []string
	failWith map[string]error
}

func (f *fakeLedger) RecomputeBudget(_ context.Context, budgetID string) (allocation.RecomputeStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, budgetID)
	if err := f.failWith[budgetID]; err != nil {
		return allocation.RecomputeStats{}, err
	}
	return allocation.RecomputeStats{Months: 2, Categories: 3, Accounts: 1}, nil
}

func (f *fakeLedger) ListBudgets(context.Context) ([]core.Budget, error) {
	return f.budgets, nil
}

func newTestWorker(ledger Recomputer) *RecomputeWorker {
	return NewRecomputeWorker(ledger, log.New(log.Config{Output: &bytes.Buffer{}}))
}

func TestHandleRecompute(t *testing.T) {
	ledger := &fakeLedger{failWith: map[string]error{
		"gone":  core.NotFoundf("budget gone"),
		"flaky": fmt.Errorf("recompute: %w", core.ErrStoreUnavailable),
	}}
	w := newTestWorker(ledger)
	ctx := context.Background()

	require.NoError(t, w.HandleRecompute(ctx, amqp.NewRecomputeRequest("b1", "import")))
	require.NoError(t, w.HandleRecompute(ctx, amqp.NewRecomputeRequest("gone", "")), "unknown budgets are dropped")

	err := w.HandleRecompute(ctx, amqp.NewRecomputeRequest("flaky", ""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrStoreUnavailable))

	assert.Equal(t, []string{"b1", "gone", "flaky"}, ledger.calls)
}

func TestHandleRecomputeSkipsCoveredRequests(t *testing.T) {
	ledger := &fakeLedger{}
	w := newTestWorker(ledger)
	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, w.HandleRecompute(ctx, &amqp.RecomputeRequest{BudgetID: "b1", Timestamp: now.Add(-time.Second)}))

	// Issued before the completed run started.
	require.NoError(t, w.HandleRecompute(ctx, &amqp.RecomputeRequest{BudgetID: "b1", Timestamp: now.Add(-time.Millisecond)}))
	assert.Len(t, ledger.calls, 1)

	require.NoError(t, w.HandleRecompute(ctx, &amqp.RecomputeRequest{BudgetID: "b1", Timestamp: now.Add(time.Second)}))
	assert.Len(t, ledger.calls, 2)
}

func TestStartupRecompute(t *testing.T) {
	ledger := &fakeLedger{
		budgets:  []core.Budget{{ID: "a"}, {ID: "b"}, {ID: "c"}},
		failWith: map[string]error{"b": errors.New("boom")},
	}
	w := newTestWorker(ledger)

	require.NoError(t, w.StartupRecompute(context.Background()))
	assert.Equal(t, []string{"a", "b", "c"}, ledger.calls)
}

var _ Recomputer = (*services.LedgerService)(nil)
