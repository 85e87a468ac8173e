// Package worker runs the repair pass for budgets on request from the event bus.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ledger/internal/allocation"
	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/log"
)

// Recomputer is the slice of the ledger service the worker drives.
type Recomputer interface {
	RecomputeBudget(ctx context.Context, budgetID string) (allocation.RecomputeStats, error)
	ListBudgets(ctx context.Context) ([]core.Budget, error)
}

// RecomputeWorker handles recompute requests. Requests issued before the
// start of the last completed recompute of the same budget are already
// covered by it and are skipped.
type RecomputeWorker struct {
	ledger Recomputer
	logger *log.Logger
	now    func() time.Time

	mu        sync.Mutex
	completed map[string]time.Time
}

func NewRecomputeWorker(ledger Recomputer, logger *log.Logger) *RecomputeWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &RecomputeWorker{
		ledger:    ledger,
		logger:    logger.WithComponent(log.ComponentWorker),
		now:       time.Now,
		completed: make(map[string]time.Time),
	}
}

// HandleRecompute processes a single recompute request from AMQP. A request
// for a budget that no longer exists is dropped; other failures are returned
// so the message is requeued.
func (w *RecomputeWorker) HandleRecompute(ctx context.Context, req *amqp.RecomputeRequest) error {
	w.mu.Lock()
	last, seen := w.completed[req.BudgetID]
	w.mu.Unlock()
	if seen && !req.Timestamp.IsZero() && req.Timestamp.Before(last) {
		w.logger.DebugContext(ctx, "Recompute already covered, skipping",
			log.FieldBudgetID, req.BudgetID,
			"requested_at", req.Timestamp.Format(time.RFC3339Nano))
		return nil
	}

	w.logger.InfoContext(ctx, "Processing recompute request",
		log.FieldBudgetID, req.BudgetID,
		"reason", req.Reason)

	started := w.now()
	stats, err := w.ledger.RecomputeBudget(ctx, req.BudgetID)
	if err != nil {
		if core.KindOf(err) == core.KindNotFound {
			w.logger.WarnContext(ctx, "Recompute requested for unknown budget, dropping",
				log.FieldBudgetID, req.BudgetID)
			return nil
		}
		return fmt.Errorf("recompute budget %s: %w", req.BudgetID, err)
	}

	w.mu.Lock()
	w.completed[req.BudgetID] = started
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "Recompute completed",
		log.FieldBudgetID, req.BudgetID,
		"months", stats.Months,
		"categories", stats.Categories,
		"accounts", stats.Accounts,
		log.FieldDuration, w.now().Sub(started).Milliseconds())
	return nil
}

// StartupRecompute repairs every budget once, recovering from requests lost
// while the worker was down. Failures are counted, not fatal.
func (w *RecomputeWorker) StartupRecompute(ctx context.Context) error {
	budgets, err := w.ledger.ListBudgets(ctx)
	if err != nil {
		return fmt.Errorf("list budgets for startup recompute: %w", err)
	}

	successCount, errorCount := 0, 0
	for _, b := range budgets {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := w.HandleRecompute(ctx, &amqp.RecomputeRequest{BudgetID: b.ID, Reason: "startup"}); err != nil {
			w.logger.ErrorContext(ctx, "Startup recompute failed", log.FieldBudgetID, b.ID, log.FieldError, err)
			errorCount++
			continue
		}
		successCount++
	}

	w.logger.InfoContext(ctx, "Startup recompute completed",
		"total", len(budgets),
		"recomputed", successCount,
		"errors", errorCount)
	return nil
}
