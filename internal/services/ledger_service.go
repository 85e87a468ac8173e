// Package services orchestrates ledger operations across the store, the
// allocation engine, the summary cache and the event bus.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"ledger/internal/allocation"
	"ledger/internal/amqp"
	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/storage"
)

// Publisher is the outbound event bus. *amqp.Client satisfies it.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error
	PublishRecompute(ctx context.Context, req *amqp.RecomputeRequest) error
}

// LedgerService is the inbound contract of the ledger. Every mutation runs in
// one store transaction; cache invalidation and event publication happen after
// commit and never fail the request.
type LedgerService struct {
	store     *storage.Store
	engine    *allocation.Engine
	publisher Publisher
	summaries cache.Cache[core.MonthSummary]
	newID     func() string
}

// NewLedgerService wires the service. publisher and summaries may be nil.
func NewLedgerService(store *storage.Store, publisher Publisher, summaries cache.Cache[core.MonthSummary]) *LedgerService {
	return &LedgerService{
		store:     store,
		engine:    allocation.NewEngine(allocation.NewResolver()),
		publisher: publisher,
		summaries: summaries,
		newID:     uuid.NewString,
	}
}

// Ping reports whether the backing store is reachable.
func (s *LedgerService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func summaryPrefix(budgetID string) string {
	return "summary:" + budgetID + ":"
}

func summaryKey(budgetID string, p core.Period) string {
	return summaryPrefix(budgetID) + p.String()
}

// committed runs the post-commit side effects of a mutation on budgetID.
func (s *LedgerService) committed(ctx context.Context, ev *amqp.LedgerEvent) {
	if s.summaries != nil {
		s.summaries.DeletePrefix(summaryPrefix(ev.BudgetID))
	}

	if s.publisher == nil {
		slog.DebugContext(ctx, "Event publisher not available, skipping ledger event",
			log.FieldComponent, log.ComponentLedger, log.FieldEventType, ev.Type)
		return
	}
	if err := s.publisher.PublishLedgerEvent(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			log.FieldComponent, log.ComponentLedger,
			log.FieldEventType, ev.Type,
			log.FieldBudgetID, ev.BudgetID,
			"entity_id", ev.EntityID,
			log.FieldError, err)
	}
}

// requireBudget fails with NotFound unless budgetID names an active budget.
func requireBudget(ctx context.Context, tx *storage.Tx, budgetID string) error {
	if budgetID == "" {
		return fmt.Errorf("%w: budget_id", core.ErrMissingField)
	}
	_, err := tx.GetBudget(ctx, budgetID)
	return err
}

// lockBudget is requireBudget for writers: the budget row stays locked until
// the transaction ends, so aggregate updates of one budget apply in order.
func lockBudget(ctx context.Context, tx *storage.Tx, budgetID string) error {
	if err := requireBudget(ctx, tx, budgetID); err != nil {
		return err
	}
	return tx.LockBudget(ctx, budgetID)
}

func contributionOf(txn core.Transaction, payee core.Payee) allocation.Contribution {
	return allocation.Contribution{
		BudgetID:   txn.BudgetID,
		Period:     txn.Date.Period(),
		Amount:     txn.Amount,
		CategoryID: txn.CategoryID,
		Income:     txn.CategoryID == "" && payee.TransferAccountID == "",
	}
}

// Close closes the store and, when it owns one, the publisher.
func (s *LedgerService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if closer, ok := s.publisher.(interface{ Close() error }); ok && closer != nil {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}
	return nil
}
