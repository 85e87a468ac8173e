package services

import (
	"context"
	"fmt"
	"log/slog"

	"ledger/internal/allocation"
	"ledger/internal/amqp"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/storage"
)

// AssignCategoryBudget sets the amount budgeted to one category row.
func (s *LedgerService) AssignCategoryBudget(ctx context.Context, categoryID string, amount core.Money) (core.Category, error) {
	var category core.Category
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		current, err := tx.GetCategory(ctx, categoryID)
		if err != nil {
			return err
		}
		if err := lockBudget(ctx, tx, current.BudgetID); err != nil {
			return err
		}
		if current, err = tx.GetCategory(ctx, categoryID); err != nil {
			return err
		}
		category, err = s.engine.ApplyAssignment(ctx, tx, current, amount)
		return err
	})
	if err != nil {
		return core.Category{}, fmt.Errorf("assign category %s: %w", categoryID, err)
	}

	slog.InfoContext(ctx, "Category budget assigned",
		log.FieldComponent, log.ComponentLedger,
		log.FieldOperation, log.OpAssign,
		log.FieldCategoryID, category.ID,
		log.FieldBudgetID, category.BudgetID,
		log.FieldPeriod, category.Period.String(),
		"budgeted_cents", category.Budgeted.Cents)

	s.committed(ctx, amqp.NewLedgerEvent(amqp.EventCategoryAssigned, category.BudgetID, category.ID, category.Period.String()))
	return category, nil
}

// EnsureCategory materializes the row of a category name in a month.
func (s *LedgerService) EnsureCategory(ctx context.Context, budgetID, categoryNameID, groupID string, p core.Period) (core.Category, bool, error) {
	var (
		category core.Category
		created  bool
	)
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := lockBudget(ctx, tx, budgetID); err != nil {
			return err
		}
		month, err := s.engine.Resolver().ResolveMonth(ctx, tx, budgetID, p)
		if err != nil {
			return err
		}
		category, created, err = s.engine.Resolver().ResolveCategory(ctx, tx, budgetID, categoryNameID, month, groupID)
		return err
	})
	if err != nil {
		return core.Category{}, false, fmt.Errorf("ensure category: %w", err)
	}
	if created && s.summaries != nil {
		s.summaries.DeletePrefix(summaryPrefix(budgetID))
	}
	return category, created, nil
}

// GetMonthSummary returns the categories and to_be_budgeted of one month.
// Reading a month that was never materialized creates nothing: the summary
// carries the to_be_budgeted of the latest earlier month and no categories.
func (s *LedgerService) GetMonthSummary(ctx context.Context, budgetID string, year, month int) (core.MonthSummary, error) {
	p, err := core.NewPeriod(year, month)
	if err != nil {
		return core.MonthSummary{}, err
	}

	key := summaryKey(budgetID, p)
	if s.summaries != nil {
		if cached, ok := s.summaries.Get(key); ok {
			return cached, nil
		}
	}

	var summary core.MonthSummary
	err = s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := requireBudget(ctx, tx, budgetID); err != nil {
			return err
		}
		summary = core.MonthSummary{BudgetID: budgetID, Period: p}

		m, err := tx.FindMonth(ctx, budgetID, p)
		if core.KindOf(err) == core.KindNotFound {
			prev, err := tx.LatestMonthBefore(ctx, budgetID, p)
			if err == nil {
				summary.ToBeBudgeted = prev.ToBeBudgeted
				return nil
			}
			if core.KindOf(err) == core.KindNotFound {
				return nil
			}
			return err
		}
		if err != nil {
			return err
		}

		summary.MonthID = m.ID
		summary.Budgeted = m.Budgeted
		summary.Activity = m.Activity
		summary.ToBeBudgeted = m.ToBeBudgeted

		categories, err := tx.ListCategoriesByMonth(ctx, m.ID)
		if err != nil {
			return err
		}
		summary.Categories = make([]core.CategorySummary, 0, len(categories))
		for _, c := range categories {
			summary.Categories = append(summary.Categories, core.CategorySummary{
				CategoryID:      c.ID,
				CategoryNameID:  c.CategoryNameID,
				CategoryGroupID: c.CategoryGroupID,
				Name:            c.Name,
				Budgeted:        c.Budgeted,
				Activity:        c.Activity,
				Balance:         c.Balance,
				Hidden:          c.Hidden,
			})
		}
		return nil
	})
	if err != nil {
		return core.MonthSummary{}, fmt.Errorf("month summary %s: %w", p, err)
	}

	if s.summaries != nil {
		s.summaries.Set(key, summary)
	}
	return summary, nil
}

// RecomputeBudget rebuilds every aggregate of a budget from its rows.
func (s *LedgerService) RecomputeBudget(ctx context.Context, budgetID string) (allocation.RecomputeStats, error) {
	var stats allocation.RecomputeStats
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := lockBudget(ctx, tx, budgetID); err != nil {
			return err
		}
		var err error
		stats, err = s.engine.RecomputeBudget(ctx, tx, budgetID)
		return err
	})
	if err != nil {
		return stats, fmt.Errorf("recompute budget %s: %w", budgetID, err)
	}

	slog.InfoContext(ctx, "Budget recomputed",
		log.FieldComponent, log.ComponentLedger,
		log.FieldOperation, log.OpRecompute,
		log.FieldBudgetID, budgetID,
		"months", stats.Months,
		"categories", stats.Categories,
		"accounts", stats.Accounts)

	s.committed(ctx, amqp.NewLedgerEvent(amqp.EventBudgetRecomputed, budgetID, budgetID, ""))
	return stats, nil
}

// RequestRecompute queues a recompute for the worker. Without a publisher the
// recompute runs inline.
func (s *LedgerService) RequestRecompute(ctx context.Context, budgetID, reason string) error {
	if err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		return requireBudget(ctx, tx, budgetID)
	}); err != nil {
		return fmt.Errorf("request recompute: %w", err)
	}

	if s.publisher == nil {
		slog.WarnContext(ctx, "Event publisher not available, recomputing inline",
			log.FieldComponent, log.ComponentLedger, log.FieldBudgetID, budgetID)
		_, err := s.RecomputeBudget(ctx, budgetID)
		return err
	}

	if err := s.publisher.PublishRecompute(ctx, amqp.NewRecomputeRequest(budgetID, reason)); err != nil {
		return fmt.Errorf("request recompute: %w: %v", core.ErrStoreUnavailable, err)
	}
	return nil
}
