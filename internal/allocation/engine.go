package allocation

import (
	"context"
	"fmt"
	"log/slog"

	"ledger/internal/core"
	"ledger/internal/log"
)

// Contribution is what one active transaction adds to the aggregates. The
// zero value contributes nothing.
type Contribution struct {
	BudgetID string
	Period   core.Period
	Amount   core.Money
	// CategoryID is the per-month Category row; empty when uncategorized.
	CategoryID string
	// Income marks an uncategorized inflow that feeds to_be_budgeted.
	Income bool
}

func (c Contribution) isZero() bool {
	return c.CategoryID == "" && !c.Income
}

// RecomputeStats counts the rows rewritten by RecomputeBudget.
type RecomputeStats struct {
	Months     int
	Categories int
	Accounts   int
}

// Engine applies transaction and assignment deltas. Every method runs inside
// the caller's transaction and either fully applies or returns an error that
// must roll that transaction back.
type Engine struct {
	resolver *Resolver
}

func NewEngine(resolver *Resolver) *Engine {
	return &Engine{resolver: resolver}
}

func (e *Engine) Resolver() *Resolver {
	return e.resolver
}

// ApplyTransactionDelta adds amount to the category's activity and balance,
// to the owning month's activity, and to the balance of every later row of the
// same name.
func (e *Engine) ApplyTransactionDelta(ctx context.Context, tx Tx, category core.Category, amount core.Money) error {
	if amount.IsZero() {
		return nil
	}
	if err := tx.AddCategoryTotals(ctx, category.ID, core.Money{}, amount, amount); err != nil {
		return err
	}
	if err := tx.ShiftCategoryBalanceAfter(ctx, category.BudgetID, category.CategoryNameID, category.Period, amount); err != nil {
		return err
	}
	return tx.AddMonthTotals(ctx, category.MonthID, core.Money{}, amount, core.Money{})
}

// ApplyAssignment sets the category's budgeted amount and moves the difference
// out of (or back into) to_be_budgeted of its month and every later month.
func (e *Engine) ApplyAssignment(ctx context.Context, tx Tx, category core.Category, budgeted core.Money) (core.Category, error) {
	delta := budgeted.Sub(category.Budgeted)
	if delta.IsZero() {
		return category, nil
	}

	if err := tx.AddCategoryTotals(ctx, category.ID, delta, core.Money{}, delta); err != nil {
		return core.Category{}, err
	}
	if err := tx.ShiftCategoryBalanceAfter(ctx, category.BudgetID, category.CategoryNameID, category.Period, delta); err != nil {
		return core.Category{}, err
	}
	if err := tx.AddMonthTotals(ctx, category.MonthID, delta, core.Money{}, delta.Neg()); err != nil {
		return core.Category{}, err
	}
	if err := tx.ShiftToBeBudgetedAfter(ctx, category.BudgetID, category.Period, delta.Neg()); err != nil {
		return core.Category{}, err
	}

	category.Budgeted = budgeted
	category.Balance = category.Balance.Add(delta)
	return category, nil
}

// ApplyIncome adds amount to to_be_budgeted of month and every later month.
func (e *Engine) ApplyIncome(ctx context.Context, tx Tx, month core.Month, amount core.Money) error {
	if amount.IsZero() {
		return nil
	}
	if err := tx.AddMonthTotals(ctx, month.ID, core.Money{}, core.Money{}, amount); err != nil {
		return err
	}
	return tx.ShiftToBeBudgetedAfter(ctx, month.BudgetID, month.Period, amount)
}

// ReassignCategory reverses from and applies to. When both land on the same
// aggregate only the difference is applied.
func (e *Engine) ReassignCategory(ctx context.Context, tx Tx, from, to Contribution) error {
	switch {
	case from.CategoryID != "" && from.CategoryID == to.CategoryID:
		return e.apply(ctx, tx, to, to.Amount.Sub(from.Amount))
	case from.Income && to.Income && from.BudgetID == to.BudgetID && from.Period == to.Period:
		return e.apply(ctx, tx, to, to.Amount.Sub(from.Amount))
	}

	if err := e.apply(ctx, tx, from, from.Amount.Neg()); err != nil {
		return fmt.Errorf("reverse contribution: %w", err)
	}
	if err := e.apply(ctx, tx, to, to.Amount); err != nil {
		return fmt.Errorf("apply contribution: %w", err)
	}
	return nil
}

func (e *Engine) apply(ctx context.Context, tx Tx, c Contribution, amount core.Money) error {
	switch {
	case amount.IsZero() || c.isZero():
		return nil
	case c.CategoryID != "":
		category, err := tx.GetCategory(ctx, c.CategoryID)
		if err != nil {
			return err
		}
		return e.ApplyTransactionDelta(ctx, tx, category, amount)
	default:
		month, err := e.resolver.ResolveMonth(ctx, tx, c.BudgetID, c.Period)
		if err != nil {
			return err
		}
		return e.ApplyIncome(ctx, tx, month, amount)
	}
}

// RecomputeMonthChain re-derives activity from transactions and the rolled
// balance for every row of one category name, oldest first.
func (e *Engine) RecomputeMonthChain(ctx context.Context, tx Tx, budgetID, categoryNameID string) ([]core.Category, error) {
	chain, err := tx.ListCategoryChain(ctx, budgetID, categoryNameID)
	if err != nil {
		return nil, err
	}

	var running core.Money
	for i := range chain {
		activity, err := tx.SumCategoryActivity(ctx, chain[i].ID)
		if err != nil {
			return nil, err
		}
		balance := running.Add(chain[i].Budgeted).Add(activity)
		if activity != chain[i].Activity || balance != chain[i].Balance {
			if err := tx.SetCategoryTotals(ctx, chain[i].ID, activity, balance); err != nil {
				return nil, err
			}
		}
		chain[i].Activity = activity
		chain[i].Balance = balance
		running = balance
	}
	return chain, nil
}

// RecomputeBudget rebuilds every aggregate of the budget from budgeted amounts
// and active transactions: category chains, month totals with the carried
// to_be_budgeted, and account balances.
func (e *Engine) RecomputeBudget(ctx context.Context, tx Tx, budgetID string) (RecomputeStats, error) {
	var stats RecomputeStats

	inflow, err := tx.SumInflowByPeriod(ctx, budgetID)
	if err != nil {
		return stats, err
	}
	for p := range inflow {
		if _, err := e.resolver.ResolveMonth(ctx, tx, budgetID, p); err != nil {
			return stats, err
		}
	}

	names, err := tx.ListCategoryNames(ctx, budgetID)
	if err != nil {
		return stats, err
	}
	for _, n := range names {
		chain, err := e.RecomputeMonthChain(ctx, tx, budgetID, n.ID)
		if err != nil {
			return stats, fmt.Errorf("recompute %s: %w", n.Name, err)
		}
		stats.Categories += len(chain)
	}

	months, err := tx.ListMonths(ctx, budgetID)
	if err != nil {
		return stats, err
	}
	var carried core.Money
	for _, m := range months {
		budgeted, activity, err := tx.SumMonthCategories(ctx, m.ID)
		if err != nil {
			return stats, err
		}
		tbb := carried.Add(inflow[m.Period]).Sub(budgeted)
		if err := tx.SetMonthTotals(ctx, m.ID, budgeted, activity, tbb); err != nil {
			return stats, err
		}
		carried = tbb
		stats.Months++
	}

	accounts, err := tx.ListAccounts(ctx, budgetID)
	if err != nil {
		return stats, err
	}
	sums, err := tx.SumAccountTransactions(ctx, budgetID)
	if err != nil {
		return stats, err
	}
	for _, a := range accounts {
		if err := tx.SetAccountBalance(ctx, a.ID, sums[a.ID]); err != nil {
			return stats, err
		}
		stats.Accounts++
	}

	slog.DebugContext(ctx, "Budget recomputed",
		log.FieldComponent, log.ComponentAlloc,
		log.FieldBudgetID, budgetID,
		"months", stats.Months,
		"categories", stats.Categories,
		"accounts", stats.Accounts)

	return stats, nil
}
