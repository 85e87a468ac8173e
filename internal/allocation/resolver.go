// Package allocation keeps category and month aggregates consistent with the
// transactions and assignments recorded against them.
package allocation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"ledger/internal/core"
)

// Tx is the transactional store surface the resolver and engine work against.
// *storage.Tx satisfies it.
type Tx interface {
	LockBudget(ctx context.Context, id string) error

	FindMonth(ctx context.Context, budgetID string, p core.Period) (core.Month, error)
	GetMonth(ctx context.Context, id string) (core.Month, error)
	LatestMonthBefore(ctx context.Context, budgetID string, p core.Period) (core.Month, error)
	InsertMonthIfAbsent(ctx context.Context, m core.Month) (bool, error)
	ListMonths(ctx context.Context, budgetID string) ([]core.Month, error)
	AddMonthTotals(ctx context.Context, id string, budgeted, activity, toBeBudgeted core.Money) error
	ShiftToBeBudgetedAfter(ctx context.Context, budgetID string, p core.Period, delta core.Money) error
	SetMonthTotals(ctx context.Context, id string, budgeted, activity, toBeBudgeted core.Money) error

	GetCategoryName(ctx context.Context, id string) (core.CategoryName, error)
	ListCategoryNames(ctx context.Context, budgetID string) ([]core.CategoryName, error)
	GetCategoryGroup(ctx context.Context, id string) (core.CategoryGroup, error)

	FindCategory(ctx context.Context, budgetID, categoryNameID, monthID string) (core.Category, error)
	GetCategory(ctx context.Context, id string) (core.Category, error)
	LatestCategoryBefore(ctx context.Context, budgetID, categoryNameID string, p core.Period) (core.Category, error)
	InsertCategoryIfAbsent(ctx context.Context, c core.Category) (bool, error)
	ListCategoryChain(ctx context.Context, budgetID, categoryNameID string) ([]core.Category, error)
	AddCategoryTotals(ctx context.Context, id string, budgeted, activity, balance core.Money) error
	ShiftCategoryBalanceAfter(ctx context.Context, budgetID, categoryNameID string, p core.Period, delta core.Money) error
	SetCategoryTotals(ctx context.Context, id string, activity, balance core.Money) error
	SumMonthCategories(ctx context.Context, monthID string) (budgeted, activity core.Money, err error)
	SumCategoryActivity(ctx context.Context, categoryID string) (core.Money, error)

	SumInflowByPeriod(ctx context.Context, budgetID string) (map[core.Period]core.Money, error)
	ListAccounts(ctx context.Context, budgetID string) ([]core.Account, error)
	SumAccountTransactions(ctx context.Context, budgetID string) (map[string]core.Money, error)
	SetAccountBalance(ctx context.Context, id string, balance core.Money) error
}

// Resolver lazily materializes Month and Category rows. Both operations are
// idempotent: concurrent callers converge on the single surviving row.
type Resolver struct {
	newID func() string
}

func NewResolver() *Resolver {
	return &Resolver{newID: uuid.NewString}
}

// ResolveMonth returns the month for (budget, period), creating it with zero
// totals and the to_be_budgeted carried from the latest earlier month. The
// budget is locked before the earlier month is read.
func (r *Resolver) ResolveMonth(ctx context.Context, tx Tx, budgetID string, p core.Period) (core.Month, error) {
	if err := p.Validate(); err != nil {
		return core.Month{}, err
	}

	m, err := tx.FindMonth(ctx, budgetID, p)
	if err == nil {
		return m, nil
	}
	if core.KindOf(err) != core.KindNotFound {
		return core.Month{}, err
	}

	if err := tx.LockBudget(ctx, budgetID); err != nil {
		return core.Month{}, err
	}
	var carried core.Money
	prev, err := tx.LatestMonthBefore(ctx, budgetID, p)
	switch core.KindOf(err) {
	case "":
		carried = prev.ToBeBudgeted
	case core.KindNotFound:
	default:
		return core.Month{}, err
	}

	if _, err := tx.InsertMonthIfAbsent(ctx, core.Month{
		ID:           r.newID(),
		BudgetID:     budgetID,
		Period:       p,
		ToBeBudgeted: carried,
	}); err != nil {
		return core.Month{}, err
	}

	m, err = tx.FindMonth(ctx, budgetID, p)
	if core.KindOf(err) == core.KindNotFound {
		return core.Month{}, fmt.Errorf("resolve month %s: %w", p, core.ErrConflict)
	}
	return m, err
}

// ResolveCategory returns the row of categoryNameID in month, creating it when
// absent. Creation needs groupID; the new row starts with the balance of the
// latest earlier row of the same name.
func (r *Resolver) ResolveCategory(ctx context.Context, tx Tx, budgetID, categoryNameID string, month core.Month, groupID string) (core.Category, bool, error) {
	c, err := tx.FindCategory(ctx, budgetID, categoryNameID, month.ID)
	if err == nil {
		return c, false, nil
	}
	if core.KindOf(err) != core.KindNotFound {
		return core.Category{}, false, err
	}

	if groupID == "" {
		return core.Category{}, false, core.ErrCategoryGroupRequired
	}
	group, err := tx.GetCategoryGroup(ctx, groupID)
	if err != nil {
		return core.Category{}, false, err
	}
	if group.BudgetID != budgetID {
		return core.Category{}, false, core.NotFoundf("category group %s", groupID)
	}
	name, err := tx.GetCategoryName(ctx, categoryNameID)
	if err != nil {
		return core.Category{}, false, err
	}
	if name.BudgetID != budgetID {
		return core.Category{}, false, core.NotFoundf("category name %s", categoryNameID)
	}

	if err := tx.LockBudget(ctx, budgetID); err != nil {
		return core.Category{}, false, err
	}
	var rollover core.Money
	prev, err := tx.LatestCategoryBefore(ctx, budgetID, categoryNameID, month.Period)
	switch core.KindOf(err) {
	case "":
		rollover = prev.Balance
	case core.KindNotFound:
	default:
		return core.Category{}, false, err
	}

	created, err := tx.InsertCategoryIfAbsent(ctx, core.Category{
		ID:              r.newID(),
		BudgetID:        budgetID,
		MonthID:         month.ID,
		CategoryNameID:  categoryNameID,
		CategoryGroupID: groupID,
		Balance:         rollover,
	})
	if err != nil {
		return core.Category{}, false, err
	}

	c, err = tx.FindCategory(ctx, budgetID, categoryNameID, month.ID)
	if core.KindOf(err) == core.KindNotFound {
		return core.Category{}, false, fmt.Errorf("resolve category %s in %s: %w", name.Name, month.Period, core.ErrConflict)
	}
	if err != nil {
		return core.Category{}, false, err
	}
	return c, created, nil
}
