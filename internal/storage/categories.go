package storage

import (
	"context"
	"fmt"

	"ledger/internal/core"
)

const categorySelect = `SELECT c.id, c.budget_id, c.month_id, c.category_name_id, c.category_group_id,
	m.year, m.month, n.name, c.budgeted, c.activity, c.balance, c.hidden, c.deleted
	FROM categories c
	JOIN months m ON m.id = c.month_id
	JOIN category_names n ON n.id = c.category_name_id`

// InsertCategoryIfAbsent writes c unless a non-deleted row already holds its
// (budget, name, month) key.
func (t *Tx) InsertCategoryIfAbsent(ctx context.Context, c core.Category) (bool, error) {
	res, err := t.exec(ctx, "insert category",
		`INSERT INTO categories (id, budget_id, month_id, category_name_id, category_group_id, budgeted, activity, balance, hidden)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		c.ID, c.BudgetID, c.MonthID, c.CategoryNameID, c.CategoryGroupID,
		c.Budgeted.Cents, c.Activity.Cents, c.Balance.Cents, c.Hidden)
	if err != nil {
		return false, err
	}
	return inserted("insert category", res)
}

// FindCategory returns the non-deleted row for (budget, name, month), locking
// it on postgres.
func (t *Tx) FindCategory(ctx context.Context, budgetID, categoryNameID, monthID string) (core.Category, error) {
	return t.scanCategory(ctx, fmt.Sprintf("find category %s in month %s", categoryNameID, monthID),
		categorySelect+`
		 WHERE c.budget_id = ? AND c.category_name_id = ? AND c.month_id = ? AND c.deleted = FALSE`+t.forUpdate("c"),
		budgetID, categoryNameID, monthID)
}

func (t *Tx) GetCategory(ctx context.Context, id string) (core.Category, error) {
	return t.scanCategory(ctx, fmt.Sprintf("get category %s", id),
		categorySelect+` WHERE c.id = ? AND c.deleted = FALSE`+t.forUpdate("c"), id)
}

// LatestCategoryBefore returns the closest non-deleted row of the same name in
// a month strictly before p.
func (t *Tx) LatestCategoryBefore(ctx context.Context, budgetID, categoryNameID string, p core.Period) (core.Category, error) {
	return t.scanCategory(ctx, fmt.Sprintf("find category %s before %s", categoryNameID, p),
		t.latestCategoryBeforeSQL(), budgetID, categoryNameID, p.Ordinal())
}

// latestCategoryBeforeSQL locks the returned row on postgres; see
// latestMonthBeforeSQL.
func (t *Tx) latestCategoryBeforeSQL() string {
	return categorySelect + `
		 WHERE c.budget_id = ? AND c.category_name_id = ? AND c.deleted = FALSE
		   AND m.deleted = FALSE AND (m.year * 12 + m.month) < ?
		 ORDER BY m.year DESC, m.month DESC LIMIT 1` + t.forUpdate("c")
}

// ListCategoriesByMonth returns the month's non-deleted rows ordered by name.
func (t *Tx) ListCategoriesByMonth(ctx context.Context, monthID string) ([]core.Category, error) {
	return t.listCategories(ctx, "list categories of month",
		categorySelect+` WHERE c.month_id = ? AND c.deleted = FALSE ORDER BY n.name, c.id`, monthID)
}

// ListCategoryChain returns every non-deleted row of one name in chronological order.
func (t *Tx) ListCategoryChain(ctx context.Context, budgetID, categoryNameID string) ([]core.Category, error) {
	return t.listCategories(ctx, "list category chain",
		categorySelect+`
		 WHERE c.budget_id = ? AND c.category_name_id = ? AND c.deleted = FALSE AND m.deleted = FALSE
		 ORDER BY m.year, m.month`, budgetID, categoryNameID)
}

// AddCategoryTotals applies the three deltas atomically.
func (t *Tx) AddCategoryTotals(ctx context.Context, id string, budgeted, activity, balance core.Money) error {
	if budgeted.IsZero() && activity.IsZero() && balance.IsZero() {
		return nil
	}
	return t.execOne(ctx, fmt.Sprintf("update category %s", id),
		`UPDATE categories SET budgeted = budgeted + ?, activity = activity + ?, balance = balance + ?
		 WHERE id = ? AND deleted = FALSE`,
		budgeted.Cents, activity.Cents, balance.Cents, id)
}

// ShiftCategoryBalanceAfter adds delta to the balance of every non-deleted row
// of the same name in a month strictly after p.
func (t *Tx) ShiftCategoryBalanceAfter(ctx context.Context, budgetID, categoryNameID string, p core.Period, delta core.Money) error {
	if delta.IsZero() {
		return nil
	}
	_, err := t.exec(ctx, fmt.Sprintf("shift balance of category %s after %s", categoryNameID, p),
		`UPDATE categories SET balance = balance + ?
		 WHERE budget_id = ? AND category_name_id = ? AND deleted = FALSE
		   AND month_id IN (SELECT id FROM months WHERE budget_id = ? AND (year * 12 + month) > ?)`,
		delta.Cents, budgetID, categoryNameID, budgetID, p.Ordinal())
	return err
}

func (t *Tx) SetCategoryTotals(ctx context.Context, id string, activity, balance core.Money) error {
	return t.execOne(ctx, fmt.Sprintf("set totals of category %s", id),
		`UPDATE categories SET activity = ?, balance = ? WHERE id = ? AND deleted = FALSE`,
		activity.Cents, balance.Cents, id)
}

func (t *Tx) SetCategoryHidden(ctx context.Context, id string, hidden bool) error {
	return t.execOne(ctx, fmt.Sprintf("set hidden on category %s", id),
		`UPDATE categories SET hidden = ? WHERE id = ? AND deleted = FALSE`, hidden, id)
}

func (t *Tx) DeleteCategory(ctx context.Context, id string) error {
	return t.execOne(ctx, fmt.Sprintf("delete category %s", id),
		`UPDATE categories SET deleted = TRUE WHERE id = ? AND deleted = FALSE`, id)
}

// SumMonthCategories totals budgeted and activity over the month's non-deleted rows.
func (t *Tx) SumMonthCategories(ctx context.Context, monthID string) (budgeted, activity core.Money, err error) {
	err = t.queryRow(ctx,
		`SELECT CAST(COALESCE(SUM(budgeted), 0) AS BIGINT), CAST(COALESCE(SUM(activity), 0) AS BIGINT)
		 FROM categories WHERE month_id = ? AND deleted = FALSE`, monthID,
	).Scan(&budgeted.Cents, &activity.Cents)
	if err != nil {
		return core.Money{}, core.Money{}, translateError(fmt.Sprintf("sum categories of month %s", monthID), err)
	}
	return budgeted, activity, nil
}

func (t *Tx) scanCategory(ctx context.Context, op, query string, args ...any) (core.Category, error) {
	c, err := scanCategoryRow(t.queryRow(ctx, query, args...))
	if err != nil {
		return core.Category{}, translateError(op, err)
	}
	return c, nil
}

func (t *Tx) listCategories(ctx context.Context, op, query string, args ...any) ([]core.Category, error) {
	rows, err := t.query(ctx, op, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		c, err := scanCategoryRow(rows)
		if err != nil {
			return nil, translateError("scan category", err)
		}
		out = append(out, c)
	}
	return out, translateError(op, rows.Err())
}

func scanCategoryRow(row rowScanner) (core.Category, error) {
	var c core.Category
	err := row.Scan(&c.ID, &c.BudgetID, &c.MonthID, &c.CategoryNameID, &c.CategoryGroupID,
		&c.Period.Year, &c.Period.Month, &c.Name,
		&c.Budgeted.Cents, &c.Activity.Cents, &c.Balance.Cents, &c.Hidden, &c.Deleted)
	if err != nil {
		return core.Category{}, err
	}
	return c, nil
}
