package storage

import (
	"context"
	"fmt"

	"ledger/internal/core"
)

const monthColumns = `m.id, m.budget_id, m.year, m.month, m.budgeted, m.activity, m.to_be_budgeted, m.deleted`

// InsertMonthIfAbsent writes m unless a non-deleted month already holds its
// (budget, year, month) key.
func (t *Tx) InsertMonthIfAbsent(ctx context.Context, m core.Month) (bool, error) {
	res, err := t.exec(ctx, "insert month",
		`INSERT INTO months (id, budget_id, year, month, budgeted, activity, to_be_budgeted)
		 VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		m.ID, m.BudgetID, m.Period.Year, m.Period.Month, m.Budgeted.Cents, m.Activity.Cents, m.ToBeBudgeted.Cents)
	if err != nil {
		return false, err
	}
	return inserted("insert month", res)
}

// FindMonth returns the non-deleted month for the key, locking it on postgres.
func (t *Tx) FindMonth(ctx context.Context, budgetID string, p core.Period) (core.Month, error) {
	return t.scanMonth(ctx, fmt.Sprintf("find month %s", p),
		`SELECT `+monthColumns+` FROM months m
		 WHERE m.budget_id = ? AND m.year = ? AND m.month = ? AND m.deleted = FALSE`+t.forUpdate("m"),
		budgetID, p.Year, p.Month)
}

func (t *Tx) GetMonth(ctx context.Context, id string) (core.Month, error) {
	return t.scanMonth(ctx, fmt.Sprintf("get month %s", id),
		`SELECT `+monthColumns+` FROM months m WHERE m.id = ? AND m.deleted = FALSE`+t.forUpdate("m"), id)
}

// LatestMonthBefore returns the closest non-deleted month strictly before p.
func (t *Tx) LatestMonthBefore(ctx context.Context, budgetID string, p core.Period) (core.Month, error) {
	return t.scanMonth(ctx, fmt.Sprintf("find month before %s", p), t.latestMonthBeforeSQL(), budgetID, p.Ordinal())
}

// latestMonthBeforeSQL locks the row it returns on postgres so a month being
// created waits for writers of its predecessor and carries their result.
func (t *Tx) latestMonthBeforeSQL() string {
	return `SELECT ` + monthColumns + ` FROM months m
		 WHERE m.budget_id = ? AND m.deleted = FALSE AND (m.year * 12 + m.month) < ?
		 ORDER BY m.year DESC, m.month DESC LIMIT 1` + t.forUpdate("m")
}

// ListMonths returns the budget's non-deleted months in chronological order.
func (t *Tx) ListMonths(ctx context.Context, budgetID string) ([]core.Month, error) {
	rows, err := t.query(ctx, "list months",
		`SELECT `+monthColumns+` FROM months m
		 WHERE m.budget_id = ? AND m.deleted = FALSE ORDER BY m.year, m.month`, budgetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Month
	for rows.Next() {
		m, err := scanMonthRow(rows)
		if err != nil {
			return nil, translateError("scan month", err)
		}
		out = append(out, m)
	}
	return out, translateError("iterate months", rows.Err())
}

// AddMonthTotals applies the three deltas atomically.
func (t *Tx) AddMonthTotals(ctx context.Context, id string, budgeted, activity, toBeBudgeted core.Money) error {
	if budgeted.IsZero() && activity.IsZero() && toBeBudgeted.IsZero() {
		return nil
	}
	return t.execOne(ctx, fmt.Sprintf("update month %s", id),
		`UPDATE months SET budgeted = budgeted + ?, activity = activity + ?, to_be_budgeted = to_be_budgeted + ?
		 WHERE id = ? AND deleted = FALSE`,
		budgeted.Cents, activity.Cents, toBeBudgeted.Cents, id)
}

// ShiftToBeBudgetedAfter adds delta to the carried to_be_budgeted of every
// non-deleted month strictly after p.
func (t *Tx) ShiftToBeBudgetedAfter(ctx context.Context, budgetID string, p core.Period, delta core.Money) error {
	if delta.IsZero() {
		return nil
	}
	_, err := t.exec(ctx, fmt.Sprintf("shift to be budgeted after %s", p),
		`UPDATE months SET to_be_budgeted = to_be_budgeted + ?
		 WHERE budget_id = ? AND deleted = FALSE AND (year * 12 + month) > ?`,
		delta.Cents, budgetID, p.Ordinal())
	return err
}

func (t *Tx) SetMonthTotals(ctx context.Context, id string, budgeted, activity, toBeBudgeted core.Money) error {
	return t.execOne(ctx, fmt.Sprintf("set totals of month %s", id),
		`UPDATE months SET budgeted = ?, activity = ?, to_be_budgeted = ? WHERE id = ? AND deleted = FALSE`,
		budgeted.Cents, activity.Cents, toBeBudgeted.Cents, id)
}

func (t *Tx) scanMonth(ctx context.Context, op, query string, args ...any) (core.Month, error) {
	m, err := scanMonthRow(t.queryRow(ctx, query, args...))
	if err != nil {
		return core.Month{}, translateError(op, err)
	}
	return m, nil
}

func scanMonthRow(row rowScanner) (core.Month, error) {
	var m core.Month
	err := row.Scan(&m.ID, &m.BudgetID, &m.Period.Year, &m.Period.Month,
		&m.Budgeted.Cents, &m.Activity.Cents, &m.ToBeBudgeted.Cents, &m.Deleted)
	if err != nil {
		return core.Month{}, err
	}
	return m, nil
}
