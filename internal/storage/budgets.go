package storage

import (
	"context"
	"fmt"

	"ledger/internal/core"
)

func (t *Tx) InsertBudget(ctx context.Context, b core.Budget) error {
	_, err := t.exec(ctx, "insert budget",
		`INSERT INTO budgets (id, name) VALUES (?, ?)`, b.ID, b.Name)
	return err
}

func (t *Tx) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	var b core.Budget
	err := t.queryRow(ctx,
		`SELECT id, name, deleted FROM budgets WHERE id = ? AND deleted = FALSE`, id,
	).Scan(&b.ID, &b.Name, &b.Deleted)
	if err != nil {
		return core.Budget{}, translateError(fmt.Sprintf("get budget %s", id), err)
	}
	return b, nil
}

// LockBudget serializes writers that create month or category rows of one
// budget on postgres. Sqlite transactions already hold the write lock.
func (t *Tx) LockBudget(ctx context.Context, id string) error {
	if t.dialect != DialectPostgres {
		return nil
	}
	var got string
	err := t.queryRow(ctx, t.lockBudgetSQL(), id).Scan(&got)
	return translateError(fmt.Sprintf("lock budget %s", id), err)
}

func (t *Tx) lockBudgetSQL() string {
	return `SELECT id FROM budgets WHERE id = ? AND deleted = FALSE` + t.forUpdate("budgets")
}

func (t *Tx) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	rows, err := t.query(ctx, "list budgets",
		`SELECT id, name, deleted FROM budgets WHERE deleted = FALSE ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var b core.Budget
		if err := rows.Scan(&b.ID, &b.Name, &b.Deleted); err != nil {
			return nil, translateError("scan budget", err)
		}
		out = append(out, b)
	}
	return out, translateError("iterate budgets", rows.Err())
}

func (t *Tx) RenameBudget(ctx context.Context, id, name string) error {
	return t.execOne(ctx, fmt.Sprintf("rename budget %s", id),
		`UPDATE budgets SET name = ? WHERE id = ? AND deleted = FALSE`, name, id)
}
