package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"ledger/internal/core"
)

// LookupOrCreateCategoryName returns the label for name in the budget,
// creating it on first use.
func (t *Tx) LookupOrCreateCategoryName(ctx context.Context, budgetID, name string) (core.CategoryName, bool, error) {
	res, err := t.exec(ctx, "insert category name",
		`INSERT INTO category_names (id, budget_id, name) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
		uuid.NewString(), budgetID, name)
	if err != nil {
		return core.CategoryName{}, false, err
	}
	created, err := inserted("insert category name", res)
	if err != nil {
		return core.CategoryName{}, false, err
	}

	var n core.CategoryName
	err = t.queryRow(ctx,
		`SELECT id, budget_id, name FROM category_names WHERE budget_id = ? AND name = ?`, budgetID, name,
	).Scan(&n.ID, &n.BudgetID, &n.Name)
	if err != nil {
		return core.CategoryName{}, false, translateError(fmt.Sprintf("find category name %q", name), err)
	}
	return n, created, nil
}

func (t *Tx) GetCategoryName(ctx context.Context, id string) (core.CategoryName, error) {
	var n core.CategoryName
	err := t.queryRow(ctx,
		`SELECT id, budget_id, name FROM category_names WHERE id = ?`, id,
	).Scan(&n.ID, &n.BudgetID, &n.Name)
	if err != nil {
		return core.CategoryName{}, translateError(fmt.Sprintf("get category name %s", id), err)
	}
	return n, nil
}

func (t *Tx) ListCategoryNames(ctx context.Context, budgetID string) ([]core.CategoryName, error) {
	rows, err := t.query(ctx, "list category names",
		`SELECT id, budget_id, name FROM category_names WHERE budget_id = ? ORDER BY name, id`, budgetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.CategoryName
	for rows.Next() {
		var n core.CategoryName
		if err := rows.Scan(&n.ID, &n.BudgetID, &n.Name); err != nil {
			return nil, translateError("scan category name", err)
		}
		out = append(out, n)
	}
	return out, translateError("iterate category names", rows.Err())
}

// LookupOrCreateCategoryGroup matches group names case-insensitively among
// non-deleted groups.
func (t *Tx) LookupOrCreateCategoryGroup(ctx context.Context, budgetID, name string) (core.CategoryGroup, bool, error) {
	res, err := t.exec(ctx, "insert category group",
		`INSERT INTO category_groups (id, budget_id, name) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
		uuid.NewString(), budgetID, name)
	if err != nil {
		return core.CategoryGroup{}, false, err
	}
	created, err := inserted("insert category group", res)
	if err != nil {
		return core.CategoryGroup{}, false, err
	}

	g, err := scanCategoryGroup(t.queryRow(ctx,
		`SELECT id, budget_id, name, hidden, deleted FROM category_groups
		 WHERE budget_id = ? AND lower(name) = lower(?) AND deleted = FALSE`, budgetID, name))
	if err != nil {
		err = translateError(fmt.Sprintf("find category group %q", name), err)
		if core.KindOf(err) == core.KindNotFound {
			return core.CategoryGroup{}, false, fmt.Errorf("lookup category group %q: %w", name, core.ErrConflict)
		}
		return core.CategoryGroup{}, false, err
	}
	return g, created, nil
}

func (t *Tx) GetCategoryGroup(ctx context.Context, id string) (core.CategoryGroup, error) {
	g, err := scanCategoryGroup(t.queryRow(ctx,
		`SELECT id, budget_id, name, hidden, deleted FROM category_groups WHERE id = ? AND deleted = FALSE`, id))
	if err != nil {
		return core.CategoryGroup{}, translateError(fmt.Sprintf("get category group %s", id), err)
	}
	return g, nil
}

func (t *Tx) ListCategoryGroups(ctx context.Context, budgetID string) ([]core.CategoryGroup, error) {
	rows, err := t.query(ctx, "list category groups",
		`SELECT id, budget_id, name, hidden, deleted FROM category_groups
		 WHERE budget_id = ? AND deleted = FALSE ORDER BY lower(name), id`, budgetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.CategoryGroup
	for rows.Next() {
		g, err := scanCategoryGroup(rows)
		if err != nil {
			return nil, translateError("scan category group", err)
		}
		out = append(out, g)
	}
	return out, translateError("iterate category groups", rows.Err())
}

func scanCategoryGroup(row rowScanner) (core.CategoryGroup, error) {
	var g core.CategoryGroup
	if err := row.Scan(&g.ID, &g.BudgetID, &g.Name, &g.Hidden, &g.Deleted); err != nil {
		return core.CategoryGroup{}, err
	}
	return g, nil
}
