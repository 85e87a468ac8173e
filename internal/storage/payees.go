package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"ledger/internal/core"
)

const payeeColumns = `id, budget_id, name, transfer_account_id, deleted`

func (t *Tx) InsertPayee(ctx context.Context, p core.Payee) error {
	_, err := t.exec(ctx, "insert payee",
		`INSERT INTO payees (id, budget_id, name, transfer_account_id) VALUES (?, ?, ?, ?)`,
		p.ID, p.BudgetID, p.Name, nullString(p.TransferAccountID))
	return err
}

// LookupOrCreatePayee returns the non-deleted payee whose name matches
// case-insensitively, creating it when absent. Two transactions racing on the
// same name both end up with the single surviving row.
func (t *Tx) LookupOrCreatePayee(ctx context.Context, budgetID, name string) (core.Payee, bool, error) {
	res, err := t.exec(ctx, "insert payee",
		`INSERT INTO payees (id, budget_id, name) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
		uuid.NewString(), budgetID, name)
	if err != nil {
		return core.Payee{}, false, err
	}
	created, err := inserted("insert payee", res)
	if err != nil {
		return core.Payee{}, false, err
	}

	p, err := t.FindPayeeByName(ctx, budgetID, name)
	if core.KindOf(err) == core.KindNotFound {
		// The conflicting row was deleted between the two statements.
		return core.Payee{}, false, fmt.Errorf("lookup payee %q: %w", name, core.ErrConflict)
	}
	if err != nil {
		return core.Payee{}, false, err
	}
	return p, created, nil
}

func (t *Tx) FindPayeeByName(ctx context.Context, budgetID, name string) (core.Payee, error) {
	p, err := t.scanPayee(ctx, fmt.Sprintf("find payee %q", name),
		`SELECT `+payeeColumns+` FROM payees WHERE budget_id = ? AND lower(name) = lower(?) AND deleted = FALSE`,
		budgetID, name)
	if err != nil {
		return core.Payee{}, err
	}
	return p, nil
}

func (t *Tx) GetPayee(ctx context.Context, id string) (core.Payee, error) {
	return t.scanPayee(ctx, fmt.Sprintf("get payee %s", id),
		`SELECT `+payeeColumns+` FROM payees WHERE id = ? AND deleted = FALSE`, id)
}

func (t *Tx) ListPayees(ctx context.Context, budgetID string) ([]core.Payee, error) {
	rows, err := t.query(ctx, "list payees",
		`SELECT `+payeeColumns+` FROM payees WHERE budget_id = ? AND deleted = FALSE ORDER BY lower(name), id`, budgetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Payee
	for rows.Next() {
		p, err := scanPayeeRow(rows)
		if err != nil {
			return nil, translateError("scan payee", err)
		}
		out = append(out, p)
	}
	return out, translateError("iterate payees", rows.Err())
}

func (t *Tx) RenamePayee(ctx context.Context, id, name string) error {
	return t.execOne(ctx, fmt.Sprintf("rename payee %s", id),
		`UPDATE payees SET name = ? WHERE id = ? AND deleted = FALSE`, name, id)
}

func (t *Tx) DeletePayee(ctx context.Context, id string) error {
	return t.execOne(ctx, fmt.Sprintf("delete payee %s", id),
		`UPDATE payees SET deleted = TRUE WHERE id = ? AND deleted = FALSE`, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (t *Tx) scanPayee(ctx context.Context, op, query string, args ...any) (core.Payee, error) {
	p, err := scanPayeeRow(t.queryRow(ctx, query, args...))
	if err != nil {
		return core.Payee{}, translateError(op, err)
	}
	return p, nil
}

func scanPayeeRow(row rowScanner) (core.Payee, error) {
	var (
		p        core.Payee
		transfer sql.NullString
	)
	if err := row.Scan(&p.ID, &p.BudgetID, &p.Name, &transfer, &p.Deleted); err != nil {
		return core.Payee{}, err
	}
	p.TransferAccountID = transfer.String
	return p, nil
}
