package storage

import (
	"context"
	"database/sql"
	"fmt"

	"ledger/internal/core"
)

const accountColumns = `id, budget_id, name, balance, transfer_payee_id, deleted`

func (t *Tx) InsertAccount(ctx context.Context, a core.Account) error {
	_, err := t.exec(ctx, "insert account",
		`INSERT INTO accounts (id, budget_id, name, balance, transfer_payee_id) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.BudgetID, a.Name, a.Balance.Cents, nullString(a.TransferPayeeID))
	return err
}

func (t *Tx) GetAccount(ctx context.Context, id string) (core.Account, error) {
	rows, err := t.query(ctx, "get account",
		`SELECT `+accountColumns+` FROM accounts WHERE id = ? AND deleted = FALSE`+t.forUpdate("accounts"), id)
	if err != nil {
		return core.Account{}, err
	}
	accounts, err := scanAccounts(rows)
	if err != nil {
		return core.Account{}, err
	}
	if len(accounts) == 0 {
		return core.Account{}, core.NotFoundf("account %s", id)
	}
	return accounts[0], nil
}

func (t *Tx) ListAccounts(ctx context.Context, budgetID string) ([]core.Account, error) {
	rows, err := t.query(ctx, "list accounts",
		`SELECT `+accountColumns+` FROM accounts WHERE budget_id = ? AND deleted = FALSE ORDER BY name, id`, budgetID)
	if err != nil {
		return nil, err
	}
	return scanAccounts(rows)
}

func (t *Tx) SetAccountTransferPayee(ctx context.Context, accountID, payeeID string) error {
	return t.execOne(ctx, fmt.Sprintf("set transfer payee of account %s", accountID),
		`UPDATE accounts SET transfer_payee_id = ? WHERE id = ? AND deleted = FALSE`, payeeID, accountID)
}

// AddAccountBalance applies delta atomically.
func (t *Tx) AddAccountBalance(ctx context.Context, id string, delta core.Money) error {
	if delta.IsZero() {
		return nil
	}
	return t.execOne(ctx, fmt.Sprintf("update balance of account %s", id),
		`UPDATE accounts SET balance = balance + ? WHERE id = ?`, delta.Cents, id)
}

func (t *Tx) SetAccountBalance(ctx context.Context, id string, balance core.Money) error {
	return t.execOne(ctx, fmt.Sprintf("set balance of account %s", id),
		`UPDATE accounts SET balance = ? WHERE id = ?`, balance.Cents, id)
}

func (t *Tx) DeleteAccount(ctx context.Context, id string) error {
	return t.execOne(ctx, fmt.Sprintf("delete account %s", id),
		`UPDATE accounts SET deleted = TRUE WHERE id = ? AND deleted = FALSE`, id)
}

func scanAccounts(rows *sql.Rows) ([]core.Account, error) {
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		var (
			a        core.Account
			transfer sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.BudgetID, &a.Name, &a.Balance.Cents, &transfer, &a.Deleted); err != nil {
			return nil, translateError("scan account", err)
		}
		a.TransferPayeeID = transfer.String
		out = append(out, a)
	}
	return out, translateError("iterate accounts", rows.Err())
}
