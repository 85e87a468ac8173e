package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"ledger/internal/core"
)

const transactionColumns = `id, budget_id, txn_date, amount, memo, account_id, payee_id, category_id, deleted`

// TransactionFilter narrows ListTransactions. Zero fields are ignored.
type TransactionFilter struct {
	BudgetID   string
	AccountID  string
	CategoryID string
	From       core.Date
	To         core.Date
	Limit      int
	Offset     int
}

func (t *Tx) InsertTransaction(ctx context.Context, txn core.Transaction) error {
	_, err := t.exec(ctx, "insert transaction",
		`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, FALSE)`,
		txn.ID, txn.BudgetID, txn.Date.String(), txn.Amount.Cents, txn.Memo,
		txn.AccountID, txn.PayeeID, nullString(txn.CategoryID))
	return err
}

// GetTransaction returns an active transaction, locking it on postgres.
func (t *Tx) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	txn, err := scanTransactionRow(t.queryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND deleted = FALSE`+t.forUpdate("transactions"), id))
	if err != nil {
		return core.Transaction{}, translateError(fmt.Sprintf("get transaction %s", id), err)
	}
	return txn, nil
}

// UpdateTransaction rewrites every mutable field of an active transaction.
func (t *Tx) UpdateTransaction(ctx context.Context, txn core.Transaction) error {
	return t.execOne(ctx, fmt.Sprintf("update transaction %s", txn.ID),
		`UPDATE transactions SET txn_date = ?, amount = ?, memo = ?, account_id = ?, payee_id = ?, category_id = ?
		 WHERE id = ? AND deleted = FALSE`,
		txn.Date.String(), txn.Amount.Cents, txn.Memo, txn.AccountID, txn.PayeeID, nullString(txn.CategoryID), txn.ID)
}

func (t *Tx) MarkTransactionDeleted(ctx context.Context, id string) error {
	return t.execOne(ctx, fmt.Sprintf("delete transaction %s", id),
		`UPDATE transactions SET deleted = TRUE WHERE id = ? AND deleted = FALSE`, id)
}

// ListTransactions returns active transactions, newest first.
func (t *Tx) ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error) {
	var (
		where = []string{"budget_id = ?", "deleted = FALSE"}
		args  = []any{f.BudgetID}
	)
	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.CategoryID != "" {
		where = append(where, "category_id = ?")
		args = append(args, f.CategoryID)
	}
	if !f.From.IsZero() {
		where = append(where, "txn_date >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		where = append(where, "txn_date <= ?")
		args = append(args, f.To.String())
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY txn_date DESC, created_at DESC, id`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := t.query(ctx, "list transactions", query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		txn, err := scanTransactionRow(rows)
		if err != nil {
			return nil, translateError("scan transaction", err)
		}
		out = append(out, txn)
	}
	return out, translateError("iterate transactions", rows.Err())
}

func (t *Tx) CountActiveTransactionsByAccount(ctx context.Context, accountID string) (int, error) {
	var n int
	err := t.queryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE account_id = ? AND deleted = FALSE`, accountID,
	).Scan(&n)
	if err != nil {
		return 0, translateError(fmt.Sprintf("count transactions of account %s", accountID), err)
	}
	return n, nil
}

func (t *Tx) CountActiveTransactionsByPayee(ctx context.Context, payeeID string) (int, error) {
	var n int
	err := t.queryRow(ctx,
		`SELECT COUNT(*) FROM transactions WHERE payee_id = ? AND deleted = FALSE`, payeeID,
	).Scan(&n)
	if err != nil {
		return 0, translateError(fmt.Sprintf("count transactions of payee %s", payeeID), err)
	}
	return n, nil
}

// SumCategoryActivity totals the active transactions pointing at one category row.
func (t *Tx) SumCategoryActivity(ctx context.Context, categoryID string) (core.Money, error) {
	var sum core.Money
	err := t.queryRow(ctx,
		`SELECT CAST(COALESCE(SUM(amount), 0) AS BIGINT) FROM transactions WHERE category_id = ? AND deleted = FALSE`,
		categoryID,
	).Scan(&sum.Cents)
	if err != nil {
		return core.Money{}, translateError(fmt.Sprintf("sum activity of category %s", categoryID), err)
	}
	return sum, nil
}

// SumAccountTransactions totals active transactions per account.
func (t *Tx) SumAccountTransactions(ctx context.Context, budgetID string) (map[string]core.Money, error) {
	rows, err := t.query(ctx, "sum account transactions",
		`SELECT account_id, CAST(COALESCE(SUM(amount), 0) AS BIGINT) FROM transactions
		 WHERE budget_id = ? AND deleted = FALSE GROUP BY account_id`, budgetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]core.Money)
	for rows.Next() {
		var (
			id  string
			sum core.Money
		)
		if err := rows.Scan(&id, &sum.Cents); err != nil {
			return nil, translateError("scan account sum", err)
		}
		out[id] = sum
	}
	return out, translateError("iterate account sums", rows.Err())
}

// SumInflowByPeriod totals uncategorized transactions whose payee is not a
// transfer payee, grouped by budget month.
func (t *Tx) SumInflowByPeriod(ctx context.Context, budgetID string) (map[core.Period]core.Money, error) {
	rows, err := t.query(ctx, "sum inflow",
		`SELECT t.txn_date, t.amount FROM transactions t
		 JOIN payees p ON p.id = t.payee_id
		 WHERE t.budget_id = ? AND t.deleted = FALSE AND t.category_id IS NULL AND p.transfer_account_id IS NULL`,
		budgetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[core.Period]core.Money)
	for rows.Next() {
		var (
			date   dateColumn
			amount int64
		)
		if err := rows.Scan(&date, &amount); err != nil {
			return nil, translateError("scan inflow", err)
		}
		p := date.d.Period()
		out[p] = out[p].Add(core.Cents(amount))
	}
	return out, translateError("iterate inflow", rows.Err())
}

func scanTransactionRow(row rowScanner) (core.Transaction, error) {
	var (
		txn      core.Transaction
		date     dateColumn
		category sql.NullString
	)
	err := row.Scan(&txn.ID, &txn.BudgetID, &date, &txn.Amount.Cents, &txn.Memo,
		&txn.AccountID, &txn.PayeeID, &category, &txn.Deleted)
	if err != nil {
		return core.Transaction{}, err
	}
	txn.Date = date.d
	txn.CategoryID = category.String
	return txn, nil
}
