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

type CreateTransactionInput struct {
	BudgetID  string
	Date      core.Date
	AccountID string
	Amount    core.Money
	Memo      string
	PayeeName string
	// CategoryNameID is empty for uncategorized transactions.
	CategoryNameID string
	// CategoryGroupID is only consulted when the month's category row must be created.
	CategoryGroupID string
}

// UpdateTransactionInput carries PATCH semantics: nil fields stay unchanged.
// A CategoryNameID pointing at "" uncategorizes the transaction.
type UpdateTransactionInput struct {
	ID              string
	Date            *core.Date
	AccountID       *string
	Amount          *core.Money
	Memo            *string
	PayeeName       *string
	CategoryNameID  *string
	CategoryGroupID string
}

// CreateTransaction records a transaction and folds it into the category,
// month and account aggregates.
func (s *LedgerService) CreateTransaction(ctx context.Context, in CreateTransactionInput) (core.Transaction, error) {
	payeeName, err := core.NormalizeName(in.PayeeName)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("payee name: %w", err)
	}

	var txn core.Transaction
	err = s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := lockBudget(ctx, tx, in.BudgetID); err != nil {
			return err
		}
		account, err := s.accountInBudget(ctx, tx, in.BudgetID, in.AccountID)
		if err != nil {
			return err
		}
		payee, _, err := tx.LookupOrCreatePayee(ctx, in.BudgetID, payeeName)
		if err != nil {
			return err
		}

		txn = core.Transaction{
			ID:        s.newID(),
			BudgetID:  in.BudgetID,
			Date:      in.Date,
			Amount:    in.Amount,
			Memo:      in.Memo,
			AccountID: account.ID,
			PayeeID:   payee.ID,
		}
		if err := txn.Validate(); err != nil {
			return err
		}

		categoryID, err := s.resolveTarget(ctx, tx, in.BudgetID, in.Date, in.CategoryNameID, in.CategoryGroupID)
		if err != nil {
			return err
		}
		txn.CategoryID = categoryID

		if err := tx.InsertTransaction(ctx, txn); err != nil {
			return err
		}
		if err := s.engine.ReassignCategory(ctx, tx, allocation.Contribution{}, contributionOf(txn, payee)); err != nil {
			return err
		}
		return tx.AddAccountBalance(ctx, account.ID, txn.Amount)
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction created",
		log.FieldComponent, log.ComponentLedger,
		log.FieldOperation, log.OpCreate,
		log.FieldTransactionID, txn.ID,
		log.FieldBudgetID, txn.BudgetID,
		log.FieldAmountCents, txn.Amount.Cents,
		"categorized", txn.CategoryID != "")

	s.committed(ctx, amqp.NewLedgerEvent(amqp.EventTransactionCreated, txn.BudgetID, txn.ID, txn.Date.Period().String()))
	return txn, nil
}

// UpdateTransaction applies the supplied fields, reversing the transaction's
// old contribution and applying the new one in the same store transaction.
func (s *LedgerService) UpdateTransaction(ctx context.Context, in UpdateTransactionInput) (core.Transaction, error) {
	var payeeName string
	if in.PayeeName != nil {
		name, err := core.NormalizeName(*in.PayeeName)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("payee name: %w", err)
		}
		payeeName = name
	}

	var updated core.Transaction
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		old, err := s.lockedTransaction(ctx, tx, in.ID)
		if err != nil {
			return err
		}
		oldPayee, err := tx.GetPayee(ctx, old.PayeeID)
		if err != nil {
			return err
		}

		next := old
		payee := oldPayee
		if in.Date != nil {
			next.Date = *in.Date
		}
		if in.Amount != nil {
			next.Amount = *in.Amount
		}
		if in.Memo != nil {
			next.Memo = *in.Memo
		}
		if in.AccountID != nil {
			account, err := s.accountInBudget(ctx, tx, old.BudgetID, *in.AccountID)
			if err != nil {
				return err
			}
			next.AccountID = account.ID
		}
		if in.PayeeName != nil {
			payee, _, err = tx.LookupOrCreatePayee(ctx, old.BudgetID, payeeName)
			if err != nil {
				return err
			}
			next.PayeeID = payee.ID
		}
		if err := next.Validate(); err != nil {
			return err
		}

		// The category name survives a month change; the row is re-resolved in the new month.
		var nameID string
		switch {
		case in.CategoryNameID != nil:
			nameID = *in.CategoryNameID
		case old.CategoryID != "":
			category, err := tx.GetCategory(ctx, old.CategoryID)
			if err != nil {
				return err
			}
			nameID = category.CategoryNameID
		}
		next.CategoryID, err = s.resolveTarget(ctx, tx, old.BudgetID, next.Date, nameID, in.CategoryGroupID)
		if err != nil {
			return err
		}

		if err := tx.UpdateTransaction(ctx, next); err != nil {
			return err
		}
		if err := s.engine.ReassignCategory(ctx, tx, contributionOf(old, oldPayee), contributionOf(next, payee)); err != nil {
			return err
		}

		if next.AccountID == old.AccountID {
			if err := tx.AddAccountBalance(ctx, next.AccountID, next.Amount.Sub(old.Amount)); err != nil {
				return err
			}
		} else {
			if err := tx.AddAccountBalance(ctx, old.AccountID, old.Amount.Neg()); err != nil {
				return err
			}
			if err := tx.AddAccountBalance(ctx, next.AccountID, next.Amount); err != nil {
				return err
			}
		}

		updated = next
		return nil
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %s: %w", in.ID, err)
	}

	slog.InfoContext(ctx, "Transaction updated",
		log.FieldComponent, log.ComponentLedger,
		log.FieldOperation, log.OpUpdate,
		log.FieldTransactionID, updated.ID,
		log.FieldBudgetID, updated.BudgetID)

	s.committed(ctx, amqp.NewLedgerEvent(amqp.EventTransactionUpdated, updated.BudgetID, updated.ID, updated.Date.Period().String()))
	return updated, nil
}

// DeleteTransaction soft-deletes a transaction after reversing its
// contribution. Deleting an absent or already deleted transaction is NotFound.
func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) error {
	var deleted core.Transaction
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		old, err := s.lockedTransaction(ctx, tx, id)
		if err != nil {
			return err
		}
		payee, err := tx.GetPayee(ctx, old.PayeeID)
		if err != nil {
			return err
		}

		if err := s.engine.ReassignCategory(ctx, tx, contributionOf(old, payee), allocation.Contribution{}); err != nil {
			return err
		}
		if err := tx.AddAccountBalance(ctx, old.AccountID, old.Amount.Neg()); err != nil {
			return err
		}
		if err := tx.MarkTransactionDeleted(ctx, old.ID); err != nil {
			return err
		}
		deleted = old
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}

	slog.InfoContext(ctx, "Transaction deleted",
		log.FieldComponent, log.ComponentLedger,
		log.FieldOperation, log.OpDelete,
		log.FieldTransactionID, id,
		log.FieldBudgetID, deleted.BudgetID)

	s.committed(ctx, amqp.NewLedgerEvent(amqp.EventTransactionDeleted, deleted.BudgetID, deleted.ID, deleted.Date.Period().String()))
	return nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	var txn core.Transaction
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		txn, err = tx.GetTransaction(ctx, id)
		return err
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return txn, nil
}

func (s *LedgerService) ListTransactions(ctx context.Context, filter storage.TransactionFilter) ([]core.Transaction, error) {
	var out []core.Transaction
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := requireBudget(ctx, tx, filter.BudgetID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListTransactions(ctx, filter)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

// lockedTransaction reads id again once its budget is locked so concurrent
// edits of the same transaction see each other's result.
func (s *LedgerService) lockedTransaction(ctx context.Context, tx *storage.Tx, id string) (core.Transaction, error) {
	txn, err := tx.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if err := lockBudget(ctx, tx, txn.BudgetID); err != nil {
		return core.Transaction{}, err
	}
	return tx.GetTransaction(ctx, id)
}

// resolveTarget makes sure the month of date exists and, for categorized
// transactions, returns the category row of nameID in that month.
func (s *LedgerService) resolveTarget(ctx context.Context, tx *storage.Tx, budgetID string, date core.Date, nameID, groupID string) (string, error) {
	if err := date.Validate(); err != nil {
		return "", err
	}
	month, err := s.engine.Resolver().ResolveMonth(ctx, tx, budgetID, date.Period())
	if err != nil {
		return "", err
	}
	if nameID == "" {
		return "", nil
	}
	category, _, err := s.engine.Resolver().ResolveCategory(ctx, tx, budgetID, nameID, month, groupID)
	if err != nil {
		return "", err
	}
	return category.ID, nil
}

func (s *LedgerService) accountInBudget(ctx context.Context, tx *storage.Tx, budgetID, accountID string) (core.Account, error) {
	if accountID == "" {
		return core.Account{}, fmt.Errorf("%w: account_id", core.ErrMissingField)
	}
	account, err := tx.GetAccount(ctx, accountID)
	if err != nil {
		return core.Account{}, err
	}
	if account.BudgetID != budgetID {
		return core.Account{}, core.NotFoundf("account %s", accountID)
	}
	return account, nil
}
