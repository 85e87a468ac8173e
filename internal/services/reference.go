package services

import (
	"context"
	"fmt"

	"ledger/internal/core"
	"ledger/internal/storage"
)

// transferPayeePrefix names the payee created alongside every account.
const transferPayeePrefix = "Transfer : "

func (s *LedgerService) CreateBudget(ctx context.Context, name string) (core.Budget, error) {
	name, err := core.NormalizeName(name)
	if err != nil {
		return core.Budget{}, err
	}
	b := core.Budget{ID: s.newID(), Name: name}
	if err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		return tx.InsertBudget(ctx, b)
	}); err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}
	return b, nil
}

func (s *LedgerService) GetBudget(ctx context.Context, id string) (core.Budget, error) {
	var b core.Budget
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		b, err = tx.GetBudget(ctx, id)
		return err
	})
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget %s: %w", id, err)
	}
	return b, nil
}

func (s *LedgerService) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	var out []core.Budget
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		out, err = tx.ListBudgets(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	return out, nil
}

func (s *LedgerService) RenameBudget(ctx context.Context, id, name string) (core.Budget, error) {
	name, err := core.NormalizeName(name)
	if err != nil {
		return core.Budget{}, err
	}
	var b core.Budget
	err = s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.RenameBudget(ctx, id, name); err != nil {
			return err
		}
		b, err = tx.GetBudget(ctx, id)
		return err
	})
	if err != nil {
		return core.Budget{}, fmt.Errorf("rename budget: %w", err)
	}
	return b, nil
}

// CreateAccount creates an account together with its transfer payee.
func (s *LedgerService) CreateAccount(ctx context.Context, budgetID, name string) (core.Account, error) {
	name, err := core.NormalizeName(name)
	if err != nil {
		return core.Account{}, err
	}

	var account core.Account
	err = s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := requireBudget(ctx, tx, budgetID); err != nil {
			return err
		}
		account = core.Account{ID: s.newID(), BudgetID: budgetID, Name: name}
		if err := tx.InsertAccount(ctx, account); err != nil {
			return err
		}
		payee := core.Payee{
			ID:                s.newID(),
			BudgetID:          budgetID,
			Name:              transferPayeePrefix + name,
			TransferAccountID: account.ID,
		}
		if err := tx.InsertPayee(ctx, payee); err != nil {
			return err
		}
		account.TransferPayeeID = payee.ID
		return tx.SetAccountTransferPayee(ctx, account.ID, payee.ID)
	})
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

func (s *LedgerService) ListAccounts(ctx context.Context, budgetID string) ([]core.Account, error) {
	var out []core.Account
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := requireBudget(ctx, tx, budgetID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListAccounts(ctx, budgetID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list accounts of %s: %w", budgetID, err)
	}
	return out, nil
}

// DeleteAccount soft-deletes an account with no active transactions, along
// with its transfer payee. Transactions of other accounts that still use the
// transfer payee block the deletion too.
func (s *LedgerService) DeleteAccount(ctx context.Context, id string) error {
	var budgetID string
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		account, err := tx.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if err := lockBudget(ctx, tx, account.BudgetID); err != nil {
			return err
		}
		n, err := tx.CountActiveTransactionsByAccount(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: account has %d active transactions", core.ErrConstraintViolation, n)
		}
		if account.TransferPayeeID != "" {
			n, err := tx.CountActiveTransactionsByPayee(ctx, account.TransferPayeeID)
			if err != nil {
				return err
			}
			if n > 0 {
				return fmt.Errorf("%w: transfer payee has %d active transactions", core.ErrConstraintViolation, n)
			}
			if err := tx.DeletePayee(ctx, account.TransferPayeeID); err != nil && core.KindOf(err) != core.KindNotFound {
				return err
			}
		}
		budgetID = account.BudgetID
		return tx.DeleteAccount(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete account %s: %w", id, err)
	}
	if s.summaries != nil {
		s.summaries.DeletePrefix(summaryPrefix(budgetID))
	}
	return nil
}

// CreatePayee creates a payee explicitly. Unlike the lookup performed while
// recording transactions, an existing name is a ConstraintViolation.
func (s *LedgerService) CreatePayee(ctx context.Context, budgetID, name string) (core.Payee, error) {
	name, err := core.NormalizeName(name)
	if err != nil {
		return core.Payee{}, err
	}
	var p core.Payee
	err = s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := requireBudget(ctx, tx, budgetID); err != nil {
			return err
		}
		p = core.Payee{ID: s.newID(), BudgetID: budgetID, Name: name}
		return tx.InsertPayee(ctx, p)
	})
	if err != nil {
		return core.Payee{}, fmt.Errorf("create payee %q: %w", name, err)
	}
	return p, nil
}

func (s *LedgerService) ListPayees(ctx context.Context, budgetID string) ([]core.Payee, error) {
	var out []core.Payee
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := requireBudget(ctx, tx, budgetID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListPayees(ctx, budgetID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list payees of %s: %w", budgetID, err)
	}
	return out, nil
}

func (s *LedgerService) RenamePayee(ctx context.Context, id, name string) (core.Payee, error) {
	name, err := core.NormalizeName(name)
	if err != nil {
		return core.Payee{}, err
	}
	var p core.Payee
	err = s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.RenamePayee(ctx, id, name); err != nil {
			return err
		}
		p, err = tx.GetPayee(ctx, id)
		return err
	})
	if err != nil {
		return core.Payee{}, fmt.Errorf("rename payee %s: %w", id, err)
	}
	return p, nil
}

// DeletePayee soft-deletes a payee no active transaction refers to. Transfer
// payees go away with their account.
func (s *LedgerService) DeletePayee(ctx context.Context, id string) error {
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		p, err := tx.GetPayee(ctx, id)
		if err != nil {
			return err
		}
		if p.TransferAccountID != "" {
			return fmt.Errorf("%w: transfer payee belongs to account %s", core.ErrConstraintViolation, p.TransferAccountID)
		}
		n, err := tx.CountActiveTransactionsByPayee(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: payee has %d active transactions", core.ErrConstraintViolation, n)
		}
		return tx.DeletePayee(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete payee %s: %w", id, err)
	}
	return nil
}

func (s *LedgerService) CreateCategoryGroup(ctx context.Context, budgetID, name string) (core.CategoryGroup, error) {
	name, err := core.NormalizeName(name)
	if err != nil {
		return core.CategoryGroup{}, err
	}
	var g core.CategoryGroup
	err = s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := requireBudget(ctx, tx, budgetID); err != nil {
			return err
		}
		g, _, err = tx.LookupOrCreateCategoryGroup(ctx, budgetID, name)
		return err
	})
	if err != nil {
		return core.CategoryGroup{}, fmt.Errorf("create category group %q: %w", name, err)
	}
	return g, nil
}

func (s *LedgerService) ListCategoryGroups(ctx context.Context, budgetID string) ([]core.CategoryGroup, error) {
	var out []core.CategoryGroup
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := requireBudget(ctx, tx, budgetID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListCategoryGroups(ctx, budgetID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list category groups of %s: %w", budgetID, err)
	}
	return out, nil
}

func (s *LedgerService) CreateCategoryName(ctx context.Context, budgetID, name string) (core.CategoryName, error) {
	name, err := core.NormalizeName(name)
	if err != nil {
		return core.CategoryName{}, err
	}
	var n core.CategoryName
	err = s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := requireBudget(ctx, tx, budgetID); err != nil {
			return err
		}
		n, _, err = tx.LookupOrCreateCategoryName(ctx, budgetID, name)
		return err
	})
	if err != nil {
		return core.CategoryName{}, fmt.Errorf("create category name %q: %w", name, err)
	}
	return n, nil
}

func (s *LedgerService) ListCategoryNames(ctx context.Context, budgetID string) ([]core.CategoryName, error) {
	var out []core.CategoryName
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := requireBudget(ctx, tx, budgetID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListCategoryNames(ctx, budgetID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list category names of %s: %w", budgetID, err)
	}
	return out, nil
}

func (s *LedgerService) SetCategoryHidden(ctx context.Context, categoryID string, hidden bool) (core.Category, error) {
	var c core.Category
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		if err := tx.SetCategoryHidden(ctx, categoryID, hidden); err != nil {
			return err
		}
		var err error
		c, err = tx.GetCategory(ctx, categoryID)
		return err
	})
	if err != nil {
		return core.Category{}, fmt.Errorf("set category %s hidden: %w", categoryID, err)
	}
	if s.summaries != nil {
		s.summaries.DeletePrefix(summaryPrefix(c.BudgetID))
	}
	return c, nil
}

// DeleteCategory soft-deletes a category row that carries no budget and no
// transactions. Its balance is the carried one, so later rows keep theirs.
func (s *LedgerService) DeleteCategory(ctx context.Context, categoryID string) error {
	var budgetID string
	err := s.store.WithTx(ctx, func(tx *storage.Tx) error {
		c, err := tx.GetCategory(ctx, categoryID)
		if err != nil {
			return err
		}
		if !c.Budgeted.IsZero() || !c.Activity.IsZero() {
			return fmt.Errorf("%w: category has budgeted %s and activity %s", core.ErrConstraintViolation, c.Budgeted, c.Activity)
		}
		txns, err := tx.ListTransactions(ctx, storage.TransactionFilter{BudgetID: c.BudgetID, CategoryID: c.ID, Limit: 1})
		if err != nil {
			return err
		}
		if len(txns) > 0 {
			return fmt.Errorf("%w: category has active transactions", core.ErrConstraintViolation)
		}
		budgetID = c.BudgetID
		return tx.DeleteCategory(ctx, categoryID)
	})
	if err != nil {
		return fmt.Errorf("delete category %s: %w", categoryID, err)
	}
	if s.summaries != nil {
		s.summaries.DeletePrefix(summaryPrefix(budgetID))
	}
	return nil
}
