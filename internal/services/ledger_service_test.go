package services

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/amqp"
	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/storage"
)

type recordingPublisher struct {
	mu        sync.Mutex
	events    []*amqp.LedgerEvent
	recompute []*amqp.RecomputeRequest
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, ev *amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) PublishRecompute(_ context.Context, req *amqp.RecomputeRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recompute = append(p.recompute, req)
	return nil
}

func (p *recordingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type ledgerFixture struct {
	svc       *LedgerService
	store     *storage.Store
	pub       *recordingPublisher
	budget    core.Budget
	account   core.Account
	savings   core.Account
	group     core.CategoryGroup
	groceries core.CategoryName
	dining    core.CategoryName
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	store, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return newLedgerFixtureOn(t, store)
}

func newLedgerFixtureOn(t *testing.T, store *storage.Store) *ledgerFixture {
	t.Helper()
	ctx := context.Background()

	var err error
	pub := &recordingPublisher{}
	f := &ledgerFixture{
		svc:   NewLedgerService(store, pub, cache.NewLRUCache[core.MonthSummary](64, time.Minute)),
		store: store,
		pub:   pub,
	}

	f.budget, err = f.svc.CreateBudget(ctx, "Home")
	require.NoError(t, err)
	f.account, err = f.svc.CreateAccount(ctx, f.budget.ID, "Checking")
	require.NoError(t, err)
	f.savings, err = f.svc.CreateAccount(ctx, f.budget.ID, "Savings")
	require.NoError(t, err)
	f.group, err = f.svc.CreateCategoryGroup(ctx, f.budget.ID, "Everyday Expenses")
	require.NoError(t, err)
	f.groceries, err = f.svc.CreateCategoryName(ctx, f.budget.ID, "Groceries")
	require.NoError(t, err)
	f.dining, err = f.svc.CreateCategoryName(ctx, f.budget.ID, "Dining")
	require.NoError(t, err)
	return f
}

func (f *ledgerFixture) income(t *testing.T, date core.Date, amount string) core.Transaction {
	t.Helper()
	txn, err := f.svc.CreateTransaction(context.Background(), CreateTransactionInput{
		BudgetID: f.budget.ID, Date: date, AccountID: f.account.ID,
		Amount: mustMoney(t, amount), PayeeName: "Employer",
	})
	require.NoError(t, err)
	return txn
}

func (f *ledgerFixture) spend(t *testing.T, date core.Date, amount string, name core.CategoryName) core.Transaction {
	t.Helper()
	txn, err := f.svc.CreateTransaction(context.Background(), CreateTransactionInput{
		BudgetID: f.budget.ID, Date: date, AccountID: f.account.ID,
		Amount: mustMoney(t, amount), PayeeName: "Grocer",
		CategoryNameID: name.ID, CategoryGroupID: f.group.ID,
	})
	require.NoError(t, err)
	return txn
}

func (f *ledgerFixture) summary(t *testing.T, year, month int) core.MonthSummary {
	t.Helper()
	s, err := f.svc.GetMonthSummary(context.Background(), f.budget.ID, year, month)
	require.NoError(t, err)
	return s
}

func categoryLine(t *testing.T, s core.MonthSummary, name string) core.CategorySummary {
	t.Helper()
	for _, c := range s.Categories {
		if c.Name == name {
			return c
		}
	}
	require.Failf(t, "category missing", "%s not in summary for %s", name, s.Period)
	return core.CategorySummary{}
}

func mustMoney(t *testing.T, s string) core.Money {
	t.Helper()
	m, err := core.ParseMoney(s)
	require.NoError(t, err)
	return m
}

func TestLedgerScenarios(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	// A
	f.income(t, core.NewDate(2025, 7, 1), "1000.00")
	assert.Equal(t, "1000.00", f.summary(t, 2025, 7).ToBeBudgeted.String())

	groceries, _, err := f.svc.EnsureCategory(ctx, f.budget.ID, f.groceries.ID, f.group.ID, core.Period{Year: 2025, Month: 7})
	require.NoError(t, err)
	groceries, err = f.svc.AssignCategoryBudget(ctx, groceries.ID, mustMoney(t, "200.00"))
	require.NoError(t, err)
	assert.Equal(t, "200.00", groceries.Budgeted.String())
	assert.Equal(t, "200.00", groceries.Balance.String())
	assert.Equal(t, "800.00", f.summary(t, 2025, 7).ToBeBudgeted.String())

	// B
	txn := f.spend(t, core.NewDate(2025, 7, 15), "-45.50", f.groceries)
	july := f.summary(t, 2025, 7)
	line := categoryLine(t, july, "Groceries")
	assert.Equal(t, "-45.50", line.Activity.String())
	assert.Equal(t, "154.50", line.Balance.String())
	assert.Equal(t, "-45.50", july.Activity.String())

	// C
	dining := f.dining.ID
	_, err = f.svc.UpdateTransaction(ctx, UpdateTransactionInput{ID: txn.ID, CategoryNameID: &dining, CategoryGroupID: f.group.ID})
	require.NoError(t, err)
	july = f.summary(t, 2025, 7)
	assert.Equal(t, "200.00", categoryLine(t, july, "Groceries").Balance.String())
	assert.Equal(t, "-45.50", categoryLine(t, july, "Dining").Balance.String())
	assert.Equal(t, "-45.50", july.Activity.String())

	// D
	groceriesID := f.groceries.ID
	_, err = f.svc.UpdateTransaction(ctx, UpdateTransactionInput{ID: txn.ID, CategoryNameID: &groceriesID})
	require.NoError(t, err)
	august, created, err := f.svc.EnsureCategory(ctx, f.budget.ID, f.groceries.ID, f.group.ID, core.Period{Year: 2025, Month: 8})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "154.50", august.Balance.String())
	assert.Equal(t, "800.00", f.summary(t, 2025, 8).ToBeBudgeted.String())

	assertConsistent(t, f)
}

func TestConcurrentCreatesInNewMonth(t *testing.T) {
	f := newLedgerFixture(t)
	const workers = 8

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.CreateTransaction(context.Background(), CreateTransactionInput{
				BudgetID: f.budget.ID, Date: core.NewDate(2025, 9, 1+i), AccountID: f.account.ID,
				Amount: core.Cents(-100), PayeeName: fmt.Sprintf("Shop %d", i%2),
				CategoryNameID: f.groceries.ID, CategoryGroupID: f.group.ID,
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.NoError(t, f.store.WithTx(context.Background(), func(tx *storage.Tx) error {
		months, err := tx.ListMonths(context.Background(), f.budget.ID)
		require.NoError(t, err)
		require.Len(t, months, 1)
		assert.Equal(t, int64(-100*workers), months[0].Activity.Cents)

		categories, err := tx.ListCategoriesByMonth(context.Background(), months[0].ID)
		require.NoError(t, err)
		require.Len(t, categories, 1)
		assert.Equal(t, int64(-100*workers), categories[0].Balance.Cents)

		payees, err := tx.ListPayees(context.Background(), f.budget.ID)
		require.NoError(t, err)
		// Two transfer payees plus the two shops.
		assert.Len(t, payees, 4)
		return nil
	}))
}

func TestCreateThenDeleteRestoresAggregates(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	f.income(t, core.NewDate(2025, 7, 1), "500.00")
	f.spend(t, core.NewDate(2025, 7, 2), "-10.00", f.groceries)
	before := snapshot(t, f)

	txn := f.spend(t, core.NewDate(2025, 7, 20), "-99.99", f.groceries)
	require.NotEqual(t, before, snapshot(t, f))

	require.NoError(t, f.svc.DeleteTransaction(ctx, txn.ID))
	assert.Equal(t, before, snapshot(t, f))

	err := f.svc.DeleteTransaction(ctx, txn.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = f.svc.GetTransaction(ctx, txn.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestUpdateMovesAcrossMonthsAndAccounts(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	f.income(t, core.NewDate(2025, 7, 1), "300.00")
	txn := f.spend(t, core.NewDate(2025, 7, 31), "-20.00", f.groceries)

	// A month change needs the group when the new month has no Groceries row.
	newDate := core.NewDate(2025, 8, 1)
	_, err := f.svc.UpdateTransaction(ctx, UpdateTransactionInput{ID: txn.ID, Date: &newDate})
	require.ErrorIs(t, err, core.ErrCategoryGroupRequired)

	amount := mustMoney(t, "-25.00")
	savings := f.savings.ID
	updated, err := f.svc.UpdateTransaction(ctx, UpdateTransactionInput{
		ID: txn.ID, Date: &newDate, Amount: &amount, AccountID: &savings, CategoryGroupID: f.group.ID,
	})
	require.NoError(t, err)
	assert.NotEqual(t, txn.CategoryID, updated.CategoryID)

	july := f.summary(t, 2025, 7)
	assert.True(t, july.Activity.IsZero())
	assert.True(t, categoryLine(t, july, "Groceries").Balance.IsZero())

	aug := f.summary(t, 2025, 8)
	assert.Equal(t, "-25.00", aug.Activity.String())
	assert.Equal(t, "-25.00", categoryLine(t, aug, "Groceries").Balance.String())

	accounts, err := f.svc.ListAccounts(ctx, f.budget.ID)
	require.NoError(t, err)
	balances := map[string]string{}
	for _, a := range accounts {
		balances[a.Name] = a.Balance.String()
	}
	assert.Equal(t, "300.00", balances["Checking"])
	assert.Equal(t, "-25.00", balances["Savings"])

	// Uncategorizing turns the outflow into negative inflow.
	empty := ""
	_, err = f.svc.UpdateTransaction(ctx, UpdateTransactionInput{ID: txn.ID, CategoryNameID: &empty})
	require.NoError(t, err)
	aug = f.summary(t, 2025, 8)
	assert.True(t, aug.Activity.IsZero())
	assert.Equal(t, "275.00", aug.ToBeBudgeted.String())

	assertConsistent(t, f)
}

func TestTransferPayeeIsNotIncome(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateTransaction(ctx, CreateTransactionInput{
		BudgetID: f.budget.ID, Date: core.NewDate(2025, 7, 3), AccountID: f.account.ID,
		Amount: mustMoney(t, "50.00"), PayeeName: "transfer : savings",
	})
	require.NoError(t, err)

	assert.True(t, f.summary(t, 2025, 7).ToBeBudgeted.IsZero())
	assertConsistent(t, f)
}

func TestIncrementalStateMatchesRecompute(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	names := []core.CategoryName{f.groceries, f.dining}
	var live []core.Transaction
	for i := 0; i < 60; i++ {
		date := core.NewDate(2025, 1+rng.Intn(6), 1+rng.Intn(28))
		switch op := rng.Intn(10); {
		case op < 4 || len(live) == 0:
			live = append(live, f.spend(t, date, fmt.Sprintf("-%d.%02d", rng.Intn(80), rng.Intn(100)), names[rng.Intn(2)]))
		case op < 5:
			live = append(live, f.income(t, date, fmt.Sprintf("%d.00", 100+rng.Intn(900))))
		case op < 7:
			i := rng.Intn(len(live))
			amount := core.Cents(-int64(rng.Intn(5000)))
			nameID := names[rng.Intn(2)].ID
			updated, err := f.svc.UpdateTransaction(ctx, UpdateTransactionInput{
				ID: live[i].ID, Date: &date, Amount: &amount, CategoryNameID: &nameID, CategoryGroupID: f.group.ID,
			})
			require.NoError(t, err)
			live[i] = updated
		case op < 8:
			i := rng.Intn(len(live))
			require.NoError(t, f.svc.DeleteTransaction(ctx, live[i].ID))
			live = append(live[:i], live[i+1:]...)
		default:
			c, _, err := f.svc.EnsureCategory(ctx, f.budget.ID, names[rng.Intn(2)].ID, f.group.ID, date.Period())
			require.NoError(t, err)
			_, err = f.svc.AssignCategoryBudget(ctx, c.ID, core.Cents(int64(rng.Intn(20000))))
			require.NoError(t, err)
		}
	}

	incremental := snapshot(t, f)
	_, err := f.svc.RecomputeBudget(ctx, f.budget.ID)
	require.NoError(t, err)
	assert.Equal(t, incremental, snapshot(t, f))
	assertConsistent(t, f)
}

func TestSummaryCacheInvalidatedOnCommit(t *testing.T) {
	f := newLedgerFixture(t)

	assert.True(t, f.summary(t, 2025, 7).ToBeBudgeted.IsZero())
	f.income(t, core.NewDate(2025, 7, 1), "10.00")
	assert.Equal(t, "10.00", f.summary(t, 2025, 7).ToBeBudgeted.String())

	// An unmaterialized month reports the carried figure without creating rows.
	later := f.summary(t, 2026, 1)
	assert.Empty(t, later.MonthID)
	assert.Equal(t, "10.00", later.ToBeBudgeted.String())

	assert.Equal(t, []string{amqp.EventTransactionCreated}, f.pub.eventTypes())
}

func TestGetMonthSummaryRejectsInvalidPeriod(t *testing.T) {
	f := newLedgerFixture(t)
	_, err := f.svc.GetMonthSummary(context.Background(), f.budget.ID, 2025, 13)
	assert.ErrorIs(t, err, core.ErrInvalidPeriod)
}

func TestCreateTransactionValidation(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   CreateTransactionInput
		kind core.Kind
	}{
		{"missing payee", CreateTransactionInput{BudgetID: f.budget.ID, Date: core.NewDate(2025, 7, 1), AccountID: f.account.ID}, core.KindInvalidInput},
		{"missing date", CreateTransactionInput{BudgetID: f.budget.ID, AccountID: f.account.ID, PayeeName: "x"}, core.KindInvalidInput},
		{"missing account", CreateTransactionInput{BudgetID: f.budget.ID, Date: core.NewDate(2025, 7, 1), PayeeName: "x"}, core.KindInvalidInput},
		{"unknown account", CreateTransactionInput{BudgetID: f.budget.ID, Date: core.NewDate(2025, 7, 1), AccountID: "nope", PayeeName: "x"}, core.KindNotFound},
		{"unknown budget", CreateTransactionInput{BudgetID: "nope", Date: core.NewDate(2025, 7, 1), AccountID: f.account.ID, PayeeName: "x"}, core.KindNotFound},
		{"new category without group", CreateTransactionInput{BudgetID: f.budget.ID, Date: core.NewDate(2025, 7, 1), AccountID: f.account.ID, PayeeName: "x", CategoryNameID: f.groceries.ID}, core.KindInvalidInput},
		{"amount out of range", CreateTransactionInput{BudgetID: f.budget.ID, Date: core.NewDate(2025, 7, 1), AccountID: f.account.ID, PayeeName: "x", Amount: core.Cents(core.MaxAbsCents + 1)}, core.KindInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateTransaction(ctx, tc.in)
			require.Error(t, err)
			assert.Equal(t, tc.kind, core.KindOf(err))
		})
	}

	// Failed creates leave nothing behind.
	txns, err := f.svc.ListTransactions(ctx, storage.TransactionFilter{BudgetID: f.budget.ID})
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestReferenceDataRules(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreatePayee(ctx, f.budget.ID, "Landlord")
	require.NoError(t, err)
	_, err = f.svc.CreatePayee(ctx, f.budget.ID, "LANDLORD")
	assert.ErrorIs(t, err, core.ErrConstraintViolation)

	_, err = f.svc.CreateAccount(ctx, f.budget.ID, "checking")
	assert.ErrorIs(t, err, core.ErrConstraintViolation)

	txn := f.income(t, core.NewDate(2025, 7, 1), "1.00")
	err = f.svc.DeleteAccount(ctx, f.account.ID)
	assert.ErrorIs(t, err, core.ErrConstraintViolation)
	require.NoError(t, f.svc.DeleteTransaction(ctx, txn.ID))
	require.NoError(t, f.svc.DeleteAccount(ctx, f.account.ID))

	payees, err := f.svc.ListPayees(ctx, f.budget.ID)
	require.NoError(t, err)
	for _, p := range payees {
		assert.NotEqual(t, f.account.TransferPayeeID, p.ID, "transfer payee removed with its account")
	}

	c, _, err := f.svc.EnsureCategory(ctx, f.budget.ID, f.dining.ID, f.group.ID, core.Period{Year: 2025, Month: 7})
	require.NoError(t, err)
	hidden, err := f.svc.SetCategoryHidden(ctx, c.ID, true)
	require.NoError(t, err)
	assert.True(t, hidden.Hidden)

	_, err = f.svc.AssignCategoryBudget(ctx, c.ID, core.Cents(100))
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.DeleteCategory(ctx, c.ID), core.ErrConstraintViolation)
	_, err = f.svc.AssignCategoryBudget(ctx, c.ID, core.Cents(0))
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteCategory(ctx, c.ID))

	renamed, err := f.svc.RenameBudget(ctx, f.budget.ID, "  Family   Home ")
	require.NoError(t, err)
	assert.Equal(t, "Family Home", renamed.Name)
}

func TestDeleteAccountKeepsTransferPayeeInUse(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	txn, err := f.svc.CreateTransaction(ctx, CreateTransactionInput{
		BudgetID: f.budget.ID, Date: core.NewDate(2025, 7, 3), AccountID: f.account.ID,
		Amount: mustMoney(t, "-50.00"), PayeeName: "Transfer : Savings",
	})
	require.NoError(t, err)
	require.Equal(t, f.savings.TransferPayeeID, txn.PayeeID)

	err = f.svc.DeleteAccount(ctx, f.savings.ID)
	require.ErrorIs(t, err, core.ErrConstraintViolation)
	assert.Contains(t, err.Error(), "transfer payee")

	smaller := mustMoney(t, "-20.00")
	_, err = f.svc.UpdateTransaction(ctx, UpdateTransactionInput{ID: txn.ID, Amount: &smaller})
	require.NoError(t, err, "transaction stays editable while the account is kept")

	require.NoError(t, f.svc.DeleteTransaction(ctx, txn.ID))
	require.NoError(t, f.svc.DeleteAccount(ctx, f.savings.ID))
	assertConsistent(t, f)
}

func TestReadErrorsNameTheOperation(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetBudget(ctx, "missing")
	require.ErrorIs(t, err, core.ErrNotFound)
	assert.Contains(t, err.Error(), "get budget missing")

	_, err = f.svc.ListAccounts(ctx, "missing")
	require.ErrorIs(t, err, core.ErrNotFound)
	assert.Contains(t, err.Error(), "list accounts of missing")

	_, err = f.svc.ListPayees(ctx, "missing")
	assert.Contains(t, err.Error(), "list payees of missing")
	_, err = f.svc.ListCategoryGroups(ctx, "missing")
	assert.Contains(t, err.Error(), "list category groups of missing")
	_, err = f.svc.ListCategoryNames(ctx, "missing")
	assert.Contains(t, err.Error(), "list category names of missing")
}

func TestRequestRecomputePublishes(t *testing.T) {
	f := newLedgerFixture(t)
	require.NoError(t, f.svc.RequestRecompute(context.Background(), f.budget.ID, "import"))
	require.Len(t, f.pub.recompute, 1)
	assert.Equal(t, f.budget.ID, f.pub.recompute[0].BudgetID)

	err := f.svc.RequestRecompute(context.Background(), "missing", "import")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

type ledgerSnapshot struct {
	Months     map[string]core.Month
	Categories map[string]core.Category
	Accounts   map[string]core.Money
}

func snapshot(t *testing.T, f *ledgerFixture) ledgerSnapshot {
	t.Helper()
	ctx := context.Background()
	snap := ledgerSnapshot{
		Months:     map[string]core.Month{},
		Categories: map[string]core.Category{},
		Accounts:   map[string]core.Money{},
	}
	require.NoError(t, f.store.WithTx(ctx, func(tx *storage.Tx) error {
		months, err := tx.ListMonths(ctx, f.budget.ID)
		require.NoError(t, err)
		for _, m := range months {
			snap.Months[m.Period.String()] = m
			categories, err := tx.ListCategoriesByMonth(ctx, m.ID)
			require.NoError(t, err)
			for _, c := range categories {
				snap.Categories[c.ID] = c
			}
		}
		accounts, err := tx.ListAccounts(ctx, f.budget.ID)
		require.NoError(t, err)
		for _, a := range accounts {
			snap.Accounts[a.ID] = a.Balance
		}
		return nil
	}))
	return snap
}

// assertConsistent checks the balance and activity invariants against the
// stored rows.
func assertConsistent(t *testing.T, f *ledgerFixture) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.WithTx(ctx, func(tx *storage.Tx) error {
		names, err := tx.ListCategoryNames(ctx, f.budget.ID)
		require.NoError(t, err)
		for _, n := range names {
			chain, err := tx.ListCategoryChain(ctx, f.budget.ID, n.ID)
			require.NoError(t, err)
			var prior core.Money
			for _, c := range chain {
				assert.Equal(t, prior.Add(c.Budgeted).Add(c.Activity), c.Balance, "%s %s", n.Name, c.Period)
				prior = c.Balance
			}
		}

		months, err := tx.ListMonths(ctx, f.budget.ID)
		require.NoError(t, err)
		for _, m := range months {
			budgeted, activity, err := tx.SumMonthCategories(ctx, m.ID)
			require.NoError(t, err)
			assert.Equal(t, budgeted, m.Budgeted, "%s budgeted", m.Period)
			assert.Equal(t, activity, m.Activity, "%s activity", m.Period)
		}
		return nil
	}))
}
