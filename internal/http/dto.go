package http

import (
	"strings"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

// amount is a request money value. Unlike core.Money it refuses sub-cent
// precision instead of rounding it away.
type amount struct {
	core.Money
}

func (a *amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return core.Invalidf("amount %q is not a number", s)
	}
	if !d.Truncate(2).Equal(d) {
		return core.Invalidf("amount %q has more than 2 decimal places", s)
	}
	m, err := core.MoneyFromDecimal(d)
	if err != nil {
		return err
	}
	a.Money = m
	return nil
}

// Requests.

type registerRequest struct {
	Login    string `json:"login" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"max=200"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type nameRequest struct {
	Name string `json:"name" validate:"required,notblank,max=200"`
}

type ensureCategoryRequest struct {
	CategoryNameID  string `json:"category_name_id" validate:"required"`
	CategoryGroupID string `json:"category_group_id" validate:"required"`
	Month           string `json:"month" validate:"required,yearmonth"`
}

type assignRequest struct {
	Budgeted *amount `json:"budgeted" validate:"required"`
}

type hiddenRequest struct {
	Hidden *bool `json:"hidden" validate:"required"`
}

type createTransactionRequest struct {
	Date            core.Date `json:"date"`
	AccountID       string    `json:"account_id" validate:"required"`
	Amount          *amount   `json:"amount" validate:"required"`
	Memo            string    `json:"memo" validate:"max=500"`
	Payee           string    `json:"payee" validate:"required,notblank,max=200"`
	CategoryNameID  string    `json:"category_name_id"`
	CategoryGroupID string    `json:"category_group_id" validate:"required_with=CategoryNameID"`
}

// updateTransactionRequest leaves absent fields unchanged. An empty
// category_name_id uncategorizes the transaction.
type updateTransactionRequest struct {
	Date            *core.Date `json:"date"`
	AccountID       *string    `json:"account_id" validate:"omitnil,min=1"`
	Amount          *amount    `json:"amount"`
	Memo            *string    `json:"memo" validate:"omitnil,max=500"`
	Payee           *string    `json:"payee" validate:"omitnil,notblank,max=200"`
	CategoryNameID  *string    `json:"category_name_id"`
	CategoryGroupID string     `json:"category_group_id"`
}

// Responses.

type userResponse struct {
	ID    string `json:"id"`
	Login string `json:"login"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type tokenResponse struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresAt string       `json:"expires_at"`
	User      userResponse `json:"user"`
}

type budgetResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type accountResponse struct {
	ID              string     `json:"id"`
	BudgetID        string     `json:"budget_id"`
	Name            string     `json:"name"`
	Balance         core.Money `json:"balance"`
	TransferPayeeID string     `json:"transfer_payee_id,omitempty"`
}

type payeeResponse struct {
	ID                string `json:"id"`
	BudgetID          string `json:"budget_id"`
	Name              string `json:"name"`
	TransferAccountID string `json:"transfer_account_id,omitempty"`
}

type categoryGroupResponse struct {
	ID       string `json:"id"`
	BudgetID string `json:"budget_id"`
	Name     string `json:"name"`
	Hidden   bool   `json:"hidden"`
}

type categoryNameResponse struct {
	ID       string `json:"id"`
	BudgetID string `json:"budget_id"`
	Name     string `json:"name"`
}

type categoryResponse struct {
	ID              string     `json:"id"`
	BudgetID        string     `json:"budget_id"`
	MonthID         string     `json:"month_id"`
	Month           string     `json:"month"`
	CategoryNameID  string     `json:"category_name_id"`
	CategoryGroupID string     `json:"category_group_id"`
	Name            string     `json:"name"`
	Budgeted        core.Money `json:"budgeted"`
	Activity        core.Money `json:"activity"`
	Balance         core.Money `json:"balance"`
	Hidden          bool       `json:"hidden"`
}

type categorySummaryResponse struct {
	CategoryID      string     `json:"category_id"`
	CategoryNameID  string     `json:"category_name_id"`
	CategoryGroupID string     `json:"category_group_id"`
	Name            string     `json:"name"`
	Budgeted        core.Money `json:"budgeted"`
	Activity        core.Money `json:"activity"`
	Balance         core.Money `json:"balance"`
	Hidden          bool       `json:"hidden"`
}

type monthSummaryResponse struct {
	BudgetID     string                    `json:"budget_id"`
	MonthID      string                    `json:"month_id,omitempty"`
	Month        string                    `json:"month"`
	Budgeted     core.Money                `json:"budgeted"`
	Activity     core.Money                `json:"activity"`
	ToBeBudgeted core.Money                `json:"to_be_budgeted"`
	Categories   []categorySummaryResponse `json:"categories"`
}

type transactionResponse struct {
	ID         string     `json:"id"`
	BudgetID   string     `json:"budget_id"`
	Date       core.Date  `json:"date"`
	Amount     core.Money `json:"amount"`
	Memo       string     `json:"memo"`
	AccountID  string     `json:"account_id"`
	PayeeID    string     `json:"payee_id"`
	CategoryID string     `json:"category_id,omitempty"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func newList[S any, T any](in []S, conv func(S) T) listResponse[T] {
	items := make([]T, 0, len(in))
	for _, v := range in {
		items = append(items, conv(v))
	}
	return listResponse[T]{Items: items, Count: len(items)}
}

func toUser(u core.User) userResponse {
	return userResponse{ID: u.ID, Login: u.Login, Email: u.Email, Name: u.Name}
}

func toBudget(b core.Budget) budgetResponse {
	return budgetResponse{ID: b.ID, Name: b.Name}
}

func toAccount(a core.Account) accountResponse {
	return accountResponse{ID: a.ID, BudgetID: a.BudgetID, Name: a.Name, Balance: a.Balance, TransferPayeeID: a.TransferPayeeID}
}

func toPayee(p core.Payee) payeeResponse {
	return payeeResponse{ID: p.ID, BudgetID: p.BudgetID, Name: p.Name, TransferAccountID: p.TransferAccountID}
}

func toCategoryGroup(g core.CategoryGroup) categoryGroupResponse {
	return categoryGroupResponse{ID: g.ID, BudgetID: g.BudgetID, Name: g.Name, Hidden: g.Hidden}
}

func toCategoryName(n core.CategoryName) categoryNameResponse {
	return categoryNameResponse{ID: n.ID, BudgetID: n.BudgetID, Name: n.Name}
}

func toCategory(c core.Category) categoryResponse {
	return categoryResponse{
		ID:              c.ID,
		BudgetID:        c.BudgetID,
		MonthID:         c.MonthID,
		Month:           c.Period.String(),
		CategoryNameID:  c.CategoryNameID,
		CategoryGroupID: c.CategoryGroupID,
		Name:            c.Name,
		Budgeted:        c.Budgeted,
		Activity:        c.Activity,
		Balance:         c.Balance,
		Hidden:          c.Hidden,
	}
}

func toMonthSummary(s core.MonthSummary) monthSummaryResponse {
	out := monthSummaryResponse{
		BudgetID:     s.BudgetID,
		MonthID:      s.MonthID,
		Month:        s.Period.String(),
		Budgeted:     s.Budgeted,
		Activity:     s.Activity,
		ToBeBudgeted: s.ToBeBudgeted,
		Categories:   make([]categorySummaryResponse, 0, len(s.Categories)),
	}
	for _, c := range s.Categories {
		out.Categories = append(out.Categories, categorySummaryResponse(c))
	}
	return out
}

func toTransaction(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:         t.ID,
		BudgetID:   t.BudgetID,
		Date:       t.Date,
		Amount:     t.Amount,
		Memo:       t.Memo,
		AccountID:  t.AccountID,
		PayeeID:    t.PayeeID,
		CategoryID: t.CategoryID,
	}
}
