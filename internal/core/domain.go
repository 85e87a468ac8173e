package core

import (
	"fmt"
	"strings"
	"time"
)

type (
	// Date is a calendar day in UTC.
	Date struct {
		time.Time
	}

	// Period identifies one budget month.
	Period struct {
		Year  int
		Month int
	}

	Budget struct {
		ID      string
		Name    string
		Deleted bool
	}

	Account struct {
		ID              string
		BudgetID        string
		Name            string
		Balance         Money
		TransferPayeeID string
		Deleted         bool
	}

	// Payee is unique by case-insensitive name within a budget. A payee with a
	// TransferAccountID stands for money moving between two accounts.
	Payee struct {
		ID                string
		BudgetID          string
		Name              string
		TransferAccountID string
		Deleted           bool
	}

	// CategoryName is the month-independent label shared by every per-month
	// Category row of the same logical category.
	CategoryName struct {
		ID       string
		BudgetID string
		Name     string
	}

	CategoryGroup struct {
		ID       string
		BudgetID string
		Name     string
		Hidden   bool
		Deleted  bool
	}

	// Month aggregates one (budget, year, month). ToBeBudgeted is carried:
	// it includes every earlier month's unassigned inflow.
	Month struct {
		ID           string
		BudgetID     string
		Period       Period
		Budgeted     Money
		Activity     Money
		ToBeBudgeted Money
		Deleted      bool
	}

	// Category is the row of one CategoryName in one Month.
	//
	// Balance = previous month's Balance for the same CategoryName + Budgeted + Activity.
	Category struct {
		ID              string
		BudgetID        string
		MonthID         string
		CategoryNameID  string
		CategoryGroupID string
		Period          Period
		Name            string
		Budgeted        Money
		Activity        Money
		Balance         Money
		Hidden          bool
		Deleted         bool
	}

	Transaction struct {
		ID         string
		BudgetID   string
		Date       Date
		Amount     Money // negative = outflow
		Memo       string
		AccountID  string
		PayeeID    string
		CategoryID string // empty when uncategorized
		Deleted    bool
	}

	User struct {
		ID           string
		Login        string
		Email        string
		Name         string
		PasswordHash string
		Active       bool
	}

	// CategorySummary is one line of a month summary.
	CategorySummary struct {
		CategoryID      string
		CategoryNameID  string
		CategoryGroupID string
		Name            string
		Budgeted        Money
		Activity        Money
		Balance         Money
		Hidden          bool
	}

	// MonthSummary is the read model handed to collaborators for a budget month.
	MonthSummary struct {
		BudgetID     string
		MonthID      string
		Period       Period
		Budgeted     Money
		Activity     Money
		ToBeBudgeted Money
		Categories   []CategorySummary
	}
)

const dateLayout = "2006-01-02"

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	return nil
}

// Period returns the budget month the date falls in.
func (d Date) Period() Period {
	return Period{Year: d.Year(), Month: int(d.Time.Month())}
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	parsed, err := ParseDate(strings.Trim(string(b), `"`))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// NewPeriod validates and builds a Period.
func NewPeriod(year, month int) (Period, error) {
	p := Period{Year: year, Month: month}
	return p, p.Validate()
}

// ParsePeriod parses "YYYY-MM".
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return Period{Year: t.Year(), Month: int(t.Month())}, nil
}

func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("%w: month %d outside 1-12", ErrInvalidPeriod, p.Month)
	}
	if p.Year < 1 || p.Year > 9999 {
		return fmt.Errorf("%w: year %d", ErrInvalidPeriod, p.Year)
	}
	return nil
}

// Ordinal maps the period onto a monotonic month counter, used for ordering in SQL.
func (p Period) Ordinal() int {
	return p.Year*12 + p.Month
}

func (p Period) Before(o Period) bool {
	return p.Ordinal() < o.Ordinal()
}

func (p Period) Next() Period {
	if p.Month == 12 {
		return Period{Year: p.Year + 1, Month: 1}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

func (p Period) Prev() Period {
	if p.Month == 1 {
		return Period{Year: p.Year - 1, Month: 12}
	}
	return Period{Year: p.Year, Month: p.Month - 1}
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// NormalizeName trims a display name and collapses inner whitespace.
func NormalizeName(s string) (string, error) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "", ErrEmptyName
	}
	if len(s) > 200 {
		return "", Invalidf("name too long (max 200 characters)")
	}
	return s, nil
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.AccountID) == "" {
		return fmt.Errorf("%w: account_id", ErrMissingField)
	}
	if strings.TrimSpace(t.PayeeID) == "" {
		return fmt.Errorf("%w: payee_id", ErrMissingField)
	}
	if len(t.Memo) > 500 {
		return Invalidf("memo too long (max 500 characters)")
	}
	if t.Amount.Cents > MaxAbsCents || t.Amount.Cents < -MaxAbsCents {
		return fmt.Errorf("%w: %s out of range", ErrInvalidAmount, t.Amount)
	}
	return nil
}
