package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income   TransactionType = "income"
	Expense  TransactionType = "expense"
	Transfer TransactionType = "transfer"
)

const (
	Monthly   Granularity = "monthly"
	Quarterly Granularity = "quarterly"
	Yearly    Granularity = "yearly"
)

// UnknownCategoryID groups uncategorized transactions in reports.
const (
	UnknownCategoryID   = "unknown"
	UnknownCategoryName = "Unknown"
)

// DefaultCurrency is used when a report request names no currency.
const DefaultCurrency = "EUR"

type (
	TransactionType string

	Granularity string

	Date struct {
		time.Time
	}

	Transaction struct {
		ID         string
		Amount     decimal.Decimal // signed
		Currency   string          // inherited from the account
		Date       Date
		Type       TransactionType
		CategoryID *string
		AccountID  string
		DeletedAt  *time.Time
	}

	Category struct {
		ID     string
		Name   string
		UserID string
	}

	Account struct {
		ID       string
		UserID   string
		Name     string
		Currency string
	}

	BudgetEntry struct {
		CategoryID string
		Type       TransactionType
		Target     decimal.Decimal // in the budget's own granularity
	}

	Budget struct {
		ID          string
		UserID      string
		Granularity Granularity
		Entries     []BudgetEntry
	}

	CategoryReportRow struct {
		CategoryID   string          `json:"categoryId"`
		CategoryName string          `json:"categoryName"`
		Value        decimal.Decimal `json:"value"`
	}

	CategoryReport struct {
		Categories []CategoryReportRow `json:"categories"`
		Total      decimal.Decimal     `json:"total"`
	}

	BudgetReportRow struct {
		CategoryID   string          `json:"categoryId"`
		CategoryName string          `json:"categoryName"`
		Type         TransactionType `json:"type"`
		Target       decimal.Decimal `json:"target"`
		Actual       decimal.Decimal `json:"actual"`
	}

	BudgetReport struct {
		BudgetID    string            `json:"budgetId"`
		Granularity Granularity       `json:"granularity"`
		Currency    string            `json:"currency"`
		From        Date              `json:"from"`
		Until       Date              `json:"until"`
		Entries     []BudgetReportRow `json:"entries"`
	}
)

var (
	ErrInvalidDay             = errors.New("invalid day")
	ErrInvalidMonth           = errors.New("invalid month")
	ErrInvalidDate            = errors.New("invalid date")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrInvalidGranularity     = errors.New("invalid granularity")
	ErrInvalidCurrency        = errors.New("invalid currency")
)

// ParseTransactionType accepts income, expense and transfer in any case.
func ParseTransactionType(s string) (TransactionType, error) {
	switch t := TransactionType(strings.ToLower(strings.TrimSpace(s))); t {
	case Income, Expense, Transfer:
		return t, nil
	}
	return "", ErrInvalidTransactionType
}

func (t TransactionType) String() string {
	return string(t)
}

// ParseGranularity never fails: anything unrecognised is Monthly.
func ParseGranularity(s string) Granularity {
	g, err := ParseGranularityStrict(s)
	if err != nil {
		return Monthly
	}
	return g
}

// ParseGranularityStrict is ParseGranularity for user-facing input where a
// typo should be reported instead of silently widened to a month.
func ParseGranularityStrict(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case Monthly, Quarterly, Yearly:
		return g, nil
	}
	return "", ErrInvalidGranularity
}

func (g Granularity) IsValid() bool {
	_, err := ParseGranularityStrict(string(g))
	return err == nil
}

func (g Granularity) String() string {
	return string(g)
}

// NormalizeCurrency upper-cases a three letter ISO code.
func NormalizeCurrency(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 3 {
		return "", ErrInvalidCurrency
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return "", ErrInvalidCurrency
		}
	}
	return s, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return Date{Time: time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDate reads a YYYY-MM-DD calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return d.Format(time.DateOnly)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		// accept full timestamps too
		t, terr := time.Parse(time.RFC3339, s)
		if terr != nil {
			return err
		}
		parsed = DateOf(t)
	}
	*d = parsed
	return nil
}

// IsDeleted reports whether the transaction carries a tombstone.
func (t Transaction) IsDeleted() bool {
	return t.DeletedAt != nil
}

// CategoryKey is the grouping key used by reports.
func (t Transaction) CategoryKey() string {
	if t.CategoryID == nil || *t.CategoryID == "" {
		return UnknownCategoryID
	}
	return *t.CategoryID
}
