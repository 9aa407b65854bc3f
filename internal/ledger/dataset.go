package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"insights/internal/core"
)

// Dataset is the JSON seed format shared by the memory store and the SQLite
// importer. Transactions carry no currency; they inherit their account's.
type Dataset struct {
	Accounts     []AccountRecord     `json:"accounts"`
	Categories   []CategoryRecord    `json:"categories"`
	Transactions []TransactionRecord `json:"transactions"`
	Budgets      []BudgetRecord      `json:"budgets"`
}

type AccountRecord struct {
	ID       string `json:"id"`
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

type CategoryRecord struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type TransactionRecord struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"accountId"`
	CategoryID  *string         `json:"categoryId,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Date        core.Date       `json:"date"`
	Type        string          `json:"type"`
	Description string          `json:"description,omitempty"`
	DeletedAt   *time.Time      `json:"deletedAt,omitempty"`
}

type BudgetRecord struct {
	ID          string        `json:"id,omitempty"`
	UserID      string        `json:"userId"`
	Granularity string        `json:"granularity"`
	Entries     []EntryRecord `json:"entries"`
}

type EntryRecord struct {
	CategoryID string          `json:"categoryId"`
	Type       string          `json:"type"`
	Target     decimal.Decimal `json:"target"`
}

// LoadDataset reads and validates a seed file.
func LoadDataset(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var ds Dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("decode dataset %s: %w", path, err)
	}
	if err := ds.Validate(); err != nil {
		return nil, fmt.Errorf("validate dataset %s: %w", path, err)
	}
	return &ds, nil
}

// Validate checks references and enum values so adapters can trust the data.
func (ds *Dataset) Validate() error {
	accounts := make(map[string]struct{}, len(ds.Accounts))
	for _, a := range ds.Accounts {
		if a.ID == "" || a.UserID == "" {
			return fmt.Errorf("account %q: id and userId are required", a.ID)
		}
		if _, err := core.NormalizeCurrency(a.Currency); err != nil {
			return fmt.Errorf("account %s: %w", a.ID, err)
		}
		accounts[a.ID] = struct{}{}
	}
	for _, c := range ds.Categories {
		if c.ID == "" || c.UserID == "" {
			return fmt.Errorf("category %q: id and userId are required", c.ID)
		}
	}
	for _, t := range ds.Transactions {
		if _, ok := accounts[t.AccountID]; !ok {
			return fmt.Errorf("transaction %s: unknown account %q", t.ID, t.AccountID)
		}
		if _, err := core.ParseTransactionType(t.Type); err != nil {
			return fmt.Errorf("transaction %s: %w", t.ID, err)
		}
		if err := t.Date.Validate(); err != nil {
			return fmt.Errorf("transaction %s: %w", t.ID, err)
		}
	}
	for _, b := range ds.Budgets {
		if b.UserID == "" {
			return fmt.Errorf("budget %q: userId is required", b.ID)
		}
		for _, e := range b.Entries {
			typ, err := core.ParseTransactionType(e.Type)
			if err != nil || typ == core.Transfer {
				return fmt.Errorf("budget %s entry %s: %w", b.UserID, e.CategoryID, core.ErrInvalidTransactionType)
			}
		}
	}
	return nil
}

// Transaction resolves a record against its account.
func (t TransactionRecord) Transaction(account AccountRecord) core.Transaction {
	typ, _ := core.ParseTransactionType(t.Type)
	cur, _ := core.NormalizeCurrency(account.Currency)
	return core.Transaction{
		ID:         t.ID,
		Amount:     t.Amount,
		Currency:   cur,
		Date:       core.DateOf(t.Date.Time),
		Type:       typ,
		CategoryID: t.CategoryID,
		AccountID:  t.AccountID,
		DeletedAt:  t.DeletedAt,
	}
}

// Budget converts a record to the domain form.
func (b BudgetRecord) Budget() core.Budget {
	budget := core.Budget{
		ID:          b.ID,
		UserID:      b.UserID,
		Granularity: core.ParseGranularity(b.Granularity),
		Entries:     make([]core.BudgetEntry, 0, len(b.Entries)),
	}
	for _, e := range b.Entries {
		typ, _ := core.ParseTransactionType(e.Type)
		budget.Entries = append(budget.Entries, core.BudgetEntry{
			CategoryID: e.CategoryID,
			Type:       typ,
			Target:     e.Target,
		})
	}
	return budget
}
