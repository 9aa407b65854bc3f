// Package memory is an in-process ledger used for local development, demos
// and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"insights/internal/core"
	"insights/internal/ledger"
)

type Store struct {
	mu         sync.Mutex
	accounts   map[string]ledger.AccountRecord
	categories []core.Category
	txns       []core.Transaction
	txnOwner   map[string]string // transaction id -> user id
	budgets    map[string]core.Budget
}

var _ ledger.Source = (*Store)(nil)

func New() *Store {
	return &Store{
		accounts: make(map[string]ledger.AccountRecord),
		txnOwner: make(map[string]string),
		budgets:  make(map[string]core.Budget),
	}
}

// NewFromDataset loads every record of ds into a fresh store.
func NewFromDataset(ds *ledger.Dataset) (*Store, error) {
	s := New()
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	for _, a := range ds.Accounts {
		s.accounts[a.ID] = a
	}
	for _, c := range ds.Categories {
		s.categories = append(s.categories, core.Category{ID: c.ID, Name: c.Name, UserID: c.UserID})
	}
	for _, t := range ds.Transactions {
		account := s.accounts[t.AccountID]
		s.txns = append(s.txns, t.Transaction(account))
		s.txnOwner[t.ID] = account.UserID
	}
	for _, b := range ds.Budgets {
		budget := b.Budget()
		if budget.ID == "" {
			budget.ID = uuid.NewString()
		}
		s.budgets[b.UserID] = budget
	}
	return s, nil
}

// NewFromFile seeds the store from a dataset JSON file.
func NewFromFile(path string) (*Store, error) {
	ds, err := ledger.LoadDataset(path)
	if err != nil {
		return nil, err
	}
	return NewFromDataset(ds)
}

func (s *Store) ListTransactions(_ context.Context, userID string, filter ledger.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0)
	for _, t := range s.txns {
		if s.txnOwner[t.ID] != userID || !filter.Match(t) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) ListCategories(_ context.Context, userID string) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Category, 0)
	for _, c := range s.categories {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) GetOrCreateBudget(_ context.Context, userID string) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.budgets[userID]
	if !ok {
		b = core.Budget{ID: uuid.NewString(), UserID: userID, Granularity: core.Monthly, Entries: []core.BudgetEntry{}}
		s.budgets[userID] = b
	}
	b.Entries = append([]core.BudgetEntry(nil), b.Entries...)
	return b, nil
}

// AddTransaction appends a transaction on an existing account. The currency
// is taken from the account.
func (s *Store) AddTransaction(rec ledger.TransactionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[rec.AccountID]
	if !ok {
		return fmt.Errorf("add transaction %s: unknown account %q", rec.ID, rec.AccountID)
	}
	s.txns = append(s.txns, rec.Transaction(account))
	s.txnOwner[rec.ID] = account.UserID
	return nil
}
