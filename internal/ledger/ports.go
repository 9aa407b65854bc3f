// Package ledger defines the read ports the report engine consumes and the
// filter every transaction source honours.
package ledger

import (
	"context"
	"slices"

	"insights/internal/core"
)

// TransactionFilter narrows a user's ledger. Empty slices mean no restriction.
// Soft-deleted transactions never match.
type TransactionFilter struct {
	Range        core.DateRange
	Types        []core.TransactionType
	ExcludeTypes []core.TransactionType
	AccountIDs   []string
	CategoryIDs  []string
}

// Match applies the filter to a single transaction.
func (f TransactionFilter) Match(t core.Transaction) bool {
	if t.IsDeleted() {
		return false
	}
	if !f.Range.From.IsZero() && !f.Range.Contains(t.Date) {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, t.Type) {
		return false
	}
	if slices.Contains(f.ExcludeTypes, t.Type) {
		return false
	}
	if len(f.AccountIDs) > 0 && !slices.Contains(f.AccountIDs, t.AccountID) {
		return false
	}
	if len(f.CategoryIDs) > 0 {
		// uncategorized rows never match an explicit category scope
		if t.CategoryID == nil || !slices.Contains(f.CategoryIDs, *t.CategoryID) {
			return false
		}
	}
	return true
}

// Ports for outbound adapters.
type (
	TransactionSource interface {
		ListTransactions(ctx context.Context, userID string, filter TransactionFilter) ([]core.Transaction, error)
	}

	// CategorySource returns the user's live categories in catalog order.
	CategorySource interface {
		ListCategories(ctx context.Context, userID string) ([]core.Category, error)
	}

	// BudgetSource returns the user's single budget, creating the default
	// {Monthly, no entries} record on first access.
	BudgetSource interface {
		GetOrCreateBudget(ctx context.Context, userID string) (core.Budget, error)
	}

	Source interface {
		TransactionSource
		CategorySource
		BudgetSource
	}
)
