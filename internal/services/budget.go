package services

import (
	"fmt"

	"github.com/shopspring/decimal"
	"insights/internal/core"
	"insights/internal/currency"
)

// MaterializeBudget combines stored budget entries with the actual amounts
// spent in the window. Declared entries come first in stored order, followed
// by a zero-target Expense row for every catalog category the budget does not
// mention, in catalog order.
//
// Declared entries count only transactions of their own type. Synthesized
// rows have no type, so every transaction of the category counts.
func MaterializeBudget(
	budget core.Budget,
	categories []core.Category,
	txns []core.Transaction,
	requested core.Granularity,
	display string,
	rates currency.RateTable,
) ([]core.BudgetReportRow, error) {
	names := categoryNames(categories)
	declared := make(map[string]struct{}, len(budget.Entries))

	rows := make([]core.BudgetReportRow, 0, len(budget.Entries)+len(categories))
	for _, entry := range budget.Entries {
		declared[entry.CategoryID] = struct{}{}

		entryType := entry.Type
		actual, err := actualFor(entry.CategoryID, &entryType, txns, display, rates)
		if err != nil {
			return nil, err
		}
		rows = append(rows, core.BudgetReportRow{
			CategoryID:   entry.CategoryID,
			CategoryName: nameFor(names, entry.CategoryID),
			Type:         entry.Type,
			Target:       core.ScaleTarget(entry.Target, budget.Granularity, requested),
			Actual:       actual,
		})
	}

	missing := make([]core.BudgetReportRow, 0, len(categories))
	for _, c := range categories {
		if _, ok := declared[c.ID]; ok {
			continue
		}
		actual, err := actualFor(c.ID, nil, txns, display, rates)
		if err != nil {
			return nil, err
		}
		missing = append(missing, core.BudgetReportRow{
			CategoryID:   c.ID,
			CategoryName: c.Name,
			Type:         core.Expense,
			Target:       decimal.Zero,
			Actual:       actual,
		})
	}

	return append(rows, missing...), nil
}

// actualFor sums the magnitude spent in one category. A nil txnType matches
// every type.
func actualFor(categoryID string, txnType *core.TransactionType, txns []core.Transaction, display string, rates currency.RateTable) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, t := range txns {
		if t.CategoryID == nil || *t.CategoryID != categoryID {
			continue
		}
		if txnType != nil && t.Type != *txnType {
			continue
		}
		amount, err := currency.Convert(t.Amount, t.Currency, display, rates)
		if err != nil {
			return decimal.Zero, fmt.Errorf("convert transaction %s: %w", t.ID, err)
		}
		sum = sum.Add(amount)
	}
	return core.Round2(sum.Abs()), nil
}
