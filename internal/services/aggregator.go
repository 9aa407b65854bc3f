// Package services provides business logic and orchestration services.
//
// This file groups a pre-filtered transaction slice by category and sums the
// converted amounts into a category report.
package services

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"insights/internal/core"
	"insights/internal/currency"
)

type categoryTotal struct {
	id  string
	sum decimal.Decimal
}

// groupByCategory sums converted amounts per category key, keeping groups in
// the order their first transaction was seen.
func groupByCategory(txns []core.Transaction, display string, rates currency.RateTable) ([]*categoryTotal, error) {
	index := make(map[string]*categoryTotal)
	order := make([]*categoryTotal, 0)
	for _, t := range txns {
		amount, err := currency.Convert(t.Amount, t.Currency, display, rates)
		if err != nil {
			return nil, fmt.Errorf("convert transaction %s: %w", t.ID, err)
		}
		key := t.CategoryKey()
		group, ok := index[key]
		if !ok {
			group = &categoryTotal{id: key}
			index[key] = group
			order = append(order, group)
		}
		group.sum = group.sum.Add(amount)
	}
	return order, nil
}

func categoryNames(categories []core.Category) map[string]string {
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	return names
}

func nameFor(names map[string]string, id string) string {
	if name, ok := names[id]; ok && id != core.UnknownCategoryID {
		return name
	}
	return core.UnknownCategoryName
}

// AggregateByCategory builds a category report over txns in the display
// currency. Rows are sorted by magnitude, largest first; ties keep first-seen
// order. Values and total are rounded to cents only on the way out.
func AggregateByCategory(txns []core.Transaction, categories []core.Category, display string, rates currency.RateTable) (core.CategoryReport, error) {
	groups, err := groupByCategory(txns, display, rates)
	if err != nil {
		return core.CategoryReport{}, err
	}

	for _, g := range groups {
		g.sum = g.sum.Abs()
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].sum.GreaterThan(groups[j].sum)
	})

	names := categoryNames(categories)
	report := core.CategoryReport{
		Categories: make([]core.CategoryReportRow, 0, len(groups)),
		Total:      decimal.Zero,
	}
	total := decimal.Zero
	for _, g := range groups {
		total = total.Add(g.sum)
		report.Categories = append(report.Categories, core.CategoryReportRow{
			CategoryID:   g.id,
			CategoryName: nameFor(names, g.id),
			Value:        core.Round2(g.sum),
		})
	}
	report.Total = core.Round2(total)
	return report, nil
}
