package google

import (
	"fmt"
	"strings"
	"time"

	"insights/internal/core"
	"insights/internal/ledger"
)

// Sheets are read by header name, case-insensitively, so columns may be
// reordered or extended freely.
const (
	colID          = "ID"
	colUser        = "User"
	colName        = "Name"
	colCurrency    = "Currency"
	colDate        = "Date"
	colAccount     = "Account"
	colAmount      = "Amount"
	colType        = "Type"
	colCategory    = "Category"
	colDeleted     = "Deleted"
	colGranularity = "Granularity"
	colTarget      = "Target"
)

// dateLayouts are tried in order for sheet date cells.
var dateLayouts = []string{time.DateOnly, "02/01/2006", "2/1/2006", time.RFC3339}

type sheetTable struct {
	headers []string
	rows    [][]string
}

func newSheetTable(values [][]interface{}) sheetTable {
	if len(values) == 0 {
		return sheetTable{}
	}
	t := sheetTable{headers: toStrings(values[0])}
	for _, row := range values[1:] {
		cols := toStrings(row)
		if isBlank(cols) {
			continue
		}
		t.rows = append(t.rows, cols)
	}
	return t
}

func (t sheetTable) require(names ...string) error {
	var missing []string
	for _, n := range names {
		if indexOf(t.headers, n) == -1 {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("unexpected header: missing %s; got headers=%v", strings.Join(missing, ","), t.headers)
	}
	return nil
}

func (t sheetTable) get(row []string, name string) string {
	return safeGet(row, indexOf(t.headers, name))
}

func parseAccounts(values [][]interface{}, defaultUser string) ([]ledger.AccountRecord, int, error) {
	t := newSheetTable(values)
	if err := t.require(colID, colCurrency); err != nil {
		return nil, 0, fmt.Errorf("accounts sheet: %w", err)
	}
	var (
		out     []ledger.AccountRecord
		skipped int
	)
	for _, row := range t.rows {
		cur, err := core.NormalizeCurrency(t.get(row, colCurrency))
		id := t.get(row, colID)
		if err != nil || id == "" {
			skipped++
			continue
		}
		out = append(out, ledger.AccountRecord{
			ID:       id,
			UserID:   orDefault(t.get(row, colUser), defaultUser),
			Name:     t.get(row, colName),
			Currency: cur,
		})
	}
	return out, skipped, nil
}

func parseCategories(values [][]interface{}, defaultUser string) ([]ledger.CategoryRecord, int, error) {
	t := newSheetTable(values)
	if err := t.require(colID, colName); err != nil {
		return nil, 0, fmt.Errorf("categories sheet: %w", err)
	}
	var (
		out     []ledger.CategoryRecord
		skipped int
	)
	seen := map[string]struct{}{}
	for _, row := range t.rows {
		id := t.get(row, colID)
		if id == "" || strings.HasPrefix(id, "#") {
			skipped++
			continue
		}
		if _, dup := seen[id]; dup {
			skipped++
			continue
		}
		seen[id] = struct{}{}
		out = append(out, ledger.CategoryRecord{
			ID:     id,
			UserID: orDefault(t.get(row, colUser), defaultUser),
			Name:   t.get(row, colName),
		})
	}
	return out, skipped, nil
}

// parseTransactions keeps only rows that reference a known account and carry
// a usable date, amount and type. The rest are counted as skipped.
func parseTransactions(values [][]interface{}, accounts []ledger.AccountRecord) ([]ledger.TransactionRecord, int, error) {
	t := newSheetTable(values)
	if err := t.require(colDate, colAccount, colAmount, colType); err != nil {
		return nil, 0, fmt.Errorf("transactions sheet: %w", err)
	}
	known := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		known[a.ID] = struct{}{}
	}

	var (
		out     []ledger.TransactionRecord
		skipped int
	)
	for i, row := range t.rows {
		account := t.get(row, colAccount)
		if _, ok := known[account]; !ok {
			skipped++
			continue
		}
		date, ok := parseSheetDate(t.get(row, colDate))
		if !ok {
			skipped++
			continue
		}
		amount, err := core.ParseAmount(t.get(row, colAmount))
		if err != nil {
			skipped++
			continue
		}
		typ, err := core.ParseTransactionType(t.get(row, colType))
		if err != nil {
			skipped++
			continue
		}

		rec := ledger.TransactionRecord{
			ID:        orDefault(t.get(row, colID), fmt.Sprintf("row:%d", i+2)),
			AccountID: account,
			Amount:    amount,
			Date:      date,
			Type:      string(typ),
			DeletedAt: parseDeleted(t.get(row, colDeleted)),
		}
		if category := t.get(row, colCategory); category != "" {
			rec.CategoryID = &category
		}
		out = append(out, rec)
	}
	return out, skipped, nil
}

// parseBudgets groups budget rows by user. The first non-empty granularity
// cell of a user wins; rows without a category only set the granularity.
func parseBudgets(values [][]interface{}, defaultUser string) ([]ledger.BudgetRecord, int, error) {
	t := newSheetTable(values)
	if len(t.headers) == 0 {
		return nil, 0, nil
	}
	if err := t.require(colCategory, colType, colTarget); err != nil {
		return nil, 0, fmt.Errorf("budget sheet: %w", err)
	}

	var (
		order   []string
		byUser  = map[string]*ledger.BudgetRecord{}
		skipped int
	)
	for _, row := range t.rows {
		user := orDefault(t.get(row, colUser), defaultUser)
		b, ok := byUser[user]
		if !ok {
			b = &ledger.BudgetRecord{ID: "sheet:" + user, UserID: user}
			byUser[user] = b
			order = append(order, user)
		}
		if g := t.get(row, colGranularity); g != "" && b.Granularity == "" {
			b.Granularity = string(core.ParseGranularity(g))
		}

		category := t.get(row, colCategory)
		if category == "" {
			continue
		}
		typ, err := core.ParseTransactionType(t.get(row, colType))
		if err != nil || typ == core.Transfer {
			skipped++
			continue
		}
		target, err := core.ParseAmount(t.get(row, colTarget))
		if err != nil {
			skipped++
			continue
		}
		b.Entries = append(b.Entries, ledger.EntryRecord{CategoryID: category, Type: string(typ), Target: target})
	}

	out := make([]ledger.BudgetRecord, 0, len(order))
	for _, user := range order {
		b := byUser[user]
		if b.Granularity == "" {
			b.Granularity = string(core.Monthly)
		}
		out = append(out, *b)
	}
	return out, skipped, nil
}

func parseSheetDate(s string) (core.Date, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return core.DateOf(t), true
		}
	}
	return core.Date{}, false
}

// parseDeleted treats any non-empty cell other than FALSE/0/no as a tombstone.
func parseDeleted(s string) *time.Time {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "false", "0", "no":
		return nil
	}
	if d, ok := parseSheetDate(s); ok {
		return &d.Time
	}
	marked := time.Time{}
	return &marked
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(target)) {
			return i
		}
	}
	return -1
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return strings.TrimSpace(arr[idx])
}

func isBlank(cols []string) bool {
	for _, c := range cols {
		if c != "" {
			return false
		}
	}
	return true
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
