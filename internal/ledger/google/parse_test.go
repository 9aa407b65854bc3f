package google

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"insights/internal/core"
	"insights/internal/ledger"
	"insights/internal/ledger/memory"
)

func accountsSheet() [][]interface{} {
	return [][]interface{}{
		{"ID", "User", "Name", "Currency"},
		{"checking", "", "Checking", "eur"},
		{"travel", "bob", "Travel", "USD"},
		{"broken", "", "Broken", "euro"},
		{},
	}
}

func TestParseAccounts(t *testing.T) {
	got, skipped, err := parseAccounts(accountsSheet(), "alice")
	if err != nil {
		t.Fatalf("parseAccounts() error = %v", err)
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	want := []ledger.AccountRecord{
		{ID: "checking", UserID: "alice", Name: "Checking", Currency: "EUR"},
		{ID: "travel", UserID: "bob", Name: "Travel", Currency: "USD"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d accounts, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("account[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParseAccountsMissingHeader(t *testing.T) {
	_, _, err := parseAccounts([][]interface{}{{"ID", "Name"}}, "alice")
	if err == nil {
		t.Fatal("expected error for missing Currency header")
	}
}

func TestParseCategories(t *testing.T) {
	values := [][]interface{}{
		{"name", "id"},
		{"Food", "food"},
		{"Duplicate", "food"},
		{"Comment", "#note"},
		{"Rent", "rent"},
	}
	got, skipped, err := parseCategories(values, "alice")
	if err != nil {
		t.Fatalf("parseCategories() error = %v", err)
	}
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
	if len(got) != 2 || got[0].Name != "Food" || got[1].ID != "rent" || got[1].UserID != "alice" {
		t.Fatalf("unexpected categories %+v", got)
	}
}

func TestParseTransactions(t *testing.T) {
	accounts, _, _ := parseAccounts(accountsSheet(), "alice")
	values := [][]interface{}{
		{"ID", "Date", "Account", "Amount", "Type", "Category", "Deleted"},
		{"t1", "2024-05-02", "checking", -12.5, "expense", "food", ""},
		{"", "03/05/2024", "travel", "-30,00", "Expense", "", "FALSE"},
		{"t3", "2024-05-04", "checking", "-800", "expense", "rent", "2024-05-05"},
		{"t4", "2024-05-04", "checking", "-1", "expense", "", "yes"},
		{"t5", "2024-05-04", "missing", "-1", "expense", "", ""},
		{"t6", "not a date", "checking", "-1", "expense", "", ""},
		{"t7", "2024-05-04", "checking", "abc", "expense", "", ""},
		{"t8", "2024-05-04", "checking", "-1", "refund", "", ""},
	}

	got, skipped, err := parseTransactions(values, accounts)
	if err != nil {
		t.Fatalf("parseTransactions() error = %v", err)
	}
	if skipped != 4 {
		t.Errorf("skipped = %d, want 4", skipped)
	}
	if len(got) != 4 {
		t.Fatalf("got %d transactions, want 4: %+v", len(got), got)
	}

	first := got[0]
	if !first.Amount.Equal(decimal.RequireFromString("-12.5")) || first.CategoryID == nil || *first.CategoryID != "food" {
		t.Errorf("unexpected first transaction %+v", first)
	}
	second := got[1]
	if second.ID != "row:3" {
		t.Errorf("generated id = %q, want row:3", second.ID)
	}
	if second.Date.String() != "2024-05-03" {
		t.Errorf("date = %s, want 2024-05-03", second.Date)
	}
	if second.CategoryID != nil || second.DeletedAt != nil {
		t.Errorf("expected uncategorized live transaction, got %+v", second)
	}
	if got[2].DeletedAt == nil || got[2].DeletedAt.Format(time.DateOnly) != "2024-05-05" {
		t.Errorf("expected dated tombstone, got %v", got[2].DeletedAt)
	}
	if got[3].DeletedAt == nil {
		t.Error("expected marker tombstone for non-date Deleted cell")
	}
}

func TestParseBudgets(t *testing.T) {
	values := [][]interface{}{
		{"User", "Granularity", "Category", "Type", "Target"},
		{"", "quarterly", "food", "expense", 300},
		{"", "yearly", "salary", "income", "12000"},
		{"bob", "", "", "", ""},
		{"", "", "moving", "transfer", "100"},
		{"", "", "rent", "expense", "lots"},
	}
	got, skipped, err := parseBudgets(values, "alice")
	if err != nil {
		t.Fatalf("parseBudgets() error = %v", err)
	}
	if skipped != 2 {
		t.Errorf("skipped = %d, want 2", skipped)
	}
	if len(got) != 2 {
		t.Fatalf("got %d budgets, want 2: %+v", len(got), got)
	}

	alice := got[0]
	if alice.UserID != "alice" || alice.ID != "sheet:alice" || alice.Granularity != "quarterly" {
		t.Errorf("unexpected alice budget %+v", alice)
	}
	if len(alice.Entries) != 2 || alice.Entries[1].Type != "income" || !alice.Entries[1].Target.Equal(decimal.NewFromInt(12000)) {
		t.Errorf("unexpected alice entries %+v", alice.Entries)
	}
	if got[1].UserID != "bob" || got[1].Granularity != "monthly" || len(got[1].Entries) != 0 {
		t.Errorf("unexpected bob budget %+v", got[1])
	}
}

func TestParseBudgetsEmptySheet(t *testing.T) {
	got, skipped, err := parseBudgets(nil, "alice")
	if err != nil || skipped != 0 || got != nil {
		t.Fatalf("parseBudgets(nil) = %v, %d, %v", got, skipped, err)
	}
}

func TestBuildDatasetFeedsMemoryStore(t *testing.T) {
	txns := [][]interface{}{
		{"Date", "Account", "Amount", "Type", "Category"},
		{"2024-05-02", "checking", "-10", "expense", "food"},
		{"2024-05-02", "travel", "-5", "expense", "food"},
	}
	categories := [][]interface{}{{"ID", "Name"}, {"food", "Food"}}

	ds, skipped, err := buildDataset(accountsSheet(), txns, categories, nil, "alice")
	if err != nil {
		t.Fatalf("buildDataset() error = %v", err)
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	store, err := memory.NewFromDataset(ds)
	if err != nil {
		t.Fatalf("NewFromDataset() error = %v", err)
	}

	got, err := store.ListTransactions(context.Background(), "alice", ledger.TransactionFilter{Types: []core.TransactionType{core.Expense}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Currency != "EUR" {
		t.Fatalf("expected alice's EUR transaction only, got %+v", got)
	}
}

func TestClientServesCachedSnapshot(t *testing.T) {
	ds := &ledger.Dataset{
		Accounts:   []ledger.AccountRecord{{ID: "a", UserID: "alice", Currency: "EUR"}},
		Categories: []ledger.CategoryRecord{{ID: "food", UserID: "alice", Name: "Food"}},
	}
	store, err := memory.NewFromDataset(ds)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	c := &Client{
		cfg:       withDefaults(Config{SpreadsheetID: "sheet"}),
		snapshot:  store,
		expiresAt: now.Add(time.Minute),
		now:       func() time.Time { return now },
	}

	cats, err := c.ListCategories(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ListCategories() error = %v", err)
	}
	if len(cats) != 1 || cats[0].Name != "Food" {
		t.Fatalf("unexpected categories %+v", cats)
	}

	c.Refresh()
	if _, err := c.ListCategories(context.Background(), "alice"); err == nil {
		t.Fatal("expected error once the snapshot expired without a service")
	}
}
