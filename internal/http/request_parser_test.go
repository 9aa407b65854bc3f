package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"testing"

	"insights/internal/core"
	"insights/internal/services"
)

type categoryQuery = services.CategoryReportQuery

func TestParseCategoryReportQuery(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr error
		check   func(t *testing.T, q categoryQuery)
	}{
		{
			name:    "type is required",
			query:   "date=2024-05-15",
			wantErr: core.ErrInvalidTransactionType,
		},
		{
			name:    "unknown type",
			query:   "type=refund",
			wantErr: core.ErrInvalidTransactionType,
		},
		{
			name:    "bad date",
			query:   "type=expense&date=15/05/2024",
			wantErr: core.ErrInvalidDate,
		},
		{
			name:    "half window",
			query:   "type=expense&from=2024-05-01",
			wantErr: core.ErrInvalidDate,
		},
		{
			name:    "inverted window",
			query:   "type=expense&from=2024-05-31&until=2024-05-01",
			wantErr: core.ErrInvalidDate,
		},
		{
			name:    "bad currency",
			query:   "type=expense&currency=euro",
			wantErr: core.ErrInvalidCurrency,
		},
		{
			name:  "defaults",
			query: "type=EXPENSE",
			check: func(t *testing.T, q categoryQuery) {
				if q.Type != core.Expense || !q.DateReference.IsZero() || q.Granularity != core.Monthly || q.Range != nil || q.Currency != "" {
					t.Errorf("unexpected defaults %+v", q)
				}
			},
		},
		{
			name:  "full query",
			query: "type=income&date=2024-05-15&granularity=quarterly&account=a1,a2&account=a3&category=food&category=food&currency=usd",
			check: func(t *testing.T, q categoryQuery) {
				if q.DateReference.Format("2006-01-02") != "2024-05-15" || q.Granularity != core.Quarterly {
					t.Errorf("unexpected reference %+v", q)
				}
				if !reflect.DeepEqual(q.AccountIDs, []string{"a1", "a2", "a3"}) {
					t.Errorf("AccountIDs = %v", q.AccountIDs)
				}
				if !reflect.DeepEqual(q.CategoryIDs, []string{"food"}) {
					t.Errorf("CategoryIDs = %v", q.CategoryIDs)
				}
				if q.Currency != "USD" {
					t.Errorf("Currency = %q, want USD", q.Currency)
				}
			},
		},
		{
			name:  "explicit window",
			query: "type=expense&from=2024-01-10&until=2024-02-20",
			check: func(t *testing.T, q categoryQuery) {
				if q.Range == nil || q.Range.From.String() != "2024-01-10" || q.Range.Until.String() != "2024-02-20" {
					t.Errorf("Range = %+v", q.Range)
				}
			},
		},
		{
			name:  "unknown granularity falls back to monthly",
			query: "type=expense&granularity=weekly",
			check: func(t *testing.T, q categoryQuery) {
				if q.Granularity != core.Monthly {
					t.Errorf("Granularity = %q, want monthly", q.Granularity)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatal(err)
			}
			q, err := ParseCategoryReportQuery(values)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			tt.check(t, q)
		})
	}
}

func TestParseBudgetQuery(t *testing.T) {
	q, err := ParseBudgetQuery(url.Values{})
	if err != nil {
		t.Fatalf("ParseBudgetQuery() error = %v", err)
	}
	if !q.DateReference.IsZero() || q.Granularity != "" || q.Currency != "" {
		t.Errorf("empty query should keep defaults, got %+v", q)
	}

	q, err = ParseBudgetQuery(url.Values{"date": {"2024-05-15"}, "granularity": {"Yearly"}, "currency": {"chf"}})
	if err != nil {
		t.Fatalf("ParseBudgetQuery() error = %v", err)
	}
	if q.Granularity != core.Yearly || q.Currency != "CHF" || q.DateReference.Day() != 15 {
		t.Errorf("unexpected query %+v", q)
	}

	if _, err := ParseBudgetQuery(url.Values{"date": {"2024-13-01"}}); !errors.Is(err, core.ErrInvalidDate) {
		t.Errorf("expected ErrInvalidDate, got %v", err)
	}
}

func TestUserID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := UserID(req, "default"); got != "default" {
		t.Errorf("UserID() = %q, want default", got)
	}
	req.Header.Set(UserHeader, "  alice ")
	if got := UserID(req, "default"); got != "alice" {
		t.Errorf("UserID() = %q, want alice", got)
	}
}

func TestParamStripsControlCharacters(t *testing.T) {
	if got := clean("  ab\x00c\t "); got != "abc" {
		t.Errorf("clean() = %q, want abc", got)
	}
	q := url.Values{"currency": {" usd\n"}}
	if got := param(q, "currency"); got != "usd" {
		t.Errorf("param() = %q, want usd", got)
	}
}
