package http

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"insights/internal/core"
	"insights/internal/services"
)

// UserHeader carries the caller's user id. Authentication happens in front
// of this service.
const UserHeader = "X-User-ID"

// ParseCategoryReportQuery reads the category report parameters. type is
// required here even though the service accepts an empty one.
func ParseCategoryReportQuery(query url.Values) (services.CategoryReportQuery, error) {
	var q services.CategoryReportQuery

	rawType := param(query, "type")
	if rawType == "" {
		return q, fmt.Errorf("%w: type is required", core.ErrInvalidTransactionType)
	}
	typ, err := core.ParseTransactionType(rawType)
	if err != nil {
		return q, fmt.Errorf("%w: %q", core.ErrInvalidTransactionType, rawType)
	}
	q.Type = typ

	if q.DateReference, err = parseReference(query); err != nil {
		return q, err
	}
	q.Granularity = core.ParseGranularity(param(query, "granularity"))

	from, until := param(query, "from"), param(query, "until")
	if from != "" || until != "" {
		window, err := parseWindow(from, until)
		if err != nil {
			return q, err
		}
		q.Range = &window
	}

	q.AccountIDs = listParam(query, "account")
	q.CategoryIDs = listParam(query, "category")

	if q.Currency, err = parseCurrency(query); err != nil {
		return q, err
	}
	return q, nil
}

// ParseBudgetQuery reads the budget parameters. A missing granularity keeps
// the budget's own.
func ParseBudgetQuery(query url.Values) (services.BudgetQuery, error) {
	var (
		q   services.BudgetQuery
		err error
	)
	if q.DateReference, err = parseReference(query); err != nil {
		return q, err
	}
	if g := param(query, "granularity"); g != "" {
		q.Granularity = core.ParseGranularity(g)
	}
	if q.Currency, err = parseCurrency(query); err != nil {
		return q, err
	}
	return q, nil
}

// UserID returns the caller from UserHeader, falling back to def.
func UserID(r *http.Request, def string) string {
	if id := clean(r.Header.Get(UserHeader)); id != "" {
		return id
	}
	return def
}

// parseReference returns the zero time when date is absent so the service
// applies its own clock.
func parseReference(query url.Values) (time.Time, error) {
	raw := param(query, "date")
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := core.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q, want YYYY-MM-DD", core.ErrInvalidDate, raw)
	}
	return d.Time, nil
}

func parseWindow(from, until string) (core.DateRange, error) {
	if from == "" || until == "" {
		return core.DateRange{}, fmt.Errorf("%w: from and until must be given together", core.ErrInvalidDate)
	}
	f, err := core.ParseDate(from)
	if err != nil {
		return core.DateRange{}, fmt.Errorf("%w: from %q", core.ErrInvalidDate, from)
	}
	u, err := core.ParseDate(until)
	if err != nil {
		return core.DateRange{}, fmt.Errorf("%w: until %q", core.ErrInvalidDate, until)
	}
	if u.Before(f.Time) {
		return core.DateRange{}, fmt.Errorf("%w: until %s is before from %s", core.ErrInvalidDate, u, f)
	}
	return core.DateRange{From: f, Until: u}, nil
}

func parseCurrency(query url.Values) (string, error) {
	raw := param(query, "currency")
	if raw == "" {
		return "", nil
	}
	code, err := core.NormalizeCurrency(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q", core.ErrInvalidCurrency, raw)
	}
	return code, nil
}

// listParam accepts both repeated keys and comma separated values.
func listParam(query url.Values, key string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, v := range query[key] {
		for _, part := range strings.Split(v, ",") {
			part = clean(part)
			if part == "" {
				continue
			}
			if _, dup := seen[part]; dup {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}

// param returns a query value with surrounding space and control
// characters removed.
func param(query url.Values, key string) string {
	return clean(query.Get(key))
}

func clean(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s))
}
