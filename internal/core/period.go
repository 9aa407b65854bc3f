package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateRange is an inclusive calendar window.
type DateRange struct {
	From  Date `json:"from"`
	Until Date `json:"until"`
}

// Contains reports whether d falls on a calendar day inside the window.
func (r DateRange) Contains(d Date) bool {
	day := DateOf(d.Time)
	return !day.Before(r.From.Time) && !day.After(r.Until.Time)
}

// RangeResolver is the strategy for deriving a window of one granularity
// around a reference day.
type RangeResolver interface {
	Resolve(ref Date) DateRange
}

// MonthRange spans the calendar month of the reference day.
type MonthRange struct{}

func (MonthRange) Resolve(ref Date) DateRange {
	return spanMonths(ref.Year(), ref.Month(), 1)
}

// QuarterRange spans the three-month quarter of the reference day.
type QuarterRange struct{}

func (QuarterRange) Resolve(ref Date) DateRange {
	first := ((ref.Month()-1)/3)*3 + 1
	return spanMonths(ref.Year(), first, 3)
}

// YearRange spans the calendar year of the reference day.
type YearRange struct{}

func (YearRange) Resolve(ref Date) DateRange {
	return spanMonths(ref.Year(), time.January, 12)
}

func spanMonths(year int, month time.Month, months int) DateRange {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	// day 0 of the following period is the last day of this one
	until := time.Date(year, month+time.Month(months), 0, 0, 0, 0, 0, time.UTC)
	return DateRange{From: Date{Time: from}, Until: Date{Time: until}}
}

var rangeResolvers = map[Granularity]RangeResolver{
	Monthly:   MonthRange{},
	Quarterly: QuarterRange{},
	Yearly:    YearRange{},
}

// ResolveRange maps a reference instant and granularity to the inclusive UTC
// window containing it. Unknown granularities resolve as Monthly.
func ResolveRange(ref time.Time, g Granularity) DateRange {
	resolver, ok := rangeResolvers[g]
	if !ok {
		resolver = rangeResolvers[Monthly]
	}
	return resolver.Resolve(DateOf(ref))
}

var monthsPerPeriod = map[Granularity]int64{
	Monthly:   1,
	Quarterly: 3,
	Yearly:    12,
}

// MonthsPerPeriod is how many calendar months one period of g spans.
func MonthsPerPeriod(g Granularity) int64 {
	if m, ok := monthsPerPeriod[g]; ok {
		return m
	}
	return monthsPerPeriod[Monthly]
}

// ScaleFactor is the length of one from period measured in to periods: a
// month is 1/12 of a year. Equal granularities yield exactly one without
// dividing. A target authored per from period is worth ScaleFactor(to, from)
// per to period, which is what ScaleTarget applies.
func ScaleFactor(from, to Granularity) decimal.Decimal {
	mf, mt := MonthsPerPeriod(from), MonthsPerPeriod(to)
	if from == to || mf == mt {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(mf).Div(decimal.NewFromInt(mt))
}

// ScaleTarget rescales a budget target authored per from period into the
// equivalent target per to period, rounded to cents: 120 monthly is 1440
// yearly. Scaling down divides by the whole ScaleFactor(from, to) instead of
// multiplying by its truncated inverse.
func ScaleTarget(target decimal.Decimal, from, to Granularity) decimal.Decimal {
	if up := ScaleFactor(to, from); up.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return Round2(target.Mul(up))
	}
	return Round2(target.Div(ScaleFactor(from, to)))
}
