package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NumberingScheme identifies the grammar of an invoice number. The set
// is closed; dispatch goes through a static table instead of reflection
// so an unknown scheme fails loudly.
type NumberingScheme string

const (
	// 2018-01, 2018-02, ... 2018-12, 2019-01
	SchemeSequentialMonth NumberingScheme = "sequential_month"
	// 1, 2, 3, ...
	SchemeSequentialCount NumberingScheme = "sequential_count"
	// 2018-01-1, 2018-02-2, ... both components advance each cycle.
	SchemeMonthCount NumberingScheme = "month_count"
	// 01 .. 12, wrapping back to 01.
	SchemeMonthOnly NumberingScheme = "month_only"
	// INV-2018-01, INV-2018-02, ...
	SchemePrefixedMonth NumberingScheme = "prefixed_month"
	// INV-1, INV-2, ...
	SchemePrefixedCount NumberingScheme = "prefixed_count"
)

// NumberPrefix is the literal prepended by the prefixed schemes.
const NumberPrefix = "INV"

const yearMonthLayout = "2006-01"

type schemeOps struct {
	defaultValue func(now time.Time) string
	increment    func(value string) (string, error)
}

var schemes = map[NumberingScheme]schemeOps{
	SchemeSequentialMonth: {
		defaultValue: func(now time.Time) string { return now.Format(yearMonthLayout) },
		increment:    incrementYearMonth,
	},
	SchemeSequentialCount: {
		defaultValue: func(now time.Time) string { return "1" },
		increment:    incrementCount,
	},
	SchemeMonthCount: {
		defaultValue: func(now time.Time) string { return now.Format(yearMonthLayout) + "-1" },
		increment:    incrementYearMonthCount,
	},
	SchemeMonthOnly: {
		defaultValue: func(now time.Time) string { return now.Format("01") },
		increment:    incrementMonthOnly,
	},
	SchemePrefixedMonth: {
		defaultValue: func(now time.Time) string { return NumberPrefix + "-" + now.Format(yearMonthLayout) },
		increment:    prefixed(incrementYearMonth),
	},
	SchemePrefixedCount: {
		defaultValue: func(now time.Time) string { return NumberPrefix + "-1" },
		increment:    prefixed(incrementCount),
	},
}

// DefaultNumber computes the scheme's value for `now`: the current
// year-month for month schemes, 1 for count schemes.
func DefaultNumber(scheme NumberingScheme, now time.Time) (string, error) {
	ops, ok := schemes[scheme]
	if !ok {
		return "", fmt.Errorf("unknown numbering scheme %q", scheme)
	}
	return ops.defaultValue(now), nil
}

// IncrementNumber parses `value` according to the scheme's grammar and
// returns the next value. A malformed value is a data error and is
// returned as such, never silently patched up.
func IncrementNumber(scheme NumberingScheme, value string) (string, error) {
	ops, ok := schemes[scheme]
	if !ok {
		return "", fmt.Errorf("unknown numbering scheme %q", scheme)
	}
	next, err := ops.increment(value)
	if err != nil {
		return "", fmt.Errorf("invalid %s invoice number %q: %w", scheme, value, err)
	}
	return next, nil
}

// incrementYearMonth advances a yyyy-mm value by one month, wrapping the
// year: 2018-12 becomes 2019-01. The wrap is done by moving to the first
// day of the next calendar month.
func incrementYearMonth(value string) (string, error) {
	t, err := time.Parse(yearMonthLayout, value)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 1, 0).Format(yearMonthLayout), nil
}

// incrementCount adds one to an integer value, tolerating leading zeros
// on input and rendering the result without them.
func incrementCount(value string) (string, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n+1, 10), nil
}

// incrementYearMonthCount advances both components of a yyyy-mm-n value:
// the month rolls to the next calendar month and the count goes up by
// one, so 2018-01-1 becomes 2018-02-2.
func incrementYearMonthCount(value string) (string, error) {
	idx := strings.LastIndex(value, "-")
	if idx < 0 {
		return "", fmt.Errorf("missing count component")
	}
	month, err := incrementYearMonth(value[:idx])
	if err != nil {
		return "", err
	}
	count, err := incrementCount(value[idx+1:])
	if err != nil {
		return "", err
	}
	return month + "-" + count, nil
}

func incrementMonthOnly(value string) (string, error) {
	t, err := time.Parse("01", value)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 1, 0).Format("01"), nil
}

// prefixed wraps an increment so it applies to the part after the fixed
// prefix, leaving the prefix unchanged.
func prefixed(increment func(string) (string, error)) func(string) (string, error) {
	return func(value string) (string, error) {
		rest, found := strings.CutPrefix(value, NumberPrefix+"-")
		if !found {
			return "", fmt.Errorf("missing %q prefix", NumberPrefix)
		}
		next, err := increment(rest)
		if err != nil {
			return "", err
		}
		return NumberPrefix + "-" + next, nil
	}
}
