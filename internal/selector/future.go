// Package selector picks the dominant futures contract for a product and
// the target out-of-the-money option contract for a strategy leg.
package selector

import (
	"regexp"
	"sort"
	"time"
)

// Contract is the subset of contract-data fields the future selector needs.
type Contract struct {
	VtSymbol string
	Symbol   string
}

// FutureSelector chooses the dominant (front-month) contract for a product
// and applies the 7-day rollover rule.
type FutureSelector struct {
	// RolloverDays is how many days before expiry the dominant contract is
	// considered due for rollover. Defaults to 7 when zero.
	RolloverDays int
}

// NewFutureSelector returns a selector using the standard 7-day rollover
// window.
func NewFutureSelector() *FutureSelector {
	return &FutureSelector{RolloverDays: 7}
}

// SelectDominant returns the contract with the lexicographically earliest
// symbol (which sorts chronologically for standard Chinese futures
// contract codes, e.g. rb2501 < rb2505), or ok=false if contracts is empty.
func (s *FutureSelector) SelectDominant(contracts []Contract) (Contract, bool) {
	if len(contracts) == 0 {
		return Contract{}, false
	}
	sorted := append([]Contract(nil), contracts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })
	return sorted[0], true
}

// FilterByMaturity returns the current-month or next-month contract,
// determined by symbol sort order.
func (s *FutureSelector) FilterByMaturity(contracts []Contract, nextMonth bool) []Contract {
	sorted := append([]Contract(nil), contracts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })
	if len(sorted) == 0 {
		return nil
	}
	if !nextMonth {
		return sorted[:1]
	}
	if len(sorted) > 1 {
		return sorted[1:2]
	}
	return nil
}

var symbolExpirySuffix = regexp.MustCompile(`(\d{3,4})$`)

// ExpiryFromSymbol estimates a contract's expiry date from its symbol
// suffix (e.g. "rb2501" -> 2025-01-15, "SA501" -> 2025-01-15), following
// the domestic convention that settlement falls mid-month. now supplies
// the reference year for disambiguating 3-digit suffixes (Zhengzhou
// Commodity Exchange style, e.g. "501"). Returns ok=false if the symbol
// has no parseable numeric suffix.
func ExpiryFromSymbol(symbol string, now time.Time) (time.Time, bool) {
	m := symbolExpirySuffix.FindStringSubmatch(symbol)
	if m == nil {
		return time.Time{}, false
	}
	digits := m[1]
	currentYear := now.Year()

	var year, month int
	switch len(digits) {
	case 4:
		yearSuffix := atoi(digits[:2])
		month = atoi(digits[2:])
		year = 2000 + yearSuffix
	case 3:
		yearSuffix := atoi(digits[:1])
		month = atoi(digits[1:])
		year = (currentYear/10)*10 + yearSuffix
		if year < currentYear-1 {
			year += 10
		}
	default:
		return time.Time{}, false
	}

	if month < 1 || month > 12 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), 15, 0, 0, 0, 0, now.Location()), true
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}

// NeedsRollover reports whether the dominant contract is within the
// rollover window of its estimated expiry.
func (s *FutureSelector) NeedsRollover(symbol string, now time.Time) bool {
	expiry, ok := ExpiryFromSymbol(symbol, now)
	if !ok {
		return false
	}
	window := s.RolloverDays
	if window <= 0 {
		window = 7
	}
	daysLeft := int(expiry.Sub(now).Hours() / 24)
	return daysLeft <= window
}
