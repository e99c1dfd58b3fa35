// Package pricing turns the listing API's free-form price strings into numbers.
package pricing

import (
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

const (
	unitEok = "억" // 10,000 만원
	unitMan = "만"
	unitWon = "원"
)

// Func normalizes the deposit of one listing. It must be pure.
type Func func(deposit, recordID, transactionType string) float64

// NormalizeDeposit converts a deposit string to a value in 만원. Full-width digits,
// thousands separators and the 억/만 units are understood. Unparseable input yields 0.
// The deposit is used for every transaction type, including monthly rent.
func NormalizeDeposit(deposit, recordID, transactionType string) float64 {
	s := width.Narrow.String(deposit)
	s = strings.NewReplacer(",", "", " ", "", "\t", "").Replace(s)
	s = strings.TrimSuffix(s, unitWon)
	if s == "" {
		return 0
	}

	var total float64
	if head, tail, found := strings.Cut(s, unitEok); found {
		eok, ok := parseNumber(head)
		if !ok {
			return 0
		}
		total = eok * 10000
		s = tail
	}

	s = strings.TrimSuffix(s, unitMan)
	if s == "" {
		return total
	}
	man, ok := parseNumber(s)
	if !ok {
		return 0
	}
	return total + man
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
