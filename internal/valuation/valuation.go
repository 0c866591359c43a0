// Package valuation prices balances in the exchange's quote currency.
package valuation

import (
	"sort"
	"strings"

	"cryptex/internal/models"

	"github.com/shopspring/decimal"
)

// PriceUnavailable is reported for balances whose coin has no quoted price.
const PriceUnavailable = "price unavailable"

// Result is the valuation of one balance. Value is nil when the price of the
// balance's coin was missing; Missing then names the symbol.
type Result struct {
	Balance models.Balance
	Value   *decimal.Decimal
	Missing string
}

// OK reports whether the balance could be valued.
func (r Result) OK() bool {
	return r.Value != nil
}

// Valued is the API view of a valued balance.
type Valued struct {
	models.BalanceProjection
	Value *string `json:"value"`
	Error string  `json:"error,omitempty"`
}

// Projection merges the value into the balance projection.
func (r Result) Projection() Valued {
	v := Valued{BalanceProjection: r.Balance.Projection()}
	if r.OK() {
		s := FormatValue(*r.Value)
		v.Value = &s
	} else {
		v.Error = PriceUnavailable
	}
	return v
}

// Symbols returns the distinct price index symbols of the balances' coins,
// sorted. Balances must have their Coin loaded.
func Symbols(balances []models.Balance) []string {
	seen := make(map[string]struct{}, len(balances))
	symbols := make([]string, 0, len(balances))
	for _, b := range balances {
		if _, ok := seen[b.Coin.Index]; ok {
			continue
		}
		seen[b.Coin.Index] = struct{}{}
		symbols = append(symbols, b.Coin.Index)
	}
	sort.Strings(symbols)
	return symbols
}

// Value computes price × amount for every balance.
func Value(balances []models.Balance, prices map[string]decimal.Decimal) []Result {
	results := make([]Result, 0, len(balances))
	for _, b := range balances {
		price, ok := prices[b.Coin.Index]
		if !ok {
			results = append(results, Result{Balance: b, Missing: b.Coin.Index})
			continue
		}
		v := price.Mul(b.Amount)
		results = append(results, Result{Balance: b, Value: &v})
	}
	return results
}

// Missing returns the symbols that could not be priced, without duplicates.
func Missing(results []Result) []string {
	var missing []string
	seen := make(map[string]struct{})
	for _, r := range results {
		if r.OK() {
			continue
		}
		if _, ok := seen[r.Missing]; ok {
			continue
		}
		seen[r.Missing] = struct{}{}
		missing = append(missing, r.Missing)
	}
	return missing
}

// FormatValue renders d with two decimals, rounding half to even, and groups the
// integer part in thousands: 10000 -> "10,000.00".
func FormatValue(d decimal.Decimal) string {
	s := d.StringFixedBank(2)

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}

	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	b.WriteString(sign)
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteString(frac)
	return b.String()
}
