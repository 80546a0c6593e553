// =============================================================================
// SIAFI/EFD Reconciler - Currency Formatter
// =============================================================================
//
// This module renders monetary values as Brazilian Real strings, the way the
// pt_BR locale does: "R$ 1.234,56" and "-R$ 1.234,56". The space between the
// symbol and the amount is a non-breaking space (U+00A0).
//
// Every aggregate shown to the user goes through FormatBRL, and the same
// values are shown in several views, so results are memoized by value.
//
// =============================================================================

package currency

import (
	"fmt"
	"math"
	"strings"

	money "github.com/Rhymond/go-money"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/siafi-efd-reconciler/internal/numeric"
)

// =============================================================================
// FORMAT CONSTANTS
// =============================================================================

const (
	// Symbol is the BRL grapheme.
	Symbol = "R$"

	// Space separates the symbol from the amount.
	Space = "\u00a0"

	// DecimalSeparator and ThousandSeparator follow pt_BR.
	DecimalSeparator  = ","
	ThousandSeparator = "."

	// Fraction is the number of minor units (cents).
	Fraction = 2
)

// Zero is the formatted zero value, also returned for unusable input.
var Zero = FormatBRL(0.0)

// formatter renders integer cents. "$" is replaced by the grapheme and "1"
// by the grouped amount.
var formatter = money.NewFormatter(Fraction, DecimalSeparator, ThousandSeparator, Symbol, "$"+Space+"1")

var cache = func() *lru.Cache[float64, string] {
	c, err := lru.New[float64, string](1024)
	if err != nil {
		panic(fmt.Sprintf("currency: failed to create cache: %v", err))
	}
	return c
}()

// =============================================================================
// FORMATTING
// =============================================================================

// FormatBRL formats a numeric value as BRL currency.
//
// PARAMETERS:
//   - value: any Go numeric kind. Anything else (nil, strings, NaN,
//     infinities) formats as the zero value.
//
// RETURNS:
//   - The formatted string, e.g. "R$ 1.234,56" (with U+00A0 after the symbol).
func FormatBRL(value any) string {
	if !numeric.IsNumeric(value) {
		return formatter.Format(0)
	}
	f := numeric.ParseDecimal(value)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return formatter.Format(0)
	}

	if s, ok := cache.Get(f); ok {
		return s
	}

	s := formatter.Format(Cents(f))
	cache.Add(f, s)
	return s
}

// Cents converts a value to integer minor units, rounding half away from zero.
func Cents(value float64) int64 {
	return decimal.NewFromFloat(value).Round(Fraction).Shift(Fraction).IntPart()
}

// =============================================================================
// PARSING
// =============================================================================

// Magnitude extracts the signed value from a string produced by FormatBRL.
// It is the inverse used to check that formatted summaries keep their value
// to cent precision.
func Magnitude(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, Space, " "))
	negative := strings.HasPrefix(s, "-")

	v := numeric.ParseDecimal(s)
	if negative {
		return -v
	}
	return v
}

// Normalize replaces the non-breaking space with a regular one, for
// comparing against plain-text expectations.
func Normalize(s string) string {
	return strings.ReplaceAll(s, Space, " ")
}
