// =============================================================================
// SIAFI/EFD Reconciler - Numeric Normalizer
// =============================================================================
//
// This module converts raw spreadsheet cells into numbers. Both ledgers are
// exported by systems that format numbers differently, so the same column can
// contain floats, integers, "1.234,56", "1,234" or free text around a number.
//
// POLICY:
//   Conversions never fail. A cell that cannot be read as a number becomes
//   zero and processing continues. Downstream statistics rely on this: a bad
//   cell must show up as a discrepancy, not abort the reconciliation.
//
// CACHING:
//   The same raw strings repeat heavily within a column, so string results
//   are kept in bounded LRU caches. Both functions are pure.
//
// =============================================================================

package numeric

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"
)

// =============================================================================
// CACHES
// =============================================================================

// CacheSize is the number of distinct strings remembered per function.
const CacheSize = 4096

var (
	decimalCache = mustCache[float64]()
	integerCache = mustCache[int64]()
)

func mustCache[V any]() *lru.Cache[string, V] {
	c, err := lru.New[string, V](CacheSize)
	if err != nil {
		panic(fmt.Sprintf("numeric: failed to create cache: %v", err))
	}
	return c
}

// =============================================================================
// PATTERNS
// =============================================================================

// decimalShape matches the first run of digits, dots and commas.
var decimalShape = regexp.MustCompile(`[0-9.,]+`)

// nonDigits matches everything that is not an ASCII digit.
var nonDigits = regexp.MustCompile(`[^0-9]`)

// =============================================================================
// DECIMAL PARSING
// =============================================================================

// ParseDecimal converts a cell value into a float64.
//
// Numeric values are returned as float64 unchanged. Text is reduced to its
// first number-shaped substring and cleaned:
//   - with a comma: dots are thousands separators and the comma is the
//     decimal point ("1.234,56" -> 1234.56)
//   - without a comma: every dot but the last is a thousands separator
//     ("1.234.567" -> 1234.567)
//
// Missing values, NaN, text without digits and text that still does not
// parse after cleaning all return 0.
func ParseDecimal(value any) float64 {
	switch v := value.(type) {
	case nil:
		return 0
	case string:
		return parseDecimalCached(v)
	case []byte:
		return parseDecimalCached(string(v))
	case fmt.Stringer:
		return parseDecimalCached(v.String())
	}

	f, ok := asFloat(value)
	if !ok || math.IsNaN(f) {
		return 0
	}
	return f
}

func parseDecimalCached(s string) float64 {
	if f, ok := decimalCache.Get(s); ok {
		return f
	}
	f := parseDecimalString(s)
	decimalCache.Add(s, f)
	return f
}

// Shape returns the substring of s that ParseDecimal reads, or "" if s has
// no digits, dots or commas.
func Shape(s string) string {
	return decimalShape.FindString(s)
}

// parseDecimalString applies the separator rules to a single string.
func parseDecimalString(s string) float64 {
	cleaned := decimalShape.FindString(s)
	if cleaned == "" {
		return 0
	}

	if strings.Contains(cleaned, ",") {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	} else if n := strings.Count(cleaned, "."); n > 1 {
		cleaned = strings.Replace(cleaned, ".", "", n-1)
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return f
}

// =============================================================================
// INTEGER PARSING
// =============================================================================

// ParseInteger converts a cell value into an int64.
//
// Numeric values are truncated toward zero. Text keeps only its digits
// ("12.345.678/0001-90" -> 12345678000190). Missing values, NaN, infinities,
// text without digits and values that overflow int64 return 0.
func ParseInteger(value any) int64 {
	switch v := value.(type) {
	case nil:
		return 0
	case string:
		return parseIntegerCached(v)
	case []byte:
		return parseIntegerCached(string(v))
	case fmt.Stringer:
		return parseIntegerCached(v.String())
	case int64:
		return v
	case int:
		return int64(v)
	}

	f, ok := asFloat(value)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if f >= math.MaxInt64 || f <= math.MinInt64 {
		return 0
	}
	return int64(f)
}

func parseIntegerCached(s string) int64 {
	if n, ok := integerCache.Get(s); ok {
		return n
	}
	n := parseIntegerString(s)
	integerCache.Add(s, n)
	return n
}

func parseIntegerString(s string) int64 {
	digits := nonDigits.ReplaceAllString(s, "")
	if digits == "" {
		return 0
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// =============================================================================
// ROUNDING
// =============================================================================

// Round rounds value to the given number of decimal places.
// Rounding is done on the shortest decimal representation of the float,
// half away from zero, so 2.675 rounds to 2.68.
func Round(value float64, places int32) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return value
	}
	f, _ := decimal.NewFromFloat(value).Round(places).Float64()
	return f
}

// Round2 rounds a monetary value to cents.
func Round2(value float64) float64 {
	return Round(value, 2)
}

// =============================================================================
// HELPERS
// =============================================================================

// asFloat widens every Go numeric kind (and bool) to float64.
func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// IsNumeric reports whether value is one of the Go numeric kinds.
func IsNumeric(value any) bool {
	if _, isBool := value.(bool); isBool {
		return false
	}
	_, ok := asFloat(value)
	return ok
}
