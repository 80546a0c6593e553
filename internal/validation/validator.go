// =============================================================================
// SIAFI/EFD Reconciler - Cell Validation
// =============================================================================
//
// This module reports the cells that the numeric normalizer will degrade.
// Degradation is the policy: a bad cell becomes zero and the reconciliation
// continues. Validation never changes that. It only records what happened so
// that the user can trace a discrepancy back to the source row.
//
// VALIDATION STRATEGY:
//   Each rule covers one column of a RawTable:
//   - Decimal columns: missing cells, text with no number, text that does
//     not parse after separator cleaning
//   - Integer columns: missing cells, text with no digits, fractional
//     numbers that are truncated
//
// ERROR HANDLING:
//   - Issues are collected, never returned as errors
//   - Every issue is a warning and carries the source row and column
//
// =============================================================================

package validation

import (
	"fmt"
	"math"
	"strings"

	"github.com/ginjaninja78/siafi-efd-reconciler/internal/numeric"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/sheet"
)

// =============================================================================
// ISSUE TYPES
// =============================================================================

// SeverityWarning marks an issue that does not stop processing.
const SeverityWarning = "warning"

// Rule identifies the kind of degradation.
type Rule string

const (
	// RuleMissing: the cell is empty and is treated as zero.
	RuleMissing Rule = "missing"
	// RuleNoNumber: the text contains no digits.
	RuleNoNumber Rule = "no_number"
	// RuleUnparsable: the text has digits but the cleaned value does not parse.
	RuleUnparsable Rule = "unparsable"
	// RuleTruncated: a fractional number in an identifier column loses its fraction.
	RuleTruncated Rule = "truncated"
	// RuleSignDropped: a minus sign in front of the number is not read.
	RuleSignDropped Rule = "sign_dropped"
)

// Issue represents a single degraded cell.
type Issue struct {
	// Severity is always SeverityWarning.
	Severity string

	// Row is the 1-based spreadsheet row of the cell.
	Row int

	// Column is the caller-supplied column name.
	Column string

	// Value is the raw cell as text.
	Value string

	// Rule is the degradation that applies.
	Rule Rule

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (i *Issue) Error() string {
	return fmt.Sprintf("[%s] Row %d, Column '%s': %s (value: '%s')",
		strings.ToUpper(i.Severity),
		i.Row,
		i.Column,
		i.Message,
		i.Value,
	)
}

// =============================================================================
// RULES
// =============================================================================

// Kind is how a column is converted by the ledgers.
type Kind int

const (
	// KindDecimal columns go through numeric.ParseDecimal.
	KindDecimal Kind = iota
	// KindInteger columns go through numeric.ParseInteger.
	KindInteger
)

// ColumnRule describes one column to check.
type ColumnRule struct {
	// Column is the 0-based position in the raw table.
	Column int

	// Kind is the conversion applied to the column.
	Kind Kind

	// AllowMissing suppresses RuleMissing for columns where blanks are normal.
	AllowMissing bool
}

// =============================================================================
// RESULT
// =============================================================================

// Result contains the outcome of a check.
type Result struct {
	// Issues in row order, then column order.
	Issues []*Issue

	// WarningCount is the number of issues.
	WarningCount int

	// CellsChecked is the number of cells inspected.
	CellsChecked int
}

// Clean reports whether no cell was degraded.
func (r *Result) Clean() bool {
	return r.WarningCount == 0
}

// =============================================================================
// MAIN VALIDATION FUNCTION
// =============================================================================

// Check inspects the columns named by rules and returns every degraded cell.
//
// PARAMETERS:
//   - raw: The ingested table.
//   - rules: The columns to check. Rules with an out-of-range column are ignored.
//
// RETURNS:
//   - The result, never nil.
func Check(raw *sheet.RawTable, rules []ColumnRule) *Result {
	result := &Result{Issues: make([]*Issue, 0)}
	if raw == nil {
		return result
	}

	for r, record := range raw.Records {
		row := r + 1
		if r < len(raw.SourceRows) {
			row = raw.SourceRows[r]
		}

		for _, rule := range rules {
			if rule.Column < 0 || rule.Column >= len(record) || rule.Column >= len(raw.Columns) {
				continue
			}
			result.CellsChecked++

			name := raw.Columns[rule.Column]
			if issue := checkCell(record[rule.Column], rule); issue != nil {
				issue.Row = row
				issue.Column = name
				result.Issues = append(result.Issues, issue)
				result.WarningCount++
			}
		}
	}

	return result
}

// checkCell returns the issue for a single cell, or nil.
func checkCell(cell any, rule ColumnRule) *Issue {
	if cell == nil {
		if rule.AllowMissing {
			return nil
		}
		return newIssue("", RuleMissing, "Missing value treated as 0")
	}

	switch v := cell.(type) {
	case string:
		if rule.Kind == KindInteger {
			return validateIntegerText(v)
		}
		return validateDecimalText(v)
	case float64:
		if rule.Kind == KindInteger && v != math.Trunc(v) {
			return newIssue(fmt.Sprint(v), RuleTruncated, fmt.Sprintf("Fraction dropped, read as %d", numeric.ParseInteger(v)))
		}
	}
	return nil
}

// validateDecimalText checks text read by ParseDecimal.
func validateDecimalText(value string) *Issue {
	shape := numeric.Shape(value)
	if !strings.ContainsAny(shape, "0123456789") {
		return newIssue(value, RuleNoNumber, "No number found, treated as 0")
	}
	parsed := numeric.ParseDecimal(value)
	if strings.ContainsAny(shape, "123456789") && parsed == 0 {
		return newIssue(value, RuleUnparsable, fmt.Sprintf("Number '%s' could not be parsed, treated as 0", shape))
	}
	if prefix := strings.TrimSpace(value[:strings.Index(value, shape)]); parsed != 0 && strings.Contains(prefix, "-") {
		return newIssue(value, RuleSignDropped, fmt.Sprintf("Minus sign dropped, read as %.2f", parsed))
	}
	return nil
}

// validateIntegerText checks text read by ParseInteger.
func validateIntegerText(value string) *Issue {
	if !strings.ContainsAny(value, "0123456789") {
		return newIssue(value, RuleNoNumber, "No digits found, treated as 0")
	}
	if strings.ContainsAny(value, "123456789") && numeric.ParseInteger(value) == 0 {
		return newIssue(value, RuleUnparsable, "Identifier out of range, treated as 0")
	}
	return nil
}

func newIssue(value string, rule Rule, message string) *Issue {
	return &Issue{
		Severity: SeverityWarning,
		Value:    value,
		Rule:     rule,
		Message:  message,
	}
}

// =============================================================================
// ERROR REPORTING
// =============================================================================

// FormatIssues formats issues for display or logging.
//
// PARAMETERS:
//   - issues: The issues to format.
//
// RETURNS:
//   - A formatted string containing all issues.
func FormatIssues(issues []*Issue) string {
	if len(issues) == 0 {
		return "No validation issues."
	}

	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("Validation completed with %d warning(s):\n\n", len(issues)))

	for i, issue := range issues {
		builder.WriteString(fmt.Sprintf("%d. %s\n", i+1, issue.Error()))
	}

	return builder.String()
}
