// =============================================================================
// SIAFI/EFD Reconciler - Export Module
// =============================================================================
//
// This module writes a reconciliation result to disk. Three formats are
// supported:
//
//   xml   A <reconciliation> document with one <row> per merged row and the
//         summary. Column names become element names.
//   xlsx  A workbook with the merged table, both partitions, the summary and
//         a column chart of the differences.
//   csv   The merged table with a header row.
//
// =============================================================================

package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ginjaninja78/siafi-efd-reconciler/internal/reconcile"
)

// ErrUnsupportedFormat is returned for an unknown export format.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Format is an export file format.
type Format string

const (
	FormatXML  Format = "xml"
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// Formats lists every supported format.
var Formats = []Format{FormatXML, FormatXLSX, FormatCSV}

// ParseFormat converts a name into a Format. Case and surrounding spaces are
// ignored.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FormatXML, FormatXLSX, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// Extension returns the file extension including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// =============================================================================
// ENTRY POINTS
// =============================================================================

// Marshal encodes the result in the given format.
func Marshal(format Format, result *reconcile.Result) ([]byte, error) {
	if result == nil {
		return nil, errors.New("no reconciliation result to export")
	}

	switch format {
	case FormatXML:
		return GenerateXML(result, DefaultXMLOptions())
	case FormatXLSX:
		return GenerateXLSX(result)
	case FormatCSV:
		return GenerateCSV(result)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// Write encodes the result and saves it as dir/name plus the format
// extension. The directory is created if needed.
//
// RETURNS:
//   - The path of the written file.
//   - An error if encoding or writing fails.
func Write(dir, name string, format Format, result *reconcile.Result) (string, error) {
	data, err := Marshal(format, result)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	if !strings.HasSuffix(strings.ToLower(name), format.Extension()) {
		name += format.Extension()
	}
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s export: %w", format, err)
	}
	return path, nil
}

// =============================================================================
// CELL FORMATTING
// =============================================================================

// formatCell renders a merged cell as text. Monetary values keep two
// decimals; absent cells are empty.
func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', 2, 64)
	}
	return fmt.Sprint(v)
}

// rowStrings returns the cells of a row as text.
func rowStrings(row reconcile.Row) []string {
	cells := row.Cells()
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = formatCell(c)
	}
	return out
}
