// =============================================================================
// SIAFI/EFD Reconciler - Sheet Reader
// =============================================================================
//
// This module turns the raw bytes of an uploaded ledger into a RawTable: an
// ordered list of three-cell records labeled with caller-supplied column
// names. It knows nothing about SIAFI or EFD semantics; the ledgers decide
// what each column means.
//
// SUPPORTED SOURCES:
//   - XLSX workbooks (the format both systems export)
//   - CSV files, with configurable delimiter and character encoding
//
// SOURCE STRUCTURE (Expected Columns):
//   Only the first three columns are read. The header row(s) are discarded
//   and replaced, positionally, by the names passed in.
//
//   | Column A   | Column B  | Column C |
//   |------------|-----------|----------|
//   | RECOLHEDOR | DOCUMENTO | VALOR    |    <- header, replaced by names
//   | 123        | 2024NS01  | 1.234,56 |
//
// =============================================================================

package sheet

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrMalformedSource indicates the buffer cannot be read as a
	// three-column tabular source.
	ErrMalformedSource = errors.New("malformed source")

	// ErrUnsupportedFormat indicates an unknown format or encoding option.
	ErrUnsupportedFormat = errors.New("unsupported format")
)

// ColumnCount is the number of columns every ledger source provides.
const ColumnCount = 3

// =============================================================================
// OPTIONS
// =============================================================================

// Format selects how the buffer is decoded.
type Format string

const (
	// FormatAuto sniffs the buffer: ZIP signature means XLSX, anything else CSV.
	FormatAuto Format = "auto"
	// FormatXLSX forces the workbook reader.
	FormatXLSX Format = "xlsx"
	// FormatCSV forces the CSV reader.
	FormatCSV Format = "csv"
)

// Options controls how a source is read.
type Options struct {
	// Format of the buffer. Default: FormatAuto.
	Format Format

	// Sheet is the worksheet name for XLSX sources.
	// Default: "" (the first sheet)
	Sheet string

	// HeaderRows is the number of leading rows treated as headers.
	// Default: 1
	HeaderRows int

	// Delimiter is the CSV field separator.
	// Default: ","
	Delimiter string

	// Encoding is the CSV character encoding.
	// Valid values: "UTF-8", "ISO-8859-1", "Windows-1252"
	// Default: "UTF-8"
	Encoding string
}

// DefaultOptions returns options matching the upload flow: XLSX,
// first sheet, one header row.
func DefaultOptions() Options {
	return Options{
		Format:     FormatAuto,
		HeaderRows: 1,
		Delimiter:  ",",
		Encoding:   "UTF-8",
	}
}

func (o *Options) applyDefaults() {
	if o.Format == "" {
		o.Format = FormatAuto
	}
	if o.HeaderRows <= 0 {
		o.HeaderRows = 1
	}
	if o.Delimiter == "" {
		o.Delimiter = ","
	}
	if o.Encoding == "" {
		o.Encoding = "UTF-8"
	}
}

// =============================================================================
// RAW TABLE
// =============================================================================

// RawRecord is one row of raw cells, one per column. A cell is nil when
// missing, float64 when the source stores it as a number (XLSX numeric
// cells), and the trimmed text otherwise. Text that looks like a number
// stays text, so identifiers keep every digit.
type RawRecord []any

// RawTable is the ingested, unsanitized content of a ledger source.
type RawTable struct {
	// Columns are the caller-supplied names, in column order.
	Columns []string

	// Records holds the data rows in source order.
	Records []RawRecord

	// SourceRows holds the 1-based spreadsheet row number of each record.
	SourceRows []int

	// Format is the reader that produced the table.
	Format Format
}

// Len returns the number of records.
func (t *RawTable) Len() int {
	return len(t.Records)
}

// Column returns the cells of column i in record order.
func (t *RawTable) Column(i int) []any {
	cells := make([]any, len(t.Records))
	for r, rec := range t.Records {
		cells[r] = rec[i]
	}
	return cells
}

// =============================================================================
// READ
// =============================================================================

// zipSignature opens every XLSX file.
var zipSignature = []byte("PK\x03\x04")

// Read parses data as a three-column tabular source.
//
// PARAMETERS:
//   - data: The raw file content.
//   - names: Exactly three column names, applied positionally.
//   - opts: Reader options.
//
// RETURNS:
//   - The raw table.
//   - An error wrapping ErrMalformedSource if the buffer has no readable
//     header with at least three columns, or ErrUnsupportedFormat for bad options.
func Read(data []byte, names []string, opts Options) (*RawTable, error) {
	if len(names) != ColumnCount {
		return nil, fmt.Errorf("%w: expected %d column names, got %d", ErrUnsupportedFormat, ColumnCount, len(names))
	}
	opts.applyDefaults()

	format := opts.Format
	if format == FormatAuto {
		format = FormatCSV
		if bytes.HasPrefix(data, zipSignature) {
			format = FormatXLSX
		}
	}

	var g *grid
	var err error
	switch format {
	case FormatXLSX:
		g, err = readXLSX(data, opts)
	case FormatCSV:
		g, err = readCSV(data, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, opts.Format)
	}
	if err != nil {
		return nil, err
	}

	table, err := buildTable(g, names, opts.HeaderRows)
	if err != nil {
		return nil, err
	}
	table.Format = format
	return table, nil
}

// grid is a source read as strings.
type grid struct {
	rows [][]string

	// numeric marks the cells, among the first ColumnCount columns, that
	// the source stores as numbers.
	numeric map[cellRef]bool
}

// cellRef is a 0-based row and column.
type cellRef struct {
	row, col int
}

func (g *grid) isNumeric(row, col int) bool {
	return g.numeric[cellRef{row, col}]
}

// buildTable checks the header and extracts the first three cells of each
// data row.
func buildTable(g *grid, names []string, headerRows int) (*RawTable, error) {
	rows := g.rows
	if len(rows) < headerRows {
		return nil, fmt.Errorf("%w: expected %d header row(s), found %d row(s)", ErrMalformedSource, headerRows, len(rows))
	}

	width := 0
	for _, header := range rows[:headerRows] {
		if w := usedWidth(header); w > width {
			width = w
		}
	}
	if width < ColumnCount {
		return nil, fmt.Errorf("%w: header has %d column(s), expected at least %d", ErrMalformedSource, width, ColumnCount)
	}

	table := &RawTable{
		Columns:    append([]string(nil), names...),
		Records:    []RawRecord{},
		SourceRows: []int{},
	}

	for i := headerRows; i < len(rows); i++ {
		record := make(RawRecord, ColumnCount)
		blank := true
		for c := 0; c < ColumnCount; c++ {
			if c < len(rows[i]) {
				record[c] = convertCell(rows[i][c], g.isNumeric(i, c))
			}
			if record[c] != nil {
				blank = false
			}
		}

		// Skip rows with nothing in the three columns.
		if blank {
			continue
		}

		table.Records = append(table.Records, record)
		table.SourceRows = append(table.SourceRows, i+1)
	}

	return table, nil
}

// usedWidth returns the number of columns up to the last non-empty cell.
func usedWidth(row []string) int {
	for i := len(row) - 1; i >= 0; i-- {
		if strings.TrimSpace(row[i]) != "" {
			return i + 1
		}
	}
	return 0
}

// convertCell maps a raw cell string to nil, float64 for numeric cells, or
// trimmed text.
func convertCell(raw string, numeric bool) any {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if numeric {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}
