// =============================================================================
// SIAFI/EFD Reconciler - XLSX Reader
// =============================================================================
//
// Reads the first three columns of an XLSX worksheet. Cells are read as their
// raw stored values, not the displayed text, so a number formatted as
// "1.234,56" in the workbook still arrives as "1234.56". Only cells stored as
// numbers are marked numeric; text cells stay text.
//
// =============================================================================

package sheet

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/xuri/excelize/v2"
)

// readXLSX returns every row of the selected worksheet.
//
// PARAMETERS:
//   - data: The workbook content.
//   - opts: Reader options. opts.Sheet selects the worksheet; empty means
//     the first one.
//
// RETURNS:
//   - The rows as raw cell strings, with the numeric cells marked.
//   - An error wrapping ErrMalformedSource if the workbook cannot be opened,
//     has no sheets, or does not contain the requested sheet.
func readXLSX(data []byte, opts Options) (*grid, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open workbook: %v", ErrMalformedSource, err)
	}
	defer f.Close()

	sheetName, err := selectSheet(f, opts.Sheet)
	if err != nil {
		return nil, err
	}

	rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read rows from sheet %q: %v", ErrMalformedSource, sheetName, err)
	}

	g := &grid{rows: rows, numeric: map[cellRef]bool{}}
	for r, row := range rows {
		for c := 0; c < ColumnCount && c < len(row); c++ {
			if row[c] == "" {
				continue
			}
			numeric, err := isNumberCell(f, sheetName, r, c)
			if err != nil {
				return nil, fmt.Errorf("%w: failed to read cell type: %v", ErrMalformedSource, err)
			}
			if numeric {
				g.numeric[cellRef{r, c}] = true
			}
		}
	}
	return g, nil
}

// isNumberCell reports whether the cell at the 0-based row and column is
// stored as a number. Numbers and numeric formula results carry no type or
// the "n" type; strings, booleans, dates and errors carry their own.
func isNumberCell(f *excelize.File, sheetName string, row, col int) (bool, error) {
	name, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return false, err
	}
	typ, err := f.GetCellType(sheetName, name)
	if err != nil {
		return false, err
	}
	return typ == excelize.CellTypeUnset || typ == excelize.CellTypeNumber, nil
}

// selectSheet resolves the worksheet to read.
func selectSheet(f *excelize.File, requested string) (string, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("%w: workbook has no sheets", ErrMalformedSource)
	}

	if requested == "" {
		return sheets[0], nil
	}
	if !slices.Contains(sheets, requested) {
		return "", fmt.Errorf("%w: sheet %q not found (available: %v)", ErrMalformedSource, requested, sheets)
	}
	return requested, nil
}
