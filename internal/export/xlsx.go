package export

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/siafi-efd-reconciler/internal/reconcile"
)

// Sheet names of the exported workbook.
const (
	SheetMerged       = "Reconciliado"
	SheetSiafiGreater = "SiafiMaior"
	SheetEfdGreater   = "EfdMaior"
	SheetSummary      = "Resumo"
	SheetDifferences  = "Diferencas"
)

// chartTitle is the title of the differences chart.
const chartTitle = "Diferenças entre SIAFI e EFD"

// GenerateXLSX builds the workbook for a result.
//
// SHEETS:
//   - Reconciliado: merged table plus the merge indicator
//   - SiafiMaior / EfdMaior: the partitions with the merged row index
//   - Resumo: summary key/value pairs
//   - Diferencas: chart series and a column chart (only with differences)
func GenerateXLSX(result *reconcile.Result) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("failed to generate XLSX: no result")
	}

	f := excelize.NewFile()
	defer f.Close()

	// STEP 1: Merged table on the default sheet.
	if err := f.SetSheetName("Sheet1", SheetMerged); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	header := append(result.Columns.List(), "_merge")
	if err := writeSheetRow(f, SheetMerged, 1, header); err != nil {
		return nil, err
	}
	for i, row := range result.Rows {
		values := append(row.Cells(), row.Match.String())
		if err := writeSheetRow(f, SheetMerged, i+2, values); err != nil {
			return nil, err
		}
	}

	// STEP 2: Partitions.
	for _, p := range []struct {
		sheet string
		part  reconcile.Partition
	}{
		{SheetSiafiGreater, result.SiafiGreater},
		{SheetEfdGreater, result.EfdGreater},
	} {
		if err := writePartition(f, p.sheet, result.Columns, p.part); err != nil {
			return nil, err
		}
	}

	// STEP 3: Summary.
	if err := writeSummary(f, result.Summary); err != nil {
		return nil, err
	}

	// STEP 4: Differences chart.
	if bars := result.Differences(); len(bars) > 0 {
		if err := writeDifferences(f, bars); err != nil {
			return nil, err
		}
	}

	buffer, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buffer.Bytes(), nil
}

func writePartition(f *excelize.File, sheet string, cols reconcile.Columns, p reconcile.Partition) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}
	header := append([]any{"index"}, toAny(cols.List())...)
	if err := writeSheetRow(f, sheet, 1, header); err != nil {
		return err
	}
	for i, row := range p.Rows {
		values := append([]any{p.Source[i]}, row.Cells()...)
		if err := writeSheetRow(f, sheet, i+2, values); err != nil {
			return err
		}
	}
	return nil
}

func writeSummary(f *excelize.File, s reconcile.Summary) error {
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", SheetSummary, err)
	}
	pairs := [][]any{
		{"greater_siafi_sum", s.GreaterSiafiSum},
		{"greater_efd_sum", s.GreaterEfdSum},
		{"greater_siafi_count", s.GreaterSiafiCount},
		{"greater_efd_count", s.GreaterEfdCount},
		{"greater_siafi_recolhedor", joinIDs(s.GreaterSiafiCollectors)},
		{"greater_efd_cnpj", joinIDs(s.GreaterEfdTaxpayers)},
		{"sum", s.Sum},
	}
	for i, pair := range pairs {
		if err := writeSheetRow(f, SheetSummary, i+1, pair); err != nil {
			return err
		}
	}
	return nil
}

func writeDifferences(f *excelize.File, bars []reconcile.Bar) error {
	if _, err := f.NewSheet(SheetDifferences); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", SheetDifferences, err)
	}
	if err := writeSheetRow(f, SheetDifferences, 1, []any{"label", "difference"}); err != nil {
		return err
	}
	for i, bar := range bars {
		if err := writeSheetRow(f, SheetDifferences, i+2, []any{bar.Label, bar.Value}); err != nil {
			return err
		}
	}

	last := len(bars) + 1
	chart := &excelize.Chart{
		Type: excelize.Col,
		Series: []excelize.ChartSeries{
			{
				Name:       SheetDifferences + "!$B$1",
				Categories: fmt.Sprintf("%s!$A$2:$A$%d", SheetDifferences, last),
				Values:     fmt.Sprintf("%s!$B$2:$B$%d", SheetDifferences, last),
			},
		},
		Title: []excelize.RichTextRun{{Text: chartTitle}},
	}
	if err := f.AddChart(SheetDifferences, "D2", chart); err != nil {
		return fmt.Errorf("failed to add differences chart: %w", err)
	}
	return nil
}

// writeSheetRow writes values starting at column A of the given row.
func writeSheetRow[T any](f *excelize.File, sheet string, row int, values []T) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to address row %d: %w", row, err)
	}
	cells := toAny(values)
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write row %d of %s: %w", row, sheet, err)
	}
	return nil
}

func toAny[T any](values []T) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}
