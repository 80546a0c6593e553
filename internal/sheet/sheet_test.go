package sheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var siafiNames = []string{"RECOLHEDOR", "DOCUMENTO", "VALOR"}

// workbook builds an XLSX buffer with rows written from A1 on the first sheet.
func workbook(t *testing.T, rows ...[]any) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestReadXLSX(t *testing.T) {
	data := workbook(t,
		[]any{"Recolhedor", "Documento", "Valor"},
		[]any{123, "2024NS01", 1234.56},
		[]any{"12.345.678/0001-90", "2024NS02", "1.234,56"},
	)

	table, err := Read(data, siafiNames, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, FormatXLSX, table.Format)
	assert.Equal(t, siafiNames, table.Columns)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, RawRecord{123.0, "2024NS01", 1234.56}, table.Records[0])
	assert.Equal(t, RawRecord{"12.345.678/0001-90", "2024NS02", "1.234,56"}, table.Records[1])
	assert.Equal(t, []int{2, 3}, table.SourceRows)
}

func TestReadXLSXOnlyFirstThreeColumns(t *testing.T) {
	data := workbook(t,
		[]any{"A", "B", "C", "D"},
		[]any{1, 2, 3, 4},
		[]any{5, nil, 7},
	)

	table, err := Read(data, siafiNames, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, RawRecord{1.0, 2.0, 3.0}, table.Records[0])
	assert.Equal(t, RawRecord{5.0, nil, 7.0}, table.Records[1])
	assert.Equal(t, []any{3.0, 7.0}, table.Column(2))
}

func TestReadXLSXHeaderOnly(t *testing.T) {
	data := workbook(t, []any{"RECOLHEDOR", "DOCUMENTO", "VALOR"})

	table, err := Read(data, siafiNames, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())
	assert.NotNil(t, table.Records)
}

func TestReadXLSXSkipsBlankRows(t *testing.T) {
	data := workbook(t,
		[]any{"RECOLHEDOR", "DOCUMENTO", "VALOR"},
		[]any{1, "a", 10},
		[]any{nil, nil, nil},
		[]any{2, "b", 20},
	)

	table, err := Read(data, siafiNames, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, []int{2, 4}, table.SourceRows)
}

func TestReadXLSXNamedSheet(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	_, err := f.NewSheet("Dados")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Dados", "A1", &[]any{"CNPJ", "CNO", "VALOR"}))
	require.NoError(t, f.SetSheetRow("Dados", "A2", &[]any{111, 0, 5.5}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Sheet = "Dados"
	table, err := Read(buf.Bytes(), []string{"CNPJ", "CNO", "VALOR"}, opts)
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.Equal(t, RawRecord{111.0, 0.0, 5.5}, table.Records[0])

	opts.Sheet = "Missing"
	_, err = Read(buf.Bytes(), siafiNames, opts)
	assert.ErrorIs(t, err, ErrMalformedSource)
	assert.ErrorContains(t, err, "available: [Sheet1 Dados]")
}

func TestReadMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		opts Options
	}{
		{"empty workbook", workbook(t), DefaultOptions()},
		{"two header columns", workbook(t, []any{"A", "B"}, []any{1, 2}), DefaultOptions()},
		{"not a workbook", []byte("garbage"), Options{Format: FormatXLSX}},
		{"empty buffer", nil, DefaultOptions()},
		{"single column text", []byte("just text\n"), DefaultOptions()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(tt.data, siafiNames, tt.opts)
			assert.ErrorIs(t, err, ErrMalformedSource)
		})
	}
}

func TestReadRejectsBadOptions(t *testing.T) {
	_, err := Read([]byte("a,b,c\n"), []string{"A", "B"}, DefaultOptions())
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Read([]byte("a,b,c\n"), siafiNames, Options{Format: "ods"})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Read([]byte("a,b,c\n"), siafiNames, Options{Format: FormatCSV, Encoding: "EBCDIC"})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestReadCSV(t *testing.T) {
	data := []byte("\xef\xbb\xbfRECOLHEDOR,DOCUMENTO,VALOR\n123,2024NS01,10.5\n456,,\"1.234,56\"\n")

	table, err := Read(data, siafiNames, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, FormatCSV, table.Format)
	require.Equal(t, 2, table.Len())
	assert.Equal(t, RawRecord{"123", "2024NS01", "10.5"}, table.Records[0])
	assert.Equal(t, RawRecord{"456", nil, "1.234,56"}, table.Records[1])
}

func TestReadCSVLatin1Semicolon(t *testing.T) {
	data := []byte("CNPJ;CNO;VALOR\n1;Jos\xe9;10,5\n")

	opts := Options{Format: FormatCSV, Delimiter: ";", Encoding: "ISO-8859-1"}
	table, err := Read(data, []string{"CNPJ", "CNO", "VALOR"}, opts)
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.Equal(t, RawRecord{"1", "José", "10,5"}, table.Records[0])
}

func TestReadKeepsNumericTextAsText(t *testing.T) {
	const id = "12345678901234567"

	t.Run("csv", func(t *testing.T) {
		table, err := Read([]byte("CNPJ,CNO,VALOR\n"+id+",1e5,-3\n"), siafiNames, DefaultOptions())
		require.NoError(t, err)
		require.Equal(t, 1, table.Len())
		assert.Equal(t, RawRecord{id, "1e5", "-3"}, table.Records[0])
	})

	t.Run("xlsx text cells", func(t *testing.T) {
		data := workbook(t,
			[]any{"CNPJ", "CNO", "VALOR"},
			[]any{id, "1e5", 2.5},
		)
		table, err := Read(data, siafiNames, DefaultOptions())
		require.NoError(t, err)
		require.Equal(t, 1, table.Len())
		assert.Equal(t, RawRecord{id, "1e5", 2.5}, table.Records[0])
	})
}

func TestConvertCell(t *testing.T) {
	assert.Nil(t, convertCell("  ", true))
	assert.Equal(t, 42.0, convertCell("42", true))
	assert.Equal(t, -1.5e3, convertCell("-1.5E3", true))
	assert.Equal(t, "42", convertCell(" 42 ", false))
	assert.Equal(t, "1e5", convertCell("1e5", false))
	assert.Equal(t, "n/a", convertCell("n/a", true))
	assert.Equal(t, "abc", convertCell(" abc ", false))
}
