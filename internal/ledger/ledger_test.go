package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/siafi-efd-reconciler/internal/currency"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/sheet"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/validation"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/view"
)

// workbook builds an XLSX source with a header row and the given data rows.
func workbook(t *testing.T, header []any, rows ...[]any) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	all := append([][]any{header}, rows...)
	for i, row := range all {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

var (
	siafiHeader = []any{"Recolhedor", "Documento", "Valor"}
	efdHeader   = []any{"CNPJ", "CNO", "Valor"}
)

func TestSiafiGroupsByCollector(t *testing.T) {
	data := workbook(t, siafiHeader,
		[]any{1, "d1", 10.00},
		[]any{1, "d2", 5.00},
		[]any{2, "d3", 3.00},
	)

	s := NewSiafi(SiafiColumns, nil, nil, nil)
	require.NoError(t, s.SetFile(data))

	table := s.Table()
	require.NotNil(t, table)
	assert.Equal(t, []Entry{
		{Key: 1, Aux: 2, Value: 15.00},
		{Key: 2, Aux: 1, Value: 3.00},
	}, table.Rows)
	assert.Equal(t, []int{1, 2}, table.Index())
	assert.Equal(t, "RECOLHEDOR", table.KeyColumn())
	assert.Equal(t, "DOCUMENTO", table.AuxColumn())
	assert.Equal(t, "VALOR", table.ValueColumn())

	assert.Equal(t, map[string][]any{
		"RECOLHEDOR": {int64(1), int64(2)},
		"DOCUMENTO":  {int64(2), int64(1)},
		"VALOR":      {15.0, 3.0},
	}, s.Dict())

	d := s.Describe()
	assert.Equal(t, 2, d.Count)
	assert.Equal(t, "R$ 18,00", currency.Normalize(d.Sum))
	assert.Equal(t, "R$ 9,00", currency.Normalize(d.Mean))
	assert.Equal(t, "R$ 15,00", currency.Normalize(d.Max))
	assert.Equal(t, "R$ 3,00", currency.Normalize(d.Min))
}

func TestSiafiSanitizesLocaleValues(t *testing.T) {
	data := workbook(t, siafiHeader,
		[]any{"00.000.002/0001-00", "d1", "1.234,565"},
		[]any{"1", "d2", "R$ 10,10"},
		[]any{nil, "d3", nil},
		[]any{"1", "d4", "abc"},
	)

	s := NewSiafi(SiafiColumns, nil, nil, nil)
	require.NoError(t, s.SetFile(data))

	assert.Equal(t, []Entry{
		{Key: 0, Aux: 1, Value: 0},
		{Key: 1, Aux: 2, Value: 10.10},
		{Key: 2000100, Aux: 1, Value: 1234.57},
	}, s.Table().Rows)

	rules := map[validation.Rule]int{}
	for _, issue := range s.Issues() {
		rules[issue.Rule]++
	}
	assert.Equal(t, map[validation.Rule]int{
		validation.RuleMissing:  2,
		validation.RuleNoNumber: 1,
	}, rules)
}

func TestSiafiGroupingProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 20; run++ {
		n := rng.Intn(40)
		rows := make([][]any, n)
		for i := range rows {
			rows[i] = []any{rng.Intn(8), fmt.Sprintf("doc-%d", i), float64(rng.Intn(100000)) / 100}
		}
		data := workbook(t, siafiHeader, rows...)

		s := NewSiafi(SiafiColumns, nil, nil, nil)
		require.NoError(t, s.SetFile(data))

		seen := map[int64]bool{}
		total := int64(0)
		for i, row := range s.Table().Rows {
			assert.False(t, seen[row.Key], "duplicate collector %d", row.Key)
			seen[row.Key] = true
			total += row.Aux
			if i > 0 {
				assert.Less(t, s.Table().Rows[i-1].Key, row.Key)
			}
		}
		assert.Equal(t, int64(n), total)
		assert.Equal(t, s.Table().Len(), len(s.Table().Index()))
	}
}

func TestEfdKeepsLastDuplicate(t *testing.T) {
	data := workbook(t, efdHeader,
		[]any{1, nil, 7.00},
		[]any{3, 44, 1.50},
		[]any{1, 55, 9.00},
	)

	e := NewEfd(EfdColumns, nil, nil, nil)
	require.NoError(t, e.SetFile(data))

	assert.Equal(t, []Entry{
		{Key: 1, Aux: 55, Value: 9.00},
		{Key: 3, Aux: 44, Value: 1.50},
	}, e.Table().Rows)
	assert.Empty(t, e.Issues(), "a blank CNO is not an issue")
}

func TestEfdMissingSecondaryIsZero(t *testing.T) {
	data := workbook(t, efdHeader,
		[]any{"12.345.678/0001-90", nil, "1.000,00"},
	)

	e := NewEfd(EfdColumns, nil, nil, nil)
	require.NoError(t, e.SetFile(data))
	assert.Equal(t, []Entry{{Key: 12345678000190, Aux: 0, Value: 1000}}, e.Table().Rows)
}

func TestEfdDedupeProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	rows := make([][]any, 60)
	want := map[int64]float64{}
	for i := range rows {
		key := rng.Intn(10)
		value := float64(i)
		rows[i] = []any{key, 0, value}
		want[int64(key)] = value
	}

	e := NewEfd(EfdColumns, nil, nil, nil)
	require.NoError(t, e.SetFile(workbook(t, efdHeader, rows...)))

	got := map[int64]float64{}
	for _, row := range e.Table().Rows {
		_, dup := got[row.Key]
		require.False(t, dup)
		got[row.Key] = row.Value
	}
	assert.Equal(t, want, got)
}

func TestLedgerPublishesViews(t *testing.T) {
	hub := view.NewHub()
	s := NewSiafi(SiafiColumns, nil, nil, hub)
	require.NoError(t, s.SetFile(workbook(t, siafiHeader, []any{1, "d1", 2.5})))

	assert.True(t, hub.IsPublished(view.SiafiTableName))
	assert.True(t, hub.IsPublished(view.SiafiInfoName))

	table := s.TableComponent().Variables
	assert.True(t, table.Ready)
	assert.Equal(t, 1, table.Len)
	assert.Equal(t, []string{"RECOLHEDOR", "DOCUMENTO", "VALOR"}, table.Columns)

	info := s.InfoComponent().Variables
	assert.True(t, info.Ready)
	assert.Equal(t, 1, info.Describe["count"])
	assert.Equal(t, "R$ 2,50", currency.Normalize(info.Describe["sum"].(string)))
}

func TestLedgerFailureResets(t *testing.T) {
	hub := view.NewHub()
	e := NewEfd(EfdColumns, nil, nil, hub)
	require.NoError(t, e.SetFile(workbook(t, efdHeader, []any{1, 0, 1.0})))
	require.True(t, hub.IsPublished(view.EfdTableName))

	err := e.SetFile([]byte("not,a\nsheet\n"))
	require.Error(t, err)

	var pe *PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "efd", pe.Ledger)
	assert.Equal(t, StageIngest, pe.Stage)
	assert.ErrorIs(t, err, sheet.ErrMalformedSource)

	assert.Nil(t, e.Table())
	assert.Empty(t, e.Dict())
	assert.Equal(t, 0, e.Describe().Count)
	assert.False(t, e.TableComponent().Variables.Ready)
	_, subscribed := hub.Component(view.EfdTableName)
	assert.False(t, subscribed)
	assert.Empty(t, hub.Published())
}

func TestLedgerPipelineWithoutSource(t *testing.T) {
	s := NewSiafi(SiafiColumns, nil, nil, nil)
	err := s.Pipeline()
	assert.ErrorIs(t, err, ErrNoSource)

	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, StageSanitize, pe.Stage)
	assert.Contains(t, err.Error(), "siafi pipeline failed at sanitize")

	e := NewEfd(EfdColumns, nil, nil, nil)
	assert.ErrorIs(t, e.DropDuplicates(), ErrNoSource)
	assert.ErrorIs(t, e.SetView(), ErrNoSource)
}

func TestLedgerHeaderOnlySource(t *testing.T) {
	s := NewSiafi(SiafiColumns, nil, nil, nil)
	require.NoError(t, s.SetFile(workbook(t, siafiHeader)))

	assert.Equal(t, 0, s.Table().Len())
	d := s.Describe()
	assert.Equal(t, 0, d.Count)
	assert.Equal(t, currency.Zero, d.Mean)
	assert.Equal(t, currency.Zero, d.Sum)
}

func TestLedgerReadsCSVWithOptions(t *testing.T) {
	csv := []byte("CNPJ;CNO;VALOR\n10;;\"1.500,25\"\n10;2;\"2.000,00\"\n")
	opts := sheet.Options{Format: sheet.FormatCSV, Delimiter: ";"}

	e := NewEfd(EfdColumns, nil, nil, nil, WithSheetOptions(opts))
	require.NoError(t, e.SetFile(csv))
	assert.Equal(t, []Entry{{Key: 10, Aux: 2, Value: 2000}}, e.Table().Rows)
}

func TestEfdKeepsTextIdentifiersExact(t *testing.T) {
	tests := []struct {
		name  string
		row   string
		want  Entry
		rules []validation.Rule
	}{
		{"seventeen digits", `12345678901234567,,"1.234,56"`, Entry{Key: 12345678901234567, Value: 1234.56}, nil},
		{"exponent shaped text", `1e5,3,"10,00"`, Entry{Key: 15, Aux: 3, Value: 10}, nil},
		{"formatted taxpayer", `12.345.678/0001-90,,5`, Entry{Key: 12345678000190, Value: 5}, nil},
		{"negative value", `7,,"-1.234,56"`, Entry{Key: 7, Value: 1234.56}, []validation.Rule{validation.RuleSignDropped}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEfd(EfdColumns, nil, nil, nil)
			require.NoError(t, e.SetFile([]byte("CNPJ,CNO,VALOR\n"+tt.row+"\n")))
			assert.Equal(t, []Entry{tt.want}, e.Table().Rows)

			var rules []validation.Rule
			for _, issue := range e.Issues() {
				rules = append(rules, issue.Rule)
			}
			assert.Equal(t, tt.rules, rules)
		})
	}
}

func TestLedgerLogsIssues(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	s := NewSiafi(SiafiColumns, nil, nil, nil, WithLogger(logger))
	require.NoError(t, s.SetFile(workbook(t, siafiHeader, []any{1, "d", "n/a"})))

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"ledger":"siafi"`)
	assert.Contains(t, out, `"rule":"no_number"`)
}

func TestDescribeValues(t *testing.T) {
	d := describeValues([]float64{1, 2, 3, 4})
	assert.Equal(t, 4, d.Count)
	assert.Equal(t, "R$ 2,50", currency.Normalize(d.Mean))
	assert.Equal(t, "R$ 1,29", currency.Normalize(d.Std))
	assert.Equal(t, "R$ 1,75", currency.Normalize(d.P25))
	assert.Equal(t, "R$ 2,50", currency.Normalize(d.P50))
	assert.Equal(t, "R$ 3,25", currency.Normalize(d.P75))
	assert.Equal(t, "R$ 10,00", currency.Normalize(d.Sum))

	single := describeValues([]float64{-5})
	assert.Equal(t, currency.Zero, single.Std)
	assert.Equal(t, "-R$ 5,00", currency.Normalize(single.Max))

	m := d.Map()
	assert.Equal(t, 4, m["count"])
	assert.Len(t, m, 9)
}
