package reconcile

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/ginjaninja78/siafi-efd-reconciler/internal/currency"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/ledger"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/numeric"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/validation"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/view"
)

// stubLedger serves a fixed table.
type stubLedger struct {
	table *ledger.Table
}

func (s *stubLedger) Name() string                { return "stub" }
func (s *stubLedger) Columns() [3]string          { return s.table.Columns }
func (s *stubLedger) SetFile([]byte) error        { return nil }
func (s *stubLedger) Pipeline() error             { return nil }
func (s *stubLedger) SanitizeColumns() error      { return nil }
func (s *stubLedger) SetView() error              { return nil }
func (s *stubLedger) Table() *ledger.Table        { return s.table }
func (s *stubLedger) Dict() map[string][]any      { return s.table.Dict() }
func (s *stubLedger) Describe() ledger.Describe   { return ledger.Describe{} }
func (s *stubLedger) Issues() []*validation.Issue { return nil }

func stub(columns [3]string, rows ...ledger.Entry) *stubLedger {
	return &stubLedger{table: &ledger.Table{Name: "stub", Columns: columns, Rows: rows}}
}

func siafiStub(rows ...ledger.Entry) *stubLedger { return stub(ledger.SiafiColumns, rows...) }
func efdStub(rows ...ledger.Entry) *stubLedger   { return stub(ledger.EfdColumns, rows...) }

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

func TestEngineReconcilesLedgers(t *testing.T) {
	hub := view.NewHub()

	siafi := ledger.NewSiafi(ledger.SiafiColumns, nil, nil, hub)
	require.NoError(t, siafi.SetFile(workbook(t,
		[]any{"RECOLHEDOR", "DOCUMENTO", "VALOR"},
		[]any{1, "d1", 10.00},
		[]any{1, "d2", 5.00},
		[]any{2, "d3", 3.00},
	)))

	efd := ledger.NewEfd(ledger.EfdColumns, nil, nil, hub)
	require.NoError(t, efd.SetFile(workbook(t,
		[]any{"CNPJ", "CNO", "VALOR"},
		[]any{1, 0, 7.00},
		[]any{1, 0, 9.00},
	)))

	engine := NewEngine(nil, nil, hub)
	require.NoError(t, engine.SetSiafi(siafi))
	assert.Nil(t, engine.Result(), "one side only is a no-op")

	require.NoError(t, engine.SetEfd(efd))
	result := engine.Result()
	require.NotNil(t, result)

	assert.Equal(t, []string{"RECOLHEDOR", "DOCUMENTO", "VALOR_SIAFI", "CNPJ", "CNO", "VALOR_EFD", "DIFERENÇAS"}, result.Columns.List())
	require.Equal(t, 2, result.Len())

	first := result.Rows[0]
	assert.Equal(t, Some(1), first.Collector)
	assert.Equal(t, Some(2), first.Documents)
	assert.Equal(t, SomeFloat(15), first.SiafiValue)
	assert.Equal(t, Some(1), first.Taxpayer)
	assert.Equal(t, SomeFloat(9), first.EfdValue)
	assert.Equal(t, SomeFloat(6), first.Difference)
	assert.Equal(t, MatchBoth, first.Match)

	second := result.Rows[1]
	assert.Equal(t, Some(2), second.Collector)
	assert.Equal(t, SomeFloat(0), second.EfdValue)
	assert.Equal(t, Some(0), second.Taxpayer)
	assert.Equal(t, SomeFloat(3), second.Difference)
	assert.Equal(t, MatchSiafiOnly, second.Match)

	assert.Equal(t, 2, result.SiafiGreater.Len())
	assert.Equal(t, []int{1, 2}, result.SiafiGreater.Source)
	assert.Equal(t, 0, result.EfdGreater.Len())

	s := result.Summary
	assert.Equal(t, "R$ 9,00", currency.Normalize(s.GreaterSiafiSum))
	assert.Equal(t, "R$ 0,00", currency.Normalize(s.GreaterEfdSum))
	assert.Equal(t, 2, s.GreaterSiafiCount)
	assert.Equal(t, 0, s.GreaterEfdCount)
	assert.Equal(t, []int64{1, 2}, s.GreaterSiafiCollectors)
	assert.Equal(t, []int64{}, s.GreaterEfdTaxpayers)
	assert.Equal(t, "R$ 9,00", currency.Normalize(s.Sum))

	assert.Equal(t, []any{6.0, 3.0}, result.Dict["DIFERENÇAS"])
	assert.Equal(t, []any{int64(1), int64(0)}, result.Dict["CNPJ"])

	assert.Equal(t, Stats{SiafiRows: 2, EfdRows: 1, MergedRows: 2, Matched: 1, SiafiOnly: 1, Duration: result.Stats.Duration}, result.Stats)
	assert.NotEmpty(t, result.ID)

	// Subscribed, not published: the shell chooses the view.
	_, ok := hub.Component(view.ParseTableName)
	assert.True(t, ok)
	assert.False(t, hub.IsPublished(view.ParseTableName))

	table := engine.TableComponent().Variables
	assert.True(t, table.Ready)
	assert.Equal(t, 2, table.Len)
	info := engine.InfoComponent().Variables
	assert.Equal(t, 2, info.Describe["greater_siafi_count"])
}

func TestEngineDifferences(t *testing.T) {
	engine := NewEngine(nil, nil, nil)
	require.NoError(t, engine.SetSiafi(siafiStub(
		ledger.Entry{Key: 1, Aux: 1, Value: 10},
		ledger.Entry{Key: 2, Aux: 1, Value: 1},
	)))
	require.NoError(t, engine.SetEfd(efdStub(
		ledger.Entry{Key: 1, Value: 4},
		ledger.Entry{Key: 2, Value: 5.5},
		ledger.Entry{Key: 3, Value: 2},
	)))

	bars := engine.Result().Differences()
	require.Len(t, bars, 3)
	assert.Equal(t, Bar{Label: "Rec-2 CNPJ-2", Collector: 2, Taxpayer: 2, Value: -4.5}, bars[0])
	assert.Equal(t, Bar{Label: "Rec-0 CNPJ-3", Collector: 0, Taxpayer: 3, Value: -2}, bars[1])
	assert.Equal(t, Bar{Label: "Rec-1 CNPJ-1", Collector: 1, Taxpayer: 1, Value: 6}, bars[2])

	s := engine.Result().Summary
	assert.Equal(t, "R$ 6,50", currency.Normalize(s.GreaterEfdSum))
	assert.Equal(t, []int64{2, 3}, s.GreaterEfdTaxpayers)
	assert.Equal(t, "-R$ 0,50", currency.Normalize(s.Sum))
}

func TestEngineOuterJoinProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	entries := func(n int) []ledger.Entry {
		out := make([]ledger.Entry, n)
		for i := range out {
			out[i] = ledger.Entry{
				Key:   int64(rng.Intn(12)),
				Aux:   int64(rng.Intn(3)),
				Value: numeric.Round2(float64(rng.Intn(2000)) / 100),
			}
		}
		return out
	}

	for run := 0; run < 50; run++ {
		left := entries(1 + rng.Intn(15))
		right := entries(1 + rng.Intn(15))

		engine := NewEngine(nil, nil, nil)
		require.NoError(t, engine.SetSiafi(siafiStub(left...)))
		require.NoError(t, engine.SetEfd(efdStub(right...)))
		result := engine.Result()
		require.NotNil(t, result)

		assert.GreaterOrEqual(t, result.Len(), max(len(left), len(right)))

		for _, l := range left {
			found := false
			for _, r := range result.Rows {
				if r.Match != MatchEfdOnly && r.Collector.Value == l.Key && r.SiafiValue.Value == l.Value && r.Documents.Value == l.Aux {
					found = true
					break
				}
			}
			assert.True(t, found, "siafi row %+v dropped", l)
		}
		for _, e := range right {
			found := false
			for _, r := range result.Rows {
				if r.Match != MatchSiafiOnly && r.Taxpayer.Value == e.Key && r.EfdValue.Value == e.Value && r.Secondary.Value == e.Aux {
					found = true
					break
				}
			}
			assert.True(t, found, "efd row %+v dropped", e)
		}

		for i, r := range result.Rows {
			assert.Equal(t, numeric.Round2(r.SiafiValue.Value-r.EfdValue.Value), r.Difference.Value, "row %d", i+1)
			if i > 0 {
				prev := result.Rows[i-1]
				assert.LessOrEqual(t, max(prev.Collector.Value, prev.Taxpayer.Value), max(r.Collector.Value, r.Taxpayer.Value))
			}
		}

		inSiafi := map[int]bool{}
		for _, src := range result.SiafiGreater.Source {
			inSiafi[src] = true
			row := result.Rows[src-1]
			assert.Greater(t, row.SiafiValue.Value, row.EfdValue.Value)
		}
		for _, src := range result.EfdGreater.Source {
			assert.False(t, inSiafi[src], "partitions overlap at %d", src)
			row := result.Rows[src-1]
			assert.Greater(t, row.EfdValue.Value, row.SiafiValue.Value)
		}
		assert.LessOrEqual(t, result.SiafiGreater.Len()+result.EfdGreater.Len(), result.Len())
		assert.Equal(t, result.Len()-result.SiafiGreater.Len()-result.EfdGreater.Len(), result.Stats.Equal)
	}
}

func TestOuterJoinDuplicateKeys(t *testing.T) {
	rows := outerJoin(
		[]ledger.Entry{{Key: 5, Value: 1}, {Key: 5, Value: 2}},
		[]ledger.Entry{{Key: 5, Value: 10}, {Key: 5, Value: 20}, {Key: 1, Value: 3}},
	)
	require.Len(t, rows, 5)
	assert.Equal(t, MatchEfdOnly, rows[0].Match)
	assert.Equal(t, int64(1), rows[0].Taxpayer.Value)

	var pairs [][2]float64
	for _, r := range rows[1:] {
		pairs = append(pairs, [2]float64{r.SiafiValue.Value, r.EfdValue.Value})
	}
	assert.Equal(t, [][2]float64{{1, 10}, {1, 20}, {2, 10}, {2, 20}}, pairs)
}

func TestEngineEqualValuesInNeitherPartition(t *testing.T) {
	engine := NewEngine(nil, nil, nil)
	require.NoError(t, engine.SetEfd(efdStub(ledger.Entry{Key: 7, Value: 1.1})))
	require.NoError(t, engine.SetSiafi(siafiStub(ledger.Entry{Key: 7, Aux: 1, Value: 1.1})))

	r := engine.Result()
	assert.Equal(t, 0, r.SiafiGreater.Len())
	assert.Equal(t, 0, r.EfdGreater.Len())
	assert.Equal(t, 1, r.Stats.Equal)
	assert.Equal(t, currency.Zero, r.Summary.Sum)
}

func TestEngineNoOpClearsStaleResult(t *testing.T) {
	hub := view.NewHub()
	engine := NewEngine(nil, nil, hub)
	require.NoError(t, engine.SetSiafi(siafiStub(ledger.Entry{Key: 1, Value: 1})))
	require.NoError(t, engine.SetEfd(efdStub(ledger.Entry{Key: 1, Value: 2})))
	require.NotNil(t, engine.Result())

	require.NoError(t, engine.SetEfd(efdStub()))
	assert.Nil(t, engine.Result())
	assert.False(t, engine.Ready())
	assert.False(t, engine.TableComponent().Variables.Ready)
	_, ok := hub.Component(view.ParseTableName)
	assert.False(t, ok)

	require.NoError(t, engine.SetEfd(nil))
	assert.Nil(t, engine.Result())
}

func TestEngineSchemaErrors(t *testing.T) {
	tests := []struct {
		name  string
		siafi [3]string
		efd   [3]string
		cfg   Config
	}{
		{"empty column", [3]string{"A", "", "C"}, ledger.EfdColumns, DefaultConfig()},
		{"duplicate column", ledger.SiafiColumns, [3]string{"X", "X", "V"}, DefaultConfig()},
		{"difference collides", ledger.SiafiColumns, ledger.EfdColumns, Config{DifferenceColumn: "CNPJ"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(nil, nil, nil, WithConfig(tt.cfg))
			require.NoError(t, engine.SetSiafi(stub(tt.siafi, ledger.Entry{Key: 1})))

			err := engine.SetEfd(stub(tt.efd, ledger.Entry{Key: 1}))
			assert.ErrorIs(t, err, ErrSchema)

			var se *StageError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, StageMerge, se.Stage)
			assert.Nil(t, engine.Result())
		})
	}
}

func TestEngineCustomNaming(t *testing.T) {
	cfg := Config{SiafiSuffix: "_A", EfdSuffix: "_B", DifferenceColumn: "DIFF"}
	engine := NewEngine(nil, nil, nil, WithConfig(cfg))
	require.NoError(t, engine.SetSiafi(stub([3]string{"ID", "N", "V"}, ledger.Entry{Key: 1, Value: 2})))
	require.NoError(t, engine.SetEfd(stub([3]string{"ID", "M", "V"}, ledger.Entry{Key: 1, Value: 1})))

	assert.Equal(t, []string{"ID_A", "N", "V_A", "ID_B", "M", "V_B", "DIFF"}, engine.Result().Columns.List())
}

func TestEngineClock(t *testing.T) {
	ticks := []time.Time{
		time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 15, 10, 0, 2, 0, time.UTC),
	}
	calls := 0
	clock := func() time.Time {
		tick := ticks[min(calls, len(ticks)-1)]
		calls++
		return tick
	}

	engine := NewEngine(nil, nil, nil, WithClock(clock))
	require.NoError(t, engine.SetSiafi(siafiStub(ledger.Entry{Key: 1, Value: 1})))
	require.NoError(t, engine.SetEfd(efdStub(ledger.Entry{Key: 1, Value: 1})))

	assert.Equal(t, ticks[1], engine.Result().GeneratedAt)
	assert.Equal(t, 2*time.Second, engine.Result().Stats.Duration)
}

func TestNullableMarshaling(t *testing.T) {
	out, err := json.Marshal(struct {
		A Int
		B Int
		C Float
		D Float
		M Match
	}{Some(5), Int{}, SomeFloat(1.5), Float{}, MatchEfdOnly})
	require.NoError(t, err)
	assert.JSONEq(t, `{"A":5,"B":null,"C":1.5,"D":null,"M":"efd_only"}`, string(out))

	y, err := yaml.Marshal(map[string]any{"a": Some(5), "b": Float{}})
	require.NoError(t, err)
	assert.Equal(t, "a: 5\nb: null\n", string(y))
}

func TestMatchString(t *testing.T) {
	tests := []struct {
		match Match
		want  string
	}{
		{MatchBoth, "both"},
		{MatchSiafiOnly, "siafi_only"},
		{MatchEfdOnly, "efd_only"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.match.String())
		})
	}
}
