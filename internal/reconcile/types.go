package reconcile

import (
	"encoding/json"
	"strconv"
	"time"
)

// =============================================================================
// NULLABLE CELLS
// =============================================================================

// Int is an identifier cell that may be absent.
type Int struct {
	Value int64
	Valid bool
}

// Some returns a present Int.
func Some(v int64) Int { return Int{Value: v, Valid: true} }

// Any returns the value, or nil when absent.
func (i Int) Any() any {
	if !i.Valid {
		return nil
	}
	return i.Value
}

// MarshalJSON writes null for an absent value.
func (i Int) MarshalJSON() ([]byte, error) {
	if !i.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, i.Value, 10), nil
}

// MarshalYAML writes null for an absent value.
func (i Int) MarshalYAML() (any, error) {
	return i.Any(), nil
}

// Float is a monetary cell that may be absent.
type Float struct {
	Value float64
	Valid bool
}

// SomeFloat returns a present Float.
func SomeFloat(v float64) Float { return Float{Value: v, Valid: true} }

// Any returns the value, or nil when absent.
func (f Float) Any() any {
	if !f.Valid {
		return nil
	}
	return f.Value
}

// MarshalJSON writes null for an absent value.
func (f Float) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// MarshalYAML writes null for an absent value.
func (f Float) MarshalYAML() (any, error) {
	return f.Any(), nil
}

// =============================================================================
// MERGED ROWS
// =============================================================================

// Match records which ledgers contributed to a merged row.
type Match int

const (
	MatchBoth Match = iota
	MatchSiafiOnly
	MatchEfdOnly
)

// String returns the merge indicator name.
func (m Match) String() string {
	switch m {
	case MatchSiafiOnly:
		return "siafi_only"
	case MatchEfdOnly:
		return "efd_only"
	default:
		return "both"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Match) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Row is one row of the reconciled table.
type Row struct {
	Collector  Int   `json:"collector" yaml:"collector"`
	Documents  Int   `json:"documents" yaml:"documents"`
	SiafiValue Float `json:"siafi_value" yaml:"siafi_value"`
	Taxpayer   Int   `json:"taxpayer" yaml:"taxpayer"`
	Secondary  Int   `json:"secondary" yaml:"secondary"`
	EfdValue   Float `json:"efd_value" yaml:"efd_value"`
	Difference Float `json:"difference" yaml:"difference"`
	Match      Match `json:"match" yaml:"match"`
}

// Cells returns the row in column order. Absent cells are nil.
func (r Row) Cells() []any {
	return []any{
		r.Collector.Any(),
		r.Documents.Any(),
		r.SiafiValue.Any(),
		r.Taxpayer.Any(),
		r.Secondary.Any(),
		r.EfdValue.Any(),
		r.Difference.Any(),
	}
}

// Columns are the names of the merged columns.
type Columns struct {
	Collector  string `json:"collector" yaml:"collector"`
	Documents  string `json:"documents" yaml:"documents"`
	SiafiValue string `json:"siafi_value" yaml:"siafi_value"`
	Taxpayer   string `json:"taxpayer" yaml:"taxpayer"`
	Secondary  string `json:"secondary" yaml:"secondary"`
	EfdValue   string `json:"efd_value" yaml:"efd_value"`
	Difference string `json:"difference" yaml:"difference"`
}

// List returns the names in table order.
func (c Columns) List() []string {
	return []string{c.Collector, c.Documents, c.SiafiValue, c.Taxpayer, c.Secondary, c.EfdValue, c.Difference}
}

// =============================================================================
// PARTITIONS
// =============================================================================

// Partition is a filtered, reindexed subset of the merged rows.
type Partition struct {
	// Rows in merged order. Row i has the index i+1.
	Rows []Row `json:"rows" yaml:"rows"`

	// Source holds the 1-based merged index of each row.
	Source []int `json:"source" yaml:"source"`
}

// Len returns the number of rows.
func (p Partition) Len() int {
	return len(p.Rows)
}

// DifferenceSum adds the difference column.
func (p Partition) DifferenceSum() float64 {
	sum := 0.0
	for _, r := range p.Rows {
		if r.Difference.Valid {
			sum += r.Difference.Value
		}
	}
	return sum
}

// Collectors lists the collector identifiers in row order.
func (p Partition) Collectors() []int64 {
	ids := make([]int64, 0, len(p.Rows))
	for _, r := range p.Rows {
		if r.Collector.Valid {
			ids = append(ids, r.Collector.Value)
		}
	}
	return ids
}

// Taxpayers lists the taxpayer identifiers in row order.
func (p Partition) Taxpayers() []int64 {
	ids := make([]int64, 0, len(p.Rows))
	for _, r := range p.Rows {
		if r.Taxpayer.Valid {
			ids = append(ids, r.Taxpayer.Value)
		}
	}
	return ids
}

// =============================================================================
// SUMMARY
// =============================================================================

// Summary holds the reconciliation statistics. Monetary fields are
// formatted BRL strings.
type Summary struct {
	GreaterSiafiSum        string  `json:"greater_siafi_sum" yaml:"greater_siafi_sum"`
	GreaterEfdSum          string  `json:"greater_efd_sum" yaml:"greater_efd_sum"`
	GreaterSiafiCount      int     `json:"greater_siafi_count" yaml:"greater_siafi_count"`
	GreaterEfdCount        int     `json:"greater_efd_count" yaml:"greater_efd_count"`
	GreaterSiafiCollectors []int64 `json:"greater_siafi_recolhedor" yaml:"greater_siafi_recolhedor"`
	GreaterEfdTaxpayers    []int64 `json:"greater_efd_cnpj" yaml:"greater_efd_cnpj"`
	Sum                    string  `json:"sum" yaml:"sum"`
}

// Map returns the summary keyed the way the info template expects.
func (s Summary) Map() map[string]any {
	return map[string]any{
		"greater_siafi_sum":        s.GreaterSiafiSum,
		"greater_efd_sum":          s.GreaterEfdSum,
		"greater_siafi_count":      s.GreaterSiafiCount,
		"greater_efd_count":        s.GreaterEfdCount,
		"greater_siafi_recolhedor": s.GreaterSiafiCollectors,
		"greater_efd_cnpj":         s.GreaterEfdTaxpayers,
		"sum":                      s.Sum,
	}
}

// =============================================================================
// RESULT
// =============================================================================

// Bar is one entry of the differences chart.
type Bar struct {
	Label     string  `json:"label" yaml:"label"`
	Collector int64   `json:"collector" yaml:"collector"`
	Taxpayer  int64   `json:"taxpayer" yaml:"taxpayer"`
	Value     float64 `json:"value" yaml:"value"`
}

// Stats contains run statistics.
type Stats struct {
	SiafiRows  int           `json:"siafi_rows" yaml:"siafi_rows"`
	EfdRows    int           `json:"efd_rows" yaml:"efd_rows"`
	MergedRows int           `json:"merged_rows" yaml:"merged_rows"`
	Matched    int           `json:"matched" yaml:"matched"`
	SiafiOnly  int           `json:"siafi_only" yaml:"siafi_only"`
	EfdOnly    int           `json:"efd_only" yaml:"efd_only"`
	Equal      int           `json:"equal" yaml:"equal"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
}

// Result is the output of one reconciliation run. It is built fresh per run
// and never modified afterwards.
type Result struct {
	// ID identifies the run.
	ID string `json:"id" yaml:"id"`

	// GeneratedAt is when the run finished.
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`

	// Columns names the merged columns.
	Columns Columns `json:"columns" yaml:"columns"`

	// Rows is the merged table. Row i has the index i+1.
	Rows []Row `json:"rows" yaml:"rows"`

	// SiafiGreater and EfdGreater are the rows where one side exceeds the other.
	SiafiGreater Partition `json:"siafi_greater" yaml:"siafi_greater"`
	EfdGreater   Partition `json:"efd_greater" yaml:"efd_greater"`

	// Summary holds the reconciliation statistics.
	Summary Summary `json:"summary" yaml:"summary"`

	// Dict is the columnar projection of Rows.
	Dict map[string][]any `json:"-" yaml:"-"`

	// Stats contains run statistics.
	Stats Stats `json:"stats" yaml:"stats"`
}

// Len returns the number of merged rows.
func (r *Result) Len() int {
	return len(r.Rows)
}

// Differences returns the chart series: EFD-greater rows, then
// SIAFI-greater rows, each labeled with both identifiers.
func (r *Result) Differences() []Bar {
	bars := make([]Bar, 0, r.EfdGreater.Len()+r.SiafiGreater.Len())
	for _, p := range []Partition{r.EfdGreater, r.SiafiGreater} {
		for _, row := range p.Rows {
			bars = append(bars, Bar{
				Label:     "Rec-" + strconv.FormatInt(row.Collector.Value, 10) + " CNPJ-" + strconv.FormatInt(row.Taxpayer.Value, 10),
				Collector: row.Collector.Value,
				Taxpayer:  row.Taxpayer.Value,
				Value:     row.Difference.Value,
			})
		}
	}
	return bars
}
