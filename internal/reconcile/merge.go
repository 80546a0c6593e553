package reconcile

import (
	"fmt"
	"math"
	"slices"

	"github.com/ginjaninja78/siafi-efd-reconciler/internal/currency"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/ledger"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/numeric"
)

// =============================================================================
// COLUMNS
// =============================================================================

// mergedColumns names the merged columns. Names present in both tables get
// the ledger suffix; the difference column is appended.
func mergedColumns(siafi, efd [3]string, cfg Config) (Columns, error) {
	for _, cols := range [][3]string{siafi, efd} {
		seen := map[string]bool{}
		for _, c := range cols {
			if c == "" {
				return Columns{}, fmt.Errorf("%w: empty column name in %v", ErrSchema, cols)
			}
			if seen[c] {
				return Columns{}, fmt.Errorf("%w: duplicate column %q in %v", ErrSchema, c, cols)
			}
			seen[c] = true
		}
	}

	overlap := map[string]bool{}
	for _, a := range siafi {
		for _, b := range efd {
			if a == b {
				overlap[a] = true
			}
		}
	}
	left := func(name string) string {
		if overlap[name] {
			return name + cfg.SiafiSuffix
		}
		return name
	}
	right := func(name string) string {
		if overlap[name] {
			return name + cfg.EfdSuffix
		}
		return name
	}

	cols := Columns{
		Collector:  left(siafi[0]),
		Documents:  left(siafi[1]),
		SiafiValue: left(siafi[2]),
		Taxpayer:   right(efd[0]),
		Secondary:  right(efd[1]),
		EfdValue:   right(efd[2]),
		Difference: cfg.DifferenceColumn,
	}

	if slices.Contains(cols.List()[:6], cols.Difference) {
		return Columns{}, fmt.Errorf("%w: difference column %q collides with a ledger column", ErrSchema, cols.Difference)
	}
	return cols, nil
}

// =============================================================================
// MERGE
// =============================================================================

// outerJoin matches SIAFI collectors with EFD taxpayers. The result is
// sorted by key; equal keys on both sides produce every pairing; unmatched
// rows get zeros for the other side.
func outerJoin(siafi, efd []ledger.Entry) []Row {
	left := sortedByKey(siafi)
	right := sortedByKey(efd)

	rows := make([]Row, 0, max(len(left), len(right)))
	i, j := 0, 0
	for i < len(left) || j < len(right) {
		switch {
		case j >= len(right) || (i < len(left) && left[i].Key < right[j].Key):
			rows = append(rows, joinRow(&left[i], nil))
			i++
		case i >= len(left) || right[j].Key < left[i].Key:
			rows = append(rows, joinRow(nil, &right[j]))
			j++
		default:
			key := left[i].Key
			li, rj := i, j
			for i < len(left) && left[i].Key == key {
				i++
			}
			for j < len(right) && right[j].Key == key {
				j++
			}
			for a := li; a < i; a++ {
				for b := rj; b < j; b++ {
					rows = append(rows, joinRow(&left[a], &right[b]))
				}
			}
		}
	}
	return rows
}

func sortedByKey(entries []ledger.Entry) []ledger.Entry {
	out := slices.Clone(entries)
	slices.SortStableFunc(out, func(a, b ledger.Entry) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}
		return 0
	})
	return out
}

// joinRow builds a merged row. A nil side is filled with zeros.
func joinRow(l, r *ledger.Entry) Row {
	var row Row
	switch {
	case l == nil:
		row.Match = MatchEfdOnly
		l = &ledger.Entry{}
	case r == nil:
		row.Match = MatchSiafiOnly
		r = &ledger.Entry{}
	default:
		row.Match = MatchBoth
	}

	row.Collector = Some(l.Key)
	row.Documents = Some(l.Aux)
	row.SiafiValue = SomeFloat(l.Value)
	row.Taxpayer = Some(r.Key)
	row.Secondary = Some(r.Aux)
	row.EfdValue = SomeFloat(r.Value)
	return row
}

// =============================================================================
// DIFFERENCE
// =============================================================================

// applyDifference sets difference = SIAFI value - EFD value, rounded to cents.
func applyDifference(rows []Row) error {
	for i := range rows {
		r := &rows[i]
		if !r.SiafiValue.Valid || !r.EfdValue.Valid {
			r.Difference = Float{}
			continue
		}
		d := numeric.Round2(r.SiafiValue.Value - r.EfdValue.Value)
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return fmt.Errorf("%w: row %d has a non-finite difference", ErrSchema, i+1)
		}
		r.Difference = SomeFloat(d)
	}
	return nil
}

// =============================================================================
// PARTITION
// =============================================================================

// partition selects rows where keep holds. Comparisons with an absent value
// never hold.
func partition(rows []Row, keep func(siafi, efd float64) bool) Partition {
	p := Partition{Rows: []Row{}, Source: []int{}}
	for i, r := range rows {
		if !r.SiafiValue.Valid || !r.EfdValue.Valid {
			continue
		}
		if keep(r.SiafiValue.Value, r.EfdValue.Value) {
			p.Rows = append(p.Rows, r)
			p.Source = append(p.Source, i+1)
		}
	}
	return p
}

func siafiGreater(siafi, efd float64) bool { return siafi > efd }
func efdGreater(siafi, efd float64) bool   { return efd > siafi }

// =============================================================================
// SUMMARY
// =============================================================================

// summarize computes the reconciliation statistics.
func summarize(rows []Row, siafiPart, efdPart Partition) Summary {
	var siafiSum, efdSum float64
	for _, r := range rows {
		if r.SiafiValue.Valid {
			siafiSum += r.SiafiValue.Value
		}
		if r.EfdValue.Valid {
			efdSum += r.EfdValue.Value
		}
	}

	return Summary{
		GreaterSiafiSum:        currency.FormatBRL(math.Abs(numeric.Round2(siafiPart.DifferenceSum()))),
		GreaterEfdSum:          currency.FormatBRL(math.Abs(numeric.Round2(efdPart.DifferenceSum()))),
		GreaterSiafiCount:      siafiPart.Len(),
		GreaterEfdCount:        efdPart.Len(),
		GreaterSiafiCollectors: siafiPart.Collectors(),
		GreaterEfdTaxpayers:    efdPart.Taxpayers(),
		Sum:                    currency.FormatBRL(numeric.Round2(siafiSum - efdSum)),
	}
}

// =============================================================================
// PROJECTION
// =============================================================================

// project builds the columnar dict of the merged rows. Absent cells are nil.
func project(cols Columns, rows []Row) map[string][]any {
	names := cols.List()
	dict := make(map[string][]any, len(names))
	for _, name := range names {
		dict[name] = make([]any, len(rows))
	}
	for i, r := range rows {
		for c, v := range r.Cells() {
			dict[names[c]][i] = v
		}
	}
	return dict
}
