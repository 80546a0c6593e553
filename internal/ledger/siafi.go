package ledger

import (
	"slices"

	"github.com/ginjaninja78/siafi-efd-reconciler/internal/numeric"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/validation"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/view"
)

// SiafiName is the short name of the ledger.
const SiafiName = "siafi"

// SiafiColumns are the default names of the SIAFI source columns:
// collector identifier, document, value.
var SiafiColumns = [3]string{"RECOLHEDOR", "DOCUMENTO", "VALOR"}

// siafiRules flags degraded collector identifiers and values.
var siafiRules = []validation.ColumnRule{
	{Column: 0, Kind: validation.KindInteger},
	{Column: 2, Kind: validation.KindDecimal},
}

// siafiRecord is a sanitized row before grouping. The document cell is kept
// as read; only its presence matters.
type siafiRecord struct {
	collector int64
	document  any
	value     float64
}

// Siafi is the collection-side ledger. Its table has one row per collector
// with the number of documents and their summed value.
type Siafi struct {
	base
	records []siafiRecord
}

// NewSiafi creates an empty SIAFI ledger.
//
// PARAMETERS:
//   - names: The three column names, applied positionally to the source.
//   - table, info: The components to fill. nil uses the default catalog entry.
//   - registry: Where components are published. May be nil.
func NewSiafi(names [3]string, table, info *view.Component, registry view.Registry, opts ...Option) *Siafi {
	if table == nil {
		table = view.SiafiTable()
	}
	if info == nil {
		info = view.SiafiInfo()
	}
	return &Siafi{base: newBase(SiafiName, names, table, info, registry, opts)}
}

// SetFile ingests a SIAFI export and runs the pipeline.
func (s *Siafi) SetFile(data []byte) error {
	s.records = nil
	if err := s.ingest(data); err != nil {
		return err
	}
	return s.Pipeline()
}

// Pipeline runs sanitize, group, project and view.
func (s *Siafi) Pipeline() error {
	if err := s.SanitizeColumns(); err != nil {
		return err
	}
	if err := s.ApplyGroupBy(); err != nil {
		return err
	}
	s.project()
	return s.SetView()
}

// SanitizeColumns converts collectors to integers and values to cents,
// then sorts by collector. Missing cells become zero.
func (s *Siafi) SanitizeColumns() error {
	s.records = nil
	if err := s.checkRaw(siafiRules); err != nil {
		return err
	}

	records := make([]siafiRecord, len(s.raw.Records))
	for i, rec := range s.raw.Records {
		records[i] = siafiRecord{
			collector: numeric.ParseInteger(rec[0]),
			document:  rec[1],
			value:     numeric.Round2(numeric.ParseDecimal(rec[2])),
		}
	}

	slices.SortStableFunc(records, func(a, b siafiRecord) int {
		switch {
		case a.collector < b.collector:
			return -1
		case a.collector > b.collector:
			return 1
		}
		return 0
	})

	s.records = records
	s.logger.Debug().Int("rows", len(records)).Int("issues", len(s.issues)).Msg("columns sanitized")
	return nil
}

// ApplyGroupBy collapses the sorted records into one row per collector:
// the document count and the value sum rounded to cents.
func (s *Siafi) ApplyGroupBy() error {
	if s.records == nil {
		return s.fail(StageGroup, ErrNoSource)
	}

	rows := make([]Entry, 0, len(s.records))
	for i := 0; i < len(s.records); {
		j := i
		sum := 0.0
		for j < len(s.records) && s.records[j].collector == s.records[i].collector {
			sum += s.records[j].value
			j++
		}
		rows = append(rows, Entry{
			Key:   s.records[i].collector,
			Aux:   int64(j - i),
			Value: numeric.Round2(sum),
		})
		i = j
	}

	s.table = &Table{Name: "Siafi", Columns: s.names, Rows: rows}
	s.logger.Debug().Int("records", len(s.records)).Int("groups", len(rows)).Msg("records grouped")
	return nil
}
