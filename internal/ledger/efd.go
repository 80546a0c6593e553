package ledger

import (
	"slices"

	"github.com/ginjaninja78/siafi-efd-reconciler/internal/numeric"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/validation"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/view"
)

// EfdName is the short name of the ledger.
const EfdName = "efd"

// EfdColumns are the default names of the EFD source columns:
// taxpayer identifier, construction registry, value.
var EfdColumns = [3]string{"CNPJ", "CNO", "VALOR"}

// efdRules: the secondary identifier is often blank.
var efdRules = []validation.ColumnRule{
	{Column: 0, Kind: validation.KindInteger},
	{Column: 1, Kind: validation.KindInteger, AllowMissing: true},
	{Column: 2, Kind: validation.KindDecimal},
}

// Efd is the bookkeeping-side ledger. Its table has one row per taxpayer,
// the last one declared in the source.
type Efd struct {
	base
	sanitized []Entry
}

// NewEfd creates an empty EFD ledger. Parameters are as for NewSiafi.
func NewEfd(names [3]string, table, info *view.Component, registry view.Registry, opts ...Option) *Efd {
	if table == nil {
		table = view.EfdTable()
	}
	if info == nil {
		info = view.EfdInfo()
	}
	return &Efd{base: newBase(EfdName, names, table, info, registry, opts)}
}

// SetFile ingests an EFD export and runs the pipeline.
func (e *Efd) SetFile(data []byte) error {
	e.sanitized = nil
	if err := e.ingest(data); err != nil {
		return err
	}
	return e.Pipeline()
}

// Pipeline runs sanitize, dedupe, project and view.
func (e *Efd) Pipeline() error {
	if err := e.SanitizeColumns(); err != nil {
		return err
	}
	if err := e.DropDuplicates(); err != nil {
		return err
	}
	e.project()
	return e.SetView()
}

// SanitizeColumns converts identifiers to integers and values to cents.
// A missing secondary identifier is zero.
func (e *Efd) SanitizeColumns() error {
	e.sanitized = nil
	if err := e.checkRaw(efdRules); err != nil {
		return err
	}

	rows := make([]Entry, len(e.raw.Records))
	for i, rec := range e.raw.Records {
		rows[i] = Entry{
			Key:   numeric.ParseInteger(rec[0]),
			Aux:   numeric.ParseInteger(rec[1]),
			Value: numeric.Round2(numeric.ParseDecimal(rec[2])),
		}
	}

	e.sanitized = rows
	e.logger.Debug().Int("rows", len(rows)).Int("issues", len(e.issues)).Msg("columns sanitized")
	return nil
}

// DropDuplicates keeps the last row of each taxpayer and sorts by taxpayer.
func (e *Efd) DropDuplicates() error {
	if e.sanitized == nil {
		return e.fail(StageDedupe, ErrNoSource)
	}

	last := make(map[int64]int, len(e.sanitized))
	for i, row := range e.sanitized {
		last[row.Key] = i
	}

	rows := make([]Entry, 0, len(last))
	for i, row := range e.sanitized {
		if last[row.Key] == i {
			rows = append(rows, row)
		}
	}

	slices.SortStableFunc(rows, func(a, b Entry) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}
		return 0
	})

	e.table = &Table{Name: "Efd", Columns: e.names, Rows: rows}
	e.logger.Debug().Int("rows", len(e.sanitized)).Int("unique", len(rows)).Msg("duplicates dropped")
	return nil
}
