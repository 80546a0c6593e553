// =============================================================================
// SIAFI/EFD Reconciler - Ledger Tables
// =============================================================================
//
// A ledger is one source of the reconciliation: the SIAFI collection registry
// or the EFD bookkeeping export. Both share the same lifecycle:
//
//   SetFile(data)
//     -> ingest      (sheet.Read with the ledger's three column names)
//     -> sanitize    (identifiers to integers, values to rounded decimals)
//     -> aggregate   (SIAFI: group by collector; EFD: dedupe by taxpayer)
//     -> project     (columnar dict for the view layer)
//     -> describe    (summary statistics over the value column)
//     -> view        (fill, subscribe and publish the table and info components)
//
// Every call reruns the whole pipeline from the attached source. A failure at
// any stage resets the ledger: no table, no statistics, and its components
// are removed from the registry.
//
// =============================================================================

package ledger

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ginjaninja78/siafi-efd-reconciler/internal/sheet"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/validation"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/view"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoSource is returned when the pipeline runs before a file is set.
	ErrNoSource = errors.New("no source attached")

	// ErrEmptyLedger is returned by consumers that need at least one row.
	ErrEmptyLedger = errors.New("ledger is empty")
)

// Stage names a pipeline step.
type Stage string

const (
	StageIngest   Stage = "ingest"
	StageSanitize Stage = "sanitize"
	StageGroup    Stage = "group"
	StageDedupe   Stage = "dedupe"
	StageProject  Stage = "project"
	StageDescribe Stage = "describe"
	StageView     Stage = "view"
)

// PipelineError reports the stage at which a ledger run aborted.
type PipelineError struct {
	Ledger string
	Stage  Stage
	Err    error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s pipeline failed at %s: %v", e.Ledger, e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// =============================================================================
// TABLE
// =============================================================================

// Entry is one sanitized row: an identifier, a secondary integer column and
// a monetary value rounded to cents.
type Entry struct {
	Key   int64
	Aux   int64
	Value float64
}

// Table is a named three-column table. Row i has the implicit index i+1.
type Table struct {
	Name    string
	Columns [3]string
	Rows    []Entry
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// KeyColumn, AuxColumn and ValueColumn return the column names.
func (t *Table) KeyColumn() string   { return t.Columns[0] }
func (t *Table) AuxColumn() string   { return t.Columns[1] }
func (t *Table) ValueColumn() string { return t.Columns[2] }

// Values returns the value column in row order.
func (t *Table) Values() []float64 {
	values := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row.Value
	}
	return values
}

// Index returns the 1-based row index.
func (t *Table) Index() []int {
	index := make([]int, len(t.Rows))
	for i := range t.Rows {
		index[i] = i + 1
	}
	return index
}

// Dict projects the table into column name -> ordered values. Identifier
// columns hold int64 and the value column float64.
func (t *Table) Dict() map[string][]any {
	keys := make([]any, len(t.Rows))
	aux := make([]any, len(t.Rows))
	values := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		keys[i] = row.Key
		aux[i] = row.Aux
		values[i] = row.Value
	}
	return map[string][]any{
		t.KeyColumn():   keys,
		t.AuxColumn():   aux,
		t.ValueColumn(): values,
	}
}

// =============================================================================
// LEDGER CONTRACT
// =============================================================================

// Ledger is the contract shared by SIAFI and EFD.
type Ledger interface {
	// Name is the short ledger name ("siafi", "efd").
	Name() string

	// Columns are the three column names, in source order.
	Columns() [3]string

	// SetFile ingests a source and runs the pipeline.
	SetFile(data []byte) error

	// Pipeline reruns every stage from the attached source.
	Pipeline() error

	// SanitizeColumns converts the raw cells into typed columns.
	SanitizeColumns() error

	// SetView fills the components and publishes them.
	SetView() error

	// Table is the result of the last successful run, or nil.
	Table() *Table

	// Dict is the columnar projection of Table.
	Dict() map[string][]any

	// Describe is the summary of the value column.
	Describe() Describe

	// Issues are the degraded cells found by the last sanitize.
	Issues() []*validation.Issue
}

// =============================================================================
// OPTIONS
// =============================================================================

// Option configures a ledger.
type Option func(*base)

// WithLogger sets the ledger logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *base) {
		b.logger = logger
	}
}

// WithSheetOptions sets how source files are read.
func WithSheetOptions(opts sheet.Options) Option {
	return func(b *base) {
		b.sheetOpts = opts
	}
}

// =============================================================================
// SHARED BEHAVIOR
// =============================================================================

// base holds the state and behavior common to both ledgers.
type base struct {
	name      string
	names     [3]string
	sheetOpts sheet.Options

	raw      *sheet.RawTable
	table    *Table
	dict     map[string][]any
	describe Describe
	issues   []*validation.Issue

	tableView *view.Component
	infoView  *view.Component
	registry  view.Registry
	logger    zerolog.Logger
}

func newBase(name string, names [3]string, table, info *view.Component, registry view.Registry, opts []Option) base {
	b := base{
		name:      name,
		names:     names,
		sheetOpts: sheet.DefaultOptions(),
		dict:      map[string][]any{},
		describe:  describeValues(nil),
		issues:    []*validation.Issue{},
		tableView: table,
		infoView:  info,
		registry:  registry,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&b)
	}
	b.logger = b.logger.With().Str("ledger", name).Logger()
	return b
}

func (b *base) Name() string                { return b.name }
func (b *base) Columns() [3]string          { return b.names }
func (b *base) Table() *Table               { return b.table }
func (b *base) Dict() map[string][]any      { return b.dict }
func (b *base) Describe() Describe          { return b.describe }
func (b *base) Issues() []*validation.Issue { return b.issues }

// TableComponent and InfoComponent return the components the ledger fills.
func (b *base) TableComponent() *view.Component { return b.tableView }
func (b *base) InfoComponent() *view.Component  { return b.infoView }

// ingest reads data with the ledger's column names. The previous source is
// discarded even if reading fails.
func (b *base) ingest(data []byte) error {
	b.raw = nil

	raw, err := sheet.Read(data, b.names[:], b.sheetOpts)
	if err != nil {
		return b.fail(StageIngest, err)
	}

	b.raw = raw
	b.logger.Debug().
		Int("records", raw.Len()).
		Str("format", string(raw.Format)).
		Msg("source ingested")
	return nil
}

// checkRaw validates the source before sanitizing and records issues.
func (b *base) checkRaw(rules []validation.ColumnRule) error {
	if b.raw == nil {
		return b.fail(StageSanitize, ErrNoSource)
	}
	for i, rec := range b.raw.Records {
		if len(rec) != sheet.ColumnCount {
			return b.fail(StageSanitize, fmt.Errorf("%w: record %d has %d cells", sheet.ErrMalformedSource, i+1, len(rec)))
		}
	}

	result := validation.Check(b.raw, rules)
	b.issues = result.Issues
	for _, issue := range result.Issues {
		b.logger.Warn().
			Int("row", issue.Row).
			Str("column", issue.Column).
			Str("value", issue.Value).
			Str("rule", string(issue.Rule)).
			Msg(issue.Message)
	}
	return nil
}

// project builds the dict and the statistics from the current table.
func (b *base) project() {
	b.dict = b.table.Dict()
	b.describe = describeValues(b.table.Values())

	b.logger.Debug().
		Int("rows", b.table.Len()).
		Str("column", b.table.ValueColumn()).
		Str("sum", b.describe.Sum).
		Msg("table projected")
}

// SetView fills the components with a fresh state, then subscribes and
// publishes them. Without a registry only the components are filled.
func (b *base) SetView() error {
	if b.table == nil {
		return b.fail(StageView, ErrNoSource)
	}

	columns := b.names[:]
	if b.tableView != nil {
		b.tableView.SetVariables(view.TableVariables(b.dict, append([]string(nil), columns...), b.table.Len()))
	}
	if b.infoView != nil {
		b.infoView.SetVariables(view.InfoVariables(b.describe.Map()))
	}

	if b.registry == nil {
		return nil
	}
	for _, c := range []*view.Component{b.tableView, b.infoView} {
		if c == nil {
			continue
		}
		if err := b.registry.Subscribe(c); err != nil {
			return b.fail(StageView, err)
		}
		if err := b.registry.Publish(c.Name); err != nil {
			return b.fail(StageView, err)
		}
	}
	return nil
}

// fail resets the ledger and wraps err in a PipelineError.
func (b *base) fail(stage Stage, err error) error {
	b.reset()
	b.logger.Error().Err(err).Str("stage", string(stage)).Msg("pipeline aborted")
	return &PipelineError{Ledger: b.name, Stage: stage, Err: err}
}

// reset drops every derived result and withdraws the components.
func (b *base) reset() {
	b.table = nil
	b.dict = map[string][]any{}
	b.describe = describeValues(nil)
	b.issues = []*validation.Issue{}

	for _, c := range []*view.Component{b.tableView, b.infoView} {
		if c == nil {
			continue
		}
		c.Reset()
		if b.registry != nil {
			if err := b.registry.Unsubscribe(c.Name); err != nil && !errors.Is(err, view.ErrNotSubscribed) {
				b.logger.Warn().Err(err).Str("component", c.Name).Msg("failed to withdraw component")
			}
		}
	}
}
