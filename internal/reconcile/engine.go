// =============================================================================
// SIAFI/EFD Reconciler - Reconciliation Engine
// =============================================================================
//
// The engine joins the grouped SIAFI table with the deduplicated EFD table
// and derives the discrepancies between them.
//
// PIPELINE (runs on every SetSiafi / SetEfd, only when both tables have rows):
//   1. Merge:      outer join on collector = taxpayer, missing side filled with 0
//   2. Difference: SIAFI value - EFD value, rounded to cents
//   3. Normalize:  identifiers as nullable integers, values as nullable floats
//   4. Reindex:    contiguous 1-based index
//   5. Partition:  SIAFI-greater and EFD-greater rows, each reindexed
//   6. Summary:    partition sums, counts and identifiers; grand total
//   7. Project:    columnar dict, view-state for the table and info components
//
// The join assumes both identifier columns denote the same registration
// number. Formats are not reconciled beyond numeric equality.
//
// =============================================================================

package reconcile

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ginjaninja78/siafi-efd-reconciler/internal/ledger"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/view"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrSchema indicates tables whose columns cannot be merged.
var ErrSchema = errors.New("unexpected schema")

// Stage names an engine pipeline step.
type Stage string

const (
	StageMerge      Stage = "merge"
	StageDifference Stage = "difference"
	StagePartition  Stage = "partition"
	StageSummary    Stage = "summary"
	StageView       Stage = "view"
)

// StageError reports the stage at which a reconciliation run aborted.
type StageError struct {
	Stage Stage
	Err   error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("reconciliation failed at %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error {
	return e.Err
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config controls merged column naming.
type Config struct {
	// SiafiSuffix is appended to SIAFI columns whose name also exists in EFD.
	// Default: "_SIAFI"
	SiafiSuffix string

	// EfdSuffix is appended to EFD columns whose name also exists in SIAFI.
	// Default: "_EFD"
	EfdSuffix string

	// DifferenceColumn names the computed column.
	// Default: "DIFERENÇAS"
	DifferenceColumn string
}

// DefaultConfig returns the standard column naming.
func DefaultConfig() Config {
	return Config{
		SiafiSuffix:      "_SIAFI",
		EfdSuffix:        "_EFD",
		DifferenceColumn: "DIFERENÇAS",
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.SiafiSuffix == "" {
		c.SiafiSuffix = d.SiafiSuffix
	}
	if c.EfdSuffix == "" {
		c.EfdSuffix = d.EfdSuffix
	}
	if c.DifferenceColumn == "" {
		c.DifferenceColumn = d.DifferenceColumn
	}
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine holds the two ledgers and the result of the last run.
type Engine struct {
	siafi ledger.Ledger
	efd   ledger.Ledger

	cfg      Config
	result   *Result
	table    *view.Component
	info     *view.Component
	registry view.Registry
	logger   zerolog.Logger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithConfig sets column naming.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithClock sets the time source used for GeneratedAt and Duration.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates an engine with no ledgers.
//
// PARAMETERS:
//   - table, info: The reconciled table and summary components. nil uses
//     the default catalog entry.
//   - registry: Where components are subscribed. May be nil.
func NewEngine(table, info *view.Component, registry view.Registry, opts ...Option) *Engine {
	if table == nil {
		table = view.ParseTable()
	}
	if info == nil {
		info = view.ParseInfo()
	}

	e := &Engine{
		cfg:      DefaultConfig(),
		table:    table,
		info:     info,
		registry: registry,
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cfg.applyDefaults()
	e.logger = e.logger.With().Str("component", "reconcile").Logger()
	return e
}

// SetSiafi assigns the collection-side ledger and reruns the pipeline.
func (e *Engine) SetSiafi(l ledger.Ledger) error {
	e.siafi = l
	return e.Pipeline()
}

// SetEfd assigns the bookkeeping-side ledger and reruns the pipeline.
func (e *Engine) SetEfd(l ledger.Ledger) error {
	e.efd = l
	return e.Pipeline()
}

// Siafi returns the collection-side ledger, or nil.
func (e *Engine) Siafi() ledger.Ledger { return e.siafi }

// Efd returns the bookkeeping-side ledger, or nil.
func (e *Engine) Efd() ledger.Ledger { return e.efd }

// Result returns the last successful result, or nil when none is available.
func (e *Engine) Result() *Result { return e.result }

// TableComponent and InfoComponent return the components the engine fills.
func (e *Engine) TableComponent() *view.Component { return e.table }
func (e *Engine) InfoComponent() *view.Component  { return e.info }

// Ready reports whether both ledgers have non-empty tables.
func (e *Engine) Ready() bool {
	return hasRows(e.siafi) && hasRows(e.efd)
}

func hasRows(l ledger.Ledger) bool {
	return l != nil && l.Table().Len() > 0
}

// Pipeline runs the reconciliation. Without two non-empty tables it clears
// the previous result and returns nil.
func (e *Engine) Pipeline() error {
	if !e.Ready() {
		if e.result != nil {
			e.logger.Debug().Msg("counterpart missing, previous result discarded")
		}
		e.reset()
		return nil
	}

	start := e.now()
	siafiTable := e.siafi.Table()
	efdTable := e.efd.Table()

	// STEP 1: Merge.
	cols, err := mergedColumns(siafiTable.Columns, efdTable.Columns, e.cfg)
	if err != nil {
		return e.fail(StageMerge, err)
	}
	rows := outerJoin(siafiTable.Rows, efdTable.Rows)
	e.logger.Debug().Int("siafi", siafiTable.Len()).Int("efd", efdTable.Len()).Int("merged", len(rows)).Msg("tables merged")

	// STEP 2: Difference.
	if err := applyDifference(rows); err != nil {
		return e.fail(StageDifference, err)
	}

	// STEP 3-5: Partition. Rows are typed and contiguous from the merge.
	siafiPart := partition(rows, siafiGreater)
	efdPart := partition(rows, efdGreater)
	if siafiPart.Len()+efdPart.Len() > len(rows) {
		return e.fail(StagePartition, fmt.Errorf("%w: partitions exceed merged rows", ErrSchema))
	}

	// STEP 6: Summary.
	summary := summarize(rows, siafiPart, efdPart)

	// STEP 7: Project.
	finished := e.now()
	result := &Result{
		ID:           uuid.NewString(),
		GeneratedAt:  finished,
		Columns:      cols,
		Rows:         rows,
		SiafiGreater: siafiPart,
		EfdGreater:   efdPart,
		Summary:      summary,
		Dict:         project(cols, rows),
		Stats:        computeStats(siafiTable, efdTable, rows, siafiPart, efdPart),
	}
	result.Stats.Duration = finished.Sub(start)

	if err := e.setView(result); err != nil {
		return e.fail(StageView, err)
	}
	e.result = result

	e.logger.Info().
		Str("run", result.ID).
		Int("rows", result.Len()).
		Int("siafi_greater", siafiPart.Len()).
		Int("efd_greater", efdPart.Len()).
		Str("sum", summary.Sum).
		Msg("reconciliation complete")
	return nil
}

// setView fills both components and subscribes them. Publishing is left to
// the shell, which decides which view is on screen.
func (e *Engine) setView(r *Result) error {
	e.table.SetVariables(view.TableVariables(r.Dict, r.Columns.List(), r.Len()))
	e.info.SetVariables(view.InfoVariables(r.Summary.Map()))

	if e.registry == nil {
		return nil
	}
	for _, c := range []*view.Component{e.table, e.info} {
		if err := e.registry.Subscribe(c); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) fail(stage Stage, err error) error {
	e.reset()
	e.logger.Error().Err(err).Str("stage", string(stage)).Msg("reconciliation aborted")
	return &StageError{Stage: stage, Err: err}
}

// reset drops the result and withdraws the components.
func (e *Engine) reset() {
	e.result = nil
	for _, c := range []*view.Component{e.table, e.info} {
		c.Reset()
		if e.registry != nil {
			if err := e.registry.Unsubscribe(c.Name); err != nil && !errors.Is(err, view.ErrNotSubscribed) {
				e.logger.Warn().Err(err).Str("component", c.Name).Msg("failed to withdraw component")
			}
		}
	}
}

func computeStats(siafi, efd *ledger.Table, rows []Row, siafiPart, efdPart Partition) Stats {
	s := Stats{
		SiafiRows:  siafi.Len(),
		EfdRows:    efd.Len(),
		MergedRows: len(rows),
	}
	for _, r := range rows {
		switch r.Match {
		case MatchBoth:
			s.Matched++
		case MatchSiafiOnly:
			s.SiafiOnly++
		case MatchEfdOnly:
			s.EfdOnly++
		}
	}
	s.Equal = len(rows) - siafiPart.Len() - efdPart.Len()
	return s
}
