// =============================================================================
// SIAFI/EFD Reconciler - Reconcile Command
// =============================================================================
//
// This file defines the 'reconcile' command, the main command of the tool.
// It orchestrates both ledger pipelines and the reconciliation engine.
//
// COMMAND USAGE:
//   reconciler reconcile [flags]
//
// FLAGS:
//   --siafi    : SIAFI ledger file (default: newest match in the input directory)
//   --efd      : EFD ledger file (default: newest match in the input directory)
//   --show     : View to print: siafi, efd, siafi&efd, siafi-efd
//   --export   : Export formats, comma separated: xlsx, xml, csv
//   --archive  : Move both ledger files to the input archive after success
//
// PROCESSING PIPELINE:
//   1. Load configuration
//   2. Resolve both ledger files
//   3. Run the SIAFI and EFD pipelines
//   4. Run the reconciliation engine
//   5. Print the selected view
//   6. Write exports and the issue log
//   7. Archive the ledger files
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/siafi-efd-reconciler/internal/config"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/export"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/ledger"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/output"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/reconcile"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/view"
	"github.com/ginjaninja78/siafi-efd-reconciler/pkg/utils"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

// siafiFile and efdFile are explicit ledger paths.
var siafiFile, efdFile string

// showView is the view printed after the run.
var showView string

// =============================================================================
// RECONCILE COMMAND DEFINITION
// =============================================================================

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile a SIAFI ledger against an EFD ledger",
	Long: `The reconcile command reads the SIAFI and EFD ledgers, groups SIAFI by
collector, keeps the last EFD row per taxpayer and joins both sides.

Ledger files not given with --siafi / --efd are discovered in the input
directory: the newest file whose name contains the ledger pattern and whose
extension is allowed.

On success:
  - The selected view is printed
  - Exports are written to the output directory
  - Degraded cells are listed in an issue log in the output directory
  - The ledger files are archived when --archive is set

On error:
  - Nothing is exported and the ledger files stay in place`,

	Args: cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runReconcile(cmd)
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	flags := reconcileCmd.Flags()
	flags.StringVar(&siafiFile, "siafi", "", "SIAFI ledger file")
	flags.StringVar(&efdFile, "efd", "", "EFD ledger file")
	flags.StringVar(&showView, "show", view.ViewReconciled, "View to print: siafi, efd, siafi&efd, siafi-efd")
	flags.StringSlice("export", nil, "Export formats: xlsx, xml, csv")
	flags.Bool("archive", false, "Move the ledger files to the input archive after success")

	bindFlag("export_formats", flags.Lookup("export"))
	bindFlag("archive_inputs", flags.Lookup("archive"))
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// ledgerRun pairs a ledger with its source file.
type ledgerRun struct {
	ledger ledger.Ledger
	path   string
}

func runReconcile(cmd *cobra.Command) error {
	// STEP 1: Load configuration.
	if !slices.Contains(view.Views, showView) {
		return fmt.Errorf("%w: %q (valid: %v)", view.ErrUnknownView, showView, view.Views)
	}

	cfg, logger, err := loadSettings()
	if err != nil {
		return err
	}
	exports, err := cfg.Exports()
	if err != nil {
		return err
	}
	renderer, err := output.New(output.DetectFormat(cfg.OutputFormat), cmd.OutOrStdout())
	if err != nil {
		return err
	}

	// STEP 2: Resolve both ledger files.
	fm := utils.NewFileManager(cfg.InputDir, cfg.OutputDir, cfg.InputArchiveDir)
	if err := fm.EnsureDirectories(); err != nil {
		return err
	}

	siafiPath, err := resolveLedgerFile(fm, cfg, siafiFile, ledger.SiafiName, cfg.Ledgers.Siafi)
	if err != nil {
		return err
	}
	efdPath, err := resolveLedgerFile(fm, cfg, efdFile, ledger.EfdName, cfg.Ledgers.Efd)
	if err != nil {
		return err
	}

	// STEP 3: Run both ledger pipelines.
	hub := view.NewHub(view.WithLogger(logger))
	runs := []ledgerRun{
		{newLedger(ledger.SiafiName, cfg, hub, logger), siafiPath},
		{newLedger(ledger.EfdName, cfg, hub, logger), efdPath},
	}
	for _, run := range runs {
		if err := loadLedger(run, logger); err != nil {
			return err
		}
	}

	// STEP 4: Reconcile.
	engine := reconcile.NewEngine(nil, nil, hub,
		reconcile.WithLogger(logger),
		reconcile.WithConfig(cfg.Reconciliation.EngineConfig()),
	)
	if err := engine.SetSiafi(runs[0].ledger); err != nil {
		return fmt.Errorf("failed to reconcile: %w", err)
	}
	if err := engine.SetEfd(runs[1].ledger); err != nil {
		return fmt.Errorf("failed to reconcile: %w", err)
	}

	result := engine.Result()
	if result == nil {
		return fmt.Errorf("nothing to reconcile: %w", ledger.ErrEmptyLedger)
	}

	// STEP 5: Print the selected view.
	hub.SetRenderer(renderer)
	if err := hub.Select(showView); err != nil {
		return fmt.Errorf("failed to show %s: %w", showView, err)
	}

	// STEP 6: Exports and issue log.
	for _, format := range exports {
		name := utils.GenerateOutputFileName(cfg.OutputFileFormat, map[string]string{"type": "reconciliation"})
		path, err := export.Write(cfg.OutputDir, name, format, result)
		if err != nil {
			return err
		}
		logger.Info().Str("format", string(format)).Str("path", path).Msg("export written")
	}

	if err := writeIssueLog(cfg, runs, logger); err != nil {
		return err
	}

	// STEP 7: Archive.
	if cfg.ArchiveInputs {
		for _, run := range runs {
			archived, err := fm.ArchiveInputFile(run.path)
			if err != nil {
				return fmt.Errorf("failed to archive %s: %w", run.path, err)
			}
			logger.Info().Str("file", filepath.Base(run.path)).Str("archive", archived).Msg("ledger archived")
		}
	}

	logger.Info().
		Str("run", result.ID).
		Int("matched", result.Stats.Matched).
		Int("siafi_only", result.Stats.SiafiOnly).
		Int("efd_only", result.Stats.EfdOnly).
		Dur("elapsed", result.Stats.Duration).
		Msg("reconciliation finished")
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// resolveLedgerFile returns the explicit path, checked against the naming
// rule when enforced, or discovers the newest matching file.
func resolveLedgerFile(fm *utils.FileManager, cfg *config.Config, explicit, name string, lc config.LedgerConfig) (string, error) {
	if explicit == "" {
		path, err := fm.DiscoverLedgerFile(lc.FilePattern, lc.AllowedExtensions)
		if err != nil {
			return "", fmt.Errorf("failed to find %s ledger: %w", name, err)
		}
		return path, nil
	}

	if !utils.FileExists(explicit) {
		return "", fmt.Errorf("failed to find %s ledger %s: %w", name, explicit, utils.ErrNoLedgerFile)
	}
	if cfg.EnforceFileNames {
		if err := utils.CheckLedgerFileName(explicit, lc.FilePattern, lc.AllowedExtensions); err != nil {
			return "", err
		}
	}
	return explicit, nil
}

// newLedger builds the named ledger from its configuration.
func newLedger(name string, cfg *config.Config, registry view.Registry, logger zerolog.Logger) ledger.Ledger {
	if name == ledger.SiafiName {
		lc := cfg.Ledgers.Siafi
		return ledger.NewSiafi(lc.ColumnNames(), nil, nil, registry,
			ledger.WithLogger(logger),
			ledger.WithSheetOptions(lc.SheetOptions()),
		)
	}
	lc := cfg.Ledgers.Efd
	return ledger.NewEfd(lc.ColumnNames(), nil, nil, registry,
		ledger.WithLogger(logger),
		ledger.WithSheetOptions(lc.SheetOptions()),
	)
}

// loadLedger reads the source file and runs the ledger pipeline.
func loadLedger(run ledgerRun, logger zerolog.Logger) error {
	data, err := os.ReadFile(run.path)
	if err != nil {
		return fmt.Errorf("failed to read %s ledger: %w", run.ledger.Name(), err)
	}
	if err := run.ledger.SetFile(data); err != nil {
		return fmt.Errorf("failed to load %s: %w", filepath.Base(run.path), err)
	}

	logger.Info().
		Str("ledger", run.ledger.Name()).
		Str("file", filepath.Base(run.path)).
		Int("rows", run.ledger.Table().Len()).
		Int("issues", len(run.ledger.Issues())).
		Msg("ledger loaded")
	return nil
}

// writeIssueLog writes the degraded cells of every ledger, if any.
func writeIssueLog(cfg *config.Config, runs []ledgerRun, logger zerolog.Logger) error {
	reports := make([]utils.IssueReport, 0, len(runs))
	for _, run := range runs {
		reports = append(reports, utils.IssueReport{
			Ledger: run.ledger.Name(),
			File:   run.path,
			Issues: run.ledger.Issues(),
		})
	}

	name := utils.GenerateOutputFileName(cfg.OutputFileFormat, map[string]string{"type": "issues"}) + ".txt"
	path, err := utils.WriteIssueLog(cfg.OutputDir, name, reports)
	if err != nil {
		return err
	}
	if path != "" {
		logger.Warn().Str("path", path).Msg("degraded cells were replaced by zero, see the issue log")
	}
	return nil
}
