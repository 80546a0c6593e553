package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/siafi-efd-reconciler/internal/ledger"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/output"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/view"
	"github.com/ginjaninja78/siafi-efd-reconciler/pkg/utils"
)

// ledgerCmd runs a single ledger pipeline and prints its table and info.
var ledgerCmd = &cobra.Command{
	Use:       "ledger siafi|efd FILE",
	Short:     "Load one ledger and print its table and statistics",
	Args:      cobra.MatchAll(cobra.ExactArgs(2), validLedgerName),
	ValidArgs: []string{ledger.SiafiName, ledger.EfdName},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadSettings()
		if err != nil {
			return err
		}
		renderer, err := output.New(output.DetectFormat(cfg.OutputFormat), cmd.OutOrStdout())
		if err != nil {
			return err
		}

		name, path := args[0], args[1]
		lc := cfg.Ledgers.Siafi
		show := view.ViewSiafi
		if name == ledger.EfdName {
			lc = cfg.Ledgers.Efd
			show = view.ViewEfd
		}
		if cfg.EnforceFileNames {
			if err := utils.CheckLedgerFileName(path, lc.FilePattern, lc.AllowedExtensions); err != nil {
				return err
			}
		}

		hub := view.NewHub(view.WithLogger(logger))
		run := ledgerRun{ledger: newLedger(name, cfg, hub, logger), path: path}
		if err := loadLedger(run, logger); err != nil {
			return err
		}

		hub.SetRenderer(renderer)
		return hub.Select(show)
	},
}

func validLedgerName(cmd *cobra.Command, args []string) error {
	if len(args) > 0 && args[0] != ledger.SiafiName && args[0] != ledger.EfdName {
		return fmt.Errorf("unknown ledger %q: must be %s or %s", args[0], ledger.SiafiName, ledger.EfdName)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
}
