// =============================================================================
// SIAFI/EFD Reconciler - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. All other commands
// are attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (reconciler)
//   ├── reconcileCmd (reconciler reconcile)
//   ├── ledgerCmd    (reconciler ledger siafi|efd FILE)
//   └── versionCmd   (reconciler version)
//
// CONFIGURATION:
//   The root command is responsible for:
//   1. Setting up global flags (--config, --verbose, --log-level, ...)
//   2. Loading .env files and binding RECONCILER_* environment variables
//   3. Building the configuration and the logger for each command
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ginjaninja78/siafi-efd-reconciler/internal/config"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/logging"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the configuration file.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// envPrefix prefixes every environment override, e.g. RECONCILER_OUTPUT_DIR.
const envPrefix = "RECONCILER"

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "reconciler",
	Short: "SIAFI/EFD Reconciler - Compare collected and declared withholdings",
	Long: `SIAFI/EFD Reconciler matches the SIAFI collection registry against the
EFD bookkeeping export and reports, per taxpayer, the difference between
the amount collected and the amount declared.

Key Features:
  - XLSX and CSV ledgers with locale-tolerant numeric cleaning
  - SIAFI grouping per collector, EFD deduplication per taxpayer
  - Outer join with per-side partitions and a BRL summary
  - Table, JSON or YAML output; XLSX, XML or CSV exports

Example Usage:
  reconciler reconcile                                 # Discover both ledgers in the input directory
  reconciler reconcile --siafi s.xlsx --efd e.xlsx     # Reconcile two given files
  reconciler reconcile --show siafi&efd --export xlsx  # Show both ledgers and export a workbook
  reconciler ledger efd ./input/efd.xlsx               # Inspect a single ledger`,

	SilenceUsage: true,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", config.DefaultPath, "Path to the configuration file")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	flags.String("log-level", "", "Log level: trace, debug, info, warn, error")
	flags.StringP("output", "o", "", "Output format: table, json, yaml, auto")
	flags.String("input-dir", "", "Directory where ledger files are discovered")
	flags.String("output-dir", "", "Directory for exports and issue logs")

	bindFlag("log_level", flags.Lookup("log-level"))
	bindFlag("output_format", flags.Lookup("output"))
	bindFlag("input_dir", flags.Lookup("input-dir"))
	bindFlag("output_dir", flags.Lookup("output-dir"))
}

// initConfig loads .env files and sets up environment variable handling.
func initConfig() {
	// .env files are loaded before env binding.
	for _, envFile := range []string{".env", ".env.local"} {
		if err := godotenv.Load(envFile); err == nil && verbose {
			fmt.Fprintf(os.Stderr, "Loaded %s\n", envFile)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

// bindFlag binds a flag to a configuration key. Flags only override the
// configuration when given on the command line.
func bindFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("Failed to bind %s flag: %v", flag.Name, err))
	}
}

// loadSettings builds the configuration for a command run: the YAML file,
// then environment variables and flags, then --verbose.
//
// RETURNS:
//   - The validated configuration.
//   - The logger configured from it.
//   - An error if the configuration cannot be loaded or is invalid.
func loadSettings() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.ApplyOverrides(cfg, viper.GetViper()); err != nil {
		return nil, zerolog.Nop(), err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	logCfg.Format = cfg.LogFormat
	logger := logging.New(logCfg)

	logger.Debug().
		Str("config", cfgFile).
		Str("input_dir", cfg.InputDir).
		Str("output_dir", cfg.OutputDir).
		Str("output_format", cfg.OutputFormat).
		Msg("configuration loaded")
	return cfg, logger, nil
}
