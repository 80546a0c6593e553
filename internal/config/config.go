// =============================================================================
// SIAFI/EFD Reconciler - Configuration Module
// =============================================================================
//
// This module loads the application configuration from config.yaml and lets
// environment variables and command-line flags override it.
//
// PRECEDENCE (highest first):
//   1. Command-line flags
//   2. RECONCILER_* environment variables (.env and .env.local included)
//   3. config.yaml
//   4. Built-in defaults
//
// Layers 1 and 2 are resolved by viper in the CLI and applied here through
// ApplyOverrides.
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ginjaninja78/siafi-efd-reconciler/internal/export"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/ledger"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/output"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/reconcile"
	"github.com/ginjaninja78/siafi-efd-reconciler/internal/sheet"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "config.yaml"

// =============================================================================
// CONFIGURATION STRUCTURE
// =============================================================================

// Config holds the application configuration.
type Config struct {
	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// InputDir is where ledger files are discovered when no path is given.
	// Default: "./input"
	InputDir string `yaml:"input_dir"`

	// OutputDir receives exports and issue logs.
	// Default: "./output"
	OutputDir string `yaml:"output_dir"`

	// InputArchiveDir receives ledger files after a successful run when
	// archiving is enabled.
	// Default: "./input_archive"
	InputArchiveDir string `yaml:"input_archive_dir"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogLevel controls the verbosity of logging.
	// Valid values: "trace", "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// LogFormat is "json", "console" or "auto".
	// Default: "auto"
	LogFormat string `yaml:"log_format"`

	// =========================================================================
	// OUTPUT SETTINGS
	// =========================================================================

	// OutputFormat is how published views are printed: "table", "json",
	// "yaml", or "auto" (table on a terminal, JSON otherwise).
	// Default: "table"
	OutputFormat string `yaml:"output_format"`

	// OutputFileFormat names export files. Placeholders:
	//   {type}      - "reconciliation" or "issues"
	//   {timestamp} - Current timestamp (YYYYMMDD_HHMMSS)
	//   {date}      - Current date (YYYYMMDD)
	//   {uuid}      - A random UUID
	// Default: "{type}_{timestamp}"
	OutputFileFormat string `yaml:"output_file_format"`

	// ExportFormats lists the files written after a reconciliation.
	// Valid values: "xlsx", "xml", "csv"
	// Default: none
	ExportFormats []string `yaml:"export_formats"`

	// =========================================================================
	// PROCESSING SETTINGS
	// =========================================================================

	// ArchiveInputs moves the ledger files to InputArchiveDir after a
	// successful run.
	// Default: false
	ArchiveInputs bool `yaml:"archive_inputs"`

	// EnforceFileNames rejects ledger files whose name does not contain the
	// ledger pattern or whose extension is not allowed.
	// Default: false
	EnforceFileNames bool `yaml:"enforce_file_names"`

	// Ledgers holds the per-ledger source settings.
	Ledgers Ledgers `yaml:"ledgers"`

	// Reconciliation controls merged column naming.
	Reconciliation Reconciliation `yaml:"reconciliation"`
}

// Ledgers holds the settings of both sources.
type Ledgers struct {
	Siafi LedgerConfig `yaml:"siafi"`
	Efd   LedgerConfig `yaml:"efd"`
}

// LedgerConfig describes how one ledger file is found and read.
type LedgerConfig struct {
	// Columns are the three positional column names.
	Columns []string `yaml:"columns"`

	// FilePattern must appear in the file name (case-insensitive).
	// Default: the ledger name ("siafi", "efd")
	FilePattern string `yaml:"file_pattern"`

	// AllowedExtensions lists accepted extensions without the dot.
	// Default: ["xlsx"]
	AllowedExtensions []string `yaml:"allowed_extensions"`

	// Sheet is the worksheet to read. Default: the first sheet.
	Sheet string `yaml:"sheet"`

	// HeaderRows is the number of header rows.
	// Default: 1
	HeaderRows int `yaml:"header_rows"`

	// CSV contains settings for CSV sources.
	CSV CSVSettings `yaml:"csv"`
}

// CSVSettings contains settings for parsing CSV files.
type CSVSettings struct {
	// Delimiter is the character used to separate fields in the CSV.
	// Common values: "," (comma), ";" (semicolon), "|" (pipe), "\t" (tab)
	// Default: ","
	Delimiter string `yaml:"delimiter"`

	// Encoding is the character encoding of the CSV file.
	// Valid values: "UTF-8", "ISO-8859-1", "Windows-1252"
	// Default: "UTF-8"
	Encoding string `yaml:"encoding"`
}

// Reconciliation controls merged column naming.
type Reconciliation struct {
	// SiafiSuffix and EfdSuffix are appended to column names present in both
	// ledgers. Defaults: "_SIAFI", "_EFD"
	SiafiSuffix string `yaml:"siafi_suffix"`
	EfdSuffix   string `yaml:"efd_suffix"`

	// DifferenceColumn names the computed column.
	// Default: "DIFERENÇAS"
	DifferenceColumn string `yaml:"difference_column"`
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load loads the configuration from a YAML file.
//
// PARAMETERS:
//   - path: The path to the configuration file.
//
// RETURNS:
//   - A pointer to the Config struct.
//   - An error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// LoadOrDefault loads path, or returns the defaults when the file does not
// exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Parse decodes, completes and validates a YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func applyDefaults(cfg *Config) {
	if cfg.InputDir == "" {
		cfg.InputDir = "./input"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "./output"
	}
	if cfg.InputArchiveDir == "" {
		cfg.InputArchiveDir = "./input_archive"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "auto"
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = string(output.FormatTable)
	}
	if cfg.OutputFileFormat == "" {
		cfg.OutputFileFormat = "{type}_{timestamp}"
	}

	applyLedgerDefaults(&cfg.Ledgers.Siafi, ledger.SiafiName, ledger.SiafiColumns)
	applyLedgerDefaults(&cfg.Ledgers.Efd, ledger.EfdName, ledger.EfdColumns)

	d := reconcile.DefaultConfig()
	if cfg.Reconciliation.SiafiSuffix == "" {
		cfg.Reconciliation.SiafiSuffix = d.SiafiSuffix
	}
	if cfg.Reconciliation.EfdSuffix == "" {
		cfg.Reconciliation.EfdSuffix = d.EfdSuffix
	}
	if cfg.Reconciliation.DifferenceColumn == "" {
		cfg.Reconciliation.DifferenceColumn = d.DifferenceColumn
	}
}

func applyLedgerDefaults(l *LedgerConfig, name string, columns [3]string) {
	if len(l.Columns) == 0 {
		l.Columns = columns[:]
	}
	if l.FilePattern == "" {
		l.FilePattern = name
	}
	if len(l.AllowedExtensions) == 0 {
		l.AllowedExtensions = []string{"xlsx"}
	}
	if l.HeaderRows == 0 {
		l.HeaderRows = 1
	}
	if l.CSV.Delimiter == "" {
		l.CSV.Delimiter = ","
	}
	if l.CSV.Encoding == "" {
		l.CSV.Encoding = "UTF-8"
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []error

	if _, err := output.ParseFormat(c.OutputFormat); err != nil {
		errs = append(errs, err)
	}
	for _, f := range c.ExportFormats {
		if _, err := export.ParseFormat(f); err != nil {
			errs = append(errs, err)
		}
	}

	errs = append(errs, c.Ledgers.Siafi.validate(ledger.SiafiName)...)
	errs = append(errs, c.Ledgers.Efd.validate(ledger.EfdName)...)

	if c.Reconciliation.SiafiSuffix == c.Reconciliation.EfdSuffix {
		errs = append(errs, fmt.Errorf("reconciliation: siafi_suffix and efd_suffix must differ, both are %q", c.Reconciliation.SiafiSuffix))
	}

	return errors.Join(errs...)
}

func (l *LedgerConfig) validate(name string) []error {
	var errs []error

	if len(l.Columns) != sheet.ColumnCount {
		errs = append(errs, fmt.Errorf("ledgers.%s.columns: expected %d names, got %d", name, sheet.ColumnCount, len(l.Columns)))
	}
	seen := map[string]bool{}
	for _, col := range l.Columns {
		if strings.TrimSpace(col) == "" {
			errs = append(errs, fmt.Errorf("ledgers.%s.columns: empty column name", name))
			continue
		}
		if seen[col] {
			errs = append(errs, fmt.Errorf("ledgers.%s.columns: duplicate column %q", name, col))
		}
		seen[col] = true
	}

	if l.HeaderRows < 1 {
		errs = append(errs, fmt.Errorf("ledgers.%s.header_rows: must be at least 1, got %d", name, l.HeaderRows))
	}
	if !sheet.SupportedEncoding(l.CSV.Encoding) {
		errs = append(errs, fmt.Errorf("ledgers.%s.csv.encoding: unsupported encoding %q", name, l.CSV.Encoding))
	}
	return errs
}

// =============================================================================
// OVERRIDES
// =============================================================================

// Overrides is the subset of viper used to apply flag and environment values.
type Overrides interface {
	IsSet(key string) bool
	GetString(key string) string
	GetBool(key string) bool
	GetStringSlice(key string) []string
}

// ApplyOverrides copies every key that is set in o onto cfg and validates
// the result.
func ApplyOverrides(cfg *Config, o Overrides) error {
	strs := map[string]*string{
		"input_dir":          &cfg.InputDir,
		"output_dir":         &cfg.OutputDir,
		"input_archive_dir":  &cfg.InputArchiveDir,
		"log_level":          &cfg.LogLevel,
		"log_format":         &cfg.LogFormat,
		"output_format":      &cfg.OutputFormat,
		"output_file_format": &cfg.OutputFileFormat,
	}
	for key, dst := range strs {
		if o.IsSet(key) {
			if v := o.GetString(key); v != "" {
				*dst = v
			}
		}
	}

	if o.IsSet("archive_inputs") {
		cfg.ArchiveInputs = o.GetBool("archive_inputs")
	}
	if o.IsSet("enforce_file_names") {
		cfg.EnforceFileNames = o.GetBool("enforce_file_names")
	}
	if o.IsSet("export_formats") {
		cfg.ExportFormats = splitList(o.GetStringSlice("export_formats"))
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// splitList flattens comma separated entries and drops blanks.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// =============================================================================
// DERIVED SETTINGS
// =============================================================================

// ColumnNames returns the three column names.
func (l LedgerConfig) ColumnNames() [3]string {
	var names [3]string
	copy(names[:], l.Columns)
	return names
}

// SheetOptions returns the reading options for the ledger.
func (l LedgerConfig) SheetOptions() sheet.Options {
	return sheet.Options{
		Format:     sheet.FormatAuto,
		Sheet:      l.Sheet,
		HeaderRows: l.HeaderRows,
		Delimiter:  l.CSV.Delimiter,
		Encoding:   l.CSV.Encoding,
	}
}

// EngineConfig returns the column naming for the reconciliation engine.
func (r Reconciliation) EngineConfig() reconcile.Config {
	return reconcile.Config{
		SiafiSuffix:      r.SiafiSuffix,
		EfdSuffix:        r.EfdSuffix,
		DifferenceColumn: r.DifferenceColumn,
	}
}

// Exports parses ExportFormats. Duplicates are dropped.
func (c *Config) Exports() ([]export.Format, error) {
	var formats []export.Format
	seen := map[export.Format]bool{}
	for _, name := range c.ExportFormats {
		f, err := export.ParseFormat(name)
		if err != nil {
			return nil, err
		}
		if !seen[f] {
			seen[f] = true
			formats = append(formats, f)
		}
	}
	return formats, nil
}
