// =============================================================================
// SIAFI/EFD Reconciler - File Manager Utility
// =============================================================================
//
// This module provides file management utilities for the reconciler:
//   - Ledger file discovery in the input directory
//   - The ledger file name rule (pattern + extension)
//   - Input archival (moving reconciled files)
//   - Issue log generation
//   - Output file naming
//
// ARCHIVAL STRATEGY:
//   - Ledger files are moved to input_archive only after a successful run
//   - Failed files remain where they are
//   - Issue logs are created in the output directory
//
// =============================================================================

package utils

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ginjaninja78/siafi-efd-reconciler/internal/validation"
)

var (
	// ErrFileRejected is returned when a file does not follow the ledger
	// naming rule.
	ErrFileRejected = errors.New("file rejected")

	// ErrNoLedgerFile is returned when discovery finds no candidate.
	ErrNoLedgerFile = errors.New("no ledger file found")
)

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles file operations for the reconciler.
type FileManager struct {
	// InputDir is where ledger files are discovered.
	InputDir string

	// OutputDir receives exports and issue logs.
	OutputDir string

	// InputArchiveDir receives reconciled ledger files.
	InputArchiveDir string

	// UseTimestampSubdirs creates date-based subdirectories in the archive.
	// Example: input_archive/2024/01/15/siafi.xlsx
	UseTimestampSubdirs bool
}

// NewFileManager creates a new FileManager with the specified directories.
func NewFileManager(inputDir, outputDir, inputArchiveDir string) *FileManager {
	return &FileManager{
		InputDir:        inputDir,
		OutputDir:       outputDir,
		InputArchiveDir: inputArchiveDir,
	}
}

// EnsureDirectories creates all required directories if they don't exist.
func (fm *FileManager) EnsureDirectories() error {
	for _, dir := range []string{fm.InputDir, fm.OutputDir, fm.InputArchiveDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// =============================================================================
// LEDGER FILE RULE
// =============================================================================

// CheckLedgerFileName applies the upload rule: the base name must contain
// pattern (case-insensitive) and the extension must be one of exts.
//
// PARAMETERS:
//   - path: The file path or name.
//   - pattern: The ledger marker, e.g. "siafi".
//   - exts: Allowed extensions without the dot, e.g. ["xlsx"].
//
// RETURNS:
//   - nil when the name is accepted, otherwise an error wrapping
//     ErrFileRejected.
func CheckLedgerFileName(path, pattern string, exts []string) error {
	name := strings.ToLower(filepath.Base(path))
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")

	allowed := slices.ContainsFunc(exts, func(e string) bool {
		return strings.EqualFold(strings.TrimPrefix(e, "."), ext)
	})
	if strings.Contains(name, strings.ToLower(pattern)) && allowed {
		return nil
	}

	return fmt.Errorf("%w: Arquivo não é %s ou não possui extensão %s",
		ErrFileRejected, strings.ToUpper(pattern), strings.Join(exts, "/"))
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// DiscoverLedgerFile returns the most recently modified file in the input
// directory that follows the ledger naming rule. Ties are broken by name.
func (fm *FileManager) DiscoverLedgerFile(pattern string, exts []string) (string, error) {
	entries, err := os.ReadDir(fm.InputDir)
	if err != nil {
		return "", fmt.Errorf("failed to scan input directory: %w", err)
	}

	var (
		best     string
		bestTime time.Time
	)
	for _, entry := range entries {
		if entry.IsDir() || CheckLedgerFileName(entry.Name(), pattern, exts) != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(fm.InputDir, entry.Name())
		if best == "" || info.ModTime().After(bestTime) ||
			(info.ModTime().Equal(bestTime) && path > best) {
			best, bestTime = path, info.ModTime()
		}
	}

	if best == "" {
		return "", fmt.Errorf("%w: no %q file with extension %s in %s",
			ErrNoLedgerFile, pattern, strings.Join(exts, "/"), fm.InputDir)
	}
	return best, nil
}

// =============================================================================
// FILE ARCHIVAL
// =============================================================================

// ArchiveInputFile moves an input file to the archive directory.
//
// RETURNS:
//   - The path to the archived file.
//   - An error if archival fails.
func (fm *FileManager) ArchiveInputFile(filePath string) (string, error) {
	archivePath := fm.getArchivePath(fm.InputArchiveDir, filePath)

	if err := os.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	if err := os.Rename(filePath, archivePath); err != nil {
		// Rename fails across devices; copy and delete instead.
		if err := copyFile(filePath, archivePath); err != nil {
			return "", fmt.Errorf("failed to copy file to archive: %w", err)
		}
		if err := os.Remove(filePath); err != nil {
			return "", fmt.Errorf("failed to remove archived file: %w", err)
		}
	}

	return archivePath, nil
}

// getArchivePath constructs the archive path for a file.
func (fm *FileManager) getArchivePath(archiveDir, filePath string) string {
	fileName := filepath.Base(filePath)

	if fm.UseTimestampSubdirs {
		now := time.Now()
		return filepath.Join(
			archiveDir,
			fmt.Sprintf("%d", now.Year()),
			fmt.Sprintf("%02d", now.Month()),
			fmt.Sprintf("%02d", now.Day()),
			fileName,
		)
	}

	return filepath.Join(archiveDir, fileName)
}

// =============================================================================
// OUTPUT FILE NAMING
// =============================================================================

// GenerateOutputFileName generates an output file name without extension.
//
// PARAMETERS:
//   - format: The format string for the file name.
//     Placeholders:
//     {uuid}      - A random UUID
//     {timestamp} - Current timestamp (YYYYMMDD_HHMMSS)
//     {date}      - Current date (YYYYMMDD)
//     {time}      - Current time (HHMMSS)
//     {type}      - The output type, passed in params
//   - params: A map of extra placeholder values.
//
// EXAMPLE:
//
//	format: "{type}_{timestamp}"
//	params: {"type": "reconciliation"}
//	output: "reconciliation_20240115_143022"
func GenerateOutputFileName(format string, params map[string]string) string {
	now := time.Now()

	replacements := map[string]string{
		"{uuid}":      uuid.New().String(),
		"{timestamp}": now.Format("20060102_150405"),
		"{date}":      now.Format("20060102"),
		"{time}":      now.Format("150405"),
	}
	for key, value := range params {
		replacements["{"+key+"}"] = value
	}

	result := format
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}
	return result
}

// =============================================================================
// ISSUE LOG GENERATION
// =============================================================================

// IssueReport groups the issues found in one ledger file.
type IssueReport struct {
	Ledger string
	File   string
	Issues []*validation.Issue
}

// WriteIssueLog writes the degraded cells of every ledger to
// outputDir/fileName. Nothing is written when there are no issues.
//
// RETURNS:
//   - The path to the log file, or "" when nothing was written.
//   - An error if writing fails.
func WriteIssueLog(outputDir, fileName string, reports []IssueReport) (string, error) {
	total := 0
	for _, r := range reports {
		total += len(r.Issues)
	}
	if total == 0 {
		return "", nil
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	logPath := filepath.Join(outputDir, fileName)

	file, err := os.Create(logPath)
	if err != nil {
		return "", fmt.Errorf("failed to create issue log: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)

	fmt.Fprintf(writer, "SIAFI/EFD Reconciler - Issue Log\n"+
		"Generated: %s\n"+
		"Total Issues: %d\n"+
		"================================================================================\n\n",
		time.Now().Format("2006-01-02 15:04:05"),
		total)

	for _, r := range reports {
		if len(r.Issues) == 0 {
			continue
		}
		fmt.Fprintf(writer, "Ledger: %s\nFile:   %s\n", strings.ToUpper(r.Ledger), r.File)
		writer.WriteString("--------------------------------------------------------------------------------\n")
		writer.WriteString(validation.FormatIssues(r.Issues))
		writer.WriteString("\n")
	}

	writer.WriteString("================================================================================\n" +
		"End of Issue Log\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush issue log: %w", err)
	}
	return logPath, nil
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}
	return destFile.Sync()
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
