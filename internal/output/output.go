// Package output renders published view components for the command line.
//
// A Renderer is attached to a view.Hub; every component the hub puts on
// screen is written to the renderer's writer as a table, a JSON object or a
// YAML document.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/ginjaninja78/siafi-efd-reconciler/internal/view"
)

// Format types for output.
type Format string

const (
	// FormatTable represents table output format.
	FormatTable Format = "table"
	// FormatJSON represents JSON output format.
	FormatJSON Format = "json"
	// FormatYAML represents YAML output format.
	FormatYAML Format = "yaml"
	// FormatAuto picks table or JSON from the terminal.
	FormatAuto Format = "auto"
)

// ParseFormat converts string to Format with validation.
func ParseFormat(s string) (Format, error) {
	format := Format(strings.ToLower(strings.TrimSpace(s)))
	switch format {
	case FormatTable, FormatJSON, FormatYAML, FormatAuto:
		return format, nil
	default:
		return "", fmt.Errorf("invalid output format %q: must be one of: table, json, yaml, auto", s)
	}
}

// DetectFormat returns the explicit format when given, otherwise table for a
// terminal and JSON for pipes and redirects. "auto" counts as not given.
func DetectFormat(explicit string) Format {
	if format := Format(strings.ToLower(strings.TrimSpace(explicit))); format != "" && format != FormatAuto {
		return format
	}
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return FormatTable
	}
	return FormatJSON
}

// New creates the renderer for a format.
func New(format Format, w io.Writer) (view.Renderer, error) {
	switch format {
	case FormatTable:
		return &TableRenderer{w: w}, nil
	case FormatJSON:
		return &JSONRenderer{w: w, Indent: "  "}, nil
	case FormatYAML:
		return &YAMLRenderer{w: w}, nil
	}
	return nil, fmt.Errorf("invalid output format %q", format)
}

// =============================================================================
// TABLE
// =============================================================================

// TableRenderer draws table components as a grid and info components as a
// property/value list.
type TableRenderer struct {
	w io.Writer
}

// NewTableRenderer creates a table renderer writing to w.
func NewTableRenderer(w io.Writer) *TableRenderer {
	return &TableRenderer{w: w}
}

// Render implements view.Renderer.
func (r *TableRenderer) Render(c *view.Component) error {
	if _, err := fmt.Fprintf(r.w, "%s\n", c.Name); err != nil {
		return err
	}

	vars := c.Variables
	if len(vars.Columns) > 0 {
		return r.renderTable(vars)
	}
	return r.renderInfo(vars)
}

// Remove implements view.Renderer. Written output cannot be taken back.
func (r *TableRenderer) Remove(*view.Component) error { return nil }

func (r *TableRenderer) renderTable(vars view.Variables) error {
	align := make([]tw.Align, len(vars.Columns)+1)
	for i := range align {
		align[i] = tw.AlignRight
	}

	config := tablewriter.Config{}
	config.Row.Alignment = tw.CellAlignment{PerColumn: align}
	table := tablewriter.NewTable(r.w, tablewriter.WithConfig(config))

	headers := make([]any, 0, len(vars.Columns)+1)
	headers = append(headers, "#")
	for _, col := range vars.Columns {
		headers = append(headers, col)
	}
	table.Header(headers...)

	for i := 0; i < vars.Len; i++ {
		row := make([]any, 0, len(vars.Columns)+1)
		row = append(row, strconv.Itoa(i+1))
		for _, col := range vars.Columns {
			var v any
			if values := vars.Table[col]; i < len(values) {
				v = values[i]
			}
			row = append(row, FormatValue(v))
		}
		if err := table.Append(row...); err != nil {
			return err
		}
	}
	return table.Render()
}

func (r *TableRenderer) renderInfo(vars view.Variables) error {
	config := tablewriter.Config{}
	config.Row.Alignment = tw.CellAlignment{PerColumn: []tw.Align{tw.AlignLeft, tw.AlignRight}}
	table := tablewriter.NewTable(r.w, tablewriter.WithConfig(config))
	table.Header("Property", "Value")

	caser := cases.Title(language.English)
	for _, key := range DescribeKeys(vars.Describe) {
		label := caser.String(strings.ReplaceAll(key, "_", " "))
		if err := table.Append(label, FormatValue(vars.Describe[key])); err != nil {
			return err
		}
	}
	return table.Render()
}

// describeOrder is the display order of known statistics.
var describeOrder = []string{
	"count", "mean", "std", "min", "25%", "50%", "75%", "max",
	"greater_siafi_sum", "greater_efd_sum",
	"greater_siafi_count", "greater_efd_count",
	"greater_siafi_recolhedor", "greater_efd_cnpj",
	"sum",
}

// DescribeKeys returns the keys of a statistics map: known keys first in
// display order, the rest sorted.
func DescribeKeys(describe map[string]any) []string {
	keys := make([]string, 0, len(describe))
	for _, k := range describeOrder {
		if _, ok := describe[k]; ok {
			keys = append(keys, k)
		}
	}
	var extra []string
	for k := range describe {
		if !slices.Contains(describeOrder, k) {
			extra = append(extra, k)
		}
	}
	slices.Sort(extra)
	return append(keys, extra...)
}

// FormatValue renders a cell or statistic. Floats keep two decimals,
// identifier lists are comma separated and nil is empty.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', 2, 64)
	case []int64:
		parts := make([]string, len(x))
		for i, id := range x {
			parts[i] = strconv.FormatInt(id, 10)
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprintf("%v", v)
}

// =============================================================================
// JSON / YAML
// =============================================================================

// document is the serialized form of a rendered component.
type document struct {
	Component string         `json:"component" yaml:"component"`
	ID        string         `json:"id" yaml:"id"`
	Parent    string         `json:"parent" yaml:"parent"`
	Variables view.Variables `json:"variables" yaml:"variables"`
}

func newDocument(c *view.Component) document {
	return document{
		Component: c.Name,
		ID:        c.ID,
		Parent:    c.ParentID,
		Variables: c.Variables,
	}
}

// JSONRenderer writes one JSON object per rendered component.
type JSONRenderer struct {
	w      io.Writer
	Indent string
}

// Render implements view.Renderer.
func (r *JSONRenderer) Render(c *view.Component) error {
	encoder := json.NewEncoder(r.w)
	if r.Indent != "" {
		encoder.SetIndent("", r.Indent)
	}
	return encoder.Encode(newDocument(c))
}

// Remove implements view.Renderer.
func (r *JSONRenderer) Remove(*view.Component) error { return nil }

// YAMLRenderer writes one YAML document per rendered component.
type YAMLRenderer struct {
	w io.Writer
}

// Render implements view.Renderer.
func (r *YAMLRenderer) Render(c *view.Component) error {
	data, err := yaml.Marshal(newDocument(c))
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", c.Name, err)
	}
	if _, err := io.WriteString(r.w, "---\n"); err != nil {
		return err
	}
	_, err = r.w.Write(data)
	return err
}

// Remove implements view.Renderer.
func (r *YAMLRenderer) Remove(*view.Component) error { return nil }
