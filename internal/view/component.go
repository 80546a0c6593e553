// =============================================================================
// SIAFI/EFD Reconciler - View Components
// =============================================================================
//
// A Component is a named screen element (a table or an info panel) together
// with the view-state the pipelines hand to it. The core never renders; the
// application shell attaches a Renderer to a Hub and the Hub decides what is
// on screen.
//
// COMPONENT CATALOG:
//
//   | Name                             | Template        | ID          | Parent            | Button           |
//   |----------------------------------|-----------------|-------------|-------------------|------------------|
//   | Siafi                            | table.html      | siafi-table | siafi-output      | delete-siafi-btn |
//   | Efd                              | table.html      | efd-table   | efd-output        | delete-efd-btn   |
//   | Siafi-Efd                        | table.html      | parse-table | parse-output      | siafi-efd-btn    |
//   | Siafi - informações gerais       | table_info.html | siafi-info  | siafi-output-info |                  |
//   | Efd - informações gerais         | table_info.html | efd-info    | efd-output-info   |                  |
//   | Siafi & Efd - informações gerais | parse_info.html | parse-info  | parse-output-info |                  |
//
// =============================================================================

package view

// =============================================================================
// VIEW STATE
// =============================================================================

// Variables is the view-state of a component for one pipeline run.
// A zero Variables is not valid; use NewVariables.
type Variables struct {
	// Table is the columnar projection: column name to ordered values.
	Table map[string][]any `json:"table" yaml:"table"`

	// Len is the number of rows in Table.
	Len int `json:"len" yaml:"len"`

	// Columns lists the column names in display order.
	Columns []string `json:"columns" yaml:"columns"`

	// Describe holds summary statistics: formatted currency strings,
	// integers or identifier lists.
	Describe map[string]any `json:"describe" yaml:"describe"`

	// Ready is true once a pipeline run has filled the state.
	Ready bool `json:"ready" yaml:"ready"`
}

// NewVariables returns an empty, not-ready state with every field defined.
func NewVariables() Variables {
	return Variables{
		Table:    map[string][]any{},
		Len:      0,
		Columns:  []string{},
		Describe: map[string]any{},
		Ready:    false,
	}
}

// TableVariables builds a ready state for a table component.
func TableVariables(table map[string][]any, columns []string, rows int) Variables {
	v := NewVariables()
	if table != nil {
		v.Table = table
	}
	if columns != nil {
		v.Columns = columns
	}
	v.Len = rows
	v.Ready = true
	return v
}

// InfoVariables builds a ready state for an info component.
func InfoVariables(describe map[string]any) Variables {
	v := NewVariables()
	if describe != nil {
		v.Describe = describe
	}
	v.Ready = true
	return v
}

// =============================================================================
// COMPONENT
// =============================================================================

// Component is a screen element managed by a Registry.
type Component struct {
	// Name identifies the component in the registry.
	Name string `json:"name" yaml:"name"`

	// Template is the template file the renderer uses.
	Template string `json:"template" yaml:"template"`

	// ID is the element id of the rendered component.
	ID string `json:"id" yaml:"id"`

	// ParentID is the screen region the component is rendered into.
	ParentID string `json:"parent_id" yaml:"parent_id"`

	// ButtonID is enabled while the component is on screen. May be empty.
	ButtonID string `json:"button_id,omitempty" yaml:"button_id,omitempty"`

	// Value is the dropdown value associated with the component.
	Value string `json:"value,omitempty" yaml:"value,omitempty"`

	// Variables is the current view-state.
	Variables Variables `json:"variables" yaml:"variables"`
}

// NewComponent creates a component with empty view-state.
func NewComponent(name, template, id, parentID, buttonID, value string) *Component {
	return &Component{
		Name:      name,
		Template:  template,
		ID:        id,
		ParentID:  parentID,
		ButtonID:  buttonID,
		Value:     value,
		Variables: NewVariables(),
	}
}

// SetVariables replaces the view-state.
func (c *Component) SetVariables(v Variables) {
	c.Variables = v
}

// Reset restores the empty view-state.
func (c *Component) Reset() {
	c.Variables = NewVariables()
}

// =============================================================================
// CATALOG
// =============================================================================

// Component names used by the ledgers, the engine and Hub.Select.
const (
	SiafiTableName = "Siafi"
	EfdTableName   = "Efd"
	ParseTableName = "Siafi-Efd"
	SiafiInfoName  = "Siafi - informações gerais"
	EfdInfoName    = "Efd - informações gerais"
	ParseInfoName  = "Siafi & Efd - informações gerais"
)

// SiafiTable returns the component for the grouped SIAFI table.
func SiafiTable() *Component {
	return NewComponent(SiafiTableName, "table.html", "siafi-table", "siafi-output", "delete-siafi-btn", "siafi")
}

// EfdTable returns the component for the deduplicated EFD table.
func EfdTable() *Component {
	return NewComponent(EfdTableName, "table.html", "efd-table", "efd-output", "delete-efd-btn", "efd")
}

// ParseTable returns the component for the reconciled table.
func ParseTable() *Component {
	return NewComponent(ParseTableName, "table.html", "parse-table", "parse-output", "siafi-efd-btn", "siafi-efd")
}

// SiafiInfo returns the SIAFI statistics panel.
func SiafiInfo() *Component {
	return NewComponent(SiafiInfoName, "table_info.html", "siafi-info", "siafi-output-info", "", "")
}

// EfdInfo returns the EFD statistics panel.
func EfdInfo() *Component {
	return NewComponent(EfdInfoName, "table_info.html", "efd-info", "efd-output-info", "", "")
}

// ParseInfo returns the reconciliation summary panel.
func ParseInfo() *Component {
	return NewComponent(ParseInfoName, "parse_info.html", "parse-info", "parse-output-info", "", "")
}
