package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/ginjaninja78/siafi-efd-reconciler/internal/reconcile"
)

// =============================================================================
// XML GENERATION OPTIONS
// =============================================================================

// XMLOptions contains options for XML generation.
//
// The generated document looks like:
//
//	<?xml version="1.0" encoding="UTF-8"?>
//	<reconciliation id="..." generated="2024-01-02T15:04:05Z">
//	  <rows>
//	    <row n="1">
//	      <RECOLHEDOR>11</RECOLHEDOR>
//	      ...
//	      <DIFERENÇAS>9.00</DIFERENÇAS>
//	    </row>
//	  </rows>
//	  <summary>
//	    <greater_siafi_sum>R$ 9,00</greater_siafi_sum>
//	    ...
//	  </summary>
//	</reconciliation>
type XMLOptions struct {
	// Indent is the string used for indentation.
	// Default: "  " (two spaces)
	Indent string

	// IncludeXMLDeclaration determines whether to include the XML declaration.
	// Default: true
	IncludeXMLDeclaration bool

	// RootElement names the document element.
	// Default: "reconciliation"
	RootElement string

	// RowElement names each merged row.
	// Default: "row"
	RowElement string

	// IndexAttribute is the attribute carrying the 1-based row index.
	// Default: "n"
	IndexAttribute string
}

// DefaultXMLOptions returns the default generation options.
func DefaultXMLOptions() XMLOptions {
	return XMLOptions{
		Indent:                "  ",
		IncludeXMLDeclaration: true,
		RootElement:           "reconciliation",
		RowElement:            "row",
		IndexAttribute:        "n",
	}
}

// =============================================================================
// XML DOCUMENT BUILDING
// =============================================================================

type xmlAttr struct {
	name  string
	value string
}

type xmlElement struct {
	name     string
	attrs    []xmlAttr
	value    string
	children []xmlElement
}

func simpleElement(name, value string) xmlElement {
	return xmlElement{name: elementName(name), value: value}
}

// GenerateXML creates the XML document for a result.
//
// GENERATION PROCESS:
//  1. Root element with the run id and generation time
//  2. One row element per merged row, index attribute starting at 1
//  3. One child per column, named after the column
//  4. The summary block
func GenerateXML(result *reconcile.Result, options XMLOptions) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("failed to generate XML: no result")
	}
	d := DefaultXMLOptions()
	if options.RootElement == "" {
		options.RootElement = d.RootElement
	}
	if options.RowElement == "" {
		options.RowElement = d.RowElement
	}
	if options.IndexAttribute == "" {
		options.IndexAttribute = d.IndexAttribute
	}

	var buffer bytes.Buffer
	if options.IncludeXMLDeclaration {
		buffer.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	}

	root := xmlElement{
		name: options.RootElement,
		attrs: []xmlAttr{
			{name: "id", value: result.ID},
			{name: "generated", value: result.GeneratedAt.UTC().Format(time.RFC3339)},
		},
		children: []xmlElement{
			buildRows(result, options),
			buildSummary(result.Summary),
		},
	}
	writeElement(&buffer, root, options.Indent, 0)

	return buffer.Bytes(), nil
}

func buildRows(result *reconcile.Result, options XMLOptions) xmlElement {
	names := result.Columns.List()
	rows := xmlElement{name: "rows"}

	for i, row := range result.Rows {
		el := xmlElement{
			name:  options.RowElement,
			attrs: []xmlAttr{{name: options.IndexAttribute, value: strconv.Itoa(i + 1)}},
		}
		for c, value := range rowStrings(row) {
			el.children = append(el.children, simpleElement(names[c], value))
		}
		el.children = append(el.children, simpleElement("match", row.Match.String()))
		rows.children = append(rows.children, el)
	}
	return rows
}

func buildSummary(s reconcile.Summary) xmlElement {
	summary := xmlElement{name: "summary"}
	summary.children = []xmlElement{
		simpleElement("greater_siafi_sum", s.GreaterSiafiSum),
		simpleElement("greater_efd_sum", s.GreaterEfdSum),
		simpleElement("greater_siafi_count", strconv.Itoa(s.GreaterSiafiCount)),
		simpleElement("greater_efd_count", strconv.Itoa(s.GreaterEfdCount)),
		idList("greater_siafi_recolhedor", "recolhedor", s.GreaterSiafiCollectors),
		idList("greater_efd_cnpj", "cnpj", s.GreaterEfdTaxpayers),
		simpleElement("sum", s.Sum),
	}
	return summary
}

func idList(name, item string, ids []int64) xmlElement {
	el := xmlElement{name: name}
	for _, id := range ids {
		el.children = append(el.children, simpleElement(item, strconv.FormatInt(id, 10)))
	}
	return el
}

// =============================================================================
// SERIALIZATION
// =============================================================================

// writeElement writes an element to the buffer with indentation.
func writeElement(buffer *bytes.Buffer, element xmlElement, indent string, level int) {
	buffer.WriteString(strings.Repeat(indent, level))
	buffer.WriteString("<")
	buffer.WriteString(element.name)
	for _, attr := range element.attrs {
		fmt.Fprintf(buffer, " %s=\"%s\"", attr.name, escapeXML(attr.value))
	}

	// Self-closing tag.
	if len(element.children) == 0 && element.value == "" {
		buffer.WriteString("/>\n")
		return
	}

	buffer.WriteString(">")
	if element.value != "" {
		buffer.WriteString(escapeXML(element.value))
	} else {
		buffer.WriteString("\n")
		for _, child := range element.children {
			writeElement(buffer, child, indent, level+1)
		}
		buffer.WriteString(strings.Repeat(indent, level))
	}

	buffer.WriteString("</")
	buffer.WriteString(element.name)
	buffer.WriteString(">\n")
}

// escapeXML escapes special characters for XML.
func escapeXML(s string) string {
	var buffer strings.Builder
	for _, r := range s {
		switch r {
		case '&':
			buffer.WriteString("&amp;")
		case '<':
			buffer.WriteString("&lt;")
		case '>':
			buffer.WriteString("&gt;")
		case '"':
			buffer.WriteString("&quot;")
		case '\'':
			buffer.WriteString("&apos;")
		default:
			buffer.WriteRune(r)
		}
	}
	return buffer.String()
}

// elementName turns a column name into an XML name. Characters that are not
// allowed become "_", and a name that cannot start an element gets a "_"
// prefix.
func elementName(s string) string {
	if s == "" {
		return "_"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', r == '-', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := b.String()
	first := []rune(name)[0]
	if !unicode.IsLetter(first) && first != '_' {
		name = "_" + name
	}
	if strings.HasPrefix(strings.ToLower(name), "xml") {
		name = "_" + name
	}
	return name
}
