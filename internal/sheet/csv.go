// =============================================================================
// SIAFI/EFD Reconciler - CSV Reader
// =============================================================================
//
// Reads delimited text exports. Government spreadsheets saved as CSV on
// Windows are often Latin-1 or Windows-1252 and use ";" as the separator,
// so both are configurable.
//
// =============================================================================

package sheet

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// utf8BOM is stripped from the start of UTF-8 input.
var utf8BOM = []byte("\xef\xbb\xbf")

// readCSV returns every record of a delimited buffer. CSV has no cell types,
// so every cell is text.
func readCSV(data []byte, opts Options) (*grid, error) {
	decoder, err := decoderFor(opts.Encoding)
	if err != nil {
		return nil, err
	}

	var r io.Reader
	if decoder == nil {
		r = bytes.NewReader(bytes.TrimPrefix(data, utf8BOM))
	} else {
		r = transform.NewReader(bytes.NewReader(data), decoder.NewDecoder())
	}

	reader := csv.NewReader(r)
	configureReader(reader, opts.Delimiter)

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read CSV: %v", ErrMalformedSource, err)
	}
	return &grid{rows: rows}, nil
}

// configureReader applies the delimiter and the lenient parsing flags.
func configureReader(reader *csv.Reader, delimiter string) {
	switch delimiter {
	case "\\t", "tab", "TAB":
		reader.Comma = '\t'
	case "|", "pipe", "PIPE":
		reader.Comma = '|'
	case ";", "semicolon":
		reader.Comma = ';'
	default:
		if len(delimiter) > 0 {
			reader.Comma = rune(delimiter[0])
		} else {
			reader.Comma = ','
		}
	}

	// Exports are not always rectangular.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
}

// decoderFor maps an encoding name to a charmap. UTF-8 returns nil.
func decoderFor(name string) (encoding.Encoding, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "_", "-")) {
	case "", "UTF-8", "UTF8":
		return nil, nil
	case "ISO-8859-1", "LATIN1", "LATIN-1":
		return charmap.ISO8859_1, nil
	case "WINDOWS-1252", "CP1252":
		return charmap.Windows1252, nil
	default:
		return nil, fmt.Errorf("%w: encoding %q", ErrUnsupportedFormat, name)
	}
}

// SupportedEncoding reports whether name is a CSV encoding Read accepts.
func SupportedEncoding(name string) bool {
	_, err := decoderFor(name)
	return err == nil
}
