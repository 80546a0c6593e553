package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/ginjaninja78/siafi-efd-reconciler/internal/reconcile"
)

// utf8BOM helps spreadsheet applications detect UTF-8.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// GenerateCSV writes the merged table with a header row. Values use a dot
// as decimal separator and absent cells are empty.
func GenerateCSV(result *reconcile.Result) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("failed to generate CSV: no result")
	}

	var buffer bytes.Buffer
	buffer.Write(utf8BOM)

	writer := csv.NewWriter(&buffer)
	if err := writer.Write(result.Columns.List()); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}
	for i, row := range result.Rows {
		if err := writer.Write(rowStrings(row)); err != nil {
			return nil, fmt.Errorf("failed to write record %d: %w", i+1, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return buffer.Bytes(), nil
}
