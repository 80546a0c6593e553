package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ginjaninja78/siafi-efd-reconciler/internal/view"
)

func tableComponent() *view.Component {
	c := view.SiafiTable()
	c.SetVariables(view.TableVariables(map[string][]any{
		"RECOLHEDOR": {int64(1), int64(2)},
		"DOCUMENTO":  {int64(2), int64(1)},
		"VALOR":      {30.0, 5.5},
	}, []string{"RECOLHEDOR", "DOCUMENTO", "VALOR"}, 2))
	return c
}

func infoComponent() *view.Component {
	c := view.ParseInfo()
	c.SetVariables(view.InfoVariables(map[string]any{
		"sum":                      "R$ 3,50",
		"greater_siafi_sum":        "R$ 9,00",
		"greater_siafi_count":      1,
		"greater_siafi_recolhedor": []int64{11, 12},
	}))
	return c
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{" yaml", FormatYAML, false},
		{"auto", FormatAuto, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectFormatExplicit(t *testing.T) {
	assert.Equal(t, FormatYAML, DetectFormat("YAML"))
	assert.Equal(t, FormatJSON, DetectFormat(" json "))
	assert.Contains(t, []Format{FormatTable, FormatJSON}, DetectFormat("auto"))
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	for _, f := range []Format{FormatTable, FormatJSON, FormatYAML} {
		r, err := New(f, &buf)
		require.NoError(t, err)
		assert.NotNil(t, r)
	}
	_, err := New(Format("wide"), &buf)
	assert.Error(t, err)
}

func TestTableRendererTable(t *testing.T) {
	var buf bytes.Buffer
	r := NewTableRenderer(&buf)

	require.NoError(t, r.Render(tableComponent()))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "Siafi\n"))
	assert.Contains(t, out, "30.00")
	assert.Contains(t, out, "5.50")
	assert.NoError(t, r.Remove(tableComponent()))
}

func TestTableRendererInfo(t *testing.T) {
	var buf bytes.Buffer
	r := NewTableRenderer(&buf)

	require.NoError(t, r.Render(infoComponent()))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, view.ParseInfoName+"\n"))
	assert.Contains(t, out, "Greater Siafi Sum")
	assert.Contains(t, out, "R$ 9,00")
	assert.Contains(t, out, "11, 12")
	assert.Less(t, strings.Index(out, "Greater Siafi Sum"), strings.Index(out, "R$ 3,50"), "sum is listed last")
}

func TestJSONRenderer(t *testing.T) {
	var buf bytes.Buffer
	r, err := New(FormatJSON, &buf)
	require.NoError(t, err)

	require.NoError(t, r.Render(tableComponent()))

	var doc struct {
		Component string `json:"component"`
		ID        string `json:"id"`
		Variables struct {
			Len     int              `json:"len"`
			Columns []string         `json:"columns"`
			Table   map[string][]any `json:"table"`
			Ready   bool             `json:"ready"`
		} `json:"variables"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, view.SiafiTableName, doc.Component)
	assert.Equal(t, "siafi-table", doc.ID)
	assert.Equal(t, 2, doc.Variables.Len)
	assert.True(t, doc.Variables.Ready)
	assert.Equal(t, []any{30.0, 5.5}, doc.Variables.Table["VALOR"])
}

func TestYAMLRenderer(t *testing.T) {
	var buf bytes.Buffer
	r, err := New(FormatYAML, &buf)
	require.NoError(t, err)

	require.NoError(t, r.Render(infoComponent()))
	require.NoError(t, r.Render(tableComponent()))

	dec := yaml.NewDecoder(&buf)
	var names []string
	for {
		var doc map[string]any
		if err := dec.Decode(&doc); err != nil {
			break
		}
		names = append(names, doc["component"].(string))
	}
	assert.Equal(t, []string{view.ParseInfoName, view.SiafiTableName}, names)
}

func TestDescribeKeys(t *testing.T) {
	keys := DescribeKeys(map[string]any{
		"sum": 1, "zeta": 1, "alpha": 1, "max": 1, "count": 1, "25%": 1,
	})
	assert.Equal(t, []string{"count", "25%", "max", "sum", "alpha", "zeta"}, keys)
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "R$ 1,00", "R$ 1,00"},
		{"int", 3, "3"},
		{"int64", int64(123456789012), "123456789012"},
		{"float", 1234.5, "1234.50"},
		{"ids", []int64{1, 2}, "1, 2"},
		{"empty ids", []int64{}, ""},
		{"other", true, "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.in))
		})
	}
}
