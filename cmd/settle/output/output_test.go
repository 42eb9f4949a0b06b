// output_test.go - Tests for output formatters (human, JSON, CSV).
package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Result {
	pending := 0
	return &Result{
		Success: true,
		Command: "wait",
		URL:     "https://example.com",
		Data: map[string]any{
			"outcome":            "idle",
			"polls":              3,
			"third_party_active": &pending,
			"selectors":          []string{".a", ".b"},
		},
	}
}

func TestHumanFormatSuccess(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer

	require.NoError(t, (&HumanFormatter{}).Format(&buf, sample()))

	out := buf.String()
	assert.Contains(t, out, "[OK] wait https://example.com")
	assert.Contains(t, out, "   outcome: idle\n   polls: 3\n   selectors: .a, .b\n   third_party_active: 0\n")
}

func TestHumanFormatError(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	var unknown *int

	r := &Result{Command: "wait", URL: "u", Error: "page did not settle", Data: map[string]any{"third_party_active": unknown}}
	require.NoError(t, (&HumanFormatter{}).Format(&buf, r))

	out := buf.String()
	assert.Contains(t, out, "[Error] wait u")
	assert.Contains(t, out, "Error: page did not settle")
	assert.Contains(t, out, "third_party_active: unknown")
}

func TestJSONFormatMergesData(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer

	require.NoError(t, (&JSONFormatter{}).Format(&buf, sample()))

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "wait", out["command"])
	assert.Equal(t, "idle", out["outcome"])
	assert.EqualValues(t, 0, out["third_party_active"])
	assert.NotContains(t, out, "error")
}

func TestCSVFormatMultiple(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer

	second := &Result{Command: "probe", URL: "https://b.example", Error: "boom, with comma", Data: map[string]any{"busy": true}}
	require.NoError(t, (&CSVFormatter{}).FormatMultiple(&buf, []*Result{sample(), second}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"success", "command", "url", "error", "busy", "outcome", "polls", "selectors", "third_party_active"}, rows[0])
	assert.Equal(t, []string{"true", "wait", "https://example.com", "", "", "idle", "3", ".a, .b", "0"}, rows[1])
	assert.Equal(t, "boom, with comma", rows[2][3])
}

func TestCSVFormatEmpty(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, (&CSVFormatter{}).FormatMultiple(&buf, nil))
	assert.Zero(t, buf.Len())
}

func TestGetFormatter(t *testing.T) {
	t.Parallel()
	assert.IsType(t, &JSONFormatter{}, GetFormatter("json"))
	assert.IsType(t, &CSVFormatter{}, GetFormatter("csv"))
	assert.IsType(t, &HumanFormatter{}, GetFormatter("human"))
	assert.IsType(t, &HumanFormatter{}, GetFormatter("unknown"))
}
