// json.go - JSON output formatter.
// Produces machine-parseable JSON output.
package output

import (
	"encoding/json"
	"io"
)

// JSONFormatter produces JSON output.
type JSONFormatter struct{}

// Format writes a JSON representation of the result, with data fields merged
// into the top-level object.
func (f *JSONFormatter) Format(w io.Writer, result *Result) error {
	out := map[string]any{
		"success": result.Success,
		"command": result.Command,
		"url":     result.URL,
	}
	if result.Error != "" {
		out["error"] = result.Error
	}
	for k, v := range result.Data {
		out[k] = v
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
