// types.go - Shared types for output formatting.
package output

import "io"

// Result represents the outcome of one settle command.
type Result struct {
	Success bool           `json:"success"`
	Command string         `json:"command"`
	URL     string         `json:"url"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Formatter is the interface for all output formatters.
type Formatter interface {
	Format(w io.Writer, result *Result) error
}

// GetFormatter returns the formatter for the given format string.
func GetFormatter(format string) Formatter {
	switch format {
	case "json":
		return &JSONFormatter{}
	case "csv":
		return &CSVFormatter{}
	default:
		return &HumanFormatter{}
	}
}
