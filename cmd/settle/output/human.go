// human.go - Human-readable output formatter.
package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// HumanFormatter produces human-readable output.
type HumanFormatter struct{}

// Format writes a human-readable representation of the result. Data keys are
// sorted so repeated runs diff cleanly.
func (h *HumanFormatter) Format(w io.Writer, result *Result) error {
	var sb strings.Builder

	if result.Success {
		fmt.Fprintf(&sb, "[OK] %s %s\n", result.Command, result.URL)
	} else {
		fmt.Fprintf(&sb, "[Error] %s %s\n", result.Command, result.URL)
		if result.Error != "" {
			fmt.Fprintf(&sb, "   Error: %s\n", result.Error)
		}
	}

	keys := make([]string, 0, len(result.Data))
	for k := range result.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "   %s: %s\n", k, display(result.Data[k]))
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// display renders nil pointers as "unknown" and dereferences the rest.
func display(v any) string {
	switch x := v.(type) {
	case *int:
		if x == nil {
			return "unknown"
		}
		return fmt.Sprint(*x)
	case nil:
		return "unknown"
	case []string:
		return strings.Join(x, ", ")
	default:
		return fmt.Sprint(x)
	}
}
