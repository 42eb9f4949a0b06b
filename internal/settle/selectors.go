// selectors.go - Spinner selector configuration parsing.
package settle

import "strings"

// disabledMarkers switch the spinner check off.
var disabledMarkers = map[string]bool{
	"":      true,
	"none":  true,
	"null":  true,
	"false": true,
	"off":   true,
}

// ParseSpinnerSelectors splits a comma separated selector list. Blank
// entries are dropped. A nil result means the spinner check is disabled.
func ParseSpinnerSelectors(raw string) []string {
	if disabledMarkers[strings.ToLower(strings.TrimSpace(raw))] {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
