package configutil

import (
	"fmt"
	"sort"
	"strings"
)

// Schema names the keys a settings block accepts.
type Schema struct {
	Required     []string
	Optional     []string
	AllowUnknown bool
}

// Validate reports missing required keys and, unless AllowUnknown is set,
// keys the schema does not name. A blank string counts as missing.
func (s Schema) Validate(input Settings) error {
	known := make(map[string]bool, len(s.Required)+len(s.Optional))
	for _, k := range s.Optional {
		known[normalizeKey(k)] = true
	}
	for _, k := range s.Required {
		known[normalizeKey(k)] = true
	}

	present := make(map[string]bool, len(input))
	var unknown []string
	for k, v := range input {
		nk := normalizeKey(k)
		if !isBlank(v) {
			present[nk] = true
		}
		if !known[nk] && !s.AllowUnknown {
			unknown = append(unknown, k)
		}
	}
	var missing []string
	for _, k := range s.Required {
		if !present[normalizeKey(k)] {
			missing = append(missing, k)
		}
	}
	if len(missing) == 0 && len(unknown) == 0 {
		return nil
	}

	sort.Strings(missing)
	sort.Strings(unknown)
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(missing, ", "))
	}
	if len(unknown) > 0 {
		parts = append(parts, "unknown: "+strings.Join(unknown, ", "))
	}
	return fmt.Errorf("invalid settings: %s", strings.Join(parts, "; "))
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
