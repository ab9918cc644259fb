// Package enrichment transforms raw scraped listing fields into canonical
// registry entries: parsing, normalization, derived metrics, and persona
// match scores. All arithmetic on property data happens here; downstream
// presentation code only reads.
package enrichment

import (
	"regexp"
	"strconv"
	"strings"
)

var digitRun = regexp.MustCompile(`\d+`)

// ParseInt extracts an integer from a raw scraped field, tolerating Dutch
// thousands separators and embedded units ("€ 450.000", "120 m²").
// Unparseable input yields 0.
func ParseInt(raw any) int {
	if raw == nil {
		return 0
	}
	if n, ok := rawInt(raw); ok {
		return n
	}
	s := strings.NewReplacer(".", "", ",", "").Replace(strings.TrimSpace(toString(raw)))
	m := digitRun.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

// NormalizeLabel cleans an energy label to a single letter class:
// "A++++ (registered)" becomes "A", lowercase input is uppercased,
// missing input defaults to "G".
func NormalizeLabel(raw any) string {
	label := strings.ToUpper(strings.TrimSpace(toString(raw)))
	if label == "" {
		return "G"
	}
	if len(label) > 3 {
		label = label[:1]
	}
	if i := strings.IndexByte(label, ' '); i >= 0 {
		label = label[:i]
	}
	return label
}

func rawInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	case float32:
		return int(x), true
	}
	return 0, false
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []string:
		return strings.Join(x, " ")
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			parts = append(parts, toString(e))
		}
		return strings.Join(parts, " ")
	case nil:
		return ""
	default:
		return strings.TrimSpace(strings.Trim(strings.ReplaceAll(sprint(x), "\n", " "), " "))
	}
}

func sprint(v any) string {
	switch x := v.(type) {
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}

// firstNonEmpty returns the first raw field that is present in the map
// under any of the given keys.
func firstNonEmpty(raw map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			if s, isStr := v.(string); isStr && s == "" {
				continue
			}
			return v
		}
	}
	return nil
}
