package enrichment

import (
	"math"
	"strings"
)

// PersonaPrefs holds one persona's preference configuration.
type PersonaPrefs struct {
	Priorities       []string `json:"priorities"`
	HiddenPriorities []string `json:"hidden_priorities,omitempty"`
}

// Preferences is the user preference model: one entry per persona.
type Preferences map[string]PersonaPrefs

// tokenAliases is the canonical token-alias table for persona matching.
// The original implementation inlined this mapping in two places with
// slight variation; this table is the single canonical form.
var tokenAliases = map[string]string{
	"solar":    "zonnepanelen",
	"jaren 30": "193",
}

// MatchPersona scores how well a listing matches one persona's priorities.
// Each priority is a '/'-separated alternation of tokens; a priority hits
// when any of its tokens (after aliasing) appears in the lowercased search
// blob built from description, features, and energy label. The score is
// round(100·hits/total) clamped to [10,100]. A persona without priorities
// scores a neutral 50.
func MatchPersona(blob string, prefs PersonaPrefs) (int, []string) {
	priorities := append(append([]string{}, prefs.Priorities...), prefs.HiddenPriorities...)
	if len(priorities) == 0 {
		return 50, nil
	}

	blob = strings.ToLower(blob)
	var hits []string
	for _, priority := range priorities {
		for _, token := range strings.Split(priority, "/") {
			token = strings.ToLower(strings.TrimSpace(token))
			if token == "" {
				continue
			}
			if alias, ok := tokenAliases[token]; ok {
				token = alias
			}
			if strings.Contains(blob, token) {
				hits = append(hits, priority)
				break
			}
		}
	}

	score := int(math.Round(float64(len(hits)) / float64(len(priorities)) * 100))
	if score > 100 {
		score = 100
	}
	if score < 10 {
		score = 10
	}
	return score, hits
}

// SearchBlob builds the lowercased text that persona tokens are matched
// against: description + features + energy label.
func SearchBlob(description string, features []string, energyLabel string) string {
	var b strings.Builder
	b.WriteString(description)
	b.WriteByte(' ')
	b.WriteString(strings.Join(features, " "))
	b.WriteByte(' ')
	b.WriteString(energyLabel)
	return strings.ToLower(b.String())
}
