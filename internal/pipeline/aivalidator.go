// Package pipeline contains the report pipeline: the spine that drives a
// run through its phases, the chapter generator, and the validators that
// keep AI output inside its contract.
package pipeline

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/woninglens/woninglens/internal/domain"
	"github.com/woninglens/woninglens/internal/domain/errors"
)

// allowedMetaKeys are the top-level keys any chapter's AI output may carry.
// Everything else must be a chapter-owned variable key.
var allowedMetaKeys = map[string]bool{
	"title":          true,
	"intro":          true,
	"main_analysis":  true,
	"conclusion":     true,
	"interpretation": true,
	"strengths":      true,
	"advice":         true,
	"variables":      true,
	"comparison":     true,
	"metadata":       true,
}

// numericLiteral matches any digit inside the value of an AI-returned
// variable. AI does not output facts; a number in a variable value is a
// structural violation regardless of mode.
var numericLiteral = regexp.MustCompile(`\d`)

// minInjectionLen is the minimum length of a reasoning string considered
// for synthetic-injection detection; short phrases repeat legitimately.
const minInjectionLen = 20

// injectionThreshold is the number of distinct variables that must share a
// reasoning string before the output is rejected as a placeholder template.
const injectionThreshold = 3

// AIOutputResult is the outcome of validating one chapter's AI output.
type AIOutputResult struct {
	Valid        bool
	Violations   []string
	StrippedKeys []string
}

// AIOutputValidator enforces the interpretation schema on AI output,
// immediately after each call and before any composition is built.
type AIOutputValidator struct {
	strict bool
}

// NewAIOutputValidator creates a validator. In strict mode the first
// violation aborts; otherwise unauthorized keys are stripped and recorded.
// Numeric-literal and synthetic-injection violations are fatal in every
// mode.
func NewAIOutputValidator(strict bool) *AIOutputValidator {
	return &AIOutputValidator{strict: strict}
}

// ParseOutput decodes the raw model response into a key→value map,
// tolerating surrounding code fences.
func ParseOutput(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var out map[string]any
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return nil, fmt.Errorf("decoding AI output: %w", err)
	}
	return out, nil
}

// Validate checks one chapter's AI output. The output map is mutated in
// non-strict mode when unauthorized keys are stripped.
func (v *AIOutputValidator) Validate(chapterID int, output map[string]any) (AIOutputResult, error) {
	result := AIOutputResult{Valid: true}
	owned := domain.OwnedKeys(chapterID)

	// Law B: top-level keys must be a subset of the allowed schema.
	for key := range output {
		if allowedMetaKeys[key] || owned[key] {
			continue
		}
		msg := fmt.Sprintf("unauthorized top-level key %q", key)
		if v.strict {
			result.Valid = false
			result.Violations = append(result.Violations, msg)
			continue
		}
		delete(output, key)
		result.StrippedKeys = append(result.StrippedKeys, key)
	}

	// Ownership: variable keys must belong to this chapter.
	variables, _ := output["variables"].(map[string]any)
	for key := range variables {
		if owned[key] {
			continue
		}
		msg := fmt.Sprintf("variable %q is not owned by chapter %d", key, chapterID)
		if v.strict {
			result.Valid = false
			result.Violations = append(result.Violations, msg)
			continue
		}
		delete(variables, key)
		result.StrippedKeys = append(result.StrippedKeys, "variables."+key)
	}

	// Law C: AI may not output numeric literals in its text fields.
	// Fatal in every mode.
	reasonings := map[string][]string{}
	for key, raw := range variables {
		entry, _ := raw.(map[string]any)
		if entry == nil {
			continue
		}
		if s, ok := entry["value"].(string); ok && numericLiteral.MatchString(s) {
			result.Valid = false
			result.Violations = append(result.Violations,
				fmt.Sprintf("variable %q value contains a numeric literal; AI does not output facts", key))
		}
		if reason, ok := entry["reasoning"].(string); ok && len(reason) >= minInjectionLen {
			reasonings[reason] = append(reasonings[reason], key)
		}
	}

	// Synthetic-injection detection: identical boilerplate reasoning across
	// unrelated variables is a placeholder template pretending to be
	// inference. Fatal in every mode.
	for reason, keys := range reasonings {
		if len(keys) >= injectionThreshold {
			result.Valid = false
			result.Violations = append(result.Violations,
				fmt.Sprintf("identical reasoning %q repeated across %d variables; synthetic injection rejected",
					truncateText(reason, 40), len(keys)))
		}
	}

	if !result.Valid {
		return result, &errors.AIOutputViolationError{ChapterID: chapterID, Violations: result.Violations}
	}
	return result, nil
}

func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
