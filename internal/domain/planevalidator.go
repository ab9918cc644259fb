package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/woninglens/woninglens/internal/domain/errors"
)

// Violation types detected by the plane validator.
const (
	ViolationKPIInNarrative     = "kpi_in_narrative"
	ViolationNarrativeInFacts   = "narrative_in_facts"
	ViolationVisualOutsidePlane = "visual_outside_plane_a"
	ViolationPreferenceLeak     = "preference_leak"
	ViolationInsufficientText   = "insufficient_narrative"
	ViolationInventedData       = "ai_invented_data"
	ViolationCrossPlaneContent  = "cross_plane_content"
	ViolationMissingPlane       = "missing_plane"
)

// Plane validation limits.
const (
	MinWordsChapterZero = 500
	MinWordsChapter     = 300
	// minNarrativeChars guards against pathological single-word narratives
	// that still clear the word count with filler tokens.
	minNarrativeChars = 600
	maxChartTitleLen  = 50
	maxKPIValueLen    = 200
	maxSynthesisLen   = 500
)

// kpiPatterns flag KPI-dump shapes inside narrative text (belongs in Plane C).
var kpiPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)^\s*[A-Z][a-z]+\s*:\s*[\d€%]+`),
	regexp.MustCompile(`(?im)^\s*•\s*[A-Z][a-z]+\s*:\s*[\d€%]+`),
	regexp.MustCompile(`(?i)\d+\s*(?:m²|m2|euro|€|%)`),
}

// scorePatterns flag persona scoring inside narrative text (belongs in Plane D).
var scorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Marcel.{0,20}(?:score|punt|%|\d+)`),
	regexp.MustCompile(`(?i)Petra.{0,20}(?:score|punt|%|\d+)`),
	regexp.MustCompile(`(?i)(?:score|punt|%).{0,20}(?:Marcel|Petra)`),
}

// narrativePatterns flag flowing prose inside KPI values (belongs in Plane B).
var narrativePatterns = []*regexp.Regexp{
	regexp.MustCompile(`[.!?]\s+[A-Z]`),
	regexp.MustCompile(`(?i)\b(?:echter|maar|ondanks|hoewel|daarom|dus)\b`),
	regexp.MustCompile(`(?i)\b(?:however|but|although|therefore|thus)\b`),
}

// PlaneViolation is a single detected violation.
type PlaneViolation struct {
	ChapterID     int    `json:"chapter_id"`
	Plane         string `json:"plane"`
	ViolationType string `json:"violation_type"`
	Description   string `json:"description"`
	Severity      string `json:"severity"`
}

// PlaneValidator enforces the four-plane contract on chapter compositions.
// Any violation prevents output: the caller either rejects the chapter or,
// under a non-strict truth policy, downgrades to warnings.
type PlaneValidator struct{}

// NewPlaneValidator creates a plane validator.
func NewPlaneValidator() *PlaneValidator {
	return &PlaneValidator{}
}

// Validate checks a single chapter for plane violations.
// registryKeys, when non-nil, is the set of valid registry IDs used for
// data-provenance checks on Plane A.
func (v *PlaneValidator) Validate(c *Composition, registryKeys map[string]bool) []PlaneViolation {
	var violations []PlaneViolation
	violations = append(violations, v.validatePlaneA(c, registryKeys)...)
	violations = append(violations, v.validatePlaneB(c)...)
	violations = append(violations, v.validatePlaneC(c)...)
	violations = append(violations, v.validatePlaneD(c)...)
	return violations
}

// EnforceOrReject validates and returns a PlaneViolationError if any
// error-severity violation exists.
func (v *PlaneValidator) EnforceOrReject(c *Composition, registryKeys map[string]bool) error {
	violations := v.Validate(c, registryKeys)
	var hard []PlaneViolation
	for _, pv := range violations {
		if pv.Severity == "error" {
			hard = append(hard, pv)
		}
	}
	if len(hard) == 0 {
		return nil
	}
	details := make([]string, 0, len(hard))
	for _, pv := range hard {
		details = append(details, fmt.Sprintf("[%s] %s: %s", pv.Plane, pv.ViolationType, pv.Description))
	}
	return &errors.PlaneViolationError{
		ChapterID:     c.ChapterID,
		SourcePlane:   hard[0].Plane,
		ViolationType: hard[0].ViolationType,
		Details:       strings.Join(details, "; "),
	}
}

func (v *PlaneValidator) validatePlaneA(c *Composition, registryKeys map[string]bool) []PlaneViolation {
	var out []PlaneViolation
	a := c.PlaneA

	if a.NotApplicable {
		if a.NotApplicableReason == "" {
			out = append(out, violation(c.ChapterID, "A", ViolationMissingPlane,
				"plane A marked not applicable without a reason"))
		}
		return out
	}

	for _, chart := range a.Charts {
		if len([]rune(chart.Title)) > maxChartTitleLen {
			out = append(out, violation(c.ChapterID, "A", ViolationVisualOutsidePlane,
				fmt.Sprintf("chart title %q exceeds %d characters; explanatory text belongs in plane B",
					truncate(chart.Title, 30), maxChartTitleLen)))
		}
	}

	if len(a.Charts) == 0 {
		out = append(out, violation(c.ChapterID, "A", ViolationMissingPlane,
			"plane A has no charts and is not marked not applicable"))
	}

	if registryKeys != nil {
		for _, id := range a.DataSourceIDs {
			if !registryKeys[id] {
				out = append(out, violation(c.ChapterID, "A", ViolationInventedData,
					fmt.Sprintf("visual data source %q not found in registry", id)))
			}
		}
	}
	return out
}

func (v *PlaneValidator) validatePlaneB(c *Composition) []PlaneViolation {
	var out []PlaneViolation
	b := c.PlaneB

	if b.NotApplicable {
		if b.NotApplicableReason == "" {
			out = append(out, violation(c.ChapterID, "B", ViolationMissingPlane,
				"plane B marked not applicable without a reason"))
		}
		return out
	}

	minWords := MinWordsChapter
	if c.ChapterID == 0 {
		minWords = MinWordsChapterZero
	}
	if b.WordCount < minWords {
		out = append(out, violation(c.ChapterID, "B", ViolationInsufficientText,
			fmt.Sprintf("narrative has %d words, minimum is %d for chapter %d",
				b.WordCount, minWords, c.ChapterID)))
	} else if len(b.NarrativeText) < minNarrativeChars {
		out = append(out, violation(c.ChapterID, "B", ViolationInsufficientText,
			fmt.Sprintf("narrative has %d characters, below the structural floor of %d",
				len(b.NarrativeText), minNarrativeChars)))
	}

	kpiHits := 0
	for _, p := range kpiPatterns {
		kpiHits += len(p.FindAllString(b.NarrativeText, -1))
	}
	if kpiHits > 3 {
		out = append(out, violation(c.ChapterID, "B", ViolationKPIInNarrative,
			fmt.Sprintf("narrative contains %d KPI patterns; raw KPIs belong in plane C", kpiHits)))
	}

	for _, p := range scorePatterns {
		if p.MatchString(b.NarrativeText) {
			out = append(out, violation(c.ChapterID, "B", ViolationPreferenceLeak,
				"narrative contains persona scoring; Marcel/Petra scores belong in plane D"))
			break
		}
	}
	return out
}

func (v *PlaneValidator) validatePlaneC(c *Composition) []PlaneViolation {
	var out []PlaneViolation
	pc := c.PlaneC

	if pc.NotApplicable {
		if pc.NotApplicableReason == "" {
			out = append(out, violation(c.ChapterID, "C", ViolationMissingPlane,
				"plane C marked not applicable without a reason"))
		}
		return out
	}

	for _, kpi := range pc.KPIs {
		s, ok := kpi.Value.(string)
		if !ok {
			continue
		}
		narrativeScore := 0
		for _, p := range narrativePatterns {
			if p.MatchString(s) {
				narrativeScore++
			}
		}
		if narrativeScore >= 2 || len(s) > maxKPIValueLen {
			out = append(out, violation(c.ChapterID, "C", ViolationNarrativeInFacts,
				fmt.Sprintf("KPI %q contains narrative content; interpretation belongs in plane B", kpi.Key)))
		}
	}
	return out
}

func (v *PlaneValidator) validatePlaneD(c *Composition) []PlaneViolation {
	var out []PlaneViolation
	d := c.PlaneD

	if d.NotApplicable {
		if d.NotApplicableReason == "" {
			out = append(out, violation(c.ChapterID, "D", ViolationMissingPlane,
				"plane D marked not applicable without a reason"))
		}
		return out
	}

	if d.JointSynthesis != "" {
		if len([]rune(d.JointSynthesis)) > maxSynthesisLen {
			out = append(out, violation(c.ChapterID, "D", ViolationCrossPlaneContent,
				fmt.Sprintf("joint synthesis exceeds %d characters; extended narrative belongs in plane B",
					maxSynthesisLen)))
		}
		if strings.Count(d.JointSynthesis, "\n\n") > 1 {
			out = append(out, violation(c.ChapterID, "D", ViolationCrossPlaneContent,
				"joint synthesis contains multiple paragraphs; extended narrative belongs in plane B"))
		}
	}
	return out
}

func violation(chapterID int, plane, vtype, desc string) PlaneViolation {
	return PlaneViolation{
		ChapterID:     chapterID,
		Plane:         plane,
		ViolationType: vtype,
		Description:   desc,
		Severity:      "error",
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
