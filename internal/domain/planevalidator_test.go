package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woninglens/woninglens/internal/domain/errors"
)

func narrative(words int) string {
	sentence := "De woning toont een evenwichtig beeld zonder grote verrassingen in dit domein. "
	perSentence := len(strings.Fields(sentence))
	return strings.Repeat(sentence, words/perSentence+1)
}

func validComposition(chapterID int) Composition {
	minWords := MinWordsChapter
	if chapterID == 0 {
		minWords = MinWordsChapterZero
	}
	return Composition{
		ChapterID:    chapterID,
		ChapterTitle: ChapterTitle(chapterID),
		PlaneA: PlaneA{
			Plane:     "A",
			PlaneName: PlaneNameVisual,
			Charts: []ChartSpec{
				{Type: "bar", Title: "Prijs per m²", Points: []ChartPoint{{Label: "woning", Value: 3750}}},
			},
			DataSourceIDs: []string{"price_per_m2"},
		},
		PlaneB: PlaneB{
			Plane:         "B",
			PlaneName:     PlaneNameNarrative,
			NarrativeText: narrative(minWords + 20),
			WordCount:     CountWords(narrative(minWords + 20)),
			AIGenerated:   true,
		},
		PlaneC: PlaneC{
			Plane:     "C",
			PlaneName: PlaneNameFactual,
			KPIs: []FactualKPI{
				{Key: "price_per_m2", Label: "Vierkantemeterprijs", Value: 3750, Provenance: ProvenanceDerived, RegistryID: "price_per_m2", Complete: true},
			},
		},
		PlaneD: PlaneD{
			Plane:          "D",
			PlaneName:      PlaneNamePreference,
			Marcel:         PersonaScore{MatchScore: 80, Mood: "enthousiast"},
			Petra:          PersonaScore{MatchScore: 55, Mood: "positief-kritisch"},
			JointSynthesis: "Beiden zien potentie, met verschillende accenten.",
		},
	}
}

var testRegistryKeys = map[string]bool{"price_per_m2": true, "avg_m2_price": true}

func TestValidateAcceptsValidChapter(t *testing.T) {
	v := NewPlaneValidator()
	c := validComposition(3)
	assert.Empty(t, v.Validate(&c, testRegistryKeys))
	assert.NoError(t, v.EnforceOrReject(&c, testRegistryKeys))
}

func TestValidateShortNarrative(t *testing.T) {
	v := NewPlaneValidator()
	c := validComposition(3)
	c.PlaneB.NarrativeText = "Veel te kort."
	c.PlaneB.WordCount = 3

	err := v.EnforceOrReject(&c, testRegistryKeys)
	require.Error(t, err)

	var pv *errors.PlaneViolationError
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, 3, pv.ChapterID)
	assert.Equal(t, "B", pv.SourcePlane)
	assert.Equal(t, ViolationInsufficientText, pv.ViolationType)
}

func TestValidateChapterZeroNeedsFiveHundredWords(t *testing.T) {
	v := NewPlaneValidator()
	c := validComposition(0)
	// 350 words clears the regular floor but not chapter 0's.
	c.PlaneB.NarrativeText = narrative(350)
	c.PlaneB.WordCount = CountWords(c.PlaneB.NarrativeText)

	err := v.EnforceOrReject(&c, testRegistryKeys)
	require.Error(t, err)
}

func TestValidateKPIDumpInNarrative(t *testing.T) {
	v := NewPlaneValidator()
	c := validComposition(3)
	c.PlaneB.NarrativeText = narrative(320) +
		"Prijs: €450000\nOppervlak: 120m²\nPerceel: 200m²\nLabel: 85%\n120 m² 200 m2 45 %"
	c.PlaneB.WordCount = CountWords(c.PlaneB.NarrativeText)

	err := v.EnforceOrReject(&c, testRegistryKeys)
	require.Error(t, err)

	var pv *errors.PlaneViolationError
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, ViolationKPIInNarrative, pv.ViolationType)
}

func TestValidatePersonaScoringInNarrative(t *testing.T) {
	v := NewPlaneValidator()
	c := validComposition(5)
	c.PlaneB.NarrativeText = narrative(320) + " Marcel scoort hier een 85."
	c.PlaneB.WordCount = CountWords(c.PlaneB.NarrativeText)

	err := v.EnforceOrReject(&c, testRegistryKeys)
	require.Error(t, err)

	var pv *errors.PlaneViolationError
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, ViolationPreferenceLeak, pv.ViolationType)
}

func TestValidateLongChartTitle(t *testing.T) {
	v := NewPlaneValidator()
	c := validComposition(4)
	c.PlaneA.Charts[0].Title = strings.Repeat("een veel te lange uitleg in een grafiektitel ", 3)

	err := v.EnforceOrReject(&c, testRegistryKeys)
	require.Error(t, err)

	var pv *errors.PlaneViolationError
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, "A", pv.SourcePlane)
}

func TestValidateInventedDataSource(t *testing.T) {
	v := NewPlaneValidator()
	c := validComposition(4)
	c.PlaneA.DataSourceIDs = []string{"imaginary_key"}

	err := v.EnforceOrReject(&c, testRegistryKeys)
	require.Error(t, err)

	var pv *errors.PlaneViolationError
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, ViolationInventedData, pv.ViolationType)
}

func TestValidateNarrativeInKPIValue(t *testing.T) {
	v := NewPlaneValidator()
	c := validComposition(6)
	c.PlaneC.KPIs = append(c.PlaneC.KPIs, FactualKPI{
		Key:   "afwerking",
		Label: "Afwerking",
		Value: "De afwerking is gedateerd. Echter, de basis is goed. Daarom adviseren wij een opfrisbeurt.",
	})

	err := v.EnforceOrReject(&c, testRegistryKeys)
	require.Error(t, err)

	var pv *errors.PlaneViolationError
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, ViolationNarrativeInFacts, pv.ViolationType)
}

func TestValidateJointSynthesisBounds(t *testing.T) {
	v := NewPlaneValidator()
	c := validComposition(7)
	c.PlaneD.JointSynthesis = strings.Repeat("synthese ", 80)

	err := v.EnforceOrReject(&c, testRegistryKeys)
	require.Error(t, err)

	var pv *errors.PlaneViolationError
	require.ErrorAs(t, err, &pv)
	assert.Equal(t, "D", pv.SourcePlane)
	assert.Equal(t, ViolationCrossPlaneContent, pv.ViolationType)
}

func TestValidateNotApplicableNeedsReason(t *testing.T) {
	v := NewPlaneValidator()
	c := validComposition(8)
	c.PlaneA.NotApplicable = true
	c.PlaneA.NotApplicableReason = ""

	err := v.EnforceOrReject(&c, testRegistryKeys)
	require.Error(t, err)

	c.PlaneA.NotApplicableReason = "geen numerieke data voor dit hoofdstuk"
	assert.NoError(t, v.EnforceOrReject(&c, testRegistryKeys))
}

func TestValidateEmptyChartsWithoutNotApplicable(t *testing.T) {
	v := NewPlaneValidator()
	c := validComposition(9)
	c.PlaneA.Charts = nil
	c.PlaneA.DataSourceIDs = nil

	err := v.EnforceOrReject(&c, testRegistryKeys)
	require.Error(t, err)
}
