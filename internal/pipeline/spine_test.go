package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woninglens/woninglens/internal/ai"
	"github.com/woninglens/woninglens/internal/domain"
	"github.com/woninglens/woninglens/internal/domain/errors"
	"github.com/woninglens/woninglens/internal/enrichment"
	"github.com/woninglens/woninglens/internal/governance"
)

// stubClient is a deterministic TextClient standing in for a provider.
// shortChapters lists chapter ids that receive an under-length narrative.
type stubClient struct {
	shortChapters map[int]bool
	calls         int
}

func (s *stubClient) Provider() string { return "stub" }
func (s *stubClient) Model() string    { return "stub-model" }

func (s *stubClient) Generate(ctx context.Context, req ai.GenerateRequest) (string, error) {
	s.calls++

	words := 540
	for id := range s.shortChapters {
		// Map keys marshal sorted, so "hoofdstuk" is always followed by
		// "titel" in the prompt payload.
		if strings.Contains(req.Prompt, `"hoofdstuk":`+itoa(id)+`,`) {
			words = 50
		}
	}

	sentence := "De woning maakt binnen dit domein een verzorgde en samenhangende indruk op de bezoeker. "
	perSentence := len(strings.Fields(sentence))
	narrative := strings.Repeat(sentence, words/perSentence+1)

	payload := map[string]any{
		"title":         "Analyse",
		"intro":         "Een korte inleiding op dit domein van de woning.",
		"main_analysis": narrative,
		"conclusion":    "De conclusie volgt uit de bovenstaande interpretatie.",
		"strengths":     []string{"verzorgde uitstraling"},
		"advice":        []string{"plan een bezichtiging in"},
		"variables":     map[string]any{},
		"comparison": map[string]any{
			"marcel":  "Ziet vooral de technische kant als sterk punt.",
			"petra":   "Waardeert de sfeer en de lichtinval.",
			"overlap": []string{"beiden waarderen de ligging"},
			"tension": []string{"budgetruimte voor verbouwing"},
			"joint":   "Samen zien zij voldoende aanleiding voor een vervolgstap.",
		},
	}
	raw, err := json.Marshal(payload)
	return string(raw), err
}

func itoa(n int) string {
	raw, _ := json.Marshal(n)
	return string(raw)
}

func testListing() map[string]any {
	return map[string]any{
		"asking_price_eur": 450000,
		"living_area_m2":   120,
		"plot_area_m2":     200,
		"build_year":       1985,
		"energy_label":     "C",
		"address":          "Teststraat 123",
		"description":      "Woning met tuin",
		"features":         []string{"Tuin", "Garage"},
	}
}

func testPrefs() enrichment.Preferences {
	return enrichment.Preferences{
		"marcel": {Priorities: []string{"Garage", "Zonnepanelen"}},
		"petra":  {Priorities: []string{"Tuin", "Open keuken"}},
	}
}

func newTestGenerator(t *testing.T, stub *stubClient) *ChapterGenerator {
	t.Helper()
	return NewChapterGenerator(nil, true, zerolog.Nop()).WithClient(stub)
}

func newTestEnricher(t *testing.T) *enrichment.Enricher {
	t.Helper()
	e, err := enrichment.NewEnricher(zerolog.Nop())
	require.NoError(t, err)
	return e
}

func TestExecuteReportPipelineCompleteListing(t *testing.T) {
	stub := &stubClient{}
	policy := governance.DefaultPolicy(governance.EnvProduction)

	var progressed []int
	result, err := ExecuteReportPipeline(
		context.Background(), "run-1", testListing(), testPrefs(),
		policy, newTestEnricher(t), newTestGenerator(t, stub),
		func(chapterID int, status ChapterStatus, wordCount int) {
			if status == ChapterDone {
				progressed = append(progressed, chapterID)
				assert.Positive(t, wordCount)
			}
		},
		zerolog.Nop(),
	)
	require.NoError(t, err)

	// Every chapter is present, keyed by string id, with plane structure.
	require.Len(t, result.Chapters, domain.ChapterCount)
	for id := 0; id < domain.ChapterCount; id++ {
		payload, ok := result.Chapters[itoa(id)]
		require.True(t, ok, "chapter %d missing", id)
		assert.True(t, payload.PlaneStructure)
		assert.True(t, payload.Diagnostics.ValidationPassed)
		assert.Equal(t, "stub", payload.PlaneB.AIProvider)
	}
	assert.Len(t, progressed, domain.ChapterCount)

	// Enriched core carries the derived metric.
	assert.Equal(t, 3750, result.EnrichedCore["price_per_m2"])

	// Core summary formatting.
	assert.Equal(t, "€ 450.000", result.CoreSummary.AskingPrice.Value)
	assert.Equal(t, "120 m²", result.CoreSummary.LivingArea.Value)
	assert.Equal(t, "Teststraat 123", result.CoreSummary.Location.Value)
	assert.Equal(t, domain.StatusPresent, result.CoreSummary.MatchScore.Status)

	// Dashboard cards.
	assert.Len(t, result.KPIs.DashboardCards, 4)
	assert.True(t, result.KPIs.ValidationPassed)
	assert.Equal(t, stub.calls, domain.ChapterCount)
}

func TestShortNarrativeFailsValidationInProduction(t *testing.T) {
	stub := &stubClient{shortChapters: map[int]bool{3: true}}
	policy := governance.DefaultPolicy(governance.EnvProduction)

	_, err := ExecuteReportPipeline(
		context.Background(), "run-2", testListing(), testPrefs(),
		policy, newTestEnricher(t), newTestGenerator(t, stub), nil, zerolog.Nop(),
	)
	require.Error(t, err)

	var vf *errors.ValidationFailureError
	require.ErrorAs(t, err, &vf)
	require.Contains(t, vf.Chapters, 3)
	assert.Contains(t, vf.Chapters[3][0], "insufficient_narrative")
	assert.NotContains(t, vf.Chapters, 4)
}

func TestSpinePhaseOrderEnforced(t *testing.T) {
	policy := governance.DefaultPolicy(governance.EnvProduction)
	spine := NewSpine("run-3", policy, newTestEnricher(t), newTestGenerator(t, &stubClient{}), zerolog.Nop())

	// Chapters before ingest.
	err := spine.GenerateAllChapters(context.Background(), nil)
	assert.Equal(t, errors.CodePipelineViolation, errors.CodeOf(err))

	// Renderable output before validation.
	_, err = spine.RenderableOutput()
	assert.Equal(t, errors.CodePipelineViolation, errors.CodeOf(err))

	// Enrichment before ingest.
	err = spine.EnrichAndPopulateRegistry()
	assert.Equal(t, errors.CodePipelineViolation, errors.CodeOf(err))

	// Double ingest.
	require.NoError(t, spine.IngestRawData(testListing(), testPrefs()))
	err = spine.IngestRawData(testListing(), testPrefs())
	assert.Equal(t, errors.CodePipelineViolation, errors.CodeOf(err))
}

func TestRegistryLockedAfterEnrichmentPhase(t *testing.T) {
	policy := governance.DefaultPolicy(governance.EnvProduction)
	spine := NewSpine("run-4", policy, newTestEnricher(t), newTestGenerator(t, &stubClient{}), zerolog.Nop())

	require.NoError(t, spine.IngestRawData(testListing(), testPrefs()))
	require.NoError(t, spine.EnrichAndPopulateRegistry())
	require.True(t, spine.Registry().Frozen())

	before := spine.Registry().Len()
	err := spine.Registry().Register(domain.Entry{ID: "illegal", Kind: domain.KindFact, Value: 999, Name: "x", Source: "test"})
	require.Error(t, err)
	assert.Equal(t, errors.CodeRegistryLocked, errors.CodeOf(err))
	assert.Equal(t, before, spine.Registry().Len())
}

func TestCoreSummaryBuiltImmediatelyAfterFreeze(t *testing.T) {
	policy := governance.DefaultPolicy(governance.EnvProduction)
	spine := NewSpine("run-5", policy, newTestEnricher(t), newTestGenerator(t, &stubClient{}), zerolog.Nop())

	require.NoError(t, spine.IngestRawData(testListing(), testPrefs()))
	require.NoError(t, spine.EnrichAndPopulateRegistry())

	require.NotNil(t, spine.CoreSummary())
	assert.Equal(t, PhaseCoreSummaryBuilt, spine.Phase())
	assert.Equal(t, spine.Registry().Len(), spine.CoreSummary().RegistryEntryCount)
}

func TestPipelineCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := governance.DefaultPolicy(governance.EnvProduction)
	_, err := ExecuteReportPipeline(
		ctx, "run-6", testListing(), testPrefs(),
		policy, newTestEnricher(t), newTestGenerator(t, &stubClient{}), nil, zerolog.Nop(),
	)
	require.Error(t, err)
	assert.Equal(t, errors.CodePipelineViolation, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "cancelled")
}

func TestChapterGeneratorRequiresFrozenRegistry(t *testing.T) {
	generator := newTestGenerator(t, &stubClient{})
	reg := domain.NewRegistry()

	_, err := generator.Generate(context.Background(), reg, testPrefs(), 1)
	require.Error(t, err)
	assert.Equal(t, errors.CodePipelineViolation, errors.CodeOf(err))
}

func TestScopedViewRespectsOwnership(t *testing.T) {
	reg := domain.NewRegistry()
	entries := map[string]any{
		"asking_price_eur":   450000,
		"energy_invest":      10000,
		"description":        "Woning met tuin",
		"marcel_match_score": 50,
	}
	for key, value := range entries {
		require.NoError(t, reg.Register(domain.Entry{ID: key, Kind: domain.KindFact, Value: value, Name: key, Source: "test", Complete: true}))
	}
	require.NoError(t, reg.Freeze())

	// Chapter 4 owns the energy keys; it sees reference data but never
	// the asking price.
	scoped := scopedView(reg, 4)
	assert.Contains(t, scoped, "energy_invest")
	assert.Contains(t, scoped, "description")
	assert.Contains(t, scoped, "marcel_match_score")
	assert.NotContains(t, scoped, "asking_price_eur")

	// Chapter 0 sees core data.
	scoped = scopedView(reg, 0)
	assert.Contains(t, scoped, "asking_price_eur")
}

func TestBuildKPIsFromRegistry(t *testing.T) {
	reg := domain.NewRegistry()
	require.NoError(t, reg.Register(domain.Entry{ID: "asking_price_eur", Kind: domain.KindFact, Value: 450000, Name: "Vraagprijs", Source: "test", Complete: true}))
	require.NoError(t, reg.Register(domain.Entry{ID: "energy_label", Kind: domain.KindFact, Value: "C", Name: "Energielabel", Source: "test", Complete: true}))
	require.NoError(t, reg.Register(domain.Entry{ID: "total_match_score", Kind: domain.KindKPI, Value: 72, Name: "Totaal Match", Source: "test", Complete: true}))
	require.NoError(t, reg.Freeze())

	kpis := BuildKPIs(reg, true)
	require.Len(t, kpis.DashboardCards, 4)
	assert.Equal(t, "72%", kpis.DashboardCards[0].Value)
	assert.Equal(t, "€ 450.000", kpis.DashboardCards[2].Value)
	assert.Equal(t, "C", kpis.DashboardCards[3].Value)
	assert.InDelta(t, 0.4, kpis.Completeness, 0.01)
	assert.InDelta(t, 0.72, kpis.FitScore, 0.001)
}
