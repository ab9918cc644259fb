package enrichment

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woninglens/woninglens/internal/domain"
)

func testPrefs() Preferences {
	return Preferences{
		"marcel": {Priorities: []string{"Garage", "Zonnepanelen"}},
		"petra":  {Priorities: []string{"Tuin", "Open keuken"}},
	}
}

func completeListing() map[string]any {
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

func enrich(t *testing.T, raw map[string]any, prefs Preferences) *domain.Registry {
	t.Helper()
	e, err := NewEnricher(zerolog.Nop())
	require.NoError(t, err)
	reg := domain.NewRegistry()
	require.NoError(t, e.Enrich(reg, raw, prefs))
	return reg
}

func TestEnrichCompleteListing(t *testing.T) {
	reg := enrich(t, completeListing(), testPrefs())

	assert.Equal(t, 450000, reg.Value("asking_price_eur"))
	assert.Equal(t, 120, reg.Value("living_area_m2"))
	assert.Equal(t, 3750, reg.Value("price_per_m2"))
	assert.Equal(t, 360, reg.Value("volume_m3"))
	assert.Equal(t, 4, reg.Value("rooms"))
	assert.Equal(t, "C", reg.Value("energy_label"))

	// Label C renovation band.
	assert.Equal(t, 10000, reg.Value("energy_invest"))
	// Build year 1985 construction band.
	assert.Equal(t, 15000, reg.Value("construction_invest"))
	assert.Equal(t, 25000, reg.Value("estimated_reno_cost"))

	entry, ok := reg.Get("price_per_m2")
	require.True(t, ok)
	assert.Equal(t, domain.KindVariable, entry.Kind)

	entry, ok = reg.Get("total_match_score")
	require.True(t, ok)
	assert.Equal(t, domain.KindKPI, entry.Kind)
}

func TestEnrichPersonaMatchAsymmetry(t *testing.T) {
	reg := enrich(t, completeListing(), testPrefs())

	marcel := reg.Value("marcel_match_score").(int)
	petra := reg.Value("petra_match_score").(int)

	// The garage token matches for Marcel (1 of 2); the garden token
	// matches for Petra (1 of 2) so both land on 50 here.
	assert.Equal(t, 50, marcel)
	assert.Equal(t, 50, petra)
	assert.ElementsMatch(t, []string{"Garage"}, reg.Value("marcel_reasons"))
	assert.ElementsMatch(t, []string{"Tuin"}, reg.Value("petra_reasons"))
}

func TestEnrichGarageOnlyFavorsMarcel(t *testing.T) {
	raw := completeListing()
	raw["features"] = []string{"Garage"}
	raw["description"] = "Woning met ruime garage"
	reg := enrich(t, raw, testPrefs())

	marcel := reg.Value("marcel_match_score").(int)
	petra := reg.Value("petra_match_score").(int)
	assert.Greater(t, marcel, petra)
}

func TestEnrichLabelFProperty(t *testing.T) {
	raw := completeListing()
	raw["energy_label"] = "F"
	reg := enrich(t, raw, testPrefs())

	assert.GreaterOrEqual(t, reg.Value("energy_invest").(int), 40000)
	assert.Contains(t, reg.Value("sustainability_advice").(string), "Ingrijpende verduurzaming")
	assert.LessOrEqual(t, reg.Value("ai_score").(int), 70)
}

func TestEnrichValuationBands(t *testing.T) {
	tests := []struct {
		name   string
		price  int
		area   int
		status string
		trend  string
	}{
		{"premium", 1200000, 100, "Premium Segment", "up"},
		{"opportunity", 300000, 100, "Potentiële Kans", "down"},
		{"sharp", 450000, 100, "Scherp Geprijsd", "neutral"},
		{"conform", 480000, 100, "Marktconform", "neutral"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := completeListing()
			raw["asking_price_eur"] = tt.price
			raw["living_area_m2"] = tt.area
			reg := enrich(t, raw, testPrefs())
			assert.Equal(t, tt.status, reg.Value("valuation_status"))
			assert.Equal(t, tt.trend, reg.Value("market_trend"))
		})
	}
}

func TestEnrichAllFieldsMissing(t *testing.T) {
	reg := enrich(t, map[string]any{}, Preferences{})

	assert.Equal(t, 0, reg.Value("asking_price_eur"))
	assert.Equal(t, 0, reg.Value("price_per_m2"))
	// Missing label defaults to G, the worst case.
	assert.Equal(t, "G", reg.Value("energy_label"))
	// Personas without preferences score a neutral 50.
	assert.Equal(t, 50, reg.Value("total_match_score"))
}

func TestEnrichIsIdempotentUpToInputEquivalence(t *testing.T) {
	a := enrich(t, completeListing(), testPrefs())
	b := enrich(t, completeListing(), testPrefs())
	assert.Equal(t, a.Snapshot(), b.Snapshot())
}

func TestEnrichTransportFailuresBecomeUncertainty(t *testing.T) {
	raw := completeListing()
	raw["scrape_error"] = "fetch timed out"
	reg := enrich(t, raw, testPrefs())

	entry, ok := reg.Get("scrape_error")
	require.True(t, ok)
	assert.Equal(t, domain.KindUncertainty, entry.Kind)
}

func TestParseIntToleratesMixedFormats(t *testing.T) {
	tests := []struct {
		in   any
		want int
	}{
		{"€ 450.000", 450000},
		{"450.000 k.k.", 450000},
		{"120 m²", 120},
		{"1.234,00", 123400},
		{450000, 450000},
		{nil, 0},
		{"geen", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseInt(tt.in), "input %v", tt.in)
	}
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"c", "C"},
		{"A++++", "A"},
		{"B (geregistreerd)", "B"},
		{nil, "G"},
		{"", "G"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeLabel(tt.in), "input %v", tt.in)
	}
}

func TestMatchPersonaAliases(t *testing.T) {
	blob := "moderne woning met zonnepanelen op het dak"
	score, hits := MatchPersona(blob, PersonaPrefs{Priorities: []string{"Solar"}})
	assert.Equal(t, 100, score)
	assert.Equal(t, []string{"Solar"}, hits)
}

func TestMatchPersonaClamping(t *testing.T) {
	// One of twenty priorities matched still floors at 10.
	priorities := make([]string, 20)
	for i := range priorities {
		priorities[i] = "onvindbaar"
	}
	priorities[0] = "tuin"

	score, hits := MatchPersona("huis met tuin", PersonaPrefs{Priorities: priorities})
	assert.Equal(t, 10, score)
	assert.Len(t, hits, 1)
}

func TestMatchPersonaAlternation(t *testing.T) {
	score, hits := MatchPersona("woning met warmtepomp", PersonaPrefs{Priorities: []string{"Warmtepomp/Stadsverwarming"}})
	assert.Equal(t, 100, score)
	assert.Len(t, hits, 1)
}
