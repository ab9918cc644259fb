package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCoreSummaryCompleteListing(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(entry("asking_price_eur", 450000)))
	require.NoError(t, reg.Register(entry("living_area_m2", 120)))
	require.NoError(t, reg.Register(entry("address", "Teststraat 123")))
	require.NoError(t, reg.Register(entry("total_match_score", 72)))
	require.NoError(t, reg.Register(entry("energy_label", "c")))
	require.NoError(t, reg.Register(entry("plot_area_m2", 200)))
	require.NoError(t, reg.Freeze())

	summary := BuildCoreSummary(reg)

	assert.Equal(t, "€ 450.000", summary.AskingPrice.Value)
	assert.Equal(t, "120 m²", summary.LivingArea.Value)
	assert.Equal(t, "Teststraat 123", summary.Location.Value)
	assert.Equal(t, "72%", summary.MatchScore.Value)
	assert.Equal(t, StatusPresent, summary.AskingPrice.Status)

	require.NotNil(t, summary.EnergyLabel)
	assert.Equal(t, "C", summary.EnergyLabel.Value)
	require.NotNil(t, summary.PlotArea)
	assert.Equal(t, "200 m²", summary.PlotArea.Value)

	assert.Equal(t, 1.0, summary.CompletenessScore)
	assert.Equal(t, reg.Len(), summary.RegistryEntryCount)
	assert.Equal(t, "asking_price_eur", summary.Provenance["asking_price"])
}

func TestBuildCoreSummaryEmptyRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Freeze())

	summary := BuildCoreSummary(reg)

	for _, f := range []CoreField{summary.AskingPrice, summary.LivingArea, summary.Location, summary.MatchScore} {
		assert.Equal(t, StatusUnknown, f.Status)
		assert.Equal(t, "onbekend", f.Value)
	}
	assert.Nil(t, summary.PropertyType)
	assert.Nil(t, summary.EnergyLabel)
	assert.Zero(t, summary.CompletenessScore)

	// Provenance is populated even for unknown slots.
	assert.Equal(t, "asking_price_eur", summary.Provenance["asking_price"])
	assert.Equal(t, "address", summary.Provenance["location"])
}

func TestBuildCoreSummaryLocationShortening(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(entry("address", "Teststraat 123, 1234 AB, Amsterdam")))
	require.NoError(t, reg.Freeze())

	summary := BuildCoreSummary(reg)
	assert.Equal(t, "Amsterdam", summary.Location.Value)
	assert.Equal(t, "Teststraat 123, 1234 AB, Amsterdam", summary.Location.RawValue)
}

func TestBuildCoreSummaryIsPureInFrozenRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(entry("asking_price_eur", 325000)))
	require.NoError(t, reg.Register(entry("living_area_m2", 95)))
	require.NoError(t, reg.Freeze())

	first := BuildCoreSummary(reg)
	second := BuildCoreSummary(reg)
	assert.Equal(t, first, second)
}

func TestFormatEuro(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{450000, "€ 450.000"},
		{1250000, "€ 1.250.000"},
		{999, "€ 999"},
		{"€ 450.000", "€ 450.000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatEuro(tt.in))
	}
}
