package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woninglens/woninglens/internal/domain/errors"
)

func TestParseOutputToleratesCodeFences(t *testing.T) {
	out, err := ParseOutput("```json\n{\"title\": \"Analyse\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "Analyse", out["title"])
}

func TestParseOutputRejectsNonJSON(t *testing.T) {
	_, err := ParseOutput("dit is geen json")
	require.Error(t, err)
}

func TestValidateAcceptsConformingOutput(t *testing.T) {
	v := NewAIOutputValidator(true)
	output := map[string]any{
		"title":         "Energie",
		"main_analysis": "De energetische staat vraagt om aandacht.",
		"variables": map[string]any{
			"sustainability_advice": map[string]any{"value": "verduurzaming aanbevolen", "reasoning": "label en bouwperiode wijzen op beperkte isolatie"},
		},
	}
	result, err := v.Validate(4, output)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.StrippedKeys)
}

func TestValidateUnauthorizedTopLevelKeyStrict(t *testing.T) {
	v := NewAIOutputValidator(true)
	output := map[string]any{"main_analysis": "tekst", "hallucinated_field": "x"}

	_, err := v.Validate(4, output)
	require.Error(t, err)

	var violation *errors.AIOutputViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, 4, violation.ChapterID)
}

func TestValidateUnauthorizedKeyStrippedInNonStrict(t *testing.T) {
	v := NewAIOutputValidator(false)
	output := map[string]any{"main_analysis": "tekst", "hallucinated_field": "x"}

	result, err := v.Validate(4, output)
	require.NoError(t, err)
	assert.Contains(t, result.StrippedKeys, "hallucinated_field")
	assert.NotContains(t, output, "hallucinated_field")
}

func TestValidateForeignVariableRejected(t *testing.T) {
	v := NewAIOutputValidator(true)
	output := map[string]any{
		"variables": map[string]any{
			// asking_price_eur belongs to chapters 0 and 10, not 4.
			"asking_price_eur": map[string]any{"value": "hoog"},
		},
	}
	_, err := v.Validate(4, output)
	require.Error(t, err)
}

func TestValidateNumericLiteralFatalInEveryMode(t *testing.T) {
	output := func() map[string]any {
		return map[string]any{
			"variables": map[string]any{
				"sustainability_advice": map[string]any{"value": "reken op 45000 euro"},
			},
		}
	}

	for _, strict := range []bool{true, false} {
		v := NewAIOutputValidator(strict)
		_, err := v.Validate(4, output())
		require.Error(t, err, "strict=%v", strict)
		assert.Equal(t, errors.CodeAIOutputViolation, errors.CodeOf(err))
	}
}

func TestValidateSyntheticInjectionRejected(t *testing.T) {
	boilerplate := "Gebaseerd op algemene marktkennis en beschikbare gegevens."
	output := map[string]any{
		"variables": map[string]any{
			"energy_label":          map[string]any{"value": "matig", "reasoning": boilerplate},
			"energy_invest":         map[string]any{"value": "aanzienlijk", "reasoning": boilerplate},
			"sustainability_advice": map[string]any{"value": "verduurzamen", "reasoning": boilerplate},
		},
	}

	v := NewAIOutputValidator(false)
	_, err := v.Validate(4, output)
	require.Error(t, err)

	var violation *errors.AIOutputViolationError
	require.ErrorAs(t, err, &violation)
	assert.Contains(t, violation.Violations[0], "synthetic injection")
}
