package governance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductionRejectsEscapeHatches(t *testing.T) {
	_, err := NewTruthPolicy(Config{Environment: EnvProduction, AllowPartialGeneration: true})
	require.Error(t, err)

	_, err = NewTruthPolicy(Config{Environment: EnvProduction, OfflineStructuralMode: true})
	require.Error(t, err)

	_, err = NewTruthPolicy(Config{Environment: EnvProduction})
	require.NoError(t, err)
}

func TestAllRulesStrictByDefault(t *testing.T) {
	policy := DefaultPolicy(EnvProduction)
	for _, rule := range allRules {
		assert.Equal(t, LevelStrict, policy.Level(rule), rule)
	}
	assert.True(t, policy.IsProduction())
}

func TestPinnedRulesStayStrictInEveryEnvironment(t *testing.T) {
	policy, err := NewTruthPolicy(Config{
		Environment:            EnvTest,
		AllowPartialGeneration: true,
		OfflineStructuralMode:  true,
	})
	require.NoError(t, err)

	for rule := range pinnedRules {
		assert.Equal(t, LevelStrict, policy.Level(rule), rule)
	}

	// The non-pinned rules are actually loosened.
	assert.Equal(t, LevelWarn, policy.Level(RuleFailClosedNarrative))
	assert.Equal(t, LevelOff, policy.Level(RuleRequireAIProvider))
	assert.Equal(t, LevelWarn, policy.Level(RuleFailOnMissingPlanes))
}

func TestUnknownRuleIsStrict(t *testing.T) {
	policy := DefaultPolicy(EnvTest)
	assert.True(t, policy.Strict("some_future_rule"))
}

func TestStateManagerForbidsApplyInProduction(t *testing.T) {
	m := NewStateManager(EnvProduction)

	_, err := m.Apply(Config{Environment: EnvProduction}, "test")
	require.Error(t, err)

	_, err = m.Reset("test")
	require.Error(t, err)

	// The refusal is audited.
	log := m.AuditLog()
	require.NotEmpty(t, log)
	assert.Equal(t, "ATTEMPT_JURISDICTION_VIOLATION", log[len(log)-1]["action"])
}

func TestStateManagerApplyAndReset(t *testing.T) {
	m := NewStateManager(EnvTest)

	policy, err := m.Apply(Config{Environment: EnvTest, AllowPartialGeneration: true}, "test")
	require.NoError(t, err)
	assert.Equal(t, LevelWarn, policy.Level(RuleFailClosedNarrative))
	assert.Equal(t, LevelWarn, m.EffectivePolicy().Level(RuleFailClosedNarrative))

	policy, err = m.Reset("test")
	require.NoError(t, err)
	assert.Equal(t, LevelStrict, policy.Level(RuleFailClosedNarrative))
}

func TestStateManagerRejectsEnvironmentMismatch(t *testing.T) {
	m := NewStateManager(EnvTest)
	_, err := m.Apply(Config{Environment: EnvDevelopment}, "test")
	require.Error(t, err)
}
