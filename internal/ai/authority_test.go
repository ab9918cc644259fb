package ai

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woninglens/woninglens/internal/domain/errors"
)

// unreachableOllamaURL points at a port nothing listens on so probes fail
// fast without touching the network stack beyond loopback.
const unreachableOllamaURL = "http://127.0.0.1:1"

func emptyCreds() func() Credentials {
	return func() Credentials {
		return Credentials{OllamaBaseURL: unreachableOllamaURL}
	}
}

func TestResolveWithNoProviderConfigured(t *testing.T) {
	authority := NewAuthority(emptyCreds(), NewCapabilityManager(), zerolog.Nop())

	_, err := authority.Resolve(context.Background(), true)
	require.Error(t, err)

	var np *errors.NoProviderError
	require.ErrorAs(t, err, &np)
	assert.Equal(t, Hierarchy, np.FallbacksTried)

	// Key-less API providers are recorded as not configured, the
	// unreachable local provider as an operational limit.
	for _, name := range []string{"openai", "gemini", "anthropic"} {
		state := np.Providers[name]
		assert.False(t, state.Configured, name)
		assert.Equal(t, string(StateNotConfigured), state.Status, name)
		assert.Equal(t, string(CategoryImplementationInvalid), state.Category, name)
	}
	ollama := np.Providers["ollama"]
	assert.True(t, ollama.Configured)
	assert.Equal(t, string(CategoryOperationallyLimited), ollama.Category)
}

func TestInvalidateForcesCredentialReload(t *testing.T) {
	loads := 0
	authority := NewAuthority(func() Credentials {
		loads++
		return Credentials{OllamaBaseURL: unreachableOllamaURL}
	}, NewCapabilityManager(), zerolog.Nop())

	_, _ = authority.Resolve(context.Background(), true)
	_, _ = authority.Resolve(context.Background(), true)
	assert.Equal(t, 1, loads, "key material is cached between resolves")

	authority.Invalidate()
	_, _ = authority.Resolve(context.Background(), true)
	assert.Equal(t, 2, loads, "invalidate drops the cached key material")
}

func TestReportCallFailureCategorizesQuota(t *testing.T) {
	caps := NewCapabilityManager()
	authority := NewAuthority(emptyCreds(), caps, zerolog.Nop())

	authority.ReportCallFailure("openai", &errors.QuotaError{Provider: "openai"})

	status := caps.Status(CapabilityTextGeneration)
	assert.Equal(t, StateQuotaExceeded, status.State)
	assert.Equal(t, CategoryOperationallyLimited, status.Category)
}

func TestClassifyProbeFailure(t *testing.T) {
	state, category, _ := classifyProbeFailure(&errors.QuotaError{Provider: "openai"})
	assert.Equal(t, StateQuotaExceeded, state)
	assert.Equal(t, CategoryOperationallyLimited, category)

	state, category, _ = classifyProbeFailure(&errors.TimeoutError{Provider: "gemini", Operation: "health probe"})
	assert.Equal(t, StateOffline, state)
	assert.Equal(t, CategoryOperationallyLimited, category)

	state, category, _ = classifyProbeFailure(fmt.Errorf("status 429 too many requests"))
	assert.Equal(t, StateQuotaExceeded, state)
	assert.Equal(t, CategoryOperationallyLimited, category)

	state, category, _ = classifyProbeFailure(stderrors.New("connection refused"))
	assert.Equal(t, StateOffline, state)
	assert.Equal(t, CategoryOperationallyLimited, category)
}

func TestProviderBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := newProviderBreaker()
	probeErr := stderrors.New("unreachable")

	for i := 0; i < 3; i++ {
		require.True(t, b.Allow())
		b.Record(probeErr)
	}
	assert.True(t, b.Open())
	assert.False(t, b.Allow())
}

func TestProviderBreakerRecoversOnSuccess(t *testing.T) {
	b := newProviderBreaker()
	b.Record(stderrors.New("unreachable"))
	b.Record(nil)
	assert.False(t, b.Open())
	assert.True(t, b.Allow())
}

func TestIsQuotaSignal(t *testing.T) {
	assert.True(t, isQuotaSignal("HTTP 429 Too Many Requests"))
	assert.True(t, isQuotaSignal("insufficient_quota: billing"))
	assert.True(t, isQuotaSignal("RESOURCE_EXHAUSTED"))
	assert.False(t, isQuotaSignal("connection reset by peer"))
}

func TestJSONCapableModels(t *testing.T) {
	assert.True(t, jsonCapable("gpt-4o"))
	assert.True(t, jsonCapable("gpt-4o-mini"))
	assert.False(t, jsonCapable("o1-mini"))
}
