package ai

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// GenerateRequest is the minimal text generation contract every provider
// speaks. Providers that cannot honor JSONMode with the selected model
// transparently upgrade to a compatible model before the call.
type GenerateRequest struct {
	// Prompt is the user message
	Prompt string
	// System is the system instruction
	System string
	// JSONMode forces a JSON object response
	JSONMode bool
	// Images are optional image URLs or local paths for multimodal calls
	Images []string
}

// TextClient is a handle to one provider's text generation capability,
// bound to the model the authority selected.
type TextClient interface {
	// Generate produces text for a request. The context carries the call
	// deadline; a missed deadline is returned as a TimeoutError.
	Generate(ctx context.Context, req GenerateRequest) (string, error)

	// Provider returns the provider name this client speaks to.
	Provider() string

	// Model returns the model the authority bound this client to.
	Model() string
}

// provider is the internal contract each concrete provider implements.
type provider interface {
	// Name returns the provider identifier in the hierarchy.
	Name() string

	// Label returns the display label for status endpoints.
	Label() string

	// Configured reports whether key material (or a base URL, for local
	// providers) is present. Reachability is left to CheckHealth.
	Configured() bool

	// CheckHealth probes operational state with a bounded deadline.
	CheckHealth(ctx context.Context) error

	// Models lists the models this provider advertises.
	Models() []string

	// DefaultModel returns the model selected when none is configured.
	DefaultModel() string

	// NewClient returns a text client bound to a model.
	NewClient(model string) TextClient
}

// Default deadlines for suspension points inside a run.
const (
	// textGenerateTimeout bounds one text generation call
	textGenerateTimeout = 30 * time.Second
	// healthProbeTimeout bounds one provider health probe
	healthProbeTimeout = 5 * time.Second
	// processInspectTimeout bounds Ollama process detection
	processInspectTimeout = 10 * time.Second
)

// quotaSignals are response fragments that mark a quota or rate-limit
// rejection rather than an implementation error.
var quotaSignals = []string{"429", "quota", "rate limit", "rate_limit", "resource_exhausted", "insufficient_quota"}

// isQuotaSignal reports whether an error string carries a quota marker.
func isQuotaSignal(msg string) bool {
	lower := strings.ToLower(msg)
	for _, sig := range quotaSignals {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// newProbeHTTPClient builds the bounded-timeout HTTP client used by health
// probes against providers without SDK-level health endpoints.
func newProbeHTTPClient() *http.Client {
	return &http.Client{Timeout: healthProbeTimeout}
}
