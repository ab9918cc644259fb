package ai

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/woninglens/woninglens/internal/domain/errors"
)

// Hierarchy is the fixed provider order. Ollama is last-resort and is never
// chosen while a higher-tier provider is configured and operational.
var Hierarchy = []string{"openai", "gemini", "anthropic", "ollama"}

// decisionTTL bounds how long a resolve decision is reused before re-probing.
const decisionTTL = 30 * time.Second

// Credentials is the key material the authority loads from the environment.
// No other component reads provider keys.
type Credentials struct {
	OpenAIKey     string
	GeminiKey     string
	AnthropicKey  string
	OllamaBaseURL string
	OllamaTimeout time.Duration
	// Models optionally pins a model per provider name
	Models map[string]string
}

// Decision is the structured record of one provider selection.
type Decision struct {
	ActiveProvider string                          `json:"active_provider"`
	ActiveModel    string                          `json:"active_model"`
	Status         CapabilityState                 `json:"status"`
	Category       StatusCategory                  `json:"category"`
	UserMessage    string                          `json:"user_message"`
	Providers      map[string]errors.ProviderState `json:"providers"`
	Hierarchy      []string                        `json:"provider_hierarchy"`
	FallbacksTried []string                        `json:"fallbacks_tried"`
	Reasons        map[string]string               `json:"reasons"`
	Timestamp      time.Time                       `json:"timestamp"`
}

// Authority is the single gate through which any AI work is contracted.
// It owns key possession, provider selection, the fallback cascade, and
// capability reporting. Construct one per service and inject it.
type Authority struct {
	mu        sync.RWMutex
	loadCreds func() Credentials
	creds     *Credentials
	providers map[string]provider
	breakers  map[string]*providerBreaker
	caps      *CapabilityManager
	decision  *Decision
	expiry    time.Time
	logger    zerolog.Logger
}

// NewAuthority creates an authority. loadCreds is called lazily on first
// resolve and again after Invalidate; it is the only key-reading path in
// the process.
func NewAuthority(loadCreds func() Credentials, caps *CapabilityManager, logger zerolog.Logger) *Authority {
	return &Authority{
		loadCreds: loadCreds,
		breakers:  map[string]*providerBreaker{},
		caps:      caps,
		logger:    logger.With().Str("component", "ai_authority").Logger(),
	}
}

// Capabilities returns the capability manager fed by this authority.
func (a *Authority) Capabilities() *CapabilityManager { return a.caps }

// Invalidate drops the cached key material and decision, forcing the next
// resolve to reload and re-probe.
func (a *Authority) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.creds = nil
	a.providers = nil
	a.decision = nil
	a.expiry = time.Time{}
	a.logger.Info().Msg("authority cache invalidated")
}

// Resolve selects the active provider. A cached decision is reused within
// its TTL unless forceRefresh is set. When no provider is operational it
// returns a NoProviderError carrying the full decision record.
func (a *Authority) Resolve(ctx context.Context, forceRefresh bool) (Decision, error) {
	return a.resolve(ctx, forceRefresh, nil)
}

// ResolveExcluding re-runs selection while skipping named providers. The
// cascade uses it after a mid-run quota or timeout failure.
func (a *Authority) ResolveExcluding(ctx context.Context, exclude map[string]bool) (Decision, error) {
	return a.resolve(ctx, true, exclude)
}

func (a *Authority) resolve(ctx context.Context, forceRefresh bool, exclude map[string]bool) (Decision, error) {
	a.mu.RLock()
	if !forceRefresh && a.decision != nil && time.Now().Before(a.expiry) && len(exclude) == 0 {
		d := *a.decision
		a.mu.RUnlock()
		return d, nil
	}
	a.mu.RUnlock()

	a.mu.Lock()
	defer a.mu.Unlock()

	a.ensureProvidersLocked()

	states := make(map[string]errors.ProviderState, len(Hierarchy))
	reasons := make(map[string]string, len(Hierarchy))
	var tried []string

	var selected provider
	for _, name := range Hierarchy {
		p := a.providers[name]
		tried = append(tried, name)

		state := errors.ProviderState{
			Name:   p.Name(),
			Label:  p.Label(),
			Models: p.Models(),
		}

		if exclude[name] {
			state.Status = string(StateLimited)
			state.Category = string(CategoryOperationallyLimited)
			state.Reason = "excluded after mid-run failure"
			states[name] = state
			reasons[name] = state.Reason
			continue
		}

		if !p.Configured() {
			state.Status = string(StateNotConfigured)
			state.Category = string(CategoryImplementationInvalid)
			state.Reason = "no API key configured"
			states[name] = state
			reasons[name] = state.Reason
			continue
		}
		state.Configured = true

		breaker := a.breakers[name]
		if breaker == nil {
			breaker = newProviderBreaker()
			a.breakers[name] = breaker
		}
		if !breaker.Allow() {
			state.Status = string(StateOffline)
			state.Category = string(CategoryOperationallyLimited)
			state.Reason = "provider cooling down after repeated probe failures"
			states[name] = state
			reasons[name] = state.Reason
			continue
		}

		err := p.CheckHealth(ctx)
		breaker.Record(err)
		if err != nil {
			status, category, reason := classifyProbeFailure(err)
			state.Status = string(status)
			state.Category = string(category)
			state.Reason = reason
			states[name] = state
			reasons[name] = reason
			a.reportProbe(status, reason)
			a.logger.Warn().Str("provider", name).Str("status", string(status)).Msg("provider probe failed")
			continue
		}

		state.Operational = true
		state.Status = string(StateAvailable)
		state.Category = string(CategoryImplementationValid)
		states[name] = state

		if selected == nil {
			selected = p
			// Remaining providers are recorded as untried standbys; the
			// hierarchy stops probing once a provider is selected.
			for _, rest := range Hierarchy[indexOf(Hierarchy, name)+1:] {
				rp := a.providers[rest]
				rs := errors.ProviderState{
					Name: rp.Name(), Label: rp.Label(), Models: rp.Models(),
					Configured: rp.Configured(),
					Status:     string(StateUnknown),
					Category:   string(CategoryImplementationValid),
					Reason:     "not probed: higher-tier provider selected",
				}
				if !rp.Configured() {
					rs.Status = string(StateNotConfigured)
					rs.Category = string(CategoryImplementationInvalid)
					rs.Reason = "no API key configured"
				}
				states[rest] = rs
			}
			break
		}
	}

	if selected == nil {
		a.caps.Report(CapabilityTextGeneration, worstProbeState(states), "all providers exhausted", "", "")
		a.decision = nil
		return Decision{}, &errors.NoProviderError{
			Providers:      states,
			FallbacksTried: append([]string(nil), Hierarchy...),
		}
	}

	model := selected.DefaultModel()
	if pinned := a.creds.Models[selected.Name()]; pinned != "" {
		model = pinned
	}

	a.caps.Report(CapabilityTextGeneration, StateAvailable, "provider "+selected.Name()+" selected", "", "")

	decision := Decision{
		ActiveProvider: selected.Name(),
		ActiveModel:    model,
		Status:         StateAvailable,
		Category:       CategoryImplementationValid,
		UserMessage:    selected.Label() + " is active.",
		Providers:      states,
		Hierarchy:      append([]string(nil), Hierarchy...),
		FallbacksTried: tried,
		Reasons:        reasons,
		Timestamp:      time.Now(),
	}

	if len(exclude) == 0 {
		a.decision = &decision
		a.expiry = time.Now().Add(decisionTTL)
	}

	a.logger.Info().
		Str("provider", decision.ActiveProvider).
		Str("model", decision.ActiveModel).
		Strs("fallbacks_tried", tried).
		Msg("provider resolved")

	return decision, nil
}

// CreateTextClient resolves the active provider and returns a client bound
// to the authority's model choice. Direct model injection by callers is
// not possible: the decision owns the model.
func (a *Authority) CreateTextClient(ctx context.Context) (TextClient, Decision, error) {
	decision, err := a.Resolve(ctx, false)
	if err != nil {
		return nil, Decision{}, err
	}
	a.mu.RLock()
	p := a.providers[decision.ActiveProvider]
	a.mu.RUnlock()
	return p.NewClient(decision.ActiveModel), decision, nil
}

// CreateTextClientExcluding is the cascade path: it binds a client while
// skipping providers that already failed mid-run.
func (a *Authority) CreateTextClientExcluding(ctx context.Context, exclude map[string]bool) (TextClient, Decision, error) {
	decision, err := a.ResolveExcluding(ctx, exclude)
	if err != nil {
		return nil, Decision{}, err
	}
	a.mu.RLock()
	p := a.providers[decision.ActiveProvider]
	a.mu.RUnlock()
	return p.NewClient(decision.ActiveModel), decision, nil
}

// ReportCallFailure records the outcome of a failed generation call so the
// capability manager reflects mid-run quota and outage signals.
func (a *Authority) ReportCallFailure(providerName string, err error) {
	status, _, reason := classifyProbeFailure(err)
	a.caps.Report(CapabilityTextGeneration, status, providerName+": "+reason, "", "")
}

func (a *Authority) ensureProvidersLocked() {
	if a.creds != nil && a.providers != nil {
		return
	}
	creds := a.loadCreds()
	if creds.Models == nil {
		creds.Models = map[string]string{}
	}
	a.creds = &creds
	a.providers = map[string]provider{
		"openai":    newOpenAIProvider(creds.OpenAIKey, creds.Models["openai"]),
		"gemini":    newGeminiProvider(creds.GeminiKey, creds.Models["gemini"]),
		"anthropic": newAnthropicProvider(creds.AnthropicKey, creds.Models["anthropic"]),
		"ollama":    newOllamaProvider(creds.OllamaBaseURL, creds.Models["ollama"], creds.OllamaTimeout),
	}
}

func (a *Authority) reportProbe(status CapabilityState, reason string) {
	// Individual probe failures only degrade the capability when they end
	// in exhaustion; a single tier failing while a lower tier works is the
	// cascade operating as designed. Quota is reported immediately so the
	// UI can show the operational limit.
	if status == StateQuotaExceeded {
		a.caps.Report(CapabilityTextGeneration, status, reason, "", "")
	}
}

func classifyProbeFailure(err error) (CapabilityState, StatusCategory, string) {
	var quota *errors.QuotaError
	if stderrors.As(err, &quota) {
		return StateQuotaExceeded, CategoryOperationallyLimited, "quota or rate limit exceeded"
	}
	var timeout *errors.TimeoutError
	if stderrors.As(err, &timeout) {
		return StateOffline, CategoryOperationallyLimited, "probe deadline exceeded"
	}
	if isQuotaSignal(err.Error()) {
		return StateQuotaExceeded, CategoryOperationallyLimited, "quota or rate limit exceeded"
	}
	return StateOffline, CategoryOperationallyLimited, err.Error()
}

func worstProbeState(states map[string]errors.ProviderState) CapabilityState {
	worst := StateOffline
	for _, s := range states {
		if s.Status == string(StateQuotaExceeded) {
			return StateQuotaExceeded
		}
	}
	allUnconfigured := true
	for _, s := range states {
		if s.Configured {
			allUnconfigured = false
		}
	}
	if allUnconfigured {
		return StateNotConfigured
	}
	return worst
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}
