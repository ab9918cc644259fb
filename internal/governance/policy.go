// Package governance defines the truth policy: named enforcement levels for
// every pipeline invariant, bound to a deployment environment.
package governance

import (
	"fmt"
	"sync"
	"time"
)

// Level is the enforcement level for a single rule.
type Level string

const (
	// LevelStrict aborts the run on violation
	LevelStrict Level = "STRICT"
	// LevelWarn records a diagnostic and continues
	LevelWarn Level = "WARN"
	// LevelOff disables the check (non-production only)
	LevelOff Level = "OFF"
)

// Environment is the deployment environment a policy is bound to.
type Environment string

const (
	EnvProduction  Environment = "production"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "development"
)

// Rule names. Each rule maps to one enforcement point in the pipeline.
const (
	RuleFailClosedNarrative     = "fail_closed_narrative_generation"
	RuleRequireAIProvider       = "require_ai_provider"
	RuleRegistryImmutability    = "enforce_registry_immutability"
	RulePreventPostLockRegister = "prevent_post_lock_registration"
	RuleFailOnRegistryConflict  = "fail_on_registry_conflict"
	RuleProductionStrictness    = "enforce_production_strictness"
	RulePreventTestModeLeakage  = "prevent_test_mode_leakage"
	RuleFourPlaneStructure      = "enforce_four_plane_structure"
	RuleFailOnMissingPlanes     = "fail_on_missing_planes"
	RuleAuthorityModelSelection = "enforce_authority_model_selection"
	RulePreventPresentationMath = "prevent_presentation_math"
)

// allRules lists every named rule in a stable order.
var allRules = []string{
	RuleFailClosedNarrative,
	RuleRequireAIProvider,
	RuleRegistryImmutability,
	RulePreventPostLockRegister,
	RuleFailOnRegistryConflict,
	RuleProductionStrictness,
	RulePreventTestModeLeakage,
	RuleFourPlaneStructure,
	RuleFailOnMissingPlanes,
	RuleAuthorityModelSelection,
	RulePreventPresentationMath,
}

// pinnedRules are STRICT in every environment regardless of config.
var pinnedRules = map[string]bool{
	RuleRegistryImmutability:    true,
	RulePreventPostLockRegister: true,
	RuleFailOnRegistryConflict:  true,
	RuleFourPlaneStructure:      true,
	RuleAuthorityModelSelection: true,
	RulePreventPresentationMath: true,
	RulePreventTestModeLeakage:  true,
}

// Config drives deterministic construction of a TruthPolicy.
type Config struct {
	Environment            Environment `json:"environment"`
	AllowPartialGeneration bool        `json:"allow_partial_generation"`
	OfflineStructuralMode  bool        `json:"offline_structural_mode"`
}

// TruthPolicy maps each named rule to its enforcement level.
type TruthPolicy struct {
	Environment Environment      `json:"environment"`
	Levels      map[string]Level `json:"levels"`
}

// NewTruthPolicy builds a policy from a governance config.
// In production, both escape hatches are rejected at construction; the
// pinned rule subset is STRICT in every environment.
func NewTruthPolicy(cfg Config) (TruthPolicy, error) {
	if cfg.Environment == EnvProduction {
		if cfg.AllowPartialGeneration {
			return TruthPolicy{}, fmt.Errorf("governance: partial generation is forbidden in production")
		}
		if cfg.OfflineStructuralMode {
			return TruthPolicy{}, fmt.Errorf("governance: offline structural mode is forbidden in production")
		}
	}

	levels := make(map[string]Level, len(allRules))
	for _, rule := range allRules {
		levels[rule] = LevelStrict
	}

	if cfg.Environment != EnvProduction {
		if cfg.AllowPartialGeneration {
			levels[RuleFailClosedNarrative] = LevelWarn
			levels[RuleFailOnMissingPlanes] = LevelWarn
		}
		if cfg.OfflineStructuralMode {
			levels[RuleRequireAIProvider] = LevelOff
			levels[RuleFailClosedNarrative] = LevelWarn
		}
	}

	// Pinned rules cannot be lowered anywhere.
	for rule := range pinnedRules {
		levels[rule] = LevelStrict
	}

	return TruthPolicy{Environment: cfg.Environment, Levels: levels}, nil
}

// DefaultPolicy returns the strict policy for an environment.
func DefaultPolicy(env Environment) TruthPolicy {
	p, _ := NewTruthPolicy(Config{Environment: env})
	return p
}

// Level returns the enforcement level for a rule. Unknown rules are STRICT.
func (p TruthPolicy) Level(rule string) Level {
	if l, ok := p.Levels[rule]; ok {
		return l
	}
	return LevelStrict
}

// Strict reports whether a rule must abort the run on violation.
func (p TruthPolicy) Strict(rule string) bool {
	return p.Level(rule) == LevelStrict
}

// IsProduction reports whether the policy is bound to production.
func (p TruthPolicy) IsProduction() bool {
	return p.Environment == EnvProduction
}

// auditEntry records one governance state change.
type auditEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	Environment string    `json:"environment"`
	Action      string    `json:"action"`
	Details     string    `json:"details"`
}

const maxAuditEntries = 1000

// StateManager owns the runtime lifecycle of the governance config: it
// stores the currently applied config, derives the effective policy, and
// audits all changes. Constructed once by the service container.
type StateManager struct {
	mu      sync.RWMutex
	env     Environment
	current *Config
	audit   []auditEntry
}

// NewStateManager creates a state manager bound to an environment.
func NewStateManager(env Environment) *StateManager {
	m := &StateManager{env: env}
	m.log("INIT", "governance state manager initialized")
	return m
}

// Environment returns the runtime environment.
func (m *StateManager) Environment() Environment {
	return m.env
}

// EffectivePolicy returns the policy that is enforced right now.
func (m *StateManager) EffectivePolicy() TruthPolicy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current != nil {
		p, err := NewTruthPolicy(*m.current)
		if err == nil {
			return p
		}
	}
	return DefaultPolicy(m.env)
}

// Apply installs a new governance config. Forbidden in production; the
// config's environment must match the runtime environment.
func (m *StateManager) Apply(cfg Config, source string) (TruthPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.env == EnvProduction {
		m.log("ATTEMPT_JURISDICTION_VIOLATION", "attempted to apply config in production from "+source)
		return TruthPolicy{}, fmt.Errorf("governance: configuration is immutable in production")
	}
	if cfg.Environment != m.env {
		return TruthPolicy{}, fmt.Errorf("governance: config environment %q does not match runtime environment %q",
			cfg.Environment, m.env)
	}
	policy, err := NewTruthPolicy(cfg)
	if err != nil {
		return TruthPolicy{}, err
	}

	m.current = &cfg
	m.log("APPLY_CONFIG", "applied new config from "+source)
	return policy, nil
}

// Reset restores the default strict policy. Forbidden in production.
func (m *StateManager) Reset(source string) (TruthPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.env == EnvProduction {
		m.log("ATTEMPT_JURISDICTION_VIOLATION", "attempted reset in production from "+source)
		return TruthPolicy{}, fmt.Errorf("governance: configuration is immutable in production")
	}
	m.current = nil
	m.log("RESET_CONFIG", "reset to default strict policy from "+source)
	return DefaultPolicy(m.env), nil
}

// AuditLog returns a copy of the audit trail.
func (m *StateManager) AuditLog() []map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]map[string]string, 0, len(m.audit))
	for _, e := range m.audit {
		out = append(out, map[string]string{
			"timestamp":   e.Timestamp.Format(time.RFC3339),
			"environment": e.Environment,
			"action":      e.Action,
			"details":     e.Details,
		})
	}
	return out
}

func (m *StateManager) log(action, details string) {
	m.audit = append(m.audit, auditEntry{
		Timestamp:   time.Now(),
		Environment: string(m.env),
		Action:      action,
		Details:     details,
	})
	if len(m.audit) > maxAuditEntries {
		m.audit = m.audit[1:]
	}
}
