// Package ai contains the AI authority: the single gate for provider
// selection, key possession, operational health, fallback cascade, and
// capability reporting. No other package reads provider API keys or
// chooses a model.
package ai

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// CapabilityState is the state of an externally-dependent AI capability.
type CapabilityState string

const (
	StateAvailable     CapabilityState = "available"
	StateLimited       CapabilityState = "limited"
	StateQuotaExceeded CapabilityState = "quota_exceeded"
	StateOffline       CapabilityState = "offline"
	StateNotConfigured CapabilityState = "not_configured"
	StateUnknown       CapabilityState = "unknown"
)

// StatusCategory distinguishes implementation errors from operational limits.
// A missing external capability (quota, outage) never invalidates a correct
// implementation.
type StatusCategory string

const (
	CategoryImplementationValid   StatusCategory = "implementation_valid"
	CategoryImplementationInvalid StatusCategory = "implementation_invalid"
	CategoryOperationallyLimited  StatusCategory = "operationally_limited"
)

// Capability names tracked by the manager.
const (
	CapabilityTextGeneration  = "text_generation"
	CapabilityImageGeneration = "image_generation"
)

// CapabilityStatus is the tracked status of a single capability.
type CapabilityStatus struct {
	State       CapabilityState `json:"state"`
	Category    StatusCategory  `json:"category"`
	Message     string          `json:"message,omitempty"`
	UserMessage string          `json:"user_message,omitempty"`
	LastUpdated time.Time       `json:"last_updated"`
	ResumeHint  string          `json:"resume_hint,omitempty"`
}

// CapabilityManager tracks the status of AI capabilities across the service.
// Concurrent readers are expected; writers are serialized.
type CapabilityManager struct {
	mu     sync.RWMutex
	status map[string]CapabilityStatus
}

// NewCapabilityManager creates a manager with all known capabilities in the
// UNKNOWN state.
func NewCapabilityManager() *CapabilityManager {
	m := &CapabilityManager{status: make(map[string]CapabilityStatus)}
	for _, name := range []string{CapabilityTextGeneration, CapabilityImageGeneration} {
		m.status[name] = CapabilityStatus{
			State:       StateUnknown,
			Category:    CategoryImplementationValid,
			Message:     "status not yet determined",
			UserMessage: capabilityLabel(name) + " status is being determined.",
			LastUpdated: time.Now(),
		}
	}
	return m
}

// Report updates the status of a capability. When category is empty it is
// derived from the state: quota and outage are operational limits, a missing
// key is an implementation responsibility, success is valid.
func (m *CapabilityManager) Report(capability string, state CapabilityState, message string, category StatusCategory, resumeHint string) {
	if category == "" {
		switch state {
		case StateQuotaExceeded, StateOffline:
			category = CategoryOperationallyLimited
		case StateNotConfigured:
			category = CategoryImplementationInvalid
		default:
			category = CategoryImplementationValid
		}
	}

	// Invariant: quota and outage are never implementation errors.
	if (state == StateQuotaExceeded || state == StateOffline) && category == CategoryImplementationInvalid {
		category = CategoryOperationallyLimited
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[capability] = CapabilityStatus{
		State:       state,
		Category:    category,
		Message:     message,
		UserMessage: userMessage(capability, state, category, resumeHint),
		LastUpdated: time.Now(),
		ResumeHint:  resumeHint,
	}
}

// Status returns the status of one capability.
func (m *CapabilityManager) Status(capability string) CapabilityStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.status[capability]; ok {
		return s
	}
	return CapabilityStatus{State: StateUnknown, Category: CategoryImplementationValid}
}

// All returns a copy of every tracked capability status.
func (m *CapabilityManager) All() map[string]CapabilityStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]CapabilityStatus, len(m.status))
	for k, v := range m.status {
		out[k] = v
	}
	return out
}

// statePriority orders states from healthiest to most limited, for global
// status aggregation.
var statePriority = map[CapabilityState]int{
	StateUnknown:       0,
	StateAvailable:     1,
	StateLimited:       2,
	StateOffline:       3,
	StateNotConfigured: 4,
	StateQuotaExceeded: 5,
}

// GlobalStatus aggregates all capabilities into an overall state, category,
// and user-visible message.
func (m *CapabilityManager) GlobalStatus() (CapabilityState, StatusCategory, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	worstState := StateAvailable
	worstCategory := CategoryImplementationValid
	var limited []string

	for name, s := range m.status {
		if statePriority[s.State] > statePriority[worstState] {
			worstState = s.State
		}
		if s.Category == CategoryImplementationInvalid {
			worstCategory = CategoryImplementationInvalid
		} else if s.Category == CategoryOperationallyLimited && worstCategory != CategoryImplementationInvalid {
			worstCategory = CategoryOperationallyLimited
		}
		if s.State != StateAvailable && s.State != StateUnknown {
			limited = append(limited, capabilityLabel(name))
		}
	}

	switch {
	case worstState == StateAvailable:
		return worstState, worstCategory, "System fully operational"
	case worstCategory == CategoryOperationallyLimited:
		return worstState, worstCategory, fmt.Sprintf(
			"Temporarily limited (external constraint): %s. The system is correctly configured.",
			strings.Join(limited, ", "))
	case worstCategory == CategoryImplementationInvalid:
		return worstState, worstCategory, "Configuration required: please check provider settings"
	}
	return worstState, worstCategory, "Checking system status"
}

func userMessage(capability string, state CapabilityState, category StatusCategory, resumeHint string) string {
	label := capabilityLabel(capability)
	switch state {
	case StateAvailable:
		return label + " is fully operational."
	case StateQuotaExceeded:
		msg := label + " is temporarily unavailable due to quota limits."
		if category == CategoryOperationallyLimited {
			msg += " The system is correctly configured and will resume automatically."
		}
		if resumeHint != "" {
			msg += " " + resumeHint
		}
		return msg
	case StateOffline:
		msg := label + " is temporarily offline due to provider issues."
		if category == CategoryOperationallyLimited {
			msg += " This is not a system configuration issue."
		}
		return msg
	case StateNotConfigured:
		return label + " is not configured. Please set the required API key."
	case StateLimited:
		return label + " is operating in degraded mode."
	}
	return label + " status is being determined."
}

func capabilityLabel(capability string) string {
	parts := strings.Split(capability, "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}
