package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReportDerivesCategoryFromState(t *testing.T) {
	m := NewCapabilityManager()

	m.Report(CapabilityTextGeneration, StateQuotaExceeded, "429 from provider", "", "")
	s := m.Status(CapabilityTextGeneration)
	assert.Equal(t, StateQuotaExceeded, s.State)
	assert.Equal(t, CategoryOperationallyLimited, s.Category)
	assert.Contains(t, s.UserMessage, "correctly configured")

	m.Report(CapabilityTextGeneration, StateOffline, "connection refused", "", "")
	s = m.Status(CapabilityTextGeneration)
	assert.Equal(t, CategoryOperationallyLimited, s.Category)

	m.Report(CapabilityTextGeneration, StateNotConfigured, "no key", "", "")
	s = m.Status(CapabilityTextGeneration)
	assert.Equal(t, CategoryImplementationInvalid, s.Category)

	m.Report(CapabilityTextGeneration, StateAvailable, "", "", "")
	s = m.Status(CapabilityTextGeneration)
	assert.Equal(t, CategoryImplementationValid, s.Category)
}

func TestQuotaNeverMarksImplementationInvalid(t *testing.T) {
	m := NewCapabilityManager()

	// Even an explicit (wrong) category is corrected for quota and outage.
	m.Report(CapabilityTextGeneration, StateQuotaExceeded, "", CategoryImplementationInvalid, "")
	assert.Equal(t, CategoryOperationallyLimited, m.Status(CapabilityTextGeneration).Category)

	m.Report(CapabilityImageGeneration, StateOffline, "", CategoryImplementationInvalid, "")
	assert.Equal(t, CategoryOperationallyLimited, m.Status(CapabilityImageGeneration).Category)
}

func TestGlobalStatusAggregation(t *testing.T) {
	m := NewCapabilityManager()
	m.Report(CapabilityTextGeneration, StateAvailable, "", "", "")
	m.Report(CapabilityImageGeneration, StateAvailable, "", "", "")

	state, category, message := m.GlobalStatus()
	assert.Equal(t, StateAvailable, state)
	assert.Equal(t, CategoryImplementationValid, category)
	assert.Contains(t, message, "operational")

	m.Report(CapabilityImageGeneration, StateQuotaExceeded, "", "", "")
	state, category, message = m.GlobalStatus()
	assert.Equal(t, StateQuotaExceeded, state)
	assert.Equal(t, CategoryOperationallyLimited, category)
	assert.Contains(t, message, "correctly configured")
}

func TestResumeHintSurfacesInUserMessage(t *testing.T) {
	m := NewCapabilityManager()
	m.Report(CapabilityTextGeneration, StateQuotaExceeded, "", "", "Quota resets at midnight UTC.")
	assert.Contains(t, m.Status(CapabilityTextGeneration).UserMessage, "Quota resets at midnight UTC.")
}
