package errors

import (
	"errors"
	"fmt"
)

// Code identifies a member of the closed pipeline error family.
// The spine matches on codes exhaustively and maps them to run status.
type Code string

const (
	// CodeRegistryConflict indicates a key was re-registered with a different value.
	CodeRegistryConflict Code = "REGISTRY_CONFLICT"
	// CodeRegistryLocked indicates a write was attempted on a frozen registry.
	CodeRegistryLocked Code = "REGISTRY_LOCKED"
	// CodePipelineViolation indicates a phase transition or lifecycle rule was broken.
	CodePipelineViolation Code = "PIPELINE_VIOLATION"
	// CodePlaneViolation indicates chapter content crossed cognitive planes.
	CodePlaneViolation Code = "PLANE_VIOLATION"
	// CodeAIOutputViolation indicates AI output broke the interpretation schema.
	CodeAIOutputViolation Code = "AI_OUTPUT_VIOLATION"
	// CodePresentationViolation indicates presentation code attempted to compute facts.
	CodePresentationViolation Code = "PRESENTATION_VIOLATION"
	// CodeValidationFailure indicates aggregate chapter validation failed.
	CodeValidationFailure Code = "VALIDATION_FAILURE"
	// CodeNoProvider indicates the AI provider cascade was exhausted.
	CodeNoProvider Code = "NO_AVAILABLE_AI_PROVIDER"
	// CodeAICallTimeout indicates a text generation call missed its deadline.
	CodeAICallTimeout Code = "AI_CALL_TIMEOUT"
	// CodeQuotaExceeded indicates a provider rejected a call on quota grounds.
	CodeQuotaExceeded Code = "PROVIDER_QUOTA_EXCEEDED"
)

// PipelineError is the base error type for all structural pipeline errors.
type PipelineError struct {
	// Code identifies the error within the closed family
	Code Code
	// RunID is the run the error belongs to (may be empty for construction errors)
	RunID string
	// Message is the error message
	Message string
	// Cause is the underlying error, if any
	Cause error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("%s [run %s]: %s", e.Code, e.RunID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// NewPipelineViolation creates a PipelineError with CodePipelineViolation.
func NewPipelineViolation(runID, message string) *PipelineError {
	return &PipelineError{Code: CodePipelineViolation, RunID: runID, Message: message}
}

// NewPresentationViolation creates a PipelineError with CodePresentationViolation.
func NewPresentationViolation(message string) *PipelineError {
	return &PipelineError{Code: CodePresentationViolation, Message: message}
}

// RegistryConflictError is raised when a key is re-registered with a different value.
type RegistryConflictError struct {
	Key      string
	Existing any
	Incoming any
}

// Error implements the error interface.
func (e *RegistryConflictError) Error() string {
	return fmt.Sprintf("%s: key %q redefined (existing=%v, incoming=%v)",
		CodeRegistryConflict, e.Key, e.Existing, e.Incoming)
}

// RegistryLockedError is raised when a write is attempted after freeze.
type RegistryLockedError struct {
	Key string
}

// Error implements the error interface.
func (e *RegistryLockedError) Error() string {
	return fmt.Sprintf("%s: cannot register %q, registry is frozen", CodeRegistryLocked, e.Key)
}

// PlaneViolationError is raised when chapter content crosses cognitive planes.
type PlaneViolationError struct {
	ChapterID     int
	SourcePlane   string
	ViolationType string
	Details       string
}

// Error implements the error interface.
func (e *PlaneViolationError) Error() string {
	return fmt.Sprintf("%s: chapter %d plane %s: %s: %s",
		CodePlaneViolation, e.ChapterID, e.SourcePlane, e.ViolationType, e.Details)
}

// AIOutputViolationError is raised when AI output breaks the interpretation schema.
type AIOutputViolationError struct {
	ChapterID  int
	Violations []string
}

// Error implements the error interface.
func (e *AIOutputViolationError) Error() string {
	return fmt.Sprintf("%s: chapter %d: %v", CodeAIOutputViolation, e.ChapterID, e.Violations)
}

// ValidationFailureError aggregates per-chapter validation failures for a run.
type ValidationFailureError struct {
	RunID    string
	Chapters map[int][]string
}

// Error implements the error interface.
func (e *ValidationFailureError) Error() string {
	return fmt.Sprintf("%s [run %s]: %d chapter(s) failed validation",
		CodeValidationFailure, e.RunID, len(e.Chapters))
}

// ProviderState describes one provider's position in an authority decision.
type ProviderState struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Configured  bool     `json:"configured"`
	Operational bool     `json:"operational"`
	Status      string   `json:"status"`
	Category    string   `json:"category"`
	Reason      string   `json:"reason"`
	Models      []string `json:"models"`
}

// NoProviderError is raised when the provider cascade is exhausted.
// It carries the full decision record so callers can report why each
// provider was rejected.
type NoProviderError struct {
	Providers      map[string]ProviderState
	FallbacksTried []string
}

// Error implements the error interface.
func (e *NoProviderError) Error() string {
	return fmt.Sprintf("%s: all providers exhausted (tried %v)", CodeNoProvider, e.FallbacksTried)
}

// TimeoutError is raised when an AI call or health probe misses its deadline.
type TimeoutError struct {
	Provider  string
	Operation string
	Cause     error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %s %s timed out", CodeAICallTimeout, e.Provider, e.Operation)
}

// Unwrap returns the underlying cause of the error.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// QuotaError is raised when a provider rejects a call on quota or rate-limit grounds.
type QuotaError struct {
	Provider string
	Cause    error
}

// Error implements the error interface.
func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s: provider %s", CodeQuotaExceeded, e.Provider)
}

// Unwrap returns the underlying cause of the error.
func (e *QuotaError) Unwrap() error {
	return e.Cause
}

// CodeOf extracts the family code from any pipeline error.
// Unknown errors report an empty code.
func CodeOf(err error) Code {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	var conflict *RegistryConflictError
	if errors.As(err, &conflict) {
		return CodeRegistryConflict
	}
	var locked *RegistryLockedError
	if errors.As(err, &locked) {
		return CodeRegistryLocked
	}
	var plane *PlaneViolationError
	if errors.As(err, &plane) {
		return CodePlaneViolation
	}
	var aiOut *AIOutputViolationError
	if errors.As(err, &aiOut) {
		return CodeAIOutputViolation
	}
	var vf *ValidationFailureError
	if errors.As(err, &vf) {
		return CodeValidationFailure
	}
	var np *NoProviderError
	if errors.As(err, &np) {
		return CodeNoProvider
	}
	var to *TimeoutError
	if errors.As(err, &to) {
		return CodeAICallTimeout
	}
	var quota *QuotaError
	if errors.As(err, &quota) {
		return CodeQuotaExceeded
	}
	return ""
}

// IsStructural reports whether an error belongs to the structural subset of
// the family. Structural errors are always fatal to the owning run.
func IsStructural(err error) bool {
	switch CodeOf(err) {
	case CodeRegistryConflict, CodeRegistryLocked, CodePipelineViolation,
		CodePlaneViolation, CodeAIOutputViolation, CodePresentationViolation:
		return true
	}
	return false
}
