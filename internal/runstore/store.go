// Package runstore is the thread-safe store of run records: job state,
// step progress, per-chapter plane status, and final payloads. It backs the
// status endpoints and may be mirrored to a durable store.
package runstore

import (
	"fmt"
	"sync"
	"time"
)

// Status is the lifecycle status of a run. Status advances monotonically;
// a run never returns to running from a terminal state, a re-run produces
// a new record.
type Status string

const (
	StatusQueued           Status = "queued"
	StatusRunning          Status = "running"
	StatusDone             Status = "done"
	StatusError            Status = "error"
	StatusValidationFailed Status = "validation_failed"
)

// Terminal reports whether a status is final.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError || s == StatusValidationFailed
}

// StepStatus is the state of one pipeline step.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepDone    StepStatus = "done"
	StepSkipped StepStatus = "skipped"
	StepError   StepStatus = "error"
)

// StepNames is the fixed step sequence surfaced to status consumers.
var StepNames = []string{"ingest", "enrich", "lock_registry", "core_summary", "chapters", "validate", "persist"}

// Step is one tracked pipeline step.
type Step struct {
	Status     StepStatus `json:"status"`
	Message    string     `json:"message,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	DurationMS int64      `json:"duration_ms,omitempty"`
}

// PlaneState is the live generation state of one plane of one chapter.
type PlaneState struct {
	Status    string    `json:"status"`
	WordCount int       `json:"word_count,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Record is the full state of one run.
type Record struct {
	RunID     string `json:"run_id"`
	InputURL  string `json:"input_url,omitempty"`
	InputHTML string `json:"-"`
	// RawData carries pre-parsed listing fields supplied at submission
	RawData  map[string]any `json:"-"`
	Provider string         `json:"provider,omitempty"`
	Model    string         `json:"model,omitempty"`
	Mode     string         `json:"mode,omitempty"`
	TestMode bool           `json:"test_mode,omitempty"`

	Status Status          `json:"status"`
	Phase  string          `json:"phase,omitempty"`
	Steps  map[string]Step `json:"steps"`
	// Planes maps "chapter:plane" to its live state
	Planes   map[string]PlaneState `json:"planes,omitempty"`
	Warnings []string              `json:"warnings,omitempty"`
	Errors   []string              `json:"errors,omitempty"`
	Unknowns []string              `json:"unknowns,omitempty"`

	CoreSummary any            `json:"core_summary,omitempty"`
	Chapters    map[string]any `json:"chapters,omitempty"`
	KPIs        any            `json:"kpis,omitempty"`
	Artifacts   map[string]any `json:"artifacts,omitempty"`

	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
	Transitions map[string]time.Time `json:"transitions,omitempty"`
}

// Progress summarizes step completion for status polling.
type Progress struct {
	Current int     `json:"current"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// Progress computes completion from the step map: done or skipped steps
// over total steps.
func (r *Record) Progress() Progress {
	done := 0
	for _, s := range r.Steps {
		if s.Status == StepDone || s.Status == StepSkipped {
			done++
		}
	}
	total := len(r.Steps)
	percent := 0.0
	if total > 0 {
		percent = float64(done) / float64(total) * 100
	}
	return Progress{Current: done, Total: total, Percent: percent}
}

// Mirror receives every record mutation for durable persistence.
type Mirror interface {
	SaveRun(record Record) error
}

// Store is the in-memory run store. All mutation is serialized by a single
// mutex over the map; an optional mirror receives each updated record.
type Store struct {
	mu     sync.RWMutex
	runs   map[string]*Record
	mirror Mirror
}

// NewStore creates an empty run store.
func NewStore() *Store {
	return &Store{runs: make(map[string]*Record)}
}

// WithMirror attaches a durable mirror. Mirror failures are ignored by the
// store; callers that need durability guarantees check at persist time.
func (s *Store) WithMirror(m Mirror) *Store {
	s.mirror = m
	return s
}

// Create registers a new run record in the queued state.
func (s *Store) Create(runID, inputURL, provider, model, mode string, testMode bool) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	steps := make(map[string]Step, len(StepNames))
	for _, name := range StepNames {
		steps[name] = Step{Status: StepPending}
	}
	record := &Record{
		RunID:       runID,
		InputURL:    inputURL,
		Provider:    provider,
		Model:       model,
		Mode:        mode,
		TestMode:    testMode,
		Status:      StatusQueued,
		Steps:       steps,
		Planes:      map[string]PlaneState{},
		Artifacts:   map[string]any{},
		CreatedAt:   now,
		UpdatedAt:   now,
		Transitions: map[string]time.Time{string(StatusQueued): now},
	}
	s.runs[runID] = record
	s.mirrorLocked(record)
	return record.clone()
}

// Get returns a copy of a run record.
func (s *Store) Get(runID string) (*Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runID]
	if !ok {
		return nil, false
	}
	return r.clone(), true
}

// List returns copies of all run records, newest first.
func (s *Store) List() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r.clone())
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.After(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

// SetStatus transitions a run's lifecycle status. Transitions out of a
// terminal state are ignored: a re-run produces a new record instead.
func (s *Store) SetStatus(runID string, status Status) {
	s.update(runID, func(r *Record) {
		if r.Status.Terminal() {
			return
		}
		r.Status = status
		r.Transitions[string(status)] = time.Now()
	})
}

// SetPhase records the spine phase a run is in.
func (s *Store) SetPhase(runID, phase string) {
	s.update(runID, func(r *Record) {
		r.Phase = phase
		r.Transitions[phase] = time.Now()
	})
}

// UpdateStep transitions one step's status and stamps its timing.
func (s *Store) UpdateStep(runID, step string, status StepStatus, message string) {
	s.update(runID, func(r *Record) {
		entry := r.Steps[step]
		now := time.Now()
		switch status {
		case StepRunning:
			entry.StartedAt = &now
		case StepDone, StepError, StepSkipped:
			entry.FinishedAt = &now
			if entry.StartedAt != nil {
				entry.DurationMS = now.Sub(*entry.StartedAt).Milliseconds()
			}
		}
		entry.Status = status
		entry.Message = message
		r.Steps[step] = entry
	})
}

// UpdatePlane records live plane generation state for a chapter.
func (s *Store) UpdatePlane(runID, plane string, chapterID int, status string, wordCount int) {
	s.update(runID, func(r *Record) {
		key := planeKey(chapterID, plane)
		r.Planes[key] = PlaneState{Status: status, WordCount: wordCount, UpdatedAt: time.Now()}
	})
}

// AddWarning appends a warning to a run.
func (s *Store) AddWarning(runID, warning string) {
	s.update(runID, func(r *Record) {
		r.Warnings = append(r.Warnings, warning)
	})
}

// AddError appends an error to a run.
func (s *Store) AddError(runID, errMsg string) {
	s.update(runID, func(r *Record) {
		r.Errors = append(r.Errors, errMsg)
	})
}

// SetUnknowns records the primary fields that could not be extracted.
func (s *Store) SetUnknowns(runID string, unknowns []string) {
	s.update(runID, func(r *Record) {
		r.Unknowns = unknowns
	})
}

// SetPayload attaches the final report payload to a run.
func (s *Store) SetPayload(runID string, coreSummary any, chapters map[string]any, kpis any) {
	s.update(runID, func(r *Record) {
		r.CoreSummary = coreSummary
		r.Chapters = chapters
		r.KPIs = kpis
	})
}

// SetArtifact attaches a named artifact to a run.
func (s *Store) SetArtifact(runID, key string, value any) {
	s.update(runID, func(r *Record) {
		r.Artifacts[key] = value
	})
}

// SetRawData stores pre-parsed listing fields for a queued run.
func (s *Store) SetRawData(runID string, raw map[string]any) {
	s.update(runID, func(r *Record) {
		r.RawData = raw
	})
}

// SetInputHTML stores pasted listing HTML for a queued run.
func (s *Store) SetInputHTML(runID, html string) {
	s.update(runID, func(r *Record) {
		r.InputHTML = html
	})
}

// SetProvider records the resolved provider and model for a run.
func (s *Store) SetProvider(runID, provider, model string) {
	s.update(runID, func(r *Record) {
		r.Provider = provider
		r.Model = model
	})
}

// Heartbeat bumps a run's updated-at timestamp so the zombie sweeper can
// distinguish slow runs from dead ones.
func (s *Store) Heartbeat(runID string) {
	s.update(runID, func(r *Record) {})
}

// Complete marks a run terminal with the given status.
func (s *Store) Complete(runID string, status Status) {
	s.update(runID, func(r *Record) {
		if r.Status.Terminal() {
			return
		}
		r.Status = status
		r.Transitions[string(status)] = time.Now()
	})
}

// SweepZombies transitions runs that have been running without updates for
// longer than ttl to the error state. Returns the affected run ids.
func (s *Store) SweepZombies(ttl time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var swept []string
	cutoff := time.Now().Add(-ttl)
	for id, r := range s.runs {
		if r.Status == StatusRunning && r.UpdatedAt.Before(cutoff) {
			r.Status = StatusError
			r.Errors = append(r.Errors, "zombie run: no heartbeat within "+ttl.String())
			r.UpdatedAt = time.Now()
			r.Transitions[string(StatusError)] = r.UpdatedAt
			s.mirrorLocked(r)
			swept = append(swept, id)
		}
	}
	return swept
}

// CleanupOld removes terminal runs older than maxAge. Returns the number
// of removed records.
func (s *Store) CleanupOld(maxAge time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for id, r := range s.runs {
		if r.Status.Terminal() && r.UpdatedAt.Before(cutoff) {
			delete(s.runs, id)
			removed++
		}
	}
	return removed
}

func (s *Store) update(runID string, fn func(*Record)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return
	}
	fn(r)
	r.UpdatedAt = time.Now()
	s.mirrorLocked(r)
}

func (s *Store) mirrorLocked(r *Record) {
	if s.mirror != nil {
		_ = s.mirror.SaveRun(*r.clone())
	}
}

func (r *Record) clone() *Record {
	cp := *r
	cp.Steps = make(map[string]Step, len(r.Steps))
	for k, v := range r.Steps {
		cp.Steps[k] = v
	}
	cp.Planes = make(map[string]PlaneState, len(r.Planes))
	for k, v := range r.Planes {
		cp.Planes[k] = v
	}
	cp.Warnings = append([]string(nil), r.Warnings...)
	cp.Errors = append([]string(nil), r.Errors...)
	cp.Unknowns = append([]string(nil), r.Unknowns...)
	cp.Transitions = make(map[string]time.Time, len(r.Transitions))
	for k, v := range r.Transitions {
		cp.Transitions[k] = v
	}
	return &cp
}

func planeKey(chapterID int, plane string) string {
	return fmt.Sprintf("%d:%s", chapterID, plane)
}
