// Package monitoring provides run observation and metrics collection.
// Observers receive run lifecycle events; the metrics collector aggregates
// durations and AI usage for the metrics endpoint.
package monitoring

import (
	"sync"
)

// RunObserver receives run lifecycle events. Implementations can use this
// to monitor, log, or stream progress to clients.
type RunObserver interface {
	// OnRunStarted is called when a worker picks up a run
	OnRunStarted(runID string)

	// OnPhaseEntered is called when a run enters a pipeline step
	OnPhaseEntered(runID, phase string)

	// OnChapterProgress is called after each chapter state change
	OnChapterProgress(runID string, chapterID int, status string, wordCount int)

	// OnRunFinished is called when a run reaches a terminal status
	OnRunFinished(runID, status string)
}

// ObserverManager fans run events out to registered observers.
type ObserverManager struct {
	mu        sync.RWMutex
	observers []RunObserver
}

// NewObserverManager creates an empty observer manager.
func NewObserverManager() *ObserverManager {
	return &ObserverManager{}
}

// AddObserver registers an observer.
func (m *ObserverManager) AddObserver(o RunObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// RemoveObserver unregisters an observer.
func (m *ObserverManager) RemoveObserver(o RunObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, obs := range m.observers {
		if obs == o {
			m.observers = append(m.observers[:i], m.observers[i+1:]...)
			return
		}
	}
}

// NotifyRunStarted notifies all observers that a run started.
func (m *ObserverManager) NotifyRunStarted(runID string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.observers {
		o.OnRunStarted(runID)
	}
}

// NotifyPhaseEntered notifies all observers of a step transition.
func (m *ObserverManager) NotifyPhaseEntered(runID, phase string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.observers {
		o.OnPhaseEntered(runID, phase)
	}
}

// NotifyChapterProgress notifies all observers of chapter progress.
func (m *ObserverManager) NotifyChapterProgress(runID string, chapterID int, status string, wordCount int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.observers {
		o.OnChapterProgress(runID, chapterID, status, wordCount)
	}
}

// NotifyRunFinished notifies all observers that a run finished.
func (m *ObserverManager) NotifyRunFinished(runID, status string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.observers {
		o.OnRunFinished(runID, status)
	}
}
