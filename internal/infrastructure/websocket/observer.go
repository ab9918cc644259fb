package websocket

import (
	"time"

	"github.com/woninglens/woninglens/internal/infrastructure/monitoring"
)

// Ensure SocketObserver implements RunObserver.
var _ monitoring.RunObserver = (*SocketObserver)(nil)

// SocketObserver bridges run events into the websocket hub.
type SocketObserver struct {
	hub *Hub
}

// NewSocketObserver creates an observer that broadcasts through a hub.
func NewSocketObserver(hub *Hub) *SocketObserver {
	return &SocketObserver{hub: hub}
}

// OnRunStarted implements RunObserver.
func (o *SocketObserver) OnRunStarted(runID string) {
	o.hub.Broadcast(Event{Type: EventRunStarted, Timestamp: time.Now(), RunID: runID})
}

// OnPhaseEntered implements RunObserver.
func (o *SocketObserver) OnPhaseEntered(runID, phase string) {
	o.hub.Broadcast(Event{Type: EventPhaseEntered, Timestamp: time.Now(), RunID: runID, Phase: phase})
}

// OnChapterProgress implements RunObserver.
func (o *SocketObserver) OnChapterProgress(runID string, chapterID int, status string, wordCount int) {
	o.hub.Broadcast(Event{
		Type:      EventChapterProgress,
		Timestamp: time.Now(),
		RunID:     runID,
		ChapterID: chapterID,
		Status:    status,
		WordCount: wordCount,
	})
}

// OnRunFinished implements RunObserver.
func (o *SocketObserver) OnRunFinished(runID, status string) {
	o.hub.Broadcast(Event{Type: EventRunFinished, Timestamp: time.Now(), RunID: runID, Status: status})
}
