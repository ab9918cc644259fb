// Package websocket streams live run progress to connected clients.
package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Event types (server -> client).
const (
	EventRunStarted      = "run.started"
	EventPhaseEntered    = "run.phase"
	EventChapterProgress = "chapter.progress"
	EventRunFinished     = "run.finished"
)

// Event is one progress event sent to subscribed clients.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`

	Phase     string `json:"phase,omitempty"`
	ChapterID int    `json:"chapter_id,omitempty"`
	Status    string `json:"status,omitempty"`
	WordCount int    `json:"word_count,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is same-origin behind the frontend; cross-origin reads are
	// harmless for progress events.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub manages client connections subscribed per run.
type Hub struct {
	mu      sync.RWMutex
	byRunID map[string]map[*client]bool
	logger  zerolog.Logger
}

type client struct {
	conn *websocket.Conn
	send chan Event
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		byRunID: map[string]map[*client]bool{},
		logger:  logger.With().Str("component", "ws_hub").Logger(),
	}
}

// ServeRun upgrades an HTTP request to a websocket subscribed to one run.
func (h *Hub) ServeRun(w http.ResponseWriter, r *http.Request, runID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan Event, 32)}
	h.mu.Lock()
	if h.byRunID[runID] == nil {
		h.byRunID[runID] = map[*client]bool{}
	}
	h.byRunID[runID][c] = true
	h.mu.Unlock()

	go h.writePump(runID, c)
	go h.readPump(runID, c)
}

// Broadcast delivers an event to every client subscribed to its run.
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.byRunID[event.RunID] {
		select {
		case c.send <- event:
		default:
			// Slow consumer: drop the event rather than block the run.
		}
	}
}

func (h *Hub) writePump(runID string, c *client) {
	defer c.conn.Close()
	for event := range c.send {
		if err := c.conn.WriteJSON(event); err != nil {
			h.detach(runID, c)
			return
		}
	}
}

func (h *Hub) readPump(runID string, c *client) {
	defer func() {
		h.detach(runID, c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) detach(runID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.byRunID[runID]; ok {
		if clients[c] {
			delete(clients, c)
			close(c.send)
		}
		if len(clients) == 0 {
			delete(h.byRunID, runID)
		}
	}
}
