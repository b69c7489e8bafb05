package agentloop

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// EventKind names a point in the session lifecycle.
type EventKind string

const (
	EventSessionStart   EventKind = "session_start"
	EventSessionEnd     EventKind = "session_end"
	EventLLMRequest     EventKind = "llm_request"
	EventLLMResponse    EventKind = "llm_response"
	EventToolCallStart  EventKind = "tool_call_start"
	EventToolCallEnd    EventKind = "tool_call_end"
	EventLoopDetection  EventKind = "loop_detection"
	EventIterationLimit EventKind = "iteration_limit"
	EventWarning        EventKind = "warning"
	EventError          EventKind = "error"
)

// SessionEvent is one entry on a session's event stream.
type SessionEvent struct {
	Kind      EventKind              `json:"kind"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id"`
	Iteration int                    `json:"iteration,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventEmitter feeds a buffered channel without ever blocking the loop.
// Events that do not fit are counted and dropped.
type EventEmitter struct {
	sessionID string

	mu      sync.Mutex
	ch      chan SessionEvent
	closed  bool
	dropped int
}

// NewEventEmitter creates an emitter whose channel holds bufferSize events;
// a non-positive size means 256.
func NewEventEmitter(sessionID string, bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{
		sessionID: sessionID,
		ch:        make(chan SessionEvent, bufferSize),
	}
}

func (e *EventEmitter) Emit(kind EventKind, iteration int, data map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	select {
	case e.ch <- SessionEvent{
		Kind:      kind,
		Timestamp: time.Now(),
		SessionID: e.sessionID,
		Iteration: iteration,
		Data:      data,
	}:
	default:
		e.dropped++
		log.Debug().Str("session", e.sessionID).Str("kind", string(kind)).Int("dropped", e.dropped).Msg("event buffer full, dropping event")
	}
}

func (e *EventEmitter) Events() <-chan SessionEvent {
	return e.ch
}

// Dropped returns how many events did not fit in the buffer.
func (e *EventEmitter) Dropped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// Close ends the stream. Later calls are no-ops.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	close(e.ch)
}
