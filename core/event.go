package core

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the closed set of progress/result event kinds emitted
// during generation. Consumers can rely on no other values appearing.
type EventType string

const (
	// EventProgress carries one incremental completion chunk.
	EventProgress EventType = "progress"
	// EventAutoFollowup announces a generation triggered by the deadline
	// scheduler rather than by any caller.
	EventAutoFollowup EventType = "auto_followup"
	// EventError carries a diagnostic error code and detail.
	EventError EventType = "error"
	// EventDone terminates a streamed session, exactly once, carrying the
	// final response and commit outcome.
	EventDone EventType = "done"
)

// Event is the unit of the streaming protocol. Every event belonging to one
// logical exchange carries the same MessageID; ordering is guaranteed per
// MessageID because the orchestrator forbids concurrent sessions. Optional
// fields are pointers or omitempty so absence is distinguishable from zero.
type Event struct {
	Type        EventType `json:"type"`
	MessageID   string    `json:"message_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Content     string    `json:"content,omitempty"`
	Message     string    `json:"message,omitempty"`
	Code        string    `json:"code,omitempty"`
	Response    string    `json:"response,omitempty"`
	Saved       *bool     `json:"saved,omitempty"`
	RecordIndex *int      `json:"record_index,omitempty"`
}

// NewID generates an opaque correlation token for a logical exchange.
func NewID() string { return uuid.NewString() }

func newEvent(t EventType, messageID string) Event {
	return Event{Type: t, MessageID: messageID, Timestamp: time.Now().UTC()}
}

// NewProgressEvent wraps one completion chunk.
func NewProgressEvent(messageID, chunk string) Event {
	e := newEvent(EventProgress, messageID)
	e.Content = chunk
	return e
}

// NewErrorEvent carries a taxonomy code plus human-readable detail.
func NewErrorEvent(messageID, code, detail string) Event {
	e := newEvent(EventError, messageID)
	e.Code = code
	e.Message = detail
	return e
}

// NewDoneEvent terminates a streamed session. recordIndex is nil when the
// generation declined to commit a record.
func NewDoneEvent(messageID, response string, saved bool, recordIndex *int) Event {
	e := newEvent(EventDone, messageID)
	e.Response = response
	e.Saved = &saved
	e.RecordIndex = recordIndex
	return e
}

// NewAutoFollowupEvent announces a scheduler-triggered response.
func NewAutoFollowupEvent(messageID, response string) Event {
	e := newEvent(EventAutoFollowup, messageID)
	e.Message = response
	return e
}
