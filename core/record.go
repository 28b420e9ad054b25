package core

import "time"

// ConversationRecord captures one complete exchange: the raw request input
// that triggered it, the ordered messages exchanged (user, assistant, tool),
// and the time the record was committed. Records carry no durable ID; they
// are identified by their zero-based position in the history, which stays
// dense and stable until a clear occurs.
type ConversationRecord struct {
	RequestInput string    `json:"request_input"`
	Messages     []Message `json:"messages"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewConversationRecord builds a record stamped with the current UTC time.
func NewConversationRecord(requestInput string, messages []Message) ConversationRecord {
	return ConversationRecord{
		RequestInput: requestInput,
		Messages:     messages,
		Timestamp:    time.Now().UTC(),
	}
}

// Clone returns a deep copy so callers can hold snapshots without observing
// later in-place mutation of the record's message slice.
func (r ConversationRecord) Clone() ConversationRecord {
	messages := make([]Message, len(r.Messages))
	copy(messages, r.Messages)
	return ConversationRecord{
		RequestInput: r.RequestInput,
		Messages:     messages,
		Timestamp:    r.Timestamp,
	}
}

// LastMessage returns the index of the last message with the given role, or
// -1 when the record holds none.
func (r ConversationRecord) LastMessage(role Role) int {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == role {
			return i
		}
	}
	return -1
}
