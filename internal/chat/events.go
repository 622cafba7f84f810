package chat

import "github.com/google/uuid"

// EventType discriminates stream events.
type EventType string

const (
	// EventDelta carries an incremental piece of answer text.
	EventDelta EventType = "delta"
	// EventDone closes a successful turn.
	EventDone EventType = "done"
	// EventError closes a failed turn. No further events follow.
	EventError EventType = "error"
)

// Event is one message in an answer stream. Exactly one terminal event
// (done or error) ends every stream.
type Event struct {
	Type EventType `json:"type"`

	// Text is the answer fragment for delta events.
	Text string `json:"text,omitempty"`

	// Final turn info for done events.
	ThreadID    uuid.UUID `json:"thread_id,omitempty"`
	MessageID   uuid.UUID `json:"message_id,omitempty"`
	ContextRefs []string  `json:"context_refs,omitempty"`
	Refused     bool      `json:"refused,omitempty"`

	// Message is a client-safe description for error events.
	Message string `json:"message,omitempty"`
}
