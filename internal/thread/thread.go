// Package thread manages conversation threads and their messages in
// PostgreSQL. A thread carries the context-resolution mode; messages form
// an append-only, strictly ordered transcript.
package thread

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for callers to branch on with errors.Is().
var (
	ErrNotFound    = errors.New("thread: not found")
	ErrInvalidMode = errors.New("thread: invalid mode")
)

// Mode selects how context is resolved when answering in a thread.
type Mode string

const (
	// ModeFullBook searches the whole indexed corpus per question.
	ModeFullBook Mode = "full_book"
	// ModeSelectedText answers only against the thread's pinned text.
	ModeSelectedText Mode = "selected_text"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeFullBook || m == ModeSelectedText
}

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status records how an assistant turn ended.
type Status string

const (
	// StatusCompleted is a fully generated answer.
	StatusCompleted Status = "completed"
	// StatusFailed marks a turn where generation errored mid-stream;
	// Content holds whatever partial text was produced.
	StatusFailed Status = "failed"
)

// Thread is one conversation.
type Thread struct {
	ID           uuid.UUID      `json:"id"`
	Mode         Mode           `json:"mode"`
	PinnedText   string         `json:"pinned_text,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	MessageCount int            `json:"message_count"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Message is one turn in a thread. SequenceNumber is assigned by the store
// and is strictly increasing with no gaps within a thread.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ThreadID       uuid.UUID `json:"thread_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	ContextRefs    []string  `json:"context_refs"`
	Status         Status    `json:"status"`
	SequenceNumber int       `json:"sequence_number"`
	CreatedAt      time.Time `json:"created_at"`
}
