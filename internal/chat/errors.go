package chat

import "errors"

// Sentinel errors for callers to branch on with errors.Is().
var (
	// ErrThreadBusy means another answer is already streaming on the
	// thread. The caller should retry after the current turn finishes.
	ErrThreadBusy = errors.New("chat: thread busy")

	// ErrEmptyQuestion rejects blank input before any pipeline work.
	ErrEmptyQuestion = errors.New("chat: question is empty")
)
