// Package embed wraps a Genkit embedder with intent-aware requests,
// batching, and retry for transient provider failures.
package embed

import "errors"

// Sentinel errors for callers to branch on with errors.Is().
var (
	// ErrInvalidInput marks empty or whitespace-only text, which the
	// provider cannot embed meaningfully.
	ErrInvalidInput = errors.New("embed: invalid input")

	// ErrUnavailable marks a provider failure that persisted through
	// retries. The request may succeed later.
	ErrUnavailable = errors.New("embed: provider unavailable")
)

// Intent tells the provider how the embedding will be used. Asymmetric
// embedding models produce different vectors for indexed passages and for
// search queries; mixing them up silently degrades recall.
type Intent int

const (
	// IntentDocument is for text being indexed.
	IntentDocument Intent = iota
	// IntentQuery is for text used to search the index.
	IntentQuery
)

// taskType maps the intent to the Gemini embedding task type.
func (i Intent) taskType() string {
	if i == IntentQuery {
		return "RETRIEVAL_QUERY"
	}
	return "RETRIEVAL_DOCUMENT"
}

// String implements Stringer for log output.
func (i Intent) String() string {
	if i == IntentQuery {
		return "query"
	}
	return "document"
}
