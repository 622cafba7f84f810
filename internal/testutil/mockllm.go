package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockLLM provides deterministic model responses for testing. It matches
// the last user message against registered patterns and returns the
// corresponding response, streamed in fixed-size pieces when a streaming
// callback is supplied.
//
// Thread-safe for concurrent use.
type MockLLM struct {
	mu        sync.Mutex
	rules     []mockRule
	fallback  string
	calls     []MockCall
	nextErr   error
	chunkSize int
}

type mockRule struct {
	pattern  string // substring match in user message, lowercase
	response string
}

// MockCall records a single call to the mock model.
type MockCall struct {
	System      string // system instruction text, if any
	UserMessage string // last user message text
	Response    string
}

// NewMockLLM creates a mock model with the given fallback response,
// returned when no pattern matches.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback, chunkSize: 16}
}

// AddResponse registers a pattern-response pair. Patterns match
// case-insensitively as substrings of the last user message; first
// registered match wins.
func (m *MockLLM) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern:  strings.ToLower(pattern),
		response: response,
	})
}

// FailNext makes the next generate call return err instead of a response.
// The failure is one-shot.
func (m *MockLLM) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextErr = err
}

// Calls returns a copy of all recorded calls.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// CallCount returns the number of generate calls made so far.
func (m *MockLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears recorded calls and any pending failure, keeping rules.
func (m *MockLLM) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.nextErr = nil
}

// RegisterModel registers the mock as a Genkit model named
// "mock/test-model" and returns its reference.
func (m *MockLLM) RegisterModel(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, "mock/test-model", &ai.ModelOptions{
		Label: "Mock Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			SystemRole: true,
		},
	}, m.generate)
}

func (m *MockLLM) generate(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	var userText, systemText string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == ai.RoleUser && userText == "" {
			userText = req.Messages[i].Text()
		}
		if req.Messages[i].Role == ai.RoleSystem && systemText == "" {
			systemText = req.Messages[i].Text()
		}
	}

	m.mu.Lock()
	if err := m.nextErr; err != nil {
		m.nextErr = nil
		m.calls = append(m.calls, MockCall{System: systemText, UserMessage: userText})
		m.mu.Unlock()
		return nil, err
	}

	responseText := m.fallback
	lower := strings.ToLower(userText)
	for i := range m.rules {
		if strings.Contains(lower, m.rules[i].pattern) {
			responseText = m.rules[i].response
			break
		}
	}

	m.calls = append(m.calls, MockCall{
		System:      systemText,
		UserMessage: userText,
		Response:    responseText,
	})
	chunkSize := m.chunkSize
	m.mu.Unlock()

	// Stream in small pieces so callers exercise real multi-chunk assembly.
	if cb != nil {
		for start := 0; start < len(responseText); start += chunkSize {
			end := min(start+chunkSize, len(responseText))
			if err := cb(ctx, &ai.ModelResponseChunk{
				Content: []*ai.Part{ai.NewTextPart(responseText[start:end])},
			}); err != nil {
				return nil, err
			}
		}
	}

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: []*ai.Part{ai.NewTextPart(responseText)},
		},
	}, nil
}
