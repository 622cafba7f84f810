package testutil

import (
	"bufio"
	"strings"
	"testing"
)

// SSEEvent represents a parsed Server-Sent Event.
type SSEEvent struct {
	Type string // event: value
	Data string // data: value (multi-line joined with \n)
}

// ParseSSEEvents parses an SSE stream body into structured events.
//
// Follows the W3C SSE spec:
//   - Multiple "data:" lines are joined with newline
//   - An empty line terminates an event
//   - data: without a preceding event: gets the default "message" type
//   - Comment lines starting with ":" are ignored
func ParseSSEEvents(t *testing.T, body string) []SSEEvent {
	t.Helper()

	var events []SSEEvent
	scanner := bufio.NewScanner(strings.NewReader(body))

	var current SSEEvent
	var dataLines []string
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "event: "):
			if current.Type != "" && len(dataLines) > 0 {
				t.Fatalf("SSE parse error at line %d: new event before previous terminated (got %q)", lineNum, line)
			}
			current.Type = strings.TrimPrefix(line, "event: ")

		case strings.HasPrefix(line, "data: "):
			if current.Type == "" {
				current.Type = "message"
			}
			dataLines = append(dataLines, strings.TrimPrefix(line, "data: "))

		case line == "":
			if current.Type != "" {
				current.Data = strings.Join(dataLines, "\n")
				events = append(events, current)
				current = SSEEvent{}
				dataLines = nil
			}

		default:
			if !strings.HasPrefix(line, ":") {
				t.Fatalf("SSE parse error at line %d: unexpected line: %q", lineNum, line)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		t.Fatalf("SSE scan error: %v", err)
	}
	if current.Type != "" {
		t.Fatalf("SSE stream ended without terminating event %q (missing empty line)", current.Type)
	}

	return events
}

// FindEvent returns the first event of the given type, or nil.
func FindEvent(events []SSEEvent, eventType string) *SSEEvent {
	for i := range events {
		if events[i].Type == eventType {
			return &events[i]
		}
	}
	return nil
}

// FindAllEvents returns all events of the given type.
func FindAllEvents(events []SSEEvent, eventType string) []SSEEvent {
	var found []SSEEvent
	for _, e := range events {
		if e.Type == eventType {
			found = append(found, e)
		}
	}
	return found
}
