package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bushraturk/ragchatbot/internal/chat"
	"github.com/Bushraturk/ragchatbot/internal/testutil"
)

// Full request flows need a database-backed controller; see the
// integration tests. These cover parsing and validation short-circuits
// that never reach the stores.

func TestChatStreamRejectsInvalidBody(t *testing.T) {
	t.Parallel()

	h := NewChatHandler(nil, nil, testutil.DiscardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	h.stream(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_request")
}

func TestChatStreamRejectsOversizedQuestion(t *testing.T) {
	t.Parallel()

	h := NewChatHandler(nil, nil, testutil.DiscardLogger())

	body, err := json.Marshal(StreamRequest{
		ThreadID: uuid.New().String(),
		Question: strings.Repeat("a", MaxQuestionLength+1),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", strings.NewReader(string(body)))
	w := httptest.NewRecorder()
	h.stream(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatStreamRejectsMalformedThreadID(t *testing.T) {
	t.Parallel()

	h := NewChatHandler(nil, nil, testutil.DiscardLogger())

	body, err := json.Marshal(StreamRequest{ThreadID: "not-a-uuid", Question: "hello"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", strings.NewReader(string(body)))
	w := httptest.NewRecorder()
	h.stream(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid thread ID")
}

func TestWriteEventFormat(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	ev := chat.Event{Type: chat.EventDelta, Text: "partial"}
	require.NoError(t, writeEvent(rec, rec, "delta", ev))

	events := testutil.ParseSSEEvents(t, rec.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, "delta", events[0].Type)
	assert.Contains(t, events[0].Data, `"text":"partial"`)
	assert.True(t, rec.Flushed)
}
