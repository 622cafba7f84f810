package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/Bushraturk/ragchatbot/internal/chat"
	"github.com/Bushraturk/ragchatbot/internal/thread"
)

// MaxQuestionLength bounds the question accepted per turn.
const MaxQuestionLength = 8000

// ChatHandler handles the streaming question endpoint.
//
// POST /api/chat/stream accepts a question, resolves grounding context for
// the thread's mode, and streams the answer as Server-Sent Events:
//
//	event: delta  - partial answer text
//	event: done   - final answer with message ID and context references
//	event: error  - generation failed mid-stream
type ChatHandler struct {
	controller *chat.Controller
	threads    *thread.Store
	logger     *slog.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(controller *chat.Controller, threads *thread.Store, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{controller: controller, threads: threads, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat/stream", h.stream)
}

// StreamRequest is the request body for a streaming chat turn.
// ThreadID is optional; when absent, a new thread is created. Mode, when
// present, switches the thread's grounding mode before answering.
type StreamRequest struct {
	ThreadID     string `json:"thread_id"`
	Question     string `json:"question"`
	Mode         string `json:"mode"`
	SelectedText string `json:"selected_text"`
}

// stream handles SSE streaming chat requests.
func (h *ChatHandler) stream(w http.ResponseWriter, r *http.Request) {
	var req StreamRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1024*1024)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if len(req.Question) > MaxQuestionLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "question too long")
		return
	}
	if len(req.SelectedText) > MaxSelectedTextLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "selected_text too long")
		return
	}

	ctx := r.Context()

	threadID, ok := h.resolveThread(w, r, &req)
	if !ok {
		return
	}

	events, err := h.controller.Stream(ctx, threadID, req.Question)
	switch {
	case errors.Is(err, chat.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, "empty_question", "question is required")
		return
	case errors.Is(err, thread.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "thread not found")
		return
	case errors.Is(err, chat.ErrThreadBusy):
		writeError(w, http.StatusConflict, "thread_busy", "thread already has a turn in progress")
		return
	case err != nil:
		h.logger.Error("failed to start stream", "thread_id", threadID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to start stream")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	flusher.Flush()

	h.logger.Debug("SSE stream started", "thread_id", threadID)

	for ev := range events {
		select {
		case <-ctx.Done():
			// Generation and persistence continue server-side.
			h.logger.Info("client disconnected", "thread_id", threadID)
			return
		default:
		}

		if err := writeEvent(w, flusher, string(ev.Type), ev); err != nil {
			h.logger.Debug("failed to write event", "thread_id", threadID, "error", err)
			return
		}
	}

	h.logger.Info("SSE stream completed", "thread_id", threadID)
}

// resolveThread finds or creates the thread for this turn, applying any
// requested mode switch. Writes the error response itself on failure.
func (h *ChatHandler) resolveThread(w http.ResponseWriter, r *http.Request, req *StreamRequest) (uuid.UUID, bool) {
	ctx := r.Context()

	if req.ThreadID == "" {
		t, err := h.threads.Create(ctx, thread.Mode(req.Mode), req.SelectedText, nil)
		if err != nil {
			if errors.Is(err, thread.ErrInvalidMode) {
				writeError(w, http.StatusBadRequest, "invalid_mode", err.Error())
				return uuid.Nil, false
			}
			h.logger.Error("failed to create thread", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to create thread")
			return uuid.Nil, false
		}
		return t.ID, true
	}

	id, err := uuid.Parse(req.ThreadID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid thread ID")
		return uuid.Nil, false
	}

	if req.Mode != "" {
		err := h.threads.SetMode(ctx, id, thread.Mode(req.Mode), req.SelectedText)
		switch {
		case errors.Is(err, thread.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "thread not found")
			return uuid.Nil, false
		case errors.Is(err, thread.ErrInvalidMode):
			writeError(w, http.StatusBadRequest, "invalid_mode", err.Error())
			return uuid.Nil, false
		case err != nil:
			h.logger.Error("failed to set thread mode", "thread_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to set mode")
			return uuid.Nil, false
		}
	}

	return id, true
}

// writeEvent writes a single SSE event with JSON-encoded data.
// SSE format: "event: <type>\ndata: <json>\n\n"
func writeEvent(w io.Writer, flusher http.Flusher, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	flusher.Flush()
	return nil
}
