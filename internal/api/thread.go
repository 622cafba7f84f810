package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/Bushraturk/ragchatbot/internal/thread"
)

// Thread validation constants.
const (
	MaxSelectedTextLength = 20000
	DefaultListLimit      = 20
	MaxListLimit          = 100
	MaxListOffset         = 100000
	MaxMessagesLimit      = 500
)

// ThreadHandler handles conversation thread HTTP endpoints.
type ThreadHandler struct {
	store  *thread.Store
	logger *slog.Logger
}

// NewThreadHandler creates a new thread handler.
func NewThreadHandler(store *thread.Store, logger *slog.Logger) *ThreadHandler {
	return &ThreadHandler{store: store, logger: logger}
}

// RegisterRoutes registers thread routes on the given mux.
func (h *ThreadHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/threads", h.create)
	mux.HandleFunc("GET /api/threads", h.list)
	mux.HandleFunc("GET /api/threads/{id}", h.get)
	mux.HandleFunc("GET /api/threads/{id}/messages", h.messages)
	mux.HandleFunc("PUT /api/threads/{id}/mode", h.setMode)
	mux.HandleFunc("DELETE /api/threads/{id}", h.delete)
}

// CreateThreadRequest is the request body for creating a thread.
type CreateThreadRequest struct {
	Mode         string         `json:"mode"`
	SelectedText string         `json:"selected_text"`
	Metadata     map[string]any `json:"metadata"`
}

// create creates a new conversation thread.
func (h *ThreadHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateThreadRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1024*1024)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if len(req.SelectedText) > MaxSelectedTextLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "selected_text too long")
		return
	}

	t, err := h.store.Create(r.Context(), thread.Mode(req.Mode), req.SelectedText, req.Metadata)
	if err != nil {
		if errors.Is(err, thread.ErrInvalidMode) {
			writeError(w, http.StatusBadRequest, "invalid_mode", err.Error())
			return
		}
		h.logger.Error("failed to create thread", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create thread")
		return
	}

	writeJSON(w, http.StatusCreated, t)
}

// list returns threads ordered by most recent activity.
// Query parameters:
//   - limit: maximum threads to return (default 20, max 100)
//   - offset: threads to skip (default 0)
func (h *ThreadHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", DefaultListLimit, 1, MaxListLimit)
	offset := parseIntParam(r, "offset", 0, 0, MaxListOffset)

	threads, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list threads", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list threads")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"threads": threads,
		"total":   len(threads),
		"limit":   limit,
		"offset":  offset,
	})
}

// get returns a single thread.
func (h *ThreadHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseThreadID(w, r)
	if !ok {
		return
	}

	t, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, thread.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "thread not found")
			return
		}
		h.logger.Error("failed to get thread", "thread_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get thread")
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// messages returns a thread's transcript in chronological order.
func (h *ThreadHandler) messages(w http.ResponseWriter, r *http.Request) {
	id, ok := parseThreadID(w, r)
	if !ok {
		return
	}

	limit := parseIntParam(r, "limit", MaxMessagesLimit, 1, MaxMessagesLimit)
	offset := parseIntParam(r, "offset", 0, 0, MaxListOffset)

	msgs, err := h.store.Messages(r.Context(), id, limit, offset)
	if err != nil {
		if errors.Is(err, thread.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "thread not found")
			return
		}
		h.logger.Error("failed to list messages", "thread_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": msgs,
		"total":    len(msgs),
		"limit":    limit,
		"offset":   offset,
	})
}

// SetModeRequest is the request body for switching a thread's context mode.
type SetModeRequest struct {
	Mode         string `json:"mode"`
	SelectedText string `json:"selected_text"`
}

// setMode switches a thread between whole-book and selected-text grounding.
func (h *ThreadHandler) setMode(w http.ResponseWriter, r *http.Request) {
	id, ok := parseThreadID(w, r)
	if !ok {
		return
	}

	var req SetModeRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1024*1024)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if len(req.SelectedText) > MaxSelectedTextLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "selected_text too long")
		return
	}

	err := h.store.SetMode(r.Context(), id, thread.Mode(req.Mode), req.SelectedText)
	switch {
	case errors.Is(err, thread.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "thread not found")
		return
	case errors.Is(err, thread.ErrInvalidMode):
		writeError(w, http.StatusBadRequest, "invalid_mode", err.Error())
		return
	case err != nil:
		h.logger.Error("failed to set thread mode", "thread_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to set mode")
		return
	}

	t, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to reload thread", "thread_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to reload thread")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// delete removes a thread and its messages.
func (h *ThreadHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseThreadID(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, thread.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "thread not found")
			return
		}
		h.logger.Error("failed to delete thread", "thread_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete thread")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// parseThreadID parses the {id} path value, writing a 400 on failure.
func parseThreadID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid thread ID")
		return uuid.Nil, false
	}
	return id, true
}

// parseIntParam parses an integer query parameter with bounds checking.
func parseIntParam(r *http.Request, name string, defaultVal, minVal, maxVal int) int {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}
