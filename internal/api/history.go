package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"readaloud/pkg/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// HistoryReader lists recorded synthesis attempts, newest first.
type HistoryReader interface {
	RecentAttempts(ctx context.Context, limit int) ([]store.Attempt, error)
}

// HistoryHandler serves the synthesis attempt history.
type HistoryHandler struct {
	history HistoryReader
}

// NewHistoryHandler creates a new HistoryHandler. Returns nil without a reader.
func NewHistoryHandler(h HistoryReader) *HistoryHandler {
	if h == nil {
		return nil
	}
	return &HistoryHandler{history: h}
}

// ServeHTTP handles GET /api/history?limit=N
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	attempts, err := h.history.RecentAttempts(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to read synthesis history", "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if attempts == nil {
		attempts = []store.Attempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}
