package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"readaloud/pkg/model"
	"readaloud/pkg/player"
	"readaloud/pkg/store"

	"github.com/gorilla/websocket"
)

// PlayerController is the narration session driven by the player endpoints.
type PlayerController interface {
	Play(ctx context.Context, lang model.Language) error
	Refresh(lang model.Language) error
	SelectLanguage(lang model.Language, userInitiated bool) error
	Prefetch(lang model.Language) error
	Cancel()
	Snapshot() player.Status
	Subscribe() (<-chan player.Status, func())
}

// PlayerHandler handles narration endpoints.
type PlayerHandler struct {
	player   PlayerController
	store    store.StateStore
	upgrader websocket.Upgrader
}

// NewPlayerHandler creates a new PlayerHandler. st may be nil, in which case
// language choices are not persisted.
func NewPlayerHandler(p PlayerController, st store.StateStore) *PlayerHandler {
	return &PlayerHandler{
		player: p,
		store:  st,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// LanguageRequest names the language an action applies to.
type LanguageRequest struct {
	Language      string `json:"language"`
	UserInitiated *bool  `json:"user_initiated,omitempty"` // language changes only; defaults to true
}

// HandlePlay handles POST /api/player/play
func (h *PlayerHandler) HandlePlay(w http.ResponseWriter, r *http.Request) {
	lang, _, ok := h.decodeLanguage(w, r)
	if !ok {
		return
	}
	// The session outlives this request.
	ctx := context.WithoutCancel(r.Context())
	slog.Debug("API: play requested", "lang", lang)
	h.respond(w, h.player.Play(ctx, lang))
}

// HandleRefresh handles POST /api/player/refresh
func (h *PlayerHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	lang, _, ok := h.decodeLanguage(w, r)
	if !ok {
		return
	}
	h.respond(w, h.player.Refresh(lang))
}

// HandleLanguage handles POST /api/player/language
func (h *PlayerHandler) HandleLanguage(w http.ResponseWriter, r *http.Request) {
	lang, req, ok := h.decodeLanguage(w, r)
	if !ok {
		return
	}
	userInitiated := req.UserInitiated == nil || *req.UserInitiated
	err := h.player.SelectLanguage(lang, userInitiated)
	if err == nil && h.store != nil {
		if serr := store.SaveLanguage(r.Context(), h.store, lang); serr != nil {
			slog.Error("Failed to persist language", "error", serr)
		}
	}
	h.respond(w, err)
}

// HandlePrefetch handles POST /api/player/prefetch
func (h *PlayerHandler) HandlePrefetch(w http.ResponseWriter, r *http.Request) {
	lang, _, ok := h.decodeLanguage(w, r)
	if !ok {
		return
	}
	h.respond(w, h.player.Prefetch(lang))
}

// HandleCancel handles POST /api/player/cancel
func (h *PlayerHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.player.Cancel()
	h.respond(w, nil)
}

// HandleStatus handles GET /api/player/status
func (h *PlayerHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse(h.player.Snapshot()))
}

// HandleEvents handles GET /api/player/events. Every status change is pushed
// to the socket as a JSON text message until either side closes.
func (h *PlayerHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("API: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, unsubscribe := h.player.Subscribe()
	defer unsubscribe()

	// Drain reads so close frames are processed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case st, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "player closed"),
					time.Now().Add(time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(statusResponse(st)); err != nil {
				slog.Debug("API: websocket write failed", "error", err)
				return
			}
		}
	}
}

// StatusResponse is a player status with its display caption.
type StatusResponse struct {
	player.Status
	Caption string `json:"caption,omitempty"`
}

func statusResponse(st player.Status) StatusResponse {
	return StatusResponse{Status: st, Caption: st.Caption()}
}

// decodeLanguage reads an optional LanguageRequest. An empty body or language
// means the currently selected language.
func (h *PlayerHandler) decodeLanguage(w http.ResponseWriter, r *http.Request) (model.Language, LanguageRequest, bool) {
	var req LanguageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return "", req, false
	}
	if req.Language == "" {
		return h.player.Snapshot().Selected, req, true
	}
	lang, err := model.ParseLanguage(req.Language)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", req, false
	}
	return lang, req, true
}

func (h *PlayerHandler) respond(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, statusResponse(h.player.Snapshot()))
	case errors.Is(err, player.ErrUnknownLanguage):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, player.ErrClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		slog.Error("API: player action failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleLanguages handles GET /api/languages
func handleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.Languages)
}
