package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"readaloud/pkg/store"
)

// AudioService is the playback surface controlled by the audio endpoints.
type AudioService interface {
	Pause()
	Resume()
	Stop()
	SetVolume(vol float64)
	Volume() float64
	IsPlaying() bool
	IsPaused() bool
	Attached() string
	Position() time.Duration
	Duration() time.Duration
}

// AudioHandler handles audio control endpoints.
type AudioHandler struct {
	audio AudioService
	store store.StateStore
}

// NewAudioHandler creates a new AudioHandler.
func NewAudioHandler(audioMgr AudioService, st store.StateStore) *AudioHandler {
	return &AudioHandler{
		audio: audioMgr,
		store: st,
	}
}

// AudioControlRequest represents an audio control command.
type AudioControlRequest struct {
	Action string `json:"action"` // "pause", "resume", "stop"
}

// AudioVolumeRequest represents a volume change request.
type AudioVolumeRequest struct {
	Volume float64 `json:"volume"`
}

// AudioStatusResponse represents the audio status.
type AudioStatusResponse struct {
	IsPlaying bool    `json:"is_playing"`
	IsPaused  bool    `json:"is_paused"`
	Volume    float64 `json:"volume"`
	Attached  bool    `json:"attached"`
	Position  float64 `json:"position_sec"`
	Duration  float64 `json:"duration_sec"`
}

// HandleControl handles POST /api/audio/control
func (h *AudioHandler) HandleControl(w http.ResponseWriter, r *http.Request) {
	var req AudioControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var state string
	switch req.Action {
	case "pause":
		h.audio.Pause()
		state = "paused"
	case "resume":
		h.audio.Resume()
		state = "playing"
	case "stop":
		h.audio.Stop()
		state = "stopped"
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}

	slog.Debug("Audio control", "action", req.Action, "state", state)
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"state":  state,
	})
}

// HandleVolume handles POST /api/audio/volume
func (h *AudioHandler) HandleVolume(w http.ResponseWriter, r *http.Request) {
	var req AudioVolumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	h.audio.SetVolume(req.Volume)

	// Persist the clamped value
	if h.store != nil {
		if err := store.SaveVolume(r.Context(), h.store, h.audio.Volume()); err != nil {
			slog.Error("Failed to persist volume", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"volume": h.audio.Volume(),
	})
}

// HandleStatus handles GET /api/audio/status
func (h *AudioHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, AudioStatusResponse{
		IsPlaying: h.audio.IsPlaying(),
		IsPaused:  h.audio.IsPaused(),
		Volume:    h.audio.Volume(),
		Attached:  h.audio.Attached() != "",
		Position:  h.audio.Position().Seconds(),
		Duration:  h.audio.Duration().Seconds(),
	})
}
