package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"readaloud/pkg/version"
)

// NewServer creates and configures the HTTP server.
// Nil handlers leave their routes unregistered; shutdown is called from the
// shutdown endpoint after the response has been written.
func NewServer(addr string, health *HealthHandler, playerH *PlayerHandler, audioH *AudioHandler, stats *StatsHandler, history *HistoryHandler, metrics http.Handler, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health Endpoint
	if health != nil {
		mux.Handle("GET /health", health)
	} else {
		mux.HandleFunc("GET /health", handleHealth)
	}

	// 2. Version Endpoint
	mux.HandleFunc("GET /api/version", handleVersion)

	// 2b. Languages Endpoint
	mux.HandleFunc("GET /api/languages", handleLanguages)

	// 2c. Logs Endpoint
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)

	// 2d. Stats Endpoint
	if stats != nil {
		mux.Handle("GET /api/stats", stats)
	}

	// 2e. History Endpoint
	if history != nil {
		mux.Handle("GET /api/history", history)
	}

	// 2f. Metrics Endpoint
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}

	// 2g. Player Endpoints
	if playerH != nil {
		mux.HandleFunc("POST /api/player/play", playerH.HandlePlay)
		mux.HandleFunc("POST /api/player/refresh", playerH.HandleRefresh)
		mux.HandleFunc("POST /api/player/language", playerH.HandleLanguage)
		mux.HandleFunc("POST /api/player/prefetch", playerH.HandlePrefetch)
		mux.HandleFunc("POST /api/player/cancel", playerH.HandleCancel)
		mux.HandleFunc("GET /api/player/status", playerH.HandleStatus)
		mux.HandleFunc("GET /api/player/events", playerH.HandleEvents)
	}

	// 2h. Audio Endpoints
	if audioH != nil {
		mux.HandleFunc("POST /api/audio/control", audioH.HandleControl)
		mux.HandleFunc("POST /api/audio/volume", audioH.HandleVolume)
		mux.HandleFunc("GET /api/audio/status", audioH.HandleStatus)
	}

	// 3. Shutdown Endpoint
	if shutdown != nil {
		mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
			slog.Info("Graceful shutdown initiated via API")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("Shutting down...")); err != nil {
				slog.Error("Failed to write shutdown response", "error", err)
			}
			// Call shutdown in a goroutine to allow response to flush
			go func() {
				time.Sleep(100 * time.Millisecond)
				shutdown()
			}()
		})
	}

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
