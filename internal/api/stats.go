package api

import (
	"net/http"
	"runtime"
	"sync"

	"readaloud/pkg/model"
	"readaloud/pkg/tracker"
)

// HandleCounter reports playable handle bookkeeping.
type HandleCounter interface {
	Live() int
	Stats() (created, revoked int64)
}

// CacheView lists the languages with a cached narration.
type CacheView interface {
	Languages() []model.Language
}

// StatsHandler serves request, handle and memory counters.
type StatsHandler struct {
	tracker *tracker.Tracker
	handles HandleCounter
	cache   CacheView

	mu     sync.Mutex
	maxMem uint64
}

// NewStatsHandler creates a new StatsHandler. handles and cache may be nil.
func NewStatsHandler(t *tracker.Tracker, handles HandleCounter, cache CacheView) *StatsHandler {
	return &StatsHandler{
		tracker: t,
		handles: handles,
		cache:   cache,
	}
}

type ComponentStats struct {
	Name        string `json:"name"`
	MemoryMB    uint64 `json:"memory_mb"`
	MemoryMaxMB uint64 `json:"memory_max_mb"`
	Goroutines  int    `json:"goroutines"`
}

type HandleStats struct {
	Live    int   `json:"live"`
	Created int64 `json:"created"`
	Revoked int64 `json:"revoked"`
}

type StatsResponse struct {
	Diagnostics []ComponentStats             `json:"diagnostics"`
	Hosts       map[string]tracker.HostStats `json:"hosts"`
	Handles     HandleStats                  `json:"handles"`
	Cached      []model.Language             `json:"cached"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Diagnostics: []ComponentStats{h.gatherDiagnostics()},
		Hosts:       map[string]tracker.HostStats{},
		Cached:      []model.Language{},
	}
	if h.tracker != nil {
		resp.Hosts = h.tracker.Snapshot()
	}
	if h.handles != nil {
		created, revoked := h.handles.Stats()
		resp.Handles = HandleStats{Live: h.handles.Live(), Created: created, Revoked: revoked}
	}
	if h.cache != nil {
		resp.Cached = h.cache.Languages()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *StatsHandler) gatherDiagnostics() ComponentStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	h.mu.Lock()
	if ms.Sys > h.maxMem {
		h.maxMem = ms.Sys
	}
	peak := h.maxMem
	h.mu.Unlock()

	return ComponentStats{
		Name:        "Server",
		MemoryMB:    bToMb(ms.Sys),
		MemoryMaxMB: bToMb(peak),
		Goroutines:  runtime.NumGoroutine(),
	}
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
