// Package tracker keeps per-host request counters for the status API.
package tracker

import (
	"sync"
	"sync/atomic"
)

// Tracker tracks usage statistics per host.
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*hostStats
}

type hostStats struct {
	requests   atomic.Int64
	successes  atomic.Int64
	failures   atomic.Int64
	lastStatus atomic.Int64

	errMu   sync.Mutex
	lastErr string
}

// HostStats is a point-in-time copy of one host's counters.
type HostStats struct {
	Requests   int64  `json:"requests"`
	Successes  int64  `json:"successes"`
	Failures   int64  `json:"failures"`
	LastStatus int64  `json:"last_status"`
	LastError  string `json:"last_error,omitempty"`
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{stats: make(map[string]*hostStats)}
}

func (t *Tracker) get(host string) *hostStats {
	t.mu.RLock()
	s, ok := t.stats[host]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok = t.stats[host]; ok {
		return s
	}
	s = &hostStats{}
	t.stats[host] = s
	return s
}

// TrackSuccess records a request that got a usable answer.
func (t *Tracker) TrackSuccess(host string, status int) {
	s := t.get(host)
	s.requests.Add(1)
	s.successes.Add(1)
	s.lastStatus.Store(int64(status))
}

// TrackFailure records a request that failed. status is 0 for network errors.
func (t *Tracker) TrackFailure(host string, status int, err error) {
	s := t.get(host)
	s.requests.Add(1)
	s.failures.Add(1)
	s.lastStatus.Store(int64(status))
	if err != nil {
		s.errMu.Lock()
		s.lastErr = err.Error()
		s.errMu.Unlock()
	}
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() map[string]HostStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]HostStats, len(t.stats))
	for k, v := range t.stats {
		v.errMu.Lock()
		lastErr := v.lastErr
		v.errMu.Unlock()
		result[k] = HostStats{
			Requests:   v.requests.Load(),
			Successes:  v.successes.Load(),
			Failures:   v.failures.Load(),
			LastStatus: v.lastStatus.Load(),
			LastError:  lastErr,
		}
	}
	return result
}
