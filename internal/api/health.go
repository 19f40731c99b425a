package api

import (
	"net/http"

	"readaloud/pkg/probe"
)

// CheckSource reports the latest start-up check results.
type CheckSource interface {
	Results() []probe.Result
}

// HealthHandler reports start-up check results on GET /health.
type HealthHandler struct {
	checks CheckSource
}

// NewHealthHandler creates a new HealthHandler. A nil source yields a nil
// handler, which leaves the plain health route in place.
func NewHealthHandler(src CheckSource) *HealthHandler {
	if src == nil {
		return nil
	}
	return &HealthHandler{checks: src}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string        `json:"status"` // ok, degraded, failing
	Checks []CheckStatus `json:"checks"`
}

// CheckStatus is one start-up check.
type CheckStatus struct {
	Name      string `json:"name"`
	Critical  bool   `json:"critical"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// ServeHTTP answers 503 when a critical check failed.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Checks: []CheckStatus{}}
	code := http.StatusOK
	for _, res := range h.checks.Results() {
		cs := CheckStatus{
			Name:      res.Name,
			Critical:  res.Critical,
			OK:        res.OK(),
			ElapsedMS: res.Elapsed.Milliseconds(),
		}
		if !cs.OK {
			cs.Error = res.Err.Error()
			if res.Critical {
				resp.Status = "failing"
				code = http.StatusServiceUnavailable
			} else if resp.Status == "ok" {
				resp.Status = "degraded"
			}
		}
		resp.Checks = append(resp.Checks, cs)
	}
	writeJSON(w, code, resp)
}
