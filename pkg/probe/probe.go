// Package probe runs the start-up checks and keeps their latest outcome for
// the health endpoint.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultTimeout bounds a single check when the Runner has no Timeout.
const DefaultTimeout = 5 * time.Second

// Probe is one start-up check. A failing Critical probe aborts start-up.
type Probe struct {
	Name     string
	Check    func(ctx context.Context) error
	Critical bool
}

// Result is the outcome of one probe.
type Result struct {
	Name     string
	Critical bool
	Err      error
	Elapsed  time.Duration
}

// OK reports whether the probe passed.
func (r Result) OK() bool { return r.Err == nil }

// Recorder receives every finished check, e.g. metrics.Metrics.
type Recorder interface {
	CheckFinished(name string, ok bool, elapsed time.Duration)
}

// Runner executes probes one after another.
type Runner struct {
	Timeout  time.Duration
	Recorder Recorder

	mu   sync.RWMutex
	last []Result
}

// NewRunner creates a Runner bounding each check by timeout.
func NewRunner(timeout time.Duration, rec Recorder) *Runner {
	return &Runner{Timeout: timeout, Recorder: rec}
}

// Run executes probes in order and returns their results. The results are
// also kept for Results.
func (r *Runner) Run(ctx context.Context, probes []Probe) []Result {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	results := make([]Result, 0, len(probes))
	for _, p := range probes {
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		began := time.Now()
		err := p.Check(checkCtx)
		cancel()

		res := Result{Name: p.Name, Critical: p.Critical, Err: err, Elapsed: time.Since(began)}
		if r.Recorder != nil {
			r.Recorder.CheckFinished(p.Name, res.OK(), res.Elapsed)
		}
		results = append(results, res)
	}

	r.mu.Lock()
	r.last = results
	r.mu.Unlock()
	return results
}

// Results returns the outcome of the latest Run, nil before the first one.
func (r *Runner) Results() []Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Result(nil), r.last...)
}

// Verdict logs every result and joins the errors of failed critical probes.
func Verdict(results []Result) error {
	var critical []error
	for _, res := range results {
		elapsed := res.Elapsed.Round(time.Millisecond)
		switch {
		case res.OK():
			slog.Info("Probe: check passed", "check", res.Name, "elapsed", elapsed)
		case res.Critical:
			slog.Error("Probe: check failed", "check", res.Name, "elapsed", elapsed, "error", res.Err)
			critical = append(critical, fmt.Errorf("%s: %w", res.Name, res.Err))
		default:
			slog.Warn("Probe: check failed", "check", res.Name, "elapsed", elapsed, "error", res.Err)
		}
	}
	return errors.Join(critical...)
}
