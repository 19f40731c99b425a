package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"readaloud/pkg/config"
	"readaloud/pkg/endpoint"
	"readaloud/pkg/store"
)

// Prober sends a lightweight request and reports the status it got back.
type Prober interface {
	Probe(ctx context.Context, u string) (int, error)
}

// ConfigCheck fails when the configuration cannot work.
func ConfigCheck(cfg *config.Config) Probe {
	return Probe{
		Name:     "Configuration",
		Critical: true,
		Check: func(ctx context.Context) error {
			if cfg == nil {
				return errors.New("no configuration loaded")
			}
			return cfg.Validate()
		},
	}
}

// EndpointCheck passes when at least one candidate answers below 500.
// Relative candidates are resolved against origin; those that stay relative
// are skipped. A narration can still be served by a later candidate at play
// time, so this check is never critical.
func EndpointCheck(p Prober, candidates []string, origin string) Probe {
	return Probe{
		Name:     "TTS Endpoints",
		Critical: false,
		Check: func(ctx context.Context) error {
			var errs []error
			tried := 0
			for _, c := range candidates {
				u := endpoint.Absolute(c, origin)
				if u == "" || u[0] == '/' {
					continue
				}
				tried++
				status, err := p.Probe(ctx, u)
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", u, err))
					continue
				}
				if status < http.StatusInternalServerError {
					return nil
				}
				errs = append(errs, fmt.Errorf("%s: status %d", u, status))
			}
			if tried == 0 {
				return errors.New("no absolute endpoint to probe")
			}
			return errors.Join(errs...)
		},
	}
}

// KeyLastStart records when the store last passed the startup check.
const KeyLastStart = "probe.last_start"

// StoreCheck verifies the state store accepts writes.
func StoreCheck(s store.StateStore) Probe {
	return Probe{
		Name:     "Database",
		Critical: true,
		Check: func(ctx context.Context) error {
			if s == nil {
				return errors.New("no state store")
			}
			return s.SetState(ctx, KeyLastStart, time.Now().UTC().Format(time.RFC3339))
		},
	}
}
