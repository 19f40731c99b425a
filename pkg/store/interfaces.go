package store

import (
	"context"
	"time"
)

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}

// Attempt is one recorded synthesis endpoint call.
type Attempt struct {
	Endpoint  string        `json:"endpoint"`
	Language  string        `json:"language"`
	Slug      string        `json:"slug"`
	Status    int           `json:"status"`
	Error     string        `json:"error,omitempty"`
	Chars     int           `json:"chars"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// HistoryStore keeps a log of synthesis attempts.
type HistoryStore interface {
	RecordAttempt(ctx context.Context, a Attempt) error
	RecentAttempts(ctx context.Context, limit int) ([]Attempt, error)
}
