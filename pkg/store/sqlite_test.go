package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"readaloud/pkg/db"
	"readaloud/pkg/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("db.Init: %v", err)
	}
	s := NewSQLiteStore(d)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok := s.GetState(ctx, "missing"); ok {
		t.Error("expected miss for unknown key")
	}
	if err := s.SetState(ctx, "k", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetState(ctx, "k", "v2"); err != nil {
		t.Fatal(err)
	}
	if v, ok := s.GetState(ctx, "k"); !ok || v != "v2" {
		t.Errorf("GetState = %q, %v", v, ok)
	}
	if err := s.DeleteState(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.GetState(ctx, "k"); ok {
		t.Error("expected miss after delete")
	}
}

func TestHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	attempts := []Attempt{
		{Endpoint: "http://a/api/blog-tts", Language: "en", Slug: "x", Status: 502, Error: "bad gateway", Chars: 12, Duration: 40 * time.Millisecond},
		{Endpoint: "http://b/api/blog-tts", Language: "en", Slug: "x", Status: 200, Chars: 12, Duration: 900 * time.Millisecond},
	}
	for _, a := range attempts {
		if err := s.RecordAttempt(ctx, a); err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
	}

	got, err := s.RecentAttempts(ctx, 10)
	if err != nil {
		t.Fatalf("RecentAttempts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d attempts, want 2", len(got))
	}
	if got[0].Endpoint != "http://b/api/blog-tts" || got[0].Duration != 900*time.Millisecond {
		t.Errorf("newest first expected, got %+v", got[0])
	}
	if got[1].Error != "bad gateway" || got[1].Status != 502 {
		t.Errorf("unexpected failed attempt %+v", got[1])
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("created_at not set")
	}

	limited, _ := s.RecentAttempts(ctx, 1)
	if len(limited) != 1 {
		t.Errorf("limit ignored, got %d", len(limited))
	}
}

func TestPreferences(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	def := Preferences{Language: model.English, Volume: 1}

	if p := LoadPreferences(ctx, s, def); p != def {
		t.Errorf("empty store should yield defaults, got %+v", p)
	}

	if err := SaveLanguage(ctx, s, model.Tamil); err != nil {
		t.Fatal(err)
	}
	if err := SaveVolume(ctx, s, 0.35); err != nil {
		t.Fatal(err)
	}
	p := LoadPreferences(ctx, s, def)
	if p.Language != model.Tamil || p.Volume != 0.35 {
		t.Errorf("LoadPreferences = %+v", p)
	}

	_ = s.SetState(ctx, KeyLanguage, "klingon")
	_ = s.SetState(ctx, KeyVolume, "7")
	if p := LoadPreferences(ctx, s, def); p != def {
		t.Errorf("invalid stored values should fall back, got %+v", p)
	}
}
