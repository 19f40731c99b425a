package store

import (
	"context"
	"strconv"

	"readaloud/pkg/model"
)

// State keys.
const (
	KeyLanguage = "player.language"
	KeyVolume   = "player.volume"
)

// Preferences are the reader choices restored on the next start.
type Preferences struct {
	Language model.Language
	Volume   float64
}

// LoadPreferences returns stored preferences, falling back to def for
// anything missing or invalid.
func LoadPreferences(ctx context.Context, s StateStore, def Preferences) Preferences {
	p := def
	if v, ok := s.GetState(ctx, KeyLanguage); ok {
		if lang, err := model.ParseLanguage(v); err == nil {
			p.Language = lang
		}
	}
	if v, ok := s.GetState(ctx, KeyVolume); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			p.Volume = f
		}
	}
	return p
}

// SaveLanguage stores the selected language.
func SaveLanguage(ctx context.Context, s StateStore, lang model.Language) error {
	return s.SetState(ctx, KeyLanguage, lang.String())
}

// SaveVolume stores the playback volume.
func SaveVolume(ctx context.Context, s StateStore, vol float64) error {
	return s.SetState(ctx, KeyVolume, strconv.FormatFloat(vol, 'f', 2, 64))
}
