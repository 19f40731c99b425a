// Package cache holds one playable entry per language and owns the lifetime
// of the handles those entries point at.
package cache

import (
	"log/slog"
	"sync"
	"time"

	"readaloud/pkg/model"
	"readaloud/pkg/synth"
)

// Revoker releases playable handles.
type Revoker interface {
	Revoke(url string) error
}

// Entry is a playable result for one language. Entries are values and are
// replaced wholesale, never mutated in place.
type Entry struct {
	URL       string    `json:"url"`
	FetchedAt time.Time `json:"fetched_at"`
	MimeType  string    `json:"mime_type"`
	Streaming bool      `json:"streaming"`
	synth.Metadata
}

// Notice returns the line shown next to the player describing how the audio was produced.
func (e Entry) Notice() string {
	switch {
	case e.TranslationFailed:
		return "Displayed language is English because translation failed."
	case e.Translated && e.Truncated:
		return "Translated audio generated from a shortened excerpt."
	case e.Translated:
		return "Translated from English."
	case e.Truncated:
		return "Generated from a shortened excerpt."
	default:
		return ""
	}
}

// Resources maps languages to entries. All methods are safe for concurrent use.
type Resources struct {
	mu      sync.Mutex
	entries map[model.Language]Entry
	revoker Revoker
}

// New creates an empty cache releasing handles through r.
func New(r Revoker) *Resources {
	return &Resources{
		entries: make(map[model.Language]Entry),
		revoker: r,
	}
}

// Put stores e for lang, revoking the entry it replaces first.
// Putting the same URL again only refreshes the metadata.
func (c *Resources) Put(lang model.Language, e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.entries[lang]; ok && prev.URL != e.URL {
		c.revoke(lang, prev.URL)
	}
	c.entries[lang] = e
}

// Get returns the entry for lang.
func (c *Resources) Get(lang model.Language) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[lang]
	return e, ok
}

// Clear revokes and removes the entry for lang. It reports whether one existed.
func (c *Resources) Clear(lang model.Language) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clear(lang)
}

// ClearIf removes the entry for lang only while it still points at url.
// A newer entry that replaced it is left alone.
func (c *Resources) ClearIf(lang model.Language, url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[lang]; !ok || e.URL != url {
		return false
	}
	return c.clear(lang)
}

// ClearAll revokes every entry.
func (c *Resources) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for lang := range c.entries {
		c.clear(lang)
	}
}

// Len returns the number of cached languages.
func (c *Resources) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Languages returns the cached languages in model.Languages order.
func (c *Resources) Languages() []model.Language {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.Language
	for _, info := range model.Languages {
		if _, ok := c.entries[info.Code]; ok {
			out = append(out, info.Code)
		}
	}
	return out
}

func (c *Resources) clear(lang model.Language) bool {
	e, ok := c.entries[lang]
	if !ok {
		return false
	}
	delete(c.entries, lang)
	c.revoke(lang, e.URL)
	return true
}

func (c *Resources) revoke(lang model.Language, url string) {
	if c.revoker == nil || url == "" {
		return
	}
	if err := c.revoker.Revoke(url); err != nil {
		slog.Warn("Cache: failed to revoke handle", "lang", lang, "url", url, "error", err)
	}
}
