// Package media issues revocable playable handles for in-memory audio.
package media

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// URLPrefix marks every handle issued by a Registry.
const URLPrefix = "blob:readaloud/"

var (
	// ErrUnknownHandle is returned when a URL was never issued or was already revoked.
	ErrUnknownHandle = errors.New("unknown or revoked media handle")
	// ErrReleased is returned by readers whose source was revoked underneath them.
	ErrReleased = errors.New("media source released")
)

// Source is the backing data of a handle. Every Open returns an independent reader.
type Source interface {
	Open() (io.ReadCloser, error)
}

// Releaser is implemented by sources that hold resources beyond their memory.
type Releaser interface {
	Release()
}

type handle struct {
	src  Source
	mime string
}

// Registry tracks live handles. All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]handle
	created int64
	revoked int64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]handle)}
}

// Create registers src and returns its unique playable URL.
func (r *Registry) Create(src Source, mime string) string {
	url := URLPrefix + uuid.NewString()

	r.mu.Lock()
	r.handles[url] = handle{src: src, mime: mime}
	r.created++
	r.mu.Unlock()

	slog.Debug("Media: handle created", "url", url, "mime", mime)
	return url
}

// Open returns a fresh reader for url together with its mime type.
func (r *Registry) Open(url string) (io.ReadCloser, string, error) {
	r.mu.RLock()
	h, ok := r.handles[url]
	r.mu.RUnlock()
	if !ok {
		return nil, "", ErrUnknownHandle
	}
	rc, err := h.src.Open()
	if err != nil {
		return nil, "", err
	}
	return rc, h.mime, nil
}

// Revoke releases url. A second revoke of the same URL returns ErrUnknownHandle.
func (r *Registry) Revoke(url string) error {
	r.mu.Lock()
	h, ok := r.handles[url]
	if ok {
		delete(r.handles, url)
		r.revoked++
	}
	r.mu.Unlock()

	if !ok {
		return ErrUnknownHandle
	}
	if rel, ok := h.src.(Releaser); ok {
		rel.Release()
	}
	slog.Debug("Media: handle revoked", "url", url)
	return nil
}

// IsLive reports whether url is currently registered.
func (r *Registry) IsLive(url string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handles[url]
	return ok
}

// Live returns the number of unrevoked handles.
func (r *Registry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Stats returns the total number of handles created and revoked.
func (r *Registry) Stats() (created, revoked int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.created, r.revoked
}

// IsHandle reports whether s looks like a URL issued by a Registry.
func IsHandle(s string) bool {
	return strings.HasPrefix(s, URLPrefix)
}

// Bytes is a Source over a complete in-memory payload.
type Bytes []byte

// Open implements Source.
func (b Bytes) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}
