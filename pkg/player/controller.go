// Package player orchestrates narration sessions: it turns play and language
// events into synthesis requests, delivers the audio through the streaming or
// buffered path, and keeps one cached result per language.
package player

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"readaloud/pkg/cache"
	"readaloud/pkg/excerpt"
	"readaloud/pkg/media"
	"readaloud/pkg/metrics"
	"readaloud/pkg/model"
	"readaloud/pkg/synth"
	"readaloud/pkg/transport"
)

// Surface is the audio output a playable handle is attached to.
type Surface interface {
	Attach(url, mime string)
	Detach()
	// Play starts the attached handle; it may fail, e.g. when nothing is decodable yet.
	Play(ctx context.Context) error
	Attached() string
}

// ExcerptSource supplies the text to narrate.
type ExcerptSource interface {
	Excerpt(ctx context.Context) (excerpt.Excerpt, error)
}

// Caller sends a synthesis request to the first answering candidate.
type Caller interface {
	Call(ctx context.Context, candidates []string, req synth.Request) (*synth.Response, error)
}

// Handles issues and revokes playable handles.
type Handles interface {
	Create(src media.Source, mime string) string
	Revoke(url string) error
}

// Options configures a Controller.
type Options struct {
	Slug            string
	Candidates      []string
	Speed           float64
	ModelLabel      string
	DefaultLanguage model.Language

	ChunkSize    int
	MaxPending   int
	StallTimeout time.Duration
	// StartTimeout bounds one playback start attempt while streaming.
	StartTimeout time.Duration
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	Article  ExcerptSource
	Caller   Caller
	Platform transport.Platform
	Handles  Handles
	Surface  Surface
	Metrics  *metrics.Metrics
}

// Controller runs at most one synthesis attempt at a time. Starting a new
// attempt cancels the previous one and waits for its teardown before the new
// attempt's request is sent. All methods are safe for concurrent use.
type Controller struct {
	opts  Options
	deps  Deps
	cache *cache.Resources

	root       context.Context
	cancelRoot context.CancelFunc

	// startMu serialises attempt hand-over; mu guards the fields below it.
	// subsMu is taken before mu, never after.
	startMu  sync.Mutex
	mu       sync.Mutex
	state    State
	selected model.Language
	errMsg   string
	cur      *attempt
	nextID   uint64
	closed   bool

	subsMu  sync.Mutex
	subs    map[int]chan Status
	nextSub int
}

// New creates a Controller.
func New(opts Options, deps Deps) *Controller {
	if opts.ModelLabel == "" {
		opts.ModelLabel = "auto-select"
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = model.English
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 2 * time.Second
	}
	root, cancel := context.WithCancel(context.Background())
	return &Controller{
		opts:       opts,
		deps:       deps,
		cache:      cache.New(deps.Handles),
		root:       root,
		cancelRoot: cancel,
		selected:   opts.DefaultLanguage,
		subs:       make(map[int]chan Status),
	}
}

// Cache exposes the per-language entries.
func (c *Controller) Cache() *cache.Resources {
	return c.cache
}

// Play is the primary user action for lang: a cached result is attached and
// played without a request, otherwise a new attempt starts with autoplay.
func (c *Controller) Play(ctx context.Context, lang model.Language) error {
	if err := validate(lang); err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.selected = lang
	c.clearErrorLocked()
	if a := c.cur; a != nil && a.lang == lang {
		a.autoplay = true
		url := a.url
		c.mu.Unlock()
		slog.Debug("Player: play requested while loading", "lang", lang, "published", url != "")
		if url != "" {
			c.playAttached(ctx, url)
		}
		c.notify()
		return nil
	}
	c.mu.Unlock()

	if e, ok := c.cache.Get(lang); ok {
		c.deps.Surface.Attach(e.URL, e.MimeType)
		c.notify()
		c.playAttached(ctx, e.URL)
		return nil
	}
	return c.start(lang, true, false)
}

// Refresh discards the cached result for lang and requests a new one.
func (c *Controller) Refresh(lang model.Language) error {
	if err := validate(lang); err != nil {
		return err
	}
	c.mu.Lock()
	c.selected = lang
	c.clearErrorLocked()
	c.mu.Unlock()
	return c.start(lang, true, true)
}

// SelectLanguage makes lang the displayed language. Work in flight for another
// language is cancelled. A cached result is attached, and played when
// userInitiated; without one, a user-initiated selection starts an attempt.
func (c *Controller) SelectLanguage(lang model.Language, userInitiated bool) error {
	if err := validate(lang); err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.selected = lang
	c.clearErrorLocked()
	other := c.cur != nil && c.cur.lang != lang
	loadingSame := c.cur != nil && c.cur.lang == lang
	c.mu.Unlock()

	if other {
		c.cancelCurrent()
	}

	if e, ok := c.cache.Get(lang); ok {
		c.deps.Surface.Attach(e.URL, e.MimeType)
		c.notify()
		if userInitiated {
			c.playAttached(c.root, e.URL)
		}
		return nil
	}

	c.deps.Surface.Detach()
	if userInitiated && !loadingSame {
		return c.start(lang, true, false)
	}
	c.notify()
	return nil
}

// Prefetch prepares lang in the background without playing it. It still
// cancels any attempt in flight. Failures are logged only.
func (c *Controller) Prefetch(lang model.Language) error {
	if err := validate(lang); err != nil {
		return err
	}
	if _, ok := c.cache.Get(lang); ok {
		return nil
	}
	c.mu.Lock()
	inFlight := c.cur != nil && c.cur.lang == lang
	c.mu.Unlock()
	if inFlight {
		return nil
	}
	return c.start(lang, false, false)
}

// Cancel stops the attempt in flight, if any, and returns to Idle.
func (c *Controller) Cancel() {
	c.cancelCurrent()
	c.mu.Lock()
	c.clearErrorLocked()
	c.mu.Unlock()
	c.notify()
}

// Wait blocks until the attempt in flight settles and returns the resulting status.
func (c *Controller) Wait(ctx context.Context) (Status, error) {
	c.mu.Lock()
	a := c.cur
	c.mu.Unlock()
	if a != nil {
		select {
		case <-a.done:
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}
	}
	return c.Snapshot(), nil
}

// Close cancels work in flight, detaches the surface and revokes every cached handle.
func (c *Controller) Close() {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	prev := c.cur
	c.mu.Unlock()

	c.cancelRoot()
	if prev != nil {
		<-prev.done
	}
	c.deps.Surface.Detach()
	c.cache.ClearAll()
	c.deps.Metrics.SetLiveHandles(0)

	c.subsMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()
	slog.Debug("Player: closed")
}

// Snapshot returns the current status.
func (c *Controller) Snapshot() Status {
	c.mu.Lock()
	st := Status{
		State:    c.state,
		Selected: c.selected,
		Error:    c.errMsg,
	}
	if c.cur != nil {
		st.Loading = c.cur.lang
	}
	c.mu.Unlock()

	label := labelGenerate
	if e, ok := c.cache.Get(st.Selected); ok {
		st.Entry = &e
		st.Notice = e.Notice()
		st.Hint = hintReady
		label = labelPlay
	}
	st.ButtonLabel = fmt.Sprintf("%s (%s)", label, st.Selected.Info().Label)
	st.ActionsDisabled = st.Loading != "" && st.Loading == st.Selected
	if st.ActionsDisabled {
		st.Progress = progressText
	}
	st.ModelLabel = c.opts.ModelLabel
	if st.Entry != nil && st.Entry.Model != "" {
		st.ModelLabel = st.Entry.Model
	}
	st.Cached = c.cache.Languages()
	return st
}

// Subscribe returns a channel receiving the latest status after every change.
// Slow readers only see the most recent status. The returned func unsubscribes.
func (c *Controller) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 1)
	c.subsMu.Lock()
	ch <- c.Snapshot()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subsMu.Unlock()

	return ch, func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		if _, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(ch)
		}
	}
}

// notify takes the snapshot under subsMu so deliveries stay in snapshot order.
func (c *Controller) notify() {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if len(c.subs) == 0 {
		return
	}
	st := c.Snapshot()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}

// clearErrorLocked returns an errored controller to Idle on the next user action.
func (c *Controller) clearErrorLocked() {
	if c.state == Error {
		c.state = Idle
	}
	c.errMsg = ""
}

func (c *Controller) playAttached(ctx context.Context, url string) {
	if c.deps.Surface.Attached() != url {
		return
	}
	if err := c.deps.Surface.Play(ctx); err != nil {
		slog.Warn("Player: playback start failed", "url", url, "error", err)
	}
}

func validate(lang model.Language) error {
	if code, err := model.ParseLanguage(string(lang)); err != nil || code != lang {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
	}
	return nil
}
