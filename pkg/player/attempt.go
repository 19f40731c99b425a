package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"readaloud/pkg/cache"
	"readaloud/pkg/metrics"
	"readaloud/pkg/model"
	"readaloud/pkg/synth"
	"readaloud/pkg/transport"
)

// attempt is the owned state of one session, from request to settle.
// lang, ctx, cancel and done never change; autoplay and url are guarded by
// the controller's mu.
type attempt struct {
	id     uint64
	lang   model.Language
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	autoplay bool
	url      string // handle published to the cache, "" until then
	mime     string
	started  time.Time
}

var errAutoplayOff = errors.New("autoplay not requested")

// start hands over to a new attempt for lang. The previous attempt is
// cancelled and fully torn down before the new one is created.
func (c *Controller) start(lang model.Language, autoplay, force bool) error {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	prev := c.cur
	c.mu.Unlock()

	if prev != nil {
		prev.cancel()
		<-prev.done
	}

	if force {
		if e, ok := c.cache.Get(lang); ok {
			if c.deps.Surface.Attached() == e.URL {
				c.deps.Surface.Detach()
			}
			c.cache.Clear(lang)
		}
	}

	ctx, cancel := context.WithCancel(c.root)
	c.mu.Lock()
	c.nextID++
	a := &attempt{
		id:       c.nextID,
		lang:     lang,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		autoplay: autoplay,
		started:  time.Now(),
	}
	c.cur = a
	c.state = Requesting
	c.errMsg = ""
	c.mu.Unlock()

	slog.Debug("Player: attempt started", "id", a.id, "lang", lang, "autoplay", autoplay, "refresh", force)
	c.notify()
	go c.run(a)
	return nil
}

// cancelCurrent cancels the attempt in flight and waits for its teardown.
func (c *Controller) cancelCurrent() {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	a := c.cur
	c.mu.Unlock()
	if a == nil {
		return
	}
	a.cancel()
	<-a.done
}

func (c *Controller) run(a *attempt) {
	defer close(a.done)
	defer a.cancel()

	mode, err := c.fetch(a)
	c.settle(a, mode, err)
}

func (c *Controller) fetch(a *attempt) (transport.Mode, error) {
	ex, err := c.deps.Article.Excerpt(a.ctx)
	if err != nil {
		return transport.Buffered, fmt.Errorf("%w: %w", errArticleUnavailable, err)
	}
	if ex.Empty() {
		return transport.Buffered, errEmptyExcerpt
	}

	format, _ := synth.PreferredFormat(c.deps.Platform)
	req := synth.NewRequest(c.opts.Slug, a.lang, ex.Text, format, c.opts.Speed)

	resp, err := c.deps.Caller.Call(a.ctx, c.opts.Candidates, req)
	if err != nil {
		return transport.Buffered, err
	}
	if len(resp.Failed) > 0 {
		slog.Info("Player: synthesis succeeded after fallback", "endpoint", resp.Endpoint, "failed", len(resp.Failed))
	}

	mime, err := synth.CheckAudio(resp.Response)
	if err != nil {
		return transport.Buffered, err
	}
	hasStream := resp.Body != nil && resp.Body != http.NoBody
	if resp.Body == nil {
		resp.Body = http.NoBody
	}
	body := &countingBody{ReadCloser: resp.Body, m: c.deps.Metrics}
	defer body.Close()

	meta := synth.ParseMetadata(resp.Header)
	meta.Truncated = meta.Truncated || ex.Truncated

	mode := transport.Negotiate(mime, c.deps.Platform, hasStream)
	c.deps.Metrics.TransportChosen(mode.String())
	if mode == transport.Streaming {
		err := c.stream(a, body, mime, meta)
		if !errors.Is(err, transport.ErrSinkRejected) {
			return transport.Streaming, err
		}
		slog.Debug("Player: sink rejected mime, falling back to buffered", "mime", mime)
		c.deps.Metrics.TransportChosen(transport.Buffered.String())
	}
	return transport.Buffered, c.buffered(a, body, mime, meta)
}

// stream binds a fresh sink, publishes its handle and pumps body into it.
// A bind failure returns ErrSinkRejected before anything is published.
func (c *Controller) stream(a *attempt, body io.ReadCloser, mime string, meta synth.Metadata) error {
	sink := c.deps.Platform.NewSink()
	if err := sink.Bind(mime); err != nil {
		return fmt.Errorf("%w: %v", transport.ErrSinkRejected, err)
	}

	c.setState(a, Streaming)
	url := c.deps.Handles.Create(sink, mime)
	c.publish(a, url, mime, meta, true)

	pump := &transport.Pump{
		Sink:         sink,
		Starter:      transport.StarterFunc(func(ctx context.Context) error { return c.tryStart(ctx, a) }),
		ChunkSize:    c.opts.ChunkSize,
		MaxPending:   c.opts.MaxPending,
		StallTimeout: c.opts.StallTimeout,
	}
	return pump.Run(a.ctx, body)
}

// buffered downloads body completely, publishes it and makes one playback attempt.
func (c *Controller) buffered(a *attempt, body io.Reader, mime string, meta synth.Metadata) error {
	c.setState(a, Buffering)
	res, err := transport.Download(a.ctx, body, mime, c.deps.Handles)
	if err != nil {
		return err
	}
	c.publish(a, res.URL, res.Mime, meta, false)
	if err := c.tryStart(a.ctx, a); err != nil && !errors.Is(err, errAutoplayOff) {
		slog.Warn("Player: autoplay failed", "lang", a.lang, "error", err)
	}
	return nil
}

// tryStart plays the attempt's handle when autoplay is wanted and the handle
// is on the surface.
func (c *Controller) tryStart(ctx context.Context, a *attempt) error {
	c.mu.Lock()
	autoplay, url := a.autoplay, a.url
	c.mu.Unlock()
	if !autoplay {
		return errAutoplayOff
	}
	if c.deps.Surface.Attached() != url {
		return fmt.Errorf("handle %s not attached", url)
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.StartTimeout)
	defer cancel()
	return c.deps.Surface.Play(ctx)
}

// publish stores the entry for the attempt's language and attaches it when
// that language is on display.
func (c *Controller) publish(a *attempt, url, mime string, meta synth.Metadata, streaming bool) {
	c.cache.Put(a.lang, cache.Entry{
		URL:       url,
		FetchedAt: time.Now(),
		MimeType:  mime,
		Streaming: streaming,
		Metadata:  meta,
	})

	c.mu.Lock()
	a.url, a.mime = url, mime
	show := c.selected == a.lang
	c.mu.Unlock()

	if show {
		c.deps.Surface.Attach(url, mime)
	}
	mode := transport.Buffered
	if streaming {
		mode = transport.Streaming
	}
	c.deps.Metrics.FirstAudio(mode.String(), time.Since(a.started))
	c.deps.Metrics.SetLiveHandles(c.cache.Len())
	c.notify()
}

func (c *Controller) setState(a *attempt, s State) {
	c.mu.Lock()
	if c.cur == a {
		c.state = s
	}
	c.mu.Unlock()
	c.notify()
}

// settle is the single teardown point of an attempt. Cancelled and failed
// attempts drop whatever handle they published; only failures that concern
// the reader set an error message.
func (c *Controller) settle(a *attempt, mode transport.Mode, err error) {
	cancelled := err != nil && a.ctx.Err() != nil
	if err != nil {
		c.mu.Lock()
		url := a.url
		c.mu.Unlock()
		if url != "" {
			if c.deps.Surface.Attached() == url {
				c.deps.Surface.Detach()
			}
			c.cache.ClearIf(a.lang, url)
		}
	}

	msg := ""
	if !cancelled {
		msg = userMessage(err)
	}

	c.mu.Lock()
	if c.cur == a {
		c.cur = nil
	}
	outcome := metrics.OutcomeReady
	switch {
	case err == nil:
		c.state = Ready
	case cancelled:
		c.state = Idle
		outcome = metrics.OutcomeCancelled
	case errors.Is(err, errEmptyExcerpt):
		c.state = Idle
		outcome = metrics.OutcomeEmpty
	case errors.Is(err, errArticleUnavailable):
		c.state = Idle
		outcome = metrics.OutcomeError
	case !a.autoplay:
		// Background work never surfaces errors.
		c.state = Idle
		outcome = metrics.OutcomeError
	default:
		c.state = Error
		c.errMsg = msg
		outcome = metrics.OutcomeError
	}
	state := c.state
	c.mu.Unlock()

	switch outcome {
	case metrics.OutcomeError:
		slog.Warn("Player: attempt failed", "id", a.id, "lang", a.lang, "mode", mode, "error", err, "shown", state == Error)
	case metrics.OutcomeCancelled:
		slog.Debug("Player: attempt cancelled", "id", a.id, "lang", a.lang)
	case metrics.OutcomeEmpty:
		slog.Info("Player: nothing to narrate", "lang", a.lang)
	default:
		slog.Info("Player: audio ready", "id", a.id, "lang", a.lang, "mode", mode, "elapsed", time.Since(a.started).Round(time.Millisecond))
	}
	c.deps.Metrics.SessionFinished(a.lang.String(), outcome)
	c.deps.Metrics.SetLiveHandles(c.cache.Len())
	c.notify()
}

// countingBody reports received bytes to metrics.
type countingBody struct {
	io.ReadCloser
	m *metrics.Metrics
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.m.BytesReceived(n)
	return n, err
}
