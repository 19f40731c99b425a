package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"readaloud/pkg/logging"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Defaults used when a Pump field is zero.
const (
	DefaultChunkSize    = 16 * 1024
	DefaultMaxPending   = 32
	DefaultStallTimeout = 20 * time.Second
)

var errStalled = errors.New("no data received before stall timeout")

// Starter attempts to begin playback once data is flowing.
type Starter interface {
	TryStart(ctx context.Context) error
}

// StarterFunc adapts a function to Starter.
type StarterFunc func(ctx context.Context) error

// TryStart implements Starter.
func (f StarterFunc) TryStart(ctx context.Context) error { return f(ctx) }

// Pump moves a response body into a bound Sink.
type Pump struct {
	Sink    Sink
	Starter Starter

	ChunkSize    int
	MaxPending   int
	StallTimeout time.Duration
}

type eventKind int

const (
	chunkReceived eventKind = iota
	sinkReady
	startResult
	readerDone
	readFailed
)

func (k eventKind) String() string {
	switch k {
	case chunkReceived:
		return "chunkReceived"
	case sinkReady:
		return "sinkReady"
	case startResult:
		return "startResult"
	case readerDone:
		return "readerDone"
	default:
		return "readFailed"
	}
}

type event struct {
	kind  eventKind
	chunk []byte
	err   error
}

// Run pumps body into the sink until the body ends, fails or ctx is cancelled.
// It owns body and closes it before returning. A cancelled ctx aborts the sink
// and returns the context error; a failed read ends the sink with the error and
// returns ErrStreamInterrupted.
func (p *Pump) Run(ctx context.Context, body io.ReadCloser) error {
	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { body.Close() })
	defer stop()
	defer body.Close()

	events := make(chan event)
	sem := semaphore.NewWeighted(int64(p.maxPending()))

	g.Go(func() error { return p.read(gctx, body, events, sem) })
	g.Go(func() error { return p.loop(gctx, events, sem) })

	err := g.Wait()
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// read is the only goroutine touching body. It holds one semaphore slot per
// queued chunk so a slow sink stops it from reading further.
func (p *Pump) read(ctx context.Context, body io.Reader, events chan<- event, sem *semaphore.Weighted) error {
	var stalled atomic.Bool
	for {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil
		}

		buf := make([]byte, p.chunkSize())
		timer := time.AfterFunc(p.stallTimeout(), func() {
			stalled.Store(true)
			if c, ok := body.(io.Closer); ok {
				c.Close()
			}
		})
		n, err := body.Read(buf)
		timer.Stop()

		if n > 0 {
			if !send(ctx, events, event{kind: chunkReceived, chunk: buf[:n]}) {
				return nil
			}
		} else {
			sem.Release(1)
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			send(ctx, events, event{kind: readerDone})
			return nil
		case stalled.Load():
			send(ctx, events, event{kind: readFailed, err: errStalled})
			return nil
		default:
			send(ctx, events, event{kind: readFailed, err: err})
			return nil
		}
	}
}

// loop owns the queue and the sink. Appends and start attempts run on their
// own goroutines and report back as events, so a start that waits for more
// data never holds up the chunks it is waiting for. At most one append and
// one start attempt are in flight.
func (p *Pump) loop(ctx context.Context, events chan event, sem *semaphore.Weighted) error {
	var (
		queue      [][]byte
		appending  bool
		readerEnd  bool
		ended      bool
		appended   int
		totalBytes int

		started  bool
		starting bool
		progress int // bumped per append and at end; a new start needs progress
		tried    int // progress seen by the last start attempt
	)

	maybeStart := func() {
		if started || starting || p.Starter == nil || progress == tried {
			return
		}
		starting = true
		tried = progress
		go func() {
			err := p.Starter.TryStart(ctx)
			send(ctx, events, event{kind: startResult, err: err})
		}()
	}

	for {
		select {
		case <-ctx.Done():
			p.Sink.Abort()
			return ctx.Err()
		case ev := <-events:
			logging.TraceDefault("Pump: event", "kind", ev.kind, "queued", len(queue))
			switch ev.kind {
			case chunkReceived:
				queue = append(queue, ev.chunk)
			case readerDone:
				readerEnd = true
			case readFailed:
				if ctx.Err() != nil {
					p.Sink.Abort()
					return ctx.Err()
				}
				p.Sink.End(ev.err)
				slog.Warn("Pump: read failed", "error", ev.err, "appended", appended)
				return fmt.Errorf("%w: %v", ErrStreamInterrupted, ev.err)
			case sinkReady:
				appending = false
				if ev.err != nil {
					p.Sink.Abort()
					return fmt.Errorf("%w: %v", ErrStreamInterrupted, ev.err)
				}
				appended++
				progress++
				maybeStart()
			case startResult:
				starting = false
				if ev.err != nil {
					slog.Debug("Pump: playback start deferred", "error", ev.err)
				} else {
					started = true
				}
				maybeStart()
			}
		}

		if !appending && len(queue) > 0 {
			chunk := queue[0]
			queue[0] = nil
			queue = queue[1:]
			totalBytes += len(chunk)
			appending = true
			sem.Release(1)
			go func() {
				err := p.Sink.Append(ctx, chunk)
				send(ctx, events, event{kind: sinkReady, err: err})
			}()
			continue
		}
		if readerEnd && !appending && !ended {
			// Ending the sink lets a pending start see the whole stream.
			p.Sink.End(nil)
			ended = true
			progress++
			maybeStart()
		}
		if ended && !starting {
			slog.Debug("Pump: stream complete", "chunks", appended, "bytes", totalBytes, "started", started)
			return nil
		}
	}
}

func send(ctx context.Context, events chan<- event, ev event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Pump) chunkSize() int {
	if p.ChunkSize > 0 {
		return p.ChunkSize
	}
	return DefaultChunkSize
}

func (p *Pump) maxPending() int {
	if p.MaxPending > 0 {
		return p.MaxPending
	}
	return DefaultMaxPending
}

func (p *Pump) stallTimeout() time.Duration {
	if p.StallTimeout > 0 {
		return p.StallTimeout
	}
	return DefaultStallTimeout
}
