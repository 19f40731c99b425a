package audio

import (
	"sync"
	"sync/atomic"

	"github.com/gopxl/beep/v2"
)

const (
	prefetchFrames = 1024 // frames per decoded block
	prefetchDepth  = 32   // blocks decoded ahead of the speaker
)

// prefetcher decodes its source on a separate goroutine. The speaker side
// never waits for the source: when no decoded block is ready it plays
// silence, so a stalled download cannot hold the speaker lock.
type prefetcher struct {
	src    beep.StreamSeekCloser
	blocks chan [][2]float64
	stop   chan struct{}
	done   chan struct{}

	// pending is only touched by Stream.
	pending [][2]float64

	played    atomic.Int64
	underruns atomic.Int64

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

func newPrefetcher(src beep.StreamSeekCloser) *prefetcher {
	p := &prefetcher{
		src:    src,
		blocks: make(chan [][2]float64, prefetchDepth),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.decode()
	return p
}

func (p *prefetcher) decode() {
	defer close(p.done)
	defer close(p.blocks)
	for {
		buf := make([][2]float64, prefetchFrames)
		n, ok := p.src.Stream(buf)
		if n > 0 {
			select {
			case p.blocks <- buf[:n]:
			case <-p.stop:
				return
			}
		}
		if !ok {
			if err := p.src.Err(); err != nil {
				p.errMu.Lock()
				p.err = err
				p.errMu.Unlock()
			}
			return
		}
	}
}

// Stream implements beep.Streamer. It reports false only once the source is
// exhausted and every decoded frame has been played.
func (p *prefetcher) Stream(samples [][2]float64) (int, bool) {
	filled := 0
	for filled < len(samples) {
		if len(p.pending) == 0 {
			select {
			case blk, ok := <-p.blocks:
				if !ok {
					p.played.Add(int64(filled))
					return filled, filled > 0
				}
				p.pending = blk
			default:
				p.played.Add(int64(filled))
				p.underruns.Add(1)
				clear(samples[filled:])
				return len(samples), true
			}
		}
		n := copy(samples[filled:], p.pending)
		p.pending = p.pending[n:]
		filled += n
	}
	p.played.Add(int64(filled))
	return filled, true
}

// Err implements beep.Streamer.
func (p *prefetcher) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

// Position returns the number of source frames handed to the speaker.
func (p *prefetcher) Position() int {
	return int(p.played.Load())
}

// Len returns the source length in frames, as reported by the decoder.
func (p *prefetcher) Len() int {
	return p.src.Len()
}

// Underruns returns how often the speaker found nothing decoded.
func (p *prefetcher) Underruns() int64 {
	return p.underruns.Load()
}

// Close stops decoding and closes the source. Closing the source unblocks a
// decoder waiting on a stream read.
func (p *prefetcher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.stop)
		err = p.src.Close()
	})
	return err
}
