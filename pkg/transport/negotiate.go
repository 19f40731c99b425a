// Package transport turns a synthesis response body into a playable handle,
// either incrementally through a Sink or as one buffered payload.
package transport

import (
	"context"
	"errors"

	"readaloud/pkg/media"
)

// Mode is the delivery path chosen for a response.
type Mode int

const (
	Buffered Mode = iota
	Streaming
)

func (m Mode) String() string {
	if m == Streaming {
		return "streaming"
	}
	return "buffered"
}

var (
	// ErrStreamInterrupted is returned when the body fails mid-transfer.
	ErrStreamInterrupted = errors.New("audio streaming was interrupted")
	// ErrSinkRejected is returned when a sink refuses the mime type at bind time.
	// The caller is expected to fall back to Buffered on the same body.
	ErrSinkRejected = errors.New("sink rejected mime type")
)

// Capabilities describes what the local platform can play.
type Capabilities interface {
	// SupportsIncremental reports whether mime can be played while still arriving.
	SupportsIncremental(mime string) bool
	// CanDecode reports whether mime can be played at all.
	CanDecode(mime string) bool
}

// Sink is an incremental audio destination that is also a playable source.
type Sink interface {
	media.Source
	Bind(mime string) error
	// Append blocks until chunk is accepted.
	Append(ctx context.Context, chunk []byte) error
	End(err error)
	Abort()
}

// Platform provides capabilities and fresh sinks.
type Platform interface {
	Capabilities
	NewSink() Sink
}

// Negotiate picks Streaming only when the platform supports incremental
// playback of mime and the response exposes a byte stream.
func Negotiate(mime string, caps Capabilities, hasStream bool) Mode {
	if hasStream && caps != nil && caps.SupportsIncremental(mime) {
		return Streaming
	}
	return Buffered
}
