package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrBufferClosed is returned when appending to an ended or released buffer.
var ErrBufferClosed = errors.New("stream buffer closed")

// StreamBuffer is an incrementally filled audio source. A writer binds it to a
// mime type, appends chunks and ends it; readers opened at any time replay from
// the start and block until more bytes arrive or the buffer ends.
type StreamBuffer struct {
	mu       sync.Mutex
	cond     *sync.Cond
	accept   func(mime string) bool
	mime     string
	data     []byte
	ended    bool
	endErr   error
	released bool
}

// NewStreamBuffer creates a buffer that binds only mime types accepted by accept.
// A nil accept binds any type.
func NewStreamBuffer(accept func(mime string) bool) *StreamBuffer {
	b := &StreamBuffer{accept: accept}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Bind fixes the buffer's mime type. It fails if the type is not accepted or
// the buffer is already bound.
func (b *StreamBuffer) Bind(mime string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mime != "" {
		return fmt.Errorf("stream buffer already bound to %s", b.mime)
	}
	if b.accept != nil && !b.accept(mime) {
		return fmt.Errorf("mime %q not accepted", mime)
	}
	b.mime = mime
	return nil
}

// Mime returns the bound mime type.
func (b *StreamBuffer) Mime() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mime
}

// Append adds chunk to the buffer and wakes blocked readers.
func (b *StreamBuffer) Append(ctx context.Context, chunk []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ended || b.released {
		return ErrBufferClosed
	}
	b.data = append(b.data, chunk...)
	b.cond.Broadcast()
	return nil
}

// End marks the buffer complete. A non-nil err is reported to readers once
// they drain the buffered bytes. Only the first call has effect.
func (b *StreamBuffer) End(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ended {
		return
	}
	b.ended = true
	b.endErr = err
	b.cond.Broadcast()
}

// Abort ends the buffer with io.ErrUnexpectedEOF.
func (b *StreamBuffer) Abort() {
	b.End(io.ErrUnexpectedEOF)
}

// Release drops the buffered bytes and fails every reader.
func (b *StreamBuffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released = true
	b.ended = true
	b.data = nil
	b.cond.Broadcast()
}

// Len returns the number of bytes appended so far.
func (b *StreamBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Ended reports whether End, Abort or Release was called.
func (b *StreamBuffer) Ended() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ended
}

// Open implements Source.
func (b *StreamBuffer) Open() (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil, ErrReleased
	}
	return &streamReader{b: b}, nil
}

type streamReader struct {
	b      *StreamBuffer
	off    int
	closed bool
}

func (r *streamReader) Read(p []byte) (int, error) {
	b := r.b
	b.mu.Lock()
	defer b.mu.Unlock()

	for r.off >= len(b.data) && !b.ended && !r.closed {
		b.cond.Wait()
	}
	switch {
	case r.closed:
		return 0, io.ErrClosedPipe
	case b.released:
		return 0, ErrReleased
	case r.off < len(b.data):
		n := copy(p, b.data[r.off:])
		r.off += n
		return n, nil
	case b.endErr != nil:
		return 0, b.endErr
	default:
		return 0, io.EOF
	}
}

func (r *streamReader) Close() error {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	r.closed = true
	r.b.cond.Broadcast()
	return nil
}
