package audio

import (
	"errors"
	"io"
	"math"
	"strings"

	"readaloud/pkg/media"
	"readaloud/pkg/transport"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
)

// ErrUnsupportedFormat is returned for mime types the speaker cannot decode.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

func baseMime(mime string) string {
	base, _, _ := strings.Cut(mime, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

// CanDecode reports whether mime can be played at all.
func CanDecode(mime string) bool {
	switch baseMime(mime) {
	case "audio/mpeg", "audio/mp3", "audio/wav", "audio/wave", "audio/x-wav":
		return true
	}
	return false
}

// SupportsIncremental reports whether mime can start playing before the
// whole payload has arrived. WAV headers carry the data length, so only MP3
// frames qualify.
func SupportsIncremental(mime string) bool {
	switch baseMime(mime) {
	case "audio/mpeg", "audio/mp3":
		return true
	}
	return false
}

func decode(rc io.ReadCloser, mime string) (beep.StreamSeekCloser, beep.Format, error) {
	switch baseMime(mime) {
	case "audio/mpeg", "audio/mp3":
		return mp3.Decode(rc)
	case "audio/wav", "audio/wave", "audio/x-wav":
		return wav.Decode(rc)
	default:
		return nil, beep.Format{}, ErrUnsupportedFormat
	}
}

// Platform reports the local speaker's capabilities and hands out stream sinks.
type Platform struct{}

// CanDecode implements transport.Capabilities.
func (Platform) CanDecode(mime string) bool { return CanDecode(mime) }

// SupportsIncremental implements transport.Capabilities.
func (Platform) SupportsIncremental(mime string) bool { return SupportsIncremental(mime) }

// NewSink returns a stream buffer that binds only incrementally playable types.
func (Platform) NewSink() transport.Sink {
	return media.NewStreamBuffer(SupportsIncremental)
}

func clampVolume(vol float64) float64 {
	if vol < 0 {
		return 0
	}
	if vol > 1 {
		return 1
	}
	return vol
}

// volumeToPower maps a linear 0..1 volume onto beep's base-2 exponent.
func volumeToPower(vol float64) float64 {
	if vol <= 0.01 {
		return -10
	}
	return math.Log2(vol)
}
