// Package synth talks to the remote text-to-speech service.
package synth

import (
	"math"
	"strings"

	"readaloud/pkg/model"
	"readaloud/pkg/transport"
)

// Mime types the service can produce.
const (
	MP3Mime  = "audio/mpeg"
	OpusMime = "audio/ogg; codecs=opus"
)

// Request formats.
const (
	FormatMP3  = "mp3"
	FormatOpus = "opus"
)

// Request is the JSON body sent to every candidate endpoint.
type Request struct {
	Slug           string         `json:"slug"`
	Language       model.Language `json:"language"`
	Text           string         `json:"text"`
	Format         string         `json:"format"`
	StreamFormat   string         `json:"stream_format"`
	ResponseFormat string         `json:"response_format"`
	Speed          float64        `json:"speed"`
}

// NewRequest builds a request for text in lang, encoded as format.
func NewRequest(slug string, lang model.Language, text, format string, speed float64) Request {
	return Request{
		Slug:           slug,
		Language:       lang,
		Text:           text,
		Format:         format,
		StreamFormat:   "audio",
		ResponseFormat: format,
		Speed:          ClampSpeed(speed),
	}
}

// ClampSpeed limits speed to [0.25, 4]. Non-finite values become 1.
func ClampSpeed(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 1
	}
	return math.Min(4, math.Max(0.25, v))
}

// PreferredFormat asks for opus only when the platform can both decode and
// stream it; mp3 otherwise.
func PreferredFormat(caps transport.Capabilities) (format, mime string) {
	if caps != nil && caps.CanDecode(OpusMime) && caps.SupportsIncremental(OpusMime) {
		return FormatOpus, OpusMime
	}
	return FormatMP3, MP3Mime
}

// ResolveMime normalizes a Content-Type header to "base; params".
// An empty header or base type yields audio/mpeg.
func ResolveMime(contentType string) string {
	base, params, _ := strings.Cut(contentType, ";")
	base = strings.TrimSpace(base)
	params = strings.TrimSpace(params)
	if base == "" {
		return MP3Mime
	}
	if params == "" {
		return base
	}
	return base + "; " + params
}
