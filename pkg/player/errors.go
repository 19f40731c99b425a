package player

import (
	"context"
	"errors"

	"readaloud/pkg/synth"
	"readaloud/pkg/transport"
)

var (
	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("player closed")
	// ErrUnknownLanguage is returned for codes outside model.Languages.
	ErrUnknownLanguage = errors.New("unknown language")

	errEmptyExcerpt = errors.New("article has no text to narrate")
	// errArticleUnavailable wraps failures to read the article text. They are
	// logged and never shown to the reader.
	errArticleUnavailable = errors.New("article unavailable")
)

// Messages shown to the reader.
const (
	MsgInterrupted = "Audio streaming was interrupted."
	MsgDefault     = "Failed to generate audio"
)

// userMessage maps an attempt error to the text shown to the reader.
// It returns "" for errors that stay silent.
func userMessage(err error) string {
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, errEmptyExcerpt),
		errors.Is(err, errArticleUnavailable),
		errors.Is(err, transport.ErrSinkRejected):
		return ""
	case errors.Is(err, transport.ErrStreamInterrupted):
		return MsgInterrupted
	}
	if f, ok := synth.IsFailure(err); ok && f.Message != "" {
		return f.Message
	}
	return MsgDefault
}
