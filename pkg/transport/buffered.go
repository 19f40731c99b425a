package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"readaloud/pkg/media"
)

// Registrar issues playable handles.
type Registrar interface {
	Create(src media.Source, mime string) string
}

// Result describes a fully downloaded payload.
type Result struct {
	URL  string
	Mime string
	Size int
}

// Download reads body to the end and registers it as one handle.
func Download(ctx context.Context, body io.Reader, mime string, reg Registrar) (Result, error) {
	data, err := io.ReadAll(body)
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to read audio body: %w", err)
	}

	url := reg.Create(media.Bytes(data), mime)
	slog.Debug("Transport: buffered download complete", "bytes", len(data), "mime", mime)
	return Result{URL: url, Mime: mime, Size: len(data)}, nil
}
