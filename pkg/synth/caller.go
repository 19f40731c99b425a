package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"readaloud/pkg/endpoint"
	"readaloud/pkg/model"
)

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 64 * 1024

// Doer sends one JSON POST. The caller owns the returned body.
type Doer interface {
	PostJSON(ctx context.Context, url string, body []byte) (*http.Response, error)
}

// Attempt records one candidate call.
type Attempt struct {
	Endpoint string
	Status   int
	Err      error
	Duration time.Duration

	Language model.Language
	Slug     string
	Chars    int
}

// Response is the first successful candidate's response.
type Response struct {
	*http.Response
	Endpoint string
	Failed   []Attempt // candidates tried before Endpoint, in order
}

// Caller tries candidate endpoints in order until one answers 2xx.
type Caller struct {
	client  Doer
	origin  string
	observe func(Attempt)
}

// NewCaller creates a Caller. Relative candidates are resolved against origin.
func NewCaller(client Doer, origin string) *Caller {
	return &Caller{client: client, origin: origin}
}

// OnAttempt registers fn to be told about every candidate call.
func (c *Caller) OnAttempt(fn func(Attempt)) {
	c.observe = fn
}

// Call posts req to each candidate in order and returns the first 2xx response.
// Non-2xx answers and network failures move on to the next candidate; no
// candidate is retried. Cancellation of ctx stops the loop immediately.
func (c *Caller) Call(ctx context.Context, candidates []string, req Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode synthesis request: %w", err)
	}

	chars := utf8.RuneCountInString(req.Text)
	var (
		failed  []Attempt
		lastMsg string
		lastErr error
	)
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		url := endpoint.Absolute(cand, c.origin)
		start := time.Now()
		resp, err := c.client.PostJSON(ctx, url, payload)
		att := Attempt{
			Endpoint: url,
			Duration: time.Since(start),
			Language: req.Language,
			Slug:     req.Slug,
			Chars:    chars,
		}

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			att.Err = err
			lastErr, lastMsg = err, err.Error()
		} else if resp.StatusCode < 200 || resp.StatusCode > 299 {
			att.Status = resp.StatusCode
			lastMsg = errorMessage(resp)
			lastErr = fmt.Errorf("%s: status %d", url, resp.StatusCode)
			att.Err = lastErr
		} else {
			att.Status = resp.StatusCode
			c.record(att, req)
			return &Response{Response: resp, Endpoint: url, Failed: failed}, nil
		}

		c.record(att, req)
		failed = append(failed, att)
		slog.Warn("Synthesis endpoint failed", "endpoint", url, "status", att.Status, "error", lastMsg)
	}

	if lastMsg == "" {
		lastMsg = DefaultFailureMessage
	}
	return nil, &Failure{Kind: ErrEndpointsExhausted, Message: lastMsg, Cause: lastErr}
}

func (c *Caller) record(att Attempt, req Request) {
	LogAttempt(att.Endpoint, req, att.Status, att.Err)
	if c.observe != nil {
		c.observe(att)
	}
}

// errorMessage consumes and closes a failed response, preferring a JSON
// "error" field, then the plain body, then the status code.
func errorMessage(resp *http.Response) string {
	defer resp.Body.Close()
	msg := fmt.Sprintf("Request failed with %d", resp.StatusCode)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return msg
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if e := jsonError(data); e != "" {
			return e
		}
		return msg
	}
	if text := strings.TrimSpace(string(data)); text != "" {
		return text
	}
	return msg
}

func jsonError(data []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	return payload.Error
}

// CheckAudio verifies that resp carries audio and returns its normalized mime.
// A non-audio response is consumed and closed.
func CheckAudio(resp *http.Response) (string, error) {
	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "audio/") {
		return ResolveMime(ct), nil
	}
	defer resp.Body.Close()

	shown := ct
	if shown == "" {
		shown = "unknown"
	}
	msg := fmt.Sprintf("Unexpected response type (%s)", shown)
	if data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)); err == nil {
		if e := jsonError(data); e != "" {
			msg = e
		}
	}
	return "", &Failure{Kind: ErrUnexpectedContentType, Message: msg}
}

// IsFailure reports whether err is a Failure and returns it.
func IsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
