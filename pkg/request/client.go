// Package request wraps net/http with tracking, a shared user agent and
// backoff for idempotent fetches.
package request

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"

	"readaloud/pkg/tracker"
	"readaloud/pkg/version"
)

var defaultUserAgent = fmt.Sprintf("ReadAloud/%s (article narration player)", version.Version)

// Options configures a Client.
type Options struct {
	HeaderTimeout time.Duration // zero means no limit
	Retries       int           // GET attempts after the first
	BaseDelay     time.Duration
	UserAgent     string
}

// Client handles HTTP requests with tracking.
type Client struct {
	httpClient *http.Client
	tracker    *tracker.Tracker
	userAgent  string
	retries    int
	baseDelay  time.Duration
}

// New creates a new Client. The header timeout bounds the wait for response
// headers only, so long audio bodies can stream past it.
func New(t *tracker.Tracker, opts Options) *Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = opts.HeaderTimeout

	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	base := opts.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if t == nil {
		t = tracker.New()
	}
	return &Client{
		httpClient: &http.Client{Transport: tr},
		tracker:    t,
		userAgent:  ua,
		retries:    opts.Retries,
		baseDelay:  base,
	}
}

// Get fetches u, retrying with exponential backoff on network errors, 429 and 5xx.
func (c *Client) Get(ctx context.Context, u string) ([]byte, error) {
	host, err := hostOf(u)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)

		slog.Debug("Network Request", "host", req.URL.Host, "path", req.URL.Path, "attempt", attempt+1)
		body, status, err := c.fetch(req)
		if err == nil {
			c.tracker.TrackSuccess(host, status)
			return body, nil
		}
		c.tracker.TrackFailure(host, status, err)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(status) || attempt >= c.retries {
			return nil, err
		}

		sleepDur := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
		slog.Warn("Request failed, retrying", "url", u, "attempt", attempt+1, "status", status, "error", err, "delay", sleepDur)
		select {
		case <-time.After(sleepDur):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Client) fetch(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, resp.StatusCode, fmt.Errorf("api error: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read error: %w", err)
	}
	return body, resp.StatusCode, nil
}

// status 0 is a network error
func retryable(status int) bool {
	return status == 0 || status == http.StatusTooManyRequests || (status >= 500 && status < 600)
}

// PostJSON sends body once and returns the live response. The caller must
// close the response body. Any status is returned without error.
func (c *Client) PostJSON(ctx context.Context, u string, body []byte) (*http.Response, error) {
	host, err := hostOf(u)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	slog.Debug("Network Request", "method", "POST", "host", req.URL.Host, "path", req.URL.Path, "bytes", len(body))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.tracker.TrackFailure(host, 0, err)
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		c.tracker.TrackSuccess(host, resp.StatusCode)
	} else {
		c.tracker.TrackFailure(host, resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode))
	}
	return resp, nil
}

// Probe sends an OPTIONS request to u and returns the status code.
func (c *Client) Probe(ctx context.Context, u string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, u, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode, nil
}

// Tracker returns the tracker counting this client's requests.
func (c *Client) Tracker() *tracker.Tracker {
	return c.tracker
}

func hostOf(u string) (string, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("invalid url %q: missing host", u)
	}
	return parsed.Host, nil
}
