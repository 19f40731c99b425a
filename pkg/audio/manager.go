// Package audio is the playback surface: it plays attached media handles
// through the local speaker.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"readaloud/pkg/config"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
)

var (
	// ErrNothingAttached is returned by Play when no handle is attached.
	ErrNothingAttached = errors.New("no audio attached")
	// ErrSuperseded is returned by Play when another handle was attached while decoding.
	ErrSuperseded = errors.New("playback superseded")
)

// Opener resolves a playable handle to a reader and its mime type.
type Opener interface {
	Open(url string) (io.ReadCloser, string, error)
}

// Manager plays one attached handle at a time using gopxl/beep.
type Manager struct {
	mu                 sync.RWMutex
	opener             Opener
	filter             config.SpeechFilterConfig
	attachedURL        string
	attachedMime       string
	playingURL         string
	ctrl               *beep.Ctrl
	volume             float64
	isPaused           bool
	speakerInitialized bool
	currentSampleRate  beep.SampleRate
	streamer           *effects.Volume
	track              *prefetcher
	trackFormat        beep.Format
	gen                uint64
	onComplete         func(url string)
}

// New creates a Manager reading handles from opener.
func New(opener Opener, cfg *config.PlayerConfig) *Manager {
	m := &Manager{opener: opener, volume: 1.0}
	if cfg != nil {
		m.filter = cfg.SpeechFilter
		m.volume = clampVolume(cfg.Volume)
	}
	return m
}

// SetOnComplete registers fn to run when an attached handle plays to its end.
func (m *Manager) SetOnComplete(fn func(url string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onComplete = fn
}

// Attach makes url the current handle. Playback of a different handle stops.
func (m *Manager) Attach(url, mime string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attachedURL == url {
		return
	}
	m.stopLocked()
	m.attachedURL = url
	m.attachedMime = mime
	slog.Debug("Audio: attached", "url", url, "mime", mime)
}

// Detach stops playback and forgets the current handle.
func (m *Manager) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
	m.attachedURL = ""
	m.attachedMime = ""
}

// Attached returns the current handle, or "" when none is attached.
func (m *Manager) Attached() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.attachedURL
}

// Play starts the attached handle. It returns once the audio header has been
// decoded and output has begun; the audio itself plays in the background.
// Playing an already playing handle is a no-op, a paused one resumes.
func (m *Manager) Play(ctx context.Context) error {
	m.mu.Lock()
	url, mime := m.attachedURL, m.attachedMime
	if url == "" {
		m.mu.Unlock()
		return ErrNothingAttached
	}
	if m.ctrl != nil && m.playingURL == url {
		m.resumeLocked()
		m.mu.Unlock()
		return nil
	}
	if !CanDecode(mime) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, mime)
	}
	m.stopLocked()
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	streamer, format, err := m.open(ctx, url, mime)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.attachedURL != url {
		streamer.Close()
		return ErrSuperseded
	}

	// Initialize speaker once at 48kHz if not done
	if err := m.ensureSpeakerInitialized(); err != nil {
		streamer.Close()
		return err
	}

	track := newPrefetcher(streamer)
	var final beep.Streamer = beep.Resample(3, format.SampleRate, m.currentSampleRate, track)
	if m.filter.Enabled {
		final = NewSpeechFilter(final, float64(m.currentSampleRate), m.filter.LowCutoff, m.filter.HighCutoff)
	}

	m.streamer = &effects.Volume{
		Streamer: final,
		Base:     2,
		Volume:   volumeToPower(m.volume),
		Silent:   m.volume <= 0.01,
	}
	m.track = track
	m.trackFormat = format
	m.playingURL = url
	m.ctrl = &beep.Ctrl{Streamer: m.streamer}
	m.isPaused = false

	speaker.Play(beep.Seq(m.ctrl, beep.Callback(func() {
		// Leave the speaker goroutine before taking the manager lock.
		go m.finished(gen, url, track)
	})))

	slog.Debug("Audio: playing", "url", url, "mime", mime, "rate", format.SampleRate)
	return nil
}

// open decodes the handle's header, giving up when ctx ends. Streaming
// handles block in Read until bytes arrive, so decoding runs aside.
func (m *Manager) open(ctx context.Context, url, mime string) (beep.StreamSeekCloser, beep.Format, error) {
	if m.opener == nil {
		return nil, beep.Format{}, ErrNothingAttached
	}
	rc, _, err := m.opener.Open(url)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("failed to open audio: %w", err)
	}

	type result struct {
		s   beep.StreamSeekCloser
		f   beep.Format
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, f, err := decode(rc, mime)
		done <- result{s, f, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			rc.Close()
			slog.Error("Failed to decode audio", "url", url, "mime", mime, "error", r.err)
			return nil, beep.Format{}, fmt.Errorf("failed to decode audio: %w", r.err)
		}
		return r.s, r.f, nil
	case <-ctx.Done():
		rc.Close()
		go func() {
			if r := <-done; r.err == nil {
				r.s.Close()
			}
		}()
		return nil, beep.Format{}, ctx.Err()
	}
}

func (m *Manager) finished(gen uint64, url string, track *prefetcher) {
	m.mu.Lock()
	current := gen == m.gen && m.playingURL == url
	if current {
		m.ctrl = nil
		m.streamer = nil
		m.track = nil
		m.playingURL = ""
		m.isPaused = false
	}
	cb := m.onComplete
	m.mu.Unlock()

	if !current {
		return
	}
	if err := track.Err(); err != nil {
		slog.Warn("Audio: playback ended with error", "url", url, "error", err)
	}
	if n := track.Underruns(); n > 0 {
		slog.Debug("Audio: stream underruns", "url", url, "count", n)
	}
	track.Close()
	if cb != nil {
		cb(url)
	}
}

// Pause pauses current playback.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctrl != nil {
		speaker.Lock()
		m.ctrl.Paused = true
		speaker.Unlock()
		m.isPaused = true
	}
}

// Resume resumes paused playback.
func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumeLocked()
}

func (m *Manager) resumeLocked() {
	if m.ctrl != nil && m.isPaused {
		speaker.Lock()
		m.ctrl.Paused = false
		speaker.Unlock()
		m.isPaused = false
	}
}

// Stop stops current playback. The handle stays attached.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Manager) stopLocked() {
	m.gen++
	if m.ctrl != nil {
		speaker.Clear()
		m.ctrl = nil
		m.isPaused = false
	}
	if m.track != nil {
		m.track.Close()
		m.track = nil
	}
	m.streamer = nil
	m.playingURL = ""
}

func (m *Manager) ensureSpeakerInitialized() error {
	const targetSampleRate = 48000
	if !m.speakerInitialized {
		err := speaker.Init(beep.SampleRate(targetSampleRate), beep.SampleRate(targetSampleRate).N(time.Second/10))
		if err != nil {
			slog.Error("Failed to initialize speaker", "error", err)
			return err
		}
		m.speakerInitialized = true
		m.currentSampleRate = beep.SampleRate(targetSampleRate)
	}
	return nil
}

// Shutdown stops playback and detaches.
func (m *Manager) Shutdown() {
	m.Detach()
}

// IsPlaying returns true if audio is currently playing.
func (m *Manager) IsPlaying() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ctrl != nil && !m.isPaused
}

// IsBusy returns true if audio is loaded (playing or paused).
func (m *Manager) IsBusy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ctrl != nil
}

// IsPaused returns true if playback is paused.
func (m *Manager) IsPaused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isPaused
}

// SetVolume sets playback volume (0.0 to 1.0).
func (m *Manager) SetVolume(vol float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	vol = clampVolume(vol)
	m.volume = vol

	if m.streamer != nil {
		speaker.Lock()
		m.streamer.Volume = volumeToPower(vol)
		m.streamer.Silent = vol <= 0.01
		speaker.Unlock()
	}
}

// Volume returns current volume level.
func (m *Manager) Volume() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.volume
}

// Position returns the current playback position.
func (m *Manager) Position() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.track == nil || m.trackFormat.SampleRate == 0 {
		return 0
	}
	return m.trackFormat.SampleRate.D(m.track.Position())
}

// Duration returns the total duration of the current audio, or 0 while it is
// still streaming in and its length is unknown.
func (m *Manager) Duration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.track == nil || m.trackFormat.SampleRate == 0 {
		return 0
	}
	n := m.track.Len()
	if n <= 0 {
		return 0
	}
	return m.trackFormat.SampleRate.D(n)
}
