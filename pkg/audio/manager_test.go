package audio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"readaloud/pkg/config"
	"readaloud/pkg/media"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.PlayerConfig
		want float64
	}{
		{"nil config", nil, 1.0},
		{"configured", &config.PlayerConfig{Volume: 0.4}, 0.4},
		{"clamped", &config.PlayerConfig{Volume: 3}, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(nil, tt.cfg)
			if m.Volume() != tt.want {
				t.Errorf("Volume() = %v, want %v", m.Volume(), tt.want)
			}
		})
	}
}

func TestManager_StateAccessors(t *testing.T) {
	tests := []struct {
		name   string
		action func(*Manager)
		check  func(*Manager) error
	}{
		{
			name:   "Default State",
			action: func(m *Manager) {},
			check: func(m *Manager) error {
				if m.IsPlaying() || m.IsBusy() || m.IsPaused() {
					return errors.New("expected idle manager")
				}
				if m.Position() != 0 || m.Duration() != 0 {
					return errors.New("expected zero position and duration")
				}
				return nil
			},
		},
		{
			name:   "Volume Clamping Low",
			action: func(m *Manager) { m.SetVolume(-0.5) },
			check: func(m *Manager) error {
				if m.Volume() != 0 {
					return errors.New("expected volume clamped to 0")
				}
				return nil
			},
		},
		{
			name:   "Volume Clamping High",
			action: func(m *Manager) { m.SetVolume(1.5) },
			check: func(m *Manager) error {
				if m.Volume() != 1 {
					return errors.New("expected volume clamped to 1")
				}
				return nil
			},
		},
		{
			name: "Attach and Detach",
			action: func(m *Manager) {
				m.Attach("blob:readaloud/a", "audio/mpeg")
				m.Attach("blob:readaloud/b", "audio/mpeg")
			},
			check: func(m *Manager) error {
				if m.Attached() != "blob:readaloud/b" {
					return errors.New("expected latest handle attached")
				}
				m.Detach()
				if m.Attached() != "" {
					return errors.New("expected nothing attached after Detach")
				}
				return nil
			},
		},
		{
			name: "Pause Resume Without Playback",
			action: func(m *Manager) {
				m.Pause()
				m.Resume()
				m.Stop()
			},
			check: func(m *Manager) error {
				if m.IsPaused() {
					return errors.New("pause without playback must not stick")
				}
				return nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(nil, nil)
			tt.action(m)
			if err := tt.check(m); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestPlay_Errors(t *testing.T) {
	reg := media.NewRegistry()
	m := New(reg, nil)

	if err := m.Play(context.Background()); !errors.Is(err, ErrNothingAttached) {
		t.Errorf("expected ErrNothingAttached, got %v", err)
	}

	url := reg.Create(media.Bytes("OggS"), "audio/ogg; codecs=opus")
	m.Attach(url, "audio/ogg; codecs=opus")
	if err := m.Play(context.Background()); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestPlay_CancelledWhileDecoding(t *testing.T) {
	reg := media.NewRegistry()
	buf := media.NewStreamBuffer(nil)
	url := reg.Create(buf, "audio/mpeg")

	m := New(reg, nil)
	m.Attach(url, "audio/mpeg")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	// No bytes ever arrive, so the decoder blocks until ctx ends.
	err := m.Play(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if m.IsBusy() {
		t.Error("manager must not be busy after a cancelled start")
	}
}

func TestCapabilities(t *testing.T) {
	tests := []struct {
		mime        string
		decode      bool
		incremental bool
	}{
		{"audio/mpeg", true, true},
		{"Audio/MPEG; charset=binary", true, true},
		{"audio/wav", true, false},
		{"audio/x-wav", true, false},
		{"audio/ogg; codecs=opus", false, false},
		{"text/html", false, false},
	}
	p := Platform{}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			if got := p.CanDecode(tt.mime); got != tt.decode {
				t.Errorf("CanDecode = %v, want %v", got, tt.decode)
			}
			if got := p.SupportsIncremental(tt.mime); got != tt.incremental {
				t.Errorf("SupportsIncremental = %v, want %v", got, tt.incremental)
			}
		})
	}
}

func TestPlatform_NewSinkRejectsBufferedTypes(t *testing.T) {
	sink := Platform{}.NewSink()
	if err := sink.Bind("audio/wav"); err == nil {
		t.Error("wav must be rejected by the stream sink")
	}
	if err := (Platform{}).NewSink().Bind("audio/mpeg"); err != nil {
		t.Errorf("mpeg must bind: %v", err)
	}
}

func TestDecode_WAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	format := beep.Format{SampleRate: 22050, NumChannels: 1, Precision: 2}
	if err := wav.Encode(f, beep.Silence(2205), format); err != nil {
		t.Fatalf("encode: %v", err)
	}
	f.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	s, got, err := decode(io.NopCloser(bytes.NewReader(data)), "audio/wav")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	defer s.Close()

	if got.SampleRate != format.SampleRate {
		t.Errorf("sample rate = %d, want %d", got.SampleRate, format.SampleRate)
	}
	if d := got.SampleRate.D(s.Len()); d != 100*time.Millisecond {
		t.Errorf("duration = %v, want 100ms", d)
	}
}

type constStreamer struct {
	left int
}

func (s *constStreamer) Stream(samples [][2]float64) (int, bool) {
	if s.left == 0 {
		return 0, false
	}
	n := min(len(samples), s.left)
	for i := 0; i < n; i++ {
		samples[i] = [2]float64{1, 1}
	}
	s.left -= n
	return n, true
}

func (s *constStreamer) Err() error { return nil }

func TestSpeechFilter_BlocksDC(t *testing.T) {
	f := NewSpeechFilter(&constStreamer{left: 4800}, 48000, 120, 8000)
	out := make([][2]float64, 4800)
	n, ok := f.Stream(out)
	if n != 4800 || !ok {
		t.Fatalf("Stream = %d, %v", n, ok)
	}
	last := out[n-1][0]
	if last != last {
		t.Fatal("filter produced NaN")
	}
	if last > 0.05 || last < -0.05 {
		t.Errorf("DC not attenuated, last sample %f", last)
	}
}

func TestVolumeToPower(t *testing.T) {
	if volumeToPower(1) != 0 {
		t.Error("unity volume must map to power 0")
	}
	if volumeToPower(0.5) != -1 {
		t.Error("half volume must map to power -1")
	}
	if volumeToPower(0) != -10 {
		t.Error("silent volume must map to -10")
	}
}
