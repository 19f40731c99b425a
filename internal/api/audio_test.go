package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAudio struct {
	playing, paused bool
	volume          float64
	attached        string
	actions         []string
}

func (f *fakeAudio) Pause()  { f.paused = true; f.actions = append(f.actions, "pause") }
func (f *fakeAudio) Resume() { f.paused = false; f.actions = append(f.actions, "resume") }
func (f *fakeAudio) Stop()   { f.playing = false; f.actions = append(f.actions, "stop") }

func (f *fakeAudio) SetVolume(v float64) {
	f.volume = min(1, max(0, v))
}

func (f *fakeAudio) Volume() float64         { return f.volume }
func (f *fakeAudio) IsPlaying() bool         { return f.playing }
func (f *fakeAudio) IsPaused() bool          { return f.paused }
func (f *fakeAudio) Attached() string        { return f.attached }
func (f *fakeAudio) Position() time.Duration { return 1500 * time.Millisecond }
func (f *fakeAudio) Duration() time.Duration { return 0 }

func TestAudioHandler_Control(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantState string
	}{
		{"pause", `{"action":"pause"}`, http.StatusOK, "paused"},
		{"resume", `{"action":"resume"}`, http.StatusOK, "playing"},
		{"stop", `{"action":"stop"}`, http.StatusOK, "stopped"},
		{"unknown", `{"action":"skip"}`, http.StatusBadRequest, ""},
		{"malformed", `nope`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAudioHandler(&fakeAudio{}, nil)
			rec := httptest.NewRecorder()
			h.HandleControl(rec, httptest.NewRequest(http.MethodPost, "/api/audio/control", strings.NewReader(tt.body)))

			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantState == "" {
				return
			}
			var resp map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantState, resp["state"])
		})
	}
}

func TestAudioHandler_VolumePersistsClamped(t *testing.T) {
	fa := &fakeAudio{}
	st := newMemStore()
	h := NewAudioHandler(fa, st)

	rec := httptest.NewRecorder()
	h.HandleVolume(rec, httptest.NewRequest(http.MethodPost, "/api/audio/volume", strings.NewReader(`{"volume":1.7}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	v, ok := st.GetState(context.Background(), "player.volume")
	require.True(t, ok)
	assert.Equal(t, "1.00", v)
}

func TestAudioHandler_Status(t *testing.T) {
	fa := &fakeAudio{playing: true, volume: 0.5, attached: "blob:readaloud/x"}
	h := NewAudioHandler(fa, nil)

	rec := httptest.NewRecorder()
	h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/audio/status", nil))

	var resp AudioStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.IsPlaying)
	assert.True(t, resp.Attached)
	assert.InDelta(t, 0.5, resp.Volume, 1e-9)
	assert.InDelta(t, 1.5, resp.Position, 1e-9)
	assert.Zero(t, resp.Duration)
}
