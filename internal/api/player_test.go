package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"readaloud/pkg/model"
	"readaloud/pkg/player"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlayer struct {
	mu       sync.Mutex
	calls    []string
	selected model.Language
	state    player.State
	err      error

	subs []chan player.Status
}

func (f *fakePlayer) record(call string, lang model.Language) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call+":"+lang.String())
	if f.err != nil {
		return f.err
	}
	f.selected = lang
	return nil
}

func (f *fakePlayer) Play(_ context.Context, lang model.Language) error {
	return f.record("play", lang)
}

func (f *fakePlayer) Refresh(lang model.Language) error { return f.record("refresh", lang) }

func (f *fakePlayer) SelectLanguage(lang model.Language, userInitiated bool) error {
	call := "select"
	if !userInitiated {
		call = "select-quiet"
	}
	return f.record(call, lang)
}

func (f *fakePlayer) Prefetch(lang model.Language) error { return f.record("prefetch", lang) }

func (f *fakePlayer) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "cancel")
}

func (f *fakePlayer) Snapshot() player.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	sel := f.selected
	if sel == "" {
		sel = model.English
	}
	return player.Status{State: f.state, Selected: sel, ButtonLabel: "Generate audio (" + sel.Info().Label + ")"}
}

func (f *fakePlayer) Subscribe() (<-chan player.Status, func()) {
	ch := make(chan player.Status, 4)
	ch <- f.Snapshot()
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch, func() {}
}

func (f *fakePlayer) push(st player.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		ch <- st
	}
}

func (f *fakePlayer) closeSubs() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		close(ch)
	}
	f.subs = nil
}

func (f *fakePlayer) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakePlayer) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore { return &memStore{data: map[string]string{}} }

func (m *memStore) GetState(_ context.Context, k string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[k]
	return v, ok
}

func (m *memStore) SetState(_ context.Context, k, v string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[k] = v
	return nil
}

func (m *memStore) DeleteState(_ context.Context, k string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, k)
	return nil
}

func TestPlayerHandler_Actions(t *testing.T) {
	tests := []struct {
		name      string
		handler   func(h *PlayerHandler) http.HandlerFunc
		body      string
		err       error
		wantCode  int
		wantCalls []string
	}{
		{
			name:      "play named language",
			handler:   func(h *PlayerHandler) http.HandlerFunc { return h.HandlePlay },
			body:      `{"language":"hi"}`,
			wantCode:  http.StatusOK,
			wantCalls: []string{"play:hi"},
		},
		{
			name:      "play selected language on empty body",
			handler:   func(h *PlayerHandler) http.HandlerFunc { return h.HandlePlay },
			wantCode:  http.StatusOK,
			wantCalls: []string{"play:en"},
		},
		{
			name:      "language normalized",
			handler:   func(h *PlayerHandler) http.HandlerFunc { return h.HandleRefresh },
			body:      `{"language":" TA "}`,
			wantCode:  http.StatusOK,
			wantCalls: []string{"refresh:ta"},
		},
		{
			name:     "unknown language rejected",
			handler:  func(h *PlayerHandler) http.HandlerFunc { return h.HandlePlay },
			body:     `{"language":"fr"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "malformed body",
			handler:  func(h *PlayerHandler) http.HandlerFunc { return h.HandlePrefetch },
			body:     `{"language":`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:      "prefetch",
			handler:   func(h *PlayerHandler) http.HandlerFunc { return h.HandlePrefetch },
			body:      `{"language":"ta"}`,
			wantCode:  http.StatusOK,
			wantCalls: []string{"prefetch:ta"},
		},
		{
			name:      "quiet language change",
			handler:   func(h *PlayerHandler) http.HandlerFunc { return h.HandleLanguage },
			body:      `{"language":"hi","user_initiated":false}`,
			wantCode:  http.StatusOK,
			wantCalls: []string{"select-quiet:hi"},
		},
		{
			name:      "cancel",
			handler:   func(h *PlayerHandler) http.HandlerFunc { return h.HandleCancel },
			wantCode:  http.StatusOK,
			wantCalls: []string{"cancel"},
		},
		{
			name:      "closed player",
			handler:   func(h *PlayerHandler) http.HandlerFunc { return h.HandlePlay },
			body:      `{"language":"en"}`,
			err:       player.ErrClosed,
			wantCode:  http.StatusServiceUnavailable,
			wantCalls: []string{"play:en"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := &fakePlayer{err: tt.err}
			h := NewPlayerHandler(fp, nil)

			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			tt.handler(h)(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCalls, fp.history())
		})
	}
}

func TestPlayerHandler_LanguagePersisted(t *testing.T) {
	fp := &fakePlayer{}
	st := newMemStore()
	h := NewPlayerHandler(fp, st)

	rec := httptest.NewRecorder()
	h.HandleLanguage(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"language":"ta"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	v, ok := st.GetState(context.Background(), "player.language")
	assert.True(t, ok)
	assert.Equal(t, "ta", v)
	assert.Equal(t, []string{"select:ta"}, fp.history())

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.Tamil, resp.Selected)
}

func TestPlayerHandler_Status(t *testing.T) {
	fp := &fakePlayer{state: player.Streaming, selected: model.Hindi}
	h := NewPlayerHandler(fp, nil)

	rec := httptest.NewRecorder()
	h.HandleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/player/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Equal(t, "streaming", raw["state"])
	assert.Equal(t, "hi", raw["selected"])
	assert.Equal(t, "Generate audio (Hindi)", raw["button_label"])
}

func TestPlayerHandler_Events(t *testing.T) {
	fp := &fakePlayer{}
	srv := httptest.NewServer(http.HandlerFunc(NewPlayerHandler(fp, nil).HandleEvents))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() map[string]any {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	first := read()
	assert.Equal(t, "idle", first["state"])

	require.Eventually(t, func() bool { return fp.subscribers() == 1 }, time.Second, 10*time.Millisecond)
	fp.push(player.Status{State: player.Requesting, Selected: model.Tamil})
	second := read()
	assert.Equal(t, "requesting", second["state"])
	assert.Equal(t, "ta", second["selected"])

	fp.closeSubs()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

func TestHandleLanguages(t *testing.T) {
	rec := httptest.NewRecorder()
	handleLanguages(rec, httptest.NewRequest(http.MethodGet, "/api/languages", nil))

	var langs []model.LanguageInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &langs))
	require.Len(t, langs, 3)
	assert.Equal(t, model.English, langs[0].Code)
	assert.Equal(t, "Tamil", langs[2].Label)
}
