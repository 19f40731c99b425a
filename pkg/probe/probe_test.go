package probe

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"readaloud/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkRecord struct {
	name string
	ok   bool
}

type fakeRecorder struct {
	records []checkRecord
}

func (f *fakeRecorder) CheckFinished(name string, ok bool, _ time.Duration) {
	f.records = append(f.records, checkRecord{name, ok})
}

func TestRunner_Run(t *testing.T) {
	probes := []Probe{
		{
			Name:     "Passing",
			Check:    func(ctx context.Context) error { return nil },
			Critical: true,
		},
		{
			Name:  "Minor",
			Check: func(ctx context.Context) error { return errors.New("minor issue") },
		},
		{
			Name: "Deadline",
			Check: func(ctx context.Context) error {
				deadline, ok := ctx.Deadline()
				if !ok {
					return errors.New("missing deadline")
				}
				if time.Until(deadline) > 250*time.Millisecond {
					return errors.New("runner timeout not applied")
				}
				return nil
			},
		},
		{
			Name: "Slow",
			Check: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
		},
	}

	rec := &fakeRecorder{}
	r := NewRunner(200*time.Millisecond, rec)
	assert.Empty(t, r.Results())

	results := r.Run(context.Background(), probes)
	require.Len(t, results, 4)
	assert.True(t, results[0].OK())
	assert.EqualError(t, results[1].Err, "minor issue")
	assert.True(t, results[2].OK(), "%v", results[2].Err)
	assert.ErrorIs(t, results[3].Err, context.DeadlineExceeded)
	assert.Less(t, results[3].Elapsed, 2*time.Second)

	assert.Equal(t, []checkRecord{{"Passing", true}, {"Minor", false}, {"Deadline", true}, {"Slow", false}}, rec.records)
	assert.Equal(t, results, r.Results())
}

func TestRunner_DefaultTimeout(t *testing.T) {
	var r Runner
	results := r.Run(context.Background(), []Probe{{
		Name: "Deadline",
		Check: func(ctx context.Context) error {
			deadline, ok := ctx.Deadline()
			if !ok || time.Until(deadline) > DefaultTimeout {
				return errors.New("default timeout not applied")
			}
			return nil
		},
	}})
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
}

func TestVerdict(t *testing.T) {
	fail := errors.New("fail")
	tests := []struct {
		name    string
		results []Result
		wantErr bool
	}{
		{
			name:    "All Pass",
			results: []Result{{Name: "P1", Critical: true}},
		},
		{
			name:    "Critical Failure",
			results: []Result{{Name: "P1", Critical: true, Err: fail}},
			wantErr: true,
		},
		{
			name:    "Non-Critical Failure",
			results: []Result{{Name: "P1", Err: fail}},
		},
		{
			name: "Mixed Failure",
			results: []Result{
				{Name: "P1", Err: fail},
				{Name: "P2", Critical: true, Err: fail},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verdict(tt.results)
			assert.Equal(t, tt.wantErr, err != nil, "Verdict() error = %v", err)
			if tt.wantErr {
				assert.ErrorIs(t, err, fail)
			}
		})
	}
}

func TestConfigCheck(t *testing.T) {
	good := config.DefaultConfig()
	assert.NoError(t, ConfigCheck(good).Check(context.Background()))

	bad := config.DefaultConfig()
	bad.TTS.Speed = 10
	p := ConfigCheck(bad)
	assert.True(t, p.Critical)
	assert.Error(t, p.Check(context.Background()))

	assert.Error(t, ConfigCheck(nil).Check(context.Background()))
}

type fakeProber struct {
	status map[string]int
	errs   map[string]error
	seen   []string
}

func (f *fakeProber) Probe(_ context.Context, u string) (int, error) {
	f.seen = append(f.seen, u)
	if err := f.errs[u]; err != nil {
		return 0, err
	}
	return f.status[u], nil
}

func TestEndpointCheck(t *testing.T) {
	tests := []struct {
		name       string
		candidates []string
		origin     string
		status     map[string]int
		errs       map[string]error
		wantErr    bool
		wantSeen   []string
	}{
		{
			name:       "first reachable",
			candidates: []string{"https://a.test/api/blog-tts", "https://b.test/api/blog-tts"},
			status:     map[string]int{"https://a.test/api/blog-tts": http.StatusMethodNotAllowed},
			wantSeen:   []string{"https://a.test/api/blog-tts"},
		},
		{
			name:       "falls through server errors",
			candidates: []string{"https://a.test/x", "https://b.test/x"},
			status:     map[string]int{"https://a.test/x": 502, "https://b.test/x": 204},
			wantSeen:   []string{"https://a.test/x", "https://b.test/x"},
		},
		{
			name:       "relative resolved against origin",
			candidates: []string{"/api/blog-tts"},
			origin:     "https://blog.test",
			status:     map[string]int{"https://blog.test/api/blog-tts": 200},
			wantSeen:   []string{"https://blog.test/api/blog-tts"},
		},
		{
			name:       "relative without origin is skipped",
			candidates: []string{"/api/blog-tts"},
			wantErr:    true,
		},
		{
			name:       "all unreachable",
			candidates: []string{"https://a.test/x"},
			errs:       map[string]error{"https://a.test/x": errors.New("dial tcp: refused")},
			wantErr:    true,
			wantSeen:   []string{"https://a.test/x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := &fakeProber{status: tt.status, errs: tt.errs}
			p := EndpointCheck(fp, tt.candidates, tt.origin)
			assert.False(t, p.Critical)

			err := p.Check(context.Background())
			assert.Equal(t, tt.wantErr, err != nil, "error = %v", err)
			assert.Equal(t, tt.wantSeen, fp.seen)
		})
	}
}

type memState struct {
	data map[string]string
	err  error
}

func (m *memState) GetState(_ context.Context, k string) (string, bool) {
	v, ok := m.data[k]
	return v, ok
}

func (m *memState) SetState(_ context.Context, k, v string) error {
	if m.err != nil {
		return m.err
	}
	m.data[k] = v
	return nil
}

func (m *memState) DeleteState(_ context.Context, k string) error {
	delete(m.data, k)
	return nil
}

func TestStoreCheck(t *testing.T) {
	ok := &memState{data: map[string]string{}}
	require.NoError(t, StoreCheck(ok).Check(context.Background()))
	assert.NotEmpty(t, ok.data[KeyLastStart])

	broken := &memState{data: map[string]string{}, err: errors.New("database is locked")}
	assert.Error(t, StoreCheck(broken).Check(context.Background()))
	assert.Error(t, StoreCheck(nil).Check(context.Background()))
}
