package delivery

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"github.com/jmgilman/go/assets/policy"
)

// recordingTimer fires immediately and remembers every requested delay.
type recordingTimer struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingTimer) factory() backoff.Timer {
	return &instantTimer{rec: r, c: make(chan time.Time, 1)}
}

func (r *recordingTimer) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

type instantTimer struct {
	rec *recordingTimer
	c   chan time.Time
}

func (t *instantTimer) Start(d time.Duration) {
	t.rec.mu.Lock()
	t.rec.delays = append(t.rec.delays, d)
	t.rec.mu.Unlock()
	t.c <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

// origin is a test server that counts asset requests separately from
// health probes.
type origin struct {
	*httptest.Server
	hits atomic.Int32
}

func newOrigin(t *testing.T, handler http.HandlerFunc) *origin {
	t.Helper()
	o := &origin{}
	o.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == DefaultHealthPath {
			w.WriteHeader(http.StatusOK)
			return
		}
		o.hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(o.Close)
	return o
}

func serveBytes(data []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(data)
	}
}

func serveStatus(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
	}
}

func testEndpoints(primary, fallback string) EndpointSet {
	return EndpointSet{
		Primary:  Endpoint{Name: "primary", BaseURL: primary},
		Fallback: Endpoint{Name: "fallback", BaseURL: fallback},
	}
}

func testPolicy() *policy.Policy {
	p := policy.Default()
	p.Retry.RequestTimeout = 2 * time.Second
	p.Retry.HealthTimeout = time.Second
	return p
}

func newTestManager(t *testing.T, set EndpointSet, timer *recordingTimer, opts ...Option) *Manager {
	t.Helper()
	return newTestManagerWithPolicy(t, testPolicy(), set, timer, opts...)
}

func newTestManagerWithPolicy(t *testing.T, p *policy.Policy, set EndpointSet, timer *recordingTimer, opts ...Option) *Manager {
	t.Helper()
	base := []Option{
		WithEnvironment(Development),
		WithEndpoints(set),
		WithTimer(timer.factory),
	}
	m, err := NewManager(p, append(base, opts...)...)
	require.NoError(t, err)
	return m
}
