package assets

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmgilman/go/fs/billy"
	"github.com/jmgilman/go/fs/core"
	"github.com/stretchr/testify/require"

	"github.com/jmgilman/go/assets/policy"
)

type instantTimer struct{ c chan time.Time }

func newInstantTimer() backoff.Timer { return &instantTimer{c: make(chan time.Time, 1)} }

func (t *instantTimer) Start(time.Duration) { t.c <- time.Now() }
func (t *instantTimer) Stop() {}
func (t *instantTimer) C() <-chan time.Time { return t.c }

// cdn is a test origin that records asset requests.
type cdn struct {
	*httptest.Server
	hits atomic.Int32

	mu      sync.Mutex
	queries []string
}

func newCDN(t *testing.T, handler http.HandlerFunc) *cdn {
	t.Helper()
	c := &cdn{}
	c.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		c.hits.Add(1)
		c.mu.Lock()
		c.queries = append(c.queries, r.URL.RequestURI())
		c.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(c.Close)
	return c
}

func (c *cdn) Requests() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queries...)
}

// echoPath serves the request URI as the body.
func echoPath(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(r.URL.RequestURI()))
}

func status(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
	}
}

func testPolicy() *policy.Policy {
	p := policy.Default()
	p.Storage.CleanupInterval = 0
	p.Retry.RequestTimeout = 2 * time.Second
	p.Retry.HealthTimeout = time.Second
	return p
}

type testEnv struct {
	fs       core.FS
	primary  *cdn
	fallback *cdn
}

func newTestEnv(t *testing.T, primary, fallback http.HandlerFunc) *testEnv {
	t.Helper()
	return &testEnv{
		fs:       billy.NewMemory(),
		primary:  newCDN(t, primary),
		fallback: newCDN(t, fallback),
	}
}

func (e *testEnv) client(t *testing.T, opts ...ClientOption) *Client {
	t.Helper()
	base := []ClientOption{
		WithPolicy(testPolicy()),
		WithEnvironment(Development),
		WithEndpoints(EndpointSet{
			Primary:  Endpoint{Name: "primary", BaseURL: e.primary.URL},
			Fallback: Endpoint{Name: "fallback", BaseURL: e.fallback.URL},
		}),
		WithFS(e.fs),
		WithCachePath("/cache"),
		WithRetryTimer(newInstantTimer),
	}
	c, err := New(t.Context(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}
