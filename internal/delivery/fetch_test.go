package delivery

import (
	"context"
	"net/http"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	asseterrors "github.com/jmgilman/go/assets/errors"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func TestFetchWithRetry_Success(t *testing.T) {
	o := newOrigin(t, serveBytes(pngHeader))
	timer := &recordingTimer{}
	m := newTestManager(t, testEndpoints(o.URL, o.URL+"/b"), timer)

	payload, err := m.FetchWithRetry(context.Background(), o.URL+"/textures/skin.png", 3)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, payload.Data)
	assert.Equal(t, "image/png", payload.ContentType)
	assert.Equal(t, 1, payload.Attempts)
	assert.Equal(t, int32(1), o.hits.Load())
	assert.Empty(t, timer.Delays())
}

func TestFetchWithRetry_DeclaredContentType(t *testing.T) {
	o := newOrigin(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "model/gltf-binary")
		_, _ = w.Write([]byte("glTF\x02\x00\x00\x00"))
	})
	m := newTestManager(t, testEndpoints(o.URL, o.URL+"/b"), &recordingTimer{})

	payload, err := m.FetchWithRetry(context.Background(), o.URL+"/models/a.glb", 1)
	require.NoError(t, err)
	assert.Equal(t, "model/gltf-binary", payload.ContentType)
}

func TestFetchWithRetry_ClientErrorIsNotRetried(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusGone} {
		t.Run(strconv.Itoa(status), func(t *testing.T) {
			o := newOrigin(t, serveStatus(status))
			timer := &recordingTimer{}
			m := newTestManager(t, testEndpoints(o.URL, o.URL+"/b"), timer)

			_, err := m.FetchWithRetry(context.Background(), o.URL+"/models/missing.glb", 3)
			require.Error(t, err)
			assert.Equal(t, asseterrors.CodeClientError, asseterrors.GetCode(err))
			assert.False(t, asseterrors.IsRetryable(err))
			assert.Equal(t, int32(1), o.hits.Load(), "exactly one attempt")
			assert.Empty(t, timer.Delays(), "no backoff delay")
		})
	}
}

func TestFetchWithRetry_ServerErrorUsesLinearBackoff(t *testing.T) {
	o := newOrigin(t, serveStatus(http.StatusServiceUnavailable))
	timer := &recordingTimer{}
	m := newTestManager(t, testEndpoints(o.URL, o.URL+"/b"), timer)

	_, err := m.FetchWithRetry(context.Background(), o.URL+"/models/a.glb", 4)
	require.Error(t, err)
	assert.Equal(t, asseterrors.CodeServerError, asseterrors.GetCode(err))
	assert.Equal(t, int32(4), o.hits.Load())
	assert.Equal(t, []time.Duration{
		500 * time.Millisecond,
		1000 * time.Millisecond,
		1500 * time.Millisecond,
	}, timer.Delays())
}

func TestFetchWithRetry_RecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	o := newOrigin(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("mesh"))
	})
	timer := &recordingTimer{}
	m := newTestManager(t, testEndpoints(o.URL, o.URL+"/b"), timer)

	payload, err := m.FetchWithRetry(context.Background(), o.URL+"/models/a.glb", 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("mesh"), payload.Data)
	assert.Equal(t, 3, payload.Attempts)
	assert.Len(t, timer.Delays(), 2)
}

func TestFetchWithRetry_NetworkError(t *testing.T) {
	o := newOrigin(t, serveBytes([]byte("x")))
	dead := o.URL
	o.Close()

	timer := &recordingTimer{}
	m := newTestManager(t, testEndpoints("http://127.0.0.1:1", "http://127.0.0.1:2"), timer)

	_, err := m.FetchWithRetry(context.Background(), dead+"/models/a.glb", 3)
	require.Error(t, err)
	assert.Equal(t, asseterrors.CodeNetwork, asseterrors.GetCode(err))
	assert.True(t, asseterrors.IsRetryable(err))
	assert.Len(t, timer.Delays(), 2)
}

func TestFetchWithRetry_Timeout(t *testing.T) {
	o := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	p := testPolicy()
	p.Retry.RequestTimeout = 20 * time.Millisecond
	timer := &recordingTimer{}
	m := newTestManagerWithPolicy(t, p, testEndpoints(o.URL, o.URL+"/b"), timer)

	_, err := m.FetchWithRetry(context.Background(), o.URL+"/models/slow.glb", 2)
	require.Error(t, err)
	assert.Equal(t, asseterrors.CodeTimeout, asseterrors.GetCode(err))
	assert.Len(t, timer.Delays(), 1)
}

func TestFetchWithRetry_CancelledContext(t *testing.T) {
	o := newOrigin(t, serveStatus(http.StatusInternalServerError))
	m := newTestManager(t, testEndpoints(o.URL, o.URL+"/b"), &recordingTimer{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.FetchWithRetry(ctx, o.URL+"/models/a.glb", 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, asseterrors.CodeCanceled, asseterrors.GetCode(err))
	assert.False(t, asseterrors.IsRetryable(err))
}

func TestFetchWithRetry_CancelledMidRequest(t *testing.T) {
	started := make(chan struct{})
	o := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	})
	m := newTestManager(t, testEndpoints(o.URL, o.URL+"/b"), &recordingTimer{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := m.FetchWithRetry(ctx, o.URL+"/models/a.glb", 3)
	require.Error(t, err)
	assert.Equal(t, asseterrors.CodeCanceled, asseterrors.GetCode(err))
	assert.False(t, asseterrors.IsRetryable(err))
	assert.Equal(t, int32(1), o.hits.Load())
}

func TestFetchWithRetry_CallerDeadline(t *testing.T) {
	o := newOrigin(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	m := newTestManager(t, testEndpoints(o.URL, o.URL+"/b"), &recordingTimer{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.FetchWithRetry(ctx, o.URL+"/models/a.glb", 3)
	require.Error(t, err)
	assert.Equal(t, asseterrors.CodeTimeout, asseterrors.GetCode(err))
	assert.False(t, asseterrors.IsRetryable(err), "the same context would expire again")
}

func TestFetch_MaxBytes(t *testing.T) {
	big := make([]byte, 2048)

	t.Run("declared length", func(t *testing.T) {
		o := newOrigin(t, serveBytes(big))
		timer := &recordingTimer{}
		m := newTestManager(t, testEndpoints(o.URL, o.URL+"/b"), timer)

		_, err := m.fetcher.fetch(context.Background(), o.URL+"/models/big.glb", 3, 1024)
		require.Error(t, err)
		assert.Equal(t, asseterrors.CodeQuotaExceeded, asseterrors.GetCode(err))
		assert.Equal(t, int32(1), o.hits.Load())
		assert.Empty(t, timer.Delays())
	})

	t.Run("streamed body", func(t *testing.T) {
		o := newOrigin(t, func(w http.ResponseWriter, _ *http.Request) {
			// Flushing first forces chunked encoding with no length.
			w.(http.Flusher).Flush()
			_, _ = w.Write(big)
		})
		m := newTestManager(t, testEndpoints(o.URL, o.URL+"/b"), &recordingTimer{})

		_, err := m.fetcher.fetch(context.Background(), o.URL+"/models/big.glb", 3, 1024)
		require.Error(t, err)
		assert.Equal(t, asseterrors.CodeQuotaExceeded, asseterrors.GetCode(err))
		assert.Equal(t, int32(1), o.hits.Load())
	})

	t.Run("within limit", func(t *testing.T) {
		o := newOrigin(t, serveBytes(big))
		m := newTestManager(t, testEndpoints(o.URL, o.URL+"/b"), &recordingTimer{})

		payload, err := m.fetcher.fetch(context.Background(), o.URL+"/models/big.glb", 3, 2048)
		require.NoError(t, err)
		assert.Len(t, payload.Data, 2048)
	})
}

func TestLinearBackOff(t *testing.T) {
	b := &linearBackOff{delay: 100 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 200*time.Millisecond, b.NextBackOff())
	assert.Equal(t, 300*time.Millisecond, b.NextBackOff())
	b.Reset()
	assert.Equal(t, 100*time.Millisecond, b.NextBackOff())
}
