package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/jmgilman/go/fs/billy"
	"github.com/jmgilman/go/fs/core"
	"github.com/stretchr/testify/require"

	"github.com/jmgilman/go/assets/asset"
	"github.com/jmgilman/go/assets/policy"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// smallPolicy returns a policy with a 1000 byte budget, no per-type
// ceilings and cleanup only when completely full.
func smallPolicy() *policy.Policy {
	p := policy.Default()
	p.Storage.MaxTotalSize = 1000
	p.Storage.TypeCeilings = map[asset.Type]policy.ByteSize{}
	p.Storage.CleanupThreshold = 1.0
	p.Storage.CleanupTarget = 0.9
	p.Storage.CleanupInterval = 0
	return p
}

func modelKey(name string) asset.Key {
	return asset.Key{Path: name, Type: asset.TypeModel}
}

func newTestStore(t *testing.T, fsys core.FS, p *policy.Policy, opts ...Option) *Store {
	t.Helper()
	if fsys == nil {
		fsys = billy.NewMemory()
	}
	store, err := New(fsys, "/cache", p, opts...)
	require.NoError(t, err)
	require.NoError(t, store.Initialize(t.Context()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func bytesOf(n int, b byte) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = b
	}
	return data
}
