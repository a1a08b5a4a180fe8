package assets

import "sync"

// prefetchBudget tracks bytes held by lookahead preloads that no request
// has used yet. Bytes are released when the entry is requested or leaves
// the cache.
type prefetchBudget struct {
	mu      sync.Mutex
	limit   int64
	used    int64
	pending map[string]int64
	held    map[string]int64
}

func newPrefetchBudget(limit int64) *prefetchBudget {
	return &prefetchBudget{
		limit:   limit,
		pending: make(map[string]int64),
		held:    make(map[string]int64),
	}
}

// reserve claims up to want bytes of the remaining budget for digest and
// returns the amount claimed. A want of zero or less claims all that
// remains. It returns false when the budget is spent or digest is already
// reserved.
func (b *prefetchBudget) reserve(digest string, want int64) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pending[digest]; ok {
		return 0, false
	}
	if _, ok := b.held[digest]; ok {
		return 0, false
	}
	var inFlight int64
	for _, n := range b.pending {
		inFlight += n
	}
	room := b.limit - b.used - inFlight
	if room <= 0 {
		return 0, false
	}
	if want > 0 && want < room {
		room = want
	}
	b.pending[digest] = room
	return room, true
}

// settle ends a reservation. size is the committed size, or zero when the
// preload failed.
func (b *prefetchBudget) settle(digest string, size int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, digest)
	if size > 0 {
		b.held[digest] = size
		b.used += size
	}
}

// release returns the bytes held for digest, if any.
func (b *prefetchBudget) release(digest string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n, ok := b.held[digest]; ok {
		delete(b.held, digest)
		b.used -= n
	}
}

// Used returns the bytes currently held.
func (b *prefetchBudget) Used() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}
