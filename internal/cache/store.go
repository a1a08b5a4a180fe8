package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sync"
	"time"

	"github.com/jmgilman/go/fs/core"

	"github.com/jmgilman/go/assets/asset"
	asseterrors "github.com/jmgilman/go/assets/errors"
	"github.com/jmgilman/go/assets/internal/logging"
	"github.com/jmgilman/go/assets/policy"
)

// JournalFile is the name of the default journal under the store root.
const JournalFile = "index.jsonl"

type state int

const (
	stateNew state = iota
	stateOpen
	stateClosed
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithJournal replaces the default JSON-lines journal.
func WithJournal(j Journal) Option {
	return func(s *Store) {
		s.journal = j
	}
}

// WithClock overrides time.Now for timestamps and eviction scoring.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEvictionHook registers fn to be told about every entry removed by
// eviction, purge or clear. fn runs with the store lock held and must not
// call back into the Store.
func WithEvictionHook(fn func(key asset.Key, size int64)) Option {
	return func(s *Store) {
		s.onRemove = fn
	}
}

// Store is the local asset cache. It is safe for concurrent use.
type Store struct {
	mu sync.Mutex

	fs      core.FS
	root    string
	policy  *policy.Policy
	weights Weights

	storage   *Storage
	journal   Journal
	entries   map[string]*IndexEntry
	usedBytes int64
	dirty     bool
	state     state

	metrics  *Metrics
	logger   *logging.Logger
	now      func() time.Time
	onRemove func(asset.Key, int64)

	cleanupDone chan struct{}
	cleanupWG   sync.WaitGroup
}

// New creates a Store rooted at root on fsys. The store is unusable until
// Initialize succeeds.
func New(fsys core.FS, root string, p *policy.Policy, opts ...Option) (*Store, error) {
	if fsys == nil {
		return nil, asseterrors.New(asseterrors.CodeInvalidConfig, "filesystem cannot be nil")
	}
	if root == "" {
		return nil, asseterrors.New(asseterrors.CodeInvalidConfig, "cache root cannot be empty")
	}
	if p == nil {
		return nil, asseterrors.New(asseterrors.CodeInvalidConfig, "policy cannot be nil")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	s := &Store{
		fs:          fsys,
		root:        root,
		policy:      p,
		weights:     WeightsFrom(p),
		entries:     make(map[string]*IndexEntry),
		metrics:     NewMetrics(),
		logger:      logging.NewNopLogger(),
		now:         time.Now,
		cleanupDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Initialize opens the backing storage and loads the journal. Index
// entries without a blob are dropped, blobs without an index entry are
// deleted and leftover temp files are removed. Calling Initialize on an
// open store is a no-op.
func (s *Store) Initialize(ctx context.Context) error {
	start := time.Now()
	logger := s.logger.WithOperation(logging.OpInitialize)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateOpen:
		return nil
	case stateClosed:
		return errClosed()
	}

	storage, err := NewStorage(s.fs, s.root)
	if err != nil {
		return asseterrors.Wrap(err, asseterrors.CodeStorage, "failed to open cache storage")
	}
	if err := storage.CleanupTempFiles(ctx); err != nil {
		logger.Warn(ctx, "failed to remove leftover temp files", "error", err)
	}
	s.storage = storage

	if s.journal == nil {
		s.journal = NewFileJournal(s.fs, path.Join(s.root, JournalFile))
	}
	loaded, err := s.journal.Load(ctx)
	if err != nil {
		return asseterrors.Wrap(err, asseterrors.CodeStorage, "failed to load cache journal")
	}

	dropped := 0
	for _, ie := range loaded {
		if ie.Digest != ie.Key.Digest() || ie.SizeBytes <= 0 {
			dropped++
			continue
		}
		exists, err := storage.Exists(ctx, BlobPath(ie.Digest))
		if err != nil {
			return asseterrors.Wrap(err, asseterrors.CodeStorage, "failed to verify cache blob")
		}
		if !exists {
			dropped++
			continue
		}
		if old, ok := s.entries[ie.Digest]; ok {
			s.usedBytes -= old.SizeBytes
		}
		s.entries[ie.Digest] = ie
		s.usedBytes += ie.SizeBytes
	}

	orphans := 0
	onDisk, err := storage.ListBlobs(ctx)
	if err != nil {
		logger.Warn(ctx, "failed to list cache blobs", "error", err)
	}
	for _, digest := range onDisk {
		if _, ok := s.entries[digest]; ok {
			continue
		}
		if err := storage.Remove(ctx, BlobPath(digest)); err != nil {
			logger.Warn(ctx, "failed to remove orphaned blob", "digest", digest, "error", err)
			continue
		}
		orphans++
	}

	s.dirty = dropped > 0
	s.state = stateOpen

	// A smaller policy than the one the journal was written under.
	if over := s.usedBytes - s.policy.Storage.MaxTotalSize.Int64(); over > 0 {
		s.evictLocked(ctx, over, "", "over_quota")
	}

	s.startCleanupScheduler()

	logger.Info(ctx, "cache store initialized",
		"root", s.root,
		"entries", len(s.entries),
		"used_bytes", s.usedBytes,
		"dropped", dropped,
		"orphans_removed", orphans,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func errNotInitialized() error {
	return asseterrors.New(asseterrors.CodeNotInitialized, "cache store is not initialized")
}

func errClosed() error {
	return asseterrors.New(asseterrors.CodeNotInitialized, "cache store is closed")
}

func (s *Store) checkOpenLocked() error {
	switch s.state {
	case stateNew:
		return errNotInitialized()
	case stateClosed:
		return errClosed()
	}
	return nil
}

// Get returns the entry for key and bumps its access count and time. A
// missing entry returns an error for which IsMiss is true. A blob that
// fails verification is dropped and reported as a miss.
func (s *Store) Get(ctx context.Context, key asset.Key) (*Entry, error) {
	start := time.Now()
	if err := key.Validate(); err != nil {
		return nil, asseterrors.Wrap(err, asseterrors.CodeInvalidInput, "invalid asset key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpenLocked(); err != nil {
		return nil, err
	}

	digest := key.Digest()
	ie, ok := s.entries[digest]
	if !ok {
		s.metrics.RecordMiss(time.Since(start))
		logging.LogCacheMiss(ctx, s.logger, key.String(), "not found")
		return nil, errMiss(key)
	}

	data, err := s.storage.ReadWithIntegrity(ctx, BlobPath(digest))
	if err != nil {
		if errors.Is(err, ErrCorrupted) || errors.Is(err, fs.ErrNotExist) {
			s.metrics.RecordCorrupted()
			s.metrics.RecordMiss(time.Since(start))
			s.logger.Warn(ctx, "dropping unreadable cache entry", "key", key.String(), "error", err)
			s.removeLocked(ctx, ie, "corrupted", false)
			return nil, errMiss(key)
		}
		s.metrics.RecordError()
		return nil, asseterrors.WrapWithContext(err, asseterrors.CodeStorage,
			"failed to read cache entry", map[string]interface{}{"key": key.String()})
	}

	ie.AccessCount++
	ie.LastAccessedAt = s.now()
	s.dirty = true

	s.metrics.RecordHit(ie.SizeBytes, time.Since(start))
	logging.LogCacheHit(ctx, s.logger, key.String(), ie.SizeBytes)
	return ie.toEntry(data), nil
}

// Has reports whether key is cached without touching its access stats.
func (s *Store) Has(key asset.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateOpen {
		return false
	}
	_, ok := s.entries[key.Digest()]
	return ok
}

// Fits reports whether an entry of size bytes of type t could ever be
// stored.
func (s *Store) Fits(t asset.Type, size int64) bool {
	return size <= s.policy.CeilingFor(t) && size <= s.policy.Storage.MaxTotalSize.Int64()
}

// Put inserts or replaces the entry for key. An entry larger than its
// type ceiling or the total budget fails with QUOTA_EXCEEDED and nothing
// is written. Otherwise other entries are evicted until the new one fits,
// the blob is written atomically and only then is the entry visible.
func (s *Store) Put(ctx context.Context, key asset.Key, data []byte, metadata map[string]string) error {
	start := time.Now()
	logger := s.logger.WithOperation(logging.OpPut).WithKey(key)

	if err := key.Validate(); err != nil {
		return asseterrors.Wrap(err, asseterrors.CodeInvalidInput, "invalid asset key")
	}
	if len(data) == 0 {
		return asseterrors.New(asseterrors.CodeInvalidInput, "cannot cache empty data")
	}

	size := int64(len(data))

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpenLocked(); err != nil {
		return err
	}

	if !s.Fits(key.Type, size) {
		s.metrics.RecordRejected()
		return asseterrors.WithContextMap(
			asseterrors.Newf(asseterrors.CodeQuotaExceeded, "%s entry of %d bytes can never fit in the cache", key.Type, size),
			map[string]interface{}{
				"key":     key.String(),
				"size":    size,
				"ceiling": s.policy.CeilingFor(key.Type),
			})
	}

	digest := key.Digest()
	var existing int64
	if old, ok := s.entries[digest]; ok {
		existing = old.SizeBytes
	}

	maxTotal := s.policy.Storage.MaxTotalSize.Int64()
	if need := s.usedBytes - existing + size - maxTotal; need > 0 {
		s.evictLocked(ctx, need, digest, "make_room")
		if s.usedBytes-existing+size > maxTotal {
			s.metrics.RecordRejected()
			return asseterrors.Newf(asseterrors.CodeQuotaExceeded,
				"unable to free %d bytes for %s", need, key)
		}
	}

	enc := EncodingIdentity
	if s.policy.CompressAtRest(key.Type) {
		enc = EncodingZstd
	}
	stored, err := s.storage.WriteAtomically(ctx, BlobPath(digest), data, enc)
	if err != nil {
		s.metrics.RecordError()
		logger.Error(ctx, "failed to write cache blob", "error", err)
		return asseterrors.WrapWithContext(err, asseterrors.CodeStorage,
			"failed to write cache entry", map[string]interface{}{"key": key.String()})
	}

	now := s.now()
	if old, ok := s.entries[digest]; ok {
		s.usedBytes -= old.SizeBytes
	}
	var meta map[string]string
	if len(metadata) > 0 {
		meta = make(map[string]string, len(metadata))
		for k, v := range metadata {
			meta[k] = v
		}
	}
	s.entries[digest] = &IndexEntry{
		Key:            key,
		Digest:         digest,
		SizeBytes:      size,
		StoredBytes:    stored,
		Encoding:       enc,
		CreatedAt:      now,
		LastAccessedAt: now,
		AccessCount:    1,
		Metadata:       meta,
	}
	s.usedBytes += size
	s.dirty = true

	s.metrics.RecordPut(size, s.usedBytes, time.Since(start))
	logger.Debug(ctx, "cache entry stored", "size", size, "stored_bytes", stored, "encoding", string(enc))

	if s.utilizationLocked() >= s.policy.Storage.CleanupThreshold {
		s.cleanupLocked(ctx, digest)
	}
	return nil
}

// Evict removes every expired entry and then the lowest scoring entries
// until at least targetFreeBytes have been reclaimed or the store is
// empty. It returns the number of entries removed and the bytes freed.
func (s *Store) Evict(ctx context.Context, targetFreeBytes int64) (int, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpenLocked(); err != nil {
		return 0, 0, err
	}
	removed, freed := s.evictLocked(ctx, targetFreeBytes, "", "requested")
	return removed, freed, nil
}

// Cleanup runs one maintenance pass: expired entries are removed, the
// store is trimmed to the cleanup target when it is above the cleanup
// threshold and the journal is flushed.
func (s *Store) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpenLocked(); err != nil {
		return err
	}
	s.cleanupLocked(ctx, "")
	return s.flushLocked(ctx)
}

// Purge removes the entry for key if present.
func (s *Store) Purge(ctx context.Context, key asset.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpenLocked(); err != nil {
		return err
	}
	if ie, ok := s.entries[key.Digest()]; ok {
		s.removeLocked(ctx, ie, "purged", false)
	}
	return nil
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpenLocked(); err != nil {
		return err
	}
	if err := s.storage.RemoveAllBlobs(ctx); err != nil {
		s.metrics.RecordError()
		return asseterrors.Wrap(err, asseterrors.CodeStorage, "failed to clear cache")
	}
	if s.onRemove != nil {
		for _, ie := range s.entries {
			s.onRemove(ie.Key, ie.SizeBytes)
		}
	}
	s.entries = make(map[string]*IndexEntry)
	s.usedBytes = 0
	s.dirty = true
	return s.flushLocked(ctx)
}

// Flush writes the index to the journal if it changed.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpenLocked(); err != nil {
		return err
	}
	return s.flushLocked(ctx)
}

// UsedBytes returns the sum of all entry sizes.
func (s *Store) UsedBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usedBytes
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Metrics returns the store's metrics collector.
func (s *Store) Metrics() *Metrics {
	return s.metrics
}

// Stats returns a snapshot of usage and metrics.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		Entries:     len(s.entries),
		UsedBytes:   s.usedBytes,
		MaxBytes:    s.policy.Storage.MaxTotalSize.Int64(),
		Utilization: s.utilizationLocked(),
		ByType:      make(map[asset.Type]TypeStats),
		Metrics:     s.metrics.Snapshot(),
	}
	for _, ie := range s.entries {
		ts := stats.ByType[ie.Key.Type]
		ts.Entries++
		ts.Bytes += ie.SizeBytes
		stats.ByType[ie.Key.Type] = ts
	}
	return stats
}

// Close stops the cleanup scheduler, flushes the journal and releases it.
// Every later call fails with NOT_INITIALIZED.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.state != stateOpen {
		wasNew := s.state == stateNew
		s.state = stateClosed
		s.mu.Unlock()
		if wasNew && s.journal != nil {
			return s.journal.Close()
		}
		return nil
	}
	s.state = stateClosed
	close(s.cleanupDone)
	s.mu.Unlock()

	s.cleanupWG.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	flushErr := s.flushLocked(context.Background())
	var closeErr error
	if err := s.journal.Close(); err != nil {
		closeErr = fmt.Errorf("failed to close journal: %w", err)
	}
	return errors.Join(flushErr, closeErr)
}

func (s *Store) utilizationLocked() float64 {
	return float64(s.usedBytes) / float64(s.policy.Storage.MaxTotalSize)
}

func (s *Store) snapshotLocked() []*IndexEntry {
	out := make([]*IndexEntry, 0, len(s.entries))
	for _, ie := range s.entries {
		out = append(out, ie)
	}
	return out
}

func (s *Store) evictLocked(ctx context.Context, need int64, exclude, reason string) (int, int64) {
	now := s.now()
	victims := SelectVictims(s.snapshotLocked(), need, now, s.weights, exclude)

	var freed int64
	for _, ie := range victims {
		why := reason
		if Expired(ie, now, s.weights.MaxAge) {
			why = "expired"
		}
		s.removeLocked(ctx, ie, why, true)
		freed += ie.SizeBytes
	}
	return len(victims), freed
}

func (s *Store) cleanupLocked(ctx context.Context, exclude string) {
	start := time.Now()
	maxTotal := float64(s.policy.Storage.MaxTotalSize)

	var need int64
	if s.utilizationLocked() >= s.policy.Storage.CleanupThreshold {
		need = s.usedBytes - int64(maxTotal*s.policy.Storage.CleanupTarget)
	}
	removed, freed := s.evictLocked(ctx, need, exclude, "cleanup")
	if removed > 0 {
		logging.LogCleanup(ctx, s.logger.WithOperation(logging.OpCleanup), removed, freed, time.Since(start))
	}
}

// removeLocked drops an entry from the index and deletes its blob. The
// index is updated even when the blob cannot be deleted so usedBytes
// never overstates what is reachable; stray blobs are collected by the
// next Initialize.
func (s *Store) removeLocked(ctx context.Context, ie *IndexEntry, reason string, eviction bool) {
	if err := s.storage.Remove(ctx, BlobPath(ie.Digest)); err != nil {
		s.metrics.RecordError()
		s.logger.Warn(ctx, "failed to delete cache blob", "key", ie.Key.String(), "error", err)
	}
	delete(s.entries, ie.Digest)
	s.usedBytes -= ie.SizeBytes
	s.dirty = true

	if eviction {
		s.metrics.RecordEviction(ie.SizeBytes)
		logging.LogEviction(ctx, s.logger, ie.Key.String(), ie.SizeBytes, reason)
	}
	if s.onRemove != nil {
		s.onRemove(ie.Key, ie.SizeBytes)
	}
}

func (s *Store) flushLocked(ctx context.Context) error {
	if !s.dirty {
		return nil
	}
	snapshot := make([]*IndexEntry, 0, len(s.entries))
	for _, ie := range s.entries {
		snapshot = append(snapshot, ie.clone())
	}
	if err := s.journal.Save(ctx, snapshot); err != nil {
		s.metrics.RecordError()
		return asseterrors.Wrap(err, asseterrors.CodeStorage, "failed to save cache journal")
	}
	s.dirty = false
	return nil
}

func (s *Store) startCleanupScheduler() {
	interval := s.policy.Storage.CleanupInterval
	if interval <= 0 {
		return
	}

	s.cleanupWG.Add(1)
	go func() {
		defer s.cleanupWG.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.cleanupDone:
				return
			case <-ticker.C:
				ctx := context.Background()
				if err := s.Cleanup(ctx); err != nil && !asseterrors.HasCode(err, asseterrors.CodeNotInitialized) {
					// Best effort; the next tick retries.
					s.metrics.RecordError()
					s.logger.Warn(ctx, "scheduled cache cleanup failed", "error", err)
				}
			}
		}
	}()
}
