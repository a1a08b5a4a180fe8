package assets

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmgilman/go/fs/billy"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/jmgilman/go/assets/asset"
	asseterrors "github.com/jmgilman/go/assets/errors"
	"github.com/jmgilman/go/assets/internal/cache"
	"github.com/jmgilman/go/assets/internal/delivery"
	"github.com/jmgilman/go/assets/internal/ladder"
	"github.com/jmgilman/go/assets/internal/logging"
	"github.com/jmgilman/go/assets/policy"
)

// Metadata keys recorded with every cached entry.
const (
	MetaContentType = "content_type"
	MetaURL         = "url"
	MetaEndpoint    = "endpoint"
)

// Client serves assets from the local cache and fetches misses from the
// CDN. It is safe for concurrent use.
type Client struct {
	// options contains the client configuration
	options *ClientOptions

	policy  *policy.Policy
	store   *cache.Store
	manager *delivery.Manager
	ladder  *ladder.Ladder
	logger  *logging.Logger
	now     func() time.Time

	// flights coalesces concurrent misses on the same key
	flights  singleflight.Group
	budget   *prefetchBudget
	preloads *semaphore.Weighted

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup

	// mu guards closed so no background work starts after Close
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// New creates a Client and opens its cache.
//
// Example usage:
//
//	client, err := assets.New(ctx,
//	    assets.WithEnvironment(assets.Staging),
//	    assets.WithCachePath("/var/cache/assets"),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
func New(ctx context.Context, opts ...ClientOption) (*Client, error) {
	options := DefaultClientOptions()
	for _, opt := range opts {
		opt(options)
	}

	if options.Policy == nil {
		options.Policy = policy.Default()
	}
	if options.FS == nil {
		options.FS = billy.NewLocal()
	}
	if options.CachePath == "" {
		options.CachePath = DefaultCachePath()
	}
	if err := validateClientOptions(options); err != nil {
		return nil, asseterrors.Wrap(err, asseterrors.CodeInvalidConfig, "invalid client options")
	}
	if err := options.Policy.Validate(); err != nil {
		return nil, err
	}

	logger := logging.NewNopLogger()
	if options.Logger != nil {
		logger = logging.FromSlog(options.Logger)
	}

	mgrOpts := []delivery.Option{
		delivery.WithEnvironment(options.Environment),
		delivery.WithHTTPClient(options.HTTPClient),
		delivery.WithLogger(logger),
		delivery.WithTimer(options.RetryTimer),
		delivery.WithTracerProvider(options.TracerProvider),
	}
	if options.Endpoints != nil {
		mgrOpts = append(mgrOpts, delivery.WithEndpoints(*options.Endpoints))
	}
	manager, err := delivery.NewManager(options.Policy, mgrOpts...)
	if err != nil {
		return nil, err
	}

	c := &Client{
		options:  options,
		policy:   options.Policy,
		manager:  manager,
		ladder:   ladder.New(options.Policy),
		logger:   logger,
		now:      options.Clock,
		budget:   newPrefetchBudget(options.Policy.Loading.PrefetchBudget.Int64()),
		preloads: semaphore.NewWeighted(int64(options.Policy.Loading.MaxConcurrentLoads)),
	}

	storeOpts := []cache.Option{
		cache.WithLogger(logger),
		cache.WithClock(options.Clock),
		cache.WithEvictionHook(func(key asset.Key, _ int64) {
			c.budget.release(key.Digest())
		}),
	}
	if options.SQLitePath != "" {
		journal, err := cache.OpenSQLiteJournal(options.SQLitePath)
		if err != nil {
			return nil, asseterrors.Wrap(err, asseterrors.CodeStorage, "failed to open cache journal")
		}
		storeOpts = append(storeOpts, cache.WithJournal(journal))
	}

	store, err := cache.New(options.FS, options.CachePath, options.Policy, storeOpts...)
	if err != nil {
		return nil, err
	}
	if err := store.Initialize(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	c.store = store

	c.bgCtx, c.bgCancel = context.WithCancel(context.Background())
	c.startHealthReset()

	return c, nil
}

// DefaultCachePath is the cache location used when none is configured.
func DefaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "assets")
}

// RequestAsset returns the bytes for key.
//
// A cached entry is returned without touching the network. On a miss the
// asset is fetched, committed to the cache and then returned, so an
// immediate second request is a hit. Concurrent misses for the same key
// share one fetch, which outlives any caller that gives up waiting on it:
// only Close stops it. Delivery errors are returned unchanged. An asset too
// large to ever be cached fails with QUOTA_EXCEEDED; other cache write
// failures are logged and the fetched bytes are still returned.
func (c *Client) RequestAsset(ctx context.Context, key asset.Key) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, asseterrors.Wrap(err, asseterrors.CodeInvalidInput, "invalid asset key")
	}

	entry, err := c.store.Get(ctx, key)
	if err == nil {
		c.budget.release(key.Digest())
		return entry.Data, nil
	}
	if !cache.IsMiss(err) {
		return nil, err
	}

	flight := c.flights.DoChan(key.Digest(), func() (interface{}, error) {
		fctx, cancel := c.detach(ctx)
		defer cancel()
		return c.fetchAndCommit(fctx, key, c.maxBytes(key.Type))
	})
	select {
	case <-ctx.Done():
		return nil, asseterrors.Abandoned(ctx, ctx.Err(), "request abandoned",
			map[string]interface{}{"key": key.String()})
	case res := <-flight:
		if res.Err != nil {
			return nil, res.Err
		}
		data := res.Val.([]byte)
		if res.Shared {
			data = bytes.Clone(data)
		}
		return data, nil
	}
}

// detach returns a context that keeps ctx's values but ends only when the
// client closes.
func (c *Client) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(c.bgCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (c *Client) maxBytes(t asset.Type) int64 {
	return c.policy.CeilingFor(t)
}

func (c *Client) fetchAndCommit(ctx context.Context, key asset.Key, maxBytes int64) ([]byte, error) {
	// A flight that finished just before this one started may have
	// committed the entry already.
	if c.store.Has(key) {
		if entry, err := c.store.Get(ctx, key); err == nil {
			return entry.Data, nil
		}
	}

	payload, err := c.manager.LoadAsset(ctx, key.Path, key.Type, fetchOptions(c.policy, key, maxBytes))
	if err != nil {
		return nil, err
	}

	if err := c.store.Put(ctx, key, payload.Data, metadataFor(payload)); err != nil {
		if asseterrors.HasCode(err, asseterrors.CodeQuotaExceeded) ||
			asseterrors.HasCode(err, asseterrors.CodeNotInitialized) {
			return nil, err
		}
		c.logger.Warn(ctx, "failed to cache asset", "key", key.String(), "error", err.Error())
	}
	return payload.Data, nil
}

func metadataFor(p *delivery.Payload) map[string]string {
	return map[string]string{
		MetaContentType: p.ContentType,
		MetaURL:         p.URL,
		MetaEndpoint:    p.Endpoint,
	}
}

// AssetRequest is a request expressed in renderer terms.
type AssetRequest struct {
	Path string
	Type asset.Type
	// Signal is the level-of-detail signal, such as camera zoom.
	Signal float64
	Device DeviceHints
}

// Response is the result of Request.
type Response struct {
	Key  asset.Key
	Tier asset.Tier
	Data []byte
}

// Request picks a tier for the signal, adapts the variant to the device,
// returns the asset and, when the next tier up differs, starts a
// background preload of it within the prefetch budget.
func (c *Client) Request(ctx context.Context, req AssetRequest) (*Response, error) {
	tier := c.ladder.PickTier(req.Signal, req.Device.Performance)
	key := AdaptKey(c.policy, req.Path, req.Type, tier, req.Device)

	data, err := c.RequestAsset(ctx, key)
	if err != nil {
		return nil, err
	}

	c.lookahead(req, tier, key)
	return &Response{Key: key, Tier: tier, Data: data}, nil
}

// lookahead preloads the tier the signal is heading towards. It never
// blocks and reports whether a preload was started.
func (c *Client) lookahead(req AssetRequest, tier asset.Tier, current asset.Key) bool {
	next := c.ladder.Peek(req.Signal+c.policy.Loading.PreloadDistance, req.Device.Performance)
	if next == tier {
		return false
	}
	key := AdaptKey(c.policy, req.Path, req.Type, next, req.Device)
	if key == current || c.store.Has(key) {
		return false
	}

	if !c.preloads.TryAcquire(1) {
		return false
	}
	room, ok := c.budget.reserve(key.Digest(), c.maxBytes(key.Type))
	if !ok {
		c.preloads.Release(1)
		return false
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.budget.settle(key.Digest(), 0)
		c.preloads.Release(1)
		return false
	}
	c.bgWG.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.bgWG.Done()
		defer c.preloads.Release(1)

		var size int64
		defer func() { c.budget.settle(key.Digest(), size) }()

		ctx := c.bgCtx
		logger := c.logger.WithOperation(logging.OpPreload).WithKey(key)
		v, err, _ := c.flights.Do("lookahead:"+key.Digest(), func() (interface{}, error) {
			return c.fetchAndCommit(ctx, key, room)
		})
		if err != nil {
			logger.Debug(ctx, "lookahead preload failed", "error", err.Error())
			return
		}
		if c.store.Has(key) {
			size = int64(len(v.([]byte)))
		}
		logger.Debug(ctx, "lookahead preload committed", "size", size)
	}()
	return true
}

// PreloadOutcome is the settled result of preloading one key.
type PreloadOutcome struct {
	Key asset.Key
	// Cached is true when the key was already cached and nothing was
	// fetched.
	Cached bool
	// Size is the number of bytes committed.
	Size int64
	Err  error
}

// OK reports whether the key is now cached.
func (o PreloadOutcome) OK() bool { return o.Err == nil }

// PreloadAssets makes every key cached. Keys already cached settle at
// once; the rest are fetched with at most MaxConcurrentLoads in flight
// and committed. Failures are logged and reported per key.
func (c *Client) PreloadAssets(ctx context.Context, keys []asset.Key) []PreloadOutcome {
	outcomes := make([]PreloadOutcome, len(keys))

	var (
		reqs []delivery.Request
		idx  []int
	)
	for i, key := range keys {
		outcomes[i].Key = key
		if err := key.Validate(); err != nil {
			outcomes[i].Err = asseterrors.Wrap(err, asseterrors.CodeInvalidInput, "invalid asset key")
			continue
		}
		if c.store.Has(key) {
			outcomes[i].Cached = true
			continue
		}
		reqs = append(reqs, delivery.Request{
			Path:    key.Path,
			Type:    key.Type,
			Options: fetchOptions(c.policy, key, c.maxBytes(key.Type)),
		})
		idx = append(idx, i)
	}

	logger := c.logger.WithOperation(logging.OpPreload)
	for j, res := range c.manager.PreloadAssets(ctx, reqs) {
		i := idx[j]
		if res.Err != nil {
			outcomes[i].Err = res.Err
			continue
		}
		if err := c.store.Put(ctx, keys[i], res.Payload.Data, metadataFor(res.Payload)); err != nil {
			logger.Warn(ctx, "failed to cache preloaded asset", "key", keys[i].String(), "error", err.Error())
			outcomes[i].Err = err
			continue
		}
		outcomes[i].Size = int64(len(res.Payload.Data))
	}
	return outcomes
}

// CheckEndpointHealth probes every endpoint and reports which are up. It
// does not change failover routing.
func (c *Client) CheckEndpointHealth(ctx context.Context) map[string]bool {
	return c.manager.CheckEndpointHealth(ctx)
}

// ResetFailedEndpoints routes requests to the primary endpoint again.
func (c *Client) ResetFailedEndpoints() {
	c.manager.ResetFailedEndpoints()
}

// ResolveURL returns the URL a fetch of key would use right now.
func (c *Client) ResolveURL(key asset.Key) (string, error) {
	return c.manager.ResolveURL(key.Path, key.Type, fetchOptions(c.policy, key, 0))
}

// PickTier runs the client's resolution ladder.
func (c *Client) PickTier(signal float64, level asset.PerformanceLevel) asset.Tier {
	return c.ladder.PickTier(signal, level)
}

// Policy returns the client's policy. It must not be modified.
func (c *Client) Policy() *policy.Policy {
	return c.policy
}

// Stats is a point-in-time view of the client.
type Stats struct {
	Cache           cache.Stats `json:"cache"`
	Environment     string      `json:"environment"`
	FailedEndpoints []string    `json:"failed_endpoints"`
	PrefetchBytes   int64       `json:"prefetch_bytes"`
	PrefetchBudget  int64       `json:"prefetch_budget"`
}

// Stats returns cache usage, metrics and failover state.
func (c *Client) Stats() Stats {
	return Stats{
		Cache:           c.store.Stats(),
		Environment:     string(c.manager.Environment()),
		FailedEndpoints: c.manager.Health().Failed(),
		PrefetchBytes:   c.budget.Used(),
		PrefetchBudget:  c.budget.limit,
	}
}

// Purge removes key from the cache.
func (c *Client) Purge(ctx context.Context, key asset.Key) error {
	if err := key.Validate(); err != nil {
		return asseterrors.Wrap(err, asseterrors.CodeInvalidInput, "invalid asset key")
	}
	return c.store.Purge(ctx, key)
}

// Clear removes every cached entry.
func (c *Client) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// Close stops background work and closes the cache. Later requests fail
// with NOT_INITIALIZED.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.bgCancel()
		c.bgWG.Wait()
		c.closeErr = c.store.Close()
	})
	return c.closeErr
}

func (c *Client) startHealthReset() {
	interval := c.options.HealthResetInterval
	if interval <= 0 {
		return
	}

	c.bgWG.Add(1)
	go func() {
		defer c.bgWG.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-c.bgCtx.Done():
				return
			case <-ticker.C:
				if failed := c.manager.Health().Failed(); len(failed) > 0 {
					c.logger.Info(c.bgCtx, "resetting failed endpoints", "endpoints", failed)
					c.manager.ResetFailedEndpoints()
				}
			}
		}
	}()
}
