package policy

import (
	"fmt"
	"sort"
	"time"

	"github.com/jmgilman/go/assets/asset"
	asseterrors "github.com/jmgilman/go/assets/errors"
)

// Policy is the complete set of tunables for a client.
type Policy struct {
	Storage      StoragePolicy                   `yaml:"storage"`
	Eviction     EvictionPolicy                  `yaml:"eviction"`
	Loading      LoadingPolicy                   `yaml:"loading"`
	Tiers        []TierSpec                      `yaml:"tiers"`
	Device       DevicePolicy                    `yaml:"device"`
	Retry        RetryPolicy                     `yaml:"retry"`
	CacheControl map[asset.Type]CacheControlRule `yaml:"cache_control"`
}

// StoragePolicy bounds the local cache.
type StoragePolicy struct {
	// MaxTotalSize is the hard cap on the sum of all entry sizes.
	MaxTotalSize ByteSize `yaml:"max_total_size"`
	// TypeCeilings caps the size of a single entry per asset type.
	// Types without a ceiling are bounded only by MaxTotalSize.
	TypeCeilings map[asset.Type]ByteSize `yaml:"type_ceilings"`
	// CleanupThreshold is the utilization ratio that triggers a cleanup pass.
	CleanupThreshold float64 `yaml:"cleanup_threshold"`
	// CleanupTarget is the utilization ratio a cleanup pass evicts down to.
	CleanupTarget float64 `yaml:"cleanup_target"`
	// CleanupInterval is the period of the background cleanup scheduler.
	// Zero disables the scheduler.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	// CompressTypes are stored zstd-compressed on disk.
	CompressTypes []asset.Type `yaml:"compress_types"`
}

// EvictionPolicy weights the eviction score.
type EvictionPolicy struct {
	AccessCountWeight float64       `yaml:"access_count_weight"`
	RecencyWeight     float64       `yaml:"recency_weight"`
	MaxAge            time.Duration `yaml:"max_age"`
}

// LoadingPolicy bounds background work.
type LoadingPolicy struct {
	MaxConcurrentLoads int      `yaml:"max_concurrent_loads"`
	PrefetchBudget     ByteSize `yaml:"prefetch_budget"`
	// PreloadDistance is added to the level-of-detail signal for lookahead.
	PreloadDistance float64 `yaml:"preload_distance"`
	// Hysteresis is the fractional margin a signal must clear past a tier
	// boundary before the ladder switches tiers.
	Hysteresis float64 `yaml:"hysteresis"`
}

// TierSpec describes one rung of the resolution ladder.
type TierSpec struct {
	Tier            asset.Tier `yaml:"tier"`
	MaxPixelSize    int        `yaml:"max_pixel_size"`
	EncodingQuality int        `yaml:"encoding_quality"`
	Format          string     `yaml:"format"`
	// Threshold is the upper edge of the signal range served by this tier.
	Threshold float64 `yaml:"threshold"`
}

// DevicePolicy maps device hints to ceilings.
type DevicePolicy struct {
	// PerformanceCaps limits the tier for a performance level.
	PerformanceCaps map[asset.PerformanceLevel]asset.Tier `yaml:"performance_caps"`
	// ScreenBuckets map the larger screen dimension to a pixel ceiling,
	// checked in ascending order. Screens above every bucket are uncapped.
	ScreenBuckets []ScreenBucket `yaml:"screen_buckets"`
}

// ScreenBucket caps asset dimensions for screens up to MaxScreen pixels.
type ScreenBucket struct {
	MaxScreen int `yaml:"max_screen"`
	Ceiling   int `yaml:"ceiling"`
}

// RetryPolicy configures network fetches.
type RetryPolicy struct {
	Attempts       int           `yaml:"attempts"`
	Delay          time.Duration `yaml:"delay"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	HealthTimeout  time.Duration `yaml:"health_timeout"`
}

// CacheControlRule is the HTTP caching advice for one asset type.
type CacheControlRule struct {
	MaxAge    time.Duration `yaml:"max_age"`
	Immutable bool          `yaml:"immutable"`
}

const day = 24 * time.Hour

// Default returns the stock policy.
func Default() *Policy {
	return &Policy{
		Storage: StoragePolicy{
			MaxTotalSize: 500 * MiB,
			TypeCeilings: map[asset.Type]ByteSize{
				asset.TypeTexture: 50 * MiB,
				asset.TypeModel:   100 * MiB,
			},
			CleanupThreshold: 0.8,
			CleanupTarget:    0.7,
			CleanupInterval:  5 * time.Minute,
			CompressTypes:    []asset.Type{asset.TypeScript, asset.TypeStyle},
		},
		Eviction: EvictionPolicy{
			AccessCountWeight: 0.3,
			RecencyWeight:     0.7,
			MaxAge:            7 * day,
		},
		Loading: LoadingPolicy{
			MaxConcurrentLoads: 3,
			PrefetchBudget:     50 * MiB,
			PreloadDistance:    1.0,
			Hysteresis:         0.1,
		},
		Tiers: []TierSpec{
			{Tier: asset.TierStandard, MaxPixelSize: 512, EncodingQuality: 60, Format: "jpeg", Threshold: 1.0},
			{Tier: asset.TierMedium, MaxPixelSize: 1024, EncodingQuality: 75, Format: "webp", Threshold: 1.5},
			{Tier: asset.TierHigh, MaxPixelSize: 2048, EncodingQuality: 85, Format: "webp", Threshold: 2.5},
			{Tier: asset.TierUltra, MaxPixelSize: 4096, EncodingQuality: 95, Format: "png", Threshold: 5.0},
		},
		Device: DevicePolicy{
			PerformanceCaps: map[asset.PerformanceLevel]asset.Tier{
				asset.PerformanceLow: asset.TierMedium,
			},
			ScreenBuckets: []ScreenBucket{
				{MaxScreen: 768, Ceiling: 1024},
				{MaxScreen: 1920, Ceiling: 2048},
			},
		},
		Retry: RetryPolicy{
			Attempts:       3,
			Delay:          500 * time.Millisecond,
			RequestTimeout: 30 * time.Second,
			HealthTimeout:  5 * time.Second,
		},
		CacheControl: map[asset.Type]CacheControlRule{
			asset.TypeModel:   {MaxAge: 365 * day, Immutable: true},
			asset.TypeTexture: {MaxAge: 365 * day, Immutable: true},
			asset.TypeFont:    {MaxAge: 365 * day, Immutable: true},
			asset.TypeImage:   {MaxAge: 30 * day},
			asset.TypeScript:  {MaxAge: day},
			asset.TypeStyle:   {MaxAge: day},
		},
	}
}

// Validate checks the policy for internal consistency.
func (p *Policy) Validate() error {
	if err := p.validate(); err != nil {
		return asseterrors.Wrap(err, asseterrors.CodeInvalidConfig, "invalid policy")
	}
	return nil
}

func (p *Policy) validate() error {
	s := p.Storage
	if s.MaxTotalSize <= 0 {
		return fmt.Errorf("max total size must be greater than 0")
	}
	for typ, ceiling := range s.TypeCeilings {
		if !typ.Valid() {
			return fmt.Errorf("type ceiling for unknown asset type %q", typ)
		}
		if ceiling <= 0 {
			return fmt.Errorf("type ceiling for %s must be greater than 0", typ)
		}
	}
	if s.CleanupThreshold <= 0 || s.CleanupThreshold > 1 {
		return fmt.Errorf("cleanup threshold must be in (0, 1], got %v", s.CleanupThreshold)
	}
	if s.CleanupTarget < 0 || s.CleanupTarget >= s.CleanupThreshold {
		return fmt.Errorf("cleanup target must be in [0, cleanup threshold), got %v", s.CleanupTarget)
	}
	if s.CleanupInterval < 0 {
		return fmt.Errorf("cleanup interval cannot be negative")
	}
	for _, typ := range s.CompressTypes {
		if !typ.Valid() {
			return fmt.Errorf("compress type %q is not an asset type", typ)
		}
	}

	e := p.Eviction
	if e.AccessCountWeight < 0 || e.RecencyWeight < 0 {
		return fmt.Errorf("eviction weights cannot be negative")
	}
	if e.AccessCountWeight+e.RecencyWeight == 0 {
		return fmt.Errorf("at least one eviction weight must be positive")
	}
	if e.MaxAge <= 0 {
		return fmt.Errorf("max age must be greater than 0")
	}

	l := p.Loading
	if l.MaxConcurrentLoads <= 0 {
		return fmt.Errorf("max concurrent loads must be greater than 0")
	}
	if l.PrefetchBudget < 0 {
		return fmt.Errorf("prefetch budget cannot be negative")
	}
	if l.PreloadDistance < 0 {
		return fmt.Errorf("preload distance cannot be negative")
	}
	if l.Hysteresis < 0 || l.Hysteresis >= 1 {
		return fmt.Errorf("hysteresis must be in [0, 1), got %v", l.Hysteresis)
	}

	if err := validateTiers(p.Tiers); err != nil {
		return err
	}

	for level, tier := range p.Device.PerformanceCaps {
		if _, err := asset.ParsePerformanceLevel(string(level)); err != nil {
			return err
		}
		if !tier.Valid() {
			return fmt.Errorf("performance cap for %s is not a tier", level)
		}
	}
	prev := 0
	for _, b := range p.Device.ScreenBuckets {
		if b.MaxScreen <= prev {
			return fmt.Errorf("screen buckets must be strictly ascending")
		}
		if b.Ceiling <= 0 {
			return fmt.Errorf("screen bucket ceiling must be greater than 0")
		}
		prev = b.MaxScreen
	}

	r := p.Retry
	if r.Attempts <= 0 {
		return fmt.Errorf("retry attempts must be greater than 0")
	}
	if r.Delay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}
	if r.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be greater than 0")
	}
	if r.HealthTimeout <= 0 {
		return fmt.Errorf("health timeout must be greater than 0")
	}

	for typ, rule := range p.CacheControl {
		if !typ.Valid() {
			return fmt.Errorf("cache control for unknown asset type %q", typ)
		}
		if rule.MaxAge < 0 {
			return fmt.Errorf("cache control max age for %s cannot be negative", typ)
		}
	}
	return nil
}

func validateTiers(tiers []TierSpec) error {
	if len(tiers) == 0 {
		return fmt.Errorf("resolution ladder must have at least one tier")
	}
	for i, spec := range tiers {
		if !spec.Tier.Valid() {
			return fmt.Errorf("ladder entry %d has an invalid tier", i)
		}
		if spec.MaxPixelSize <= 0 {
			return fmt.Errorf("tier %s max pixel size must be greater than 0", spec.Tier)
		}
		if spec.EncodingQuality < 1 || spec.EncodingQuality > 100 {
			return fmt.Errorf("tier %s encoding quality must be in [1, 100]", spec.Tier)
		}
		if i == 0 {
			continue
		}
		prev := tiers[i-1]
		if spec.Tier <= prev.Tier {
			return fmt.Errorf("ladder tiers must be listed in ascending order")
		}
		if spec.MaxPixelSize < prev.MaxPixelSize {
			return fmt.Errorf("tier %s max pixel size is below tier %s", spec.Tier, prev.Tier)
		}
		if spec.Threshold <= prev.Threshold {
			return fmt.Errorf("tier %s threshold must be greater than tier %s threshold", spec.Tier, prev.Tier)
		}
	}
	return nil
}

// CeilingFor returns the per-entry size ceiling for a type. Types without
// an explicit ceiling are bounded by MaxTotalSize.
func (p *Policy) CeilingFor(t asset.Type) int64 {
	if c, ok := p.Storage.TypeCeilings[t]; ok && c < p.Storage.MaxTotalSize {
		return c.Int64()
	}
	return p.Storage.MaxTotalSize.Int64()
}

// Spec returns the ladder entry for a tier.
func (p *Policy) Spec(t asset.Tier) (TierSpec, bool) {
	for _, s := range p.Tiers {
		if s.Tier == t {
			return s, true
		}
	}
	return TierSpec{}, false
}

// CapFor returns the highest tier allowed for a performance level.
func (p *Policy) CapFor(level asset.PerformanceLevel) (asset.Tier, bool) {
	t, ok := p.Device.PerformanceCaps[level]
	return t, ok
}

// DimensionCeiling returns the pixel ceiling for a screen, or 0 when the
// screen is unknown or larger than every bucket.
func (p *Policy) DimensionCeiling(width, height int) int {
	screen := max(width, height)
	if screen <= 0 {
		return 0
	}
	buckets := append([]ScreenBucket(nil), p.Device.ScreenBuckets...)
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].MaxScreen < buckets[j].MaxScreen })
	for _, b := range buckets {
		if screen <= b.MaxScreen {
			return b.Ceiling
		}
	}
	return 0
}

// CacheControlFor returns the caching rule for a type.
func (p *Policy) CacheControlFor(t asset.Type) CacheControlRule {
	return p.CacheControl[t]
}

// CompressAtRest reports whether entries of this type are stored compressed.
func (p *Policy) CompressAtRest(t asset.Type) bool {
	for _, c := range p.Storage.CompressTypes {
		if c == t {
			return true
		}
	}
	return false
}
