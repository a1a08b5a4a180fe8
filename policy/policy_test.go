package policy

import (
	"testing"
	"time"

	"github.com/jmgilman/go/fs/billy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmgilman/go/assets/asset"
	asseterrors "github.com/jmgilman/go/assets/errors"
)

func TestDefault(t *testing.T) {
	p := Default()
	require.NoError(t, p.Validate())

	assert.Equal(t, int64(500*1024*1024), p.Storage.MaxTotalSize.Int64())
	assert.Equal(t, int64(50*1024*1024), p.CeilingFor(asset.TypeTexture))
	assert.Equal(t, int64(100*1024*1024), p.CeilingFor(asset.TypeModel))
	assert.Equal(t, p.Storage.MaxTotalSize.Int64(), p.CeilingFor(asset.TypeFont))
	assert.Equal(t, 0.8, p.Storage.CleanupThreshold)
	assert.Equal(t, 0.3, p.Eviction.AccessCountWeight)
	assert.Equal(t, 0.7, p.Eviction.RecencyWeight)
	assert.Equal(t, 7*24*time.Hour, p.Eviction.MaxAge)
	assert.Equal(t, 3, p.Loading.MaxConcurrentLoads)
	assert.Equal(t, 50*MiB, p.Loading.PrefetchBudget)
	assert.Equal(t, 3, p.Retry.Attempts)
	assert.Equal(t, 500*time.Millisecond, p.Retry.Delay)
	assert.Equal(t, 30*time.Second, p.Retry.RequestTimeout)

	thresholds := make([]float64, 0, len(p.Tiers))
	for _, s := range p.Tiers {
		thresholds = append(thresholds, s.Threshold)
	}
	assert.Equal(t, []float64{1.0, 1.5, 2.5, 5.0}, thresholds)
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Policy)
	}{
		{"zero total size", func(p *Policy) { p.Storage.MaxTotalSize = 0 }},
		{"threshold above one", func(p *Policy) { p.Storage.CleanupThreshold = 1.5 }},
		{"target above threshold", func(p *Policy) { p.Storage.CleanupTarget = 0.9 }},
		{"negative weight", func(p *Policy) { p.Eviction.RecencyWeight = -1 }},
		{"zero weights", func(p *Policy) { p.Eviction.RecencyWeight, p.Eviction.AccessCountWeight = 0, 0 }},
		{"zero max age", func(p *Policy) { p.Eviction.MaxAge = 0 }},
		{"zero concurrency", func(p *Policy) { p.Loading.MaxConcurrentLoads = 0 }},
		{"hysteresis of one", func(p *Policy) { p.Loading.Hysteresis = 1 }},
		{"no tiers", func(p *Policy) { p.Tiers = nil }},
		{"non-increasing thresholds", func(p *Policy) { p.Tiers[2].Threshold = p.Tiers[1].Threshold }},
		{"descending pixel sizes", func(p *Policy) { p.Tiers[3].MaxPixelSize = 16 }},
		{"tiers out of order", func(p *Policy) { p.Tiers[0], p.Tiers[1] = p.Tiers[1], p.Tiers[0] }},
		{"bad quality", func(p *Policy) { p.Tiers[0].EncodingQuality = 0 }},
		{"unsorted buckets", func(p *Policy) { p.Device.ScreenBuckets[1].MaxScreen = 100 }},
		{"zero attempts", func(p *Policy) { p.Retry.Attempts = 0 }},
		{"unknown ceiling type", func(p *Policy) { p.Storage.TypeCeilings["video"] = MiB }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Default()
			tt.mutate(p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, asseterrors.HasCode(err, asseterrors.CodeInvalidConfig))
		})
	}
}

func TestPolicy_Accessors(t *testing.T) {
	p := Default()

	spec, ok := p.Spec(asset.TierHigh)
	require.True(t, ok)
	assert.Equal(t, 2048, spec.MaxPixelSize)

	limit, ok := p.CapFor(asset.PerformanceLow)
	require.True(t, ok)
	assert.Equal(t, asset.TierMedium, limit)
	_, ok = p.CapFor(asset.PerformanceHigh)
	assert.False(t, ok)

	assert.True(t, p.CompressAtRest(asset.TypeScript))
	assert.False(t, p.CompressAtRest(asset.TypeModel))

	rule := p.CacheControlFor(asset.TypeModel)
	assert.True(t, rule.Immutable)
	assert.Equal(t, 365*24*time.Hour, rule.MaxAge)
}

func TestPolicy_DimensionCeiling(t *testing.T) {
	p := Default()

	tests := []struct {
		width, height int
		want          int
	}{
		{0, 0, 0},
		{375, 667, 1024},
		{768, 600, 1024},
		{1280, 720, 2048},
		{1920, 1080, 2048},
		{2560, 1440, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, p.DimensionCeiling(tt.width, tt.height), "%dx%d", tt.width, tt.height)
	}
}

func TestLoad(t *testing.T) {
	fsys := billy.NewMemory()
	doc := `
storage:
  max_total_size: 1GiB
  type_ceilings:
    texture: 20MiB
eviction:
  max_age: 48h
tiers:
  - tier: standard
    max_pixel_size: 256
    encoding_quality: 50
    format: jpeg
    threshold: 2
  - tier: high
    max_pixel_size: 2048
    encoding_quality: 90
    format: webp
    threshold: 4
`
	require.NoError(t, fsys.WriteFile("assets.yaml", []byte(doc), 0o644))

	p, err := Load(fsys, "assets.yaml")
	require.NoError(t, err)

	assert.Equal(t, GiB, p.Storage.MaxTotalSize)
	assert.Equal(t, int64(20*MiB), p.CeilingFor(asset.TypeTexture))
	// Map overlays keep default keys.
	assert.Equal(t, int64(100*MiB), p.CeilingFor(asset.TypeModel))
	assert.Equal(t, 48*time.Hour, p.Eviction.MaxAge)
	assert.Equal(t, 0.7, p.Eviction.RecencyWeight)
	require.Len(t, p.Tiers, 2)
	assert.Equal(t, asset.TierHigh, p.Tiers[1].Tier)
}

func TestLoad_Errors(t *testing.T) {
	fsys := billy.NewMemory()

	_, err := Load(fsys, "missing.yaml")
	require.Error(t, err)
	assert.Equal(t, asseterrors.CodeInvalidConfig, asseterrors.GetCode(err))

	require.NoError(t, fsys.WriteFile("bad.yaml", []byte("storage:\n  max_total_size: lots\n"), 0o644))
	_, err = Load(fsys, "bad.yaml")
	assert.Error(t, err)

	require.NoError(t, fsys.WriteFile("unknown.yaml", []byte("storage:\n  colour: blue\n"), 0o644))
	_, err = Load(fsys, "unknown.yaml")
	assert.Error(t, err)

	require.NoError(t, fsys.WriteFile("invalid.yaml", []byte("retry:\n  attempts: 0\n"), 0o644))
	_, err = Load(fsys, "invalid.yaml")
	assert.Error(t, err)
}

func TestParse_Empty(t *testing.T) {
	p, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), p)
}

func TestEncode_RoundTrip(t *testing.T) {
	data, err := Default().Encode()
	require.NoError(t, err)
	assert.Contains(t, string(data), "max_total_size: 500 MiB")

	p, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, Default(), p)
}

func TestByteSize(t *testing.T) {
	b, err := ParseByteSize("500MiB")
	require.NoError(t, err)
	assert.Equal(t, 500*MiB, b)

	b, err = ParseByteSize("1024")
	require.NoError(t, err)
	assert.Equal(t, KiB, b)

	_, err = ParseByteSize("huge")
	assert.Error(t, err)

	assert.Equal(t, "50 MiB", (50 * MiB).String())

	var text ByteSize
	require.NoError(t, text.UnmarshalText([]byte("2GiB")))
	assert.Equal(t, 2*GiB, text)
}
