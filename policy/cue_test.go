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

func TestParseCUE(t *testing.T) {
	src := `
// Tighter cache for kiosks.
storage: {
	max_total_size: "1GiB"
	type_ceilings: texture: "20MiB"
	cleanup_threshold: 0.9
	cleanup_target:    cleanup_threshold - 0.4
}
eviction: max_age: "48h"
loading: max_concurrent_loads: 2 * 3
cache_control: image: {max_age: "1h", immutable: true}
`
	p, err := ParseCUE([]byte(src))
	require.NoError(t, err)

	assert.Equal(t, GiB, p.Storage.MaxTotalSize)
	assert.Equal(t, int64(20*MiB), p.CeilingFor(asset.TypeTexture))
	assert.Equal(t, int64(100*MiB), p.CeilingFor(asset.TypeModel))
	assert.InDelta(t, 0.5, p.Storage.CleanupTarget, 1e-9)
	assert.Equal(t, 48*time.Hour, p.Eviction.MaxAge)
	assert.Equal(t, 6, p.Loading.MaxConcurrentLoads)
	assert.Equal(t, CacheControlRule{MaxAge: time.Hour, Immutable: true}, p.CacheControlFor(asset.TypeImage))
	assert.Equal(t, Default().Tiers, p.Tiers)
}

func TestParseCUE_Empty(t *testing.T) {
	p, err := ParseCUE(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), p)
}

func TestParseCUE_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{name: "syntax", src: "storage: {"},
		{name: "unknown field", src: "storage: colour: \"blue\""},
		{name: "unknown type", src: "storage: type_ceilings: video: 10"},
		{name: "out of range", src: "storage: cleanup_threshold: 1.5"},
		{name: "bad tier", src: `tiers: [{tier: "max", max_pixel_size: 1, encoding_quality: 1, format: "png", threshold: 1}]`},
		{name: "not concrete", src: "loading: max_concurrent_loads: int"},
		{name: "fails validation", src: "storage: {cleanup_threshold: 0.5, cleanup_target: 0.6}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCUE([]byte(tt.src))
			require.Error(t, err)
			assert.Equal(t, asseterrors.CodeInvalidConfig, asseterrors.GetCode(err))
		})
	}
}

func TestLoad_CUE(t *testing.T) {
	fsys := billy.NewMemory()
	require.NoError(t, fsys.WriteFile("assets.cue", []byte(`retry: attempts: 5`), 0o644))

	p, err := Load(fsys, "assets.cue")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Retry.Attempts)
}
