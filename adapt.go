package assets

import (
	"github.com/jmgilman/go/assets/asset"
	"github.com/jmgilman/go/assets/internal/delivery"
	"github.com/jmgilman/go/assets/policy"
)

// DeviceHints describe the device an asset is displayed on.
type DeviceHints struct {
	// Performance caps the tier. Empty means high.
	Performance asset.PerformanceLevel
	// ScreenWidth and ScreenHeight select a pixel ceiling. Zero means
	// unknown and leaves the tier's pixel size uncapped.
	ScreenWidth  int
	ScreenHeight int
}

// AdaptKey builds the cache key for path at tier on a device. Every type
// carries the tier and its format, so each tier is a distinct entry. Types
// the origin can resize also carry a pixel size: the tier's MaxPixelSize
// bounded by the screen bucket ceiling.
func AdaptKey(p *policy.Policy, logicalPath string, t asset.Type, tier asset.Tier, device DeviceHints) asset.Key {
	key := asset.Key{Path: logicalPath, Type: t}
	spec, ok := p.Spec(tier)
	if !ok {
		return key
	}
	key.Variant = asset.Variant{Tier: tier, Format: spec.Format}
	if !t.SupportsDimensions() {
		return key
	}

	px := spec.MaxPixelSize
	if ceiling := p.DimensionCeiling(device.ScreenWidth, device.ScreenHeight); ceiling > 0 && ceiling < px {
		px = ceiling
	}
	key.Variant.Width = px
	key.Variant.Height = px
	return key
}

// fetchOptions turns a key into request options. maxBytes bounds the
// payload; zero leaves it unbounded. A key without a format was not
// adapted and asks for the origin's default rendition.
func fetchOptions(p *policy.Policy, key asset.Key, maxBytes int64) delivery.Options {
	opts := delivery.Options{MaxBytes: maxBytes}
	if key.Variant.Format == "" {
		return opts
	}
	if spec, ok := p.Spec(key.Variant.Tier); ok {
		opts.Quality = spec.EncodingQuality
	}
	opts.Format = key.Variant.Format
	if key.Type.SupportsDimensions() {
		opts.Width = key.Variant.Width
		opts.Height = key.Variant.Height
	}
	return opts
}
