package main

import (
	"github.com/spf13/pflag"

	"github.com/jmgilman/go/assets"
	"github.com/jmgilman/go/assets/asset"
	asseterrors "github.com/jmgilman/go/assets/errors"
	"github.com/jmgilman/go/assets/policy"
)

// selector holds the flags that pick an asset variant.
type selector struct {
	Type         string
	Tier         string
	Performance  string
	ScreenWidth  int
	ScreenHeight int
}

func (s *selector) register(f *pflag.FlagSet) {
	f.StringVarP(&s.Type, "type", "t", "", "asset type: model, texture, font, image, script or style")
	f.StringVar(&s.Tier, "tier", asset.TierHigh.String(), "quality tier: standard, medium, high or ultra")
	f.StringVar(&s.Performance, "performance", "", "device performance: low, medium or high")
	f.IntVar(&s.ScreenWidth, "screen-width", 0, "screen width in pixels")
	f.IntVar(&s.ScreenHeight, "screen-height", 0, "screen height in pixels")
}

func (s *selector) assetType() (asset.Type, error) {
	t, err := asset.ParseType(s.Type)
	if err != nil {
		return "", asseterrors.Wrap(err, asseterrors.CodeInvalidInput, "invalid asset type")
	}
	return t, nil
}

func (s *selector) device() (assets.DeviceHints, error) {
	level, err := asset.ParsePerformanceLevel(s.Performance)
	if err != nil {
		return assets.DeviceHints{}, asseterrors.Wrap(err, asseterrors.CodeInvalidInput, "invalid performance level")
	}
	return assets.DeviceHints{
		Performance:  level,
		ScreenWidth:  s.ScreenWidth,
		ScreenHeight: s.ScreenHeight,
	}, nil
}

// key adapts path to the selected tier, capped for the device.
func (s *selector) key(p *policy.Policy, path string) (asset.Key, asset.Tier, error) {
	t, err := s.assetType()
	if err != nil {
		return asset.Key{}, 0, err
	}
	tier, err := asset.ParseTier(s.Tier)
	if err != nil {
		return asset.Key{}, 0, asseterrors.Wrap(err, asseterrors.CodeInvalidInput, "invalid tier")
	}
	device, err := s.device()
	if err != nil {
		return asset.Key{}, 0, err
	}
	if limit, ok := p.CapFor(device.Performance); ok && tier > limit {
		tier = limit
	}
	return assets.AdaptKey(p, path, t, tier, device), tier, nil
}
