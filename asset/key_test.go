package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_Validate(t *testing.T) {
	tests := []struct {
		name    string
		key     Key
		wantErr bool
	}{
		{
			name: "valid model",
			key:  Key{Path: "biceps.glb", Type: TypeModel},
		},
		{
			name:    "empty path",
			key:     Key{Path: " ", Type: TypeModel},
			wantErr: true,
		},
		{
			name:    "query string",
			key:     Key{Path: "biceps.glb?v=2", Type: TypeModel},
			wantErr: true,
		},
		{
			name:    "unknown type",
			key:     Key{Path: "a.bin", Type: Type("video")},
			wantErr: true,
		},
		{
			name:    "invalid tier",
			key:     Key{Path: "a.png", Type: TypeTexture, Variant: Variant{Tier: Tier(9)}},
			wantErr: true,
		},
		{
			name:    "negative width",
			key:     Key{Path: "a.png", Type: TypeTexture, Variant: Variant{Width: -1}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.key.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestKey_Canonical(t *testing.T) {
	key := Key{
		Path: "/textures/skin.png",
		Type: TypeTexture,
		Variant: Variant{
			Tier:   TierHigh,
			Format: "WEBP",
			Width:  2048,
			Height: 1024,
		},
	}

	assert.Equal(t, "texture:textures/skin.png|f=webp&h=1024&t=high&w=2048", key.Canonical())
	assert.Equal(t, key.Canonical(), key.String())
}

func TestKey_DigestDistinguishesVariants(t *testing.T) {
	base := Key{Path: "biceps.glb", Type: TypeModel}

	assert.Equal(t, base.Digest(), base.Digest())
	assert.NotEqual(t, base.Digest(), base.WithTier(TierUltra).Digest())
	assert.Len(t, base.Digest(), 64)
}

func TestParseType(t *testing.T) {
	typ, err := ParseType(" Texture ")
	require.NoError(t, err)
	assert.Equal(t, TypeTexture, typ)

	_, err = ParseType("video")
	assert.Error(t, err)

	assert.True(t, TypeImage.SupportsDimensions())
	assert.False(t, TypeModel.SupportsDimensions())
}

func TestTier_TextRoundTrip(t *testing.T) {
	for _, tier := range Tiers {
		text, err := tier.MarshalText()
		require.NoError(t, err)

		var parsed Tier
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, tier, parsed)
	}

	assert.True(t, TierStandard < TierMedium && TierHigh < TierUltra)
	_, err := ParseTier("extreme")
	assert.Error(t, err)
	assert.Equal(t, "tier(7)", Tier(7).String())
}

func TestParsePerformanceLevel(t *testing.T) {
	level, err := ParsePerformanceLevel("")
	require.NoError(t, err)
	assert.Equal(t, PerformanceHigh, level)

	level, err = ParsePerformanceLevel("LOW")
	require.NoError(t, err)
	assert.Equal(t, PerformanceLow, level)

	_, err = ParsePerformanceLevel("turbo")
	assert.Error(t, err)
}
