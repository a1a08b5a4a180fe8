package asset

import (
	"fmt"
	"strings"
)

// Type is the kind of asset being requested.
type Type string

// Supported asset types.
const (
	TypeModel   Type = "model"
	TypeTexture Type = "texture"
	TypeFont    Type = "font"
	TypeImage   Type = "image"
	TypeScript  Type = "script"
	TypeStyle   Type = "style"
)

// Types lists every supported asset type.
var Types = []Type{TypeModel, TypeTexture, TypeFont, TypeImage, TypeScript, TypeStyle}

// ParseType parses a type name. Matching is case-insensitive.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown asset type %q", s)
	}
	return t, nil
}

// Valid reports whether t is one of the supported types.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// SupportsDimensions reports whether the origin can resize this type on request.
func (t Type) SupportsDimensions() bool {
	return t == TypeTexture || t == TypeImage
}

func (t Type) String() string { return string(t) }

// Tier is a discrete quality level. Tiers are ordered: a larger value means
// more detail.
type Tier int

// Quality tiers in ascending order.
const (
	TierStandard Tier = iota
	TierMedium
	TierHigh
	TierUltra
)

// Tiers lists every tier in ascending order.
var Tiers = []Tier{TierStandard, TierMedium, TierHigh, TierUltra}

var tierNames = [...]string{"standard", "medium", "high", "ultra"}

func (t Tier) String() string {
	if t < TierStandard || t > TierUltra {
		return fmt.Sprintf("tier(%d)", int(t))
	}
	return tierNames[t]
}

// ParseTier parses a tier name.
func ParseTier(s string) (Tier, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range tierNames {
		if n == name {
			return Tier(i), nil
		}
	}
	return TierStandard, fmt.Errorf("unknown tier %q", s)
}

// Valid reports whether t is a defined tier.
func (t Tier) Valid() bool {
	return t >= TierStandard && t <= TierUltra
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid tier %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// PerformanceLevel is the device capability hint reported by the renderer.
type PerformanceLevel string

// Device performance levels.
const (
	PerformanceLow    PerformanceLevel = "low"
	PerformanceMedium PerformanceLevel = "medium"
	PerformanceHigh   PerformanceLevel = "high"
)

// ParsePerformanceLevel parses a performance level. An empty string means high.
func ParsePerformanceLevel(s string) (PerformanceLevel, error) {
	switch PerformanceLevel(strings.ToLower(strings.TrimSpace(s))) {
	case "", PerformanceHigh:
		return PerformanceHigh, nil
	case PerformanceMedium:
		return PerformanceMedium, nil
	case PerformanceLow:
		return PerformanceLow, nil
	default:
		return "", fmt.Errorf("unknown performance level %q", s)
	}
}
