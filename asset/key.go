package asset

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/minio/sha256-simd"
)

// Variant selects one concrete rendition of a logical asset.
// Width and Height are zero when uncapped.
type Variant struct {
	Tier   Tier   `json:"tier"`
	Format string `json:"format,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Key identifies one cache entry. Keys that differ only in their variant
// name distinct entries.
type Key struct {
	Path    string  `json:"path"`
	Type    Type    `json:"type"`
	Variant Variant `json:"variant"`
}

// Validate checks that the key can be cached and resolved.
func (k Key) Validate() error {
	if strings.TrimSpace(k.Path) == "" {
		return fmt.Errorf("asset path cannot be empty")
	}
	if strings.ContainsAny(k.Path, "?#") {
		return fmt.Errorf("asset path %q must not contain a query string or fragment", k.Path)
	}
	if !k.Type.Valid() {
		return fmt.Errorf("unknown asset type %q", k.Type)
	}
	if !k.Variant.Tier.Valid() {
		return fmt.Errorf("invalid tier %d", int(k.Variant.Tier))
	}
	if k.Variant.Width < 0 || k.Variant.Height < 0 {
		return fmt.Errorf("variant dimensions cannot be negative")
	}
	return nil
}

// Canonical renders the key with its variant parameters in sorted order.
// Equal keys always produce the same string.
func (k Key) Canonical() string {
	params := url.Values{}
	params.Set("t", k.Variant.Tier.String())
	if k.Variant.Format != "" {
		params.Set("f", strings.ToLower(k.Variant.Format))
	}
	if k.Variant.Width > 0 {
		params.Set("w", strconv.Itoa(k.Variant.Width))
	}
	if k.Variant.Height > 0 {
		params.Set("h", strconv.Itoa(k.Variant.Height))
	}
	return string(k.Type) + ":" + strings.TrimPrefix(k.Path, "/") + "|" + params.Encode()
}

// Digest returns the hex SHA-256 of the canonical form. It is safe to use
// as a file name.
func (k Key) Digest() string {
	sum := sha256.Sum256([]byte(k.Canonical()))
	return hex.EncodeToString(sum[:])
}

func (k Key) String() string {
	return k.Canonical()
}

// WithTier returns a copy of k requesting tier t.
func (k Key) WithTier(t Tier) Key {
	k.Variant.Tier = t
	return k
}
