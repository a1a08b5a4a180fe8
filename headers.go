package assets

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jmgilman/go/assets/asset"
	asseterrors "github.com/jmgilman/go/assets/errors"
	"github.com/jmgilman/go/assets/policy"
)

// CacheHeaders is the HTTP caching advice for serving an asset type.
type CacheHeaders struct {
	CacheControl string `json:"Cache-Control"`
	Expires      string `json:"Expires"`
}

// Apply sets the headers on h.
func (c CacheHeaders) Apply(h http.Header) {
	h.Set("Cache-Control", c.CacheControl)
	h.Set("Expires", c.Expires)
}

// BuildCacheHeaders renders a rule relative to now. A rule with no max age
// yields no-cache and an Expires equal to now.
func BuildCacheHeaders(rule policy.CacheControlRule, now time.Time) CacheHeaders {
	if rule.MaxAge <= 0 {
		return CacheHeaders{
			CacheControl: "no-cache",
			Expires:      now.UTC().Format(http.TimeFormat),
		}
	}

	cc := "public, max-age=" + strconv.FormatInt(int64(rule.MaxAge/time.Second), 10)
	if rule.Immutable {
		cc += ", immutable"
	}
	return CacheHeaders{
		CacheControl: cc,
		Expires:      now.Add(rule.MaxAge).UTC().Format(http.TimeFormat),
	}
}

// CacheHeaders returns the caching headers for t.
func (c *Client) CacheHeaders(t asset.Type) (CacheHeaders, error) {
	if !t.Valid() {
		return CacheHeaders{}, asseterrors.New(asseterrors.CodeInvalidInput, fmt.Sprintf("unknown asset type %q", t))
	}
	return BuildCacheHeaders(c.policy.CacheControlFor(t), c.now()), nil
}
