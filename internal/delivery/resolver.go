package delivery

import (
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/jmgilman/go/assets/asset"
	asseterrors "github.com/jmgilman/go/assets/errors"
)

// typePrefixes maps each asset type to its directory on the origin.
var typePrefixes = map[asset.Type]string{
	asset.TypeModel:   "models",
	asset.TypeTexture: "textures",
	asset.TypeFont:    "fonts",
	asset.TypeImage:   "images",
	asset.TypeScript:  "js",
	asset.TypeStyle:   "css",
}

// compressedSuffix is inserted before a model's extension to request the
// pre-compressed variant.
const compressedSuffix = ".draco"

// Options shape a single request.
type Options struct {
	// Quality is the encoding quality (q). Zero omits it.
	Quality int
	// Format is the requested encoding (f). Empty omits it.
	Format string
	// Width and Height are pixel ceilings (w, h). Zero omits them.
	Width  int
	Height int
	// ForceFallback resolves against the fallback endpoint even when the
	// primary is healthy.
	ForceFallback bool
	// Uncompressed opts out of the pre-compressed model variant.
	Uncompressed bool
	// MaxBytes rejects payloads larger than this before they are read.
	// Zero means unbounded.
	MaxBytes int64
}

// Resolver builds asset URLs against the healthy endpoint.
type Resolver struct {
	env       Environment
	endpoints EndpointSet
	health    *EndpointHealth
}

// NewResolver returns a Resolver routing by health.
func NewResolver(env Environment, endpoints EndpointSet, health *EndpointHealth) *Resolver {
	if health == nil {
		health = &EndpointHealth{}
	}
	return &Resolver{env: env, endpoints: endpoints, health: health}
}

// ResolveURL returns the URL for a logical path.
//
// The primary endpoint is used unless it is marked failed or
// opts.ForceFallback is set. Quality and format parameters are sent for
// every type; width and height only for types the origin can resize. In
// production, model paths
// are rewritten to their pre-compressed variant unless opts.Uncompressed
// is set.
func (r *Resolver) ResolveURL(logicalPath string, t asset.Type, opts Options) (string, error) {
	u, _, err := r.resolve(logicalPath, t, opts)
	return u, err
}

func (r *Resolver) resolve(logicalPath string, t asset.Type, opts Options) (string, Endpoint, error) {
	endpoint := r.endpoints.Primary
	if opts.ForceFallback || r.health.IsFailed(endpoint.Name) {
		endpoint = r.endpoints.Fallback
	}

	if err := validatePath(logicalPath); err != nil {
		return "", endpoint, err
	}
	prefix, ok := typePrefixes[t]
	if !ok {
		return "", endpoint, asseterrors.WithContext(
			asseterrors.Newf(asseterrors.CodeInvalidInput, "unknown asset type %q", t),
			"path", logicalPath)
	}

	p := strings.TrimPrefix(logicalPath, "/")
	if t == asset.TypeModel && r.env == Production && !opts.Uncompressed {
		p = compressedVariant(p)
	}

	base, err := url.Parse(endpoint.BaseURL)
	if err != nil {
		return "", endpoint, asseterrors.Wrap(err, asseterrors.CodeInvalidConfig, "invalid endpoint base URL")
	}
	u := base.JoinPath(prefix, p)

	q := url.Values{}
	if opts.Quality > 0 {
		q.Set("q", strconv.Itoa(opts.Quality))
	}
	if opts.Format != "" {
		q.Set("f", strings.ToLower(opts.Format))
	}
	if t.SupportsDimensions() {
		if opts.Width > 0 {
			q.Set("w", strconv.Itoa(opts.Width))
		}
		if opts.Height > 0 {
			q.Set("h", strconv.Itoa(opts.Height))
		}
	}
	u.RawQuery = q.Encode()

	return u.String(), endpoint, nil
}

func validatePath(p string) error {
	if strings.TrimPrefix(p, "/") == "" {
		return asseterrors.New(asseterrors.CodeInvalidInput, "asset path cannot be empty")
	}
	if strings.ContainsAny(p, "?#") {
		return asseterrors.WithContext(
			asseterrors.New(asseterrors.CodeInvalidInput, "asset path must not contain a query or fragment"),
			"path", p)
	}
	return nil
}

// compressedVariant turns "body/biceps.glb" into "body/biceps.draco.glb".
func compressedVariant(p string) string {
	ext := path.Ext(p)
	stem := strings.TrimSuffix(p, ext)
	if strings.HasSuffix(stem, compressedSuffix) {
		return p
	}
	return stem + compressedSuffix + ext
}
