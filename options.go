package assets

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmgilman/go/fs/core"
	"go.opentelemetry.io/otel/trace"

	"github.com/jmgilman/go/assets/internal/delivery"
	"github.com/jmgilman/go/assets/policy"
)

// Environment selects the active endpoint set.
type Environment = delivery.Environment

// Deployment environments.
const (
	Production  = delivery.Production
	Staging     = delivery.Staging
	Development = delivery.Development
)

// ParseEnvironment parses an environment name. An empty string means
// production.
func ParseEnvironment(s string) (Environment, error) {
	return delivery.ParseEnvironment(s)
}

// DefaultEndpoints returns the stock endpoint set for env.
func DefaultEndpoints(env Environment) (EndpointSet, error) {
	return delivery.DefaultEndpoints(env)
}

// Endpoint is one origin able to serve assets.
type Endpoint = delivery.Endpoint

// EndpointSet is the primary, fallback and optional assets origin for one
// environment.
type EndpointSet = delivery.EndpointSet

// ClientOptions contains configuration options for the Client.
type ClientOptions struct {
	// Policy holds every limit and ladder. Defaults to policy.Default().
	Policy *policy.Policy

	// Environment selects the default endpoint set. Defaults to Production.
	Environment Environment

	// Endpoints overrides the environment's default endpoint set.
	Endpoints *EndpointSet

	// FS backs the cache store. If nil, the local filesystem is used.
	FS core.FS

	// CachePath is the store root on FS. If empty, a directory under the
	// user cache directory is used.
	CachePath string

	// SQLitePath selects the SQLite journal instead of the JSON-lines file
	// kept under CachePath. It is a path on the local disk.
	SQLitePath string

	// HTTPClient is used for every fetch and probe.
	HTTPClient *http.Client

	// Logger receives structured logs. If nil, logs are discarded.
	Logger *slog.Logger

	// HealthResetInterval periodically clears failed endpoints. Zero
	// disables the timer.
	HealthResetInterval time.Duration

	// RetryTimer creates the timer used between fetch retries.
	RetryTimer func() backoff.Timer

	// TracerProvider is used for delivery spans. Defaults to the global
	// provider.
	TracerProvider trace.TracerProvider

	// Clock overrides time.Now for cache timestamps and header expiry.
	Clock func() time.Time
}

// DefaultClientOptions returns the options used when none are given.
func DefaultClientOptions() *ClientOptions {
	return &ClientOptions{
		Environment: Production,
		Clock:       time.Now,
	}
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*ClientOptions)

// WithPolicy sets the policy.
func WithPolicy(p *policy.Policy) ClientOption {
	return func(opts *ClientOptions) {
		opts.Policy = p
	}
}

// WithEnvironment selects the deployment environment.
func WithEnvironment(env Environment) ClientOption {
	return func(opts *ClientOptions) {
		opts.Environment = env
	}
}

// WithEndpoints replaces the environment's default endpoints.
//
// Example usage:
//
//	client, err := assets.New(ctx, assets.WithEndpoints(assets.EndpointSet{
//	    Primary:  assets.Endpoint{Name: "primary", BaseURL: "https://cdn.example.com"},
//	    Fallback: assets.Endpoint{Name: "fallback", BaseURL: "https://backup.example.com"},
//	}))
func WithEndpoints(set EndpointSet) ClientOption {
	return func(opts *ClientOptions) {
		opts.Endpoints = &set
	}
}

// WithFS sets the filesystem backing the cache.
func WithFS(fsys core.FS) ClientOption {
	return func(opts *ClientOptions) {
		opts.FS = fsys
	}
}

// WithCachePath sets the cache root.
func WithCachePath(p string) ClientOption {
	return func(opts *ClientOptions) {
		opts.CachePath = p
	}
}

// WithSQLiteJournal keeps the cache index in a SQLite database at p.
func WithSQLiteJournal(p string) ClientOption {
	return func(opts *ClientOptions) {
		opts.SQLitePath = p
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(opts *ClientOptions) {
		opts.HTTPClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(opts *ClientOptions) {
		opts.Logger = l
	}
}

// WithHealthResetInterval clears failed endpoints every d so the primary is
// retried after an outage.
func WithHealthResetInterval(d time.Duration) ClientOption {
	return func(opts *ClientOptions) {
		opts.HealthResetInterval = d
	}
}

// WithRetryTimer sets the timer factory used between retries. This is
// primarily used for testing to avoid real sleeps.
func WithRetryTimer(newTimer func() backoff.Timer) ClientOption {
	return func(opts *ClientOptions) {
		opts.RetryTimer = newTimer
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) ClientOption {
	return func(opts *ClientOptions) {
		opts.TracerProvider = tp
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ClientOption {
	return func(opts *ClientOptions) {
		opts.Clock = now
	}
}

// validateClientOptions checks for invalid combinations and missing
// required values.
func validateClientOptions(opts *ClientOptions) error {
	if opts == nil {
		return fmt.Errorf("client options cannot be nil")
	}
	if opts.Policy == nil {
		return fmt.Errorf("policy cannot be nil")
	}
	if opts.CachePath == "" {
		return fmt.Errorf("cache path cannot be empty")
	}
	if opts.HealthResetInterval < 0 {
		return fmt.Errorf("health reset interval cannot be negative")
	}
	if opts.Clock == nil {
		return fmt.Errorf("clock cannot be nil")
	}
	return nil
}
