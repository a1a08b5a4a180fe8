package delivery

import (
	"context"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jmgilman/go/assets/asset"
	asseterrors "github.com/jmgilman/go/assets/errors"
	"github.com/jmgilman/go/assets/internal/logging"
	"github.com/jmgilman/go/assets/policy"
)

const tracerName = "github.com/jmgilman/go/assets/internal/delivery"

// Option configures a Manager.
type Option func(*Manager)

// WithEnvironment selects the environment. It also selects the default
// endpoint set unless WithEndpoints is given.
func WithEnvironment(env Environment) Option {
	return func(m *Manager) {
		m.env = env
	}
}

// WithEndpoints overrides the environment's default endpoint set.
func WithEndpoints(set EndpointSet) Option {
	return func(m *Manager) {
		m.endpoints = &set
	}
}

// WithHTTPClient sets the client used for fetches and probes.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) {
		if c != nil {
			m.client = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithTimer supplies the timer used between retries. Tests use it to skip
// real sleeps.
func WithTimer(newTimer func() backoff.Timer) Option {
	return func(m *Manager) {
		m.newTimer = newTimer
	}
}

// WithTracerProvider sets the provider spans are started from. The global
// provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) {
		if tp != nil {
			m.tracer = tp.Tracer(tracerName)
		}
	}
}

// Manager resolves and fetches assets for one deployment. It owns its
// EndpointHealth; separate Managers never share failover state.
type Manager struct {
	env       Environment
	endpoints *EndpointSet
	policy    *policy.Policy
	health    *EndpointHealth
	resolver  *Resolver
	fetcher   *fetcher
	client    *http.Client
	newTimer  func() backoff.Timer
	logger    *logging.Logger
	tracer    trace.Tracer
}

// NewManager creates a Manager governed by p.
//
// Example usage:
//
//	m, err := delivery.NewManager(policy.Default(),
//	    delivery.WithEnvironment(delivery.Staging),
//	)
func NewManager(p *policy.Policy, opts ...Option) (*Manager, error) {
	if p == nil {
		return nil, asseterrors.New(asseterrors.CodeInvalidConfig, "policy cannot be nil")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		env:    Production,
		policy: p,
		health: &EndpointHealth{},
		client: &http.Client{},
		logger: logging.NewNopLogger(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.endpoints == nil {
		set, err := DefaultEndpoints(m.env)
		if err != nil {
			return nil, err
		}
		m.endpoints = &set
	}
	if err := m.endpoints.Validate(); err != nil {
		return nil, err
	}

	m.resolver = NewResolver(m.env, *m.endpoints, m.health)
	m.fetcher = &fetcher{
		client:         m.client,
		delay:          p.Retry.Delay,
		requestTimeout: p.Retry.RequestTimeout,
		newTimer:       m.newTimer,
		logger:         m.logger,
	}
	return m, nil
}

// Environment returns the active environment.
func (m *Manager) Environment() Environment { return m.env }

// Endpoints returns the active endpoint set.
func (m *Manager) Endpoints() EndpointSet { return *m.endpoints }

// Health returns the failover state owned by the Manager.
func (m *Manager) Health() *EndpointHealth { return m.health }

// ResolveURL returns the URL the next fetch of logicalPath would use.
func (m *Manager) ResolveURL(logicalPath string, t asset.Type, opts Options) (string, error) {
	return m.resolver.ResolveURL(logicalPath, t, opts)
}

// FetchWithRetry fetches rawURL with up to attempts tries.
func (m *Manager) FetchWithRetry(ctx context.Context, rawURL string, attempts int) (*Payload, error) {
	return m.fetcher.fetch(ctx, rawURL, attempts, 0)
}

type candidate struct {
	url      string
	endpoint Endpoint
}

// LoadAsset fetches an asset, failing over from the primary to the
// fallback endpoint.
//
// A failure against the primary marks it failed so later resolutions go
// straight to the fallback. A client error stops retries of that URL but
// not failover: the fallback may hold a file the primary lacks. Oversized
// payloads are returned immediately. When every candidate fails the error
// has code ASSET_UNAVAILABLE and wraps the last failure.
func (m *Manager) LoadAsset(ctx context.Context, logicalPath string, t asset.Type, opts Options) (*Payload, error) {
	ctx, span := m.tracer.Start(ctx, "delivery.LoadAsset",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("asset.path", logicalPath),
			attribute.String("asset.type", string(t)),
		))
	defer span.End()

	payload, err := m.loadAsset(ctx, logicalPath, t, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(asseterrors.GetCode(err)))
		return nil, err
	}
	span.SetAttributes(
		attribute.String("asset.endpoint", payload.Endpoint),
		attribute.Int("asset.size", len(payload.Data)),
		attribute.Int("fetch.attempts", payload.Attempts),
	)
	return payload, nil
}

func (m *Manager) loadAsset(ctx context.Context, logicalPath string, t asset.Type, opts Options) (*Payload, error) {
	logger := m.logger.WithOperation(logging.OpLoad).With("path", logicalPath, "type", string(t))

	first, firstEndpoint, err := m.resolver.resolve(logicalPath, t, opts)
	if err != nil {
		return nil, err
	}
	fallbackOpts := opts
	fallbackOpts.ForceFallback = true
	second, secondEndpoint, err := m.resolver.resolve(logicalPath, t, fallbackOpts)
	if err != nil {
		return nil, err
	}

	candidates := []candidate{{url: first, endpoint: firstEndpoint}}
	if second != first {
		candidates = append(candidates, candidate{url: second, endpoint: secondEndpoint})
	}

	var lastErr error
	for i, c := range candidates {
		payload, err := m.fetcher.fetch(ctx, c.url, m.policy.Retry.Attempts, opts.MaxBytes)
		if err == nil {
			payload.Endpoint = c.endpoint.Name
			if i > 0 {
				logger.Info(ctx, "asset served by fallback", "endpoint", c.endpoint.Name)
			}
			return payload, nil
		}
		lastErr = err

		if asseterrors.HasCode(err, asseterrors.CodeQuotaExceeded) || ctx.Err() != nil {
			return nil, err
		}
		if i == 0 && c.endpoint.Name == m.endpoints.Primary.Name {
			if m.health.MarkFailed(c.endpoint.Name) {
				logging.LogFailover(ctx, logger, c.endpoint.Name, err)
			}
		}
	}

	return nil, asseterrors.WrapWithContext(lastErr, asseterrors.CodeAssetUnavailable,
		"asset unavailable from every endpoint",
		map[string]interface{}{"path": logicalPath, "type": string(t)})
}

// Request names one asset for PreloadAssets.
type Request struct {
	Path    string
	Type    asset.Type
	Options Options
}

// PreloadResult is the settled outcome of one preload.
type PreloadResult struct {
	Request Request
	Payload *Payload
	Err     error
}

// OK reports whether the preload succeeded.
func (r PreloadResult) OK() bool { return r.Err == nil }

// PreloadAssets loads every request with at most MaxConcurrentLoads in
// flight. Results are returned in request order. Failures are logged and
// reported in the result, never returned.
func (m *Manager) PreloadAssets(ctx context.Context, reqs []Request) []PreloadResult {
	ctx, span := m.tracer.Start(ctx, "delivery.PreloadAssets",
		trace.WithAttributes(attribute.Int("preload.count", len(reqs))))
	defer span.End()

	logger := m.logger.WithOperation(logging.OpPreload)
	results := make([]PreloadResult, len(reqs))

	// A plain Group: one failure must not cancel the rest.
	var g errgroup.Group
	g.SetLimit(m.policy.Loading.MaxConcurrentLoads)
	for i, req := range reqs {
		g.Go(func() error {
			payload, err := m.LoadAsset(ctx, req.Path, req.Type, req.Options)
			results[i] = PreloadResult{Request: req, Payload: payload, Err: err}
			if err != nil {
				logger.Warn(ctx, "preload failed",
					"path", req.Path,
					"type", string(req.Type),
					"error", err.Error())
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("preload.failed", failed))
	return results
}

// ResetFailedEndpoints clears the failed set so the primary is tried
// again.
func (m *Manager) ResetFailedEndpoints() {
	m.health.Reset()
}
