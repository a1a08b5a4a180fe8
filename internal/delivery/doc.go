// Package delivery turns logical asset paths into URLs and fetches them.
//
// A Manager owns one EndpointSet and one EndpointHealth. URL resolution
// routes to the primary endpoint until a fetch against it fails, after
// which the primary is marked failed and every resolution goes to the
// fallback until ResetFailedEndpoints is called. A 4xx from the primary
// fails over too, since the fallback may hold a file the primary lacks.
//
// # Retries
//
// FetchWithRetry retries network failures, 5xx responses and per-request
// timeouts with a linear backoff of RetryDelay × attempt. Client errors
// (4xx) and payloads too large for the cache are permanent and fail after a
// single attempt.
//
// # Preloading
//
// PreloadAssets runs loads on a pool bounded by MaxConcurrentLoads. Every
// request settles independently; one failure never cancels its siblings.
package delivery
