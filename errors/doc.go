// Package errors provides the coded error taxonomy used by asset delivery.
//
// Every failure that crosses a package boundary carries an ErrorCode and a
// classification (retryable vs permanent). The delivery layer uses the
// classification to decide whether a fetch is worth retrying; callers of the
// asset client use the code to decide what to show the user.
//
// # Codes
//
//   - CodeClientError: the origin answered 4xx; retrying the same URL is pointless
//   - CodeNetwork, CodeServerError, CodeTimeout: transient, retried with backoff
//   - CodeAssetUnavailable: every endpoint was tried and failed
//   - CodeCanceled: the caller's context ended; never retried
//   - CodeQuotaExceeded: an asset can never fit in the local cache
//   - CodeNotInitialized: the cache store is not open
//
// # Usage
//
//	data, err := client.RequestAsset(ctx, key)
//	if errors.GetCode(err) == errors.CodeAssetUnavailable {
//	    // show a retry affordance
//	}
//
// Errors are immutable and compatible with the standard library (errors.Is,
// errors.As, errors.Unwrap). ToJSON flattens an error for the CLI's
// machine-readable output without exposing the wrapped chain.
package errors
