package errors

// ErrorCode represents a specific error condition.
// Error codes are string-based for debuggability and natural JSON serialization.
type ErrorCode string

const (
	// Delivery errors.

	// CodeClientError indicates the origin rejected the request with a 4xx status.
	CodeClientError ErrorCode = "CLIENT_ERROR"

	// CodeServerError indicates the origin answered with a 5xx status.
	CodeServerError ErrorCode = "SERVER_ERROR"

	// CodeNetwork indicates the request never produced a response.
	CodeNetwork ErrorCode = "NETWORK_ERROR"

	// CodeTimeout indicates a single request exceeded its deadline.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeAssetUnavailable indicates both the primary and fallback endpoints failed.
	CodeAssetUnavailable ErrorCode = "ASSET_UNAVAILABLE"

	// CodeCanceled indicates the caller abandoned the request.
	CodeCanceled ErrorCode = "CANCELED"

	// Cache errors.

	// CodeNotFound indicates a key is not present in the local cache.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeQuotaExceeded indicates an entry cannot fit even after full eviction.
	CodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"

	// CodeNotInitialized indicates an operation on an unopened or closed store.
	CodeNotInitialized ErrorCode = "NOT_INITIALIZED"

	// CodeCorrupted indicates a cached blob failed its integrity check.
	CodeCorrupted ErrorCode = "CACHE_CORRUPTED"

	// CodeStorage indicates the backing filesystem or journal failed.
	CodeStorage ErrorCode = "STORAGE_ERROR"

	// Validation errors.

	// CodeInvalidInput indicates the provided input is invalid or malformed.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeInvalidConfig indicates a policy or option error prevents the operation.
	CodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"

	// System errors.

	// CodeInternal indicates an internal error occurred.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeUnknown indicates an unknown or unclassified error occurred.
	CodeUnknown ErrorCode = "UNKNOWN"
)

// CodeForStatus maps an HTTP status code to the delivery error code that
// describes it. Success statuses map to CodeUnknown.
func CodeForStatus(status int) ErrorCode {
	switch {
	case status >= 400 && status < 500:
		return CodeClientError
	case status >= 500:
		return CodeServerError
	default:
		return CodeUnknown
	}
}
