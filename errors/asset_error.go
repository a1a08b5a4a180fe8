package errors

import "fmt"

// AssetError extends the standard error interface with a code, a retry
// classification and contextual metadata.
type AssetError interface {
	error

	// Code returns the error code identifying the type of error.
	Code() ErrorCode

	// Classification returns whether the error is retryable or permanent.
	Classification() ErrorClassification

	// Message returns the human-readable error message.
	Message() string

	// Context returns attached metadata as a read-only map.
	// Returns nil if no context has been attached.
	Context() map[string]interface{}

	// Unwrap returns the wrapped error for errors.Is and errors.As compatibility.
	Unwrap() error
}

// assetError is the concrete implementation of AssetError.
// It is private to enforce construction through package functions.
type assetError struct {
	code           ErrorCode
	classification ErrorClassification
	message        string
	context        map[string]interface{}
	cause          error
}

// Error returns "[CODE] message" or "[CODE] message: cause".
func (e *assetError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Code returns the error code.
func (e *assetError) Code() ErrorCode {
	return e.code
}

// Classification returns the error classification.
func (e *assetError) Classification() ErrorClassification {
	return e.classification
}

// Message returns the error message.
func (e *assetError) Message() string {
	return e.message
}

// Context returns a copy of the context map, or nil when empty.
func (e *assetError) Context() map[string]interface{} {
	return copyContext(e.context)
}

// Unwrap returns the wrapped error.
func (e *assetError) Unwrap() error {
	return e.cause
}

func copyContext(ctx map[string]interface{}) map[string]interface{} {
	if ctx == nil {
		return nil
	}
	out := make(map[string]interface{}, len(ctx))
	for k, v := range ctx {
		out[k] = v
	}
	return out
}
