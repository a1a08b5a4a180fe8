package errors

import "fmt"

// New creates a new AssetError with the given code and message.
// The classification is derived from the code.
//
// Example:
//
//	err := errors.New(errors.CodeNotInitialized, "cache store is closed")
func New(code ErrorCode, message string) AssetError {
	return &assetError{
		code:           code,
		classification: getDefaultClassification(code),
		message:        message,
	}
}

// Newf creates a new AssetError with a formatted message.
//
// Example:
//
//	err := errors.Newf(errors.CodeQuotaExceeded, "entry of %d bytes exceeds ceiling %d", size, ceiling)
func Newf(code ErrorCode, format string, args ...interface{}) AssetError {
	return New(code, fmt.Sprintf(format, args...))
}
