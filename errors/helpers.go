package errors

import (
	stderrors "errors"
)

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around the standard library errors.Is.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around the standard library errors.As.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// GetCode extracts the ErrorCode from the outermost AssetError in err's chain.
// Returns CodeUnknown if the error is nil or not an AssetError.
//
// Example:
//
//	if errors.GetCode(err) == errors.CodeClientError {
//	    // the asset does not exist at this URL
//	}
func GetCode(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	var assetErr AssetError
	if stderrors.As(err, &assetErr) {
		return assetErr.Code()
	}

	return CodeUnknown
}

// HasCode reports whether any AssetError in err's chain carries code.
// Unlike GetCode it looks past the outermost AssetError.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if assetErr, ok := err.(AssetError); ok && assetErr.Code() == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// GetClassification extracts the ErrorClassification from an error.
// Returns ClassificationPermanent if the error is nil or not an AssetError.
func GetClassification(err error) ErrorClassification {
	if err == nil {
		return ClassificationPermanent
	}

	var assetErr AssetError
	if stderrors.As(err, &assetErr) {
		return assetErr.Classification()
	}

	return ClassificationPermanent
}

// IsRetryable returns true if the error is classified as retryable.
// Returns false if the error is nil or not an AssetError.
func IsRetryable(err error) bool {
	return GetClassification(err).IsRetryable()
}
