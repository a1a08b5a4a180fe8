package errors

import "errors"

// WithContext adds a single context field to an error.
// Existing context fields are preserved.
//
// If err is not an AssetError, it is converted to one with CodeUnknown.
// Returns nil if err is nil.
//
// Example:
//
//	err = errors.WithContext(err, "endpoint", "primary")
func WithContext(err error, key string, value interface{}) AssetError {
	if err == nil {
		return nil
	}
	return WithContextMap(err, map[string]interface{}{key: value})
}

// WithContextMap adds multiple context fields to an error.
// New fields override existing ones with the same key.
//
// If err is not an AssetError, it is converted to one with CodeUnknown.
// Returns nil if err is nil.
func WithContextMap(err error, ctx map[string]interface{}) AssetError {
	if err == nil {
		return nil
	}

	assetErr := toAssetError(err)

	newContext := make(map[string]interface{})
	for k, v := range assetErr.Context() {
		newContext[k] = v
	}
	for k, v := range ctx {
		newContext[k] = v
	}

	return &assetError{
		code:           assetErr.Code(),
		classification: assetErr.Classification(),
		message:        assetErr.Message(),
		context:        newContext,
		cause:          assetErr.Unwrap(),
	}
}

// WithClassification overrides the classification of an error.
//
// If err is not an AssetError, it is converted to one with CodeUnknown.
// Returns nil if err is nil.
func WithClassification(err error, classification ErrorClassification) AssetError {
	if err == nil {
		return nil
	}

	assetErr := toAssetError(err)

	return &assetError{
		code:           assetErr.Code(),
		classification: classification,
		message:        assetErr.Message(),
		context:        assetErr.Context(),
		cause:          assetErr.Unwrap(),
	}
}

// toAssetError returns the outermost AssetError in err's chain, or wraps a
// plain error as CodeUnknown.
func toAssetError(err error) AssetError {
	var assetErr AssetError
	if errors.As(err, &assetErr) {
		return assetErr
	}
	return &assetError{
		code:           CodeUnknown,
		classification: ClassificationPermanent,
		message:        err.Error(),
		cause:          err,
	}
}
