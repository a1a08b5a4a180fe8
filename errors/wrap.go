package errors

import (
	"context"
	"errors"
	"fmt"
)

// Wrap wraps an error with a code and message while preserving the original
// error in the chain. If err is already an AssetError its classification is
// kept; otherwise the default classification of code is used.
//
// Returns nil if err is nil.
//
// Example:
//
//	if err := storage.Write(ctx, path, data); err != nil {
//	    return errors.Wrap(err, errors.CodeStorage, "failed to write blob")
//	}
func Wrap(err error, code ErrorCode, message string) AssetError {
	if err == nil {
		return nil
	}

	classification := getDefaultClassification(code)
	var assetErr AssetError
	if errors.As(err, &assetErr) {
		classification = assetErr.Classification()
	}

	return &assetError{
		code:           code,
		classification: classification,
		message:        message,
		cause:          err,
	}
}

// Wrapf wraps an error with a formatted message.
//
// Returns nil if err is nil.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) AssetError {
	if err == nil {
		return nil
	}

	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// WrapWithContext wraps an error and attaches context metadata in one step.
// The context map is copied.
//
// Returns nil if err is nil.
//
// Example:
//
//	return errors.WrapWithContext(err, errors.CodeAssetUnavailable, "all endpoints failed", map[string]interface{}{
//	    "path":      path,
//	    "endpoints": []string{"primary", "fallback"},
//	})
func WrapWithContext(err error, code ErrorCode, message string, ctx map[string]interface{}) AssetError {
	if err == nil {
		return nil
	}

	wrapped := Wrap(err, code, message).(*assetError)
	wrapped.context = copyContext(ctx)
	return wrapped
}

// Abandoned wraps err for a caller whose context ended. A cancelled context
// gives CodeCanceled and an expired deadline gives CodeTimeout. Both are
// permanent: the same context would end the retry too.
//
// Returns nil if err is nil.
func Abandoned(ctx context.Context, err error, message string, fields map[string]interface{}) AssetError {
	if err == nil {
		return nil
	}

	code := CodeCanceled
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		code = CodeTimeout
	}
	return WithClassification(WrapWithContext(err, code, message, fields), ClassificationPermanent)
}
