package errors

// ErrorClassification indicates whether an error should trigger a retry.
type ErrorClassification string

const (
	// ClassificationRetryable indicates temporary failures that may succeed on retry.
	// e.g. connection resets, 5xx responses, request timeouts.
	ClassificationRetryable ErrorClassification = "RETRYABLE"

	// ClassificationPermanent indicates failures that will not succeed on retry.
	// e.g. 4xx responses, quota violations, cancelled requests.
	ClassificationPermanent ErrorClassification = "PERMANENT"
)

// IsRetryable returns true if the classification indicates retry should be attempted.
func (c ErrorClassification) IsRetryable() bool {
	return c == ClassificationRetryable
}

// defaultClassifications maps error codes to their default classification.
var defaultClassifications = map[ErrorCode]ErrorClassification{
	CodeNetwork:     ClassificationRetryable,
	CodeServerError: ClassificationRetryable,
	CodeTimeout:     ClassificationRetryable,

	CodeClientError:      ClassificationPermanent,
	CodeAssetUnavailable: ClassificationPermanent,
	CodeCanceled:         ClassificationPermanent,
	CodeNotFound:         ClassificationPermanent,
	CodeQuotaExceeded:    ClassificationPermanent,
	CodeNotInitialized:   ClassificationPermanent,
	CodeCorrupted:        ClassificationPermanent,
	CodeStorage:          ClassificationPermanent,
	CodeInvalidInput:     ClassificationPermanent,
	CodeInvalidConfig:    ClassificationPermanent,
	CodeInternal:         ClassificationPermanent,
	CodeUnknown:          ClassificationPermanent,
}

// getDefaultClassification returns the default classification for an error code.
// Returns ClassificationPermanent if the code is not in the map.
func getDefaultClassification(code ErrorCode) ErrorClassification {
	if class, ok := defaultClassifications[code]; ok {
		return class
	}
	return ClassificationPermanent
}
