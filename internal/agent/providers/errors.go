package providers

import (
	"errors"
	"fmt"
	"strings"
)

// FailoverReason categorizes why a provider request failed, driving
// BaseProvider.Retry's decision to retry.
type FailoverReason string

const (
	FailoverBilling          FailoverReason = "billing"
	FailoverRateLimit        FailoverReason = "rate_limit"
	FailoverAuth             FailoverReason = "auth"
	FailoverTimeout          FailoverReason = "timeout"
	FailoverServerError      FailoverReason = "server_error"
	FailoverInvalidRequest   FailoverReason = "invalid_request"
	FailoverModelUnavailable FailoverReason = "model_unavailable"
	FailoverContentFilter    FailoverReason = "content_filter"
	FailoverUnknown          FailoverReason = "unknown"
)

// IsRetryable returns true if the failover reason suggests retrying may succeed.
func (r FailoverReason) IsRetryable() bool {
	switch r {
	case FailoverRateLimit, FailoverTimeout, FailoverServerError:
		return true
	default:
		return false
	}
}

// ProviderError is a structured error from an LLM provider, carrying enough
// context to decide whether BaseProvider.Retry should retry it.
type ProviderError struct {
	Reason   FailoverReason
	Provider string
	Model    string
	Message  string
	Cause    error
}

func (e *ProviderError) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s]", e.Reason))

	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}

	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError wraps cause, classifying it via ClassifyError.
func NewProviderError(provider, model string, cause error) *ProviderError {
	err := &ProviderError{
		Provider: provider,
		Model:    model,
		Cause:    cause,
		Reason:   FailoverUnknown,
	}

	if cause != nil {
		err.Message = cause.Error()
		err.Reason = ClassifyError(cause)
	}

	return err
}

// WithMessage overrides the error message.
func (e *ProviderError) WithMessage(msg string) *ProviderError {
	e.Message = msg
	return e
}

// ClassifyError inspects an error's message and returns the matching
// FailoverReason. Matching is pattern-based since provider SDKs don't share
// a common typed error hierarchy.
func ClassifyError(err error) FailoverReason {
	if err == nil {
		return FailoverUnknown
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context deadline") ||
		strings.Contains(errStr, "etimedout") {
		return FailoverTimeout
	}

	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "rate_limit") ||
		strings.Contains(errStr, "too many requests") ||
		strings.Contains(errStr, "429") {
		return FailoverRateLimit
	}

	if strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "invalid api key") ||
		strings.Contains(errStr, "invalid_api_key") ||
		strings.Contains(errStr, "authentication") ||
		strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") {
		return FailoverAuth
	}

	if strings.Contains(errStr, "billing") ||
		strings.Contains(errStr, "payment") ||
		strings.Contains(errStr, "quota") ||
		strings.Contains(errStr, "insufficient") ||
		strings.Contains(errStr, "402") {
		return FailoverBilling
	}

	if strings.Contains(errStr, "content_filter") ||
		strings.Contains(errStr, "content policy") ||
		strings.Contains(errStr, "safety") ||
		strings.Contains(errStr, "blocked") {
		return FailoverContentFilter
	}

	if strings.Contains(errStr, "model not found") ||
		strings.Contains(errStr, "model_not_found") ||
		strings.Contains(errStr, "does not exist") ||
		strings.Contains(errStr, "unavailable") {
		return FailoverModelUnavailable
	}

	if strings.Contains(errStr, "internal server") ||
		strings.Contains(errStr, "server error") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504") {
		return FailoverServerError
	}

	return FailoverUnknown
}

// IsRetryable checks if an error should be retried, unwrapping a
// *ProviderError's classification where present and falling back to
// classifying the raw error otherwise.
func IsRetryable(err error) bool {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Reason.IsRetryable()
	}
	return ClassifyError(err).IsRetryable()
}
