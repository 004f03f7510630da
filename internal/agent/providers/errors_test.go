package providers

import (
	"errors"
	"strings"
	"testing"
)

func TestFailoverReason_IsRetryable(t *testing.T) {
	retryable := []FailoverReason{FailoverRateLimit, FailoverTimeout, FailoverServerError}
	for _, r := range retryable {
		if !r.IsRetryable() {
			t.Errorf("%s.IsRetryable() = false, want true", r)
		}
	}
	notRetryable := []FailoverReason{FailoverBilling, FailoverAuth, FailoverInvalidRequest, FailoverModelUnavailable, FailoverContentFilter, FailoverUnknown}
	for _, r := range notRetryable {
		if r.IsRetryable() {
			t.Errorf("%s.IsRetryable() = true, want false", r)
		}
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err  error
		want FailoverReason
	}{
		{nil, FailoverUnknown},
		{errors.New("context deadline exceeded"), FailoverTimeout},
		{errors.New("rate limit exceeded, try again"), FailoverRateLimit},
		{errors.New("429 too many requests"), FailoverRateLimit},
		{errors.New("unauthorized: invalid api key"), FailoverAuth},
		{errors.New("insufficient quota"), FailoverBilling},
		{errors.New("blocked by content policy"), FailoverContentFilter},
		{errors.New("model not found"), FailoverModelUnavailable},
		{errors.New("500 internal server error"), FailoverServerError},
		{errors.New("something entirely unclassified"), FailoverUnknown},
	}
	for _, tc := range cases {
		if got := ClassifyError(tc.err); got != tc.want {
			t.Errorf("ClassifyError(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestProviderError_Error(t *testing.T) {
	err := &ProviderError{Reason: FailoverRateLimit, Provider: "openai", Model: "gpt-4o", Message: "slow down"}
	got := err.Error()
	for _, want := range []string{"rate_limit", "openai", "gpt-4o", "slow down"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, should contain %q", got, want)
		}
	}
}

func TestProviderError_ErrorFallsBackToCause(t *testing.T) {
	cause := errors.New("underlying failure")
	err := &ProviderError{Reason: FailoverUnknown, Cause: cause}
	if !strings.Contains(err.Error(), "underlying failure") {
		t.Errorf("Error() = %q, should fall back to the cause's message", err.Error())
	}
}

func TestProviderError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &ProviderError{Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should see through Unwrap to the cause")
	}
}

func TestNewProviderError_ClassifiesCause(t *testing.T) {
	err := NewProviderError("anthropic", "claude", errors.New("rate limit exceeded"))
	if err.Reason != FailoverRateLimit {
		t.Errorf("Reason = %s, want rate_limit", err.Reason)
	}
	if err.Message != "rate limit exceeded" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestProviderError_WithMessage(t *testing.T) {
	err := NewProviderError("openai", "gpt-4o", errors.New("boom"))
	err.WithMessage("custom message")
	if err.Message != "custom message" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestIsRetryable_ClassifiesRawError(t *testing.T) {
	if !IsRetryable(errors.New("503 service unavailable")) {
		t.Error("a 503 message should classify as retryable")
	}
	if IsRetryable(errors.New("invalid api key")) {
		t.Error("an auth failure should not be retryable")
	}
}

func TestIsRetryable_UnwrapsProviderError(t *testing.T) {
	wrapped := NewProviderError("openai", "gpt-4o", errors.New("429 too many requests"))
	if !IsRetryable(wrapped) {
		t.Error("a wrapped rate-limit ProviderError should be retryable")
	}
	wrapped = NewProviderError("openai", "gpt-4o", errors.New("invalid api key"))
	if IsRetryable(wrapped) {
		t.Error("a wrapped auth ProviderError should not be retryable")
	}
}
