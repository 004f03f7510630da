package providers

import (
	"context"
	"time"

	"github.com/haasonsaas/dbagent/internal/backoff"
)

// BaseProvider holds shared retry configuration for LLM providers.
type BaseProvider struct {
	name       string
	maxRetries int
	policy     backoff.BackoffPolicy
}

// NewBaseProvider creates a base provider with sane defaults. retryDelay
// seeds the policy's initial backoff; each provider's own config supplies
// it (AnthropicConfig.RetryDelay, OpenAIConfig.RetryDelay, etc.).
func NewBaseProvider(name string, maxRetries int, retryDelay time.Duration) BaseProvider {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	policy := backoff.DefaultPolicy()
	policy.InitialMs = float64(retryDelay.Milliseconds())
	return BaseProvider{
		name:       name,
		maxRetries: maxRetries,
		policy:     policy,
	}
}

// Retry executes op with exponential backoff and jitter, stopping as soon
// as isRetryable says the error it produced isn't worth retrying.
func (b *BaseProvider) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	if op == nil {
		return nil
	}
	var lastErr error
	for attempt := 1; attempt <= b.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := op(); err == nil {
			return nil
		} else {
			lastErr = err
			if isRetryable == nil || !isRetryable(err) {
				return err
			}
			if attempt >= b.maxRetries {
				break
			}
			if err := backoff.SleepWithBackoff(ctx, b.policy, attempt); err != nil {
				return err
			}
		}
	}
	return lastErr
}
