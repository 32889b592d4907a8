package providers

import (
	"context"
	"time"
)

// RetryObserver is notified before each retry sleep, letting a provider's
// caller attribute retry attempts to the right trace step (spec §6.2's
// subcall_request/subcall_response or the main-loop llm_call step) without
// BaseProvider needing to know about internal/trace itself.
type RetryObserver func(attempt, maxRetries int, err error)

// BaseProvider holds shared retry configuration for LLM providers. Shesha
// has exactly one configured provider per process (internal/config's
// default_provider) and never fails over between providers at runtime, so
// this type's only job is the one-provider linear-backoff retry the two
// providers in this package both embed.
type BaseProvider struct {
	name       string
	maxRetries int
	retryDelay time.Duration
	onRetry    RetryObserver
}

// NewBaseProvider creates a base provider with sane defaults.
func NewBaseProvider(name string, maxRetries int, retryDelay time.Duration) BaseProvider {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return BaseProvider{
		name:       name,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}
}

// Name returns the provider identifier this BaseProvider was constructed
// with, so embedding providers don't need to repeat their own name as a
// separate literal.
func (b *BaseProvider) Name() string {
	return b.name
}

// OnRetry installs a RetryObserver called before each retry sleep. Passing
// nil disables observation.
func (b *BaseProvider) OnRetry(observer RetryObserver) {
	b.onRetry = observer
}

// Retry executes op with linear backoff if isRetryable returns true.
func (b *BaseProvider) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	if op == nil {
		return nil
	}
	var lastErr error
	for attempt := 1; attempt <= b.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
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
			if b.onRetry != nil {
				b.onRetry(attempt, b.maxRetries, err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.retryDelay * time.Duration(attempt)):
			}
		}
	}
	return lastErr
}
