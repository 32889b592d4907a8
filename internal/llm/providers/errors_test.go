package providers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyErrorRetryableReasons(t *testing.T) {
	assert.Equal(t, FailoverRateLimit, ClassifyError(errors.New("429 too many requests")))
	assert.Equal(t, FailoverTimeout, ClassifyError(errors.New("context deadline exceeded")))
	assert.Equal(t, FailoverServerError, ClassifyError(errors.New("502 bad gateway")))
	assert.Equal(t, FailoverUnknown, ClassifyError(errors.New("something odd")))
}

func TestClassifyErrorNonRetryableReasons(t *testing.T) {
	assert.Equal(t, FailoverAuth, ClassifyError(errors.New("401 unauthorized")))
	assert.Equal(t, FailoverBilling, ClassifyError(errors.New("insufficient quota")))
}

func TestFailoverReasonIsRetryable(t *testing.T) {
	assert.True(t, FailoverRateLimit.IsRetryable())
	assert.True(t, FailoverTimeout.IsRetryable())
	assert.True(t, FailoverServerError.IsRetryable())
	assert.False(t, FailoverAuth.IsRetryable())
	assert.False(t, FailoverBilling.IsRetryable())
	assert.False(t, FailoverInvalidRequest.IsRetryable())
	assert.False(t, FailoverUnknown.IsRetryable())
}

func TestClassifyStatusCodeCoversKnownRanges(t *testing.T) {
	assert.Equal(t, FailoverAuth, classifyStatusCode(http.StatusUnauthorized))
	assert.Equal(t, FailoverBilling, classifyStatusCode(http.StatusPaymentRequired))
	assert.Equal(t, FailoverRateLimit, classifyStatusCode(http.StatusTooManyRequests))
	assert.Equal(t, FailoverInvalidRequest, classifyStatusCode(http.StatusBadRequest))
	assert.Equal(t, FailoverServerError, classifyStatusCode(http.StatusInternalServerError))
	assert.Equal(t, FailoverUnknown, classifyStatusCode(http.StatusTeapot))
}

func TestNewProviderErrorClassifiesCause(t *testing.T) {
	err := NewProviderError("anthropic", "claude", errors.New("rate limit exceeded"))
	assert.Equal(t, FailoverRateLimit, err.Reason)
	assert.True(t, IsRetryable(err))
}
