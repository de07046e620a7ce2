package pipeline

import (
	"time"

	"github.com/solenne-labs/corpora/internal/core"
)

// RetryPolicy decides, for a failed stage, whether the job retries or
// fails permanently. Retry state lives on the job row itself
// (retry_count, last_error, next_run_at); this policy is the only place
// that interprets it.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func NewRetryPolicy(maxRetries int, baseDelay time.Duration) RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	return RetryPolicy{
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
		MaxDelay:   5 * time.Minute,
	}
}

// Decision is the outcome of a failure: either fail the job permanently,
// or retry it after Delay.
type Decision struct {
	Fail  bool
	Delay time.Duration
}

// Decide classifies the error and applies the retry budget. Structural
// errors (empty parse output, dimension mismatch, malformed hash) fail
// immediately: retrying identical input cannot produce a different result.
func (p RetryPolicy) Decide(err error, retryCount int) Decision {
	if core.Structural(err) {
		return Decision{Fail: true}
	}
	if retryCount+1 > p.MaxRetries {
		return Decision{Fail: true}
	}
	return Decision{Delay: p.Backoff(retryCount)}
}

// Backoff returns the exponential delay for the given retry count, capped
// at MaxDelay.
func (p RetryPolicy) Backoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > 30 {
		return p.MaxDelay
	}
	d := p.BaseDelay << uint(retryCount)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
