// Package retry runs mutations under a bounded, fixed-backoff retry policy.
package retry

import (
	"context"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"github.com/Additional-Code/tally/pkg/errorbank"
)

// Policy bounds how a failing call is retried.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Backoff is the fixed wait between tries.
	Backoff time.Duration
	// IsRetriable decides whether an error may be retried. Defaults to
	// errorbank.IsTransient.
	IsRetriable func(error) bool
}

// Default is three attempts one second apart, retrying transient errors only.
func Default() Policy {
	return Policy{Attempts: 3, Backoff: time.Second, IsRetriable: errorbank.IsTransient}
}

// Single is a policy that never retries.
func Single() Policy {
	return Policy{Attempts: 1}
}

// Run calls fn until it succeeds, returns a non-retriable error, or the
// attempts are exhausted. It reports how many times fn was called and the
// last error.
func (p Policy) Run(ctx context.Context, fn func(context.Context) error) (int, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoffDelay := p.Backoff
	if backoffDelay <= 0 {
		backoffDelay = time.Nanosecond
	}
	retriable := p.IsRetriable
	if retriable == nil {
		retriable = errorbank.IsTransient
	}

	b := goretry.WithMaxRetries(uint64(attempts-1), goretry.NewConstant(backoffDelay))

	calls := 0
	err := goretry.Do(ctx, b, func(ctx context.Context) error {
		calls++
		err := fn(ctx)
		if err != nil && retriable(err) {
			return goretry.RetryableError(err)
		}
		return err
	})
	return calls, err
}
