// Package retry provides the single backoff policy used for metadata
// fetches, chain submissions, and event-subscription reconnects. Call sites
// share one policy instead of growing ad hoc retry loops.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy describes a bounded exponential backoff schedule.
type Policy struct {
	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration
	// Multiplier scales the delay after each attempt.
	Multiplier float64
	// MaxInterval caps the delay between attempts.
	MaxInterval time.Duration
	// MaxAttempts bounds the total number of tries, first call included.
	MaxAttempts uint
	// MaxElapsed bounds the total wall-clock time across attempts.
	MaxElapsed time.Duration
}

// Default is the schedule used for origin metadata fetches and recovery
// re-checks: 500ms initial delay doubling up to 30s, at most 8 tries.
var Default = Policy{
	InitialInterval: 500 * time.Millisecond,
	Multiplier:      2.0,
	MaxInterval:     30 * time.Second,
	MaxAttempts:     8,
	MaxElapsed:      5 * time.Minute,
}

// Submission is the schedule used for chain transaction submission.
var Submission = Policy{
	InitialInterval: 2 * time.Second,
	Multiplier:      2.0,
	MaxInterval:     time.Minute,
	MaxAttempts:     5,
	MaxElapsed:      5 * time.Minute,
}

// Reconnect is the schedule used when a chain subscription drops. It has no
// attempt bound; listeners reconnect until the process stops.
var Reconnect = Policy{
	InitialInterval: time.Second,
	Multiplier:      2.0,
	MaxInterval:     time.Minute,
}

// Do runs operation under the policy until it succeeds, the attempts or
// elapsed bounds are exhausted, or ctx is canceled. A zero-valued result is
// returned with the last error on failure.
func Do[T any](ctx context.Context, policy Policy, operation func() (T, error)) (T, error) {
	expo := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		expo.InitialInterval = policy.InitialInterval
	}
	if policy.Multiplier > 0 {
		expo.Multiplier = policy.Multiplier
	}
	if policy.MaxInterval > 0 {
		expo.MaxInterval = policy.MaxInterval
	}

	options := []backoff.RetryOption{backoff.WithBackOff(expo)}
	if policy.MaxAttempts > 0 {
		options = append(options, backoff.WithMaxTries(policy.MaxAttempts))
	}
	if policy.MaxElapsed > 0 {
		options = append(options, backoff.WithMaxElapsedTime(policy.MaxElapsed))
	}

	return backoff.Retry(ctx, operation, options...)
}

// Permanent wraps err so Do stops retrying immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
