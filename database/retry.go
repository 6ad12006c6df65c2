package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"conference-central/keys"
	"conference-central/logging"
	"conference-central/metrics"
)

// RetryPolicy bounds how often a contended transaction is retried.
//
// The first attempt runs immediately. After a contention failure up to
// MaxRetries more attempts are made, sleeping Initial before the first
// retry and multiplying the delay by Multiplier each time, capped at Max.
type RetryPolicy struct {
	MaxRetries int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 5,
		Initial:    10 * time.Millisecond,
		Max:        500 * time.Millisecond,
		Multiplier: 2,
	}
}

func (p RetryPolicy) normalize() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.Initial < 0 {
		p.Initial = 0
	}
	if p.Max < 0 {
		p.Max = 0
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2
	}
	return p
}

func nextDelay(current time.Duration, mult float64, max time.Duration) time.Duration {
	if current <= 0 {
		return 0
	}
	next := time.Duration(float64(current) * mult)
	if max > 0 && next > max {
		return max
	}
	return next
}

// RunInTransaction runs fn in a transaction over ks, retrying on
// ErrContention as allowed by policy. fn may run more than once and must
// not have side effects outside the transaction. When the budget is spent
// the returned error still matches ErrContention.
func RunInTransaction[T any](ctx context.Context, s EntityStore, policy RetryPolicy, ks []keys.Key, fn func(Txn) (T, error)) (T, error) {
	p := policy.normalize()
	start := time.Now()
	delay := p.Initial

	var (
		result T
		err    error
	)
	attempt := 0
	for ; ; attempt++ {
		err = s.RunTransaction(ctx, ks, func(tx Txn) error {
			var ferr error
			result, ferr = fn(tx)
			return ferr
		})
		if err == nil || !errors.Is(err, ErrContention) || attempt >= p.MaxRetries {
			break
		}

		logging.Ctx(ctx).Debug().
			Str("backend", s.Name()).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("transaction contention, retrying")

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				metrics.RecordTransaction(s.Name(), attempt, ctx.Err(), time.Since(start))
				var zero T
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
		delay = nextDelay(delay, p.Multiplier, p.Max)
	}

	metrics.RecordTransaction(s.Name(), attempt, err, time.Since(start))
	if err != nil {
		var zero T
		if errors.Is(err, ErrContention) {
			return zero, fmt.Errorf("gave up after %d attempts: %w", attempt+1, err)
		}
		return zero, err
	}
	return result, nil
}
