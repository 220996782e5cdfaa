package generation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Default retry parameters, applied when a policy field is out of range.
const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
)

// RetryPolicy controls how Retry drives attempts against a provider. The
// zero value is not usable directly; build one with DefaultRetryPolicy or
// fill every field. Tests substitute Sleep and Jitter to make backoff
// deterministic.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the backoff before the second attempt; it doubles for
	// each subsequent attempt (base, 2*base, 4*base, ...).
	BaseDelay time.Duration

	// Jitter maps a computed backoff delay to the delay actually slept.
	// Nil means no jitter.
	Jitter func(delay time.Duration) time.Duration

	// Sleep waits for the given duration or until the context is done.
	// Nil selects the default context-aware sleep.
	Sleep func(ctx context.Context, delay time.Duration) error
}

// DefaultRetryPolicy returns the production policy: the given attempt budget
// and base delay, exponential doubling, and multiplicative jitter in
// [0.5, 1.0) so synchronized workers do not hammer the provider in lockstep.
func DefaultRetryPolicy(maxAttempts int, baseDelay time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		Jitter: func(delay time.Duration) time.Duration {
			factor := 0.5 + rand.Float64()*0.5
			return time.Duration(float64(delay) * factor)
		},
		Sleep: sleepWithContext,
	}
}

// normalized returns a copy of the policy with out-of-range fields replaced
// by defaults, logging a warning for each replacement.
func (p RetryPolicy) normalized(ctx context.Context, logger *slog.Logger) RetryPolicy {
	if p.MaxAttempts < 1 {
		logger.WarnContext(ctx, "invalid max attempts value, using default",
			"configured", p.MaxAttempts,
			"default", defaultMaxAttempts)
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		logger.WarnContext(ctx, "invalid base delay value, using default",
			"configured", p.BaseDelay,
			"default", defaultBaseDelay)
		p.BaseDelay = defaultBaseDelay
	}
	if p.Sleep == nil {
		p.Sleep = sleepWithContext
	}
	return p
}

// delay computes the backoff after the given zero-based attempt:
// base * 2^attempt, passed through the jitter function.
func (p RetryPolicy) delay(attempt int) time.Duration {
	backoff := time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt)))
	if p.Jitter != nil {
		backoff = p.Jitter(backoff)
	}
	return backoff
}

// sleepWithContext waits for the delay or returns early with the context's
// error when it is cancelled.
func sleepWithContext(ctx context.Context, delay time.Duration) error {
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AttemptFn performs one provider call. Each invocation must be a fresh
// request with no state carried over from earlier attempts.
type AttemptFn func(ctx context.Context) (*Result, error)

// Retry drives fn under the policy: transient errors are retried with
// exponential backoff up to MaxAttempts total attempts, permanent errors
// return immediately, and exhausting the budget returns ErrGenerationFailed
// with a reason naming the attempt count. Context cancellation aborts the
// wait between attempts.
func Retry(
	ctx context.Context,
	logger *slog.Logger,
	policy RetryPolicy,
	fn AttemptFn,
) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	policy = policy.normalized(ctx, logger)

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		attemptNum := attempt + 1 // 1-based for logging

		result, err := fn(ctx)
		if err == nil {
			logger.DebugContext(ctx, "generation attempt succeeded",
				"attempt", attemptNum,
				"max_attempts", policy.MaxAttempts)
			return result, nil
		}

		if !IsTransient(err) {
			logger.WarnContext(ctx, "permanent generation error, not retrying",
				"attempt", attemptNum,
				"error", err)
			return nil, err
		}

		lastErr = err
		logger.WarnContext(ctx, "transient generation error",
			"attempt", attemptNum,
			"max_attempts", policy.MaxAttempts,
			"error", err)

		if attemptNum == policy.MaxAttempts {
			break
		}

		delay := policy.delay(attempt)
		logger.DebugContext(ctx, "retrying after delay",
			"attempt", attemptNum,
			"delay", delay.String())
		if err := policy.Sleep(ctx, delay); err != nil {
			logger.WarnContext(ctx, "generation cancelled during retry delay",
				"attempt", attemptNum,
				"ctx_err", err)
			return nil, fmt.Errorf("%w: %v", ErrTransientFailure, err)
		}
	}

	return nil, fmt.Errorf(
		"%w: exhausted %d attempts: last error: %v",
		ErrGenerationFailed,
		policy.MaxAttempts,
		lastErr,
	)
}
