package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/diagnostician/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultOracleTimeout = 60 * time.Second
	DefaultMaxAttempts   = 3
	DefaultBaseBackoff   = 500 * time.Millisecond
	maxBackoff           = 8 * time.Second
)

// RetryingOracle bounds every call with a timeout and retries unreachable
// oracles with exponential backoff. Malformed output is returned at once.
type RetryingOracle struct {
	next   domain.Oracle
	logger *zap.Logger

	Timeout     time.Duration
	MaxAttempts int
	BaseBackoff time.Duration

	// OnAttempt, when set, observes the outcome of every attempt.
	OnAttempt func(outcome string)

	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetryingOracle(next domain.Oracle, logger *zap.Logger) *RetryingOracle {
	return &RetryingOracle{
		next:        next,
		logger:      logger,
		Timeout:     DefaultOracleTimeout,
		MaxAttempts: DefaultMaxAttempts,
		BaseBackoff: DefaultBaseBackoff,
		sleep:       sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retryable reports whether another attempt could succeed.
func Retryable(err error) bool {
	if errors.Is(err, domain.ErrMalformedOutput) {
		return false
	}
	return errors.Is(err, domain.ErrOracleUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

func (r *RetryingOracle) observe(outcome string) {
	if r.OnAttempt != nil {
		r.OnAttempt(outcome)
	}
}

func (r *RetryingOracle) attempt(ctx context.Context, prompt string) (string, error) {
	if r.Timeout <= 0 {
		return r.next.Invoke(ctx, prompt)
	}
	callCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	out, err := r.next.Invoke(callCtx, prompt)
	if err != nil && callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return "", fmt.Errorf("%w: call timed out after %s", domain.ErrOracleUnavailable, r.Timeout)
	}
	return out, err
}

func (r *RetryingOracle) Invoke(ctx context.Context, prompt string) (string, error) {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := r.BaseBackoff

	var lastErr error
	for i := 1; i <= attempts; i++ {
		out, err := r.attempt(ctx, prompt)
		if err == nil {
			r.observe("ok")
			return out, nil
		}
		lastErr = err

		if errors.Is(err, domain.ErrMalformedOutput) {
			r.observe("malformed")
			return "", err
		}
		if ctx.Err() != nil || !Retryable(err) {
			r.observe("error")
			return "", err
		}
		r.observe("unavailable")
		if i == attempts {
			break
		}

		r.logger.Warn("oracle unavailable, retrying",
			zap.Int("attempt", i),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		if err := r.sleep(ctx, backoff); err != nil {
			return "", err
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return "", fmt.Errorf("oracle failed after %d attempts: %w", attempts, lastErr)
}
