package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/muffakir/legal-assistant/internal/core/domain"
)

// CredentialRotator is the subset of the credential pool the retry loop needs.
type CredentialRotator interface {
	Len() int
	Acquire() (int, string)
	RotateFrom(seen int) bool
}

// RotatingRetrier retries a keyed call once per available credential,
// rotating to the next key after each retryable failure.
type RotatingRetrier struct {
	pool      CredentialRotator
	wait      time.Duration
	retryable func(error) bool
}

func NewRotatingRetrier(pool CredentialRotator, wait time.Duration) *RotatingRetrier {
	if wait <= 0 {
		wait = time.Millisecond
	}
	return &RotatingRetrier{
		pool:      pool,
		wait:      wait,
		retryable: isCompletionRetryable,
	}
}

// RetryWithRotation runs fn at most pool.Len() times.
func RetryWithRotation[T any](
	ctx context.Context,
	r *RotatingRetrier,
	operation string,
	fn func(ctx context.Context, key string) (T, error),
) (T, error) {
	var out T
	attempts := r.pool.Len()
	if attempts <= 0 {
		return out, domain.WrapError(domain.ErrConfiguration, operation, errors.New("no credentials configured"))
	}

	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(r.wait))
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		seen, key := r.pool.Acquire()
		value, callErr := fn(ctx, key)
		if callErr == nil {
			out = value
			return nil
		}
		if !r.retryable(callErr) {
			return callErr
		}
		if attempt < attempts && r.pool.RotateFrom(seen) {
			slog.Warn("credential_rotated",
				"operation", operation,
				"attempt", attempt,
				"max_attempts", attempts,
				"error", callErr,
			)
		}
		return retry.RetryableError(callErr)
	})
	if err != nil {
		if r.retryable(err) {
			return out, domain.WrapError(domain.ErrCompletionService, operation, fmt.Errorf("exhausted %d credentials: %w", attempts, err))
		}
		return out, err
	}
	return out, nil
}

func isCompletionRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return domain.IsKind(err, domain.ErrCompletionService) || domain.IsKind(err, domain.ErrTemporary)
}
