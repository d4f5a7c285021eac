package framework

import (
	"context"
	"fmt"
)

// Retry calls fn up to attempts times and returns the first successful
// value together with the number of attempts used. When every attempt
// fails the returned error wraps ErrRetryExhausted and the last failure.
// A cancelled context stops further attempts.
func Retry[T any](ctx context.Context, attempts int, fn func(ctx context.Context, attempt int) (T, error)) (T, int, error) {
	var zero T
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return zero, i - 1, fmt.Errorf("%w: %w", ErrRetryExhausted, err)
		}
		v, err := fn(ctx, i)
		if err == nil {
			return v, i, nil
		}
		last = err
	}
	return zero, attempts, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, last)
}
