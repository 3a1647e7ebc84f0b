// Package bounded wraps asynchronous source calls with a hard latency
// bound so every primary-source request fails fast in the same way.
package bounded

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrTimeout is returned when the deadline wins the race against the call.
var ErrTimeout = errors.New("source request timed out")

// DefaultTimeout bounds primary-source calls unless configured otherwise.
const DefaultTimeout = 6 * time.Second

type result[T any] struct {
	value T
	err   error
}

// Call races fn against the timeout. The losing branch is abandoned, not
// cancelled: fn keeps running in its goroutine and its result is discarded,
// so cleanup of side effects stays with the caller. No retries happen here.
func Call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ch := make(chan result[T], 1)
	go func() {
		v, err := fn(ctx)
		ch <- result[T]{value: v, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timer.C:
		return zero, ErrTimeout
	case res := <-ch:
		return res.value, res.err
	}
}
