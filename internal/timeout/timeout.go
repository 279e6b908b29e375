package timeout

import (
	"context"
	"time"

	"github.com/angeloszaimis/replica-failover/internal/fault"
)

type result[T any] struct {
	value T
	err   error
}

// Race runs op and returns its result if it finishes within d. Otherwise it
// returns a fault.KindTimeout error, or fault.KindCanceled if ctx ends first.
//
// op keeps running after the guard gives up. If release is non-nil it is
// called with any value op produces late, so callers can close response
// bodies that nobody will read. A non-positive d waits without a deadline.
func Race[T any](ctx context.Context, d time.Duration, op func() (T, error), release func(T)) (T, error) {
	done := make(chan result[T], 1)
	go func() {
		v, err := op()
		done <- result[T]{value: v, err: err}
	}()

	var expired <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		expired = timer.C
	}

	var zero T
	select {
	case r := <-done:
		return r.value, r.err
	case <-expired:
		abandon(done, release)
		return zero, fault.Timeout(d)
	case <-ctx.Done():
		abandon(done, release)
		return zero, fault.Canceled(ctx.Err())
	}
}

func abandon[T any](done <-chan result[T], release func(T)) {
	if release == nil {
		return
	}
	go func() {
		r := <-done
		if r.err == nil {
			release(r.value)
		}
	}()
}
