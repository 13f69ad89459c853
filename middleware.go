package eventbus

import (
	"context"

	"golang.org/x/time/rate"
)

// InvokeFunc attempts to deliver a payload to one subscriber. It reports
// whether the callback was invoked; an error means the invocation itself
// faulted. A declined delivery is (false, nil).
type InvokeFunc func(ctx context.Context, p *Payload) (bool, error)

// Middleware wraps a subscription's invoke chain. Attach with
// WithMiddleware at Subscribe time.
type Middleware func(next InvokeFunc) InvokeFunc

// Throttle returns middleware that declines invocations above the given
// rate. The token bucket is private to the subscription. Over-limit events
// are simply not delivered; there is no queueing.
func Throttle(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)
	return func(next InvokeFunc) InvokeFunc {
		return func(ctx context.Context, p *Payload) (bool, error) {
			if !limiter.Allow() {
				return false, nil
			}
			return next(ctx, p)
		}
	}
}

// Filter returns middleware that declines any payload the predicate
// rejects. The predicate must not retain the payload past its return.
func Filter(pred func(ctx context.Context, p *Payload) bool) Middleware {
	return func(next InvokeFunc) InvokeFunc {
		return func(ctx context.Context, p *Payload) (bool, error) {
			if !pred(ctx, p) {
				return false, nil
			}
			return next(ctx, p)
		}
	}
}
