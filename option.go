package eventbus

import (
	"log/slog"

	"golang.org/x/time/rate"
)

// Default configuration values
var (
	// DefaultDiagnosticRate limits how often per second "no subscribers"
	// diagnostics are logged for hot topics.
	DefaultDiagnosticRate rate.Limit = 10

	// DefaultDiagnosticBurst is the burst allowance for diagnostic logging.
	DefaultDiagnosticBurst = 20
)

// options holds configuration for a bus (unexported)
type options struct {
	logger          *slog.Logger
	verbose         bool
	recoveryEnabled bool
	tracingEnabled  bool
	metricsEnabled  bool
	isolatePayload  bool
	onError         func(error)
	diagLimit       rate.Limit
	diagBurst       int
}

// Option configures a bus
type Option func(*options)

// WithLogger sets a custom logger for the bus
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithVerboseLogging enables subscribe/publish/mismatch tracing at debug
// level. Equivalent to calling SetVerboseLogging(true) after construction.
func WithVerboseLogging(enabled bool) Option {
	return func(o *options) {
		o.verbose = enabled
	}
}

// WithRecovery enables/disables panic recovery around callback invocation.
// Recovery should stay enabled outside of tests: with it disabled a
// panicking subscriber takes the publishing goroutine down with it.
func WithRecovery(enabled bool) Option {
	return func(o *options) {
		o.recoveryEnabled = enabled
	}
}

// WithTracing enables/disables OpenTelemetry spans around Publish
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
	}
}

// WithMetrics enables/disables OpenTelemetry metrics for the bus
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
	}
}

// WithPayloadIsolation deep-copies published pointer, map and slice values
// before dispatch so subscribers never share backing storage with the
// publisher. Values the codec cannot represent keep the shallow copy.
func WithPayloadIsolation(enabled bool) Option {
	return func(o *options) {
		o.isolatePayload = enabled
	}
}

// WithErrorHandler sets a callback invoked with every contained callback
// fault. The handler runs on the publishing goroutine.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		if fn != nil {
			o.onError = fn
		}
	}
}

// WithDiagnosticRateLimit overrides the rate limit applied to repeated
// "no subscribers" diagnostics. Set limit to rate.Inf to disable limiting.
func WithDiagnosticRateLimit(limit rate.Limit, burst int) Option {
	return func(o *options) {
		o.diagLimit = limit
		o.diagBurst = burst
	}
}

// newOptions creates options with defaults and applies provided options
func newOptions(opts ...Option) *options {
	o := &options{
		logger:          Logger("bus"),
		recoveryEnabled: true,
		tracingEnabled:  true,
		metricsEnabled:  true,
		onError:         func(error) {},
		diagLimit:       DefaultDiagnosticRate,
		diagBurst:       DefaultDiagnosticBurst,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// subscribeOptions holds per-subscription configuration (unexported)
type subscribeOptions struct {
	middleware []Middleware
	once       bool
}

// SubscribeOption configures a single subscription
type SubscribeOption func(*subscribeOptions)

// WithMiddleware adds middleware to this subscription's invoke chain.
// Middleware runs in the order given, outermost first.
func WithMiddleware(mw ...Middleware) SubscribeOption {
	return func(o *subscribeOptions) {
		o.middleware = append(o.middleware, mw...)
	}
}

// Once unsubscribes the callback automatically after its first successful
// invocation.
func Once() SubscribeOption {
	return func(o *subscribeOptions) {
		o.once = true
	}
}

func newSubscribeOptions(opts ...SubscribeOption) *subscribeOptions {
	o := &subscribeOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
