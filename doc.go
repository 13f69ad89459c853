// Package eventbus provides an in-process, typed publish/subscribe
// dispatcher. Named topics accept subscriptions of arbitrary-arity
// functions; published values are routed at runtime to every subscriber
// whose parameter types can be matched or converted from them. It serves
// components within one process that want loose coupling without a shared
// interface contract.
//
// Basic example:
//
//	bus := eventbus.New()
//
//	id, err := bus.Subscribe("user.created", func(name string, age int) {
//	    fmt.Printf("user %s (%d)\n", name, age)
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	bus.Publish(ctx, "user.created", "alice", 30)
//	bus.Unsubscribe("user.created", id)
//
// # Matching
//
// Each subscriber is attempted independently against the published values,
// in subscription order, with a fixed matching priority:
//
//  1. exact: the dynamic types of the published values are identical to
//     the callback's parameter types.
//  2. assignable: each published type is assignable to its parameter, so
//     concrete values reach interface parameters.
//  3. wire conversion: a string parameter accepts []byte (an owned string
//     is constructed from the bytes); every other parameter accepts only
//     its own type under this pass.
//
// A subscriber whose parameters cannot all be matched simply declines;
// neither the publisher nor the other subscribers are affected. Arity
// mismatches decline the same way. A callback with no parameters fires on
// every publish to its topic regardless of the published values.
//
// # Faults
//
// Nothing raised inside a callback escapes Publish. With recovery enabled
// (the default) a panicking callback is contained, logged, counted and
// reported to the WithErrorHandler callback as a *CallbackError, and
// delivery continues to the remaining subscribers.
//
// # Concurrency
//
// All Bus methods are safe for concurrent use. A single reader-writer
// lock guards the topic map; callbacks run synchronously on the
// publishing goroutine after the lock is released, so a slow callback
// stalls its publisher but never blocks the bus, and a callback may call
// back into the bus.
//
// Bus options:
//   - WithLogger: set the logger for the bus.
//   - WithVerboseLogging: trace subscribe/publish/mismatch at debug level.
//   - WithRecovery: enable/disable panic recovery in callbacks. Default true.
//   - WithTracing: enable/disable OpenTelemetry spans. Default true.
//   - WithMetrics: enable/disable OpenTelemetry metrics. Default true.
//   - WithPayloadIsolation: deep-copy published reference values.
//   - WithErrorHandler: observe contained callback faults.
//   - WithDiagnosticRateLimit: bound "no subscribers" log spam.
//
// Subscribe options:
//   - WithMiddleware: wrap this subscription's invoke chain.
//   - Once: unsubscribe after the first successful invocation.
//
// # Bus registry
//
// Buses can be registered globally by name:
//
//	bus, err := eventbus.NewBus("my-app")
//	...
//	eventbus.GetBus("my-app").Publish(ctx, "user.created", "alice", 30)
//
// Close() clears the bus, removes it from the registry and rejects
// further subscriptions.
package eventbus
