package eventbus

import (
	"sync"
)

// TestBus creates a bus configured for testing: recovery, tracing and
// metrics are disabled so panics surface and no global instruments are
// touched. The bus is not registered in the global registry.
func TestBus(opts ...Option) *Bus {
	base := []Option{
		WithRecovery(false),
		WithTracing(false),
		WithMetrics(false),
	}
	return New(append(base, opts...)...)
}

// Recorder captures callback invocations so tests can assert on what was
// delivered. Safe for concurrent use. Subscribe a typed closure that
// forwards its arguments:
//
//	var rec eventbus.Recorder
//	bus.Subscribe("orders", func(id string, qty int) {
//	    rec.Add(id, qty)
//	})
//	bus.Publish(ctx, "orders", "a-1", 2)
//	calls := rec.Calls() // [][]any{{"a-1", 2}}
type Recorder struct {
	mu    sync.Mutex
	calls [][]any
}

// Add records one invocation.
func (r *Recorder) Add(values ...any) {
	r.mu.Lock()
	r.calls = append(r.calls, values)
	r.mu.Unlock()
}

// Calls returns a copy of all recorded invocations in order.
func (r *Recorder) Calls() [][]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]any, len(r.calls))
	copy(out, r.calls)
	return out
}

// Len returns the number of recorded invocations.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Reset discards all recorded invocations.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}
