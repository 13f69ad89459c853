package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	busRunning = 1
	busStopped = 0
)

// DefaultBusName is the name used by NewBus when none is given.
var DefaultBusName = "event-bus"

// Global bus registry
var busRegistry sync.Map // map[string]*Bus

// GetBus returns a registered bus by name.
// Returns nil if no bus with that name exists.
func GetBus(name string) *Bus {
	if v, ok := busRegistry.Load(name); ok {
		return v.(*Bus)
	}
	return nil
}

// ListBuses returns the names of all registered buses.
func ListBuses() []string {
	var names []string
	busRegistry.Range(func(key, value any) bool {
		names = append(names, key.(string))
		return true
	})
	return names
}

// Stats is a point-in-time summary of a bus, taken in a single pass over
// all non-empty topics. When several topics tie for most subscribed, the
// reported one is whichever the map iteration reached first; ties are
// therefore non-deterministic.
type Stats struct {
	TotalTopics          int    `json:"total_topics"`
	TotalCallbacks       int    `json:"total_callbacks"`
	MaxCallbacksPerTopic int    `json:"max_callbacks_per_topic"`
	MostSubscribedTopic  string `json:"most_subscribed_topic"`
}

// Bus routes published values to subscribed callbacks by topic name.
//
// Subscribers register plain Go functions of any arity; at publish time
// each subscriber independently matches the published values against its
// declared parameter types and is invoked, converted into, or skipped.
// All methods are safe for concurrent use.
//
// A single reader-writer lock guards the topic map: Subscribe,
// Unsubscribe, UnsubscribeAll and Clear take it exclusively; lookups and
// the snapshot phase of Publish take it shared. Callbacks run on the
// publishing goroutine after the lock is released, so a callback may call
// back into the bus without deadlocking.
type Bus struct {
	status  int32
	id      string
	name    string
	nextID  atomic.Uint64
	verbose atomic.Bool

	mutex  sync.RWMutex
	topics map[string][]*callbackWrapper

	logger          *slog.Logger
	recoveryEnabled bool
	tracingEnabled  bool
	isolatePayload  bool
	onError         func(error)
	diag            *rate.Limiter
	metrics         *busMetrics
	tracer          trace.Tracer
}

// New creates a bus that is not registered in the global registry.
func New(opts ...Option) *Bus {
	o := newOptions(opts...)

	b := &Bus{
		status:          busRunning,
		id:              NewID(),
		topics:          make(map[string][]*callbackWrapper),
		logger:          o.logger,
		recoveryEnabled: o.recoveryEnabled,
		tracingEnabled:  o.tracingEnabled,
		isolatePayload:  o.isolatePayload,
		onError:         o.onError,
		diag:            rate.NewLimiter(o.diagLimit, o.diagBurst),
	}
	b.verbose.Store(o.verbose)
	if o.metricsEnabled {
		b.metrics = newBusMetrics()
	}
	if o.tracingEnabled {
		b.tracer = otel.Tracer("eventbus")
	}
	return b
}

// NewBus creates a bus and registers it in the global registry so it can
// be retrieved with GetBus(name). Returns ErrBusExists if a bus with the
// same name is already registered.
func NewBus(name string, opts ...Option) (*Bus, error) {
	if name == "" {
		name = DefaultBusName
	}
	b := New(opts...)
	b.name = name
	b.logger = b.logger.With("bus", name)
	if _, loaded := busRegistry.LoadOrStore(name, b); loaded {
		return nil, fmt.Errorf("%w: %q", ErrBusExists, name)
	}
	return b, nil
}

// Name returns the bus name, empty for unregistered buses.
func (b *Bus) Name() string {
	return b.name
}

func (b *Bus) String() string {
	if b.name != "" {
		return b.name
	}
	return b.id
}

func (b *Bus) isOpen() bool {
	return atomic.LoadInt32(&b.status) == busRunning
}

// SetVerboseLogging toggles subscribe/publish/mismatch tracing at debug
// level. A diagnostic toggle only; it never affects dispatch outcomes.
func (b *Bus) SetVerboseLogging(enabled bool) {
	b.verbose.Store(enabled)
}

// Subscribe registers fn under the given topic and returns the identity
// to use for a targeted Unsubscribe. fn may be any non-variadic function:
// a named function, a method value or a closure over captured state. The
// bus never inspects that state; if the same subscription is reachable
// from concurrent publishes, its thread safety is the subscriber's own
// responsibility.
//
// Subscribe fails only for a structurally invalid callback or a closed
// bus.
func (b *Bus) Subscribe(topic string, fn any, opts ...SubscribeOption) (ID, error) {
	if !b.isOpen() {
		return 0, ErrBusClosed
	}

	w, err := newCallbackWrapper(fn, newSubscribeOptions(opts...))
	if err != nil {
		return 0, err
	}
	w.id = ID(b.nextID.Add(1))

	b.mutex.Lock()
	b.topics[topic] = append(b.topics[topic], w)
	b.mutex.Unlock()

	if b.verbose.Load() {
		b.logger.Debug("subscribed",
			"topic", topic,
			"id", uint64(w.id),
			"signature", w.signature())
	}
	b.metrics.add(context.Background(), counterSubscribed, 1, topic)
	return w.id, nil
}

// Unsubscribe removes the subscription with the given identity from the
// topic. Returns whether a subscription was found and removed; an unknown
// topic or id is a no-op.
func (b *Bus) Unsubscribe(topic string, id ID) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	wrappers, ok := b.topics[topic]
	if !ok {
		return false
	}
	for i, w := range wrappers {
		if w.id != id {
			continue
		}
		wrappers = append(wrappers[:i], wrappers[i+1:]...)
		if len(wrappers) == 0 {
			// A present topic always maps to a non-empty collection.
			delete(b.topics, topic)
		} else {
			b.topics[topic] = wrappers
		}
		if b.verbose.Load() {
			b.logger.Debug("unsubscribed", "topic", topic, "id", uint64(id))
		}
		b.metrics.add(context.Background(), counterUnsubscribed, 1, topic)
		return true
	}
	return false
}

// UnsubscribeAll removes the entire topic and returns how many
// subscriptions were discarded; 0 if the topic was absent.
func (b *Bus) UnsubscribeAll(topic string) int {
	b.mutex.Lock()
	count := len(b.topics[topic])
	delete(b.topics, topic)
	b.mutex.Unlock()

	if count > 0 {
		if b.verbose.Load() {
			b.logger.Debug("unsubscribed all", "topic", topic, "count", count)
		}
		b.metrics.add(context.Background(), counterUnsubscribed, int64(count), topic)
	}
	return count
}

// IsRegistered reports whether the topic currently has any subscribers.
func (b *Bus) IsRegistered(topic string) bool {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.topics[topic]) > 0
}

// CallbackCount returns the number of subscribers on the topic, 0 if the
// topic is absent.
func (b *Bus) CallbackCount(topic string) int {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return len(b.topics[topic])
}

// TopicNames returns every topic with at least one subscriber. Order
// reflects map iteration, not subscription time.
func (b *Bus) TopicNames() []string {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	names := make([]string, 0, len(b.topics))
	for name := range b.topics {
		names = append(names, name)
	}
	return names
}

// Stats returns a point-in-time summary of the bus.
func (b *Bus) Stats() Stats {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	var stats Stats
	for name, wrappers := range b.topics {
		stats.TotalTopics++
		stats.TotalCallbacks += len(wrappers)
		if len(wrappers) > stats.MaxCallbacksPerTopic {
			stats.MaxCallbacksPerTopic = len(wrappers)
			stats.MostSubscribedTopic = name
		}
	}
	return stats
}

// Publish delivers the given values to every subscriber of the topic, in
// subscription order, on the calling goroutine. Each subscriber
// independently matches or converts the values against its parameter
// types; a mismatch skips that subscriber and a callback panic is
// contained, so delivery always continues to the remaining subscribers.
//
// Publish is fire-and-forget: it returns nothing and never fails. A topic
// with no subscribers is a diagnosed no-op.
func (b *Bus) Publish(ctx context.Context, topic string, values ...any) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !b.isOpen() {
		b.logger.Debug("publish on closed bus dropped", "topic", topic)
		return
	}

	start := time.Now()
	if b.tracer != nil {
		var span trace.Span
		ctx, span = b.tracer.Start(ctx, topic+".publish",
			trace.WithAttributes(
				attribute.String("topic", topic),
				attribute.String("bus.id", b.id),
				attribute.Int("values", len(values))),
			trace.WithSpanKind(trace.SpanKindInternal))
		defer span.End()
	}

	// Snapshot under the read lock, then dispatch outside it. A wrapper
	// removed concurrently may still see this pass; removal only unlinks
	// it from future lookups.
	b.mutex.RLock()
	wrappers := b.topics[topic]
	snapshot := make([]*callbackWrapper, len(wrappers))
	copy(snapshot, wrappers)
	b.mutex.RUnlock()

	if len(snapshot) == 0 {
		if b.diag.Allow() {
			b.logger.Debug("no subscribers", "topic", topic)
		}
		b.metrics.add(ctx, counterDropped, 1, topic)
		return
	}

	payload := newPayload(values, b.isolatePayload)
	if b.verbose.Load() {
		b.logger.Debug("publish",
			"topic", topic,
			"values", len(values),
			"types", typeNames(payload.Types()),
			"subscribers", len(snapshot))
	}

	var delivered, mismatched, faults int64
	var spent []ID
	for _, w := range snapshot {
		invoked, err := b.dispatch(ctx, w, payload)
		switch {
		case err != nil:
			faults++
			cbErr := &CallbackError{Topic: topic, ID: w.id, Err: err}
			b.logger.Error("callback fault contained",
				"topic", topic,
				"id", uint64(w.id),
				"error", err)
			b.onError(cbErr)
		case invoked:
			delivered++
			if w.once && w.fired.CompareAndSwap(false, true) {
				spent = append(spent, w.id)
			}
		default:
			if b.verbose.Load() {
				b.logger.Debug("type mismatch, skipping callback",
					"topic", topic,
					"id", uint64(w.id),
					"expected", typeNames(w.expectedTypes()),
					"actual", typeNames(payload.Types()))
			}
			mismatched++
		}
	}

	for _, id := range spent {
		b.Unsubscribe(topic, id)
	}

	b.metrics.add(ctx, counterPublished, 1, topic)
	b.metrics.add(ctx, counterDelivered, delivered, topic)
	b.metrics.add(ctx, counterMismatched, mismatched, topic)
	b.metrics.add(ctx, counterFaults, faults, topic)
	b.metrics.recordDuration(ctx, time.Since(start).Seconds(), topic)

	if b.verbose.Load() {
		b.logger.Debug("publish done",
			"topic", topic,
			"delivered", delivered,
			"mismatched", mismatched,
			"faults", faults)
	}
}

// dispatch runs one subscriber's invoke chain, containing panics when
// recovery is enabled. Nothing raised inside a callback is allowed to
// escape Publish.
func (b *Bus) dispatch(ctx context.Context, w *callbackWrapper, p *Payload) (invoked bool, err error) {
	if b.recoveryEnabled {
		defer func() {
			if r := recover(); r != nil {
				invoked = true
				err = &PanicError{Value: r, Stack: debug.Stack()}
			}
		}()
	}
	return w.invoke(ctx, p)
}

// PublishIfMinSubscribers publishes only if the topic currently has at
// least min subscribers, and reports whether it published.
//
// The count check and the publish are not atomic together: a concurrent
// subscribe or unsubscribe may land between them, so "at least min
// subscribers received this" is approximate under contention.
func (b *Bus) PublishIfMinSubscribers(ctx context.Context, topic string, min int, values ...any) bool {
	b.mutex.RLock()
	count := len(b.topics[topic])
	b.mutex.RUnlock()

	if count < min {
		return false
	}
	b.Publish(ctx, topic, values...)
	return true
}

// Clear discards every topic and subscription. The bus stays open and
// identity issuance continues from where it left off.
func (b *Bus) Clear() {
	b.mutex.Lock()
	count := 0
	for _, wrappers := range b.topics {
		count += len(wrappers)
	}
	b.topics = make(map[string][]*callbackWrapper)
	b.mutex.Unlock()

	if count > 0 && b.verbose.Load() {
		b.logger.Debug("cleared", "discarded", count)
	}
}

// Close clears the bus, removes it from the global registry and rejects
// further subscriptions. Idempotent.
func (b *Bus) Close() error {
	if !atomic.CompareAndSwapInt32(&b.status, busRunning, busStopped) {
		return nil
	}
	b.Clear()
	if b.name != "" {
		busRegistry.Delete(b.name)
	}
	b.logger.Debug("bus closed")
	return nil
}
