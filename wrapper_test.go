package eventbus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSubscribeRejectsInvalidCallbacks(t *testing.T) {
	bus := TestBus()
	defer bus.Close()

	cases := []struct {
		name string
		fn   any
	}{
		{"not a function", 42},
		{"nil", nil},
		{"nil function", (func(int))(nil)},
		{"variadic", func(values ...int) {}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := bus.Subscribe("topic", tc.fn); !errors.Is(err, ErrInvalidCallback) {
				t.Errorf("expected ErrInvalidCallback, got %v", err)
			}
		})
	}

	if bus.IsRegistered("topic") {
		t.Error("rejected callbacks must not create the topic")
	}
}

func TestExactMatchDelivery(t *testing.T) {
	bus := TestBus()
	defer bus.Close()
	ctx := context.Background()

	var rec Recorder
	if _, err := bus.Subscribe("math.add", func(a, b int) {
		rec.Add(a, b)
	}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	bus.Publish(ctx, "math.add", 5, 3)

	want := [][]any{{5, 3}}
	if diff := cmp.Diff(want, rec.Calls()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestStringConversion(t *testing.T) {
	bus := TestBus()
	defer bus.Close()
	ctx := context.Background()

	t.Run("byte slice converts to owned string", func(t *testing.T) {
		var rec Recorder
		bus.Subscribe("greet", func(name string) {
			rec.Add(name)
		})

		raw := []byte("hello")
		bus.Publish(ctx, "greet", raw)
		raw[0] = 'X' // mutating the source must not affect the delivered string

		want := [][]any{{"hello"}}
		if diff := cmp.Diff(want, rec.Calls()); diff != "" {
			t.Errorf("calls mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("string literal matches exactly", func(t *testing.T) {
		var rec Recorder
		bus.Subscribe("greet.exact", func(name string) {
			rec.Add(name)
		})
		bus.Publish(ctx, "greet.exact", "hello")
		if rec.Len() != 1 {
			t.Fatalf("expected 1 invocation, got %d", rec.Len())
		}
	})

	t.Run("named string type accepts byte slice", func(t *testing.T) {
		type userID string
		var got userID
		bus.Subscribe("user", func(id userID) {
			got = id
		})
		bus.Publish(ctx, "user", []byte("u-42"))
		if got != "u-42" {
			t.Errorf("expected u-42, got %q", got)
		}
	})
}

func TestAssignableMatch(t *testing.T) {
	bus := TestBus()
	defer bus.Close()
	ctx := context.Background()

	t.Run("concrete value reaches interface parameter", func(t *testing.T) {
		var rec Recorder
		bus.Subscribe("log", func(v fmt.Stringer) {
			rec.Add(v.String())
		})

		bus.Publish(ctx, "log", testStringer{"formatted"})

		want := [][]any{{"formatted"}}
		if diff := cmp.Diff(want, rec.Calls()); diff != "" {
			t.Errorf("calls mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("any parameter accepts every published type", func(t *testing.T) {
		var rec Recorder
		bus.Subscribe("raw", func(v any) {
			rec.Add(v)
		})
		bus.Publish(ctx, "raw", 7)
		bus.Publish(ctx, "raw", "text")
		if rec.Len() != 2 {
			t.Errorf("expected 2 invocations, got %d", rec.Len())
		}
	})

	t.Run("published nil reaches nillable parameters only", func(t *testing.T) {
		var ptrCalls, intCalls int
		bus.Subscribe("maybe", func(p *int) { ptrCalls++ })
		bus.Subscribe("maybe", func(n int) { intCalls++ })

		bus.Publish(ctx, "maybe", nil)

		if ptrCalls != 1 {
			t.Errorf("pointer callback: expected 1 call, got %d", ptrCalls)
		}
		if intCalls != 0 {
			t.Errorf("int callback: expected 0 calls, got %d", intCalls)
		}
	})
}

func TestTypeMismatchIsSilent(t *testing.T) {
	bus := TestBus()
	defer bus.Close()
	ctx := context.Background()

	var calls int
	bus.Subscribe("numbers", func(n int) { calls++ })

	bus.Publish(ctx, "numbers", "not a number")
	bus.Publish(ctx, "numbers", 3.14)
	bus.Publish(ctx, "numbers", int64(5)) // no numeric widening across the chain

	if calls != 0 {
		t.Errorf("expected 0 invocations, got %d", calls)
	}

	bus.Publish(ctx, "numbers", 5)
	if calls != 1 {
		t.Errorf("expected 1 invocation after matching publish, got %d", calls)
	}
}

func TestArityMismatchIsSilent(t *testing.T) {
	bus := TestBus()
	defer bus.Close()
	ctx := context.Background()

	var calls int
	bus.Subscribe("pair", func(a, b int) { calls++ })

	bus.Publish(ctx, "pair", 1)
	bus.Publish(ctx, "pair", 1, 2, 3)
	bus.Publish(ctx, "pair")

	if calls != 0 {
		t.Errorf("expected 0 invocations, got %d", calls)
	}
}

func TestNoParameterCallback(t *testing.T) {
	bus := TestBus()
	defer bus.Close()
	ctx := context.Background()

	var calls int
	bus.Subscribe("tick", func() { calls++ })

	bus.Publish(ctx, "tick")
	bus.Publish(ctx, "tick", 1, "extra", 3.0)
	bus.Publish(ctx, "tick", nil)

	if calls != 3 {
		t.Errorf("expected 3 invocations, got %d", calls)
	}
}

func TestMixedSignaturesOnOneTopic(t *testing.T) {
	bus := TestBus()
	defer bus.Close()
	ctx := context.Background()

	var intPair, strOne, none int
	bus.Subscribe("mixed", func(a, b int) { intPair++ })
	bus.Subscribe("mixed", func(s string) { strOne++ })
	bus.Subscribe("mixed", func() { none++ })

	bus.Publish(ctx, "mixed", 1, 2)
	bus.Publish(ctx, "mixed", "hi")
	bus.Publish(ctx, "mixed", 1.5)

	if intPair != 1 || strOne != 1 || none != 3 {
		t.Errorf("got intPair=%d strOne=%d none=%d, want 1 1 3", intPair, strOne, none)
	}
}

func TestStatefulClosure(t *testing.T) {
	bus := TestBus()
	defer bus.Close()
	ctx := context.Background()

	count := 0
	bus.Subscribe("save", func(path string, data []int) {
		count++
	})

	for i := 0; i < 5; i++ {
		bus.Publish(ctx, "save", "/tmp/out", []int{1, 2, 3})
	}
	if count != 5 {
		t.Errorf("closure state: expected 5, got %d", count)
	}
}

func TestMethodValueCallback(t *testing.T) {
	bus := TestBus()
	defer bus.Close()
	ctx := context.Background()

	sink := &logSink{}
	bus.Subscribe("log.msg", sink.record)

	bus.Publish(ctx, "log.msg", "warn", "disk almost full")

	want := []string{"[warn] disk almost full"}
	if diff := cmp.Diff(want, sink.lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchPriorityOrder(t *testing.T) {
	// The declared order is exact, assignable, wire. A []byte parameter
	// must receive published []byte as-is (exact), not via conversion.
	bus := TestBus()
	defer bus.Close()
	ctx := context.Background()

	var gotBytes []byte
	var gotString string
	bus.Subscribe("data", func(b []byte) { gotBytes = b })
	bus.Subscribe("data", func(s string) { gotString = s })

	bus.Publish(ctx, "data", []byte("payload"))

	if string(gotBytes) != "payload" {
		t.Errorf("[]byte subscriber: got %q", gotBytes)
	}
	if gotString != "payload" {
		t.Errorf("string subscriber: got %q", gotString)
	}
}

func TestExpectedTypesDiagnostics(t *testing.T) {
	w, err := newCallbackWrapper(func(a int, b string) {}, newSubscribeOptions())
	if err != nil {
		t.Fatalf("newCallbackWrapper failed: %v", err)
	}

	want := []reflect.Type{reflect.TypeOf(0), reflect.TypeOf("")}
	got := w.expectedTypes()
	if len(got) != len(want) {
		t.Fatalf("expected %d types, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("type %d: expected %v, got %v", i, want[i], got[i])
		}
	}
	if s := w.signature(); s != "func(int, string)" {
		t.Errorf("signature: got %q", s)
	}
}

type testStringer struct{ s string }

func (t testStringer) String() string { return t.s }

type logSink struct{ lines []string }

func (l *logSink) record(level, msg string) {
	l.lines = append(l.lines, "["+level+"] "+msg)
}
