package eventbus

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"
)

// ID identifies one subscription within a Bus. IDs are issued from an
// atomic counter, are strictly increasing, and are never reused.
type ID uint64

var (
	byteSliceType = reflect.TypeOf([]byte(nil))
)

// callbackWrapper adapts one subscribed function, whatever its parameter
// list, into a uniform "attempt to invoke me against this payload" unit so
// that callbacks of unrelated signatures can share a topic collection.
//
// The declared parameter types are captured once at construction and never
// change. The wrapper is owned by the per-topic collection of exactly one
// Bus.
type callbackWrapper struct {
	id       ID
	fn       reflect.Value
	argTypes []reflect.Type
	invoke   InvokeFunc
	once     bool
	fired    atomic.Bool
}

// newCallbackWrapper inspects fn and builds a wrapper around it.
// fn must be a non-variadic function value; named functions, method values
// and closures are all accepted. The subscription middleware chain is
// composed here so that Publish only ever sees a single InvokeFunc.
func newCallbackWrapper(fn any, cfg *subscribeOptions) (*callbackWrapper, error) {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: got %T", ErrInvalidCallback, fn)
	}
	if v.IsNil() {
		return nil, fmt.Errorf("%w: got nil function", ErrInvalidCallback)
	}
	t := v.Type()
	if t.IsVariadic() {
		return nil, fmt.Errorf("%w: variadic function %s", ErrInvalidCallback, t)
	}

	args := make([]reflect.Type, t.NumIn())
	for i := range args {
		args[i] = t.In(i)
	}

	w := &callbackWrapper{
		fn:       v,
		argTypes: args,
		once:     cfg.once,
	}
	w.invoke = w.call
	for i := len(cfg.middleware) - 1; i >= 0; i-- {
		w.invoke = cfg.middleware[i](w.invoke)
	}
	return w, nil
}

// expectedTypes returns the formal parameter types for diagnostics.
func (w *callbackWrapper) expectedTypes() []reflect.Type {
	out := make([]reflect.Type, len(w.argTypes))
	copy(out, w.argTypes)
	return out
}

// signature returns the callback's declared type, e.g. "func(int, string)".
func (w *callbackWrapper) signature() string {
	return w.fn.Type().String()
}

// call is the innermost InvokeFunc: match the payload against the declared
// parameter list and, on success, invoke the callback exactly once.
// A declined match returns (false, nil) with no side effects.
func (w *callbackWrapper) call(_ context.Context, p *Payload) (bool, error) {
	args, ok := w.matchArgs(p)
	if !ok {
		return false, nil
	}
	w.fn.Call(args)
	return true, nil
}

// matchArgs decides whether the payload can reach this callback and, if so,
// produces the argument list. The chain is evaluated in a fixed priority
// order and stops at the first pass that succeeds:
//
//  1. exact: payload dynamic types are identical to the formal types.
//  2. assignable: each payload type is assignable to its formal type
//     (concrete values reaching interface parameters, nil reaching
//     nillable parameters).
//  3. wire conversion: each payload type equals the formal type's wire
//     type; a string parameter's wire type is []byte, every other
//     parameter's wire type is itself.
//
// A position that cannot be converted fails the whole match; the callback
// then simply declines, it is never handed a substituted zero value.
func (w *callbackWrapper) matchArgs(p *Payload) ([]reflect.Value, bool) {
	// Zero-parameter callbacks fire unconditionally, whatever was published.
	if len(w.argTypes) == 0 {
		return nil, true
	}
	if p == nil || p.Len() != len(w.argTypes) {
		return nil, false
	}
	if args, ok := w.matchExact(p); ok {
		return args, true
	}
	if args, ok := w.matchAssignable(p); ok {
		return args, true
	}
	return w.matchWire(p)
}

func (w *callbackWrapper) matchExact(p *Payload) ([]reflect.Value, bool) {
	for i, want := range w.argTypes {
		if p.types[i] == nil || p.types[i] != want {
			return nil, false
		}
	}
	return p.values, true
}

func (w *callbackWrapper) matchAssignable(p *Payload) ([]reflect.Value, bool) {
	args := make([]reflect.Value, len(w.argTypes))
	for i, want := range w.argTypes {
		src := p.types[i]
		if src == nil {
			// Untyped nil was published: only nillable parameters accept it.
			if !isNillable(want) {
				return nil, false
			}
			args[i] = reflect.Zero(want)
			continue
		}
		if !src.AssignableTo(want) {
			return nil, false
		}
		args[i] = p.values[i]
	}
	return args, true
}

func (w *callbackWrapper) matchWire(p *Payload) ([]reflect.Value, bool) {
	args := make([]reflect.Value, len(w.argTypes))
	for i, want := range w.argTypes {
		src := p.types[i]
		if src == nil || src != wireType(want) {
			return nil, false
		}
		if src == want {
			args[i] = p.values[i]
			continue
		}
		if !src.ConvertibleTo(want) {
			return nil, false
		}
		// Convert copies the bytes, so the subscriber receives an owned
		// string rather than a view into the publisher's buffer.
		args[i] = p.values[i].Convert(want)
	}
	return args, true
}

// wireType maps a formal parameter type to the canonical type a publisher
// supplies for it under the conversion pass. String-kinded parameters are
// fed from raw byte sequences; everything else travels as itself.
func wireType(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.String {
		return byteSliceType
	}
	return t
}

func isNillable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface,
		reflect.Map, reflect.Pointer, reflect.Slice, reflect.UnsafePointer:
		return true
	default:
		return false
	}
}
