package eventbus

import (
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// Payload is the transient bundle of values passed to one Publish call.
// It lives only for the duration of that call and is shared, read-only,
// by every subscriber attempted during the dispatch pass.
//
// A nil entry in types marks an untyped nil that was published at that
// position.
type Payload struct {
	values []reflect.Value
	types  []reflect.Type
}

// newPayload captures the published values as owned copies. Values are
// stored by their dynamic type; when isolate is set, values with reference
// semantics (pointers, maps, slices) are additionally deep-copied so that
// subscribers never share backing storage with the publisher.
func newPayload(values []any, isolate bool) *Payload {
	p := &Payload{
		values: make([]reflect.Value, len(values)),
		types:  make([]reflect.Type, len(values)),
	}
	for i, v := range values {
		if v == nil {
			continue
		}
		if isolate {
			v = isolateValue(v)
		}
		rv := reflect.ValueOf(v)
		p.values[i] = rv
		p.types[i] = rv.Type()
	}
	return p
}

// Len returns the number of published values.
func (p *Payload) Len() int {
	if p == nil {
		return 0
	}
	return len(p.values)
}

// Types returns the dynamic types of the published values. Positions where
// an untyped nil was published are nil.
func (p *Payload) Types() []reflect.Type {
	out := make([]reflect.Type, len(p.types))
	copy(out, p.types)
	return out
}

// Value returns the published value at position i, or nil if an untyped
// nil was published there.
func (p *Payload) Value(i int) any {
	if !p.values[i].IsValid() {
		return nil
	}
	return p.values[i].Interface()
}

// isolateValue deep-copies a value with shared backing storage via a
// msgpack round-trip into a fresh value of the same type. Values that the
// codec cannot represent (functions, channels, cyclic graphs) fall back to
// the shallow copy already made by the variadic call.
func isolateValue(v any) any {
	switch reflect.TypeOf(v).Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
	default:
		return v
	}
	data, err := msgpack.Marshal(v)
	if err != nil {
		return v
	}
	fresh := reflect.New(reflect.TypeOf(v))
	if err := msgpack.Unmarshal(data, fresh.Interface()); err != nil {
		return v
	}
	return fresh.Elem().Interface()
}
