package eventbus

import (
	"errors"
	"fmt"
)

// Bus errors.
// Use errors.Is() to check for these as they may be wrapped with context.
var (
	// ErrBusExists indicates a bus with the same name is already registered.
	ErrBusExists = errors.New("bus already exists with this name")

	// ErrBusNotFound indicates no bus is registered under the given name.
	ErrBusNotFound = errors.New("bus not found")

	// ErrBusClosed indicates the bus has been closed and no longer accepts
	// subscriptions.
	ErrBusClosed = errors.New("bus is closed")

	// ErrInvalidCallback indicates Subscribe was given something other than
	// a non-variadic function value.
	ErrInvalidCallback = errors.New("callback must be a non-variadic function")
)

// CallbackError reports a fault raised by a subscriber's callback during
// dispatch. It is contained at the dispatch boundary: the publisher never
// sees it and remaining subscribers still receive the event. It surfaces
// only through the bus logger, metrics and the WithErrorHandler callback.
type CallbackError struct {
	Topic string
	ID    ID
	Err   error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("callback %d on topic %q: %v", e.ID, e.Topic, e.Err)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

// IsCallbackFault checks if an error originated inside a subscriber's
// callback rather than in the bus itself.
func IsCallbackFault(err error) bool {
	var cbErr *CallbackError
	return errors.As(err, &cbErr)
}

// PanicError wraps a recovered panic value so it can travel as an error
// through CallbackError and the error handler.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
