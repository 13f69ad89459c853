package eventbus

import (
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

var idCounter uint64

// NewID generates a new unique ID for a bus instance.
// Falls back to a process-local counter if the random source fails.
func NewID() string {
	u, err := uuid.NewRandom()
	if err == nil {
		return u.String()
	}
	return "bus-" + strconv.FormatUint(atomic.AddUint64(&idCounter, 1), 10)
}

// Logger returns a logger with the given component name
func Logger(component string) *slog.Logger {
	return slog.Default().With("component", "eventbus>"+component)
}

// typeNames renders a parameter type list as "(int, string)" for
// diagnostics.
func typeNames(types []reflect.Type) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, t := range types {
		if i > 0 {
			b.WriteString(", ")
		}
		if t == nil {
			b.WriteString("<nil>")
			continue
		}
		b.WriteString(t.String())
	}
	b.WriteByte(')')
	return b.String()
}
