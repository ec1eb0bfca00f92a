// Package event implements a typed single-channel broadcaster. Handlers run in registration order
// and can be disposed at any time, including from inside their own invocation.
package event

import (
	"sync"
	"weak"

	"go.uber.org/atomic"

	"go.viam.com/arsession/logging"
	"go.viam.com/arsession/utils"
)

// Disposable removes a registration when disposed. Dispose is idempotent.
type Disposable interface {
	Dispose()
}

// DisposeFunc adapts a function to Disposable.
type DisposeFunc func()

// Dispose calls f.
func (f DisposeFunc) Dispose() {
	f()
}

type registration[T any] struct {
	// invoke returns false when the owner has been collected and the registration should be pruned.
	invoke   func(T) bool
	disposed atomic.Bool
	parent   *Event[T]
}

func (r *registration[T]) Dispose() {
	if !r.disposed.CompareAndSwap(false, true) {
		return
	}
	r.parent.remove(r)
}

// Event is a broadcaster for payloads of type T.
//
// Publish takes a snapshot of the handler list and invokes the handlers outside of any lock, so
// handlers may subscribe or dispose while a publish is in flight. Publish does not serialize
// itself: callers that need handler-level ordering across publishes must publish from a single
// goroutine.
type Event[T any] struct {
	mu       sync.Mutex
	handlers []*registration[T]
	logger   logging.Logger
	name     string
}

// New returns an Event without a logger. Handler panics are logged to the global logger.
func New[T any]() *Event[T] {
	return &Event[T]{}
}

// NewNamed returns an Event whose handler panics are logged through `logger`.
func NewNamed[T any](name string, logger logging.Logger) *Event[T] {
	return &Event[T]{logger: logger, name: name}
}

// Subscribe registers a handler. The registration lives until the returned Disposable is
// disposed.
func (e *Event[T]) Subscribe(handler func(T)) Disposable {
	return e.add(func(payload T) bool {
		handler(payload)
		return true
	})
}

// SubscribeOwned registers a handler bound to owner. The owner is not kept alive by the
// registration: once it has been garbage collected the handler is skipped and pruned.
func SubscribeOwned[O, T any](e *Event[T], owner *O, handler func(*O, T)) Disposable {
	ref := weak.Make(owner)
	return e.add(func(payload T) bool {
		o := ref.Value()
		if o == nil {
			return false
		}
		handler(o, payload)
		return true
	})
}

func (e *Event[T]) add(invoke func(T) bool) Disposable {
	reg := &registration[T]{invoke: invoke, parent: e}
	e.mu.Lock()
	e.handlers = append(e.handlers, reg)
	e.mu.Unlock()
	return reg
}

func (e *Event[T]) remove(target *registration[T]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, reg := range e.handlers {
		if reg == target {
			// Copy rather than shift in place so snapshots held by in-flight publishes are untouched.
			handlers := make([]*registration[T], 0, len(e.handlers)-1)
			handlers = append(handlers, e.handlers[:i]...)
			e.handlers = append(handlers, e.handlers[i+1:]...)
			return
		}
	}
}

// Publish invokes every live handler with payload in registration order. Registrations disposed
// earlier in the same pass are skipped. A panicking handler is logged and the pass continues.
func (e *Event[T]) Publish(payload T) {
	e.mu.Lock()
	snapshot := e.handlers
	e.mu.Unlock()

	logger := e.logger
	if logger == nil {
		logger = logging.Global()
	}
	for _, reg := range snapshot {
		if reg.disposed.Load() {
			continue
		}
		alive := true
		utils.CallSafely(logger, e.name, func() {
			alive = reg.invoke(payload)
		})
		if !alive {
			reg.Dispose()
		}
	}
}

// Len returns the number of registrations that have not been disposed.
func (e *Event[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers)
}
