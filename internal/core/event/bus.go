package event

import (
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// Bus is a synchronous, typed listener registry. Handlers run on the
// publishing goroutine in registration order. A single mutex guards both
// registration and dispatch, so a handler present when Publish starts is
// called exactly once for that event. Handlers must be fast and must not
// Subscribe from inside a dispatch; a panicking handler is recovered and
// logged so the publisher keeps running.
type Bus struct {
	mu       sync.Mutex
	handlers map[reflect.Type][]any
	log      *zap.Logger
	onPanic  func(event string)
}

func NewBus(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		handlers: make(map[reflect.Type][]any),
		log:      log,
	}
}

// OnPanic installs a hook called after a handler panic has been recovered.
// It must be set before the first Publish.
func (b *Bus) OnPanic(fn func(event string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onPanic = fn
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.handlers[t] = append(b.handlers[t], fn)
}

// Publish delivers ev to every handler subscribed for T and returns how
// many were called.
func Publish[T any](b *Bus, ev T) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := reflect.TypeOf((*T)(nil)).Elem()
	handlers := b.handlers[t]
	for _, h := range handlers {
		// Subscribe and Publish use the same type key.
		b.call(t, func() { h.(func(T))(ev) })
	}
	return len(handlers)
}

// Len returns the number of handlers subscribed for T.
func Len[T any](b *Bus) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[reflect.TypeOf((*T)(nil)).Elem()])
}

func (b *Bus) call(t reflect.Type, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("listener panicked",
				zap.String("event", t.String()),
				zap.String("panic", fmt.Sprint(r)),
			)
			if b.onPanic != nil {
				b.onPanic(t.String())
			}
		}
	}()
	fn()
}
