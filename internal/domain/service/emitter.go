package service

import "sync"

type subscriber[T any] struct {
	id      uint64
	handler func(T)
}

// Emitter multicasts values of one event kind to its subscribers.
// Handlers run synchronously on the emitting goroutine, in subscription order.
type Emitter[T any] struct {
	mu          sync.RWMutex
	nextID      uint64
	subscribers []subscriber[T]
}

// NewEmitter creates an Emitter with no subscribers
func NewEmitter[T any]() *Emitter[T] {
	return &Emitter[T]{}
}

// Subscribe registers handler and returns a func that removes it again
func (e *Emitter[T]) Subscribe(handler func(T)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.subscribers = append(e.subscribers, subscriber[T]{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(id) })
	}
}

func (e *Emitter[T]) remove(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, s := range e.subscribers {
		if s.id == id {
			e.subscribers = append(e.subscribers[:i:i], e.subscribers[i+1:]...)
			return
		}
	}
}

// Emit delivers value to every current subscriber
func (e *Emitter[T]) Emit(value T) {
	e.mu.RLock()
	subscribers := make([]subscriber[T], len(e.subscribers))
	copy(subscribers, e.subscribers)
	e.mu.RUnlock()

	for _, s := range subscribers {
		s.handler(value)
	}
}

// Len returns the number of subscribers
func (e *Emitter[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscribers)
}
