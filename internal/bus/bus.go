// Package bus provides typed publish/subscribe topics used to decouple the
// core state machines from UI and gameplay observers. Delivery is synchronous:
// Publish invokes every live subscriber before returning, so a phase change is
// fully broadcast before the call that triggered it completes.
package bus

import "sync"

// Subscription detaches a subscriber from its topic.
// Safe to call multiple times; only the first call has effect.
type Subscription struct {
	cancel func()
	once   sync.Once
}

// Cancel removes the subscriber from the topic.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// Topic is a typed fan-out channel. Subscribers are invoked in registration
// order, on the publishing goroutine.
type Topic[T any] struct {
	mu     sync.Mutex
	nextID int
	order  []int
	subs   map[int]func(T)
}

// NewTopic creates an empty topic.
func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{subs: make(map[int]func(T))}
}

// Subscribe registers fn to receive every subsequent publish.
func (t *Topic[T]) Subscribe(fn func(T)) *Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	t.order = append(t.order, id)

	return &Subscription{cancel: func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}}
}

// Publish delivers evt to all current subscribers before returning.
func (t *Topic[T]) Publish(evt T) {
	t.mu.Lock()
	fns := make([]func(T), 0, len(t.subs))
	for _, id := range t.order {
		if fn, ok := t.subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(evt)
	}
}

// SubscriberCount returns the number of live subscribers.
func (t *Topic[T]) SubscriberCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}
