package hook

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Token identifies a subscription. It is returned by Subscribe and consumed
// by Unsubscribe.
type Token uint64

var nextToken atomic.Uint64

type subscriber[E any] struct {
	token Token
	fn    func(E)
}

// Registry is an ordered list of subscribers for one event category.
//
// Subscribe and Unsubscribe may be called at any time, including from inside
// a subscriber. Emission always works on the list as it was when it started.
type Registry[E any] struct {
	mu   sync.Mutex
	subs atomic.Pointer[[]subscriber[E]]
}

// Subscribe appends fn and returns the token that removes it.
func (r *Registry[E]) Subscribe(fn func(E)) Token {
	if fn == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tok := Token(nextToken.Add(1))
	cur := r.load()
	next := make([]subscriber[E], len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, subscriber[E]{token: tok, fn: fn})
	r.subs.Store(&next)
	return tok
}

// Unsubscribe removes the subscriber with the given token. It reports whether
// one was removed.
func (r *Registry[E]) Unsubscribe(tok Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.load()
	for i, s := range cur {
		if s.token != tok {
			continue
		}
		next := make([]subscriber[E], 0, len(cur)-1)
		next = append(next, cur[:i]...)
		next = append(next, cur[i+1:]...)
		r.subs.Store(&next)
		return true
	}
	return false
}

// Len returns the number of subscribers.
func (r *Registry[E]) Len() int {
	return len(r.load())
}

// Clear removes every subscriber.
func (r *Registry[E]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs.Store(nil)
}

// emit calls every subscriber in registration order. A panicking subscriber
// is reported to onPanic and does not stop the others.
func (r *Registry[E]) emit(ev E, onPanic func(error)) {
	for _, s := range r.load() {
		callSubscriber(s.fn, ev, onPanic)
	}
}

func (r *Registry[E]) load() []subscriber[E] {
	p := r.subs.Load()
	if p == nil {
		return nil
	}
	return *p
}

func callSubscriber[E any](fn func(E), ev E, onPanic func(error)) {
	defer func() {
		if p := recover(); p != nil && onPanic != nil {
			onPanic(fmt.Errorf("%w: %v", ErrSubscriberPanic, p))
		}
	}()
	fn(ev)
}
