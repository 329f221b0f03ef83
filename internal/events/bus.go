// Package events delivers controller notifications to subscribers.
package events

import (
	"runtime/debug"
	"sync"

	"github.com/aretw0/keel/pkg/domain"
)

// Handler receives a notification.
type Handler func(domain.Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a synchronous, typed publish/subscribe hub.
// Handlers run on the publisher's goroutine in subscription order.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[domain.EventType][]subscription

	// onFault receives panics raised by handlers. When nil, panics propagate.
	onFault func(*domain.FaultError)
}

// NewBus creates an empty bus. onFault may be nil.
func NewBus(onFault func(*domain.FaultError)) *Bus {
	return &Bus{
		subs:    make(map[domain.EventType][]subscription),
		onFault: onFault,
	}
}

// Subscribe registers fn for events of type t and returns a function removing it.
func (b *Bus) Subscribe(t domain.EventType, fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[t] = append(b.subs[t], subscription{id: id, handler: fn})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(t, id) })
	}
}

func (b *Bus) remove(t domain.EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[t]
	for i, s := range subs {
		if s.id == id {
			b.subs[t] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers evt to the handlers subscribed when Publish was called.
func (b *Bus) Publish(evt domain.Event) {
	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[evt.Type]...)
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(s.handler, evt)
	}
}

// Count returns the number of subscribers for t.
func (b *Bus) Count(t domain.EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[t])
}

func (b *Bus) deliver(fn Handler, evt domain.Event) {
	if b.onFault != nil {
		defer func() {
			if r := recover(); r != nil {
				b.onFault(&domain.FaultError{Value: r, Stack: debug.Stack()})
			}
		}()
	}
	fn(evt)
}
