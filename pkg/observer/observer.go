// Package observer provides the per-client publish/subscribe registry used for
// lifecycle notifications.
package observer

import (
	"context"
	"sync"

	"github.com/sbm367/syft/pkg/domain"
)

// Subscription identifies a registered handler so it can be removed later.
type Subscription uint64

type entry struct {
	id Subscription
	fn domain.Handler
}

// Observer maps event types to ordered handler lists.
// Safe for concurrent use.
type Observer struct {
	mu       sync.RWMutex
	next     Subscription
	handlers map[domain.EventType][]entry
}

// New creates an empty observer.
func New() *Observer {
	return &Observer{
		handlers: make(map[domain.EventType][]entry),
	}
}

// Subscribe registers h for events of the given type.
func (o *Observer) Subscribe(event domain.EventType, h domain.Handler) Subscription {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.next++
	o.handlers[event] = append(o.handlers[event], entry{id: o.next, fn: h})
	return o.next
}

// Unsubscribe removes a handler. It reports false if the subscription was not
// registered for event.
func (o *Observer) Unsubscribe(event domain.EventType, sub Subscription) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	list := o.handlers[event]
	for i, e := range list {
		if e.id != sub {
			continue
		}
		rest := make([]entry, 0, len(list)-1)
		rest = append(rest, list[:i]...)
		rest = append(rest, list[i+1:]...)
		if len(rest) == 0 {
			delete(o.handlers, event)
		} else {
			o.handlers[event] = rest
		}
		return true
	}
	return false
}

// Broadcast calls every handler registered for the event type, in
// subscription order, on the caller's goroutine. Handlers may subscribe or
// unsubscribe while being called; changes apply to the next broadcast.
func (o *Observer) Broadcast(ctx context.Context, ev domain.Event) {
	o.mu.RLock()
	list := o.handlers[ev.Type()]
	o.mu.RUnlock()

	for _, e := range list {
		e.fn(ctx, ev)
	}
}

// Count returns the number of handlers registered for event.
func (o *Observer) Count(event domain.EventType) int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.handlers[event])
}
