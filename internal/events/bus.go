package events

import (
	"context"
	"sync"
)

// ComponentsReady is published once fragments are mounted and initialised.
const ComponentsReady = "components-ready"

// Signal is a payload-free broadcast. Source names the publisher so subscribers can tell the
// assembler's own publication from a re-emit.
type Signal struct {
	Name   string
	Source string
}

// Handler reacts to a published signal.
type Handler func(ctx context.Context, sig Signal)

type subscriber struct {
	name    string
	handler Handler
}

// Bus delivers signals to named subscribers in registration order.
type Bus struct {
	mu   sync.RWMutex
	subs []subscriber
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers handler under name. Subscribing an existing name replaces its handler and
// keeps its position.
func (b *Bus) Subscribe(name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.subs {
		if b.subs[i].name == name {
			b.subs[i].handler = handler
			return
		}
	}
	b.subs = append(b.subs, subscriber{name: name, handler: handler})
}

// Unsubscribe removes the named subscriber if present.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.subs {
		if b.subs[i].name == name {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Subscribers lists subscriber names in delivery order.
func (b *Bus) Subscribers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, len(b.subs))
	for i, s := range b.subs {
		names[i] = s.name
	}
	return names
}

// Publish delivers sig to every subscriber and returns how many were notified. Handlers run
// outside the bus lock so they may subscribe or publish themselves.
func (b *Bus) Publish(ctx context.Context, sig Signal) int {
	b.mu.RLock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(ctx, sig)
	}
	return len(subs)
}
