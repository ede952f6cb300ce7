package event

import (
	"context"
	"sync"
)

// Collector is a Handler target that keeps every event it receives.
// It is meant for tests and diagnostics.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// Handle appends evt. Pass c.Handle to Subscribe.
func (c *Collector) Handle(_ context.Context, evt Event) {
	c.mu.Lock()
	c.events = append(c.events, evt)
	c.mu.Unlock()
}

// Events returns a copy of the received events.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

// OfType returns the received events of type t.
func (c *Collector) OfType(t Type) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, e := range c.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of received events.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}
