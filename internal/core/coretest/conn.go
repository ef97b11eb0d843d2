// Package coretest provides an in-memory core.Connection for tests.
package coretest

import (
	"sync"

	"github.com/dkeye/Pairline/internal/core"
	"github.com/dkeye/Pairline/internal/domain"
)

// Conn records every event sent to it.
type Conn struct {
	ID domain.UserID
	// Capacity limits how many events are accepted before Send returns
	// core.ErrBackpressure. Zero means unlimited.
	Capacity int

	mu     sync.Mutex
	events []domain.Event
	closed bool
}

func NewConn(id domain.UserID) *Conn {
	return &Conn{ID: id}
}

func (c *Conn) UserID() domain.UserID { return c.ID }

func (c *Conn) Send(ev domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnClosed
	}
	if c.Capacity > 0 && len(c.events) >= c.Capacity {
		return core.ErrBackpressure
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) Events() []domain.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Event, len(c.events))
	copy(out, c.events)
	return out
}

// Named returns the recorded events with the given name, in order.
func (c *Conn) Named(name domain.EventName) []domain.Event {
	var out []domain.Event
	for _, ev := range c.Events() {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (c *Conn) Last() (domain.Event, bool) {
	evs := c.Events()
	if len(evs) == 0 {
		return domain.Event{}, false
	}
	return evs[len(evs)-1], true
}

func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}
