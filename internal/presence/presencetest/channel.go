// Package presencetest provides an in-memory presence.Channel for tests.
package presencetest

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrClosed = errors.New("presencetest: channel closed")

// Frame is one event delivered to a Channel.
type Frame struct {
	Event   string
	Payload any
}

// Channel records every frame sent to it.
type Channel struct {
	id string

	mu     sync.Mutex
	frames []Frame
	closed bool
}

func NewChannel() *Channel { return &Channel{id: uuid.NewString()} }

func (c *Channel) ID() string { return c.id }

func (c *Channel) Send(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.frames = append(c.frames, Frame{Event: event, Payload: payload})
	return nil
}

// Close makes further sends fail.
func (c *Channel) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Channel) Frames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

// Events returns only the event names, in delivery order.
func (c *Channel) Events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		out = append(out, f.Event)
	}
	return out
}

// Last returns the most recent frame carrying event.
func (c *Channel) Last(event string) (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		if c.frames[i].Event == event {
			return c.frames[i], true
		}
	}
	return Frame{}, false
}

func (c *Channel) Reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}
