package events

import (
	"context"
	"sync"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// Channel is a FIFO queue of events with any number of producers and a single
// consumer. Publish never blocks; the consumer drains on its own cadence.
type Channel struct {
	mu     sync.Mutex
	queue  []Event
	notify chan struct{}
}

// NewChannel creates an empty channel.
func NewChannel() *Channel {
	return &Channel{
		queue:  make([]Event, 0, constants.EventChannelBuffer),
		notify: make(chan struct{}, 1),
	}
}

// Publish appends an event to the queue.
func (c *Channel) Publish(ev Event) {
	c.mu.Lock()
	c.queue = append(c.queue, ev)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
		// A wakeup is already pending.
	}
}

// Drain removes and returns all queued events in publish order.
// It returns nil when the queue is empty and never blocks.
func (c *Channel) Drain() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil
	}
	out := c.queue
	c.queue = make([]Event, 0, constants.EventChannelBuffer)
	return out
}

// Len returns the number of queued events.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Wait blocks until at least one event may be queued or ctx is done.
// A wakeup does not guarantee a non-empty Drain.
func (c *Channel) Wait(ctx context.Context) error {
	if c.Len() > 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.notify:
		return nil
	}
}

// Publisher is the write side of a Channel, handed to background sessions.
type Publisher interface {
	Publish(ev Event)
}
