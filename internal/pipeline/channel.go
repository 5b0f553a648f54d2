package pipeline

import (
	"sync/atomic"
	"time"
)

// DefaultQueueSize is the capacity used when a channel is configured with none
const DefaultQueueSize = 4

// BoundedChannel is a fixed-capacity FIFO between one producer and one consumer.
// TryPut never blocks: when the channel is full the new item is dropped and counted.
type BoundedChannel[T any] struct {
	ch       chan T
	accepted atomic.Uint64
	dropped  atomic.Uint64
}

// NewBoundedChannel creates a channel holding at most capacity items.
// Capacities below 1 are raised to 1.
func NewBoundedChannel[T any](capacity int) *BoundedChannel[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &BoundedChannel[T]{ch: make(chan T, capacity)}
}

// TryPut enqueues item if there is room and reports whether it was accepted
func (c *BoundedChannel[T]) TryPut(item T) bool {
	select {
	case c.ch <- item:
		c.accepted.Add(1)
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Get dequeues the oldest item, waiting at most timeout.
// A non-positive timeout polls without waiting.
func (c *BoundedChannel[T]) Get(timeout time.Duration) (T, error) {
	select {
	case item := <-c.ch:
		return item, nil
	default:
	}

	var zero T
	if timeout <= 0 {
		return zero, ErrTimedOut
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case item := <-c.ch:
		return item, nil
	case <-timer.C:
		return zero, ErrTimedOut
	}
}

// Len returns the number of queued items
func (c *BoundedChannel[T]) Len() int {
	return len(c.ch)
}

// Cap returns the fixed capacity
func (c *BoundedChannel[T]) Cap() int {
	return cap(c.ch)
}

// Accepted returns how many items were enqueued
func (c *BoundedChannel[T]) Accepted() uint64 {
	return c.accepted.Load()
}

// Dropped returns how many items were rejected because the channel was full
func (c *BoundedChannel[T]) Dropped() uint64 {
	return c.dropped.Load()
}

// ChannelStats is a point-in-time view of a channel
type ChannelStats struct {
	Len      int    `json:"len"`
	Cap      int    `json:"cap"`
	Accepted uint64 `json:"accepted"`
	Dropped  uint64 `json:"dropped"`
}

// Stats returns the channel's current depth and counters
func (c *BoundedChannel[T]) Stats() ChannelStats {
	return ChannelStats{Len: c.Len(), Cap: c.Cap(), Accepted: c.Accepted(), Dropped: c.Dropped()}
}
