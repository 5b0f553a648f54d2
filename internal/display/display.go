// Package display provides the sinks annotated frames are handed to.
package display

import (
	"image"
	"sync/atomic"
)

// Canceller holds the stop request a sink exposes to the render stage
type Canceller struct {
	cancelled atomic.Bool
}

// Cancel requests a stop; further calls have no effect
func (c *Canceller) Cancel() {
	c.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called
func (c *Canceller) Cancelled() bool {
	return c.cancelled.Load()
}

// Null discards frames. It is used for headless runs where only the
// statistics and events matter.
type Null struct {
	Canceller
	shown atomic.Uint64
}

// NewNull creates a discarding sink
func NewNull() *Null {
	return &Null{}
}

// Show counts and discards img
func (n *Null) Show(img image.Image) error {
	n.shown.Add(1)
	return nil
}

// Shown returns how many frames were handed to the sink
func (n *Null) Shown() uint64 {
	return n.shown.Load()
}
