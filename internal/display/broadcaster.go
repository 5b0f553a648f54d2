package display

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/Kabilash01/cricket-ai/internal/logger"
)

// ErrNoFrame is returned by Latest before the first frame has been shown
var ErrNoFrame = errors.New("no frame available yet")

// Frame is an encoded JPEG with its publish sequence
type Frame struct {
	Seq       uint64
	JPEG      []byte
	Timestamp time.Time
}

// Subscription receives the most recent frame. Slow readers only ever see the
// newest frame; older frames are overwritten rather than queued.
type Subscription struct {
	ID     string
	frames chan Frame
	done   chan struct{}
	once   sync.Once
}

// Frames delivers published frames
func (s *Subscription) Frames() <-chan Frame {
	return s.frames
}

// Done is closed when the subscription is removed or the broadcaster closes
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) close() {
	s.once.Do(func() { close(s.done) })
}

// offer replaces any undelivered frame with f
func (s *Subscription) offer(f Frame) {
	for {
		select {
		case s.frames <- f:
			return
		default:
		}
		select {
		case <-s.frames:
		default:
		}
	}
}

// Broadcaster is a sink that JPEG-encodes every shown frame and fans it out
// to web clients. Cancel is wired to the stop endpoint.
type Broadcaster struct {
	Canceller
	quality int
	logger  *logger.Logger

	mu          sync.RWMutex
	latest      *Frame
	subscribers map[string]*Subscription
	closed      bool

	seq     atomic.Uint64
	encoded atomic.Uint64
}

// NewBroadcaster creates a broadcaster encoding at the given JPEG quality
func NewBroadcaster(quality int, log *logger.Logger) *Broadcaster {
	if quality < 1 || quality > 100 {
		quality = 80
	}
	return &Broadcaster{
		quality:     quality,
		logger:      log,
		subscribers: make(map[string]*Subscription),
	}
}

// Show encodes img and publishes it to all subscribers
func (b *Broadcaster) Show(img image.Image) error {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(b.quality)); err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	b.encoded.Add(1)

	frame := Frame{Seq: b.seq.Add(1), JPEG: buf.Bytes(), Timestamp: time.Now()}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.latest = &frame
	for _, sub := range b.subscribers {
		sub.offer(frame)
	}
	return nil
}

// Latest returns the most recently published frame
func (b *Broadcaster) Latest() (Frame, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.latest == nil {
		return Frame{}, ErrNoFrame
	}
	return *b.latest, nil
}

// Subscribe registers a new client. The latest frame, if any, is delivered immediately.
func (b *Broadcaster) Subscribe() *Subscription {
	sub := &Subscription{
		ID:     uuid.NewString(),
		frames: make(chan Frame, 1),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.close()
		return sub
	}
	b.subscribers[sub.ID] = sub
	if b.latest != nil {
		sub.offer(*b.latest)
	}
	b.logger.Debug("Stream client subscribed", "subscriber", sub.ID, "clients", len(b.subscribers))
	return sub
}

// Unsubscribe removes a client
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub.ID]; !ok {
		return
	}
	delete(b.subscribers, sub.ID)
	sub.close()
	b.logger.Debug("Stream client unsubscribed", "subscriber", sub.ID, "clients", len(b.subscribers))
}

// Subscribers returns the number of connected clients
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Encoded returns how many frames have been encoded
func (b *Broadcaster) Encoded() uint64 {
	return b.encoded.Load()
}

// Close ends all subscriptions; later frames are discarded
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for id, sub := range b.subscribers {
		sub.close()
		delete(b.subscribers, id)
	}
	return nil
}
