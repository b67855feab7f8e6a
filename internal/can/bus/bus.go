package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tturner/canrig/internal/can/codec"
)

// DefaultQueueLen is the per-subscriber frame buffer. When a subscriber
// falls behind, the oldest buffered frame is dropped.
const DefaultQueueLen = 64

var (
	// ErrInactive is returned by Subscription.Next when no frame arrived
	// within the timeout.
	ErrInactive = errors.New("no frame within inactivity timeout")
	// ErrClosed is returned once the bus or subscription is closed.
	ErrClosed = errors.New("bus closed")
)

// Bus is a broadcast CAN bus.
type Bus interface {
	// Send transmits one frame. Sends are not retried.
	Send(ctx context.Context, frame codec.Frame) error
	// Subscribe starts receiving every inbound frame. The caller must
	// Close the subscription.
	Subscribe() Subscription
	Close() error
}

// Subscription is one listener on a bus.
type Subscription interface {
	// Next blocks for the next frame, returning ErrInactive if none
	// arrives within timeout.
	Next(ctx context.Context, timeout time.Duration) (codec.Frame, error)
	// Close releases the listener. It is safe to call more than once.
	Close()
}

// Opener opens the bus attached to a CAN interface.
type Opener func(channel string, bitrate int) (Bus, error)

// hub fans frames out to listeners. Both bus implementations embed one.
type hub struct {
	mu        sync.Mutex
	listeners map[*listener]struct{}
	queueLen  int
	closed    bool
}

func newHub(queueLen int) *hub {
	if queueLen <= 0 {
		queueLen = DefaultQueueLen
	}
	return &hub{
		listeners: make(map[*listener]struct{}),
		queueLen:  queueLen,
	}
}

func (h *hub) subscribe() *listener {
	l := &listener{
		hub:  h,
		ch:   make(chan codec.Frame, h.queueLen),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(l.done)
		return l
	}
	h.listeners[l] = struct{}{}
	return l
}

func (h *hub) publish(frame codec.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for l := range h.listeners {
		select {
		case l.ch <- frame:
		default:
			// drop oldest
			select {
			case <-l.ch:
			default:
			}
			select {
			case l.ch <- frame:
			default:
			}
		}
	}
}

func (h *hub) remove(l *listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.listeners, l)
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

func (h *hub) close() {
	h.mu.Lock()
	listeners := h.listeners
	h.listeners = make(map[*listener]struct{})
	h.closed = true
	h.mu.Unlock()
	for l := range listeners {
		l.closeDone()
	}
}

type listener struct {
	hub  *hub
	ch   chan codec.Frame
	done chan struct{}
	once sync.Once
}

func (l *listener) Next(ctx context.Context, timeout time.Duration) (codec.Frame, error) {
	select {
	case frame := <-l.ch:
		return frame, nil
	default:
	}
	if timeout <= 0 {
		return codec.Frame{}, ErrInactive
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case frame := <-l.ch:
		return frame, nil
	case <-timer.C:
		return codec.Frame{}, ErrInactive
	case <-ctx.Done():
		return codec.Frame{}, ctx.Err()
	case <-l.done:
		return codec.Frame{}, ErrClosed
	}
}

func (l *listener) Close() {
	l.hub.remove(l)
	l.closeDone()
}

func (l *listener) closeDone() {
	l.once.Do(func() { close(l.done) })
}

func cloneFrame(frame codec.Frame) codec.Frame {
	if frame.Data != nil {
		frame.Data = append([]byte(nil), frame.Data...)
	}
	return frame
}
