package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/tturner/canrig/internal/can/codec"
	"github.com/tturner/canrig/internal/can/spec"
)

// Responder reacts to a frame sent on a VirtualBus. The returned frames
// are broadcast after the sent frame, in order.
type Responder interface {
	Respond(frame codec.Frame) []codec.Frame
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(frame codec.Frame) []codec.Frame

func (f ResponderFunc) Respond(frame codec.Frame) []codec.Frame { return f(frame) }

// VirtualBus is an in-memory bus. Every sent frame is delivered to all
// subscribers, including the sender's own subscriptions.
type VirtualBus struct {
	hub *hub

	mu         sync.Mutex
	responders []Responder
	sent       []codec.Frame
	closed     bool
}

// NewVirtualBus creates an empty in-memory bus.
func NewVirtualBus() *VirtualBus {
	return &VirtualBus{hub: newHub(DefaultQueueLen)}
}

// Attach adds a simulated device that answers sent frames.
func (b *VirtualBus) Attach(r Responder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responders = append(b.responders, r)
}

func (b *VirtualBus) Send(ctx context.Context, frame codec.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if frame.ID > codec.MaxID {
		return fmt.Errorf("send id 0x%x: exceeds 11 bits", frame.ID)
	}
	if len(frame.Data) > spec.MaxPayload {
		return fmt.Errorf("send id 0x%03x: %d byte payload", frame.ID, len(frame.Data))
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	frame = cloneFrame(frame)
	b.sent = append(b.sent, frame)
	responders := append([]Responder(nil), b.responders...)
	b.mu.Unlock()

	b.hub.publish(frame)
	for _, r := range responders {
		for _, reply := range r.Respond(frame) {
			b.hub.publish(cloneFrame(reply))
		}
	}
	return nil
}

// Inject delivers a frame to subscribers as if another node sent it.
func (b *VirtualBus) Inject(frame codec.Frame) {
	b.hub.publish(cloneFrame(frame))
}

func (b *VirtualBus) Subscribe() Subscription {
	return b.hub.subscribe()
}

// Listeners returns the number of open subscriptions.
func (b *VirtualBus) Listeners() int {
	return b.hub.count()
}

// Sent returns a copy of every frame sent so far.
func (b *VirtualBus) Sent() []codec.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]codec.Frame, len(b.sent))
	copy(out, b.sent)
	return out
}

// EchoesSends reports that sent frames come back through subscriptions.
func (b *VirtualBus) EchoesSends() bool { return true }

func (b *VirtualBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.hub.close()
	return nil
}
