//go:build !linux

package bus

import (
	"context"
	"fmt"
	"runtime"

	"github.com/tturner/canrig/internal/can/codec"
)

// SocketCAN is only available on Linux.
type SocketCAN struct{}

// OpenSocketCAN always fails outside Linux.
func OpenSocketCAN(iface string) (*SocketCAN, error) {
	return nil, fmt.Errorf("open CAN interface %s: SocketCAN is not supported on %s", iface, runtime.GOOS)
}

func (s *SocketCAN) Send(ctx context.Context, frame codec.Frame) error { return ErrClosed }
func (s *SocketCAN) Subscribe() Subscription                        { return newHub(1).subscribe() }
func (s *SocketCAN) Close() error                                   { return nil }
