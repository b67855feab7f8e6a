//go:build linux

package bus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tturner/canrig/internal/can/codec"
)

const readPoll = 100 * time.Millisecond

// SocketCAN is a bus on a Linux CAN interface using a raw AF_CAN socket.
// The bitrate is a property of the interface (ip link) and is not set here.
type SocketCAN struct {
	iface string
	fd    int
	hub   *hub

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
	readErr error
	wg      sync.WaitGroup
}

// OpenSocketCAN binds a raw CAN socket to iface and starts its reader.
func OpenSocketCAN(iface string) (*SocketCAN, error) {
	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, fmt.Errorf("lookup CAN interface %s: %w", iface, err)
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("open CAN socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: ifi.Index}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind CAN socket to %s: %w", iface, err)
	}
	// Bounded reads let the reader notice Close.
	tv := unix.NsecToTimeval(int64(readPoll))
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set CAN read timeout: %w", err)
	}

	s := &SocketCAN{iface: iface, fd: fd, hub: newHub(DefaultQueueLen)}
	s.wg.Add(1)
	go s.readLoop()
	return s, nil
}

func (s *SocketCAN) readLoop() {
	defer s.wg.Done()
	s.pump(func(buf []byte) (int, error) { return unix.Read(s.fd, buf) })
}

// pump publishes frames until the socket is closed or read fails. A failed
// read closes the hub so waiting requests see ErrClosed instead of timing out.
func (s *SocketCAN) pump(read func([]byte) (int, error)) {
	buf := make([]byte, canFrameSize)
	for {
		n, err := read(buf)
		if s.isClosed() {
			return
		}
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			s.closeMu.Lock()
			s.readErr = fmt.Errorf("read from %s: %w", s.iface, err)
			s.closeMu.Unlock()
			s.hub.close()
			return
		}
		frame, ok := unmarshalCANFrame(buf[:n])
		if !ok {
			continue
		}
		s.hub.publish(frame)
	}
}

// Err reports why the reader stopped, or nil while it is running.
func (s *SocketCAN) Err() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.readErr
}

func (s *SocketCAN) isClosed() bool {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	return s.closed
}

func (s *SocketCAN) Send(ctx context.Context, frame codec.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrClosed
	}
	if err := s.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}
	buf, err := marshalCANFrame(frame)
	if err != nil {
		return fmt.Errorf("send on %s: %w", s.iface, err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := unix.Write(s.fd, buf); err != nil {
		return fmt.Errorf("send on %s: %w", s.iface, err)
	}
	return nil
}

func (s *SocketCAN) Subscribe() Subscription {
	return s.hub.subscribe()
}

func (s *SocketCAN) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	s.wg.Wait()
	s.hub.close()
	return unix.Close(s.fd)
}

func (s *SocketCAN) String() string {
	return "socketcan:" + s.iface
}
