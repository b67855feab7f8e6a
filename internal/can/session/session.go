package session

// Command and request/reply exchanges with motor controllers on one bus.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tturner/canrig/internal/can/bus"
	"github.com/tturner/canrig/internal/can/codec"
	"github.com/tturner/canrig/internal/can/spec"
	canrigErrors "github.com/tturner/canrig/internal/errors"
	"github.com/tturner/canrig/internal/logging"
)

// DefaultRequestTimeout is the absolute deadline of a request.
const DefaultRequestTimeout = time.Second

// Options tunes request timing.
type Options struct {
	// RequestTimeout is used by NodeClient.Request and Fence.
	RequestTimeout time.Duration
	// InactivityTimeout aborts a request when no frame of any kind
	// arrives for this long. Zero means the request timeout.
	InactivityTimeout time.Duration
}

// Session talks to controllers over an explicit bus.
type Session struct {
	bus    bus.Bus
	reg    *spec.Registry
	logger *logging.Logger
	opts   Options
}

// New creates a session. A nil registry selects the default command table
// and a nil logger discards output.
func New(b bus.Bus, reg *spec.Registry, logger *logging.Logger, opts Options) *Session {
	if reg == nil {
		reg = spec.DefaultRegistry()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	return &Session{bus: b, reg: reg, logger: logger, opts: opts}
}

// Bus returns the underlying bus.
func (s *Session) Bus() bus.Bus { return s.bus }

// Registry returns the command table used for encoding.
func (s *Session) Registry() *spec.Registry { return s.reg }

// SendCommand encodes and transmits a command without waiting for any
// acknowledgment. Send failures are returned as-is.
func (s *Session) SendCommand(ctx context.Context, name string, nodeID uint32, args map[string]float64) error {
	frame, err := codec.Encode(s.reg, name, nodeID, args)
	if err != nil {
		return err
	}
	s.logger.LogFrame("tx", frame.ID, false, frame.Data)
	if err := s.bus.Send(ctx, frame); err != nil {
		return fmt.Errorf("send %s to node %d: %w", name, nodeID, err)
	}
	return nil
}

// Request sends a remote frame for command name and waits for the data
// frame carrying the same arbitration id. It fails with Timeout when the
// bus stays silent for the inactivity timeout or when timeout elapses,
// whichever comes first.
func (s *Session) Request(ctx context.Context, name string, nodeID uint32, timeout time.Duration) (codec.Values, error) {
	req, err := codec.RemoteFrame(s.reg, name, nodeID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	sub := s.bus.Subscribe()
	defer sub.Close()

	s.logger.LogFrame("tx", req.ID, true, nil)
	if err := s.bus.Send(ctx, req); err != nil {
		return nil, fmt.Errorf("request %s from node %d: %w", name, nodeID, err)
	}
	return s.await(ctx, sub, name, req.ID, start.Add(timeout), s.inactivity(timeout))
}

// Await waits for the next data frame of command name from nodeID without
// requesting it, e.g. a cyclic heartbeat.
func (s *Session) Await(ctx context.Context, name string, nodeID uint32, timeout time.Duration) (codec.Values, error) {
	def, ok := s.reg.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", canrigErrors.UnknownCommand, name)
	}
	id, err := codec.PackID(nodeID, def.ID)
	if err != nil {
		return nil, err
	}
	sub := s.bus.Subscribe()
	defer sub.Close()
	return s.await(ctx, sub, name, id, time.Now().Add(timeout), s.inactivity(timeout))
}

func (s *Session) inactivity(timeout time.Duration) time.Duration {
	if s.opts.InactivityTimeout > 0 {
		return s.opts.InactivityTimeout
	}
	return timeout
}

func (s *Session) await(ctx context.Context, sub bus.Subscription, name string, id uint32, deadline time.Time, inactivity time.Duration) (codec.Values, error) {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: no %s reply on id 0x%03x before deadline", canrigErrors.Timeout, name, id)
		}
		wait := min(inactivity, remaining)

		frame, err := sub.Next(ctx, wait)
		switch {
		case errors.Is(err, bus.ErrInactive):
			if wait < remaining {
				return nil, fmt.Errorf("%w: bus silent for %v waiting for %s", canrigErrors.Timeout, inactivity, name)
			}
			return nil, fmt.Errorf("%w: no %s reply on id 0x%03x before deadline", canrigErrors.Timeout, name, id)
		case errors.Is(err, context.DeadlineExceeded):
			return nil, fmt.Errorf("%w: %s: %w", canrigErrors.Timeout, name, err)
		case err != nil:
			return nil, fmt.Errorf("await %s: %w", name, err)
		}

		if frame.ID != id || frame.Remote {
			continue
		}
		s.logger.LogFrame("rx", frame.ID, false, frame.Data)
		return codec.Decode(s.reg, name, frame.Data)
	}
}

// Fence requests the bus voltage so that every command sent to nodeID
// before it has been processed.
func (s *Session) Fence(ctx context.Context, nodeID uint32) error {
	_, err := s.Request(ctx, spec.CmdGetVbusVoltage, nodeID, s.opts.RequestTimeout)
	return err
}

// Node binds the session to one node id.
func (s *Session) Node(nodeID uint32) NodeClient {
	return NodeClient{session: s, id: nodeID}
}

// NodeClient addresses one controller.
type NodeClient struct {
	session *Session
	id      uint32
}

func (n NodeClient) ID() uint32 { return n.id }

func (n NodeClient) Send(ctx context.Context, name string, args map[string]float64) error {
	return n.session.SendCommand(ctx, name, n.id, args)
}

func (n NodeClient) Request(ctx context.Context, name string) (codec.Values, error) {
	return n.session.Request(ctx, name, n.id, n.session.opts.RequestTimeout)
}

// Get requests command name and returns one of its fields.
func (n NodeClient) Get(ctx context.Context, name, field string) (float64, error) {
	values, err := n.Request(ctx, name)
	if err != nil {
		return 0, err
	}
	v, ok := values.Get(field)
	if !ok {
		return 0, fmt.Errorf("%s has no field %s", name, field)
	}
	return v, nil
}

func (n NodeClient) Fence(ctx context.Context) error {
	return n.session.Fence(ctx, n.id)
}

// Heartbeat waits for the node's next heartbeat.
func (n NodeClient) Heartbeat(ctx context.Context, timeout time.Duration) (codec.Values, error) {
	return n.session.Await(ctx, spec.CmdHeartbeat, n.id, timeout)
}
