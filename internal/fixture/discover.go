package fixture

import (
	"context"
	"fmt"
	"time"

	"github.com/tturner/canrig/internal/can/session"
	"github.com/tturner/canrig/internal/can/spec"
	"github.com/tturner/canrig/internal/logging"
)

// HeartbeatDiscoverer finds a controller by its heartbeat on the CAN
// interface that reaches the controller's bus.
type HeartbeatDiscoverer struct {
	Links    *Links
	Registry *spec.Registry
	Logger   *logging.Logger
	Options  session.Options
	// Inspect, if set, supplies a native link for a discovered controller.
	Inspect func(Identity) Inspector
}

// Discover waits up to timeout for a heartbeat from the controller's
// axis 0 node id. A remote heartbeat request is sent first so that
// controllers with cyclic heartbeats disabled still answer.
func (d *HeartbeatDiscoverer) Discover(ctx context.Context, id Identity, timeout time.Duration) (*Handle, error) {
	if id.Bus == "" {
		return nil, fmt.Errorf("controller has no CAN bus in the topology")
	}
	if id.Channel == "" {
		return nil, fmt.Errorf("no host interface is wired to bus %s", id.Bus)
	}
	b, err := d.Links.Open(id.Channel)
	if err != nil {
		return nil, err
	}

	// A controller that is still booting keeps the bus silent, so only
	// the discovery timeout bounds the wait.
	wait := d.Options
	wait.InactivityTimeout = timeout
	hb, err := session.New(b, d.Registry, d.Logger, wait).Request(ctx, spec.CmdHeartbeat, id.NodeID, timeout)
	if err != nil {
		return nil, fmt.Errorf("no heartbeat from node %d on %s: %w", id.NodeID, id.Channel, err)
	}

	s := session.New(b, d.Registry, d.Logger, d.Options)
	h := &Handle{Identity: id, Session: s, Heartbeat: hb}
	if d.Inspect != nil {
		h.Inspector = d.Inspect(id)
	}
	return h, nil
}
