// Package fixture turns a rig topology into typed, lazily activated
// handles on the rig hardware.
package fixture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tturner/canrig/internal/can/bus"
	"github.com/tturner/canrig/internal/can/codec"
	"github.com/tturner/canrig/internal/can/session"
	canrigErrors "github.com/tturner/canrig/internal/errors"
	"github.com/tturner/canrig/internal/logging"
)

// Kind tags the type of a fixture. Test cases declare the kinds they need.
type Kind string

const (
	KindController Kind = "controller"
	KindEncoder    Kind = "encoder"
	KindCANChannel Kind = "can-channel"
)

// Fixture is a handle on one piece of rig hardware.
type Fixture interface {
	Name() string
	Kind() Kind
	// Activate connects to the hardware. It is idempotent.
	Activate(ctx context.Context) error
	Active() bool
}

// Identity is what the topology says about a controller.
type Identity struct {
	Name   string
	Serial string
	// Bus is the logical bus name, Channel the host interface reaching it.
	Bus     string
	Channel string
	NodeID  uint32
	Axes    int
}

// Inspector reads controller state over a link other than CAN.
type Inspector interface {
	Read(key string) (float64, error)
}

// Handle is the live connection to a discovered controller.
type Handle struct {
	Identity  Identity
	Session   *session.Session
	Heartbeat codec.Values
	// Inspector is nil when no native link is available.
	Inspector Inspector
}

// Discoverer finds a controller and connects to it.
type Discoverer interface {
	Discover(ctx context.Context, id Identity, timeout time.Duration) (*Handle, error)
}

// Controller is a motor controller. Its encoders share its connection.
type Controller struct {
	id         Identity
	discoverer Discoverer
	timeout    time.Duration
	logger     *logging.Logger

	mu       sync.Mutex
	handle   *Handle
	encoders []*Encoder
}

func newController(id Identity, d Discoverer, timeout time.Duration, logger *logging.Logger) *Controller {
	c := &Controller{id: id, discoverer: d, timeout: timeout, logger: logger}
	for axis := 0; axis < id.Axes; axis++ {
		c.encoders = append(c.encoders, &Encoder{parent: c, axis: axis})
	}
	return c
}

func (c *Controller) Name() string { return c.id.Name }
func (c *Controller) Kind() Kind   { return KindController }

// Identity returns the topology data of the controller.
func (c *Controller) Identity() Identity { return c.id }

// Bus returns the logical bus the controller's CAN port is wired to.
func (c *Controller) Bus() string { return c.id.Bus }

// Encoders returns one sub-fixture per axis.
func (c *Controller) Encoders() []*Encoder { return c.encoders }

// Activate discovers the controller on first use.
func (c *Controller) Activate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle != nil {
		return nil
	}
	c.logger.Debug("waiting for %s (%s)", c.id.Name, c.id.Serial)
	handle, err := c.discoverer.Discover(ctx, c.id, c.timeout)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", canrigErrors.FixtureUnavailable, c.id.Name, err)
	}
	c.handle = handle
	return nil
}

func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle != nil
}

// Handle returns the connection, or nil before activation.
func (c *Controller) Handle() *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handle
}

// Axis returns a client for one axis. The controller must be active.
func (c *Controller) Axis(axis int) (session.NodeClient, error) {
	h := c.Handle()
	if h == nil {
		return session.NodeClient{}, fmt.Errorf("%s is not active", c.id.Name)
	}
	return h.Session.Node(c.id.NodeID + uint32(axis)), nil
}

// Encoder is one encoder input of a controller.
type Encoder struct {
	parent *Controller
	axis   int
}

func (e *Encoder) Name() string { return fmt.Sprintf("%s.encoder%d", e.parent.Name(), e.axis) }
func (e *Encoder) Kind() Kind   { return KindEncoder }

// Activate forwards to the parent controller.
func (e *Encoder) Activate(ctx context.Context) error { return e.parent.Activate(ctx) }
func (e *Encoder) Active() bool                       { return e.parent.Active() }

// Axis returns the encoder's axis index.
func (e *Encoder) Axis() int { return e.axis }

// Controller returns the parent controller.
func (e *Encoder) Controller() *Controller { return e.parent }

// Node returns a client addressing the encoder's axis.
func (e *Encoder) Node() (session.NodeClient, error) { return e.parent.Axis(e.axis) }

// Host describes the machine a CAN channel belongs to.
type Host struct {
	Name        string
	ProgramGPIO *int
	Loader      string
}

// CANChannel is one CAN interface of a rig host.
type CANChannel struct {
	host    Host
	iface   string
	bus     string
	links   *Links
	newSess func(bus.Bus) *session.Session

	mu      sync.Mutex
	session *session.Session
}

func (c *CANChannel) Name() string {
	if c.host.Name == "" {
		return c.iface
	}
	return c.host.Name + "." + c.iface
}
func (c *CANChannel) Kind() Kind { return KindCANChannel }

// Interface returns the host interface name, e.g. can0.
func (c *CANChannel) Interface() string { return c.iface }

// Bus returns the logical bus the interface is wired to.
func (c *CANChannel) Bus() string { return c.bus }

// Host returns the machine owning the interface.
func (c *CANChannel) Host() Host { return c.host }

// Activate opens the interface on first use.
func (c *CANChannel) Activate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return nil
	}
	b, err := c.links.Open(c.iface)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", canrigErrors.FixtureUnavailable, c.Name(), err)
	}
	c.session = c.newSess(b)
	return nil
}

func (c *CANChannel) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

// Session returns the channel's session, or nil before activation.
func (c *CANChannel) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}
