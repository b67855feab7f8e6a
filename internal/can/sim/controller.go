package sim

// Simulated motor controller for --virtual runs and tests.

import (
	"fmt"
	"sync"
	"time"

	"github.com/tturner/canrig/internal/can/codec"
	"github.com/tturner/canrig/internal/can/spec"
)

// Axis error bits reported in the heartbeat.
const (
	AxisErrorInvalidState   = 0x00000001
	AxisErrorEstopRequested = 0x00004000
)

// Axis states.
const (
	StateUndefined  = 0
	StateIdle       = 1
	StateClosedLoop = 8
	maxState        = 13
)

// Property keys readable through Read.
const (
	PropNodeID         = "can_node_id"
	PropError          = "error"
	PropCurrentState   = "current_state"
	PropControlMode    = "control_mode"
	PropInputMode      = "input_mode"
	PropInputPos       = "input_pos"
	PropInputVel       = "input_vel"
	PropInputCurrent   = "input_current"
	PropVelLimit       = "vel_limit"
	PropTrajVelLimit   = "traj_vel_limit"
	PropTrajAccelLimit = "traj_accel_limit"
	PropTrajDecelLimit = "traj_decel_limit"
	PropInertia        = "inertia"
	PropVbusVoltage    = "vbus_voltage"
)

// Controller simulates one controller axis answering on a node id.
type Controller struct {
	mu    sync.Mutex
	reg   *spec.Registry
	now   func() time.Time
	start time.Time

	nodeID     uint32
	props      map[string]float64
	encoderCPS float64
}

// NewController creates an idle axis at nodeID with a 24 V bus.
func NewController(nodeID uint32, reg *spec.Registry) *Controller {
	if reg == nil {
		reg = spec.DefaultRegistry()
	}
	c := &Controller{
		reg:    reg,
		now:    time.Now,
		nodeID: nodeID,
		props: map[string]float64{
			PropNodeID:       float64(nodeID),
			PropError:        0,
			PropCurrentState: StateIdle,
			PropControlMode:  3,
			PropInputMode:    1,
			PropVbusVoltage:  24,
		},
	}
	c.start = c.now()
	return c
}

// SetClock replaces the time source used for encoder motion.
func (c *Controller) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	c.start = now()
}

// SetEncoderVelocity makes the attached encoder turn at cps counts per
// second from now on.
func (c *Controller) SetEncoderVelocity(cps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.encoderCPS = cps
	c.start = c.now()
}

// NodeID returns the node id the axis currently answers on.
func (c *Controller) NodeID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodeID
}

// Read returns a property the way a native (non-CAN) link would.
func (c *Controller) Read(key string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.props[key]
	if !ok {
		return 0, fmt.Errorf("unknown property %q", key)
	}
	return v, nil
}

// Heartbeat builds the cyclic heartbeat frame.
func (c *Controller) Heartbeat() codec.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heartbeatLocked()
}

func (c *Controller) heartbeatLocked() codec.Frame {
	frame, _ := codec.Encode(c.reg, spec.CmdHeartbeat, c.nodeID, map[string]float64{
		"error":         c.props[PropError],
		"current_state": c.props[PropCurrentState],
	})
	return frame
}

// Respond implements bus.Responder.
func (c *Controller) Respond(frame codec.Frame) []codec.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, cmdID := codec.UnpackID(frame.ID)
	if node != c.nodeID {
		return nil
	}
	defs := c.reg.LookupID(cmdID)
	if len(defs) == 0 {
		return nil
	}
	def := defs[0]

	if frame.Remote {
		return c.reply(def)
	}
	values, err := codec.Decode(c.reg, def.Name, frame.Data)
	if err != nil {
		return nil
	}
	c.apply(def.Name, values)
	return nil
}

func (c *Controller) reply(def spec.CommandSpec) []codec.Frame {
	var args map[string]float64
	switch def.Name {
	case spec.CmdHeartbeat:
		return []codec.Frame{c.heartbeatLocked()}
	case spec.CmdGetVbusVoltage:
		args = map[string]float64{"vbus_voltage": c.props[PropVbusVoltage]}
	case spec.CmdGetMotorError:
		args = map[string]float64{"motor_error": 0}
	case spec.CmdGetEncoderError:
		args = map[string]float64{"encoder_error": 0}
	case spec.CmdGetEncoderEstimates:
		counts := c.encoderCountsLocked()
		args = map[string]float64{"encoder_pos_estimate": counts, "encoder_vel_estimate": c.encoderCPS}
	case spec.CmdGetEncoderCount:
		counts := float64(int64(c.encoderCountsLocked()))
		args = map[string]float64{"encoder_shadow_count": counts, "encoder_count": counts}
	case spec.CmdGetIQ:
		args = map[string]float64{"iq_setpoint": c.props[PropInputCurrent], "iq_measured": c.props[PropInputCurrent]}
	case spec.CmdGetSensorlessEstimates:
		args = map[string]float64{"sensorless_pos_estimate": 0, "sensorless_vel_estimate": 0}
	default:
		return nil
	}
	frame, err := codec.Encode(c.reg, def.Name, c.nodeID, args)
	if err != nil {
		return nil
	}
	return []codec.Frame{frame}
}

func (c *Controller) encoderCountsLocked() float64 {
	return c.encoderCPS * c.now().Sub(c.start).Seconds()
}

func (c *Controller) apply(name string, v codec.Values) {
	get := func(field string) float64 {
		f, _ := v.Get(field)
		return f
	}
	switch name {
	case spec.CmdSetNodeID:
		c.nodeID = uint32(get("node_id"))
		c.props[PropNodeID] = get("node_id")
	case spec.CmdClearErrors:
		c.props[PropError] = 0
	case spec.CmdEstop:
		c.props[PropError] = float64(uint32(c.props[PropError]) | AxisErrorEstopRequested)
		c.props[PropCurrentState] = StateIdle
	case spec.CmdSetRequestedState:
		state := get("requested_state")
		if state <= StateUndefined || state >= maxState {
			c.props[PropError] = float64(uint32(c.props[PropError]) | AxisErrorInvalidState)
			c.props[PropCurrentState] = StateIdle
			return
		}
		c.props[PropCurrentState] = state
	case spec.CmdSetControllerModes:
		c.props[PropControlMode] = get("control_mode")
		c.props[PropInputMode] = get("input_mode")
	case spec.CmdSetInputPos:
		c.props[PropInputPos] = get("input_pos")
		c.props[PropInputVel] = get("vel_ff")
		c.props[PropInputCurrent] = get("cur_ff")
	case spec.CmdSetInputVel:
		c.props[PropInputVel] = get("input_vel")
		c.props[PropInputCurrent] = get("cur_ff")
	case spec.CmdSetInputCurrent:
		c.props[PropInputCurrent] = get("input_current")
	case spec.CmdSetVelocityLimit:
		c.props[PropVelLimit] = get("velocity_limit")
	case spec.CmdSetTrajVelLimit:
		c.props[PropTrajVelLimit] = get("traj_vel_limit")
	case spec.CmdSetTrajAccelLimits:
		c.props[PropTrajAccelLimit] = get("traj_accel_limit")
		c.props[PropTrajDecelLimit] = get("traj_decel_limit")
	case spec.CmdSetTrajAPerCSS:
		c.props[PropInertia] = get("a_per_css")
	case spec.CmdReboot:
		c.props[PropError] = 0
		c.props[PropCurrentState] = StateIdle
	}
}
