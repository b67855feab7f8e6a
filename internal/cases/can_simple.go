package cases

import (
	"context"
	"fmt"

	"github.com/tturner/canrig/internal/can/codec"
	"github.com/tturner/canrig/internal/can/session"
	"github.com/tturner/canrig/internal/can/sim"
	"github.com/tturner/canrig/internal/can/spec"
	"github.com/tturner/canrig/internal/fixture"
	"github.com/tturner/canrig/internal/harness"
	"github.com/tturner/canrig/internal/logging"
)

// Axis error bits and states checked through the heartbeat.
const (
	errorInvalidState   = sim.AxisErrorInvalidState
	errorEstopRequested = sim.AxisErrorEstopRequested
	stateIdle           = sim.StateIdle
	illegalState        = 42
	nodeIDOffset        = 20
)

// CANSimple checks the basic command set on a controller reachable from a
// host CAN channel.
func CANSimple(opts Options) harness.TestCase {
	return harness.Pair("can_simple", fixture.KindCANChannel, fixture.KindController,
		func(ch *fixture.CANChannel, ctrl *fixture.Controller) bool {
			return ch.Bus() != "" && ch.Bus() == ctrl.Bus()
		},
		func(ctx context.Context, ch *fixture.CANChannel, ctrl *fixture.Controller, logger *logging.Logger) error {
			h := ctrl.Handle()
			if h == nil {
				return fmt.Errorf("%s is not active", ctrl.Name())
			}
			t := &canSimple{
				sess:   ch.Session(),
				node:   ctrl.Identity().NodeID,
				native: h.Inspector,
				logger: logger,
			}
			return t.run(ctx)
		})
}

type canSimple struct {
	sess   *session.Session
	node   uint32
	native fixture.Inspector
	logger *logging.Logger
}

func (t *canSimple) cmd(ctx context.Context, name string, args map[string]float64) error {
	return t.sess.SendCommand(ctx, name, t.node, args)
}

// check compares a property read over the native link. Without one the
// CAN side has already been exercised and there is nothing more to read.
func (t *canSimple) check(key string, expected float64, opts ...harness.ExpectOption) error {
	if t.native == nil {
		return nil
	}
	v, err := t.native.Read(key)
	if err != nil {
		return err
	}
	if err := harness.Expect(v, expected, opts...); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

// step sends a command, fences, then runs the checks.
func (t *canSimple) step(ctx context.Context, name string, args map[string]float64, checks ...func() error) error {
	if err := t.cmd(ctx, name, args); err != nil {
		return err
	}
	if err := t.sess.Fence(ctx, t.node); err != nil {
		return err
	}
	for _, c := range checks {
		if err := c(); err != nil {
			return fmt.Errorf("after %s: %w", name, err)
		}
	}
	return nil
}

func (t *canSimple) heartbeat(ctx context.Context) (codec.Values, error) {
	return t.sess.Node(t.node).Request(ctx, spec.CmdHeartbeat)
}

func (t *canSimple) expectError(ctx context.Context, want uint32) func() error {
	return func() error {
		hb, err := t.heartbeat(ctx)
		if err != nil {
			return err
		}
		got, _ := hb.Get("error")
		if err := harness.Expect(got, float64(want)); err != nil {
			return fmt.Errorf("heartbeat error: %w", err)
		}
		return t.check(sim.PropError, float64(want))
	}
}

func (t *canSimple) expect(key string, expected float64, opts ...harness.ExpectOption) func() error {
	return func() error { return t.check(key, expected, opts...) }
}

func (t *canSimple) run(ctx context.Context) error {
	vbus, err := t.sess.Node(t.node).Get(ctx, spec.CmdGetVbusVoltage, "vbus_voltage")
	if err != nil {
		return err
	}
	if t.native != nil {
		if err := t.check(sim.PropVbusVoltage, vbus, harness.Accuracy(0.01)); err != nil {
			return err
		}
	} else if err := harness.ExpectTrue(vbus > 0, "vbus voltage %v is not positive", vbus); err != nil {
		return err
	}

	if err := t.nodeIDChange(ctx); err != nil {
		return err
	}

	t.logger.Debug("checking error handling on node %d", t.node)
	if err := t.step(ctx, spec.CmdClearErrors, nil, t.expectError(ctx, 0)); err != nil {
		return err
	}
	if err := t.step(ctx, spec.CmdEstop, nil, t.expectError(ctx, errorEstopRequested)); err != nil {
		return err
	}
	err = t.step(ctx, spec.CmdSetRequestedState, map[string]float64{"requested_state": illegalState},
		func() error {
			hb, err := t.heartbeat(ctx)
			if err != nil {
				return err
			}
			state, _ := hb.Get("current_state")
			if err := harness.Expect(state, stateIdle); err != nil {
				return fmt.Errorf("heartbeat state: %w", err)
			}
			return nil
		},
		t.expectError(ctx, errorEstopRequested|errorInvalidState))
	if err != nil {
		return err
	}
	if err := t.step(ctx, spec.CmdClearErrors, nil, t.expectError(ctx, 0)); err != nil {
		return err
	}

	t.logger.Debug("checking modes and setpoints on node %d", t.node)
	steps := []struct {
		name   string
		args   map[string]float64
		checks []func() error
	}{
		// current control, trapezoidal trajectory
		{spec.CmdSetControllerModes, map[string]float64{"control_mode": 1, "input_mode": 5}, []func() error{
			t.expect(sim.PropControlMode, 1),
			t.expect(sim.PropInputMode, 5),
		}},
		// back to position control, passthrough
		{spec.CmdSetControllerModes, map[string]float64{"control_mode": 3, "input_mode": 1}, []func() error{
			t.expect(sim.PropControlMode, 3),
			t.expect(sim.PropInputMode, 1),
		}},
		{spec.CmdSetInputPos, map[string]float64{"input_pos": 1, "vel_ff": 2, "cur_ff": 3}, []func() error{
			t.expect(sim.PropInputPos, 1.0, harness.Range(0.1)),
			t.expect(sim.PropInputVel, 2.0, harness.Range(0.01)),
			t.expect(sim.PropInputCurrent, 3.0, harness.Range(0.001)),
		}},
		{spec.CmdSetInputVel, map[string]float64{"input_vel": -10.0, "cur_ff": 30.1234}, []func() error{
			t.expect(sim.PropInputVel, -10.0, harness.Range(0.01)),
			t.expect(sim.PropInputCurrent, 30.1234, harness.Range(0.01)),
		}},
		{spec.CmdSetInputCurrent, map[string]float64{"input_current": 3.1415}, []func() error{
			t.expect(sim.PropInputCurrent, 3.1415, harness.Range(0.01)),
		}},
		{spec.CmdSetVelocityLimit, map[string]float64{"velocity_limit": 23456.78}, []func() error{
			t.expect(sim.PropVelLimit, 23456.78, harness.Range(0.001)),
		}},
		{spec.CmdSetTrajVelLimit, map[string]float64{"traj_vel_limit": 123.456}, []func() error{
			t.expect(sim.PropTrajVelLimit, 123.456, harness.Range(0.0001)),
		}},
		{spec.CmdSetTrajAccelLimits, map[string]float64{"traj_accel_limit": 98.231, "traj_decel_limit": -12.234}, []func() error{
			t.expect(sim.PropTrajAccelLimit, 98.231, harness.Range(0.0001)),
			t.expect(sim.PropTrajDecelLimit, -12.234, harness.Range(0.0001)),
		}},
		{spec.CmdSetTrajAPerCSS, map[string]float64{"a_per_css": 55.086}, []func() error{
			t.expect(sim.PropInertia, 55.086, harness.Range(0.0001)),
		}},
	}
	for _, s := range steps {
		if err := t.step(ctx, s.name, s.args, s.checks...); err != nil {
			return err
		}
	}
	if t.native == nil {
		t.logger.Verbose("no native link to %d, setpoints were only checked for acceptance", t.node)
	}
	return nil
}

// nodeIDChange moves the axis to another node id, checks it answers
// there, then moves it back.
func (t *canSimple) nodeIDChange(ctx context.Context) error {
	moved := t.node + nodeIDOffset
	if moved > codec.MaxNodeID {
		moved = t.node - nodeIDOffset
	}
	t.logger.Debug("moving node %d to %d", t.node, moved)

	if err := t.cmd(ctx, spec.CmdSetNodeID, map[string]float64{"node_id": float64(moved)}); err != nil {
		return err
	}
	if _, err := t.sess.Node(moved).Request(ctx, spec.CmdGetVbusVoltage); err != nil {
		return fmt.Errorf("node did not answer on id %d: %w", moved, err)
	}
	if err := t.check(sim.PropNodeID, float64(moved)); err != nil {
		return err
	}

	if err := t.sess.SendCommand(ctx, spec.CmdSetNodeID, moved, map[string]float64{"node_id": float64(t.node)}); err != nil {
		return err
	}
	if err := t.sess.Fence(ctx, t.node); err != nil {
		return fmt.Errorf("node did not return to id %d: %w", t.node, err)
	}
	return t.check(sim.PropNodeID, float64(t.node))
}
