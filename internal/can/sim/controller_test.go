package sim

import (
	"context"
	"testing"
	"time"

	"github.com/tturner/canrig/internal/can/bus"
	"github.com/tturner/canrig/internal/can/session"
	"github.com/tturner/canrig/internal/can/spec"
)

func newNode(t *testing.T, nodeID uint32) (*Controller, *session.Session) {
	t.Helper()
	b := bus.NewVirtualBus()
	t.Cleanup(func() { b.Close() })
	ctrl := NewController(nodeID, nil)
	b.Attach(ctrl)
	return ctrl, session.New(b, nil, nil, session.Options{RequestTimeout: 200 * time.Millisecond})
}

func TestControllerAnswersVbus(t *testing.T) {
	_, s := newNode(t, 0)
	v, err := s.Node(0).Get(context.Background(), spec.CmdGetVbusVoltage, "vbus_voltage")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != 24 {
		t.Errorf("vbus_voltage = %v, want 24", v)
	}
}

func TestControllerIgnoresOtherNodes(t *testing.T) {
	_, s := newNode(t, 4)
	if _, err := s.Request(context.Background(), spec.CmdGetVbusVoltage, 5, 50*time.Millisecond); err == nil {
		t.Fatal("node 5 should not answer")
	}
}

func TestControllerNodeIDChange(t *testing.T) {
	ctrl, s := newNode(t, 0)
	ctx := context.Background()
	if err := s.SendCommand(ctx, spec.CmdSetNodeID, 0, map[string]float64{"node_id": 20}); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if ctrl.NodeID() != 20 {
		t.Fatalf("NodeID() = %d, want 20", ctrl.NodeID())
	}
	if err := s.Fence(ctx, 20); err != nil {
		t.Errorf("fence on new id: %v", err)
	}
	if v, _ := ctrl.Read(PropNodeID); v != 20 {
		t.Errorf("can_node_id = %v", v)
	}
}

func TestControllerErrors(t *testing.T) {
	ctrl, s := newNode(t, 1)
	ctx := context.Background()
	node := s.Node(1)

	steps := []struct {
		cmd   string
		args  map[string]float64
		error float64
		state float64
	}{
		{spec.CmdEstop, nil, AxisErrorEstopRequested, StateIdle},
		{spec.CmdSetRequestedState, map[string]float64{"requested_state": 42}, AxisErrorEstopRequested | AxisErrorInvalidState, StateIdle},
		{spec.CmdClearErrors, nil, 0, StateIdle},
		{spec.CmdSetRequestedState, map[string]float64{"requested_state": StateClosedLoop}, 0, StateClosedLoop},
	}
	for _, step := range steps {
		if err := node.Send(ctx, step.cmd, step.args); err != nil {
			t.Fatalf("%s: %v", step.cmd, err)
		}
		hb, err := node.Request(ctx, spec.CmdHeartbeat)
		if err != nil {
			t.Fatalf("heartbeat after %s: %v", step.cmd, err)
		}
		if v, _ := hb.Get("error"); v != step.error {
			t.Errorf("after %s error = 0x%x, want 0x%x", step.cmd, int(v), int(step.error))
		}
		if v, _ := hb.Get("current_state"); v != step.state {
			t.Errorf("after %s state = %v, want %v", step.cmd, v, step.state)
		}
	}
	if v, _ := ctrl.Read(PropError); v != 0 {
		t.Errorf("error property = %v", v)
	}
}

func TestControllerSetpoints(t *testing.T) {
	ctrl, s := newNode(t, 0)
	node := s.Node(0)
	ctx := context.Background()

	if err := node.Send(ctx, spec.CmdSetInputPos, map[string]float64{"input_pos": 1, "vel_ff": 2, "cur_ff": 3}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	tests := map[string]float64{PropInputPos: 1, PropInputVel: 2, PropInputCurrent: 3}
	for key, want := range tests {
		got, err := ctrl.Read(key)
		if err != nil {
			t.Fatalf("Read(%s): %v", key, err)
		}
		if got < want-0.01 || got > want+0.01 {
			t.Errorf("%s = %v, want %v", key, got, want)
		}
	}
	if _, err := ctrl.Read("bogus"); err == nil {
		t.Error("expected error for unknown property")
	}
}

func TestControllerEncoderMotion(t *testing.T) {
	ctrl, s := newNode(t, 0)
	now := time.Unix(1000, 0)
	ctrl.SetClock(func() time.Time { return now })
	ctrl.SetEncoderVelocity(-4096)
	now = now.Add(500 * time.Millisecond)

	values, err := s.Node(0).Request(context.Background(), spec.CmdGetEncoderCount)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if v, _ := values.Get("encoder_shadow_count"); v != -2048 {
		t.Errorf("shadow count = %v, want -2048", v)
	}
	est, err := s.Node(0).Request(context.Background(), spec.CmdGetEncoderEstimates)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if v, _ := est.Get("encoder_vel_estimate"); v != -4096 {
		t.Errorf("vel estimate = %v, want -4096", v)
	}
}
