package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/tturner/canrig/internal/can/spec"
	canrigErrors "github.com/tturner/canrig/internal/errors"
)

func TestEncodeSetInputPos(t *testing.T) {
	frame, err := Encode(spec.DefaultRegistry(), spec.CmdSetInputPos, 5, map[string]float64{
		"input_pos": 1,
		"vel_ff":    2,
		"cur_ff":    3,
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if frame.ID != 172 {
		t.Errorf("ID = %d, want 172", frame.ID)
	}
	if frame.Remote {
		t.Error("encoded frame should be a data frame")
	}
	want := []byte{0x01, 0x00, 0x00, 0x00, 0x14, 0x00, 0x2C, 0x01}
	if !bytes.Equal(frame.Data, want) {
		t.Errorf("Data = % x, want % x", frame.Data, want)
	}
}

func TestDecodeVbusVoltage(t *testing.T) {
	data := binary.LittleEndian.AppendUint32(nil, math.Float32bits(24.0))
	values, err := Decode(spec.DefaultRegistry(), spec.CmdGetVbusVoltage, data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(values) != 1 || values[0].Name != "vbus_voltage" || values[0].Value != 24.0 {
		t.Errorf("values = %v, want vbus_voltage=24", values)
	}
}

func TestEncodeTruncatesTowardZero(t *testing.T) {
	tests := []struct {
		arg  float64
		want int32
	}{
		{1.239, 123},
		{-1.239, -123},
		{0.009, 0},
		{-0.009, 0},
	}
	for _, tt := range tests {
		frame, err := Encode(spec.DefaultRegistry(), spec.CmdSetInputCurrent, 1, map[string]float64{"input_current": tt.arg})
		if err != nil {
			t.Fatalf("Encode(%v): %v", tt.arg, err)
		}
		got := int32(binary.LittleEndian.Uint32(frame.Data))
		if got != tt.want {
			t.Errorf("Encode(%v) raw = %d, want %d", tt.arg, got, tt.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	reg := spec.DefaultRegistry()
	tests := []struct {
		name string
		args map[string]float64
	}{
		{spec.CmdHeartbeat, map[string]float64{"error": 0x10, "current_state": 8}},
		{spec.CmdSetNodeID, map[string]float64{"node_id": 63}},
		{spec.CmdSetInputPos, map[string]float64{"input_pos": -1200, "vel_ff": -4, "cur_ff": 1.25}},
		{spec.CmdSetInputVel, map[string]float64{"input_vel": 12.5, "cur_ff": -0.75}},
		{spec.CmdSetInputCurrent, map[string]float64{"input_current": -3.5}},
		{spec.CmdGetEncoderCount, map[string]float64{"encoder_shadow_count": -100000, "encoder_count": 4096}},
		{spec.CmdGetEncoderEstimates, map[string]float64{"encoder_pos_estimate": 1.125, "encoder_vel_estimate": -4096}},
		{spec.CmdSetTrajAccelLimits, map[string]float64{"traj_accel_limit": 0.1, "traj_decel_limit": 1e6}},
		{spec.CmdEstop, map[string]float64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, _ := reg.Lookup(tt.name)
			frame, err := Encode(reg, tt.name, 3, tt.args)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if len(frame.Data) != def.Width() {
				t.Fatalf("payload %d bytes, want %d", len(frame.Data), def.Width())
			}
			values, err := Decode(reg, tt.name, frame.Data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			for i, field := range def.Fields {
				if values[i].Name != field.Name {
					t.Errorf("values[%d] = %s, want %s", i, values[i].Name, field.Name)
				}
				want := tt.args[field.Name]
				tolerance := field.Scale/2 + 1e-9
				if field.Kind.Float() {
					tolerance = math.Abs(want) * 1e-6
				}
				if math.Abs(values[i].Value-want) > tolerance {
					t.Errorf("%s = %v, want %v", field.Name, values[i].Value, want)
				}
			}
		})
	}
}

func TestEncodeArgumentMismatch(t *testing.T) {
	reg := spec.DefaultRegistry()
	tests := []struct {
		name string
		args map[string]float64
	}{
		{"subset", map[string]float64{"input_pos": 1, "vel_ff": 2}},
		{"superset", map[string]float64{"input_pos": 1, "vel_ff": 2, "cur_ff": 3, "extra": 4}},
		{"renamed", map[string]float64{"input_pos": 1, "vel_ff": 2, "torque_ff": 3}},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(reg, spec.CmdSetInputPos, 1, tt.args)
			if !errors.Is(err, canrigErrors.ArgumentMismatch) {
				t.Fatalf("err = %v, want ArgumentMismatch", err)
			}
			if !strings.Contains(err.Error(), "input_pos, vel_ff, cur_ff") {
				t.Errorf("error should list expected fields: %v", err)
			}
		})
	}
}

func TestEncodeErrors(t *testing.T) {
	reg := spec.DefaultRegistry()
	tests := []struct {
		name    string
		command string
		node    uint32
		args    map[string]float64
		want    error
	}{
		{"unknown command", "spin_up", 1, nil, canrigErrors.UnknownCommand},
		{"u16 overflow", spec.CmdSetNodeID, 1, map[string]float64{"node_id": 70000}, canrigErrors.EncodingOverflow},
		{"unsigned negative", spec.CmdSetNodeID, 1, map[string]float64{"node_id": -1}, canrigErrors.EncodingOverflow},
		{"i16 scaled overflow", spec.CmdSetInputVel, 1, map[string]float64{"input_vel": 0, "cur_ff": 400}, canrigErrors.EncodingOverflow},
		{"i32 overflow", spec.CmdSetInputPos, 1, map[string]float64{"input_pos": 3e9, "vel_ff": 0, "cur_ff": 0}, canrigErrors.EncodingOverflow},
		{"nan", spec.CmdSetInputCurrent, 1, map[string]float64{"input_current": math.NaN()}, canrigErrors.EncodingOverflow},
		{"f32 overflow", spec.CmdSetVelocityLimit, 1, map[string]float64{"velocity_limit": 1e300}, canrigErrors.EncodingOverflow},
		{"node too large", spec.CmdEstop, 64, map[string]float64{}, canrigErrors.IDOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(reg, tt.command, tt.node, tt.args)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEncodeU8Overflow(t *testing.T) {
	reg, err := spec.NewRegistry(spec.CommandSpec{Name: "byte", ID: 1, Fields: []spec.FieldSpec{
		{Name: "a", Kind: spec.KindU8, Scale: 1},
	}})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if _, err := Encode(reg, "byte", 0, map[string]float64{"a": 256}); !errors.Is(err, canrigErrors.EncodingOverflow) {
		t.Errorf("err = %v, want EncodingOverflow", err)
	}
}

func TestPackIDInvertible(t *testing.T) {
	for node := uint32(0); node <= MaxNodeID; node++ {
		for cmd := uint8(0); cmd <= spec.MaxCommandID; cmd++ {
			id, err := PackID(node, cmd)
			if err != nil {
				t.Fatalf("PackID(%d, %d): %v", node, cmd, err)
			}
			if id > MaxID {
				t.Fatalf("PackID(%d, %d) = 0x%x exceeds 11 bits", node, cmd, id)
			}
			gotNode, gotCmd := UnpackID(id)
			if gotNode != node || gotCmd != cmd {
				t.Fatalf("UnpackID(0x%x) = (%d, %d), want (%d, %d)", id, gotNode, gotCmd, node, cmd)
			}
		}
	}
}

func TestPackIDOutOfRange(t *testing.T) {
	if _, err := PackID(MaxNodeID+1, 0); !errors.Is(err, canrigErrors.IDOutOfRange) {
		t.Errorf("node overflow err = %v", err)
	}
	if _, err := PackID(0, 32); !errors.Is(err, canrigErrors.IDOutOfRange) {
		t.Errorf("command overflow err = %v", err)
	}
}

func TestRemoteFrame(t *testing.T) {
	frame, err := RemoteFrame(spec.DefaultRegistry(), spec.CmdGetVbusVoltage, 2)
	if err != nil {
		t.Fatalf("RemoteFrame: %v", err)
	}
	if !frame.Remote || len(frame.Data) != 0 {
		t.Errorf("frame = %+v, want empty remote frame", frame)
	}
	if frame.ID != 2<<5|0x17 {
		t.Errorf("ID = 0x%x, want 0x%x", frame.ID, 2<<5|0x17)
	}
	if frame.NodeID() != 2 || frame.CommandID() != 0x17 {
		t.Errorf("NodeID/CommandID = %d/%d", frame.NodeID(), frame.CommandID())
	}
	if _, err := RemoteFrame(spec.DefaultRegistry(), "nope", 2); !errors.Is(err, canrigErrors.UnknownCommand) {
		t.Errorf("err = %v, want UnknownCommand", err)
	}
}

func TestDecodeIgnoresTrailingBytes(t *testing.T) {
	data := binary.LittleEndian.AppendUint32(nil, math.Float32bits(12.5))
	data = append(data, 0xFF, 0xFF, 0xFF, 0xFF)
	values, err := Decode(spec.DefaultRegistry(), spec.CmdGetVbusVoltage, data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if v, _ := values.Get("vbus_voltage"); v != 12.5 {
		t.Errorf("vbus_voltage = %v, want 12.5", v)
	}
}

func TestDecodeShortPayload(t *testing.T) {
	_, err := Decode(spec.DefaultRegistry(), spec.CmdHeartbeat, []byte{1, 2, 3})
	if !errors.Is(err, canrigErrors.EncodingOverflow) {
		t.Errorf("err = %v, want EncodingOverflow", err)
	}
	if _, err := Decode(spec.DefaultRegistry(), "bogus", nil); !errors.Is(err, canrigErrors.UnknownCommand) {
		t.Errorf("err = %v, want UnknownCommand", err)
	}
}

func TestDecodeScaledSigned(t *testing.T) {
	data := binary.LittleEndian.AppendUint32(nil, uint32(0xFFFFFF85)) // int32(-123)
	values, err := Decode(spec.DefaultRegistry(), spec.CmdSetInputCurrent, data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, _ := values.Get("input_current")
	if math.Abs(got-(-1.23)) > 1e-9 {
		t.Errorf("input_current = %v, want -1.23", got)
	}
}

func TestValuesMap(t *testing.T) {
	values := Values{{Name: "a", Value: 1}, {Name: "b", Value: 2.5}}
	m := values.Map()
	if len(m) != 2 || m["a"] != 1 || m["b"] != 2.5 {
		t.Errorf("Map() = %v", m)
	}
	if _, ok := values.Get("c"); ok {
		t.Error("Get should report missing field")
	}
	if values.String() != "a=1 b=2.5" {
		t.Errorf("String() = %q", values.String())
	}
}

func TestDescribe(t *testing.T) {
	reg := spec.DefaultRegistry()
	heartbeat := Frame{ID: 3<<5 | 0x01, Data: []byte{0, 0, 0, 0, 8, 0, 0, 0}}
	vbusReq := Frame{ID: 3<<5 | 0x17, Remote: true}
	unknown := Frame{ID: 3<<5 | 0x1F, Data: []byte{0xAB}}
	shared := Frame{ID: 1<<5 | 0x04, Data: []byte{2, 0, 0, 0}}

	tests := []struct {
		frame Frame
		want  string
	}{
		{heartbeat, "node 3 heartbeat error=0 current_state=8"},
		{vbusReq, "node 3 get_vbus_voltage (request)"},
		{unknown, "node 3 cmd 0x1f [ab]"},
		{shared, "node 1 get_encoder_error encoder_error=2"},
	}
	for _, tt := range tests {
		if got := Describe(reg, tt.frame); got != tt.want {
			t.Errorf("Describe = %q, want %q", got, tt.want)
		}
	}
}
