package codec

// Table-driven encoding of motor controller commands into CAN frames.

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/tturner/canrig/internal/can/spec"
	canrigErrors "github.com/tturner/canrig/internal/errors"
)

const (
	// NodeShift is the bit offset of the node id inside an arbitration id.
	NodeShift = 5
	// MaxID is the largest standard (11-bit) arbitration id.
	MaxID = 0x7FF
	// MaxNodeID is the largest node id that still packs into MaxID.
	MaxNodeID = MaxID >> NodeShift
)

// Frame is one CAN frame as seen by the codec.
type Frame struct {
	ID     uint32
	Data   []byte
	Remote bool
}

// NodeID returns the node part of the arbitration id.
func (f Frame) NodeID() uint32 {
	node, _ := UnpackID(f.ID)
	return node
}

// CommandID returns the command part of the arbitration id.
func (f Frame) CommandID() uint8 {
	_, cmd := UnpackID(f.ID)
	return cmd
}

// PackID builds the arbitration id node_id<<5 | command_id.
func PackID(nodeID uint32, cmdID uint8) (uint32, error) {
	if cmdID > spec.MaxCommandID {
		return 0, fmt.Errorf("%w: command id 0x%02x exceeds 5 bits", canrigErrors.IDOutOfRange, cmdID)
	}
	if nodeID > MaxNodeID {
		return 0, fmt.Errorf("%w: node id %d exceeds %d", canrigErrors.IDOutOfRange, nodeID, MaxNodeID)
	}
	return nodeID<<NodeShift | uint32(cmdID), nil
}

// UnpackID splits an arbitration id into node and command ids.
func UnpackID(id uint32) (nodeID uint32, cmdID uint8) {
	return id >> NodeShift, uint8(id & spec.MaxCommandID)
}

// Encode builds the data frame for command name addressed to nodeID.
// The keys of args must match the command's field names exactly.
func Encode(reg *spec.Registry, name string, nodeID uint32, args map[string]float64) (Frame, error) {
	def, ok := reg.Lookup(name)
	if !ok {
		return Frame{}, fmt.Errorf("%w: %q", canrigErrors.UnknownCommand, name)
	}
	if err := checkArgs(def, args); err != nil {
		return Frame{}, err
	}
	if def.Width() > spec.MaxPayload {
		return Frame{}, fmt.Errorf("%w: %s needs %d bytes", canrigErrors.EncodingOverflow, name, def.Width())
	}

	data := make([]byte, 0, def.Width())
	for _, field := range def.Fields {
		var err error
		data, err = appendField(data, field, args[field.Name])
		if err != nil {
			return Frame{}, fmt.Errorf("%s: %w", name, err)
		}
	}

	id, err := PackID(nodeID, def.ID)
	if err != nil {
		return Frame{}, err
	}
	return Frame{ID: id, Data: data}, nil
}

// RemoteFrame builds the zero-length request frame that solicits command
// name from nodeID. The reply carries the same arbitration id.
func RemoteFrame(reg *spec.Registry, name string, nodeID uint32) (Frame, error) {
	def, ok := reg.Lookup(name)
	if !ok {
		return Frame{}, fmt.Errorf("%w: %q", canrigErrors.UnknownCommand, name)
	}
	id, err := PackID(nodeID, def.ID)
	if err != nil {
		return Frame{}, err
	}
	return Frame{ID: id, Remote: true}, nil
}

func checkArgs(def spec.CommandSpec, args map[string]float64) error {
	match := len(args) == len(def.Fields)
	if match {
		for _, f := range def.Fields {
			if _, ok := args[f.Name]; !ok {
				match = false
				break
			}
		}
	}
	if match {
		return nil
	}
	got := make([]string, 0, len(args))
	for k := range args {
		got = append(got, k)
	}
	sort.Strings(got)
	return fmt.Errorf("%w: %s expects [%s], got [%s]", canrigErrors.ArgumentMismatch,
		def.Name, strings.Join(def.FieldNames(), ", "), strings.Join(got, ", "))
}

func appendField(buf []byte, field spec.FieldSpec, arg float64) ([]byte, error) {
	v := arg / field.Scale
	if field.Kind.Float() {
		if !math.IsNaN(v) && !math.IsInf(v, 0) && math.Abs(v) > math.MaxFloat32 {
			return nil, fmt.Errorf("%w: field %s value %g does not fit f32", canrigErrors.EncodingOverflow, field.Name, arg)
		}
		return binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(v))), nil
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%w: field %s value %g is not finite", canrigErrors.EncodingOverflow, field.Name, arg)
	}
	raw := math.Trunc(v)
	lo, hi := intRange(field.Kind)
	if raw < lo || raw > hi {
		return nil, fmt.Errorf("%w: field %s raw value %g outside %s range", canrigErrors.EncodingOverflow, field.Name, raw, field.Kind)
	}

	switch field.Kind {
	case spec.KindU8:
		return append(buf, uint8(raw)), nil
	case spec.KindI8:
		return append(buf, uint8(int8(raw))), nil
	case spec.KindU16:
		return binary.LittleEndian.AppendUint16(buf, uint16(raw)), nil
	case spec.KindI16:
		return binary.LittleEndian.AppendUint16(buf, uint16(int16(raw))), nil
	case spec.KindU32:
		return binary.LittleEndian.AppendUint32(buf, uint32(raw)), nil
	case spec.KindI32:
		return binary.LittleEndian.AppendUint32(buf, uint32(int32(raw))), nil
	}
	return nil, fmt.Errorf("field %s: unsupported kind %s", field.Name, field.Kind)
}

func intRange(kind spec.FieldKind) (float64, float64) {
	switch kind {
	case spec.KindU8:
		return 0, math.MaxUint8
	case spec.KindI8:
		return math.MinInt8, math.MaxInt8
	case spec.KindU16:
		return 0, math.MaxUint16
	case spec.KindI16:
		return math.MinInt16, math.MaxInt16
	case spec.KindU32:
		return 0, math.MaxUint32
	case spec.KindI32:
		return math.MinInt32, math.MaxInt32
	}
	return 0, 0
}
