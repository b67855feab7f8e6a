package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tturner/canrig/internal/can/spec"
	canrigErrors "github.com/tturner/canrig/internal/errors"
)

// Value is one decoded field.
type Value struct {
	Name  string
	Value float64
}

// Values holds decoded fields in declaration order.
type Values []Value

// Get returns the value of the named field.
func (v Values) Get(name string) (float64, bool) {
	for _, f := range v {
		if f.Name == name {
			return f.Value, true
		}
	}
	return 0, false
}

// Map copies the values into a map keyed by field name.
func (v Values) Map() map[string]float64 {
	out := make(map[string]float64, len(v))
	for _, f := range v {
		out[f.Name] = f.Value
	}
	return out
}

func (v Values) String() string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = f.Name + "=" + strconv.FormatFloat(f.Value, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

// Decode unpacks the payload of command name. Bytes past the command's
// width are ignored.
func Decode(reg *spec.Registry, name string, data []byte) (Values, error) {
	def, ok := reg.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", canrigErrors.UnknownCommand, name)
	}
	return decodeFields(def, data)
}

func decodeFields(def spec.CommandSpec, data []byte) (Values, error) {
	if len(data) < def.Width() {
		return nil, fmt.Errorf("%w: %s payload %d bytes, need %d", canrigErrors.EncodingOverflow, def.Name, len(data), def.Width())
	}
	out := make(Values, 0, len(def.Fields))
	offset := 0
	for _, field := range def.Fields {
		b := data[offset : offset+field.Kind.Size()]
		offset += field.Kind.Size()

		var raw float64
		switch field.Kind {
		case spec.KindU8:
			raw = float64(b[0])
		case spec.KindI8:
			raw = float64(int8(b[0]))
		case spec.KindU16:
			raw = float64(binary.LittleEndian.Uint16(b))
		case spec.KindI16:
			raw = float64(int16(binary.LittleEndian.Uint16(b)))
		case spec.KindU32:
			raw = float64(binary.LittleEndian.Uint32(b))
		case spec.KindI32:
			raw = float64(int32(binary.LittleEndian.Uint32(b)))
		case spec.KindF32:
			raw = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		}
		out = append(out, Value{Name: field.Name, Value: raw * field.Scale})
	}
	return out, nil
}

// Describe renders a one-line summary of a frame, decoding the payload
// when the command id is known. Ids shared by several commands decode as
// the first registered one.
func Describe(reg *spec.Registry, frame Frame) string {
	node, cmd := UnpackID(frame.ID)
	defs := reg.LookupID(cmd)
	name := fmt.Sprintf("cmd 0x%02x", cmd)
	if len(defs) > 0 {
		name = defs[0].Name
	}
	head := fmt.Sprintf("node %d %s", node, name)
	if frame.Remote {
		return head + " (request)"
	}
	if len(defs) == 0 || len(defs[0].Fields) == 0 {
		return fmt.Sprintf("%s [% x]", head, frame.Data)
	}
	values, err := decodeFields(defs[0], frame.Data)
	if err != nil {
		return fmt.Sprintf("%s [% x] (%v)", head, frame.Data, err)
	}
	return head + " " + values.String()
}
