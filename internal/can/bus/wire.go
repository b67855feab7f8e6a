package bus

import (
	"encoding/binary"
	"fmt"

	"github.com/tturner/canrig/internal/can/codec"
	"github.com/tturner/canrig/internal/can/spec"
)

// Linux struct can_frame layout and can_id flag bits.
const (
	canFrameSize = 16
	canEFFFlag   = 0x80000000
	canRTRFlag   = 0x40000000
	canERRFlag   = 0x20000000
	canSFFMask   = 0x000007FF
)

// marshalCANFrame encodes frame as a kernel can_frame in host byte order.
func marshalCANFrame(frame codec.Frame) ([]byte, error) {
	if frame.ID > canSFFMask {
		return nil, fmt.Errorf("id 0x%x exceeds 11 bits", frame.ID)
	}
	if len(frame.Data) > spec.MaxPayload {
		return nil, fmt.Errorf("payload %d bytes exceeds %d", len(frame.Data), spec.MaxPayload)
	}
	buf := make([]byte, canFrameSize)
	id := frame.ID
	if frame.Remote {
		id |= canRTRFlag
	}
	binary.NativeEndian.PutUint32(buf[0:4], id)
	buf[4] = byte(len(frame.Data))
	copy(buf[8:], frame.Data)
	return buf, nil
}

// unmarshalCANFrame decodes a kernel can_frame. Extended-id and error
// frames are reported as not ok.
func unmarshalCANFrame(buf []byte) (codec.Frame, bool) {
	if len(buf) < canFrameSize {
		return codec.Frame{}, false
	}
	raw := binary.NativeEndian.Uint32(buf[0:4])
	if raw&(canEFFFlag|canERRFlag) != 0 {
		return codec.Frame{}, false
	}
	dlc := int(buf[4])
	if dlc > spec.MaxPayload {
		dlc = spec.MaxPayload
	}
	frame := codec.Frame{
		ID:     raw & canSFFMask,
		Remote: raw&canRTRFlag != 0,
	}
	if !frame.Remote {
		frame.Data = append([]byte(nil), buf[8:8+dlc]...)
	}
	return frame, true
}
