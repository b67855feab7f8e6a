package bus

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket/pcapgo"

	"github.com/tturner/canrig/internal/can/codec"
)

func TestVirtualBusLoopback(t *testing.T) {
	b := NewVirtualBus()
	defer b.Close()

	a := b.Subscribe()
	c := b.Subscribe()
	if b.Listeners() != 2 {
		t.Fatalf("Listeners() = %d, want 2", b.Listeners())
	}

	frame := codec.Frame{ID: 0x017, Data: []byte{1, 2, 3}}
	if err := b.Send(context.Background(), frame); err != nil {
		t.Fatalf("Send: %v", err)
	}
	frame.Data[0] = 9

	for i, sub := range []Subscription{a, c} {
		got, err := sub.Next(context.Background(), time.Second)
		if err != nil {
			t.Fatalf("sub %d Next: %v", i, err)
		}
		if got.ID != 0x017 || !bytes.Equal(got.Data, []byte{1, 2, 3}) {
			t.Errorf("sub %d got %+v", i, got)
		}
	}

	a.Close()
	a.Close()
	c.Close()
	if b.Listeners() != 0 {
		t.Errorf("Listeners() after close = %d, want 0", b.Listeners())
	}
	if len(b.Sent()) != 1 {
		t.Errorf("Sent() = %d frames, want 1", len(b.Sent()))
	}
}

func TestSubscriptionInactivity(t *testing.T) {
	b := NewVirtualBus()
	sub := b.Subscribe()
	defer sub.Close()

	start := time.Now()
	_, err := sub.Next(context.Background(), 50*time.Millisecond)
	if !errors.Is(err, ErrInactive) {
		t.Fatalf("err = %v, want ErrInactive", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("returned after %v, before the timeout", elapsed)
	}

	if _, err := sub.Next(context.Background(), 0); !errors.Is(err, ErrInactive) {
		t.Errorf("zero timeout err = %v, want ErrInactive", err)
	}
}

func TestSubscriptionContextCancel(t *testing.T) {
	b := NewVirtualBus()
	sub := b.Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sub.Next(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestSubscriptionClosedByBus(t *testing.T) {
	b := NewVirtualBus()
	sub := b.Subscribe()
	b.Close()

	if _, err := sub.Next(context.Background(), time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	if err := b.Send(context.Background(), codec.Frame{ID: 1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close err = %v, want ErrClosed", err)
	}
	sub.Close()
}

func TestSubscriptionDropsOldest(t *testing.T) {
	b := NewVirtualBus()
	sub := b.Subscribe()
	defer sub.Close()

	for i := 0; i < DefaultQueueLen+3; i++ {
		b.Inject(codec.Frame{ID: uint32(i)})
	}
	got, err := sub.Next(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got.ID != 3 {
		t.Errorf("first buffered id = %d, want 3", got.ID)
	}
}

func TestVirtualBusRejectsInvalidFrames(t *testing.T) {
	b := NewVirtualBus()
	defer b.Close()
	if err := b.Send(context.Background(), codec.Frame{ID: 0x800}); err == nil {
		t.Error("expected error for 12-bit id")
	}
	if err := b.Send(context.Background(), codec.Frame{ID: 1, Data: make([]byte, 9)}); err == nil {
		t.Error("expected error for 9 byte payload")
	}
}

func TestVirtualBusResponder(t *testing.T) {
	b := NewVirtualBus()
	defer b.Close()
	b.Attach(ResponderFunc(func(f codec.Frame) []codec.Frame {
		if f.Remote {
			return []codec.Frame{{ID: f.ID, Data: []byte{0xAA}}}
		}
		return nil
	}))

	sub := b.Subscribe()
	defer sub.Close()
	if err := b.Send(context.Background(), codec.Frame{ID: 0x17, Remote: true}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	first, _ := sub.Next(context.Background(), time.Second)
	second, _ := sub.Next(context.Background(), time.Second)
	if !first.Remote {
		t.Errorf("first frame should be the request echo: %+v", first)
	}
	if second.Remote || !bytes.Equal(second.Data, []byte{0xAA}) {
		t.Errorf("second frame should be the reply: %+v", second)
	}
}

func TestVirtualNetwork(t *testing.T) {
	setups := 0
	n := NewVirtualNetwork(func(channel string, b *VirtualBus) { setups++ })

	first, err := n.Open("can0", 250000)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	second, _ := n.Open("can0", 250000)
	if first != second {
		t.Error("same channel should share one bus")
	}
	if n.Bus("can1") == n.Bus("can0") {
		t.Error("channels should not share a bus")
	}
	if n.Opens("can0") != 2 || n.Opens("can1") != 0 {
		t.Errorf("Opens = %d/%d, want 2/0", n.Opens("can0"), n.Opens("can1"))
	}
	if setups != 2 {
		t.Errorf("setup ran %d times, want 2", setups)
	}
}

func TestCANFrameWire(t *testing.T) {
	tests := []codec.Frame{
		{ID: 0x0AC, Data: []byte{1, 0, 0, 0, 0x14, 0, 0x2C, 1}},
		{ID: 0x017, Remote: true},
		{ID: 0x7FF, Data: []byte{}},
	}
	for _, frame := range tests {
		buf, err := marshalCANFrame(frame)
		if err != nil {
			t.Fatalf("marshal %+v: %v", frame, err)
		}
		if len(buf) != canFrameSize {
			t.Fatalf("marshal size = %d", len(buf))
		}
		got, ok := unmarshalCANFrame(buf)
		if !ok {
			t.Fatalf("unmarshal %+v failed", frame)
		}
		if got.ID != frame.ID || got.Remote != frame.Remote || !bytes.Equal(got.Data, frame.Data) {
			t.Errorf("round trip = %+v, want %+v", got, frame)
		}
	}

	if _, err := marshalCANFrame(codec.Frame{ID: 0x800}); err == nil {
		t.Error("expected error for extended id")
	}
}

func TestCANFrameWireSkipsExtendedAndErrors(t *testing.T) {
	for _, raw := range []uint32{canEFFFlag | 0x1234, canERRFlag | 0x4} {
		buf := make([]byte, canFrameSize)
		binary.NativeEndian.PutUint32(buf[0:4], raw)
		if _, ok := unmarshalCANFrame(buf); ok {
			t.Errorf("frame 0x%08x should be skipped", raw)
		}
	}
	if _, ok := unmarshalCANFrame(make([]byte, 8)); ok {
		t.Error("short buffer should be rejected")
	}
}

func TestRecorderWritesPcap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.pcap")
	inner := NewVirtualBus()
	rec, err := NewRecorder(inner, path)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	if err := rec.Send(context.Background(), codec.Frame{ID: 0x017, Remote: true}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	inner.Inject(codec.Frame{ID: 0x017, Data: []byte{0, 0, 0xC0, 0x41}})
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if rec.Frames() != 2 {
		t.Fatalf("Frames() = %d, want 2", rec.Frames())
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open capture: %v", err)
	}
	defer f.Close()
	reader, err := pcapgo.NewReader(f)
	if err != nil {
		t.Fatalf("pcap reader: %v", err)
	}
	if reader.LinkType() != linkTypeCANSocketCAN {
		t.Errorf("link type = %v, want %v", reader.LinkType(), linkTypeCANSocketCAN)
	}

	var packets [][]byte
	for {
		data, _, err := reader.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read packet: %v", err)
		}
		packets = append(packets, data)
	}
	if len(packets) != 2 {
		t.Fatalf("capture has %d packets, want 2", len(packets))
	}
	wantRequest := []byte{0x40, 0x00, 0x00, 0x17, 0, 0, 0, 0}
	if !bytes.Equal(packets[0], wantRequest) {
		t.Errorf("request packet = % x, want % x", packets[0], wantRequest)
	}
	wantReply := []byte{0x00, 0x00, 0x00, 0x17, 4, 0, 0, 0, 0, 0, 0xC0, 0x41}
	if !bytes.Equal(packets[1], wantReply) {
		t.Errorf("reply packet = % x, want % x", packets[1], wantReply)
	}
}
