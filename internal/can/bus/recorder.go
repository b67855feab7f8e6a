package bus

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/tturner/canrig/internal/can/codec"
)

// linkTypeCANSocketCAN is LINKTYPE_CAN_SOCKETCAN.
const linkTypeCANSocketCAN = layers.LinkType(227)

const captureSnapLen = 16

// echoer is implemented by buses that deliver their own sends back to
// subscribers.
type echoer interface {
	EchoesSends() bool
}

// Recorder tees every frame on a bus into a pcap file that Wireshark
// decodes as SocketCAN.
type Recorder struct {
	Bus

	mu     sync.Mutex
	file   *os.File
	writer *pcapgo.Writer
	count  int
	echo   bool

	sub  Subscription
	stop context.CancelFunc
	done chan struct{}
	once sync.Once
}

// NewRecorder wraps inner and starts writing to path.
func NewRecorder(inner Bus, path string) (*Recorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture: %w", err)
	}
	writer := pcapgo.NewWriter(file)
	if err := writer.WriteFileHeader(captureSnapLen, linkTypeCANSocketCAN); err != nil {
		file.Close()
		return nil, fmt.Errorf("write capture header: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Recorder{
		Bus:    inner,
		file:   file,
		writer: writer,
		sub:    inner.Subscribe(),
		stop:   cancel,
		done:   make(chan struct{}),
	}
	if e, ok := inner.(echoer); ok {
		r.echo = e.EchoesSends()
	}
	go r.receive(ctx)
	return r, nil
}

func (r *Recorder) receive(ctx context.Context) {
	defer close(r.done)
	for {
		frame, err := r.sub.Next(ctx, time.Second)
		if err == ErrInactive {
			continue
		}
		if err != nil {
			r.drain()
			return
		}
		r.write(frame)
	}
}

// drain writes frames still buffered when recording stops.
func (r *Recorder) drain() {
	for {
		frame, err := r.sub.Next(context.Background(), 0)
		if err != nil {
			return
		}
		r.write(frame)
	}
}

// Send transmits through the wrapped bus and records the frame.
func (r *Recorder) Send(ctx context.Context, frame codec.Frame) error {
	if err := r.Bus.Send(ctx, frame); err != nil {
		return err
	}
	if !r.echo {
		r.write(frame)
	}
	return nil
}

// Frames returns the number of frames written so far.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *Recorder) write(frame codec.Frame) {
	data := encodeCaptureFrame(frame)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return
	}
	err := r.writer.WritePacket(gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(data),
		Length:        len(data),
	}, data)
	if err == nil {
		r.count++
	}
}

// Close stops recording, closes the capture file and the wrapped bus.
func (r *Recorder) Close() error {
	var fileErr error
	r.once.Do(func() {
		r.stop()
		r.sub.Close()
		<-r.done

		r.mu.Lock()
		r.writer = nil
		fileErr = r.file.Close()
		r.mu.Unlock()
	})
	if err := r.Bus.Close(); err != nil {
		return err
	}
	return fileErr
}

// encodeCaptureFrame lays out a frame as LINKTYPE_CAN_SOCKETCAN: id with
// flags (big endian), length, three pad bytes, data.
func encodeCaptureFrame(frame codec.Frame) []byte {
	buf := make([]byte, 8+len(frame.Data))
	id := frame.ID
	if frame.Remote {
		id |= canRTRFlag
	}
	binary.BigEndian.PutUint32(buf[0:4], id)
	buf[4] = byte(len(frame.Data))
	copy(buf[8:], frame.Data)
	return buf
}
