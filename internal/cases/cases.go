// Package cases holds the rig test cases canrig can run.
package cases

import (
	"context"
	"time"

	"github.com/tturner/canrig/internal/fixture"
	"github.com/tturner/canrig/internal/harness"
)

// ProgramFunc flashes hexPath onto the encoder simulator wired to host.
type ProgramFunc func(ctx context.Context, host fixture.Host, hexPath string) error

// Options tunes the test cases. Zero values select the defaults.
type Options struct {
	// FirmwareDir holds the encoder simulator hex files.
	FirmwareDir string
	Program     ProgramFunc

	// SettleDelay is the wait after programming for the PLL to lock.
	SettleDelay time.Duration
	// Samples and SampleInterval control the encoder velocity check.
	Samples        int
	SampleInterval time.Duration

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func (o Options) withDefaults() Options {
	if o.FirmwareDir == "" {
		o.FirmwareDir = "firmware"
	}
	if o.SettleDelay == 0 {
		o.SettleDelay = time.Second
	}
	if o.Samples == 0 {
		o.Samples = 100
	}
	if o.SampleInterval == 0 {
		o.SampleInterval = 10 * time.Millisecond
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = sleep
	}
	return o
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// All returns every test case.
func All(opts Options) []harness.TestCase {
	return []harness.TestCase{
		CANSimple(opts),
		EncoderIncremental(opts),
	}
}

// Register adds every test case to r.
func Register(r *harness.Registry, opts Options) error {
	for _, tc := range All(opts) {
		if err := r.Register(tc); err != nil {
			return err
		}
	}
	return nil
}
