package cases

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/tturner/canrig/internal/can/session"
	"github.com/tturner/canrig/internal/can/spec"
	"github.com/tturner/canrig/internal/fixture"
	"github.com/tturner/canrig/internal/harness"
	"github.com/tturner/canrig/internal/logging"
)

// SimulatedCPS is the velocity in counts per second generated by the
// encoder simulator firmware (8192 CPR at -0.5 turns per second).
const SimulatedCPS = 8192 * -0.5

// EncoderHexFile returns the simulator firmware image for an encoder input.
func EncoderHexFile(axis int) string {
	return fmt.Sprintf("enc%d_sim_%dcps.ino.hex", axis, int(SimulatedCPS))
}

// EncoderIncremental programs the encoder simulator and checks that the
// controller's count and velocity estimate move at the simulated rate.
func EncoderIncremental(opts Options) harness.TestCase {
	opts = opts.withDefaults()
	return harness.Pair("encoder_incremental", fixture.KindEncoder, fixture.KindCANChannel,
		func(enc *fixture.Encoder, ch *fixture.CANChannel) bool {
			return ch.Host().ProgramGPIO != nil && ch.Bus() != "" && ch.Bus() == enc.Controller().Bus()
		},
		func(ctx context.Context, enc *fixture.Encoder, ch *fixture.CANChannel, logger *logging.Logger) error {
			if opts.Program == nil {
				return fmt.Errorf("no firmware programmer configured")
			}
			hex := filepath.Join(opts.FirmwareDir, EncoderHexFile(enc.Axis()))
			logger.Debug("programming %s through %s", hex, ch.Name())
			if err := opts.Program(ctx, ch.Host(), hex); err != nil {
				return err
			}
			if err := opts.Sleep(ctx, opts.SettleDelay); err != nil {
				return err
			}

			node, err := enc.Node()
			if err != nil {
				return err
			}
			logger.Debug("check if %s moves at %v counts/s", enc.Name(), SimulatedCPS)
			return runDeltaTest(ctx, node, opts)
		})
}

type encoderSample struct {
	at          time.Time
	shadowCount float64
	posEstimate float64
	velEstimate float64
}

func sampleEncoder(ctx context.Context, node session.NodeClient, now func() time.Time) (encoderSample, error) {
	s := encoderSample{at: now()}
	count, err := node.Request(ctx, spec.CmdGetEncoderCount)
	if err != nil {
		return s, err
	}
	est, err := node.Request(ctx, spec.CmdGetEncoderEstimates)
	if err != nil {
		return s, err
	}
	s.shadowCount, _ = count.Get("encoder_shadow_count")
	s.posEstimate, _ = est.Get("encoder_pos_estimate")
	s.velEstimate, _ = est.Get("encoder_vel_estimate")
	return s, nil
}

func runDeltaTest(ctx context.Context, node session.NodeClient, opts Options) error {
	var last encoderSample
	for i := 0; i < opts.Samples; i++ {
		cur, err := sampleEncoder(ctx, node, opts.Now)
		if err != nil {
			return err
		}
		if i > 0 {
			dt := cur.at.Sub(last.at).Seconds()
			if err := harness.ExpectTrue(dt > 0, "clock did not advance between samples"); err != nil {
				return err
			}
			if err := harness.Expect((cur.shadowCount-last.shadowCount)/dt, SimulatedCPS, harness.Accuracy(0.05)); err != nil {
				return fmt.Errorf("shadow count velocity: %w", err)
			}
			if err := harness.Expect((cur.posEstimate-last.posEstimate)/dt, SimulatedCPS, harness.Accuracy(0.3)); err != nil {
				return fmt.Errorf("position estimate velocity: %w", err)
			}
			if err := harness.Expect(cur.velEstimate, SimulatedCPS, harness.Accuracy(0.05)); err != nil {
				return fmt.Errorf("velocity estimate: %w", err)
			}
		}
		last = cur
		if err := opts.Sleep(ctx, opts.SampleInterval); err != nil {
			return err
		}
	}
	return nil
}
