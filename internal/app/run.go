package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/tturner/canrig/internal/can/bus"
	"github.com/tturner/canrig/internal/can/session"
	"github.com/tturner/canrig/internal/can/spec"
	"github.com/tturner/canrig/internal/cases"
	"github.com/tturner/canrig/internal/config"
	canrigErrors "github.com/tturner/canrig/internal/errors"
	"github.com/tturner/canrig/internal/firmware"
	"github.com/tturner/canrig/internal/fixture"
	"github.com/tturner/canrig/internal/harness"
	"github.com/tturner/canrig/internal/logging"
	"github.com/tturner/canrig/internal/report"
	"github.com/tturner/canrig/internal/rig"
	"github.com/tturner/canrig/internal/transport"
)

type RunOptions struct {
	TopologyPath string
	// Cases to run, in order. Empty runs every registered case.
	Cases  []string
	Ignore []string

	ConfigPath     string
	ConfigExplicit bool

	Virtual     bool
	CapturePath string
	Strict      bool
	LogLevel    string
	// ReportPath, if set, receives a JSON summary of the run.
	ReportPath string
	Version    string

	// Out receives log output instead of the console when set.
	Out io.Writer
}

// RunTests executes test cases against the rig described by the topology.
func RunTests(ctx context.Context, opts RunOptions) error {
	cfg, err := config.Load(opts.ConfigPath, opts.ConfigExplicit)
	if err != nil {
		return err
	}
	if opts.Virtual {
		cfg.Bus.Virtual = true
	}
	if opts.CapturePath != "" {
		cfg.Capture.Path = opts.CapturePath
	}
	if opts.Strict {
		cfg.Topology.Strict = true
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}

	logger, err := newLogger(cfg.Logging, opts.Out)
	if err != nil {
		return err
	}
	defer logger.Close()
	runID := newRunID()
	logger.SetRunID(runID)

	if opts.TopologyPath == "" {
		return fmt.Errorf("required flag --test-rig-yaml not set")
	}
	top, err := rig.Load(opts.TopologyPath)
	if err != nil {
		return canrigErrors.WrapTopologyError(err, opts.TopologyPath)
	}
	if err := top.Validate(); err != nil {
		return canrigErrors.WrapTopologyError(err, opts.TopologyPath)
	}
	applyDefaultGPIO(top, cfg.Firmware.DefaultGPIO)

	reg := spec.DefaultRegistry()
	var (
		opener  bus.Opener
		inspect func(fixture.Identity) fixture.Inspector
		program cases.ProgramFunc
	)
	if cfg.Bus.Virtual {
		v := newVirtualRig(top, reg, logger)
		opener, inspect, program = v.open, v.inspect, v.program
		logger.Info("Using simulated controllers (virtual bus)")
	} else {
		opener = openSocketCAN
		program = programmerFunc(cfg, logger)
	}
	if cfg.Capture.Path != "" {
		opener = recordingOpener(opener, cfg.Capture.Path, runID, logger)
	}

	catalog, err := fixture.Build(top, fixture.Env{
		Opener:           opener,
		Bitrate:          cfg.Bus.Bitrate,
		DiscoveryTimeout: cfg.DiscoveryTimeout(),
		Inspect:          inspect,
		Registry:         reg,
		Logger:           logger,
		Session: session.Options{
			RequestTimeout:    cfg.RequestTimeout(),
			InactivityTimeout: cfg.InactivityTimeout(),
		},
		Ignore: opts.Ignore,
		Strict: cfg.Topology.Strict,
	})
	if err != nil {
		return canrigErrors.WrapTopologyError(err, opts.TopologyPath)
	}
	defer func() {
		if err := catalog.Close(); err != nil {
			logger.Error("close buses: %v", err)
		}
	}()
	logger.Verbose("Test rig: %s", strings.Join(fixtureNames(catalog), ", "))

	registry := harness.NewRegistry()
	if err := cases.Register(registry, cases.Options{
		FirmwareDir: cfg.Firmware.Dir,
		Program:     program,
		SettleDelay: cfg.Firmware.SettleDelay(),
	}); err != nil {
		return err
	}
	selected, err := selectCases(registry, opts.Cases)
	if err != nil {
		return err
	}

	results, err := harness.NewScheduler(catalog, logger).RunAll(ctx, selected)

	rep := report.RunReport{
		GeneratedAt:   report.FormatTimestamp(),
		CanrigVersion: opts.Version,
		RunID:         runID,
		Topology:      opts.TopologyPath,
		Virtual:       cfg.Bus.Virtual,
		Pass:          err == nil,
		Cases:         report.Cases(results, err),
	}
	if logger.GetLevel() >= logging.LogLevelInfo {
		out := opts.Out
		if out == nil {
			out = os.Stdout
		}
		report.WriteText(out, rep)
	}
	if opts.ReportPath != "" {
		if werr := report.WriteJSONFile(opts.ReportPath, rep); werr != nil {
			logger.Error("%v", werr)
		} else {
			logger.Verbose("Wrote report %s", opts.ReportPath)
		}
	}
	return err
}

// ListCases prints the registered test cases and the rig components each
// one needs.
func ListCases(out io.Writer) error {
	r := harness.NewRegistry()
	if err := cases.Register(r, cases.Options{}); err != nil {
		return err
	}
	for _, name := range r.Names() {
		tc, _ := r.Lookup(name)
		kinds := make([]string, 0, len(tc.Kinds()))
		for _, k := range tc.Kinds() {
			kinds = append(kinds, string(k))
		}
		fmt.Fprintf(out, "%-22s %s\n", name, strings.Join(kinds, ", "))
	}
	return nil
}

func newRunID() string {
	return uuid.NewString()[:8]
}

func newLogger(cfg config.LoggingConfig, out io.Writer) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if out != nil {
		return logging.NewWriterLogger(level, out), nil
	}
	return logging.NewLoggerWithOptions(level, cfg.File, cfg.Format)
}

func selectCases(r *harness.Registry, names []string) ([]harness.TestCase, error) {
	if len(names) == 0 {
		names = r.Names()
	}
	out := make([]harness.TestCase, 0, len(names))
	for _, name := range names {
		tc, ok := r.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown test case %q (available: %s)", name, strings.Join(r.Names(), ", "))
		}
		out = append(out, tc)
	}
	return out, nil
}

func fixtureNames(c *fixture.Catalog) []string {
	var names []string
	for _, f := range c.All() {
		names = append(names, f.Name())
	}
	sort.Strings(names)
	return names
}

// applyDefaultGPIO gives hosts without a program-gpio the configured pin.
func applyDefaultGPIO(top *rig.Topology, pin *int) {
	if pin == nil {
		return
	}
	for _, c := range top.Components {
		if c.GeneralPurpose != nil && c.GeneralPurpose.ProgramGPIO == nil {
			p := *pin
			c.GeneralPurpose.ProgramGPIO = &p
		}
	}
}

func openSocketCAN(channel string, bitrate int) (bus.Bus, error) {
	b, err := bus.OpenSocketCANBus(channel, bitrate)
	if err != nil {
		return nil, canrigErrors.WrapBusError(err, channel)
	}
	return b, nil
}

// captureFile names the pcap of one interface, e.g. rig.pcap becomes
// rig-can0-1a2b3c4d.pcap.
func captureFile(path, channel, runID string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		ext = ".pcap"
	}
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	return fmt.Sprintf("%s-%s-%s%s", stem, channel, runID, ext)
}

func recordingOpener(inner bus.Opener, path, runID string, logger *logging.Logger) bus.Opener {
	return func(channel string, bitrate int) (bus.Bus, error) {
		b, err := inner(channel, bitrate)
		if err != nil {
			return nil, err
		}
		file := captureFile(path, channel, runID)
		rec, err := bus.NewRecorder(b, file)
		if err != nil {
			b.Close()
			return nil, err
		}
		logger.Info("Capturing %s to %s", channel, file)
		return rec, nil
	}
}

// programmerFunc flashes encoder simulators through each host's loader.
func programmerFunc(cfg *config.HarnessConfig, logger *logging.Logger) cases.ProgramFunc {
	fw := cfg.Firmware
	return func(ctx context.Context, host fixture.Host, hexPath string) error {
		if host.ProgramGPIO == nil {
			return fmt.Errorf("host %s has no program-gpio", host.Name)
		}
		sshOpts := transport.DefaultSSHOptions()
		sshOpts.KeyFile = fw.SSHKeyFile
		sshOpts.KnownHostsFile = fw.SSHKnownHosts
		tr, err := transport.ParseWithOptions(host.Loader, sshOpts)
		if err != nil {
			return fmt.Errorf("host %s: %w", host.Name, err)
		}
		defer tr.Close()

		p := &firmware.Programmer{
			Transport:     tr,
			GPIO:          *host.ProgramGPIO,
			GPIORoot:      fw.GPIORoot,
			Loader:        fw.Loader,
			Pulse:         fw.Pulse(),
			LoaderTimeout: fw.LoaderTimeout(),
			BootDelay:     fw.BootDelay(),
			RemoteDir:     fw.RemoteDir,
			Logger:        logger,
		}
		return p.Program(ctx, hexPath)
	}
}
