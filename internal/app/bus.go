package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tturner/canrig/internal/can/bus"
	"github.com/tturner/canrig/internal/can/session"
	"github.com/tturner/canrig/internal/can/sim"
	"github.com/tturner/canrig/internal/can/spec"
	"github.com/tturner/canrig/internal/logging"
	"github.com/tturner/canrig/internal/monitor"
)

// BusOptions selects the interface used by the single-shot commands.
type BusOptions struct {
	Channel string
	Bitrate int
	// Virtual answers from a simulated controller at the target node.
	Virtual bool
	Timeout time.Duration
	Verbose bool
	Out     io.Writer
}

func (o BusOptions) out() io.Writer {
	if o.Out == nil {
		return os.Stdout
	}
	return o.Out
}

func openBus(opts BusOptions, node uint32, reg *spec.Registry) (bus.Bus, error) {
	if opts.Virtual {
		b := bus.NewVirtualBus()
		b.Attach(sim.NewController(node, reg))
		return b, nil
	}
	if opts.Channel == "" {
		return nil, fmt.Errorf("required flag --channel not set")
	}
	return openSocketCAN(opts.Channel, opts.Bitrate)
}

func busSession(opts BusOptions, node uint32) (*session.Session, func(), error) {
	reg := spec.DefaultRegistry()
	b, err := openBus(opts, node, reg)
	if err != nil {
		return nil, nil, err
	}
	level := logging.LogLevelError
	if opts.Verbose {
		level = logging.LogLevelDebug
	}
	logger := logging.NewWriterLogger(level, opts.out())
	s := session.New(b, reg, logger, session.Options{RequestTimeout: opts.Timeout})
	return s, func() { b.Close() }, nil
}

// ParseArgs turns name=value pairs into command arguments.
func ParseArgs(pairs []string) (map[string]float64, error) {
	args := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid argument %q; want name=value", pair)
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", name, err)
		}
		args[name] = v
	}
	return args, nil
}

type SendOptions struct {
	BusOptions
	Node    uint32
	Command string
	Args    []string
}

// RunSend transmits one command frame.
func RunSend(ctx context.Context, opts SendOptions) error {
	args, err := ParseArgs(opts.Args)
	if err != nil {
		return err
	}
	s, closeBus, err := busSession(opts.BusOptions, opts.Node)
	if err != nil {
		return err
	}
	defer closeBus()

	if err := s.SendCommand(ctx, opts.Command, opts.Node, args); err != nil {
		return err
	}
	fmt.Fprintf(opts.out(), "Sent %s to node %d\n", opts.Command, opts.Node)
	return nil
}

type RequestOptions struct {
	BusOptions
	Node    uint32
	Command string
}

// RunRequest asks a node for one command's values and prints them.
func RunRequest(ctx context.Context, opts RequestOptions) error {
	s, closeBus, err := busSession(opts.BusOptions, opts.Node)
	if err != nil {
		return err
	}
	defer closeBus()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = session.DefaultRequestTimeout
	}
	values, err := s.Request(ctx, opts.Command, opts.Node, timeout)
	if err != nil {
		return err
	}
	out := opts.out()
	fmt.Fprintf(out, "node %d %s:\n", opts.Node, opts.Command)
	for _, v := range values {
		fmt.Fprintf(out, "  %-24s %s\n", v.Name, strconv.FormatFloat(v.Value, 'g', -1, 64))
	}
	return nil
}

// RunCommands prints the command table.
func RunCommands(out io.Writer) error {
	reg := spec.DefaultRegistry()
	fmt.Fprintf(out, "%-5s %-26s %s\n", "ID", "COMMAND", "FIELDS")
	for _, c := range reg.Commands() {
		var fields []string
		for _, f := range c.Fields {
			field := f.Name + ":" + f.Kind.String()
			if f.Scale != 1 {
				field += "*" + strconv.FormatFloat(f.Scale, 'g', -1, 64)
			}
			fields = append(fields, field)
		}
		fmt.Fprintf(out, "0x%03x %-26s %s\n", c.ID, c.Name, strings.Join(fields, " "))
	}
	return nil
}

type MonitorOptions struct {
	BusOptions
	Node    *uint32
	History int
}

// RunMonitor shows live bus traffic until the user quits.
func RunMonitor(ctx context.Context, opts MonitorOptions) error {
	if opts.Channel == "" {
		return fmt.Errorf("required flag --channel not set")
	}
	b, err := openSocketCAN(opts.Channel, opts.Bitrate)
	if err != nil {
		return err
	}
	defer b.Close()
	return monitor.Run(ctx, b, nil, monitor.Options{
		Channel: opts.Channel,
		History: opts.History,
		Node:    opts.Node,
	})
}
