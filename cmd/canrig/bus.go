package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tturner/canrig/internal/app"
	"github.com/tturner/canrig/internal/can/session"
)

type busFlags struct {
	channel string
	bitrate int
	virtual bool
	timeout time.Duration
	verbose bool
}

func (f *busFlags) register(cmd *cobra.Command, withVirtual bool) {
	cmd.Flags().StringVar(&f.channel, "channel", "", "CAN interface, e.g. can0")
	cmd.Flags().IntVar(&f.bitrate, "bitrate", 250000, "Bus bitrate the interface is configured for")
	cmd.Flags().BoolVar(&f.verbose, "verbose", false, "Log every frame sent and received")
	if withVirtual {
		cmd.Flags().BoolVar(&f.virtual, "virtual", false, "Talk to a simulated controller instead of the bus")
	}
}

func (f *busFlags) options(cmd *cobra.Command) app.BusOptions {
	return app.BusOptions{
		Channel: f.channel,
		Bitrate: f.bitrate,
		Virtual: f.virtual,
		Timeout: f.timeout,
		Verbose: f.verbose,
		Out:     cmd.OutOrStdout(),
	}
}

func newSendCmd() *cobra.Command {
	flags := &busFlags{}
	var node uint32

	cmd := &cobra.Command{
		Use:   "send <command> [field=value...]",
		Short: "Send one command frame to a node",
		Long: `Encode a command from the protocol table and send it to one node.
Every payload field of the command must be given as field=value.
Nothing is awaited; use "canrig request" to read values back.`,
		Example: `  canrig send clear_errors --channel can0 --node 3
  canrig send set_input_vel input_vel=2.5 cur_ff=0 --channel can0 --node 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) == 0 {
				return missingArgError(cmd, "<command>")
			}
			if flags.channel == "" && !flags.virtual {
				return missingFlagError(cmd, "--channel")
			}
			return app.RunSend(cmd.Context(), app.SendOptions{
				BusOptions: flags.options(cmd),
				Node:       node,
				Command:    args[0],
				Args:       args[1:],
			})
		},
	}
	flags.register(cmd, true)
	cmd.Flags().Uint32Var(&node, "node", 0, "Target node id")
	return cmd
}

func newRequestCmd() *cobra.Command {
	flags := &busFlags{}
	var node uint32

	cmd := &cobra.Command{
		Use:   "request <command>",
		Short: "Request a value from a node and print it",
		Example: `  canrig request get_vbus_voltage --channel can0 --node 3
  canrig request heartbeat --virtual`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) != 1 {
				return missingArgError(cmd, "<command>")
			}
			if flags.channel == "" && !flags.virtual {
				return missingFlagError(cmd, "--channel")
			}
			return app.RunRequest(cmd.Context(), app.RequestOptions{
				BusOptions: flags.options(cmd),
				Node:       node,
				Command:    args[0],
			})
		},
	}
	flags.register(cmd, true)
	cmd.Flags().Uint32Var(&node, "node", 0, "Target node id")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", session.DefaultRequestTimeout, "How long to wait for the reply")
	return cmd
}

func newCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the protocol commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunCommands(cmd.OutOrStdout())
		},
	}
}

func newMonitorCmd() *cobra.Command {
	flags := &busFlags{}
	var (
		node    int
		history int
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Show live bus traffic",
		Long: `Decode and show every frame on a CAN interface.

Keys: q quit, p pause, c clear, y copy the latest line to the clipboard.`,
		Example: `  canrig monitor --channel can0
  canrig monitor --channel can0 --node 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.channel == "" {
				return missingFlagError(cmd, "--channel")
			}
			opts := app.MonitorOptions{BusOptions: flags.options(cmd), History: history}
			if node >= 0 {
				n := uint32(node)
				opts.Node = &n
			}
			ctx, stop := signalContext(cmd)
			defer stop()
			return app.RunMonitor(ctx, opts)
		},
	}
	flags.register(cmd, false)
	cmd.Flags().IntVar(&node, "node", -1, "Only show frames of this node id")
	cmd.Flags().IntVar(&history, "history", 0, "Frames to keep on screen (default 500)")
	return cmd
}
