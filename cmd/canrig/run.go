package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/canrig/internal/app"
	"github.com/tturner/canrig/internal/config"
)

type runFlags struct {
	topology string
	ignore   []string
	config   string
	virtual  bool
	capture  string
	strict   bool
	logLevel string
	list     bool
	report   string
}

func newRunCmd() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [test-case...]",
		Short: "Run test cases against the test rig",
		Long: `Run one or more test cases against the rig described by --test-rig-yaml.

For every test case canrig looks for the first combination of rig
components the case can run on, brings those components up (discovering
controllers by their heartbeat) and runs the case. Cases with no
compatible combination are skipped. The run stops at the first failure.

With no test case names, every registered case runs. --list prints the
available cases.`,
		Example: `  # Run every test case on the rig
  canrig run --test-rig-yaml rig.yaml

  # Run one case without touching odrv1
  canrig run can_simple --test-rig-yaml rig.yaml --ignore odrv1

  # Try the harness against simulated controllers
  canrig run --test-rig-yaml rig.yaml --virtual

  # Record all bus traffic for Wireshark
  canrig run --test-rig-yaml rig.yaml --capture run.pcap

  # Keep a machine-readable result for CI
  canrig run --test-rig-yaml rig.yaml --report result.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.list {
				return app.ListCases(cmd.OutOrStdout())
			}
			if flags.topology == "" {
				return missingFlagError(cmd, "--test-rig-yaml")
			}
			ctx, stop := signalContext(cmd)
			defer stop()
			return app.RunTests(ctx, app.RunOptions{
				TopologyPath:   flags.topology,
				Cases:          args,
				Ignore:         flags.ignore,
				ConfigPath:     flags.config,
				ConfigExplicit: cmd.Flags().Changed("config"),
				Virtual:        flags.virtual,
				CapturePath:    flags.capture,
				Strict:         flags.strict,
				LogLevel:       flags.logLevel,
				ReportPath:     flags.report,
				Version:        version,
			})
		},
	}

	cmd.Flags().StringVar(&flags.topology, "test-rig-yaml", "", "Test rig topology file (required)")
	cmd.Flags().StringSliceVar(&flags.ignore, "ignore", nil, "Component to leave out of the run (repeatable)")
	cmd.Flags().StringVar(&flags.config, "config", config.DefaultPath, "Harness config file")
	cmd.Flags().BoolVar(&flags.virtual, "virtual", false, "Use simulated controllers on in-memory buses")
	cmd.Flags().StringVar(&flags.capture, "capture", "", "Write bus traffic to pcap files (one per interface)")
	cmd.Flags().BoolVar(&flags.strict, "strict", false, "Reject topology entries of unknown type")
	cmd.Flags().StringVar(&flags.report, "report", "", "Write a JSON summary of the run to this file")
	cmd.Flags().BoolVar(&flags.list, "list", false, "List the test cases and exit")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "Log level: silent, error, info, verbose, debug")

	return cmd
}
