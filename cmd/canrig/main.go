package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	canrigErrors "github.com/tturner/canrig/internal/errors"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "canrig",
		Short: "Hardware-in-the-loop tests for CAN motor controllers",
		Long: `canrig runs test cases against motor controllers wired to a test rig
over CAN. The rig is described by a topology YAML file; each test case
runs on the first combination of rig components it is compatible with.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newSendCmd())
	rootCmd.AddCommand(newRequestCmd())
	rootCmd.AddCommand(newCommandsCmd())
	rootCmd.AddCommand(newMonitorCmd())
	rootCmd.AddCommand(newWizardCmd())
	rootCmd.AddCommand(newConfigCmd())

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd.HasParent() {
			fmt.Fprint(cmd.OutOrStdout(), cmd.UsageString())
			return
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Usage:\n  %s <command> [arguments] [options]\n\n", cmd.Name())
		fmt.Fprintf(out, "Available Commands:\n")
		for _, subCmd := range cmd.Commands() {
			if !subCmd.Hidden {
				fmt.Fprintf(out, "  %-15s %s\n", subCmd.Name(), subCmd.Short)
			}
		}
		fmt.Fprintf(out, "\nUse \"%s help <command>\" for more information about a command.\n", cmd.Name())
	})
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 1 when a test failed and 2 when the harness itself could
// not proceed (bus, protocol, topology or configuration trouble).
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if canrigErrors.IsAssertion(err) {
		return 1
	}
	return 2
}
