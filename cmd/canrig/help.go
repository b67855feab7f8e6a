package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func handleHelpArg(cmd *cobra.Command, args []string) bool {
	if len(args) == 0 {
		return false
	}
	if strings.EqualFold(args[0], "help") {
		_ = cmd.Help()
		return true
	}
	return false
}

func missingFlagError(cmd *cobra.Command, flag string) error {
	_ = cmd.Help()
	return fmt.Errorf("required flag %s not set", flag)
}

// signalContext is canceled on Ctrl-C or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func missingArgError(cmd *cobra.Command, name string) error {
	_ = cmd.Help()
	return fmt.Errorf("missing argument %s", name)
}
