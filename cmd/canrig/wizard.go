package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tturner/canrig/internal/app"
	"github.com/tturner/canrig/internal/config"
)

func newWizardCmd() *cobra.Command {
	var (
		out   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "wizard",
		Short: "Describe a test rig interactively and write its topology file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return app.RunWizard(app.WizardOptions{OutputPath: out, Force: force, Out: cmd.OutOrStdout()})
		},
	}
	cmd.Flags().StringVar(&out, "out", "rig.yaml", "Topology file to write")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the harness configuration file",
	}

	var (
		out   string
		force bool
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the built-in configuration to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(out); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", out)
			}
			if err := config.WriteDefault(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", out)
			return nil
		},
	}
	initCmd.Flags().StringVar(&out, "out", config.DefaultPath, "Config file to write")
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}
