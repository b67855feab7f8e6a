package app

import (
	"fmt"
	"io"
	"os"

	"github.com/tturner/canrig/internal/ui"
)

type WizardOptions struct {
	OutputPath string
	Force      bool
	Out        io.Writer
}

// RunWizard walks the user through describing a single-controller rig.
func RunWizard(opts WizardOptions) error {
	if opts.OutputPath == "" {
		opts.OutputPath = "rig.yaml"
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if _, err := os.Stat(opts.OutputPath); err == nil && !opts.Force {
		return fmt.Errorf("%s already exists; use --force to overwrite", opts.OutputPath)
	}
	top, err := ui.RunWizard(opts.OutputPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(opts.Out, "Wrote %s (%d components)\n", opts.OutputPath, len(top.Components))
	fmt.Fprintf(opts.Out, "Try: canrig run --test-rig-yaml %s --virtual\n", opts.OutputPath)
	return nil
}
