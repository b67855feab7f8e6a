// Package firmware flashes the encoder simulator boards wired to a rig host.
package firmware

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/tturner/canrig/internal/logging"
	"github.com/tturner/canrig/internal/transport"
)

// DefaultLoader flashes a Teensy 4.x with teensy_loader_cli.
var DefaultLoader = []string{"teensy_loader_cli", "-mmcu=imxrt1062", "-w"}

const (
	DefaultGPIORoot      = "/sys/class/gpio"
	DefaultPulse         = 100 * time.Millisecond
	DefaultLoaderTimeout = 5 * time.Second
	DefaultBootDelay     = 500 * time.Millisecond
	DefaultRemoteDir     = "/tmp/canrig"
)

// Programmer puts the board into program mode through its program pin,
// runs the loader and waits for the board to boot.
//
// The pin must already be exported and writable by the user:
//
//	echo 26 | sudo tee /sys/class/gpio/export
//	sudo chmod a+rw /sys/class/gpio/gpio26/*
//	echo out > /sys/class/gpio/gpio26/direction
type Programmer struct {
	Transport transport.Transport
	GPIO      int
	GPIORoot  string
	// Loader is the argv prefix; the hex file path is appended.
	Loader        []string
	Pulse         time.Duration
	LoaderTimeout time.Duration
	BootDelay     time.Duration
	// RemoteDir receives the hex file when the transport is not local.
	RemoteDir string
	Logger    *logging.Logger

	Sleep func(ctx context.Context, d time.Duration) error
}

func (p *Programmer) defaults() {
	if p.GPIORoot == "" {
		p.GPIORoot = DefaultGPIORoot
	}
	if len(p.Loader) == 0 {
		p.Loader = DefaultLoader
	}
	if p.Pulse == 0 {
		p.Pulse = DefaultPulse
	}
	if p.LoaderTimeout == 0 {
		p.LoaderTimeout = DefaultLoaderTimeout
	}
	if p.BootDelay == 0 {
		p.BootDelay = DefaultBootDelay
	}
	if p.RemoteDir == "" {
		p.RemoteDir = DefaultRemoteDir
	}
	if p.Logger == nil {
		p.Logger = logging.Discard()
	}
	if p.Sleep == nil {
		p.Sleep = sleep
	}
}

// ValuePath returns the sysfs value file of the program pin.
func (p *Programmer) ValuePath() string {
	root := p.GPIORoot
	if root == "" {
		root = DefaultGPIORoot
	}
	return path.Join(root, fmt.Sprintf("gpio%d", p.GPIO), "value")
}

// Program flashes hexPath, a file on this machine.
func (p *Programmer) Program(ctx context.Context, hexPath string) error {
	p.defaults()
	if p.Transport == nil {
		return fmt.Errorf("no transport for firmware loader")
	}

	target := hexPath
	if !transport.IsLocal(p.Transport.String()) {
		target = path.Join(p.RemoteDir, filepath.Base(hexPath))
		p.Logger.Debug("copying %s to %s:%s", hexPath, p.Transport, target)
		if err := p.Transport.Put(ctx, hexPath, target); err != nil {
			return fmt.Errorf("copy firmware: %w", err)
		}
	}

	value := p.ValuePath()
	p.Logger.Debug("pulsing program pin %s", value)
	if err := p.Transport.WriteFile(ctx, value, []byte("0")); err != nil {
		return fmt.Errorf("program pin: %w", err)
	}
	if err := p.Sleep(ctx, p.Pulse); err != nil {
		return err
	}
	if err := p.Transport.WriteFile(ctx, value, []byte("1")); err != nil {
		return fmt.Errorf("program pin: %w", err)
	}

	cmd := append(append([]string(nil), p.Loader...), target)
	lctx, cancel := context.WithTimeout(ctx, p.LoaderTimeout)
	defer cancel()
	p.Logger.Debug("running %v on %s", cmd, p.Transport)
	res, err := p.Transport.Exec(lctx, cmd)
	if err != nil {
		return fmt.Errorf("command %v failed: %w", cmd, err)
	}
	if res.ExitCode != 0 {
		p.Logger.Debug("%s", res.Output())
		return fmt.Errorf("command %v failed with exit code %d: %s", cmd, res.ExitCode, res.Output())
	}

	return p.Sleep(ctx, p.BootDelay)
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
