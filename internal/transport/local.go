package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
)

// Local implements Transport for the machine canrig runs on.
type Local struct {
	opts Options
}

// NewLocal creates a new local transport.
func NewLocal(opts Options) *Local {
	return &Local{opts: opts}
}

// Exec runs a command locally.
func (l *Local) Exec(ctx context.Context, cmd []string) (Result, error) {
	if len(cmd) == 0 {
		return Result{ExitCode: -1}, fmt.Errorf("empty command")
	}

	if l.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, cmd[0], cmd[1:]...)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		res.ExitCode = -1
		if ctx.Err() != nil {
			return res, fmt.Errorf("%s: %w", cmd[0], ctx.Err())
		}
		return res, err
	}
	return res, nil
}

// Put copies a file to another local path.
func (l *Local) Put(ctx context.Context, srcPath, dstPath string) error {
	return copyFile(srcPath, dstPath)
}

// WriteFile writes data to an existing local file.
func (l *Local) WriteFile(ctx context.Context, path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Close is a no-op for local transport.
func (l *Local) Close() error {
	return nil
}

func (l *Local) String() string {
	return "local"
}

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	if src == dst {
		return nil
	}
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, srcInfo.Mode())
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("copy: %w", err)
	}

	return dstFile.Sync()
}

var _ Transport = (*Local)(nil)
