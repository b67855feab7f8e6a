// Package transport runs commands and writes files on the machine a rig
// host entry points at, either locally or over SSH.
package transport

import (
	"context"
	"strings"
	"time"
)

// Transport abstracts local/remote execution and file transfer.
type Transport interface {
	// Exec runs cmd (argv, not a shell string) and waits for it to exit.
	// A non-zero exit is reported in Result, not as an error.
	Exec(ctx context.Context, cmd []string) (Result, error)

	// Put copies a local file to path on the target.
	Put(ctx context.Context, localPath, remotePath string) error

	// WriteFile writes data to an existing file on the target, e.g. a
	// sysfs attribute.
	WriteFile(ctx context.Context, path string, data []byte) error

	Close() error
	String() string
}

// Result is the outcome of Exec.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Output returns stdout and stderr joined, trimmed for error messages.
func (r Result) Output() string {
	return strings.TrimSpace(strings.TrimSpace(r.Stdout) + "\n" + strings.TrimSpace(r.Stderr))
}

// Options configures transport behavior.
type Options struct {
	Timeout time.Duration // Default command timeout
}

// DefaultOptions returns sensible default options.
func DefaultOptions() Options {
	return Options{Timeout: time.Minute}
}

// SSHOptions configures SSH-specific transport behavior.
type SSHOptions struct {
	Options

	// Authentication
	User          string // SSH username
	KeyFile       string // Path to private key file
	KeyPassphrase string // Passphrase for encrypted key (optional)
	Password      string // Password authentication (fallback)
	Agent         bool   // Use SSH agent for authentication

	// Host verification
	KnownHostsFile     string // Path to known_hosts file
	InsecureIgnoreHost bool   // Skip host key verification (dangerous)

	// Connection
	Port           int           // SSH port (default 22)
	ConnectTimeout time.Duration // Connection timeout
}

// DefaultSSHOptions returns sensible default SSH options.
func DefaultSSHOptions() SSHOptions {
	return SSHOptions{
		Options:        DefaultOptions(),
		Port:           22,
		ConnectTimeout: 10 * time.Second,
		Agent:          true,
	}
}
