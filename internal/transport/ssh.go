package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSH implements Transport for a rig host reached over SSH.
type SSH struct {
	opts   SSHOptions
	host   string
	client *ssh.Client
	sftp   *sftp.Client
	mu     sync.Mutex
}

// NewSSH creates a new SSH transport. The connection is made on first use.
func NewSSH(host string, opts SSHOptions) (*SSH, error) {
	if host == "" {
		return nil, fmt.Errorf("host is required")
	}
	return &SSH{opts: opts, host: host}, nil
}

func (s *SSH) addr() string {
	port := s.opts.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(s.host, strconv.Itoa(port))
}

// connect establishes the SSH connection if not already connected.
func (s *SSH) connect(ctx context.Context) (*ssh.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	config, err := s.buildSSHConfig()
	if err != nil {
		return nil, fmt.Errorf("build SSH config: %w", err)
	}

	addr := s.addr()
	dialer := net.Dialer{Timeout: s.opts.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SSH handshake: %w", err)
	}
	s.client = ssh.NewClient(sshConn, chans, reqs)
	return s.client, nil
}

func (s *SSH) buildSSHConfig() (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	if s.opts.Agent {
		if agentAuth := sshAgentAuth(); agentAuth != nil {
			authMethods = append(authMethods, agentAuth)
		}
	}

	if s.opts.KeyFile != "" {
		keyAuth, err := publicKeyAuth(s.opts.KeyFile, s.opts.KeyPassphrase)
		if err != nil {
			return nil, fmt.Errorf("key file auth: %w", err)
		}
		authMethods = append(authMethods, keyAuth)
	} else {
		for _, keyPath := range defaultKeyPaths() {
			if keyAuth, err := publicKeyAuth(keyPath, ""); err == nil {
				authMethods = append(authMethods, keyAuth)
				break
			}
		}
	}

	if s.opts.Password != "" {
		authMethods = append(authMethods, ssh.Password(s.opts.Password))
	}

	if len(authMethods) == 0 {
		return nil, fmt.Errorf("no authentication methods available")
	}

	hostKeyCallback, err := s.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	user := s.opts.User
	if user == "" {
		user = os.Getenv("USER")
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         s.opts.ConnectTimeout,
	}, nil
}

// hostKeyCallback verifies against known_hosts unless told otherwise.
// Rig hosts are usually reflashed often, so a missing known_hosts file is
// an error rather than a silent fallback.
func (s *SSH) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if s.opts.InsecureIgnoreHost {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	file := s.opts.KnownHostsFile
	if file == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("known hosts: %w", err)
		}
		file = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(file)
	if err != nil {
		return nil, fmt.Errorf("known hosts: %w (use ?insecure=true to skip verification)", err)
	}
	return cb, nil
}

func (s *SSH) getSFTP(ctx context.Context) (*sftp.Client, error) {
	client, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sftp != nil {
		return s.sftp, nil
	}
	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return nil, fmt.Errorf("create SFTP client: %w", err)
	}
	s.sftp = sftpClient
	return s.sftp, nil
}

// Exec runs a command on the remote host.
func (s *SSH) Exec(ctx context.Context, cmd []string) (Result, error) {
	if len(cmd) == 0 {
		return Result{ExitCode: -1}, fmt.Errorf("empty command")
	}
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	client, err := s.connect(ctx)
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	session, err := client.NewSession()
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("new session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(buildCommandString(cmd))
	}()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return Result{ExitCode: -1, Stdout: stdout.String(), Stderr: stderr.String()},
			fmt.Errorf("%s: %w", cmd[0], ctx.Err())
	case err := <-done:
		res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				res.ExitCode = exitErr.ExitStatus()
				return res, nil
			}
			res.ExitCode = -1
			return res, err
		}
		return res, nil
	}
}

// Put copies a local file to the remote host.
func (s *SSH) Put(ctx context.Context, localPath, remotePath string) error {
	sftpClient, err := s.getSFTP(ctx)
	if err != nil {
		return err
	}

	localFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open local file: %w", err)
	}
	defer localFile.Close()

	if err := sftpClient.MkdirAll(path.Dir(remotePath)); err != nil {
		return fmt.Errorf("create remote directory: %w", err)
	}

	remoteFile, err := sftpClient.Create(remotePath)
	if err != nil {
		return fmt.Errorf("create remote file: %w", err)
	}
	defer remoteFile.Close()

	if _, err := io.Copy(remoteFile, localFile); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	return nil
}

// WriteFile writes data to an existing remote file.
func (s *SSH) WriteFile(ctx context.Context, remotePath string, data []byte) error {
	sftpClient, err := s.getSFTP(ctx)
	if err != nil {
		return err
	}
	f, err := sftpClient.OpenFile(remotePath, os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("open %s: %w", remotePath, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", remotePath, err)
	}
	return f.Close()
}

// Close closes the SSH connection.
func (s *SSH) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.sftp != nil {
		errs = append(errs, s.sftp.Close())
		s.sftp = nil
	}
	if s.client != nil {
		errs = append(errs, s.client.Close())
		s.client = nil
	}
	return errors.Join(errs...)
}

func (s *SSH) String() string {
	user := s.opts.User
	if user == "" {
		user = os.Getenv("USER")
	}
	if user == "" {
		return "ssh://" + s.addr()
	}
	return fmt.Sprintf("ssh://%s@%s", user, s.addr())
}

// sshAgentAuth returns an SSH agent authentication method.
func sshAgentAuth() ssh.AuthMethod {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil
	}
	agentClient := agent.NewClient(conn)
	return ssh.PublicKeysCallback(agentClient.Signers)
}

func publicKeyAuth(keyPath, passphrase string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(key)
	}
	if err != nil {
		return nil, err
	}
	return ssh.PublicKeys(signer), nil
}

func defaultKeyPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_rsa"),
		filepath.Join(home, ".ssh", "id_ecdsa"),
	}
}

// buildCommandString quotes argv for the remote shell.
func buildCommandString(cmd []string) string {
	parts := make([]string, 0, len(cmd))
	for _, arg := range cmd {
		if needsQuoting(arg) {
			parts = append(parts, "'"+strings.ReplaceAll(arg, "'", `'\''`)+"'")
		} else {
			parts = append(parts, arg)
		}
	}
	return strings.Join(parts, " ")
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	return strings.ContainsAny(s, " \t\n\"'\\$`!*?[](){}<>|&;#~")
}

var _ Transport = (*SSH)(nil)
