package transport

import (
	"fmt"
	"net/url"
	"strconv"
)

// Parse turns a rig host's loader field into a Transport.
// Supported formats:
//   - "" or "local" -> Local
//   - "ssh://user@host:port" -> SSH
//   - "ssh://user@host?key=/path&insecure=true" -> SSH with options
func Parse(spec string) (Transport, error) {
	return ParseWithOptions(spec, DefaultSSHOptions())
}

// ParseWithOptions parses spec, starting SSH transports from opts.
func ParseWithOptions(spec string, opts SSHOptions) (Transport, error) {
	if IsLocal(spec) {
		return NewLocal(opts.Options), nil
	}

	u, err := url.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse loader %q: %w", spec, err)
	}
	if u.Scheme != "ssh" {
		return nil, fmt.Errorf("unsupported loader scheme %q", u.Scheme)
	}
	return parseSSHURL(u, opts)
}

func parseSSHURL(u *url.URL, opts SSHOptions) (Transport, error) {
	if u.User != nil {
		opts.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			opts.Password = pw
		}
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("SSH host is required")
	}

	if portStr := u.Port(); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid port: %w", err)
		}
		opts.Port = port
	}

	q := u.Query()
	if key := q.Get("key"); key != "" {
		opts.KeyFile = key
	}
	if passphrase := q.Get("passphrase"); passphrase != "" {
		opts.KeyPassphrase = passphrase
	}
	if knownHosts := q.Get("known_hosts"); knownHosts != "" {
		opts.KnownHostsFile = knownHosts
	}
	if insecure := q.Get("insecure"); insecure == "true" || insecure == "1" {
		opts.InsecureIgnoreHost = true
	}
	if agent := q.Get("agent"); agent == "false" || agent == "0" {
		opts.Agent = false
	}

	return NewSSH(host, opts)
}

// IsLocal reports whether spec means running on this machine.
func IsLocal(spec string) bool {
	return spec == "" || spec == "local"
}
