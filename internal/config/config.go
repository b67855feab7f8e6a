package config

// Harness configuration loading and validation for canrig

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tturner/canrig/internal/errors"
)

// DefaultPath is where canrig looks for its configuration.
const DefaultPath = "canrig.yaml"

// BusConfig describes how CAN interfaces are opened.
type BusConfig struct {
	Bitrate int `yaml:"bitrate"`
	// Virtual replaces every interface with an in-memory bus populated by
	// simulated controllers.
	Virtual bool `yaml:"virtual,omitempty"`
}

// RequestConfig bounds request/response exchanges on the bus.
type RequestConfig struct {
	TimeoutMs    int `yaml:"timeout_ms"`
	InactivityMs int `yaml:"inactivity_ms,omitempty"` // 0 = same as timeout_ms
}

// DiscoveryConfig bounds fixture activation.
type DiscoveryConfig struct {
	TimeoutMs int `yaml:"timeout_ms"`
}

// FirmwareConfig controls encoder simulator programming.
type FirmwareConfig struct {
	Dir             string   `yaml:"dir"`
	GPIORoot        string   `yaml:"gpio_root"`
	Loader          []string `yaml:"loader"`
	LoaderTimeoutMs int      `yaml:"loader_timeout_ms"`
	PulseMs         int      `yaml:"pulse_ms"`
	BootDelayMs     int      `yaml:"boot_delay_ms"`
	SettleDelayMs   int      `yaml:"settle_delay_ms"` // PLL settle time after boot
	RemoteDir       string   `yaml:"remote_dir"`
	// DefaultGPIO is used for hosts whose topology entry has no program-gpio.
	DefaultGPIO *int `yaml:"default_gpio,omitempty"`
	// SSH settings for hosts with an ssh:// loader.
	SSHKeyFile    string `yaml:"ssh_key_file,omitempty"`
	SSHKnownHosts string `yaml:"ssh_known_hosts,omitempty"`
}

// CaptureConfig enables pcap capture of bus traffic.
type CaptureConfig struct {
	Path string `yaml:"path,omitempty"`
}

// TopologyConfig controls how rig files are interpreted.
type TopologyConfig struct {
	Strict bool `yaml:"strict,omitempty"` // reject unknown component types
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
	File   string `yaml:"file,omitempty"`
}

// HarnessConfig is the canrig configuration file.
type HarnessConfig struct {
	Bus       BusConfig       `yaml:"bus"`
	Request   RequestConfig   `yaml:"request"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Firmware  FirmwareConfig  `yaml:"firmware"`
	Capture   CaptureConfig   `yaml:"capture,omitempty"`
	Topology  TopologyConfig  `yaml:"topology,omitempty"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// CreateDefaultConfig returns the built-in configuration.
func CreateDefaultConfig() *HarnessConfig {
	cfg := &HarnessConfig{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *HarnessConfig) {
	if cfg.Bus.Bitrate == 0 {
		cfg.Bus.Bitrate = 250000
	}
	if cfg.Request.TimeoutMs == 0 {
		cfg.Request.TimeoutMs = 1000
	}
	if cfg.Discovery.TimeoutMs == 0 {
		cfg.Discovery.TimeoutMs = 5000
	}
	fw := &cfg.Firmware
	if fw.Dir == "" {
		fw.Dir = "firmware"
	}
	if fw.GPIORoot == "" {
		fw.GPIORoot = "/sys/class/gpio"
	}
	if len(fw.Loader) == 0 {
		fw.Loader = []string{"teensy_loader_cli", "-mmcu=imxrt1062", "-w"}
	}
	if fw.LoaderTimeoutMs == 0 {
		fw.LoaderTimeoutMs = 5000
	}
	if fw.PulseMs == 0 {
		fw.PulseMs = 100
	}
	if fw.BootDelayMs == 0 {
		fw.BootDelayMs = 500
	}
	if fw.SettleDelayMs == 0 {
		fw.SettleDelayMs = 1000
	}
	if fw.RemoteDir == "" {
		fw.RemoteDir = "/tmp/canrig"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// WriteDefault writes the built-in configuration to path.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(CreateDefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Load reads the configuration at path. A missing file yields the
// defaults unless explicit is set, i.e. the user named the file.
func Load(path string, explicit bool) (*HarnessConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return CreateDefaultConfig(), nil
		}
		if os.IsNotExist(err) {
			return nil, errors.WrapConfigError(fmt.Errorf("config file not found: %s", path), path)
		}
		return nil, errors.WrapConfigError(fmt.Errorf("read config file: %w", err), path)
	}

	var cfg HarnessConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapConfigError(fmt.Errorf("parse YAML: %w", err), path)
	}
	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, errors.WrapConfigError(fmt.Errorf("validate config: %w", err), path)
	}
	return &cfg, nil
}

// Validate checks a configuration for values canrig cannot use.
func Validate(cfg *HarnessConfig) error {
	var problems []string
	if cfg.Bus.Bitrate < 0 || cfg.Bus.Bitrate > 1000000 {
		problems = append(problems, fmt.Sprintf("bus.bitrate %d out of range (1..1000000)", cfg.Bus.Bitrate))
	}
	if cfg.Request.TimeoutMs < 0 {
		problems = append(problems, "request.timeout_ms must not be negative")
	}
	if cfg.Request.InactivityMs < 0 {
		problems = append(problems, "request.inactivity_ms must not be negative")
	}
	if cfg.Discovery.TimeoutMs < 0 {
		problems = append(problems, "discovery.timeout_ms must not be negative")
	}
	fw := cfg.Firmware
	if fw.LoaderTimeoutMs < 0 || fw.PulseMs < 0 || fw.BootDelayMs < 0 || fw.SettleDelayMs < 0 {
		problems = append(problems, "firmware delays must not be negative")
	}
	if fw.DefaultGPIO != nil && *fw.DefaultGPIO < 0 {
		problems = append(problems, "firmware.default_gpio must not be negative")
	}
	switch cfg.Logging.Format {
	case "", "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be text or json", cfg.Logging.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// RequestTimeout returns the request deadline.
func (c *HarnessConfig) RequestTimeout() time.Duration { return ms(c.Request.TimeoutMs) }

// InactivityTimeout returns the inactivity timeout, 0 meaning the request
// deadline.
func (c *HarnessConfig) InactivityTimeout() time.Duration { return ms(c.Request.InactivityMs) }

// DiscoveryTimeout returns how long fixture activation may wait.
func (c *HarnessConfig) DiscoveryTimeout() time.Duration { return ms(c.Discovery.TimeoutMs) }

func (f FirmwareConfig) LoaderTimeout() time.Duration { return ms(f.LoaderTimeoutMs) }
func (f FirmwareConfig) Pulse() time.Duration         { return ms(f.PulseMs) }
func (f FirmwareConfig) BootDelay() time.Duration     { return ms(f.BootDelayMs) }
func (f FirmwareConfig) SettleDelay() time.Duration   { return ms(f.SettleDelayMs) }
