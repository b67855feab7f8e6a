package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tturner/canrig/internal/errors"
)

func TestValidate(t *testing.T) {
	neg := -1
	tests := []struct {
		name    string
		mutate  func(*HarnessConfig)
		wantErr bool
	}{
		{"defaults", func(*HarnessConfig) {}, false},
		{"bitrate too high", func(c *HarnessConfig) { c.Bus.Bitrate = 2000000 }, true},
		{"negative timeout", func(c *HarnessConfig) { c.Request.TimeoutMs = -5 }, true},
		{"negative inactivity", func(c *HarnessConfig) { c.Request.InactivityMs = -5 }, true},
		{"negative discovery", func(c *HarnessConfig) { c.Discovery.TimeoutMs = -5 }, true},
		{"negative boot delay", func(c *HarnessConfig) { c.Firmware.BootDelayMs = -1 }, true},
		{"negative gpio", func(c *HarnessConfig) { c.Firmware.DefaultGPIO = &neg }, true},
		{"bad log format", func(c *HarnessConfig) { c.Logging.Format = "xml" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := CreateDefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	cfg := CreateDefaultConfig()
	if cfg.RequestTimeout() != time.Second {
		t.Errorf("RequestTimeout() = %v", cfg.RequestTimeout())
	}
	if cfg.InactivityTimeout() != 0 {
		t.Errorf("InactivityTimeout() = %v", cfg.InactivityTimeout())
	}
	if cfg.DiscoveryTimeout() != 5*time.Second {
		t.Errorf("DiscoveryTimeout() = %v", cfg.DiscoveryTimeout())
	}
	fw := cfg.Firmware
	if fw.LoaderTimeout() != 5*time.Second || fw.Pulse() != 100*time.Millisecond ||
		fw.BootDelay() != 500*time.Millisecond || fw.SettleDelay() != time.Second {
		t.Errorf("firmware = %+v", fw)
	}
	if strings.Join(fw.Loader, " ") != "teensy_loader_cli -mmcu=imxrt1062 -w" {
		t.Errorf("loader = %v", fw.Loader)
	}
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "canrig.yaml")

	cfg, err := Load(path, false)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Bus.Bitrate != 250000 {
		t.Errorf("Bitrate = %d, want default", cfg.Bus.Bitrate)
	}

	_, err = Load(path, true)
	var ufe errors.UserFriendlyError
	if !stderrors.As(err, &ufe) {
		t.Fatalf("Load(explicit) error = %v, want UserFriendlyError", err)
	}
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "canrig.yaml")
	data := "bus:\n  bitrate: 500000\n  virtual: true\nrequest:\n  timeout_ms: 250\nfirmware:\n  default_gpio: 26\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path, true)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Bus.Bitrate != 500000 || !cfg.Bus.Virtual {
		t.Errorf("bus = %+v", cfg.Bus)
	}
	if cfg.RequestTimeout() != 250*time.Millisecond {
		t.Errorf("RequestTimeout() = %v", cfg.RequestTimeout())
	}
	if cfg.Firmware.DefaultGPIO == nil || *cfg.Firmware.DefaultGPIO != 26 {
		t.Errorf("default_gpio = %v", cfg.Firmware.DefaultGPIO)
	}
	if cfg.Discovery.TimeoutMs != 5000 {
		t.Errorf("discovery default not applied: %d", cfg.Discovery.TimeoutMs)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	dir := t.TempDir()
	for name, data := range map[string]string{
		"syntax.yaml":  "bus: [",
		"invalid.yaml": "logging:\n  format: xml\n",
	} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path, true); err == nil {
			t.Errorf("Load(%s) should fail", name)
		}
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "canrig.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	cfg, err := Load(path, true)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	def := CreateDefaultConfig()
	if cfg.Bus != def.Bus || cfg.Request != def.Request || cfg.Logging != def.Logging {
		t.Errorf("loaded %+v, want %+v", cfg, def)
	}
}
