package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestGetConfigDir(t *testing.T) {
	if runtime.GOOS != "windows" && runtime.GOOS != "darwin" {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	}

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if filepath.Base(configDir) != "openbci" {
		t.Errorf("GetConfigDir() = %v, should end in 'openbci'", configDir)
	}
	if runtime.GOOS != "windows" && runtime.GOOS != "darwin" && configDir != "/tmp/xdg/openbci" {
		t.Errorf("GetConfigDir() = %v, want /tmp/xdg/openbci", configDir)
	}
}

func TestGetConfigPath(t *testing.T) {
	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if cfg.Version != CurrentVersion {
		t.Errorf("Default().Version = %d, want %d", cfg.Version, CurrentVersion)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Device.Port != "auto" {
		t.Errorf("Device.Port = %q, want auto", cfg.Device.Port)
	}
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `version: 1
device:
  port: /dev/ttyUSB1
  read_timeout: 250ms
sinks:
  redis:
    enabled: true
    addr: redis:6379
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Device.Port != "/dev/ttyUSB1" {
		t.Errorf("Device.Port = %q", cfg.Device.Port)
	}
	if cfg.Device.ReadTimeout != 250*time.Millisecond {
		t.Errorf("Device.ReadTimeout = %v", cfg.Device.ReadTimeout)
	}
	if cfg.Device.Baud != 115200 {
		t.Errorf("Device.Baud = %d, want default 115200", cfg.Device.Baud)
	}
	if !cfg.Sinks.Redis.Enabled || cfg.Sinks.Redis.Addr != "redis:6379" {
		t.Errorf("Sinks.Redis = %+v", cfg.Sinks.Redis)
	}
	if cfg.Sinks.Redis.Channel != "openbci:samples" {
		t.Errorf("Sinks.Redis.Channel = %q, want default", cfg.Sinks.Redis.Channel)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "bad version", content: "version: 2\n", wantErr: "unsupported config version"},
		{name: "bad yaml", content: "version: [1\n", wantErr: "failed to parse"},
		{name: "bad port", content: "version: 1\nserver:\n  port: 70000\n", wantErr: "server.port"},
		{name: "bad level", content: "version: 1\nlogging:\n  level: loud\n", wantErr: "logging.level"},
		{name: "bad strategy", content: "version: 1\ndevice:\n  strategy: simd\n", wantErr: "device.strategy"},
		{name: "empty buffer", content: "version: 1\nstream:\n  subscriber_buffer: 0\n", wantErr: "subscriber_buffer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Device.Port = "sim"
	cfg.Device.ReadTimeout = time.Second
	cfg.Server.Port = 9000
	cfg.Sinks.CSV.Enabled = true
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.HasPrefix(string(data), "# OpenBCI") {
		t.Error("saved file has no header comment")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Device != cfg.Device || loaded.Server != cfg.Server || loaded.Sinks != cfg.Sinks {
		t.Errorf("loaded = %+v, want %+v", loaded, cfg)
	}
}
