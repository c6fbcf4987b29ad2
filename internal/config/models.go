package config

import "time"

// CurrentVersion is the config file format version
const CurrentVersion = 1

// Config represents the entire configuration file
type Config struct {
	Version int           `yaml:"version"`
	Device  DeviceConfig  `yaml:"device"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
	Stream  StreamConfig  `yaml:"stream"`
	Sinks   SinksConfig   `yaml:"sinks"`
}

// DeviceConfig selects and opens the board
type DeviceConfig struct {
	Port        string        `yaml:"port"`                   // Serial port, "auto" or "sim"
	Baud        int           `yaml:"baud"`                   // Serial speed
	ReadTimeout time.Duration `yaml:"read_timeout,omitempty"` // Per-read timeout, 0 blocks
	Strategy    string        `yaml:"strategy,omitempty"`     // Decode strategy: auto, scalar or word
}

// ServerConfig controls the HTTP surface
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Advertise    bool   `yaml:"advertise"`               // Announce over mDNS
	InstanceName string `yaml:"instance_name,omitempty"` // mDNS instance name, defaults to hostname
}

// LoggingConfig controls the console logger
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"` // debug, info, warn, error; empty is silent
}

// StreamConfig controls sample delivery
type StreamConfig struct {
	AutoStart        bool `yaml:"auto_start"`        // Start streaming once the board has answered
	SubscriberBuffer int  `yaml:"subscriber_buffer"` // Per-client queue length for /stream and /ws
	DiagnosticsEvery int  `yaml:"diagnostics_every"` // Log one sample in N at debug level, 0 disables
}

// SinksConfig holds the optional sample consumers
type SinksConfig struct {
	CSV      CSVConfig      `yaml:"csv"`
	Redis    RedisConfig    `yaml:"redis"`
	DebugLog DebugLogConfig `yaml:"debug_log"`
}

// CSVConfig controls the CSV sample log
type CSVConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// RedisConfig controls republishing samples to Redis
type RedisConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password,omitempty"`
	DB         int    `yaml:"db"`
	Channel    string `yaml:"channel"`
	HistoryKey string `yaml:"history_key"`
	History    int64  `yaml:"history"`
}

// DebugLogConfig controls where debug-mode bytes are written
type DebugLogConfig struct {
	Path string `yaml:"path"`
}

// Default returns a Config with default values
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Device: DeviceConfig{
			Port:     "auto",
			Baud:     115200,
			Strategy: "auto",
		},
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      8080,
			Advertise: true,
		},
		Stream: StreamConfig{
			SubscriberBuffer: 256,
		},
		Sinks: SinksConfig{
			CSV: CSVConfig{
				Dir: ".",
			},
			Redis: RedisConfig{
				Addr:       "localhost:6379",
				Channel:    "openbci:samples",
				HistoryKey: "openbci:history",
				History:    2500,
			},
			DebugLog: DebugLogConfig{
				Path: "openbci-debug.jsonl",
			},
		},
	}
}
