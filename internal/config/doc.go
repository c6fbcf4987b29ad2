// Package config provides configuration management for the OpenBCI service.
//
// The configuration is a versioned YAML file. Keys missing from the file
// keep the values from Default, so a config file only needs the settings
// it changes. Command-line flags override file values.
//
// # Configuration File Location
//
// Unless a path is given, the file is stored in platform-appropriate
// locations:
//   - Linux: $XDG_CONFIG_HOME/openbci/config.yaml or $HOME/.config/openbci/config.yaml
//   - macOS: $HOME/.config/openbci/config.yaml
//   - Windows: %LOCALAPPDATA%\openbci\config.yaml
//
// # Usage Example
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg.Device.Port = "/dev/ttyUSB0"
//	if err := cfg.Save(""); err != nil {
//	    log.Fatal(err)
//	}
//
// # Security
//
// The Redis password, when set, is stored in plain text. Save writes the
// file with user-only permissions.
package config
