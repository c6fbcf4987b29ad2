// Package ui provides terminal output for the openbci-monitor CLI.
//
// This package uses Bubble Tea and Lipgloss. There are two kinds of
// output:
//
//   - Run-once output: Header and Result boxes printed through a Printer,
//     such as the server list from the discover command.
//   - The live monitor: MonitorModel, an interactive Bubble Tea program
//     that subscribes to a server's WebSocket stream and shows the latest
//     sample, the measured sample rate and any counter gaps.
//
// # Monitor
//
// The monitor keeps its own watchdog over the sample counters it
// receives, so it reports drops on the path between server and monitor
// as well as the drops the server saw from the board (polled from
// /status every two seconds). Keys b, s and r post start, stop and reset
// to the server's control endpoint.
//
//	target, err := ui.ParseTarget("pi.local:8080")
//	if err != nil {
//	    return err
//	}
//	return ui.RunMonitor(ctx, target)
//
// # Logging Integration
//
// This package expects logging to be controlled via the OPENBCI_LOG_LEVEL
// environment variable. When unset or empty, zap logging is silent, so it
// does not tear through the monitor's screen.
package ui
