// Openbci-server streams samples from an OpenBCI 8-channel board over HTTP.
//
// It opens the board's serial dongle (or a built-in simulator), decodes the
// 33-byte sample frames and fans the samples out to server-sent event and
// WebSocket clients, a CSV file and Redis. Control endpoints start, stop
// and reset the stream.
//
// Usage:
//
//	openbci-server serve [flags]
//
// See 'openbci-server serve --help' for available options.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/openbci/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "openbci-server",
	Short: "OpenBCI streaming server",
	Long: `A streaming server for OpenBCI 8-channel (ADS1299) boards.

The server owns the serial connection to the board and republishes decoded
samples over HTTP. Any number of clients can watch the stream while a single
process keeps the board configured.

For a live terminal view of a running server, use the separate
'openbci-monitor' utility.`,
	Version: version.Version,
}

var configPath string

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: OS config dir)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(initConfigCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("openbci-server %s (commit: %s)\n", version.Version, version.Commit)
	},
}
