// Openbci-monitor is a terminal client for openbci-server.
//
// It finds servers on the local network over mDNS and shows a live view of
// one server's stream: the latest sample per channel, the measured sample
// rate and any lost samples.
//
// Usage:
//
//	openbci-monitor [command] [flags]
//
// See 'openbci-monitor --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/openbci/internal/logging"
	"github.com/muurk/openbci/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "openbci-monitor",
	Short: "OpenBCI stream monitor",
	Long: `A terminal client for openbci-server.

Use 'discover' to find servers on the local network and 'watch' to follow
one server's stream live.`,
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Silent unless OPENBCI_LOG_LEVEL is set, so logs do not
		// overwrite the monitor's screen
		return logging.InitializeFromEnv()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("openbci-monitor %s (commit: %s)\n", version.Version, version.Commit)
	},
}
