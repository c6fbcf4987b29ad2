package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/openbci/internal/discovery"
	"github.com/muurk/openbci/internal/ui"
)

var (
	scanTimeout int
	instance    string
)

var watchCmd = &cobra.Command{
	Use:   "watch [server]",
	Short: "Follow a server's stream live",
	Long: `Show a live view of a server's sample stream.

The server can be given as host:port, an http:// base URL or the ws:// stream
URL. Without an argument the monitor looks the server up over mDNS: the one
named by --instance, or the only one on the network.

Keys: b start streaming, s stop, r reset the board, q quit.`,
	Example: `  # Follow a server by address
  openbci-monitor watch pi.local:8080

  # Find the server over mDNS
  openbci-monitor watch

  # Pick one of several servers by instance name
  openbci-monitor watch --instance lab-pi`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&instance, "instance", "", "mDNS instance name of the server")
	watchCmd.Flags().IntVar(&scanTimeout, "timeout", 5, "Discovery timeout in seconds")
	discoverCmd.Flags().IntVar(&scanTimeout, "timeout", 5, "Scan timeout in seconds")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var address string
	if len(args) == 1 {
		address = args[0]
	} else {
		svc, err := findServer(ctx)
		if err != nil {
			return err
		}
		address = svc.BaseURL()
	}

	target, err := ui.ParseTarget(address)
	if err != nil {
		return err
	}

	if err := ui.RunMonitor(ctx, target); err != nil {
		ui.NewPrinter(nil).PrintError("Stream ended", err, []string{
			"Check that openbci-server is still running",
			"Check that the board is connected (GET /status)",
		})
		return err
	}
	return nil
}

// findServer resolves the server to watch over mDNS
func findServer(ctx context.Context) (*discovery.Service, error) {
	scanner := discovery.NewScanner()
	scanner.Timeout = time.Duration(scanTimeout) * time.Second

	if instance != "" {
		return scanner.WaitFor(ctx, instance)
	}

	services, err := scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}
	switch len(services) {
	case 0:
		return nil, fmt.Errorf("no OpenBCI servers found, give the server address as an argument")
	case 1:
		return services[0], nil
	default:
		return nil, fmt.Errorf("found %d servers, choose one with --instance (see 'openbci-monitor discover')", len(services))
	}
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find OpenBCI servers on the network",
	Long: `Find running openbci-server instances using mDNS/DNS-SD.

Servers advertise themselves as ` + discovery.ServiceType + ` unless started with
--no-advertise.`,
	Example: `  # Scan for 5 seconds (default)
  openbci-monitor discover

  # Longer scan for busy networks
  openbci-monitor discover --timeout 15`,
	RunE: runDiscover,
}

func runDiscover(cmd *cobra.Command, args []string) error {
	fmt.Printf("Scanning for OpenBCI servers (timeout: %ds)...\n\n", scanTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scanner := discovery.NewScanner()
	scanner.Timeout = time.Duration(scanTimeout) * time.Second

	services, err := scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	ui.NewPrinter(nil).PrintServices(services)
	if len(services) > 0 {
		fmt.Println("\nUse 'openbci-monitor watch <address>' to follow a stream")
	}
	return nil
}
