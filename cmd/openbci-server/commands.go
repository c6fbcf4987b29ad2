package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/openbci/internal/config"
	"github.com/muurk/openbci/internal/serialport"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long: `List the serial ports on this machine.

Ports marked with * look like an OpenBCI dongle (FTDI USB serial) and are the
ones "--port auto" would pick from.`,
	RunE: runPorts,
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := serialport.ListPorts()
	if err != nil {
		return fmt.Errorf("failed to list serial ports: %w", err)
	}

	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		fmt.Println("\nTroubleshooting:")
		fmt.Println("  - Check that the USB dongle is plugged in")
		fmt.Println("  - On Linux, make sure you are in the dialout group")
		fmt.Println("  - Use '--port sim' to run against the simulated board")
		return nil
	}

	selected, _ := serialport.SelectPort(ports)
	for _, p := range ports {
		marker := " "
		if p.Name == selected {
			marker = "*"
		}
		if p.IsUSB {
			fmt.Printf("%s %-20s USB %s:%s  %s %s\n", marker, p.Name, p.VID, p.PID, p.Product, p.SerialNumber)
		} else {
			fmt.Printf("%s %s\n", marker, p.Name)
		}
	}
	return nil
}

var forceInit bool

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write a default config file",
	Long: `Write the default configuration to the config file.

Without --config the file goes to the OS config directory
(e.g. ~/.config/openbci/config.yaml). Existing files are kept unless --force
is given.`,
	RunE: runInitConfig,
}

func init() {
	initConfigCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing config file")
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.GetConfigPath(); err != nil {
			return err
		}
	}

	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
	}

	if err := config.Default().Save(path); err != nil {
		return err
	}
	fmt.Printf("Wrote default config to %s\n", path)
	return nil
}
