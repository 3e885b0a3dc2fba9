// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long: `List the serial ports available on this machine, with USB details
where the platform provides them.

Examples:
  pumpstat ports
  pumpstat monitor --port /dev/ttyUSB0`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		logger.Debug().Err(err).Msg("detailed port enumeration failed")

		// Fall back to names only
		names, err := serial.GetPortsList()
		if err != nil {
			return fmt.Errorf("failed to list serial ports: %w", err)
		}
		if len(names) == 0 {
			fmt.Fprintln(out, "No serial ports found")
			return nil
		}
		for _, name := range names {
			fmt.Fprintln(out, name)
		}
		return nil
	}

	if len(details) == 0 {
		fmt.Fprintln(out, "No serial ports found")
		return nil
	}
	for _, port := range details {
		if !port.IsUSB {
			fmt.Fprintln(out, port.Name)
			continue
		}
		fmt.Fprintf(out, "%-20s USB %s:%s", port.Name, port.VID, port.PID)
		if port.Product != "" {
			fmt.Fprintf(out, " %s", port.Product)
		}
		if port.SerialNumber != "" {
			fmt.Fprintf(out, " (serial %s)", port.SerialNumber)
		}
		fmt.Fprintln(out)
	}
	return nil
}
