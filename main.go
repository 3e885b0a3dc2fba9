// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Pumpstat - Vacuum Pump Controller Monitor
//
// A CLI tool for polling a turbomolecular pump controller over serial or a
// WebSocket bridge, with a live TUI, alerting and CSV/PNG export.

package main

import (
	"os"

	"github.com/Thermoquad/pumpstat/cmd"
)

func main() {
	// cobra already printed the error
	os.Exit(cmd.ExitCode(cmd.Execute()))
}
