// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/pumpstat/internal/config"
	"github.com/Thermoquad/pumpstat/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	cfgPath string

	// Loaded by PersistentPreRunE before any subcommand runs
	cfg      *config.Config
	logger   = zerolog.Nop()
	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "pumpstat",
	Short: "Vacuum pump controller monitor",
	Long: `Pumpstat - A CLI tool for monitoring a turbomolecular vacuum pump controller.

Polls the controller for pressure, turbo speed, pump status and tip seal
life, aggregates a pressure history for plotting and export, and raises
alerts when the device is lost or the tip seal needs service.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 9600]
  WebSocket: --url ws://host/path [--username user]

Settings may also come from pumpstat.yaml (or --config) and PUMPSTAT_*
environment variables; flags take precedence.

For WebSocket authentication, the password is read from the PUMPSTAT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadRuntime,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default ./pumpstat.yaml if present)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringP("port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntP("baud", "b", 9600, "Baud rate (serial only)")
	rootCmd.PersistentFlags().Duration("timeout", time.Second, "Response timeout per command")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringP("url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().String("username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "Log format (console or json)")
	rootCmd.PersistentFlags().String("log-file", "", "Append logs to this file instead of stderr")
}

// loadRuntime resolves configuration and the logger for the command
func loadRuntime(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(cfgPath, cmd.Flags())
	if err != nil {
		return err
	}

	out, closeFn, err := logging.Open(loaded.Logging, os.Stderr)
	if err != nil {
		return err
	}

	cfg = loaded
	closeLog = closeFn
	logger = logging.NewLogger(cfg.Logging, out).With().Str("command", cmd.Name()).Logger()
	logger.Debug().Str("config", cfgPath).Msg("configuration loaded")
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// exitError carries a process exit code out of a command
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// withExitCode wraps err so main exits with code
func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// ExitCode returns the process exit code for an Execute error
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *exitError
	if errors.As(err, &e) {
		return e.code
	}
	return 1
}

// connectionFailed reports a connection error with exit code 2
func connectionFailed(err error) error {
	return withExitCode(2, fmt.Errorf("connection error: %w", err))
}
