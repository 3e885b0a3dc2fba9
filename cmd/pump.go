// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Thermoquad/pumpstat/pkg/monitor"
	"github.com/spf13/cobra"
)

var pumpCmd = &cobra.Command{
	Use:       "pump start|stop",
	Short:     "Start or stop the pump",
	ValidArgs: []string{"start", "stop"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Long: `Connect to the controller, read its current status and send a start
or stop command.

Start is refused unless the pump is stopped and the turbo reads 0 RPM.
Stop is always sent.

Exit codes:
  0 - Command acknowledged
  1 - Command refused, failed or not acknowledged
  2 - Connection error`,
	RunE: runPump,
}

func init() {
	rootCmd.AddCommand(pumpCmd)
}

func runPump(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenTransport(cfg)
	if err != nil {
		return connectionFailed(err)
	}

	out := cmd.OutOrStdout()
	opts := cfg.MonitorOptions()
	opts.OnEvent = printEvent(out)

	engine := monitor.NewEngine(conn, opts, logger)
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing transport")
		}
	}()

	fmt.Fprintf(out, "Pumpstat - Pump Control\n")
	fmt.Fprintf(out, "Connection: %s\n\n", connInfo)

	if err := engine.Connect(time.Now()); err != nil {
		return connectionFailed(err)
	}
	s := engine.Snapshot(time.Now())
	fmt.Fprintf(out, "Status: %s   Turbo: %s (%s)\n", s.PumpStatus, s.Turbo, s.TurboState)

	switch args[0] {
	case "start":
		err = engine.StartPump(time.Now())
	case "stop":
		err = engine.StopPump(time.Now())
	}
	if err != nil {
		if errors.Is(err, monitor.ErrPrecondition) {
			return fmt.Errorf("start refused: %w", err)
		}
		return err
	}

	fmt.Fprintf(out, "Pump %s acknowledged\n", args[0])
	return nil
}

// printEvent writes engine events as timestamped lines
func printEvent(out io.Writer) monitor.EventHandler {
	return func(e monitor.Event) {
		fmt.Fprintf(out, "%s %s\n", e.Time.Format("15:04:05.000"), e.Message)
	}
}
