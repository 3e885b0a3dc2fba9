// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/Thermoquad/pumpstat/pkg/monitor"
	"github.com/Thermoquad/pumpstat/pkg/pumpproto"
	"github.com/spf13/cobra"
)

var (
	rawLogCount    int
	rawLogInterval time.Duration
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Query every read command and print raw and decoded responses",
	Long: `Send each read command to the controller and print the frame sent,
the raw response bytes and the decoded value.

Write commands (start/stop) are never sent; use "pumpstat pump" for those.
With --count 0 the queries repeat until interrupted.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().IntVar(&rawLogCount, "count", 1, "Number of query rounds (0 = until interrupted)")
	rawLogCmd.Flags().DurationVar(&rawLogInterval, "interval", time.Second, "Delay between rounds")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	conn, connInfo, err := OpenTransport(cfg)
	if err != nil {
		return connectionFailed(err)
	}
	defer conn.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Pumpstat - Raw Response Log\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	if rawLogCount == 0 {
		fmt.Fprintf(out, "Press Ctrl+C to exit\n")
	}
	fmt.Fprintln(out)

	for round := 1; rawLogCount == 0 || round <= rawLogCount; round++ {
		if round > 1 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(rawLogInterval):
			}
		}

		if err := queryAll(ctx, conn, out); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
	return nil
}

// queryAll sends every read command once. A failed exchange is printed and
// the round continues; a closed link ends it.
func queryAll(ctx context.Context, conn monitor.Transport, out io.Writer) error {
	fmt.Fprintf(out, "[%s]\n", time.Now().Format("15:04:05.000"))

	for _, c := range pumpproto.Commands {
		if c.IsWrite() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		frame := pumpproto.CommandFrame(c)
		fmt.Fprintf(out, "  → %s\n", pumpproto.FormatFrame(c, frame))

		if err := conn.Send(frame.Bytes()); err != nil {
			fmt.Fprintf(out, "  ✗ send failed: %v\n", err)
			if errors.Is(err, ErrConnectionClosed) {
				return err
			}
			continue
		}

		raw, err := conn.Receive(cfg.Serial.MaxResponse, cfg.Serial.ReceiveTimeout)
		if err != nil {
			fmt.Fprintf(out, "  ✗ receive failed: %v\n", err)
			if errors.Is(err, ErrConnectionClosed) {
				return err
			}
			continue
		}

		fmt.Fprintf(out, "  ← [%s]\n", pumpproto.FormatHex(raw))
		fmt.Fprintf(out, "    %s\n", pumpproto.FormatResponse(c, raw))
		logger.Debug().Stringer("command", c).Int("bytes", len(raw)).Msg("response received")
	}
	fmt.Fprintln(out)
	return nil
}
