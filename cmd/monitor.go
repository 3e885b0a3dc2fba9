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
	"path/filepath"
	"syscall"
	"time"

	"github.com/Thermoquad/pumpstat/internal/config"
	"github.com/Thermoquad/pumpstat/internal/httpapi"
	"github.com/Thermoquad/pumpstat/internal/metrics"
	"github.com/Thermoquad/pumpstat/internal/notify"
	"github.com/Thermoquad/pumpstat/pkg/monitor"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	eventQueueSize = 64
	closeTimeout   = 5 * time.Second
)

var (
	monitorDuration time.Duration
	monitorText     bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll the pump and display live readings",
	Long: `Connect to the controller, start monitoring and display pressure,
turbo speed, pump status and tip seal life as they are polled.

Display modes:
  TUI (default on a terminal): live readings, statistics and an event log.
    m - start/stop monitoring   s - start pump   x - stop pump
    c - reconnect   e - export CSV/PNG   q - quit
    If the pump is not detected at startup the TUI opens disconnected;
    press c to retry.

  Text (--text, or when stdout is not a terminal): one status line per
    poll plus events, suitable for logging to a file.

With --http-addr, a status endpoint serves /metrics, /api/snapshot,
/api/export.csv and /api/plot.png. Telegram alerts are enabled from the
config file. --csv and --png write the aggregated history on exit.

Examples:
  pumpstat monitor --port /dev/ttyUSB0
  pumpstat monitor --port COM6 --text --duration 1h --csv run.csv --png run.png
  pumpstat monitor --url ws://bridge.local/serial --http-addr :9100`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationVar(&monitorDuration, "duration", 0, "Stop after this long (0 = until quit)")
	monitorCmd.Flags().BoolVar(&monitorText, "text", false, "Plain text output instead of the TUI")
	monitorCmd.Flags().Duration("poll-interval", time.Second, "Interval between poll rounds")
	monitorCmd.Flags().Duration("plot-interval", 5*time.Second, "Interval between aggregated plot points")
	monitorCmd.Flags().String("http-addr", "", "Serve status, metrics and exports on this address")
	monitorCmd.Flags().String("csv", "", "Write the aggregated history as CSV on exit")
	monitorCmd.Flags().String("png", "", "Write the aggregated history as a PNG chart on exit")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if monitorDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, monitorDuration)
		defer cancel()
	}

	useTUI := !monitorText && term.IsTerminal(int(os.Stdout.Fd()))
	log := logger
	if useTUI && cfg.Logging.File == "" {
		// Log lines would tear the TUI
		log = zerolog.Nop()
	}

	conn, connInfo, err := OpenTransport(cfg)
	if err != nil {
		return connectionFailed(err)
	}

	m := metrics.New()
	events := make(chan monitor.Event, eventQueueSize)
	dispatcher := newDispatcher(cfg, connInfo, log)
	if dispatcher != nil {
		go dispatcher.Run(ctx)
	}

	opts := cfg.MonitorOptions()
	opts.OnEvent = func(e monitor.Event) {
		m.ObserveEvent(e)
		if dispatcher != nil {
			dispatcher.Handle(e)
		}
		select {
		case events <- e:
		default:
			log.Debug().Str("kind", e.Kind.String()).Msg("display event queue full")
		}
	}

	loop := monitor.NewLoop(monitor.NewEngine(conn, opts, log), log)
	loop.OnUpdate(m.Observe)

	// The loop outlives ctx so the exit export can still read its buffers
	go loop.Run(context.Background())
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := loop.Close(closeCtx); err != nil {
			log.Warn().Err(err).Msg("monitor did not shut down cleanly")
		}
	}()

	if cfg.HTTP.Addr != "" {
		router := httpapi.NewRouter(loop, m.Handler(), log)
		go func() {
			if err := httpapi.Serve(ctx, cfg.HTTP.Addr, router, log); err != nil {
				log.Error().Err(err).Str("addr", cfg.HTTP.Addr).Msg("http server failed")
			}
		}()
	}

	if err := beginMonitoring(ctx, loop, useTUI, log); err != nil {
		return err
	}

	if useTUI {
		err = runMonitorTUI(ctx, loop, events, connInfo)
	} else {
		err = runMonitorText(ctx, cmd.OutOrStdout(), loop, events, connInfo, cfg.Monitor.PollInterval)
	}
	if err != nil {
		return err
	}

	exportCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return exportFiles(exportCtx, loop, cfg.Export.CSVPath, cfg.Export.PNGPath, log)
}

// beginMonitoring connects and starts polling. In the TUI a failed connect
// is not fatal: the loop stays disconnected and the operator can reconnect.
func beginMonitoring(ctx context.Context, loop *monitor.Loop, interactive bool, log zerolog.Logger) error {
	if err := loop.Connect(ctx); err != nil {
		if !interactive {
			return connectionFailed(err)
		}
		log.Warn().Err(err).Msg("connect failed, waiting for reconnect")
		return nil
	}
	return loop.StartMonitoring(ctx)
}

// newDispatcher returns the Telegram alert dispatcher, or nil when alerting
// is disabled.
func newDispatcher(c *config.Config, source string, log zerolog.Logger) *notify.Dispatcher {
	tg := c.Alerting.Telegram
	if !tg.Enabled {
		return nil
	}
	n := notify.NewTelegramNotifier(tg.BotToken, tg.ChatID, tg.APIBase, source, tg.Timeout, log)
	return notify.NewDispatcher(n, notify.DefaultQueueSize, log)
}

// exportFiles writes the aggregated history to the given paths. Empty
// paths are skipped. A chart with too few points is logged, not failed.
func exportFiles(ctx context.Context, loop *monitor.Loop, csvPath, pngPath string, log zerolog.Logger) error {
	if csvPath != "" {
		if err := writeFile(csvPath, func(w io.Writer) error { return loop.WriteCSV(ctx, w) }); err != nil {
			return fmt.Errorf("export CSV: %w", err)
		}
		log.Info().Str("path", csvPath).Msg("CSV exported")
	}

	if pngPath != "" {
		err := writeFile(pngPath, func(w io.Writer) error { return loop.WritePNG(ctx, w) })
		switch {
		case errors.Is(err, monitor.ErrNotEnoughPoints):
			log.Warn().Str("path", pngPath).Msg("not enough points for a chart, skipped")
		case err != nil:
			return fmt.Errorf("export PNG: %w", err)
		default:
			log.Info().Str("path", pngPath).Msg("chart exported")
		}
	}
	return nil
}

// writeFile writes to a temporary file in the target directory and
// renames it into place.
func writeFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// runMonitorText prints one status line per published snapshot and every
// event until ctx ends.
func runMonitorText(ctx context.Context, out io.Writer, loop *monitor.Loop, events <-chan monitor.Event, connInfo string, interval time.Duration) error {
	fmt.Fprintf(out, "Pumpstat - Monitor\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Press Ctrl+C to exit\n\n")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			s := loop.Snapshot()
			fmt.Fprintf(out, "\n%s", s.Statistics.String())
			return nil

		case e := <-events:
			fmt.Fprintf(out, "%s [%s] %s\n", e.Time.Format("15:04:05.000"), e.Kind, e.Message)

		case <-ticker.C:
			s := loop.Snapshot()
			if !s.Time.After(last) {
				continue
			}
			last = s.Time
			fmt.Fprintln(out, formatStatusLine(s))
		}
	}
}

// formatStatusLine renders the live readings on one line
func formatStatusLine(s monitor.Snapshot) string {
	tip := "--"
	if s.TipSealHours != nil {
		tip = fmt.Sprintf("%.0f h", *s.TipSealHours)
		if s.TipSealAlert {
			tip += " (service)"
		}
	}
	return fmt.Sprintf("%s  P=%s %s  turbo=%s RPM (%s)  pump=%s  tip=%s  state=%s",
		s.Time.Format("15:04:05"), s.Pressure, s.Units, s.Turbo, s.TurboState, s.PumpStatus, tip, s.State)
}
