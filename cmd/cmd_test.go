// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/pumpstat/pkg/monitor"
	"github.com/Thermoquad/pumpstat/pkg/pumpproto"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
)

// ============================================================
// Frames Command Tests
// ============================================================

func TestCheckFrames(t *testing.T) {
	var out bytes.Buffer
	if n := checkFrames(&out, true); n != 0 {
		t.Fatalf("checkFrames reported %d mismatches:\n%s", n, out.String())
	}

	text := out.String()
	for _, c := range pumpproto.Commands {
		if !strings.Contains(text, c.String()) {
			t.Errorf("output missing %s", c)
		}
	}
	// The start frame checksum has a letter, so a lowercase variant exists
	if !strings.Contains(text, "lowercase") {
		t.Error("output missing lowercase variants")
	}
}

// ============================================================
// Exit Code Tests
// ============================================================

func TestExitCode(t *testing.T) {
	base := errors.New("no such port")
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain", base, 1},
		{"connection", connectionFailed(base), 2},
		{"wrapped connection", fmt.Errorf("monitor: %w", connectionFailed(base)), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode = %d, want %d", got, tt.want)
			}
		})
	}

	if !errors.Is(connectionFailed(base), base) {
		t.Error("connectionFailed does not unwrap to its cause")
	}
}

// ============================================================
// Export File Tests
// ============================================================

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs", "out.csv")

	err := writeFile(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "timestamp,seconds,pressure,units\n")
		return err
	})
	if err != nil {
		t.Fatalf("writeFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.HasPrefix(string(data), "timestamp,") {
		t.Errorf("content = %q", data)
	}
}

func TestWriteFile_FailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plot.png")

	err := writeFile(path, func(w io.Writer) error {
		io.WriteString(w, "partial")
		return monitor.ErrNotEnoughPoints
	})
	if !errors.Is(err, monitor.ErrNotEnoughPoints) {
		t.Fatalf("err = %v, want ErrNotEnoughPoints", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("directory not empty after failed write: %v", entries)
	}
}

// ============================================================
// Startup Tests
// ============================================================

// silentTransport accepts every frame and never answers.
type silentTransport struct{}

func (silentTransport) Send(p []byte) error { return nil }

func (silentTransport) Receive(max int, timeout time.Duration) ([]byte, error) {
	return nil, nil
}

func (silentTransport) Close() error { return nil }

func newSilentLoop(t *testing.T) *monitor.Loop {
	t.Helper()
	opts := monitor.DefaultOptions()
	opts.ReceiveTimeout = time.Millisecond
	loop := monitor.NewLoop(monitor.NewEngine(silentTransport{}, opts, zerolog.Nop()), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-loop.Done()
	})
	return loop
}

func TestBeginMonitoring_PumpNotDetected(t *testing.T) {
	ctx := context.Background()

	t.Run("text", func(t *testing.T) {
		err := beginMonitoring(ctx, newSilentLoop(t), false, zerolog.Nop())
		if !errors.Is(err, monitor.ErrPumpNotDetected) {
			t.Fatalf("err = %v, want ErrPumpNotDetected", err)
		}
		if ExitCode(err) != 2 {
			t.Errorf("ExitCode = %d, want 2", ExitCode(err))
		}
	})

	t.Run("tui", func(t *testing.T) {
		loop := newSilentLoop(t)
		if err := beginMonitoring(ctx, loop, true, zerolog.Nop()); err != nil {
			t.Fatalf("err = %v, want nil", err)
		}
		if s := loop.Snapshot(); s.State != monitor.StateDisconnected {
			t.Errorf("State = %v, want Disconnected", s.State)
		}
	})
}

// ============================================================
// Display Helper Tests
// ============================================================

func TestSparkline(t *testing.T) {
	points := []monitor.PlotPoint{
		{Pressure: 1e-3},
		{Pressure: 1e-4},
		{Pressure: -1},
		{Pressure: 1e-5},
	}
	got := []rune(sparkline(points))
	if len(got) != 4 {
		t.Fatalf("sparkline = %q, want 4 cells", string(got))
	}
	if got[0] != '█' || got[3] != '▁' {
		t.Errorf("sparkline = %q, want highest first and lowest last", string(got))
	}
	if got[2] != ' ' {
		t.Errorf("missing pressure drawn as %q, want a gap", got[2])
	}

	if s := sparkline(nil); s != "--" {
		t.Errorf("empty sparkline = %q", s)
	}
	if s := sparkline([]monitor.PlotPoint{{Pressure: 0}}); s != "--" {
		t.Errorf("sparkline without positive points = %q", s)
	}
	if s := sparkline([]monitor.PlotPoint{{Pressure: 2e-6}, {Pressure: 2e-6}}); s != "▁▁" {
		t.Errorf("flat sparkline = %q", s)
	}
}

func TestFormatStatusLine(t *testing.T) {
	hours := 5200.0
	s := monitor.Snapshot{
		Time:         time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC),
		State:        monitor.StateMonitoring,
		Pressure:     "1.2E-05",
		Units:        pumpproto.UnitTorr,
		Turbo:        "081000",
		TurboState:   monitor.TurboAtSpeed,
		TipSealHours: &hours,
		TipSealAlert: true,
		PumpStatus:   pumpproto.PumpRunning,
	}
	line := formatStatusLine(s)
	for _, want := range []string{"12:00:05", "P=1.2E-05 Torr", "turbo=081000 RPM (At Speed)", "tip=5200 h (service)"} {
		if !strings.Contains(line, want) {
			t.Errorf("status line %q missing %q", line, want)
		}
	}

	s.TipSealHours = nil
	if line := formatStatusLine(s); !strings.Contains(line, "tip=--") {
		t.Errorf("status line without tip seal = %q", line)
	}
}

// ============================================================
// TUI Model Tests
// ============================================================

func TestMonitorModel_EventLog(t *testing.T) {
	events := make(chan monitor.Event)
	m := initialMonitorModel(context.Background(), nil, events, "Serial: test")
	m.maxLogEntries = 3

	for i := range 5 {
		e := monitor.Event{Time: time.Now(), Kind: monitor.EventDeviceLost, Message: fmt.Sprintf("event %d", i)}
		next, cmd := m.Update(monitorEventMsg(e))
		m = next.(monitorModel)
		if cmd == nil {
			t.Fatal("event message did not wait for the next event")
		}
	}

	if len(m.eventLog) != 3 {
		t.Fatalf("eventLog = %d entries, want 3", len(m.eventLog))
	}
	if m.eventLog[0].message != "event 2" {
		t.Errorf("oldest entry = %q, want \"event 2\"", m.eventLog[0].message)
	}
	if !m.eventLog[2].isError {
		t.Error("device lost not shown as an error")
	}
	if !strings.Contains(m.View(), "event 4") {
		t.Error("view missing latest event")
	}
}

func TestMonitorModel_ExportPrompt(t *testing.T) {
	m := initialMonitorModel(context.Background(), nil, nil, "Serial: test")

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("e")})
	m = next.(monitorModel)
	if !m.exporting {
		t.Fatal("e did not open the export prompt")
	}
	if !strings.HasPrefix(m.exportInput.Value(), "pumpstat-") {
		t.Errorf("default prefix = %q", m.exportInput.Value())
	}

	// Keys go to the prompt, not the bindings
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m = next.(monitorModel)
	if m.quitting {
		t.Fatal("q quit while typing a prefix")
	}

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(monitorModel)
	if m.exporting || cmd != nil {
		t.Error("esc did not close the prompt")
	}
}

func TestMonitorModel_ActionResult(t *testing.T) {
	m := initialMonitorModel(context.Background(), nil, nil, "Serial: test")

	next, _ := m.Update(actionDoneMsg{action: "Start pump", err: monitor.ErrPrecondition})
	m = next.(monitorModel)
	if len(m.eventLog) != 1 || !m.eventLog[0].isError {
		t.Fatalf("eventLog = %+v, want one error", m.eventLog)
	}
	if !strings.Contains(m.eventLog[0].message, "Start pump") {
		t.Errorf("message = %q", m.eventLog[0].message)
	}

	next, _ = m.Update(actionDoneMsg{action: "Stop pump"})
	m = next.(monitorModel)
	if len(m.eventLog) != 1 {
		t.Error("successful action added a log entry")
	}

	next, _ = m.Update(exportDoneMsg{files: []string{"a.csv", "a.png"}})
	m = next.(monitorModel)
	if got := m.eventLog[len(m.eventLog)-1].message; got != "Exported a.csv, a.png" {
		t.Errorf("export message = %q", got)
	}
}

func TestMonitorModel_Quit(t *testing.T) {
	m := initialMonitorModel(context.Background(), nil, nil, "Serial: test")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !next.(monitorModel).quitting {
		t.Error("q did not quit")
	}
	if cmd == nil {
		t.Error("q returned no command")
	}
}
