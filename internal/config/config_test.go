// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pumpstat.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.StringP("port", "p", "", "")
	fs.IntP("baud", "b", 9600, "")
	fs.Duration("poll-interval", 0, "")
	fs.String("log-level", "", "")
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Serial.Baud != 9600 {
		t.Errorf("Baud = %d, want 9600", cfg.Serial.Baud)
	}
	if cfg.Serial.ReceiveTimeout != time.Second {
		t.Errorf("ReceiveTimeout = %v, want 1s", cfg.Serial.ReceiveTimeout)
	}
	if cfg.Monitor.PollInterval != time.Second || cfg.Monitor.PlotInterval != 5*time.Second {
		t.Errorf("intervals = %v / %v, want 1s / 5s", cfg.Monitor.PollInterval, cfg.Monitor.PlotInterval)
	}
	if cfg.Monitor.History != 24*time.Hour || cfg.Monitor.TipSealInterval != time.Hour {
		t.Errorf("history = %v, tip seal interval = %v", cfg.Monitor.History, cfg.Monitor.TipSealInterval)
	}
	if cfg.Monitor.TipSealLimit != 5000 || cfg.Monitor.AtSpeedRPM != 70000 {
		t.Errorf("limits = %v / %v", cfg.Monitor.TipSealLimit, cfg.Monitor.AtSpeedRPM)
	}
	if !errors.Is(cfg.RequireConnection(), ErrNoConnection) {
		t.Error("RequireConnection should fail without port or url")
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
serial:
  port: /dev/ttyUSB1
  receive_timeout: 250ms
monitor:
  poll_interval: 2s
  plot_interval: 10s
  tip_seal_limit: 4500
alerting:
  telegram:
    enabled: true
    bot_token: abc
    chat_id: "42"
`)
	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Serial.Port != "/dev/ttyUSB1" {
		t.Errorf("Port = %q", cfg.Serial.Port)
	}
	if cfg.Serial.ReceiveTimeout != 250*time.Millisecond {
		t.Errorf("ReceiveTimeout = %v", cfg.Serial.ReceiveTimeout)
	}

	opts := cfg.MonitorOptions()
	if opts.PollInterval != 2*time.Second || opts.PlotInterval != 10*time.Second {
		t.Errorf("options intervals = %v / %v", opts.PollInterval, opts.PlotInterval)
	}
	if opts.TipSealLimit != 4500 || opts.ReceiveTimeout != 250*time.Millisecond {
		t.Errorf("options = %+v", opts)
	}
	if !cfg.Alerting.Telegram.Enabled || cfg.Alerting.Telegram.ChatID != "42" {
		t.Errorf("telegram = %+v", cfg.Alerting.Telegram)
	}
	if cfg.RequireConnection() != nil {
		t.Errorf("RequireConnection = %v", cfg.RequireConnection())
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Error("expected error for a missing explicit config file")
	}
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, `
serial:
  port: /dev/from-file
  baud: 19200
monitor:
  poll_interval: 3s
`)
	t.Setenv("PUMPSTAT_SERIAL_BAUD", "38400")
	t.Setenv("PUMPSTAT_LOGGING_LEVEL", "debug")

	flags := testFlags()
	if err := flags.Parse([]string{"--port", "/dev/from-flag", "--log-level", "warn"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Serial.Port != "/dev/from-flag" {
		t.Errorf("Port = %q, want flag value", cfg.Serial.Port)
	}
	if cfg.Serial.Baud != 38400 {
		t.Errorf("Baud = %d, want env value 38400", cfg.Serial.Baud)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Level = %q, want flag value", cfg.Logging.Level)
	}
	// Unchanged flags do not override the file
	if cfg.Monitor.PollInterval != 3*time.Second {
		t.Errorf("PollInterval = %v, want 3s from file", cfg.Monitor.PollInterval)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"both links", "serial:\n  port: /dev/x\nwebsocket:\n  url: ws://h/\n", "mutually exclusive"},
		{"zero baud", "serial:\n  baud: 0\n", "serial.baud"},
		{"short max response", "serial:\n  max_response: 4\n", "serial.max_response"},
		{"plot faster than poll", "monitor:\n  poll_interval: 10s\n  plot_interval: 5s\n", "monitor.plot_interval"},
		{"short history", "monitor:\n  history: 1s\n", "monitor.history"},
		{"telegram without token", "alerting:\n  telegram:\n    enabled: true\n    chat_id: \"1\"\n", "bot_token"},
		{"telegram without chat", "alerting:\n  telegram:\n    enabled: true\n    bot_token: x\n", "chat_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body), nil)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
