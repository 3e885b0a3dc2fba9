// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/pumpstat/internal/logging"
	"github.com/Thermoquad/pumpstat/pkg/monitor"
	"github.com/Thermoquad/pumpstat/pkg/pumpproto"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PUMPSTAT_SERIAL_PORT.
const EnvPrefix = "PUMPSTAT"

// ErrNoConnection is returned by RequireConnection when neither a serial
// port nor a WebSocket URL is configured.
var ErrNoConnection = errors.New("either serial.port (--port) or websocket.url (--url) is required")

// Config materialises application configuration.
type Config struct {
	Serial    SerialConfig    `mapstructure:"serial"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Logging   logging.Config  `mapstructure:"logging"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// SerialConfig describes the direct serial link to the controller.
type SerialConfig struct {
	Port           string        `mapstructure:"port"`
	Baud           int           `mapstructure:"baud"`
	ReceiveTimeout time.Duration `mapstructure:"receive_timeout"`
	MaxResponse    int           `mapstructure:"max_response"`
}

// WebSocketConfig describes a serial bridge reached over WebSocket.
type WebSocketConfig struct {
	URL         string `mapstructure:"url"`
	Username    string `mapstructure:"username"`
	NoSSLVerify bool   `mapstructure:"no_ssl_verify"`
}

// MonitorConfig governs polling cadence and alert thresholds.
type MonitorConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	PlotInterval    time.Duration `mapstructure:"plot_interval"`
	History         time.Duration `mapstructure:"history"`
	TipSealInterval time.Duration `mapstructure:"tip_seal_interval"`
	TipSealLimit    float64       `mapstructure:"tip_seal_limit"`
	AtSpeedRPM      float64       `mapstructure:"at_speed_rpm"`
}

// HTTPConfig enables the status and metrics endpoint when Addr is set.
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// AlertingConfig routes operator alerts.
type AlertingConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram alert delivery.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ExportConfig sets where the monitor writes its data on exit.
type ExportConfig struct {
	CSVPath string `mapstructure:"csv_path"`
	PNGPath string `mapstructure:"png_path"`
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"port":          "serial.port",
	"baud":          "serial.baud",
	"timeout":       "serial.receive_timeout",
	"url":           "websocket.url",
	"username":      "websocket.username",
	"no-ssl-verify": "websocket.no_ssl_verify",
	"log-level":     "logging.level",
	"log-format":    "logging.format",
	"log-file":      "logging.file",
	"poll-interval": "monitor.poll_interval",
	"plot-interval": "monitor.plot_interval",
	"http-addr":     "http.addr",
	"csv":           "export.csv_path",
	"png":           "export.png_path",
}

// Load builds configuration from defaults, an optional file, the
// environment and command line flags, in increasing priority.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pumpstat")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v, path != ""); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper, explicit bool) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !explicit && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// setDefaults registers every key, including empty ones, so AutomaticEnv
// overrides reach Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud", 9600)
	v.SetDefault("serial.receive_timeout", "1s")
	v.SetDefault("serial.max_response", pumpproto.MaxResponseSize)

	v.SetDefault("websocket.url", "")
	v.SetDefault("websocket.username", "")
	v.SetDefault("websocket.no_ssl_verify", false)

	v.SetDefault("monitor.poll_interval", "1s")
	v.SetDefault("monitor.plot_interval", "5s")
	v.SetDefault("monitor.history", "24h")
	v.SetDefault("monitor.tip_seal_interval", "1h")
	v.SetDefault("monitor.tip_seal_limit", float64(monitor.DefaultTipSealLimit))
	v.SetDefault("monitor.at_speed_rpm", float64(monitor.DefaultAtSpeedRPM))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file", "")

	v.SetDefault("http.addr", "")

	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")

	v.SetDefault("export.csv_path", "")
	v.SetDefault("export.png_path", "")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Serial.Port != "" && c.WebSocket.URL != "" {
		return fmt.Errorf("serial.port and websocket.url are mutually exclusive")
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be greater than zero")
	}
	if c.Serial.ReceiveTimeout <= 0 {
		return fmt.Errorf("serial.receive_timeout must be greater than zero")
	}
	if c.Serial.MaxResponse < pumpproto.HeaderSize+pumpproto.TrailerSize {
		return fmt.Errorf("serial.max_response must be at least %d", pumpproto.HeaderSize+pumpproto.TrailerSize)
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be greater than zero")
	}
	if c.Monitor.PlotInterval < c.Monitor.PollInterval {
		return fmt.Errorf("monitor.plot_interval must not be shorter than monitor.poll_interval")
	}
	if c.Monitor.History < c.Monitor.PlotInterval {
		return fmt.Errorf("monitor.history must not be shorter than monitor.plot_interval")
	}
	if c.Monitor.TipSealInterval <= 0 {
		return fmt.Errorf("monitor.tip_seal_interval must be greater than zero")
	}
	if c.Monitor.TipSealLimit <= 0 {
		return fmt.Errorf("monitor.tip_seal_limit must be greater than zero")
	}
	if c.Monitor.AtSpeedRPM <= 0 {
		return fmt.Errorf("monitor.at_speed_rpm must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// RequireConnection checks that a link to the controller is configured.
func (c *Config) RequireConnection() error {
	if c.Serial.Port == "" && c.WebSocket.URL == "" {
		return ErrNoConnection
	}
	return nil
}

// MonitorOptions converts the monitor and serial sections into engine
// options.
func (c *Config) MonitorOptions() monitor.Options {
	return monitor.Options{
		PollInterval:    c.Monitor.PollInterval,
		PlotInterval:    c.Monitor.PlotInterval,
		History:         c.Monitor.History,
		TipSealInterval: c.Monitor.TipSealInterval,
		TipSealLimit:    c.Monitor.TipSealLimit,
		AtSpeedRPM:      c.Monitor.AtSpeedRPM,
		ReceiveTimeout:  c.Serial.ReceiveTimeout,
		MaxResponse:     c.Serial.MaxResponse,
	}
}
