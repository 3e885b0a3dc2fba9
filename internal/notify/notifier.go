// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package notify forwards operator alerts outside the local display.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Thermoquad/pumpstat/pkg/monitor"
	"github.com/rs/zerolog"
)

// Notifier delivers one alert.
type Notifier interface {
	Notify(ctx context.Context, event monitor.Event) error
}

// TelegramNotifier posts alerts through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	source   string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier creates a notifier. source names the monitored link
// in each message.
func NewTelegramNotifier(botToken, chatID, baseURL, source string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		source:   source,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify calls sendMessage with the rendered event.
func (n *TelegramNotifier) Notify(ctx context.Context, event monitor.Event) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(n.source, event),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram returned ok=false")
	}

	n.logger.Info().Str("kind", event.Kind.String()).Msg("alert sent (Telegram)")
	return nil
}

func renderMessage(source string, event monitor.Event) string {
	var b strings.Builder
	b.WriteString("[Pump Alert]\n")
	if source != "" {
		fmt.Fprintf(&b, "Link: %s\n", source)
	}
	fmt.Fprintf(&b, "Time: %s UTC\n", event.Time.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Event: %s\n", event.Kind)
	b.WriteString(event.Message)
	return b.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
