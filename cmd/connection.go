// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Thermoquad/pumpstat/internal/config"
	"github.com/Thermoquad/pumpstat/pkg/monitor"
	"github.com/Thermoquad/pumpstat/pkg/pumpproto"
	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// PasswordEnv holds the WebSocket Basic auth password.
const PasswordEnv = "PUMPSTAT_PASSWORD"

// ErrConnectionClosed is returned when the WebSocket bridge has gone away
var ErrConnectionClosed = errors.New("websocket connection closed")

// frameComplete reports whether buf ends with ETX and two checksum bytes.
// Response payloads are ASCII, so ETX only appears in the trailer.
func frameComplete(buf []byte) bool {
	n := len(buf)
	return n >= pumpproto.HeaderSize && buf[n-pumpproto.TrailerSize] == pumpproto.ETX
}

//////////////////////////////////////////////////////////////
// Serial
//////////////////////////////////////////////////////////////

// SerialTransport talks to the controller over a local serial port
type SerialTransport struct {
	port serial.Port
}

// Send discards unread input left over from a timed-out exchange, then
// writes the frame.
func (s *SerialTransport) Send(frame []byte) error {
	if err := s.port.ResetInputBuffer(); err != nil {
		return err
	}
	for len(frame) > 0 {
		n, err := s.port.Write(frame)
		if err != nil {
			return err
		}
		frame = frame[n:]
	}
	return nil
}

// Receive reads until max bytes, a complete frame, or the timeout. A
// timeout is not an error; whatever arrived is returned.
func (s *SerialTransport) Receive(max int, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	out := make([]byte, 0, max)
	buf := make([]byte, max)

	for len(out) < max {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := s.port.SetReadTimeout(remaining); err != nil {
			return out, err
		}
		n, err := s.port.Read(buf[:max-len(out)])
		if err != nil {
			return out, err
		}
		if n == 0 {
			break // timed out
		}
		out = append(out, buf[:n]...)
		if frameComplete(out) {
			break
		}
	}
	return out, nil
}

func (s *SerialTransport) Close() error {
	return s.port.Close()
}

// OpenSerialTransport opens a serial port with 8N1 framing
func OpenSerialTransport(portName string, baudRate int) (*SerialTransport, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return &SerialTransport{port: port}, nil
}

//////////////////////////////////////////////////////////////
// WebSocket
//////////////////////////////////////////////////////////////

// WebSocketTransport talks to the controller through a WebSocket serial
// bridge that relays raw bytes as binary messages. A reader goroutine
// queues incoming messages so a Receive timeout never poisons the socket.
type WebSocketTransport struct {
	conn     *websocket.Conn
	messages chan []byte
	pending  []byte

	mu        sync.Mutex
	readErr   error
	done      chan struct{}
	closing   chan struct{}
	closeOnce sync.Once
}

func newWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	w := &WebSocketTransport{
		conn:     conn,
		messages: make(chan []byte, 16),
		done:     make(chan struct{}),
		closing:  make(chan struct{}),
	}
	go w.readLoop()
	return w
}

func (w *WebSocketTransport) readLoop() {
	defer close(w.done)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			w.readErr = err
			w.mu.Unlock()
			return
		}
		// Only binary messages carry serial bytes
		if messageType != websocket.BinaryMessage {
			continue
		}
		select {
		case w.messages <- data:
		case <-w.closing:
			return
		}
	}
}

func (w *WebSocketTransport) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.readErr != nil {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, w.readErr)
	}
	return ErrConnectionClosed
}

// Send drops stale bytes, then writes the frame as one binary message.
func (w *WebSocketTransport) Send(frame []byte) error {
	w.pending = nil
	for drained := false; !drained; {
		select {
		case <-w.messages:
		default:
			drained = true
		}
	}
	return w.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Receive collects bytes until max, a complete frame, or the timeout.
func (w *WebSocketTransport) Receive(max int, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	out := w.pending
	w.pending = nil
	for len(out) < max && !frameComplete(out) {
		select {
		case data := <-w.messages:
			out = append(out, data...)
		case <-w.done:
			return out, w.err()
		case <-timer.C:
			return out, nil
		}
	}
	if len(out) > max {
		w.pending = append([]byte(nil), out[max:]...)
		out = out[:max]
	}
	return out, nil
}

func (w *WebSocketTransport) Close() error {
	w.closeOnce.Do(func() { close(w.closing) })
	return w.conn.Close()
}

// OpenWebSocketTransport opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketTransport(wsURL, username, password string, skipSSLVerify bool) (*WebSocketTransport, error) {
	// Parse and validate URL
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return newWebSocketTransport(conn), nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenTransport opens either a serial or WebSocket transport based on the
// configuration. The returned string describes the link.
func OpenTransport(cfg *config.Config) (monitor.Transport, string, error) {
	if err := cfg.RequireConnection(); err != nil {
		return nil, "", err
	}

	if cfg.WebSocket.URL != "" {
		password := ""
		if cfg.WebSocket.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		t, err := OpenWebSocketTransport(cfg.WebSocket.URL, cfg.WebSocket.Username, password, cfg.WebSocket.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return t, fmt.Sprintf("WebSocket: %s", cfg.WebSocket.URL), nil
	}

	t, err := OpenSerialTransport(cfg.Serial.Port, cfg.Serial.Baud)
	if err != nil {
		return nil, "", err
	}
	return t, fmt.Sprintf("Serial: %s @ %d baud", cfg.Serial.Port, cfg.Serial.Baud), nil
}
