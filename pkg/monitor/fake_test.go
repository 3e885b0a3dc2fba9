// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/pumpstat/pkg/pumpproto"
	"github.com/rs/zerolog"
)

// ============================================================
// Test Helpers
// ============================================================

var errLinkDown = errors.New("link down")

// reply builds a controller response: STX ADDR WINDOW MODE DATA ETX CHK
func reply(window string, data string) []byte {
	raw := []byte{pumpproto.STX, pumpproto.Address}
	raw = append(raw, window...)
	raw = append(raw, byte(pumpproto.ModeRead))
	raw = append(raw, data...)
	raw = append(raw, pumpproto.ETX)
	chk := pumpproto.FormatChecksum(pumpproto.Checksum(raw[1:]), true)
	return append(raw, chk[0], chk[1])
}

// fakePump answers command frames like a controller. Fields may be changed
// between ticks; nil override entries fall back to the field values.
type fakePump struct {
	mu sync.Mutex

	units    string // units data byte, "0".."2" or anything else
	pressure string // pressure text, padded before framing
	turbo    string
	tipSeal  string
	status   string
	ack      bool

	// raw replaces the response for a command
	raw map[pumpproto.Command][]byte
	// fail makes Receive fail for a command
	fail map[pumpproto.Command]error
	// tipSeals is consumed one entry per tip-seal read when non-empty
	tipSeals []string

	pending  []byte
	pendErr  error
	sent     []pumpproto.Command
	closed   bool
	closeErr error
}

func newFakePump() *fakePump {
	return &fakePump{
		units:    "2",
		pressure: "1.2E-05",
		turbo:    "081000",
		tipSeal:  "001200",
		status:   "1",
		ack:      true,
		raw:      map[pumpproto.Command][]byte{},
		fail:     map[pumpproto.Command]error{},
	}
}

func commandFor(frame []byte) (pumpproto.Command, bool) {
	for _, c := range pumpproto.Commands {
		if bytes.Equal(pumpproto.CommandFrame(c).Bytes(), frame) {
			return c, true
		}
	}
	return 0, false
}

func (f *fakePump) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return errors.New("send on closed transport")
	}
	c, ok := commandFor(frame)
	if !ok {
		return errors.New("unknown frame")
	}
	f.sent = append(f.sent, c)
	f.pending, f.pendErr = f.respond(c)
	return nil
}

func (f *fakePump) respond(c pumpproto.Command) ([]byte, error) {
	if err := f.fail[c]; err != nil {
		return nil, err
	}
	if raw, ok := f.raw[c]; ok {
		return raw, nil
	}
	switch c {
	case pumpproto.CmdUnits:
		return reply(pumpproto.WindowUnits, "00000"+f.units), nil
	case pumpproto.CmdPressure:
		return reply(pumpproto.WindowPressure, f.pressure+"   "), nil
	case pumpproto.CmdTurboSpeed:
		return reply(pumpproto.WindowTurboSpeed, f.turbo), nil
	case pumpproto.CmdTipSeal:
		value := f.tipSeal
		if len(f.tipSeals) > 0 {
			value, f.tipSeals = f.tipSeals[0], f.tipSeals[1:]
		}
		return reply(pumpproto.WindowTipSeal, value), nil
	case pumpproto.CmdPumpStatus:
		return reply(pumpproto.WindowPumpStatus, f.status), nil
	case pumpproto.CmdStart, pumpproto.CmdStop:
		if f.ack {
			return pumpproto.AckFrame(), nil
		}
		return []byte{pumpproto.STX, pumpproto.Address, 0x15, pumpproto.ETX, '9', '6'}, nil
	}
	return nil, nil
}

func (f *fakePump) Receive(max int, timeout time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := f.pending, f.pendErr
	f.pending, f.pendErr = nil, nil
	if err != nil {
		return nil, err
	}
	if len(raw) > max {
		raw = raw[:max]
	}
	return raw, nil
}

func (f *fakePump) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return f.closeErr
}

func (f *fakePump) set(fn func(f *fakePump)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakePump) count(c pumpproto.Command) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sent {
		if s == c {
			n++
		}
	}
	return n
}

func (f *fakePump) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// eventLog collects engine events.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) handle(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) count(kind EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// newTestEngine returns a connected engine on a fake pump.
func newTestEngine(t *testing.T, pump *fakePump, events *eventLog) *Engine {
	t.Helper()
	opts := DefaultOptions()
	if events != nil {
		opts.OnEvent = events.handle
	}
	e := NewEngine(pump, opts, zerolog.Nop())
	if err := e.Connect(testStart); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return e
}
