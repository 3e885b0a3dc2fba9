// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import "time"

// EventKind identifies an operator-facing event.
type EventKind int

// Event kinds
const (
	EventNotice EventKind = iota
	EventConnected
	EventDeviceLost
	EventDeviceRecovered
	EventTipSealWarning
	EventTransientError
	EventCommandSent
	EventCommandRefused
	EventCommandFailed
)

func (k EventKind) String() string {
	switch k {
	case EventNotice:
		return "notice"
	case EventConnected:
		return "connected"
	case EventDeviceLost:
		return "device_lost"
	case EventDeviceRecovered:
		return "device_recovered"
	case EventTipSealWarning:
		return "tip_seal_warning"
	case EventTransientError:
		return "transient_error"
	case EventCommandSent:
		return "command_sent"
	case EventCommandRefused:
		return "command_refused"
	case EventCommandFailed:
		return "command_failed"
	default:
		return "unknown"
	}
}

// IsAlert reports whether the event should reach an operator outside the
// local display.
func (k EventKind) IsAlert() bool {
	switch k {
	case EventDeviceLost, EventDeviceRecovered, EventTipSealWarning, EventCommandFailed:
		return true
	}
	return false
}

// Event is emitted by the engine on state changes and alerts.
type Event struct {
	Time    time.Time
	Kind    EventKind
	Message string
}

// EventHandler receives engine events on the engine goroutine.
// It must not block.
type EventHandler func(Event)
