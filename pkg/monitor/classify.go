// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import "github.com/Thermoquad/pumpstat/pkg/pumpproto"

// DefaultAtSpeedRPM is the turbo speed above which the pump is at speed.
const DefaultAtSpeedRPM = 70000

// TurboState classifies the turbo pump speed.
type TurboState int

// Turbo state values
const (
	TurboUnknown TurboState = iota
	TurboStopped
	TurboStartingStopping
	TurboAtSpeed
)

func (s TurboState) String() string {
	switch s {
	case TurboStopped:
		return "Stopped"
	case TurboStartingStopping:
		return "Starting/Stopping"
	case TurboAtSpeed:
		return "At Speed"
	default:
		return "Unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s TurboState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ClassifyRPM classifies a numeric turbo speed. The boundary value atSpeed
// itself is still Starting/Stopping. Negative speeds are Unknown.
func ClassifyRPM(rpm float64, atSpeed float64) TurboState {
	switch {
	case rpm > atSpeed:
		return TurboAtSpeed
	case rpm == 0:
		return TurboStopped
	case rpm > 0:
		return TurboStartingStopping
	default:
		return TurboUnknown
	}
}

// ClassifyTurbo classifies a decoded turbo speed. Absent or unparsable
// speeds are Unknown.
func ClassifyTurbo(speed pumpproto.TurboSpeed, atSpeed float64) TurboState {
	rpm, ok := speed.RPM()
	if !ok {
		return TurboUnknown
	}
	return ClassifyRPM(rpm, atSpeed)
}
