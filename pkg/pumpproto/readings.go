// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pumpproto

// Unit is the pressure unit configured on the controller.
type Unit int

// Unit values
const (
	UnitUnknown Unit = iota
	UnitMBar
	UnitPascal
	UnitTorr
)

// String returns the display name of the unit. UnitUnknown renders as the
// units-read failure sentinel.
func (u Unit) String() string {
	switch u {
	case UnitMBar:
		return "mBar"
	case UnitPascal:
		return "Pascal"
	case UnitTorr:
		return "Torr"
	default:
		return UnitsFailedText
	}
}

// PumpStatus is the run/stop state reported by the controller.
type PumpStatus int

// Pump status values
const (
	PumpUnknown PumpStatus = iota
	PumpRunning
	PumpStopped
)

func (s PumpStatus) String() string {
	switch s {
	case PumpRunning:
		return "Running"
	case PumpStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Pressure is the pressure value as sent by the controller. The text is kept
// verbatim (it may carry an exponent and sign); use Value for a number.
type Pressure struct {
	Text string
}

// Present reports whether any pressure text was received.
func (p Pressure) Present() bool {
	return p.Text != ""
}

// Value extracts the numeric pressure.
func (p Pressure) Value() (float64, bool) {
	return ExtractNumber(p.Text)
}

// TurboSpeed is the turbo rotation speed text with leading zeros removed.
type TurboSpeed struct {
	Text    string
	Present bool
}

// RPM extracts the numeric speed.
func (t TurboSpeed) RPM() (float64, bool) {
	if !t.Present {
		return 0, false
	}
	return ExtractNumber(t.Text)
}

// TipSealHours is the accumulated tip-seal running time.
type TipSealHours struct {
	Hours   float64
	Present bool
}

// MarshalText implements encoding.TextMarshaler
func (u Unit) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// MarshalText implements encoding.TextMarshaler
func (s PumpStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
