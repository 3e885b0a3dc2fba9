// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package pumpproto implements the query/response serial protocol spoken by
// the vacuum pump controller.
//
// Requests are fixed ASCII-windowed frames:
//
//	STX ADDR WINDOW(3 digits) MODE [DATA] ETX CHK(2 hex chars)
//
// Responses are read as raw byte blocks and decoded positionally. The
// checksum trailer of a response is never validated; field offsets are
// measured from both ends of whatever was received so a short read decodes
// to an absent value instead of failing.
package pumpproto

// Protocol framing bytes
const (
	STX     = 0x02
	ETX     = 0x03
	Address = 0x80
	ACK     = 0x06
)

// Mode selects between reading and writing a window.
type Mode byte

// Mode values
const (
	ModeRead  Mode = 0x30
	ModeWrite Mode = 0x31
)

// Window numbers, as sent on the wire
const (
	WindowStartStop  = "000"
	WindowUnits      = "163"
	WindowPumpStatus = WindowStartStop
	WindowPressure   = "224"
	WindowTurboSpeed = "226"
	WindowTipSeal    = "358"
)

// Frame geometry
const (
	// HeaderSize is the STX + ADDR + WINDOW + MODE prefix echoed in responses.
	HeaderSize = 6
	// TrailerSize is ETX + the two checksum characters.
	TrailerSize = 3
	// MaxResponseSize is the number of bytes requested for every response.
	MaxResponseSize = 100

	// TailPressure is the number of bytes dropped from the end of a pressure
	// response before the value text.
	TailPressure = 6
	// TailData is the number of bytes dropped from the end of every other
	// data response.
	TailData = TrailerSize
)

// UnitsFailedText is reported in place of a unit when the units read fails.
// The monitor treats it as "device disconnected".
const UnitsFailedText = "Get units failed."
