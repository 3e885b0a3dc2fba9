// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pumpproto

import (
	"bytes"
	"fmt"
)

// Frame is an encoded command frame. Frames are built once and never mutated;
// Bytes returns a copy for callers that need to hand the data to a writer
// that may retain it.
type Frame struct {
	data []byte
}

// Bytes returns a copy of the wire bytes.
func (f Frame) Bytes() []byte {
	return append([]byte(nil), f.data...)
}

// Len returns the frame length in bytes.
func (f Frame) Len() int {
	return len(f.data)
}

// Window returns the three window digits of the frame.
func (f Frame) Window() string {
	if len(f.data) < 5 {
		return ""
	}
	return string(f.data[2:5])
}

// Mode returns the read/write mode byte of the frame.
func (f Frame) Mode() Mode {
	if len(f.data) < 6 {
		return 0
	}
	return Mode(f.data[5])
}

// Equal reports whether two frames carry the same bytes.
func (f Frame) Equal(other Frame) bool {
	return bytes.Equal(f.data, other.data)
}

// Build encodes a command frame with an uppercase checksum.
func Build(window string, mode Mode, payload []byte) (Frame, error) {
	return build(window, mode, payload, true)
}

// BuildLower encodes a command frame with a lowercase checksum.
func BuildLower(window string, mode Mode, payload []byte) (Frame, error) {
	return build(window, mode, payload, false)
}

func build(window string, mode Mode, payload []byte, upper bool) (Frame, error) {
	if len(window) != 3 {
		return Frame{}, fmt.Errorf("window must be 3 digits, got %q", window)
	}
	for i := 0; i < len(window); i++ {
		if window[i] < '0' || window[i] > '9' {
			return Frame{}, fmt.Errorf("window must be 3 digits, got %q", window)
		}
	}
	if mode != ModeRead && mode != ModeWrite {
		return Frame{}, fmt.Errorf("invalid mode 0x%02X", byte(mode))
	}

	data := make([]byte, 0, HeaderSize+len(payload)+TrailerSize)
	data = append(data, STX, Address)
	data = append(data, window...)
	data = append(data, byte(mode))
	data = append(data, payload...)
	data = append(data, ETX)

	// Checksum covers ADDR through ETX, not STX
	chk := FormatChecksum(Checksum(data[1:]), upper)
	data = append(data, chk[0], chk[1])

	return Frame{data: data}, nil
}
