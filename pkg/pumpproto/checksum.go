// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pumpproto

const (
	hexUpper = "0123456789ABCDEF"
	hexLower = "0123456789abcdef"
)

// Checksum computes the XOR of all bytes in data.
// For a frame this is applied to ADDR through ETX inclusive.
func Checksum(data []byte) byte {
	var c byte
	for _, b := range data {
		c ^= b
	}
	return c
}

// FormatChecksum renders a checksum as two ASCII hex characters.
func FormatChecksum(c byte, upper bool) [2]byte {
	digits := hexLower
	if upper {
		digits = hexUpper
	}
	return [2]byte{digits[c>>4], digits[c&0x0F]}
}
