// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pumpproto

// ExtractPayload returns raw[HeaderSize : len(raw)-tail].
//
// Responses are sliced from both ends of whatever was received. When the read
// is too short for the header and tail to leave anything between them the
// result is an empty slice; it never panics on a truncated read.
func ExtractPayload(raw []byte, tail int) []byte {
	if tail < 0 {
		tail = 0
	}
	end := len(raw) - tail
	if end <= HeaderSize {
		return []byte{}
	}
	return raw[HeaderSize:end]
}

// byteFromEnd returns raw[len(raw)-n], or false if raw is shorter than n.
func byteFromEnd(raw []byte, n int) (byte, bool) {
	if n <= 0 || len(raw) < n {
		return 0, false
	}
	return raw[len(raw)-n], true
}
