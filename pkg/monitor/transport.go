// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import "time"

// Transport is the byte-oriented link to the pump controller.
//
// Receive returns at most max bytes and may return fewer, including none,
// when the timeout elapses. The engine never issues overlapping calls.
type Transport interface {
	Send(p []byte) error
	Receive(max int, timeout time.Duration) ([]byte, error)
	Close() error
}
