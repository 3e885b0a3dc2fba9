// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/pumpstat/pkg/pumpproto"
)

var (
	// ErrPumpNotDetected is returned by Connect when the units read fails.
	ErrPumpNotDetected = errors.New("pump not detected")

	// ErrDeviceLost is reported when a units read fails while monitoring.
	ErrDeviceLost = errors.New("device disconnected")

	// ErrInvalidState is returned when an operation is not allowed in the
	// current engine state.
	ErrInvalidState = errors.New("invalid state")

	// ErrPrecondition is returned when a pump command is refused before
	// being sent.
	ErrPrecondition = errors.New("precondition failed")

	// ErrNotAcknowledged is returned when a start/stop command does not
	// receive the acknowledgement frame.
	ErrNotAcknowledged = errors.New("command not acknowledged")

	// ErrClosed is returned after the engine or loop has been closed.
	ErrClosed = errors.New("monitor closed")
)

// TransportError wraps an I/O failure on a single round trip.
type TransportError struct {
	Op      string // "send" or "receive"
	Command pumpproto.Command
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Command, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is recovered locally by the polling loop.
func IsTransient(err error) bool {
	var te *TransportError
	return errors.As(err, &te) || errors.Is(err, pumpproto.ErrInvalidText)
}
