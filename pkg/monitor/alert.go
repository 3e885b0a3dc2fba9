// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import "time"

// DefaultTipSealLimit is the tip-seal running time, in hours, after which
// the seal needs service.
const DefaultTipSealLimit = 5000

// AlertState tracks alert conditions for one connection.
//
// TipSealWarningShown latches the first time the tip-seal limit is exceeded
// and is only cleared by a new connection, never by restarting monitoring.
type AlertState struct {
	TipSealWarningShown bool
	TipSealAlert        bool
	LastTipSample       *time.Time
	Connected           bool
}

// TipSampleDue reports whether the tip seal should be sampled at now.
func (a *AlertState) TipSampleDue(now time.Time, interval time.Duration) bool {
	if a.LastTipSample == nil {
		return true
	}
	return now.Sub(*a.LastTipSample) >= interval
}

// MarkTipSample records a tip-seal sample time.
func (a *AlertState) MarkTipSample(now time.Time) {
	t := now
	a.LastTipSample = &t
}

// ObserveTipSeal updates the needs-service flag from a reading and reports
// whether this is the first crossing of the limit for the connection.
func (a *AlertState) ObserveTipSeal(hours, limit float64) bool {
	a.TipSealAlert = hours > limit
	if a.TipSealAlert && !a.TipSealWarningShown {
		a.TipSealWarningShown = true
		return true
	}
	return false
}

// ResetTimers clears sampling timers but keeps the warning latch.
func (a *AlertState) ResetTimers() {
	a.LastTipSample = nil
}
