// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import (
	"time"

	"github.com/Thermoquad/pumpstat/pkg/pumpproto"
)

// RecentPoints is the number of aggregated points carried in a Snapshot.
const RecentPoints = 60

// Snapshot is a display copy of the engine state.
type Snapshot struct {
	Time          time.Time            `json:"time"`
	State         State                `json:"state"`
	Connected     bool                 `json:"connected"`
	Pressure      string               `json:"pressure"`
	PressureValue *float64             `json:"pressure_value,omitempty"`
	Units         pumpproto.Unit       `json:"units"`
	Turbo         string               `json:"turbo"`
	TurboRPM      *float64             `json:"turbo_rpm,omitempty"`
	TurboState    TurboState           `json:"turbo_state"`
	TipSealHours  *float64             `json:"tip_seal_hours,omitempty"`
	TipSealAlert  bool                 `json:"tip_seal_alert"`
	TipSealShown  bool                 `json:"tip_seal_warning_shown"`
	PumpStatus    pumpproto.PumpStatus `json:"pump_status"`
	LastError     string               `json:"last_error,omitempty"`
	Samples       int                  `json:"samples"`
	Points        int                  `json:"points"`
	Recent        []PlotPoint          `json:"recent"`
	Statistics    Statistics           `json:"statistics"`
}

// Snapshot copies the current state for readers on other goroutines.
func (e *Engine) Snapshot(now time.Time) Snapshot {
	s := Snapshot{
		Time:         now,
		State:        e.state,
		Connected:    e.alerts.Connected,
		Pressure:     e.live.pressure,
		Units:        e.live.units,
		Turbo:        e.live.turbo,
		TurboRPM:     copyFloat(e.live.turboRPM),
		TurboState:   e.live.turboState,
		TipSealHours: copyFloat(e.live.tipSeal),
		TipSealAlert: e.alerts.TipSealAlert,
		TipSealShown: e.alerts.TipSealWarningShown,
		PumpStatus:   e.live.pumpStatus,
		LastError:    e.live.lastError,
		Samples:      e.samples.Len(),
		Points:       e.points.Len(),
		Statistics:   e.Statistics(now),
	}
	if v, ok := (pumpproto.Pressure{Text: e.live.pressure}).Value(); ok {
		s.PressureValue = &v
	}

	n := e.points.Len()
	start := max(n-RecentPoints, 0)
	s.Recent = make([]PlotPoint, 0, n-start)
	for i := start; i < n; i++ {
		s.Recent = append(s.Recent, e.points.At(i))
	}
	return s
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
