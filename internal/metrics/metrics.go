// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exposes monitor snapshots as Prometheus metrics.
package metrics

import (
	"net/http"
	"sync"

	"github.com/Thermoquad/pumpstat/pkg/monitor"
	"github.com/Thermoquad/pumpstat/pkg/pumpproto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pumpstat"

// Metrics holds the collectors for one monitor.
type Metrics struct {
	registry *prometheus.Registry

	pressure     prometheus.Gauge
	turboRPM     prometheus.Gauge
	turboState   *prometheus.GaugeVec
	tipSealHours prometheus.Gauge
	tipSealAlert prometheus.Gauge
	connected    prometheus.Gauge
	monitoring   prometheus.Gauge
	pumpRunning  prometheus.Gauge

	polls           prometheus.Counter
	transportErrors prometheus.Counter
	decodeErrors    prometheus.Counter
	disconnects     prometheus.Counter
	plotPoints      prometheus.Counter
	events          *prometheus.CounterVec

	mu   sync.Mutex
	last monitor.Statistics
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		pressure: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pressure",
			Help:      "Last pressure reading in controller units",
		}),
		turboRPM: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "turbo_rpm",
			Help:      "Last turbo speed reading",
		}),
		turboState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "turbo_state",
			Help:      "Turbo classification, 1 for the current state",
		}, []string{"state"}),
		tipSealHours: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tip_seal_hours",
			Help:      "Last tip-seal running time reading",
		}),
		tipSealAlert: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tip_seal_alert",
			Help:      "1 when the tip seal needs service",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while the controller answers units reads",
		}),
		monitoring: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitoring",
			Help:      "1 while the polling loop is active",
		}),
		pumpRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pump_running",
			Help:      "1 when the last pump status read was Running",
		}),

		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Poll ticks executed",
		}),
		transportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Round trips that failed on the transport",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Responses that could not be decoded",
		}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Units read failures while monitoring",
		}),
		plotPoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plot_points_total",
			Help:      "Aggregated points appended",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Operator events by kind",
		}, []string{"kind"}),
	}

	m.registry.MustRegister(
		m.pressure,
		m.turboRPM,
		m.turboState,
		m.tipSealHours,
		m.tipSealAlert,
		m.connected,
		m.monitoring,
		m.pumpRunning,
		m.polls,
		m.transportErrors,
		m.decodeErrors,
		m.disconnects,
		m.plotPoints,
		m.events,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observe updates every collector from a snapshot. Statistics counters
// restart on reconnect; a decrease is counted as a fresh start.
func (m *Metrics) Observe(s monitor.Snapshot) {
	if s.PressureValue != nil {
		m.pressure.Set(*s.PressureValue)
	}
	if s.TurboRPM != nil {
		m.turboRPM.Set(*s.TurboRPM)
	}
	for _, state := range []monitor.TurboState{
		monitor.TurboUnknown,
		monitor.TurboStopped,
		monitor.TurboStartingStopping,
		monitor.TurboAtSpeed,
	} {
		m.turboState.WithLabelValues(state.String()).Set(boolValue(state == s.TurboState))
	}
	if s.TipSealHours != nil {
		m.tipSealHours.Set(*s.TipSealHours)
	}
	m.tipSealAlert.Set(boolValue(s.TipSealAlert))
	m.connected.Set(boolValue(s.Connected))
	m.monitoring.Set(boolValue(s.State == monitor.StateMonitoring))
	m.pumpRunning.Set(boolValue(s.PumpStatus == pumpproto.PumpRunning))

	m.mu.Lock()
	defer m.mu.Unlock()
	cur := s.Statistics
	addDelta(m.polls, m.last.Polls, cur.Polls)
	addDelta(m.transportErrors, m.last.TransportErrors, cur.TransportErrors)
	addDelta(m.decodeErrors, m.last.DecodeErrors, cur.DecodeErrors)
	addDelta(m.disconnects, m.last.Disconnects, cur.Disconnects)
	addDelta(m.plotPoints, m.last.PlotPoints, cur.PlotPoints)
	m.last = cur
}

// ObserveEvent counts an engine event.
func (m *Metrics) ObserveEvent(e monitor.Event) {
	m.events.WithLabelValues(e.Kind.String()).Inc()
}

func addDelta(c prometheus.Counter, prev, cur uint64) {
	switch {
	case cur > prev:
		c.Add(float64(cur - prev))
	case cur < prev:
		c.Add(float64(cur))
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
