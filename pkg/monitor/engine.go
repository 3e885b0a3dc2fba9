// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package monitor drives the pump controller polling loop.
//
// An Engine owns one connection's state: the live readings, the rolling
// high-resolution and aggregated sample buffers, and the AlertState. Engine
// methods are not safe for concurrent use; Loop runs them on a single
// goroutine together with the poll and plot timers.
package monitor

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/pumpstat/pkg/pumpproto"
	"github.com/rs/zerolog"
)

// State is the engine lifecycle state.
type State int

// Engine states
const (
	StateDisconnected State = iota
	StateConnected
	StateMonitoring
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "Connected"
	case StateMonitoring:
		return "Monitoring"
	default:
		return "Disconnected"
	}
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Options configures an Engine.
type Options struct {
	PollInterval    time.Duration
	PlotInterval    time.Duration
	History         time.Duration
	TipSealInterval time.Duration
	TipSealLimit    float64
	AtSpeedRPM      float64
	ReceiveTimeout  time.Duration
	MaxResponse     int

	// OnEvent receives operator events. May be nil.
	OnEvent EventHandler
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultOptions returns the standard polling cadence: 1 s polls, 5 s plot
// points, 24 h of history and an hourly tip-seal sample.
func DefaultOptions() Options {
	return Options{
		PollInterval:    time.Second,
		PlotInterval:    5 * time.Second,
		History:         24 * time.Hour,
		TipSealInterval: time.Hour,
		TipSealLimit:    DefaultTipSealLimit,
		AtSpeedRPM:      DefaultAtSpeedRPM,
		ReceiveTimeout:  time.Second,
		MaxResponse:     pumpproto.MaxResponseSize,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.PlotInterval <= 0 {
		o.PlotInterval = d.PlotInterval
	}
	if o.History <= 0 {
		o.History = d.History
	}
	if o.TipSealInterval <= 0 {
		o.TipSealInterval = d.TipSealInterval
	}
	if o.TipSealLimit <= 0 {
		o.TipSealLimit = d.TipSealLimit
	}
	if o.AtSpeedRPM <= 0 {
		o.AtSpeedRPM = d.AtSpeedRPM
	}
	if o.ReceiveTimeout <= 0 {
		o.ReceiveTimeout = d.ReceiveTimeout
	}
	if o.MaxResponse <= 0 {
		o.MaxResponse = d.MaxResponse
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Sample is one high-resolution poll result.
type Sample struct {
	At       time.Time
	Pressure float64
	Turbo    *float64
}

// PlotPoint is one aggregated point. Fallback points repeat the last known
// pressure because no sample fell in the aggregation window.
type PlotPoint struct {
	At       time.Time `json:"at"`
	Pressure float64   `json:"pressure"`
	Turbo    *float64  `json:"turbo,omitempty"`
	Fallback bool      `json:"fallback,omitempty"`
}

// live holds the most recent decoded readings for display.
type live struct {
	pressure   string
	units      pumpproto.Unit
	turbo      string
	turboRPM   *float64
	turboState TurboState
	tipSeal    *float64
	pumpStatus pumpproto.PumpStatus
	lastError  string
}

// Engine is the per-connection polling state machine.
type Engine struct {
	transport Transport
	opts      Options
	logger    zerolog.Logger

	state   State
	alerts  AlertState
	samples *Ring[Sample]
	points  *Ring[PlotPoint]
	stats   *Statistics
	live    live
	closed  bool

	sessionStart time.Time
	lastUnits    pumpproto.Unit
	lastPressure *float64
	fallbackUsed bool
}

// NewEngine creates an engine on an already opened transport.
func NewEngine(t Transport, opts Options, logger zerolog.Logger) *Engine {
	opts = opts.withDefaults()
	e := &Engine{
		transport: t,
		opts:      opts,
		logger:    logger.With().Str("component", "engine").Logger(),
		state:     StateDisconnected,
		stats:     NewStatistics(opts.Clock()),
	}
	e.samples = NewRing[Sample](capacityFor(opts.History, opts.PollInterval))
	e.points = NewRing[PlotPoint](capacityFor(opts.History, opts.PlotInterval))
	return e
}

func capacityFor(history, interval time.Duration) int {
	return int(history / interval)
}

// Options returns the effective engine options.
func (e *Engine) Options() Options {
	return e.opts
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	return e.state
}

// Alerts returns a copy of the alert state.
func (e *Engine) Alerts() AlertState {
	return e.alerts
}

// Samples returns the high-resolution buffer contents, oldest first.
func (e *Engine) Samples() []Sample {
	return e.samples.Items()
}

// Points returns the aggregated buffer contents, oldest first.
func (e *Engine) Points() []PlotPoint {
	return e.points.Items()
}

// Statistics returns a copy of the statistics with rates calculated at now.
func (e *Engine) Statistics(now time.Time) Statistics {
	s := *e.stats
	s.LastUpdateTime = now
	s.CalculateRates(now)
	return s
}

//////////////////////////////////////////////////////////////
// Lifecycle
//////////////////////////////////////////////////////////////

// Connect probes the controller with a units read. A fresh connection clears
// every alert, including the tip-seal warning latch.
func (e *Engine) Connect(now time.Time) error {
	if e.closed {
		return ErrClosed
	}
	if e.state == StateMonitoring {
		return fmt.Errorf("%w: stop monitoring before reconnecting", ErrInvalidState)
	}

	e.alerts = AlertState{}
	e.live = live{}
	e.stats.Reset(now)

	units, err := e.readUnits()
	if err != nil {
		e.state = StateDisconnected
		e.recordError(now, err)
		return err
	}
	e.live.units = units

	if pumpproto.IsUnitsFailure(units.String()) {
		e.state = StateDisconnected
		e.logger.Warn().Msg("units read failed, pump not detected")
		e.emit(now, EventNotice, "Pump not detected")
		return ErrPumpNotDetected
	}

	e.lastUnits = units
	e.state = StateConnected
	e.alerts.Connected = true
	e.logger.Info().Str("units", units.String()).Msg("pump connected")
	e.emit(now, EventConnected, fmt.Sprintf("Connected (units: %s)", units))

	// Initial readings are best-effort; a failure here does not undo the
	// connection.
	if err := e.readLive(now); err != nil {
		e.recordError(now, err)
	}
	if err := e.sampleTipSeal(now); err != nil {
		e.recordError(now, err)
	}
	return nil
}

// StartMonitoring clears the sample buffers and sampling timers and enters
// the monitoring state. The tip-seal warning latch is kept.
func (e *Engine) StartMonitoring(now time.Time) error {
	if e.state != StateConnected {
		return fmt.Errorf("%w: cannot start monitoring while %s", ErrInvalidState, e.state)
	}

	e.samples.Reset()
	e.points.Reset()
	e.alerts.ResetTimers()
	e.lastPressure = nil
	e.fallbackUsed = false
	e.sessionStart = now
	e.state = StateMonitoring

	e.logger.Info().
		Dur("poll_interval", e.opts.PollInterval).
		Dur("plot_interval", e.opts.PlotInterval).
		Msg("monitoring started")
	return nil
}

// StopMonitoring leaves the monitoring state. Buffers are kept for export
// until the next StartMonitoring.
func (e *Engine) StopMonitoring() error {
	if e.state != StateMonitoring {
		return fmt.Errorf("%w: not monitoring", ErrInvalidState)
	}
	e.state = StateConnected
	e.logger.Info().Int("samples", e.samples.Len()).Int("points", e.points.Len()).Msg("monitoring stopped")
	return nil
}

// Close releases the transport. Further operations return ErrClosed.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.state = StateDisconnected
	if e.transport == nil {
		return nil
	}
	return e.transport.Close()
}

//////////////////////////////////////////////////////////////
// Ticks
//////////////////////////////////////////////////////////////

// PollTick performs one poll round. Transport and decode failures are
// recorded and returned but never change the monitoring state; the caller
// schedules the next tick regardless.
func (e *Engine) PollTick(now time.Time) error {
	if e.state != StateMonitoring {
		return fmt.Errorf("%w: poll tick while %s", ErrInvalidState, e.state)
	}
	e.stats.Polls++

	units, err := e.readUnits()
	if err != nil {
		return e.transient(now, err)
	}
	e.live.units = units

	if pumpproto.IsUnitsFailure(units.String()) {
		e.deviceLost(now)
		return nil
	}
	e.lastUnits = units
	e.deviceFound(now)

	if err := e.readLive(now); err != nil {
		return e.transient(now, err)
	}

	if e.alerts.TipSampleDue(now, e.opts.TipSealInterval) {
		if err := e.sampleTipSeal(now); err != nil {
			return e.transient(now, err)
		}
	}

	e.live.lastError = ""
	e.stats.GoodPolls++
	return nil
}

// PlotTick aggregates the high-resolution samples of the last plot interval
// into one point. It reports whether a point was appended.
func (e *Engine) PlotTick(now time.Time) (PlotPoint, bool, error) {
	if e.state != StateMonitoring {
		return PlotPoint{}, false, fmt.Errorf("%w: plot tick while %s", ErrInvalidState, e.state)
	}

	windowStart := now.Add(-e.opts.PlotInterval)

	var (
		inWindow  int
		pSum      float64
		pCount    int
		turboSum  float64
		turboSeen int
	)
	e.samples.Reverse(func(s Sample) bool {
		if s.At.Before(windowStart) {
			return false
		}
		inWindow++
		if s.Pressure > 0 {
			pSum += s.Pressure
			pCount++
		}
		if s.Turbo != nil {
			turboSum += *s.Turbo
			turboSeen++
		}
		return true
	})

	if inWindow == 0 {
		// One stale step at most, and never a non-positive value on a log axis
		if e.lastPressure == nil || e.fallbackUsed || *e.lastPressure <= 0 {
			return PlotPoint{}, false, nil
		}
		pt := PlotPoint{At: now, Pressure: *e.lastPressure, Fallback: true}
		e.fallbackUsed = true
		e.points.Push(pt)
		e.stats.PlotPoints++
		e.stats.FallbackPoints++
		return pt, true, nil
	}

	if pCount == 0 {
		e.logger.Debug().Int("samples", inWindow).Msg("no positive pressure in plot window")
		return PlotPoint{}, false, nil
	}

	pt := PlotPoint{At: now, Pressure: pSum / float64(pCount)}
	if turboSeen > 0 {
		mean := turboSum / float64(turboSeen)
		pt.Turbo = &mean
	}
	e.fallbackUsed = false
	e.points.Push(pt)
	e.stats.PlotPoints++
	return pt, true, nil
}

//////////////////////////////////////////////////////////////
// Pump Commands
//////////////////////////////////////////////////////////////

// StartPump sends the start command. It is refused unless the last known
// pump status is Stopped and the last known turbo speed is 0 RPM.
func (e *Engine) StartPump(now time.Time) error {
	if err := e.requireDevice(); err != nil {
		return err
	}
	if e.live.pumpStatus != pumpproto.PumpStopped || e.live.turboRPM == nil || *e.live.turboRPM != 0 {
		turbo := "unknown"
		if e.live.turboRPM != nil {
			turbo = fmt.Sprintf("%.0f RPM", *e.live.turboRPM)
		}
		err := fmt.Errorf("%w: pump must be stopped with turbo at 0 RPM (status %s, turbo %s)",
			ErrPrecondition, e.live.pumpStatus, turbo)
		e.emit(now, EventCommandRefused, "Start refused: "+err.Error())
		return err
	}
	if err := e.sendCommand(now, pumpproto.CmdStart); err != nil {
		return err
	}
	e.live.pumpStatus = pumpproto.PumpRunning
	return nil
}

// StopPump sends the stop command.
func (e *Engine) StopPump(now time.Time) error {
	if err := e.requireDevice(); err != nil {
		return err
	}
	if err := e.sendCommand(now, pumpproto.CmdStop); err != nil {
		return err
	}
	e.live.pumpStatus = pumpproto.PumpStopped
	return nil
}

func (e *Engine) requireDevice() error {
	if e.closed {
		return ErrClosed
	}
	if e.state == StateDisconnected {
		return fmt.Errorf("%w: not connected", ErrInvalidState)
	}
	if !e.alerts.Connected {
		return ErrDeviceLost
	}
	return nil
}

func (e *Engine) sendCommand(now time.Time, c pumpproto.Command) error {
	raw, err := e.query(c)
	if err != nil {
		e.stats.CommandFailures++
		e.emit(now, EventCommandFailed, fmt.Sprintf("%s failed: %v", c, err))
		return err
	}
	if !pumpproto.IsAck(raw) {
		e.stats.CommandFailures++
		e.logger.Warn().Str("command", c.String()).Str("response", pumpproto.FormatHex(raw)).Msg("command not acknowledged")
		e.emit(now, EventCommandFailed, fmt.Sprintf("%s not acknowledged", c))
		return fmt.Errorf("%w: %s", ErrNotAcknowledged, c)
	}
	e.stats.Commands++
	e.emit(now, EventCommandSent, fmt.Sprintf("%s acknowledged", c))
	return nil
}

//////////////////////////////////////////////////////////////
// Reads
//////////////////////////////////////////////////////////////

func (e *Engine) query(c pumpproto.Command) ([]byte, error) {
	if e.closed {
		return nil, ErrClosed
	}
	frame := pumpproto.CommandFrame(c)
	if err := e.transport.Send(frame.Bytes()); err != nil {
		return nil, &TransportError{Op: "send", Command: c, Err: err}
	}
	raw, err := e.transport.Receive(e.opts.MaxResponse, e.opts.ReceiveTimeout)
	if err != nil {
		return nil, &TransportError{Op: "receive", Command: c, Err: err}
	}
	e.logger.Trace().Str("command", c.String()).Int("bytes", len(raw)).Msg("round trip")
	return raw, nil
}

func (e *Engine) readUnits() (pumpproto.Unit, error) {
	raw, err := e.query(pumpproto.CmdUnits)
	if err != nil {
		return pumpproto.UnitUnknown, err
	}
	return pumpproto.DecodeUnits(raw), nil
}

// readLive reads pressure, turbo speed and pump status, appending a sample
// when the pressure is numeric.
func (e *Engine) readLive(now time.Time) error {
	raw, err := e.query(pumpproto.CmdPressure)
	if err != nil {
		return err
	}
	pressure, err := pumpproto.DecodePressure(raw)
	if err != nil {
		e.stats.DecodeErrors++
		e.logger.Debug().Err(err).Msg("pressure decode failed")
		pressure = pumpproto.Pressure{}
	}
	e.live.pressure = pressure.Text

	raw, err = e.query(pumpproto.CmdTurboSpeed)
	if err != nil {
		return err
	}
	speed := pumpproto.DecodeTurboSpeed(raw)
	e.live.turbo = speed.Text
	e.live.turboRPM = nil
	if rpm, ok := speed.RPM(); ok {
		e.live.turboRPM = &rpm
	}
	e.live.turboState = ClassifyTurbo(speed, e.opts.AtSpeedRPM)

	raw, err = e.query(pumpproto.CmdPumpStatus)
	if err != nil {
		return err
	}
	e.live.pumpStatus = pumpproto.DecodePumpStatus(raw)

	if e.state == StateMonitoring {
		if v, ok := pressure.Value(); ok {
			s := Sample{At: now, Pressure: v}
			if e.live.turboRPM != nil {
				rpm := *e.live.turboRPM
				s.Turbo = &rpm
			}
			e.samples.Push(s)
			e.lastPressure = &v
		}
	}
	return nil
}

func (e *Engine) sampleTipSeal(now time.Time) error {
	raw, err := e.query(pumpproto.CmdTipSeal)
	if err != nil {
		return err
	}
	e.alerts.MarkTipSample(now)
	e.stats.TipSamples++

	hours := pumpproto.DecodeTipSeal(raw)
	if !hours.Present {
		e.live.tipSeal = nil
		e.stats.DecodeErrors++
		return nil
	}
	h := hours.Hours
	e.live.tipSeal = &h

	if e.alerts.ObserveTipSeal(h, e.opts.TipSealLimit) {
		e.logger.Warn().Float64("hours", h).Float64("limit", e.opts.TipSealLimit).Msg("tip seal needs service")
		e.emit(now, EventTipSealWarning,
			fmt.Sprintf("Tip seal at %.0f hours (limit %.0f): service required", h, e.opts.TipSealLimit))
	}
	return nil
}

//////////////////////////////////////////////////////////////
// State Helpers
//////////////////////////////////////////////////////////////

func (e *Engine) deviceLost(now time.Time) {
	e.live.pressure = ""
	e.live.turbo = ""
	e.live.turboRPM = nil
	e.live.turboState = TurboUnknown
	if e.alerts.Connected {
		e.alerts.Connected = false
		e.stats.Disconnects++
		e.logger.Warn().Msg("units read failed, device disconnected")
		e.emit(now, EventDeviceLost, "Device disconnected")
	}
}

func (e *Engine) deviceFound(now time.Time) {
	if !e.alerts.Connected {
		e.alerts.Connected = true
		e.logger.Info().Msg("device responding again")
		e.emit(now, EventDeviceRecovered, "Device reconnected")
	}
}

// transient records a recoverable tick failure and returns it.
func (e *Engine) transient(now time.Time, err error) error {
	e.live.pressure = "Error"
	e.recordError(now, err)
	return err
}

func (e *Engine) recordError(now time.Time, err error) {
	e.live.lastError = err.Error()
	var te *TransportError
	if errors.As(err, &te) {
		e.stats.TransportErrors++
	} else if errors.Is(err, pumpproto.ErrInvalidText) {
		e.stats.DecodeErrors++
	}
	e.logger.Warn().Err(err).Msg("poll failed")
	e.emit(now, EventTransientError, err.Error())
}

func (e *Engine) emit(now time.Time, kind EventKind, msg string) {
	if e.opts.OnEvent == nil {
		return
	}
	e.opts.OnEvent(Event{Time: now, Kind: kind, Message: msg})
}
