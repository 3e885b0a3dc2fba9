// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/pumpstat/pkg/pumpproto"
	"github.com/rs/zerolog"
)

// Loop runs an Engine on a single goroutine with self-rescheduling poll
// and plot timers. Other goroutines interact with it through its methods,
// which queue requests onto the loop goroutine, and through Snapshot.
type Loop struct {
	engine *Engine
	logger zerolog.Logger

	requests chan func()
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	pollTimer *time.Timer
	plotTimer *time.Timer

	mu       sync.RWMutex
	snapshot Snapshot
	onUpdate func(Snapshot)
}

// NewLoop wraps engine. The engine must not be used directly afterwards.
func NewLoop(engine *Engine, logger zerolog.Logger) *Loop {
	l := &Loop{
		engine:   engine,
		logger:   logger.With().Str("component", "loop").Logger(),
		requests: make(chan func()),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	l.snapshot = engine.Snapshot(engine.opts.Clock())
	return l
}

// OnUpdate registers a callback invoked on the loop goroutine after every
// state change. Must be called before Run. The callback must not block.
func (l *Loop) OnUpdate(fn func(Snapshot)) {
	l.onUpdate = fn
}

// Snapshot returns the most recently published state.
func (l *Loop) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Run processes requests and timer ticks until ctx is cancelled or Close is
// called, then stops the timers and closes the engine.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return ctx.Err()

		case <-l.stop:
			l.shutdown()
			return nil

		case fn := <-l.requests:
			fn()
			l.publish()

		case <-l.timerC(l.pollTimer):
			l.pollTimer = nil
			l.poll()

		case <-l.timerC(l.plotTimer):
			l.plotTimer = nil
			l.plot()
		}
	}
}

// timerC returns a nil channel for a stopped timer so the select case
// never fires.
func (l *Loop) timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (l *Loop) poll() {
	if l.engine.State() != StateMonitoring {
		return
	}
	now := l.engine.opts.Clock()
	if err := l.engine.PollTick(now); err != nil {
		// The engine already reported transient failures
		if IsTransient(err) {
			l.logger.Debug().Err(err).Msg("poll tick failed")
		} else {
			l.logger.Error().Err(err).Msg("poll tick rejected")
		}
	}
	l.publish()
	if l.engine.State() == StateMonitoring {
		l.pollTimer = time.NewTimer(l.engine.opts.PollInterval)
	}
}

func (l *Loop) plot() {
	if l.engine.State() != StateMonitoring {
		return
	}
	now := l.engine.opts.Clock()
	if _, ok, err := l.engine.PlotTick(now); err != nil {
		l.logger.Debug().Err(err).Msg("plot tick failed")
	} else if ok {
		l.publish()
	}
	if l.engine.State() == StateMonitoring {
		l.plotTimer = time.NewTimer(l.engine.opts.PlotInterval)
	}
}

func (l *Loop) startTimers() {
	l.stopTimers()
	l.pollTimer = time.NewTimer(0)
	l.plotTimer = time.NewTimer(l.engine.opts.PlotInterval)
}

func (l *Loop) stopTimers() {
	if l.pollTimer != nil {
		l.pollTimer.Stop()
		l.pollTimer = nil
	}
	if l.plotTimer != nil {
		l.plotTimer.Stop()
		l.plotTimer = nil
	}
}

func (l *Loop) shutdown() {
	l.stopTimers()
	if l.engine.State() == StateMonitoring {
		_ = l.engine.StopMonitoring()
	}
	if err := l.engine.Close(); err != nil {
		l.logger.Warn().Err(err).Msg("error closing transport")
	}
	l.publish()
}

func (l *Loop) publish() {
	s := l.engine.Snapshot(l.engine.opts.Clock())
	l.mu.Lock()
	l.snapshot = s
	l.mu.Unlock()
	if l.onUpdate != nil {
		l.onUpdate(s)
	}
}

// do runs fn on the loop goroutine and waits for its result.
func (l *Loop) do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	req := func() { result <- fn() }

	select {
	case l.requests <- req:
	case <-l.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

//////////////////////////////////////////////////////////////
// Requests
//////////////////////////////////////////////////////////////

// Connect probes the pump.
func (l *Loop) Connect(ctx context.Context) error {
	return l.do(ctx, func() error {
		return l.engine.Connect(l.engine.opts.Clock())
	})
}

// StartMonitoring enters the monitoring state and arms both timers. The
// first poll runs immediately.
func (l *Loop) StartMonitoring(ctx context.Context) error {
	return l.do(ctx, func() error {
		if err := l.engine.StartMonitoring(l.engine.opts.Clock()); err != nil {
			return err
		}
		l.startTimers()
		return nil
	})
}

// StopMonitoring cancels both timers and leaves the monitoring state.
func (l *Loop) StopMonitoring(ctx context.Context) error {
	return l.do(ctx, func() error {
		l.stopTimers()
		return l.engine.StopMonitoring()
	})
}

// StartPump sends the pump start command.
func (l *Loop) StartPump(ctx context.Context) error {
	return l.do(ctx, func() error {
		return l.engine.StartPump(l.engine.opts.Clock())
	})
}

// StopPump sends the pump stop command.
func (l *Loop) StopPump(ctx context.Context) error {
	return l.do(ctx, func() error {
		return l.engine.StopPump(l.engine.opts.Clock())
	})
}

// ExportRows copies the aggregated buffer as export rows.
func (l *Loop) ExportRows(ctx context.Context) ([]ExportRow, error) {
	var rows []ExportRow
	err := l.do(ctx, func() error {
		rows = l.engine.ExportRows()
		return nil
	})
	return rows, err
}

// Points copies the aggregated buffer.
func (l *Loop) Points(ctx context.Context) ([]PlotPoint, error) {
	var points []PlotPoint
	err := l.do(ctx, func() error {
		points = l.engine.Points()
		return nil
	})
	return points, err
}

// WriteCSV exports the aggregated buffer as CSV.
func (l *Loop) WriteCSV(ctx context.Context, w io.Writer) error {
	rows, err := l.ExportRows(ctx)
	if err != nil {
		return err
	}
	return WriteCSV(w, rows)
}

// WritePNG renders the aggregated buffer as a PNG chart.
func (l *Loop) WritePNG(ctx context.Context, w io.Writer) error {
	var (
		points []PlotPoint
		units  pumpproto.Unit
	)
	err := l.do(ctx, func() error {
		points = l.engine.Points()
		units = l.engine.lastUnits
		return nil
	})
	if err != nil {
		return err
	}
	return WritePNG(w, points, units)
}

// Close stops the timers, closes the engine and waits for Run to return.
// Transport close errors are logged, not returned.
func (l *Loop) Close(ctx context.Context) error {
	l.stopOnce.Do(func() { close(l.stop) })
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
