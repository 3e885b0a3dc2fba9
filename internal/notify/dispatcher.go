// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package notify

import (
	"context"

	"github.com/Thermoquad/pumpstat/pkg/monitor"
	"github.com/rs/zerolog"
)

// DefaultQueueSize bounds the number of undelivered alerts.
const DefaultQueueSize = 32

// Dispatcher decouples alert delivery from the engine goroutine. Handle
// never blocks; alerts beyond the queue size are dropped and logged.
type Dispatcher struct {
	notifier Notifier
	queue    chan monitor.Event
	logger   zerolog.Logger
}

// NewDispatcher creates a dispatcher with a queue of size entries.
func NewDispatcher(n Notifier, size int, logger zerolog.Logger) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Dispatcher{
		notifier: n,
		queue:    make(chan monitor.Event, size),
		logger:   logger.With().Str("component", "notify").Logger(),
	}
}

// Handle queues alert events. It is a monitor.EventHandler.
func (d *Dispatcher) Handle(e monitor.Event) {
	if !e.Kind.IsAlert() {
		return
	}
	select {
	case d.queue <- e:
	default:
		d.logger.Warn().Str("kind", e.Kind.String()).Msg("alert queue full, dropping alert")
	}
}

// Run delivers queued alerts until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-d.queue:
			if err := d.notifier.Notify(ctx, e); err != nil {
				d.logger.Error().Err(err).Str("kind", e.Kind.String()).Msg("alert delivery failed")
			}
		}
	}
}
