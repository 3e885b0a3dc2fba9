// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import (
	"fmt"
	"time"
)

// Statistics tracks polling statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	Polls           uint64
	GoodPolls       uint64
	TransportErrors uint64
	DecodeErrors    uint64
	Disconnects     uint64
	TipSamples      uint64
	PlotPoints      uint64
	FallbackPoints  uint64
	Commands        uint64
	CommandFailures uint64

	// Rates (calculated)
	PollRate  float64 // polls/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics(now time.Time) *Statistics {
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Errors returns the total error count
func (s *Statistics) Errors() uint64 {
	return s.TransportErrors + s.DecodeErrors + s.CommandFailures
}

// CalculateRates calculates poll and error rates
func (s *Statistics) CalculateRates(now time.Time) {
	elapsed := now.Sub(s.StartTime).Seconds()
	if elapsed > 0 {
		s.PollRate = float64(s.Polls) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	var goodPercent float64
	if s.Polls > 0 {
		goodPercent = float64(s.GoodPolls) * 100.0 / float64(s.Polls)
	}

	elapsed := s.LastUpdateTime.Sub(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Polls:            %8d\n", s.Polls)
	result += fmt.Sprintf("Good Polls:       %8d (%.1f%%)\n", s.GoodPolls, goodPercent)

	if s.TransportErrors > 0 {
		result += fmt.Sprintf("Transport Errors: %8d\n", s.TransportErrors)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:    %8d\n", s.DecodeErrors)
	}
	if s.Disconnects > 0 {
		result += fmt.Sprintf("Disconnects:      %8d\n", s.Disconnects)
	}
	if s.Commands > 0 || s.CommandFailures > 0 {
		result += fmt.Sprintf("Commands:         %8d (%d failed)\n", s.Commands, s.CommandFailures)
	}

	result += fmt.Sprintf("Tip Seal Samples: %8d\n", s.TipSamples)
	result += fmt.Sprintf("Plot Points:      %8d (%d fallback)\n", s.PlotPoints, s.FallbackPoints)
	result += fmt.Sprintf("Poll Rate:        %8.2f polls/sec\n", s.PollRate)
	result += fmt.Sprintf("Error Rate:       %8.2f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset(now time.Time) {
	*s = Statistics{StartTime: now, LastUpdateTime: now}
}
