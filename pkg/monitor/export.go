// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitor

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/Thermoquad/pumpstat/pkg/pumpproto"
	chart "github.com/wcharczuk/go-chart/v2"
)

// ErrNotEnoughPoints is returned by WritePNG when fewer than two plottable
// points are available.
var ErrNotEnoughPoints = errors.New("at least two positive pressure points are required")

// ExportRow is one exported aggregated point.
type ExportRow struct {
	Timestamp time.Time
	Seconds   float64
	Pressure  float64
	Units     pumpproto.Unit
}

// ExportRows returns the aggregated buffer as export rows labelled with the
// last successfully read units. Seconds are counted from the start of the
// monitoring session.
func (e *Engine) ExportRows() []ExportRow {
	points := e.points.Items()
	rows := make([]ExportRow, 0, len(points))
	start := e.sessionStart
	if start.IsZero() && len(points) > 0 {
		start = points[0].At
	}
	for _, p := range points {
		rows = append(rows, ExportRow{
			Timestamp: p.At,
			Seconds:   p.At.Sub(start).Seconds(),
			Pressure:  p.Pressure,
			Units:     e.lastUnits,
		})
	}
	return rows
}

// WriteCSV writes rows with a timestamp,seconds,pressure,units header.
func WriteCSV(w io.Writer, rows []ExportRow) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"timestamp", "seconds", "pressure", "units"}); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.Timestamp.Format(time.RFC3339Nano),
			strconv.FormatFloat(row.Seconds, 'f', 3, 64),
			strconv.FormatFloat(row.Pressure, 'g', -1, 64),
			row.Units.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// WritePNG renders aggregated points as a PNG chart: pressure on a log10
// primary axis and turbo speed on the secondary axis. Non-positive
// pressures are skipped.
func WritePNG(w io.Writer, points []PlotPoint, units pumpproto.Unit) error {
	var (
		px, tx []time.Time
		py, ty []float64
	)
	for _, p := range points {
		if p.Pressure > 0 {
			px = append(px, p.At)
			py = append(py, math.Log10(p.Pressure))
		}
		if p.Turbo != nil {
			tx = append(tx, p.At)
			ty = append(ty, *p.Turbo)
		}
	}
	if len(px) < 2 {
		return ErrNotEnoughPoints
	}

	pressureFormatter := func(v interface{}) string {
		f, ok := v.(float64)
		if !ok {
			return ""
		}
		return fmt.Sprintf("%.1e", math.Pow(10, f))
	}
	rpmFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           fmt.Sprintf("Pressure (%s)", units),
			ValueFormatter: pressureFormatter,
			Range:          flatRange(py),
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Pressure",
				XValues: px,
				YValues: py,
			},
		},
	}

	if len(tx) >= 2 {
		graph.YAxisSecondary = chart.YAxis{
			Name:           "Turbo (RPM)",
			ValueFormatter: rpmFormatter,
			Range:          flatRange(ty),
		}
		graph.Series = append(graph.Series, chart.TimeSeries{
			Name:    "Turbo",
			XValues: tx,
			YValues: ty,
			YAxis:   chart.YAxisSecondary,
		})
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, w)
}

// flatRange widens a constant series so the axis has a non-zero span.
func flatRange(values []float64) chart.Range {
	if len(values) == 0 {
		return nil
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	if hi > lo {
		return nil
	}
	pad := math.Max(math.Abs(lo)*0.1, 1)
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}
