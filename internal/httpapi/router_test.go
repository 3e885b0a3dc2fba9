// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Thermoquad/pumpstat/pkg/monitor"
	"github.com/Thermoquad/pumpstat/pkg/pumpproto"
	"github.com/rs/zerolog"
)

type fakeSource struct {
	snap   monitor.Snapshot
	csv    string
	pngErr error
}

func (f *fakeSource) Snapshot() monitor.Snapshot { return f.snap }

func (f *fakeSource) WriteCSV(ctx context.Context, w io.Writer) error {
	_, err := io.WriteString(w, f.csv)
	return err
}

func (f *fakeSource) WritePNG(ctx context.Context, w io.Writer) error {
	if f.pngErr != nil {
		return f.pngErr
	}
	_, err := w.Write([]byte("\x89PNG"))
	return err
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestSnapshot(t *testing.T) {
	hours := 5001.0
	src := &fakeSource{snap: monitor.Snapshot{
		State:        monitor.StateMonitoring,
		Pressure:     "1.2E-05",
		Units:        pumpproto.UnitTorr,
		TurboState:   monitor.TurboAtSpeed,
		TipSealHours: &hours,
		TipSealAlert: true,
		PumpStatus:   pumpproto.PumpRunning,
	}}
	rec := get(t, NewRouter(src, nil, zerolog.Nop()), "/api/snapshot")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]any{
		"state":          "Monitoring",
		"pressure":       "1.2E-05",
		"units":          "Torr",
		"turbo_state":    "At Speed",
		"tip_seal_hours": 5001.0,
		"tip_seal_alert": true,
		"pump_status":    "Running",
	}
	for k, v := range want {
		if body[k] != v {
			t.Errorf("%s = %v, want %v", k, body[k], v)
		}
	}
}

func TestExportCSV(t *testing.T) {
	src := &fakeSource{csv: "timestamp,seconds,pressure,units\n"}
	rec := get(t, NewRouter(src, nil, zerolog.Nop()), "/api/export.csv")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "timestamp,") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestPlotPNG(t *testing.T) {
	src := &fakeSource{}
	router := NewRouter(src, nil, zerolog.Nop())

	rec := get(t, router, "/api/plot.png")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("status = %d, type = %q", rec.Code, rec.Header().Get("Content-Type"))
	}

	src.pngErr = monitor.ErrNotEnoughPoints
	if rec := get(t, router, "/api/plot.png"); rec.Code != http.StatusNotFound {
		t.Errorf("not enough points: status = %d, want 404", rec.Code)
	}

	src.pngErr = monitor.ErrClosed
	if rec := get(t, router, "/api/plot.png"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("closed: status = %d, want 503", rec.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "pumpstat_connected 1\n")
	})
	router := NewRouter(&fakeSource{}, metrics, zerolog.Nop())

	if rec := get(t, router, "/metrics"); rec.Body.String() != "pumpstat_connected 1\n" {
		t.Errorf("/metrics body = %q", rec.Body.String())
	}
	if rec := get(t, NewRouter(&fakeSource{}, nil, zerolog.Nop()), "/metrics"); rec.Code != http.StatusNotFound {
		t.Errorf("/metrics without handler: status = %d, want 404", rec.Code)
	}
	if rec := get(t, router, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("/healthz status = %d", rec.Code)
	}
}
