// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package httpapi serves the monitor status, exports and metrics over HTTP.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/Thermoquad/pumpstat/pkg/monitor"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Source is the read side of a running monitor.
type Source interface {
	Snapshot() monitor.Snapshot
	WriteCSV(ctx context.Context, w io.Writer) error
	WritePNG(ctx context.Context, w io.Writer) error
}

// NewRouter builds the HTTP routes. metrics may be nil.
func NewRouter(src Source, metrics http.Handler, logger zerolog.Logger) *chi.Mux {
	h := &handler{src: src, logger: logger.With().Str("component", "http").Logger()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.health)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", h.snapshot)
		r.Get("/export.csv", h.exportCSV)
		r.Get("/plot.png", h.plotPNG)
	})

	return r
}

type handler struct {
	src    Source
	logger zerolog.Logger
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *handler) snapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.src.Snapshot()); err != nil {
		h.logger.Warn().Err(err).Msg("encode snapshot")
	}
}

func (h *handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.src.WriteCSV(r.Context(), &buf); err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="pumpstat.csv"`)
	_, _ = buf.WriteTo(w)
}

func (h *handler) plotPNG(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.src.WritePNG(r.Context(), &buf); err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = buf.WriteTo(w)
}

func (h *handler) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, monitor.ErrNotEnoughPoints):
		status = http.StatusNotFound
	case errors.Is(err, monitor.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	h.logger.Warn().Err(err).Int("status", status).Msg("export failed")
	http.Error(w, err.Error(), status)
}

// Serve runs an HTTP server on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("http server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
