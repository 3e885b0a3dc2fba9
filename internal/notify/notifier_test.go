// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/pumpstat/pkg/monitor"
	"github.com/rs/zerolog"
)

func testEvent() monitor.Event {
	return monitor.Event{
		Time:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Kind:    monitor.EventTipSealWarning,
		Message: "Tip seal at 5001 hours (limit 5000): service required",
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	n := NewTelegramNotifier("token", "chat", srv.URL+"/", "/dev/ttyUSB0", time.Second, zerolog.Nop())
	if err := n.Notify(context.Background(), testEvent()); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if path != "/bottoken/sendMessage" {
		t.Errorf("path = %q, want /bottoken/sendMessage", path)
	}
	if received["chat_id"] != "chat" {
		t.Errorf("chat_id = %q", received["chat_id"])
	}
	for _, want := range []string{"/dev/ttyUSB0", "tip_seal_warning", "5001 hours", "2025-06-01T12:00:00Z"} {
		if !strings.Contains(received["text"], want) {
			t.Errorf("text missing %q:\n%s", want, received["text"])
		}
	}
}

func TestTelegramNotifierError(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"ok false", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
		}},
		{"status", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			n := NewTelegramNotifier("token", "chat", srv.URL, "", time.Second, zerolog.Nop())
			if err := n.Notify(context.Background(), testEvent()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []monitor.Event
	block  chan struct{}
}

func (r *recordingNotifier) Notify(ctx context.Context, e monitor.Event) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestDispatcher_FiltersAndDelivers(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewDispatcher(rec, 4, zerolog.Nop())

	d.Handle(monitor.Event{Kind: monitor.EventTransientError})
	d.Handle(monitor.Event{Kind: monitor.EventDeviceLost})
	d.Handle(monitor.Event{Kind: monitor.EventCommandSent})
	d.Handle(testEvent())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for rec.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if rec.count() != 2 {
		t.Fatalf("delivered %d alerts, want 2", rec.count())
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.events[0].Kind != monitor.EventDeviceLost || rec.events[1].Kind != monitor.EventTipSealWarning {
		t.Errorf("delivered %v", rec.events)
	}
}

func TestDispatcher_HandleNeverBlocks(t *testing.T) {
	rec := &recordingNotifier{block: make(chan struct{})}
	d := NewDispatcher(rec, 1, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Handle(testEvent())
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Handle blocked on a full queue")
	}
	close(rec.block)
}
