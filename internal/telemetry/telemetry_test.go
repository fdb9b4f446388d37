/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"formcanvas/internal/canvas"
	"formcanvas/internal/config"
	"formcanvas/internal/domain"
)

type collector struct {
	mu      sync.Mutex
	events  []map[string]any
	crashes [][]byte
}

func (c *collector) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var m map[string]any
		_ = json.Unmarshal(b, &m)
		c.mu.Lock()
		c.events = append(c.events, m)
		c.mu.Unlock()
	})
	mux.HandleFunc("/crash", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.crashes = append(c.crashes, b)
		c.mu.Unlock()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (c *collector) waitEvents(n int) []map[string]any {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		got := len(c.events)
		c.mu.Unlock()
		if got >= n {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.events...)
}

func TestClient_EventAndUploadCrash(t *testing.T) {
	col := &collector{}
	srv := col.server(t)

	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", CrashURL: srv.URL + "/crash", Timeout: 2 * time.Second})
	defer c.Close()
	if !c.Enabled() {
		t.Fatalf("expected client to be enabled")
	}

	c.Event("started", map[string]any{"k": "v"})
	c.Flush(context.Background())
	events := col.waitEvents(1)
	if len(events) == 0 {
		t.Fatalf("expected at least one event to be sent")
	}
	m := events[0]
	if m["name"] != "started" || m["app"] != "formcanvas" || m["k"] != "v" {
		t.Fatalf("unexpected event: %v", m)
	}
	if _, ok := m["ts"].(string); !ok {
		t.Fatalf("missing ts field")
	}
	if m["run"] != c.run {
		t.Fatalf("run id mismatch: %v", m["run"])
	}

	c.UploadCrash([]byte("STACKTRACE"))
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		col.mu.Lock()
		n := len(col.crashes)
		col.mu.Unlock()
		if n > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected crash upload to be sent")
}

func TestCanvasObserverReportsOutcomesWithoutValues(t *testing.T) {
	col := &collector{}
	srv := col.server(t)
	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", Timeout: 2 * time.Second})
	defer c.Close()

	cv := canvas.New(nil, canvas.Options{})
	cancel := cv.Subscribe(c.CanvasObserver())
	defer cancel()

	page := &domain.Rect{Width: domain.PageWidth, Height: domain.PageHeight}
	if _, err := cv.Drop(domain.Field{ID: "firstName"}, domain.Point{X: 10, Y: 10}, page); err != nil {
		t.Fatal(err)
	}
	if _, err := cv.EditValue("firstName", "secret"); err != nil {
		t.Fatal(err)
	}

	events := col.waitEvents(2)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	names := map[any]bool{}
	for _, e := range events {
		names[e["name"]] = true
		for k, v := range e {
			if v == "secret" {
				t.Fatalf("field value leaked in %q", k)
			}
		}
	}
	if !names["canvas.placed"] || !names["canvas.edited"] {
		t.Fatalf("unexpected event names: %v", names)
	}
	if events[0]["items"] != float64(1) || events[0]["pool"] != float64(1) {
		t.Fatalf("unexpected counts: %v", events[0])
	}
}

func TestClient_DisabledAndEmptyEventName(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := New(Config{OptIn: false, EventsURL: srv.URL + "/events", CrashURL: srv.URL + "/crash", Timeout: time.Second})
	defer c.Close()
	if c.Enabled() {
		t.Fatalf("expected disabled client")
	}
	c.Event("ignored", nil)
	c.UploadCrash([]byte("ignored"))

	c2 := New(Config{OptIn: true, EventsURL: srv.URL + "/events", Timeout: time.Second})
	defer c2.Close()
	c2.Event("", nil)
	c2.Flush(nil)
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("expected no requests, got %d", hits)
	}
}

func TestSendErrorsAreSwallowed(t *testing.T) {
	c := New(Config{
		OptIn:        true,
		EventsURL:    "http://127.0.0.1:1/events",
		CrashURL:     "http://127.0.0.1:1/crash",
		Timeout:      50 * time.Millisecond,
		DebugLogging: true,
	})
	defer c.Close()
	c.Event("err", map[string]any{"a": 1})
	c.Flush(context.Background())
	c.UploadCrash([]byte("oops"))
	time.Sleep(100 * time.Millisecond)
}

func TestFromEnvAndDefault(t *testing.T) {
	t.Setenv(config.EnvTelemetryOptIn, "true")
	t.Setenv(EnvEventsURL, "http://127.0.0.1:0")
	t.Setenv(EnvCrashURL, "")
	t.Setenv(EnvTimeoutMs, "100")

	cfg := FromEnv()
	if !cfg.OptIn || cfg.EventsURL == "" || cfg.Timeout != 100*time.Millisecond {
		t.Fatalf("FromEnv did not parse correctly: %+v", cfg)
	}
	if FromConfig(config.TelemetryConfig{OptIn: false}).OptIn {
		t.Fatalf("config opt-in must win")
	}

	c := New(cfg)
	prev := SetDefault(c)
	defer func() {
		c.Close()
		SetDefault(prev)
	}()
	if !Enabled() {
		t.Fatalf("default Enabled should be true with env config")
	}
}
