/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package telemetry is an opt-in, anonymous event sender. Events carry outcome
// names and counts only; field values and backgrounds never leave the process.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"formcanvas/internal/canvas"
	"formcanvas/internal/config"
	applog "formcanvas/internal/log"
	"formcanvas/internal/version"

	"github.com/google/uuid"
)

// Config holds runtime configuration for telemetry and crash uploads.
// Disabled by default.
//
// Environment variables (read by FromEnv):
//   - FCV_TELEMETRY_OPT_IN: "1", "true", "yes" or "on" enables events
//   - FCV_TELEMETRY_URL: URL to POST JSON events to
//   - FCV_CRASH_UPLOAD_URL: URL to POST crash reports to
//   - FCV_TELEMETRY_TIMEOUT_MS: request timeout, default 1500ms
//   - FCV_TELEMETRY_DEBUG: if set, logs send attempts
//
// Without URLs nothing is sent, even when opted in.
type Config struct {
	OptIn        bool
	EventsURL    string
	CrashURL     string
	Timeout      time.Duration
	DebugLogging bool
}

const (
	EnvEventsURL = "FCV_TELEMETRY_URL"
	EnvCrashURL  = "FCV_CRASH_UPLOAD_URL"
	EnvTimeoutMs = "FCV_TELEMETRY_TIMEOUT_MS"
	EnvDebug     = "FCV_TELEMETRY_DEBUG"
)

func FromEnv() Config {
	cfg := Config{
		OptIn:        parseBool(os.Getenv(config.EnvTelemetryOptIn)),
		EventsURL:    strings.TrimSpace(os.Getenv(EnvEventsURL)),
		CrashURL:     strings.TrimSpace(os.Getenv(EnvCrashURL)),
		Timeout:      1500 * time.Millisecond,
		DebugLogging: os.Getenv(EnvDebug) != "",
	}
	if ms := strings.TrimSpace(os.Getenv(EnvTimeoutMs)); ms != "" {
		if v, err := time.ParseDuration(ms + "ms"); err == nil && v > 0 {
			cfg.Timeout = v
		}
	}
	return cfg
}

// FromConfig takes the opt-in decision from the loaded application config
// (which already reflects FCV_TELEMETRY_OPT_IN) and endpoints from the environment.
func FromConfig(tc config.TelemetryConfig) Config {
	cfg := FromEnv()
	cfg.OptIn = tc.OptIn
	return cfg
}

func parseBool(v string) bool {
	s := strings.ToLower(strings.TrimSpace(v))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

// Client is a minimal async sender; it drops events silently on errors.
// The queue is bounded so callers never block.
type Client struct {
	cfg    Config
	run    string
	log    *slog.Logger
	cli    *http.Client
	q      chan any
	once   sync.Once
	closed chan struct{}
}

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

func getDefault() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		defaultClient = New(FromEnv())
	}
	return defaultClient
}

// SetDefault installs c as the package-level client and returns the previous one.
func SetDefault(c *Client) *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultClient
	defaultClient = c
	return prev
}

// New constructs a client. Each client carries a random run id so events of one
// process can be grouped without identifying the user.
func New(cfg Config) *Client {
	c := &Client{
		cfg:    cfg,
		run:    uuid.NewString(),
		log:    applog.WithComponent("telemetry"),
		cli:    &http.Client{Timeout: cfg.Timeout},
		q:      make(chan any, 64),
		closed: make(chan struct{}),
	}
	go c.loop()
	return c
}

// Enabled reports whether events are enabled and an endpoint is configured.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Enabled reports whether the default client sends events.
func Enabled() bool { return getDefault().Enabled() }

// Event queues a JSON event if enabled. props must not carry user content.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	payload := map[string]any{
		"app":     "formcanvas",
		"name":    name,
		"run":     c.run,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"version": version.String(),
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
	}
	for k, v := range props {
		payload[k] = v
	}
	select {
	case c.q <- payload:
	default:
		// queue full
	}
}

// Event sends through the default client.
func Event(name string, props map[string]any) { getDefault().Event(name, props) }

// CanvasObserver returns a canvas subscriber reporting each transition as
// "canvas.<outcome>" with item and pool counts.
func (c *Client) CanvasObserver() func(canvas.Result) {
	return func(r canvas.Result) {
		c.Event("canvas."+string(r.Outcome), map[string]any{
			"items":          len(r.State.Items),
			"pool":           len(r.State.Pool),
			"has_background": r.State.Background != "",
		})
	}
}

// Flush waits briefly for the queue to drain.
func (c *Client) Flush(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	deadline := time.Now().Add(500 * time.Millisecond)
	for {
		if len(c.q) == 0 || time.Now().After(deadline) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(25 * time.Millisecond):
		}
	}
}

// Close stops the sender goroutine.
func (c *Client) Close() { c.once.Do(func() { close(c.closed) }) }

func (c *Client) loop() {
	for {
		select {
		case <-c.closed:
			return
		case item := <-c.q:
			c.send(item)
		}
	}
}

func (c *Client) send(item any) {
	buf, err := json.Marshal(item)
	if err != nil {
		return
	}
	c.post(c.cfg.EventsURL, "application/json", buf, "telemetry event")
}

func (c *Client) post(url, contentType string, body []byte, what string) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.cli.Do(req)
	if err != nil {
		if c.cfg.DebugLogging {
			c.log.Debug(what+" failed", slog.Any("err", err))
		}
		return
	}
	_ = resp.Body.Close()
	if c.cfg.DebugLogging {
		c.log.Debug(what+" sent", slog.Int("status", resp.StatusCode))
	}
}

// UploadCrash posts a crash report to the crash URL if opted in.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	go c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", append([]byte(nil), report...), "crash upload")
}

// UploadCrash uploads through the default client.
func UploadCrash(report []byte) { getDefault().UploadCrash(report) }
