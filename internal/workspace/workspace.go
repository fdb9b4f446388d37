/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package workspace assembles the runtime shared by the CLI, the HTTP server and the
// desktop shell: configured storage, a restored canvas, telemetry and the crash target.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"formcanvas/internal/canvas"
	"formcanvas/internal/config"
	"formcanvas/internal/crash"
	"formcanvas/internal/domain"
	applog "formcanvas/internal/log"
	"formcanvas/internal/storage"
	"formcanvas/internal/telemetry"
)

// Env is an opened runtime. Close releases it.
type Env struct {
	Config    config.AppConfig
	Store     *storage.Store
	Canvas    *canvas.Canvas
	Telemetry *telemetry.Client
	// Found reports whether a saved layout was restored.
	Found bool

	unsubscribe func()
	log         *slog.Logger
}

// LogOptions maps the logging section of the config to logger options.
func LogOptions(c config.LoggingConfig) applog.Options {
	o := applog.FromEnv()
	if c.Level != "" {
		o.Level = c.Level
	}
	if c.Format != "" {
		o.Format = c.Format
	}
	if c.File != "" {
		o.File = c.File
	}
	o.AddSource = o.AddSource || c.Source
	return o
}

// Open opens storage, builds the canvas and restores the saved layout into it.
func Open(ctx context.Context, cfg config.AppConfig) (*Env, error) {
	l := applog.WithComponent("app")
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	cv := canvas.New(store, canvas.Options{
		ItemWidth:  cfg.Canvas.ItemWidth,
		ItemHeight: cfg.Canvas.ItemHeight,
		Fields:     cfg.Canvas.Fields,
	})
	restored := cv.Restore(ctx)

	tel := telemetry.New(telemetry.FromConfig(cfg.Telemetry))
	telemetry.SetDefault(tel)
	unsubscribe := cv.Subscribe(tel.CanvasObserver())
	tel.Event("started", map[string]any{"backend": cfg.Storage.Backend})

	found := len(restored.State.Items) > 0 || restored.State.Background != ""
	l.Info("runtime ready",
		slog.String("backend", cfg.Storage.Backend),
		slog.Bool("restored", found),
		slog.Int("items", len(restored.State.Items)))
	return &Env{
		Config:      cfg,
		Store:       store,
		Canvas:      cv,
		Telemetry:   tel,
		Found:       found,
		unsubscribe: unsubscribe,
		log:         l,
	}, nil
}

// Arm points t at this runtime so a panic autosaves the live layout.
func (e *Env) Arm(t *crash.Target) {
	if t == nil {
		return
	}
	if dir, err := e.Config.Storage.DataDir(); err == nil {
		t.Dir = dir
	}
	cv := e.Canvas
	t.Snapshot = func() domain.Snapshot { return cv.State().Snapshot() }
}

// Close flushes telemetry and closes storage.
func (e *Env) Close() error {
	e.unsubscribe()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	e.Telemetry.Flush(ctx)
	e.Telemetry.Close()
	if err := e.Store.Close(); err != nil {
		e.log.Warn("close storage failed", slog.Any("err", err))
		return err
	}
	return nil
}
