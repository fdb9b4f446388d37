/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package workspace

import (
	"context"
	"testing"

	"formcanvas/internal/config"
	"formcanvas/internal/crash"
	"formcanvas/internal/domain"
	"formcanvas/internal/storage"
)

func fileConfig(t *testing.T) config.AppConfig {
	t.Helper()
	cfg := config.Defaults()
	cfg.Storage = config.StorageConfig{Backend: storage.BackendFile, Dir: t.TempDir()}
	return cfg
}

func TestOpenRestoresSavedLayout(t *testing.T) {
	ctx := context.Background()
	cfg := fileConfig(t)

	env, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if env.Found {
		t.Fatalf("fresh data dir must not report a restored layout")
	}
	page := &domain.Rect{Width: domain.PageWidth, Height: domain.PageHeight}
	if _, err := env.Canvas.Drop(domain.Field{ID: "firstName"}, domain.Point{X: 40, Y: 60}, page); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Canvas.Save(ctx); err != nil {
		t.Fatal(err)
	}
	if err := env.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	env, err = Open(ctx, cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer env.Close()
	if !env.Found {
		t.Fatalf("expected the saved layout to be restored")
	}
	items := env.Canvas.Items()
	if len(items) != 1 || items[0].ID != "firstName" || items[0].X != 40 {
		t.Fatalf("unexpected items: %+v", items)
	}
	if got := env.Canvas.Pool(); len(got) != 1 || got[0].ID != "secondName" {
		t.Fatalf("unexpected pool: %+v", got)
	}
}

func TestOpenUsesCanvasConfig(t *testing.T) {
	cfg := fileConfig(t)
	cfg.Canvas = config.CanvasConfig{
		ItemWidth:  120,
		ItemHeight: 30,
		Fields:     []domain.Field{{ID: "city", Label: "City"}},
	}
	env, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer env.Close()

	res, err := env.Canvas.Drop(domain.Field{ID: "city"}, domain.Point{X: 1, Y: 1},
		&domain.Rect{Width: domain.PageWidth, Height: domain.PageHeight})
	if err != nil {
		t.Fatal(err)
	}
	if res.Item == nil || res.Item.Width != 120 || res.Item.Height != 30 || res.Item.Label != "City" {
		t.Fatalf("unexpected item: %+v", res.Item)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	cfg := config.Defaults()
	cfg.Storage.Backend = "floppy"
	if _, err := Open(context.Background(), cfg); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestArmFillsCrashTarget(t *testing.T) {
	cfg := fileConfig(t)
	env, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer env.Close()
	env.Canvas.SetBackground("data:image/png;base64,AAAA")

	target := &crash.Target{}
	env.Arm(target)
	if target.Dir != cfg.Storage.Dir {
		t.Fatalf("dir = %q, want %q", target.Dir, cfg.Storage.Dir)
	}
	if target.Snapshot().Background != "data:image/png;base64,AAAA" {
		t.Fatalf("snapshot does not follow the live canvas")
	}
}

func TestLogOptions(t *testing.T) {
	t.Setenv("FCV_LOG_LEVEL", "")
	t.Setenv("FCV_LOG_FORMAT", "")
	o := LogOptions(config.LoggingConfig{Level: "debug", Format: "json", Source: true, File: "x.log"})
	if o.Level != "debug" || o.Format != "json" || !o.AddSource || o.File != "x.log" {
		t.Fatalf("unexpected options: %+v", o)
	}
	o = LogOptions(config.LoggingConfig{})
	if o.Level != "info" || o.Format != "console" {
		t.Fatalf("expected env defaults, got %+v", o)
	}
}
