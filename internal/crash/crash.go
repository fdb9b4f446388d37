/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic into a report file plus an autosave of the current
// layout, then exits with status 2.
package crash

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"formcanvas/internal/domain"
	applog "formcanvas/internal/log"
	"formcanvas/internal/storage"
	"formcanvas/internal/telemetry"
	"formcanvas/internal/version"

	"github.com/google/uuid"
)

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// Target tells Recover where to write and what to autosave.
// Fields may be filled in after the deferred call is registered.
type Target struct {
	// Dir is the data directory; reports go to its backups folder. Empty means os.TempDir().
	Dir string
	// Snapshot returns the live layout. Nil skips the autosave.
	Snapshot func() domain.Snapshot
}

// Recover captures a panic, logs it with the stack, writes a report and autosaves
// the layout held by t.
//
// Usage: defer crash.Recover(target)
func Recover(t *Target) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	id := uuid.NewString()
	l.Error("panic recovered", slog.String("crash_id", id), slog.Any("panic", r), slog.String("stack", string(stack)))

	reportPath, err := writeReport(t, id, r, stack)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err))
	}
	if t != nil && t.Snapshot != nil {
		if path, err := autosave(t, id); err != nil {
			l.Error("autosave layout failed", slog.Any("err", err))
		} else {
			l.Info("layout autosaved", slog.String("path", path))
		}
	}

	if _, err := fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath); err != nil {
		l.Error("failed to write crash message to stderr", slog.Any("err", err))
	}
	if _, err := fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH); err != nil {
		l.Error("failed to write version info to stderr", slog.Any("err", err))
	}
	exitFn(2)
}

func reportDir(t *Target) string {
	if t == nil || t.Dir == "" {
		return os.TempDir()
	}
	dir := filepath.Join(t.Dir, storage.BackupsDirName)
	_ = os.MkdirAll(dir, 0o755)
	return dir
}

func baseName(id string) string {
	return fmt.Sprintf("crash-%s-%s", time.Now().Format("20060102-150405"), id[:8])
}

func writeReport(t *Target, id string, panicVal any, stack []byte) (string, error) {
	path := filepath.Join(reportDir(t), baseName(id)+".log")

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "Form Canvas Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "ID: %s\n", id)
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if t != nil && t.Dir != "" {
		_, _ = fmt.Fprintf(&buf, "DataDir: %s\n", t.Dir)
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, err
	}
	telemetry.UploadCrash(buf.Bytes())
	return path, nil
}

// autosave writes the live snapshot in the persisted payload shape next to the report.
func autosave(t *Target, id string) (string, error) {
	snap := t.Snapshot()
	items := snap.Items
	if items == nil {
		items = []domain.PlacedItem{}
	}
	inputs, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("marshal items: %w", err)
	}
	doc, err := json.MarshalIndent(map[string]string{
		storage.KeyBackground: snap.Background,
		storage.KeyInputs:     string(inputs),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal autosave: %w", err)
	}
	path := filepath.Join(reportDir(t), baseName(id)+".layout.json")
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
