/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("FCV_CONFIG", filepath.Join(dir, "config.yaml"))
	t.Setenv("FCV_STORAGE_BACKEND", "file")
	t.Setenv("FCV_STORAGE_DIR", filepath.Join(dir, "data"))
	t.Setenv("FCV_TELEMETRY_OPT_IN", "")
	return dir
}

func runCmd(t *testing.T, args ...string) (int, string) {
	t.Helper()
	var out bytes.Buffer
	code := run(args, &out)
	return code, out.String()
}

func TestVersionAndUsage(t *testing.T) {
	setupEnv(t)
	code, out := runCmd(t, "version")
	if code != 0 || !strings.Contains(out, "Form Canvas") {
		t.Fatalf("version: %d %q", code, out)
	}
	code, out = runCmd(t)
	if code != 0 || !strings.Contains(out, "Usage:") {
		t.Fatalf("usage: %d %q", code, out)
	}
	code, _ = runCmd(t, "bogus")
	if code != 2 {
		t.Fatalf("unknown command exit = %d, want 2", code)
	}
	code, out = runCmd(t, "export-pdf")
	if code != 2 || !strings.Contains(out, "requires <file>") {
		t.Fatalf("missing arg: %d %q", code, out)
	}
}

func TestBackgroundShowExportClear(t *testing.T) {
	dir := setupEnv(t)

	code, out := runCmd(t, "show")
	if code != 0 || !strings.Contains(out, "No saved layout.") {
		t.Fatalf("show on empty store: %d %q", code, out)
	}

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(2, 2, color.RGBA{B: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	bgPath := filepath.Join(dir, "bg.png")
	if err := os.WriteFile(bgPath, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	if code, out = runCmd(t, "set-background", bgPath); code != 0 {
		t.Fatalf("set-background: %d %q", code, out)
	}

	code, out = runCmd(t, "show")
	if code != 0 || !strings.Contains(out, "Background: image/png") || !strings.Contains(out, "Items: 0") {
		t.Fatalf("show after background: %d %q", code, out)
	}

	pdfPath := filepath.Join(dir, "out", "form.pdf")
	if code, out = runCmd(t, "export-pdf", pdfPath); code != 0 {
		t.Fatalf("export-pdf: %d %q", code, out)
	}
	data, err := os.ReadFile(pdfPath)
	if err != nil || !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("pdf not written: %v", err)
	}
	pngPath := filepath.Join(dir, "out", "form.png")
	if code, out = runCmd(t, "export-png", pngPath); code != 0 {
		t.Fatalf("export-png: %d %q", code, out)
	}
	f, err := os.Open(pngPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := png.DecodeConfig(f); err != nil {
		t.Fatalf("png not decodable: %v", err)
	}

	if code, out = runCmd(t, "clear"); code != 0 {
		t.Fatalf("clear: %d %q", code, out)
	}
	code, out = runCmd(t, "show")
	if code != 0 || !strings.Contains(out, "No saved layout.") {
		t.Fatalf("show after clear: %d %q", code, out)
	}
}

func TestSetBackgroundRejectsNonImage(t *testing.T) {
	dir := setupEnv(t)
	p := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(p, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, out := runCmd(t, "set-background", p)
	if code != 1 || !strings.Contains(out, "Error:") {
		t.Fatalf("expected failure, got %d %q", code, out)
	}
}
