/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"formcanvas/internal/background"
	"formcanvas/internal/domain"
)

func redBackground(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	url, err := background.Encode(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	return url
}

func sample(bg string) domain.Snapshot {
	return domain.Snapshot{
		Background: bg,
		Items: []domain.PlacedItem{
			{ID: "firstName", X: 100, Y: 100, Width: 200, Height: 40, Label: "First Name", Value: "Jürgen"},
			{ID: "secondName", X: 100, Y: 300, Width: 200, Height: 40, Label: "Second Name"},
			// Resized beyond the page: clipped, not rejected.
			{ID: "wide", X: 700, Y: 1100, Width: 400, Height: 100, Label: "Wide"},
		},
	}
}

func TestPDFWritesSinglePage(t *testing.T) {
	var buf bytes.Buffer
	if err := PDF(&buf, sample(redBackground(t, 40, 20)), Options{Title: "Contract"}); err != nil {
		t.Fatalf("PDF: %v", err)
	}
	out := buf.Bytes()
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("not a PDF: %q", out[:8])
	}
	if n := bytes.Count(out, []byte("/Type /Page\n")); n != 1 {
		t.Fatalf("expected exactly one page object, got %d", n)
	}
	if !bytes.Contains(out, []byte("595.50 842.25")) {
		t.Fatalf("page size not mapped to points")
	}
}

func TestPDFWithoutBackground(t *testing.T) {
	var buf bytes.Buffer
	if err := PDF(&buf, domain.Snapshot{}, Options{}); err != nil {
		t.Fatalf("PDF: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("empty output")
	}
}

func TestPDFBadBackground(t *testing.T) {
	var buf bytes.Buffer
	if err := PDF(&buf, domain.Snapshot{Background: "data:image/png;base64,AAAA"}, Options{}); err == nil {
		t.Fatalf("expected background error")
	}
}

func TestRasterGeometry(t *testing.T) {
	img, err := Raster(sample(redBackground(t, 10, 10)), Options{})
	if err != nil {
		t.Fatalf("Raster: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 794 || b.Dy() != 1123 {
		t.Fatalf("bounds = %v", b)
	}
	// Square image covers the tall page entirely.
	if c := img.RGBAAt(700, 20); c.R < 200 || c.G > 40 {
		t.Fatalf("background not drawn at (700,20): %v", c)
	}
	if c := img.RGBAAt(100, 100); c != borderColor {
		t.Fatalf("border corner = %v, want %v", c, borderColor)
	}
	if c := img.RGBAAt(299, 139); c != borderColor {
		t.Fatalf("border far corner = %v", c)
	}
	if !hasColorIn(img, image.Rect(101, 101, 299, 139), textColor) {
		t.Fatalf("value text not drawn")
	}
	if !hasColorIn(img, image.Rect(101, 301, 299, 339), placeholderColor) {
		t.Fatalf("placeholder text not drawn")
	}
}

func TestRasterOptions(t *testing.T) {
	img, err := Raster(sample(""), Options{Scale: 0.5, HideBorders: true, HidePlaceholders: true})
	if err != nil {
		t.Fatalf("Raster: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 397 || b.Dy() != 562 {
		t.Fatalf("bounds = %v", b)
	}
	if c := img.RGBAAt(50, 50); c != pageColor {
		t.Fatalf("border drawn despite HideBorders: %v", c)
	}
	if hasColorIn(img, image.Rect(50, 150, 150, 170), placeholderColor) {
		t.Fatalf("placeholder drawn despite HidePlaceholders")
	}
}

func TestPNGEncodes(t *testing.T) {
	var buf bytes.Buffer
	if err := PNG(&buf, sample(""), Options{}); err != nil {
		t.Fatalf("PNG: %v", err)
	}
	cfg, err := png.DecodeConfig(&buf)
	if err != nil || cfg.Width != 794 || cfg.Height != 1123 {
		t.Fatalf("decode config = %+v, %v", cfg, err)
	}
}

func TestCoverRect(t *testing.T) {
	r := coverRect(100, 100, 794, 1123)
	if r.Width != 1123 || r.Height != 1123 || r.Y != 0 || r.X != (794-1123)/2.0 {
		t.Fatalf("coverRect = %+v", r)
	}
	r = coverRect(2000, 100, 794, 1123)
	if r.Height != 1123 || r.Width <= 794 {
		t.Fatalf("wide image should overflow horizontally: %+v", r)
	}
}

func hasColorIn(img *image.RGBA, r image.Rectangle, want color.RGBA) bool {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := img.RGBAAt(x, y)
			if c.R == want.R && c.G == want.G && c.B == want.B {
				return true
			}
		}
	}
	return false
}

func TestRasterWithOpenTypeFont(t *testing.T) {
	f := GoRegular()
	if f == nil {
		t.Fatal("embedded font did not parse")
	}
	img, err := Raster(sample(""), Options{Font: f, Scale: 2})
	if err != nil {
		t.Fatalf("Raster: %v", err)
	}
	// Inside the first box, away from the 1px border.
	inked := false
	for y := 204; y < 276 && !inked; y++ {
		for x := 204; x < 596; x++ {
			if img.RGBAAt(x, y) != pageColor {
				inked = true
				break
			}
		}
	}
	if !inked {
		t.Fatalf("no text drawn with the OpenType face")
	}
}

func TestLoadFontErrors(t *testing.T) {
	if _, err := LoadFont(filepath.Join(t.TempDir(), "missing.ttf")); err == nil {
		t.Fatal("expected read error")
	}
	p := filepath.Join(t.TempDir(), "bad.ttf")
	if err := os.WriteFile(p, []byte("not a font"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFont(p); err == nil {
		t.Fatal("expected parse error")
	}
}
