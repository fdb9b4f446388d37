/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package export renders a layout snapshot as a print-ready page: a single-page PDF
// or a PNG raster. Geometry is the page's CSS pixel space (794x1123).
package export

import (
	"image"
	"image/color"

	"formcanvas/internal/background"
	"formcanvas/internal/domain"

	"golang.org/x/image/font/opentype"
)

// PointsPerPixel maps a CSS pixel (1/96 in) to a PDF point (1/72 in).
const PointsPerPixel = 0.75

// Options controls both exporters. Zero values give the on-screen look.
type Options struct {
	Title string
	// HideBorders omits the field outlines.
	HideBorders bool
	// HidePlaceholders leaves empty fields blank instead of printing their label.
	HidePlaceholders bool
	// Scale multiplies the PNG pixel size; <= 0 means 1.
	Scale float64
	// Font renders PNG text; nil uses a fixed bitmap face. The PDF always uses Helvetica.
	Font *opentype.Font
}

// Colors mirror the editor's styling.
var (
	borderColor      = color.RGBA{R: 75, G: 85, B: 99, A: 255}
	textColor        = color.RGBA{R: 17, G: 24, B: 39, A: 255}
	placeholderColor = color.RGBA{R: 156, G: 163, B: 175, A: 255}
	pageColor        = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// fieldPadding is the inner padding of a field box in pixels.
const fieldPadding = 8.0

// coverRect scales an image of size iw x ih to cover a box of bw x bh, centered.
func coverRect(iw, ih, bw, bh float64) domain.Rect {
	if iw <= 0 || ih <= 0 {
		return domain.Rect{Width: bw, Height: bh}
	}
	s := bw / iw
	if hs := bh / ih; hs > s {
		s = hs
	}
	w, h := iw*s, ih*s
	return domain.Rect{X: (bw - w) / 2, Y: (bh - h) / 2, Width: w, Height: h}
}

// fieldText returns the text to print for an item and whether it is a placeholder.
func fieldText(it domain.PlacedItem, opt Options) (string, bool) {
	if it.Value != "" {
		return it.Value, false
	}
	if opt.HidePlaceholders {
		return "", false
	}
	return it.Label, true
}

// backgroundImage decodes the snapshot background; nil when there is none.
func backgroundImage(snap domain.Snapshot) (image.Image, error) {
	if snap.Background == "" {
		return nil, nil
	}
	img, _, err := background.Decode(snap.Background)
	return img, err
}
