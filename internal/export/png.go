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
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"formcanvas/internal/domain"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// Raster renders snap into an RGBA image of the page at opt.Scale.
func Raster(snap domain.Snapshot, opt Options) (*image.RGBA, error) {
	scale := opt.Scale
	if scale <= 0 {
		scale = 1
	}
	px := func(v float64) int { return int(math.Round(v * scale)) }
	img := image.NewRGBA(image.Rect(0, 0, px(domain.PageWidth), px(domain.PageHeight)))
	xdraw.Draw(img, img.Bounds(), &image.Uniform{C: pageColor}, image.Point{}, xdraw.Src)

	bg, err := backgroundImage(snap)
	if err != nil {
		return nil, fmt.Errorf("background: %w", err)
	}
	if bg != nil {
		b := bg.Bounds()
		r := coverRect(float64(b.Dx()), float64(b.Dy()), domain.PageWidth, domain.PageHeight)
		dst := image.Rect(px(r.X), px(r.Y), px(r.X+r.Width), px(r.Y+r.Height))
		// Destination bounds clip the overflow of the cover fit.
		xdraw.CatmullRom.Scale(img, dst, bg, b, xdraw.Over, nil)
	}

	face := textFace(opt.Font, scale)
	if c, ok := face.(interface{ Close() error }); ok {
		defer c.Close()
	}
	for _, it := range snap.Items {
		box := image.Rect(px(it.X), px(it.Y), px(it.X+it.Width), px(it.Y+it.Height)).Intersect(img.Bounds())
		if box.Empty() {
			continue
		}
		if !opt.HideBorders {
			strokeRect(img, box.Min.X, box.Min.Y, box.Max.X-1, box.Max.Y-1, borderColor)
		}
		text, placeholder := fieldText(it, opt)
		if text == "" {
			continue
		}
		col := textColor
		if placeholder {
			col = placeholderColor
		}
		clip, ok := img.SubImage(box).(*image.RGBA)
		if !ok {
			continue
		}
		m := face.Metrics()
		ascent := m.Ascent.Round()
		textH := ascent + m.Descent.Round()
		boxY := px(it.Y)
		d := &font.Drawer{
			Dst:  clip,
			Src:  image.NewUniform(col),
			Face: face,
			Dot:  fixed.P(px(it.X)+px(fieldPadding), boxY+(px(it.Height)-textH)/2+ascent),
		}
		d.DrawString(text)
	}
	return img, nil
}

// PNG writes the rasterized page to w.
func PNG(w io.Writer, snap domain.Snapshot, opt Options) error {
	img, err := Raster(snap, opt)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// strokeRect draws a 1px axis-aligned rectangle border inclusive of endpoints.
func strokeRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	for x := x0; x <= x1; x++ {
		img.SetRGBA(x, y0, col)
		img.SetRGBA(x, y1, col)
	}
	for y := y0; y <= y1; y++ {
		img.SetRGBA(x0, y, col)
		img.SetRGBA(x1, y, col)
	}
}
