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
	"fmt"
	"image/color"
	"image/png"
	"io"

	"formcanvas/internal/domain"

	"github.com/jung-kurt/gofpdf"
)

// PDF writes snap as a single-page PDF to w. Page size is the 794x1123 px page
// mapped to points; built-in Helvetica keeps text vector without embedding.
func PDF(w io.Writer, snap domain.Snapshot, opt Options) error {
	pageW := domain.PageWidth * PointsPerPixel
	pageH := domain.PageHeight * PointsPerPixel

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: pageW, Ht: pageH},
	})
	title := opt.Title
	if title == "" {
		title = "Form"
	}
	pdf.SetTitle(title, true)
	pdf.SetCreator("formcanvas", false)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	img, err := backgroundImage(snap)
	if err != nil {
		return fmt.Errorf("background: %w", err)
	}
	if img != nil {
		// gofpdf reads PNG/JPEG/GIF only; normalize to PNG.
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return fmt.Errorf("encode background: %w", err)
		}
		pdf.RegisterImageOptionsReader("background", gofpdf.ImageOptions{ImageType: "PNG"}, &buf)
		if pdf.Err() {
			return fmt.Errorf("register background: %w", pdf.Error())
		}
		b := img.Bounds()
		r := coverRect(float64(b.Dx()), float64(b.Dy()), pageW, pageH)
		pdf.ClipRect(0, 0, pageW, pageH, false)
		pdf.ImageOptions("background", r.X, r.Y, r.Width, r.Height, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
		pdf.ClipEnd()
	}

	const fontPx = 12.0
	pdf.SetFont("Helvetica", "", fontPx*PointsPerPixel)
	pdf.SetLineWidth(PointsPerPixel)
	setDrawColor(pdf, borderColor)
	for _, it := range snap.Items {
		x, y := it.X*PointsPerPixel, it.Y*PointsPerPixel
		fw, fh := it.Width*PointsPerPixel, it.Height*PointsPerPixel
		if !opt.HideBorders {
			pdf.Rect(x, y, fw, fh, "D")
		}
		text, placeholder := fieldText(it, opt)
		if text == "" {
			continue
		}
		if placeholder {
			setTextColor(pdf, placeholderColor)
		} else {
			setTextColor(pdf, textColor)
		}
		pad := fieldPadding * PointsPerPixel
		// Vertically centered baseline, clipped to the field box.
		baseline := y + fh/2 + fontPx*PointsPerPixel*0.35
		pdf.ClipRect(x, y, fw, fh, false)
		pdf.Text(x+pad, baseline, tr(text))
		pdf.ClipEnd()
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func setDrawColor(pdf *gofpdf.Fpdf, c color.RGBA) {
	pdf.SetDrawColor(int(c.R), int(c.G), int(c.B))
}

func setTextColor(pdf *gofpdf.Fpdf, c color.RGBA) {
	pdf.SetTextColor(int(c.R), int(c.G), int(c.B))
}
