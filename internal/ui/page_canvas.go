//go:build fyne

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"image"
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"formcanvas/internal/domain"
	"formcanvas/internal/snap"
)

const (
	defaultZoom = 0.6
	minZoom     = 0.2
	maxZoom     = 3.0
	// handleSize is the resize handle edge in screen units.
	handleSize = 10
	// minItemSize keeps a resize gesture from collapsing a box.
	minItemSize = 8
)

var (
	itemStroke     = color.RGBA{R: 75, G: 85, B: 99, A: 255}
	selectedStroke = color.RGBA{R: 0, G: 170, B: 255, A: 255}
	valueColor     = color.RGBA{R: 17, G: 24, B: 39, A: 255}
	labelColor     = color.RGBA{R: 156, G: 163, B: 175, A: 255}
	guideColor     = color.RGBA{R: 236, G: 72, B: 153, A: 255}
)

// PageCanvas draws the fixed page with its background and placed items, and turns
// taps and drags into placement gestures reported through the On* callbacks.
// Coordinates passed to the callbacks are page coordinates.
type PageCanvas struct {
	widget.BaseWidget

	zoom    float32
	offsetX float32
	offsetY float32

	items      []domain.PlacedItem
	background image.Image
	selected   string

	// armed is placed by the next tap on the page.
	armed domain.Field

	drag      dragMode
	dragIndex int
	ghost     domain.Rect
	// raw is the unsnapped position under the pointer while moving.
	raw    domain.Rect
	guides []snap.Guide

	// Snapping aligns moved items with the page and each other.
	Snapping bool

	OnDrop   func(f domain.Field, p domain.Point)
	OnMove   func(id string, p domain.Point)
	OnResize func(id string, s domain.Size, p domain.Point)
	OnEdit   func(it domain.PlacedItem)
	OnRemove func(id string)
}

type dragMode int

const (
	dragNone dragMode = iota
	dragPan
	dragMove
	dragResize
)

func NewPageCanvas() *PageCanvas {
	pc := &PageCanvas{zoom: defaultZoom, dragIndex: -1, Snapping: true}
	pc.ExtendBaseWidget(pc)
	return pc
}

// SetState replaces the drawn items and background.
func (p *PageCanvas) SetState(items []domain.PlacedItem, bg image.Image) {
	p.items = append([]domain.PlacedItem(nil), items...)
	p.background = bg
	if _, ok := p.indexOf(p.selected); !ok {
		p.selected = ""
	}
	p.Refresh()
}

// Arm makes the next tap place f.
func (p *PageCanvas) Arm(f domain.Field) { p.armed = f }

// ResetView restores the default zoom and removes panning.
func (p *PageCanvas) ResetView() {
	p.zoom, p.offsetX, p.offsetY = defaultZoom, 0, 0
	p.Refresh()
}

func (p *PageCanvas) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.RGBA{R: 229, G: 231, B: 235, A: 255})
	page := canvas.NewRectangle(color.White)
	page.StrokeColor = color.RGBA{R: 156, G: 163, B: 175, A: 255}
	page.StrokeWidth = 1
	img := canvas.NewImageFromImage(nil)
	img.FillMode = canvas.ImageFillStretch
	img.Hide()
	handle := canvas.NewRectangle(selectedStroke)
	handle.Hide()
	r := &pageCanvasRenderer{pc: p, bg: bg, page: page, image: img, handle: handle}
	r.sync()
	return r
}

// MinSize keeps the whole page visible at the default zoom on small screens too.
func (p *PageCanvas) MinSize() fyne.Size { return fyne.NewSize(400, 400) }

func (p *PageCanvas) pageOriginAndScale() (cx, cy, scale float32) {
	size := p.Size()
	cx = size.Width/2 - domain.PageWidth*p.zoom/2 + p.offsetX
	cy = size.Height/2 - domain.PageHeight*p.zoom/2 + p.offsetY
	return cx, cy, p.zoom
}

func (p *PageCanvas) toScreen(pt domain.Point) fyne.Position {
	cx, cy, s := p.pageOriginAndScale()
	return fyne.NewPos(cx+float32(pt.X)*s, cy+float32(pt.Y)*s)
}

func (p *PageCanvas) toPage(pos fyne.Position) domain.Point {
	cx, cy, s := p.pageOriginAndScale()
	return domain.Point{X: float64((pos.X - cx) / s), Y: float64((pos.Y - cy) / s)}
}

func (p *PageCanvas) indexOf(id string) (int, bool) {
	for i, it := range p.items {
		if it.ID == id {
			return i, true
		}
	}
	return -1, false
}

// itemAt returns the top-most item under pt; later items are drawn on top.
func (p *PageCanvas) itemAt(pt domain.Point) int {
	for i := len(p.items) - 1; i >= 0; i-- {
		b := p.items[i].Bounds()
		if pt.X >= b.X && pt.X <= b.X+b.Width && pt.Y >= b.Y && pt.Y <= b.Y+b.Height {
			return i
		}
	}
	return -1
}

// onHandle reports whether pt lies on the resize handle of item i.
func (p *PageCanvas) onHandle(i int, pt domain.Point) bool {
	b := p.items[i].Bounds()
	h := float64(handleSize / p.zoom)
	return pt.X >= b.X+b.Width-h && pt.Y >= b.Y+b.Height-h
}

func (p *PageCanvas) Tapped(e *fyne.PointEvent) {
	pt := p.toPage(e.Position)
	if p.armed.ID != "" {
		f := p.armed
		p.armed = domain.Field{}
		if p.OnDrop != nil {
			p.OnDrop(f, pt)
		}
		return
	}
	p.selected = ""
	if i := p.itemAt(pt); i >= 0 {
		p.selected = p.items[i].ID
	}
	p.Refresh()
}

func (p *PageCanvas) DoubleTapped(e *fyne.PointEvent) {
	if i := p.itemAt(p.toPage(e.Position)); i >= 0 && p.OnEdit != nil {
		p.OnEdit(p.items[i])
	}
}

func (p *PageCanvas) TappedSecondary(e *fyne.PointEvent) {
	if i := p.itemAt(p.toPage(e.Position)); i >= 0 && p.OnRemove != nil {
		p.OnRemove(p.items[i].ID)
	}
}

func (p *PageCanvas) Dragged(e *fyne.DragEvent) {
	if p.drag == dragNone {
		start := p.toPage(e.Position.Subtract(e.Dragged))
		i := p.itemAt(start)
		switch {
		case i < 0:
			p.drag = dragPan
		case p.onHandle(i, start):
			p.drag = dragResize
		default:
			p.drag = dragMove
		}
		if i >= 0 {
			p.dragIndex = i
			p.ghost = p.items[i].Bounds()
			p.raw = p.ghost
			p.selected = p.items[i].ID
		}
	}
	dx, dy := float64(e.Dragged.DX/p.zoom), float64(e.Dragged.DY/p.zoom)
	switch p.drag {
	case dragPan:
		p.offsetX += e.Dragged.DX
		p.offsetY += e.Dragged.DY
	case dragMove:
		p.raw.X += dx
		p.raw.Y += dy
		p.ghost, p.guides = p.raw, nil
		if p.Snapping {
			p.ghost, p.guides = snap.Align(p.raw, snap.Anchors(p.items, p.items[p.dragIndex].ID), snap.DefaultOptions)
		}
	case dragResize:
		p.ghost.Width = max(p.ghost.Width+dx, minItemSize)
		p.ghost.Height = max(p.ghost.Height+dy, minItemSize)
	}
	p.Refresh()
}

func (p *PageCanvas) DragEnd() {
	mode, i, g := p.drag, p.dragIndex, p.ghost
	p.drag, p.dragIndex, p.guides = dragNone, -1, nil
	if i < 0 || i >= len(p.items) {
		return
	}
	id := p.items[i].ID
	switch mode {
	case dragMove:
		if p.OnMove != nil {
			p.OnMove(id, domain.Point{X: g.X, Y: g.Y})
		}
	case dragResize:
		if p.OnResize != nil {
			p.OnResize(id, domain.Size{Width: g.Width, Height: g.Height}, domain.Point{X: g.X, Y: g.Y})
		}
	}
	p.Refresh()
}

func (p *PageCanvas) Scrolled(e *fyne.ScrollEvent) {
	p.zoom = min(max(p.zoom+e.Scrolled.DY*0.002, minZoom), maxZoom)
	p.Refresh()
}

// itemVisual is the box and text drawn for one placed item.
type itemVisual struct {
	box  *canvas.Rectangle
	text *canvas.Text
}

type pageCanvasRenderer struct {
	pc      *PageCanvas
	objects []fyne.CanvasObject
	bg      *canvas.Rectangle
	page    *canvas.Rectangle
	image   *canvas.Image
	handle  *canvas.Rectangle
	visuals []itemVisual
	lines   []*canvas.Line
}

func (r *pageCanvasRenderer) Destroy()                     {}
func (r *pageCanvasRenderer) Objects() []fyne.CanvasObject { return r.objects }
func (r *pageCanvasRenderer) MinSize() fyne.Size           { return r.pc.MinSize() }

func (r *pageCanvasRenderer) Refresh() {
	r.sync()
	r.Layout(r.pc.Size())
	canvas.Refresh(r.pc)
}

// sync matches the visuals to the current items and background.
func (r *pageCanvasRenderer) sync() {
	if r.pc.background != nil {
		r.image.Image = r.pc.background
		r.image.Show()
		r.image.Refresh()
	} else {
		r.image.Hide()
	}
	for len(r.visuals) < len(r.pc.items) {
		box := canvas.NewRectangle(color.Transparent)
		box.StrokeWidth = 1
		r.visuals = append(r.visuals, itemVisual{box: box, text: canvas.NewText("", valueColor)})
	}
	r.visuals = r.visuals[:len(r.pc.items)]
	objs := []fyne.CanvasObject{r.bg, r.page, r.image}
	for i, it := range r.pc.items {
		v := r.visuals[i]
		v.box.StrokeColor = itemStroke
		if it.ID == r.pc.selected {
			v.box.StrokeColor = selectedStroke
		}
		if it.Value != "" {
			v.text.Text, v.text.Color = it.Value, valueColor
		} else {
			v.text.Text, v.text.Color = it.Label, labelColor
		}
		objs = append(objs, v.box, v.text)
	}
	for len(r.lines) < len(r.pc.guides) {
		l := canvas.NewLine(guideColor)
		l.StrokeWidth = 1
		r.lines = append(r.lines, l)
	}
	r.lines = r.lines[:len(r.pc.guides)]
	for _, l := range r.lines {
		objs = append(objs, l)
	}
	r.objects = append(objs, r.handle)
}

func (r *pageCanvasRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)
	r.bg.Move(fyne.NewPos(0, 0))

	origin := r.pc.toScreen(domain.Point{})
	z := r.pc.zoom
	pageSize := fyne.NewSize(domain.PageWidth*z, domain.PageHeight*z)
	r.page.Move(origin)
	r.page.Resize(pageSize)
	r.image.Move(origin)
	r.image.Resize(pageSize)

	r.handle.Hide()
	for i, it := range r.pc.items {
		b := it.Bounds()
		if i == r.pc.dragIndex && r.pc.drag != dragNone && r.pc.drag != dragPan {
			b = r.pc.ghost
		}
		pos := r.pc.toScreen(domain.Point{X: b.X, Y: b.Y})
		sz := fyne.NewSize(float32(b.Width)*z, float32(b.Height)*z)
		v := r.visuals[i]
		v.box.Move(pos)
		v.box.Resize(sz)
		v.text.TextSize = 12 * z
		v.text.Move(pos.Add(fyne.NewPos(8*z, sz.Height/2-v.text.TextSize*0.7)))
		if it.ID == r.pc.selected {
			r.handle.Move(pos.Add(fyne.NewPos(sz.Width-handleSize, sz.Height-handleSize)))
			r.handle.Resize(fyne.NewSize(handleSize, handleSize))
			r.handle.Show()
		}
	}
	for i, g := range r.pc.guides {
		r.lines[i].Position1 = r.pc.toScreen(g.From)
		r.lines[i].Position2 = r.pc.toScreen(g.To)
	}
}
