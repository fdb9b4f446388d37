/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package snap aligns a dragged box with the page and the other placed boxes.
// It is UI-agnostic; the desktop shell uses it while moving items.
package snap

import (
	"math"

	"formcanvas/internal/domain"
)

// Options controls which alignments are considered and the threshold.
type Options struct {
	// Threshold is the maximum distance, in page units, at which snapping happens.
	Threshold float64
	Edges     bool
	Centers   bool
}

// DefaultOptions snaps edges and centers within 6 page units.
var DefaultOptions = Options{Threshold: 6, Edges: true, Centers: true}

// Anchor is a reference box. Higher Weight wins ties.
type Anchor struct {
	Rect   domain.Rect
	Weight float64
}

// Orientation of a guide line.
type Orientation string

const (
	Vertical   Orientation = "vertical"
	Horizontal Orientation = "horizontal"
)

// Guide is a line to draw while the box is snapped. Position is x for vertical
// guides and y for horizontal ones; From and To span both boxes.
type Guide struct {
	Orientation Orientation
	Center      bool
	Position    float64
	From, To    domain.Point
}

// Anchors builds the anchor set for moving item id: the page (preferred) and every other item.
func Anchors(items []domain.PlacedItem, id string) []Anchor {
	out := []Anchor{{Rect: domain.PageRect(), Weight: 2}}
	for _, it := range items {
		if it.ID != id {
			out = append(out, Anchor{Rect: it.Bounds(), Weight: 1})
		}
	}
	return out
}

// feature is one alignment line of a box along an axis: start, center or end.
type feature struct {
	pos    float64
	center bool
}

func features(start, size float64) [3]feature {
	return [3]feature{{pos: start}, {pos: start + size/2, center: true}, {pos: start + size}}
}

type candidate struct {
	delta, score float64
	guide        Guide
	ok           bool
}

func (c *candidate) consider(delta, weight, threshold float64, g Guide) {
	dist := math.Abs(delta)
	if dist > threshold {
		return
	}
	score := dist / math.Max(1, weight)
	if !c.ok || score < c.score {
		*c = candidate{delta: delta, score: score, guide: g, ok: true}
	}
}

// Align returns moving shifted onto the closest alignment on each axis
// independently, plus the guides for the alignments used. Size never changes.
func Align(moving domain.Rect, anchors []Anchor, opts Options) (domain.Rect, []Guide) {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultOptions.Threshold
	}
	var bestX, bestY candidate
	mx := features(moving.X, moving.Width)
	my := features(moving.Y, moving.Height)
	for _, a := range anchors {
		ax := features(a.Rect.X, a.Rect.Width)
		ay := features(a.Rect.Y, a.Rect.Height)
		for _, m := range mx {
			for _, f := range ax {
				if !allowed(m, f, opts) {
					continue
				}
				bestX.consider(m.pos-f.pos, a.Weight, opts.Threshold, vertical(f, moving, a.Rect))
			}
		}
		for _, m := range my {
			for _, f := range ay {
				if !allowed(m, f, opts) {
					continue
				}
				bestY.consider(m.pos-f.pos, a.Weight, opts.Threshold, horizontal(f, moving, a.Rect))
			}
		}
	}

	var guides []Guide
	out := moving
	if bestX.ok {
		out.X = round3(moving.X - bestX.delta)
		guides = append(guides, bestX.guide)
	}
	if bestY.ok {
		out.Y = round3(moving.Y - bestY.delta)
		guides = append(guides, bestY.guide)
	}
	return out, guides
}

// allowed pairs edges with edges and centers with centers.
func allowed(m, f feature, opts Options) bool {
	if m.center != f.center {
		return false
	}
	if m.center {
		return opts.Centers
	}
	return opts.Edges
}

func vertical(f feature, a, b domain.Rect) Guide {
	x := round3(f.pos)
	return Guide{
		Orientation: Vertical,
		Center:      f.center,
		Position:    x,
		From:        domain.Point{X: x, Y: math.Min(a.Y, b.Y)},
		To:          domain.Point{X: x, Y: math.Max(a.Y+a.Height, b.Y+b.Height)},
	}
}

func horizontal(f feature, a, b domain.Rect) Guide {
	y := round3(f.pos)
	return Guide{
		Orientation: Horizontal,
		Center:      f.center,
		Position:    y,
		From:        domain.Point{X: math.Min(a.X, b.X), Y: y},
		To:          domain.Point{X: math.Max(a.X+a.Width, b.X+b.Width), Y: y},
	}
}

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
