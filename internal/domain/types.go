/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package domain

// This file defines the data model shared by the placement canvas, the persistence
// layer and the preview. All geometry is expressed in container units (CSS pixels of
// the virtual A4 page).

// Page geometry of the virtual container every layout is placed on.
const (
	PageWidth  = 794.0
	PageHeight = 1123.0
)

// Size given to an item created by a drop.
const (
	DefaultItemWidth  = 200.0
	DefaultItemHeight = 40.0
)

// Field is a named template slot. Identity is the ID; Label is for display only.
type Field struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
}

// PlacedItem is a Field placed on the canvas with geometry and a captured value.
// JSON field order matches the persisted contractInputs element shape.
type PlacedItem struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Label  string  `json:"label"`
	Value  string  `json:"value"`
}

// Field returns the pooled representation of the item.
func (p PlacedItem) Field() Field { return Field{ID: p.ID, Label: p.Label} }

// Bounds returns the item's box.
func (p PlacedItem) Bounds() Rect { return Rect{X: p.X, Y: p.Y, Width: p.Width, Height: p.Height} }

// Snapshot is the unit of persistence: an optional background and the placed items in order.
// An empty Background means "no background".
type Snapshot struct {
	Background string       `json:"background,omitempty"`
	Items      []PlacedItem `json:"items"`
}

// Empty reports whether the snapshot carries neither a background nor items.
func (s Snapshot) Empty() bool { return s.Background == "" && len(s.Items) == 0 }

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Background: s.Background}
	if s.Items != nil {
		out.Items = append([]PlacedItem(nil), s.Items...)
	}
	return out
}

// DefaultFields is the static initial pool.
func DefaultFields() []Field {
	return []Field{
		{ID: "firstName", Label: "First Name"},
		{ID: "secondName", Label: "Second Name"},
	}
}

// Geometry primitives.

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PageRect is the container in its own coordinate space.
func PageRect() Rect { return Rect{Width: PageWidth, Height: PageHeight} }

// Origin returns the top-left corner.
func (r Rect) Origin() Point { return Point{X: r.X, Y: r.Y} }

// Relative converts p into coordinates relative to the rectangle's origin.
func (r Rect) Relative(p Point) Point { return Point{X: p.X - r.X, Y: p.Y - r.Y} }

// ContainsLocal reports whether a point given relative to the origin lies inside the
// rectangle extent. Edges are inclusive.
func (r Rect) ContainsLocal(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X <= r.Width && p.Y <= r.Height
}

// FitsLocal reports whether a box given relative to the origin lies entirely within the
// rectangle extent. Touching an edge still fits.
func (r Rect) FitsLocal(b Rect) bool {
	return b.X >= 0 && b.Y >= 0 && b.X+b.Width <= r.Width && b.Y+b.Height <= r.Height
}
