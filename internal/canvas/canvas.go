/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package canvas implements the placement canvas: the state machine that moves fields
// between the available pool and the page, validates placement against the container
// bounds and flushes the layout to a Store.
//
// All mutations are serialized by one mutex. Subscribers are notified after the mutex
// is released and receive a copy of the resulting state.
package canvas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"formcanvas/internal/domain"
	applog "formcanvas/internal/log"
	"formcanvas/internal/pool"
)

var (
	// ErrNoContainer is returned when a gesture carries no container rectangle.
	ErrNoContainer = errors.New("canvas: container reference missing")
	// ErrItemNotFound is returned for an id that is not placed on the canvas.
	ErrItemNotFound = errors.New("canvas: item not found")
	// ErrInvalidSize is returned by Resize for a width or height that is not a positive finite number.
	ErrInvalidSize = errors.New("canvas: width and height must be positive")
	// ErrInvalidPosition is returned by Resize for a non-finite position.
	ErrInvalidPosition = errors.New("canvas: position must be finite")
)

// Outcome names the transition a gesture produced.
type Outcome string

const (
	Placed        Outcome = "placed"
	Rejected      Outcome = "rejected"
	Moved         Outcome = "moved"
	Evicted       Outcome = "evicted"
	Resized       Outcome = "resized"
	Edited        Outcome = "edited"
	Removed       Outcome = "removed"
	Cleared       Outcome = "cleared"
	Restored      Outcome = "restored"
	BackgroundSet Outcome = "background"
	Saved         Outcome = "saved"
)

// State is a copy of everything the canvas owns.
type State struct {
	Background string              `json:"background"`
	Items      []domain.PlacedItem `json:"items"`
	Pool       []domain.Field      `json:"pool"`
}

// Snapshot returns the persistable part of the state.
func (s State) Snapshot() domain.Snapshot {
	return domain.Snapshot{Background: s.Background, Items: append([]domain.PlacedItem(nil), s.Items...)}
}

// Result describes one transition. Item is the affected item, when there is one.
type Result struct {
	Outcome Outcome            `json:"outcome"`
	Item    *domain.PlacedItem `json:"item,omitempty"`
	State   State              `json:"state"`
}

// Store is the persistence port.
type Store interface {
	Save(ctx context.Context, snap domain.Snapshot) error
	Load(ctx context.Context) (domain.Snapshot, bool)
	Clear(ctx context.Context) error
}

// Options configures a Canvas. Zero values fall back to the package defaults.
type Options struct {
	ItemWidth  float64
	ItemHeight float64
	Fields     []domain.Field
}

// Canvas owns placed items, the background and the field pool.
type Canvas struct {
	mu sync.Mutex
	// saveMu orders Save calls so an older state never overwrites a newer one.
	saveMu     sync.Mutex
	catalog    []domain.Field
	pool       *pool.Pool
	items      []domain.PlacedItem
	background string
	itemW      float64
	itemH      float64
	store      Store

	subsMu  sync.Mutex
	subs    map[int]func(Result)
	nextSub int

	log *slog.Logger
}

// New returns a canvas with every catalog field in the pool. store may be nil,
// in which case Save and Restore are no-ops.
func New(store Store, opts Options) *Canvas {
	fields := opts.Fields
	if len(fields) == 0 {
		fields = domain.DefaultFields()
	}
	p := pool.New()
	p.Reset(fields)
	c := &Canvas{
		catalog: p.Fields(),
		pool:    p,
		itemW:   opts.ItemWidth,
		itemH:   opts.ItemHeight,
		store:   store,
		subs:    map[int]func(Result){},
		log:     applog.WithComponent("canvas"),
	}
	if c.itemW <= 0 {
		c.itemW = domain.DefaultItemWidth
	}
	if c.itemH <= 0 {
		c.itemH = domain.DefaultItemHeight
	}
	return c
}

// Subscribe registers fn for every state-changing transition. The returned
// function removes the subscription.
func (c *Canvas) Subscribe(fn func(Result)) (cancel func()) {
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subsMu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, id)
			c.subsMu.Unlock()
		})
	}
}

func (c *Canvas) notify(r Result) {
	c.subsMu.Lock()
	fns := make([]func(Result), 0, len(c.subs))
	for i := 0; i < c.nextSub; i++ {
		if fn, ok := c.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	c.subsMu.Unlock()
	for _, fn := range fns {
		fn(r)
	}
}

// stateLocked copies the state; c.mu must be held.
func (c *Canvas) stateLocked() State {
	return State{
		Background: c.background,
		Items:      append([]domain.PlacedItem{}, c.items...),
		Pool:       c.pool.Fields(),
	}
}

func (c *Canvas) indexLocked(id string) int {
	for i, it := range c.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

// evictLocked removes item i from the page and returns its field to the pool.
func (c *Canvas) evictLocked(i int) domain.PlacedItem {
	it := c.items[i]
	c.items = append(c.items[:i], c.items[i+1:]...)
	c.pool.Add(it.Field())
	return it
}

// finish releases the mutex, notifies subscribers when changed is set and returns r.
func (c *Canvas) finish(r Result, changed bool) Result {
	c.mu.Unlock()
	if changed {
		c.notify(r)
	}
	return r
}

// State returns a copy of the current state.
func (c *Canvas) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Items returns the placed items in creation order.
func (c *Canvas) Items() []domain.PlacedItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.PlacedItem{}, c.items...)
}

// Item returns the placed item with id.
func (c *Canvas) Item(id string) (domain.PlacedItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(id); i >= 0 {
		return c.items[i], true
	}
	return domain.PlacedItem{}, false
}

// Pool returns the fields still available for placement.
func (c *Canvas) Pool() []domain.Field {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pool.Fields()
}

// Catalog returns the full field set in its original order.
func (c *Canvas) Catalog() []domain.Field {
	return append([]domain.Field(nil), c.catalog...)
}

// Drop places field at pointer, given in the same coordinate space as container.
// A point outside the container, or a field that is not in the pool, yields Rejected
// without any state change.
func (c *Canvas) Drop(field domain.Field, pointer domain.Point, container *domain.Rect) (Result, error) {
	if container == nil {
		return Result{}, ErrNoContainer
	}
	c.mu.Lock()
	pooled, ok := c.pool.Get(field.ID)
	local := container.Relative(pointer)
	if !ok || !container.ContainsLocal(local) {
		c.log.Debug("drop rejected", slog.String("id", field.ID), slog.Bool("pooled", ok),
			slog.Float64("x", local.X), slog.Float64("y", local.Y))
		return c.finish(Result{Outcome: Rejected, State: c.stateLocked()}, false), nil
	}
	it := domain.PlacedItem{
		ID:     pooled.ID,
		X:      local.X,
		Y:      local.Y,
		Width:  c.itemW,
		Height: c.itemH,
		Label:  pooled.Label,
	}
	c.items = append(c.items, it)
	c.pool.Remove(it.ID)
	c.log.Debug("field placed", slog.String("id", it.ID), slog.Float64("x", it.X), slog.Float64("y", it.Y))
	return c.finish(Result{Outcome: Placed, Item: &it, State: c.stateLocked()}, true), nil
}

// Move relocates an item at the end of a drag. pos is relative to the container.
// A box that does not fit entirely inside the container evicts the item.
func (c *Canvas) Move(id string, pos domain.Point, container *domain.Rect) (Result, error) {
	if container == nil {
		return Result{}, ErrNoContainer
	}
	c.mu.Lock()
	i := c.indexLocked(id)
	if i < 0 {
		c.mu.Unlock()
		return Result{}, fmt.Errorf("move %q: %w", id, ErrItemNotFound)
	}
	box := domain.Rect{X: pos.X, Y: pos.Y, Width: c.items[i].Width, Height: c.items[i].Height}
	if !container.FitsLocal(box) {
		it := c.evictLocked(i)
		c.log.Debug("item evicted", slog.String("id", id), slog.Float64("x", pos.X), slog.Float64("y", pos.Y))
		return c.finish(Result{Outcome: Evicted, Item: &it, State: c.stateLocked()}, true), nil
	}
	c.items[i].X, c.items[i].Y = pos.X, pos.Y
	it := c.items[i]
	return c.finish(Result{Outcome: Moved, Item: &it, State: c.stateLocked()}, true), nil
}

// Resize sets size and position without a bounds check.
func (c *Canvas) Resize(id string, size domain.Size, pos domain.Point) (Result, error) {
	if !positive(size.Width) || !positive(size.Height) {
		return Result{}, fmt.Errorf("resize %q to %vx%v: %w", id, size.Width, size.Height, ErrInvalidSize)
	}
	if !finite(pos.X) || !finite(pos.Y) {
		return Result{}, fmt.Errorf("resize %q at %v,%v: %w", id, pos.X, pos.Y, ErrInvalidPosition)
	}
	c.mu.Lock()
	i := c.indexLocked(id)
	if i < 0 {
		c.mu.Unlock()
		return Result{}, fmt.Errorf("resize %q: %w", id, ErrItemNotFound)
	}
	c.items[i].X, c.items[i].Y = pos.X, pos.Y
	c.items[i].Width, c.items[i].Height = size.Width, size.Height
	it := c.items[i]
	return c.finish(Result{Outcome: Resized, Item: &it, State: c.stateLocked()}, true), nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// positive rejects NaN and infinities as well as v <= 0.
func positive(v float64) bool { return v > 0 && !math.IsInf(v, 0) }

// EditValue replaces the text captured by an item.
func (c *Canvas) EditValue(id, value string) (Result, error) {
	c.mu.Lock()
	i := c.indexLocked(id)
	if i < 0 {
		c.mu.Unlock()
		return Result{}, fmt.Errorf("edit %q: %w", id, ErrItemNotFound)
	}
	c.items[i].Value = value
	it := c.items[i]
	return c.finish(Result{Outcome: Edited, Item: &it, State: c.stateLocked()}, true), nil
}

// Remove evicts an item back into the pool.
func (c *Canvas) Remove(id string) (Result, error) {
	c.mu.Lock()
	i := c.indexLocked(id)
	if i < 0 {
		c.mu.Unlock()
		return Result{}, fmt.Errorf("remove %q: %w", id, ErrItemNotFound)
	}
	it := c.evictLocked(i)
	return c.finish(Result{Outcome: Removed, Item: &it, State: c.stateLocked()}, true), nil
}

// SetBackground replaces the background image reference (a data URL).
func (c *Canvas) SetBackground(data string) Result {
	c.mu.Lock()
	c.background = data
	return c.finish(Result{Outcome: BackgroundSet, State: c.stateLocked()}, true)
}

// ClearBackground drops the background image.
func (c *Canvas) ClearBackground() Result { return c.SetBackground("") }

// Clear evicts every item, resets the pool to the catalog order, drops the background
// and wipes the store. The in-memory reset happens even when the store fails.
func (c *Canvas) Clear(ctx context.Context) (Result, error) {
	c.mu.Lock()
	c.items = nil
	c.background = ""
	c.pool.Reset(c.catalog)
	r := c.finish(Result{Outcome: Cleared, State: c.stateLocked()}, true)
	if c.store == nil {
		return r, nil
	}
	if err := c.store.Clear(ctx); err != nil {
		c.log.ErrorContext(ctx, "clear store failed", slog.Any("err", err))
		return r, fmt.Errorf("clear: %w", err)
	}
	return r, nil
}

// Save flushes the current background and items to the store.
func (c *Canvas) Save(ctx context.Context) (Result, error) {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	c.mu.Lock()
	st := c.stateLocked()
	c.mu.Unlock()
	r := Result{Outcome: Saved, State: st}
	if c.store == nil {
		return r, nil
	}
	if err := c.store.Save(ctx, st.Snapshot()); err != nil {
		c.log.ErrorContext(ctx, "save failed", slog.Any("err", err))
		return r, fmt.Errorf("save: %w", err)
	}
	c.log.InfoContext(ctx, "layout saved", slog.Int("items", len(st.Items)))
	return r, nil
}

// Restore replaces the state with the stored snapshot. Without a usable snapshot the
// canvas is empty and the pool holds the full catalog. Items whose id is not in the
// catalog, and repeated ids, are skipped.
func (c *Canvas) Restore(ctx context.Context) Result {
	var (
		snap domain.Snapshot
		ok   bool
	)
	if c.store != nil {
		snap, ok = c.store.Load(ctx)
	}
	c.mu.Lock()
	c.applyLocked(ctx, snap)
	c.log.DebugContext(ctx, "layout restored", slog.Bool("found", ok), slog.Int("items", len(c.items)))
	return c.finish(Result{Outcome: Restored, State: c.stateLocked()}, true)
}

func (c *Canvas) applyLocked(ctx context.Context, snap domain.Snapshot) {
	c.items = nil
	c.background = snap.Background
	c.pool.Reset(c.catalog)
	for _, it := range snap.Items {
		if !c.pool.Contains(it.ID) {
			c.log.WarnContext(ctx, "skipping restored item", slog.String("id", it.ID), slog.String("reason", "unknown or repeated id"))
			continue
		}
		if !positive(it.Width) || !positive(it.Height) || !finite(it.X) || !finite(it.Y) {
			c.log.WarnContext(ctx, "skipping restored item", slog.String("id", it.ID), slog.String("reason", "invalid geometry"))
			continue
		}
		c.items = append(c.items, it)
		c.pool.Remove(it.ID)
	}
}
