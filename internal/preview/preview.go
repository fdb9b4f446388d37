/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package preview renders a saved layout read-only. A Session holds its own copy of the
// snapshot; only field values can change and those changes are never written back.
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"formcanvas/internal/domain"
	applog "formcanvas/internal/log"

	"github.com/google/uuid"
)

// ErrItemNotFound is returned by EditValue for an id that is not in the snapshot.
var ErrItemNotFound = errors.New("preview: item not found")

// Loader is the read side of the persistence store.
type Loader interface {
	Load(ctx context.Context) (domain.Snapshot, bool)
}

// Session is one preview of the snapshot that was current when it was opened.
type Session struct {
	ID       string
	OpenedAt time.Time
	// Found is false when no snapshot existed; the session is then empty.
	Found bool

	mu         sync.Mutex
	background string
	items      []domain.PlacedItem
	lastUsed   time.Time
}

// Open loads the current snapshot into a new session.
func Open(ctx context.Context, store Loader) *Session {
	return openAt(ctx, store, time.Now())
}

func openAt(ctx context.Context, store Loader, now time.Time) *Session {
	snap, ok := store.Load(ctx)
	s := &Session{
		ID:         uuid.NewString(),
		OpenedAt:   now,
		Found:      ok,
		background: snap.Background,
		items:      append([]domain.PlacedItem{}, snap.Items...),
		lastUsed:   now,
	}
	applog.WithComponent("preview").DebugContext(applog.WithSession(ctx, s.ID), "preview opened",
		slog.Bool("found", ok), slog.Int("items", len(s.items)))
	return s
}

// EditValue changes the value shown for an item. Geometry is fixed.
func (s *Session) EditValue(id, value string) (domain.PlacedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].Value = value
			return s.items[i], nil
		}
	}
	return domain.PlacedItem{}, fmt.Errorf("edit %q: %w", id, ErrItemNotFound)
}

// Items returns the fields with their literal geometry and current values.
func (s *Session) Items() []domain.PlacedItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.PlacedItem{}, s.items...)
}

// Background returns the background data URL, "" when none.
func (s *Session) Background() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.background
}

// Snapshot returns the layout with the session's edited values, for printing.
func (s *Session) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Snapshot{Background: s.background, Items: append([]domain.PlacedItem{}, s.items...)}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}
