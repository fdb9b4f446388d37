/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"formcanvas/internal/domain"
	applog "formcanvas/internal/log"
)

// Keys of the two persisted entries.
const (
	KeyBackground = "contractBg"
	KeyInputs     = "contractInputs"
)

// Store reads and writes layout snapshots through a KV backend.
type Store struct {
	kv  KV
	log *slog.Logger
}

// NewStore wraps kv.
func NewStore(kv KV) *Store {
	return &Store{kv: kv, log: applog.WithComponent("storage")}
}

// Backend exposes the underlying key-value backend.
func (s *Store) Backend() KV { return s.kv }

// Save writes background and items in one atomic backend call, replacing prior values.
func (s *Store) Save(ctx context.Context, snap domain.Snapshot) error {
	items := snap.Items
	if items == nil {
		items = []domain.PlacedItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	if err := s.kv.Put(ctx, map[string]string{
		KeyBackground: snap.Background,
		KeyInputs:     string(raw),
	}); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	s.log.DebugContext(ctx, "snapshot saved", slog.Int("items", len(items)), slog.Bool("background", snap.Background != ""))
	return nil
}

// Load returns the last saved snapshot. ok is false when nothing was saved or
// the stored data cannot be decoded; those cases are logged, not returned.
func (s *Store) Load(ctx context.Context) (snap domain.Snapshot, ok bool) {
	l := applog.WithOperation(s.log, "load")
	bg, hasBg, err := s.kv.Get(ctx, KeyBackground)
	if err != nil {
		l.WarnContext(ctx, "read background failed", slog.Any("err", err))
		return domain.Snapshot{}, false
	}
	raw, hasItems, err := s.kv.Get(ctx, KeyInputs)
	if err != nil {
		l.WarnContext(ctx, "read items failed", slog.Any("err", err))
		return domain.Snapshot{}, false
	}
	if !hasBg && !hasItems {
		return domain.Snapshot{}, false
	}
	snap.Background = bg
	if !hasItems {
		return snap, true
	}
	if err := ValidateItems([]byte(raw)); err != nil {
		l.WarnContext(ctx, "stored items rejected", slog.Any("err", err))
		return domain.Snapshot{}, false
	}
	if err := json.Unmarshal([]byte(raw), &snap.Items); err != nil {
		l.WarnContext(ctx, "decode items failed", slog.Any("err", err))
		return domain.Snapshot{}, false
	}
	return snap, true
}

// Clear deletes both entries.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, KeyBackground, KeyInputs); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	s.log.DebugContext(ctx, "snapshot cleared")
	return nil
}

// Close releases the backend.
func (s *Store) Close() error { return s.kv.Close() }
