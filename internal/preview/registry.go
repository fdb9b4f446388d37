/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package preview

import (
	"context"
	"log/slog"
	"sync"
	"time"

	applog "formcanvas/internal/log"
)

// Registry keeps preview sessions by id and expires idle ones.
type Registry struct {
	store Loader
	ttl   time.Duration
	now   func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	log      *slog.Logger
}

// NewRegistry returns a registry opening sessions from store. ttl <= 0 disables expiry.
func NewRegistry(store Loader, ttl time.Duration) *Registry {
	return &Registry{
		store:    store,
		ttl:      ttl,
		now:      time.Now,
		sessions: map[string]*Session{},
		log:      applog.WithComponent("preview"),
	}
}

// Open starts and registers a new session.
func (r *Registry) Open(ctx context.Context) *Session {
	s := openAt(ctx, r.store, r.now())
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

// Get returns a live session and marks it used.
func (r *Registry) Get(id string) (*Session, bool) {
	now := r.now()
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok && r.expired(s, now) {
		delete(r.sessions, id)
		ok = false
	}
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	s.touch(now)
	return s, true
}

// Close drops a session.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) expired(s *Session, now time.Time) bool {
	return r.ttl > 0 && now.Sub(s.idleSince()) > r.ttl
}

// Sweep removes expired sessions and returns how many were dropped.
func (r *Registry) Sweep() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if r.expired(s, now) {
			delete(r.sessions, id)
			n++
		}
	}
	if n > 0 {
		r.log.Debug("preview sessions expired", slog.Int("count", n), slog.Int("live", len(r.sessions)))
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep()
		}
	}
}
