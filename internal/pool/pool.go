/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package pool holds the fields that are available for placement.
package pool

import "formcanvas/internal/domain"

// Pool is an insertion-ordered set of fields keyed by ID.
// It is not safe for concurrent use; the canvas owning it serializes access.
type Pool struct {
	fields []domain.Field
}

// New returns a pool seeded with fields. Repeated IDs after the first are ignored.
func New(fields ...domain.Field) *Pool {
	p := &Pool{}
	for _, f := range fields {
		p.Add(f)
	}
	return p
}

// Add appends f unless a field with the same ID is already present.
// It reports whether the pool changed.
func (p *Pool) Add(f domain.Field) bool {
	if p.index(f.ID) >= 0 {
		return false
	}
	p.fields = append(p.fields, f)
	return true
}

// Remove deletes the field with the given ID and reports whether it was present.
func (p *Pool) Remove(id string) bool {
	i := p.index(id)
	if i < 0 {
		return false
	}
	p.fields = append(p.fields[:i], p.fields[i+1:]...)
	return true
}

// Contains reports whether id is pooled.
func (p *Pool) Contains(id string) bool { return p.index(id) >= 0 }

// Get returns the pooled field with the given ID.
func (p *Pool) Get(id string) (domain.Field, bool) {
	if i := p.index(id); i >= 0 {
		return p.fields[i], true
	}
	return domain.Field{}, false
}

// Fields returns a copy of the pooled fields in insertion order.
func (p *Pool) Fields() []domain.Field {
	return append([]domain.Field{}, p.fields...)
}

// IDs returns the pooled IDs in insertion order.
func (p *Pool) IDs() []string {
	ids := make([]string, len(p.fields))
	for i, f := range p.fields {
		ids[i] = f.ID
	}
	return ids
}

func (p *Pool) Len() int { return len(p.fields) }

// Reset replaces the content with fields, keeping the first of any repeated ID.
func (p *Pool) Reset(fields []domain.Field) {
	p.fields = p.fields[:0]
	for _, f := range fields {
		p.Add(f)
	}
}

func (p *Pool) index(id string) int {
	for i, f := range p.fields {
		if f.ID == id {
			return i
		}
	}
	return -1
}
