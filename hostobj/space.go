// Copyright 2026 The hostbridge Authors
// This file is part of the hostbridge library.
//
// The hostbridge library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The hostbridge library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the hostbridge library. If not, see <http://www.gnu.org/licenses/>.

package hostobj

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Ref is the wire form of a host object handed to a peer.
type Ref struct {
	ID   string `json:"ref"`
	Type string `json:"type"`
}

func (r Ref) String() string {
	return r.Type + "@" + r.ID
}

// Space maps the refs handed to one peer connection to the objects they name.
// Handing out the same object twice yields the same ref.
type Space struct {
	table *Table

	mu   sync.RWMutex
	objs map[string]interface{}
	ids  map[interface{}]string
}

// NewSpace creates an empty space resolving classes through table.
func NewSpace(table *Table) *Space {
	return &Space{
		table: table,
		objs:  make(map[string]interface{}),
		ids:   make(map[interface{}]string),
	}
}

// Put returns the ref for v, allocating one if needed. v's type must be exposed.
func (s *Space) Put(v interface{}) (Ref, error) {
	class, err := s.table.Class(v)
	if err != nil {
		return Ref{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.ids[v]; ok {
		return Ref{ID: id, Type: class.Name}, nil
	}
	id := uuid.NewString()
	s.objs[id] = v
	s.ids[v] = id
	return Ref{ID: id, Type: class.Name}, nil
}

// Get resolves a ref.
func (s *Space) Get(ref Ref) (interface{}, error) {
	s.mu.RLock()
	v, ok := s.objs[ref.ID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRef, ref)
	}
	return v, nil
}

// Release forgets a ref. It reports whether the ref was known.
func (s *Space) Release(ref Ref) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.objs[ref.ID]
	if !ok {
		return false
	}
	delete(s.objs, ref.ID)
	delete(s.ids, v)
	return true
}

// ReleaseAll forgets every ref, as happens when the peer disconnects.
func (s *Space) ReleaseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objs = make(map[string]interface{})
	s.ids = make(map[interface{}]string)
}

// Len returns the number of live refs.
func (s *Space) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objs)
}
