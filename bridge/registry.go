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

package bridge

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// Registry maps client names to their live connections, oldest first. Several
// connections may share a name: the newest one serves lookups without an index
// while older ones stay reachable by position.
type Registry struct {
	mu    sync.RWMutex
	conns map[string][]*Connection
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string][]*Connection)}
}

// Add appends c to the connections registered under its name.
func (r *Registry) Add(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.name] = append(r.conns[c.name], c)
}

// Remove drops c, reporting whether it was registered.
func (r *Registry) Remove(c *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.conns[c.name]
	for i, have := range list {
		if have != c {
			continue
		}
		list = append(list[:i:i], list[i+1:]...)
		if len(list) == 0 {
			delete(r.conns, c.name)
		} else {
			r.conns[c.name] = list
		}
		return true
	}
	return false
}

// Lookup returns the connection of name at index. Negative indexes count from
// the newest connection, so -1 selects the one that took over the name last.
func (r *Registry) Lookup(name string, index int) (*Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list, ok := r.conns[name]
	if !ok {
		return nil, &ClientNotFoundError{Name: name}
	}
	i := index
	if i < 0 {
		i += len(list)
	}
	if i < 0 || i >= len(list) {
		return nil, &ConnectionIndexError{Name: name, Index: index, Len: len(list)}
	}
	return list[i], nil
}

// Count returns the number of connections registered under name.
func (r *Registry) Count(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[name])
}

// Total returns the number of registered connections.
func (r *Registry) Total() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, list := range r.conns {
		n += len(list)
	}
	return n
}

// Names returns the set of names with at least one connection.
func (r *Registry) Names() mapset.Set[string] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := mapset.NewSetWithSize[string](len(r.conns))
	for name := range r.conns {
		names.Add(name)
	}
	return names
}

// All returns every registered connection.
func (r *Registry) All() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []*Connection
	for _, list := range r.conns {
		all = append(all, list...)
	}
	return all
}

// Clear empties the registry and returns what it held.
func (r *Registry) Clear() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []*Connection
	for _, list := range r.conns {
		all = append(all, list...)
	}
	r.conns = make(map[string][]*Connection)
	return all
}
