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
	"sort"
	"sync"
)

// Modules holds the named root objects peers can import.
type Modules struct {
	mu sync.RWMutex
	m  map[string]interface{}
}

// NewModules creates an empty module registry.
func NewModules() *Modules {
	return &Modules{m: make(map[string]interface{})}
}

// Register publishes obj under name, replacing any previous object.
func (m *Modules) Register(name string, obj interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[name] = obj
}

// Lookup returns the object published under name.
func (m *Modules) Lookup(name string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.m[name]
	return obj, ok
}

// Names returns the published names in sorted order.
func (m *Modules) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.m))
	for name := range m.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
