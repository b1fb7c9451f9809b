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

// Dict is a string keyed mapping shared with peers. Reads are fast, writes run on
// the main thread.
type Dict struct {
	mu sync.RWMutex
	m  map[string]interface{}
}

// NewDict creates an empty dict.
func NewDict() *Dict {
	return &Dict{m: make(map[string]interface{})}
}

func (d *Dict) Get(key string) (interface{}, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.m[key]
	if !ok {
		return nil, &KeyError{Key: key}
	}
	return v, nil
}

func (d *Dict) Contains(key string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.m[key]
	return ok
}

// Keys returns the keys in sorted order.
func (d *Dict) Keys() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	keys := make([]string, 0, len(d.m))
	for k := range d.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d *Dict) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.m)
}

func (d *Dict) Set(key string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.m[key] = value
}

func (d *Dict) Delete(key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.m[key]; !ok {
		return &KeyError{Key: key}
	}
	delete(d.m, key)
	return nil
}

func (d *Dict) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.m = make(map[string]interface{})
}

// List is a sequence shared with peers. Reads are fast, writes run on the main
// thread.
type List struct {
	mu    sync.RWMutex
	items []interface{}
}

// NewList creates a list holding items.
func NewList(items ...interface{}) *List {
	return &List{items: items}
}

func (l *List) Get(i int) (interface{}, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.items) {
		return nil, &IndexError{Index: i, Len: len(l.items)}
	}
	return l.items[i], nil
}

func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

func (l *List) Append(v interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, v)
}

func (l *List) Set(i int, v interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 || i >= len(l.items) {
		return &IndexError{Index: i, Len: len(l.items)}
	}
	l.items[i] = v
	return nil
}

// Pop removes and returns the last item.
func (l *List) Pop() (interface{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) == 0 {
		return nil, &IndexError{Index: -1, Len: 0}
	}
	v := l.items[len(l.items)-1]
	l.items = l.items[:len(l.items)-1]
	return v, nil
}

// RegisterBuiltins exposes Dict and List in t.
func RegisterBuiltins(t *Table) {
	t.Register("Dict", (*Dict)(nil),
		Member{Name: "get", Method: "Get", Kind: Fast},
		Member{Name: "contains", Method: "Contains", Kind: Fast},
		Member{Name: "keys", Method: "Keys", Kind: Fast},
		Member{Name: "len", Method: "Len", Kind: Fast},
		Member{Name: "set", Method: "Set", Kind: Slow},
		Member{Name: "delete", Method: "Delete", Kind: Slow},
		Member{Name: "clear", Method: "Clear", Kind: Slow},
	)
	t.Register("List", (*List)(nil),
		Member{Name: "get", Method: "Get", Kind: Fast},
		Member{Name: "len", Method: "Len", Kind: Fast},
		Member{Name: "append", Method: "Append", Kind: Slow},
		Member{Name: "set", Method: "Set", Kind: Slow},
		Member{Name: "pop", Method: "Pop", Kind: Slow},
	)
}

// DefaultTable returns a new table holding the built-in classes. Hosts add their
// own classes and then call Freeze.
func DefaultTable() *Table {
	t := NewTable()
	RegisterBuiltins(t)
	return t
}
