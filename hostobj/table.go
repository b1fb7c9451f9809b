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

// Package hostobj exposes host objects to remote peers.
//
// Only types registered in a Table are reachable, and only through the members
// listed for them. Each member is tagged Fast, meaning it may run on the peer's
// I/O goroutine, or Slow, meaning it must run on the host main thread through
// the job queue.
package hostobj

import (
	"fmt"
	"reflect"
	"sort"
	"sync/atomic"
)

// Kind classifies where a member may execute.
type Kind int

const (
	Slow Kind = iota // runs on the main thread
	Fast             // safe from any goroutine
)

func (k Kind) String() string {
	if k == Fast {
		return "fast"
	}
	return "slow"
}

// Member exposes the Go method Method under Name.
type Member struct {
	Name   string
	Method string
	Kind   Kind
}

// Class is an exposed type together with its members.
type Class struct {
	Name    string
	typ     reflect.Type
	members map[string]*member
}

type member struct {
	name     string
	kind     Kind
	fn       reflect.Value
	argTypes []reflect.Type
	errPos   int
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Members returns the exposed member names in sorted order.
func (c *Class) Members() []string {
	names := make([]string, 0, len(c.members))
	for name := range c.members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Kind reports the classification of a member.
func (c *Class) Kind(name string) (Kind, error) {
	m, ok := c.members[name]
	if !ok {
		return Slow, fmt.Errorf("%w: %s.%s", ErrUnknownMember, c.Name, name)
	}
	return m.kind, nil
}

// Table is the fast-call classification table. It is filled at startup and
// frozen before peers connect; afterwards it is read without locking.
type Table struct {
	frozen atomic.Bool
	byType map[reflect.Type]*Class
	byName map[string]*Class
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		byType: make(map[reflect.Type]*Class),
		byName: make(map[string]*Class),
	}
}

// Register exposes the type of sample, which must be a pointer, under name.
// It panics if the table is frozen or a member does not name a usable method.
func (t *Table) Register(name string, sample interface{}, members ...Member) *Class {
	if t.frozen.Load() {
		panic("hostobj: register on frozen table")
	}
	typ := reflect.TypeOf(sample)
	if typ == nil || typ.Kind() != reflect.Ptr {
		panic(fmt.Sprintf("hostobj: class %s must be a pointer type, got %v", name, typ))
	}
	if _, exists := t.byName[name]; exists {
		panic(fmt.Sprintf("hostobj: duplicate class %s", name))
	}
	c := &Class{Name: name, typ: typ, members: make(map[string]*member)}
	for _, m := range members {
		method, ok := typ.MethodByName(m.Method)
		if !ok {
			panic(fmt.Sprintf("hostobj: %s has no method %s", typ, m.Method))
		}
		mem, err := newMember(m, method)
		if err != nil {
			panic(fmt.Sprintf("hostobj: %s.%s: %v", name, m.Name, err))
		}
		c.members[m.Name] = mem
	}
	t.byType[typ] = c
	t.byName[name] = c
	return c
}

func newMember(m Member, method reflect.Method) (*member, error) {
	fntype := method.Type
	mem := &member{name: m.Name, kind: m.Kind, fn: method.Func, errPos: -1}
	// Skip the receiver.
	for i := 1; i < fntype.NumIn(); i++ {
		mem.argTypes = append(mem.argTypes, fntype.In(i))
	}
	switch {
	case fntype.NumOut() > 2:
		return nil, fmt.Errorf("too many results")
	case fntype.NumOut() == 1 && fntype.Out(0).Implements(errorType):
		mem.errPos = 0
	case fntype.NumOut() == 2:
		if !fntype.Out(1).Implements(errorType) {
			return nil, fmt.Errorf("second result must be an error")
		}
		mem.errPos = 1
	}
	return mem, nil
}

// Freeze makes the table read-only.
func (t *Table) Freeze() {
	t.frozen.Store(true)
}

// Frozen reports whether Freeze has been called.
func (t *Table) Frozen() bool {
	return t.frozen.Load()
}

// Class returns the class of v.
func (t *Table) Class(v interface{}) (*Class, error) {
	if c, ok := t.byType[reflect.TypeOf(v)]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownClass, v)
}

// ClassByName returns the class registered under name.
func (t *Table) ClassByName(name string) (*Class, bool) {
	c, ok := t.byName[name]
	return c, ok
}

// Classify reports whether member of v is fast or slow.
func (t *Table) Classify(v interface{}, name string) (Kind, error) {
	c, err := t.Class(v)
	if err != nil {
		return Slow, err
	}
	return c.Kind(name)
}

func (t *Table) isClass(typ reflect.Type) bool {
	_, ok := t.byType[typ]
	return ok
}
