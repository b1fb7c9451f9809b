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
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/scriptbridge/hostbridge/jobqueue"
	"github.com/scriptbridge/hostbridge/log"
	"github.com/scriptbridge/hostbridge/metrics"
)

var (
	fastCallMeter = metrics.NewRegisteredCounter("hostobj/fast", "Member accesses served inline")
	slowCallMeter = metrics.NewRegisteredCounter("hostobj/slow", "Member accesses served on the main thread")
)

// Proxy executes member accesses requested by one peer.
type Proxy struct {
	table   *Table
	space   *Space
	queue   *jobqueue.Queue
	modules *Modules
	log     log.Logger
}

// NewProxy creates a proxy serving refs from space. Slow members are sent to queue.
func NewProxy(table *Table, space *Space, queue *jobqueue.Queue, modules *Modules) *Proxy {
	return &Proxy{
		table:   table,
		space:   space,
		queue:   queue,
		modules: modules,
		log:     log.Root(),
	}
}

// Space returns the ref space of the proxy.
func (p *Proxy) Space() *Space {
	return p.space
}

// Export converts v into its wire form: exposed objects become refs, also
// inside plain lists and maps. Anything else is returned unchanged for JSON
// encoding.
func (p *Proxy) Export(v interface{}) (interface{}, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			x, err := p.Export(item)
			if err != nil {
				return nil, err
			}
			out[i] = x
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			x, err := p.Export(item)
			if err != nil {
				return nil, err
			}
			out[k] = x
		}
		return out, nil
	}
	if !p.table.isClass(reflect.TypeOf(v)) {
		return v, nil
	}
	return p.space.Put(v)
}

// resolve replaces every ref-shaped value in a decoded argument with the
// object it names, so containers hold host objects rather than their wire form.
func (p *Proxy) resolve(v interface{}) (interface{}, error) {
	switch v := v.(type) {
	case []interface{}:
		for i, item := range v {
			x, err := p.resolve(item)
			if err != nil {
				return nil, err
			}
			v[i] = x
		}
		return v, nil
	case map[string]interface{}:
		if ref, ok := asRef(v); ok {
			return p.space.Get(ref)
		}
		for k, item := range v {
			x, err := p.resolve(item)
			if err != nil {
				return nil, err
			}
			v[k] = x
		}
		return v, nil
	}
	return v, nil
}

// asRef reports whether m is exactly the wire form of a Ref.
func asRef(m map[string]interface{}) (Ref, bool) {
	if len(m) != 2 {
		return Ref{}, false
	}
	id, ok1 := m["ref"].(string)
	typ, ok2 := m["type"].(string)
	if !ok1 || !ok2 {
		return Ref{}, false
	}
	return Ref{ID: id, Type: typ}, true
}

// Import returns a ref to the module published under name.
func (p *Proxy) Import(name string) (Ref, error) {
	obj, ok := p.modules.Lookup(name)
	if !ok {
		return Ref{}, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	return p.space.Put(obj)
}

// Getattr reads a property, a member taking no arguments.
func (p *Proxy) Getattr(ctx context.Context, ref Ref, name string) (interface{}, error) {
	return p.Call(ctx, ref, name, nil)
}

// Call invokes a member of the object behind ref. Fast members run on the calling
// goroutine. Slow members are queued for the main thread and Call blocks until
// they have run; the error they return is passed back unchanged.
func (p *Proxy) Call(ctx context.Context, ref Ref, name string, rawArgs []json.RawMessage) (interface{}, error) {
	obj, err := p.space.Get(ref)
	if err != nil {
		return nil, err
	}
	class, err := p.table.Class(obj)
	if err != nil {
		return nil, err
	}
	m, ok := class.members[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownMember, class.Name, name)
	}
	args, err := p.decodeArgs(m, rawArgs)
	if err != nil {
		return nil, err
	}
	invoke := func() (interface{}, error) {
		return m.call(obj, args)
	}

	var result interface{}
	if m.kind == Fast {
		fastCallMeter.Inc()
		result, err = invoke()
	} else {
		slowCallMeter.Inc()
		p.log.Trace("Queueing slow member access", "class", class.Name, "member", name)
		result, err = p.queue.Call(ctx, invoke)
	}
	if err != nil {
		return nil, err
	}
	return p.Export(result)
}

func (p *Proxy) decodeArgs(m *member, raw []json.RawMessage) ([]reflect.Value, error) {
	if len(raw) > len(m.argTypes) {
		return nil, &ArgumentError{m.name, fmt.Errorf("too many arguments, want at most %d", len(m.argTypes))}
	}
	args := make([]reflect.Value, len(m.argTypes))
	for i, typ := range m.argTypes {
		if i >= len(raw) {
			if typ.Kind() != reflect.Ptr && typ.Kind() != reflect.Interface {
				return nil, &ArgumentError{m.name, fmt.Errorf("missing value for required argument %d", i)}
			}
			args[i] = reflect.Zero(typ)
			continue
		}
		if p.table.isClass(typ) {
			var ref Ref
			if err := json.Unmarshal(raw[i], &ref); err != nil {
				return nil, &ArgumentError{m.name, fmt.Errorf("argument %d: %v", i, err)}
			}
			obj, err := p.space.Get(ref)
			if err != nil {
				return nil, err
			}
			if reflect.TypeOf(obj) != typ {
				return nil, &ArgumentError{m.name, fmt.Errorf("argument %d: want %s, got %s", i, typ, ref.Type)}
			}
			args[i] = reflect.ValueOf(obj)
			continue
		}
		val := reflect.New(typ)
		if err := json.Unmarshal(raw[i], val.Interface()); err != nil {
			return nil, &ArgumentError{m.name, fmt.Errorf("argument %d: %v", i, err)}
		}
		if typ.Kind() == reflect.Interface && !val.Elem().IsNil() {
			obj, err := p.resolve(val.Elem().Interface())
			if err != nil {
				return nil, err
			}
			val.Elem().Set(reflect.ValueOf(obj))
		}
		args[i] = val.Elem()
	}
	return args, nil
}

func (m *member) call(obj interface{}, args []reflect.Value) (interface{}, error) {
	full := make([]reflect.Value, 0, len(args)+1)
	full = append(full, reflect.ValueOf(obj))
	full = append(full, args...)

	results := m.fn.Call(full)
	if m.errPos >= 0 && !results[m.errPos].IsNil() {
		return nil, results[m.errPos].Interface().(error)
	}
	if len(results) == 0 || m.errPos == 0 {
		return nil, nil
	}
	return results[0].Interface(), nil
}
