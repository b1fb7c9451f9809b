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

package rpc

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"unicode"

	"github.com/scriptbridge/hostbridge/log"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// serviceRegistry maps namespaces to the methods served under them.
type serviceRegistry struct {
	mu       sync.Mutex
	services map[string]map[string]*callback
}

// callback is an exported method bound to its receiver.
type callback struct {
	fn       reflect.Value
	rcvr     reflect.Value
	argTypes []reflect.Type // wire arguments, without receiver and context
	hasCtx   bool
	errPos   int // index of the error result, -1 if there is none
}

func (r *serviceRegistry) registerName(name string, rcvr interface{}) error {
	if name == "" {
		return fmt.Errorf("no service name for type %T", rcvr)
	}
	if strings.Contains(name, methodSeparator) {
		return fmt.Errorf("service name %q must not contain %q", name, methodSeparator)
	}
	callbacks := methodsOf(reflect.ValueOf(rcvr))
	if len(callbacks) == 0 {
		return fmt.Errorf("service %T doesn't have any suitable methods to expose", rcvr)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.services == nil {
		r.services = make(map[string]map[string]*callback)
	}
	if r.services[name] == nil {
		r.services[name] = make(map[string]*callback)
	}
	for method, cb := range callbacks {
		r.services[name][method] = cb
	}
	return nil
}

// callback looks up a namespace_method name.
func (r *serviceRegistry) callback(method string) *callback {
	ns, name, ok := strings.Cut(method, methodSeparator)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.services[ns][name]
}

func (r *serviceRegistry) modules() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	return names
}

// methodsOf returns the exported methods of receiver usable as callbacks,
// keyed by their wire name.
func methodsOf(receiver reflect.Value) map[string]*callback {
	typ := receiver.Type()
	callbacks := make(map[string]*callback)
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		if !method.IsExported() {
			continue
		}
		if cb := newCallback(receiver, method.Func); cb != nil {
			callbacks[formatName(method.Name)] = cb
		}
	}
	return callbacks
}

// newCallback binds fn to receiver. Methods may take a leading context and
// return at most a value and an error, in that order; others yield nil.
func newCallback(receiver, fn reflect.Value) *callback {
	ft := fn.Type()
	cb := &callback{fn: fn, rcvr: receiver, errPos: -1}

	first := 1 // receiver
	if ft.NumIn() > first && ft.In(first) == contextType {
		cb.hasCtx = true
		first++
	}
	for i := first; i < ft.NumIn(); i++ {
		cb.argTypes = append(cb.argTypes, ft.In(i))
	}

	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0).Implements(errorType) {
			cb.errPos = 0
		}
	case 2:
		if ft.Out(0).Implements(errorType) || !ft.Out(1).Implements(errorType) {
			return nil
		}
		cb.errPos = 1
	default:
		return nil
	}
	return cb
}

// call runs the method. A panic is logged with its stack and returned as an
// internal error.
func (c *callback) call(ctx context.Context, method string, args []reflect.Value) (res interface{}, err error) {
	in := make([]reflect.Value, 0, len(args)+2)
	in = append(in, c.rcvr)
	if c.hasCtx {
		in = append(in, reflect.ValueOf(ctx))
	}
	in = append(in, args...)

	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 64<<10)
			buf = buf[:runtime.Stack(buf, false)]
			log.Error("RPC method "+method+" crashed", "err", r, "stack", string(buf))
			res, err = nil, &internalServerError{errcodePanic, fmt.Sprintf("method handler crashed: %v", r)}
		}
	}()
	out := c.fn.Call(in)
	if c.errPos >= 0 && !out[c.errPos].IsNil() {
		return nil, out[c.errPos].Interface().(error)
	}
	if len(out) == 0 || c.errPos == 0 {
		return nil, nil
	}
	return out[0].Interface(), nil
}

// formatName converts a Go method name to its snake_case RPC form, so that
// ClientName becomes client_name and OnServerShutdown becomes on_server_shutdown.
// Runs of capitals are kept together: HTTPServer becomes http_server.
func formatName(name string) string {
	rs := []rune(name)
	var b strings.Builder
	for i, r := range rs {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := rs[i-1]
				nextLower := i+1 < len(rs) && unicode.IsLower(rs[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
