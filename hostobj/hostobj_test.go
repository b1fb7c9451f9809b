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
	"errors"
	"testing"
	"time"

	"github.com/scriptbridge/hostbridge/common/mclock"
	"github.com/scriptbridge/hostbridge/jobqueue"
	"github.com/stretchr/testify/require"
)

// scene is a host type used to exercise ref arguments and results.
type scene struct {
	props *Dict
}

func (s *scene) Props() *Dict { return s.props }

func (s *scene) Merge(d *Dict) int {
	for _, k := range d.Keys() {
		v, _ := d.Get(k)
		s.props.Set(k, v)
	}
	return s.props.Len()
}

func newTestTable() *Table {
	t := DefaultTable()
	t.Register("Scene", (*scene)(nil),
		Member{Name: "props", Method: "Props", Kind: Fast},
		Member{Name: "merge", Method: "Merge", Kind: Slow},
	)
	t.Freeze()
	return t
}

func raw(t *testing.T, vals ...interface{}) []json.RawMessage {
	out := make([]json.RawMessage, len(vals))
	for i, v := range vals {
		enc, err := json.Marshal(v)
		require.NoError(t, err)
		out[i] = enc
	}
	return out
}

func TestTableFrozen(t *testing.T) {
	table := newTestTable()
	require.True(t, table.Frozen())
	require.Panics(t, func() {
		table.Register("Other", (*Dict)(nil))
	})
}

func TestTableRejectsBadMembers(t *testing.T) {
	require.Panics(t, func() {
		NewTable().Register("Dict", (*Dict)(nil), Member{Name: "nope", Method: "DoesNotExist"})
	})
	require.Panics(t, func() {
		NewTable().Register("Value", 0)
	})
}

func TestClassify(t *testing.T) {
	table := newTestTable()
	d := NewDict()

	kind, err := table.Classify(d, "get")
	require.NoError(t, err)
	require.Equal(t, Fast, kind)

	kind, err = table.Classify(d, "set")
	require.NoError(t, err)
	require.Equal(t, Slow, kind)

	_, err = table.Classify(d, "m")
	require.ErrorIs(t, err, ErrUnknownMember)

	_, err = table.Classify("not exposed", "len")
	require.ErrorIs(t, err, ErrUnknownClass)

	class, ok := table.ClassByName("List")
	require.True(t, ok)
	require.Equal(t, []string{"append", "get", "len", "pop", "set"}, class.Members())
}

func TestSpaceRefs(t *testing.T) {
	space := NewSpace(newTestTable())
	d := NewDict()

	r1, err := space.Put(d)
	require.NoError(t, err)
	r2, err := space.Put(d)
	require.NoError(t, err)
	require.Equal(t, r1, r2)
	require.Equal(t, "Dict", r1.Type)
	require.Equal(t, 1, space.Len())

	enc, err := json.Marshal(r1)
	require.NoError(t, err)
	require.JSONEq(t, `{"ref":"`+r1.ID+`","type":"Dict"}`, string(enc))

	require.True(t, space.Release(r1))
	require.False(t, space.Release(r1))
	_, err = space.Get(r1)
	require.ErrorIs(t, err, ErrUnknownRef)

	_, err = space.Put(42)
	require.ErrorIs(t, err, ErrUnknownClass)
}

type proxyEnv struct {
	proxy *Proxy
	queue *jobqueue.Queue
	dict  *Dict
	ref   Ref
}

func newProxyEnv(t *testing.T) *proxyEnv {
	table := newTestTable()
	queue := jobqueue.New(new(mclock.Simulated))
	modules := NewModules()
	env := &proxyEnv{
		proxy: NewProxy(table, NewSpace(table), queue, modules),
		queue: queue,
		dict:  NewDict(),
	}
	modules.Register("scene", &scene{props: NewDict()})
	ref, err := env.proxy.Space().Put(env.dict)
	require.NoError(t, err)
	env.ref = ref
	return env
}

// callSlow runs a slow member access on another goroutine, drains it and returns
// its result, checking the queue goes from empty to one job and back.
func (env *proxyEnv) callSlow(t *testing.T, ref Ref, member string, args []json.RawMessage) (interface{}, error) {
	type result struct {
		v   interface{}
		err error
	}
	require.Zero(t, env.queue.Len())
	done := make(chan result, 1)
	go func() {
		v, err := env.proxy.Call(context.Background(), ref, member, args)
		done <- result{v, err}
	}()
	require.Eventually(t, func() bool { return env.queue.Len() == 1 }, time.Second, time.Millisecond)
	select {
	case <-done:
		t.Fatal("slow member returned before drain")
	default:
	}
	n, err := env.queue.Drain(jobqueue.DefaultBudget)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Zero(t, env.queue.Len())

	select {
	case r := <-done:
		return r.v, r.err
	case <-time.After(time.Second):
		t.Fatal("slow member did not return after drain")
		return nil, nil
	}
}

func TestProxyFastPathInline(t *testing.T) {
	env := newProxyEnv(t)
	env.dict.Set("a", 1.0)

	v, err := env.proxy.Call(context.Background(), env.ref, "get", raw(t, "a"))
	require.NoError(t, err)
	require.Equal(t, 1.0, v)

	v, err = env.proxy.Getattr(context.Background(), env.ref, "len")
	require.NoError(t, err)
	require.Equal(t, 1, v)
	require.Zero(t, env.queue.Len())
}

func TestProxySlowPathRoundTrip(t *testing.T) {
	env := newProxyEnv(t)

	_, err := env.callSlow(t, env.ref, "set", raw(t, "color", "red"))
	require.NoError(t, err)

	// Visible through the fast path.
	v, err := env.proxy.Call(context.Background(), env.ref, "get", raw(t, "color"))
	require.NoError(t, err)
	require.Equal(t, "red", v)

	// And to the host directly.
	v, err = env.dict.Get("color")
	require.NoError(t, err)
	require.Equal(t, "red", v)
}

func TestProxySlowPathErrorIdentity(t *testing.T) {
	env := newProxyEnv(t)

	_, err := env.callSlow(t, env.ref, "delete", raw(t, "missing"))
	var keyErr *KeyError
	require.True(t, errors.As(err, &keyErr))
	require.Equal(t, "missing", keyErr.Key)
}

func TestProxyRejectsUnknown(t *testing.T) {
	env := newProxyEnv(t)

	_, err := env.proxy.Call(context.Background(), env.ref, "m", nil)
	require.ErrorIs(t, err, ErrUnknownMember)

	_, err = env.proxy.Call(context.Background(), Ref{ID: "nope", Type: "Dict"}, "len", nil)
	require.ErrorIs(t, err, ErrUnknownRef)

	_, err = env.proxy.Call(context.Background(), env.ref, "len", raw(t, 1))
	var argErr *ArgumentError
	require.True(t, errors.As(err, &argErr))

	_, err = env.proxy.Call(context.Background(), env.ref, "get", nil)
	require.True(t, errors.As(err, &argErr))
	require.Zero(t, env.queue.Len())
}

func TestProxyRefArgumentsAndResults(t *testing.T) {
	env := newProxyEnv(t)
	env.dict.Set("k", "v")

	sceneRef, err := env.proxy.Import("scene")
	require.NoError(t, err)
	require.Equal(t, "Scene", sceneRef.Type)

	_, err = env.proxy.Import("nothing")
	require.ErrorIs(t, err, ErrUnknownModule)

	// Exposed results come back as refs.
	props, err := env.proxy.Getattr(context.Background(), sceneRef, "props")
	require.NoError(t, err)
	propsRef, ok := props.(Ref)
	require.True(t, ok)
	require.Equal(t, "Dict", propsRef.Type)

	// Ref arguments are resolved from the space.
	n, err := env.callSlow(t, sceneRef, "merge", raw(t, env.ref))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	v, err := env.proxy.Call(context.Background(), propsRef, "get", raw(t, "k"))
	require.NoError(t, err)
	require.Equal(t, "v", v)

	// A ref of the wrong class is refused.
	_, err = env.proxy.Call(context.Background(), sceneRef, "merge", raw(t, sceneRef))
	var argErr *ArgumentError
	require.True(t, errors.As(err, &argErr))
}

func TestProxySlowPathCancelled(t *testing.T) {
	env := newProxyEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.proxy.Call(ctx, env.ref, "set", raw(t, "x", 1))
	require.ErrorIs(t, err, context.Canceled)
	n, err := env.queue.Drain(jobqueue.DefaultBudget)
	require.NoError(t, err)
	require.Zero(t, n)
	require.False(t, env.dict.Contains("x"))
}

func TestListMembers(t *testing.T) {
	env := newProxyEnv(t)
	list := NewList("a")
	ref, err := env.proxy.Space().Put(list)
	require.NoError(t, err)

	_, err = env.callSlow(t, ref, "append", raw(t, "b"))
	require.NoError(t, err)
	v, err := env.proxy.Call(context.Background(), ref, "get", raw(t, 1))
	require.NoError(t, err)
	require.Equal(t, "b", v)

	v, err = env.callSlow(t, ref, "pop", nil)
	require.NoError(t, err)
	require.Equal(t, "b", v)

	_, err = env.proxy.Call(context.Background(), ref, "get", raw(t, 5))
	var idxErr *IndexError
	require.True(t, errors.As(err, &idxErr))
}

func TestContainersHoldHostObjects(t *testing.T) {
	env := newProxyEnv(t)
	inner := NewDict()
	inner.Set("depth", 1.0)
	innerRef, err := env.proxy.Space().Put(inner)
	require.NoError(t, err)

	// A ref stored in a dict is kept as the object and handed back as the same ref.
	_, err = env.callSlow(t, env.ref, "set", raw(t, "child", innerRef))
	require.NoError(t, err)
	stored, err := env.dict.Get("child")
	require.NoError(t, err)
	require.Same(t, inner, stored)
	v, err := env.proxy.Call(context.Background(), env.ref, "get", raw(t, "child"))
	require.NoError(t, err)
	require.Equal(t, innerRef, v)

	// Refs nested in plain values are resolved and exported as well.
	list := NewList()
	listRef, err := env.proxy.Space().Put(list)
	require.NoError(t, err)
	_, err = env.callSlow(t, listRef, "append", raw(t, []interface{}{innerRef, "x"}))
	require.NoError(t, err)
	item, err := list.Get(0)
	require.NoError(t, err)
	require.Same(t, inner, item.([]interface{})[0])
	v, err = env.proxy.Call(context.Background(), listRef, "get", raw(t, 0))
	require.NoError(t, err)
	require.Equal(t, []interface{}{innerRef, "x"}, v)

	// A ref with an unknown id is refused. Other maps stay plain values.
	_, err = env.proxy.Call(context.Background(), env.ref, "set", raw(t, "stale", Ref{ID: "gone", Type: "Dict"}))
	require.ErrorIs(t, err, ErrUnknownRef)
	require.Zero(t, env.queue.Len())
	require.False(t, env.dict.Contains("stale"))

	_, err = env.callSlow(t, env.ref, "set", raw(t, "plain", map[string]interface{}{"ref": "a", "type": "b", "extra": true}))
	require.NoError(t, err)
	plain, err := env.dict.Get("plain")
	require.NoError(t, err)
	require.IsType(t, map[string]interface{}{}, plain)
}
