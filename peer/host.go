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

package peer

import (
	"context"
	"encoding/json"

	"github.com/scriptbridge/hostbridge/hostobj"
	"github.com/scriptbridge/hostbridge/rpc"
)

// HostObject is a handle on an object living in the host.
type HostObject struct {
	host *rpc.Client
	Ref  hostobj.Ref
}

// NewHostObject wraps a ref received from the host.
func NewHostObject(host *rpc.Client, ref hostobj.Ref) *HostObject {
	return &HostObject{host: host, Ref: ref}
}

// Import returns the host module published under name.
func Import(ctx context.Context, host *rpc.Client, name string) (*HostObject, error) {
	var ref hostobj.Ref
	if err := host.CallContext(ctx, &ref, "host_import", name); err != nil {
		return nil, err
	}
	return NewHostObject(host, ref), nil
}

// Getattr reads a property of the object into result.
func (o *HostObject) Getattr(ctx context.Context, result interface{}, name string) error {
	return o.host.CallContext(ctx, result, "host_getattr", o.Ref, name)
}

// Call invokes a member of the object. Refs of other host objects can be
// passed as arguments.
func (o *HostObject) Call(ctx context.Context, result interface{}, member string, args ...interface{}) error {
	if args == nil {
		args = []interface{}{}
	}
	return o.host.CallContext(ctx, result, "host_call", o.Ref, member, args)
}

// Object calls a member returning a host object and wraps the result.
func (o *HostObject) Object(ctx context.Context, member string, args ...interface{}) (*HostObject, error) {
	var ref hostobj.Ref
	if err := o.Call(ctx, &ref, member, args...); err != nil {
		return nil, err
	}
	return NewHostObject(o.host, ref), nil
}

// MarshalJSON encodes the object as its ref, so handles can be passed as
// arguments.
func (o *HostObject) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Ref)
}

// Release drops the handle. The object itself stays alive in the host.
func (o *HostObject) Release(ctx context.Context) error {
	return o.host.CallContext(ctx, nil, "host_release", o.Ref)
}

// HostDict is a dictionary owned by the host.
type HostDict struct {
	*HostObject
}

// NewHostDict creates an empty dictionary in the host.
func NewHostDict(ctx context.Context, host *rpc.Client) (*HostDict, error) {
	var ref hostobj.Ref
	if err := host.CallContext(ctx, &ref, "host_dict"); err != nil {
		return nil, err
	}
	return &HostDict{NewHostObject(host, ref)}, nil
}

// Get reads key into result. Missing keys fail with a KeyError.
func (d *HostDict) Get(ctx context.Context, result interface{}, key string) error {
	return d.Call(ctx, result, "get", key)
}

// Set stores value under key.
func (d *HostDict) Set(ctx context.Context, key string, value interface{}) error {
	return d.Call(ctx, nil, "set", key, value)
}

// Delete removes key.
func (d *HostDict) Delete(ctx context.Context, key string) error {
	return d.Call(ctx, nil, "delete", key)
}

// Contains reports whether key is present.
func (d *HostDict) Contains(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := d.Call(ctx, &ok, "contains", key)
	return ok, err
}

// Keys returns the keys in sorted order.
func (d *HostDict) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := d.Call(ctx, &keys, "keys")
	return keys, err
}

// Len returns the number of entries.
func (d *HostDict) Len(ctx context.Context) (int, error) {
	var n int
	err := d.Getattr(ctx, &n, "len")
	return n, err
}
