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
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

const (
	protocolVersion = "2.0"
	methodSeparator = "_"
)

var nullID = json.RawMessage("null")

type messageKind int

const (
	invalidMessage messageKind = iota
	callMessage
	notificationMessage
	responseMessage
)

// message is one JSON-RPC 2.0 object on the wire. The fields that are set
// decide whether it is a call, a notification or a response.
type message struct {
	Version string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *wireError      `json:"error,omitempty"`
}

func newCall(id json.RawMessage, method string, args []interface{}) (*message, error) {
	msg := &message{Version: protocolVersion, ID: id, Method: method}
	if len(args) > 0 {
		params, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encoding arguments of %s: %w", method, err)
		}
		msg.Params = params
	}
	return msg, nil
}

func (m *message) kind() messageKind {
	if m.Version != protocolVersion {
		return invalidMessage
	}
	switch {
	case m.Method != "" && len(m.ID) == 0:
		return notificationMessage
	case m.Method != "" && validID(m.ID):
		return callMessage
	case m.Method == "" && validID(m.ID) && (m.Result != nil || m.Error != nil):
		return responseMessage
	}
	return invalidMessage
}

// validID reports whether id is a JSON scalar, which is all JSON-RPC allows.
func validID(id json.RawMessage) bool {
	return len(id) > 0 && id[0] != '{' && id[0] != '['
}

// reply builds the success response to m.
func (m *message) reply(result interface{}) *message {
	enc, err := json.Marshal(result)
	if err != nil {
		return m.fail(&internalServerError{errcodeMarshalError, err.Error()})
	}
	return &message{Version: protocolVersion, ID: m.ID, Result: enc}
}

// fail builds the error response to m. Messages without a usable id are
// answered with a null id.
func (m *message) fail(err error) *message {
	id := nullID
	if m != nil && validID(m.ID) {
		id = m.ID
	}
	return &message{Version: protocolVersion, ID: id, Error: toWireError(err)}
}

// result decodes the outcome of a response into out, which may be nil.
func (m *message) result(out interface{}) error {
	switch {
	case m.Error != nil:
		return m.Error
	case len(m.Result) == 0:
		return ErrNoResult
	case out == nil:
		return nil
	}
	return json.Unmarshal(m.Result, out)
}

func (m *message) String() string {
	enc, _ := json.Marshal(m)
	return string(enc)
}

// wireError is the error member of a response.
type wireError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func toWireError(err error) *wireError {
	we := &wireError{Code: errcodeDefault, Message: err.Error()}
	var coded Error
	if errors.As(err, &coded) {
		we.Code = coded.ErrorCode()
	}
	if de, ok := err.(DataError); ok {
		we.Data = de.ErrorData()
	}
	return we
}

func (e *wireError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("json-rpc error %d", e.Code)
	}
	return e.Message
}

func (e *wireError) ErrorCode() int { return e.Code }

func (e *wireError) ErrorData() interface{} { return e.Data }

// decodeParams unpacks positional params into values of the given types.
// Trailing pointer arguments may be omitted and are passed as nil.
func decodeParams(params json.RawMessage, types []reflect.Type) ([]reflect.Value, error) {
	var raw []json.RawMessage
	if trimmed := strings.TrimSpace(string(params)); trimmed != "" && trimmed != "null" {
		if trimmed[0] != '[' {
			return nil, errors.New("params must be an array")
		}
		if err := json.Unmarshal(params, &raw); err != nil {
			return nil, err
		}
	}
	if len(raw) > len(types) {
		return nil, fmt.Errorf("too many arguments, want at most %d", len(types))
	}
	args := make([]reflect.Value, len(types))
	for i, typ := range types {
		if i >= len(raw) {
			if typ.Kind() != reflect.Ptr {
				return nil, fmt.Errorf("missing value for required argument %d", i)
			}
			args[i] = reflect.Zero(typ)
			continue
		}
		v := reflect.New(typ)
		if err := json.Unmarshal(raw[i], v.Interface()); err != nil {
			return nil, fmt.Errorf("invalid argument %d: %v", i, err)
		}
		args[i] = v.Elem()
	}
	return args, nil
}
