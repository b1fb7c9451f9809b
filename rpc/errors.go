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
	"errors"
	"fmt"
)

var (
	ErrClientQuit = errors.New("client is closed")
	ErrNoResult   = errors.New("JSON-RPC response has no result")
)

// Error is an error with a JSON-RPC error code. Errors returned by calls
// implement it when the remote side answered with an error response.
type Error interface {
	Error() string
	ErrorCode() int
}

// DataError is an error carrying the data member of an error response.
type DataError interface {
	Error() string
	ErrorData() interface{}
}

// TypedError is implemented by errors that name their own type for the caller.
// Other errors are reported under the name of their innermost Go type.
type TypedError interface {
	Error() string
	ErrorType() string
}

const (
	errcodeDefault        = -32000
	errcodeParse          = -32700
	errcodeInvalidRequest = -32600
	errcodeMethodNotFound = -32601
	errcodeInvalidParams  = -32602
	errcodeInternal       = -32603
	errcodePanic          = errcodeInternal
	errcodeMarshalError   = errcodeInternal
)

type methodNotFoundError struct{ method string }

func (e *methodNotFoundError) ErrorCode() int { return errcodeMethodNotFound }

func (e *methodNotFoundError) Error() string {
	return fmt.Sprintf("method %s is not available", e.method)
}

type parseError struct{ message string }

func (e *parseError) ErrorCode() int { return errcodeParse }

func (e *parseError) Error() string { return e.message }

type invalidRequestError struct{ message string }

func (e *invalidRequestError) ErrorCode() int { return errcodeInvalidRequest }

func (e *invalidRequestError) Error() string { return e.message }

type invalidParamsError struct{ message string }

func (e *invalidParamsError) ErrorCode() int { return errcodeInvalidParams }

func (e *invalidParamsError) Error() string { return e.message }

// internalServerError reports a failure of the server itself, such as a
// crashed handler or an unencodable result.
type internalServerError struct {
	code    int
	message string
}

func (e *internalServerError) ErrorCode() int { return e.code }

func (e *internalServerError) Error() string { return e.message }
