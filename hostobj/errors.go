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
	"errors"
	"fmt"
)

var (
	ErrUnknownClass  = errors.New("hostobj: type is not exposed")
	ErrUnknownMember = errors.New("hostobj: member is not exposed")
	ErrUnknownRef    = errors.New("hostobj: unknown object reference")
	ErrUnknownModule = errors.New("hostobj: unknown module")
)

// KeyError is returned when a mapping has no entry for a key.
type KeyError struct {
	Key string
}

func (e *KeyError) Error() string     { return fmt.Sprintf("key %q not found", e.Key) }
func (e *KeyError) ErrorType() string { return "KeyError" }

// IndexError is returned for an out of range sequence index.
type IndexError struct {
	Index, Len int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %d out of range [0, %d)", e.Index, e.Len)
}
func (e *IndexError) ErrorType() string { return "IndexError" }

// ArgumentError reports arguments that do not fit a member's signature.
type ArgumentError struct {
	Member string
	Err    error
}

func (e *ArgumentError) Error() string     { return fmt.Sprintf("%s: %v", e.Member, e.Err) }
func (e *ArgumentError) Unwrap() error     { return e.Err }
func (e *ArgumentError) ErrorType() string { return "TypeError" }
