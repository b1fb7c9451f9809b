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

package launcher

import (
	"fmt"
)

// InstallError reports that the interpreter or a module it needs cannot be
// used. It is distinct from a script that ran and failed, see ExitError.
type InstallError struct {
	Msg  string
	Hint string // remediation shown to the user, may be empty
	Err  error
}

func (e *InstallError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *InstallError) Unwrap() error { return e.Err }

func (e *InstallError) ErrorType() string { return "InstallError" }

// ExitError is returned by Wait when the spawned process exits non-zero.
type ExitError struct {
	Pid  int
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("process %d exited with status %d", e.Pid, e.Code)
}
