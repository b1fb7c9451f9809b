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

// Package version renders the build version of the hostbridge binaries.
package version

import (
	"fmt"

	"github.com/scriptbridge/hostbridge/version"
)

const ourPath = "github.com/scriptbridge/hostbridge"

// WithMeta is major.minor.patch followed by the release tag, e.g. 1.2.0-unstable.
var WithMeta = func() string {
	v := fmt.Sprintf("%d.%d.%d", version.Major, version.Minor, version.Patch)
	if version.Meta != "" {
		v += "-" + version.Meta
	}
	return v
}()

// WithCommit extends WithMeta with the first eight characters of commit and,
// on non-stable builds, the commit date.
func WithCommit(commit, date string) string {
	v := WithMeta
	if len(commit) >= 8 {
		v += "-" + commit[:8]
	}
	if version.Meta != "stable" && date != "" {
		v += "-" + date
	}
	return v
}
