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

package version

import (
	"runtime/debug"
	"time"
)

// Set by the release build through -ldflags "-X ...internal/version.gitCommit=...".
var gitCommit, gitDate string

// VCSInfo describes the commit a binary was built from.
type VCSInfo struct {
	Commit string
	Date   string // YYYYMMDD
	Dirty  bool
}

// VCS returns the commit the running binary was built from. Linker supplied
// values win over the go toolchain's embedded build settings, which are only
// trusted when hostbridge is the main module.
func VCS() (VCSInfo, bool) {
	if gitCommit != "" {
		return VCSInfo{Commit: gitCommit, Date: gitDate}, true
	}
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Path != ourPath {
		return VCSInfo{}, false
	}
	return vcsFromSettings(info.Settings)
}

func vcsFromSettings(settings []debug.BuildSetting) (VCSInfo, bool) {
	var v VCSInfo
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			v.Commit = s.Value
		case "vcs.modified":
			v.Dirty = s.Value == "true"
		case "vcs.time":
			if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
				v.Date = t.UTC().Format("20060102")
			}
		}
	}
	return v, v.Commit != "" && v.Date != ""
}
