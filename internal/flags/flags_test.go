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

package flags

import (
	"flag"
	"os"
	"os/user"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathExpansion(t *testing.T) {
	user, _ := user.Current()
	var tests map[string]string

	if runtime.GOOS == "windows" {
		tests = map[string]string{
			`/home/someuser/tmp`:        `\home\someuser\tmp`,
			`~/tmp`:                     user.HomeDir + `\tmp`,
			`~thisOtherUser/b/`:         `~thisOtherUser\b`,
			`$DDDXXX/a/b`:               `\tmp\a\b`,
			`/a/b/`:                     `\a\b`,
			`C:\Documents\Newsletters\`: `C:\Documents\Newsletters`,
			`\\.\pipe\\pipe\hostbridge`: `\\.\pipe\\pipe\hostbridge`,
		}
	} else {
		tests = map[string]string{
			`/home/someuser/tmp`:        `/home/someuser/tmp`,
			`~/tmp`:                     user.HomeDir + `/tmp`,
			`~thisOtherUser/b/`:         `~thisOtherUser/b`,
			`$DDDXXX/a/b`:               `/tmp/a/b`,
			`/a/b/`:                     `/a/b`,
			`C:\Documents\Newsletters\`: `C:\Documents\Newsletters\`,
		}
	}
	os.Setenv(`DDDXXX`, `/tmp`)
	defer os.Unsetenv(`DDDXXX`)
	for test, expected := range tests {
		require.Equal(t, expected, expandPath(test), "input %q", test)
	}
}

func TestDirectoryFlagEnv(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix paths")
	}
	t.Setenv("HOSTBRIDGE_TEST_DATADIR", "~/bridge")
	f := &DirectoryFlag{Name: "datadir", EnvVars: []string{"HOSTBRIDGE_TEST_DATADIR"}}
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	require.NoError(t, f.Apply(set))
	require.True(t, f.IsSet())
	require.Equal(t, HomeDir()+"/bridge", f.GetValue())

	require.NoError(t, set.Parse([]string{"--datadir", "/srv/bridge/../data"}))
	require.Equal(t, "/srv/data", f.GetValue())
}
