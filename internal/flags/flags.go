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
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
)

// DirectoryString is a flag.Value holding a path that is expanded as it is
// set: "~/" becomes the home directory, $VARS are substituted and the result
// is cleaned.
type DirectoryString string

func (s *DirectoryString) String() string { return string(*s) }

func (s *DirectoryString) Set(value string) error {
	*s = DirectoryString(expandPath(value))
	return nil
}

var (
	_ cli.Flag              = (*DirectoryFlag)(nil)
	_ cli.RequiredFlag      = (*DirectoryFlag)(nil)
	_ cli.VisibleFlag       = (*DirectoryFlag)(nil)
	_ cli.DocGenerationFlag = (*DirectoryFlag)(nil)
	_ cli.CategorizableFlag = (*DirectoryFlag)(nil)
)

// DirectoryFlag is a path flag whose value goes through DirectoryString
// expansion, so --datadir ~/.hostbridge yields an absolute path.
type DirectoryFlag struct {
	Name        string
	Aliases     []string
	Usage       string
	Category    string
	DefaultText string
	EnvVars     []string
	Required    bool
	Hidden      bool
	HasBeenSet  bool
	Value       DirectoryString
}

// Apply registers the flag on set. The first of EnvVars present in the
// environment provides the initial value.
func (f *DirectoryFlag) Apply(set *flag.FlagSet) error {
	for _, name := range f.EnvVars {
		if v, ok := os.LookupEnv(strings.TrimSpace(name)); ok {
			f.Value.Set(v)
			f.HasBeenSet = true
			break
		}
	}
	for _, name := range f.Names() {
		set.Var(&f.Value, strings.TrimSpace(name), f.Usage)
	}
	return nil
}

func (f *DirectoryFlag) Names() []string      { return append([]string{f.Name}, f.Aliases...) }
func (f *DirectoryFlag) IsSet() bool          { return f.HasBeenSet }
func (f *DirectoryFlag) String() string       { return cli.FlagStringer(f) }
func (f *DirectoryFlag) IsRequired() bool     { return f.Required }
func (f *DirectoryFlag) IsVisible() bool      { return !f.Hidden }
func (f *DirectoryFlag) GetCategory() string  { return f.Category }
func (f *DirectoryFlag) TakesValue() bool     { return true }
func (f *DirectoryFlag) GetUsage() string     { return f.Usage }
func (f *DirectoryFlag) GetValue() string     { return f.Value.String() }
func (f *DirectoryFlag) GetEnvVars() []string { return f.EnvVars }

func (f *DirectoryFlag) GetDefaultText() string {
	if f.DefaultText == "" {
		return f.GetValue()
	}
	return f.DefaultText
}

// expandPath applies DirectoryString expansion. Windows pipe names pass
// through untouched, and so does "~user/" which names another user's home.
func expandPath(p string) string {
	if strings.HasPrefix(p, `\\.\pipe`) {
		return p
	}
	if rest, ok := strings.CutPrefix(p, "~"); ok && (strings.HasPrefix(rest, "/") || strings.HasPrefix(rest, `\`)) {
		if home := HomeDir(); home != "" {
			p = home + rest
		}
	}
	return filepath.Clean(os.ExpandEnv(p))
}

// HomeDir returns $HOME, falling back to the account database.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if u, err := user.Current(); err == nil {
		return u.HomeDir
	}
	return ""
}
