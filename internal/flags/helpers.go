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
	"github.com/scriptbridge/hostbridge/internal/version"
	"github.com/urfave/cli/v2"
)

// NewApp returns a cli.App carrying the build version, with global flags
// forwarded to subcommands.
func NewApp(usage string) *cli.App {
	vcs, _ := version.VCS()
	app := cli.NewApp()
	app.Usage = usage
	app.Version = version.WithCommit(vcs.Commit, vcs.Date)
	app.Copyright = "Copyright 2026 The hostbridge Authors"
	app.EnableBashCompletion = true
	app.Before = func(ctx *cli.Context) error {
		MigrateGlobalFlags(ctx)
		return nil
	}
	return app
}

// Merge concatenates flag lists.
func Merge(groups ...[]cli.Flag) []cli.Flag {
	var all []cli.Flag
	for _, g := range groups {
		all = append(all, g...)
	}
	return all
}

// MigrateGlobalFlags wraps every subcommand action so flags given before the
// subcommand name, as in
//
//	hostbridge --verbosity 5 dumpconfig
//
// are visible in the subcommand's context.
func MigrateGlobalFlags(ctx *cli.Context) {
	wrapActions(ctx.App.Commands)
}

func wrapActions(cmds []*cli.Command) {
	for _, cmd := range cmds {
		if action := cmd.Action; action != nil {
			cmd.Action = func(ctx *cli.Context) error {
				inheritFlags(ctx)
				return action(ctx)
			}
		}
		wrapActions(cmd.Subcommands)
	}
}

// inheritFlags copies into ctx every flag that an ancestor context set. Alias
// names are skipped so slice values are not appended twice.
func inheritFlags(ctx *cli.Context) {
	aliases := make(map[string]bool)
	for _, f := range ctx.Command.Flags {
		for _, alias := range f.Names()[1:] {
			aliases[alias] = true
		}
	}
	for _, name := range ctx.FlagNames() {
		if aliases[name] {
			continue
		}
		for _, parent := range ctx.Lineage()[1:] {
			if !parent.IsSet(name) {
				continue
			}
			if _, ok := parent.Value(name).(cli.StringSlice); ok {
				for _, v := range parent.StringSlice(name) {
					ctx.Set(name, v)
				}
			} else {
				ctx.Set(name, parent.String(name))
			}
			break
		}
	}
}
