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

package log

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"regexp"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

var errVmoduleSyntax = errors.New("expect comma-separated list of filename=N")

// unmatched is cached for callsites no vmodule rule covers. It is above every
// real level so such records are always dropped.
const unmatched = LevelCrit + 1

// GlogHandler filters records by a global verbosity that per-file vmodule
// rules may raise, then hands the survivors to another handler.
type GlogHandler struct {
	next slog.Handler

	verbosity atomic.Int32
	hasRules  atomic.Bool

	mu    sync.RWMutex
	rules []vmoduleRule
	sites map[uintptr]slog.Level
}

type vmoduleRule struct {
	file  *regexp.Regexp
	level slog.Level
}

// NewGlogHandler wraps next with verbosity filtering.
func NewGlogHandler(next slog.Handler) *GlogHandler {
	return &GlogHandler{next: next, sites: make(map[uintptr]slog.Level)}
}

// Verbosity sets the global level below which records are dropped unless a
// vmodule rule admits them.
func (h *GlogHandler) Verbosity(level slog.Level) {
	h.verbosity.Store(int32(level))
}

// Vmodule replaces the per-file rules. The ruleset is a comma-separated list
// of path=N where N is a --verbosity number and path is a file or directory
// suffix in which "*" matches any number of directories:
//
//	bridge/*=5            everything under a "bridge" directory at trace
//	jobqueue/queue.go=4   the queue implementation at debug
func (h *GlogHandler) Vmodule(ruleset string) error {
	var rules []vmoduleRule
	for _, entry := range strings.Split(ruleset, ",") {
		if entry == "" {
			continue
		}
		path, num, ok := strings.Cut(entry, "=")
		path, num = strings.TrimSpace(path), strings.TrimSpace(num)
		if !ok || path == "" || num == "" {
			return errVmoduleSyntax
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return errVmoduleSyntax
		}
		level := FromLegacyLevel(n)
		if level == LevelCrit {
			continue
		}
		re, err := regexp.Compile(pathPattern(path))
		if err != nil {
			return err
		}
		rules = append(rules, vmoduleRule{re, level})
	}
	h.mu.Lock()
	h.rules = rules
	h.sites = make(map[uintptr]slog.Level)
	h.mu.Unlock()
	h.hasRules.Store(len(rules) > 0)
	return nil
}

// pathPattern turns a vmodule path into a regexp anchored at the end of a
// source file name. Paths without a .go suffix name directories.
func pathPattern(path string) string {
	var b strings.Builder
	b.WriteString(".*")
	for _, part := range strings.Split(path, "/") {
		switch part {
		case "":
		case "*":
			b.WriteString("(/.*)?")
		default:
			b.WriteString("/" + regexp.QuoteMeta(part))
		}
	}
	if !strings.HasSuffix(path, ".go") {
		b.WriteString(`/[^/]+\.go`)
	}
	b.WriteString("$")
	return b.String()
}

// Enabled implements slog.Handler. With vmodule rules set every level may be
// admitted, so the decision moves to Handle.
func (h *GlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.hasRules.Load() || level >= slog.Level(h.verbosity.Load())
}

// Handle implements slog.Handler.
func (h *GlogHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.Level(h.verbosity.Load()) || r.Level >= h.siteLevel(r.PC) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

// siteLevel returns the level the vmodule rules assign to the callsite pc,
// resolving and caching it on first use. The last matching rule wins.
func (h *GlogHandler) siteLevel(pc uintptr) slog.Level {
	h.mu.RLock()
	level, ok := h.sites[pc]
	h.mu.RUnlock()
	if ok {
		return level
	}
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()

	h.mu.Lock()
	defer h.mu.Unlock()
	level = unmatched
	for _, rule := range h.rules {
		if rule.file.MatchString("/" + frame.File) {
			level = rule.level
		}
	}
	h.sites[pc] = level
	return level
}

func (h *GlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.mu.RLock()
	c := &GlogHandler{
		next:  h.next.WithAttrs(attrs),
		rules: slices.Clone(h.rules),
		sites: maps.Clone(h.sites),
	}
	h.mu.RUnlock()
	c.verbosity.Store(h.verbosity.Load())
	c.hasRules.Store(h.hasRules.Load())
	return c
}

// WithGroup is unsupported; no caller groups attributes.
func (h *GlogHandler) WithGroup(string) slog.Handler {
	panic("log: attribute groups are not supported")
}
