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

// Package log is a thin structured logging layer on top of log/slog. Call sites
// pass a message followed by alternating keys and values:
//
//	log.Info("Client connected", "name", name, "conn", id)
package log

import (
	"context"
	"log/slog"
	"math"
	"os"
	"runtime"
	"time"
)

// Levels beyond slog's four. Trace sits below debug, crit above error.
const (
	LevelTrace slog.Level = -8
	LevelDebug            = slog.LevelDebug
	LevelInfo             = slog.LevelInfo
	LevelWarn             = slog.LevelWarn
	LevelError            = slog.LevelError
	LevelCrit  slog.Level = 12

	levelMaxVerbosity slog.Level = math.MinInt
)

// oddKey is attached when a call passes a key without a value.
const oddKey = "LOG_ERROR"

var levelNames = map[slog.Level][2]string{
	LevelTrace: {"trace", "TRACE"},
	LevelDebug: {"debug", "DEBUG"},
	LevelInfo:  {"info", "INFO "},
	LevelWarn:  {"warn", "WARN "},
	LevelError: {"error", "ERROR"},
	LevelCrit:  {"crit", "CRIT "},
}

// FromLegacyLevel maps a --verbosity number onto a level: 0 is crit, 1 error,
// 2 warn, 3 info, 4 debug and anything higher trace.
func FromLegacyLevel(n int) slog.Level {
	levels := [...]slog.Level{LevelCrit, LevelError, LevelWarn, LevelInfo, LevelDebug, LevelTrace}
	switch {
	case n < 0:
		n = 0
	case n >= len(levels):
		n = len(levels) - 1
	}
	return levels[n]
}

// LevelString returns the lower case name used by the JSON and logfmt outputs.
func LevelString(l slog.Level) string {
	if names, ok := levelNames[l]; ok {
		return names[0]
	}
	return "unknown"
}

// LevelAlignedString returns the five column name used by the terminal output.
func LevelAlignedString(l slog.Level) string {
	if names, ok := levelNames[l]; ok {
		return names[1]
	}
	return "?????"
}

// Logger writes leveled messages with key/value context.
type Logger interface {
	// With returns a logger that prefixes ctx to every record.
	With(ctx ...any) Logger
	// New is the same as With.
	New(ctx ...any) Logger

	Trace(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	// Crit logs and then exits the process with status 1.
	Crit(msg string, ctx ...any)

	// Write logs at an arbitrary level. The recorded callsite is the caller of
	// the method that called Write.
	Write(level slog.Level, msg string, ctx ...any)
}

type logger struct {
	inner *slog.Logger
}

// NewLogger returns a Logger that hands records to h.
func NewLogger(h slog.Handler) Logger {
	return &logger{slog.New(h)}
}

func (l *logger) Write(level slog.Level, msg string, ctx ...any) {
	h := l.inner.Handler()
	if !h.Enabled(context.Background(), level) {
		return
	}
	// Skip runtime.Callers, Write and the level method.
	var pc [1]uintptr
	runtime.Callers(3, pc[:])

	if len(ctx)%2 == 1 {
		ctx = append(ctx, nil, oddKey, "Normalized odd number of arguments by adding nil")
	}
	r := slog.NewRecord(time.Now(), level, msg, pc[0])
	r.Add(ctx...)
	h.Handle(context.Background(), r)
}

func (l *logger) With(ctx ...any) Logger { return &logger{l.inner.With(ctx...)} }
func (l *logger) New(ctx ...any) Logger  { return l.With(ctx...) }

func (l *logger) Trace(msg string, ctx ...any) { l.Write(LevelTrace, msg, ctx...) }
func (l *logger) Debug(msg string, ctx ...any) { l.Write(LevelDebug, msg, ctx...) }
func (l *logger) Info(msg string, ctx ...any)  { l.Write(LevelInfo, msg, ctx...) }
func (l *logger) Warn(msg string, ctx ...any)  { l.Write(LevelWarn, msg, ctx...) }
func (l *logger) Error(msg string, ctx ...any) { l.Write(LevelError, msg, ctx...) }

func (l *logger) Crit(msg string, ctx ...any) {
	l.Write(LevelCrit, msg, ctx...)
	os.Exit(1)
}
