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
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// nopHandler drops every record. It backs the root logger until SetDefault
// installs a real one.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (h nopHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h nopHandler) WithGroup(string) slog.Handler           { return h }

// TerminalHandler renders records for a human reading a console:
//
//	INFO [10-18|14:02:11.123] Client connected                   name=tests conn=1f3a...
//
// Values under the same key are padded to the widest one seen so far, which
// keeps consecutive lines aligned.
type TerminalHandler struct {
	mu       sync.Mutex
	out      io.Writer
	minLevel slog.Level
	color    bool
	attrs    []slog.Attr
	widths   map[string]int
	scratch  []byte
}

// NewTerminalHandler returns a terminal handler that emits every level.
func NewTerminalHandler(out io.Writer, color bool) *TerminalHandler {
	return NewTerminalHandlerWithLevel(out, levelMaxVerbosity, color)
}

// NewTerminalHandlerWithLevel returns a terminal handler that drops records
// below minLevel.
func NewTerminalHandlerWithLevel(out io.Writer, minLevel slog.Level, color bool) *TerminalHandler {
	return &TerminalHandler{out: out, minLevel: minLevel, color: color, widths: make(map[string]int)}
}

func (h *TerminalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.minLevel
}

func (h *TerminalHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	line := h.render(h.scratch[:0], r)
	_, err := h.out.Write(line)
	h.scratch = line[:0]
	return err
}

func (h *TerminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(append(merged, h.attrs...), attrs...)
	return &TerminalHandler{out: h.out, minLevel: h.minLevel, color: h.color, attrs: merged, widths: make(map[string]int)}
}

// WithGroup is unsupported; no caller groups attributes.
func (h *TerminalHandler) WithGroup(string) slog.Handler {
	panic("log: attribute groups are not supported")
}

// JSONHandler writes one JSON object per record with "t", "lvl" and "msg"
// followed by the record attributes.
func JSONHandler(out io.Writer) slog.Handler {
	return slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:       levelMaxVerbosity,
		ReplaceAttr: replacer(false),
	})
}

// LogfmtHandler writes records as logfmt key=value lines.
func LogfmtHandler(out io.Writer) slog.Handler {
	return slog.NewTextHandler(out, &slog.HandlerOptions{
		Level:       levelMaxVerbosity,
		ReplaceAttr: replacer(true),
	})
}

// replacer renames the builtin time and level keys to "t" and "lvl" and
// flattens errors and stringers to their text. Text output also gets times in
// timeFormat; JSON keeps slog's RFC 3339 rendering.
func replacer(text bool) func([]string, slog.Attr) slog.Attr {
	return func(_ []string, a slog.Attr) slog.Attr {
		switch a.Key {
		case slog.TimeKey:
			if a.Value.Kind() != slog.KindTime {
				break
			}
			if text {
				return slog.String("t", a.Value.Time().Format(timeFormat))
			}
			return slog.Attr{Key: "t", Value: a.Value}
		case slog.LevelKey:
			if l, ok := a.Value.Any().(slog.Level); ok {
				return slog.String("lvl", LevelString(l))
			}
		}
		switch v := a.Value.Any().(type) {
		case time.Time:
			if text {
				a.Value = slog.StringValue(v.Format(timeFormat))
			}
		case error:
			a.Value = slog.StringValue(describe(v, func() string { return v.Error() }))
		case fmt.Stringer:
			a.Value = slog.StringValue(describe(v, func() string { return v.String() }))
		}
		return a
	}
}

// describe returns "<nil>" for nil interfaces and typed nil pointers, otherwise
// the result of text.
func describe(v any, text func() string) string {
	if v == nil {
		return "<nil>"
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return "<nil>"
	}
	return text()
}
