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
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"time"
	"unicode/utf8"
)

const (
	timeFormat = "2006-01-02T15:04:05-0700"

	// msgWidth is the column attributes start at when the message is shorter.
	msgWidth = 40
	// maxPad caps how wide a value may grow the padding of its key.
	maxPad = 40

	colorReset = "\x1b[0m"
)

var blanks = []byte("                                        ")

var levelColor = map[slog.Level]string{
	LevelTrace: "\x1b[34m",
	LevelDebug: "\x1b[36m",
	LevelInfo:  "\x1b[32m",
	LevelWarn:  "\x1b[33m",
	LevelError: "\x1b[31m",
	LevelCrit:  "\x1b[35m",
}

// render appends one terminal line for r to dst. Debug and trace records carry
// their callsite.
func (h *TerminalHandler) render(dst []byte, r slog.Record) []byte {
	color := ""
	if h.color {
		color = levelColor[r.Level]
	}
	if color != "" {
		dst = append(dst, color...)
	}
	dst = append(dst, LevelAlignedString(r.Level)...)
	if color != "" {
		dst = append(dst, colorReset...)
	}
	dst = append(dst, '[')
	dst = appendClock(dst, r.Time)
	dst = append(dst, "] "...)
	if r.Level <= LevelDebug {
		dst = append(dst, callsite(r.PC)...)
		dst = append(dst, ' ')
	}
	msg := quoteMessage(r.Message)
	dst = append(dst, msg...)

	total := len(h.attrs) + r.NumAttrs()
	if total == 0 {
		return append(dst, '\n')
	}
	if len(msg) < msgWidth {
		dst = append(dst, blanks[:msgWidth-len(msg)]...)
	}
	i := 0
	emit := func(a slog.Attr) bool {
		i++
		dst = h.appendAttr(dst, a, color, i == total)
		return true
	}
	for _, a := range h.attrs {
		emit(a)
	}
	r.Attrs(emit)
	return append(dst, '\n')
}

// appendAttr writes " key=value", padding the value to the widest seen for key
// unless it is the last attribute on the line.
func (h *TerminalHandler) appendAttr(dst []byte, a slog.Attr, color string, last bool) []byte {
	dst = append(dst, ' ')
	if color != "" {
		dst = append(dst, color...)
		dst = appendQuoted(dst, a.Key)
		dst = append(dst, colorReset...)
	} else {
		dst = appendQuoted(dst, a.Key)
	}
	dst = append(dst, '=')

	start := len(dst)
	dst = AppendValue(dst, a.Value)
	width := utf8.RuneCount(dst[start:])
	pad := h.widths[a.Key]
	if width > pad && width <= maxPad {
		h.widths[a.Key] = width
		pad = width
	}
	if !last && pad > width {
		dst = append(dst, blanks[:pad-width]...)
	}
	return dst
}

// callsite renders pc as "dir/file.go:12".
func callsite(pc uintptr) string {
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if frame.File == "" {
		return "?"
	}
	return fmt.Sprintf("%s/%s:%d", filepath.Base(filepath.Dir(frame.File)), filepath.Base(frame.File), frame.Line)
}

// AppendValue appends the terminal rendering of v to dst. Typed nil pointers
// render as <nil> rather than panicking inside String or Error.
func AppendValue(dst []byte, v slog.Value) []byte {
	switch v.Kind() {
	case slog.KindString:
		return appendQuoted(dst, v.String())
	case slog.KindInt64:
		return strconv.AppendInt(dst, v.Int64(), 10)
	case slog.KindUint64:
		return strconv.AppendUint(dst, v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.AppendFloat(dst, v.Float64(), 'f', 3, 64)
	case slog.KindBool:
		return strconv.AppendBool(dst, v.Bool())
	case slog.KindTime:
		return v.Time().AppendFormat(dst, timeFormat)
	case slog.KindDuration:
		return appendQuoted(dst, v.Duration().String())
	}
	val := v.Any()
	if val == nil {
		return append(dst, "<nil>"...)
	}
	if rv := reflect.ValueOf(val); rv.Kind() == reflect.Pointer && rv.IsNil() {
		return append(dst, "<nil>"...)
	}
	switch x := val.(type) {
	case error:
		return appendQuoted(dst, x.Error())
	case fmt.Stringer:
		return appendQuoted(dst, x.String())
	}
	return appendQuoted(dst, fmt.Sprintf("%+v", val))
}

// appendQuoted appends s, quoting it when it holds a space or '=' and escaping
// it when it holds control, quote or non-ASCII characters.
func appendQuoted(dst []byte, s string) []byte {
	quote := false
	for _, r := range s {
		switch {
		case r == ' ' || r == '=':
			quote = true
		case r <= '"' || r > '~':
			return strconv.AppendQuote(dst, s)
		}
	}
	if !quote {
		return append(dst, s...)
	}
	dst = append(dst, '"')
	dst = append(dst, s...)
	return append(dst, '"')
}

// quoteMessage is the lenient form of appendQuoted used for messages: spaces,
// tabs and line breaks pass through unquoted.
func quoteMessage(s string) string {
	for _, r := range s {
		if r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		if r < ' ' || r > '~' || r == '=' {
			return strconv.Quote(s)
		}
	}
	return s
}

// appendClock appends t as "01-02|15:04:05.000".
func appendClock(dst []byte, t time.Time) []byte {
	_, month, day := t.Date()
	hour, min, sec := t.Clock()
	dst = appendPadded(dst, int(month), 2)
	dst = append(dst, '-')
	dst = appendPadded(dst, day, 2)
	dst = append(dst, '|')
	dst = appendPadded(dst, hour, 2)
	dst = append(dst, ':')
	dst = appendPadded(dst, min, 2)
	dst = append(dst, ':')
	dst = appendPadded(dst, sec, 2)
	dst = append(dst, '.')
	return appendPadded(dst, t.Nanosecond()/int(time.Millisecond), 3)
}

// appendPadded appends the non-negative n left-padded with zeros to width.
func appendPadded(dst []byte, n, width int) []byte {
	var digits [20]byte
	i := len(digits)
	for n >= 10 || width > 1 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
		width--
	}
	i--
	digits[i] = byte('0' + n)
	return append(dst, digits[i:]...)
}
