/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package cli provides terminal output helpers shared by the Franz command
line tools.

USAGE:
======

	cli.Success("sent %d records to %s", n, topic)
	cli.ErrorWithHint("connection refused", "is franz running on "+addr+"?")
	cli.KeyValue("next offset", 42)

Status lines go to stdout, errors to stderr. Colors are disabled when
NO_COLOR is set or stdout is not a terminal. Record payloads printed by
franz-cli consume never pass through this package, so piped output stays
byte-exact.
*/
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// ANSI codes for terminal output.
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
)

// Icons
const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "⚠"
	IconInfo    = "ℹ"
	IconArrow   = "→"
)

// Printer writes decorated status lines.
type Printer struct {
	Out   io.Writer
	Err   io.Writer
	Color bool
}

// Std prints to the process's stdout and stderr.
var Std = &Printer{Out: os.Stdout, Err: os.Stderr, Color: stdoutIsTerminal()}

func stdoutIsTerminal() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// SetColorsEnabled enables or disables color output on Std.
func SetColorsEnabled(enabled bool) { Std.Color = enabled }

func (p *Printer) colorize(color, text string) string {
	if !p.Color {
		return text
	}
	return color + text + Reset
}

// Success prints a success line.
func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintln(p.Out, p.colorize(Green, IconSuccess+" "+fmt.Sprintf(format, args...)))
}

// Error prints an error line to Err.
func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintln(p.Err, p.colorize(Red, IconError+" "+fmt.Sprintf(format, args...)))
}

// ErrorWithHint prints an error line followed by a dimmed hint.
func (p *Printer) ErrorWithHint(message, hint string) {
	fmt.Fprintln(p.Err, p.colorize(Red, IconError+" "+message))
	if hint != "" {
		fmt.Fprintln(p.Err, p.colorize(Dim, "  "+IconArrow+" Hint: "+hint))
	}
}

// Warning prints a warning line.
func (p *Printer) Warning(format string, args ...any) {
	fmt.Fprintln(p.Out, p.colorize(Yellow, IconWarning+" "+fmt.Sprintf(format, args...)))
}

// Info prints an informational line.
func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintln(p.Out, p.colorize(Cyan, IconInfo+" "+fmt.Sprintf(format, args...)))
}

// Header prints a bold title.
func (p *Printer) Header(text string) {
	fmt.Fprintln(p.Out, p.colorize(Bold+Cyan, text))
}

// KeyValue prints an indented key: value row.
func (p *Printer) KeyValue(key string, value any) {
	fmt.Fprintf(p.Out, "  %s: %v\n", p.colorize(Dim, key), value)
}

// List prints values joined by ", ", or "-" when there are none.
func (p *Printer) List(key string, values []string) {
	v := "-"
	if len(values) > 0 {
		v = strings.Join(values, ", ")
	}
	p.KeyValue(key, v)
}

// Separator prints a horizontal rule.
func (p *Printer) Separator() {
	fmt.Fprintln(p.Out, p.colorize(Dim, strings.Repeat("─", 40)))
}

// Package-level helpers print through Std.

func Success(format string, args ...any) { Std.Success(format, args...) }
func Error(format string, args ...any) { Std.Error(format, args...) }
func ErrorWithHint(message, hint string) { Std.ErrorWithHint(message, hint) }
func Warning(format string, args ...any) { Std.Warning(format, args...) }
func Info(format string, args ...any) { Std.Info(format, args...) }
func Header(text string) { Std.Header(text) }
func KeyValue(key string, value any) { Std.KeyValue(key, value) }
func List(key string, values []string) { Std.List(key, values) }
func Separator() { Std.Separator() }
