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
Package logging is the broker's structured logger.

Every component gets its own Logger via NewLogger. Output format, level
and destination are process-wide and may be changed at any time; loggers
pick the change up on their next write.

Text mode:

	2026-01-02T15:04:05.000Z [INFO ] [broker] Session started session_id=... topic=orders

JSON mode writes one Entry per line.
*/
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name, case-insensitively. Unknown names map
// to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Entry is a single JSON log line.
type Entry struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Config holds the process-wide logger settings.
type Config struct {
	Level    Level
	Output   io.Writer
	JSONMode bool
}

// DefaultConfig returns INFO level text output on stdout.
func DefaultConfig() Config {
	return Config{
		Level:  INFO,
		Output: os.Stdout,
	}
}

var (
	globalConfig = DefaultConfig()
	globalMu     sync.RWMutex

	// writeMu serializes lines from every logger onto the shared output.
	writeMu sync.Mutex
)

// SetGlobalLevel sets the global log level.
func SetGlobalLevel(level Level) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig.Level = level
}

// SetGlobalOutput sets the global log output.
func SetGlobalOutput(w io.Writer) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig.Output = w
}

// SetJSONMode enables or disables JSON output mode.
func SetJSONMode(enabled bool) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig.JSONMode = enabled
}

// Logger writes entries tagged with a component name and any bound fields.
type Logger struct {
	component string
	fields    []interface{}
}

// NewLogger creates a Logger for the named component.
func NewLogger(component string) *Logger {
	return &Logger{component: component}
}

// With returns a child logger that adds kv to every entry.
func (l *Logger) With(kv ...interface{}) *Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(kv))
	fields = append(fields, l.fields...)
	fields = append(fields, kv...)
	return &Logger{component: l.component, fields: fields}
}

// Component returns the logger's component name.
func (l *Logger) Component() string { return l.component }

func (l *Logger) log(level Level, msg string, args ...interface{}) {
	globalMu.RLock()
	cfg := globalConfig
	globalMu.RUnlock()

	if level < cfg.Level || cfg.Output == nil {
		return
	}

	entry := Entry{
		Timestamp: time.Now().UTC(),
		Level:     level.String(),
		Component: l.component,
		Message:   msg,
		Fields:    toFields(l.fields, args),
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	if cfg.JSONMode {
		writeJSON(cfg.Output, entry)
	} else {
		writeText(cfg.Output, entry)
	}
}

func toFields(bound, args []interface{}) map[string]interface{} {
	if len(bound)+len(args) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, (len(bound)+len(args))/2)
	add := func(kv []interface{}) {
		for i := 0; i+1 < len(kv); i += 2 {
			key, ok := kv[i].(string)
			if !ok {
				key = fmt.Sprintf("arg%d", i)
			}
			v := kv[i+1]
			// error values marshal as {} in JSON.
			if err, ok := v.(error); ok && err != nil {
				v = err.Error()
			}
			fields[key] = v
		}
		if len(kv)%2 != 0 {
			fields["extra"] = kv[len(kv)-1]
		}
	}
	add(bound)
	add(args)
	return fields
}

func writeJSON(w io.Writer, entry Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(w, "ERROR: failed to marshal log entry: %v\n", err)
		return
	}
	fmt.Fprintln(w, string(data))
}

func writeText(w io.Writer, entry Entry) {
	var color string
	switch entry.Level {
	case "DEBUG":
		color = "\033[36m"
	case "INFO":
		color = "\033[32m"
	case "WARN":
		color = "\033[33m"
	case "ERROR":
		color = "\033[31m"
	default:
		color = "\033[0m"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s[%-5s]\033[0m [%s] %s",
		entry.Timestamp.Format("2006-01-02T15:04:05.000Z"),
		color, entry.Level, entry.Component, entry.Message)

	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Fields[k])
	}
	fmt.Fprintln(w, b.String())
}

// Debug logs a message at DEBUG level.
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log(DEBUG, msg, args...)
}

// Info logs a message at INFO level.
func (l *Logger) Info(msg string, args ...interface{}) {
	l.log(INFO, msg, args...)
}

// Warn logs a message at WARN level.
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log(WARN, msg, args...)
}

// Error logs a message at ERROR level.
func (l *Logger) Error(msg string, args ...interface{}) {
	l.log(ERROR, msg, args...)
}
