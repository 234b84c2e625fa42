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
Connection and session logging.

CONNECTION LOGGING:
===================
- Accepted: connection id, remote and local address
- Closed: connection id, reason, duration

SESSION LOGGING:
================
- Started: session id, kind, topic, group
- Ended: session id, reason, records moved, duration

Liveness expiry is an expected way for a consumer to end and is logged at
INFO. Any other non-nil reason is logged at WARN.
*/
package logging

import (
	"errors"
	"net"
	"time"
)

// ConnectionLogger logs the lifecycle of accepted sockets.
type ConnectionLogger struct {
	logger *Logger
}

// NewConnectionLogger creates a new connection logger.
func NewConnectionLogger(logger *Logger) *ConnectionLogger {
	return &ConnectionLogger{logger: logger}
}

// LogNewConnection logs an accepted connection.
func (cl *ConnectionLogger) LogNewConnection(connID string, conn net.Conn) {
	cl.logger.Debug("Connection accepted",
		"connection_id", connID,
		"remote_addr", addrString(conn.RemoteAddr()),
		"local_addr", addrString(conn.LocalAddr()),
	)
}

// LogConnectionClosed logs a closed connection.
func (cl *ConnectionLogger) LogConnectionClosed(connID string, conn net.Conn, reason string, duration time.Duration) {
	cl.logger.Debug("Connection closed",
		"connection_id", connID,
		"remote_addr", addrString(conn.RemoteAddr()),
		"reason", reason,
		"duration_seconds", duration.Seconds(),
	)
}

// SessionLogger logs producer and consumer sessions.
type SessionLogger struct {
	logger   *Logger
	expected []error
}

// NewSessionLogger creates a session logger. Errors matching any of
// expected are logged at INFO when a session ends with them.
func NewSessionLogger(logger *Logger, expected ...error) *SessionLogger {
	return &SessionLogger{logger: logger, expected: expected}
}

// LogSessionStarted logs a session that has begun running.
func (sl *SessionLogger) LogSessionStarted(id, kind, topic string, kv ...interface{}) {
	fields := append([]interface{}{"session_id", id, "kind", kind, "topic", topic}, kv...)
	sl.logger.Info("Session started", fields...)
}

// LogSessionEnded logs a finished session with the error that ended it.
func (sl *SessionLogger) LogSessionEnded(id string, reason error, records uint64, duration time.Duration) {
	fields := []interface{}{
		"session_id", id,
		"records", records,
		"duration_seconds", duration.Seconds(),
	}
	if reason == nil {
		sl.logger.Info("Session ended", fields...)
		return
	}
	fields = append(fields, "reason", reason)
	for _, e := range sl.expected {
		if errors.Is(reason, e) {
			sl.logger.Info("Session ended", fields...)
			return
		}
	}
	sl.logger.Warn("Session ended", fields...)
}

func addrString(a net.Addr) string {
	if a == nil {
		return "unknown"
	}
	return a.String()
}
