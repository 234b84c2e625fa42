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
Package broker runs Franz sessions.

A connection starts with a handshake. Produce and consume handshakes turn
the connection into a Session that runs until the peer leaves, the
session fails, or the broker shuts down:

	accept ──► handshake ──► resolve topic ──► Track ──► Session.Run
	                │                                       │
	                └── info: one key=value line, close     └── release

SESSIONS:
=========
  - Producer: every line is appended to the topic log.
  - Consumer: records are written one per line while a Keepalive reads
    PING lines from the same connection.

SHUTDOWN:
=========
The Coordinator owns the cancellation context every session runs under.
Signalling it cancels sessions with ErrShutdown, closes the listener
and waits up to the drain timeout for tracked sessions to finish.
*/
package broker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

// Kind tells producer and consumer sessions apart.
type Kind int

const (
	KindProducer Kind = iota
	KindConsumer
)

func (k Kind) String() string {
	switch k {
	case KindProducer:
		return "producer"
	case KindConsumer:
		return "consumer"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Session is a producer or consumer bound to one topic.
type Session interface {
	ID() string
	Kind() Kind
	Topic() string

	// Run blocks until the session ends. A nil error means the peer
	// closed the stream.
	Run(ctx context.Context) error

	// Records returns how many records the session moved so far.
	Records() uint64

	// Close closes the underlying stream. It is safe to call more than once.
	Close() error
}

// Stream is the line-oriented transport under a session.
//
// One goroutine may read while another writes.
type Stream interface {
	// ReadLine returns the next line without its terminator. A final
	// unterminated line is returned before io.EOF.
	ReadLine() ([]byte, error)
	WriteLine(p []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
	RemoteAddr() string
}

var newline = []byte{'\n'}

type tcpStream struct {
	conn    net.Conn
	r       *bufio.Reader
	maxLine int

	closeOnce sync.Once
	closeErr  error
}

// NewTCPStream wraps conn. r must be the reader the handshake was read
// from so that buffered bytes are not lost. maxLine <= 0 disables the
// line length limit.
func NewTCPStream(conn net.Conn, r *bufio.Reader, maxLine int) Stream {
	if r == nil {
		r = bufio.NewReader(conn)
	}
	return &tcpStream{conn: conn, r: r, maxLine: maxLine}
}

func (s *tcpStream) ReadLine() ([]byte, error) {
	var line []byte
	for {
		frag, err := s.r.ReadSlice('\n')
		line = append(line, frag...)
		if s.maxLine > 0 && len(line) > s.maxLine+2 {
			return nil, fmt.Errorf("%w: more than %d bytes", ErrLineTooLong, s.maxLine)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(line) > 0 {
				break
			}
			return nil, err
		}
		break
	}

	line = trimEOL(line)
	if s.maxLine > 0 && len(line) > s.maxLine {
		return nil, fmt.Errorf("%w: %d bytes, max %d", ErrLineTooLong, len(line), s.maxLine)
	}
	return line, nil
}

func (s *tcpStream) WriteLine(p []byte) error {
	bufs := net.Buffers{p, newline}
	_, err := bufs.WriteTo(s.conn)
	return err
}

func (s *tcpStream) SetReadDeadline(t time.Time) error  { return s.conn.SetReadDeadline(t) }
func (s *tcpStream) SetWriteDeadline(t time.Time) error { return s.conn.SetWriteDeadline(t) }

func (s *tcpStream) Close() error {
	s.closeOnce.Do(func() { s.closeErr = s.conn.Close() })
	return s.closeErr
}

func (s *tcpStream) RemoteAddr() string {
	if a := s.conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return "unknown"
}

// trimEOL strips a trailing "\n" or "\r\n".
func trimEOL(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
	}
	return line
}

// isTimeout reports whether err came from an expired deadline.
func isTimeout(err error) bool {
	var ne net.Error
	return errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout())
}
