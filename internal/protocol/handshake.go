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

package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

var errEmpty = errors.New("empty value")

// HandshakeOptions bounds what ReadHandshake accepts.
type HandshakeOptions struct {
	// MaxBytes caps the frame length. Zero means MaxHandshakeBytes.
	MaxBytes int

	// MaxGroups rejects group ids >= MaxGroups. Zero means unbounded.
	MaxGroups int
}

func (o HandshakeOptions) maxBytes() int {
	if o.MaxBytes <= 0 {
		return MaxHandshakeBytes
	}
	return o.MaxBytes
}

// Check applies the options to an already parsed request.
func (o HandshakeOptions) Check(h *HandshakeRequest) error {
	if g, ok := h.GroupID(); ok && o.MaxGroups > 0 && int(g) >= o.MaxGroups {
		return fmt.Errorf("%w: group %d, max %d", ErrGroupOutOfRange, g, o.MaxGroups)
	}
	return nil
}

// ReadHandshake reads one handshake from r. Bytes after the handshake stay
// buffered in r for the session. Read deadlines are the caller's job.
func ReadHandshake(r *bufio.Reader, opts HandshakeOptions) (*HandshakeRequest, error) {
	first, err := r.Peek(1)
	if err != nil {
		return nil, ioError(err)
	}

	var h *HandshakeRequest
	switch c := first[0]; {
	case c == lengthPrefixMarker:
		h, err = readLengthPrefixed(r, opts.maxBytes())
	case c >= '0' && c <= '9':
		h, err = readTwoLine(r, opts.maxBytes())
	default:
		return nil, fmt.Errorf("%w: unexpected first byte 0x%02x", ErrInvalidFormat, c)
	}
	if err != nil {
		return nil, err
	}
	if err := opts.Check(h); err != nil {
		return nil, err
	}
	return h, nil
}

func readLengthPrefixed(r *bufio.Reader, max int) (*HandshakeRequest, error) {
	var hdr [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, ioError(err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if uint64(n) > uint64(max) {
		return nil, fmt.Errorf("%w: handshake of %d bytes exceeds %d", ErrInvalidFormat, n, max)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, ioError(err)
	}
	return ParsePayload(payload)
}

func readTwoLine(r *bufio.Reader, max int) (*HandshakeRequest, error) {
	code, err := readBoundedLine(r, max, false)
	if err != nil {
		return nil, err
	}
	topic, err := readBoundedLine(r, max-len(code), true)
	if err != nil {
		return nil, err
	}
	if !utf8.ValidString(topic) {
		return nil, fmt.Errorf("%w: topic is not valid UTF-8", ErrParse)
	}

	n, err := strconv.ParseUint(code, 10, 8)
	if err != nil {
		return nil, &FieldError{Key: "role", Value: code, Err: err}
	}
	role := Role(n)
	if role > RoleInfo {
		return nil, &FieldError{Key: "role", Value: code, Err: errors.New("unknown role code")}
	}
	if topic == "" {
		return nil, &FieldError{Key: "topic", Value: topic, Err: errEmpty}
	}
	return &HandshakeRequest{Topic: topic, Role: role, Framing: FramingTwoLine}, nil
}

// readBoundedLine reads up to '\n', dropping the terminator and an
// optional '\r'. atEOF allows a final unterminated line.
func readBoundedLine(r *bufio.Reader, max int, atEOF bool) (string, error) {
	var b []byte
	for {
		c, err := r.ReadByte()
		if err != nil {
			if err == io.EOF && atEOF && len(b) > 0 {
				break
			}
			return "", ioError(err)
		}
		if c == '\n' {
			break
		}
		if len(b) >= max {
			return "", fmt.Errorf("%w: handshake exceeds %d bytes", ErrInvalidFormat, max)
		}
		b = append(b, c)
	}
	return strings.TrimSuffix(string(b), "\r"), nil
}

func ioError(err error) error {
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: %w", ErrHandshakeIO, err)
}

// ParsePayload parses a comma-separated key=value payload.
func ParsePayload(payload []byte) (*HandshakeRequest, error) {
	if !utf8.Valid(payload) {
		return nil, fmt.Errorf("%w: payload is not valid UTF-8", ErrParse)
	}
	fields, err := splitPairs(string(payload))
	if err != nil {
		return nil, err
	}
	return FromFields(fields)
}

func splitPairs(s string) (map[string]string, error) {
	fields := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("%w: pair %q has no '='", ErrInvalidFormat, pair)
		}
		k = strings.TrimSpace(k)
		if k == "" {
			return nil, fmt.Errorf("%w: pair %q has an empty key", ErrInvalidFormat, pair)
		}
		fields[k] = strings.TrimSpace(v)
	}
	return fields, nil
}

// FromFields builds a request from already split keys and values, as
// carried by transports other than the raw socket.
func FromFields(fields map[string]string) (*HandshakeRequest, error) {
	for _, key := range []string{"version", "topic", "api"} {
		if _, ok := fields[key]; !ok {
			return nil, &ExpectedKeyError{Key: key}
		}
	}

	for k, v := range fields {
		if !utf8.ValidString(k) || !utf8.ValidString(v) {
			return nil, fmt.Errorf("%w: field %q is not valid UTF-8", ErrParse, k)
		}
	}

	h := &HandshakeRequest{Framing: FramingLengthPrefixed}

	version, err := strconv.ParseUint(fields["version"], 10, 16)
	if err != nil {
		return nil, &FieldError{Key: "version", Value: fields["version"], Err: err}
	}
	h.Version = uint16(version)

	h.Topic = fields["topic"]
	if h.Topic == "" {
		return nil, &FieldError{Key: "topic", Value: h.Topic, Err: errEmpty}
	}

	role, ok := ParseRole(fields["api"])
	if !ok {
		return nil, &FieldError{Key: "api", Value: fields["api"], Err: errors.New("unknown api")}
	}
	h.Role = role

	if raw, ok := fields["group"]; ok {
		g, err := strconv.ParseUint(raw, 10, 16)
		if err != nil {
			return nil, &FieldError{Key: "group", Value: raw, Err: err}
		}
		group := uint16(g)
		h.Group = &group
	}
	return h, nil
}
