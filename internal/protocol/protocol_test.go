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
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

func frame(payload string) []byte {
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)
	return buf
}

func readFrom(input []byte, opts HandshakeOptions) (*HandshakeRequest, *bufio.Reader, error) {
	r := bufio.NewReader(bytes.NewReader(input))
	h, err := ReadHandshake(r, opts)
	return h, r, err
}

func TestReadHandshakeLengthPrefixed(t *testing.T) {
	h, _, err := readFrom(frame("version=1,topic=orders,api=consume,group=3"), HandshakeOptions{})
	if err != nil {
		t.Fatalf("ReadHandshake failed: %v", err)
	}
	if h.Version != 1 || h.Topic != "orders" || h.Role != RoleConsume {
		t.Errorf("Unexpected request: %+v", h)
	}
	if g, ok := h.GroupID(); !ok || g != 3 {
		t.Errorf("Expected group 3, got %d ok=%v", g, ok)
	}
	if h.Framing != FramingLengthPrefixed {
		t.Errorf("Expected length-prefixed framing, got %s", h.Framing)
	}
}

func TestReadHandshakeLeavesStreamBuffered(t *testing.T) {
	input := append(frame("version=1,topic=orders,api=produce"), []byte("a\nb\n")...)
	_, r, err := readFrom(input, HandshakeOptions{})
	if err != nil {
		t.Fatalf("ReadHandshake failed: %v", err)
	}
	rest, _ := io.ReadAll(r)
	if string(rest) != "a\nb\n" {
		t.Errorf("Expected records to follow the handshake, got %q", rest)
	}
}

func TestReadHandshakeTwoLine(t *testing.T) {
	tests := []struct {
		input string
		role  Role
		topic string
	}{
		{"0\norders\n", RoleProduce, "orders"},
		{"1\r\nevents\r\n", RoleConsume, "events"},
		{"2\nmetrics", RoleInfo, "metrics"},
	}

	for _, tt := range tests {
		h, _, err := readFrom([]byte(tt.input), HandshakeOptions{})
		if err != nil {
			t.Errorf("ReadHandshake(%q) failed: %v", tt.input, err)
			continue
		}
		if h.Role != tt.role || h.Topic != tt.topic || h.Version != 0 || h.Group != nil {
			t.Errorf("ReadHandshake(%q) = %+v", tt.input, h)
		}
		if h.Framing != FramingTwoLine {
			t.Errorf("Expected two-line framing, got %s", h.Framing)
		}
	}
}

func TestReadHandshakeErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		opts    HandshakeOptions
		wantErr error
	}{
		{"empty connection", nil, HandshakeOptions{}, ErrHandshakeIO},
		{"truncated prefix", []byte{0, 0}, HandshakeOptions{}, ErrHandshakeIO},
		{"truncated payload", frame("version=1,topic=orders,api=produce")[:10], HandshakeOptions{}, ErrHandshakeIO},
		{"unknown framing", []byte("GET / HTTP/1.1\r\n"), HandshakeOptions{}, ErrInvalidFormat},
		{"frame too large", frame(strings.Repeat("x", 65)), HandshakeOptions{MaxBytes: 64}, ErrInvalidFormat},
		{"pair without separator", frame("version=1,topic"), HandshakeOptions{}, ErrInvalidFormat},
		{"empty key", frame("=1,version=1"), HandshakeOptions{}, ErrInvalidFormat},
		{"invalid utf-8", frame("version=1,topic=\xff,api=produce"), HandshakeOptions{}, ErrParse},
		{"bad version", frame("version=x,topic=t,api=produce"), HandshakeOptions{}, ErrParse},
		{"version overflow", frame("version=70000,topic=t,api=produce"), HandshakeOptions{}, ErrParse},
		{"bad group", frame("version=1,topic=t,api=consume,group=-1"), HandshakeOptions{}, ErrParse},
		{"unknown api", frame("version=1,topic=t,api=delete"), HandshakeOptions{}, ErrParse},
		{"empty topic", frame("version=1,topic=,api=produce"), HandshakeOptions{}, ErrParse},
		{"group out of range", frame("version=1,topic=t,api=consume,group=8"), HandshakeOptions{MaxGroups: 8}, ErrGroupOutOfRange},
		{"two-line bad role", []byte("7\norders\n"), HandshakeOptions{}, ErrParse},
		{"two-line missing topic", []byte("0\n"), HandshakeOptions{}, ErrHandshakeIO},
		{"two-line overlong", []byte("0" + strings.Repeat("9", 100) + "\n"), HandshakeOptions{MaxBytes: 32}, ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := readFrom(tt.input, tt.opts)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestReadHandshakeMissingTopic(t *testing.T) {
	_, _, err := readFrom(frame("version=1,api=produce"), HandshakeOptions{})

	var keyErr *ExpectedKeyError
	if !errors.As(err, &keyErr) {
		t.Fatalf("Expected ExpectedKeyError, got %v", err)
	}
	if keyErr.Key != "topic" {
		t.Errorf("Expected missing key topic, got %s", keyErr.Key)
	}
	if !errors.Is(err, ErrParse) {
		t.Error("ExpectedKeyError should match ErrParse")
	}
}

func TestReadHandshakeTimeout(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	server.SetReadDeadline(time.Now().Add(20 * time.Millisecond))
	_, err := ReadHandshake(bufio.NewReader(server), HandshakeOptions{})
	if !errors.Is(err, ErrHandshakeIO) {
		t.Fatalf("Expected ErrHandshakeIO, got %v", err)
	}
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Errorf("Expected the timeout to be preserved, got %v", err)
	}
}

func TestParsePayloadKeyRules(t *testing.T) {
	h, err := ParsePayload([]byte(" version = 2 , topic=old, topic=new ,api=info,color=blue,"))
	if err != nil {
		t.Fatalf("ParsePayload failed: %v", err)
	}
	if h.Version != 2 || h.Topic != "new" || h.Role != RoleInfo {
		t.Errorf("Unexpected request: %+v", h)
	}
}

func TestFromFields(t *testing.T) {
	h, err := FromFields(map[string]string{
		"version": "1",
		"topic":   "orders",
		"api":     "produce",
	})
	if err != nil {
		t.Fatalf("FromFields failed: %v", err)
	}
	if h.Role != RoleProduce || h.Group != nil {
		t.Errorf("Unexpected request: %+v", h)
	}

	_, err = FromFields(map[string]string{"topic": "orders", "api": "produce"})
	var keyErr *ExpectedKeyError
	if !errors.As(err, &keyErr) || keyErr.Key != "version" {
		t.Errorf("Expected missing version, got %v", err)
	}
}

func TestWriteHandshakeRoundTrip(t *testing.T) {
	group := uint16(5)
	for _, framing := range []Framing{FramingLengthPrefixed, FramingTwoLine} {
		req := &HandshakeRequest{Version: 1, Topic: "orders", Role: RoleConsume}
		if framing == FramingLengthPrefixed {
			req.Group = &group
		}

		var buf bytes.Buffer
		if err := WriteHandshake(&buf, req, framing); err != nil {
			t.Fatalf("WriteHandshake(%s) failed: %v", framing, err)
		}
		got, err := ReadHandshake(bufio.NewReader(&buf), HandshakeOptions{})
		if err != nil {
			t.Fatalf("ReadHandshake(%s) failed: %v", framing, err)
		}
		if got.Topic != "orders" || got.Role != RoleConsume || got.Framing != framing {
			t.Errorf("%s: unexpected request %+v", framing, got)
		}
	}
}

func TestWriteHandshakeTwoLineRejectsGroup(t *testing.T) {
	group := uint16(1)
	err := WriteHandshake(io.Discard, &HandshakeRequest{Topic: "t", Group: &group}, FramingTwoLine)
	if !errors.Is(err, ErrInvalidFormat) {
		t.Errorf("Expected ErrInvalidFormat, got %v", err)
	}
}

func TestInfoResponse(t *testing.T) {
	resp := &InfoResponse{
		Version:    "0.1.0",
		NodeID:     "node-1",
		Topic:      "orders",
		Exists:     true,
		NextOffset: 42,
		Groups:     []uint16{1, 3},
		Topics:     []string{"orders", "users"},
	}
	line := resp.Encode()
	want := "version=0.1.0,node_id=node-1,topic=orders,exists=true,next_offset=42,groups=1|3,topics=orders|users"
	if line != want {
		t.Errorf("Encode() = %s, want %s", line, want)
	}

	got, err := ParseInfoResponse(line + "\n")
	if err != nil {
		t.Fatalf("ParseInfoResponse failed: %v", err)
	}
	if got.NextOffset != 42 || len(got.Groups) != 2 || got.Groups[1] != 3 || len(got.Topics) != 2 {
		t.Errorf("Unexpected response: %+v", got)
	}

	missing := (&InfoResponse{Version: "0.1.0", Topic: "nope"}).Encode()
	if strings.Contains(missing, "next_offset") {
		t.Errorf("Missing topic should not report an offset: %s", missing)
	}
	got, err = ParseInfoResponse(missing)
	if err != nil || got.Exists || got.Topics != nil {
		t.Errorf("Unexpected response for missing topic: %+v (%v)", got, err)
	}
}
