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
Package protocol defines the Franz handshake and stream framing.

Every connection opens with exactly one handshake. Two framings are
accepted and told apart by the first byte.

LENGTH-PREFIXED:
================

	+-------+-------+-------+-------+----------------------------------+
	| Length (4 bytes, big-endian)  | key=value[,key=value...]  (UTF-8) |
	+-------+-------+-------+-------+----------------------------------+

Keys:

	version  u16, required
	topic    string, required (becomes a directory name)
	api      produce | consume | info, required
	group    u16, optional

Unknown keys are ignored and a repeated key keeps its last value. Since
the length is capped at MaxHandshakeBytes its first byte is always 0x00.

Example, consume "orders" as group 3:

	00 00 00 24  version=1,topic=orders,api=consume,group=3

TWO-LINE:
=========

	<role code>\n
	<topic>\n

Role codes are 0=produce, 1=consume, 2=info. The version is reported as
0 and no group can be given. The first byte is an ASCII digit.

STREAMS:
========
After the handshake a producer writes one record per line. A consumer
receives one record per line and must send a PING line at least once per
keepalive interval. An info request gets a single key=value line back
(see InfoResponse) and the connection is closed.
*/
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// MaxHandshakeBytes is the default bound on a handshake frame.
	MaxHandshakeBytes = 4096

	// ProtocolVersion is the handshake version written by this code base.
	ProtocolVersion uint16 = 1

	// PingLine is the consumer liveness token.
	PingLine = "PING"

	lengthPrefixMarker = 0x00
	lengthPrefixSize   = 4
)

// Framing identifies the handshake encoding a client used.
type Framing int

const (
	FramingLengthPrefixed Framing = iota
	FramingTwoLine
)

func (f Framing) String() string {
	switch f {
	case FramingLengthPrefixed:
		return "length-prefixed"
	case FramingTwoLine:
		return "two-line"
	default:
		return "unknown"
	}
}

// Role is the part a connection plays after the handshake.
type Role int

const (
	RoleProduce Role = iota
	RoleConsume
	RoleInfo
)

// String returns the api name used on the wire.
func (r Role) String() string {
	switch r {
	case RoleProduce:
		return "produce"
	case RoleConsume:
		return "consume"
	case RoleInfo:
		return "info"
	default:
		return "unknown"
	}
}

// ParseRole parses an api name.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "produce":
		return RoleProduce, true
	case "consume":
		return RoleConsume, true
	case "info":
		return RoleInfo, true
	}
	return 0, false
}

// HandshakeRequest is a parsed handshake. It is not modified after parsing.
type HandshakeRequest struct {
	Version uint16
	Group   *uint16
	Topic   string
	Role    Role
	Framing Framing
}

// GroupID returns the group and whether one was given.
func (h *HandshakeRequest) GroupID() (uint16, bool) {
	if h.Group == nil {
		return 0, false
	}
	return *h.Group, true
}

// Payload returns the key=value encoding of h.
func (h *HandshakeRequest) Payload() string {
	var b strings.Builder
	fmt.Fprintf(&b, "version=%d,topic=%s,api=%s", h.Version, h.Topic, h.Role)
	if h.Group != nil {
		fmt.Fprintf(&b, ",group=%d", *h.Group)
	}
	return b.String()
}

// WriteHandshake writes h to w in the requested framing. The two-line
// framing cannot carry a group.
func WriteHandshake(w io.Writer, h *HandshakeRequest, framing Framing) error {
	switch framing {
	case FramingLengthPrefixed:
		payload := h.Payload()
		if len(payload) > MaxHandshakeBytes {
			return fmt.Errorf("%w: handshake of %d bytes exceeds %d", ErrInvalidFormat, len(payload), MaxHandshakeBytes)
		}
		buf := make([]byte, lengthPrefixSize+len(payload))
		binary.BigEndian.PutUint32(buf, uint32(len(payload)))
		copy(buf[lengthPrefixSize:], payload)
		_, err := w.Write(buf)
		return err
	case FramingTwoLine:
		if h.Group != nil {
			return fmt.Errorf("%w: two-line handshake cannot carry a group", ErrInvalidFormat)
		}
		_, err := fmt.Fprintf(w, "%d\n%s\n", int(h.Role), h.Topic)
		return err
	default:
		return fmt.Errorf("%w: unknown framing %d", ErrInvalidFormat, framing)
	}
}

// InfoResponse is the single line sent back to an info request.
type InfoResponse struct {
	Version    string
	NodeID     string
	Topic      string
	Exists     bool
	NextOffset uint64
	Groups     []uint16
	Topics     []string
}

// Encode renders the response without a trailing newline:
//
//	version=0.1.0,node_id=n1,topic=orders,exists=true,next_offset=2,groups=1|3,topics=orders|users
func (r *InfoResponse) Encode() string {
	fields := []string{
		"version=" + r.Version,
		"node_id=" + r.NodeID,
		"topic=" + r.Topic,
		"exists=" + strconv.FormatBool(r.Exists),
	}
	if r.Exists {
		groups := make([]string, len(r.Groups))
		for i, g := range r.Groups {
			groups[i] = strconv.FormatUint(uint64(g), 10)
		}
		fields = append(fields,
			"next_offset="+strconv.FormatUint(r.NextOffset, 10),
			"groups="+strings.Join(groups, "|"),
		)
	}
	fields = append(fields, "topics="+strings.Join(r.Topics, "|"))
	return strings.Join(fields, ",")
}

// ParseInfoResponse parses a line produced by Encode.
func ParseInfoResponse(line string) (*InfoResponse, error) {
	kv, err := splitPairs(strings.TrimRight(line, "\r\n"))
	if err != nil {
		return nil, err
	}
	r := &InfoResponse{
		Version: kv["version"],
		NodeID:  kv["node_id"],
		Topic:   kv["topic"],
	}
	if r.Exists, err = strconv.ParseBool(kv["exists"]); err != nil {
		return nil, &FieldError{Key: "exists", Value: kv["exists"], Err: err}
	}
	if r.Exists {
		if r.NextOffset, err = strconv.ParseUint(kv["next_offset"], 10, 64); err != nil {
			return nil, &FieldError{Key: "next_offset", Value: kv["next_offset"], Err: err}
		}
		for _, g := range splitList(kv["groups"]) {
			id, err := strconv.ParseUint(g, 10, 16)
			if err != nil {
				return nil, &FieldError{Key: "groups", Value: kv["groups"], Err: err}
			}
			r.Groups = append(r.Groups, uint16(id))
		}
	}
	r.Topics = splitList(kv["topics"])
	return r, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "|")
}
