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
	"errors"
	"fmt"
)

var (
	// ErrHandshakeIO means the handshake could not be read: a socket error,
	// a timeout or a truncated frame.
	ErrHandshakeIO = errors.New("handshake I/O error")

	// ErrParse means the payload was read but is not a valid request.
	ErrParse = errors.New("handshake parse error")

	// ErrInvalidFormat means the framing or a key=value pair is malformed.
	ErrInvalidFormat = errors.New("invalid handshake format")

	// ErrGroupOutOfRange means the group id is at or above the configured
	// maximum number of groups.
	ErrGroupOutOfRange = errors.New("consumer group out of range")
)

// ExpectedKeyError reports a required key missing from the handshake.
type ExpectedKeyError struct {
	Key string
}

func (e *ExpectedKeyError) Error() string {
	return fmt.Sprintf("%s: expected key %q", ErrParse, e.Key)
}

// Is makes errors.Is(err, ErrParse) hold.
func (e *ExpectedKeyError) Is(target error) bool { return target == ErrParse }

// FieldError reports a key whose value does not parse.
type FieldError struct {
	Key   string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: field %s=%q: %v", ErrParse, e.Key, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrParse) hold.
func (e *FieldError) Is(target error) bool { return target == ErrParse }
