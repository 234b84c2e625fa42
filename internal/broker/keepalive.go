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

package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"franz/internal/metrics"
	"franz/internal/protocol"
)

// DefaultKeepaliveInterval is how long a consumer may stay silent.
const DefaultKeepaliveInterval = 75 * time.Second

// Keepalive watches the read half of a consumer stream. The peer must
// send a PING line at least once per interval.
type Keepalive struct {
	stream   Stream
	interval time.Duration

	pings atomic.Uint64
}

// NewKeepalive returns a monitor for stream. A non-positive interval
// selects DefaultKeepaliveInterval.
func NewKeepalive(stream Stream, interval time.Duration) *Keepalive {
	if interval <= 0 {
		interval = DefaultKeepaliveInterval
	}
	return &Keepalive{stream: stream, interval: interval}
}

// Pings returns the number of PING lines seen.
func (k *Keepalive) Pings() uint64 { return k.pings.Load() }

// Run reads until the peer misbehaves or ctx ends. Anything but a timely
// PING cancels with an error wrapping ErrLivenessExpired.
func (k *Keepalive) Run(ctx context.Context, cancel context.CancelCauseFunc) {
	for {
		if err := k.stream.SetReadDeadline(time.Now().Add(k.interval)); err != nil {
			cancel(fmt.Errorf("%w: set deadline: %w", ErrLivenessExpired, err))
			return
		}

		line, err := k.stream.ReadLine()
		if ctx.Err() != nil {
			return
		}
		switch {
		case err == nil && string(line) == protocol.PingLine:
			k.pings.Add(1)
			metrics.Get().PingsReceived.Add(1)
		case err == nil:
			cancel(fmt.Errorf("%w: unexpected line %q", ErrLivenessExpired, clip(line, 32)))
			return
		case isTimeout(err):
			cancel(fmt.Errorf("%w: no PING within %s", ErrLivenessExpired, k.interval))
			return
		case errors.Is(err, io.EOF):
			cancel(fmt.Errorf("%w: peer closed", ErrLivenessExpired))
			return
		default:
			cancel(fmt.Errorf("%w: %w", ErrLivenessExpired, err))
			return
		}
	}
}

func clip(p []byte, n int) []byte {
	if len(p) > n {
		return p[:n]
	}
	return p
}
