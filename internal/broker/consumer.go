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
	"fmt"
	"sync/atomic"
	"time"

	"franz/internal/metrics"
	"franz/internal/storage"
)

// DefaultWriteTimeout bounds a single record write to a consumer.
const DefaultWriteTimeout = 10 * time.Second

// State is a consumer's lifecycle stage.
type State int32

const (
	StateStarting State = iota
	StateDelivering
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateDelivering:
		return "delivering"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// ConsumerOptions configures a consumer session.
type ConsumerOptions struct {
	// Group shares one durable cursor between every consumer using the
	// same id. Nil reads from the tail with a private cursor.
	Group *uint16

	KeepaliveInterval time.Duration
	WriteTimeout      time.Duration
}

// Consumer writes records of one topic to its stream, one per line.
type Consumer struct {
	id     string
	log    *storage.TopicLog
	stream Stream
	opts   ConsumerOptions

	state     atomic.Int32
	delivered atomic.Uint64
	keepalive atomic.Pointer[Keepalive]
}

// NewConsumer returns a consumer session reading from log.
func NewConsumer(id string, log *storage.TopicLog, stream Stream, opts ConsumerOptions) *Consumer {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	return &Consumer{id: id, log: log, stream: stream, opts: opts}
}

func (c *Consumer) ID() string      { return c.id }
func (c *Consumer) Kind() Kind      { return KindConsumer }
func (c *Consumer) Topic() string   { return c.log.Name() }
func (c *Consumer) Records() uint64 { return c.delivered.Load() }
func (c *Consumer) Close() error    { return c.stream.Close() }

// State returns the current lifecycle stage.
func (c *Consumer) State() State { return State(c.state.Load()) }

// Pings returns the PING lines received so far.
func (c *Consumer) Pings() uint64 {
	if k := c.keepalive.Load(); k != nil {
		return k.Pings()
	}
	return 0
}

// Run delivers records until the first of keepalive expiry, a failed
// write or ctx cancellation, then closes the stream. The returned error
// is whichever of those came first.
func (c *Consumer) Run(ctx context.Context) error {
	c.state.Store(int32(StateStarting))
	defer c.state.Store(int32(StateClosed))

	cur, err := c.log.OpenCursor(c.opts.Group)
	if err != nil {
		c.stream.Close()
		return fmt.Errorf("%w: open cursor: %w", ErrSessionIO, err)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	// Unblock a write to a peer that stopped reading.
	defer context.AfterFunc(ctx, func() {
		c.stream.SetWriteDeadline(time.Now())
	})()

	ka := NewKeepalive(c.stream, c.opts.KeepaliveInterval)
	c.keepalive.Store(ka)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ka.Run(ctx, cancel)
	}()

	c.state.Store(int32(StateDelivering))
	c.deliver(ctx, cancel, cur)

	c.state.Store(int32(StateDraining))
	cause := context.Cause(ctx)
	c.stream.Close()
	<-done
	return cause
}

func (c *Consumer) deliver(ctx context.Context, cancel context.CancelCauseFunc, cur *storage.Cursor) {
	m := metrics.Get()
	for {
		rec, err := cur.Pop(ctx)
		if err != nil {
			if ctx.Err() == nil {
				cancel(fmt.Errorf("%w: read topic: %w", ErrSessionIO, err))
			}
			return
		}

		if err := c.stream.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
			cancel(fmt.Errorf("%w: set deadline: %w", ErrSessionIO, err))
			return
		}
		if ctx.Err() != nil {
			return
		}
		if err := c.stream.WriteLine(rec); err != nil {
			cancel(fmt.Errorf("%w: write: %w", ErrSessionIO, err))
			return
		}
		c.delivered.Add(1)
		m.RecordConsume(c.log.Name(), len(rec))
	}
}
