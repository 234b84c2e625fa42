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
Package client provides the Franz Go client library.

QUICK START:
============

	// Produce records
	p, err := client.NewProducer(ctx, "localhost:8085", "orders", client.Options{})
	defer p.Close()
	err = p.Send([]byte("order-1"))

	// Consume as group 3
	group := uint16(3)
	c, err := client.NewConsumer(ctx, "localhost:8085", "orders", &group, client.Options{})
	defer c.Close()
	for {
	    rec, err := c.Next(ctx)
	    if err != nil {
	        break
	    }
	    fmt.Printf("Received: %s\n", rec)
	}

	// Inspect a topic
	info, err := client.Info(ctx, "localhost:8085", "orders", client.Options{})

KEEPALIVE:
==========
A consumer writes PING at half the keepalive interval until it is closed.
Set Options.KeepaliveInterval to the broker's keepalive.interval_ms.

THREAD SAFETY:
==============
Producer.Send is safe for concurrent use. Consumer.Next must be called
from one goroutine at a time.
*/
package client

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"franz/internal/protocol"
)

// DefaultKeepaliveInterval matches the broker default.
const DefaultKeepaliveInterval = 75 * time.Second

// ErrInvalidRecord is returned by Send for a record containing a newline.
var ErrInvalidRecord = errors.New("client: record contains a newline")

// Options configures how the client connects.
type Options struct {
	MaxRetries        int           // Connection retries after the first attempt (default: 3)
	RetryDelay        time.Duration // Initial delay between retries (default: 1s)
	ConnectTimeout    time.Duration // Dial timeout per attempt (default: 10s)
	KeepaliveInterval time.Duration // Broker keepalive interval (default: 75s)
}

func (o Options) withDefaults() Options {
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = time.Second
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.KeepaliveInterval == 0 {
		o.KeepaliveInterval = DefaultKeepaliveInterval
	}
	return o
}

// Request names the session to open.
type Request struct {
	Topic string
	Role  protocol.Role
	Group *uint16
}

// Conn is a connection that has completed its handshake.
type Conn struct {
	conn net.Conn
	r    *bufio.Reader
	req  Request
}

// Dial connects to addr, retrying with exponential backoff, and writes
// the length-prefixed handshake for req.
func Dial(ctx context.Context, addr string, req Request, opts Options) (*Conn, error) {
	opts = opts.withDefaults()

	conn, err := dialWithRetry(ctx, addr, opts)
	if err != nil {
		return nil, err
	}

	h := &protocol.HandshakeRequest{
		Version: protocol.ProtocolVersion,
		Topic:   req.Topic,
		Role:    req.Role,
		Group:   req.Group,
	}
	conn.SetWriteDeadline(time.Now().Add(opts.ConnectTimeout))
	if err := protocol.WriteHandshake(conn, h, protocol.FramingLengthPrefixed); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send handshake to %s: %w", addr, err)
	}
	conn.SetWriteDeadline(time.Time{})

	return &Conn{conn: conn, r: bufio.NewReader(conn), req: req}, nil
}

func dialWithRetry(ctx context.Context, addr string, opts Options) (net.Conn, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = opts.RetryDelay
	exp.MaxInterval = 10 * opts.RetryDelay
	exp.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(opts.MaxRetries)), ctx)

	dialer := &net.Dialer{Timeout: opts.ConnectTimeout}

	var lastErr error
	attempts := 0
	for {
		attempts++
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			break
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, fmt.Errorf("failed to connect to %s after %d attempts: %w", addr, attempts, lastErr)
}

// RemoteAddr returns the broker address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Close closes the connection.
func (c *Conn) Close() error { return c.conn.Close() }

// Producer appends records to one topic.
type Producer struct {
	mu     sync.Mutex
	c      *Conn
	closed bool
}

// NewProducer opens a produce session on topic.
func NewProducer(ctx context.Context, addr, topic string, opts Options) (*Producer, error) {
	c, err := Dial(ctx, addr, Request{Topic: topic, Role: protocol.RoleProduce}, opts)
	if err != nil {
		return nil, err
	}
	return &Producer{c: c}, nil
}

// Send writes one record. A trailing newline is stripped; any other
// newline is ErrInvalidRecord.
func (p *Producer) Send(record []byte) error {
	record = bytes.TrimSuffix(record, []byte("\n"))
	if bytes.IndexByte(record, '\n') >= 0 {
		return ErrInvalidRecord
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return net.ErrClosed
	}
	bufs := net.Buffers{record, []byte("\n")}
	_, err := bufs.WriteTo(p.c.conn)
	return err
}

// Close ends the session. The broker commits every record received
// before the close.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.c.Close()
}

// Consumer reads records from one topic and keeps the session alive.
type Consumer struct {
	c       *Conn
	pending []byte

	pingMu  sync.Mutex
	pings   uint64
	stop    chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// NewConsumer opens a consume session on topic. A nil group tails the
// topic from its current end.
func NewConsumer(ctx context.Context, addr, topic string, group *uint16, opts Options) (*Consumer, error) {
	opts = opts.withDefaults()
	c, err := Dial(ctx, addr, Request{Topic: topic, Role: protocol.RoleConsume, Group: group}, opts)
	if err != nil {
		return nil, err
	}

	cons := &Consumer{c: c, stop: make(chan struct{})}
	cons.wg.Add(1)
	go cons.pingLoop(opts.KeepaliveInterval / 2)
	return cons, nil
}

func (c *Consumer) pingLoop(every time.Duration) {
	defer c.wg.Done()
	if every <= 0 {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	ping := []byte(protocol.PingLine + "\n")
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.c.conn.SetWriteDeadline(time.Now().Add(every))
			if _, err := c.c.conn.Write(ping); err != nil {
				return
			}
			c.pingMu.Lock()
			c.pings++
			c.pingMu.Unlock()
		}
	}
}

// Pings returns how many PING lines have been sent.
func (c *Consumer) Pings() uint64 {
	c.pingMu.Lock()
	defer c.pingMu.Unlock()
	return c.pings
}

// Buffered returns how many bytes have been received but not yet
// returned by Next.
func (c *Consumer) Buffered() int { return c.c.r.Buffered() }

// Next blocks until the next record arrives, ctx is done or the broker
// closes the session, which is reported as io.EOF.
func (c *Consumer) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.c.conn.SetReadDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		c.c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	for {
		chunk, err := c.c.r.ReadSlice('\n')
		c.pending = append(c.pending, chunk...)
		if err == nil {
			// The broker terminates every record with a bare newline.
			line := c.pending[:len(c.pending)-1]
			rec := make([]byte, len(line))
			copy(rec, line)
			c.pending = c.pending[:0]
			return rec, nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if ctx.Err() != nil && errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, ctx.Err()
		}
		if errors.Is(err, io.EOF) && len(c.pending) > 0 {
			rec := bytes.Clone(c.pending)
			c.pending = c.pending[:0]
			return rec, nil
		}
		return nil, err
	}
}

// Close stops the PING loop and closes the connection.
func (c *Consumer) Close() error {
	var err error
	c.stopped.Do(func() {
		close(c.stop)
		err = c.c.Close()
		c.wg.Wait()
	})
	return err
}

// Info asks the broker about topic. The topic is not created.
func Info(ctx context.Context, addr, topic string, opts Options) (*protocol.InfoResponse, error) {
	c, err := Dial(ctx, addr, Request{Topic: topic, Role: protocol.RoleInfo}, opts)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	line, err := c.r.ReadString('\n')
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to read info response: %w", err)
	}
	return protocol.ParseInfoResponse(line)
}
