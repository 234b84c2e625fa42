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
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"franz/internal/storage"
)

func runConsumer(t *testing.T, ctx context.Context, c *Consumer) <-chan error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()
	return errc
}

func pinger(t *testing.T, conn net.Conn, every time.Duration) (stop func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if _, err := conn.Write([]byte("PING\n")); err != nil {
					return
				}
			}
		}
	}()
	return func() { close(done) }
}

func readLines(t *testing.T, r *bufio.Reader, n int) []string {
	t.Helper()
	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		lines = append(lines, strings.TrimSuffix(line, "\n"))
	}
	return lines
}

func TestConsumerAnonymousStartsAtTail(t *testing.T) {
	tl := openTopic(t, "orders")
	_, err := tl.Append([]byte("old"))
	require.NoError(t, err)

	stream, client, r := pipeStream(t, consumerLineLimit)
	c := NewConsumer("c1", tl, stream, ConsumerOptions{KeepaliveInterval: time.Second})
	errc := runConsumer(t, context.Background(), c)
	stop := pinger(t, client, 100*time.Millisecond)
	defer stop()

	require.Eventually(t, func() bool { return c.State() == StateDelivering }, time.Second, 5*time.Millisecond)
	tl.Append([]byte("new-1"))
	tl.Append([]byte("new-2"))

	assert.Equal(t, []string{"new-1", "new-2"}, readLines(t, r, 2))
	assert.Equal(t, uint64(2), c.Records())

	client.Close()
	assert.ErrorIs(t, waitErr(t, errc), ErrLivenessExpired)
	assert.Equal(t, StateClosed, c.State())
}

func TestConsumerGroupStartsAtEarliest(t *testing.T) {
	tl := openTopic(t, "orders")
	for _, rec := range []string{"a", "b", "c"} {
		tl.Append([]byte(rec))
	}

	g := uint16(1)
	stream, client, r := pipeStream(t, consumerLineLimit)
	c := NewConsumer("c1", tl, stream, ConsumerOptions{Group: &g, KeepaliveInterval: time.Second})
	errc := runConsumer(t, context.Background(), c)
	stop := pinger(t, client, 100*time.Millisecond)
	defer stop()

	assert.Equal(t, []string{"a", "b", "c"}, readLines(t, r, 3))

	off, ok := tl.GroupOffset(1)
	require.True(t, ok)
	assert.Equal(t, uint64(3), off)

	client.Close()
	waitErr(t, errc)
}

func TestConsumerGroupSharesRecords(t *testing.T) {
	tl := openTopic(t, "orders")
	g := uint16(4)

	type peer struct {
		conn net.Conn
		r    *bufio.Reader
		errc <-chan error
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	var peers []peer
	for i := 0; i < 2; i++ {
		stream, client, r := pipeStream(t, consumerLineLimit)
		c := NewConsumer("c", tl, stream, ConsumerOptions{Group: &g, KeepaliveInterval: time.Second})
		errc := runConsumer(t, ctx, c)
		stop := pinger(t, client, 100*time.Millisecond)
		defer stop()
		peers = append(peers, peer{conn: client, r: r, errc: errc})
	}

	const total = 20
	for i := 0; i < total; i++ {
		tl.Append([]byte{byte('a' + i)})
	}

	seen := make(chan string, total)
	for _, p := range peers {
		go func(r *bufio.Reader) {
			for {
				line, err := r.ReadString('\n')
				if err != nil {
					return
				}
				seen <- strings.TrimSuffix(line, "\n")
			}
		}(p.r)
	}

	got := make(map[string]int)
	for i := 0; i < total; i++ {
		select {
		case rec := <-seen:
			got[rec]++
		case <-time.After(5 * time.Second):
			t.Fatalf("received %d of %d records", i, total)
		}
	}
	assert.Len(t, got, total)
	for rec, n := range got {
		assert.Equal(t, 1, n, "record %q delivered more than once", rec)
	}

	cancel(ErrShutdown)
	for _, p := range peers {
		assert.ErrorIs(t, waitErr(t, p.errc), ErrShutdown)
	}
}

func TestConsumerShutdownCause(t *testing.T) {
	tl := openTopic(t, "orders")
	stream, client, _ := pipeStream(t, consumerLineLimit)
	c := NewConsumer("c1", tl, stream, ConsumerOptions{KeepaliveInterval: time.Second})

	ctx, cancel := context.WithCancelCause(context.Background())
	errc := runConsumer(t, ctx, c)
	stop := pinger(t, client, 100*time.Millisecond)
	defer stop()

	require.Eventually(t, func() bool { return c.State() == StateDelivering }, time.Second, 5*time.Millisecond)
	cancel(ErrShutdown)

	assert.ErrorIs(t, waitErr(t, errc), ErrShutdown)
	assert.Equal(t, StateClosed, c.State())
}

func TestConsumerWriteTimeout(t *testing.T) {
	tl := openTopic(t, "orders")
	stream, client, _ := pipeStream(t, consumerLineLimit)
	c := NewConsumer("c1", tl, stream, ConsumerOptions{
		KeepaliveInterval: time.Second,
		WriteTimeout:      50 * time.Millisecond,
	})
	errc := runConsumer(t, context.Background(), c)
	stop := pinger(t, client, 100*time.Millisecond)
	defer stop()

	require.Eventually(t, func() bool { return c.State() == StateDelivering }, time.Second, 5*time.Millisecond)
	// Nobody reads the client side, so the write blocks until its deadline.
	tl.Append([]byte("stuck"))

	assert.ErrorIs(t, waitErr(t, errc), ErrSessionIO)
}

func TestConsumerClosedTopic(t *testing.T) {
	tl := openTopic(t, "orders")
	require.NoError(t, tl.Close())

	stream, _, _ := pipeStream(t, consumerLineLimit)
	c := NewConsumer("c1", tl, stream, ConsumerOptions{})

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, ErrSessionIO)
	assert.ErrorIs(t, err, storage.ErrClosed)
	assert.Equal(t, StateClosed, c.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "delivering", StateDelivering.String())
	assert.Equal(t, "State(7)", State(7).String())
}

func TestConsumerCancelUnblocksStalledWrite(t *testing.T) {
	tl := openTopic(t, "orders")
	tl.Append([]byte("never-read"))

	g := uint16(1)
	stream, client, _ := pipeStream(t, consumerLineLimit)
	c := NewConsumer("c1", tl, stream, ConsumerOptions{
		Group:             &g,
		KeepaliveInterval: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	})
	ctx, cancel := context.WithCancelCause(context.Background())
	errc := runConsumer(t, ctx, c)
	stop := pinger(t, client, 100*time.Millisecond)
	defer stop()

	// The pipe has no buffer, so the write blocks until cancelled.
	require.Eventually(t, func() bool { return c.State() == StateDelivering }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	cancel(ErrShutdown)
	assert.ErrorIs(t, waitErr(t, errc), ErrShutdown)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, uint64(0), c.Records())
}
