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

package client

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"franz/internal/broker"
	"franz/internal/config"
	"franz/internal/topic"
)

func startBroker(t testing.TB) string {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BindAddr = "127.0.0.1:0"
	cfg.NodeID = "client-test"
	cfg.DataDir = t.TempDir()
	cfg.Storage.SegmentBytes = 1 << 20
	cfg.Storage.IndexBytes = 1 << 16
	cfg.Storage.SyncWrites = false
	cfg.Keepalive.IntervalMs = 400
	cfg.Shutdown.DrainTimeoutMs = 2000

	srv := broker.NewServer(cfg, topic.NewRegistry(cfg.DataDir, broker.StorageConfig(cfg)))
	if err := srv.Start(); err != nil {
		t.Fatalf("Failed to start broker: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
	return srv.Addr().String()
}

func testOptions() Options {
	return Options{
		MaxRetries:        2,
		RetryDelay:        10 * time.Millisecond,
		ConnectTimeout:    time.Second,
		KeepaliveInterval: 400 * time.Millisecond,
	}
}

func waitNextOffset(t testing.TB, addr, name string, want uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		info, err := Info(context.Background(), addr, name, testOptions())
		if err == nil && info.NextOffset >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Expected next offset %d on %s", want, name)
}

func TestProduceAndConsumeGroup(t *testing.T) {
	addr := startBroker(t)
	ctx := context.Background()

	p, err := NewProducer(ctx, addr, "orders", testOptions())
	if err != nil {
		t.Fatalf("Failed to open producer: %v", err)
	}
	for _, rec := range []string{"a", "b", "c\n"} {
		if err := p.Send([]byte(rec)); err != nil {
			t.Fatalf("Send(%q) failed: %v", rec, err)
		}
	}
	waitNextOffset(t, addr, "orders", 3)
	p.Close()

	group := uint16(1)
	c, err := NewConsumer(ctx, addr, "orders", &group, testOptions())
	if err != nil {
		t.Fatalf("Failed to open consumer: %v", err)
	}
	defer c.Close()

	for _, want := range []string{"a", "b", "c"} {
		rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		got, err := c.Next(rctx)
		cancel()
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if string(got) != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	}
}

func TestSendRejectsEmbeddedNewline(t *testing.T) {
	addr := startBroker(t)

	p, err := NewProducer(context.Background(), addr, "orders", testOptions())
	if err != nil {
		t.Fatalf("Failed to open producer: %v", err)
	}
	defer p.Close()

	if err := p.Send([]byte("a\nb")); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Expected ErrInvalidRecord, got %v", err)
	}
}

func TestSendAfterClose(t *testing.T) {
	addr := startBroker(t)

	p, err := NewProducer(context.Background(), addr, "orders", testOptions())
	if err != nil {
		t.Fatalf("Failed to open producer: %v", err)
	}
	p.Close()
	if err := p.Close(); err != nil {
		t.Errorf("Expected second Close to succeed, got %v", err)
	}
	if err := p.Send([]byte("late")); !errors.Is(err, net.ErrClosed) {
		t.Errorf("Expected net.ErrClosed, got %v", err)
	}
}

func TestConsumerKeepsSessionAlive(t *testing.T) {
	addr := startBroker(t)
	ctx := context.Background()

	c, err := NewConsumer(ctx, addr, "events", nil, testOptions())
	if err != nil {
		t.Fatalf("Failed to open consumer: %v", err)
	}
	defer c.Close()

	// Outlive several keepalive intervals before anything is produced.
	time.Sleep(1200 * time.Millisecond)
	if c.Pings() == 0 {
		t.Fatal("Expected the consumer to have sent PING")
	}

	p, err := NewProducer(ctx, addr, "events", testOptions())
	if err != nil {
		t.Fatalf("Failed to open producer: %v", err)
	}
	defer p.Close()
	if err := p.Send([]byte("late")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	got, err := c.Next(rctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if string(got) != "late" {
		t.Errorf("Expected %q, got %q", "late", got)
	}
}

func TestNextHonoursContext(t *testing.T) {
	addr := startBroker(t)

	c, err := NewConsumer(context.Background(), addr, "quiet", nil, testOptions())
	if err != nil {
		t.Fatalf("Failed to open consumer: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}

	// The connection is still usable after a cancelled Next.
	p, err := NewProducer(context.Background(), addr, "quiet", testOptions())
	if err != nil {
		t.Fatalf("Failed to open producer: %v", err)
	}
	defer p.Close()
	if err := p.Send([]byte("x")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	rctx, rcancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer rcancel()
	got, err := c.Next(rctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if string(got) != "x" {
		t.Errorf("Expected %q, got %q", "x", got)
	}
}

func TestNextReturnsEOFWhenBrokerCloses(t *testing.T) {
	addr := startBroker(t)

	opts := testOptions()
	// Ping far less often than the broker expects.
	opts.KeepaliveInterval = time.Minute
	c, err := NewConsumer(context.Background(), addr, "idle", nil, opts)
	if err != nil {
		t.Fatalf("Failed to open consumer: %v", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := c.Next(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Expected io.EOF after keepalive expiry, got %v", err)
	}
}

func TestInfo(t *testing.T) {
	addr := startBroker(t)
	ctx := context.Background()

	info, err := Info(ctx, addr, "missing", testOptions())
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.Exists {
		t.Error("Expected missing topic to not exist")
	}
	if info.NodeID != "client-test" {
		t.Errorf("Expected node id client-test, got %q", info.NodeID)
	}

	info, err = Info(ctx, addr, "missing", testOptions())
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.Exists {
		t.Error("Expected Info to leave the topic uncreated")
	}
}

func TestDialRetriesThenFails(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	start := time.Now()
	_, err = Dial(context.Background(), addr, Request{Topic: "t", Role: 0}, testOptions())
	if err == nil {
		t.Fatal("Expected dial to a closed port to fail")
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("Expected at least one backoff delay before giving up")
	}
}

func TestDialStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	opts := testOptions()
	opts.MaxRetries = 100
	opts.RetryDelay = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = Dial(ctx, addr, Request{Topic: "t"}, opts)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	if o.MaxRetries != 3 {
		t.Errorf("Expected 3 retries, got %d", o.MaxRetries)
	}
	if o.RetryDelay != time.Second {
		t.Errorf("Expected 1s retry delay, got %v", o.RetryDelay)
	}
	if o.ConnectTimeout != 10*time.Second {
		t.Errorf("Expected 10s connect timeout, got %v", o.ConnectTimeout)
	}
	if o.KeepaliveInterval != DefaultKeepaliveInterval {
		t.Errorf("Expected default keepalive, got %v", o.KeepaliveInterval)
	}
}

func TestNextKeepsTrailingCarriageReturn(t *testing.T) {
	addr := startBroker(t)
	ctx := context.Background()

	p, err := NewProducer(ctx, addr, "raw", testOptions())
	if err != nil {
		t.Fatalf("Failed to open producer: %v", err)
	}
	// The broker strips one CRLF, leaving "a\r" stored.
	if err := p.Send([]byte("a\r\r")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	waitNextOffset(t, addr, "raw", 1)
	p.Close()

	group := uint16(0)
	c, err := NewConsumer(ctx, addr, "raw", &group, testOptions())
	if err != nil {
		t.Fatalf("Failed to open consumer: %v", err)
	}
	defer c.Close()

	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	got, err := c.Next(rctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if string(got) != "a\r" {
		t.Errorf("Expected %q, got %q", "a\r", got)
	}
}
