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
	"testing"
	"time"
)

func BenchmarkProducerSend(b *testing.B) {
	addr := startBroker(b)
	p, err := NewProducer(context.Background(), addr, "bench", testOptions())
	if err != nil {
		b.Fatalf("Failed to open producer: %v", err)
	}
	defer p.Close()

	rec := []byte("benchmark record payload for testing performance")
	b.SetBytes(int64(len(rec)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := p.Send(rec); err != nil {
			b.Fatalf("Send failed: %v", err)
		}
	}
}

func BenchmarkConsumerNext(b *testing.B) {
	addr := startBroker(b)
	ctx := context.Background()

	p, err := NewProducer(ctx, addr, "bench", testOptions())
	if err != nil {
		b.Fatalf("Failed to open producer: %v", err)
	}
	rec := []byte("benchmark record payload for testing performance")
	for i := 0; i < b.N; i++ {
		if err := p.Send(rec); err != nil {
			b.Fatalf("Send failed: %v", err)
		}
	}
	p.Close()
	waitNextOffset(b, addr, "bench", uint64(b.N))

	group := uint16(1)
	c, err := NewConsumer(ctx, addr, "bench", &group, testOptions())
	if err != nil {
		b.Fatalf("Failed to open consumer: %v", err)
	}
	defer c.Close()

	rctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	b.SetBytes(int64(len(rec)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Next(rctx); err != nil {
			b.Fatalf("Next failed: %v", err)
		}
	}
}
