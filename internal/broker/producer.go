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
	"unicode/utf8"

	"franz/internal/metrics"
	"franz/internal/storage"
)

// Producer appends every line read from its stream to one topic.
type Producer struct {
	id     string
	log    *storage.TopicLog
	stream Stream

	records atomic.Uint64
}

// NewProducer returns a producer session writing to log.
func NewProducer(id string, log *storage.TopicLog, stream Stream) *Producer {
	return &Producer{id: id, log: log, stream: stream}
}

func (p *Producer) ID() string      { return p.id }
func (p *Producer) Kind() Kind      { return KindProducer }
func (p *Producer) Topic() string   { return p.log.Name() }
func (p *Producer) Records() uint64 { return p.records.Load() }
func (p *Producer) Close() error    { return p.stream.Close() }

// Run appends lines in arrival order until EOF, a bad line, an append
// failure or cancellation. Lines already buffered when ctx is cancelled
// are still appended.
func (p *Producer) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		p.stream.SetReadDeadline(time.Now())
	})
	defer stop()

	m := metrics.Get()
	for {
		line, err := p.stream.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
			return fmt.Errorf("%w: read: %w", ErrSessionIO, err)
		}
		if !utf8.Valid(line) {
			return fmt.Errorf("%w: record %d is not valid UTF-8", ErrSessionIO, p.records.Load())
		}

		start := time.Now()
		if _, err := p.log.Append(line); err != nil {
			return fmt.Errorf("%w: append: %w", ErrSessionIO, err)
		}
		p.records.Add(1)
		m.RecordProduce(p.log.Name(), len(line), time.Since(start))
	}
}
