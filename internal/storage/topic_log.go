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

package storage

import (
	"errors"
	"path/filepath"
	"sync"
)

// ErrClosed is returned by operations on a closed TopicLog.
var ErrClosed = errors.New("storage: topic log closed")

// TopicLog is the per-topic handle shared by every producer and consumer
// of a topic. It is safe for concurrent use.
//
// Appends wake every blocked cursor by closing the current notify channel
// and installing a fresh one.
type TopicLog struct {
	name   string
	log    *Log
	groups *offsetStore
	start  GroupStart

	notifyMu sync.Mutex
	notifyCh chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

// OpenTopic opens or creates the topic log stored in dir. The directory
// must already exist.
func OpenTopic(dir string, c Config) (*TopicLog, error) {
	c = c.withDefaults()
	l, err := NewLog(dir, c)
	if err != nil {
		return nil, err
	}
	groups, err := loadOffsets(dir)
	if err != nil {
		l.Close()
		return nil, err
	}
	return &TopicLog{
		name:     filepath.Base(dir),
		log:      l,
		groups:   groups,
		start:    c.GroupStart,
		notifyCh: make(chan struct{}),
		closed:   make(chan struct{}),
	}, nil
}

// Name returns the topic name.
func (t *TopicLog) Name() string { return t.name }

// Dir returns the topic directory.
func (t *TopicLog) Dir() string { return t.log.Dir }

// Append writes one record and returns its offset. The record is visible
// to cursors by the time Append returns.
func (t *TopicLog) Append(p []byte) (uint64, error) {
	select {
	case <-t.closed:
		return 0, ErrClosed
	default:
	}

	off, err := t.log.Append(p)
	if err != nil {
		return 0, err
	}

	t.notifyMu.Lock()
	close(t.notifyCh)
	t.notifyCh = make(chan struct{})
	t.notifyMu.Unlock()
	return off, nil
}

// Read returns the record at off, or io.EOF if it does not exist yet.
func (t *TopicLog) Read(off uint64) ([]byte, error) {
	return t.log.Read(off)
}

// NextOffset returns the offset the next append will receive.
func (t *TopicLog) NextOffset() uint64 { return t.log.NextOffset() }

// LowestOffset returns the oldest readable offset.
func (t *TopicLog) LowestOffset() uint64 { return t.log.LowestOffset() }

// Groups returns the ids of every consumer group with a committed offset.
func (t *TopicLog) Groups() []uint16 { return t.groups.ids() }

// GroupOffset returns the next offset group id will be handed.
func (t *TopicLog) GroupOffset(id uint16) (uint64, bool) { return t.groups.offset(id) }

// OpenCursor returns a cursor over the topic.
//
// A nil group yields an anonymous cursor starting at the current tail.
// A non-nil group yields a cursor sharing its position with every other
// cursor opened with the same id.
func (t *TopicLog) OpenCursor(group *uint16) (*Cursor, error) {
	select {
	case <-t.closed:
		return nil, ErrClosed
	default:
	}

	if group == nil {
		return &Cursor{topic: t, next: t.NextOffset()}, nil
	}

	start := t.LowestOffset()
	if t.start == GroupStartLatest {
		start = t.NextOffset()
	}
	gc, err := t.groups.cursor(*group, start)
	if err != nil {
		return nil, err
	}
	return &Cursor{topic: t, group: gc}, nil
}

// Close wakes every blocked cursor with ErrClosed, commits group offsets
// and closes the segments.
func (t *TopicLog) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		if cerr := t.groups.commit(); cerr != nil {
			err = cerr
		}
		if cerr := t.log.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}

func (t *TopicLog) wait() <-chan struct{} {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()
	return t.notifyCh
}
