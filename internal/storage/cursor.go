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
	"context"
)

// Cursor reads a topic in append order.
//
// An anonymous cursor belongs to a single reader and must not be shared
// between goroutines. A grouped cursor may be opened by any number of
// consumers; each record is handed to exactly one of them.
type Cursor struct {
	topic *TopicLog
	group *groupCursor
	next  uint64
}

// Group returns the cursor's group id, if any.
func (c *Cursor) Group() (uint16, bool) {
	if c.group == nil {
		return 0, false
	}
	return c.group.id, true
}

// Offset returns the next offset this cursor will read.
func (c *Cursor) Offset() uint64 {
	if c.group != nil {
		return c.group.next.Load()
	}
	return c.next
}

// Pop returns the next record, blocking until one is appended, ctx is
// done or the topic is closed.
func (c *Cursor) Pop(ctx context.Context) ([]byte, error) {
	for {
		// Take the notify channel before checking, so an append landing
		// between the check and the select still wakes us.
		wake := c.topic.wait()

		rec, ok, err := c.TryPop()
		if err != nil || ok {
			return rec, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.topic.closed:
			return nil, ErrClosed
		case <-wake:
		}
	}
}

// TryPop returns the next record without blocking. ok is false when the
// cursor is caught up.
func (c *Cursor) TryPop() (rec []byte, ok bool, err error) {
	if c.group == nil {
		if c.next >= c.topic.NextOffset() {
			return nil, false, nil
		}
		rec, err := c.topic.Read(c.next)
		if err != nil {
			return nil, false, err
		}
		c.next++
		return rec, true, nil
	}

	g := c.group
	g.mu.Lock()
	defer g.mu.Unlock()

	off := g.next.Load()
	if off >= c.topic.NextOffset() {
		return nil, false, nil
	}
	rec, err = c.topic.Read(off)
	if err != nil {
		return nil, false, err
	}
	// Commit before handing the record out: at most once per group.
	g.next.Store(off + 1)
	if err := c.topic.groups.commit(); err != nil {
		return nil, false, err
	}
	return rec, true, nil
}
