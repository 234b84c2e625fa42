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
Consumer group offsets.

Every grouped cursor on a topic shares one groupCursor per group id. The
next offset to hand out is committed to {topic_dir}/offsets.json before
the record is returned, so a restart never redelivers a record to a
group that already claimed it.

FILE FORMAT:
============

	{
	  "groups": {
	    "1": 42,
	    "7": 1003
	  }
	}
*/
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
)

const offsetsFile = "offsets.json"

type offsetsSnapshot struct {
	Groups map[string]uint64 `json:"groups"`
}

// groupCursor is the shared read position of one consumer group.
// mu serializes claim-and-commit across every consumer of the group.
type groupCursor struct {
	mu   sync.Mutex
	id   uint16
	next atomic.Uint64
}

type offsetStore struct {
	path string

	mu     sync.Mutex
	groups map[uint16]*groupCursor
}

func loadOffsets(dir string) (*offsetStore, error) {
	o := &offsetStore{
		path:   filepath.Join(dir, offsetsFile),
		groups: make(map[uint16]*groupCursor),
	}

	data, err := os.ReadFile(o.path)
	if errors.Is(err, os.ErrNotExist) {
		return o, nil
	}
	if err != nil {
		return nil, err
	}

	var snap offsetsSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode %s: %w", o.path, err)
	}
	for key, next := range snap.Groups {
		id, err := strconv.ParseUint(key, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("decode %s: group %q: %w", o.path, key, err)
		}
		gc := &groupCursor{id: uint16(id)}
		gc.next.Store(next)
		o.groups[gc.id] = gc
	}
	return o, nil
}

// cursor returns the shared cursor for id, creating it at start if the
// group has never been seen.
func (o *offsetStore) cursor(id uint16, start uint64) (*groupCursor, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if gc, ok := o.groups[id]; ok {
		return gc, nil
	}
	gc := &groupCursor{id: id}
	gc.next.Store(start)
	o.groups[id] = gc
	return gc, o.persistLocked()
}

// commit writes every group's position to disk.
func (o *offsetStore) commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.persistLocked()
}

func (o *offsetStore) persistLocked() error {
	snap := offsetsSnapshot{Groups: make(map[string]uint64, len(o.groups))}
	for id, gc := range o.groups {
		snap.Groups[strconv.FormatUint(uint64(id), 10)] = gc.next.Load()
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	tmp := o.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, o.path)
}

func (o *offsetStore) ids() []uint16 {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]uint16, 0, len(o.groups))
	for id := range o.groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (o *offsetStore) offset(id uint16) (uint64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	gc, ok := o.groups[id]
	if !ok {
		return 0, false
	}
	return gc.next.Load(), true
}
