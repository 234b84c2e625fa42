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
Log strings segments together into one offset space.

	Log
	 ├── Segment 0     (offsets 0-4095)     0.store / 0.index
	 ├── Segment 4096  (offsets 4096-8191)  4096.store / 4096.index
	 └── Segment 8192  [active]

Only the last segment receives appends. Offsets are dense and global to
the log, so a reader can walk them one by one from LowestOffset up to
NextOffset.
*/
package storage

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Log is the ordered set of segments for one topic.
type Log struct {
	mu sync.RWMutex

	Dir    string
	Config Config

	activeSegment *Segment
	segments      []*Segment
}

// NewLog opens the log in dir, which must exist, recovering any segments
// already on disk.
func NewLog(dir string, c Config) (*Log, error) {
	l := &Log{
		Dir:    dir,
		Config: c.withDefaults(),
	}
	return l, l.setup()
}

func (l *Log) setup() error {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return err
	}

	var baseOffsets []uint64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, storeExt) {
			continue
		}
		off, err := strconv.ParseUint(strings.TrimSuffix(name, storeExt), 10, 64)
		if err != nil {
			continue
		}
		baseOffsets = append(baseOffsets, off)
	}
	sort.Slice(baseOffsets, func(i, j int) bool { return baseOffsets[i] < baseOffsets[j] })

	for _, off := range baseOffsets {
		if err := l.newSegment(off); err != nil {
			return err
		}
	}
	if len(l.segments) == 0 {
		return l.newSegment(l.Config.Segment.InitialOffset)
	}
	return nil
}

// Append writes p to the active segment and returns its offset, rolling
// to a new segment when the active one fills up.
func (l *Log) Append(p []byte) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	off, err := l.activeSegment.Append(p)
	if err != nil {
		return 0, err
	}
	if l.activeSegment.IsMaxed() {
		err = l.newSegment(off + 1)
	}
	return off, err
}

// Read returns the record at off, or io.EOF if it has not been written.
func (l *Log) Read(off uint64) ([]byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i := sort.Search(len(l.segments), func(i int) bool {
		return l.segments[i].nextOffset > off
	})
	if i == len(l.segments) || !l.segments[i].Contains(off) {
		return nil, io.EOF
	}
	return l.segments[i].Read(off)
}

// LowestOffset returns the base offset of the oldest segment.
func (l *Log) LowestOffset() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.segments[0].baseOffset
}

// NextOffset returns the offset the next append will receive.
func (l *Log) NextOffset() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.activeSegment.nextOffset
}

// Segments returns the number of segments.
func (l *Log) Segments() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.segments)
}

// Close closes every segment.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.segments {
		if err := s.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Remove closes the log and deletes its directory.
func (l *Log) Remove() error {
	if err := l.Close(); err != nil {
		return err
	}
	return os.RemoveAll(l.Dir)
}

func (l *Log) newSegment(off uint64) error {
	s, err := NewSegment(l.Dir, off, l.Config)
	if err != nil {
		return err
	}
	l.segments = append(l.segments, s)
	l.activeSegment = s
	return nil
}

func segmentPath(dir string, base uint64, ext string) string {
	return filepath.Join(dir, strconv.FormatUint(base, 10)+ext)
}
