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
	"os"
)

const (
	storeExt = ".store"
	indexExt = ".index"
)

// Segment is a store and index pair covering offsets [baseOffset, nextOffset).
// Files are named after the base offset: {base}.store and {base}.index.
type Segment struct {
	store      *Store
	index      *Index
	baseOffset uint64
	nextOffset uint64
	config     Config
}

// NewSegment opens or creates the segment starting at baseOffset in dir.
// For an existing segment nextOffset is recovered from the last index entry.
func NewSegment(dir string, baseOffset uint64, c Config) (*Segment, error) {
	s := &Segment{
		baseOffset: baseOffset,
		config:     c,
	}

	storeFile, err := os.OpenFile(
		segmentPath(dir, baseOffset, storeExt),
		os.O_RDWR|os.O_CREATE|os.O_APPEND,
		0644,
	)
	if err != nil {
		return nil, err
	}
	if s.store, err = NewStore(storeFile, c.SyncWrites); err != nil {
		storeFile.Close()
		return nil, err
	}

	indexFile, err := os.OpenFile(
		segmentPath(dir, baseOffset, indexExt),
		os.O_RDWR|os.O_CREATE,
		0644,
	)
	if err != nil {
		s.store.Close()
		return nil, err
	}
	if s.index, err = NewIndex(indexFile, c, s.store.Size()); err != nil {
		indexFile.Close()
		s.store.Close()
		return nil, err
	}

	if off, _, err := s.index.Read(-1); err != nil {
		s.nextOffset = baseOffset
	} else {
		s.nextOffset = baseOffset + uint64(off) + 1
	}
	return s, nil
}

// Append writes p and returns its absolute offset.
//
// The store write lands before the index entry. A crash between the two
// leaves an unindexed tail in the store that the next append skips past.
func (s *Segment) Append(p []byte) (uint64, error) {
	cur := s.nextOffset
	_, pos, err := s.store.Append(p)
	if err != nil {
		return 0, err
	}
	if err := s.index.Write(uint32(cur-s.baseOffset), pos); err != nil {
		return 0, err
	}
	s.nextOffset++
	return cur, nil
}

// Read returns the record at absolute offset off.
func (s *Segment) Read(off uint64) ([]byte, error) {
	_, pos, err := s.index.Read(int64(off - s.baseOffset))
	if err != nil {
		return nil, err
	}
	return s.store.Read(pos)
}

// Contains reports whether off was written to this segment.
func (s *Segment) Contains(off uint64) bool {
	return s.baseOffset <= off && off < s.nextOffset
}

// IsMaxed reports whether the segment should be rolled.
func (s *Segment) IsMaxed() bool {
	return s.store.Size() >= s.config.Segment.MaxStoreBytes || s.index.IsFull()
}

// Close closes the index, then the store.
func (s *Segment) Close() error {
	if err := s.index.Close(); err != nil {
		return err
	}
	return s.store.Close()
}

// Remove closes the segment and deletes both files.
func (s *Segment) Remove() error {
	if err := s.Close(); err != nil {
		return err
	}
	if err := os.Remove(s.index.Name()); err != nil {
		return err
	}
	return os.Remove(s.store.Name())
}
