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
Package storage implements the append-only record log that backs every Franz topic.

LAYOUT:
=======
Each topic owns one directory under the broker data root:

	<data_root>/<topic>/
	  ├── 0.store          length-prefixed records
	  ├── 0.index          mmap'd offset -> position table
	  ├── 4096.store       next segment once 0.* is full
	  ├── 4096.index
	  └── offsets.json     committed consumer-group offsets

The pieces stack bottom-up:

 1. Store   - one data file, records framed as [8-byte length][bytes]
 2. Index   - one mmap'd file of fixed-width entries
 3. Segment - a Store plus its Index covering a contiguous offset range
 4. Log     - the ordered segment list for a topic
 5. TopicLog - a Log plus append notification and consumer cursors

RECORD FORMAT:
==============

	+------------------+----------------+
	| Length (8 bytes) | Data (N bytes) |
	+------------------+----------------+

Lengths are big-endian uint64.
*/
package storage

import (
	"bufio"
	"encoding/binary"
	"os"
	"sync"
)

var enc = binary.BigEndian

// lenWidth is the size of the record length prefix.
const lenWidth = 8

// Store is an append-only data file holding length-prefixed records.
// Reads may run concurrently with each other; appends are serialized.
type Store struct {
	File *os.File

	mu   sync.RWMutex
	buf  *bufio.Writer
	size uint64

	// syncWrites fsyncs after every append.
	syncWrites bool
}

// NewStore wraps f, which must be opened O_RDWR|O_CREATE|O_APPEND.
// The current file size becomes the next append position.
func NewStore(f *os.File, syncWrites bool) (*Store, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return &Store{
		File:       f,
		size:       uint64(fi.Size()),
		buf:        bufio.NewWriter(f),
		syncWrites: syncWrites,
	}, nil
}

// Append writes p and returns the bytes written (prefix included) and
// the position the record starts at.
//
// The buffer is always flushed before returning so the record is
// readable by the time Append returns. With syncWrites the file is
// also fsynced.
func (s *Store) Append(p []byte) (n uint64, pos uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos = s.size

	var prefix [lenWidth]byte
	enc.PutUint64(prefix[:], uint64(len(p)))
	if _, err := s.buf.Write(prefix[:]); err != nil {
		return 0, 0, err
	}
	w, err := s.buf.Write(p)
	if err != nil {
		return 0, 0, err
	}
	if err := s.buf.Flush(); err != nil {
		return 0, 0, err
	}
	if s.syncWrites {
		if err := s.File.Sync(); err != nil {
			return 0, 0, err
		}
	}

	n = uint64(w + lenWidth)
	s.size += n
	return n, pos, nil
}

// Read returns the record starting at pos.
func (s *Store) Read(pos uint64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var prefix [lenWidth]byte
	if _, err := s.File.ReadAt(prefix[:], int64(pos)); err != nil {
		return nil, err
	}
	b := make([]byte, enc.Uint64(prefix[:]))
	if _, err := s.File.ReadAt(b, int64(pos+lenWidth)); err != nil {
		return nil, err
	}
	return b, nil
}

// ReadAt implements io.ReaderAt over the raw file contents.
func (s *Store) ReadAt(p []byte, off int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.File.ReadAt(p, off)
}

// Size returns the number of bytes written to the store.
func (s *Store) Size() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Close flushes, syncs and closes the underlying file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.buf.Flush(); err != nil {
		return err
	}
	if err := s.File.Sync(); err != nil {
		return err
	}
	return s.File.Close()
}

// Name returns the store's file path.
func (s *Store) Name() string {
	return s.File.Name()
}
