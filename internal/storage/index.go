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
Index maps a segment's relative record offsets to byte positions in its store.

ENTRY FORMAT:
=============
Each entry is 12 bytes:

	+---------------------------+--------------------+
	| Relative offset (4 bytes) | Position (8 bytes) |
	+---------------------------+--------------------+

Entry i always carries relative offset i, which is what crash recovery
relies on.

PRE-ALLOCATION:
===============
The file is grown to MaxIndexBytes and mapped with gommap. A clean Close
truncates it back to the bytes in use, so a file whose size is smaller
than MaxIndexBytes was closed cleanly. A file still at MaxIndexBytes is
rescanned on open.
*/
package storage

import (
	"io"
	"os"

	"github.com/tysonmote/gommap"
)

var (
	offWidth uint64 = 4
	posWidth uint64 = 8
	entWidth        = offWidth + posWidth
)

// Index is a memory-mapped offset table for one segment.
type Index struct {
	file *os.File
	mmap gommap.MMap
	size uint64
}

// NewIndex maps f and recovers the number of entries in use.
// storeSize is the size of the companion store file; it decides whether
// the all-zero first entry is real.
func NewIndex(f *os.File, c Config, storeSize uint64) (*Index, error) {
	idx := &Index{file: f}

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	savedSize := uint64(fi.Size())

	if err := f.Truncate(int64(c.Segment.MaxIndexBytes)); err != nil {
		return nil, err
	}
	if idx.mmap, err = gommap.Map(idx.file.Fd(), gommap.PROT_READ|gommap.PROT_WRITE, gommap.MAP_SHARED); err != nil {
		return nil, err
	}

	if savedSize < c.Segment.MaxIndexBytes && savedSize%entWidth == 0 {
		idx.size = savedSize
	} else {
		idx.size = idx.scan(storeSize)
	}
	return idx, nil
}

// scan walks the mapped entries and stops at the first one that breaks
// the offset sequence or points outside the store.
func (i *Index) scan(storeSize uint64) uint64 {
	if storeSize == 0 {
		return 0
	}
	n := uint64(len(i.mmap)) / entWidth
	var prev uint64
	for e := uint64(1); e < n; e++ {
		at := e * entWidth
		off := enc.Uint32(i.mmap[at : at+offWidth])
		pos := enc.Uint64(i.mmap[at+offWidth : at+entWidth])
		if uint64(off) != e || pos <= prev || pos >= storeSize {
			return e * entWidth
		}
		prev = pos
	}
	return n * entWidth
}

// Read returns the entry at index in, or the last entry when in is -1.
// io.EOF means the entry does not exist.
func (i *Index) Read(in int64) (out uint32, pos uint64, err error) {
	if i.size == 0 {
		return 0, 0, io.EOF
	}
	if in == -1 {
		out = uint32(i.size/entWidth) - 1
	} else {
		out = uint32(in)
	}
	at := uint64(out) * entWidth
	if i.size < at+entWidth {
		return 0, 0, io.EOF
	}
	out = enc.Uint32(i.mmap[at : at+offWidth])
	pos = enc.Uint64(i.mmap[at+offWidth : at+entWidth])
	return out, pos, nil
}

// Write appends an entry. io.EOF means the index is full.
func (i *Index) Write(off uint32, pos uint64) error {
	if uint64(len(i.mmap)) < i.size+entWidth {
		return io.EOF
	}
	enc.PutUint32(i.mmap[i.size:i.size+offWidth], off)
	enc.PutUint64(i.mmap[i.size+offWidth:i.size+entWidth], pos)
	i.size += entWidth
	return nil
}

// Entries returns the number of entries written.
func (i *Index) Entries() uint64 {
	return i.size / entWidth
}

// IsFull reports whether another entry would not fit.
func (i *Index) IsFull() bool {
	return uint64(len(i.mmap)) < i.size+entWidth
}

// Close syncs the mapping and truncates the file to the bytes in use.
func (i *Index) Close() error {
	if err := i.mmap.Sync(gommap.MS_SYNC); err != nil {
		return err
	}
	if err := i.file.Truncate(int64(i.size)); err != nil {
		return err
	}
	if err := i.file.Sync(); err != nil {
		return err
	}
	return i.file.Close()
}

// Name returns the index's file path.
func (i *Index) Name() string {
	return i.file.Name()
}
