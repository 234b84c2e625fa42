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

// GroupStart selects where a consumer group with no committed offset begins.
type GroupStart string

const (
	// GroupStartEarliest starts a new group at the oldest retained record.
	GroupStartEarliest GroupStart = "earliest"
	// GroupStartLatest starts a new group at the current tail.
	GroupStartLatest GroupStart = "latest"
)

// Config holds the storage engine configuration.
type Config struct {
	Segment SegmentConfig

	// SyncWrites fsyncs the store after every append.
	SyncWrites bool

	// GroupStart applies to groups seen for the first time.
	GroupStart GroupStart
}

// SegmentConfig bounds the size of a single segment.
type SegmentConfig struct {
	// MaxStoreBytes rolls the segment once its store reaches this size.
	MaxStoreBytes uint64

	// MaxIndexBytes is the pre-allocated index size. It caps the number
	// of records per segment at MaxIndexBytes/12.
	MaxIndexBytes uint64

	// InitialOffset is the base offset of the first segment of a new log.
	InitialOffset uint64
}

// DefaultConfig returns production defaults: 64MB segments, 10MB indexes
// and fsync on every append.
func DefaultConfig() Config {
	return Config{
		Segment: SegmentConfig{
			MaxStoreBytes: 64 * 1024 * 1024,
			MaxIndexBytes: 10 * 1024 * 1024,
		},
		SyncWrites: true,
		GroupStart: GroupStartEarliest,
	}
}

func (c Config) withDefaults() Config {
	if c.Segment.MaxStoreBytes == 0 {
		c.Segment.MaxStoreBytes = 1024
	}
	if c.Segment.MaxIndexBytes == 0 {
		c.Segment.MaxIndexBytes = 1024
	}
	if c.GroupStart == "" {
		c.GroupStart = GroupStartEarliest
	}
	return c
}
