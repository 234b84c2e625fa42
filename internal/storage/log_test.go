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
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestLogAppendAndRead(t *testing.T) {
	log, err := NewLog(t.TempDir(), testConfig(4096, 1024))
	if err != nil {
		t.Fatalf("NewLog failed: %v", err)
	}
	defer log.Close()

	for i := 0; i < 5; i++ {
		off, err := log.Append([]byte(fmt.Sprintf("message-%d", i)))
		if err != nil {
			t.Fatalf("Append failed for message %d: %v", i, err)
		}
		if off != uint64(i) {
			t.Errorf("Expected offset %d, got %d", i, off)
		}
	}

	for i := 0; i < 5; i++ {
		got, err := log.Read(uint64(i))
		if err != nil {
			t.Fatalf("Read failed for offset %d: %v", i, err)
		}
		if want := fmt.Sprintf("message-%d", i); string(got) != want {
			t.Errorf("Offset %d: expected %q, got %q", i, want, got)
		}
	}

	if log.LowestOffset() != 0 || log.NextOffset() != 5 {
		t.Errorf("Expected offsets [0,5), got [%d,%d)", log.LowestOffset(), log.NextOffset())
	}
}

func TestLogReadPastEnd(t *testing.T) {
	log, _ := NewLog(t.TempDir(), testConfig(4096, 1024))
	defer log.Close()

	if _, err := log.Read(0); err != io.EOF {
		t.Errorf("Expected io.EOF on empty log, got %v", err)
	}
	log.Append([]byte("only"))
	if _, err := log.Read(1); err != io.EOF {
		t.Errorf("Expected io.EOF past the tail, got %v", err)
	}
}

func TestLogSegmentRotation(t *testing.T) {
	log, _ := NewLog(t.TempDir(), testConfig(100, 1024))
	defer log.Close()

	rec := []byte("message to trigger rotation")
	for i := 0; i < 20; i++ {
		if _, err := log.Append(rec); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if log.Segments() <= 1 {
		t.Fatalf("Expected multiple segments, got %d", log.Segments())
	}

	// Offsets stay dense across segment boundaries.
	for i := uint64(0); i < 20; i++ {
		got, err := log.Read(i)
		if err != nil {
			t.Fatalf("Read failed for offset %d: %v", i, err)
		}
		if !bytes.Equal(rec, got) {
			t.Errorf("Data mismatch at offset %d", i)
		}
	}
}

func TestLogConcurrentAppend(t *testing.T) {
	log, _ := NewLog(t.TempDir(), testConfig(1<<20, 1<<20))
	defer log.Close()

	const writers, perWriter = 10, 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				if _, err := log.Append([]byte("concurrent message")); err != nil {
					t.Errorf("Append failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if got := log.NextOffset(); got != writers*perWriter {
		t.Errorf("Expected next offset %d, got %d", writers*perWriter, got)
	}
}

func TestLogReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(100, 1024)

	log1, _ := NewLog(dir, cfg)
	for i := 0; i < 12; i++ {
		log1.Append([]byte(fmt.Sprintf("persistent-%02d", i)))
	}
	segments := log1.Segments()
	log1.Close()

	log2, err := NewLog(dir, cfg)
	if err != nil {
		t.Fatalf("Failed to reopen log: %v", err)
	}
	defer log2.Close()

	if log2.Segments() != segments {
		t.Errorf("Expected %d segments after reopen, got %d", segments, log2.Segments())
	}
	if log2.NextOffset() != 12 {
		t.Errorf("Expected next offset 12 after reopen, got %d", log2.NextOffset())
	}
	got, err := log2.Read(11)
	if err != nil || string(got) != "persistent-11" {
		t.Errorf("Expected persistent-11, got %q (%v)", got, err)
	}
}

func TestLogIgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, offsetsFile), []byte(`{"groups":{}}`), 0644)
	os.WriteFile(filepath.Join(dir, "notes.store"), nil, 0644)
	os.Mkdir(filepath.Join(dir, "7.store"), 0755)

	log, err := NewLog(dir, testConfig(4096, 1024))
	if err != nil {
		t.Fatalf("NewLog failed: %v", err)
	}
	defer log.Close()

	if log.Segments() != 1 {
		t.Errorf("Expected 1 segment, got %d", log.Segments())
	}
}
