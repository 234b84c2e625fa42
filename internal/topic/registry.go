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
Package topic maps topic names to their on-disk logs.

A topic is created the first time it is referenced:

	Resolve("orders")
	  ├── read lock: cached?            → return handle
	  └── singleflight("orders")
	        ├── read lock: cached?      → return handle (a racing caller won)
	        ├── mkdir {root}/orders
	        ├── storage.OpenTopic
	        └── write lock: insert      → return handle

Concurrent callers for one name share a single creation and get the same
*storage.TopicLog. No registry lock is held while the filesystem is touched.
*/
package topic

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"franz/internal/logging"
	"franz/internal/storage"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrResolve wraps every failure to create or open a topic.
	ErrResolve = errors.New("topic resolution failed")

	// ErrRegistryClosed is returned by Resolve after Close.
	ErrRegistryClosed = errors.New("topic registry closed")
)

var openTopic = storage.OpenTopic

// Registry owns the canonical log handle of every topic under a data root.
type Registry struct {
	root   string
	config storage.Config
	logger *logging.Logger

	mu     sync.RWMutex
	topics map[string]*storage.TopicLog
	closed bool

	group singleflight.Group
}

// NewRegistry returns a registry rooted at root. Topics already on disk are
// opened lazily on first use.
func NewRegistry(root string, cfg storage.Config) *Registry {
	return &Registry{
		root:   root,
		config: cfg,
		logger: logging.NewLogger("topic"),
		topics: make(map[string]*storage.TopicLog),
	}
}

// Root returns the data root.
func (r *Registry) Root() string { return r.root }

// Resolve returns the log for name, creating the topic if needed.
func (r *Registry) Resolve(name string) (*storage.TopicLog, error) {
	if err := ValidateName(name); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResolve, err)
	}
	if tl, ok, err := r.cached(name); ok || err != nil {
		return tl, err
	}

	v, err, _ := r.group.Do(name, func() (interface{}, error) {
		if tl, ok, err := r.cached(name); ok || err != nil {
			return tl, err
		}
		return r.create(name)
	})
	if err != nil {
		return nil, err
	}
	return v.(*storage.TopicLog), nil
}

func (r *Registry) cached(name string) (*storage.TopicLog, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, false, ErrRegistryClosed
	}
	tl, ok := r.topics[name]
	return tl, ok, nil
}

func (r *Registry) create(name string) (*storage.TopicLog, error) {
	dir := filepath.Join(r.root, name)
	_, statErr := os.Stat(dir)
	created := os.IsNotExist(statErr)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrResolve, dir, err)
	}
	tl, err := openTopic(dir, r.config)
	if err != nil {
		if created {
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				r.logger.Warn("Failed to remove topic directory", "topic", name, "error", rmErr)
			}
		}
		return nil, fmt.Errorf("%w: open %s: %w", ErrResolve, name, err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		tl.Close()
		return nil, ErrRegistryClosed
	}
	r.topics[name] = tl
	r.mu.Unlock()

	r.logger.Info("Topic opened", "topic", name, "next_offset", tl.NextOffset())
	return tl, nil
}

// Lookup returns the log for name if it has already been resolved.
func (r *Registry) Lookup(name string) (*storage.TopicLog, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tl, ok := r.topics[name]
	return tl, ok
}

// Exists reports whether name is loaded or present on disk. It never
// creates anything.
func (r *Registry) Exists(name string) bool {
	if ValidateName(name) != nil {
		return false
	}
	if _, ok := r.Lookup(name); ok {
		return true
	}
	fi, err := os.Stat(filepath.Join(r.root, name))
	return err == nil && fi.IsDir()
}

// Names lists every topic, loaded or on disk, sorted.
func (r *Registry) Names() []string {
	set := make(map[string]struct{})

	r.mu.RLock()
	for name := range r.topics {
		set[name] = struct{}{}
	}
	r.mu.RUnlock()

	if entries, err := os.ReadDir(r.root); err == nil {
		for _, e := range entries {
			if e.IsDir() && ValidateName(e.Name()) == nil {
				set[e.Name()] = struct{}{}
			}
		}
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of loaded topics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}

// Close closes every loaded log. Later calls to Resolve fail.
func (r *Registry) Close() error {
	r.mu.Lock()
	topics := r.topics
	r.topics = make(map[string]*storage.TopicLog)
	r.closed = true
	r.mu.Unlock()

	var errs []error
	for name, tl := range topics {
		if err := tl.Close(); err != nil {
			r.logger.Error("Failed to close topic", "topic", name, "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
