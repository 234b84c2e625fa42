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
Package health reports whether a Franz broker can serve traffic.

CHECKS:
=======
  - storage:   the data root can be written
  - accepting: the broker has not begun shutting down
  - disk:      data root usage stays under a threshold

Each check returns a CheckResult. The overall status is the worst of
them: any unhealthy check makes the broker unhealthy, otherwise any
degraded check makes it degraded.

The same result backs the gRPC health service (grpc.health.v1), so
orchestrators can probe the broker without speaking its line protocol.
*/
package health

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Status is a health state.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status  Status        `json:"status"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency_ns"`
}

// CheckFunc runs one check.
type CheckFunc func() CheckResult

// Response is the combined outcome of every registered check.
type Response struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

// Checker runs registered checks.
type Checker struct {
	version string

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewChecker creates a checker reporting version.
func NewChecker(version string) *Checker {
	return &Checker{
		version: version,
		checks:  make(map[string]CheckFunc),
	}
}

// RegisterCheck adds or replaces the check called name.
func (c *Checker) RegisterCheck(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
}

// Names returns the registered check names, sorted.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunChecks runs every check and combines the results.
func (c *Checker) RunChecks() Response {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, fn := range c.checks {
		checks[name] = fn
	}
	c.mu.RUnlock()

	resp := Response{
		Status:    StatusHealthy,
		Version:   c.version,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}
	for name, fn := range checks {
		start := time.Now()
		result := fn()
		result.Latency = time.Since(start)
		resp.Checks[name] = result

		switch result.Status {
		case StatusUnhealthy:
			resp.Status = StatusUnhealthy
		case StatusDegraded:
			if resp.Status == StatusHealthy {
				resp.Status = StatusDegraded
			}
		}
	}
	return resp
}

// IsHealthy reports whether no check is unhealthy.
func (c *Checker) IsHealthy() bool {
	return c.RunChecks().Status != StatusUnhealthy
}

// StorageCheck is unhealthy whenever probe fails.
func StorageCheck(probe func() error) CheckFunc {
	return func() CheckResult {
		if err := probe(); err != nil {
			return CheckResult{Status: StatusUnhealthy, Message: err.Error()}
		}
		return CheckResult{Status: StatusHealthy}
	}
}

// WritableDir returns a probe that creates and removes a file in dir.
func WritableDir(dir string) func() error {
	return func() error {
		f, err := os.CreateTemp(dir, ".health-*")
		if err != nil {
			return fmt.Errorf("data root not writable: %w", err)
		}
		name := f.Name()
		f.Close()
		return os.Remove(filepath.Clean(name))
	}
}

// AcceptingCheck is unhealthy once accepting returns false.
func AcceptingCheck(accepting func() bool) CheckFunc {
	return func() CheckResult {
		if !accepting() {
			return CheckResult{Status: StatusUnhealthy, Message: "shutting down"}
		}
		return CheckResult{Status: StatusHealthy}
	}
}

// DiskCheck is degraded once usage, in percent, exceeds threshold.
func DiskCheck(threshold float64, usage func() float64) CheckFunc {
	return func() CheckResult {
		used := usage()
		if used > threshold {
			return CheckResult{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("disk usage %.1f%% above %.1f%%", used, threshold),
			}
		}
		return CheckResult{Status: StatusHealthy}
	}
}
