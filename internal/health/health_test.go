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

package health

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func fixed(status Status) CheckFunc {
	return func() CheckResult { return CheckResult{Status: status} }
}

func TestRunChecksAggregate(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Status
		want   Status
	}{
		{"no checks", nil, StatusHealthy},
		{"all healthy", map[string]Status{"storage": StatusHealthy, "accepting": StatusHealthy}, StatusHealthy},
		{"one degraded", map[string]Status{"storage": StatusHealthy, "disk": StatusDegraded}, StatusDegraded},
		{"unhealthy wins", map[string]Status{"disk": StatusDegraded, "accepting": StatusUnhealthy}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewChecker("0.1.0")
			for name, status := range tt.checks {
				checker.RegisterCheck(name, fixed(status))
			}

			resp := checker.RunChecks()
			if resp.Status != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, resp.Status)
			}
			if len(resp.Checks) != len(tt.checks) {
				t.Errorf("Expected %d results, got %d", len(tt.checks), len(resp.Checks))
			}
			if resp.Version != "0.1.0" {
				t.Errorf("Expected version 0.1.0, got %q", resp.Version)
			}
		})
	}
}

func TestRegisterCheckReplaces(t *testing.T) {
	checker := NewChecker("0.1.0")
	checker.RegisterCheck("accepting", fixed(StatusHealthy))
	if !checker.IsHealthy() {
		t.Error("Expected healthy")
	}

	checker.RegisterCheck("accepting", fixed(StatusUnhealthy))
	if checker.IsHealthy() {
		t.Error("Expected the replacement check to make the checker unhealthy")
	}
	if n := len(checker.Names()); n != 1 {
		t.Errorf("Expected 1 check, got %d", n)
	}
}

func TestStorageCheck(t *testing.T) {
	// Healthy storage
	check := StorageCheck(func() error { return nil })
	result := check()
	if result.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", result.Status)
	}

	// Unhealthy storage
	check = StorageCheck(func() error { return errors.New("disk full") })
	result = check()
	if result.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy, got %s", result.Status)
	}
}

func TestAcceptingCheck(t *testing.T) {
	accepting := true
	check := AcceptingCheck(func() bool { return accepting })
	if result := check(); result.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", result.Status)
	}

	accepting = false
	if result := check(); result.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy, got %s", result.Status)
	}
}

func TestWritableDir(t *testing.T) {
	dir := t.TempDir()
	if err := WritableDir(dir)(); err != nil {
		t.Errorf("Expected writable dir, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("Expected probe to clean up, found %d entries", len(entries))
	}

	if err := WritableDir(filepath.Join(dir, "missing"))(); err == nil {
		t.Error("Expected error for missing dir")
	}
}

func TestDiskUsage(t *testing.T) {
	used := DiskUsage(t.TempDir())()
	if used < 0 || used > 100 {
		t.Errorf("Expected usage between 0 and 100, got %f", used)
	}
}

func TestCheckerNames(t *testing.T) {
	checker := NewChecker("1.0.0")
	checker.RegisterCheck("storage", StorageCheck(func() error { return nil }))
	checker.RegisterCheck("accepting", AcceptingCheck(func() bool { return true }))

	names := checker.Names()
	if len(names) != 2 || names[0] != "accepting" || names[1] != "storage" {
		t.Errorf("Expected [accepting storage], got %v", names)
	}
}

func TestDiskCheck(t *testing.T) {
	// Normal usage
	check := DiskCheck(90.0, func() float64 { return 50.0 })
	result := check()
	if result.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", result.Status)
	}

	// High usage
	check = DiskCheck(90.0, func() float64 { return 95.0 })
	result = check()
	if result.Status != StatusDegraded {
		t.Errorf("Expected degraded, got %s", result.Status)
	}
}
