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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"franz/internal/broker"
	"franz/internal/config"
	"franz/internal/topic"
	"franz/pkg/cli"
)

func startBroker(t *testing.T) string {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BindAddr = "127.0.0.1:0"
	cfg.NodeID = "cli-test"
	cfg.DataDir = t.TempDir()
	cfg.Storage.SyncWrites = false
	cfg.Keepalive.IntervalMs = 1000
	cfg.Shutdown.DrainTimeoutMs = 2000

	srv := broker.NewServer(cfg, topic.NewRegistry(cfg.DataDir, broker.StorageConfig(cfg)))
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })
	return srv.Addr().String()
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cli.SetColorsEnabled(false)

	root := newRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func infoJSON(t *testing.T, addr, name string) topicInfo {
	t.Helper()
	out, err := execute(t, "", "info", name, "--addr", addr, "--json")
	require.NoError(t, err)
	var v topicInfo
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	return v
}

func waitNext(t *testing.T, addr, name string, want uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		v := infoJSON(t, addr, name)
		return v.NextOffset != nil && *v.NextOffset >= want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestProduceConsumeInfo(t *testing.T) {
	addr := startBroker(t)

	out, err := execute(t, "", "produce", "orders", "--addr", addr, "-m", "order-1", "-m", "order-2")
	require.NoError(t, err)
	assert.Contains(t, out, "Sent 2 records to orders")
	waitNext(t, addr, "orders", 2)

	out, err = execute(t, "", "consume", "orders", "--addr", addr, "-g", "3", "-n", "2")
	require.NoError(t, err)
	assert.Equal(t, "order-1\norder-2\n", out)

	v := infoJSON(t, addr, "orders")
	assert.True(t, v.Exists)
	assert.Equal(t, "cli-test", v.NodeID)
	assert.Equal(t, []uint16{3}, v.Groups)
	assert.Equal(t, []string{"orders"}, v.Topics)
}

func TestProduceFromStdin(t *testing.T) {
	addr := startBroker(t)

	out, err := execute(t, "a\nb\nc\n", "produce", "lines", "--addr", addr, "-q")
	require.NoError(t, err)
	assert.Empty(t, out)
	waitNext(t, addr, "lines", 3)

	out, err = execute(t, "", "consume", "lines", "--addr", addr, "-g", "0", "-n", "3")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\n", out)
}

func TestInfoMissingTopic(t *testing.T) {
	addr := startBroker(t)

	out, err := execute(t, "", "info", "ghost", "--addr", addr)
	require.NoError(t, err)
	assert.Contains(t, out, "exists: false")
	assert.Contains(t, out, "node: cli-test")

	v := infoJSON(t, addr, "ghost")
	assert.False(t, v.Exists)
	assert.Nil(t, v.NextOffset)
	assert.Empty(t, v.Topics)
}

func TestConsumeRejectsBadGroup(t *testing.T) {
	_, err := execute(t, "", "consume", "orders", "--addr", "127.0.0.1:1", "-g", "70000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid group")
}

func TestCommandsRequireTopic(t *testing.T) {
	for _, cmd := range []string{"produce", "consume", "info"} {
		_, err := execute(t, "", cmd)
		assert.Error(t, err, cmd)
	}
}

func TestHintForRefused(t *testing.T) {
	_, err := execute(t, "", "info", "orders", "--addr", "127.0.0.1:1", "--retries", "1")
	require.Error(t, err)
	assert.NotEmpty(t, hintFor(err))
}
