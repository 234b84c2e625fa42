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

package broker

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"franz/internal/config"
	"franz/internal/storage"
)

func testStorage() storage.Config {
	c := storage.DefaultConfig()
	c.Segment.MaxStoreBytes = 1 << 20
	c.Segment.MaxIndexBytes = 1 << 16
	c.SyncWrites = false
	return c
}

func openTopic(t *testing.T, name string) *storage.TopicLog {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	tl, err := storage.OpenTopic(dir, testStorage())
	require.NoError(t, err)
	t.Cleanup(func() { tl.Close() })
	return tl
}

// pipeStream returns a broker-side stream and the client end of a pipe.
func pipeStream(t *testing.T, maxLine int) (Stream, net.Conn, *bufio.Reader) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return NewTCPStream(server, nil, maxLine), client, bufio.NewReader(client)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BindAddr = "127.0.0.1:0"
	cfg.NodeID = "test-node"
	cfg.DataDir = t.TempDir()
	cfg.Storage.SegmentBytes = 1 << 20
	cfg.Storage.IndexBytes = 1 << 16
	cfg.Storage.SyncWrites = false
	cfg.Handshake.TimeoutMs = 500
	cfg.Keepalive.IntervalMs = 2000
	cfg.Shutdown.DrainTimeoutMs = 2000
	return cfg
}
