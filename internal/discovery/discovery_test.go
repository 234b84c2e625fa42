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

package discovery

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeFromEntry(t *testing.T) {
	n, ok := nodeFromEntry(&mdns.ServiceEntry{
		Name:       "node-1._franz._tcp.local.",
		Host:       "broker.local.",
		AddrV4:     net.ParseIP("10.0.0.7"),
		Port:       8084,
		InfoFields: []string{"node_id=node-1", "version=0.1.0"},
	})
	require.True(t, ok)
	assert.Equal(t, Node{NodeID: "node-1", Version: "0.1.0", Host: "broker.local", Addr: "10.0.0.7:8084"}, n)
}

func TestNodeFromEntryFallsBackToInstanceName(t *testing.T) {
	n, ok := nodeFromEntry(&mdns.ServiceEntry{
		Name:   "edge._franz._tcp.local.",
		AddrV6: net.ParseIP("fe80::1"),
		Port:   9000,
	})
	require.True(t, ok)
	assert.Equal(t, "edge", n.NodeID)
	assert.Equal(t, "[fe80::1]:9000", n.Addr)
}

func TestNodeFromEntryRejectsIncomplete(t *testing.T) {
	_, ok := nodeFromEntry(&mdns.ServiceEntry{Name: "x", Port: 1})
	assert.False(t, ok, "no address")

	_, ok = nodeFromEntry(&mdns.ServiceEntry{Name: "x", AddrV4: net.ParseIP("10.0.0.1")})
	assert.False(t, ok, "no port")

	_, ok = nodeFromEntry(nil)
	assert.False(t, ok)
}

func TestParseTXT(t *testing.T) {
	kv := parseTXT([]string{"node_id=a", "version=1=2", "junk"})
	assert.Equal(t, map[string]string{"node_id": "a", "version": "1=2"}, kv)
}

func TestAdvertiseValidates(t *testing.T) {
	_, err := Advertise(Config{Port: 8084})
	assert.Error(t, err)

	_, err = Advertise(Config{NodeID: "n1"})
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	assert.Equal(t, DefaultService, c.Service)
	assert.Equal(t, DefaultDomain, c.Domain)
	assert.Equal(t, "host.", hostFQDN("host"))
	assert.Equal(t, "localhost.", hostFQDN(""))
}
