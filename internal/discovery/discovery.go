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
Package discovery advertises Franz brokers on the local network over
mDNS and finds them again.

A broker registers one instance of the service type (default
_franz._tcp) named after its node id. The TXT record carries:

	node_id=<node id>
	version=<broker version>

Browse collects every instance answering within a timeout.
*/
package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"

	"franz/internal/logging"
)

const (
	DefaultService = "_franz._tcp"
	DefaultDomain  = "local."
)

// Config describes the instance to advertise.
type Config struct {
	NodeID  string
	Version string
	Service string
	Domain  string
	Port    int

	// IPs to advertise. Empty means every address of the host.
	IPs []net.IP
}

func (c Config) withDefaults() Config {
	if c.Service == "" {
		c.Service = DefaultService
	}
	if c.Domain == "" {
		c.Domain = DefaultDomain
	}
	return c
}

// Advertiser answers mDNS queries for one broker.
type Advertiser struct {
	server *mdns.Server
	logger *logging.Logger
}

// Advertise starts answering mDNS queries for cfg.
func Advertise(cfg Config) (*Advertiser, error) {
	cfg = cfg.withDefaults()
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("discovery: node id required")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("discovery: invalid port %d", cfg.Port)
	}

	host, _ := os.Hostname()
	txt := []string{"node_id=" + cfg.NodeID, "version=" + cfg.Version}
	svc, err := mdns.NewMDNSService(cfg.NodeID, cfg.Service, cfg.Domain, hostFQDN(host), cfg.Port, cfg.IPs, txt)
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}

	logger := logging.NewLogger("discovery")
	logger.Info("Advertising over mDNS", "service", cfg.Service, "node_id", cfg.NodeID, "port", cfg.Port)
	return &Advertiser{server: server, logger: logger}, nil
}

// Shutdown stops answering queries.
func (a *Advertiser) Shutdown() error {
	a.logger.Info("Stopped mDNS advertisement")
	return a.server.Shutdown()
}

// Node is a broker found by Browse.
type Node struct {
	NodeID  string `json:"node_id"`
	Version string `json:"version"`
	Host    string `json:"host"`
	Addr    string `json:"addr"`
}

// Browse returns the brokers answering for service within timeout, sorted
// by node id. Empty service and domain select the defaults.
func Browse(ctx context.Context, service, domain string, timeout time.Duration) ([]Node, error) {
	cfg := Config{Service: service, Domain: domain}.withDefaults()

	entries := make(chan *mdns.ServiceEntry, 32)
	found := make(map[string]Node)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for e := range entries {
			if n, ok := nodeFromEntry(e); ok {
				found[n.NodeID] = n
			}
		}
	}()

	params := mdns.DefaultParams(cfg.Service)
	params.Domain = strings.TrimSuffix(cfg.Domain, ".")
	params.Timeout = timeout
	params.Entries = entries
	params.DisableIPv6 = true

	errc := make(chan error, 1)
	go func() { errc <- mdns.Query(params) }()

	var err error
	select {
	case err = <-errc:
	case <-ctx.Done():
		err = ctx.Err()
	}
	// Query does not close the channel. Wait for it before closing so a
	// late answer cannot hit a closed channel.
	if ctx.Err() != nil {
		go func() {
			<-errc
			close(entries)
		}()
	} else {
		close(entries)
	}
	<-collected

	nodes := make([]Node, 0, len(found))
	for _, n := range found {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].NodeID < nodes[j].NodeID })
	return nodes, err
}

func nodeFromEntry(e *mdns.ServiceEntry) (Node, bool) {
	if e == nil || e.Port == 0 {
		return Node{}, false
	}
	txt := parseTXT(e.InfoFields)
	n := Node{
		NodeID:  txt["node_id"],
		Version: txt["version"],
		Host:    strings.TrimSuffix(e.Host, "."),
	}
	if n.NodeID == "" {
		n.NodeID = instanceName(e.Name)
	}

	ip := e.AddrV4
	if ip == nil {
		ip = e.AddrV6
	}
	if ip == nil {
		return Node{}, false
	}
	n.Addr = net.JoinHostPort(ip.String(), strconv.Itoa(e.Port))
	return n, true
}

func parseTXT(fields []string) map[string]string {
	kv := make(map[string]string, len(fields))
	for _, f := range fields {
		if k, v, ok := strings.Cut(f, "="); ok {
			kv[k] = v
		}
	}
	return kv
}

// instanceName returns the first label of a service instance name.
func instanceName(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}

func hostFQDN(host string) string {
	if host == "" {
		host = "localhost"
	}
	if !strings.HasSuffix(host, ".") {
		host += "."
	}
	return host
}
