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
Package config provides configuration management for Franz.

CONFIGURATION SOURCES (in order of precedence):
===============================================
1. Command-line flags (highest priority)
2. Environment variables (FRANZ_* prefix)
3. Configuration file (JSON format)
4. Default values (lowest priority)

EXAMPLE CONFIGURATION FILE:
===========================

	{
	  "bind_addr": "0.0.0.0:8084",
	  "data_dir": "/var/lib/franz",
	  "keepalive": {"interval_ms": 75000},
	  "consumer": {"group_start": "latest", "max_groups": 1024},
	  "observability": {
	    "metrics": {"enabled": true, "addr": ":9094"}
	  }
	}

Durations are integers in milliseconds so the file and the environment
use the same units.
*/
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Environment variable names
const (
	EnvBindAddr      = "FRANZ_BIND_ADDR"
	EnvAdvertiseAddr = "FRANZ_ADVERTISE_ADDR"
	EnvDataDir       = "FRANZ_DATA_DIR"
	EnvNodeID        = "FRANZ_NODE_ID"
	EnvLogLevel      = "FRANZ_LOG_LEVEL"
	EnvLogJSON       = "FRANZ_LOG_JSON"

	EnvHandshakeTimeout  = "FRANZ_HANDSHAKE_TIMEOUT_MS"
	EnvHandshakeMaxBytes = "FRANZ_HANDSHAKE_MAX_BYTES"
	EnvKeepaliveInterval = "FRANZ_KEEPALIVE_INTERVAL_MS"
	EnvDrainTimeout      = "FRANZ_SHUTDOWN_DRAIN_TIMEOUT_MS"

	EnvWriteTimeout   = "FRANZ_CONSUMER_WRITE_TIMEOUT_MS"
	EnvGroupStart     = "FRANZ_CONSUMER_GROUP_START"
	EnvMaxGroups      = "FRANZ_CONSUMER_MAX_GROUPS"
	EnvMaxRecordBytes = "FRANZ_PRODUCER_MAX_RECORD_BYTES"

	EnvSegmentBytes = "FRANZ_SEGMENT_BYTES"
	EnvIndexBytes   = "FRANZ_INDEX_BYTES"
	EnvSyncWrites   = "FRANZ_SYNC_WRITES"

	EnvMetricsEnabled   = "FRANZ_METRICS_ENABLED"
	EnvMetricsAddr      = "FRANZ_METRICS_ADDR"
	EnvHealthEnabled    = "FRANZ_HEALTH_ENABLED"
	EnvHealthAddr       = "FRANZ_HEALTH_ADDR"
	EnvWSEnabled        = "FRANZ_WS_ENABLED"
	EnvWSAddr           = "FRANZ_WS_ADDR"
	EnvDiscoveryEnabled = "FRANZ_DISCOVERY_ENABLED"
)

// DefaultConfigPaths are searched in order when no -config flag is given.
var DefaultConfigPaths = []string{
	"/etc/franz/franz.json",
	"$HOME/.config/franz/franz.json",
	"./franz.json",
}

// HandshakeConfig bounds the opening exchange of every connection.
type HandshakeConfig struct {
	TimeoutMs int `toml:"timeout_ms" json:"timeout_ms"` // Deadline for the whole handshake
	MaxBytes  int `toml:"max_bytes" json:"max_bytes"`   // Largest accepted handshake frame
}

// KeepaliveConfig holds the consumer liveness settings.
type KeepaliveConfig struct {
	IntervalMs int `toml:"interval_ms" json:"interval_ms"` // A consumer must PING at least this often
}

// ShutdownConfig holds graceful shutdown settings.
type ShutdownConfig struct {
	DrainTimeoutMs int `toml:"drain_timeout_ms" json:"drain_timeout_ms"` // Bound on waiting for sessions to finish
}

// ConsumerConfig holds consumer session settings.
type ConsumerConfig struct {
	WriteTimeoutMs int    `toml:"write_timeout_ms" json:"write_timeout_ms"` // Per-record write deadline
	GroupStart     string `toml:"group_start" json:"group_start"`           // earliest | latest, for new groups
	MaxGroups      int    `toml:"max_groups" json:"max_groups"`             // Reject group ids >= this (0=unbounded)
}

// ProducerConfig holds producer session settings.
type ProducerConfig struct {
	MaxRecordBytes int `toml:"max_record_bytes" json:"max_record_bytes"` // Longest accepted line
}

// StorageConfig holds topic log settings.
type StorageConfig struct {
	SegmentBytes int64 `toml:"segment_bytes" json:"segment_bytes"` // Roll a segment past this many store bytes
	IndexBytes   int64 `toml:"index_bytes" json:"index_bytes"`     // Pre-allocated index size per segment
	MaxSegments  int   `toml:"max_segments" json:"max_segments"`   // Retention hint, not enforced (0=unbounded)
	SyncWrites   bool  `toml:"sync_writes" json:"sync_writes"`     // fsync after every append
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"` // Enable Prometheus metrics
	Addr    string `toml:"addr" json:"addr"`       // Metrics HTTP server address
}

// HealthConfig holds the gRPC health service configuration.
type HealthConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Addr    string `toml:"addr" json:"addr"`
}

// ObservabilityConfig holds all observability-related configuration.
type ObservabilityConfig struct {
	Metrics MetricsConfig `toml:"metrics" json:"metrics"`
	Health  HealthConfig  `toml:"health" json:"health"`
}

// WSConfig holds the WebSocket gateway configuration.
type WSConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Addr    string `toml:"addr" json:"addr"`
}

// DiscoveryConfig holds configuration for mDNS service discovery.
type DiscoveryConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"` // Advertise the broker over mDNS
	Service string `toml:"service" json:"service"` // mDNS service type
	Domain  string `toml:"domain" json:"domain"`   // mDNS domain
}

// Config holds the configuration for Franz.
type Config struct {
	// Network
	BindAddr      string `toml:"bind_addr" json:"bind_addr"`
	AdvertiseAddr string `toml:"advertise_addr" json:"advertise_addr"` // Auto-detected if empty
	NodeID        string `toml:"node_id" json:"node_id"`

	// Storage
	DataDir string        `toml:"data_dir" json:"data_dir"`
	Storage StorageConfig `toml:"storage" json:"storage"`

	// Logging
	LogLevel string `toml:"log_level" json:"log_level"`
	LogJSON  bool   `toml:"log_json" json:"log_json"`

	// Sessions
	Handshake HandshakeConfig `toml:"handshake" json:"handshake"`
	Keepalive KeepaliveConfig `toml:"keepalive" json:"keepalive"`
	Shutdown  ShutdownConfig  `toml:"shutdown" json:"shutdown"`
	Consumer  ConsumerConfig  `toml:"consumer" json:"consumer"`
	Producer  ProducerConfig  `toml:"producer" json:"producer"`

	// Outer surfaces
	WS            WSConfig            `toml:"ws" json:"ws"`
	Discovery     DiscoveryConfig     `toml:"discovery" json:"discovery"`
	Observability ObservabilityConfig `toml:"observability" json:"observability"`

	// Metadata
	ConfigFile string `toml:"-" json:"-"`
}

// DefaultConfig returns defaults.
func DefaultConfig() *Config {
	hostname, _ := os.Hostname()
	return &Config{
		BindAddr: "127.0.0.1:8084",
		NodeID:   hostname,
		DataDir:  GetDefaultDataDir(),
		Storage: StorageConfig{
			SegmentBytes: 64 * 1024 * 1024,
			IndexBytes:   10 * 1024 * 1024,
			SyncWrites:   true,
		},
		LogLevel: "info",
		Handshake: HandshakeConfig{
			TimeoutMs: 10000,
			MaxBytes:  4096,
		},
		Keepalive: KeepaliveConfig{IntervalMs: 75000},
		Shutdown:  ShutdownConfig{DrainTimeoutMs: 60000},
		Consumer: ConsumerConfig{
			WriteTimeoutMs: 10000,
			GroupStart:     "earliest",
		},
		Producer: ProducerConfig{MaxRecordBytes: 1024 * 1024},
		WS:       WSConfig{Addr: ":9096"},
		Discovery: DiscoveryConfig{
			Service: "_franz._tcp",
			Domain:  "local.",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{Addr: ":9094"},
			Health:  HealthConfig{Addr: ":9095"},
		},
	}
}

// GetDefaultDataDir returns the default data directory.
func GetDefaultDataDir() string {
	if os.Getuid() == 0 {
		return "/var/lib/franz"
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".local", "share", "franz")
	}
	return "./data"
}

// HandshakeTimeout returns the handshake deadline.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Handshake.TimeoutMs) * time.Millisecond
}

// KeepaliveInterval returns how long a consumer may stay silent.
func (c *Config) KeepaliveInterval() time.Duration {
	return time.Duration(c.Keepalive.IntervalMs) * time.Millisecond
}

// DrainTimeout returns the bound on the shutdown drain.
func (c *Config) DrainTimeout() time.Duration {
	return time.Duration(c.Shutdown.DrainTimeoutMs) * time.Millisecond
}

// WriteTimeout returns the per-record consumer write deadline.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Consumer.WriteTimeoutMs) * time.Millisecond
}

// Manager handles configuration loading.
type Manager struct {
	config *Config
	mu     sync.RWMutex
}

var globalManager = &Manager{
	config: DefaultConfig(),
}

// Global returns the global manager.
func Global() *Manager {
	return globalManager
}

// NewManager returns a manager holding the defaults.
func NewManager() *Manager {
	return &Manager{config: DefaultConfig()}
}

// Get returns a copy of current config.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.config
	return &cfg
}

// Set updates the config.
func (m *Manager) Set(cfg *Config) {
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
}

// LoadFromFile loads configuration from a JSON file. Keys missing from the
// file keep their defaults.
func (m *Manager) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.ConfigFile = path
	m.Set(cfg)
	return nil
}

// FindConfigFile returns the first of DefaultConfigPaths that exists.
func FindConfigFile() (string, bool) {
	for _, p := range DefaultConfigPaths {
		p = os.ExpandEnv(p)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, true
		}
	}
	return "", false
}

// LoadFromEnv loads configuration from environment variables. Values that
// do not parse are ignored.
func (m *Manager) LoadFromEnv() {
	cfg := m.Get()

	setString(&cfg.BindAddr, EnvBindAddr)
	setString(&cfg.AdvertiseAddr, EnvAdvertiseAddr)
	setString(&cfg.DataDir, EnvDataDir)
	setString(&cfg.NodeID, EnvNodeID)
	setString(&cfg.LogLevel, EnvLogLevel)
	setBool(&cfg.LogJSON, EnvLogJSON)

	setInt(&cfg.Handshake.TimeoutMs, EnvHandshakeTimeout)
	setInt(&cfg.Handshake.MaxBytes, EnvHandshakeMaxBytes)
	setInt(&cfg.Keepalive.IntervalMs, EnvKeepaliveInterval)
	setInt(&cfg.Shutdown.DrainTimeoutMs, EnvDrainTimeout)

	setInt(&cfg.Consumer.WriteTimeoutMs, EnvWriteTimeout)
	setString(&cfg.Consumer.GroupStart, EnvGroupStart)
	setInt(&cfg.Consumer.MaxGroups, EnvMaxGroups)
	setInt(&cfg.Producer.MaxRecordBytes, EnvMaxRecordBytes)

	if v := os.Getenv(EnvSegmentBytes); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Storage.SegmentBytes = i
		}
	}
	if v := os.Getenv(EnvIndexBytes); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Storage.IndexBytes = i
		}
	}
	setBool(&cfg.Storage.SyncWrites, EnvSyncWrites)

	setBool(&cfg.Observability.Metrics.Enabled, EnvMetricsEnabled)
	setString(&cfg.Observability.Metrics.Addr, EnvMetricsAddr)
	setBool(&cfg.Observability.Health.Enabled, EnvHealthEnabled)
	setString(&cfg.Observability.Health.Addr, EnvHealthAddr)
	setBool(&cfg.WS.Enabled, EnvWSEnabled)
	setString(&cfg.WS.Addr, EnvWSAddr)
	setBool(&cfg.Discovery.Enabled, EnvDiscoveryEnabled)

	m.Set(cfg)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.ToLower(v) == "true" || v == "1"
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.BindAddr == "" {
		errs = append(errs, errors.New("bind_addr is required"))
	} else if _, _, err := net.SplitHostPort(c.BindAddr); err != nil {
		errs = append(errs, fmt.Errorf("bind_addr: %w", err))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}

	if c.Handshake.TimeoutMs <= 0 {
		errs = append(errs, errors.New("handshake.timeout_ms must be positive"))
	}
	if c.Handshake.MaxBytes < 16 || c.Handshake.MaxBytes > 1<<20 {
		errs = append(errs, fmt.Errorf("handshake.max_bytes must be between 16 and %d", 1<<20))
	}
	if c.Keepalive.IntervalMs <= 0 {
		errs = append(errs, errors.New("keepalive.interval_ms must be positive"))
	}
	if c.Shutdown.DrainTimeoutMs <= 0 {
		errs = append(errs, errors.New("shutdown.drain_timeout_ms must be positive"))
	}
	if c.Consumer.WriteTimeoutMs <= 0 {
		errs = append(errs, errors.New("consumer.write_timeout_ms must be positive"))
	}
	switch c.Consumer.GroupStart {
	case "earliest", "latest":
	default:
		errs = append(errs, fmt.Errorf("consumer.group_start must be earliest or latest, got %q", c.Consumer.GroupStart))
	}
	if c.Consumer.MaxGroups < 0 || c.Consumer.MaxGroups > 1<<16 {
		errs = append(errs, fmt.Errorf("consumer.max_groups must be between 0 and %d", 1<<16))
	}
	if c.Producer.MaxRecordBytes <= 0 {
		errs = append(errs, errors.New("producer.max_record_bytes must be positive"))
	}

	if c.Storage.SegmentBytes <= 0 {
		errs = append(errs, errors.New("storage.segment_bytes must be positive"))
	}
	if c.Storage.IndexBytes < 12 {
		errs = append(errs, errors.New("storage.index_bytes must hold at least one entry"))
	}
	if c.Storage.MaxSegments < 0 {
		errs = append(errs, errors.New("storage.max_segments cannot be negative"))
	}

	for _, s := range []struct {
		name    string
		enabled bool
		addr    string
	}{
		{"observability.metrics", c.Observability.Metrics.Enabled, c.Observability.Metrics.Addr},
		{"observability.health", c.Observability.Health.Enabled, c.Observability.Health.Addr},
		{"ws", c.WS.Enabled, c.WS.Addr},
	} {
		if s.enabled && s.addr == "" {
			errs = append(errs, fmt.Errorf("%s.addr is required when enabled", s.name))
		}
	}
	if c.Discovery.Enabled && c.Discovery.Service == "" {
		errs = append(errs, errors.New("discovery.service is required when enabled"))
	}

	return errors.Join(errs...)
}

// GetAdvertiseAddr returns the address announced to clients.
// If not explicitly set, it returns the bind address, with a wildcard host
// replaced by the local IP.
func (c *Config) GetAdvertiseAddr() string {
	if c.AdvertiseAddr != "" {
		return c.AdvertiseAddr
	}
	return resolveAdvertiseAddr(c.BindAddr)
}

func resolveAdvertiseAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		if localIP := detectLocalIP(); localIP != "" {
			return net.JoinHostPort(localIP, port)
		}
	}
	return addr
}

// detectLocalIP returns the first non-loopback IPv4 address of an up
// interface.
func detectLocalIP() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip != nil && ip.To4() != nil && !ip.IsLoopback() {
				return ip.String()
			}
		}
	}
	return ""
}
