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
Package metrics provides Prometheus-compatible metrics for Franz.

METRIC CATEGORIES:
==================
- Records: produced, consumed (total and per topic)
- Latency: average append latency
- Connections: active, total, handshake failures
- Sessions: active producers and consumers, keepalive expirations, pings
- Shutdown: drain timeouts
- Topics: count

PROMETHEUS ENDPOINT:
====================
Metrics are exposed at /metrics in Prometheus text format.

	franz_records_produced_total 12345
	franz_sessions_active{kind="consumer"} 4
	franz_topic_records_produced_total{topic="orders"} 12000
*/
package metrics

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"franz/internal/config"
	"franz/internal/logging"
)

// Metrics holds all Franz metrics.
type Metrics struct {
	// Record metrics
	RecordsProduced atomic.Uint64
	RecordsConsumed atomic.Uint64
	BytesProduced   atomic.Uint64
	BytesConsumed   atomic.Uint64

	// Append latency (in microseconds)
	ProduceLatencySum   atomic.Uint64
	ProduceLatencyCount atomic.Uint64

	// Connection metrics
	ActiveConnections atomic.Int64
	TotalConnections  atomic.Uint64
	HandshakeFailures atomic.Uint64
	InfoRequests      atomic.Uint64

	// Session metrics
	ActiveProducers      atomic.Int64
	ActiveConsumers      atomic.Int64
	KeepaliveExpirations atomic.Uint64
	PingsReceived        atomic.Uint64

	// Shutdown metrics
	DrainTimeouts atomic.Uint64

	// Topic metrics
	TopicCount atomic.Int64

	topicMetrics sync.Map // topic -> *TopicMetrics
}

// TopicMetrics holds metrics for a specific topic.
type TopicMetrics struct {
	RecordsProduced atomic.Uint64
	RecordsConsumed atomic.Uint64
}

var globalMetrics = &Metrics{}

// Get returns the global metrics instance.
func Get() *Metrics {
	return globalMetrics
}

// GetTopicMetrics returns metrics for a specific topic.
func (m *Metrics) GetTopicMetrics(topic string) *TopicMetrics {
	if tm, ok := m.topicMetrics.Load(topic); ok {
		return tm.(*TopicMetrics)
	}
	actual, _ := m.topicMetrics.LoadOrStore(topic, &TopicMetrics{})
	return actual.(*TopicMetrics)
}

// RecordProduce records one appended record.
func (m *Metrics) RecordProduce(topic string, bytes int, latency time.Duration) {
	m.RecordsProduced.Add(1)
	m.BytesProduced.Add(uint64(bytes))
	m.ProduceLatencySum.Add(uint64(latency.Microseconds()))
	m.ProduceLatencyCount.Add(1)
	m.GetTopicMetrics(topic).RecordsProduced.Add(1)
}

// RecordConsume records one delivered record.
func (m *Metrics) RecordConsume(topic string, bytes int) {
	m.RecordsConsumed.Add(1)
	m.BytesConsumed.Add(uint64(bytes))
	m.GetTopicMetrics(topic).RecordsConsumed.Add(1)
}

// ConnectionOpened records a new connection.
func (m *Metrics) ConnectionOpened() {
	m.ActiveConnections.Add(1)
	m.TotalConnections.Add(1)
}

// ConnectionClosed records a closed connection.
func (m *Metrics) ConnectionClosed() {
	m.ActiveConnections.Add(-1)
}

// SessionStarted records a running session. kind is "producer" or "consumer".
func (m *Metrics) SessionStarted(kind string) {
	if g := m.sessionGauge(kind); g != nil {
		g.Add(1)
	}
}

// SessionEnded undoes SessionStarted.
func (m *Metrics) SessionEnded(kind string) {
	if g := m.sessionGauge(kind); g != nil {
		g.Add(-1)
	}
}

func (m *Metrics) sessionGauge(kind string) *atomic.Int64 {
	switch kind {
	case "producer":
		return &m.ActiveProducers
	case "consumer":
		return &m.ActiveConsumers
	}
	return nil
}

// AverageProduceLatency returns the average append latency in microseconds.
func (m *Metrics) AverageProduceLatency() float64 {
	count := m.ProduceLatencyCount.Load()
	if count == 0 {
		return 0
	}
	return float64(m.ProduceLatencySum.Load()) / float64(count)
}

// WritePrometheus writes every metric in Prometheus text format.
func (m *Metrics) WritePrometheus(w io.Writer) {
	counter := func(name, help string, v uint64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, v)
	}
	gauge := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n", name, help, name, name, v)
	}

	counter("franz_records_produced_total", "Total records appended", m.RecordsProduced.Load())
	counter("franz_records_consumed_total", "Total records delivered", m.RecordsConsumed.Load())
	counter("franz_bytes_produced_total", "Total record bytes appended", m.BytesProduced.Load())
	counter("franz_bytes_consumed_total", "Total record bytes delivered", m.BytesConsumed.Load())

	fmt.Fprintf(w, "# HELP franz_produce_latency_avg_microseconds Average append latency\n")
	fmt.Fprintf(w, "# TYPE franz_produce_latency_avg_microseconds gauge\n")
	fmt.Fprintf(w, "franz_produce_latency_avg_microseconds %.2f\n", m.AverageProduceLatency())

	gauge("franz_connections_active", "Current open connections", m.ActiveConnections.Load())
	counter("franz_connections_total", "Total accepted connections", m.TotalConnections.Load())
	counter("franz_handshake_failures_total", "Connections dropped during the handshake", m.HandshakeFailures.Load())
	counter("franz_info_requests_total", "Info requests answered", m.InfoRequests.Load())

	fmt.Fprintf(w, "# HELP franz_sessions_active Running sessions by kind\n")
	fmt.Fprintf(w, "# TYPE franz_sessions_active gauge\n")
	fmt.Fprintf(w, "franz_sessions_active{kind=\"producer\"} %d\n", m.ActiveProducers.Load())
	fmt.Fprintf(w, "franz_sessions_active{kind=\"consumer\"} %d\n", m.ActiveConsumers.Load())

	counter("franz_keepalive_expirations_total", "Consumers disconnected for missing PING", m.KeepaliveExpirations.Load())
	counter("franz_pings_total", "PING lines received", m.PingsReceived.Load())
	counter("franz_drain_timeouts_total", "Shutdowns that abandoned sessions", m.DrainTimeouts.Load())
	gauge("franz_topics_count", "Loaded topics", m.TopicCount.Load())

	var topics []string
	m.topicMetrics.Range(func(key, _ interface{}) bool {
		topics = append(topics, key.(string))
		return true
	})
	sort.Strings(topics)

	fmt.Fprintf(w, "# HELP franz_topic_records_produced_total Records appended per topic\n")
	fmt.Fprintf(w, "# TYPE franz_topic_records_produced_total counter\n")
	for _, topic := range topics {
		fmt.Fprintf(w, "franz_topic_records_produced_total{topic=%q} %d\n", topic, m.GetTopicMetrics(topic).RecordsProduced.Load())
	}
	fmt.Fprintf(w, "# HELP franz_topic_records_consumed_total Records delivered per topic\n")
	fmt.Fprintf(w, "# TYPE franz_topic_records_consumed_total counter\n")
	for _, topic := range topics {
		fmt.Fprintf(w, "franz_topic_records_consumed_total{topic=%q} %d\n", topic, m.GetTopicMetrics(topic).RecordsConsumed.Load())
	}
}

// Server provides an HTTP server for Prometheus metrics.
type Server struct {
	config  *config.MetricsConfig
	metrics *Metrics
	server  *http.Server
	ln      net.Listener
	logger  *logging.Logger
}

// NewServer creates a metrics server for the global metrics.
func NewServer(cfg *config.MetricsConfig) *Server {
	return &Server{
		config:  cfg,
		metrics: Get(),
		logger:  logging.NewLogger("metrics"),
	}
}

// Handler returns the /metrics handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		s.metrics.WritePrometheus(w)
	})
	return mux
}

// Start binds the metrics address and serves in the background.
func (s *Server) Start() error {
	if !s.config.Enabled {
		s.logger.Info("Metrics server disabled")
		return nil
	}

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", s.config.Addr, err)
	}
	s.ln = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("Starting metrics server", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Metrics server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop stops the metrics HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("Stopping metrics server")
	return s.server.Shutdown(ctx)
}
