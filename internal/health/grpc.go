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
	"fmt"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"franz/internal/config"
	"franz/internal/logging"
)

// ServiceName is the gRPC health service name reported besides "".
const ServiceName = "franz.Broker"

// DefaultPollInterval is how often the checker result is pushed to the
// gRPC health service.
const DefaultPollInterval = 5 * time.Second

// GRPCServer serves grpc.health.v1 backed by a Checker.
type GRPCServer struct {
	config   *config.HealthConfig
	checker  *Checker
	interval time.Duration
	logger   *logging.Logger

	hs *health.Server
	gs *grpc.Server

	mu       sync.Mutex
	ln       net.Listener
	stopCh   chan struct{}
	stopOnce sync.Once
	shutOnce sync.Once
}

// NewGRPCServer creates a health server; nothing listens until Start.
func NewGRPCServer(cfg *config.HealthConfig, checker *Checker) *GRPCServer {
	hs := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	return &GRPCServer{
		config:   cfg,
		checker:  checker,
		interval: DefaultPollInterval,
		logger:   logging.NewLogger("health"),
		hs:       hs,
		gs:       gs,
		stopCh:   make(chan struct{}),
	}
}

// SetPollInterval changes how often checks are re-run. Call before Start.
func (s *GRPCServer) SetPollInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Start binds the configured address and serves in the background.
func (s *GRPCServer) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("health listen %s: %w", s.config.Addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.update()
	s.logger.Info("Health server listening", "addr", ln.Addr().String())

	go func() {
		if err := s.gs.Serve(ln); err != nil {
			s.logger.Error("Health server failed", "error", err)
		}
	}()
	go s.poll()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *GRPCServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *GRPCServer) poll() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.update()
		}
	}
}

func (s *GRPCServer) update() {
	status := healthpb.HealthCheckResponse_SERVING
	if !s.checker.IsHealthy() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.hs.SetServingStatus("", status)
	s.hs.SetServingStatus(ServiceName, status)
}

// Shutdown reports NOT_SERVING from now on. The server keeps answering
// probes until Stop.
func (s *GRPCServer) Shutdown() {
	s.shutOnce.Do(func() {
		s.hs.Shutdown()
		s.logger.Info("Health reporting NOT_SERVING")
	})
}

// Stop shuts the health service down and closes the listener.
func (s *GRPCServer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.Shutdown()
		s.gs.Stop()
	})
}
