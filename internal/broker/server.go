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
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"

	"franz/internal/banner"
	"franz/internal/config"
	"franz/internal/logging"
	"franz/internal/metrics"
	"franz/internal/protocol"
	"franz/internal/storage"
	"franz/internal/topic"
)

// consumerLineLimit bounds the lines a consumer may send back. Anything
// longer than a PING ends the session anyway.
const consumerLineLimit = 1024

// Option configures a Server.
type Option func(*Server)

// WithCoordinator makes the server run its sessions under c instead of a
// coordinator of its own.
func WithCoordinator(c *Coordinator) Option {
	return func(s *Server) { s.coord = c }
}

// WithVersion overrides the version reported to info requests.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// StorageConfig maps the broker configuration onto the storage engine.
func StorageConfig(cfg *config.Config) storage.Config {
	c := storage.DefaultConfig()
	if cfg.Storage.SegmentBytes > 0 {
		c.Segment.MaxStoreBytes = uint64(cfg.Storage.SegmentBytes)
	}
	if cfg.Storage.IndexBytes > 0 {
		c.Segment.MaxIndexBytes = uint64(cfg.Storage.IndexBytes)
	}
	c.SyncWrites = cfg.Storage.SyncWrites
	if cfg.Consumer.GroupStart == string(storage.GroupStartLatest) {
		c.GroupStart = storage.GroupStartLatest
	}
	return c
}

// Server accepts connections, reads their handshake and runs the session
// they ask for.
//
// CONNECTION FLOW:
// 1. Accept, registered with the coordinator before the handler starts
// 2. Read the handshake under handshake.timeout_ms
// 3. Info requests get one line back and the connection closes
// 4. Otherwise resolve the topic, Track the session and Run it
type Server struct {
	config   *config.Config
	registry *topic.Registry
	coord    *Coordinator
	version  string

	handshake protocol.HandshakeOptions

	logger     *logging.Logger
	connLogger *logging.ConnectionLogger
	sessLogger *logging.SessionLogger
	metrics    *metrics.Metrics

	mu      sync.Mutex
	ln      net.Listener
	fatal   chan error
	stopped bool
	stopErr error
}

// NewServer returns a server for cfg. It owns registry and closes it on Stop.
func NewServer(cfg *config.Config, registry *topic.Registry, opts ...Option) *Server {
	logger := logging.NewLogger("broker")
	s := &Server{
		config:   cfg,
		registry: registry,
		version:  banner.Version,
		handshake: protocol.HandshakeOptions{
			MaxBytes:  cfg.Handshake.MaxBytes,
			MaxGroups: cfg.Consumer.MaxGroups,
		},
		logger:     logger,
		connLogger: logging.NewConnectionLogger(logger),
		sessLogger: logging.NewSessionLogger(logger, ErrLivenessExpired, ErrShutdown),
		metrics:    metrics.Get(),
		fatal:      make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.coord == nil {
		s.coord = NewCoordinator(context.Background(), cfg.DrainTimeout())
	}
	return s
}

// Coordinator returns the coordinator sessions run under.
func (s *Server) Coordinator() *Coordinator { return s.coord }

// HandshakeOptions returns the limits applied to every handshake.
func (s *Server) HandshakeOptions() protocol.HandshakeOptions { return s.handshake }

// Addr returns the listener address, or nil before Start or Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start binds cfg.BindAddr and serves it in the background. A bind
// failure is returned.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.BindAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.BindAddr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.logger.Info("Server started", "addr", ln.Addr().String())
	go s.Serve(ln)
	return nil
}

// Serve accepts connections on ln until shutdown. It returns nil on
// shutdown and an error wrapping ErrListenerClosed if ln closes first.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.coord.OnSignal(func() { ln.Close() })

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 5 * time.Millisecond
	retry.MaxInterval = time.Second
	retry.MaxElapsedTime = 0

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.coord.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				err = fmt.Errorf("%w: %w", ErrListenerClosed, err)
				s.fail(err)
				return err
			}

			delay := retry.NextBackOff()
			s.logger.Error("Accept error", "error", err, "retry_in", delay.String())
			select {
			case <-s.coord.Done():
				return nil
			case <-time.After(delay):
			}
			continue
		}
		retry.Reset()

		if !s.coord.Go(func(ctx context.Context) { s.handleConn(ctx, conn) }) {
			conn.Close()
			return nil
		}
	}
}

func (s *Server) fail(err error) {
	select {
	case s.fatal <- err:
	default:
	}
}

// Run starts the server, blocks until ctx is cancelled or the listener
// fails, then stops it.
func (s *Server) Run(ctx context.Context) error {
	if s.Addr() == nil {
		if err := s.Start(); err != nil {
			return err
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutdown requested", "cause", context.Cause(ctx))
	case runErr = <-s.fatal:
		s.logger.Error("Listener failed", "error", runErr)
	}
	return errors.Join(runErr, s.Stop())
}

// Stop signals shutdown, which closes the listener, drains sessions up
// to the drain timeout and closes the registry. Later calls return the
// first call's result.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return s.stopErr
	}
	s.stopped = true
	s.mu.Unlock()

	s.coord.Signal(ErrShutdown)
	drainErr := s.coord.Wait()
	closeErr := s.registry.Close()
	if closeErr != nil {
		s.logger.Error("Close topics", "error", closeErr)
	}
	err := errors.Join(drainErr, closeErr)

	s.mu.Lock()
	s.stopErr = err
	s.mu.Unlock()
	s.logger.Info("Server stopped")
	return err
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	connID := uuid.NewString()
	start := time.Now()
	reason := "session_ended"

	s.metrics.ConnectionOpened()
	s.connLogger.LogNewConnection(connID, conn)
	defer func() {
		conn.Close()
		s.metrics.ConnectionClosed()
		s.connLogger.LogConnectionClosed(connID, conn, reason, time.Since(start))
	}()

	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}

	r := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(s.config.HandshakeTimeout()))
	stop := context.AfterFunc(ctx, func() { conn.SetReadDeadline(time.Now()) })
	req, err := protocol.ReadHandshake(r, s.handshake)
	stop()
	if err != nil {
		reason = "handshake_failed"
		s.metrics.HandshakeFailures.Add(1)
		s.logger.Warn("Handshake failed",
			"connection_id", connID,
			"remote_addr", conn.RemoteAddr().String(),
			"error", err,
		)
		return
	}
	conn.SetReadDeadline(time.Time{})

	maxLine := consumerLineLimit
	if req.Role == protocol.RoleProduce {
		maxLine = s.config.Producer.MaxRecordBytes
	}
	if err := s.HandleStream(ctx, req, NewTCPStream(conn, r, maxLine)); err != nil && req.Role == protocol.RoleInfo {
		reason = "info_failed"
	}
}

// HandleStream serves one handshaken stream until its session ends, then
// closes it. The caller must run it as a coordinator task.
func (s *Server) HandleStream(ctx context.Context, req *protocol.HandshakeRequest, stream Stream) error {
	defer stream.Close()

	if req.Role == protocol.RoleInfo {
		return s.answerInfo(req, stream)
	}

	tl, err := s.registry.Resolve(req.Topic)
	if err != nil {
		s.logger.Error("Topic resolution failed",
			"topic", req.Topic,
			"remote_addr", stream.RemoteAddr(),
			"error", err,
		)
		return err
	}
	s.metrics.TopicCount.Store(int64(s.registry.Len()))

	sess := s.newSession(req, tl, stream)
	release := s.coord.Track(sess)
	defer release()

	kind := sess.Kind().String()
	s.metrics.SessionStarted(kind)
	defer s.metrics.SessionEnded(kind)

	fields := []interface{}{"remote_addr", stream.RemoteAddr()}
	if g, ok := req.GroupID(); ok {
		fields = append(fields, "group", g)
	}
	s.sessLogger.LogSessionStarted(sess.ID(), kind, sess.Topic(), fields...)

	start := time.Now()
	err = sess.Run(ctx)
	sess.Close()
	if errors.Is(err, ErrLivenessExpired) {
		s.metrics.KeepaliveExpirations.Add(1)
	}
	s.sessLogger.LogSessionEnded(sess.ID(), err, sess.Records(), time.Since(start))
	return err
}

func (s *Server) newSession(req *protocol.HandshakeRequest, tl *storage.TopicLog, stream Stream) Session {
	id := uuid.NewString()
	if req.Role == protocol.RoleProduce {
		return NewProducer(id, tl, stream)
	}
	return NewConsumer(id, tl, stream, ConsumerOptions{
		Group:             req.Group,
		KeepaliveInterval: s.config.KeepaliveInterval(),
		WriteTimeout:      s.config.WriteTimeout(),
	})
}

// answerInfo writes one key=value line describing the topic. It never
// creates the topic.
func (s *Server) answerInfo(req *protocol.HandshakeRequest, stream Stream) error {
	s.metrics.InfoRequests.Add(1)

	resp := &protocol.InfoResponse{
		Version: s.version,
		NodeID:  s.config.NodeID,
		Topic:   req.Topic,
		Topics:  s.registry.Names(),
	}
	if s.registry.Exists(req.Topic) {
		tl, ok := s.registry.Lookup(req.Topic)
		if !ok {
			var err error
			if tl, err = s.registry.Resolve(req.Topic); err != nil {
				s.logger.Warn("Info could not open topic", "topic", req.Topic, "error", err)
			}
		}
		if tl != nil {
			resp.Exists = true
			resp.NextOffset = tl.NextOffset()
			resp.Groups = tl.Groups()
		}
	}

	if err := stream.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout())); err != nil {
		return err
	}
	if err := stream.WriteLine([]byte(resp.Encode())); err != nil {
		s.logger.Warn("Info write failed", "remote_addr", stream.RemoteAddr(), "error", err)
		return err
	}
	return nil
}
