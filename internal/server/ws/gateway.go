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

// Package ws provides a WebSocket gateway for browser clients.
//
// The handshake fields travel as query parameters:
//
//	GET /ws?version=1&topic=orders&api=consume&group=3
//
// After the upgrade the connection behaves like a TCP session. Producers
// send one record per text frame (a frame holding several lines yields
// several records). Consumers receive one record per text frame and must
// send a "PING" text frame within the keepalive interval. An info request
// receives one text frame and the connection closes.
package ws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"franz/internal/broker"
	"franz/internal/config"
	"franz/internal/logging"
	"franz/internal/metrics"
	"franz/internal/protocol"
)

// Default configuration values for WebSocket gateway
const (
	// DefaultReadBufferSize is the default size of the read buffer
	DefaultReadBufferSize = 4096
	// DefaultWriteBufferSize is the default size of the write buffer
	DefaultWriteBufferSize = 4096
	// DefaultCloseTimeout bounds the close frame written on shutdown
	DefaultCloseTimeout = time.Second

	consumerFrameLimit = 1024
)

// Broker is what the gateway needs from the session engine.
type Broker interface {
	Coordinator() *broker.Coordinator
	HandshakeOptions() protocol.HandshakeOptions
	HandleStream(ctx context.Context, req *protocol.HandshakeRequest, stream broker.Stream) error
}

// Gateway upgrades HTTP requests into Franz sessions.
type Gateway struct {
	broker   Broker
	config   *config.Config
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	server *http.Server
	ln     net.Listener
}

// NewGateway creates a new WebSocket gateway.
func NewGateway(cfg *config.Config, b Broker, logger *logging.Logger) *Gateway {
	if logger == nil {
		logger = logging.NewLogger("ws")
	}
	return &Gateway{
		broker: b,
		config: cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  DefaultReadBufferSize,
			WriteBufferSize: DefaultWriteBufferSize,
			// Browser clients connect from arbitrary origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleWebSocket)
	return mux
}

// Start binds cfg.WS.Addr and serves in the background. The gateway
// stops accepting upgrades once the coordinator signals shutdown.
func (g *Gateway) Start() error {
	ln, err := net.Listen("tcp", g.config.WS.Addr)
	if err != nil {
		return fmt.Errorf("websocket listen %s: %w", g.config.WS.Addr, err)
	}

	srv := &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: g.config.HandshakeTimeout(),
	}
	g.mu.Lock()
	g.server = srv
	g.ln = ln
	g.mu.Unlock()

	g.broker.Coordinator().OnSignal(func() { g.Stop() })

	g.logger.Info("WebSocket gateway listening", "addr", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != http.ErrServerClosed {
			g.logger.Error("WebSocket server failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (g *Gateway) Addr() net.Addr {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ln == nil {
		return nil
	}
	return g.ln.Addr()
}

// Stop stops the HTTP server. Upgraded sessions belong to the
// coordinator and are drained there.
func (g *Gateway) Stop() error {
	g.mu.Lock()
	srv := g.server
	g.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r, g.broker.HandshakeOptions())
	if err != nil {
		metrics.Get().HandshakeFailures.Add(1)
		g.logger.Warn("Handshake failed", "remote_addr", r.RemoteAddr, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	coord := g.broker.Coordinator()
	select {
	case <-coord.Done():
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("Failed to upgrade to WebSocket", "error", err)
		return
	}

	maxLine := consumerFrameLimit
	if req.Role == protocol.RoleProduce {
		maxLine = g.config.Producer.MaxRecordBytes
	}
	stream := newStream(conn, maxLine)

	ok := coord.Go(func(ctx context.Context) {
		m := metrics.Get()
		m.ConnectionOpened()
		defer m.ConnectionClosed()
		g.broker.HandleStream(ctx, req, stream)
	})
	if !ok {
		stream.Close()
	}
}

// parseRequest reads the handshake fields from the query string. A key
// given twice keeps its last value.
func parseRequest(r *http.Request, opts protocol.HandshakeOptions) (*protocol.HandshakeRequest, error) {
	fields := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			fields[key] = values[len(values)-1]
		}
	}
	req, err := protocol.FromFields(fields)
	if err != nil {
		return nil, err
	}
	if err := opts.Check(req); err != nil {
		return nil, err
	}
	return req, nil
}

// stream adapts a websocket.Conn to broker.Stream.
type stream struct {
	conn    *websocket.Conn
	maxLine int
	pending [][]byte

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newStream(conn *websocket.Conn, maxLine int) *stream {
	if maxLine > 0 {
		// Room for a trailing "\r\n".
		conn.SetReadLimit(int64(maxLine) + 2)
	}
	return &stream{conn: conn, maxLine: maxLine}
}

func (s *stream) ReadLine() ([]byte, error) {
	for len(s.pending) == 0 {
		mt, p, err := s.conn.ReadMessage()
		if err != nil {
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				return nil, io.EOF
			case errors.Is(err, websocket.ErrReadLimit):
				return nil, fmt.Errorf("%w: %w", broker.ErrLineTooLong, err)
			}
			return nil, err
		}
		if mt != websocket.TextMessage {
			return nil, fmt.Errorf("unexpected websocket message type %d", mt)
		}
		s.pending = splitLines(p)
	}

	line := s.pending[0]
	s.pending = s.pending[1:]
	if s.maxLine > 0 && len(line) > s.maxLine {
		return nil, fmt.Errorf("%w: %d bytes, max %d", broker.ErrLineTooLong, len(line), s.maxLine)
	}
	return line, nil
}

// splitLines splits a frame on "\n", dropping "\r" before each break. A
// trailing terminator does not start another line.
func splitLines(p []byte) [][]byte {
	var lines [][]byte
	for {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			if len(p) > 0 || len(lines) == 0 {
				lines = append(lines, p)
			}
			return lines
		}
		line := p[:i]
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		lines = append(lines, line)
		p = p[i+1:]
	}
}

func (s *stream) WriteLine(p []byte) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, p)
}

func (s *stream) SetReadDeadline(t time.Time) error { return s.conn.SetReadDeadline(t) }

func (s *stream) SetWriteDeadline(t time.Time) error { return s.conn.SetWriteDeadline(t) }

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(DefaultCloseTimeout))
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *stream) RemoteAddr() string {
	if a := s.conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return "unknown"
}
