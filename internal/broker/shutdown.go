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
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"franz/internal/logging"
	"franz/internal/metrics"
)

// DefaultDrainTimeout bounds how long Wait lets sessions finish.
const DefaultDrainTimeout = 60 * time.Second

// Coordinator tracks every running task and session and shuts them down
// together.
//
// Its context is cancelled once, with a cause wrapping ErrShutdown, and
// never reset. Tasks must be registered with Go before they start so that
// Wait cannot miss them.
type Coordinator struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	drain  time.Duration
	logger *logging.Logger

	mu        sync.Mutex
	signalled bool
	done      chan struct{}
	hooks     []func()
	sessions  map[string]Session

	wg sync.WaitGroup
}

// NewCoordinator returns a coordinator whose context derives from parent.
// A non-positive drain waits forever.
func NewCoordinator(parent context.Context, drain time.Duration) *Coordinator {
	ctx, cancel := context.WithCancelCause(parent)
	return &Coordinator{
		ctx:      ctx,
		cancel:   cancel,
		drain:    drain,
		logger:   logging.NewLogger("shutdown"),
		done:     make(chan struct{}),
		sessions: make(map[string]Session),
	}
}

// Context returns the context every task runs under.
func (c *Coordinator) Context() context.Context { return c.ctx }

// Done is closed once Signal has been called.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Go runs fn in a new goroutine as a tracked task. It returns false, and
// does not run fn, once shutdown has been signalled.
func (c *Coordinator) Go(fn func(ctx context.Context)) bool {
	c.mu.Lock()
	if c.signalled {
		c.mu.Unlock()
		return false
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
	return true
}

// Track records s as live. The returned release must be called once s
// has fully terminated.
func (c *Coordinator) Track(s Session) (release func()) {
	c.mu.Lock()
	c.sessions[s.ID()] = s
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.sessions, s.ID())
			c.mu.Unlock()
		})
	}
}

// Sessions returns the IDs of every tracked session, sorted.
func (c *Coordinator) Sessions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OnSignal registers hook to run once shutdown is signalled. A hook
// registered afterwards runs immediately.
func (c *Coordinator) OnSignal(hook func()) {
	c.mu.Lock()
	if !c.signalled {
		c.hooks = append(c.hooks, hook)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	hook()
}

// Signal starts shutdown. Only the first call has any effect and returns
// true. A nil cause means ErrShutdown.
func (c *Coordinator) Signal(cause error) bool {
	c.mu.Lock()
	if c.signalled {
		c.mu.Unlock()
		return false
	}
	c.signalled = true
	hooks := c.hooks
	c.hooks = nil
	close(c.done)
	c.mu.Unlock()

	switch {
	case cause == nil:
		cause = ErrShutdown
	case !errors.Is(cause, ErrShutdown):
		cause = fmt.Errorf("%w: %w", ErrShutdown, cause)
	}
	c.logger.Info("Shutdown signalled", "cause", cause, "sessions", len(c.Sessions()))
	c.cancel(cause)

	for _, hook := range hooks {
		hook()
	}
	return true
}

// Wait blocks until Signal has been called and every task has returned,
// or until the drain timeout expires. On timeout the remaining sessions
// are closed and abandoned and ErrDrainTimeout is returned.
func (c *Coordinator) Wait() error {
	<-c.done

	drained := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(drained)
	}()

	if c.drain <= 0 {
		<-drained
		return nil
	}

	timer := time.NewTimer(c.drain)
	defer timer.Stop()
	select {
	case <-drained:
		c.logger.Info("Shutdown drained")
		return nil
	case <-timer.C:
	}

	c.mu.Lock()
	abandoned := make([]Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		abandoned = append(abandoned, s)
	}
	c.mu.Unlock()

	ids := make([]string, len(abandoned))
	for i, s := range abandoned {
		ids[i] = s.ID()
		if err := s.Close(); err != nil {
			c.logger.Debug("Close abandoned session", "session_id", s.ID(), "error", err)
		}
	}
	sort.Strings(ids)

	metrics.Get().DrainTimeouts.Add(1)
	c.logger.Warn("Shutdown drain timeout", "timeout", c.drain.String(), "abandoned", ids)
	return fmt.Errorf("%w: %d sessions still running after %s", ErrDrainTimeout, len(ids), c.drain)
}

// Shutdown signals and waits.
func (c *Coordinator) Shutdown() error {
	c.Signal(nil)
	return c.Wait()
}
