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

import "errors"

var (
	// ErrSessionIO ends a session whose stream or log failed.
	ErrSessionIO = errors.New("session i/o error")

	// ErrLivenessExpired ends a consumer that stopped sending PING.
	ErrLivenessExpired = errors.New("liveness expired")

	// ErrShutdown is the cancellation cause of every session once the
	// broker starts shutting down.
	ErrShutdown = errors.New("broker shutting down")

	// ErrDrainTimeout is returned when sessions outlive the drain timeout.
	ErrDrainTimeout = errors.New("shutdown drain timeout")

	// ErrListenerClosed reports a listener that closed without a shutdown.
	ErrListenerClosed = errors.New("listener closed unexpectedly")

	// ErrLineTooLong is returned by a Stream for a line over its limit.
	ErrLineTooLong = errors.New("line too long")
)
