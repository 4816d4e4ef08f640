/*
 * Copyright 2023 The any2feed Authors
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

// Package errors holds the sentinel errors shared across any2feed packages
package errors

import "errors"

// ErrInvalidMethod is returned when a request line carries an unsupported method
var ErrInvalidMethod = errors.New("invalid method")

// ErrInvalidRequest is returned when a request head cannot be parsed
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound signals that no route (or no upstream object) matched the request.
// The server maps it to a 404 response.
var ErrNotFound = errors.New("not found")

// ErrInvalidPattern is returned when a route pattern does not compile
var ErrInvalidPattern = errors.New("invalid route pattern")

// ErrInvalidPoolSize is returned when a worker pool is built with no workers
var ErrInvalidPoolSize = errors.New("worker pool size must be greater than zero")

// ErrPoolClosed is returned when a job is submitted to a closed worker pool
var ErrPoolClosed = errors.New("worker pool is closed")

// ErrServerAlreadyStarted is returned when a server is started twice
var ErrServerAlreadyStarted = errors.New("server already started")

// ErrUpstreamStatus is returned when an upstream service answers with a non-2xx status
var ErrUpstreamStatus = errors.New("unexpected upstream status")

// ErrInvalidOptions is an error for when a configuration is invalid
var ErrInvalidOptions = errors.New("invalid options")

// ErrBodyTooLarge is returned when an upstream body exceeds the configured limit
var ErrBodyTooLarge = errors.New("upstream body too large")

// ErrRequestTooLarge is returned when a request head exceeds the line or
// header limits
var ErrRequestTooLarge = errors.New("request head too large")

// ErrUnauthenticated is returned when an upstream session is not signed in
var ErrUnauthenticated = errors.New("upstream session is not authenticated")
