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

package server

import (
	"fmt"
	"net"
	"strconv"

	"github.com/any2feed/any2feed/pkg/errors"
	"github.com/any2feed/any2feed/pkg/observability/tracing"
	"github.com/any2feed/any2feed/pkg/server/router"
)

const (
	// DefaultHost is the interface the server binds to
	DefaultHost = "127.0.0.1"
	// DefaultPort is used when no port is configured
	DefaultPort uint16 = 12345
	// DefaultWorkers is used when no worker count is configured
	DefaultWorkers uint8 = 4
)

// Options is the server configuration. Routes and Tracer are supplied by
// the caller at runtime; the rest is read from the config file.
type Options struct {
	// Port is the TCP port to listen on; 0 uses DefaultPort
	Port uint16 `toml:"port" yaml:"port,omitempty"`
	// Workers is the number of connection-handling workers; 0 uses DefaultWorkers
	Workers uint8 `toml:"threads" yaml:"threads,omitempty"`
	// ConnectionsLimit caps concurrently open connections; 0 is unlimited
	ConnectionsLimit int `toml:"connections_limit" yaml:"connections_limit,omitempty"`

	Routes router.Routes   `toml:"-" yaml:"-"`
	Tracer *tracing.Tracer `toml:"-" yaml:"-"`
}

// NewOptions returns Options with default values
func NewOptions() *Options {
	return &Options{
		Port:    DefaultPort,
		Workers: DefaultWorkers,
	}
}

// Clone returns a copy of the Options. The route table is shared.
func (o *Options) Clone() *Options {
	o2 := *o
	return &o2
}

// Addr returns the host:port the server listens on
func (o *Options) Addr() string {
	port := o.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(DefaultHost, strconv.Itoa(int(port)))
}

// WorkerCount returns the configured worker count, or the default
func (o *Options) WorkerCount() int {
	if o.Workers == 0 {
		return int(DefaultWorkers)
	}
	return int(o.Workers)
}

// Validate checks the Options for consistency
func (o *Options) Validate() error {
	if o.ConnectionsLimit < 0 {
		return fmt.Errorf("%w: connections_limit must not be negative", errors.ErrInvalidOptions)
	}
	return nil
}
