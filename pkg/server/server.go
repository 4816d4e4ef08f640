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

// Package server implements the accept loop that hands each connection to
// a worker pool for parsing, routing and response writing
package server

import (
	"context"
	goerrors "errors"
	"net"
	"sync"
	"time"

	"github.com/any2feed/any2feed/pkg/errors"
	"github.com/any2feed/any2feed/pkg/observability/logging"
	"github.com/any2feed/any2feed/pkg/observability/metrics"
	"github.com/any2feed/any2feed/pkg/observability/tracing"
	"github.com/any2feed/any2feed/pkg/server/pool"
	"github.com/any2feed/any2feed/pkg/server/router"

	"golang.org/x/net/netutil"
)

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Server accepts connections and serves one request on each
type Server struct {
	opts   *Options
	router *router.Router
	logger logging.Logger
	tracer *tracing.Tracer

	mtx      sync.Mutex
	started  bool
	listener net.Listener
	pool     *pool.Pool
	done     chan struct{}
	addr     string
}

// New returns a Server for the provided options. A nil logger discards
// all events.
func New(opts *Options, logger logging.Logger) (*Server, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NoopLogger()
	}
	return &Server{
		opts:   opts,
		router: router.New(opts.Routes...),
		logger: logger,
		tracer: opts.Tracer,
		done:   make(chan struct{}),
	}, nil
}

// ListenAndServe binds the configured address and serves until ctx is
// canceled or Shutdown is called
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.opts.Addr())
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Addr returns the address the server is bound to, or "" before Serve
func (s *Server) Addr() string {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.addr
}

// Serve runs the accept loop on l. It returns after l is closed and every
// accepted connection has been served.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.mtx.Lock()
	if s.started {
		s.mtx.Unlock()
		return errors.ErrServerAlreadyStarted
	}
	p, err := pool.New(s.opts.WorkerCount())
	if err != nil {
		s.mtx.Unlock()
		return err
	}
	s.started = true
	if s.opts.ConnectionsLimit > 0 {
		l = netutil.LimitListener(l, s.opts.ConnectionsLimit)
	}
	s.listener = l
	s.pool = p
	s.addr = l.Addr().String()
	s.mtx.Unlock()

	defer close(s.done)

	s.logger.Info("server listening", logging.Pairs{
		"address":          s.addr,
		"workers":          p.Size(),
		"routes":           len(s.router.Routes()),
		"connectionsLimit": s.opts.ConnectionsLimit,
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			l.Close()
		case <-stop:
		}
	}()

	var delay time.Duration
	for {
		c, err := l.Accept()
		if err != nil {
			if goerrors.Is(err, net.ErrClosed) {
				break
			}
			metrics.ConnectionsFailed.WithLabelValues("accept").Inc()
			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay *= 2
			}
			if delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			s.logger.Error("accept failed", logging.Pairs{"error": err, "retryIn": delay})
			select {
			case <-time.After(delay):
				continue
			case <-ctx.Done():
			}
			break
		}
		delay = 0
		metrics.ConnectionsAccepted.Inc()
		if err := p.Execute(func() { s.handleConn(c) }); err != nil {
			c.Close()
			break
		}
	}

	l.Close()
	s.logger.Info("server stopping; draining workers", logging.Pairs{"queued": p.Len()})
	p.Close()
	s.logger.Info("server stopped", logging.Pairs{"address": s.addr})
	return nil
}

// Shutdown stops accepting connections and waits until every accepted
// connection has been served. It is a no-op when the server never started.
func (s *Server) Shutdown() {
	s.mtx.Lock()
	started, l := s.started, s.listener
	s.mtx.Unlock()
	if !started {
		return
	}
	l.Close()
	<-s.done
}
