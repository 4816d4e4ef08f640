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
	"bufio"
	goerrors "errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/any2feed/any2feed/pkg/errors"
	"github.com/any2feed/any2feed/pkg/observability/logging"
	"github.com/any2feed/any2feed/pkg/observability/metrics"
	"github.com/any2feed/any2feed/pkg/observability/tracing/span"
	"github.com/any2feed/any2feed/pkg/server/request"
	"github.com/any2feed/any2feed/pkg/server/response"
)

const (
	// maxLineBytes bounds each line of a request head
	maxLineBytes = 8 << 10
	// maxHeadLines bounds the request line plus header lines
	maxHeadLines = 100
)

// readHead reads lines up to the first blank line. Lines may end in CRLF
// or LF. A peer that closes early yields whatever lines were complete. A
// line that does not fit in r's buffer, or a head with more than
// maxHeadLines lines, is ErrRequestTooLarge.
func readHead(r *bufio.Reader) ([]string, error) {
	var lines []string
	for {
		b, err := r.ReadSlice('\n')
		if goerrors.Is(err, bufio.ErrBufferFull) {
			return lines, fmt.Errorf("%w: line longer than %d bytes", errors.ErrRequestTooLarge, r.Size())
		}
		line := strings.TrimRight(string(b), "\r\n")
		if err != nil {
			if line != "" {
				lines = append(lines, line)
			}
			if goerrors.Is(err, io.EOF) {
				return lines, nil
			}
			return lines, err
		}
		if line == "" {
			return lines, nil
		}
		if len(lines) == maxHeadLines {
			return lines, fmt.Errorf("%w: more than %d lines", errors.ErrRequestTooLarge, maxHeadLines)
		}
		lines = append(lines, line)
	}
}

func (s *Server) handleConn(c net.Conn) {
	defer c.Close()
	start := time.Now()

	var resp *response.Response
	lines, err := readHead(bufio.NewReaderSize(c, maxLineBytes))
	switch {
	case goerrors.Is(err, errors.ErrRequestTooLarge):
		s.logger.Warn("request head too large", logging.Pairs{"remoteAddr": c.RemoteAddr(), "error": err})
		resp = response.New(500)
		s.write(c, resp)
		s.logRequest(nil, "", resp, start)
		return
	case err != nil:
		s.logger.Debug("read failed", logging.Pairs{"remoteAddr": c.RemoteAddr(), "error": err})
	}
	if len(lines) == 0 {
		return
	}

	req, err := request.Parse(lines, s.addr)
	if err != nil {
		s.logger.Warn("invalid request", logging.Pairs{"requestLine": lines[0], "error": err})
		resp = response.New(500)
		s.write(c, resp)
		s.logRequest(nil, lines[0], resp, start)
		return
	}

	req, sp := span.PrepareRequest(req, s.tracer)
	resp, err = s.dispatch(req)
	resp = s.toResponse(req, resp, err)
	s.write(c, resp)
	span.Finish(sp, int(resp.Status), err)
	s.logRequest(req, "", resp, start)
}

// dispatch resolves the route for req and runs it. A panicking handler is
// converted into an error so the worker can still answer the client.
func (s *Server) dispatch(req *request.Request) (resp *response.Response, err error) {
	route, params, ok := s.router.Resolve(req.Path)
	if !ok {
		return nil, errors.ErrNotFound
	}
	req.PathParams = params
	defer func() {
		if r := recover(); r != nil {
			metrics.PoolJobPanics.Inc()
			s.logger.Error("handler panicked", logging.Pairs{
				"path":    req.Path,
				"pattern": route.Pattern,
				"panic":   r,
				"stack":   string(debug.Stack()),
			})
			resp, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()
	return route.Run(req)
}

func (s *Server) toResponse(req *request.Request, resp *response.Response, err error) *response.Response {
	switch {
	case err == nil && resp != nil:
		return resp
	case err == nil:
		s.logger.Error("handler returned no response", logging.Pairs{"path": req.Path})
		return response.New(500)
	case goerrors.Is(err, errors.ErrNotFound):
		return response.New(404)
	}
	s.logger.Error("handler failed", logging.Pairs{"path": req.Path, "error": err})
	return response.New(500)
}

// write sends the header block and the body as two writes. The body is
// skipped when the header block could not be written.
func (s *Server) write(c net.Conn, resp *response.Response) {
	n, err := c.Write(resp.HeaderBlock())
	metrics.ResponseWrittenBytes.Add(float64(n))
	if err != nil {
		s.writeFailed(c, "head", err)
		return
	}
	if len(resp.Content) == 0 {
		return
	}
	n, err = c.Write(resp.Content)
	metrics.ResponseWrittenBytes.Add(float64(n))
	if err != nil {
		s.writeFailed(c, "body", err)
	}
}

func (s *Server) writeFailed(c net.Conn, stage string, err error) {
	if isPeerGone(err) {
		s.logger.Debug("client went away", logging.Pairs{
			"remoteAddr": c.RemoteAddr(), "stage": stage, "error": err,
		})
		return
	}
	metrics.ConnectionsFailed.WithLabelValues("write").Inc()
	s.logger.Error("response write failed", logging.Pairs{
		"remoteAddr": c.RemoteAddr(), "stage": stage, "error": err,
	})
}

func isPeerGone(err error) bool {
	return goerrors.Is(err, syscall.EPIPE) || goerrors.Is(err, syscall.ECONNRESET)
}

func (s *Server) logRequest(req *request.Request, requestLine string, resp *response.Response, start time.Time) {
	elapsed := time.Since(start)
	method, path := "", requestLine
	if req != nil {
		method, path = string(req.Method), req.FullPath
	}
	metrics.ObserveRequest(method, resp.Status, elapsed.Seconds())
	s.logger.Info("request", logging.Pairs{
		"status":   resp.Status,
		"method":   method,
		"path":     path,
		"duration": elapsed,
	})
}
