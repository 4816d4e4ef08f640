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
	"io"
	"net"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/any2feed/any2feed/pkg/errors"
	"github.com/any2feed/any2feed/pkg/observability/logging"
	"github.com/any2feed/any2feed/pkg/observability/logging/level"
	"github.com/any2feed/any2feed/pkg/observability/metrics"
	"github.com/any2feed/any2feed/pkg/server/response"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// scriptedConn fails the Write calls listed in errs, by call number
type scriptedConn struct {
	net.Conn
	errs   map[int]error
	writes []string
}

func (c *scriptedConn) Write(b []byte) (int, error) {
	c.writes = append(c.writes, string(b))
	if err, ok := c.errs[len(c.writes)]; ok {
		return 0, err
	}
	return len(b), nil
}

func (c *scriptedConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
}

func writeErr(err error) error {
	return &net.OpError{Op: "write", Net: "tcp", Err: os.NewSyscallError("write", err)}
}

func TestWrite(t *testing.T) {
	failed := func() float64 {
		return testutil.ToFloat64(metrics.ConnectionsFailed.WithLabelValues("write"))
	}
	tests := []struct {
		name       string
		errs       map[int]error
		writes     int
		counted    float64
		logMessage string
	}{
		{"ok", nil, 2, 0, ""},
		{"head fails", map[int]error{1: io.ErrShortWrite}, 1, 1, `event="response write failed"`},
		{"head peer gone", map[int]error{1: writeErr(syscall.ECONNRESET)}, 1, 0, `event="client went away"`},
		{"body peer gone", map[int]error{2: writeErr(syscall.EPIPE)}, 2, 0, `event="client went away"`},
		{"body fails", map[int]error{2: writeErr(syscall.EIO)}, 2, 1, `event="response write failed"`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			buf := &syncBuffer{}
			s, err := New(nil, logging.StreamLogger(buf, level.Debug))
			require.NoError(t, err)
			c := &scriptedConn{errs: test.errs}
			before := failed()

			s.write(c, response.WithContent("body"))
			require.Len(t, c.writes, test.writes)
			require.True(t, strings.HasPrefix(c.writes[0], "HTTP/1.1 200\r\n"))
			if test.writes == 2 {
				require.Equal(t, "body", c.writes[1])
			}
			require.Equal(t, before+test.counted, failed())
			if test.logMessage != "" {
				require.Contains(t, buf.String(), test.logMessage)
			}
			if test.counted > 0 {
				require.Contains(t, buf.String(), "level=error")
			} else {
				require.NotContains(t, buf.String(), "level=error")
			}
		})
	}

	// a bodyless response is a single write
	c := &scriptedConn{}
	s, _ := New(nil, nil)
	s.write(c, response.New(404))
	require.Equal(t, []string{"HTTP/1.1 404\r\n\r\n"}, c.writes)
}

func TestReadHead(t *testing.T) {
	read := func(raw string) ([]string, error) {
		return readHead(bufio.NewReaderSize(strings.NewReader(raw), maxLineBytes))
	}

	lines, err := read("GET / HTTP/1.1\r\nHost: x\r\n\r\nignored body")
	require.NoError(t, err)
	require.Equal(t, []string{"GET / HTTP/1.1", "Host: x"}, lines)

	lines, err = read("GET / HTTP/1.1\nHost: x")
	require.NoError(t, err)
	require.Equal(t, []string{"GET / HTTP/1.1", "Host: x"}, lines)

	_, err = read("GET /" + strings.Repeat("a", maxLineBytes) + " HTTP/1.1\r\n\r\n")
	require.True(t, goerrors.Is(err, errors.ErrRequestTooLarge))

	head := "GET / HTTP/1.1\r\n" + strings.Repeat("X-H: v\r\n", maxHeadLines-1) + "\r\n"
	lines, err = read(head)
	require.NoError(t, err)
	require.Len(t, lines, maxHeadLines)

	head = "GET / HTTP/1.1\r\n" + strings.Repeat("X-H: v\r\n", maxHeadLines) + "\r\n"
	_, err = read(head)
	require.True(t, goerrors.Is(err, errors.ErrRequestTooLarge))
}

func TestHeadTooLarge(t *testing.T) {
	buf := &syncBuffer{}
	s, err := New(nil, logging.StreamLogger(buf, level.Info))
	require.NoError(t, err)

	client, srv := net.Pipe()
	defer client.Close()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.handleConn(srv)
	}()
	// the server stops reading at the limit, so the rest of this write fails
	go io.WriteString(client, "GET /"+strings.Repeat("a", 2*maxLineBytes)+" HTTP/1.1\r\n\r\n")

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	b, err := io.ReadAll(client)
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.1 500\r\n\r\n", string(b))
	<-done
	require.Contains(t, buf.String(), `event="request head too large"`)
	require.Contains(t, buf.String(), "status=500")
}
