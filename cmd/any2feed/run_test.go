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

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/any2feed/any2feed/pkg/config"
	do "github.com/any2feed/any2feed/pkg/sources/danbooru/options"
	tgo "github.com/any2feed/any2feed/pkg/sources/telegram/options"

	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	require.True(t, strings.HasPrefix(out.String(), "any2feed version: "+applicationVersion))
}

func TestRunFlags(t *testing.T) {
	root := newRootCmd()
	args := []string{"-c", "feeds.yaml", "-vv", "--log-file", "a2f.log",
		"run", "-p", "8080", "--threads", "3"}
	cmd, _, err := root.Find(args)
	require.NoError(t, err)
	require.Equal(t, "run", cmd.Name())
	require.NoError(t, cmd.ParseFlags(args))

	f := cmd.Flags()
	path, err := f.GetString("config")
	require.NoError(t, err)
	require.Equal(t, "feeds.yaml", path)
	v, err := f.GetCount("verbose")
	require.NoError(t, err)
	require.Equal(t, 2, v)
	port, err := f.GetUint16("port")
	require.NoError(t, err)
	require.Equal(t, uint16(8080), port)
	threads, err := f.GetUint8("threads")
	require.NoError(t, err)
	require.Equal(t, uint8(3), threads)
}

func TestRunBadConfig(t *testing.T) {
	err := run(context.Background(), &config.Flags{
		ConfigPath: filepath.Join(t.TempDir(), "missing.toml"),
	})
	require.Error(t, err)

	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"-c", filepath.Join(t.TempDir(), "missing.toml"), "run"})
	require.Error(t, root.Execute())
}

func TestRun(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"id": 7, "created_at": "2023-03-01T12:00:00Z", "tag_string": "cat_ears"}]`)
	}))
	defer upstream.Close()

	dir := t.TempDir()
	port, pprofPort := freePort(t), freePort(t)
	path := filepath.Join(dir, "any2feed.toml")
	conf := fmt.Sprintf(`
[server]
port = %d
threads = 2

[metrics]
pprof_address = "127.0.0.1:%d"

[logging]
log_file = %q

[danbooru]
base_url = %q
tags = ["cat_ears"]

[telegram]
channels = ["oper_goblin"]
`, port, pprofPort, filepath.Join(dir, "any2feed.log"), upstream.URL)
	require.NoError(t, os.WriteFile(path, []byte(conf), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, &config.Flags{ConfigPath: path})
	}()

	client := &http.Client{
		Transport: &http.Transport{DisableKeepAlives: true},
		Timeout:   5 * time.Second,
	}
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	get := func(path string) (int, string) {
		resp, err := client.Get(base + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(b)
	}

	require.Eventually(t, func() bool {
		resp, err := client.Get(base + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	code, body := get("/all.opml")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "/danbooru/feed/cat_ears/")
	require.Contains(t, body, "/telegram/feed/oper_goblin/")

	code, body = get("/danbooru/feed/cat_ears/")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "<feed")

	code, body = get("/metrics")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "any2feed_build_info")

	code, _ = get("/no/such/route")
	require.Equal(t, http.StatusNotFound, code)

	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/debug/pprof/", pprofPort))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestCookieURLs(t *testing.T) {
	c := config.NewConfig()
	require.Empty(t, cookieURLs(c))
	c.Danbooru = do.New()
	c.Telegram = tgo.New()
	require.Equal(t, []string{"https://danbooru.donmai.us", "https://t.me"}, cookieURLs(c))
}
