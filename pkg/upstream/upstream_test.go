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

package upstream

import (
	"bytes"
	"context"
	goerrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/any2feed/any2feed/pkg/cache"
	"github.com/any2feed/any2feed/pkg/cache/memory"
	cacheopts "github.com/any2feed/any2feed/pkg/cache/options"
	"github.com/any2feed/any2feed/pkg/cache/status"
	"github.com/any2feed/any2feed/pkg/errors"
	"github.com/any2feed/any2feed/pkg/observability/metrics"
	"github.com/any2feed/any2feed/pkg/upstream/options"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, o *options.Options, ttl time.Duration) *Client {
	t.Helper()
	c, err := New(o, memory.New(cacheopts.New()), ttl, nil)
	require.NoError(t, err)
	return c
}

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-UA", r.UserAgent())
		w.Header().Set("X-Test", r.Header.Get("X-Test"))
		w.WriteHeader(http.StatusTeapot)
		fmt.Fprint(w, "short and stout")
	}))
	defer srv.Close()

	c := newTestClient(t, nil, 0)
	resp, err := c.Get(context.Background(), srv.URL,
		http.Header{"X-Test": []string{"1"}})
	require.NoError(t, err)
	require.Equal(t, http.StatusTeapot, resp.StatusCode)
	require.Equal(t, "short and stout", string(resp.Body))
	require.Equal(t, c.UserAgent(), resp.Header.Get("X-UA"))
	require.Equal(t, "1", resp.Header.Get("X-Test"))

	o := options.New()
	o.UserAgent = "custom/1.0"
	c = newTestClient(t, o, 0)
	resp, err = c.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	require.Equal(t, "custom/1.0", resp.Header.Get("X-UA"))

	_, err = c.Get(context.Background(), "http://127.0.0.1:1/", nil)
	require.Error(t, err)
}

func TestGet_MaxBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 1000))
	}))
	defer srv.Close()

	o := options.New()
	o.MaxBodyBytes = 100
	c := newTestClient(t, o, time.Minute)
	_, err := c.Get(context.Background(), srv.URL, nil)
	require.ErrorIs(t, err, errors.ErrBodyTooLarge)

	// a truncated body is never cached
	_, err = c.Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, errors.ErrBodyTooLarge)
	_, _, err = c.cache.Retrieve("upstream." + srv.URL)
	require.ErrorIs(t, err, cache.ErrKNF)

	o.MaxBodyBytes = 1000
	resp, err := newTestClient(t, o, 0).Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	require.Len(t, resp.Body, 1000)
}

func TestFetch_Cache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprintf(w, "body %s", r.URL.Path)
	}))
	defer srv.Close()

	c := newTestClient(t, nil, time.Minute)
	for i := 0; i < 3; i++ {
		b, err := c.Fetch(context.Background(), srv.URL+"/a")
		require.NoError(t, err)
		require.Equal(t, "body /a", string(b))
	}
	require.Equal(t, int32(1), hits.Load())

	c.Invalidate(srv.URL + "/a")
	_, err := c.Fetch(context.Background(), srv.URL+"/a")
	require.NoError(t, err)
	require.Equal(t, int32(2), hits.Load())

	// a zero ttl bypasses the cache
	c = newTestClient(t, nil, 0)
	_, err = c.Fetch(context.Background(), srv.URL+"/a")
	require.NoError(t, err)
	_, err = c.Fetch(context.Background(), srv.URL+"/a")
	require.NoError(t, err)
	require.Equal(t, int32(4), hits.Load())
}

func TestFetch_CacheEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "counted")
	}))
	defer srv.Close()

	events := func() map[string]float64 {
		out := make(map[string]float64)
		for _, ls := range []status.LookupStatus{status.LookupStatusHit, status.LookupStatusKeyMiss,
			status.LookupStatusProxyOnly, status.LookupStatusProxyHit, status.LookupStatusError} {
			out[ls.String()] = testutil.ToFloat64(
				metrics.CacheEvents.WithLabelValues(cacheopts.ProviderMemory, ls.String()))
		}
		return out
	}
	total := func(m map[string]float64) float64 {
		var n float64
		for _, v := range m {
			n += v
		}
		return n
	}

	c := newTestClient(t, nil, time.Minute)
	before := events()
	_, err := c.Fetch(context.Background(), srv.URL+"/events")
	require.NoError(t, err)
	after := events()
	require.Equal(t, total(before)+1, total(after))
	require.Equal(t, before["kmiss"]+1, after["kmiss"])

	_, err = c.Fetch(context.Background(), srv.URL+"/events")
	require.NoError(t, err)
	final := events()
	require.Equal(t, total(after)+1, total(final))
	require.Equal(t, after["hit"]+1, final["hit"])
}

func TestFetch_Concurrent(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(20 * time.Millisecond)
		fmt.Fprint(w, "shared")
	}))
	defer srv.Close()

	c := newTestClient(t, nil, time.Minute)
	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			b, err := c.Fetch(context.Background(), srv.URL)
			require.NoError(t, err)
			require.Equal(t, "shared", string(b))
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, hits.Load(), int32(n))
	require.GreaterOrEqual(t, hits.Load(), int32(1))
}

func TestFetch_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, nil, time.Minute)
	_, err := c.Fetch(context.Background(), srv.URL+"/missing")
	require.True(t, goerrors.Is(err, errors.ErrUpstreamStatus))
	require.True(t, goerrors.Is(err, errors.ErrNotFound))

	_, err = c.Fetch(context.Background(), srv.URL+"/other")
	require.True(t, goerrors.Is(err, errors.ErrUpstreamStatus))
	require.False(t, goerrors.Is(err, errors.ErrNotFound))

	require.NoError(t, StatusError("x", http.StatusNoContent))
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			fmt.Fprint(w, "{")
			return
		}
		fmt.Fprint(w, `[{"id":1},{"id":2}]`)
	}))
	defer srv.Close()

	c := newTestClient(t, nil, time.Minute)
	var v []struct {
		ID int `json:"id"`
	}
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, &v))
	require.Len(t, v, 2)
	require.Equal(t, 2, v[1].ID)

	require.Error(t, c.GetJSON(context.Background(), srv.URL+"/bad", &v))
}

func TestCookieFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("sid")
		if err != nil {
			http.Error(w, "no cookie", http.StatusForbidden)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: ck.Value + "-next"})
		fmt.Fprint(w, ck.Value)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "cookies.txt")
	require.NoError(t, os.WriteFile(path,
		[]byte("127.0.0.1\tFALSE\t/\tFALSE\t0\tsid\tabc\n"), 0o600))

	o := options.New()
	o.CookieFile = path
	c := newTestClient(t, o, 0)
	resp, err := c.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "abc", string(resp.Body))

	o.CookieFile = filepath.Join(t.TempDir(), "missing.txt")
	_, err = New(o, nil, 0, nil)
	require.Error(t, err)
}

func TestOptions(t *testing.T) {
	o := options.New()
	require.NoError(t, o.Validate())
	require.Equal(t, 30*time.Second, o.Timeout())

	o2 := o.Clone()
	o2.Proxy = "::bad"
	require.Error(t, o2.Validate())
	require.Empty(t, o.Proxy)

	o2.Proxy = "socks5://127.0.0.1:1080"
	require.NoError(t, o2.Validate())
	_, err := New(o2, nil, 0, nil)
	require.NoError(t, err)

	o2.TimeoutSecs = -1
	_, err = New(o2, nil, 0, nil)
	require.True(t, goerrors.Is(err, errors.ErrInvalidOptions))
}

func TestToResponse(t *testing.T) {
	r := ToResponse(&Response{
		StatusCode: http.StatusOK,
		Header: http.Header{
			"Content-Type":      []string{"image/png"},
			"Content-Length":    []string{"3"},
			"Cache-Control":     []string{"max-age=60"},
			"Set-Cookie":        []string{"a=b"},
			"Transfer-Encoding": []string{"chunked"},
			"Vary":              []string{"Accept", "Origin"},
		},
		Body: []byte("png"),
	})
	require.Equal(t, uint16(200), r.Status)
	require.Equal(t, "image/png", r.ContentType)
	require.Equal(t, "png", string(r.Content))
	require.Equal(t, map[string]string{
		"Cache-Control": "max-age=60",
		"Vary":          "Accept, Origin",
	}, r.Headers)
}

func TestToResponse_Range(t *testing.T) {
	video := []byte(strings.Repeat("v", 1000))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		http.ServeContent(w, r, "clip.mp4", time.Unix(1700000000, 0), bytes.NewReader(video))
	}))
	defer srv.Close()

	c := newTestClient(t, nil, 0)
	resp, err := c.Get(context.Background(), srv.URL,
		ForwardHeaders(map[string]string{"Range": "bytes=0-9"}, ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)

	r := ToResponse(resp)
	require.Equal(t, uint16(206), r.Status)
	require.Equal(t, "bytes 0-9/1000", r.Headers["Content-Range"])
	require.Equal(t, "bytes", r.Headers["Accept-Ranges"])
	head := string(r.HeaderBlock())
	require.Contains(t, head, "Content-Range: bytes 0-9/1000\r\n")
	require.Contains(t, head, "Content-Length: 10\r\n")
	require.Equal(t, 1, strings.Count(head, "Content-Length"))
}

func TestForwardHeaders(t *testing.T) {
	h := ForwardHeaders(map[string]string{
		"host":            "localhost:12345",
		"accept-encoding": "gzip",
		"Range":           "bytes=0-",
		"User-Agent":      "reader/1.0",
	}, "https://example.org/posts")
	require.Equal(t, http.Header{
		"Range":      []string{"bytes=0-"},
		"User-Agent": []string{"reader/1.0"},
		"Referer":    []string{"https://example.org/posts"},
	}, h)

	require.Empty(t, ForwardHeaders(nil, ""))
}

func TestWithProxy(t *testing.T) {
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "via proxy: "+r.URL.Host)
	}))
	defer proxy.Close()

	c := newTestClient(t, nil, time.Minute)
	pc, err := c.WithProxy(proxy.URL)
	require.NoError(t, err)
	require.Equal(t, c.UserAgent(), pc.UserAgent())

	b, err := pc.Fetch(context.Background(), "http://feeds.invalid/posts.json")
	require.NoError(t, err)
	require.Equal(t, "via proxy: feeds.invalid", string(b))

	// the cache is shared with the parent client
	b, err = c.Fetch(context.Background(), "http://feeds.invalid/posts.json")
	require.NoError(t, err)
	require.Equal(t, "via proxy: feeds.invalid", string(b))

	_, err = c.WithProxy("not a proxy")
	require.ErrorIs(t, err, errors.ErrInvalidOptions)
}

func TestWithCookieFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("sid")
		if err != nil {
			http.Error(w, "no cookie", http.StatusForbidden)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: ck.Value + "-next"})
		fmt.Fprint(w, ck.Value)
	}))
	defer srv.Close()
	u, _ := url.Parse(srv.URL)

	path := filepath.Join(t.TempDir(), "cookies.txt")
	require.NoError(t, os.WriteFile(path,
		[]byte("127.0.0.1\tFALSE\t/\tFALSE\t0\tsid\tabc\n"), 0o600))

	parent := newTestClient(t, nil, time.Minute)
	require.Nil(t, parent.Cookies(u))
	c, err := parent.WithCookieFile(path)
	require.NoError(t, err)

	resp, err := c.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	require.Equal(t, "abc", string(resp.Body))
	require.Len(t, c.Cookies(u), 1)
	require.Equal(t, "abc-next", c.Cookies(u)[0].Value)

	require.NoError(t, c.SaveCookies(u))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), "abc-next")

	// the parent has no jar of its own
	resp, err = parent.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.NoError(t, parent.SaveCookies(u))

	_, err = parent.WithCookieFile(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}
