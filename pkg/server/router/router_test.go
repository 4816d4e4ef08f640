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

package router

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/any2feed/any2feed/pkg/errors"
	"github.com/any2feed/any2feed/pkg/server/request"
	"github.com/any2feed/any2feed/pkg/server/response"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func okHandler(s string) HandlerFunc {
	return func(*request.Request) (*response.Response, error) {
		return response.WithContent(s), nil
	}
}

func strp(s string) *string {
	return &s
}

const testPattern = "^/foo/(me|bar)(?:/(123)/|)$"

func TestMatchCaptures(t *testing.T) {
	r := MustNewRoute(testPattern, okHandler("x"))

	params, ok := r.Match("/foo/me")
	require.True(t, ok)
	require.Equal(t, map[string]*string{
		"0": strp("/foo/me"),
		"1": strp("me"),
		"2": nil,
	}, params)

	params, ok = r.Match("/foo/bar/123/")
	require.True(t, ok)
	require.Equal(t, map[string]*string{
		"0": strp("/foo/bar/123/"),
		"1": strp("bar"),
		"2": strp("123"),
	}, params)

	_, ok = r.Match("/foo/baz/565")
	require.False(t, ok)
}

func TestAnchoring(t *testing.T) {
	r := MustNewRoute("/feed/(.+)/", okHandler("x"))
	_, ok := r.Match("/feed/abc/")
	require.True(t, ok)
	_, ok = r.Match("/prefix/feed/abc/")
	require.False(t, ok)
	_, ok = r.Match("/feed/abc/suffix")
	require.False(t, ok)

	// alternation must not escape the anchors
	r = MustNewRoute("/a|/b", okHandler("x"))
	_, ok = r.Match("/a/extra")
	require.False(t, ok)
	_, ok = r.Match("/b")
	require.True(t, ok)
}

func TestNewRouteErrors(t *testing.T) {
	_, err := NewRoute("/foo/(", okHandler("x"))
	require.ErrorIs(t, err, errors.ErrInvalidPattern)
	_, err = NewRoute("/foo/", nil)
	require.ErrorIs(t, err, errors.ErrInvalidPattern)
	require.Panics(t, func() { MustNewRoute("[", okHandler("x")) })
}

func TestResolve(t *testing.T) {
	rt := New(
		MustNewRoute(testPattern, okHandler("first")),
		nil,
		MustNewRoute("/foo/.*", okHandler("fallback")),
	)
	require.Len(t, rt.Routes(), 2)

	route, params, ok := rt.Resolve("/foo/me")
	require.True(t, ok)
	require.Equal(t, testPattern, route.Pattern)
	require.Len(t, params, 3)

	route, params, ok = rt.Resolve("/foo/baz/565")
	require.True(t, ok)
	require.Equal(t, "/foo/.*", route.Pattern)
	require.Equal(t, "/foo/baz/565", *params["0"])

	_, _, ok = rt.Resolve("/nothing")
	require.False(t, ok)

	_, _, ok = New().Resolve("/")
	require.False(t, ok)
}

func TestRun(t *testing.T) {
	r := MustNewRoute("/x", okHandler("ran"))
	resp, err := r.Run(&request.Request{})
	require.NoError(t, err)
	require.Equal(t, "ran", string(resp.Content))
}

func TestRunReleasesOnPanic(t *testing.T) {
	var calls atomic.Int32
	r := MustNewRoute("/p", func(*request.Request) (*response.Response, error) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return response.New(204), nil
	})
	require.Panics(t, func() { r.Run(&request.Request{}) })
	done := make(chan struct{})
	go func() {
		r.Run(&request.Request{})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("route lock was not released after panic")
	}
}

// blockingRoute records the peak number of concurrent handler invocations
func blockingRoute(pattern string, inflight, peak *atomic.Int32, hold time.Duration) *Route {
	return MustNewRoute(pattern, func(*request.Request) (*response.Response, error) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(hold)
		inflight.Add(-1)
		return response.New(200), nil
	})
}

func TestSameRouteSerialized(t *testing.T) {
	var inflight, peak atomic.Int32
	r := blockingRoute("/same", &inflight, &peak, 10*time.Millisecond)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Run(&request.Request{})
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), peak.Load())
}

func TestDifferentRoutesParallel(t *testing.T) {
	var inflight, peak atomic.Int32
	a := blockingRoute("/a", &inflight, &peak, 200*time.Millisecond)
	b := blockingRoute("/b", &inflight, &peak, 200*time.Millisecond)
	var wg sync.WaitGroup
	for _, r := range []*Route{a, b} {
		wg.Add(1)
		go func(r *Route) {
			defer wg.Done()
			r.Run(&request.Request{})
		}(r)
	}
	wg.Wait()
	require.Equal(t, int32(2), peak.Load())
}

func TestPathParamsToSlice(t *testing.T) {
	params := map[string]*string{
		"2":  strp("123"),
		"1":  strp("bar"),
		"0":  strp("/foo/bar/123/"),
		"10": strp("ten"),
		"3":  nil,
	}
	out := PathParamsToSlice(params)
	require.Len(t, out, 5)
	require.Equal(t, "/foo/bar/123/", *out[0])
	require.Equal(t, "bar", *out[1])
	require.Equal(t, "123", *out[2])
	require.Nil(t, out[3])
	require.Equal(t, "ten", *out[4])
}

func TestFirstMatchProperty(t *testing.T) {
	patterns := []string{
		"/feed/.*", "/feed/(a+)/", "/(.*)", "/feed/a/", "/media/(\\d+)",
		"/feed/(a|b)(?:/(c)|)", "/media/.*", "/",
	}
	paths := []string{
		"/", "/feed/a/", "/feed/aa/", "/feed/b", "/feed/b/c", "/media/12",
		"/media/x", "/none",
	}

	properties := gopter.NewProperties(nil)
	properties.Property("resolved route is the first that matches", prop.ForAll(
		func(order []int, path string) bool {
			routes := make([]*Route, 0, len(order))
			for _, i := range order {
				routes = append(routes, MustNewRoute(patterns[i], okHandler(patterns[i])))
			}
			rt := New(routes...)
			route, params, ok := rt.Resolve(path)
			for _, r := range routes {
				_, m := r.Match(path)
				if r == route {
					return ok && m && *params["0"] == path
				}
				if m {
					return false
				}
			}
			return !ok
		},
		gen.SliceOf(gen.IntRange(0, len(patterns)-1)),
		gen.OneConstOf(paths[0], paths[1], paths[2], paths[3], paths[4], paths[5], paths[6], paths[7]),
	))
	properties.Property("every capture index is present", prop.ForAll(
		func(path string) bool {
			r := MustNewRoute("/feed/(a|b)(?:/(c)|)", okHandler("x"))
			params, ok := r.Match(path)
			if !ok {
				return true
			}
			_, has0 := params["0"]
			_, has1 := params["1"]
			_, has2 := params["2"]
			return len(params) == 3 && has0 && has1 && has2
		},
		gen.OneConstOf(paths[0], paths[1], paths[2], paths[3], paths[4], paths[5], paths[6], paths[7]),
	))
	properties.TestingRun(t)
}
