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

// Package router resolves request paths to handlers through an ordered
// table of anchored regular expressions
package router

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync/atomic"

	"github.com/any2feed/any2feed/pkg/errors"
	"github.com/any2feed/any2feed/pkg/locks"
	"github.com/any2feed/any2feed/pkg/server/request"
	"github.com/any2feed/any2feed/pkg/server/response"
)

// Handler produces the response for a matched request
type Handler interface {
	Handle(*request.Request) (*response.Response, error)
}

// HandlerFunc adapts an ordinary function to a Handler
type HandlerFunc func(*request.Request) (*response.Response, error)

// Handle calls f(r)
func (f HandlerFunc) Handle(r *request.Request) (*response.Response, error) {
	return f(r)
}

// routeLocks serializes invocations of the same route
var routeLocks = locks.NewNamedLocker()

var routeSeq atomic.Uint64

// Route is a compiled pattern and the handler it dispatches to. Only one
// invocation of a given Route's handler runs at a time.
type Route struct {
	Pattern string
	re      *regexp.Regexp
	handler Handler
	lockKey string
}

// Routes is an ordered route table; earlier routes take precedence
type Routes []*Route

// NewRoute compiles pattern, anchored at both ends, and binds it to h
func NewRoute(pattern string, h Handler) (*Route, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", errors.ErrInvalidPattern, pattern, err)
	}
	if h == nil {
		return nil, fmt.Errorf("%w: %q: nil handler", errors.ErrInvalidPattern, pattern)
	}
	id := routeSeq.Add(1)
	return &Route{
		Pattern: pattern,
		re:      re,
		handler: h,
		lockKey: "route." + strconv.FormatUint(id, 10),
	}, nil
}

// MustNewRoute is NewRoute for static route tables; it panics on error
func MustNewRoute(pattern string, h HandlerFunc) *Route {
	r, err := NewRoute(pattern, h)
	if err != nil {
		panic(err)
	}
	return r
}

// Match reports whether the route matches the whole of path and returns
// every capture group keyed by its index. Groups that did not participate
// in the match map to nil.
func (r *Route) Match(path string) (map[string]*string, bool) {
	idx := r.re.FindStringSubmatchIndex(path)
	if idx == nil {
		return nil, false
	}
	params := make(map[string]*string, len(idx)/2)
	for i := 0; i*2 < len(idx); i++ {
		key := strconv.Itoa(i)
		start, end := idx[i*2], idx[i*2+1]
		if start < 0 {
			params[key] = nil
			continue
		}
		v := path[start:end]
		params[key] = &v
	}
	return params, true
}

// Run invokes the route's handler while holding the route's lock
func (r *Route) Run(req *request.Request) (*response.Response, error) {
	nl, err := routeLocks.Acquire(r.lockKey)
	if err != nil {
		return nil, err
	}
	defer nl.Release()
	return r.handler.Handle(req)
}

// Router holds a route table. It is read-only after construction.
type Router struct {
	routes Routes
}

// New returns a Router over routes, in precedence order
func New(routes ...*Route) *Router {
	rt := make(Routes, 0, len(routes))
	for _, r := range routes {
		if r != nil {
			rt = append(rt, r)
		}
	}
	return &Router{routes: rt}
}

// Routes returns a copy of the route table
func (rt *Router) Routes() Routes {
	out := make(Routes, len(rt.routes))
	copy(out, rt.routes)
	return out
}

// Resolve returns the first route in the table that matches path, along
// with its captures. ok is false when no route matches.
func (rt *Router) Resolve(path string) (*Route, map[string]*string, bool) {
	for _, r := range rt.routes {
		if params, ok := r.Match(path); ok {
			return r, params, true
		}
	}
	return nil, nil, false
}

// PathParamsToSlice orders path params by their numeric index
func PathParamsToSlice(params map[string]*string) []*string {
	type kv struct {
		i int
		v *string
	}
	pairs := make([]kv, 0, len(params))
	for k, v := range params {
		i, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		pairs = append(pairs, kv{i, v})
	}
	sort.Slice(pairs, func(a, b int) bool { return pairs[a].i < pairs[b].i })
	out := make([]*string, len(pairs))
	for i, p := range pairs {
		out[i] = p.v
	}
	return out
}
