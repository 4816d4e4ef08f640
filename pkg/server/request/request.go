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

// Package request parses the head of an inbound HTTP/1.1 request
package request

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/any2feed/any2feed/pkg/errors"
)

// Method is an HTTP request method
type Method string

// Supported request methods
const (
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
)

var methods = map[string]Method{
	"HEAD":    MethodHead,
	"OPTIONS": MethodOptions,
	"GET":     MethodGet,
	"POST":    MethodPost,
	"PUT":     MethodPut,
	"DELETE":  MethodDelete,
}

// ParseMethod matches s case-insensitively against the supported methods
func ParseMethod(s string) (Method, error) {
	if m, ok := methods[strings.ToUpper(s)]; ok {
		return m, nil
	}
	return "", errors.ErrInvalidMethod
}

// Request is the parsed head of an inbound request. PathParams is filled
// in once the request has been matched to a route.
type Request struct {
	Method      Method
	Path        string
	FullPath    string
	Proto       string
	QueryParams map[string]string
	Headers     map[string]string
	Body        string
	PathParams  map[string]*string

	addr string
	ctx  context.Context
}

// Parse builds a Request from the lines of a request head, not including the
// blank line that terminates it. addr is the server's listen address and is
// used to build absolute URLs.
func Parse(lines []string, addr string) (*Request, error) {
	if len(lines) == 0 {
		return nil, errors.ErrInvalidRequest
	}
	head := strings.Fields(lines[0])
	if len(head) != 3 {
		return nil, errors.ErrInvalidRequest
	}
	method, err := ParseMethod(head[0])
	if err != nil {
		return nil, err
	}
	target := head[1]
	if !strings.HasPrefix(target, "/") {
		target = "/" + target
	}
	u, err := url.Parse("http://localhost" + target)
	if err != nil {
		return nil, errors.ErrInvalidRequest
	}
	r := &Request{
		Method:      method,
		Path:        u.Path,
		FullPath:    target,
		Proto:       head[2],
		QueryParams: parseQuery(u.RawQuery),
		Headers:     make(map[string]string, len(lines)-1),
		addr:        addr,
	}
	if r.Path == "" {
		r.Path = "/"
	}
	for _, l := range lines[1:] {
		k, v, ok := strings.Cut(l, ":")
		if !ok {
			return nil, errors.ErrInvalidRequest
		}
		r.Headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return r, nil
}

// parseQuery splits a raw query on & and then =. Pairs that fail to decode
// are kept verbatim; duplicate keys keep the last value.
func parseQuery(raw string) map[string]string {
	out := make(map[string]string)
	if raw == "" {
		return out
	}
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		if dk, err := url.QueryUnescape(k); err == nil {
			k = dk
		}
		if dv, err := url.QueryUnescape(v); err == nil {
			v = dv
		}
		out[k] = v
	}
	return out
}

// Addr returns the listen address the request was accepted on
func (r *Request) Addr() string {
	return r.addr
}

// URL returns the absolute URL of the request, built from the server's
// listen address and the raw request target. The Host header is not used.
func (r *Request) URL() *url.URL {
	u, err := url.Parse("http://" + r.addr + r.FullPath)
	if err != nil {
		return &url.URL{Scheme: "http", Host: r.addr, Path: r.Path}
	}
	return u
}

// BaseURL returns the absolute URL of the server root
func (r *Request) BaseURL() *url.URL {
	return &url.URL{Scheme: "http", Host: r.addr, Path: "/"}
}

// PathParam returns capture group i of the matched route. ok is false when
// the group is out of range or did not participate in the match.
func (r *Request) PathParam(i int) (string, bool) {
	if r.PathParams == nil {
		return "", false
	}
	v, ok := r.PathParams[strconv.Itoa(i)]
	if !ok || v == nil {
		return "", false
	}
	return *v, true
}

// Query returns the query parameter named key, or "" when absent
func (r *Request) Query(key string) string {
	return r.QueryParams[key]
}

// Context returns the request's context, or context.Background
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext returns a shallow copy of r carrying ctx
func (r *Request) WithContext(ctx context.Context) *Request {
	r2 := *r
	r2.ctx = ctx
	return &r2
}
