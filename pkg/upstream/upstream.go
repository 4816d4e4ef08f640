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

// Package upstream is the outbound HTTP client shared by the feed sources.
// GETs for documents are cached and concurrent identical GETs are
// collapsed into one request.
package upstream

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/any2feed/any2feed/pkg/appinfo"
	"github.com/any2feed/any2feed/pkg/cache"
	"github.com/any2feed/any2feed/pkg/cache/status"
	"github.com/any2feed/any2feed/pkg/cookies"
	"github.com/any2feed/any2feed/pkg/errors"
	"github.com/any2feed/any2feed/pkg/observability/logging"
	"github.com/any2feed/any2feed/pkg/observability/logging/logger"
	"github.com/any2feed/any2feed/pkg/observability/metrics"
	"github.com/any2feed/any2feed/pkg/observability/tracing"
	"github.com/any2feed/any2feed/pkg/observability/tracing/span"
	"github.com/any2feed/any2feed/pkg/upstream/options"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

// Response is a fully read upstream response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client performs outbound requests on behalf of the feed sources
type Client struct {
	opts   *options.Options
	http   *http.Client
	cache  cache.Cache
	ttl    time.Duration
	tracer *tracing.Tracer
	group  singleflight.Group
}

// New returns a Client. c may be nil, which disables caching; a zero ttl
// also disables caching.
func New(o *options.Options, c cache.Cache, ttl time.Duration, tr *tracing.Tracer) (*Client, error) {
	if o == nil {
		o = options.New()
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if o.Proxy != "" {
		pu, err := url.Parse(o.Proxy)
		if err != nil {
			return nil, err
		}
		transport.Proxy = http.ProxyURL(pu)
	}
	hc := &http.Client{
		Transport: transport,
		Timeout:   o.Timeout(),
	}
	if o.CookieFile != "" {
		jar, err := cookies.LoadFile(o.CookieFile)
		if err != nil {
			return nil, fmt.Errorf("load cookies: %w", err)
		}
		hc.Jar = jar
	}
	return &Client{
		opts:   o,
		http:   hc,
		cache:  c,
		ttl:    ttl,
		tracer: tr,
	}, nil
}

// WithProxy returns a Client that sends its requests through proxy. The
// cache, tracer and cookie jar are shared with c.
func (c *Client) WithProxy(proxy string) (*Client, error) {
	o := c.opts.Clone()
	o.Proxy = proxy
	if err := o.Validate(); err != nil {
		return nil, err
	}
	pu, err := url.Parse(proxy)
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyURL(pu)
	return c.derive(o, transport, c.http.Jar), nil
}

// WithCookieFile returns a Client with its own cookie jar loaded from path.
// SaveCookies on the returned Client writes back to path. The cache,
// tracer and transport are shared with c.
func (c *Client) WithCookieFile(path string) (*Client, error) {
	jar, err := cookies.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load cookies: %w", err)
	}
	o := c.opts.Clone()
	o.CookieFile = path
	return c.derive(o, c.http.Transport, jar), nil
}

func (c *Client) derive(o *options.Options, rt http.RoundTripper, jar http.CookieJar) *Client {
	return &Client{
		opts: o,
		http: &http.Client{
			Transport: rt,
			Timeout:   c.http.Timeout,
			Jar:       jar,
		},
		cache:  c.cache,
		ttl:    c.ttl,
		tracer: c.tracer,
	}
}

// Cookies returns the jar's cookies for u, or nil without a jar
func (c *Client) Cookies(u *url.URL) []*http.Cookie {
	if c.http.Jar == nil {
		return nil
	}
	return c.http.Jar.Cookies(u)
}

// UserAgent returns the User-Agent header sent upstream
func (c *Client) UserAgent() string {
	if c.opts.UserAgent != "" {
		return c.opts.UserAgent
	}
	return appinfo.UserAgent()
}

// Get performs a GET and returns the response whatever its status. header
// values are copied onto the outbound request.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	ctx, sp := span.NewChildSpan(ctx, c.tracer, "upstream",
		attribute.String("http.url", rawURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		span.Finish(sp, 0, err)
		return nil, err
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent())
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.UpstreamRequestDuration.WithLabelValues(u.Host).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequestStatus.WithLabelValues(u.Host, "error").Inc()
		span.Finish(sp, 0, err)
		return nil, err
	}
	defer resp.Body.Close()
	metrics.UpstreamRequestStatus.WithLabelValues(u.Host, strconv.Itoa(resp.StatusCode)).Inc()

	var r io.Reader = resp.Body
	if c.opts.MaxBodyBytes > 0 {
		r = io.LimitReader(resp.Body, c.opts.MaxBodyBytes+1)
	}
	body, err := io.ReadAll(r)
	if err == nil && c.opts.MaxBodyBytes > 0 && int64(len(body)) > c.opts.MaxBodyBytes {
		err = fmt.Errorf("%w: %s is larger than %d bytes",
			errors.ErrBodyTooLarge, rawURL, c.opts.MaxBodyBytes)
	}
	span.Finish(sp, resp.StatusCode, err)
	if err != nil {
		return nil, err
	}
	logger.Debug("upstream request", logging.Pairs{
		"url":      rawURL,
		"status":   resp.StatusCode,
		"bytes":    len(body),
		"duration": time.Since(start),
	})
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// StatusError returns nil for a 2xx status. A 404 wraps both
// ErrUpstreamStatus and ErrNotFound.
func StatusError(rawURL string, code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %w: %s returned %d",
			errors.ErrUpstreamStatus, errors.ErrNotFound, rawURL, code)
	}
	return fmt.Errorf("%w: %s returned %d", errors.ErrUpstreamStatus, rawURL, code)
}

// Fetch returns the body of a successful GET, served from the cache when
// possible. Concurrent Fetches of the same URL share one upstream request.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	b, _, err := c.fetch(ctx, rawURL)
	return b, err
}

func (c *Client) fetch(ctx context.Context, rawURL string) ([]byte, status.LookupStatus, error) {
	key := "upstream." + rawURL
	if c.cache != nil && c.ttl > 0 {
		b, ls, err := c.cache.Retrieve(key)
		if err == nil {
			c.cacheEvent(ls.String())
			return b, ls, nil
		}
		if !goerrors.Is(err, cache.ErrKNF) {
			logger.Warn("cache retrieve failed", logging.Pairs{"key": key, "error": err})
		}
	}
	v, err, shared := c.group.Do(key, func() (any, error) {
		resp, err := c.Get(ctx, rawURL, nil)
		if err != nil {
			return nil, err
		}
		if err := StatusError(rawURL, resp.StatusCode); err != nil {
			return nil, err
		}
		if c.cache != nil && c.ttl > 0 {
			if err := c.cache.Store(key, resp.Body, c.ttl); err != nil {
				logger.Warn("cache store failed", logging.Pairs{"key": key, "error": err})
			}
		}
		return resp.Body, nil
	})
	// one event per lookup
	ls := status.LookupStatusProxyOnly
	switch {
	case err != nil:
		ls = status.LookupStatusError
	case shared:
		ls = status.LookupStatusProxyHit
	case c.cache != nil && c.ttl > 0:
		ls = status.LookupStatusKeyMiss
	}
	c.cacheEvent(ls.String())
	if err != nil {
		return nil, ls, err
	}
	return v.([]byte), ls, nil
}

// GetJSON fetches rawURL and decodes the body into v
func (c *Client) GetJSON(ctx context.Context, rawURL string, v any) error {
	b, err := c.Fetch(ctx, rawURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

// Invalidate drops the cached body for rawURL
func (c *Client) Invalidate(rawURL string) {
	if c.cache != nil {
		c.cache.Remove("upstream." + rawURL)
	}
}

// SaveCookies writes the jar's cookies for u back to the configured cookie
// file. It is a no-op without a cookie file.
func (c *Client) SaveCookies(u *url.URL) error {
	if c.opts.CookieFile == "" || c.http.Jar == nil {
		return nil
	}
	return cookies.UpdateFile(c.opts.CookieFile, u, c.http.Jar)
}

func (c *Client) cacheEvent(event string) {
	if c.cache == nil {
		return
	}
	metrics.CacheEvents.WithLabelValues(c.cache.Provider(), event).Inc()
}
