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

// Package danbooru serves Atom feeds of danbooru tag searches
package danbooru

import (
	"fmt"
	"net/url"

	"github.com/any2feed/any2feed/pkg/errors"
	"github.com/any2feed/any2feed/pkg/feed"
	"github.com/any2feed/any2feed/pkg/server/request"
	"github.com/any2feed/any2feed/pkg/server/response"
	"github.com/any2feed/any2feed/pkg/server/router"
	"github.com/any2feed/any2feed/pkg/sources/danbooru/options"
	"github.com/any2feed/any2feed/pkg/upstream"
)

// Name is the source name used in paths and config
const Name = "danbooru"

// Route paths
const (
	FeedPath  = "/danbooru/feed/"
	OPMLPath  = "/danbooru.opml"
	MediaPath = "/danbooru/media/"
)

// Source is the danbooru feed source
type Source struct {
	opts   *options.Options
	client *upstream.Client
}

// New returns a danbooru Source. client should already use opts.Proxy as its
// outbound proxy.
func New(opts *options.Options, client *upstream.Client) (*Source, error) {
	if opts == nil {
		opts = options.New()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Source{opts: opts, client: client}, nil
}

// Name returns "danbooru"
func (s *Source) Name() string {
	return Name
}

// Routes returns the feed, OPML and media proxy routes
func (s *Source) Routes() (router.Routes, error) {
	var rs router.Routes
	for _, r := range []struct {
		pattern string
		h       router.HandlerFunc
	}{
		{FeedPath + "(.+)/", s.handleFeed},
		{OPMLPath, s.handleOPML},
		{MediaPath, s.handleMedia},
	} {
		route, err := router.NewRoute(r.pattern, r.h)
		if err != nil {
			return nil, err
		}
		rs = append(rs, route)
	}
	return rs, nil
}

// Outlines returns a folder with one feed per configured tag
func (s *Source) Outlines(base *url.URL) []*feed.Outline {
	folder := feed.NewOutline("Danbooru")
	for _, tag := range s.opts.Tags {
		folder.AddChild(tag, base.JoinPath(FeedPath, url.PathEscape(tag)+"/").String())
	}
	return []*feed.Outline{folder}
}

func (s *Source) handleFeed(r *request.Request) (*response.Response, error) {
	tag, ok := r.PathParam(1)
	if !ok {
		return nil, errors.ErrNotFound
	}
	posts, err := s.Posts(r.Context(), tag)
	if err != nil {
		return nil, err
	}
	var proxy *url.URL
	if s.opts.Proxy != "" {
		proxy = r.BaseURL().JoinPath(MediaPath)
	}
	b, err := s.PostsToFeed(r.URL().String(), tag, posts, proxy).Render()
	if err != nil {
		return nil, err
	}
	return response.WithBytes(b).SetContentType(feed.ContentType), nil
}

func (s *Source) handleOPML(r *request.Request) (*response.Response, error) {
	b, err := feed.NewOPML("Danbooru").AddOutline(s.Outlines(r.BaseURL())...).Render()
	if err != nil {
		return nil, err
	}
	return response.WithBytes(b).SetContentType(feed.ContentType), nil
}

func (s *Source) handleMedia(r *request.Request) (*response.Response, error) {
	mediaURL := r.Query("url")
	u, err := url.Parse(mediaURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: bad media url %q", errors.ErrInvalidRequest, mediaURL)
	}
	resp, err := s.client.Get(r.Context(), mediaURL,
		upstream.ForwardHeaders(r.Headers, s.opts.BaseURL+"/posts"))
	if err != nil {
		return nil, err
	}
	if err := upstream.StatusError(mediaURL, resp.StatusCode); err != nil {
		return nil, err
	}
	return upstream.ToResponse(resp), nil
}
