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

// Package telegram serves Atom feeds of public Telegram channels, scraped from
// the channel web preview
package telegram

import (
	goerrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/any2feed/any2feed/pkg/errors"
	"github.com/any2feed/any2feed/pkg/feed"
	"github.com/any2feed/any2feed/pkg/observability/logging"
	"github.com/any2feed/any2feed/pkg/observability/logging/logger"
	"github.com/any2feed/any2feed/pkg/server/request"
	"github.com/any2feed/any2feed/pkg/server/response"
	"github.com/any2feed/any2feed/pkg/server/router"
	"github.com/any2feed/any2feed/pkg/sources/telegram/options"
	"github.com/any2feed/any2feed/pkg/upstream"
)

// Name is the source name used in paths and config
const Name = "telegram"

// Route paths
const (
	FeedPath  = "/telegram/feed/"
	OPMLPath  = "/telegram.opml"
	MediaPath = "/telegram/media"
)

// Source is the telegram feed source
type Source struct {
	opts   *options.Options
	api    *API
	client *upstream.Client
	now    func() time.Time
}

// New returns a telegram Source
func New(opts *options.Options, client *upstream.Client) (*Source, error) {
	if opts == nil {
		opts = options.New()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Source{
		opts:   opts,
		api:    NewAPI(client, opts.BaseURL),
		client: client,
		now:    time.Now,
	}, nil
}

// Name returns "telegram"
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
		{MediaPath + `/([\w_]+)/(\d+)/(\d+)-(url|thumb_url)/`, s.handleMedia},
	} {
		route, err := router.NewRoute(r.pattern, r.h)
		if err != nil {
			return nil, err
		}
		rs = append(rs, route)
	}
	return rs, nil
}

// Outlines returns a folder with one feed per configured channel
func (s *Source) Outlines(base *url.URL) []*feed.Outline {
	folder := feed.NewOutline("Telegram channels")
	for _, slug := range s.opts.Slugs() {
		folder.AddChild(slug, base.JoinPath(FeedPath, url.PathEscape(slug)+"/").String())
	}
	return []*feed.Outline{folder}
}

func (s *Source) handleFeed(r *request.Request) (*response.Response, error) {
	slug, ok := r.PathParam(1)
	if !ok {
		return nil, errors.ErrNotFound
	}
	ch, err := s.api.FetchChannel(r.Context(), slug, s.opts.PagesFor(slug))
	if err != nil {
		logger.Warn("telegram channel fetch failed", logging.Pairs{"channel": slug, "error": err})
		if goerrors.Is(err, errors.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", errors.ErrNotFound, err)
	}
	proxy := r.BaseURL().JoinPath(MediaPath)
	now := s.now()
	for _, p := range ch.Posts {
		SetProxyURLs(p, proxy, now)
	}
	b, err := s.api.ChannelToFeed(ch, r.URL().String()).Render()
	if err != nil {
		return nil, err
	}
	return response.WithBytes(b).SetContentType(feed.ContentType), nil
}

func (s *Source) handleOPML(r *request.Request) (*response.Response, error) {
	b, err := feed.NewOPML("Telegram channels").AddOutline(s.Outlines(r.BaseURL())...).Render()
	if err != nil {
		return nil, err
	}
	return response.WithBytes(b).SetContentType(feed.ContentType), nil
}

// handleMedia proxies a post's media. Preview media URLs expire, so a 404
// from upstream is retried once with an address read from the post's
// embedded page.
func (s *Source) handleMedia(r *request.Request) (*response.Response, error) {
	params := router.PathParamsToSlice(r.PathParams)
	if len(params) != 5 {
		return nil, errors.ErrInvalidRequest
	}
	for _, p := range params {
		if p == nil {
			return nil, errors.ErrInvalidRequest
		}
	}
	slug, field := *params[1], *params[4]
	id, err := strconv.Atoi(*params[2])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidRequest, err)
	}
	index, err := strconv.Atoi(*params[3])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidRequest, err)
	}

	mediaURL := r.Query("url")
	if mediaURL == "" {
		if mediaURL, err = s.api.RefreshMediaURL(r.Context(), slug, id, index, field); err != nil {
			return nil, err
		}
	}
	headers := upstream.ForwardHeaders(r.Headers, s.api.EmbeddedPostURL(slug, id))
	for attempt := 0; attempt < 2; attempt++ {
		u, err := url.Parse(mediaURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, fmt.Errorf("%w: bad media url %q", errors.ErrInvalidRequest, mediaURL)
		}
		resp, err := s.client.Get(r.Context(), mediaURL, headers)
		if err != nil {
			return nil, err
		}
		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return upstream.ToResponse(resp), nil
		case resp.StatusCode == http.StatusNotFound && attempt == 0:
			logger.Debug("telegram media expired", logging.Pairs{"post": slug + "/" + strconv.Itoa(id), "index": index})
			if mediaURL, err = s.api.RefreshMediaURL(r.Context(), slug, id, index, field); err != nil {
				return nil, err
			}
		default:
			return nil, upstream.StatusError(mediaURL, resp.StatusCode)
		}
	}
	return nil, errors.ErrNotFound
}
