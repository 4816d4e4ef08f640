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

// Package mewe serves Atom feeds of a signed in MeWe session: the home
// feed, contacts and groups. Media is proxied with the session's cookies.
package mewe

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/any2feed/any2feed/pkg/errors"
	"github.com/any2feed/any2feed/pkg/feed"
	"github.com/any2feed/any2feed/pkg/observability/logging"
	"github.com/any2feed/any2feed/pkg/observability/logging/logger"
	"github.com/any2feed/any2feed/pkg/server/request"
	"github.com/any2feed/any2feed/pkg/server/response"
	"github.com/any2feed/any2feed/pkg/server/router"
	"github.com/any2feed/any2feed/pkg/sources/mewe/options"
	"github.com/any2feed/any2feed/pkg/upstream"
)

// Name is the source name used in paths and config
const Name = "mewe"

// Route paths
const (
	FeedPath  = "/mewe/feed/"
	OPMLPath  = "/mewe.opml"
	MediaPath = "/mewe/media"
)

// Feed kinds
const (
	KindMe    = "me"
	KindUser  = "user"
	KindGroup = "group"
)

// Source is the mewe feed source
type Source struct {
	opts *options.Options
	api  *API
}

// New returns a mewe Source. Requests go through a copy of client that
// holds the session from opts.CookieFile.
func New(opts *options.Options, client *upstream.Client) (*Source, error) {
	if opts == nil {
		opts = options.New()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	c, err := client.WithCookieFile(opts.CookieFile)
	if err != nil {
		return nil, err
	}
	base := opts.BaseURL
	if base == "" {
		base = options.DefaultBaseURL
	}
	api, err := NewAPI(c, base, opts.PageDelay())
	if err != nil {
		return nil, err
	}
	return &Source{opts: opts, api: api}, nil
}

// Name returns "mewe"
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
		{FeedPath + `(me|user|group)/(?:(.+)/|)`, s.handleFeed},
		{OPMLPath, s.handleOPML},
		{MediaPath + `/(.*)`, s.handleMedia},
	} {
		route, err := router.NewRoute(r.pattern, r.h)
		if err != nil {
			return nil, err
		}
		rs = append(rs, route)
	}
	return rs, nil
}

// FeedURL returns the address of a feed under base. id is ignored for
// KindMe.
func FeedURL(base *url.URL, kind, id string) string {
	if kind == KindMe {
		return base.JoinPath(FeedPath, KindMe+"/").String()
	}
	return base.JoinPath(FeedPath, kind, id+"/").String()
}

// Outlines returns the home feed. Groups and contacts need the session,
// so they are only listed in mewe.opml.
func (s *Source) Outlines(base *url.URL) []*feed.Outline {
	return []*feed.Outline{homeOutline(base)}
}

func homeOutline(base *url.URL) *feed.Outline {
	return feed.NewOutline("Mewe feeds").AddChild("Home feed", FeedURL(base, KindMe, ""))
}

func queryInt(r *request.Request, key string, def int) int {
	if n, err := strconv.Atoi(r.Query(key)); err == nil && n > 0 {
		return n
	}
	return def
}

func (s *Source) handleFeed(r *request.Request) (*response.Response, error) {
	kind, _ := r.PathParam(1)
	id, hasID := r.PathParam(2)
	ctx := r.Context()

	var info FeedInfo
	var first string
	switch {
	case kind == KindMe:
		info = FeedInfo{Title: "Mewe me feed", Alternate: s.api.MyWorldURL()}
		first = s.api.MyFeedURL()
	case kind == KindUser && hasID:
		c, err := s.api.Contact(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: mewe contact %s: %w", errors.ErrNotFound, id, err)
		}
		info = FeedInfo{Title: c.Name, Alternate: s.api.ProfileURL(id)}
		first = s.api.UserFeedURL(c.ID)
	case kind == KindGroup && hasID:
		g, err := s.api.Group(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("%w: mewe group %s: %w", errors.ErrNotFound, id, err)
		}
		info = FeedInfo{Title: g.Name, Alternate: s.api.GroupURL(id)}
		first = s.api.GroupFeedURL(id)
	default:
		return nil, errors.ErrNotFound
	}

	limit := queryInt(r, "limit", s.opts.Limit)
	pages := queryInt(r, "pages", s.opts.Pages)
	if pageURL := r.Query("page_url"); pageURL != "" {
		var err error
		if first, err = s.api.ResolvePage(pageURL); err != nil {
			return nil, err
		}
		limit, pages = 0, 1
	}

	lists, err := s.api.FetchFeeds(ctx, first, limit, pages)
	if err != nil {
		logger.Warn("mewe feed fetch failed", logging.Pairs{"kind": kind, "id": id, "error": err})
		return nil, err
	}
	self := r.URL()
	f := s.api.ListsToFeed(lists, info, self.String())
	if len(lists) > 0 {
		if href := lists[len(lists)-1].NextPage(); href != "" {
			if next, err := s.api.ResolvePage(href); err == nil {
				u := *self
				q := u.Query()
				q.Set("page_url", next)
				u.RawQuery = q.Encode()
				f.Links = append(f.Links, feed.NewLink(u.String(), feed.RelNext))
			}
		}
	}
	s.api.ProxyMedia(f, r.BaseURL().JoinPath(MediaPath).String())

	b, err := f.Render()
	if err != nil {
		return nil, err
	}
	return response.WithBytes(b).SetContentType(feed.ContentType), nil
}

func (s *Source) handleOPML(r *request.Request) (*response.Response, error) {
	ctx := r.Context()
	groups, err := s.api.Groups(ctx)
	if err != nil {
		return nil, err
	}
	friends, err := s.api.CloseFriends(ctx)
	if err != nil {
		return nil, err
	}
	base := r.BaseURL()
	root := homeOutline(base)
	gf := feed.NewOutline("Groups")
	for _, g := range groups.Confirmed {
		gf.AddChild(g.Name, FeedURL(base, KindGroup, g.ID))
	}
	uf := feed.NewOutline("Users")
	for _, c := range friends {
		uf.AddChild(c.Name, FeedURL(base, KindUser, c.ContactInviteID))
	}
	root.AddOutline(gf, uf)
	b, err := feed.NewOPML("Mewe feed").AddOutline(root).Render()
	if err != nil {
		return nil, err
	}
	return response.WithBytes(b).SetContentType(feed.ContentType), nil
}

// handleMedia proxies a media address under /api/ on the MeWe host with
// the session's cookies
func (s *Source) handleMedia(r *request.Request) (*response.Response, error) {
	path, ok := r.PathParam(1)
	if !ok || !strings.HasPrefix(path, "api/") {
		return nil, errors.ErrNotFound
	}
	u := *s.api.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + path
	u.RawQuery = r.URL().RawQuery
	headers := upstream.ForwardHeaders(r.Headers, s.api.Base()+"/")
	headers.Del("Cookie")
	headers.Del("Authorization")
	resp, err := s.api.Get(r.Context(), u.String(), headers)
	if err != nil {
		return nil, err
	}
	return upstream.ToResponse(resp), nil
}
