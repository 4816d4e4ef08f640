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

// Package sources assembles the configured feed sources into one route
// table, with an index page and a combined OPML document.
package sources

import (
	"bytes"
	"html/template"
	"net/url"

	"github.com/any2feed/any2feed/pkg/config"
	"github.com/any2feed/any2feed/pkg/feed"
	"github.com/any2feed/any2feed/pkg/observability/logging"
	"github.com/any2feed/any2feed/pkg/observability/logging/logger"
	"github.com/any2feed/any2feed/pkg/server/request"
	"github.com/any2feed/any2feed/pkg/server/response"
	"github.com/any2feed/any2feed/pkg/server/router"
	"github.com/any2feed/any2feed/pkg/sources/danbooru"
	"github.com/any2feed/any2feed/pkg/sources/mewe"
	"github.com/any2feed/any2feed/pkg/sources/telegram"
	"github.com/any2feed/any2feed/pkg/upstream"
)

// Route paths
const (
	IndexPath   = "/"
	AllOPMLPath = "/all.opml"
)

// Source is a group of feeds served under its own routes
type Source interface {
	// Name is the source name used in paths and config
	Name() string
	// Routes returns the source's feed, OPML and media routes
	Routes() (router.Routes, error)
	// Outlines lists the source's feeds with absolute URLs under base
	Outlines(base *url.URL) []*feed.Outline
}

// Enabled returns the sources that have a config section, in a fixed order
func Enabled(conf *config.Config, client *upstream.Client) ([]Source, error) {
	var out []Source
	if conf.Danbooru != nil {
		c := client
		if conf.Danbooru.Proxy != "" {
			var err error
			if c, err = client.WithProxy(conf.Danbooru.Proxy); err != nil {
				return nil, err
			}
		}
		s, err := danbooru.New(conf.Danbooru, c)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if conf.Telegram != nil {
		s, err := telegram.New(conf.Telegram, client)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if conf.Mewe != nil {
		s, err := mewe.New(conf.Mewe, client)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	for _, s := range out {
		logger.Info("source enabled", logging.Pairs{"source": s.Name()})
	}
	return out, nil
}

// Routes returns the routes of every source followed by the index and
// the combined OPML routes
func Routes(list []Source) (router.Routes, error) {
	var rs router.Routes
	for _, s := range list {
		r, err := s.Routes()
		if err != nil {
			return nil, err
		}
		rs = append(rs, r...)
	}
	idx := &index{sources: list}
	for _, r := range []struct {
		pattern string
		h       router.HandlerFunc
	}{
		{IndexPath, idx.handleIndex},
		{AllOPMLPath, idx.handleAllOPML},
	} {
		route, err := router.NewRoute(r.pattern, r.h)
		if err != nil {
			return nil, err
		}
		rs = append(rs, route)
	}
	return rs, nil
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>any2feed</title></head>
<body>
<h1>any2feed</h1>
<ul>
{{- range .}}
<li><a href="{{.URL}}">{{.Name}}</a></li>
{{- end}}
</ul>
</body>
</html>
`))

type indexLink struct {
	Name string
	URL  string
}

type index struct {
	sources []Source
}

func (idx *index) handleIndex(r *request.Request) (*response.Response, error) {
	base := r.BaseURL()
	links := make([]indexLink, 0, len(idx.sources)+1)
	for _, s := range idx.sources {
		links = append(links, indexLink{
			Name: s.Name(),
			URL:  base.JoinPath("/" + s.Name() + ".opml").String(),
		})
	}
	links = append(links, indexLink{Name: "all", URL: base.JoinPath(AllOPMLPath).String()})
	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, links); err != nil {
		return nil, err
	}
	return response.WithBytes(buf.Bytes()).SetContentType("text/html; charset=utf-8"), nil
}

func (idx *index) handleAllOPML(r *request.Request) (*response.Response, error) {
	base := r.BaseURL()
	doc := feed.NewOPML("any2feed")
	for _, s := range idx.sources {
		doc.AddOutline(s.Outlines(base)...)
	}
	b, err := doc.Render()
	if err != nil {
		return nil, err
	}
	return response.WithBytes(b).SetContentType(feed.ContentType), nil
}
