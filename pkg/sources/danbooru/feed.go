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

package danbooru

import (
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/any2feed/any2feed/pkg/feed"
)

// ProxyURL returns mediaURL routed through the media proxy at proxy
func ProxyURL(proxy *url.URL, mediaURL string) string {
	u := *proxy
	q := u.Query()
	q.Add("url", mediaURL)
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Source) postContent(p *Post, proxy *url.URL) string {
	src := html.EscapeString(p.SourceURL())
	var sb strings.Builder
	fmt.Fprintf(&sb, "<a href=\"%s\">%s</a>\n", src, src)
	if p.FileURL != "" {
		sample := p.LargeFileURL
		if sample == "" {
			sample = p.FileURL
		}
		if proxy != nil {
			sample = ProxyURL(proxy, sample)
		}
		fmt.Fprintf(&sb, "<img src=\"%s\" alt=\"%s\" />\n",
			html.EscapeString(sample), html.EscapeString(p.TagString))
	}
	return sb.String()
}

// PostToEntry converts a post into a feed entry. Image URLs are routed
// through proxy when it is not nil.
func (s *Source) PostToEntry(p *Post, proxy *url.URL) *feed.Entry {
	created := p.Created()
	e := feed.NewEntry(strconv.Itoa(p.ID), p.TagString, created)
	e.Published = e.Updated
	e.Content = feed.HTML(s.postContent(p, proxy))
	e.Links = append(e.Links, feed.NewLink(s.PostURL(p.ID), feed.RelAlternate))
	for _, t := range strings.Fields(p.TagStringGeneral) {
		e.Categories = append(e.Categories, &feed.Category{Term: t})
	}
	e.Author = &feed.Person{Name: p.TagStringArtist}
	return e
}

// PostsToFeed builds the feed for tag from posts
func (s *Source) PostsToFeed(id, tag string, posts []*Post, proxy *url.URL) *feed.Feed {
	f := feed.New(id, tag)
	f.Updated = feed.FormatTime(time.Now())
	f.Author = &feed.Person{Name: "Danbooru"}
	f.Links = append(f.Links, feed.NewLink(id, feed.RelSelf))
	for _, p := range posts {
		f.AddEntry(s.PostToEntry(p, proxy))
	}
	return f
}
