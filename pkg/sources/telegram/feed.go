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

package telegram

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/any2feed/any2feed/pkg/feed"
)

// MediaProxyURL returns the media proxy address of a post's media: the post
// ID path under proxy, then "<index>-<field>/", with the fetch time in t and
// the original address in url
func MediaProxyURL(proxy *url.URL, postID string, index int, field, mediaURL string, now time.Time) string {
	elems := append(strings.Split(postID, "/"), fmt.Sprintf("%d-%s/", index, field))
	u := proxy.JoinPath(elems...)
	q := url.Values{}
	q.Set("t", strconv.FormatInt(now.Unix(), 10))
	q.Set("url", mediaURL)
	u.RawQuery = q.Encode()
	return u.String()
}

// SetProxyURLs rewrites every media URL of p to go through the media proxy
func SetProxyURLs(p *Post, proxy *url.URL, now time.Time) {
	for i, m := range p.MediaList() {
		for _, field := range m.Fields() {
			if v := m.Field(field); v != "" {
				m.SetField(field, MediaProxyURL(proxy, p.ID, i, field, v, now))
			}
		}
	}
}

// postTitle joins the trimmed lines of the post text with spaces
func postTitle(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, " ")
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// PostToEntry converts a post into a feed entry. link is the post's public
// address and doubles as the entry ID.
func PostToEntry(p *Post, link string) *feed.Entry {
	e := feed.NewEntry(link, postTitle(p.Text), parseTime(p.Datetime))
	e.Published = e.Updated
	e.Links = append(e.Links, feed.NewLink(link, feed.RelAlternate))
	e.Content = feed.HTML(RenderPost(p))
	return e
}

// ChannelToFeed converts a channel into a feed. Posts are expected to carry
// proxied media URLs already.
func (a *API) ChannelToFeed(ch *Channel, id string) *feed.Feed {
	f := feed.New(id, ch.Title)
	channelURL := a.ChannelURL(ch.Slug)
	author := &feed.Person{Name: ch.Title, URI: channelURL}
	f.Author = author
	f.Links = append(f.Links,
		feed.NewLink(channelURL, feed.RelAlternate),
		feed.NewLink(id, feed.RelSelf))
	f.Logo = ch.ImageURL
	if ch.Description != "" {
		f.Subtitle = feed.Text(ch.Description)
	}
	for _, p := range ch.Posts {
		e := PostToEntry(p, a.PostURL(p.ID))
		e.Author = author
		if p.Author != "" {
			e.Author = &feed.Person{Name: p.Author, URI: channelURL}
		}
		f.AddEntry(e)
	}
	return f
}
