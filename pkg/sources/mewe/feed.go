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

package mewe

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/any2feed/any2feed/pkg/feed"
)

// FeedInfo describes the MeWe page a feed mirrors
type FeedInfo struct {
	Title string
	// Alternate is the MeWe web page of the feed. Its path prefixes the
	// entry IDs, so a post shown in several feeds gets one ID per feed.
	Alternate string
}

// PostToEntry converts a post into a feed entry with the given ID
func (a *API) PostToEntry(p *Post, id string) *feed.Entry {
	title := strings.TrimSpace(MentionsToNames(p.Text))
	e := feed.NewEntry(id, title, p.Updated())
	e.Published = feed.FormatTime(p.Created())
	for _, t := range p.HashTags {
		e.Categories = append(e.Categories, &feed.Category{Term: t})
	}
	if p.User != nil {
		e.Author = &feed.Person{Name: p.User.Name}
	}
	if u := a.PostURL(p); u != "" {
		e.Links = append(e.Links, feed.NewLink(u, feed.RelAlternate))
	}
	e.Content = feed.HTML(a.RenderPost(p))
	return e
}

// ListsToFeed converts feed pages into a feed. selfURL is the feed's own
// address and ID.
func (a *API) ListsToFeed(lists []*FeedList, info FeedInfo, selfURL string) *feed.Feed {
	f := feed.New(selfURL, info.Title)
	f.Author = &feed.Person{Name: "Mewe"}
	f.Links = append(f.Links,
		feed.NewLink(info.Alternate, feed.RelAlternate),
		feed.NewLink(selfURL, feed.RelSelf))
	prefix := ""
	if u, err := url.Parse(info.Alternate); err == nil {
		prefix = u.Path
	}
	for _, l := range lists {
		for _, p := range l.Feed {
			f.AddEntry(a.PostToEntry(p, prefix+"/"+p.ID))
		}
	}
	return f
}

func (a *API) mediaRe() *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta(a.Base()) + `(/api/v2/(?:photo|proxy/video|doc/shared)/)`)
}

// ProxyMedia rewrites the media addresses in every entry's content to go
// through proxy
func (a *API) ProxyMedia(f *feed.Feed, proxy string) {
	re := a.mediaRe()
	repl := strings.ReplaceAll(strings.TrimRight(proxy, "/"), "$", "$$") + "${1}"
	for _, e := range f.Entries {
		if e.Content != nil {
			e.Content.Body = re.ReplaceAllString(e.Content.Body, repl)
		}
	}
}
