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
	"strconv"
	"strings"
)

// MediaKind identifies the type of a media attachment
type MediaKind int

// Media kinds
const (
	MediaPhoto MediaKind = iota
	MediaVoice
	MediaVideo
	MediaVideoGif
	// MediaVideoTooBig is a video the preview page only shows a thumbnail of
	MediaVideoTooBig
)

// Media fields addressable through the media proxy
const (
	FieldURL      = "url"
	FieldThumbURL = "thumb_url"
)

// Media is a photo, voice note or video attached to a post
type Media struct {
	Kind     MediaKind
	URL      string
	ThumbURL string
}

// Fields returns the names of the URL fields the media kind carries
func (m *Media) Fields() []string {
	switch m.Kind {
	case MediaVideo, MediaVideoGif:
		return []string{FieldURL, FieldThumbURL}
	case MediaVideoTooBig:
		return []string{FieldThumbURL}
	}
	return []string{FieldURL}
}

// Field returns the URL stored in field, or "" when the kind has no such
// field
func (m *Media) Field(field string) string {
	for _, f := range m.Fields() {
		if f != field {
			continue
		}
		if f == FieldThumbURL {
			return m.ThumbURL
		}
		return m.URL
	}
	return ""
}

// SetField replaces the URL stored in field
func (m *Media) SetField(field, v string) {
	switch field {
	case FieldURL:
		m.URL = v
	case FieldThumbURL:
		m.ThumbURL = v
	}
}

// LinkPreview is the card rendered under a post containing a link
type LinkPreview struct {
	URL         string
	SiteName    string
	Title       string
	Description string
	Media       *Media
}

// ForwardedFrom names the origin of a forwarded post
type ForwardedFrom struct {
	Name string
	URL  string
}

// Poll is a poll attached to a post
type Poll struct {
	Question string
	Type     string
	Options  []PollOption
}

// PollOption is one answer of a Poll with its share of votes
type PollOption struct {
	Name    string
	Percent string
}

// File is a document attached to a post
type File struct {
	Filename string
	Size     string
}

// Post is a single channel message. ID is "<slug>/<number>".
type Post struct {
	ID            string
	Text          string
	HTML          string
	Datetime      string
	Author        string
	Media         []*Media
	Files         []*File
	ForwardedFrom *ForwardedFrom
	LinkPreview   *LinkPreview
	Poll          *Poll
}

// MediaList returns the post's media followed by the link preview media,
// in the order used to number media proxy URLs
func (p *Post) MediaList() []*Media {
	out := make([]*Media, 0, len(p.Media)+1)
	out = append(out, p.Media...)
	if p.LinkPreview != nil && p.LinkPreview.Media != nil {
		out = append(out, p.LinkPreview.Media)
	}
	return out
}

// Number returns the numeric part of the post ID, or 0
func (p *Post) Number() int {
	_, n, ok := strings.Cut(p.ID, "/")
	if !ok {
		return 0
	}
	i, err := strconv.Atoi(n)
	if err != nil {
		return 0
	}
	return i
}

// Channel is a public channel and the posts shown on its preview page
type Channel struct {
	Slug        string
	Title       string
	Description string
	ImageURL    string
	Posts       []*Post
}

// oldest returns the smallest post number on the page, or 0
func (c *Channel) oldest() int {
	first := 0
	for _, p := range c.Posts {
		if n := p.Number(); n > 0 && (first == 0 || n < first) {
			first = n
		}
	}
	return first
}
