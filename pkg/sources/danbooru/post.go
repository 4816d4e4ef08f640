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
	"context"
	"net/url"
	"strconv"
	"time"
)

// Post is a danbooru post as returned by /posts.json
type Post struct {
	ID               int    `json:"id"`
	CreatedAt        string `json:"created_at"`
	TagString        string `json:"tag_string"`
	TagStringGeneral string `json:"tag_string_general"`
	TagStringArtist  string `json:"tag_string_artist"`
	Source           string `json:"source"`
	PixivID          *int   `json:"pixiv_id"`
	FileURL          string `json:"file_url"`
	LargeFileURL     string `json:"large_file_url"`
}

// SourceURL is the pixiv artwork page when the post has a pixiv id, and the
// post's own source otherwise
func (p *Post) SourceURL() string {
	if p.PixivID != nil {
		return "https://www.pixiv.net/artworks/" + strconv.Itoa(*p.PixivID)
	}
	return p.Source
}

// Created parses CreatedAt; an unparseable value yields the zero time
func (p *Post) Created() time.Time {
	t, err := time.Parse(time.RFC3339, p.CreatedAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// PostsURL returns the /posts.json URL for tag
func (s *Source) PostsURL(tag string) string {
	v := url.Values{}
	v.Set("tags", tag)
	v.Set("limit", strconv.Itoa(s.opts.Limit))
	return s.opts.BaseURL + "/posts.json?" + v.Encode()
}

// PostURL returns the danbooru page of a post
func (s *Source) PostURL(id int) string {
	return s.opts.BaseURL + "/posts/" + strconv.Itoa(id)
}

// Posts fetches the latest posts tagged tag
func (s *Source) Posts(ctx context.Context, tag string) ([]*Post, error) {
	var posts []*Post
	if err := s.client.GetJSON(ctx, s.PostsURL(tag), &posts); err != nil {
		return nil, err
	}
	return posts, nil
}
