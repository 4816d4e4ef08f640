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
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/any2feed/any2feed/pkg/errors"
	"github.com/any2feed/any2feed/pkg/observability/logging"
	"github.com/any2feed/any2feed/pkg/observability/logging/logger"
	"github.com/any2feed/any2feed/pkg/upstream"
)

// DefaultBaseURL is the public Telegram web preview host
const DefaultBaseURL = "https://t.me"

// API reads public channels through the Telegram web preview
type API struct {
	client *upstream.Client
	base   string
}

// NewAPI returns an API reading from base, or DefaultBaseURL when base is
// empty
func NewAPI(client *upstream.Client, base string) *API {
	if base == "" {
		base = DefaultBaseURL
	}
	return &API{client: client, base: base}
}

// ChannelURL returns the preview page of a channel
func (a *API) ChannelURL(slug string) string {
	return a.base + "/s/" + url.PathEscape(slug)
}

// PostURL returns the public address of a post
func (a *API) PostURL(id string) string {
	return a.base + "/" + id
}

// EmbeddedPostURL returns the embeddable page of a single post
func (a *API) EmbeddedPostURL(slug string, id int) string {
	return fmt.Sprintf("%s/%s/%d?embed=1&mode=tme&userpic=true", a.base, url.PathEscape(slug), id)
}

// FetchChannel reads up to pages preview pages of a channel, oldest posts
// first. A page that is neither a channel nor has posts is ErrNotFound.
func (a *API) FetchChannel(ctx context.Context, slug string, pages int) (*Channel, error) {
	ch, err := a.fetchPage(ctx, slug, a.ChannelURL(slug))
	if err != nil {
		return nil, err
	}
	if ch.Title == "" && len(ch.Posts) == 0 {
		return nil, fmt.Errorf("%w: telegram channel %s", errors.ErrNotFound, slug)
	}
	for i := 1; i < pages; i++ {
		before := ch.oldest()
		if before <= 1 {
			break
		}
		older, err := a.fetchPage(ctx, slug, a.ChannelURL(slug)+"?before="+strconv.Itoa(before))
		if err != nil {
			logger.Warn("telegram page fetch failed", logging.Pairs{
				"channel": slug, "before": before, "error": err,
			})
			break
		}
		if len(older.Posts) == 0 {
			break
		}
		ch.Posts = append(older.Posts, ch.Posts...)
	}
	return ch, nil
}

func (a *API) fetchPage(ctx context.Context, slug, pageURL string) (*Channel, error) {
	b, err := a.client.Fetch(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	return ParseChannel(bytes.NewReader(b), slug)
}

// FetchPost reads the embedded page of one post, bypassing the cache
func (a *API) FetchPost(ctx context.Context, slug string, id int) (*Post, error) {
	u := a.EmbeddedPostURL(slug, id)
	resp, err := a.client.Get(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	if err := upstream.StatusError(u, resp.StatusCode); err != nil {
		return nil, err
	}
	ch, err := ParseChannel(bytes.NewReader(resp.Body), slug)
	if err != nil {
		return nil, err
	}
	if len(ch.Posts) == 0 {
		return nil, fmt.Errorf("%w: telegram post %s/%d", errors.ErrNotFound, slug, id)
	}
	return ch.Posts[0], nil
}

// RefreshMediaURL returns a current address for field of the media at index
// in a post. Media URLs on the preview pages expire.
func (a *API) RefreshMediaURL(ctx context.Context, slug string, id, index int, field string) (string, error) {
	p, err := a.FetchPost(ctx, slug, id)
	if err != nil {
		return "", err
	}
	media := p.MediaList()
	if index < 0 || index >= len(media) {
		return "", fmt.Errorf("%w: media %d of telegram post %s/%d", errors.ErrNotFound, index, slug, id)
	}
	v := media[index].Field(field)
	if v == "" {
		return "", fmt.Errorf("%w: %s of media %d of telegram post %s/%d",
			errors.ErrNotFound, field, index, slug, id)
	}
	return v, nil
}
