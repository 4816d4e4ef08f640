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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/any2feed/any2feed/pkg/errors"
	"github.com/any2feed/any2feed/pkg/observability/logging"
	"github.com/any2feed/any2feed/pkg/observability/logging/logger"
	"github.com/any2feed/any2feed/pkg/upstream"
)

const (
	csrfCookie = "csrf-token"
	csrfHeader = "X-CSRF-Token"

	contactsPageSize = 21
	contactsMaxPages = 20
)

// API reads a signed in MeWe session. The client must carry the session's
// cookie jar.
type API struct {
	client *upstream.Client
	base   *url.URL
	delay  time.Duration
}

// NewAPI returns an API for the MeWe host at base
func NewAPI(client *upstream.Client, base string, pageDelay time.Duration) (*API, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, err
	}
	return &API{client: client, base: u, delay: pageDelay}, nil
}

// Base returns the MeWe host without a trailing slash
func (a *API) Base() string {
	return a.base.String()
}

func (a *API) apiURL(path string) string {
	return a.Base() + "/api" + path
}

// MyFeedURL returns the first page of the signed in user's home feed
func (a *API) MyFeedURL() string {
	return a.apiURL("/v2/home/allfeed")
}

// UserFeedURL returns the first page of a user's posts
func (a *API) UserFeedURL(userID string) string {
	return a.apiURL("/v2/home/user/" + url.PathEscape(userID) + "/postsfeed")
}

// GroupFeedURL returns the first page of a group's posts
func (a *API) GroupFeedURL(groupID string) string {
	return a.apiURL("/v3/group/" + url.PathEscape(groupID) + "/postsfeed")
}

// MyWorldURL returns the web page of the home feed
func (a *API) MyWorldURL() string {
	return a.Base() + "/myworld"
}

// ProfileURL returns the web page of a contact
func (a *API) ProfileURL(inviteID string) string {
	return a.Base() + "/i/" + inviteID
}

// GroupURL returns the web page of a group
func (a *API) GroupURL(groupID string) string {
	return a.Base() + "/group/" + groupID
}

// PostURL returns the web page a post is shown on, or "" when the author
// is unknown
func (a *API) PostURL(p *Post) string {
	switch {
	case p.GroupID != "":
		return a.GroupURL(p.GroupID) + "/profile/" + p.UserID
	case p.User != nil && p.User.ContactInviteID != "":
		return a.ProfileURL(p.User.ContactInviteID)
	}
	return ""
}

// PhotoURL returns the address of a photo at its feed size
func (a *API) PhotoURL(p *Photo) string {
	return a.Base() + fillTemplate(p.Links.Img.Href, map[string]string{
		"imageSize": "200x300",
		"static":    "0",
	}) + "&mime=" + p.Mime
}

// VideoURL returns the address of a video at its original resolution
func (a *API) VideoURL(v *Video) string {
	return a.Base() + fillTemplate(v.Links.LinkTemplate.Href, map[string]string{
		"resolution": "original",
	}) + "&mime=video/mp4&name=" + v.Name
}

// FileURL returns the download address of a file
func (a *API) FileURL(f *File) string {
	return a.Base() + f.Links.URL.Href
}

// ResolvePage turns a next page href into an absolute URL. Addresses off
// the MeWe host are ErrInvalidRequest.
func (a *API) ResolvePage(href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("%w: bad page url %q", errors.ErrInvalidRequest, href)
	}
	u := a.base.ResolveReference(ref)
	if u.Host != a.base.Host || u.Scheme != a.base.Scheme {
		return "", fmt.Errorf("%w: page url %q is not on %s", errors.ErrInvalidRequest, href, a.base.Host)
	}
	return u.String(), nil
}

// Header returns the headers sent with every API request
func (a *API) Header() http.Header {
	h := http.Header{}
	for _, c := range a.client.Cookies(a.base) {
		if strings.EqualFold(c.Name, csrfCookie) {
			h.Set(csrfHeader, c.Value)
			break
		}
	}
	return h
}

// Get performs a GET with header plus the session headers, which take
// precedence. Cookies set by MeWe are written back to the cookie file. A
// non-2xx status is an error.
func (a *API) Get(ctx context.Context, rawURL string, header http.Header) (*upstream.Response, error) {
	h := make(http.Header, len(header)+2)
	for k, vals := range header {
		h[k] = vals
	}
	for k, vals := range a.Header() {
		h[k] = vals
	}
	resp, err := a.client.Get(ctx, rawURL, h)
	if err != nil {
		return nil, err
	}
	if len(resp.Header.Values("Set-Cookie")) > 0 {
		if err := a.client.SaveCookies(a.base); err != nil {
			logger.Warn("mewe cookie save failed", logging.Pairs{"error": err})
		}
	}
	if err := upstream.StatusError(rawURL, resp.StatusCode); err != nil {
		logger.Error("mewe api request failed", logging.Pairs{
			"url": rawURL, "status": resp.StatusCode, "body": truncate(string(resp.Body), 200),
		})
		return nil, err
	}
	return resp, nil
}

func (a *API) getJSON(ctx context.Context, rawURL string, v any) error {
	resp, err := a.Get(ctx, rawURL, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

// Identify checks that the session is signed in
func (a *API) Identify(ctx context.Context) error {
	var id Identity
	if err := a.getJSON(ctx, a.apiURL("/v3/auth/identify"), &id); err != nil {
		return err
	}
	if !id.Authenticated {
		logger.Error("mewe identify failed", logging.Pairs{"confirmed": id.Confirmed})
		return errors.ErrUnauthenticated
	}
	logger.Debug("mewe identify", logging.Pairs{"confirmed": id.Confirmed})
	return nil
}

// FetchFeeds identifies the session and then reads up to pages pages
// starting at pageURL. limit, when positive, sets the page size. Reading
// stops early at the last page.
func (a *API) FetchFeeds(ctx context.Context, pageURL string, limit, pages int) ([]*FeedList, error) {
	if err := a.Identify(ctx); err != nil {
		return nil, err
	}
	if pages < 1 {
		pages = 1
	}
	out := make([]*FeedList, 0, pages)
	next := pageURL
	for i := 0; i < pages && next != ""; i++ {
		if i > 0 && a.delay > 0 {
			select {
			case <-time.After(a.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		l, err := a.fetchFeed(ctx, next, limit)
		if err != nil {
			return nil, err
		}
		l.Fill()
		out = append(out, l)
		next = ""
		if href := l.NextPage(); href != "" {
			if next, err = a.ResolvePage(href); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (a *API) fetchFeed(ctx context.Context, pageURL string, limit int) (*FeedList, error) {
	if limit > 0 {
		u, err := url.Parse(pageURL)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		q.Set("limit", strconv.Itoa(limit))
		u.RawQuery = q.Encode()
		pageURL = u.String()
	}
	logger.Debug("mewe feed page", logging.Pairs{"url": pageURL})
	l := &FeedList{}
	if err := a.getJSON(ctx, pageURL, l); err != nil {
		return nil, err
	}
	return l, nil
}

// Contact looks a contact up by invite ID
func (a *API) Contact(ctx context.Context, inviteID string) (*Contact, error) {
	c := &Contact{}
	if err := a.getJSON(ctx, a.apiURL("/v2/mycontacts/user?inviteId="+url.QueryEscape(inviteID)), c); err != nil {
		return nil, err
	}
	return c, nil
}

// Group returns a group's details
func (a *API) Group(ctx context.Context, groupID string) (*Group, error) {
	g := &Group{}
	if err := a.getJSON(ctx, a.apiURL("/v2/group/"+url.PathEscape(groupID)), g); err != nil {
		return nil, err
	}
	return g, nil
}

// Groups returns the groups of the signed in user
func (a *API) Groups(ctx context.Context) (*GroupList, error) {
	gl := &GroupList{}
	if err := a.getJSON(ctx, a.apiURL("/v2/groups"), gl); err != nil {
		return nil, err
	}
	return gl, nil
}

// CloseFriends returns the signed in user's close friends, reading pages
// until one comes back empty
func (a *API) CloseFriends(ctx context.Context) ([]*Contact, error) {
	var out []*Contact
	for i := 0; i < contactsMaxPages; i++ {
		u := a.apiURL("/v2/mycontacts/closefriends?maxResults=" + strconv.Itoa(contactsPageSize))
		if i > 0 {
			u += "&offset=" + strconv.Itoa(i*contactsPageSize)
		}
		var cl ContactList
		if err := a.getJSON(ctx, u, &cl); err != nil {
			return nil, err
		}
		if len(cl.Contacts) == 0 {
			break
		}
		for _, c := range cl.Contacts {
			if c.User != nil {
				out = append(out, c.User)
			}
		}
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
