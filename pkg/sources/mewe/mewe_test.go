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
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/any2feed/any2feed/pkg/errors"
	"github.com/any2feed/any2feed/pkg/feed"
	"github.com/any2feed/any2feed/pkg/server/request"
	"github.com/any2feed/any2feed/pkg/server/response"
	"github.com/any2feed/any2feed/pkg/server/router"
	"github.com/any2feed/any2feed/pkg/sources/mewe/options"
	"github.com/any2feed/any2feed/pkg/upstream"

	"github.com/stretchr/testify/require"
)

const testAddr = "127.0.0.1:12345"

func fixture(t *testing.T, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(b)
}

// testMewe serves the fixtures and records what each request carried
type testMewe struct {
	*httptest.Server
	mtx     sync.Mutex
	csrf    map[string]string
	headers map[string]http.Header
	queries map[string]url.Values
	anon    bool
}

func (tm *testMewe) record(r *http.Request) {
	tm.mtx.Lock()
	defer tm.mtx.Unlock()
	tm.csrf[r.URL.Path] = r.Header.Get(csrfHeader)
	tm.headers[r.URL.Path] = r.Header.Clone()
	tm.queries[r.URL.Path] = r.URL.Query()
}

func (tm *testMewe) csrfFor(path string) string {
	tm.mtx.Lock()
	defer tm.mtx.Unlock()
	return tm.csrf[path]
}

func (tm *testMewe) headerFor(path string) http.Header {
	tm.mtx.Lock()
	defer tm.mtx.Unlock()
	return tm.headers[path]
}

func (tm *testMewe) queryFor(path string) url.Values {
	tm.mtx.Lock()
	defer tm.mtx.Unlock()
	return tm.queries[path]
}

func newTestMewe(t *testing.T) *testMewe {
	files := map[string]string{
		"/api/v2/home/allfeed":            "allfeed.json",
		"/api/v2/home/user/u2/postsfeed":  "user_feed.json",
		"/api/v3/group/g1/postsfeed":      "group_feed.json",
		"/api/v2/groups":                  "groups.json",
		"/api/v2/mycontacts/closefriends": "closefriends.json",
	}
	bodies := make(map[string]string, len(files))
	for path, name := range files {
		bodies[path] = fixture(t, name)
	}
	before := fixture(t, "allfeed_before.json")

	tm := &testMewe{
		csrf:    make(map[string]string),
		headers: make(map[string]http.Header),
		queries: make(map[string]url.Values),
	}
	tm.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tm.record(r)
		q := r.URL.Query()
		switch path := r.URL.Path; {
		case path == "/api/v3/auth/identify":
			http.SetCookie(w, &http.Cookie{Name: csrfCookie, Value: "fresh", Path: "/"})
			tm.mtx.Lock()
			anon := tm.anon
			tm.mtx.Unlock()
			fmt.Fprintf(w, `{"authenticated": %t, "confirmed": true}`, !anon)
		case path == "/api/v2/home/allfeed" && q.Get("before") == "p2":
			w.Write([]byte(before))
		case path == "/api/v2/mycontacts/closefriends" && q.Get("offset") != "":
			w.Write([]byte(`{"contacts": []}`))
		case path == "/api/v2/mycontacts/user" && q.Get("inviteId") == "jane":
			w.Write([]byte(`{"id": "u2", "name": "Jane Doe", "contactInviteId": "jane"}`))
		case path == "/api/v2/group/g1":
			w.Write([]byte(`{"id": "g1", "name": "Cats", "descriptionPlain": "All cats"}`))
		case path == "/api/v2/photo/ph1/200x300/img":
			w.Header().Set("Content-Type", q.Get("mime"))
			w.Header().Set("Cache-Control", "max-age=3600")
			if r.Header.Get("Range") == "bytes=0-3" {
				w.Header().Set("Content-Range", "bytes 0-3/8")
				w.WriteHeader(http.StatusPartialContent)
				w.Write([]byte("jpeg"))
				return
			}
			w.Write([]byte("jpegdata"))
		case path == "/api/v2/photo/broken/img":
			http.Error(w, "boom", http.StatusBadGateway)
		default:
			if b, ok := bodies[path]; ok {
				w.Write([]byte(b))
				return
			}
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(tm.Close)
	return tm
}

func writeCookies(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cookies.txt")
	require.NoError(t, os.WriteFile(path,
		[]byte("127.0.0.1\tFALSE\t/\tFALSE\t0\tcsrf-token\tstale\n"), 0o600))
	return path
}

func newTestSource(t *testing.T, base string) (*Source, string) {
	t.Helper()
	c, err := upstream.New(nil, nil, 0, nil)
	require.NoError(t, err)
	o := options.New()
	o.BaseURL = base
	o.CookieFile = writeCookies(t)
	o.PageDelayMS = -1
	s, err := New(o, c)
	require.NoError(t, err)
	return s, o.CookieFile
}

func serve(t *testing.T, s *Source, target string, headers ...string) (*response.Response, error) {
	t.Helper()
	routes, err := s.Routes()
	require.NoError(t, err)
	req, err := request.Parse(append([]string{"GET " + target + " HTTP/1.1"}, headers...), testAddr)
	require.NoError(t, err)
	route, params, ok := router.New(routes...).Resolve(req.Path)
	if !ok {
		return nil, errors.ErrNotFound
	}
	req.PathParams = params
	return route.Run(req)
}

func serveFeed(t *testing.T, s *Source, target string) *feed.Feed {
	t.Helper()
	resp, err := serve(t, s, target)
	require.NoError(t, err)
	require.Equal(t, feed.ContentType, resp.ContentType)
	var f feed.Feed
	require.NoError(t, xml.Unmarshal(resp.Content, &f))
	return &f
}

func link(links []*feed.Link, rel string) string {
	for _, l := range links {
		if l.Rel == rel {
			return l.Href
		}
	}
	return ""
}

func TestMentions(t *testing.T) {
	text := "hi @{{u_5c26fe32dfd8gff8f7657c}Пользователь пользователя}!"
	require.Equal(t, "hi @Пользователь пользователя!", MentionsToNames(text))
	a, err := NewAPI(nil, "https://mewe.com/", 0)
	require.NoError(t, err)
	require.Equal(t,
		`hi <a href="https://mewe.com/i/id=5c26fe32dfd8gff8f7657c">@Пользователь пользователя</a>!`,
		a.MentionsToLinks(text))
	require.Equal(t, "no mention", MentionsToNames("no mention"))
}

func TestMarkdownToHTML(t *testing.T) {
	a, err := NewAPI(nil, "https://mewe.com", 0)
	require.NoError(t, err)
	require.Equal(t,
		"<p>Hello world, this is a <del>complicated</del> <em>very simple</em> example.</p>\n",
		a.MarkdownToHTML("Hello world, this is a ~~complicated~~ *very simple* example."))
}

func TestFillTemplate(t *testing.T) {
	require.Equal(t, "/api/v2/photo/k/200x300/img?static=0",
		fillTemplate("/api/v2/photo/k/{imageSize}/img?static={static}",
			map[string]string{"imageSize": "200x300", "static": "0"}))
}

func TestResolvePage(t *testing.T) {
	a, err := NewAPI(nil, "https://mewe.com", 0)
	require.NoError(t, err)
	u, err := a.ResolvePage("/api/v2/home/allfeed?before=x")
	require.NoError(t, err)
	require.Equal(t, "https://mewe.com/api/v2/home/allfeed?before=x", u)
	u, err = a.ResolvePage("https://mewe.com/api/v2/home/allfeed")
	require.NoError(t, err)
	require.Equal(t, "https://mewe.com/api/v2/home/allfeed", u)
	_, err = a.ResolvePage("https://elsewhere.example/api")
	require.ErrorIs(t, err, errors.ErrInvalidRequest)
	_, err = a.ResolvePage("http://mewe.com/api")
	require.ErrorIs(t, err, errors.ErrInvalidRequest)
}

func TestMyFeed(t *testing.T) {
	tm := newTestMewe(t)
	s, cookieFile := newTestSource(t, tm.URL)

	f := serveFeed(t, s, "/mewe/feed/me/?pages=2")
	require.Equal(t, "Mewe me feed", f.Title)
	require.Equal(t, "http://"+testAddr+"/mewe/feed/me/?pages=2", f.ID)
	require.Equal(t, tm.URL+"/myworld", link(f.Links, feed.RelAlternate))
	require.Equal(t, f.ID, link(f.Links, feed.RelSelf))
	require.Empty(t, link(f.Links, feed.RelNext))
	require.Len(t, f.Entries, 3)

	e := f.Entries[0]
	require.Equal(t, "/myworld/p1", e.ID)
	require.Equal(t, "Hello ~~old~~ *new* @Jane Doe", e.Title)
	require.Equal(t, "2023-11-14T22:16:40Z", e.Updated)
	require.Equal(t, "2023-11-14T22:13:20Z", e.Published)
	require.Equal(t, "John Smith", e.Author.Name)
	require.Equal(t, tm.URL+"/i/john", link(e.Links, feed.RelAlternate))
	require.Len(t, e.Categories, 1)
	require.Equal(t, "cats", e.Categories[0].Term)

	media := "http://" + testAddr + "/mewe/media"
	body := e.Content.Body
	require.Equal(t, feed.ContentHTML, e.Content.Type)
	require.Contains(t, body, "<del>old</del> <em>new</em>")
	require.Contains(t, body, `<a href="`+tm.URL+`/i/id=u2">@Jane Doe</a>`)
	require.Contains(t, body, "<p>Album: <b>Summer</b></p>")
	require.Contains(t, body, `<img src="`+media+`/api/v2/photo/ph1/200x300/img?static=0&amp;mime=image/jpeg" />`)
	require.Contains(t, body, `<video width="640" height="auto" controls poster="`+media+
		`/api/v2/photo/ph2/200x300/img?static=0&amp;mime=image/png">`)
	require.Contains(t, body, `<source src="`+media+
		`/api/v2/proxy/video/shared/v1/original/clip.mp4?_dummy=1&amp;mime=video/mp4&amp;name=clip.mp4" type="video/mp4" />`)
	require.Contains(t, body, `<p>File: <a href="`+media+`/api/v2/doc/shared/f1/doc.pdf">doc.pdf (1.50 MB)</a></p>`)
	require.Contains(t, body, `URL: <a href="https://example.com/a">https://example.com/a</a>`)
	require.Contains(t, body, `<img src="https://example.com/thumb.png" />`)
	require.NotContains(t, body, tm.URL+"/api/")

	e = f.Entries[1]
	require.Equal(t, "/myworld/p2", e.ID)
	require.Equal(t, feed.NoTitle, e.Title)
	require.Equal(t, "Jane Doe", e.Author.Name)
	require.Equal(t, tm.URL+"/group/g1/profile/u2", link(e.Links, feed.RelAlternate))
	require.Contains(t, e.Content.Body, `<p><a href="`+tm.URL+`/i/john">John Smith</a></p><p>shared text</p>`)
	require.Contains(t, e.Content.Body, "<p>Question: Best?<ul><li>A - 3</li><li>B - 1</li></ul></p>")

	require.Equal(t, "/myworld/p3", f.Entries[2].ID)

	// the session cookie set by identify is sent back and saved
	require.Equal(t, "stale", tm.csrfFor("/api/v3/auth/identify"))
	require.Equal(t, "fresh", tm.csrfFor("/api/v2/home/allfeed"))
	b, err := os.ReadFile(cookieFile)
	require.NoError(t, err)
	require.Contains(t, string(b), "csrf-token\tfresh")
	require.NotContains(t, string(b), "stale")
}

func TestFeedPagination(t *testing.T) {
	tm := newTestMewe(t)
	s, _ := newTestSource(t, tm.URL)

	f := serveFeed(t, s, "/mewe/feed/me/?limit=5")
	require.Len(t, f.Entries, 2)
	require.Equal(t, "5", tm.queryFor("/api/v2/home/allfeed").Get("limit"))

	next := link(f.Links, feed.RelNext)
	require.NotEmpty(t, next)
	u, err := url.Parse(next)
	require.NoError(t, err)
	require.Equal(t, testAddr, u.Host)
	require.Equal(t, "/mewe/feed/me/", u.Path)
	require.Equal(t, tm.URL+"/api/v2/home/allfeed?before=p2", u.Query().Get("page_url"))
	require.Equal(t, "5", u.Query().Get("limit"))

	f = serveFeed(t, s, strings.TrimPrefix(next, "http://"+testAddr))
	require.Len(t, f.Entries, 1)
	require.Equal(t, "/myworld/p3", f.Entries[0].ID)
	require.Empty(t, link(f.Links, feed.RelNext))

	_, err = serve(t, s, "/mewe/feed/me/?page_url="+url.QueryEscape("https://elsewhere.example/api/v2/home/allfeed"))
	require.ErrorIs(t, err, errors.ErrInvalidRequest)
}

func TestUserAndGroupFeeds(t *testing.T) {
	tm := newTestMewe(t)
	s, _ := newTestSource(t, tm.URL)

	f := serveFeed(t, s, "/mewe/feed/user/jane/")
	require.Equal(t, "Jane Doe", f.Title)
	require.Equal(t, tm.URL+"/i/jane", link(f.Links, feed.RelAlternate))
	require.Len(t, f.Entries, 1)
	require.Equal(t, "/i/jane/p4", f.Entries[0].ID)
	require.Equal(t, tm.URL+"/i/jane", link(f.Entries[0].Links, feed.RelAlternate))

	f = serveFeed(t, s, "/mewe/feed/group/g1/")
	require.Equal(t, "Cats", f.Title)
	require.Equal(t, tm.URL+"/group/g1", link(f.Links, feed.RelAlternate))
	require.Len(t, f.Entries, 1)
	require.Equal(t, "/group/g1/p5", f.Entries[0].ID)
	require.Equal(t, tm.URL+"/group/g1/profile/u1", link(f.Entries[0].Links, feed.RelAlternate))

	for _, target := range []string{
		"/mewe/feed/user/nobody/",
		"/mewe/feed/group/g9/",
		"/mewe/feed/user/",
		"/mewe/feed/other/",
	} {
		_, err := serve(t, s, target)
		require.ErrorIs(t, err, errors.ErrNotFound, target)
	}
}

func TestUnauthenticated(t *testing.T) {
	tm := newTestMewe(t)
	tm.mtx.Lock()
	tm.anon = true
	tm.mtx.Unlock()
	s, _ := newTestSource(t, tm.URL)
	_, err := serve(t, s, "/mewe/feed/me/")
	require.ErrorIs(t, err, errors.ErrUnauthenticated)
}

func TestOPML(t *testing.T) {
	tm := newTestMewe(t)
	s, _ := newTestSource(t, tm.URL)

	resp, err := serve(t, s, "/mewe.opml")
	require.NoError(t, err)
	require.Equal(t, feed.ContentType, resp.ContentType)
	var doc feed.OPML
	require.NoError(t, xml.Unmarshal(resp.Content, &doc))
	require.Equal(t, "Mewe feed", doc.Title)
	require.Len(t, doc.Outlines, 1)
	root := doc.Outlines[0]
	require.Equal(t, "Mewe feeds", root.Title)
	require.Len(t, root.Outlines, 3)
	require.Equal(t, "Home feed", root.Outlines[0].Title)
	require.Equal(t, "http://"+testAddr+"/mewe/feed/me/", root.Outlines[0].XMLURL)
	groups, users := root.Outlines[1], root.Outlines[2]
	require.Equal(t, "Groups", groups.Title)
	require.Len(t, groups.Outlines, 1)
	require.Equal(t, "Cats", groups.Outlines[0].Title)
	require.Equal(t, "http://"+testAddr+"/mewe/feed/group/g1/", groups.Outlines[0].XMLURL)
	require.Equal(t, "Users", users.Title)
	require.Len(t, users.Outlines, 1)
	require.Equal(t, "Jane Doe", users.Outlines[0].Title)
	require.Equal(t, "http://"+testAddr+"/mewe/feed/user/jane/", users.Outlines[0].XMLURL)

	q := tm.queryFor("/api/v2/mycontacts/closefriends")
	require.Equal(t, "21", q.Get("maxResults"))
	require.Equal(t, "21", q.Get("offset"))

	base, _ := url.Parse("http://" + testAddr + "/")
	outlines := s.Outlines(base)
	require.Len(t, outlines, 1)
	require.Len(t, outlines[0].Outlines, 1)
	require.Equal(t, "http://"+testAddr+"/mewe/feed/me/", outlines[0].Outlines[0].XMLURL)
}

func TestMediaProxy(t *testing.T) {
	tm := newTestMewe(t)
	s, _ := newTestSource(t, tm.URL)
	target := "/mewe/media/api/v2/photo/ph1/200x300/img?static=0&mime=image/jpeg"

	resp, err := serve(t, s, target, "Cookie: reader=1", "User-Agent: reader/1.0")
	require.NoError(t, err)
	require.Equal(t, uint16(200), resp.Status)
	require.Equal(t, "image/jpeg", resp.ContentType)
	require.Equal(t, "jpegdata", string(resp.Content))
	require.Equal(t, "max-age=3600", resp.Headers["Cache-Control"])

	h := tm.headerFor("/api/v2/photo/ph1/200x300/img")
	require.Equal(t, "stale", h.Get(csrfHeader))
	require.Equal(t, tm.URL+"/", h.Get("Referer"))
	require.Equal(t, "reader/1.0", h.Get("User-Agent"))
	require.NotContains(t, h.Get("Cookie"), "reader=1")
	require.Contains(t, h.Get("Cookie"), "csrf-token=stale")
	require.Equal(t, "0", tm.queryFor("/api/v2/photo/ph1/200x300/img").Get("static"))

	resp, err = serve(t, s, target, "Range: bytes=0-3")
	require.NoError(t, err)
	require.Equal(t, uint16(206), resp.Status)
	require.Equal(t, "bytes 0-3/8", resp.Headers["Content-Range"])
	require.Equal(t, "jpeg", string(resp.Content))

	_, err = serve(t, s, "/mewe/media/api/v2/photo/missing/img")
	require.ErrorIs(t, err, errors.ErrNotFound)
	_, err = serve(t, s, "/mewe/media/api/v2/photo/broken/img")
	require.ErrorIs(t, err, errors.ErrUpstreamStatus)
	require.NotErrorIs(t, err, errors.ErrNotFound)
	_, err = serve(t, s, "/mewe/media/etc/passwd")
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestPageDelayCanceled(t *testing.T) {
	tm := newTestMewe(t)
	c, err := upstream.New(nil, nil, 0, nil)
	require.NoError(t, err)
	c, err = c.WithCookieFile(writeCookies(t))
	require.NoError(t, err)
	a, err := NewAPI(c, tm.URL, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for tm.queryFor("/api/v2/home/allfeed") == nil {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()
	_, err = a.FetchFeeds(ctx, a.MyFeedURL(), 0, 2)
	require.ErrorIs(t, err, context.Canceled)
}

func TestOptions(t *testing.T) {
	o := options.New()
	require.ErrorIs(t, o.Validate(), errors.ErrInvalidOptions)
	o.CookieFile = "cookies.txt"
	require.NoError(t, o.Validate())
	require.Equal(t, options.DefaultPageDelayMS*time.Millisecond, o.PageDelay())
	o.PageDelayMS = -1
	require.Zero(t, o.PageDelay())
	o.PageDelayMS = 250
	require.Equal(t, 250*time.Millisecond, o.PageDelay())

	o2 := o.Clone()
	o2.Limit = -1
	require.ErrorIs(t, o2.Validate(), errors.ErrInvalidOptions)
	require.NoError(t, o.Validate())
	o2 = o.Clone()
	o2.BaseURL = "mewe.com"
	require.ErrorIs(t, o2.Validate(), errors.ErrInvalidOptions)
}
