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
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const maxVideoWidth = 640

var (
	markdown = goldmark.New(goldmark.WithExtensions(extension.Strikethrough))

	// @{{u_<user id>}<display name>}
	mentionRe = regexp.MustCompile(`@\{\{u_([\p{L}\p{N}_]+?)\}([\p{L}\p{N}_\s]+?)\}`)
	gfycatRe  = regexp.MustCompile(`(https://thumbs\.gfycat\.com/[^<\s]+)\b`)
)

// MentionsToNames replaces user mentions in text with "@<name>"
func MentionsToNames(text string) string {
	return mentionRe.ReplaceAllString(text, "@${2}")
}

// MentionsToLinks replaces user mentions in s with links to the profiles
func (a *API) MentionsToLinks(s string) string {
	return mentionRe.ReplaceAllString(s, `<a href="`+a.Base()+`/i/id=${1}">@${2}</a>`)
}

// MarkdownToHTML renders post text, with strikethrough, then links mentions
func (a *API) MarkdownToHTML(text string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		buf.Reset()
		buf.WriteString("<p>" + html.EscapeString(text) + "</p>")
	}
	return a.MentionsToLinks(buf.String())
}

// RenderPost returns the HTML body of a post's feed entry. A shared post
// is rendered inline after the text.
func (a *API) RenderPost(p *Post) string {
	var sb strings.Builder
	sb.WriteString(gfycatRe.ReplaceAllString(a.MarkdownToHTML(p.Text), `<p><img src="$1" /></p>`))
	if ref := p.RefPost; ref != nil {
		if ref.User != nil {
			fmt.Fprintf(&sb, `<p><a href="%s">%s</a>`,
				html.EscapeString(a.PostURL(ref)), html.EscapeString(ref.User.Name))
			if ref.Group != nil {
				fmt.Fprintf(&sb, ` - <a href="%s">%s</a>`,
					html.EscapeString(a.GroupURL(ref.Group.ID)), html.EscapeString(ref.Group.Name))
			}
			sb.WriteString("</p>")
		}
		sb.WriteString(a.RenderPost(ref))
	}
	if len(p.Medias) > 0 {
		if p.Album != "" {
			fmt.Fprintf(&sb, "<p>Album: <b>%s</b></p>", html.EscapeString(p.Album))
		}
		for _, m := range p.Medias {
			a.renderMedia(&sb, m)
		}
	}
	for _, f := range p.Files {
		fmt.Fprintf(&sb, `<p>File: <a href="%s">%s (%.2f MB)</a></p>`,
			html.EscapeString(a.FileURL(f)), html.EscapeString(f.FileName), float64(f.Length)/1024/1024)
	}
	if p.Link != nil {
		a.renderLink(&sb, p.Link)
	}
	if p.Poll != nil {
		renderPoll(&sb, p.Poll)
	}
	return sb.String()
}

func (a *API) renderMedia(sb *strings.Builder, m *Media) {
	if m.Photo == nil {
		return
	}
	photo := html.EscapeString(a.PhotoURL(m.Photo))
	if m.Video == nil {
		fmt.Fprintf(sb, `<img src="%s" />`, photo)
		return
	}
	width := m.Photo.Size.Width
	if width <= 0 || width > maxVideoWidth {
		width = maxVideoWidth
	}
	fmt.Fprintf(sb, `<video width="%d" height="auto" controls poster="%s">`+
		`<source src="%s" type="video/mp4" /></video>`,
		width, photo, html.EscapeString(a.VideoURL(m.Video)))
}

func (a *API) renderLink(sb *strings.Builder, l *Link) {
	u := html.EscapeString(l.Links.URL.Href)
	sb.WriteString("<blockquote>")
	fmt.Fprintf(sb, `<p style="white-space:pre-wrap;"><b>%s</b></p>`, html.EscapeString(l.Title))
	fmt.Fprintf(sb, `<p style="white-space:pre-wrap;">URL: <a href="%s">%s</a></p>`, u, u)
	if l.Links.Thumbnail != nil && l.Links.Thumbnail.Href != "" {
		fmt.Fprintf(sb, `<img src="%s" />`, html.EscapeString(l.Links.Thumbnail.Href))
	}
	fmt.Fprintf(sb, `<p style="white-space:pre-wrap;">%s</p>`, html.EscapeString(l.Description))
	sb.WriteString("</blockquote>")
}

func renderPoll(sb *strings.Builder, p *Poll) {
	fmt.Fprintf(sb, "<p>Question: %s<ul>", html.EscapeString(p.Question))
	for _, o := range p.Options {
		fmt.Fprintf(sb, "<li>%s - %d</li>", html.EscapeString(o.Text), o.Votes)
	}
	sb.WriteString("</ul></p>")
}
