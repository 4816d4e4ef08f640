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
	"html"
	"strings"
)

// RenderPost returns the HTML body of a post's feed entry
func RenderPost(p *Post) string {
	var sb strings.Builder
	if f := p.ForwardedFrom; f != nil {
		fmt.Fprintf(&sb, `<a href="%s">Forwarded from %s</a>`,
			html.EscapeString(f.URL), html.EscapeString(f.Name))
	}
	fmt.Fprintf(&sb, "<p>%s</p>", p.HTML)
	for _, m := range p.Media {
		renderMedia(&sb, m)
	}
	for _, f := range p.Files {
		fmt.Fprintf(&sb, "<p>%s (%s)</p>", html.EscapeString(f.Filename), html.EscapeString(f.Size))
	}
	if lp := p.LinkPreview; lp != nil {
		renderLinkPreview(&sb, lp)
	}
	if p.Poll != nil {
		renderPoll(&sb, p.Poll)
	}
	return sb.String()
}

func renderMedia(sb *strings.Builder, m *Media) {
	u := html.EscapeString(m.URL)
	thumb := html.EscapeString(m.ThumbURL)
	switch m.Kind {
	case MediaPhoto:
		fmt.Fprintf(sb, `<img src="%s" />`, u)
	case MediaVoice:
		fmt.Fprintf(sb, `<audio controls src="%s"></audio>`, u)
	case MediaVideo, MediaVideoGif:
		attrs := "controls"
		if m.Kind == MediaVideoGif {
			attrs = "autoplay muted loop playsinline"
		}
		fmt.Fprintf(sb, `<video style="max-width: 800px; height: auto" poster="%s" %s>`+
			`<source src="%s" type="video/mp4" /><object data="%s" /></video>`,
			thumb, attrs, u, u)
	case MediaVideoTooBig:
		fmt.Fprintf(sb, `<p><i>MEDIA TOO BIG</i></p><img src="%s" />`, thumb)
	}
}

func renderLinkPreview(sb *strings.Builder, lp *LinkPreview) {
	u := html.EscapeString(lp.URL)
	sb.WriteString("<blockquote>")
	fmt.Fprintf(sb, `<p style="white-space:pre-wrap;"><b>%s</b></p>`, lp.Title)
	fmt.Fprintf(sb, `<p style="white-space:pre-wrap;">%s: <a href="%s">%s</a></p>`,
		lp.SiteName, u, u)
	if lp.Media != nil {
		renderMedia(sb, lp.Media)
	}
	fmt.Fprintf(sb, `<p style="white-space:pre-wrap;">%s</p>`, lp.Description)
	sb.WriteString("</blockquote>")
}

func renderPoll(sb *strings.Builder, p *Poll) {
	fmt.Fprintf(sb, "<p><span>%s: %s</span><ul>", p.Type, p.Question)
	for _, o := range p.Options {
		fmt.Fprintf(sb, "<li>%s - %s</li>", o.Name, o.Percent)
	}
	sb.WriteString("</ul></p>")
}
