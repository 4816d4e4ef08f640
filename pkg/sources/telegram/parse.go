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
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	messagePrefix = "tgme_widget_message_"
	jsPrefix      = "js-"
	previewPrefix = "link_preview_"
)

var backgroundURL = regexp.MustCompile(`background-image\s*:\s*url\(['"](.+?)['"]\)`)

// BackgroundURL extracts the url(...) of a background-image declaration in an
// inline style, or returns ""
func BackgroundURL(style string) string {
	m := backgroundURL.FindStringSubmatch(style)
	if m == nil {
		return ""
	}
	return m[1]
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func attrVal(n *html.Node, key string) string {
	v, _ := attr(n, key)
	return v
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrVal(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// classSuffix returns the remainder of the first class starting with prefix
func classSuffix(n *html.Node, prefix string) string {
	for _, c := range strings.Fields(attrVal(n, "class")) {
		if strings.HasPrefix(c, prefix) {
			return strings.TrimPrefix(c, prefix)
		}
	}
	return ""
}

// walk visits n and its descendants in document order. Children are skipped
// when fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if n.Type == html.ElementNode && !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

// find returns the first element under n with class, or nil
func find(n *html.Node, class string) *html.Node {
	var found *html.Node
	walk(n, func(c *html.Node) bool {
		if found != nil {
			return false
		}
		if hasClass(c, class) {
			found = c
			return false
		}
		return true
	})
	return found
}

// text returns the text content of n; <br> becomes a newline
func text(n *html.Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	var f func(*html.Node)
	f = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			sb.WriteString(n.Data)
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			sb.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return sb.String()
}

// innerHTML renders the children of n
func innerHTML(n *html.Node) string {
	if n == nil {
		return ""
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&sb, c); err != nil {
			break
		}
	}
	return sb.String()
}

// ParseChannel reads a channel preview page, or an embedded post page, into a
// Channel
func ParseChannel(r io.Reader, slug string) (*Channel, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	ch := &Channel{Slug: slug}
	walk(doc, func(n *html.Node) bool {
		if n.DataAtom == atom.Meta {
			prop := attrVal(n, "property")
			switch strings.TrimPrefix(prop, "og:") {
			case "title":
				ch.Title = attrVal(n, "content")
			case "image":
				ch.ImageURL = attrVal(n, "content")
			case "description":
				ch.Description = attrVal(n, "content")
			}
			return false
		}
		if hasClass(n, "js-widget_message") {
			ch.Posts = append(ch.Posts, parseMessage(n))
			return false
		}
		return true
	})
	return ch, nil
}

func parseMessage(n *html.Node) *Post {
	p := &Post{}
	walk(n, func(el *html.Node) bool {
		if el.DataAtom == atom.Time && hasClass(el, "time") && p.Datetime == "" {
			p.Datetime = attrVal(el, "datetime")
		}
		descend := true
		switch classSuffix(el, messagePrefix) {
		case "photo_wrap":
			if u := BackgroundURL(attrVal(el, "style")); u != "" {
				p.Media = append(p.Media, &Media{Kind: MediaPhoto, URL: u})
			}
		case "link_preview":
			p.LinkPreview = parseLinkPreview(el)
			descend = false
		case "forwarded_from_name":
			p.ForwardedFrom = &ForwardedFrom{
				Name: strings.TrimSpace(text(el)),
				URL:  attrVal(el, "href"),
			}
		case "document":
			p.Files = append(p.Files, &File{
				Filename: strings.TrimSpace(text(find(el, messagePrefix+"document_title"))),
				Size:     strings.TrimSpace(text(find(el, messagePrefix+"document_extra"))),
			})
			descend = false
		case "voice":
			if src := attrVal(el, "src"); src != "" {
				p.Media = append(p.Media, &Media{Kind: MediaVoice, URL: src})
			}
		case "poll":
			p.Poll = parsePoll(el)
			descend = false
		case "from_author":
			if p.Author == "" {
				p.Author = strings.TrimSpace(text(el))
			}
		}
		switch classSuffix(el, jsPrefix) {
		case "widget_message":
			p.ID = attrVal(el, "data-post")
		case "message_text":
			p.Text = text(el)
			p.HTML = strings.TrimSpace(innerHTML(el))
		case "message_video_player", "message_roundvideo_player":
			if !hasClass(el, "link_preview_video_player") {
				if m := parseVideo(el); m != nil {
					p.Media = append(p.Media, m)
				}
			}
			descend = false
		}
		return descend
	})
	return p
}

func parseVideo(n *html.Node) *Media {
	var videoURL, thumbURL string
	gif := false
	walk(n, func(el *html.Node) bool {
		switch s := classSuffix(el, messagePrefix); s {
		case "video", "roundvideo":
			videoURL = attrVal(el, "src")
			_, autoplay := attr(el, "autoplay")
			_, loop := attr(el, "loop")
			gif = s == "video" && autoplay && loop
		case "video_thumb", "roundvideo_thumb":
			thumbURL = BackgroundURL(attrVal(el, "style"))
		}
		return true
	})
	switch {
	case videoURL != "" && thumbURL != "" && gif:
		return &Media{Kind: MediaVideoGif, URL: videoURL, ThumbURL: thumbURL}
	case videoURL != "" && thumbURL != "":
		return &Media{Kind: MediaVideo, URL: videoURL, ThumbURL: thumbURL}
	case thumbURL != "":
		return &Media{Kind: MediaVideoTooBig, ThumbURL: thumbURL}
	}
	return nil
}

func parseLinkPreview(n *html.Node) *LinkPreview {
	lp := &LinkPreview{URL: attrVal(n, "href")}
	var imageURL, videoURL, thumbURL string
	walk(n, func(el *html.Node) bool {
		switch classSuffix(el, previewPrefix) {
		case "site_name":
			lp.SiteName = strings.TrimSpace(innerHTML(el))
		case "title":
			lp.Title = strings.TrimSpace(innerHTML(el))
		case "description":
			lp.Description = strings.TrimSpace(innerHTML(el))
		case "image", "right_image":
			imageURL = BackgroundURL(attrVal(el, "style"))
		case "video":
			videoURL = attrVal(el, "src")
		case "video_thumb":
			thumbURL = BackgroundURL(attrVal(el, "style"))
		}
		return true
	})
	switch {
	case imageURL != "" && videoURL == "" && thumbURL == "":
		lp.Media = &Media{Kind: MediaPhoto, URL: imageURL}
	case videoURL != "" && thumbURL != "":
		lp.Media = &Media{Kind: MediaVideo, URL: videoURL, ThumbURL: thumbURL}
	case thumbURL != "":
		lp.Media = &Media{Kind: MediaVideoTooBig, ThumbURL: thumbURL}
	}
	return lp
}

func parsePoll(n *html.Node) *Poll {
	poll := &Poll{}
	walk(n, func(el *html.Node) bool {
		switch classSuffix(el, messagePrefix+"poll_") {
		case "question":
			poll.Question = strings.TrimSpace(innerHTML(el))
		case "type":
			poll.Type = strings.TrimSpace(innerHTML(el))
		case "option":
			poll.Options = append(poll.Options, PollOption{
				Name:    strings.TrimSpace(innerHTML(find(el, messagePrefix+"poll_option_text"))),
				Percent: strings.TrimSpace(innerHTML(find(el, messagePrefix+"poll_option_percent"))),
			})
			return false
		}
		return true
	})
	return poll
}
