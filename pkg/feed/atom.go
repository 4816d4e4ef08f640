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

// Package feed renders Atom 1.0 feeds and OPML subscription lists
package feed

import (
	"encoding/xml"
	"time"
	"unicode/utf8"
)

// AtomNamespace is the Atom 1.0 XML namespace
const AtomNamespace = "http://www.w3.org/2005/Atom"

// ContentType is sent with rendered feeds and OPML documents
const ContentType = "text/xml"

const (
	// NoTitle replaces an empty entry title
	NoTitle = "no title"
	// MaxTitleLen is the byte length above which entry titles are truncated
	MaxTitleLen = 60
	// TruncatedTitleLen is the number of characters kept from a long title
	TruncatedTitleLen = 55
)

// Content types
const (
	ContentText = "text"
	ContentHTML = "html"
)

// Link relations
const (
	RelAlternate = "alternate"
	RelEnclosure = "enclosure"
	RelNext      = "next"
	RelRelated   = "related"
	RelSelf      = "self"
	RelVia       = "via"
)

// Feed is an Atom feed document
type Feed struct {
	XMLName    xml.Name    `xml:"feed"`
	Namespace  string      `xml:"xmlns,attr"`
	ID         string      `xml:"id"`
	Title      string      `xml:"title"`
	Updated    string      `xml:"updated"`
	Author     *Person     `xml:"author,omitempty"`
	Links      []*Link     `xml:"link"`
	Categories []*Category `xml:"category"`
	Generator  *Generator  `xml:"generator,omitempty"`
	Icon       string      `xml:"icon,omitempty"`
	Logo       string      `xml:"logo,omitempty"`
	Subtitle   *Content    `xml:"subtitle,omitempty"`
	Entries    []*Entry    `xml:"entry"`
}

// Entry is a single Atom entry
type Entry struct {
	ID         string      `xml:"id"`
	Title      string      `xml:"title"`
	Updated    string      `xml:"updated"`
	Published  string      `xml:"published,omitempty"`
	Author     *Person     `xml:"author,omitempty"`
	Links      []*Link     `xml:"link"`
	Categories []*Category `xml:"category"`
	Summary    *Content    `xml:"summary,omitempty"`
	Content    *Content    `xml:"content,omitempty"`
}

// Person is an Atom author or contributor
type Person struct {
	Name  string `xml:"name"`
	URI   string `xml:"uri,omitempty"`
	Email string `xml:"email,omitempty"`
}

// Link is an Atom link
type Link struct {
	Href     string `xml:"href,attr"`
	Rel      string `xml:"rel,attr,omitempty"`
	Type     string `xml:"type,attr,omitempty"`
	Title    string `xml:"title,attr,omitempty"`
	Length   int    `xml:"length,attr,omitempty"`
	HrefLang string `xml:"hreflang,attr,omitempty"`
}

// Category is an Atom category
type Category struct {
	Term   string `xml:"term,attr"`
	Scheme string `xml:"scheme,attr,omitempty"`
	Label  string `xml:"label,attr,omitempty"`
}

// Generator names the software that produced the feed
type Generator struct {
	Name    string `xml:",chardata"`
	URI     string `xml:"uri,attr,omitempty"`
	Version string `xml:"version,attr,omitempty"`
}

// Content is text or escaped HTML
type Content struct {
	Type string `xml:"type,attr"`
	Body string `xml:",chardata"`
}

// New returns a Feed with its namespace set and Updated set to now
func New(id, title string) *Feed {
	return &Feed{
		Namespace: AtomNamespace,
		ID:        id,
		Title:     title,
		Updated:   FormatTime(time.Now()),
	}
}

// NewEntry returns an Entry. An empty title becomes NoTitle; a title longer
// than MaxTitleLen bytes is cut to TruncatedTitleLen characters plus "...".
func NewEntry(id, title string, updated time.Time) *Entry {
	return &Entry{
		ID:      id,
		Title:   entryTitle(title),
		Updated: FormatTime(updated),
	}
}

func entryTitle(title string) string {
	if title == "" {
		return NoTitle
	}
	if len(title) <= MaxTitleLen {
		return title
	}
	if utf8.RuneCountInString(title) <= TruncatedTitleLen {
		return title
	}
	n := 0
	for i := range title {
		if n == TruncatedTitleLen {
			return title[:i] + "..."
		}
		n++
	}
	return title
}

// Text returns a text Content
func Text(s string) *Content {
	return &Content{Type: ContentText, Body: s}
}

// HTML returns an html Content; the markup is escaped on render
func HTML(s string) *Content {
	return &Content{Type: ContentHTML, Body: s}
}

// NewLink returns a Link with the relation set
func NewLink(href, rel string) *Link {
	return &Link{Href: href, Rel: rel}
}

// FormatTime renders t as RFC 3339
func FormatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Format(time.RFC3339)
}

// AddEntry appends e to the feed
func (f *Feed) AddEntry(e *Entry) *Feed {
	f.Entries = append(f.Entries, e)
	return f
}

// Render returns the feed as an XML document
func (f *Feed) Render() ([]byte, error) {
	if f.Namespace == "" {
		f.Namespace = AtomNamespace
	}
	return render(f)
}

func render(v any) ([]byte, error) {
	b, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(xml.Header)+len(b)+1)
	out = append(out, xml.Header...)
	out = append(out, b...)
	return append(out, '\n'), nil
}
