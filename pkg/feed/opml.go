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

package feed

import (
	"encoding/xml"
	"time"
)

// OutlineTypeRSS marks an outline that points at a feed
const OutlineTypeRSS = "rss"

// OPML is an OPML 1.0 subscription list
type OPML struct {
	XMLName  xml.Name   `xml:"opml"`
	Version  string     `xml:"version,attr"`
	Title    string     `xml:"head>title"`
	Created  string     `xml:"head>dateCreated"`
	Outlines []*Outline `xml:"body>outline"`
}

// Outline is a folder of outlines or a single feed subscription
type Outline struct {
	Title       string     `xml:"title,attr"`
	Text        string     `xml:"text,attr"`
	Description string     `xml:"description,attr,omitempty"`
	XMLURL      string     `xml:"xmlUrl,attr,omitempty"`
	Type        string     `xml:"type,attr,omitempty"`
	Outlines    []*Outline `xml:"outline"`
}

// NewOPML returns an OPML document created now
func NewOPML(title string) *OPML {
	return &OPML{
		Version: "1.0",
		Title:   title,
		Created: time.Now().UTC().Format(time.RFC1123),
	}
}

// AddOutline appends o to the document body
func (o *OPML) AddOutline(outlines ...*Outline) *OPML {
	for _, ol := range outlines {
		if ol != nil {
			o.Outlines = append(o.Outlines, ol)
		}
	}
	return o
}

// Render returns the document as XML
func (o *OPML) Render() ([]byte, error) {
	if o.Version == "" {
		o.Version = "1.0"
	}
	return render(o)
}

// NewOutline returns a folder outline
func NewOutline(title string) *Outline {
	return &Outline{Title: title, Text: title, Description: title}
}

// NewFeedOutline returns an outline subscribing to the feed at url
func NewFeedOutline(title, url string) *Outline {
	return &Outline{
		Title:       title,
		Text:        title,
		Description: title,
		XMLURL:      url,
		Type:        OutlineTypeRSS,
	}
}

// AddChild appends a child outline; a non-empty url makes it a feed
func (o *Outline) AddChild(title, url string) *Outline {
	if url == "" {
		return o.AddOutline(NewOutline(title))
	}
	return o.AddOutline(NewFeedOutline(title, url))
}

// AddOutline appends child outlines
func (o *Outline) AddOutline(children ...*Outline) *Outline {
	o.Outlines = append(o.Outlines, children...)
	return o
}
