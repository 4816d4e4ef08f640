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
	"strings"
	"time"
)

// Identity is the answer of the identify endpoint
type Identity struct {
	Authenticated bool `json:"authenticated"`
	Confirmed     bool `json:"confirmed"`
}

// Href is a link object
type Href struct {
	Href string `json:"href"`
}

// Size is a media size in pixels
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// User is a post author as listed alongside a feed page
type User struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	ContactInviteID string `json:"contactInviteId"`
}

// Group is a MeWe group
type Group struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"descriptionPlain"`
}

// GroupList is the answer of the groups endpoint
type GroupList struct {
	Confirmed   []*Group `json:"confirmedGroups"`
	Unconfirmed []*Group `json:"unconfirmedGroups"`
}

// Contact is a user from the contacts endpoints
type Contact struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	ContactInviteID string `json:"contactInviteId"`
	CloseFriend     bool   `json:"closeFriend"`
}

// ContactList is one page of contacts
type ContactList struct {
	Contacts []struct {
		ID   string   `json:"id"`
		User *Contact `json:"user"`
	} `json:"contacts"`
}

// FeedList is one page of posts
type FeedList struct {
	Feed   []*Post  `json:"feed"`
	Users  []*User  `json:"users"`
	Groups []*Group `json:"groups"`
	Links  struct {
		NextPage *Href `json:"nextPage"`
	} `json:"_links"`
}

// NextPage returns the href of the next page, or ""
func (l *FeedList) NextPage() string {
	if l.Links.NextPage == nil {
		return ""
	}
	return l.Links.NextPage.Href
}

// Post is a MeWe post. User and Group are resolved from the page lists.
type Post struct {
	ID        string   `json:"postItemId"`
	UserID    string   `json:"userId"`
	GroupID   string   `json:"groupId"`
	Text      string   `json:"text"`
	CreatedAt int64    `json:"createdAt"`
	UpdatedAt int64    `json:"updatedAt"`
	EditedAt  int64    `json:"editedAt"`
	Medias    []*Media `json:"medias"`
	Files     []*File  `json:"files"`
	Link      *Link    `json:"link"`
	Poll      *Poll    `json:"poll"`
	RefPost   *Post    `json:"refPost"`
	Album     string   `json:"album"`
	HashTags  []string `json:"hashTags"`

	User  *User  `json:"-"`
	Group *Group `json:"-"`
}

// Updated returns the edit time, or the update time for unedited posts
func (p *Post) Updated() time.Time {
	if p.EditedAt > 0 {
		return time.Unix(p.EditedAt, 0).UTC()
	}
	return time.Unix(p.UpdatedAt, 0).UTC()
}

// Created returns the creation time
func (p *Post) Created() time.Time {
	return time.Unix(p.CreatedAt, 0).UTC()
}

// Media is a photo, or a video with its poster photo
type Media struct {
	ID     string `json:"mediaId"`
	PostID string `json:"postItemId"`
	Photo  *Photo `json:"photo"`
	Video  *Video `json:"video"`
}

// Photo is an image attached to a post
type Photo struct {
	ID    string `json:"id"`
	Size  Size   `json:"size"`
	Mime  string `json:"mime"`
	Links struct {
		Img Href `json:"img"`
	} `json:"_links"`
}

// Video is a video attached to a post
type Video struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	AvailableResolutions []string `json:"availableResolutions"`
	Links                struct {
		LinkTemplate Href `json:"linkTemplate"`
	} `json:"_links"`
}

// File is a document attached to a post
type File struct {
	ID       string `json:"id"`
	FileName string `json:"fileName"`
	Mime     string `json:"mime"`
	Length   int64  `json:"length"`
	FileType string `json:"fileType"`
	Links    struct {
		URL Href `json:"url"`
	} `json:"_links"`
}

// Link is a link preview
type Link struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Links       struct {
		URL       Href  `json:"url"`
		URLHost   Href  `json:"urlHost"`
		Thumbnail *Href `json:"thumbnail"`
	} `json:"_links"`
}

// Poll is a poll attached to a post
type Poll struct {
	Question string `json:"question"`
	Options  []struct {
		Text     string `json:"text"`
		Votes    int    `json:"votes"`
		Selected bool   `json:"selected"`
	} `json:"options"`
}

// fillTemplate replaces each {name} placeholder of tmpl with its value
func fillTemplate(tmpl string, values map[string]string) string {
	pairs := make([]string, 0, 2*len(values))
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// Fill resolves the author and group of every post on the page, shared
// posts included
func (l *FeedList) Fill() {
	users := make(map[string]*User, len(l.Users))
	for _, u := range l.Users {
		users[u.ID] = u
	}
	groups := make(map[string]*Group, len(l.Groups))
	for _, g := range l.Groups {
		groups[g.ID] = g
	}
	for _, p := range l.Feed {
		for q := p; q != nil; q = q.RefPost {
			q.User = users[q.UserID]
			if q.GroupID != "" {
				q.Group = groups[q.GroupID]
			}
		}
	}
}
