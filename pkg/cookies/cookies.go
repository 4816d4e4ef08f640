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

// Package cookies imports Netscape cookies.txt files into a cookie jar and
// writes refreshed cookie values back to them
package cookies

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/any2feed/any2feed/pkg/errors"
	"github.com/any2feed/any2feed/pkg/locks"

	"golang.org/x/net/publicsuffix"
)

const httpOnlyPrefix = "#HttpOnly_"

// fileLocks serializes rewrites of the same cookie file
var fileLocks = locks.NewNamedLocker()

// Entry is one line of a cookies.txt file
type Entry struct {
	Domain            string
	IncludeSubdomains bool
	Path              string
	Secure            bool
	Expires           string
	Name              string
	Value             string
	HTTPOnly          bool
}

func parseLine(line string) (*Entry, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 7 {
		return nil, fmt.Errorf("%w: cookie line has %d fields: %q",
			errors.ErrInvalidOptions, len(fields), line)
	}
	return &Entry{
		Domain:            fields[0],
		IncludeSubdomains: strings.EqualFold(fields[1], "TRUE"),
		Path:              fields[2],
		Secure:            strings.EqualFold(fields[3], "TRUE"),
		Expires:           fields[4],
		Name:              fields[5],
		Value:             fields[6],
	}, nil
}

// String renders the entry as a cookies.txt line
func (e *Entry) String() string {
	domain := e.Domain
	if e.HTTPOnly {
		domain = httpOnlyPrefix + domain
	}
	return strings.Join([]string{domain, boolField(e.IncludeSubdomains), e.Path,
		boolField(e.Secure), e.Expires, e.Name, e.Value}, "\t")
}

func boolField(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

// Parse reads every cookie in a cookies.txt document. Blank lines and
// comments are skipped; a line with fewer than seven tab-separated fields
// is an error.
func Parse(text string) ([]*Entry, error) {
	var out []*Entry
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		httpOnly := strings.HasPrefix(line, httpOnlyPrefix)
		line = strings.TrimPrefix(line, httpOnlyPrefix)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e, err := parseLine(line)
		if err != nil {
			return nil, err
		}
		e.HTTPOnly = httpOnly
		out = append(out, e)
	}
	return out, nil
}

// NewJar returns a cookie jar holding entries. Expiration times in the file
// are ignored, so every imported cookie lives for the life of the jar.
func NewJar(entries []*Entry) (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		host := strings.TrimPrefix(e.Domain, ".")
		path := e.Path
		if path == "" {
			path = "/"
		}
		u := &url.URL{Scheme: "https", Host: host, Path: path}
		jar.SetCookies(u, []*http.Cookie{{
			Name:     e.Name,
			Value:    e.Value,
			Domain:   e.Domain,
			Path:     path,
			HttpOnly: e.HTTPOnly,
		}})
	}
	return jar, nil
}

// LoadFile parses the cookies.txt file at path into a new jar
func LoadFile(path string) (http.CookieJar, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	entries, err := Parse(string(b))
	if err != nil {
		return nil, err
	}
	return NewJar(entries)
}

// Merge rewrites a cookies.txt document with the values of cookies. Lines
// for domain whose name matches a cookie get the new value; cookies with no
// matching line are appended. Comments and other domains are kept as is.
func Merge(text, domain string, cookies []*http.Cookie) (string, error) {
	domain = strings.TrimPrefix(domain, ".")
	pending := make(map[string]string, len(cookies))
	for _, c := range cookies {
		pending[c.Name] = c.Value
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	out := make([]string, 0, len(lines)+len(pending))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		httpOnly := strings.HasPrefix(line, httpOnlyPrefix)
		body := strings.TrimPrefix(line, httpOnlyPrefix)
		if body == "" || strings.HasPrefix(body, "#") {
			out = append(out, line)
			continue
		}
		e, err := parseLine(body)
		if err != nil {
			return "", err
		}
		e.HTTPOnly = httpOnly
		if strings.TrimPrefix(e.Domain, ".") == domain {
			if v, ok := pending[e.Name]; ok {
				e.Value = v
				delete(pending, e.Name)
			}
		}
		out = append(out, e.String())
	}
	names := make([]string, 0, len(pending))
	for k := range pending {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		e := &Entry{Domain: domain, IncludeSubdomains: true, Path: "/", Name: k, Value: pending[k]}
		out = append(out, e.String())
	}
	return strings.Join(out, "\n") + "\n", nil
}

// UpdateFile writes the jar's current cookies for u back into the
// cookies.txt file at path
func UpdateFile(path string, u *url.URL, jar http.CookieJar) error {
	nl, err := fileLocks.Acquire(path)
	if err != nil {
		return err
	}
	defer nl.Release()
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	text, err := Merge(string(b), u.Hostname(), jar.Cookies(u))
	if err != nil {
		return err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(text), fi.Mode().Perm())
}
