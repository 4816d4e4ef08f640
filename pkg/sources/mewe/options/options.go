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

// Package options configures the mewe source
package options

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/any2feed/any2feed/pkg/errors"
)

const (
	// DefaultBaseURL is the MeWe web host
	DefaultBaseURL = "https://mewe.com"
	// DefaultPages is the number of feed pages read per request
	DefaultPages = 1
	// DefaultPageDelayMS is the pause between two feed page requests
	DefaultPageDelayMS = 100
)

// Options configures the mewe source
type Options struct {
	// CookieFile is the Netscape cookies.txt file of a signed in session.
	// Cookies set by MeWe are written back to it.
	CookieFile string `toml:"cookie_file" yaml:"cookie_file"`
	// BaseURL is the MeWe web host
	BaseURL string `toml:"base_url" yaml:"base_url,omitempty"`
	// Limit is the number of posts asked for per page; 0 keeps the MeWe default
	Limit int `toml:"limit" yaml:"limit,omitempty"`
	// Pages is the number of feed pages read per request
	Pages int `toml:"pages" yaml:"pages,omitempty"`
	// PageDelayMS is the pause between two feed page requests. 0 uses
	// DefaultPageDelayMS and a negative value disables the pause.
	PageDelayMS int `toml:"page_delay_ms" yaml:"page_delay_ms,omitempty"`
}

// New returns Options with default values
func New() *Options {
	return &Options{
		BaseURL: DefaultBaseURL,
		Pages:   DefaultPages,
	}
}

// Clone returns a copy of the Options
func (o *Options) Clone() *Options {
	o2 := *o
	return &o2
}

// PageDelay returns the pause between two feed page requests
func (o *Options) PageDelay() time.Duration {
	switch {
	case o.PageDelayMS < 0:
		return 0
	case o.PageDelayMS == 0:
		return DefaultPageDelayMS * time.Millisecond
	}
	return time.Duration(o.PageDelayMS) * time.Millisecond
}

// Validate requires a cookie file and an absolute base URL, and rejects
// negative limits
func (o *Options) Validate() error {
	if strings.TrimSpace(o.CookieFile) == "" {
		return fmt.Errorf("%w: mewe cookie_file is required", errors.ErrInvalidOptions)
	}
	if o.Limit < 0 || o.Pages < 0 {
		return fmt.Errorf("%w: mewe limits must not be negative", errors.ErrInvalidOptions)
	}
	if o.BaseURL != "" {
		u, err := url.Parse(o.BaseURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%w: invalid mewe base_url %q", errors.ErrInvalidOptions, o.BaseURL)
		}
	}
	return nil
}
