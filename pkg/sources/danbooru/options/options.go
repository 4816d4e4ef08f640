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

package options

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/any2feed/any2feed/pkg/errors"
)

const (
	// DefaultBaseURL is the public danbooru instance
	DefaultBaseURL = "https://danbooru.donmai.us"
	// DefaultLimit is the number of posts requested per feed
	DefaultLimit = 50
)

// Options configures the danbooru source
type Options struct {
	// BaseURL is the root of the danbooru instance
	BaseURL string `toml:"base_url" yaml:"base_url,omitempty"`
	// Tags are listed in danbooru.opml
	Tags []string `toml:"tags" yaml:"tags,omitempty"`
	// Limit is the number of posts requested per feed
	Limit int `toml:"limit" yaml:"limit,omitempty"`
	// Proxy is an outbound proxy URL for danbooru requests. When set, feed
	// images are also served through /danbooru/media/.
	Proxy string `toml:"proxy" yaml:"proxy,omitempty"`
}

// New returns Options with default values
func New() *Options {
	return &Options{
		BaseURL: DefaultBaseURL,
		Limit:   DefaultLimit,
	}
}

// Clone returns a deep copy of the Options
func (o *Options) Clone() *Options {
	o2 := *o
	if o.Tags != nil {
		o2.Tags = make([]string, len(o.Tags))
		copy(o2.Tags, o.Tags)
	}
	return &o2
}

// Validate fills defaults and checks the base URL and limit
func (o *Options) Validate() error {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	o.BaseURL = strings.TrimSuffix(o.BaseURL, "/")
	if u, err := url.Parse(o.BaseURL); err != nil || u.Host == "" {
		return fmt.Errorf("%w: invalid danbooru base_url %q", errors.ErrInvalidOptions, o.BaseURL)
	}
	if o.Limit == 0 {
		o.Limit = DefaultLimit
	}
	if o.Limit < 0 {
		return fmt.Errorf("%w: danbooru limit must be positive", errors.ErrInvalidOptions)
	}
	for _, t := range o.Tags {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("%w: empty danbooru tag", errors.ErrInvalidOptions)
		}
	}
	return nil
}
