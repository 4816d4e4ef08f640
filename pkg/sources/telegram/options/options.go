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
	"sort"
	"strings"

	"github.com/any2feed/any2feed/pkg/errors"
)

// DefaultPages is the number of preview pages read per feed
const DefaultPages = 1

// ChannelOptions overrides the defaults for one channel
type ChannelOptions struct {
	Pages int `toml:"pages" yaml:"pages,omitempty"`
}

// Options configures the telegram source
type Options struct {
	// BaseURL is the web preview host
	BaseURL string `toml:"base_url" yaml:"base_url,omitempty"`
	// Channels are listed in telegram.opml
	Channels []string `toml:"channels" yaml:"channels,omitempty"`
	// Pages is the default number of preview pages read per feed
	Pages int `toml:"pages" yaml:"pages,omitempty"`
	// Extra holds per channel overrides; its channels are listed too
	Extra map[string]*ChannelOptions `toml:"extra" yaml:"extra,omitempty"`
}

// New returns Options with default values
func New() *Options {
	return &Options{Pages: DefaultPages}
}

// Clone returns a deep copy of the Options
func (o *Options) Clone() *Options {
	o2 := *o
	if o.Channels != nil {
		o2.Channels = make([]string, len(o.Channels))
		copy(o2.Channels, o.Channels)
	}
	if o.Extra != nil {
		o2.Extra = make(map[string]*ChannelOptions, len(o.Extra))
		for k, v := range o.Extra {
			if v != nil {
				c := *v
				v = &c
			}
			o2.Extra[k] = v
		}
	}
	return &o2
}

// Slugs returns every configured channel, sorted and without duplicates
func (o *Options) Slugs() []string {
	seen := make(map[string]struct{}, len(o.Channels)+len(o.Extra))
	for _, s := range o.Channels {
		seen[s] = struct{}{}
	}
	for s := range o.Extra {
		seen[s] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// PagesFor returns the number of pages to read for slug
func (o *Options) PagesFor(slug string) int {
	if c, ok := o.Extra[slug]; ok && c != nil && c.Pages > 0 {
		return c.Pages
	}
	if o.Pages > 0 {
		return o.Pages
	}
	return DefaultPages
}

// Validate rejects empty slugs and negative page counts
func (o *Options) Validate() error {
	if o.Pages < 0 {
		return fmt.Errorf("%w: telegram pages must not be negative", errors.ErrInvalidOptions)
	}
	for _, s := range o.Slugs() {
		if strings.TrimSpace(s) == "" || strings.Contains(s, "/") {
			return fmt.Errorf("%w: invalid telegram channel %q", errors.ErrInvalidOptions, s)
		}
		if c := o.Extra[s]; c != nil && c.Pages < 0 {
			return fmt.Errorf("%w: telegram pages for %s must not be negative", errors.ErrInvalidOptions, s)
		}
	}
	return nil
}
