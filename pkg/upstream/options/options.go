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
	"time"

	"github.com/any2feed/any2feed/pkg/errors"
)

const (
	// DefaultTimeoutSecs bounds each outbound request
	DefaultTimeoutSecs = 30
	// DefaultMaxBodyBytes bounds the size of an upstream body
	DefaultMaxBodyBytes = 64 << 20
)

// Options configures the outbound HTTP client
type Options struct {
	// UserAgent overrides the default "any2feed/<version>" user agent
	UserAgent string `toml:"user_agent" yaml:"user_agent,omitempty"`
	// TimeoutSecs bounds each outbound request
	TimeoutSecs int `toml:"timeout_secs" yaml:"timeout_secs,omitempty"`
	// Proxy is an optional http(s) or socks5 proxy URL
	Proxy string `toml:"proxy" yaml:"proxy,omitempty"`
	// CookieFile is an optional Netscape cookies.txt file loaded into the jar
	CookieFile string `toml:"cookie_file" yaml:"cookie_file,omitempty"`
	// MaxBodyBytes bounds the size of an upstream body
	MaxBodyBytes int64 `toml:"max_body_bytes" yaml:"max_body_bytes,omitempty"`
}

// New returns Options with default values
func New() *Options {
	return &Options{
		TimeoutSecs:  DefaultTimeoutSecs,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// Clone returns a copy of the Options
func (o *Options) Clone() *Options {
	o2 := *o
	return &o2
}

// Timeout returns TimeoutSecs as a Duration
func (o *Options) Timeout() time.Duration {
	return time.Duration(o.TimeoutSecs) * time.Second
}

// Validate checks the proxy URL and limits
func (o *Options) Validate() error {
	if o.TimeoutSecs < 0 || o.MaxBodyBytes < 0 {
		return fmt.Errorf("%w: upstream limits must not be negative", errors.ErrInvalidOptions)
	}
	if o.Proxy != "" {
		u, err := url.Parse(o.Proxy)
		if err != nil || u.Host == "" {
			return fmt.Errorf("%w: invalid upstream proxy %q", errors.ErrInvalidOptions, o.Proxy)
		}
	}
	return nil
}
