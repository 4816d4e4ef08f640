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

// Package config provides any2feed configuration abilities, including
// parsing configuration files, command line parameters, and environment
// variables, as well as default values.
package config

import (
	"bytes"
	"fmt"
	"strings"

	co "github.com/any2feed/any2feed/pkg/cache/options"
	"github.com/any2feed/any2feed/pkg/errors"
	lo "github.com/any2feed/any2feed/pkg/observability/logging/options"
	mo "github.com/any2feed/any2feed/pkg/observability/metrics/options"
	to "github.com/any2feed/any2feed/pkg/observability/tracing/options"
	"github.com/any2feed/any2feed/pkg/server"
	do "github.com/any2feed/any2feed/pkg/sources/danbooru/options"
	meo "github.com/any2feed/any2feed/pkg/sources/mewe/options"
	tgo "github.com/any2feed/any2feed/pkg/sources/telegram/options"
	uo "github.com/any2feed/any2feed/pkg/upstream/options"

	"github.com/BurntSushi/toml"
)

// Config is the main configuration object
type Config struct {
	// Server configures the listener and worker pool
	Server *server.Options `toml:"server" yaml:"server,omitempty"`
	// Logging provides configurations that affect logging behavior
	Logging *lo.Options `toml:"logging" yaml:"logging,omitempty"`
	// Metrics configures the metrics route
	Metrics *mo.Options `toml:"metrics" yaml:"metrics,omitempty"`
	// Tracing provides the distributed tracing configuration
	Tracing *to.Options `toml:"tracing" yaml:"tracing,omitempty"`
	// Cache configures the upstream response cache
	Cache *co.Options `toml:"cache" yaml:"cache,omitempty"`
	// Upstream configures the outbound HTTP client
	Upstream *uo.Options `toml:"upstream" yaml:"upstream,omitempty"`
	// Danbooru enables the danbooru source when present
	Danbooru *do.Options `toml:"danbooru" yaml:"danbooru,omitempty"`
	// Telegram enables the telegram source when present
	Telegram *tgo.Options `toml:"telegram" yaml:"telegram,omitempty"`
	// Mewe enables the mewe source when present
	Mewe *meo.Options `toml:"mewe" yaml:"mewe,omitempty"`

	// LoaderWarnings lists unknown keys found in the config file
	LoaderWarnings []string `toml:"-" yaml:"-"`

	configFilePath string
}

// NewConfig returns a Config initialized with default values. No source is
// enabled.
func NewConfig() *Config {
	return &Config{
		Server:   server.NewOptions(),
		Logging:  lo.New(),
		Metrics:  mo.New(),
		Tracing:  to.New(),
		Cache:    co.New(),
		Upstream: uo.New(),
	}
}

// Clone returns an exact copy of the subject *Config
func (c *Config) Clone() *Config {
	nc := &Config{
		Server:         c.Server.Clone(),
		Logging:        c.Logging.Clone(),
		Metrics:        c.Metrics.Clone(),
		Tracing:        c.Tracing.Clone(),
		Cache:          c.Cache.Clone(),
		Upstream:       c.Upstream.Clone(),
		configFilePath: c.configFilePath,
	}
	if c.Danbooru != nil {
		nc.Danbooru = c.Danbooru.Clone()
	}
	if c.Telegram != nil {
		nc.Telegram = c.Telegram.Clone()
	}
	if c.Mewe != nil {
		nc.Mewe = c.Mewe.Clone()
	}
	if c.LoaderWarnings != nil {
		nc.LoaderWarnings = append([]string(nil), c.LoaderWarnings...)
	}
	return nc
}

// Validate checks every section and fills defaults left empty by the file
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("%w: metrics path must start with /", errors.ErrInvalidOptions)
	}
	if err := c.Tracing.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Upstream.Validate(); err != nil {
		return err
	}
	if c.Danbooru != nil {
		if err := c.Danbooru.Validate(); err != nil {
			return err
		}
	}
	if c.Telegram != nil {
		if err := c.Telegram.Validate(); err != nil {
			return err
		}
	}
	if c.Mewe != nil {
		if err := c.Mewe.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ConfigFilePath returns the file path from which this configuration is based
func (c *Config) ConfigFilePath() string {
	return c.configFilePath
}

func (c *Config) String() string {
	cp := c.Clone()
	// strip Redis password
	if cp.Cache.Redis != nil && cp.Cache.Redis.Password != "" {
		cp.Cache.Redis.Password = "*****"
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cp); err != nil {
		return err.Error()
	}
	return buf.String()
}
