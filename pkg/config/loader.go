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

package config

import (
	"bytes"
	goerrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	co "github.com/any2feed/any2feed/pkg/cache/options"
	lo "github.com/any2feed/any2feed/pkg/observability/logging/options"
	mo "github.com/any2feed/any2feed/pkg/observability/metrics/options"
	to "github.com/any2feed/any2feed/pkg/observability/tracing/options"
	"github.com/any2feed/any2feed/pkg/server"
	do "github.com/any2feed/any2feed/pkg/sources/danbooru/options"
	meo "github.com/any2feed/any2feed/pkg/sources/mewe/options"
	tgo "github.com/any2feed/any2feed/pkg/sources/telegram/options"
	uo "github.com/any2feed/any2feed/pkg/upstream/options"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is read when no config file is named on the command line
const DefaultConfigPath = "any2feed.toml"

// Load returns the Application Configuration, starting with a default config,
// then overriding with any provided config file, then env vars, and finally
// flags
func Load(flags *Flags) (*Config, error) {
	if flags == nil {
		flags = &Flags{}
	}
	c := NewConfig()
	path := flags.ConfigPath
	if path == "" {
		path = DefaultConfigPath
	}
	if err := c.loadFile(path); err != nil {
		// a missing default file leaves the defaults in place
		if flags.ConfigPath != "" || !goerrors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	c.loadEnvVars()
	c.loadFlags(flags)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// loadFile loads application configuration from a TOML or YAML file, chosen
// by its extension
func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = c.loadYAMLConfig(b)
	default:
		err = c.loadTOMLConfig(string(b))
	}
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	c.configFilePath = path
	c.expandEnv()
	return nil
}

// sections mirrors Config with value typed sections, so that decoding a
// file overlays the defaults instead of replacing whole sections
type sections struct {
	Server   server.Options `toml:"server" yaml:"server"`
	Logging  lo.Options     `toml:"logging" yaml:"logging"`
	Metrics  mo.Options     `toml:"metrics" yaml:"metrics"`
	Tracing  to.Options     `toml:"tracing" yaml:"tracing"`
	Cache    co.Options     `toml:"cache" yaml:"cache"`
	Upstream uo.Options     `toml:"upstream" yaml:"upstream"`
	Danbooru *do.Options    `toml:"danbooru" yaml:"danbooru"`
	Telegram *tgo.Options   `toml:"telegram" yaml:"telegram"`
	Mewe     *meo.Options   `toml:"mewe" yaml:"mewe"`
}

func (c *Config) sections() *sections {
	s := &sections{
		Server:   *c.Server,
		Logging:  *c.Logging,
		Metrics:  *c.Metrics,
		Tracing:  *c.Tracing,
		Cache:    *c.Cache.Clone(),
		Upstream: *c.Upstream,
		Danbooru: c.Danbooru,
		Telegram: c.Telegram,
		Mewe:     c.Mewe,
	}
	// nested tables are replaced when present in the file
	s.Cache.BBolt, s.Cache.Redis = nil, nil
	return s
}

func (c *Config) setSections(s *sections) {
	def := co.New()
	if s.Cache.BBolt == nil {
		s.Cache.BBolt = def.BBolt
	}
	if s.Cache.BBolt.Filename == "" {
		s.Cache.BBolt.Filename = def.BBolt.Filename
	}
	if s.Cache.BBolt.Bucket == "" {
		s.Cache.BBolt.Bucket = def.BBolt.Bucket
	}
	if s.Cache.Redis == nil {
		s.Cache.Redis = def.Redis
	}
	if s.Cache.Redis.Address == "" {
		s.Cache.Redis.Address = def.Redis.Address
	}
	c.Server = &s.Server
	c.Logging = &s.Logging
	c.Metrics = &s.Metrics
	c.Tracing = &s.Tracing
	c.Cache = &s.Cache
	c.Upstream = &s.Upstream
	c.Danbooru = s.Danbooru
	c.Telegram = s.Telegram
	c.Mewe = s.Mewe
}

// loadTOMLConfig loads application configuration from a TOML document. Keys
// the Config does not know become loader warnings.
func (c *Config) loadTOMLConfig(tml string) error {
	s := c.sections()
	md, err := toml.Decode(tml, s)
	if err != nil {
		return err
	}
	c.setSections(s)
	for _, k := range md.Undecoded() {
		c.LoaderWarnings = append(c.LoaderWarnings, "unknown configuration key: "+k.String())
	}
	sort.Strings(c.LoaderWarnings)
	return nil
}

// loadYAMLConfig loads application configuration from a YAML document
func (c *Config) loadYAMLConfig(b []byte) error {
	s := c.sections()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(s); err != nil && !goerrors.Is(err, io.EOF) {
		return err
	}
	c.setSections(s)
	return nil
}

// expandEnv replaces ${VAR} references in values that commonly hold secrets
// or machine specific paths
func (c *Config) expandEnv() {
	c.Logging.LogFile = os.ExpandEnv(c.Logging.LogFile)
	c.Upstream.Proxy = os.ExpandEnv(c.Upstream.Proxy)
	c.Upstream.CookieFile = os.ExpandEnv(c.Upstream.CookieFile)
	if c.Cache.Redis != nil {
		c.Cache.Redis.Password = os.ExpandEnv(c.Cache.Redis.Password)
	}
	if c.Cache.BBolt != nil {
		c.Cache.BBolt.Filename = os.ExpandEnv(c.Cache.BBolt.Filename)
	}
	if c.Danbooru != nil {
		c.Danbooru.Proxy = os.ExpandEnv(c.Danbooru.Proxy)
	}
	if c.Mewe != nil {
		c.Mewe.CookieFile = os.ExpandEnv(c.Mewe.CookieFile)
	}
}
