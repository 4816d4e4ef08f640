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
	"time"

	"github.com/any2feed/any2feed/pkg/errors"
)

// Cache providers
const (
	ProviderMemory = "memory"
	ProviderBBolt  = "bbolt"
	ProviderRedis  = "redis"
)

const (
	// DefaultCacheProvider is the default cache provider
	DefaultCacheProvider = ProviderMemory
	// DefaultTTLSecs is how long upstream responses are cached
	DefaultTTLSecs = 300
	// DefaultBBoltFile is the default bbolt database path
	DefaultBBoltFile = "any2feed.db"
	// DefaultBBoltBucket is the default bbolt bucket
	DefaultBBoltBucket = "any2feed"
	// DefaultRedisAddress is the default redis endpoint
	DefaultRedisAddress = "127.0.0.1:6379"
)

// Options is a collection of Cache configurations
type Options struct {
	// Provider is one of memory, bbolt or redis
	Provider string `toml:"provider" yaml:"provider,omitempty"`
	// TTLSecs is the time to live of cached upstream responses; 0 disables caching
	TTLSecs int `toml:"ttl_secs" yaml:"ttl_secs,omitempty"`
	// Compress stores values zstd-compressed
	Compress bool `toml:"compress" yaml:"compress,omitempty"`

	BBolt *BBoltOptions `toml:"bbolt" yaml:"bbolt,omitempty"`
	Redis *RedisOptions `toml:"redis" yaml:"redis,omitempty"`
}

// BBoltOptions configures the bbolt provider
type BBoltOptions struct {
	Filename string `toml:"filename" yaml:"filename,omitempty"`
	Bucket   string `toml:"bucket" yaml:"bucket,omitempty"`
}

// RedisOptions configures the redis provider
type RedisOptions struct {
	Address  string `toml:"address" yaml:"address,omitempty"`
	Password string `toml:"password" yaml:"password,omitempty"`
	DB       int    `toml:"db" yaml:"db,omitempty"`
}

// New returns a new Cache Options object with default values
func New() *Options {
	return &Options{
		Provider: DefaultCacheProvider,
		TTLSecs:  DefaultTTLSecs,
		Compress: true,
		BBolt: &BBoltOptions{
			Filename: DefaultBBoltFile,
			Bucket:   DefaultBBoltBucket,
		},
		Redis: &RedisOptions{
			Address: DefaultRedisAddress,
		},
	}
}

// Clone returns an exact copy of a *Options
func (o *Options) Clone() *Options {
	o2 := *o
	if o.BBolt != nil {
		b := *o.BBolt
		o2.BBolt = &b
	}
	if o.Redis != nil {
		r := *o.Redis
		o2.Redis = &r
	}
	return &o2
}

// TTL returns TTLSecs as a Duration
func (o *Options) TTL() time.Duration {
	return time.Duration(o.TTLSecs) * time.Second
}

// Validate checks the provider and its required fields
func (o *Options) Validate() error {
	if o.TTLSecs < 0 {
		return fmt.Errorf("%w: cache ttl_secs must not be negative", errors.ErrInvalidOptions)
	}
	switch o.Provider {
	case ProviderMemory:
	case ProviderBBolt:
		if o.BBolt == nil || o.BBolt.Filename == "" || o.BBolt.Bucket == "" {
			return fmt.Errorf("%w: bbolt cache requires filename and bucket", errors.ErrInvalidOptions)
		}
	case ProviderRedis:
		if o.Redis == nil || o.Redis.Address == "" {
			return fmt.Errorf("%w: redis cache requires an address", errors.ErrInvalidOptions)
		}
	default:
		return fmt.Errorf("%w: unknown cache provider %q", errors.ErrInvalidOptions, o.Provider)
	}
	return nil
}
