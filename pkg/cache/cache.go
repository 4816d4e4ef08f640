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

// Package cache defines the any2feed cache interface and provides
// general cache functionality
package cache

import (
	"errors"
	"time"

	"github.com/any2feed/any2feed/pkg/cache/status"
	"github.com/any2feed/any2feed/pkg/encoding/zstd"
)

// ErrKNF represents the error "key not found in cache"
var ErrKNF = errors.New("key not found in cache")

// Cache is the interface for the supported caching fabrics
// When making new cache providers, Retrieve() must return ErrKNF on cache miss
type Cache interface {
	Connect() error
	Store(cacheKey string, data []byte, ttl time.Duration) error
	Retrieve(cacheKey string) ([]byte, status.LookupStatus, error)
	Remove(cacheKeys ...string) error
	Close() error
	Provider() string
}

// Compressed wraps c so that values are zstd-compressed at rest
func Compressed(c Cache) Cache {
	if c == nil {
		return nil
	}
	if _, ok := c.(*compressed); ok {
		return c
	}
	return &compressed{Cache: c}
}

type compressed struct {
	Cache
}

func (c *compressed) Store(cacheKey string, data []byte, ttl time.Duration) error {
	b, err := zstd.Encode(data)
	if err != nil {
		return err
	}
	return c.Cache.Store(cacheKey, b, ttl)
}

// Retrieve decodes compressed values and passes through values stored
// before compression was enabled
func (c *compressed) Retrieve(cacheKey string) ([]byte, status.LookupStatus, error) {
	b, s, err := c.Cache.Retrieve(cacheKey)
	if err != nil || !zstd.IsEncoded(b) {
		return b, s, err
	}
	b, err = zstd.Decode(b)
	if err != nil {
		return nil, status.LookupStatusError, err
	}
	return b, s, nil
}
