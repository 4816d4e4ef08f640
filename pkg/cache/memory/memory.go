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

// Package memory is the memory implementation of the any2feed Cache
// and uses a sync.Map to manage cache objects
package memory

import (
	"sync"
	"time"

	"github.com/any2feed/any2feed/pkg/cache"
	"github.com/any2feed/any2feed/pkg/cache/options"
	"github.com/any2feed/any2feed/pkg/cache/status"
)

var _ cache.Cache = &Cache{}

// Cache defines a a Memory Cache client that conforms to the Cache interface
type Cache struct {
	Config *options.Options
	client sync.Map
	now    func() time.Time
}

type record struct {
	data    []byte
	expires time.Time
}

// New returns a new memory cache as an any2feed Cache Interface type
func New(cfg *options.Options) *Cache {
	if cfg == nil {
		cfg = options.New()
	}
	return &Cache{
		Config: cfg,
		now:    time.Now,
	}
}

// Provider returns the provider name
func (c *Cache) Provider() string {
	return options.ProviderMemory
}

// Connect initializes the Cache
func (c *Cache) Connect() error {
	return nil
}

// Store places an object in the cache using the specified key and ttl. A
// ttl of zero or less never expires.
func (c *Cache) Store(cacheKey string, data []byte, ttl time.Duration) error {
	r := &record{data: data}
	if ttl > 0 {
		r.expires = c.now().Add(ttl)
	}
	c.client.Store(cacheKey, r)
	return nil
}

// Retrieve looks for an object in cache and returns it (or an error if not
// found). Expired objects are removed on lookup.
func (c *Cache) Retrieve(cacheKey string) ([]byte, status.LookupStatus, error) {
	v, ok := c.client.Load(cacheKey)
	if !ok {
		return nil, status.LookupStatusKeyMiss, cache.ErrKNF
	}
	r := v.(*record)
	if !r.expires.IsZero() && !c.now().Before(r.expires) {
		c.client.CompareAndDelete(cacheKey, v)
		return nil, status.LookupStatusKeyMiss, cache.ErrKNF
	}
	return r.data, status.LookupStatusHit, nil
}

// Remove deletes the keys from the cache
func (c *Cache) Remove(cacheKeys ...string) error {
	for _, k := range cacheKeys {
		c.client.Delete(k)
	}
	return nil
}

// Close empties the cache
func (c *Cache) Close() error {
	c.client.Range(func(k, _ any) bool {
		c.client.Delete(k)
		return true
	})
	return nil
}
