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

// Package redis is the redis implementation of the any2feed Cache
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/any2feed/any2feed/pkg/cache"
	"github.com/any2feed/any2feed/pkg/cache/options"
	"github.com/any2feed/any2feed/pkg/cache/status"

	"github.com/redis/go-redis/v9"
)

// CacheClient implements the cache.Cache interface
var _ cache.Cache = &CacheClient{}

// CacheClient represents a redis cache client that conforms to the cache.Cache interface
type CacheClient struct {
	Config *options.Options
	client *redis.Client
}

// New returns a new redis cache client; call Connect before use
func New(cfg *options.Options) *CacheClient {
	if cfg == nil {
		cfg = options.New()
	}
	if cfg.Redis == nil {
		cfg.Redis = options.New().Redis
	}
	return &CacheClient{Config: cfg}
}

// Provider returns the provider name
func (c *CacheClient) Provider() string {
	return options.ProviderRedis
}

// Connect connects to the configured Redis endpoint
func (c *CacheClient) Connect() error {
	c.client = redis.NewClient(&redis.Options{
		Addr:     c.Config.Redis.Address,
		Password: c.Config.Redis.Password,
		DB:       c.Config.Redis.DB,
	})
	return c.client.Ping(context.Background()).Err()
}

// Remove deletes the keys from redis
func (c *CacheClient) Remove(cacheKeys ...string) error {
	if len(cacheKeys) == 0 {
		return nil
	}
	return c.client.Del(context.Background(), cacheKeys...).Err()
}

// Store places the data into the Redis Cache using the provided Key and TTL
func (c *CacheClient) Store(cacheKey string, data []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return c.client.Set(context.Background(), cacheKey, data, ttl).Err()
}

// Retrieve gets data from the Redis Cache using the provided Key. Redis
// manages object expiration itself.
func (c *CacheClient) Retrieve(cacheKey string) ([]byte, status.LookupStatus, error) {
	data, err := c.client.Get(context.Background(), cacheKey).Bytes()
	if err == nil {
		return data, status.LookupStatusHit, nil
	}
	if errors.Is(err, redis.Nil) {
		return nil, status.LookupStatusKeyMiss, cache.ErrKNF
	}
	return nil, status.LookupStatusError, err
}

// Close closes the client connection pool
func (c *CacheClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
