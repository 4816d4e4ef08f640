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

// Package registration builds and connects the configured cache
package registration

import (
	"fmt"

	"github.com/any2feed/any2feed/pkg/cache"
	"github.com/any2feed/any2feed/pkg/cache/bbolt"
	"github.com/any2feed/any2feed/pkg/cache/memory"
	"github.com/any2feed/any2feed/pkg/cache/options"
	"github.com/any2feed/any2feed/pkg/cache/redis"
	"github.com/any2feed/any2feed/pkg/errors"
	"github.com/any2feed/any2feed/pkg/observability/logging"
	"github.com/any2feed/any2feed/pkg/observability/logging/logger"
)

// NewCache returns a connected Cache for the provided options. Values are
// compressed when cfg.Compress is set.
func NewCache(cfg *options.Options) (cache.Cache, error) {
	if cfg == nil {
		cfg = options.New()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var c cache.Cache
	switch cfg.Provider {
	case options.ProviderMemory:
		c = memory.New(cfg)
	case options.ProviderBBolt:
		c = bbolt.New(cfg)
	case options.ProviderRedis:
		c = redis.New(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown cache provider %q", errors.ErrInvalidOptions, cfg.Provider)
	}
	if err := c.Connect(); err != nil {
		return nil, fmt.Errorf("connect %s cache: %w", cfg.Provider, err)
	}
	if cfg.Compress {
		c = cache.Compressed(c)
	}
	logger.Info("cache connected", logging.Pairs{
		"provider": cfg.Provider,
		"ttl":      cfg.TTL(),
		"compress": cfg.Compress,
	})
	return c, nil
}
