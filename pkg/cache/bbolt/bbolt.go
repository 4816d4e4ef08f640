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

// Package bbolt is the bbolt implementation of the any2feed Cache
package bbolt

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/any2feed/any2feed/pkg/cache"
	"github.com/any2feed/any2feed/pkg/cache/options"
	"github.com/any2feed/any2feed/pkg/cache/status"
	"go.etcd.io/bbolt"
)

// CacheClient implements the cache.Cache interface
var _ cache.Cache = &CacheClient{}

// expiryLen is the size of the expiration prefix stored ahead of each value
const expiryLen = 8

// CacheClient describes a BBolt CacheClient
type CacheClient struct {
	Config *options.Options
	dbh    *bbolt.DB
	bucket []byte
	now    func() time.Time
}

// New returns a new bbolt cache as an any2feed Cache Interface type
func New(opts *options.Options) *CacheClient {
	if opts == nil {
		opts = options.New()
	}
	if opts.BBolt == nil {
		opts.BBolt = options.New().BBolt
	}
	return &CacheClient{
		Config: opts,
		bucket: []byte(opts.BBolt.Bucket),
		now:    time.Now,
	}
}

// Provider returns the provider name
func (c *CacheClient) Provider() string {
	return options.ProviderBBolt
}

// Close closes the database file
func (c *CacheClient) Close() error {
	if c.dbh == nil {
		return nil
	}
	return c.dbh.Close()
}

// Connect opens the database file and creates the bucket
func (c *CacheClient) Connect() error {
	var err error
	c.dbh, err = bbolt.Open(c.Config.BBolt.Filename, 0o644, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return err
	}
	return c.dbh.Update(func(tx *bbolt.Tx) error {
		_, err2 := tx.CreateBucketIfNotExists(c.bucket)
		if err2 != nil {
			return fmt.Errorf("create bucket: %w", err2)
		}
		return nil
	})
}

// Store writes data behind an 8-byte expiration timestamp. A ttl of zero or
// less never expires.
func (c *CacheClient) Store(cacheKey string, data []byte, ttl time.Duration) error {
	var exp int64
	if ttl > 0 {
		exp = c.now().Add(ttl).UnixNano()
	}
	v := make([]byte, expiryLen+len(data))
	binary.BigEndian.PutUint64(v, uint64(exp))
	copy(v[expiryLen:], data)
	return c.dbh.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(c.bucket).Put([]byte(cacheKey), v)
	})
}

// Retrieve returns the value stored under cacheKey. Expired values are
// deleted and reported as a miss.
func (c *CacheClient) Retrieve(cacheKey string) ([]byte, status.LookupStatus, error) {
	var data []byte
	var expired bool
	err := c.dbh.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(c.bucket).Get([]byte(cacheKey))
		if len(v) < expiryLen {
			return cache.ErrKNF
		}
		exp := int64(binary.BigEndian.Uint64(v))
		if exp != 0 && c.now().UnixNano() >= exp {
			expired = true
			return cache.ErrKNF
		}
		// bbolt values are only valid for the life of the transaction
		data = make([]byte, len(v)-expiryLen)
		copy(data, v[expiryLen:])
		return nil
	})
	if expired {
		c.Remove(cacheKey)
	}
	if err != nil {
		return nil, status.LookupStatusKeyMiss, err
	}
	return data, status.LookupStatusHit, nil
}

// Remove deletes the keys from the bucket
func (c *CacheClient) Remove(cacheKeys ...string) error {
	return c.dbh.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(c.bucket)
		for _, cacheKey := range cacheKeys {
			if err := b.Delete([]byte(cacheKey)); err != nil {
				return err
			}
		}
		return nil
	})
}
