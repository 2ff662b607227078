// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package redisdriver adapts github.com/redis/go-redis/v9 to the driver
// interface, grounded on internal/ratelimiter/persistence/clients.go's
// GoRedisEvaler (redis.NewClient(&redis.Options{Addr: addr})).
package redisdriver

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"kvbench/internal/driver"
)

func init() {
	driver.Register("redis", func() driver.Driver { return New() })
}

// Redis implements driver.Driver over a single redis.Client. Every value is
// written and read as an opaque string, matching the engine's key/value
// bytes contract.
type Redis struct {
	client *redis.Client
}

// New constructs an unopened Redis driver.
func New() *Redis { return &Redis{} }

// Name implements driver.Driver.
func (r *Redis) Name() string { return "redis" }

// Open implements driver.Driver. opts.DataDir is unused: Redis is a network
// service, not an embedded store, so the address defaults to the local
// standard port; a differently addressed instance is out of this
// interface's scope, matching Options carrying nothing beyond what the
// engine's other embedded backends need.
func (r *Redis) Open(ctx context.Context, opts driver.Options) error {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redisdriver: ping: %w", err)
	}
	r.client = client
	return nil
}

// Close implements driver.Driver.
func (r *Redis) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

type redisContext struct {
	pipe   redis.Pipeliner
	cursor uint64
	batch  []string
}

// ThreadNew implements driver.Driver.
func (r *Redis) ThreadNew() (driver.Context, error) {
	return &redisContext{}, nil
}

// ThreadDispose implements driver.Driver.
func (r *Redis) ThreadDispose(driver.Context) {}

// Begin implements driver.Driver, opening a pipeline for write kinds
// (Set/Delete/Batch/Crud) so a whole block round-trips once on Done, and
// priming a SCAN cursor for Iterate. The pipeline batches commands but is
// not a transaction: a Get inside a Batch or Crud block goes straight to
// the server and does not see the block's queued writes.
func (r *Redis) Begin(ctx driver.Context, kind driver.Kind) driver.Result {
	c, ok := ctx.(*redisContext)
	if !ok {
		return driver.SystemError
	}

	if driver.MaskWrite.Has(kind) {
		c.pipe = r.client.Pipeline()
	}
	if kind == driver.Iterate {
		c.cursor = 0
		c.batch = nil
	}
	return driver.Ok
}

// Next implements driver.Driver.
func (r *Redis) Next(ctx driver.Context, kind driver.Kind, rec *driver.Record) driver.Result {
	c, ok := ctx.(*redisContext)
	if !ok {
		return driver.SystemError
	}

	switch kind {
	case driver.Set:
		if c.pipe == nil {
			return driver.SystemError
		}
		c.pipe.Set(context.Background(), string(rec.Key), rec.Value, 0)
		return driver.Ok

	case driver.Delete:
		if c.pipe == nil {
			return driver.SystemError
		}
		c.pipe.Del(context.Background(), string(rec.Key))
		return driver.Ok

	case driver.Get:
		val, err := r.client.Get(context.Background(), string(rec.Key)).Result()
		if err == redis.Nil {
			return driver.NotFound
		}
		if err != nil {
			return driver.SystemError
		}
		rec.Value = []byte(val)
		return driver.Ok

	case driver.Iterate:
		return r.nextScanned(context.Background(), c, rec)

	default:
		return driver.UnexpectedError
	}
}

func (r *Redis) nextScanned(ctx context.Context, c *redisContext, rec *driver.Record) driver.Result {
	for len(c.batch) == 0 {
		keys, cursor, err := r.client.Scan(ctx, c.cursor, "", 256).Result()
		if err != nil {
			return driver.SystemError
		}
		c.cursor = cursor
		c.batch = keys
		if cursor == 0 && len(keys) == 0 {
			return driver.NotFound
		}
	}

	key := c.batch[0]
	c.batch = c.batch[1:]

	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return r.nextScanned(ctx, c, rec)
	}
	if err != nil {
		return driver.SystemError
	}
	rec.Key = []byte(key)
	rec.Value = []byte(val)
	return driver.Ok
}

// Done implements driver.Driver, flushing the write pipeline if one is open.
func (r *Redis) Done(ctx driver.Context, kind driver.Kind) driver.Result {
	c, ok := ctx.(*redisContext)
	if !ok {
		return driver.Ok
	}

	if c.pipe == nil {
		return driver.Ok
	}
	_, err := c.pipe.Exec(context.Background())
	c.pipe = nil
	if err != nil && err != redis.Nil {
		return driver.SystemError
	}
	return driver.Ok
}
