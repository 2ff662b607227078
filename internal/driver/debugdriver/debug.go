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

// Package debugdriver implements the reference driver used by the engine's
// end-to-end tests: it performs no I/O, logs every call, and always
// returns Ok.
package debugdriver

import (
	"context"
	"fmt"
	"sync/atomic"

	"kvbench/internal/driver"
	"kvbench/internal/logging"
)

func init() {
	driver.Register("debug", func() driver.Driver { return New() })
}

// Debug is the no-op reference driver.
type Debug struct {
	nextCtxID atomic.Int64
}

// New constructs a Debug driver.
func New() *Debug { return &Debug{} }

// Name implements driver.Driver.
func (d *Debug) Name() string { return "debug" }

// Open implements driver.Driver.
func (d *Debug) Open(_ context.Context, opts driver.Options) error {
	logging.Log.WithField("driver", d.Name()).Infof("open(%s)", opts.DataDir)
	return nil
}

// Close implements driver.Driver.
func (d *Debug) Close() error {
	logging.Log.WithField("driver", d.Name()).Info("close()")
	return nil
}

type debugContext struct {
	id int64
}

// ThreadNew implements driver.Driver.
func (d *Debug) ThreadNew() (driver.Context, error) {
	id := d.nextCtxID.Add(1)
	logging.Log.WithField("driver", d.Name()).Debugf("thread_new() = %#x", id)
	return &debugContext{id: id}, nil
}

// ThreadDispose implements driver.Driver.
func (d *Debug) ThreadDispose(ctx driver.Context) {
	c, _ := ctx.(*debugContext)
	id := int64(-1)
	if c != nil {
		id = c.id
	}
	logging.Log.WithField("driver", d.Name()).Debugf("thread_dispose(%#x)", id)
}

// Begin implements driver.Driver.
func (d *Debug) Begin(ctx driver.Context, kind driver.Kind) driver.Result {
	c, _ := ctx.(*debugContext)
	logging.Log.WithField("driver", d.Name()).Debugf("begin(%#x, %s)", ctxID(c), kind)
	return driver.Ok
}

// Next implements driver.Driver.
func (d *Debug) Next(ctx driver.Context, kind driver.Kind, kv *driver.Record) driver.Result {
	c, _ := ctx.(*debugContext)
	switch kind {
	case driver.Set:
		logging.Log.WithField("driver", d.Name()).Debugf("next(%#x, %s, %s -> %s)", ctxID(c), kind, kv.Key, kv.Value)
	case driver.Get, driver.Delete:
		logging.Log.WithField("driver", d.Name()).Debugf("next(%#x, %s, %s)", ctxID(c), kind, kv.Key)
	case driver.Iterate:
		logging.Log.WithField("driver", d.Name()).Debugf("next(%#x, %s)", ctxID(c), kind)
	default:
		logging.Log.WithField("driver", d.Name()).Debugf("next(%#x, %s)", ctxID(c), kind)
	}
	return driver.Ok
}

// Done implements driver.Driver.
func (d *Debug) Done(ctx driver.Context, kind driver.Kind) driver.Result {
	c, _ := ctx.(*debugContext)
	logging.Log.WithField("driver", d.Name()).Debugf("done(%#x, %s)", ctxID(c), kind)
	return driver.Ok
}

func ctxID(c *debugContext) string {
	if c == nil {
		return "nil"
	}
	return fmt.Sprintf("%#x", c.id)
}
