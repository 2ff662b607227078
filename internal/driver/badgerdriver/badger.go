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

// Package badgerdriver adapts github.com/dgraph-io/badger/v3 to the driver
// interface. It is grounded on ProtonMail-gluon's store/badger.go, which
// wires the same LSM-tree engine behind a comparable transactional
// key/value boundary.
package badgerdriver

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v3"

	"kvbench/internal/driver"
	"kvbench/internal/logging"
)

func init() {
	driver.Register("badger", func() driver.Driver { return New() })
}

// Badger implements driver.Driver over a single badger.DB.
type Badger struct {
	db *badger.DB
}

// New constructs an unopened Badger driver.
func New() *Badger { return &Badger{} }

// Name implements driver.Driver.
func (b *Badger) Name() string { return "badger" }

// Open implements driver.Driver.
func (b *Badger) Open(_ context.Context, opts driver.Options) error {
	badgerOpts := badger.DefaultOptions(opts.DataDir).
		WithLogger(logging.Log).
		WithSyncWrites(opts.SyncMode == driver.SyncModeSync)

	if opts.SyncMode == driver.SyncModeNoSync {
		badgerOpts = badgerOpts.WithSyncWrites(false).WithBypassLockGuard(false)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return fmt.Errorf("badgerdriver: open %s: %w", opts.DataDir, err)
	}
	b.db = db
	return nil
}

// Close implements driver.Driver.
func (b *Badger) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

type badgerContext struct {
	txn  *badger.Txn
	iter *badger.Iterator
}

// ThreadNew implements driver.Driver. Badger transactions are cheap and
// short-lived; the per-worker context only needs to hold the current one.
func (b *Badger) ThreadNew() (driver.Context, error) {
	return &badgerContext{}, nil
}

// ThreadDispose implements driver.Driver.
func (b *Badger) ThreadDispose(ctx driver.Context) {
	c, _ := ctx.(*badgerContext)
	if c != nil && c.iter != nil {
		c.iter.Close()
	}
}

func isWriteKind(kind driver.Kind) bool { return driver.MaskWrite.Has(kind) }

// Begin implements driver.Driver, opening a read-write transaction for
// write kinds (Set/Delete/Batch/Crud) or read-only otherwise, and priming
// a forward iterator for Iterate.
func (b *Badger) Begin(ctx driver.Context, kind driver.Kind) driver.Result {
	c, ok := ctx.(*badgerContext)
	if !ok {
		return driver.SystemError
	}

	c.txn = b.db.NewTransaction(isWriteKind(kind))
	if kind == driver.Iterate {
		c.iter = c.txn.NewIterator(badger.DefaultIteratorOptions)
		c.iter.Rewind()
	}
	return driver.Ok
}

// Next implements driver.Driver.
func (b *Badger) Next(ctx driver.Context, kind driver.Kind, rec *driver.Record) driver.Result {
	c, ok := ctx.(*badgerContext)
	if !ok || c.txn == nil {
		return driver.SystemError
	}

	switch kind {
	case driver.Set:
		if err := c.txn.Set(append([]byte(nil), rec.Key...), append([]byte(nil), rec.Value...)); err != nil {
			return driver.SystemError
		}
		return driver.Ok

	case driver.Get:
		item, err := c.txn.Get(rec.Key)
		if err == badger.ErrKeyNotFound {
			return driver.NotFound
		}
		if err != nil {
			return driver.SystemError
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return driver.SystemError
		}
		rec.Value = val
		return driver.Ok

	case driver.Delete:
		if _, err := c.txn.Get(rec.Key); err == badger.ErrKeyNotFound {
			return driver.NotFound
		}
		if err := c.txn.Delete(rec.Key); err != nil {
			return driver.SystemError
		}
		return driver.Ok

	case driver.Iterate:
		if c.iter == nil || !c.iter.Valid() {
			return driver.NotFound
		}
		item := c.iter.Item()
		rec.Key = item.KeyCopy(nil)
		val, err := item.ValueCopy(nil)
		if err != nil {
			return driver.SystemError
		}
		rec.Value = val
		c.iter.Next()
		return driver.Ok

	default:
		return driver.UnexpectedError
	}
}

// Done implements driver.Driver, committing write transactions, discarding
// read ones, and releasing the Iterate cursor.
func (b *Badger) Done(ctx driver.Context, kind driver.Kind) driver.Result {
	c, ok := ctx.(*badgerContext)
	if !ok || c.txn == nil {
		return driver.Ok
	}

	if kind == driver.Iterate && c.iter != nil {
		c.iter.Close()
		c.iter = nil
	}

	result := driver.Ok
	if isWriteKind(kind) {
		if err := c.txn.Commit(); err != nil {
			result = driver.SystemError
		}
	} else {
		c.txn.Discard()
	}
	c.txn = nil
	return result
}
