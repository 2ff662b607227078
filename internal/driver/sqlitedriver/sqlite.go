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

// Package sqlitedriver adapts github.com/mattn/go-sqlite3 to the driver
// interface via database/sql. It is grounded on
// internal/ratelimiter/persistence/postgres.go's sql.DB/Tx idiom, swapped
// onto a single-file embedded engine instead of a client/server one.
package sqlitedriver

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"kvbench/internal/driver"
)

func init() {
	driver.Register("sqlite", func() driver.Driver { return New() })
}

const schema = `CREATE TABLE IF NOT EXISTS kv (key BLOB PRIMARY KEY, value BLOB NOT NULL)`

// SQLite implements driver.Driver over a single sqlite3 file.
type SQLite struct {
	db *sql.DB
}

// New constructs an unopened SQLite driver.
func New() *SQLite { return &SQLite{} }

// Name implements driver.Driver.
func (s *SQLite) Name() string { return "sqlite" }

// Open implements driver.Driver.
func (s *SQLite) Open(ctx context.Context, opts driver.Options) error {
	dsn := filepath.Join(opts.DataDir, "kvbench.db")
	synchronous, journal := "FULL", "WAL"
	if opts.SyncMode == driver.SyncModeNoSync {
		synchronous, journal = "OFF", "MEMORY"
	}
	if opts.WalMode == driver.WalDisabled {
		journal = "DELETE"
	}
	dsn += "?_synchronous=" + synchronous + "&_journal_mode=" + journal

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("sqlitedriver: open %s: %w", dsn, err)
	}
	// SQLite serializes writers internally; a single shared connection avoids
	// SQLITE_BUSY under concurrent workers hammering the same file.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return fmt.Errorf("sqlitedriver: create schema: %w", err)
	}
	s.db = db
	return nil
}

// Close implements driver.Driver.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

type sqliteContext struct {
	tx   *sql.Tx
	rows *sql.Rows
}

// ThreadNew implements driver.Driver.
func (s *SQLite) ThreadNew() (driver.Context, error) {
	return &sqliteContext{}, nil
}

// ThreadDispose implements driver.Driver.
func (s *SQLite) ThreadDispose(ctx driver.Context) {
	c, _ := ctx.(*sqliteContext)
	if c != nil && c.rows != nil {
		c.rows.Close()
	}
}

// Begin implements driver.Driver, opening one transaction per block and, for
// Iterate, a streaming cursor over the whole table.
func (s *SQLite) Begin(ctx driver.Context, kind driver.Kind) driver.Result {
	c, ok := ctx.(*sqliteContext)
	if !ok {
		return driver.SystemError
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return driver.SystemError
	}
	c.tx = tx

	if kind == driver.Iterate {
		rows, err := tx.Query(`SELECT key, value FROM kv ORDER BY key`)
		if err != nil {
			return driver.SystemError
		}
		c.rows = rows
	}
	return driver.Ok
}

// Next implements driver.Driver.
func (s *SQLite) Next(ctx driver.Context, kind driver.Kind, rec *driver.Record) driver.Result {
	c, ok := ctx.(*sqliteContext)
	if !ok || c.tx == nil {
		return driver.SystemError
	}

	switch kind {
	case driver.Set:
		if _, err := c.tx.Exec(`INSERT INTO kv(key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, rec.Key, rec.Value); err != nil {
			return driver.SystemError
		}
		return driver.Ok

	case driver.Get:
		var value []byte
		err := c.tx.QueryRow(`SELECT value FROM kv WHERE key = ?`, rec.Key).Scan(&value)
		if err == sql.ErrNoRows {
			return driver.NotFound
		}
		if err != nil {
			return driver.SystemError
		}
		rec.Value = value
		return driver.Ok

	case driver.Delete:
		res, err := c.tx.Exec(`DELETE FROM kv WHERE key = ?`, rec.Key)
		if err != nil {
			return driver.SystemError
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return driver.NotFound
		}
		return driver.Ok

	case driver.Iterate:
		if c.rows == nil || !c.rows.Next() {
			return driver.NotFound
		}
		var key, value []byte
		if err := c.rows.Scan(&key, &value); err != nil {
			return driver.SystemError
		}
		rec.Key, rec.Value = key, value
		return driver.Ok

	default:
		return driver.UnexpectedError
	}
}

// Done implements driver.Driver.
func (s *SQLite) Done(ctx driver.Context, kind driver.Kind) driver.Result {
	c, ok := ctx.(*sqliteContext)
	if !ok || c.tx == nil {
		return driver.Ok
	}

	if c.rows != nil {
		c.rows.Close()
		c.rows = nil
	}

	result := driver.Ok
	if err := c.tx.Commit(); err != nil {
		result = driver.SystemError
	}
	c.tx = nil
	return result
}
