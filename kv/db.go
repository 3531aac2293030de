// Copyright 2025 The Stoicheia Authors
// This file is part of Stoicheia.
//
// Stoicheia is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Stoicheia is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Stoicheia. If not, see <http://www.gnu.org/licenses/>.

// Package kv owns the embedded relational store: the schema, the session
// pragmas and the transaction discipline. Every multi-row write in the
// engine happens inside exactly one Update.
package kv

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Synchronous maps to PRAGMA synchronous. Off is the default: the engine is
// a cache-friendly local store and the WAL journal bounds the damage of a
// crash to the last transactions.
type Synchronous string

const (
	SynchronousOff    Synchronous = "off"
	SynchronousNormal Synchronous = "normal"
	SynchronousFull   Synchronous = "full"
)

// ParseSynchronous accepts the config spelling of a synchronous level.
func ParseSynchronous(s string) (Synchronous, error) {
	switch Synchronous(strings.ToLower(s)) {
	case "", SynchronousOff:
		return SynchronousOff, nil
	case SynchronousNormal:
		return SynchronousNormal, nil
	case SynchronousFull:
		return SynchronousFull, nil
	}
	return "", fmt.Errorf("unknown synchronous level %q", s)
}

const busyTimeoutMs = 10_000

// DB is one connection to a store file. Not safe for concurrent use; open
// one DB per handle and let sqlite's WAL journal arbitrate between handles.
type DB struct {
	sql  *sql.DB
	path string
	log  *zap.Logger
}

// Open opens (creating if necessary) the store at path, applies the session
// pragmas and the idempotent schema, and returns the handle.
func Open(path string, synchronous Synchronous, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if synchronous == "" {
		synchronous = SynchronousOff
	}
	dsn := "file:" + path +
		"?_pragma=busy_timeout(" + fmt.Sprint(busyTimeoutMs) + ")" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(" + strings.ToUpper(string(synchronous)) + ")"
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open store %q", path)
	}
	// database/sql pools connections; sqlite pragmas and transaction state
	// are per-connection, so the pool is pinned to a single connection.
	handle.SetMaxOpenConns(1)

	db := &DB{sql: handle, path: path, log: log}
	if err := db.ensureSchema(); err != nil {
		_ = handle.Close()
		return nil, err
	}
	log.Debug("store opened",
		zap.String("path", path),
		zap.String("synchronous", string(synchronous)),
		zap.String("schema", fmt.Sprintf("%d.%d.%d", DBSchemaVersion.Major, DBSchemaVersion.Minor, DBSchemaVersion.Patch)))
	return db, nil
}

func (db *DB) ensureSchema() error {
	if _, err := db.sql.Exec(schema); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}

// Path returns the store file path.
func (db *DB) Path() string { return db.path }

// Close closes the underlying store connection.
func (db *DB) Close() error {
	return errors.Wrap(db.sql.Close(), "close store")
}

// Update runs fn inside one write transaction. Foreign keys are deferred to
// the transaction commit so parent and child rows may be inserted in either
// order. fn returning an error rolls everything back.
func (db *DB) Update(fn func(tx *sql.Tx) error) error {
	tx, err := db.sql.Begin()
	if err != nil {
		return errors.Wrap(err, "begin write tx")
	}
	if _, err := tx.Exec("PRAGMA defer_foreign_keys = ON"); err != nil {
		_ = tx.Rollback()
		return errors.Wrap(err, "defer foreign keys")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit write tx")
}

// View runs fn inside one read transaction, so tag resolution and patch
// queries in a single fetch observe one consistent commit snapshot.
func (db *DB) View(fn func(tx *sql.Tx) error) error {
	tx, err := db.sql.Begin()
	if err != nil {
		return errors.Wrap(err, "begin read tx")
	}
	defer func() { _ = tx.Rollback() }()
	return fn(tx)
}

// IsConstraint reports whether err is a store-side constraint violation
// (unique or foreign key). Used to map driver errors onto engine errors.
func IsConstraint(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "constraint failed") ||
		strings.Contains(msg, "UNIQUE") ||
		strings.Contains(msg, "FOREIGN KEY")
}
