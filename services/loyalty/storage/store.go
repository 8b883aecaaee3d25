// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage defines the local record store used by every loyalty
// component.
//
// The interface is deliberately narrow: get, set, delete, prefix scan.
// Callers never see which storage technology backs it; exactly one
// implementation (BadgerDB) is active per runtime. Writes are atomic per
// key. There is no cross-key transaction: a caller mutating two keys must
// tolerate the first write succeeding while the second fails.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/punchcard/services/loyalty/storage/badger"
)

// ErrStoreClosed is returned when operations are called on a closed store.
var ErrStoreClosed = errors.New("record store is closed")

// KV is a key/value pair returned by prefix scans.
type KV struct {
	Key   string
	Value []byte
}

// RecordStore is the durable key/value persistence abstraction. All methods
// are safe for concurrent use.
type RecordStore interface {
	// Get returns the value for key. A missing key is (nil, false, nil),
	// not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key, replacing any previous value. The write
	// is atomic for this key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// ListPrefix returns all pairs whose key starts with prefix, in
	// lexicographic key order.
	ListPrefix(ctx context.Context, prefix string) ([]KV, error)

	// Close releases the underlying database.
	Close() error
}

// BadgerStore implements RecordStore on an embedded BadgerDB.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewBadgerStore wraps an opened BadgerDB as a RecordStore. The store takes
// ownership of the database: Close closes it.
func NewBadgerStore(db *badger.DB, logger *slog.Logger) *BadgerStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerStore{db: db, logger: logger}
}

// OpenBadgerStore opens a BadgerDB at path (in-memory when path is "") and
// wraps it as a RecordStore.
func OpenBadgerStore(path string, logger *slog.Logger) (*BadgerStore, error) {
	cfg := badger.DefaultConfig()
	cfg.Path = path
	cfg.Logger = logger
	if path == "" {
		cfg = badger.InMemoryConfig()
		cfg.Logger = logger
	}
	db, err := badger.OpenDB(cfg)
	if err != nil {
		return nil, err
	}
	return NewBadgerStore(db, logger), nil
}

// Get implements RecordStore.
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, dgbadger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// Set implements RecordStore.
func (s *BadgerStore) Set(ctx context.Context, key string, value []byte) error {
	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Delete implements RecordStore.
func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// ListPrefix implements RecordStore. Badger iterates keys in lexicographic
// order, which gives the outbox its FIFO drain order for free.
func (s *BadgerStore) ListPrefix(ctx context.Context, prefix string) ([]KV, error) {
	var out []KV
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, KV{Key: string(item.Key()), Value: value})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list prefix %q: %w", prefix, err)
	}
	return out, nil
}

// Close implements RecordStore.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// GetJSON loads the value at key and unmarshals it into T. A missing key
// returns (zero, false, nil). Malformed stored JSON is a real error: it
// means local corruption, not an expected miss.
func GetJSON[T any](ctx context.Context, s RecordStore, key string) (T, bool, error) {
	var v T
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return v, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("unmarshal %q: %w", key, err)
	}
	return v, true, nil
}

// SetJSON marshals v and stores it under key.
func SetJSON[T any](ctx context.Context, s RecordStore, key string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}
