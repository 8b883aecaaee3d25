// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package syncq

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/punchcard/services/loyalty/storage"
)

// outboxPrefix namespaces outbox entries in the record store. Entry keys
// embed a nanosecond timestamp plus a per-process counter, so the store's
// lexicographic prefix scan yields FIFO-ish drain order.
const outboxPrefix = "syncop:"

// Outbox is the durable queue of not-yet-transmitted mutations.
type Outbox struct {
	store  storage.RecordStore
	logger *slog.Logger
	seq    atomic.Uint64
	now    func() time.Time
}

// NewOutbox creates an outbox on the given record store.
func NewOutbox(store storage.RecordStore, logger *slog.Logger) *Outbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Outbox{store: store, logger: logger, now: time.Now}
}

// Append validates and durably stores a new operation. Invalid operations
// are dropped with a warning; they never corrupt the queue. Returns the
// stored operation, or nil if it was rejected or the write failed.
func (o *Outbox) Append(ctx context.Context, opType OpType, entityType, entityID string, data []byte) *Operation {
	now := o.now()
	op := &Operation{
		ID:         uuid.NewString(),
		Type:       opType,
		EntityType: entityType,
		EntityID:   entityID,
		Data:       data,
		Timestamp:  now,
	}
	if err := op.Validate(); err != nil {
		o.logger.Warn("dropping invalid sync operation",
			"type", string(opType),
			"entity_type", entityType,
			"entity_id", entityID,
			"error", err)
		return nil
	}

	op.key = fmt.Sprintf("%s%020d-%06d", outboxPrefix, now.UnixNano(), o.seq.Add(1))
	if err := storage.SetJSON(ctx, o.store, op.key, op); err != nil {
		o.logger.Warn("outbox append failed", "op_id", op.ID, "error", err)
		return nil
	}
	return op
}

// List returns all queued operations in drain order.
func (o *Outbox) List(ctx context.Context) ([]*Operation, error) {
	kvs, err := o.store.ListPrefix(ctx, outboxPrefix)
	if err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	ops := make([]*Operation, 0, len(kvs))
	for _, kv := range kvs {
		op, found, err := storage.GetJSON[Operation](ctx, o.store, kv.Key)
		if err != nil {
			// A corrupted entry is skipped, not fatal: the rest of the
			// queue must still drain.
			o.logger.Warn("skipping corrupted outbox entry", "key", kv.Key, "error", err)
			continue
		}
		if !found {
			// Removed between the prefix scan and this read.
			continue
		}
		op.key = kv.Key
		ops = append(ops, &op)
	}
	return ops, nil
}

// Update rewrites an operation in place (same key), used to persist an
// incremented retry counter.
func (o *Outbox) Update(ctx context.Context, op *Operation) error {
	if op.key == "" {
		return fmt.Errorf("operation %s has no storage key", op.ID)
	}
	return storage.SetJSON(ctx, o.store, op.key, op)
}

// Remove deletes an operation from the queue.
func (o *Outbox) Remove(ctx context.Context, op *Operation) error {
	if op.key == "" {
		return fmt.Errorf("operation %s has no storage key", op.ID)
	}
	return o.store.Delete(ctx, op.key)
}

// Len returns the number of queued operations.
func (o *Outbox) Len(ctx context.Context) (int, error) {
	kvs, err := o.store.ListPrefix(ctx, outboxPrefix)
	if err != nil {
		return 0, err
	}
	return len(kvs), nil
}
