// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package syncq implements the durable sync outbox and the pull/merge
// reconciler.
//
// Mutation flow is asymmetric on purpose: scan events save locally and are
// never queued (stamp collection must work fully offline, with no network
// round-trip per scan), while trust-sensitive user actions (redemption,
// profile edits) append an operation to the outbox. A sync cycle drains the
// outbox, then pulls remote entities and reconciles them against local
// copies by version and timestamp.
package syncq

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/punchcard/pkg/validation"
)

// OpType classifies an outbox operation.
type OpType string

const (
	// OpCreate creates a remote entity.
	OpCreate OpType = "create"
	// OpUpdate replaces a remote entity.
	OpUpdate OpType = "update"
	// OpDelete removes a remote entity.
	OpDelete OpType = "delete"
)

// Well-known entity types. The engine treats entity types as open strings;
// these constants only name the ones this app produces.
const (
	EntityCustomer   = "customer"
	EntityReward     = "reward"
	EntityCampaign   = "campaign"
	EntityRedemption = "redemption"
)

var (
	// ErrInvalidOperation is returned (and logged) when an enqueue request
	// is missing required fields. The operation is dropped, never stored.
	ErrInvalidOperation = errors.New("invalid sync operation")
)

// Operation is a single durable outbox entry.
type Operation struct {
	ID         string          `json:"id"`
	Type       OpType          `json:"type"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Data       json.RawMessage `json:"data,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Retries    int             `json:"retries"`

	// key is where this operation lives in the record store. Keys embed a
	// monotonic sequence so a prefix scan yields FIFO order.
	key string
}

// Validate checks the shape rules: delete needs entity type and id;
// create/update additionally need data. Entity type and id become store
// keys, so their character set is restricted too.
func (op *Operation) Validate() error {
	if err := validation.ValidateEntityType(op.EntityType); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}
	if err := validation.ValidateEntityID(op.EntityID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}
	switch op.Type {
	case OpDelete:
		return nil
	case OpCreate, OpUpdate:
		if len(op.Data) == 0 {
			return ErrInvalidOperation
		}
		return nil
	default:
		return ErrInvalidOperation
	}
}

// EntityKey is the remote (and local mirror) key for the entity this
// operation targets.
func (op *Operation) EntityKey() string {
	return op.EntityType + ":" + op.EntityID
}

// Metadata is attached to every entity that participates in
// reconciliation. It is the whole conflict-resolution state: a strictly
// higher version wins outright, a tie goes to the more recent LastModified.
type Metadata struct {
	Version      int       `json:"version"`
	LastModified time.Time `json:"lastModified"`
	DeviceID     string    `json:"deviceId"`
	IsDirty      bool      `json:"isDirty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Touch records a local mutation: bump the version, stamp LastModified,
// and mark dirty so the next pull pushes this copy if it wins.
func (m *Metadata) Touch(deviceID string, now time.Time) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.Version++
	m.LastModified = now
	m.DeviceID = deviceID
	m.IsDirty = true
}

// syncEnvelope is the minimal shape needed to read or rewrite an entity's
// metadata without knowing its full type.
type syncEnvelope struct {
	SyncMeta *Metadata `json:"syncMetadata"`
}

// extractMetadata reads the syncMetadata block from a raw entity document.
// Entities without one reconcile as version 0 (they always lose).
func extractMetadata(raw []byte) (*Metadata, error) {
	var env syncEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if env.SyncMeta == nil {
		return &Metadata{}, nil
	}
	return env.SyncMeta, nil
}

// rewriteMetadata returns raw with its syncMetadata block replaced,
// preserving every other field of the document.
func rewriteMetadata(raw []byte, meta *Metadata) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	metaRaw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	doc["syncMetadata"] = metaRaw
	return json.Marshal(doc)
}
