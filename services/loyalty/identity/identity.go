// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package identity mints and persists the stable ids this device operates
// under. Ids supplied by an external identity provider are accepted
// verbatim; otherwise a UUID is generated once and reused forever.
package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/AleutianAI/punchcard/services/loyalty/storage"
)

const (
	deviceIDKey   = "device:id"
	customerIDKey = "customer:id"
)

// EnsureDeviceID returns the persisted device id, minting one on first use.
func EnsureDeviceID(ctx context.Context, store storage.RecordStore) (string, error) {
	return ensure(ctx, store, deviceIDKey, "")
}

// EnsureCustomerID returns the customer id this device operates under.
// A non-empty configured id (e.g. from an identity provider) wins and is
// persisted; otherwise the previously stored or freshly minted id is used.
func EnsureCustomerID(ctx context.Context, store storage.RecordStore, configured string) (string, error) {
	return ensure(ctx, store, customerIDKey, configured)
}

func ensure(ctx context.Context, store storage.RecordStore, key, configured string) (string, error) {
	if configured != "" {
		if err := storage.SetJSON(ctx, store, key, configured); err != nil {
			return "", fmt.Errorf("persist %s: %w", key, err)
		}
		return configured, nil
	}

	id, found, err := storage.GetJSON[string](ctx, store, key)
	if err != nil {
		return "", fmt.Errorf("load %s: %w", key, err)
	}
	if found && id != "" {
		return id, nil
	}

	id = uuid.NewString()
	if err := storage.SetJSON(ctx, store, key, id); err != nil {
		return "", fmt.Errorf("persist %s: %w", key, err)
	}
	return id, nil
}
