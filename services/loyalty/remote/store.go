// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package remote defines the shared remote store consumed by the sync
// engine, and the HTTP client that speaks the hosted key/value proxy
// dialect.
//
// The remote store is the only resource genuinely shared across devices.
// This core never locks it; all contention is resolved by the
// version/timestamp rule in the reconciler.
package remote

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the remote store cannot be reached or
// reports itself unhealthy. The sync engine treats it as "try again later",
// never as data loss.
var ErrUnavailable = errors.New("remote store unavailable")

// Store is the key/value contract offered by the sync proxy. Values are
// opaque JSON documents; set members are plain strings (entity ids).
type Store interface {
	// Ping reports whether the remote store is reachable and healthy.
	Ping(ctx context.Context) error

	// Get returns the value at key. A missing key is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value at key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Del removes key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Keys returns all keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// SAdd adds members to the set at key, creating it if absent.
	SAdd(ctx context.Context, key string, members ...string) error

	// SMembers returns the members of the set at key. A missing set is an
	// empty slice.
	SMembers(ctx context.Context, key string) ([]string, error)

	// SRem removes members from the set at key.
	SRem(ctx context.Context, key string, members ...string) error

	// MGet returns the values for keys. Missing keys are absent from the
	// result map.
	MGet(ctx context.Context, keys ...string) (map[string][]byte, error)

	// MSet stores all pairs. Not atomic across keys; callers must tolerate
	// partial success.
	MSet(ctx context.Context, pairs map[string][]byte) error
}

// Probe supplies the connectivity booleans the sync engine consults before
// doing any work. Implementations must be cheap enough to call per cycle.
type Probe interface {
	// Online reports whether the device has network connectivity at all.
	Online(ctx context.Context) bool

	// RemoteAvailable reports whether the remote store answers.
	RemoteAvailable(ctx context.Context) bool
}
