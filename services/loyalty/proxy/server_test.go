// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/punchcard/services/loyalty/remote"
)

func newTestProxy(t *testing.T) (*remote.Memory, *remote.HTTPStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	backend := remote.NewMemory()
	server := httptest.NewServer(NewRouter(backend, nil))
	t.Cleanup(server.Close)
	client := remote.NewHTTPStore(remote.HTTPConfig{BaseURL: server.URL})
	return backend, client
}

// The client and the proxy speak the same dialect; every Store method must
// round-trip through HTTP unchanged.
func TestProxy_ClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, client := newTestProxy(t)

	require.NoError(t, client.Ping(ctx))

	// Get on a missing key is a miss, not an error.
	_, found, err := client.Get(ctx, "reward:r1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, client.Set(ctx, "reward:r1", []byte(`{"rewardId":"r1"}`)))

	value, found, err := client.Get(ctx, "reward:r1")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"rewardId":"r1"}`, string(value))

	exists, err := client.Exists(ctx, "reward:r1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, client.Set(ctx, "reward:r2", []byte(`{"rewardId":"r2"}`)))
	keys, err := client.Keys(ctx, "reward:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"reward:r1", "reward:r2"}, keys)

	require.NoError(t, client.Del(ctx, "reward:r1"))
	exists, err = client.Exists(ctx, "reward:r1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestProxy_Sets(t *testing.T) {
	ctx := context.Background()
	_, client := newTestProxy(t)

	// A missing set is empty.
	members, err := client.SMembers(ctx, "customer:c1:rewards")
	require.NoError(t, err)
	assert.Empty(t, members)

	require.NoError(t, client.SAdd(ctx, "customer:c1:rewards", "r1", "r2", "r1"))
	members, err = client.SMembers(ctx, "customer:c1:rewards")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"r1", "r2"}, members)

	require.NoError(t, client.SRem(ctx, "customer:c1:rewards", "r1"))
	members, err = client.SMembers(ctx, "customer:c1:rewards")
	require.NoError(t, err)
	assert.Equal(t, []string{"r2"}, members)
}

func TestProxy_BulkOps(t *testing.T) {
	ctx := context.Background()
	_, client := newTestProxy(t)

	require.NoError(t, client.MSet(ctx, map[string][]byte{
		"reward:r1": []byte(`{"a":1}`),
		"reward:r2": []byte(`{"b":2}`),
	}))

	values, err := client.MGet(ctx, "reward:r1", "reward:r2", "reward:missing")
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.JSONEq(t, `{"a":1}`, string(values["reward:r1"]))
	_, ok := values["reward:missing"]
	assert.False(t, ok, "missing keys are absent, not null entries")
}

func TestProxy_RecordAndEntityEndpoints(t *testing.T) {
	ctx := context.Background()
	backend, client := newTestProxy(t)

	require.NoError(t, client.PutRecord(ctx, "c1", []byte(`{"customerId":"c1"}`)))
	raw, found, err := backend.Get(ctx, "customer:c1")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"customerId":"c1"}`, string(raw))

	require.NoError(t, client.PutEntity(ctx, "reward", "r1", []byte(`{"rewardId":"r1"}`)))
	raw, found, err = client.GetEntity(ctx, "reward", "r1")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"rewardId":"r1"}`, string(raw))

	_, found, err = client.GetEntity(ctx, "reward", "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestProxy_UnavailableBackendIs503(t *testing.T) {
	gin.SetMode(gin.TestMode)
	backend := remote.NewMemory()
	backend.SetAvailable(false)
	server := httptest.NewServer(NewRouter(backend, nil))
	defer server.Close()

	resp, err := http.Get(server.URL + "/v1/kv/reward:r1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestProxy_BadRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	server := httptest.NewServer(NewRouter(remote.NewMemory(), nil))
	defer server.Close()

	resp, err := http.Post(server.URL+"/v1/kv/mget", "application/json", strings.NewReader(`{`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(server.URL+"/v1/sets/s1", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
