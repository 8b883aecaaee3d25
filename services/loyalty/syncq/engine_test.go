// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package syncq

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/punchcard/services/loyalty/remote"
)

func newTestManager(t *testing.T, rs remote.Store, probe remote.Probe) *Manager {
	t.Helper()
	if probe == nil {
		probe = &remote.StaticProbe{IsOnline: true, IsAvailable: true}
	}
	mgr, err := NewManager(Config{
		Store:      newTestStore(t),
		Remote:     rs,
		Probe:      probe,
		CustomerID: "cust-1",
		DeviceID:   "device-1",
	})
	require.NoError(t, err)
	return mgr
}

// rewardDoc builds a reward entity document with the given sync metadata.
func rewardDoc(t *testing.T, rewardID, businessID string, meta *Metadata) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"rewardId":     rewardID,
		"businessId":   businessID,
		"pointsEarned": 3,
		"status":       "active",
		"syncMetadata": meta,
	})
	require.NoError(t, err)
	return raw
}

func TestManager_DrainQueue_PushesAndFansOut(t *testing.T) {
	ctx := context.Background()
	rs := remote.NewMemory()
	mgr := newTestManager(t, rs, &remote.StaticProbe{})

	meta := &Metadata{Version: 2, LastModified: time.Now(), DeviceID: "device-1", IsDirty: true}
	mgr.Enqueue(ctx, OpUpdate, EntityReward, "r1", rewardDoc(t, "r1", "b1", meta))

	pushed, errs := mgr.DrainQueue(ctx)
	require.Empty(t, errs)
	assert.Equal(t, 1, pushed)

	// Entity landed at its remote key with the dirty flag cleared and the
	// version untouched.
	raw, found, err := rs.Get(ctx, "reward:r1")
	require.NoError(t, err)
	require.True(t, found)
	stored, err := extractMetadata(raw)
	require.NoError(t, err)
	assert.False(t, stored.IsDirty)
	assert.Equal(t, 2, stored.Version)

	// Reward updates fan out to the customer set and the business-side
	// scan record.
	members, err := rs.SMembers(ctx, "customer:cust-1:rewards")
	require.NoError(t, err)
	assert.Contains(t, members, "r1")

	_, found, err = rs.Get(ctx, "business:b1:customers:cust-1")
	require.NoError(t, err)
	assert.True(t, found)

	// The queue is empty afterwards.
	n, err := mgr.Outbox().Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestManager_DrainQueue_DeleteRemovesRemoteKey(t *testing.T) {
	ctx := context.Background()
	rs := remote.NewMemory()
	require.NoError(t, rs.Set(ctx, "reward:r1", []byte(`{}`)))

	mgr := newTestManager(t, rs, &remote.StaticProbe{})
	mgr.Enqueue(ctx, OpDelete, EntityReward, "r1", nil)

	pushed, errs := mgr.DrainQueue(ctx)
	require.Empty(t, errs)
	assert.Equal(t, 1, pushed)

	found, err := rs.Exists(ctx, "reward:r1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestManager_DrainQueue_DropsAfterRetryCeiling(t *testing.T) {
	ctx := context.Background()
	rs := remote.NewMemory()
	rs.SetAvailable(false)
	mgr := newTestManager(t, rs, &remote.StaticProbe{})

	meta := &Metadata{Version: 1, LastModified: time.Now()}
	mgr.Enqueue(ctx, OpUpdate, EntityReward, "r1", rewardDoc(t, "r1", "b1", meta))

	// Three failing drains exhaust the retry budget.
	for attempt := 1; attempt <= 2; attempt++ {
		pushed, errs := mgr.DrainQueue(ctx)
		assert.Zero(t, pushed)
		require.Len(t, errs, 1)

		ops, err := mgr.Outbox().List(ctx)
		require.NoError(t, err)
		require.Len(t, ops, 1, "attempt %d must re-queue", attempt)
		assert.Equal(t, attempt, ops[0].Retries)
	}

	pushed, errs := mgr.DrainQueue(ctx)
	assert.Zero(t, pushed)
	require.Len(t, errs, 1)

	n, err := mgr.Outbox().Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "third failure must drop the operation permanently")
}

// stallProbe simulates a dead network where every connectivity check eats
// its full timeout.
type stallProbe struct {
	delay time.Duration
}

func (p *stallProbe) Online(ctx context.Context) bool {
	time.Sleep(p.delay)
	return false
}

func (p *stallProbe) RemoteAvailable(ctx context.Context) bool {
	time.Sleep(p.delay)
	return false
}

func TestManager_Enqueue_NeverBlocksOnConnectivity(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t, remote.NewMemory(), &stallProbe{delay: 500 * time.Millisecond})

	start := time.Now()
	mgr.Enqueue(ctx, OpUpdate, EntityReward, "r1", rewardDoc(t, "r1", "b1", &Metadata{Version: 1}))
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 100*time.Millisecond,
		"enqueue must return after the local write, not wait for the probe")

	n, err := mgr.Outbox().Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestManager_ReconcileOne(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		local      *Metadata
		remoteMeta *Metadata
		wantRemote bool // local store ends up holding the remote copy
	}{
		{
			name:       "higher remote version wins",
			local:      &Metadata{Version: 2, LastModified: base.Add(time.Hour)},
			remoteMeta: &Metadata{Version: 3, LastModified: base},
			wantRemote: true,
		},
		{
			name:       "higher local version wins",
			local:      &Metadata{Version: 4, LastModified: base},
			remoteMeta: &Metadata{Version: 3, LastModified: base.Add(time.Hour)},
			wantRemote: false,
		},
		{
			name:       "version tie goes to newer timestamp",
			local:      &Metadata{Version: 2, LastModified: base.Add(time.Minute)},
			remoteMeta: &Metadata{Version: 2, LastModified: base},
			wantRemote: false,
		},
		{
			name:       "full tie keeps remote copy",
			local:      &Metadata{Version: 2, LastModified: base},
			remoteMeta: &Metadata{Version: 2, LastModified: base},
			wantRemote: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := remote.NewMemory()
			mgr := newTestManager(t, rs, &remote.StaticProbe{})

			localRaw := rewardDoc(t, "r1", "local-biz", tt.local)
			remoteRaw := rewardDoc(t, "r1", "remote-biz", tt.remoteMeta)
			require.NoError(t, mgr.store.Set(ctx, "reward:r1", localRaw))
			require.NoError(t, rs.Set(ctx, "reward:r1", remoteRaw))

			ok, err := mgr.ReconcileOne(ctx, EntityReward, "r1")
			require.NoError(t, err)
			assert.True(t, ok)

			stored, found, err := mgr.store.Get(ctx, "reward:r1")
			require.NoError(t, err)
			require.True(t, found)
			var doc rewardFanout
			require.NoError(t, json.Unmarshal(stored, &doc))
			if tt.wantRemote {
				assert.Equal(t, "remote-biz", doc.BusinessID)
			} else {
				assert.Equal(t, "local-biz", doc.BusinessID)
			}
		})
	}
}

func TestManager_ReconcileOne_AdoptsWhenLocalMissing(t *testing.T) {
	ctx := context.Background()
	rs := remote.NewMemory()
	mgr := newTestManager(t, rs, &remote.StaticProbe{})

	remoteRaw := rewardDoc(t, "r1", "b1", &Metadata{Version: 1})
	require.NoError(t, rs.Set(ctx, "reward:r1", remoteRaw))

	ok, err := mgr.ReconcileOne(ctx, EntityReward, "r1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, found, err := mgr.store.Get(ctx, "reward:r1")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestManager_ReconcileOne_NoRemoteCopyIsNoop(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t, remote.NewMemory(), &remote.StaticProbe{})

	ok, err := mgr.ReconcileOne(ctx, EntityReward, "r1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManager_ReconcileOne_DirtyLocalWinnerPushesBack(t *testing.T) {
	ctx := context.Background()
	rs := remote.NewMemory()
	mgr := newTestManager(t, rs, &remote.StaticProbe{})
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	localRaw := rewardDoc(t, "r1", "local-biz", &Metadata{Version: 5, LastModified: base, IsDirty: true})
	remoteRaw := rewardDoc(t, "r1", "remote-biz", &Metadata{Version: 3, LastModified: base})
	require.NoError(t, mgr.store.Set(ctx, "reward:r1", localRaw))
	require.NoError(t, rs.Set(ctx, "reward:r1", remoteRaw))

	ok, err := mgr.ReconcileOne(ctx, EntityReward, "r1")
	require.NoError(t, err)
	assert.True(t, ok)

	// The corrective write replaced the remote copy and cleared dirty on
	// both sides.
	raw, found, err := rs.Get(ctx, "reward:r1")
	require.NoError(t, err)
	require.True(t, found)
	var doc rewardFanout
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "local-biz", doc.BusinessID)
	meta, err := extractMetadata(raw)
	require.NoError(t, err)
	assert.False(t, meta.IsDirty)
	assert.Equal(t, 5, meta.Version)

	localStored, _, err := mgr.store.Get(ctx, "reward:r1")
	require.NoError(t, err)
	localMeta, err := extractMetadata(localStored)
	require.NoError(t, err)
	assert.False(t, localMeta.IsDirty)
}

func TestManager_PerformSync_OfflineLeavesQueueUntouched(t *testing.T) {
	ctx := context.Background()
	rs := remote.NewMemory()
	mgr := newTestManager(t, rs, &remote.StaticProbe{IsOnline: false, IsAvailable: false})

	// Appended directly so the explicit cycle below is the only one running.
	op := mgr.Outbox().Append(ctx, OpUpdate, EntityReward, "r1", rewardDoc(t, "r1", "b1", &Metadata{Version: 1}))
	require.NotNil(t, op)

	res, err := mgr.PerformSync(ctx, nil)
	require.ErrorIs(t, err, ErrOffline)
	assert.Nil(t, res)

	// Zero work: queue intact, remote untouched, no sync stamp.
	n, err := mgr.Outbox().Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	found, err := rs.Exists(ctx, "reward:r1")
	require.NoError(t, err)
	assert.False(t, found)

	last, err := mgr.LastSyncTime(ctx)
	require.NoError(t, err)
	assert.True(t, last.IsZero())
}

func TestManager_PerformSync_RefusesConcurrentCycles(t *testing.T) {
	mgr := newTestManager(t, remote.NewMemory(), nil)
	mgr.syncing.Store(true)

	_, err := mgr.PerformSync(context.Background(), nil)
	require.ErrorIs(t, err, ErrSyncInProgress)
}

func TestManager_PerformSync_FullCycle(t *testing.T) {
	ctx := context.Background()
	rs := remote.NewMemory()
	mgr := newTestManager(t, rs, nil)

	// One queued local mutation, appended without the opportunistic kick
	// so the explicit cycle below does all the work.
	op := mgr.Outbox().Append(ctx, OpUpdate, EntityReward, "r1", rewardDoc(t, "r1", "b1", &Metadata{Version: 1}))
	require.NotNil(t, op)

	// ... and one reward another device already published.
	require.NoError(t, rs.SAdd(ctx, "customer:cust-1:rewards", "r1", "r2"))
	require.NoError(t, rs.Set(ctx, "reward:r2", rewardDoc(t, "r2", "b2", &Metadata{Version: 1})))

	res, err := mgr.PerformSync(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pushed)
	assert.GreaterOrEqual(t, res.Pulled, 1)
	assert.Empty(t, res.Errors)

	// The foreign reward was adopted locally.
	_, found, err := mgr.store.Get(ctx, "reward:r2")
	require.NoError(t, err)
	assert.True(t, found)

	last, err := mgr.LastSyncTime(ctx)
	require.NoError(t, err)
	assert.False(t, last.IsZero())
}

func TestAutoSync_StartStop(t *testing.T) {
	mgr := newTestManager(t, remote.NewMemory(), &remote.StaticProbe{})
	runner := NewAutoSync(mgr, 50*time.Millisecond, nil, nil)
	runner.Start()
	time.Sleep(20 * time.Millisecond)
	runner.Stop() // must not hang
}
