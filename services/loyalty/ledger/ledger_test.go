// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/punchcard/services/loyalty/storage"
	"github.com/AleutianAI/punchcard/services/loyalty/syncq"
)

// recordingQueue captures enqueued operations for assertions.
type recordingQueue struct {
	ops []capturedOp
}

type capturedOp struct {
	opType     syncq.OpType
	entityType string
	entityID   string
	data       []byte
}

func (q *recordingQueue) Enqueue(ctx context.Context, opType syncq.OpType, entityType, entityID string, data []byte) {
	q.ops = append(q.ops, capturedOp{opType, entityType, entityID, data})
}

func newTestLedger(t *testing.T) (*Ledger, *recordingQueue) {
	t.Helper()
	store, err := storage.OpenBadgerStore("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	queue := &recordingQueue{}
	l, err := New(Config{
		Store:      store,
		Queue:      queue,
		CustomerID: "cust-1",
		DeviceID:   "device-1",
	})
	require.NoError(t, err)
	return l, queue
}

func scanOnce(t *testing.T, l *Ledger, id string, awarded, required int) *ScanResult {
	t.Helper()
	res, err := l.RecordScan(context.Background(), ScanInput{
		Kind:           KindReward,
		ID:             id,
		Name:           "Free Coffee",
		PointsAwarded:  awarded,
		PointsRequired: required,
		BusinessID:     "biz-1",
		BusinessName:   "Cafe Maison",
		RewardType:     "free_product",
		QRCode:         "REWARD:" + id + ":Free Coffee:3:free_product:coffee",
	})
	require.NoError(t, err)
	return res
}

func TestLedger_ScanThreeTimesThenRedeem(t *testing.T) {
	ctx := context.Background()
	l, queue := newTestLedger(t)

	// Three single-point scans against a three-point card.
	res := scanOnce(t, l, "R1", 1, 3)
	assert.Equal(t, 1, res.Progress.PointsEarned)
	assert.Equal(t, StatusActive, res.Progress.Status)
	assert.False(t, res.IsNewlyEarned)

	res = scanOnce(t, l, "R1", 1, 3)
	assert.Equal(t, 2, res.Progress.PointsEarned)
	assert.Equal(t, StatusActive, res.Progress.Status)
	assert.False(t, res.IsNewlyEarned)

	res = scanOnce(t, l, "R1", 1, 3)
	assert.Equal(t, 3, res.Progress.PointsEarned)
	assert.Equal(t, StatusEarned, res.Progress.Status)
	assert.True(t, res.IsNewlyEarned)
	require.NotNil(t, res.Progress.EarnedAt)

	rec := res.Record
	assert.Empty(t, rec.ActiveRewards)
	require.Len(t, rec.EarnedRewards, 1)
	assert.Equal(t, 3, rec.Stats.TotalScans)
	assert.Equal(t, 1, rec.Stats.TotalEarned)
	assert.Equal(t, []string{"biz-1"}, rec.Stats.BusinessesVisited)

	// Scans are local-only.
	assert.Empty(t, queue.ops)

	// Redeem moves the entry to history and re-seeds a fresh active card.
	redeemed, err := l.Redeem(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, StatusRedeemed, redeemed.Status)
	assert.Equal(t, 3, redeemed.PointsEarned)
	require.NotNil(t, redeemed.RedeemedAt)

	rec, err = l.Record(ctx)
	require.NoError(t, err)
	assert.Empty(t, rec.EarnedRewards)
	require.Len(t, rec.RedeemedRewards, 1)
	require.Len(t, rec.ActiveRewards, 1)

	fresh := rec.ActiveRewards[0]
	assert.Equal(t, "R1", fresh.RewardID)
	assert.Equal(t, redeemed.QRCode, fresh.QRCode)
	assert.Zero(t, fresh.PointsEarned)
	assert.Equal(t, StatusActive, fresh.Status)
	assert.Empty(t, fresh.ScanHistory)
	assert.Equal(t, 1, rec.Stats.TotalRedeemed)

	// Redemption queues the entity update plus the dedicated audit record.
	require.Len(t, queue.ops, 2)
	assert.Equal(t, syncq.OpUpdate, queue.ops[0].opType)
	assert.Equal(t, syncq.EntityReward, queue.ops[0].entityType)
	assert.Equal(t, "R1", queue.ops[0].entityID)
	assert.Equal(t, syncq.OpCreate, queue.ops[1].opType)
	assert.Equal(t, syncq.EntityRedemption, queue.ops[1].entityType)
}

func TestLedger_EarnedExactlyOnce(t *testing.T) {
	l, _ := newTestLedger(t)

	res := scanOnce(t, l, "R1", 5, 3)
	assert.True(t, res.IsNewlyEarned, "meeting the requirement on the first scan earns directly")
	assert.Equal(t, StatusEarned, res.Progress.Status)

	// Re-scanning an earned reward never re-triggers.
	res = scanOnce(t, l, "R1", 1, 3)
	assert.False(t, res.IsNewlyEarned)
	assert.Equal(t, StatusEarned, res.Progress.Status)
	assert.Equal(t, 5, res.Progress.PointsEarned, "earned entries stop accumulating")
	assert.Equal(t, 2, res.Record.Stats.TotalScans, "the scan still counts toward stats")
}

func TestLedger_RedeemRequiresEarned(t *testing.T) {
	ctx := context.Background()
	l, queue := newTestLedger(t)

	// Unknown reward.
	_, err := l.Redeem(ctx, "nope")
	require.ErrorIs(t, err, ErrNotEarned)

	// Active but not yet earned.
	scanOnce(t, l, "R1", 1, 3)
	_, err = l.Redeem(ctx, "R1")
	require.ErrorIs(t, err, ErrNotEarned)
	assert.Empty(t, queue.ops)
}

func TestLedger_RedeemThenEarnAgain(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	scanOnce(t, l, "R1", 3, 3)
	_, err := l.Redeem(ctx, "R1")
	require.NoError(t, err)

	// The re-seeded card accumulates from zero.
	res := scanOnce(t, l, "R1", 1, 3)
	assert.Equal(t, 1, res.Progress.PointsEarned)
	assert.Equal(t, StatusActive, res.Progress.Status)
	assert.False(t, res.IsNewlyEarned)

	res = scanOnce(t, l, "R1", 2, 3)
	assert.True(t, res.IsNewlyEarned)

	_, err = l.Redeem(ctx, "R1")
	require.NoError(t, err)

	rec, err := l.Record(ctx)
	require.NoError(t, err)
	assert.Len(t, rec.RedeemedRewards, 2, "redeemed history accumulates")
	assert.Equal(t, 2, rec.Stats.TotalRedeemed)
}

func TestLedger_CampaignScansAreIndependent(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	_, err := l.RecordScan(ctx, ScanInput{
		Kind:           KindCampaign,
		ID:             "C1",
		Name:           "Summer Special",
		PointsAwarded:  1,
		PointsRequired: 2,
		BusinessID:     "biz-1",
	})
	require.NoError(t, err)

	rec, err := l.Record(ctx)
	require.NoError(t, err)
	assert.Len(t, rec.ActiveCampaigns, 1)
	assert.Empty(t, rec.ActiveRewards, "campaign scans never touch rewards")
}

func TestLedger_UpdateProfile(t *testing.T) {
	ctx := context.Background()
	l, queue := newTestLedger(t)

	name := "Ada"
	optIn := true
	rec, err := l.UpdateProfile(ctx, ProfilePatch{Name: &name, EmailOptIn: &optIn})
	require.NoError(t, err)
	assert.Equal(t, "Ada", rec.Profile.Name)
	assert.True(t, rec.Profile.EmailOptIn)

	// A second patch leaves unset fields intact.
	email := "ada@example.com"
	rec, err = l.UpdateProfile(ctx, ProfilePatch{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "Ada", rec.Profile.Name)
	assert.Equal(t, "ada@example.com", rec.Profile.Email)
	assert.True(t, rec.Profile.EmailOptIn)

	// Profile edits are queued as customer updates.
	require.Len(t, queue.ops, 2)
	assert.Equal(t, syncq.EntityCustomer, queue.ops[0].entityType)
	assert.Equal(t, "cust-1", queue.ops[0].entityID)
}

func TestLedger_RecordBusinessVisit(t *testing.T) {
	ctx := context.Background()
	l, queue := newTestLedger(t)

	require.NoError(t, l.RecordBusinessVisit(ctx, "0000042"))
	require.NoError(t, l.RecordBusinessVisit(ctx, "0000042"))
	require.NoError(t, l.RecordBusinessVisit(ctx, "0000043"))

	// A business card scan puts the business in sync scope exactly once.
	assert.Equal(t, []string{"0000042", "0000043"}, l.VisitedBusinesses(ctx))

	// Visits are local-only, like scans.
	assert.Empty(t, queue.ops)

	require.Error(t, l.RecordBusinessVisit(ctx, ""))
}

func TestLedger_RecordCreatedLazilyAndPersists(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	rec, err := l.Record(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cust-1", rec.CustomerID)
	assert.Zero(t, rec.Stats.TotalScans)

	scanOnce(t, l, "R1", 1, 3)

	rec, err = l.Record(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Stats.TotalScans)
	assert.NotZero(t, rec.UpdatedAt)
	require.NotNil(t, rec.SyncMeta)
	assert.True(t, rec.SyncMeta.IsDirty)
	assert.Positive(t, rec.SyncMeta.Version)
}
