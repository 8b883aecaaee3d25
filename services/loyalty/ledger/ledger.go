// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/punchcard/services/loyalty/storage"
	"github.com/AleutianAI/punchcard/services/loyalty/syncq"
)

var (
	// ErrNotEarned is returned when a redemption targets a reward that is
	// not currently in the earned state. Merely active rewards cannot be
	// redeemed.
	ErrNotEarned = errors.New("reward not earned")
)

// Enqueuer is the slice of the sync engine the ledger needs. Scans never
// use it; redemption and profile edits do.
type Enqueuer interface {
	Enqueue(ctx context.Context, opType syncq.OpType, entityType, entityID string, data []byte)
}

// Config wires a Ledger.
type Config struct {
	// Store persists the customer record and per-entity mirrors.
	Store storage.RecordStore
	// Queue receives operations for trust-sensitive mutations. May be nil,
	// in which case nothing is ever queued (useful offline-only and in
	// tests).
	Queue Enqueuer
	// CustomerID keys the record. Required.
	CustomerID string
	// DeviceID stamps sync metadata written by this device.
	DeviceID string
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Ledger applies mutations to one customer's record. Methods serialize
// through an internal mutex; the record store only guarantees per-key
// atomicity.
type Ledger struct {
	store      storage.RecordStore
	queue      Enqueuer
	customerID string
	deviceID   string
	logger     *slog.Logger

	mu  sync.Mutex
	now func() time.Time
}

// New builds a Ledger from cfg.
func New(cfg Config) (*Ledger, error) {
	if cfg.Store == nil {
		return nil, errors.New("ledger config: Store is required")
	}
	if cfg.CustomerID == "" {
		return nil, errors.New("ledger config: CustomerID is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:      cfg.Store,
		queue:      cfg.Queue,
		customerID: cfg.CustomerID,
		deviceID:   cfg.DeviceID,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// recordKey is where the aggregate lives in the record store.
func (l *Ledger) recordKey() string {
	return "customer:" + l.customerID
}

// Record loads the customer record, creating an empty one on first access.
func (l *Ledger) Record(ctx context.Context) (*CustomerRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(ctx)
}

func (l *Ledger) load(ctx context.Context) (*CustomerRecord, error) {
	rec, found, err := storage.GetJSON[CustomerRecord](ctx, l.store, l.recordKey())
	if err != nil {
		return nil, fmt.Errorf("load customer record: %w", err)
	}
	if !found {
		return &CustomerRecord{
			CustomerID: l.customerID,
			SyncMeta:   &syncq.Metadata{},
		}, nil
	}
	if rec.SyncMeta == nil {
		rec.SyncMeta = &syncq.Metadata{}
	}
	return &rec, nil
}

// save stamps the record's mutation bookkeeping and persists it.
func (l *Ledger) save(ctx context.Context, rec *CustomerRecord, now time.Time) error {
	rec.UpdatedAt = now
	rec.SyncMeta.Touch(l.deviceID, now)
	if err := storage.SetJSON(ctx, l.store, l.recordKey(), rec); err != nil {
		return fmt.Errorf("save customer record: %w", err)
	}
	return nil
}

// mirrorEntity writes the entry's current state to its entity key so the
// reconciler compares against this device's copy.
func (l *Ledger) mirrorEntity(ctx context.Context, kind Kind, entry *Progress) {
	key := string(kind) + ":" + entry.RewardID
	if err := storage.SetJSON(ctx, l.store, key, entry); err != nil {
		// The aggregate already saved; a stale mirror only delays
		// convergence until the next mutation.
		l.logger.Warn("entity mirror write failed", "key", key, "error", err)
	}
}

// slicesFor returns the three status slices for the given kind.
func (rec *CustomerRecord) slicesFor(kind Kind) (active, earned, redeemed *[]Progress) {
	if kind == KindCampaign {
		return &rec.ActiveCampaigns, &rec.EarnedCampaigns, &rec.RedeemedCampaigns
	}
	return &rec.ActiveRewards, &rec.EarnedRewards, &rec.RedeemedRewards
}

func indexByID(entries []Progress, id string) int {
	return slices.IndexFunc(entries, func(p Progress) bool { return p.RewardID == id })
}

// RecordScan applies one scanned code to the record. An existing active
// entry accumulates points and may be promoted to earned; an unknown id
// synthesizes a fresh entry. The save is local only; scans are never
// queued, so stamp collection works fully offline.
func (l *Ledger) RecordScan(ctx context.Context, in ScanInput) (*ScanResult, error) {
	if in.ID == "" {
		return nil, errors.New("scan input: ID is required")
	}
	if in.PointsRequired <= 0 {
		in.PointsRequired = 1
	}
	if in.PointsAwarded < 0 {
		in.PointsAwarded = 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	now := l.now()
	active, earned, _ := rec.slicesFor(in.Kind)

	var entry *Progress
	newlyEarned := false

	switch {
	case indexByID(*active, in.ID) >= 0:
		i := indexByID(*active, in.ID)
		e := &(*active)[i]
		e.ScanHistory = append(e.ScanHistory, ScanEvent{Timestamp: now, PointsAwarded: in.PointsAwarded})
		e.PointsEarned += in.PointsAwarded
		e.LastScanAt = now
		if e.SyncMeta == nil {
			e.SyncMeta = &syncq.Metadata{}
		}
		e.SyncMeta.Touch(l.deviceID, now)
		if e.PointsEarned >= e.PointsRequired {
			promoted := *e
			promoted.Status = StatusEarned
			earnedAt := now
			promoted.EarnedAt = &earnedAt
			*active = slices.Delete(*active, i, i+1)
			*earned = append(*earned, promoted)
			rec.Stats.TotalEarned++
			newlyEarned = true
			entry = &(*earned)[len(*earned)-1]
		} else {
			entry = e
		}

	case indexByID(*earned, in.ID) >= 0:
		// Already earned; the scan counts toward stats but never
		// re-triggers progress.
		entry = &(*earned)[indexByID(*earned, in.ID)]

	default:
		// Unknown id, or only redeemed history remains (the redeem re-seed
		// was lost): synthesize a fresh entry.
		fresh := Progress{
			RewardID:       in.ID,
			BusinessID:     in.BusinessID,
			BusinessName:   in.BusinessName,
			RewardName:     in.Name,
			PointsEarned:   in.PointsAwarded,
			PointsRequired: in.PointsRequired,
			Status:         StatusActive,
			ScanHistory:    []ScanEvent{{Timestamp: now, PointsAwarded: in.PointsAwarded}},
			FirstScanAt:    now,
			LastScanAt:     now,
			RewardType:     in.RewardType,
			QRCode:         in.QRCode,
			PINCode:        in.PINCode,
			SyncMeta:       &syncq.Metadata{},
		}
		fresh.SyncMeta.Touch(l.deviceID, now)
		if fresh.PointsEarned >= fresh.PointsRequired {
			fresh.Status = StatusEarned
			earnedAt := now
			fresh.EarnedAt = &earnedAt
			*earned = append(*earned, fresh)
			rec.Stats.TotalEarned++
			newlyEarned = true
			entry = &(*earned)[len(*earned)-1]
		} else {
			*active = append(*active, fresh)
			entry = &(*active)[len(*active)-1]
		}
	}

	rec.Stats.TotalScans++
	if in.BusinessID != "" && !slices.Contains(rec.Stats.BusinessesVisited, in.BusinessID) {
		rec.Stats.BusinessesVisited = append(rec.Stats.BusinessesVisited, in.BusinessID)
	}

	if err := l.save(ctx, rec, now); err != nil {
		return nil, err
	}
	l.mirrorEntity(ctx, in.Kind, entry)

	l.logger.Info("scan recorded",
		"kind", string(in.Kind),
		"id", in.ID,
		"points", entry.PointsEarned,
		"required", entry.PointsRequired,
		"newly_earned", newlyEarned)
	return &ScanResult{Record: rec, Progress: entry, IsNewlyEarned: newlyEarned}, nil
}

// RecordBusinessVisit marks a business as visited. Reward codes carry no
// business id, so scanning the business card is how a business enters the
// customer's sync scope and detail cache. Local-only save, like scans.
func (l *Ledger) RecordBusinessVisit(ctx context.Context, businessID string) error {
	if businessID == "" {
		return errors.New("business visit: business id is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.load(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(rec.Stats.BusinessesVisited, businessID) {
		return nil
	}
	rec.Stats.BusinessesVisited = append(rec.Stats.BusinessesVisited, businessID)
	if err := l.save(ctx, rec, l.now()); err != nil {
		return err
	}
	l.logger.Info("business visit recorded", "business_id", businessID)
	return nil
}

// redemptionAudit is the dedicated audit document queued alongside the
// entity update when a reward is redeemed.
type redemptionAudit struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"customerId"`
	RewardID   string          `json:"rewardId"`
	BusinessID string          `json:"businessId"`
	RedeemedAt time.Time       `json:"redeemedAt"`
	Reward     Progress        `json:"reward"`
	SyncMeta   *syncq.Metadata `json:"syncMetadata"`
}

// Redeem consumes an earned reward. The entry moves to the redeemed
// history and a fresh active entry with the same identity and requirement
// is seeded in its place. Redemption is user-initiated and trust-sensitive,
// so both the entity update and a dedicated audit record are queued.
func (l *Ledger) Redeem(ctx context.Context, rewardID string) (*Progress, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	i := indexByID(rec.EarnedRewards, rewardID)
	if i < 0 {
		return nil, fmt.Errorf("redeem %s: %w", rewardID, ErrNotEarned)
	}
	now := l.now()

	redeemed := rec.EarnedRewards[i]
	rec.EarnedRewards = slices.Delete(rec.EarnedRewards, i, i+1)
	redeemed.Status = StatusRedeemed
	redeemedAt := now
	redeemed.RedeemedAt = &redeemedAt
	if redeemed.SyncMeta == nil {
		redeemed.SyncMeta = &syncq.Metadata{}
	}
	redeemed.SyncMeta.Touch(l.deviceID, now)
	rec.RedeemedRewards = append(rec.RedeemedRewards, redeemed)
	rec.Stats.TotalRedeemed++

	// Re-seed a fresh card so the next scan starts a new cycle.
	fresh := Progress{
		RewardID:       redeemed.RewardID,
		BusinessID:     redeemed.BusinessID,
		BusinessName:   redeemed.BusinessName,
		RewardName:     redeemed.RewardName,
		PointsRequired: redeemed.PointsRequired,
		Status:         StatusActive,
		ScanHistory:    []ScanEvent{},
		RewardType:     redeemed.RewardType,
		QRCode:         redeemed.QRCode,
		SyncMeta:       &syncq.Metadata{},
	}
	fresh.SyncMeta.Touch(l.deviceID, now)
	rec.ActiveRewards = append(rec.ActiveRewards, fresh)

	if err := l.save(ctx, rec, now); err != nil {
		return nil, err
	}
	l.mirrorEntity(ctx, KindReward, &fresh)

	if l.queue != nil {
		if data, err := json.Marshal(fresh); err == nil {
			l.queue.Enqueue(ctx, syncq.OpUpdate, syncq.EntityReward, fresh.RewardID, data)
		} else {
			l.logger.Warn("failed to encode reward update", "reward_id", rewardID, "error", err)
		}

		audit := redemptionAudit{
			ID:         uuid.NewString(),
			CustomerID: l.customerID,
			RewardID:   redeemed.RewardID,
			BusinessID: redeemed.BusinessID,
			RedeemedAt: now,
			Reward:     redeemed,
			SyncMeta:   redeemed.SyncMeta,
		}
		if data, err := json.Marshal(audit); err == nil {
			l.queue.Enqueue(ctx, syncq.OpCreate, syncq.EntityRedemption, audit.ID, data)
		} else {
			l.logger.Warn("failed to encode redemption audit", "reward_id", rewardID, "error", err)
		}
	}

	l.logger.Info("reward redeemed", "reward_id", rewardID, "business_id", redeemed.BusinessID)
	return &redeemed, nil
}

// UpdateProfile shallow-merges the patch into the profile and queues the
// updated record for sync.
func (l *Ledger) UpdateProfile(ctx context.Context, patch ProfilePatch) (*CustomerRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		rec.Profile.Name = *patch.Name
	}
	if patch.Email != nil {
		rec.Profile.Email = *patch.Email
	}
	if patch.Phone != nil {
		rec.Profile.Phone = *patch.Phone
	}
	if patch.EmailOptIn != nil {
		rec.Profile.EmailOptIn = *patch.EmailOptIn
	}
	if patch.SMSOptIn != nil {
		rec.Profile.SMSOptIn = *patch.SMSOptIn
	}

	now := l.now()
	if err := l.save(ctx, rec, now); err != nil {
		return nil, err
	}

	if l.queue != nil {
		if data, err := json.Marshal(rec); err == nil {
			l.queue.Enqueue(ctx, syncq.OpUpdate, syncq.EntityCustomer, l.customerID, data)
		} else {
			l.logger.Warn("failed to encode customer update", "error", err)
		}
	}
	return rec, nil
}

// VisitedBusinesses returns the distinct business ids this customer has
// scanned at. The sync runner uses it to scope pulls.
func (l *Ledger) VisitedBusinesses(ctx context.Context) []string {
	rec, err := l.Record(ctx)
	if err != nil {
		l.logger.Warn("failed to load record for visited businesses", "error", err)
		return nil
	}
	return rec.Stats.BusinessesVisited
}
