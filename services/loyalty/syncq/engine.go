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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/punchcard/services/loyalty/business"
	"github.com/AleutianAI/punchcard/services/loyalty/remote"
	"github.com/AleutianAI/punchcard/services/loyalty/storage"
)

var tracer = otel.Tracer("github.com/AleutianAI/punchcard/services/loyalty/syncq")

var (
	// ErrSyncInProgress is returned when a cycle is requested while another
	// is still running. The caller's cycle simply did not happen; nothing
	// was lost.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrOffline is returned when the connectivity probe vetoes a cycle.
	// The outbox is left untouched for a later attempt.
	ErrOffline = errors.New("device offline or remote store unavailable")
)

// lastSyncKey stores the completion time of the most recent full cycle.
const lastSyncKey = "sync:lastSyncTime"

// Result summarizes one sync cycle.
type Result struct {
	// Pushed is the number of outbox operations transmitted.
	Pushed int
	// Pulled is the number of remote entities reconciled locally.
	Pulled int
	// Errors collects per-operation and per-entity failures. A cycle with
	// errors still made whatever progress it could.
	Errors []error
}

// Config wires a sync Manager.
type Config struct {
	// Store is the local record store (outbox entries, entity mirrors).
	Store storage.RecordStore
	// Remote is the shared key/value store behind the sync proxy.
	Remote remote.Store
	// Probe gates every cycle on connectivity.
	Probe remote.Probe
	// Business, when set, refreshes cached business details after each pull.
	Business *business.Cache
	// CustomerID owns the local customer record and reward set.
	CustomerID string
	// DeviceID stamps metadata written by this device.
	DeviceID string
	// Retry bounds push attempts per operation.
	Retry RetryPolicy
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Validate checks required wiring.
func (c *Config) Validate() error {
	if c.Store == nil {
		return errors.New("sync config: Store is required")
	}
	if c.Remote == nil {
		return errors.New("sync config: Remote is required")
	}
	if c.Probe == nil {
		return errors.New("sync config: Probe is required")
	}
	if c.CustomerID == "" {
		return errors.New("sync config: CustomerID is required")
	}
	return nil
}

// Manager owns the outbox drain and the pull/merge reconciler. All methods
// are safe for concurrent use; PerformSync additionally refuses to overlap
// itself.
type Manager struct {
	store      storage.RecordStore
	remote     remote.Store
	probe      remote.Probe
	biz        *business.Cache
	outbox     *Outbox
	retry      RetryPolicy
	customerID string
	deviceID   string
	logger     *slog.Logger

	syncing atomic.Bool
	now     func() time.Time
}

// NewManager builds a Manager from cfg.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retry := cfg.Retry
	if retry.MaxRetries <= 0 {
		retry = DefaultRetryPolicy()
	}
	return &Manager{
		store:      cfg.Store,
		remote:     cfg.Remote,
		probe:      cfg.Probe,
		biz:        cfg.Business,
		outbox:     NewOutbox(cfg.Store, logger),
		retry:      retry,
		customerID: cfg.CustomerID,
		deviceID:   cfg.DeviceID,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Outbox exposes the underlying queue, mostly for inspection and tests.
func (m *Manager) Outbox() *Outbox {
	return m.outbox
}

// Enqueue durably appends a mutation for later transmission. Invalid
// operations are dropped with a warning. A sync cycle is kicked off in the
// background; connectivity is checked there, never on the caller's path,
// so enqueueing costs one local write regardless of network state.
func (m *Manager) Enqueue(ctx context.Context, opType OpType, entityType, entityID string, data []byte) {
	op := m.outbox.Append(ctx, opType, entityType, entityID, data)
	if op == nil {
		return
	}
	go m.opportunisticSync()
}

func (m *Manager) opportunisticSync() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := m.PerformSync(ctx, nil); err != nil &&
		!errors.Is(err, ErrSyncInProgress) && !errors.Is(err, ErrOffline) {
		m.logger.Debug("opportunistic sync failed", "error", err)
	}
}

// DrainQueue iterates the outbox once, pushing each operation to the remote
// store. Successful operations are removed; failed ones are re-queued with
// an incremented retry counter until the policy ceiling, then dropped
// permanently. Returns the pushed count and per-operation errors.
func (m *Manager) DrainQueue(ctx context.Context) (int, []error) {
	ops, err := m.outbox.List(ctx)
	if err != nil {
		return 0, []error{err}
	}

	pushed := 0
	var errs []error
	for _, op := range ops {
		pushErr := m.push(ctx, op)
		if pushErr == nil {
			pushed++
			pushedOperationsTotal.Inc()
			if err := m.outbox.Remove(ctx, op); err != nil {
				m.logger.Warn("failed to remove pushed operation", "op_id", op.ID, "error", err)
			}
			continue
		}

		op.Retries++
		switch m.retry.Decide(op, pushErr) {
		case DecisionRetryLater:
			if err := m.outbox.Update(ctx, op); err != nil {
				m.logger.Warn("failed to persist retry counter", "op_id", op.ID, "error", err)
			}
			errs = append(errs, fmt.Errorf("push %s %s (attempt %d): %w",
				op.Type, op.EntityKey(), op.Retries, pushErr))
		case DecisionDrop:
			droppedOperationsTotal.Inc()
			m.logger.Error("dropping sync operation after exhausting retries",
				"op_id", op.ID,
				"type", string(op.Type),
				"entity", op.EntityKey(),
				"retries", op.Retries,
				"error", pushErr)
			if err := m.outbox.Remove(ctx, op); err != nil {
				m.logger.Warn("failed to remove dropped operation", "op_id", op.ID, "error", err)
			}
			errs = append(errs, fmt.Errorf("dropped %s %s after %d retries: %w",
				op.Type, op.EntityKey(), op.Retries, pushErr))
		}
	}
	return pushed, errs
}

// push transmits a single operation. Create/update writes get a clean
// metadata stamp (isDirty=false, version kept) so other devices never see
// this device's dirty flag.
func (m *Manager) push(ctx context.Context, op *Operation) error {
	if op.Type == OpDelete {
		return m.remote.Del(ctx, op.EntityKey())
	}

	meta, err := extractMetadata(op.Data)
	if err != nil {
		return fmt.Errorf("read sync metadata: %w", err)
	}
	meta.IsDirty = false
	raw, err := rewriteMetadata(op.Data, meta)
	if err != nil {
		return fmt.Errorf("stamp sync metadata: %w", err)
	}
	if err := m.remote.Set(ctx, op.EntityKey(), raw); err != nil {
		return err
	}
	if op.EntityType == EntityReward && op.Type == OpUpdate {
		return m.fanOutReward(ctx, op, raw)
	}
	return nil
}

// rewardFanout is the slice of a reward document the business side needs.
type rewardFanout struct {
	RewardID     string `json:"rewardId"`
	BusinessID   string `json:"businessId"`
	PointsEarned int    `json:"pointsEarned"`
	Status       string `json:"status"`
}

// fanOutReward performs the two extra writes a reward update implies:
// membership in the customer's reward-id set, and a business-side customer
// scan record so the business sees aggregate progress.
func (m *Manager) fanOutReward(ctx context.Context, op *Operation, raw []byte) error {
	if err := m.remote.SAdd(ctx, "customer:"+m.customerID+":rewards", op.EntityID); err != nil {
		return fmt.Errorf("add reward to customer set: %w", err)
	}

	var doc rewardFanout
	if err := json.Unmarshal(raw, &doc); err != nil || doc.BusinessID == "" {
		// Without a business id there is no scan record to upsert. The
		// primary write already succeeded, so this is not a push failure.
		m.logger.Warn("reward update missing business id, skipping scan record",
			"entity", op.EntityKey())
		return nil
	}

	scan := map[string]any{
		"customerId":   m.customerID,
		"rewardId":     doc.RewardID,
		"pointsEarned": doc.PointsEarned,
		"status":       doc.Status,
		"updatedAt":    m.now().UTC(),
	}
	scanRaw, err := json.Marshal(scan)
	if err != nil {
		return fmt.Errorf("encode scan record: %w", err)
	}
	key := fmt.Sprintf("business:%s:customers:%s", doc.BusinessID, m.customerID)
	if err := m.remote.Set(ctx, key, scanRaw); err != nil {
		return fmt.Errorf("upsert business scan record: %w", err)
	}
	return nil
}

// Pull fetches the remote id sets for the customer and each business, and
// reconciles every referenced entity against its local copy. Business
// detail pages are refreshed afterwards when a cache is wired.
func (m *Manager) Pull(ctx context.Context, customerID string, businessIDs []string) (int, []error) {
	pulled := 0
	var errs []error

	reconcileSet := func(setKey, entityType string) {
		ids, err := m.remote.SMembers(ctx, setKey)
		if err != nil {
			errs = append(errs, fmt.Errorf("fetch %s: %w", setKey, err))
			return
		}
		for _, id := range ids {
			ok, err := m.ReconcileOne(ctx, entityType, id)
			if err != nil {
				errs = append(errs, fmt.Errorf("reconcile %s:%s: %w", entityType, id, err))
				continue
			}
			if ok {
				pulled++
			}
		}
	}

	if customerID != "" {
		reconcileSet("customer:"+customerID+":rewards", EntityReward)
	}
	for _, bid := range businessIDs {
		reconcileSet("business:"+bid+":rewards", EntityReward)
		reconcileSet("business:"+bid+":campaigns", EntityCampaign)
	}

	if m.biz != nil && len(businessIDs) > 0 {
		m.biz.Pull(ctx, businessIDs)
	}
	return pulled, errs
}

// ReconcileOne merges the remote copy of one entity into the local store.
// No remote copy means nothing to do. No local copy adopts the remote one.
// Otherwise the strictly higher version wins; a version tie goes to the
// newer lastModified. A winning local copy that is still dirty is pushed
// back as a corrective write. Returns true if the entity was reconciled.
func (m *Manager) ReconcileOne(ctx context.Context, entityType, entityID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "syncq.ReconcileOne")
	defer span.End()
	span.SetAttributes(
		attribute.String("entity.type", entityType),
		attribute.String("entity.id", entityID),
	)

	key := entityType + ":" + entityID
	remoteRaw, found, err := m.remote.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	localRaw, localFound, err := m.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !localFound {
		if err := m.store.Set(ctx, key, remoteRaw); err != nil {
			return false, err
		}
		pulledEntitiesTotal.Inc()
		return true, nil
	}

	localMeta, err := extractMetadata(localRaw)
	if err != nil {
		// Unreadable local copy loses to a readable remote one.
		m.logger.Warn("local entity metadata unreadable, adopting remote", "key", key, "error", err)
		localMeta = &Metadata{}
	}
	remoteMeta, err := extractMetadata(remoteRaw)
	if err != nil {
		return false, fmt.Errorf("remote entity metadata unreadable: %w", err)
	}

	if localWins(localMeta, remoteMeta) {
		if localMeta.IsDirty {
			return true, m.correctivePush(ctx, key, localRaw, localMeta)
		}
		return true, nil
	}

	if err := m.store.Set(ctx, key, remoteRaw); err != nil {
		return false, err
	}
	pulledEntitiesTotal.Inc()
	return true, nil
}

// localWins applies the conflict rule: strictly higher version wins; a tie
// goes to the newer lastModified; a full tie keeps the remote copy.
func localWins(local, remote *Metadata) bool {
	if local.Version != remote.Version {
		return local.Version > remote.Version
	}
	return local.LastModified.After(remote.LastModified)
}

// correctivePush writes a winning dirty local entity back to the remote
// store and clears the dirty flag on both copies.
func (m *Manager) correctivePush(ctx context.Context, key string, localRaw []byte, meta *Metadata) error {
	meta.IsDirty = false
	raw, err := rewriteMetadata(localRaw, meta)
	if err != nil {
		return fmt.Errorf("stamp corrective push: %w", err)
	}
	if err := m.remote.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("corrective push %s: %w", key, err)
	}
	if err := m.store.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("clear local dirty flag %s: %w", key, err)
	}
	pushedOperationsTotal.Inc()
	return nil
}

// PerformSync runs one full cycle: drain the outbox, pull and reconcile,
// stamp the last-sync time. Refuses to overlap a running cycle. When the
// probe reports the device offline or the remote store unavailable, it
// aborts before touching anything and returns ErrOffline.
func (m *Manager) PerformSync(ctx context.Context, businessIDs []string) (*Result, error) {
	if !m.syncing.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer m.syncing.Store(false)

	ctx, span := tracer.Start(ctx, "syncq.PerformSync")
	defer span.End()
	start := m.now()

	if !m.probe.Online(ctx) || !m.probe.RemoteAvailable(ctx) {
		syncCyclesTotal.WithLabelValues("offline").Inc()
		m.logger.Info("sync skipped", "reason", "offline or remote unavailable")
		return nil, ErrOffline
	}

	res := &Result{}
	pushed, errs := m.DrainQueue(ctx)
	res.Pushed = pushed
	res.Errors = append(res.Errors, errs...)

	pulled, errs := m.Pull(ctx, m.customerID, businessIDs)
	res.Pulled = pulled
	res.Errors = append(res.Errors, errs...)

	if err := storage.SetJSON(ctx, m.store, lastSyncKey, m.now().UTC()); err != nil {
		res.Errors = append(res.Errors, fmt.Errorf("stamp last sync time: %w", err))
	}

	status := "ok"
	if len(res.Errors) > 0 {
		status = "error"
	}
	syncCyclesTotal.WithLabelValues(status).Inc()
	syncDurationSeconds.WithLabelValues(status).Observe(m.now().Sub(start).Seconds())
	span.SetAttributes(
		attribute.Int("sync.pushed", res.Pushed),
		attribute.Int("sync.pulled", res.Pulled),
		attribute.Int("sync.errors", len(res.Errors)),
	)
	m.logger.Info("sync cycle complete",
		"pushed", res.Pushed,
		"pulled", res.Pulled,
		"errors", len(res.Errors),
		"duration", m.now().Sub(start).String())
	return res, nil
}

// LastSyncTime returns the completion time of the most recent full cycle,
// or the zero time if no cycle has completed yet.
func (m *Manager) LastSyncTime(ctx context.Context) (time.Time, error) {
	ts, found, err := storage.GetJSON[time.Time](ctx, m.store, lastSyncKey)
	if err != nil || !found {
		return time.Time{}, err
	}
	return ts, nil
}
