// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package business maintains the read-only mirror of business metadata.
//
// The cache is populated as a side effect of sync pulls and read locally
// with no network access. Each entry is fully replaced on a successful
// pull, never deep-merged.
package business

import (
	"context"
	"encoding/json"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/punchcard/services/loyalty/remote"
	"github.com/AleutianAI/punchcard/services/loyalty/storage"
)

// detailsKeyPrefix namespaces cached business details in the local store.
const detailsKeyPrefix = "bizdetails:"

// Reward is a business-defined reward as advertised by the business.
type Reward struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Requirement int      `json:"requirement"`
	RewardType  string   `json:"rewardType,omitempty"`
	Products    []string `json:"products,omitempty"`
}

// Campaign is a business-defined campaign.
type Campaign struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Details is one cached business profile.
type Details struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Logo      string            `json:"logo,omitempty"`
	Address   string            `json:"address,omitempty"`
	Website   string            `json:"website,omitempty"`
	Socials   map[string]string `json:"socials,omitempty"`
	Phone     string            `json:"phone,omitempty"`
	Email     string            `json:"email,omitempty"`
	WhatsApp  string            `json:"whatsapp,omitempty"`
	Rewards   []Reward          `json:"rewards,omitempty"`
	Campaigns []Campaign        `json:"campaigns,omitempty"`
}

// Cache mirrors business metadata from the remote store into the local
// record store.
type Cache struct {
	store  storage.RecordStore
	remote remote.Store
	logger *slog.Logger
}

// NewCache creates a business detail cache.
func NewCache(store storage.RecordStore, rs remote.Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{store: store, remote: rs, logger: logger}
}

// Get returns the cached details for businessID. Pure local lookup; a
// business never pulled is simply absent.
func (c *Cache) Get(ctx context.Context, businessID string) (*Details, bool) {
	details, ok, err := storage.GetJSON[Details](ctx, c.store, detailsKeyPrefix+businessID)
	if err != nil {
		c.logger.Warn("business cache read failed", "business_id", businessID, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return &details, true
}

// Pull refreshes the cache for the given business ids. Duplicate and
// placeholder ids are skipped. The profile, active rewards, and active
// campaigns of each business are fetched in parallel and the cache entry is
// fully replaced. Returns the number of entries refreshed; per-business
// failures are logged and skipped, they don't abort the rest.
func (c *Cache) Pull(ctx context.Context, businessIDs []string) int {
	seen := make(map[string]struct{}, len(businessIDs))
	refreshed := 0

	for _, id := range businessIDs {
		if id == "" || id == "unknown" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		details, err := c.fetch(ctx, id)
		if err != nil {
			c.logger.Warn("business detail pull failed", "business_id", id, "error", err)
			continue
		}
		if details == nil {
			continue // business not on the remote yet
		}
		if err := storage.SetJSON(ctx, c.store, detailsKeyPrefix+id, *details); err != nil {
			c.logger.Warn("business cache write failed", "business_id", id, "error", err)
			continue
		}
		refreshed++
	}
	return refreshed
}

// fetch loads one business's profile, rewards, and campaigns from the
// remote store. The three reads are independent and run concurrently.
func (c *Cache) fetch(ctx context.Context, businessID string) (*Details, error) {
	var (
		details Details
		found   bool
		rewards []Reward
		camps   []Campaign
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, ok, err := getRemoteJSON[Details](gCtx, c.remote, "business:"+businessID+":profile")
		if ok {
			details = d
			found = true
		}
		return err
	})
	g.Go(func() error {
		r, _, err := getRemoteJSON[[]Reward](gCtx, c.remote, "business:"+businessID+":rewardlist")
		rewards = r
		return err
	})
	g.Go(func() error {
		cl, _, err := getRemoteJSON[[]Campaign](gCtx, c.remote, "business:"+businessID+":campaignlist")
		camps = cl
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	details.ID = businessID
	details.Rewards = rewards
	details.Campaigns = camps
	return &details, nil
}

// getRemoteJSON is the remote-side counterpart of storage.GetJSON.
func getRemoteJSON[T any](ctx context.Context, rs remote.Store, key string) (T, bool, error) {
	var v T
	raw, ok, err := rs.Get(ctx, key)
	if err != nil || !ok {
		return v, false, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, err
	}
	return v, true, nil
}
