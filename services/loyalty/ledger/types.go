// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ledger owns the CustomerRecord aggregate: it applies scan events,
// advances reward and campaign state machines, performs redemption, and
// merges profile edits.
package ledger

import (
	"time"

	"github.com/AleutianAI/punchcard/services/loyalty/syncq"
)

// Kind selects which progress family a scan belongs to.
type Kind string

const (
	// KindReward is a punch-card style reward.
	KindReward Kind = "reward"
	// KindCampaign is a time-boxed promotional campaign. Campaign progress
	// entries are structurally identical to reward ones.
	KindCampaign Kind = "campaign"
)

// Status is the lifecycle state of a progress entry. Transitions only move
// forward: active, then earned, then redeemed.
type Status string

const (
	StatusActive   Status = "active"
	StatusEarned   Status = "earned"
	StatusRedeemed Status = "redeemed"
)

// ScanEvent is one entry in a progress entry's append-only scan history.
type ScanEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	PointsAwarded int       `json:"pointsAwarded"`
}

// Progress tracks one reward or campaign for one customer. A given id lives
// in at most one of the active/earned slices at any instant; redeemed
// entries are historical and may repeat.
type Progress struct {
	RewardID     string `json:"rewardId"`
	BusinessID   string `json:"businessId"`
	BusinessName string `json:"businessName,omitempty"`
	RewardName   string `json:"rewardName"`

	PointsEarned   int `json:"pointsEarned"`
	PointsRequired int `json:"pointsRequired"`

	Status      Status      `json:"status"`
	ScanHistory []ScanEvent `json:"scanHistory"`

	FirstScanAt time.Time  `json:"firstScanAt"`
	LastScanAt  time.Time  `json:"lastScanAt"`
	EarnedAt    *time.Time `json:"earnedAt,omitempty"`
	RedeemedAt  *time.Time `json:"redeemedAt,omitempty"`

	RewardType string `json:"rewardType,omitempty"`
	QRCode     string `json:"qrCode,omitempty"`
	PINCode    string `json:"pinCode,omitempty"`

	SyncMeta *syncq.Metadata `json:"syncMetadata,omitempty"`
}

// Profile is the customer's identity and communication preferences.
type Profile struct {
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	EmailOptIn bool   `json:"emailOptIn"`
	SMSOptIn   bool   `json:"smsOptIn"`
}

// ProfilePatch is a partial profile edit. Nil fields are left unchanged.
type ProfilePatch struct {
	Name       *string `json:"name,omitempty"`
	Email      *string `json:"email,omitempty"`
	Phone      *string `json:"phone,omitempty"`
	EmailOptIn *bool   `json:"emailOptIn,omitempty"`
	SMSOptIn   *bool   `json:"smsOptIn,omitempty"`
}

// Stats holds the aggregate counters shown on the customer's overview.
type Stats struct {
	TotalScans        int      `json:"totalScans"`
	BusinessesVisited []string `json:"businessesVisited"`
	TotalEarned       int      `json:"totalEarned"`
	TotalRedeemed     int      `json:"totalRedeemed"`
}

// CustomerRecord is the root aggregate, one per device/customer. It is
// created lazily on first access and never deleted by this core.
type CustomerRecord struct {
	CustomerID string  `json:"customerId"`
	Profile    Profile `json:"profile"`

	ActiveRewards   []Progress `json:"activeRewards"`
	EarnedRewards   []Progress `json:"earnedRewards"`
	RedeemedRewards []Progress `json:"redeemedRewards"`

	ActiveCampaigns   []Progress `json:"activeCampaigns"`
	EarnedCampaigns   []Progress `json:"earnedCampaigns"`
	RedeemedCampaigns []Progress `json:"redeemedCampaigns"`

	Stats     Stats     `json:"stats"`
	UpdatedAt time.Time `json:"updatedAt"`

	SyncMeta *syncq.Metadata `json:"syncMetadata,omitempty"`
}

// ScanInput describes one scanned code, already decoded.
type ScanInput struct {
	Kind           Kind
	ID             string
	Name           string
	PointsAwarded  int
	PointsRequired int
	BusinessID     string
	BusinessName   string
	RewardType     string
	QRCode         string
	PINCode        string
}

// ScanResult reports what a scan did to the record.
type ScanResult struct {
	Record *CustomerRecord
	// Progress is the entry the scan touched or created.
	Progress *Progress
	// IsNewlyEarned is true exactly when this scan moved the entry into the
	// earned state.
	IsNewlyEarned bool
}
