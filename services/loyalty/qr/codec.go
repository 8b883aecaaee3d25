// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package qr implements the stateless codec for the QR wire formats.
//
// Three legacy colon-delimited text formats and one JSON envelope are in the
// field:
//
//	REWARD:{id}:{name}:{requirement}:{rewardType}:{products,csv}
//	REWARD:{id}:{name}                           (minimal form)
//	COMPANY:{7-digit number}:{name}
//	CAMPAIGN:{id}:{name}:{description}
//	{"type":"reward","reward":{...},"business":{...}}
//
// Decoding is an ordered chain of pure matchers (JSON first, then the
// prefixed forms) composed left-to-right until one matches. A format miss is
// not an error condition: Decode returns the Unknown variant and the caller
// decides user messaging.
package qr

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/punchcard/pkg/validation"
)

// Kind discriminates the decoded payload variants.
type Kind string

const (
	// KindReward is a scannable reward code.
	KindReward Kind = "reward"
	// KindCompany is a business identifier code.
	KindCompany Kind = "company"
	// KindCampaign is a time-bounded campaign code.
	KindCampaign Kind = "campaign"
	// KindUnknown is returned when no format matches.
	KindUnknown Kind = "unknown"
)

// DefaultRewardType is the reward type assumed by the minimal REWARD form.
const DefaultRewardType = "free_product"

// Business carries the optional business metadata nested in the JSON
// envelope.
type Business struct {
	Name        string            `json:"name,omitempty"`
	Address     string            `json:"address,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	Email       string            `json:"email,omitempty"`
	Website     string            `json:"website,omitempty"`
	Logo        string            `json:"logo,omitempty"`
	SocialMedia map[string]string `json:"socialMedia,omitempty"`
}

// Reward is the payload of a reward code.
type Reward struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Requirement       int       `json:"requirement"`
	PointsPerPurchase int       `json:"pointsPerPurchase,omitempty"`
	RewardType        string    `json:"rewardType"`
	Products          []string  `json:"products,omitempty"`
	PinCode           string    `json:"pinCode,omitempty"`
	Business          *Business `json:"business,omitempty"`
}

// Company is the payload of a company code.
type Company struct {
	Number string `json:"number"`
	Name   string `json:"name"`
}

// Campaign is the payload of a campaign code.
type Campaign struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Decoded is the closed tagged union produced by Decode. Exactly one of the
// payload pointers is non-nil, matching Kind; for KindUnknown all are nil.
type Decoded struct {
	Kind     Kind
	Reward   *Reward
	Company  *Company
	Campaign *Campaign
}

// matcher attempts one wire format. It returns nil on a format miss so the
// chain can fall through to the next format.
type matcher func(raw string) *Decoded

var matchers = []matcher{
	matchJSONEnvelope,
	matchCompany,
	matchCampaign,
	matchReward,
}

// Decode parses a raw scanned string into its typed variant. It never
// returns an error: input matching no known format yields KindUnknown.
func Decode(raw string) Decoded {
	for _, m := range matchers {
		if d := m(raw); d != nil {
			return *d
		}
	}
	return Decoded{Kind: KindUnknown}
}

// IsValid reports whether raw matches any known format, without building
// the full decoded structure.
func IsValid(raw string) bool {
	if isJSONReward(raw) {
		return true
	}
	rest, ok := strings.CutPrefix(raw, "COMPANY:")
	if ok {
		number, _, found := strings.Cut(rest, ":")
		if found && isCompanyNumber(number) {
			return true
		}
	}
	if rest, ok := strings.CutPrefix(raw, "CAMPAIGN:"); ok {
		if id, _, found := strings.Cut(rest, ":"); found && id != "" {
			return true
		}
	}
	if rest, ok := strings.CutPrefix(raw, "REWARD:"); ok {
		if id, _, _ := strings.Cut(rest, ":"); id != "" {
			return true
		}
	}
	return false
}

// jsonEnvelope mirrors the JSON wire format. Field names are fixed by the
// deployed generation of codes and must not change.
type jsonEnvelope struct {
	Type   string `json:"type"`
	Reward *struct {
		ID                string   `json:"id"`
		Name              string   `json:"name"`
		Requirement       int      `json:"requirement"`
		PointsPerPurchase int      `json:"pointsPerPurchase"`
		RewardType        string   `json:"rewardType"`
		Products          []string `json:"products"`
		PinCode           string   `json:"pinCode"`
	} `json:"reward"`
	Business *Business `json:"business"`
}

// matchJSONEnvelope attempts the JSON envelope. Any parse failure falls
// through silently; that is a format miss, not an error.
func matchJSONEnvelope(raw string) *Decoded {
	var env jsonEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil
	}
	if env.Type != "reward" || env.Reward == nil || env.Reward.ID == "" {
		return nil
	}

	reward := &Reward{
		ID:                env.Reward.ID,
		Name:              env.Reward.Name,
		Requirement:       env.Reward.Requirement,
		PointsPerPurchase: env.Reward.PointsPerPurchase,
		RewardType:        env.Reward.RewardType,
		Products:          env.Reward.Products,
		PinCode:           env.Reward.PinCode,
		Business:          env.Business,
	}
	if reward.Requirement < 1 {
		reward.Requirement = 1
	}
	if reward.RewardType == "" {
		reward.RewardType = DefaultRewardType
	}
	return &Decoded{Kind: KindReward, Reward: reward}
}

// matchCompany parses COMPANY:{7-digit id}:{name...}. The name is
// everything after the second colon, un-split: it can itself contain colons.
func matchCompany(raw string) *Decoded {
	rest, ok := strings.CutPrefix(raw, "COMPANY:")
	if !ok {
		return nil
	}
	number, name, found := strings.Cut(rest, ":")
	if !found || !isCompanyNumber(number) {
		return nil
	}
	return &Decoded{Kind: KindCompany, Company: &Company{Number: number, Name: name}}
}

// matchCampaign parses CAMPAIGN:{id}:{name}:{description...}. The
// description is everything after the third colon.
func matchCampaign(raw string) *Decoded {
	rest, ok := strings.CutPrefix(raw, "CAMPAIGN:")
	if !ok {
		return nil
	}
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) < 2 || parts[0] == "" {
		return nil
	}
	campaign := &Campaign{ID: parts[0], Name: parts[1]}
	if len(parts) == 3 {
		campaign.Description = parts[2]
	}
	return &Decoded{Kind: KindCampaign, Campaign: campaign}
}

// matchReward parses the REWARD forms. With five or more segments the last
// three positions are fixed (requirement, type, products) and everything
// between the id and the requirement is rejoined with ':' to recover a name
// that may itself contain colons. Fewer than five segments is the minimal
// {id}:{name...} form.
func matchReward(raw string) *Decoded {
	rest, ok := strings.CutPrefix(raw, "REWARD:")
	if !ok {
		return nil
	}
	segs := strings.Split(rest, ":")
	if len(segs) == 0 || segs[0] == "" {
		return nil
	}

	reward := &Reward{
		ID:          segs[0],
		Requirement: 1,
		RewardType:  DefaultRewardType,
	}

	if len(segs) >= 5 {
		n := len(segs)
		reward.Products = splitProducts(segs[n-1])
		reward.RewardType = segs[n-2]
		if req, err := strconv.Atoi(segs[n-3]); err == nil && req > 0 {
			reward.Requirement = req
		}
		reward.Name = strings.Join(segs[1:n-3], ":")
	} else {
		reward.Name = strings.Join(segs[1:], ":")
	}

	return &Decoded{Kind: KindReward, Reward: reward}
}

// EncodeReward renders the full REWARD text form. It is the strict inverse
// of decoding for values that don't contain the ':' delimiter.
func EncodeReward(id, name string, requirement int, rewardType string, products []string) string {
	return fmt.Sprintf("REWARD:%s:%s:%d:%s:%s",
		id, name, requirement, rewardType, strings.Join(products, ","))
}

// EncodeCompany renders the COMPANY text form, zero-padding the number to
// seven digits.
func EncodeCompany(number int, name string) string {
	return fmt.Sprintf("COMPANY:%07d:%s", number, name)
}

// EncodeCampaign renders the CAMPAIGN text form.
func EncodeCampaign(id, name, description string) string {
	return fmt.Sprintf("CAMPAIGN:%s:%s:%s", id, name, description)
}

func isJSONReward(raw string) bool {
	var probe struct {
		Type   string `json:"type"`
		Reward *struct {
			ID string `json:"id"`
		} `json:"reward"`
	}
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return false
	}
	return probe.Type == "reward" && probe.Reward != nil && probe.Reward.ID != ""
}

func isCompanyNumber(s string) bool {
	return validation.ValidateCompanyNumber(s) == nil
}

// splitProducts splits the comma-separated product list, dropping empty
// entries so "a,,b" and "" behave sanely.
func splitProducts(csv string) []string {
	if csv == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(csv, ",") {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
