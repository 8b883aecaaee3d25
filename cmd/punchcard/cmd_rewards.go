// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/punchcard/services/loyalty/ledger"
)

func runRewards(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		log.Fatalf("Error starting punchcard: %v", err)
	}
	defer a.close(ctx)

	rec, err := a.ledger.Record(ctx)
	if err != nil {
		log.Fatalf("Error loading record: %v", err)
	}

	printSection := func(title string, entries []ledger.Progress) {
		if len(entries) == 0 {
			return
		}
		fmt.Printf("%s:\n", title)
		for _, p := range entries {
			name := p.RewardName
			if p.BusinessName != "" {
				name = fmt.Sprintf("%s (%s)", name, p.BusinessName)
			}
			fmt.Printf("  %-12s %s  %d/%d\n", p.RewardID, name, p.PointsEarned, p.PointsRequired)
		}
	}

	printSection("Active", rec.ActiveRewards)
	printSection("Earned", rec.EarnedRewards)
	printSection("Redeemed", rec.RedeemedRewards)
	printSection("Active campaigns", rec.ActiveCampaigns)
	printSection("Earned campaigns", rec.EarnedCampaigns)

	fmt.Printf("\n%d scans at %d businesses, %d earned, %d redeemed\n",
		rec.Stats.TotalScans,
		len(rec.Stats.BusinessesVisited),
		rec.Stats.TotalEarned,
		rec.Stats.TotalRedeemed)
}

func runRedeem(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		log.Fatalf("Error starting punchcard: %v", err)
	}
	defer a.close(ctx)

	redeemed, err := a.ledger.Redeem(ctx, args[0])
	if errors.Is(err, ledger.ErrNotEarned) {
		log.Fatalf("Reward %s is not earned yet", args[0])
	}
	if err != nil {
		log.Fatalf("Error redeeming: %v", err)
	}
	fmt.Printf("Redeemed %s.", redeemed.RewardName)
	if redeemed.PINCode != "" {
		fmt.Printf(" Show PIN %s at the counter.", redeemed.PINCode)
	}
	fmt.Println(" A fresh card was started for your next visit.")
}

func runProfile(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		log.Fatalf("Error starting punchcard: %v", err)
	}
	defer a.close(ctx)

	patch := ledger.ProfilePatch{}
	if cmd.Flags().Changed("name") {
		patch.Name = &profileName
	}
	if cmd.Flags().Changed("email") {
		patch.Email = &profileEmail
	}
	if cmd.Flags().Changed("phone") {
		patch.Phone = &profilePhone
	}

	rec, err := a.ledger.UpdateProfile(ctx, patch)
	if err != nil {
		log.Fatalf("Error updating profile: %v", err)
	}
	fmt.Printf("Profile: name=%q email=%q phone=%q\n",
		rec.Profile.Name, rec.Profile.Email, rec.Profile.Phone)
}

func runBusiness(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		log.Fatalf("Error starting punchcard: %v", err)
	}
	defer a.close(ctx)

	details, ok := a.cache.Get(ctx, args[0])
	if !ok {
		log.Fatalf("No cached details for %s; run 'punchcard sync' first", args[0])
	}
	fmt.Printf("%s\n", details.Name)
	if details.Address != "" {
		fmt.Printf("  %s\n", details.Address)
	}
	if details.Website != "" {
		fmt.Printf("  %s\n", details.Website)
	}
	for _, r := range details.Rewards {
		fmt.Printf("  reward %-12s %s (%d points)\n", r.ID, r.Name, r.Requirement)
	}
	for _, c := range details.Campaigns {
		fmt.Printf("  campaign %-10s %s\n", c.ID, c.Name)
	}
}
