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
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/punchcard/services/loyalty/ledger"
	"github.com/AleutianAI/punchcard/services/loyalty/qr"
)

// runScan decodes the raw QR content and applies it to the record. The
// camera lives in the app shell; the CLI takes the decoded string.
func runScan(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		log.Fatalf("Error starting punchcard: %v", err)
	}
	defer a.close(ctx)

	decoded := qr.Decode(args[0])
	switch decoded.Kind {
	case qr.KindReward:
		r := decoded.Reward
		points := r.PointsPerPurchase
		if points <= 0 {
			points = 1
		}
		businessName := ""
		if r.Business != nil {
			businessName = r.Business.Name
		}
		res, err := a.ledger.RecordScan(ctx, ledger.ScanInput{
			Kind:           ledger.KindReward,
			ID:             r.ID,
			Name:           r.Name,
			PointsAwarded:  points,
			PointsRequired: r.Requirement,
			BusinessName:   businessName,
			RewardType:     r.RewardType,
			QRCode:         args[0],
			PINCode:        r.PinCode,
		})
		if err != nil {
			log.Fatalf("Error recording scan: %v", err)
		}
		printScanResult(res)

	case qr.KindCampaign:
		c := decoded.Campaign
		res, err := a.ledger.RecordScan(ctx, ledger.ScanInput{
			Kind:           ledger.KindCampaign,
			ID:             c.ID,
			Name:           c.Name,
			PointsAwarded:  1,
			PointsRequired: 1,
			QRCode:         args[0],
		})
		if err != nil {
			log.Fatalf("Error recording scan: %v", err)
		}
		printScanResult(res)

	case qr.KindCompany:
		co := decoded.Company
		if err := a.ledger.RecordBusinessVisit(ctx, co.Number); err != nil {
			log.Fatalf("Error recording business visit: %v", err)
		}
		fmt.Printf("Business card: %s (#%s)\n", co.Name, co.Number)
		fmt.Println("Run 'punchcard sync' to fetch its rewards.")

	default:
		log.Fatalf("Unrecognized QR content")
	}
}

func printScanResult(res *ledger.ScanResult) {
	p := res.Progress
	if res.IsNewlyEarned {
		fmt.Printf("You earned it! %s is ready to redeem (id %s).\n", p.RewardName, p.RewardID)
		return
	}
	fmt.Printf("%s: %d/%d points\n", p.RewardName, p.PointsEarned, p.PointsRequired)
}
