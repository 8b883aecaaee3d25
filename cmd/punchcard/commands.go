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
	"log"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/punchcard/services/loyalty/config"
)

// --- Global Command Variables ---
var (
	configPath string
	cfg        *config.Config

	// profile flags
	profileName  string
	profileEmail string
	profilePhone string

	rootCmd = &cobra.Command{
		Use:   "punchcard",
		Short: "An offline-first loyalty card wallet",
		Long: `Punchcard keeps your loyalty cards on your own device: scans
work with no network at all, and a background sync reconciles with the
shared store whenever one is reachable.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				log.Fatalf("Error loading config: %v", err)
			}
		},
	}

	scanCmd = &cobra.Command{
		Use:   "scan [qr-content]",
		Short: "Apply a scanned QR code to your record",
		Args:  cobra.ExactArgs(1),
		Run:   runScan, // Defined in cmd_scan.go
	}

	rewardsCmd = &cobra.Command{
		Use:   "rewards",
		Short: "Show your active, earned, and redeemed rewards",
		Run:   runRewards, // Defined in cmd_rewards.go
	}

	redeemCmd = &cobra.Command{
		Use:   "redeem [reward-id]",
		Short: "Redeem an earned reward",
		Args:  cobra.ExactArgs(1),
		Run:   runRedeem, // Defined in cmd_rewards.go
	}

	profileCmd = &cobra.Command{
		Use:   "profile",
		Short: "Update your profile",
		Run:   runProfile, // Defined in cmd_rewards.go
	}

	businessCmd = &cobra.Command{
		Use:   "business [business-id]",
		Short: "Show cached details for a business",
		Args:  cobra.ExactArgs(1),
		Run:   runBusiness, // Defined in cmd_rewards.go
	}

	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Run one sync cycle now",
		Run:   runSync, // Defined in cmd_sync.go
	}

	autosyncCmd = &cobra.Command{
		Use:   "autosync",
		Short: "Sync every 30 seconds until interrupted",
		Run:   runAutoSync, // Defined in cmd_sync.go
	}

	proxyCmd = &cobra.Command{
		Use:   "proxy",
		Short: "Run the development sync proxy backed by Redis",
		Run:   runProxy, // Defined in cmd_proxy.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.punchcard/punchcard.yaml)")

	profileCmd.Flags().StringVar(&profileName, "name", "", "display name")
	profileCmd.Flags().StringVar(&profileEmail, "email", "", "email address")
	profileCmd.Flags().StringVar(&profilePhone, "phone", "", "phone number")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(rewardsCmd)
	rootCmd.AddCommand(redeemCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(businessCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(autosyncCmd)
	rootCmd.AddCommand(proxyCmd)
}
