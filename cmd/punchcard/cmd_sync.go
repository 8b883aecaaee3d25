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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/punchcard/services/loyalty/syncq"
)

func runSync(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		log.Fatalf("Error starting punchcard: %v", err)
	}
	defer a.close(ctx)

	res, err := a.sync.PerformSync(ctx, a.ledger.VisitedBusinesses(ctx))
	if errors.Is(err, syncq.ErrOffline) {
		fmt.Println("Offline; nothing synced. Your queued changes are safe.")
		return
	}
	if err != nil {
		log.Fatalf("Error syncing: %v", err)
	}

	fmt.Printf("Pushed %d, pulled %d", res.Pushed, res.Pulled)
	if len(res.Errors) > 0 {
		fmt.Printf(", %d errors", len(res.Errors))
	}
	fmt.Println()
	for _, e := range res.Errors {
		fmt.Printf("  %v\n", e)
	}
}

func runAutoSync(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		log.Fatalf("Error starting punchcard: %v", err)
	}
	defer a.close(ctx)

	runner := syncq.NewAutoSync(a.sync, cfg.Sync.AutoSyncInterval, func() []string {
		return a.ledger.VisitedBusinesses(context.Background())
	}, a.logger.Slog())
	runner.Start()
	fmt.Printf("Auto sync running every %s. Ctrl-C to stop.\n", cfg.Sync.AutoSyncInterval)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	runner.Stop()
	fmt.Println("Stopped.")
}
