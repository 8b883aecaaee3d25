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
	"errors"
	"log/slog"
	"time"
)

// DefaultAutoSyncInterval is the fixed period between background cycles.
const DefaultAutoSyncInterval = 30 * time.Second

// AutoSync runs one sync cycle immediately, then on a fixed interval until
// stopped. Stop only prevents future cycles; a cycle already in flight
// finishes on its own.
type AutoSync struct {
	mgr      *Manager
	interval time.Duration
	// businessIDs is re-evaluated before every cycle so newly visited
	// businesses join the pull without a restart. May be nil.
	businessIDs func() []string
	logger      *slog.Logger
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// NewAutoSync creates a background runner. Call Start() to begin syncing.
func NewAutoSync(mgr *Manager, interval time.Duration, businessIDs func() []string, logger *slog.Logger) *AutoSync {
	if interval <= 0 {
		interval = DefaultAutoSyncInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AutoSync{
		mgr:         mgr,
		interval:    interval,
		businessIDs: businessIDs,
		logger:      logger,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start launches the runner goroutine.
func (a *AutoSync) Start() {
	go a.run()
}

// Stop halts the runner and waits for it to exit.
func (a *AutoSync) Stop() {
	close(a.stopCh)
	<-a.doneCh
}

func (a *AutoSync) run() {
	defer close(a.doneCh)
	a.cycle()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			a.cycle()
		}
	}
}

func (a *AutoSync) cycle() {
	ctx, cancel := context.WithTimeout(context.Background(), a.interval)
	defer cancel()

	var ids []string
	if a.businessIDs != nil {
		ids = a.businessIDs()
	}
	_, err := a.mgr.PerformSync(ctx, ids)
	switch {
	case err == nil:
	case errors.Is(err, ErrOffline), errors.Is(err, ErrSyncInProgress):
		a.logger.Debug("auto sync cycle skipped", "reason", err)
	default:
		a.logger.Warn("auto sync cycle failed", "error", err)
	}
}
