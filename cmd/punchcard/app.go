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

	"github.com/AleutianAI/punchcard/pkg/logging"
	"github.com/AleutianAI/punchcard/services/loyalty/business"
	"github.com/AleutianAI/punchcard/services/loyalty/identity"
	"github.com/AleutianAI/punchcard/services/loyalty/ledger"
	"github.com/AleutianAI/punchcard/services/loyalty/remote"
	"github.com/AleutianAI/punchcard/services/loyalty/storage"
	"github.com/AleutianAI/punchcard/services/loyalty/syncq"
	"github.com/AleutianAI/punchcard/services/loyalty/telemetry"
)

// app holds the constructed-once service objects every command works
// through. Nothing here is global; each command builds and closes its own.
type app struct {
	logger *logging.Logger
	store  *storage.BadgerStore
	ledger *ledger.Ledger
	sync   *syncq.Manager
	remote *remote.HTTPStore
	cache  *business.Cache

	customerID  string
	deviceID    string
	shutdownTel func(context.Context) error
}

// openApp wires the full service graph from the loaded config.
func openApp(ctx context.Context) (*app, error) {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Log.Level),
		LogDir:  cfg.Log.Dir,
		Service: "punchcard",
		JSON:    cfg.Log.JSON,
	})
	slogger := logger.Slog()

	shutdownTel, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	store, err := storage.OpenBadgerStore(cfg.Storage.Path, slogger)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	deviceID, err := identity.EnsureDeviceID(ctx, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	customerID, err := identity.EnsureCustomerID(ctx, store, cfg.Customer.ID)
	if err != nil {
		store.Close()
		return nil, err
	}

	rs := remote.NewHTTPStore(remote.HTTPConfig{
		BaseURL: cfg.Sync.ProxyURL,
		Logger:  slogger,
	})
	probe := remote.NewNetProbe(rs, cfg.Sync.ProbeAddr)
	cache := business.NewCache(store, rs, slogger)

	mgr, err := syncq.NewManager(syncq.Config{
		Store:      store,
		Remote:     rs,
		Probe:      probe,
		Business:   cache,
		CustomerID: customerID,
		DeviceID:   deviceID,
		Retry:      syncq.RetryPolicy{MaxRetries: cfg.Sync.MaxRetries},
		Logger:     slogger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	led, err := ledger.New(ledger.Config{
		Store:      store,
		Queue:      mgr,
		CustomerID: customerID,
		DeviceID:   deviceID,
		Logger:     slogger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{
		logger:      logger,
		store:       store,
		ledger:      led,
		sync:        mgr,
		remote:      rs,
		cache:       cache,
		customerID:  customerID,
		deviceID:    deviceID,
		shutdownTel: shutdownTel,
	}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close record store", "error", err)
	}
	if a.shutdownTel != nil {
		if err := a.shutdownTel(ctx); err != nil {
			a.logger.Warn("failed to shut down telemetry", "error", err)
		}
	}
	_ = a.logger.Close()
}
