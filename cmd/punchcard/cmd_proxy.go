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
	"log"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/punchcard/pkg/logging"
	"github.com/AleutianAI/punchcard/services/loyalty/proxy"
)

// runProxy serves the key/value sync dialect over the configured Redis so
// local clients have a remote store to talk to.
func runProxy(cmd *cobra.Command, args []string) {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Log.Level),
		Service: "punchcard-proxy",
		JSON:    cfg.Log.JSON,
	})
	defer logger.Close()

	backend := proxy.NewRedisStore(proxy.RedisConfig{
		Addr:     cfg.Proxy.RedisAddr,
		Password: cfg.Proxy.RedisPassword,
		DB:       cfg.Proxy.RedisDB,
	})
	defer backend.Close()

	if err := backend.Ping(context.Background()); err != nil {
		log.Fatalf("Error reaching Redis at %s: %v", cfg.Proxy.RedisAddr, err)
	}

	router := proxy.NewRouter(backend, logger.Slog())
	logger.Info("sync proxy listening", "addr", cfg.Proxy.Listen, "redis", cfg.Proxy.RedisAddr)
	if err := router.Run(cfg.Proxy.Listen); err != nil {
		log.Fatalf("Error running proxy: %v", err)
	}
}
