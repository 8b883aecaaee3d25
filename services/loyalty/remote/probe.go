// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package remote

import (
	"context"
	"net"
	"time"
)

// NetProbe is the production Probe: a TCP dial for general connectivity
// and a proxy Ping for remote availability.
type NetProbe struct {
	store       Store
	dialAddr    string
	dialTimeout time.Duration
}

// NewNetProbe creates a probe that dials dialAddr (host:port) to decide
// online/offline and pings store for remote availability. An empty dialAddr
// defaults to a well-known public resolver.
func NewNetProbe(store Store, dialAddr string) *NetProbe {
	if dialAddr == "" {
		dialAddr = "1.1.1.1:443"
	}
	return &NetProbe{
		store:       store,
		dialAddr:    dialAddr,
		dialTimeout: 3 * time.Second,
	}
}

// Online implements Probe.
func (p *NetProbe) Online(ctx context.Context) bool {
	d := net.Dialer{Timeout: p.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", p.dialAddr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// RemoteAvailable implements Probe.
func (p *NetProbe) RemoteAvailable(ctx context.Context) bool {
	return p.store.Ping(ctx) == nil
}

// StaticProbe is a scripted Probe for tests and for forcing offline mode.
type StaticProbe struct {
	IsOnline    bool
	IsAvailable bool
}

// Online implements Probe.
func (p *StaticProbe) Online(ctx context.Context) bool { return p.IsOnline }

// RemoteAvailable implements Probe.
func (p *StaticProbe) RemoteAvailable(ctx context.Context) bool { return p.IsAvailable }

var (
	_ Probe = (*NetProbe)(nil)
	_ Probe = (*StaticProbe)(nil)
)
