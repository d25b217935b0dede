// Package network tracks whether the backend is reachable and manages the
// WiFi credentials the device may join.
package network

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ProbeFunc returns nil when the network is usable.
type ProbeFunc func(ctx context.Context) error

// DialProbe checks reachability by opening a TCP connection to addr.
func DialProbe(addr string, timeout time.Duration) ProbeFunc {
	return func(ctx context.Context) error {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("dial %s: %w", addr, err)
		}
		return conn.Close()
	}
}

// Monitor holds the "network available" signal. Safe for concurrent use.
type Monitor struct {
	probe  ProbeFunc
	online atomic.Bool

	mu        sync.Mutex
	listeners []func(online bool)
}

// NewMonitor creates a Monitor that starts offline. probe may be nil when
// the state is only ever set explicitly.
func NewMonitor(probe ProbeFunc) *Monitor {
	return &Monitor{probe: probe}
}

// Online reports the last known state.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// OnChange registers fn to be called, outside any lock, on every transition.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Set records the state and notifies listeners if it changed.
func (m *Monitor) Set(online bool) {
	if m.online.Swap(online) == online {
		return
	}
	if online {
		log.Printf("network: online")
	} else {
		log.Printf("network: offline")
	}

	m.mu.Lock()
	fns := append([]func(bool){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(online)
	}
}

// Check runs the probe once and records the result.
func (m *Monitor) Check(ctx context.Context) bool {
	if m.probe == nil {
		return m.Online()
	}
	err := m.probe(ctx)
	if err != nil && m.Online() {
		log.Printf("network: probe failed: %v", err)
	}
	m.Set(err == nil)
	return err == nil
}

// Run probes immediately and then every interval until ctx is canceled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	m.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
