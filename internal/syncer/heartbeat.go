package syncer

import (
	"context"
	"log"
	"time"

	"github.com/sweeney/dose-dispenser/internal/backend"
)

// DefaultHeartbeatEvery is the liveness report period.
const DefaultHeartbeatEvery = 60 * time.Second

// HeartbeatSender posts liveness reports.
type HeartbeatSender interface {
	SendHeartbeat(ctx context.Context, hb backend.Heartbeat) error
}

// Heartbeat reports liveness to the backend on a fixed period.
type Heartbeat struct {
	sender HeartbeatSender
	net    Availability
	build  func() backend.Heartbeat

	// OnBeat, if set, runs every period whether or not the device is online.
	OnBeat func()

	Every   time.Duration
	Timeout time.Duration
}

// NewHeartbeat creates a Heartbeat. build is called for every report.
func NewHeartbeat(sender HeartbeatSender, net Availability, build func() backend.Heartbeat) *Heartbeat {
	return &Heartbeat{
		sender:  sender,
		net:     net,
		build:   build,
		Every:   DefaultHeartbeatEvery,
		Timeout: DefaultFetchTimeout,
	}
}

// Run beats every period until ctx is done. The first beat is one period
// after start.
func (h *Heartbeat) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.Every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.RunOnce(ctx)
		}
	}
}

// RunOnce sends one heartbeat if online. Failures are logged only.
func (h *Heartbeat) RunOnce(ctx context.Context) {
	if h.OnBeat != nil {
		h.OnBeat()
	}
	if !h.net.Online() {
		return
	}

	hctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()
	if err := h.sender.SendHeartbeat(hctx, h.build()); err != nil {
		log.Printf("syncer: heartbeat: %v", err)
	}
}
