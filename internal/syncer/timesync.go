package syncer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/dose-dispenser/internal/backend"
	"github.com/sweeney/dose-dispenser/internal/clock"
	"github.com/sweeney/dose-dispenser/internal/kv"
)

// Defaults for TimeSync.
const (
	DefaultTimeEvery    = 10 * time.Minute
	DefaultTimeAttempts = 3
	DefaultTimeBackoff  = time.Second
)

// TimeSource reads the backend's local time.
type TimeSource interface {
	Time(ctx context.Context) (backend.ServerTime, error)
}

// ClockView shows the clock label.
type ClockView interface {
	SetClockText(text string)
}

// TimeSync periodically sets the device clock from the backend.
type TimeSync struct {
	src   TimeSource
	net   Availability
	clk   *clock.Clock
	view  ClockView
	store kv.Store
	guard Guard
	now   func() time.Time

	Interval time.Duration
	Every    time.Duration
	Attempts int
	Backoff  time.Duration
	Timeout  time.Duration

	mu        sync.Mutex
	requested bool
	last      time.Time
}

// NewTimeSync creates a TimeSync with default timings. clk is only touched
// through guard.
func NewTimeSync(src TimeSource, net Availability, clk *clock.Clock, view ClockView, store kv.Store, guard Guard, now func() time.Time) *TimeSync {
	return &TimeSync{
		src:      src,
		net:      net,
		clk:      clk,
		view:     view,
		store:    store,
		guard:    guard,
		now:      now,
		Interval: DefaultInterval,
		Every:    DefaultTimeEvery,
		Attempts: DefaultTimeAttempts,
		Backoff:  DefaultTimeBackoff,
		Timeout:  DefaultFetchTimeout,
	}
}

// RequestSync makes the next online pass sync the clock.
func (t *TimeSync) RequestSync() {
	t.mu.Lock()
	t.requested = true
	t.mu.Unlock()
}

// Run calls RunOnce every Interval until ctx is done.
func (t *TimeSync) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		t.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce syncs the clock if online and due. It reports whether a sync
// succeeded.
func (t *TimeSync) RunOnce(ctx context.Context) bool {
	if !t.net.Online() {
		return false
	}
	now := t.now()
	t.mu.Lock()
	due := t.requested || t.last.IsZero() || now.Sub(t.last) >= t.Every
	t.mu.Unlock()
	if !due {
		return false
	}

	for attempt := 1; attempt <= t.Attempts; attempt++ {
		err := t.attempt(ctx)
		if err == nil {
			t.mu.Lock()
			t.requested = false
			t.last = now
			t.mu.Unlock()
			return true
		}
		log.Printf("syncer: time sync attempt %d/%d: %v", attempt, t.Attempts, err)
		if attempt == t.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(t.Backoff):
		}
	}
	return false
}

func (t *TimeSync) attempt(ctx context.Context) error {
	tctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	st, err := t.src.Time(tctx)
	if err != nil {
		return err
	}

	var (
		applyErr error
		text     string
		display  string
		valid    bool
	)
	t.guard.Do(func() {
		applyErr = t.clk.ApplyServerTime(st.Local12, st.Local24)
		if applyErr != nil {
			return
		}
		text = t.clk.Render()
		display = t.clk.Display()
		valid = t.clk.DisplayValid()
	})
	if applyErr != nil {
		return fmt.Errorf("apply server time: %w", applyErr)
	}

	log.Printf("syncer: clock set to %s", text)
	t.view.SetClockText(text)
	if valid {
		if err := t.store.Set(clock.StoreKey, []byte(display)); err != nil {
			log.Printf("syncer: persist clock label: %v", err)
		}
	}
	return nil
}
