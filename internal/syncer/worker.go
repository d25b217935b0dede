// Package syncer keeps the local schedule, clock and liveness in step with
// the backend. Each loop runs on its own goroutine, does its network I/O
// unlocked, and takes the coordination lock only to publish results.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/sweeney/dose-dispenser/internal/backend"
	"github.com/sweeney/dose-dispenser/internal/clock"
	"github.com/sweeney/dose-dispenser/internal/kv"
	"github.com/sweeney/dose-dispenser/internal/schedule"
	"github.com/sweeney/dose-dispenser/internal/status"
)

// ProfileKey is where the raw patient profile is cached.
const ProfileKey = "profile_json"

// Summary texts for the main screen.
const (
	TextFetching     = "Fetching..."
	TextNoUpcoming   = "No upcoming meds"
	TextNoCachedMeds = "No cached meds"
	TextNoCachedData = "No cached data"
	statusFetching   = "fetching"
)

// Defaults for Worker.
const (
	DefaultInterval     = 5 * time.Second
	DefaultFetchEvery   = 60 * time.Second
	DefaultFetchTimeout = 5 * time.Second
)

// Guard runs fn while holding the coordination lock.
type Guard interface {
	Do(fn func())
}

// Availability reports whether the network is up.
type Availability interface {
	Online() bool
}

// Fetcher reads schedule data from the backend.
type Fetcher interface {
	FetchCategory(ctx context.Context, cat schedule.Category) ([]schedule.DoseRecord, error)
	Profile(ctx context.Context) ([]byte, error)
}

// Presenter is the part of the display the worker drives.
type Presenter interface {
	SetMainSummary(name, time, dose, status string)
	SetMainMessage(msg string)
	ShowCategory(title string, cc schedule.CategoryCache, offline bool)
	ShowMessage(title string, lines ...string)
	ShowingView(title string) bool
}

// Worker refreshes the category caches and the main-screen summary.
type Worker struct {
	fetch Fetcher
	net   Availability
	cache *schedule.Cache
	view  Presenter
	store kv.Store
	guard Guard
	now   func() time.Time

	Interval     time.Duration
	FetchEvery   time.Duration
	FetchTimeout time.Duration

	mu        sync.Mutex
	requested bool
	lastFetch time.Time
	current   schedule.Category // detail view on screen, "" for none
	pending   schedule.Category // detail fetch waiting for the next online pass
	lastErr   string
}

// NewWorker creates a Worker with default timings. cache.Replace is only
// called through guard.
func NewWorker(fetch Fetcher, net Availability, cache *schedule.Cache, view Presenter, store kv.Store, guard Guard, now func() time.Time) *Worker {
	return &Worker{
		fetch:        fetch,
		net:          net,
		cache:        cache,
		view:         view,
		store:        store,
		guard:        guard,
		now:          now,
		Interval:     DefaultInterval,
		FetchEvery:   DefaultFetchEvery,
		FetchTimeout: DefaultFetchTimeout,
	}
}

// RequestSync makes the next online pass do a full sync.
func (w *Worker) RequestSync() {
	w.mu.Lock()
	w.requested = true
	w.mu.Unlock()
}

// LastError returns the short text of the most recent fetch failure, or "".
func (w *Worker) LastError() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Current returns the category whose detail view is open, or "".
func (w *Worker) Current() schedule.Category {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// OpenCategory shows a detail view from the cache and, when online, queues a
// refresh for it.
func (w *Worker) OpenCategory(cat schedule.Category) {
	online := w.net.Online()
	w.mu.Lock()
	w.current = cat
	if online {
		w.pending = cat
	}
	w.mu.Unlock()

	loaded := w.cache.EnsureLoaded(cat)
	switch {
	case loaded:
		w.view.ShowCategory(cat.Title(), w.cache.Get(cat), !online)
	case online:
		w.view.ShowMessage(cat.Title(), status.LineLoading)
	default:
		w.view.ShowMessage(cat.Title(), status.LineNoWiFi)
	}
}

// CloseCategory forgets the open detail view.
func (w *Worker) CloseCategory() {
	w.mu.Lock()
	w.current = ""
	w.mu.Unlock()
}

// Profile returns the cached patient profile.
func (w *Worker) Profile() (json.RawMessage, bool) {
	raw, err := w.store.Get(ProfileKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			log.Printf("syncer: load profile: %v", err)
		}
		return nil, false
	}
	return raw, true
}

// Run calls RunOnce every Interval until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		w.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce does one pass: offline it projects the cache onto the main screen;
// online it runs a full sync when due and services a queued detail fetch.
func (w *Worker) RunOnce(ctx context.Context) {
	if !w.net.Online() {
		w.showOffline()
		return
	}

	now := w.now()
	w.mu.Lock()
	due := w.requested || w.lastFetch.IsZero() || now.Sub(w.lastFetch) >= w.FetchEvery
	if due {
		w.requested = false
		w.lastFetch = now
	}
	detail := w.pending
	w.pending = ""
	w.mu.Unlock()

	if due {
		w.fullSync(ctx, detail)
		return
	}
	if detail != "" {
		w.fetchInto(ctx, detail, true)
	}
}

// fullSync refreshes every category. Only detail, the queued detail fetch,
// may redraw its open view.
func (w *Worker) fullSync(ctx context.Context, detail schedule.Category) {
	log.Printf("syncer: full sync")
	w.view.SetMainSummary(TextFetching, clock.Placeholder, "", statusFetching)

	records, err := w.fetchInto(ctx, schedule.Upcoming, detail == schedule.Upcoming)
	switch {
	case err != nil:
		w.view.SetMainMessage(backend.Describe(err))
	case len(records) == 0:
		w.view.SetMainMessage(TextNoUpcoming)
	default:
		w.showSummary(records[0])
	}

	w.fetchInto(ctx, schedule.Taken, detail == schedule.Taken)
	w.fetchInto(ctx, schedule.Missed, detail == schedule.Missed)
	w.prefetchProfile(ctx)
}

// fetchInto fetches one category and, on success, replaces its cache. With
// redraw set it also refreshes the category's detail view, but only while that
// view is still open and in front of the user. On failure the cache is left
// untouched.
func (w *Worker) fetchInto(ctx context.Context, cat schedule.Category, redraw bool) ([]schedule.DoseRecord, error) {
	fctx, cancel := context.WithTimeout(ctx, w.FetchTimeout)
	defer cancel()

	records, err := w.fetch.FetchCategory(fctx, cat)
	if err != nil {
		log.Printf("syncer: fetch %s: %v", cat, err)
		w.mu.Lock()
		w.lastErr = backend.Describe(err)
		w.mu.Unlock()
		return nil, err
	}

	w.guard.Do(func() {
		w.cache.Replace(cat, records)
		if redraw && w.Current() == cat && w.view.ShowingView(cat.Title()) {
			w.view.ShowCategory(cat.Title(), w.cache.Get(cat), false)
		}
	})
	log.Printf("syncer: %s updated (%d records)", cat, len(records))

	return w.cache.Get(cat).Records, nil
}

func (w *Worker) prefetchProfile(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, w.FetchTimeout)
	defer cancel()

	raw, err := w.fetch.Profile(pctx)
	if err != nil {
		log.Printf("syncer: profile: %v", err)
		return
	}
	if err := w.store.Set(ProfileKey, raw); err != nil {
		log.Printf("syncer: persist profile: %v", err)
	}
}

func (w *Worker) showOffline() {
	if !w.cache.EnsureLoaded(schedule.Upcoming) {
		w.view.SetMainMessage(TextNoCachedData)
		return
	}
	up := w.cache.Get(schedule.Upcoming)
	if len(up.Records) == 0 {
		w.view.SetMainMessage(TextNoCachedMeds)
		return
	}
	w.showSummary(up.Records[0])
}

func (w *Worker) showSummary(rec schedule.DoseRecord) {
	w.view.SetMainSummary(rec.Name, clock.Format12h(rec.ScheduledTime), rec.Dose, rec.Status)
}
