// Package report delivers pick/skip outcomes to the backend.
// Delivery is best effort: one request per outcome, on its own goroutine,
// with no retry and no queue. An outcome for a dose without an id, or while
// the network is down, is logged and dropped.
package report

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Marker sends one outcome to the backend.
type Marker interface {
	MarkDose(ctx context.Context, doseID string, taken bool, idempotencyKey string) error
}

// Availability reports whether the network is up.
type Availability interface {
	Online() bool
}

// Recorder keeps a local history of delivery attempts.
type Recorder interface {
	RecordReport(doseID string, taken bool, key string, outcome error)
}

// Reporter is safe for concurrent use.
type Reporter struct {
	marker   Marker
	network  Availability
	recorder Recorder
	timeout  time.Duration

	wg sync.WaitGroup
}

// New creates a Reporter. recorder may be nil.
func New(marker Marker, network Availability, recorder Recorder, timeout time.Duration) *Reporter {
	return &Reporter{
		marker:   marker,
		network:  network,
		recorder: recorder,
		timeout:  timeout,
	}
}

func action(taken bool) string {
	if taken {
		return "taken"
	}
	return "skipped"
}

// Report sends the outcome in the background and returns immediately.
func (r *Reporter) Report(doseID string, taken bool) {
	if doseID == "" {
		log.Printf("report: no dose id; not reporting %s", action(taken))
		return
	}
	if !r.network.Online() {
		log.Printf("report: offline; dropping %s for %s", action(taken), doseID)
		return
	}

	key := uuid.NewString()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		err := r.marker.MarkDose(ctx, doseID, taken, key)
		if err != nil {
			log.Printf("report: mark %s %s failed: %v", action(taken), doseID, err)
		} else {
			log.Printf("report: marked %s %s", action(taken), doseID)
		}
		if r.recorder != nil {
			r.recorder.RecordReport(doseID, taken, key, err)
		}
	}()
}

// Wait blocks until every in-flight report has finished.
func (r *Reporter) Wait() {
	r.wg.Wait()
}
