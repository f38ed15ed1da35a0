// Package presence runs participant heartbeats and derives liveness from the
// last time each participant was seen.
package presence

import (
	"context"
	"log"
	"time"

	"github.com/louisbranch/hymnal.space/internal/services/worship/domain"
)

// DefaultInterval is the heartbeat period.
const DefaultInterval = 30 * time.Second

// StaleFactor is how many missed heartbeats make a participant disconnected.
const StaleFactor = 3

// StaleAfter returns the staleness threshold for a heartbeat interval.
func StaleAfter(interval time.Duration) time.Duration {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return StaleFactor * interval
}

// Run calls beat once immediately and then every interval until ctx ends.
// Failures are logged and retried on the next tick.
func Run(ctx context.Context, interval time.Duration, beat func(context.Context) error) {
	if beat == nil {
		return
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	tick := func() {
		if err := beat(ctx); err != nil && ctx.Err() == nil {
			log.Printf("presence: heartbeat failed: %v", err)
		}
	}

	tick()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

// Effective returns a copy of participants with stale rows marked
// disconnected.
func Effective(participants []domain.Participant, now time.Time, staleAfter time.Duration) []domain.Participant {
	out := make([]domain.Participant, len(participants))
	for i, p := range participants {
		p.ConnectionStatus = domain.EffectiveStatus(p, now, staleAfter)
		out[i] = p
	}
	return out
}
