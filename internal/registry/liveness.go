package registry

import (
	"context"
	"time"

	"github.com/woozymasta/masterlist/internal/models"
)

// Liveness decides whether records are alive and evicts dead ones.
//
// Two thresholds are used on purpose: the read threshold is what listing, monitoring
// and dashboard views tolerate, the sweep threshold is what actually removes records.
type Liveness struct {
	store          Store
	now            func() time.Time
	readThreshold  time.Duration
	sweepThreshold time.Duration
}

// NewLiveness creates a liveness engine over the store.
func NewLiveness(store Store, now func() time.Time, readThreshold, sweepThreshold time.Duration) *Liveness {
	return &Liveness{
		store:          store,
		now:            now,
		readThreshold:  readThreshold,
		sweepThreshold: sweepThreshold,
	}
}

// Alive reports whether a heartbeat at last is alive at t under threshold.
func Alive(last, t time.Time, threshold time.Duration) bool {
	return t.Sub(last) < threshold
}

// FilterReadAlive keeps only the records alive under the read threshold.
func (l *Liveness) FilterReadAlive(recs []models.ServerRecord) []models.ServerRecord {
	now := l.now()
	out := recs[:0]
	for _, rec := range recs {
		if Alive(rec.LastHeartbeat, now, l.readThreshold) {
			out = append(out, rec)
		}
	}
	return out
}

// SweepTenant removes every record of the tenant whose heartbeat is older than the
// sweep threshold and returns how many were removed. A server that heartbeats between
// the snapshot and the removal is kept.
func (l *Liveness) SweepTenant(ctx context.Context, tenantID int64) (int, error) {
	seen, err := l.store.Liveness(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	cutoff := l.now().Add(-l.sweepThreshold)
	removed := 0
	for id, last := range seen {
		if last.After(cutoff) {
			continue
		}
		ok, err := l.store.RemoveIfStale(ctx, tenantID, id, cutoff)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}

	return removed, nil
}
