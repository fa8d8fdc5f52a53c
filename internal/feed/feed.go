// Package feed derives local state from the store's live change feed.
package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/duesync/duesync/internal/metrics"
	"github.com/duesync/duesync/internal/models"
	"github.com/duesync/duesync/internal/store"
)

// SnapshotFunc receives complete, consistent snapshots. The snapshot is
// read-only; callbacks must not mutate it.
type SnapshotFunc func(models.Snapshot)

// ErrorFunc receives the reason the feed stopped. Until a new subscription
// succeeds, previously delivered state must be treated as stale.
type ErrorFunc func(error)

// Subscriber opens one live subscription over the full group collection and
// delivers every observed change as a complete snapshot.
type Subscriber struct {
	store store.Store
}

// New creates a Subscriber reading from the given store.
func New(st store.Store) *Subscriber {
	return &Subscriber{store: st}
}

// Subscribe opens the subscription and invokes onSnapshot for every delivered
// snapshot, in strictly increasing version order. Snapshots arriving with a
// version at or below the last delivered one are discarded: full snapshots
// are self-contained, so the newest state still arrives and monotonicity is
// preserved.
//
// The returned function stops further callbacks; it is safe to call multiple
// times. A feed failure invokes onError once, after which no further
// snapshots are delivered.
func (s *Subscriber) Subscribe(ctx context.Context, onSnapshot SnapshotFunc, onError ErrorFunc) (func(), error) {
	sub, err := s.store.SubscribeAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open subscription: %w", err)
	}

	var stopOnce sync.Once
	stopped := make(chan struct{})
	stop := func() {
		stopOnce.Do(func() {
			close(stopped)
			sub.Unsubscribe()
		})
	}

	go func() {
		var delivered int64 = -1
		for snap := range sub.Snapshots() {
			if snap.Version <= delivered {
				metrics.SnapshotsDropped.Inc()
				continue
			}
			select {
			case <-stopped:
				return
			default:
			}
			delivered = snap.Version
			metrics.SnapshotsDelivered.Inc()
			onSnapshot(snap)
		}

		if err := sub.Err(); err != nil && onError != nil {
			select {
			case <-stopped:
			default:
				onError(err)
			}
		}
	}()

	return stop, nil
}
