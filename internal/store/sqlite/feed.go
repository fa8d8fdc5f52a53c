package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/duesync/duesync/internal/metrics"
	"github.com/duesync/duesync/internal/models"
	"github.com/duesync/duesync/internal/store"
)

// SubscribeAll opens a live subscription over the full group collection. The
// current state is delivered immediately; afterwards every committed mutation
// wakes the subscription, which re-reads the database and delivers a fresh
// snapshot. Rapid successive mutations may coalesce into one delivery, but
// the delivered versions are strictly increasing.
func (s *SQLiteStore) SubscribeAll(ctx context.Context) (store.Subscription, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("store is closed")
	}
	s.nextSub++
	sub := &subscription{
		store:     s,
		id:        s.nextSub,
		snapshots: make(chan models.Snapshot),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	s.subs[sub.id] = sub
	s.mu.Unlock()

	metrics.ActiveSubscriptions.Inc()
	go sub.run(ctx)
	return sub, nil
}

// notify wakes every subscription after a committed mutation. The wake
// channel has capacity one, so pending wakes coalesce.
func (s *SQLiteStore) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		select {
		case sub.wake <- struct{}{}:
		default:
		}
	}
}

func (s *SQLiteStore) removeSub(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

// snapshot reads the complete current state inside one transaction, so the
// version marker and the group contents are mutually consistent.
func (s *SQLiteStore) snapshot(ctx context.Context) (models.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to begin snapshot read: %w", err)
	}
	defer tx.Rollback()

	var snap models.Snapshot
	if err := tx.QueryRowContext(ctx, "SELECT version FROM feed_version WHERE id = 1").Scan(&snap.Version); err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to read feed version: %w", err)
	}

	rows, err := tx.QueryContext(ctx, "SELECT id, name, creator_id, created_at FROM groups ORDER BY created_at, id")
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to read groups: %w", err)
	}
	for rows.Next() {
		var g models.DebtGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatorID, &g.CreatedAt); err != nil {
			rows.Close()
			return models.Snapshot{}, fmt.Errorf("failed to scan group: %w", err)
		}
		snap.Groups = append(snap.Groups, g)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return models.Snapshot{}, fmt.Errorf("failed to iterate groups: %w", err)
	}
	rows.Close()

	for i := range snap.Groups {
		debtees, err := s.groupDebtees(ctx, tx, snap.Groups[i].ID)
		if err != nil {
			return models.Snapshot{}, err
		}
		snap.Groups[i].Debtees = debtees
	}

	return snap, nil
}

// subscription is one registered listener on the change feed.
type subscription struct {
	store     *SQLiteStore
	id        uint64
	snapshots chan models.Snapshot
	wake      chan struct{}
	done      chan struct{}

	once sync.Once

	errMu sync.Mutex
	err   error
}

func (sub *subscription) Snapshots() <-chan models.Snapshot {
	return sub.snapshots
}

func (sub *subscription) Err() error {
	sub.errMu.Lock()
	defer sub.errMu.Unlock()
	return sub.err
}

// Unsubscribe stops further deliveries. Idempotent.
func (sub *subscription) Unsubscribe() {
	sub.once.Do(func() {
		sub.store.removeSub(sub.id)
		close(sub.done)
		metrics.ActiveSubscriptions.Dec()
	})
}

func (sub *subscription) setErr(err error) {
	sub.errMu.Lock()
	sub.err = err
	sub.errMu.Unlock()
}

func (sub *subscription) run(ctx context.Context) {
	defer close(sub.snapshots)

	var delivered int64 = -1
	for {
		snap, err := sub.store.snapshot(ctx)
		if err != nil {
			if ctx.Err() == nil {
				sub.setErr(err)
			}
			sub.Unsubscribe()
			return
		}

		if snap.Version > delivered {
			select {
			case sub.snapshots <- snap:
				delivered = snap.Version
			case <-sub.done:
				return
			case <-ctx.Done():
				sub.Unsubscribe()
				return
			}
		}

		select {
		case <-sub.wake:
		case <-sub.done:
			return
		case <-ctx.Done():
			sub.Unsubscribe()
			return
		}
	}
}
