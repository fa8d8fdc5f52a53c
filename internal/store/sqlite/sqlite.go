// Package sqlite provides a SQLite-backed implementation of the store.Store
// interface, including the versioned live change feed.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/duesync/duesync/internal/models"
	"github.com/duesync/duesync/internal/store"
)

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)

// SQLiteStore implements store.Store using SQLite. Every mutation targeting a
// debtee is a single-row INSERT or UPDATE, so concurrent edits to different
// debtees in the same group never clobber each other.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex
	subs    map[uint64]*subscription
	nextSub uint64
	closed  bool
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The driver returns SQLITE_BUSY under concurrent writers; a single
	// connection serializes access instead.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{
		db:   db,
		subs: make(map[uint64]*subscription),
	}, nil
}

// Close stops all subscriptions and closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	s.closed = true
	subs := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
	return s.db.Close()
}

// mutate runs fn inside a transaction, bumps the feed version on success and
// wakes all subscriptions after commit. If fn fails nothing is committed and
// no notification is sent.
func (s *SQLiteStore) mutate(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "UPDATE feed_version SET version = version + 1 WHERE id = 1"); err != nil {
		return fmt.Errorf("failed to bump feed version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.notify()
	return nil
}

// Create persists a new group with an empty debtee collection.
func (s *SQLiteStore) Create(ctx context.Context, group *models.DebtGroup) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}

	return s.mutate(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO groups (id, name, creator_id, created_at) VALUES (?, ?, ?, ?)",
			group.ID, group.Name, group.CreatorID, group.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert group: %w", err)
		}
		return nil
	})
}

// Get retrieves a group by ID, including its full debtee collection.
func (s *SQLiteStore) Get(ctx context.Context, groupID string) (*models.DebtGroup, error) {
	group := &models.DebtGroup{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, creator_id, created_at FROM groups WHERE id = ?",
		groupID,
	).Scan(&group.ID, &group.Name, &group.CreatorID, &group.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: group %s", store.ErrNotFound, groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	debtees, err := s.groupDebtees(ctx, s.db, groupID)
	if err != nil {
		return nil, err
	}
	group.Debtees = debtees

	return group, nil
}

// Delete removes a group by ID. Missing IDs are a no-op success: the next
// snapshot is the real source of truth either way.
func (s *SQLiteStore) Delete(ctx context.Context, groupID string) error {
	return s.mutate(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM debtees WHERE group_id = ?", groupID); err != nil {
			return fmt.Errorf("failed to delete debtees: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM groups WHERE id = ?", groupID); err != nil {
			return fmt.Errorf("failed to delete group: %w", err)
		}
		return nil
	})
}

// AppendDebtee inserts exactly one debtee row. The (group_id, id) primary key
// makes a duplicate add fail closed rather than overwrite.
func (s *SQLiteStore) AppendDebtee(ctx context.Context, groupID string, debtee models.Debtee) error {
	if debtee.Timestamp == 0 {
		debtee.Timestamp = time.Now().Unix()
	}

	return s.mutate(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM groups WHERE id = ?", groupID).Scan(&exists)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: group %s", store.ErrNotFound, groupID)
		}
		if err != nil {
			return fmt.Errorf("failed to check group: %w", err)
		}

		err = tx.QueryRowContext(ctx, "SELECT 1 FROM debtees WHERE group_id = ? AND id = ?", groupID, debtee.ID).Scan(&exists)
		if err == nil {
			return fmt.Errorf("%w: %s", store.ErrDuplicateDebtee, debtee.ID)
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to check debtee: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO debtees (group_id, id, name, paid, added_by, added_at) VALUES (?, ?, ?, ?, ?, ?)",
			groupID, debtee.ID, debtee.Name, boolToInt(debtee.Paid), debtee.AddedBy, debtee.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert debtee: %w", err)
		}
		return nil
	})
}

// PatchDebtee updates a single debtee row keyed by (group_id, id). Zero rows
// affected means the group or debtee vanished under the write.
func (s *SQLiteStore) PatchDebtee(ctx context.Context, groupID, debteeID string, patch store.DebteePatch) error {
	if patch.Paid == nil {
		return nil
	}

	return s.mutate(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE debtees SET paid = ? WHERE group_id = ? AND id = ?",
			boolToInt(*patch.Paid), groupID, debteeID,
		)
		if err != nil {
			return fmt.Errorf("failed to update debtee: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: debtee %s in group %s", store.ErrNotFound, debteeID, groupID)
		}
		return nil
	})
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) groupDebtees(ctx context.Context, q querier, groupID string) ([]models.Debtee, error) {
	// ULIDs sort by add time, so (added_at, id) preserves insertion order.
	rows, err := q.QueryContext(ctx,
		"SELECT id, name, paid, added_by, added_at FROM debtees WHERE group_id = ? ORDER BY added_at, id",
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get debtees: %w", err)
	}
	defer rows.Close()

	var debtees []models.Debtee
	for rows.Next() {
		var d models.Debtee
		var paid int
		if err := rows.Scan(&d.ID, &d.Name, &paid, &d.AddedBy, &d.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan debtee: %w", err)
		}
		d.Paid = paid != 0
		debtees = append(debtees, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate debtees: %w", err)
	}

	return debtees, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
