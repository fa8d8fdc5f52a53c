// Package store defines the contract the rest of the system requires from the
// shared record store.
package store

import (
	"context"
	"errors"

	"github.com/duesync/duesync/internal/models"
)

var (
	// ErrNotFound is returned when the target record vanished between the
	// caller's local view and the store call. Callers resolve it by relying
	// on the next snapshot, not by local reconstruction.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateDebtee is returned when appending a debtee whose ID
	// already exists in the group. Duplicate adds fail closed; they never
	// silently overwrite.
	ErrDuplicateDebtee = errors.New("debtee id already exists in group")
)

// DebteePatch describes a partial update to a single debtee. Nil fields are
// left untouched.
type DebteePatch struct {
	Paid *bool
}

// Subscription is a live change feed over the full group collection.
type Subscription interface {
	// Snapshots yields a complete snapshot for every observed change,
	// starting with the current state. The channel closes on unsubscribe,
	// context cancellation, or feed failure.
	Snapshots() <-chan models.Snapshot

	// Err reports why the feed stopped, or nil after a clean unsubscribe.
	// Valid only once Snapshots is closed.
	Err() error

	// Unsubscribe stops further deliveries. Safe to call multiple times.
	Unsubscribe()
}

// Store is the authoritative shared record store. All mutations that target a
// sub-element of a group's debtee collection are atomic per entry: no
// operation ever rewrites the whole collection, so concurrent edits to
// different debtees both survive.
//
// This abstraction allows swapping backends (embedded SQLite, the remote RPC
// store) without changing the components built on top.
type Store interface {
	// Create persists a new group and fills in its store-assigned ID and
	// CreatedAt.
	Create(ctx context.Context, group *models.DebtGroup) error

	// Get retrieves one group with its full debtee collection. Returns
	// ErrNotFound if the group does not exist.
	Get(ctx context.Context, groupID string) (*models.DebtGroup, error)

	// Delete removes a group by ID. Deleting an already-deleted ID is a
	// no-op success.
	Delete(ctx context.Context, groupID string) error

	// AppendDebtee atomically inserts one debtee into the group's
	// collection. Returns ErrNotFound if the group does not exist and
	// ErrDuplicateDebtee if the debtee ID is already taken.
	AppendDebtee(ctx context.Context, groupID string, debtee models.Debtee) error

	// PatchDebtee atomically updates a single debtee keyed by ID. Returns
	// ErrNotFound if the group or debtee does not exist.
	PatchDebtee(ctx context.Context, groupID, debteeID string, patch DebteePatch) error

	// SubscribeAll opens a live subscription over the full group
	// collection. Delivered snapshot versions are strictly increasing per
	// subscription.
	SubscribeAll(ctx context.Context) (Subscription, error)

	// Close releases any resources held by the store.
	Close() error
}
