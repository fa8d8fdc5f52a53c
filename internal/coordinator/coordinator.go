// Package coordinator translates user actions into conflict-safe patches
// against the shared record store.
//
// The group record is the only shared mutable resource and no client ever
// holds a lock on it. Correctness rests on the store's per-entry primitives:
// adds are atomic single-element appends and toggles are atomic per-debtee
// patches, so concurrent edits to different debtees in the same group both
// survive. A read-current-collection-then-write-it-back sequence never
// happens here — that pattern has a lost-update window between the local
// read and the write.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/duesync/duesync/internal/metrics"
	"github.com/duesync/duesync/internal/models"
	"github.com/duesync/duesync/internal/store"
)

// ValidationError rejects invalid input before any store call is made.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// Coordinator issues mutations on behalf of one identified client. All
// operations fail independently and none of them blocks the live feed; the
// result of every mutation is observed through the next snapshot, not through
// any locally held state.
type Coordinator struct {
	store    store.Store
	identity string
}

// New creates a Coordinator for the given identity. The identity must come
// from a ready session manager; it stamps CreatorID and AddedBy on every
// record this client writes.
func New(st store.Store, identity string) *Coordinator {
	return &Coordinator{store: st, identity: identity}
}

// CreateGroup creates a new empty group and returns its store-assigned ID.
// There is no conflict risk: no concurrent writer can target a
// not-yet-existing ID.
func (c *Coordinator) CreateGroup(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		metrics.MutationsTotal.WithLabelValues("create_group", "validation_error").Inc()
		return "", &ValidationError{Reason: "group name must not be empty"}
	}

	group := &models.DebtGroup{
		Name:      name,
		CreatorID: c.identity,
	}
	if err := c.store.Create(ctx, group); err != nil {
		metrics.MutationsTotal.WithLabelValues("create_group", "store_error").Inc()
		slog.Error("CreateGroup failed", "name", name, "error", err)
		return "", fmt.Errorf("failed to create group: %w", err)
	}

	metrics.MutationsTotal.WithLabelValues("create_group", "ok").Inc()
	slog.Info("Group created", "group_id", group.ID, "name", name)
	return group.ID, nil
}

// DeleteGroup removes a group. The caller must already have confirmed the
// deletion with the user. Deleting an already-deleted ID is a no-op success:
// the next snapshot is the real source of truth.
func (c *Coordinator) DeleteGroup(ctx context.Context, groupID string) error {
	if err := c.store.Delete(ctx, groupID); err != nil {
		metrics.MutationsTotal.WithLabelValues("delete_group", "store_error").Inc()
		slog.Error("DeleteGroup failed", "group_id", groupID, "error", err)
		return fmt.Errorf("failed to delete group: %w", err)
	}

	metrics.MutationsTotal.WithLabelValues("delete_group", "ok").Inc()
	slog.Info("Group deleted", "group_id", groupID)
	return nil
}

// AddDebtee appends one debtee to the group's collection as an atomic
// insert-only patch keyed by the group ID. Concurrent additions and toggles
// by other clients are never clobbered. Returns the generated debtee ID.
func (c *Coordinator) AddDebtee(ctx context.Context, groupID, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		metrics.MutationsTotal.WithLabelValues("add_debtee", "validation_error").Inc()
		return "", &ValidationError{Reason: "debtee name must not be empty"}
	}

	debtee := models.Debtee{
		ID:        ulid.Make().String(),
		Name:      name,
		AddedBy:   c.identity,
		Timestamp: time.Now().Unix(),
	}
	if err := c.store.AppendDebtee(ctx, groupID, debtee); err != nil {
		outcome := "store_error"
		switch {
		case errors.Is(err, store.ErrNotFound):
			outcome = "not_found"
		case errors.Is(err, store.ErrDuplicateDebtee):
			outcome = "duplicate"
		}
		metrics.MutationsTotal.WithLabelValues("add_debtee", outcome).Inc()
		slog.Error("AddDebtee failed", "group_id", groupID, "name", name, "error", err)
		return "", fmt.Errorf("failed to add debtee: %w", err)
	}

	metrics.MutationsTotal.WithLabelValues("add_debtee", "ok").Inc()
	slog.Info("Debtee added", "group_id", groupID, "debtee_id", debtee.ID, "name", name)
	return debtee.ID, nil
}

// TogglePaid flips one debtee's paid flag as an atomic per-entry patch keyed
// by the debtee ID. The rest of the collection is untouched, so a concurrent
// add or toggle of another debtee is never overwritten.
//
// If the record vanished under the write, the latest state is re-read and the
// toggle retried exactly once before the failure surfaces.
func (c *Coordinator) TogglePaid(ctx context.Context, groupID, debteeID string) error {
	err := c.toggleOnce(ctx, groupID, debteeID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("TogglePaid target vanished, retrying once", "group_id", groupID, "debtee_id", debteeID)
		err = c.toggleOnce(ctx, groupID, debteeID)
	}
	if err != nil {
		outcome := "store_error"
		if errors.Is(err, store.ErrNotFound) {
			outcome = "not_found"
		}
		metrics.MutationsTotal.WithLabelValues("toggle_paid", outcome).Inc()
		slog.Error("TogglePaid failed", "group_id", groupID, "debtee_id", debteeID, "error", err)
		return fmt.Errorf("failed to toggle debtee: %w", err)
	}

	metrics.MutationsTotal.WithLabelValues("toggle_paid", "ok").Inc()
	slog.Info("Debtee toggled", "group_id", groupID, "debtee_id", debteeID)
	return nil
}

// toggleOnce reads the latest persisted flag and patches its inverse. The
// read targets the store, not any locally cached snapshot, so the flip is
// always based on fresh state.
func (c *Coordinator) toggleOnce(ctx context.Context, groupID, debteeID string) error {
	group, err := c.store.Get(ctx, groupID)
	if err != nil {
		return err
	}
	debtee, ok := group.Debtee(debteeID)
	if !ok {
		return fmt.Errorf("%w: debtee %s in group %s", store.ErrNotFound, debteeID, groupID)
	}

	paid := !debtee.Paid
	return c.store.PatchDebtee(ctx, groupID, debteeID, store.DebteePatch{Paid: &paid})
}
