// Package client assembles the per-process core: the session identity gates
// the feed subscriber and the mutation coordinator, live snapshots stream
// into the local view state, and every mutation round-trips through the
// store's change feed. No locally held state is ever trusted beyond the next
// delivered snapshot.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/duesync/duesync/internal/coordinator"
	"github.com/duesync/duesync/internal/feed"
	"github.com/duesync/duesync/internal/identity"
	"github.com/duesync/duesync/internal/models"
	"github.com/duesync/duesync/internal/session"
	"github.com/duesync/duesync/internal/store"
	"github.com/duesync/duesync/internal/view"
)

// ErrNotStarted is returned when an operation is attempted before Start has
// provisioned the session identity.
var ErrNotStarted = errors.New("client not started")

// Client is one participant session over a shared store.
type Client struct {
	session *session.Manager
	store   store.Store

	mu        sync.Mutex
	coord     *coordinator.Coordinator
	snapshot  models.Snapshot
	selection view.Selection
	stale     bool
	stop      func()
}

// New creates a client over the given store. The provider supplies the
// session identity on Start.
func New(provider identity.Provider, st store.Store) *Client {
	return &Client{
		session: session.NewManager(provider),
		store:   st,
	}
}

// Start provisions the session identity and opens the live feed. An identity
// failure aborts startup entirely; it is fatal for the session.
func (c *Client) Start(ctx context.Context) error {
	cred, err := c.session.EnsureIdentity(ctx)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}

	stop, err := feed.New(c.store).Subscribe(ctx, c.applySnapshot, c.feedFailed)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.coord = coordinator.New(c.store, cred.ID)
	c.stop = stop
	c.mu.Unlock()

	slog.Info("Session ready", "identity", cred.ID)
	return nil
}

// Close stops the live feed. In-flight mutations resolve or fail on their
// own.
func (c *Client) Close() {
	c.mu.Lock()
	stop := c.stop
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (c *Client) applySnapshot(snap models.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = snap
	c.stale = false
	if c.selection.Apply(snap) {
		slog.Info("Selection cleared, group disappeared from snapshot")
	}
}

func (c *Client) feedFailed(err error) {
	c.mu.Lock()
	c.stale = true
	c.mu.Unlock()
	slog.Warn("Live feed failed, local data is stale", "error", err)
}

// Snapshot returns the latest delivered snapshot.
func (c *Client) Snapshot() models.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Stale reports whether the feed has failed since the last delivery.
func (c *Client) Stale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stale
}

// Select focuses a group. Returns false if the group is not present in the
// latest snapshot.
func (c *Client) Select(groupID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.snapshot.Group(groupID); !ok {
		return false
	}
	c.selection.Select(groupID)
	return true
}

// CurrentGroup resolves the selection against the latest snapshot, with
// debtees ordered for display (unpaid first, insertion order within each
// partition).
func (c *Client) CurrentGroup() (models.DebtGroup, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := view.CurrentGroup(c.snapshot, c.selection.GroupID())
	if !ok {
		return models.DebtGroup{}, false
	}
	g.Debtees = view.SortDebtees(g.Debtees)
	return g, true
}

func (c *Client) ready() (*coordinator.Coordinator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.coord == nil {
		return nil, ErrNotStarted
	}
	return c.coord, nil
}

// CreateGroup creates a new empty group owned by this session's identity.
func (c *Client) CreateGroup(ctx context.Context, name string) (string, error) {
	coord, err := c.ready()
	if err != nil {
		return "", err
	}
	return coord.CreateGroup(ctx, name)
}

// DeleteGroup removes a group. The caller must already have confirmed the
// deletion with the user.
func (c *Client) DeleteGroup(ctx context.Context, groupID string) error {
	coord, err := c.ready()
	if err != nil {
		return err
	}
	return coord.DeleteGroup(ctx, groupID)
}

// AddDebtee appends a debtee to a group and returns its generated ID.
func (c *Client) AddDebtee(ctx context.Context, groupID, name string) (string, error) {
	coord, err := c.ready()
	if err != nil {
		return "", err
	}
	return coord.AddDebtee(ctx, groupID, name)
}

// TogglePaid flips one debtee's paid flag.
func (c *Client) TogglePaid(ctx context.Context, groupID, debteeID string) error {
	coord, err := c.ready()
	if err != nil {
		return err
	}
	return coord.TogglePaid(ctx, groupID, debteeID)
}
