package coordinator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/duesync/duesync/internal/models"
	"github.com/duesync/duesync/internal/store"
)

// fakeStore records calls and returns scripted results. It implements just
// enough of store.Store for coordinator tests.
type fakeStore struct {
	createCalls int
	deleteCalls int
	appendCalls int
	getCalls    int
	patchCalls  int

	group     *models.DebtGroup
	appended  []models.Debtee
	patches   []store.DebteePatch
	patchErrs []error // consumed per call; nil entry means success
}

func (f *fakeStore) Create(ctx context.Context, group *models.DebtGroup) error {
	f.createCalls++
	group.ID = "group-1"
	group.CreatedAt = 1700000000
	return nil
}

func (f *fakeStore) Get(ctx context.Context, groupID string) (*models.DebtGroup, error) {
	f.getCalls++
	if f.group == nil || f.group.ID != groupID {
		return nil, fmt.Errorf("%w: group %s", store.ErrNotFound, groupID)
	}
	g := f.group.Clone()
	return &g, nil
}

func (f *fakeStore) Delete(ctx context.Context, groupID string) error {
	f.deleteCalls++
	return nil
}

func (f *fakeStore) AppendDebtee(ctx context.Context, groupID string, debtee models.Debtee) error {
	f.appendCalls++
	f.appended = append(f.appended, debtee)
	return nil
}

func (f *fakeStore) PatchDebtee(ctx context.Context, groupID, debteeID string, patch store.DebteePatch) error {
	f.patchCalls++
	f.patches = append(f.patches, patch)
	if len(f.patchErrs) > 0 {
		err := f.patchErrs[0]
		f.patchErrs = f.patchErrs[1:]
		return err
	}
	if f.group != nil {
		for i := range f.group.Debtees {
			if f.group.Debtees[i].ID == debteeID && patch.Paid != nil {
				f.group.Debtees[i].Paid = *patch.Paid
			}
		}
	}
	return nil
}

func (f *fakeStore) SubscribeAll(ctx context.Context) (store.Subscription, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) Close() error { return nil }

func TestCreateGroup(t *testing.T) {
	fs := &fakeStore{}
	c := New(fs, "client-1")

	id, err := c.CreateGroup(context.Background(), "  Trip  ")
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if id != "group-1" {
		t.Errorf("Expected store-assigned ID, got %q", id)
	}
	if fs.createCalls != 1 {
		t.Errorf("Expected 1 store create, got %d", fs.createCalls)
	}
}

func TestCreateGroup_Validation(t *testing.T) {
	for _, name := range []string{"", "   "} {
		t.Run(fmt.Sprintf("name=%q", name), func(t *testing.T) {
			fs := &fakeStore{}
			c := New(fs, "client-1")

			_, err := c.CreateGroup(context.Background(), name)

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if fs.createCalls != 0 {
				t.Errorf("Validation failure must produce no store write, got %d", fs.createCalls)
			}
		})
	}
}

func TestAddDebtee(t *testing.T) {
	fs := &fakeStore{}
	c := New(fs, "client-1")

	id1, err := c.AddDebtee(context.Background(), "group-1", "Alice")
	if err != nil {
		t.Fatalf("AddDebtee failed: %v", err)
	}
	id2, err := c.AddDebtee(context.Background(), "group-1", "Bob")
	if err != nil {
		t.Fatalf("AddDebtee failed: %v", err)
	}

	if id1 == "" || id2 == "" {
		t.Error("Expected generated debtee IDs")
	}
	if id1 == id2 {
		t.Error("Debtee IDs must be unique")
	}
	if len(fs.appended) != 2 {
		t.Fatalf("Expected 2 appends, got %d", len(fs.appended))
	}
	for _, d := range fs.appended {
		if d.AddedBy != "client-1" {
			t.Errorf("Expected AddedBy stamped with identity, got %q", d.AddedBy)
		}
		if d.Paid {
			t.Error("New debtee must default to unpaid")
		}
	}
}

func TestAddDebtee_Validation(t *testing.T) {
	fs := &fakeStore{}
	c := New(fs, "client-1")

	_, err := c.AddDebtee(context.Background(), "group-1", "   ")

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if fs.appendCalls != 0 {
		t.Errorf("Validation failure must produce no store write, got %d", fs.appendCalls)
	}
}

func TestDeleteGroup(t *testing.T) {
	fs := &fakeStore{}
	c := New(fs, "client-1")

	if err := c.DeleteGroup(context.Background(), "group-1"); err != nil {
		t.Fatalf("DeleteGroup failed: %v", err)
	}
	if fs.deleteCalls != 1 {
		t.Errorf("Expected 1 store delete, got %d", fs.deleteCalls)
	}
}

func TestTogglePaid(t *testing.T) {
	fs := &fakeStore{
		group: &models.DebtGroup{
			ID:      "group-1",
			Name:    "Trip",
			Debtees: []models.Debtee{{ID: "d1", Name: "Alice", Paid: false}},
		},
	}
	c := New(fs, "client-1")

	if err := c.TogglePaid(context.Background(), "group-1", "d1"); err != nil {
		t.Fatalf("TogglePaid failed: %v", err)
	}

	if len(fs.patches) != 1 || fs.patches[0].Paid == nil || !*fs.patches[0].Paid {
		t.Fatalf("Expected a single patch setting paid=true, got %+v", fs.patches)
	}

	// Flip back.
	if err := c.TogglePaid(context.Background(), "group-1", "d1"); err != nil {
		t.Fatalf("TogglePaid failed: %v", err)
	}
	if last := fs.patches[len(fs.patches)-1]; last.Paid == nil || *last.Paid {
		t.Fatalf("Expected second toggle to set paid=false, got %+v", last)
	}
}

func TestTogglePaid_MissingDebtee(t *testing.T) {
	fs := &fakeStore{
		group: &models.DebtGroup{ID: "group-1", Name: "Trip"},
	}
	c := New(fs, "client-1")

	err := c.TogglePaid(context.Background(), "group-1", "ghost")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}

	// The re-read happened exactly once before surfacing.
	if fs.getCalls != 2 {
		t.Errorf("Expected 2 reads (initial + single retry), got %d", fs.getCalls)
	}
}

func TestTogglePaid_RetrySucceeds(t *testing.T) {
	fs := &fakeStore{
		group: &models.DebtGroup{
			ID:      "group-1",
			Name:    "Trip",
			Debtees: []models.Debtee{{ID: "d1", Name: "Alice"}},
		},
		patchErrs: []error{store.ErrNotFound, nil},
	}
	c := New(fs, "client-1")

	if err := c.TogglePaid(context.Background(), "group-1", "d1"); err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if fs.patchCalls != 2 {
		t.Errorf("Expected 2 patch attempts, got %d", fs.patchCalls)
	}
}

func TestTogglePaid_SurfacesAfterSingleRetry(t *testing.T) {
	fs := &fakeStore{
		group: &models.DebtGroup{
			ID:      "group-1",
			Name:    "Trip",
			Debtees: []models.Debtee{{ID: "d1", Name: "Alice"}},
		},
		patchErrs: []error{store.ErrNotFound, store.ErrNotFound, store.ErrNotFound},
	}
	c := New(fs, "client-1")

	err := c.TogglePaid(context.Background(), "group-1", "d1")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound to surface, got %v", err)
	}
	if fs.patchCalls != 2 {
		t.Errorf("Expected exactly 2 patch attempts (no silent retry loop), got %d", fs.patchCalls)
	}
}
