package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/duesync/duesync/internal/identity"
)

type fakeProvider struct {
	calls   atomic.Int32
	gate    chan struct{} // when set, ResumeOrCreate blocks until closed
	failErr error
}

func (p *fakeProvider) ResumeOrCreate(ctx context.Context) (identity.Credential, error) {
	p.calls.Add(1)
	if p.gate != nil {
		<-p.gate
	}
	if p.failErr != nil {
		return identity.Credential{}, p.failErr
	}
	return identity.Credential{ID: "client-1", Token: "token-1"}, nil
}

func TestEnsureIdentity(t *testing.T) {
	p := &fakeProvider{}
	m := NewManager(p)

	if m.State() != StateUnauthenticated {
		t.Errorf("Expected initial state unauthenticated, got %v", m.State())
	}

	cred, err := m.EnsureIdentity(context.Background())
	if err != nil {
		t.Fatalf("EnsureIdentity failed: %v", err)
	}
	if cred.ID != "client-1" {
		t.Errorf("Expected identity client-1, got %q", cred.ID)
	}
	if m.State() != StateReady {
		t.Errorf("Expected state ready, got %v", m.State())
	}

	// Ready is terminal: later calls return the held credential.
	if _, err := m.EnsureIdentity(context.Background()); err != nil {
		t.Fatalf("Second EnsureIdentity failed: %v", err)
	}
	if n := p.calls.Load(); n != 1 {
		t.Errorf("Expected exactly 1 provisioning attempt, got %d", n)
	}
}

func TestEnsureIdentity_ConcurrentCallersCoalesce(t *testing.T) {
	p := &fakeProvider{gate: make(chan struct{})}
	m := NewManager(p)

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)
	creds := make([]identity.Credential, callers)
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			creds[i], errs[i] = m.EnsureIdentity(context.Background())
		}()
	}

	// Let one caller reach the provider, then release it.
	waitForState(t, m, StateAuthenticating)
	close(p.gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("Caller %d failed: %v", i, errs[i])
		}
		if creds[i].ID != "client-1" {
			t.Errorf("Caller %d got identity %q", i, creds[i].ID)
		}
	}
	if n := p.calls.Load(); n != 1 {
		t.Errorf("Expected callers to coalesce on 1 provisioning attempt, got %d", n)
	}
}

func TestEnsureIdentity_FailureIsSticky(t *testing.T) {
	provisionErr := fmt.Errorf("%w: provider offline", identity.ErrProvisioning)
	p := &fakeProvider{failErr: provisionErr}
	m := NewManager(p)

	_, err := m.EnsureIdentity(context.Background())
	if !errors.Is(err, identity.ErrProvisioning) {
		t.Fatalf("Expected provisioning error, got %v", err)
	}

	// No automatic retry: the session stays unusable.
	_, err = m.EnsureIdentity(context.Background())
	if !errors.Is(err, identity.ErrProvisioning) {
		t.Fatalf("Expected sticky provisioning error, got %v", err)
	}
	if n := p.calls.Load(); n != 1 {
		t.Errorf("Expected no retry after failure, got %d attempts", n)
	}
}

func waitForState(t *testing.T, m *Manager, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Manager never reached state %v", want)
}
