// Package session holds the client's identity for the lifetime of the
// session and gates every other component until it is ready.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/duesync/duesync/internal/identity"
)

// State is the session manager's provisioning state.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Manager obtains and holds the client identity. Ready is terminal for the
// session's lifetime; a provisioning failure is sticky and leaves the session
// unusable (callers surface it as an initialization error, no automatic
// retry).
type Manager struct {
	provider identity.Provider

	mu    sync.Mutex
	state State
	cred  identity.Credential
	err   error
	done  chan struct{}
}

// NewManager creates a session manager backed by the given provider.
func NewManager(provider identity.Provider) *Manager {
	return &Manager{provider: provider}
}

// State reports the current provisioning state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// EnsureIdentity returns the session identity, provisioning it on first call.
// Concurrent callers coalesce on one provisioning attempt; later callers get
// the held credential without touching the provider again.
func (m *Manager) EnsureIdentity(ctx context.Context) (identity.Credential, error) {
	m.mu.Lock()
	switch m.state {
	case StateReady:
		cred := m.cred
		m.mu.Unlock()
		return cred, nil
	case StateAuthenticating:
		done := m.done
		m.mu.Unlock()
		select {
		case <-done:
			return m.result()
		case <-ctx.Done():
			return identity.Credential{}, ctx.Err()
		}
	}

	if m.err != nil {
		// A previous attempt failed; fatal for this session.
		err := m.err
		m.mu.Unlock()
		return identity.Credential{}, err
	}

	m.state = StateAuthenticating
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	cred, err := m.provider.ResumeOrCreate(ctx)

	m.mu.Lock()
	if err != nil {
		m.state = StateUnauthenticated
		m.err = err
	} else {
		m.state = StateReady
		m.cred = cred
	}
	m.mu.Unlock()
	close(done)

	return m.result()
}

func (m *Manager) result() (identity.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return identity.Credential{}, m.err
	}
	return m.cred, nil
}
