// Package identity provisions the stable per-client identity that gates every
// other component.
package identity

import (
	"context"
	"errors"
)

// ErrProvisioning indicates identity provisioning failed. This is fatal for
// the session: the caller surfaces it as an initialization error and does not
// retry automatically.
var ErrProvisioning = errors.New("identity provisioning failed")

// Credential is a provisioned identity together with its signed bearer form.
type Credential struct {
	// ID is the stable opaque identity string, valid for the session.
	ID string

	// Token is the signed bearer representation of the same identity,
	// attached to store calls for identity stamping.
	Token string
}

// Provider defines the interface for identity provisioning implementations.
// This abstraction allows swapping provisioning mechanisms (local signed
// credential, external auth service, etc.) without changing the session
// manager.
type Provider interface {
	// ResumeOrCreate returns the client's identity. If a resumable
	// credential exists it is resumed; otherwise a fresh anonymous
	// identity is provisioned. Failures wrap ErrProvisioning.
	ResumeOrCreate(ctx context.Context) (Credential, error)
}
