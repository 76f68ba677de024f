// Package external provides the anti-corruption layer between noticebox
// domain logic and third-party delivery providers. All outbound HTTP calls
// are routed through the BaseClient, which enforces consistent resilience
// patterns: circuit breaking, retries with exponential backoff, and error
// mapping.
package external

import (
	"context"

	"noticebox/internal/types"
)

// BackendOptions parameterizes a mail connection for one dispatch call.
type BackendOptions struct {
	// FailSilently is the resolved failure-tolerance flag for the call.
	// Backends may use it to soften connection-time failures; batch-send
	// suppression itself is owned by the email handler.
	FailSilently bool

	// Options carries backend-specific settings (e.g. a SES configuration
	// set name, a SendGrid sandbox flag).
	Options map[string]any
}

// MailConnection is an open transport session scoped to one dispatch call.
// SendBatch submits all messages of the call and returns how many the
// backend accepted. There is no atomicity promise across the batch: a
// partial send reports the accepted count alongside the error.
type MailConnection interface {
	SendBatch(ctx context.Context, messages []types.MailMessage) (sent int, err error)
}

// MailBackend creates connections for a specific transport provider.
type MailBackend interface {
	// Name returns the backend identifier ("ses", "sendgrid", "memory").
	Name() string

	// Open acquires a connection parameterized by the per-call options.
	Open(ctx context.Context, opts BackendOptions) (MailConnection, error)
}

// BackendSource resolves a backend identifier to a MailBackend.
// Implemented by BackendRegistry.
type BackendSource interface {
	Get(name string) (MailBackend, error)
}
