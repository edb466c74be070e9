// Package classifier defines the session contract every text-classification
// backend implements. A session is opened once with a fixed system prompt
// and then receives a single JSON payload.
package classifier

import (
	"context"
	"errors"
)

// ErrConfiguration is returned when a backend cannot be constructed because a
// required credential or setting is absent.
var ErrConfiguration = errors.New("classifier not configured")

// Session is a conversation with a backend seeded with a system prompt.
type Session interface {
	Send(ctx context.Context, payload string) (string, error)
}

// Provider opens sessions against one backend.
type Provider interface {
	Name() string
	Open(ctx context.Context, system string) (Session, error)
}

// SessionFunc adapts a function into a Session.
type SessionFunc func(ctx context.Context, payload string) (string, error)

func (f SessionFunc) Send(ctx context.Context, payload string) (string, error) {
	return f(ctx, payload)
}

// ProviderFunc adapts a function into a Provider. Useful for tests and for
// wiring stub backends.
type ProviderFunc func(ctx context.Context, system string) (Session, error)

func (f ProviderFunc) Name() string { return "func" }

func (f ProviderFunc) Open(ctx context.Context, system string) (Session, error) {
	return f(ctx, system)
}
