package signer

import (
	"context"
	"sync"

	"fiatjaf.com/nostr"

	gtnostr "github.com/tenex-go/tenexcore/internal/nostr"
)

// Serialized wraps a nostr.Signer so that concurrent Sign calls queue on
// a single mutex rather than racing (spec 5: "Signer exposes sign() via
// a mutex; concurrent callers serialize").
type Serialized struct {
	mu    sync.Mutex
	inner gtnostr.Signer
}

// Wrap returns a Signer that serializes access to inner.
func Wrap(inner gtnostr.Signer) *Serialized {
	return &Serialized{inner: inner}
}

func (s *Serialized) Sign(ctx context.Context, event *nostr.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Sign(ctx, event)
}

func (s *Serialized) GetPublicKey() string {
	return s.inner.GetPublicKey()
}

func (s *Serialized) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Close()
}
