package nostr

import (
	"context"
	"encoding/hex"
	"fmt"

	"fiatjaf.com/nostr"
)

// Signer signs Nostr events. CoreRuntime holds exactly one; spec §4.5
// only ever backs it with a local key-bundle, so LocalSigner is the
// sole implementation, but the interface stays small enough that a
// different backend could satisfy it without touching callers.
type Signer interface {
	// Sign computes the event ID, sets the pubkey, and signs the event.
	Sign(ctx context.Context, event *nostr.Event) error

	// GetPublicKey returns the signer's public key as a hex string.
	GetPublicKey() string

	// Close releases any resources held by the signer.
	Close() error
}

// LocalSigner signs events with a local private key held in memory,
// the only signing backend spec §4.5 describes: "owns a secret key;
// produces signed events". internal/signer.Store is what decrypts and
// hands one of these to CoreRuntime after a passphrase unlock.
type LocalSigner struct {
	privkey   string          // hex-encoded private key
	secretKey nostr.SecretKey // decoded secret key for signing
	pubkey    string          // hex-encoded public key
}

// NewLocalSigner creates a signer from a hex-encoded private key.
func NewLocalSigner(privkeyHex string) (*LocalSigner, error) {
	var sk nostr.SecretKey
	b, decErr := hex.DecodeString(privkeyHex)
	if decErr != nil || len(b) != len(sk) {
		return nil, fmt.Errorf("invalid private key hex: %v", decErr)
	}
	copy(sk[:], b)

	pubkeyResult, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, fmt.Errorf("deriving public key: %w", err)
	}
	pubkey := fmt.Sprintf("%x", pubkeyResult)
	return &LocalSigner{
		privkey:   privkeyHex,
		secretKey: sk,
		pubkey:    pubkey,
	}, nil
}

// Sign signs an event with the local private key.
func (s *LocalSigner) Sign(_ context.Context, event *nostr.Event) error {
	event.PubKey = PubKeyFromHex(s.pubkey)
	return event.Sign(s.secretKey)
}

// GetPublicKey returns the signer's public key.
func (s *LocalSigner) GetPublicKey() string {
	return s.pubkey
}

// Close is a no-op for local signers; there is no connection to tear down.
func (s *LocalSigner) Close() error {
	return nil
}
