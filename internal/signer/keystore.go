// Package signer owns the local secret key lifecycle: encrypted
// key-bundle persistence (NIP-49: scrypt + chacha20-poly1305) and
// passphrase-gated loading. Event signing itself is delegated to the
// nostr.Signer interface (internal/nostr), implemented by LocalSigner
// and wrapped here by Serialized.
package signer

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	gtnostr "github.com/tenex-go/tenexcore/internal/nostr"
)

// KeyBundleFileName is the on-disk name of the encrypted key blob.
const KeyBundleFileName = "keys.enc.json"

// scrypt cost parameters per NIP-49's recommended default (log_n=16).
const (
	scryptLogN = 16
	scryptR    = 8
	scryptP    = 1
	saltLen    = 16
)

// KeyBundle is the persisted, passphrase-encrypted secret key envelope.
type KeyBundle struct {
	Identifier string `json:"identifier"` // pubkey hex, so CredentialStore can prompt
	Salt       string `json:"salt"`       // base64
	Nonce      string `json:"nonce"`      // base64
	Ciphertext string `json:"ciphertext"` // base64
	LogN       uint8  `json:"log_n"`
	R          uint32 `json:"r"`
	P          uint32 `json:"p"`
}

// Store manages the encrypted key-bundle file and produces a
// mutex-serialized nostr.Signer once unlocked. Signing is CPU-bound
// (secp256k1) and rate-limited by a single exclusive lock per spec 4.5.
type Store struct {
	path string

	mu     sync.Mutex
	signer gtnostr.Signer
}

// NewStore creates a key-bundle store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{path: filepath.Join(baseDir, KeyBundleFileName)}
}

// Generate creates a fresh secret key, persists it under passphrase, and
// returns the resulting signer.
func (s *Store) Generate(passphrase string) (gtnostr.Signer, error) {
	privkeyHex := generatePrivateKeyHex()
	if err := s.persist(privkeyHex, passphrase); err != nil {
		return nil, err
	}
	return s.unlockWith(privkeyHex)
}

// Import persists an externally supplied secret key (e.g. from a
// bech32-decoded nsec, spec 4.7 Login command) under passphrase.
func (s *Store) Import(privkeyHex, passphrase string) (gtnostr.Signer, error) {
	if err := s.persist(privkeyHex, passphrase); err != nil {
		return nil, err
	}
	return s.unlockWith(privkeyHex)
}

// Load decrypts the persisted key-bundle under passphrase and returns a
// signer. Returns os.ErrNotExist if no bundle has been persisted yet.
func (s *Store) Load(passphrase string) (gtnostr.Signer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	var bundle KeyBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("corrupt key bundle: %w", err)
	}

	privkeyHex, err := decryptBundle(bundle, passphrase)
	if err != nil {
		return nil, fmt.Errorf("invalid passphrase: %w", err)
	}

	local, err := gtnostr.NewLocalSigner(privkeyHex)
	if err != nil {
		return nil, err
	}
	wrapped := Wrap(local)
	s.signer = wrapped
	return wrapped, nil
}

// unlockWith wraps an already-known private key into a signer without
// re-reading the bundle from disk.
func (s *Store) unlockWith(privkeyHex string) (gtnostr.Signer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	local, err := gtnostr.NewLocalSigner(privkeyHex)
	if err != nil {
		return nil, err
	}
	wrapped := Wrap(local)
	s.signer = wrapped
	return wrapped, nil
}

// HasBundle reports whether a key-bundle file exists.
func (s *Store) HasBundle() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

func (s *Store) persist(privkeyHex, passphrase string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}

	signer, err := gtnostr.NewLocalSigner(privkeyHex)
	if err != nil {
		return err
	}

	bundle, err := encryptBundle(privkeyHex, signer.GetPublicKey(), passphrase)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0o600)
}

func encryptBundle(privkeyHex, pubkeyHex, passphrase string) (KeyBundle, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return KeyBundle{}, err
	}

	key, err := scrypt.Key([]byte(passphrase), salt, 1<<scryptLogN, scryptR, scryptP, chacha20poly1305.KeySize)
	if err != nil {
		return KeyBundle{}, fmt.Errorf("deriving key: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return KeyBundle{}, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return KeyBundle{}, err
	}

	plain, err := hex.DecodeString(privkeyHex)
	if err != nil {
		return KeyBundle{}, fmt.Errorf("invalid private key hex: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, plain, nil)

	return KeyBundle{
		Identifier: pubkeyHex,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		LogN:       scryptLogN,
		R:          scryptR,
		P:          scryptP,
	}, nil
}

func decryptBundle(bundle KeyBundle, passphrase string) (string, error) {
	salt, err := base64.StdEncoding.DecodeString(bundle.Salt)
	if err != nil {
		return "", err
	}
	nonce, err := base64.StdEncoding.DecodeString(bundle.Nonce)
	if err != nil {
		return "", err
	}
	ciphertext, err := base64.StdEncoding.DecodeString(bundle.Ciphertext)
	if err != nil {
		return "", err
	}

	key, err := scrypt.Key([]byte(passphrase), salt, 1<<bundle.LogN, int(bundle.R), int(bundle.P), chacha20poly1305.KeySize)
	if err != nil {
		return "", err
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", err
	}

	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed (wrong passphrase or corrupt bundle)")
	}

	return hex.EncodeToString(plain), nil
}

func generatePrivateKeyHex() string {
	var b [32]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
