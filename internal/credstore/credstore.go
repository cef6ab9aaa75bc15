// Package credstore persists the user's bech32 secret key (nsec)
// across restarts (spec 4.10). The OS keychain is the primary
// backend; an encrypted on-disk blob, built the same way
// `internal/signer`'s key-bundle persists a raw private key (NIP-49:
// scrypt + chacha20-poly1305), is the fallback when no keychain is
// reachable (headless hosts, missing D-Bus session, etc).
package credstore

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
	"golang.org/x/term"
)

const (
	keyringService = "tenexcore"
	keyringUser    = "nsec"

	blobFileName = "credential.enc.json"

	scryptLogN = 16
	scryptR    = 8
	scryptP    = 1
	saltLen    = 16
)

// ErrNotFound is returned by Load when no credential is stored yet in
// either backend, spec 4.10's "item_not_found".
var ErrNotFound = errors.New("credstore: no credential stored")

// Store is the CredentialStore. It always tries the OS keychain
// first and only falls back to the encrypted blob when the keychain
// backend itself is unavailable (not merely empty).
type Store struct {
	blobPath string
}

// New creates a Store whose fallback blob lives under baseDir.
func New(baseDir string) *Store {
	return &Store{blobPath: filepath.Join(baseDir, blobFileName)}
}

// Load implements load_nsec(): returns the stored bech32 secret key,
// or ErrNotFound if nothing is stored in either backend.
func (s *Store) Load() (string, error) {
	nsec, err := keyring.Get(keyringService, keyringUser)
	switch {
	case err == nil:
		return nsec, nil
	case errors.Is(err, keyring.ErrNotFound):
		return s.loadBlob()
	default:
		// Keychain backend itself errored (not just empty): fall
		// back to the encrypted blob rather than surfacing a
		// backend-plumbing error to the auto-login sequence.
		return s.loadBlob()
	}
}

// Save implements save_nsec(): tries the keychain first, and only
// writes the encrypted fallback blob if the keychain set fails.
func (s *Store) Save(nsec, passphrase string) error {
	if err := keyring.Set(keyringService, keyringUser, nsec); err == nil {
		return nil
	}
	if passphrase == "" {
		// No keychain and no passphrase to encrypt a fallback blob
		// with: spec 4.7's Login leaves CredentialStore untouched in
		// this case ("CredentialStore updated if passphrase").
		return nil
	}
	return s.saveBlob(nsec, passphrase)
}

// Delete implements delete_nsec(): clears both backends. Absence in
// either backend is not an error.
func (s *Store) Delete() error {
	if err := keyring.Delete(keyringService, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("credstore: delete from keychain: %w", err)
	}
	if err := os.Remove(s.blobPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("credstore: delete blob: %w", err)
	}
	return nil
}

type blob struct {
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
	LogN       uint8  `json:"log_n"`
	R          uint32 `json:"r"`
	P          uint32 `json:"p"`
}

func (s *Store) loadBlob() (string, error) {
	data, err := os.ReadFile(s.blobPath)
	if os.IsNotExist(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("credstore: read blob: %w", err)
	}

	var b blob
	if err := json.Unmarshal(data, &b); err != nil {
		return "", fmt.Errorf("credstore: corrupt blob: %w", err)
	}

	return "", errBlobNeedsPassphrase{b}
}

// errBlobNeedsPassphrase carries the decoded blob out of loadBlob so
// LoadWithPassphrase can decrypt it without re-reading the file. Load
// alone can't decrypt: the keychain path never needs a passphrase, and
// the two backends share one method signature (spec 4.10's
// `load_nsec() -> result<string, ...>` takes no passphrase), so the
// fallback blob's passphrase is supplied by a second, explicit call.
type errBlobNeedsPassphrase struct{ b blob }

func (errBlobNeedsPassphrase) Error() string { return "credstore: blob present, passphrase required" }

// LoadWithPassphrase decrypts the fallback blob directly, for callers
// that already know a keychain miss occurred. CoreRuntime.AutoLogin
// calls Load first and, when Load reports NeedsPassphrase, stays logged
// out; CoreRuntime.AutoLoginWithPassphrase is the caller of this method.
func (s *Store) LoadWithPassphrase(passphrase string) (string, error) {
	data, err := os.ReadFile(s.blobPath)
	if os.IsNotExist(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("credstore: read blob: %w", err)
	}

	var b blob
	if err := json.Unmarshal(data, &b); err != nil {
		return "", fmt.Errorf("credstore: corrupt blob: %w", err)
	}

	return decryptBlob(b, passphrase)
}

// NeedsPassphrase reports whether err is the sentinel Load returns
// when an encrypted fallback blob exists and needs a passphrase.
func NeedsPassphrase(err error) bool {
	var needs errBlobNeedsPassphrase
	return errors.As(err, &needs)
}

// PromptPassphrase reads a passphrase from fd with terminal echo
// disabled, printing prompt to out first. Returns an error if fd isn't
// an interactive terminal (a CLI frontend should fall back to a
// --passphrase flag or env var in that case).
func PromptPassphrase(out io.Writer, fd int, prompt string) (string, error) {
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("credstore: fd %d is not a terminal", fd)
	}
	fmt.Fprint(out, prompt)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("credstore: read passphrase: %w", err)
	}
	return string(raw), nil
}

func (s *Store) saveBlob(nsec, passphrase string) error {
	if err := os.MkdirAll(filepath.Dir(s.blobPath), 0o755); err != nil {
		return fmt.Errorf("credstore: create dir: %w", err)
	}

	b, err := encryptBlob(nsec, passphrase)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("credstore: marshal blob: %w", err)
	}

	return os.WriteFile(s.blobPath, data, 0o600)
}

func encryptBlob(plaintext, passphrase string) (blob, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return blob{}, err
	}

	key, err := scrypt.Key([]byte(passphrase), salt, 1<<scryptLogN, scryptR, scryptP, chacha20poly1305.KeySize)
	if err != nil {
		return blob{}, fmt.Errorf("credstore: deriving key: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return blob{}, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return blob{}, err
	}

	ciphertext := aead.Seal(nil, nonce, []byte(plaintext), nil)

	return blob{
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		LogN:       scryptLogN,
		R:          scryptR,
		P:          scryptP,
	}, nil
}

func decryptBlob(b blob, passphrase string) (string, error) {
	salt, err := base64.StdEncoding.DecodeString(b.Salt)
	if err != nil {
		return "", err
	}
	nonce, err := base64.StdEncoding.DecodeString(b.Nonce)
	if err != nil {
		return "", err
	}
	ciphertext, err := base64.StdEncoding.DecodeString(b.Ciphertext)
	if err != nil {
		return "", err
	}

	key, err := scrypt.Key([]byte(passphrase), salt, 1<<b.LogN, int(b.R), int(b.P), chacha20poly1305.KeySize)
	if err != nil {
		return "", fmt.Errorf("credstore: deriving key: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", err
	}

	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("credstore: invalid passphrase: %w", err)
	}
	return string(plain), nil
}
