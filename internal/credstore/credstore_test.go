package credstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// These tests exercise the encrypted-blob fallback path. CI and most
// developer sandboxes have no OS keychain session available, so
// keyring.Set/Get fail and Store transparently falls through to the
// blob backend — the same path a headless deployment hits in
// production.

func TestSaveAndLoadRoundTripViaBlobFallback(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	const nsec = "nsec1exampleexampleexampleexampleexampleexampleexampleexamplex"
	if err := s.Save(nsec, "correct horse"); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, blobFileName)); err != nil {
		t.Skip("keychain backend available in this environment; blob fallback not exercised")
	}

	_, err := s.Load()
	if !NeedsPassphrase(err) {
		t.Fatalf("expected Load to report NeedsPassphrase, got %v", err)
	}

	got, err := s.LoadWithPassphrase("correct horse")
	if err != nil {
		t.Fatalf("LoadWithPassphrase: %v", err)
	}
	if got != nsec {
		t.Fatalf("got %q, want %q", got, nsec)
	}
}

func TestLoadWithPassphraseRejectsWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	if err := s.Save("nsec1abc", "rightpass"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, blobFileName)); err != nil {
		t.Skip("keychain backend available in this environment; blob fallback not exercised")
	}

	if _, err := s.LoadWithPassphrase("wrongpass"); err == nil {
		t.Fatal("expected an error decrypting with the wrong passphrase")
	}
}

func TestLoadReturnsNotFoundWhenNothingStored(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	_, err := s.Load()
	if !errors.Is(err, ErrNotFound) && !NeedsPassphrase(err) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestSaveWithNoPassphraseLeavesBlobUnwrittenWhenKeychainUnavailable(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	if err := s.Save("nsec1noblob", ""); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, blobFileName)); err == nil {
		t.Skip("keychain backend available in this environment; cannot assert blob absence")
	}

	_, err := s.Load()
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound (no passphrase means no fallback blob)", err)
	}
}

func TestDeleteClearsBlob(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	if err := s.Save("nsec1todelete", "pass"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, blobFileName)); err == nil {
		t.Fatal("expected blob file to be removed")
	}
}
