package signer

import (
	"strings"
	"testing"
)

func TestGenerateAndLoad(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	if store.HasBundle() {
		t.Fatalf("fresh store should not have a bundle")
	}

	signer, err := store.Generate("correct horse battery staple")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	pubkey := signer.GetPublicKey()
	if pubkey == "" {
		t.Fatalf("expected non-empty public key")
	}

	if !store.HasBundle() {
		t.Fatalf("expected bundle to exist after Generate")
	}

	loaded := NewStore(dir)
	reloaded, err := loaded.Load("correct horse battery staple")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if reloaded.GetPublicKey() != pubkey {
		t.Errorf("reloaded pubkey %s != original %s", reloaded.GetPublicKey(), pubkey)
	}
}

func TestLoadWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	if _, err := store.Generate("correct passphrase"); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	other := NewStore(dir)
	if _, err := other.Load("wrong passphrase"); err == nil {
		t.Fatalf("expected error loading with wrong passphrase")
	}
}

func TestLoadMissingBundle(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	if _, err := store.Load("anything"); err == nil {
		t.Fatalf("expected error loading a bundle that was never persisted")
	}
}

func TestImportPersistsGivenKey(t *testing.T) {
	dir := t.TempDir()
	a := NewStore(dir)

	privkeyHex := strings.Repeat("01", 32)
	signer, err := a.Import(privkeyHex, "pw")
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	b := NewStore(dir)
	reloaded, err := b.Load("pw")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if reloaded.GetPublicKey() != signer.GetPublicKey() {
		t.Errorf("imported key's pubkey did not round-trip")
	}
}
