package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileFallsBackToDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPBindAddress != DefaultHTTPBindAddress {
		t.Fatalf("HTTPBindAddress = %q, want default", cfg.HTTPBindAddress)
	}
}

func TestLoadParsesRelaysAndBindAddress(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tenexcore.toml")
	doc := `
base_dir = "/var/lib/tenexcore"
http_bind_address = "127.0.0.1:4000"

[[relays]]
url = "wss://relay.example.com"
read = true
write = true

[[relays]]
url = "wss://relay2.example.com"
read = true
write = false
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseDir != "/var/lib/tenexcore" {
		t.Fatalf("BaseDir = %q", cfg.BaseDir)
	}
	if cfg.HTTPBindAddress != "127.0.0.1:4000" {
		t.Fatalf("HTTPBindAddress = %q", cfg.HTTPBindAddress)
	}
	if len(cfg.Relays) != 2 || cfg.Relays[0].URL != "wss://relay.example.com" || cfg.Relays[1].Write {
		t.Fatalf("Relays = %+v", cfg.Relays)
	}
}

func TestEnvOverridesWinOverDefault(t *testing.T) {
	t.Setenv(EnvPrefix+"_BASE_DIR", "/override/dir")
	t.Setenv(EnvPrefix+"_DEBUG", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseDir != "/override/dir" {
		t.Fatalf("BaseDir = %q, want env override", cfg.BaseDir)
	}
	if !cfg.Debug {
		t.Fatal("expected Debug=true from env override")
	}
}

func TestNsecReadsEnvVar(t *testing.T) {
	t.Setenv(EnvPrefix+"_NSEC", "nsec1example")
	v, ok := Nsec()
	if !ok || v != "nsec1example" {
		t.Fatalf("Nsec() = %q, %v", v, ok)
	}
}

func TestNsecAbsentWhenUnset(t *testing.T) {
	os.Unsetenv(EnvPrefix + "_NSEC")
	if _, ok := Nsec(); ok {
		t.Fatal("expected Nsec() to report absent")
	}
}

func TestResolveSecretPassesThroughLiteral(t *testing.T) {
	got, err := ResolveSecret("literal-value")
	if err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if got != "literal-value" {
		t.Fatalf("got %q", got)
	}
}

func TestResolveSecretReadsEnvVar(t *testing.T) {
	t.Setenv("MY_SECRET_VAR", "shh")
	got, err := ResolveSecret("$MY_SECRET_VAR")
	if err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if got != "shh" {
		t.Fatalf("got %q, want %q", got, "shh")
	}
}

func TestResolveSecretRejectsBareDollar(t *testing.T) {
	if _, err := ResolveSecret("$"); err == nil {
		t.Fatal("expected an error for a bare '$' reference")
	}
}
