package cmd

import (
	"errors"
	"testing"
)

func TestExitErrCarriesCode(t *testing.T) {
	err := exitErr(ExitNotLoggedIn, errors.New("nope"))
	ce, ok := err.(*cliError)
	if !ok {
		t.Fatalf("expected *cliError, got %T", err)
	}
	if ce.code != ExitNotLoggedIn {
		t.Fatalf("code = %d, want %d", ce.code, ExitNotLoggedIn)
	}
	if ce.Error() != "nope" {
		t.Fatalf("Error() = %q", ce.Error())
	}
}

func TestExitErrPassesThroughNil(t *testing.T) {
	if err := exitErr(ExitInvalidArgument, nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestResolveConfigPathDefaultsUnderBaseDir(t *testing.T) {
	configPath = ""
	path := resolveConfigPath()
	if path == "" {
		t.Fatal("expected a non-empty default config path")
	}
}

func TestResolveConfigPathHonorsFlag(t *testing.T) {
	configPath = "/custom/tenexcore.toml"
	defer func() { configPath = "" }()
	if got := resolveConfigPath(); got != "/custom/tenexcore.toml" {
		t.Fatalf("got %q", got)
	}
}
