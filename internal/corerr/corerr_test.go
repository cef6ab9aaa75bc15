package corerr

import (
	"errors"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	e := New(KindAuth, "not logged in", "")
	if e.Error() != "not logged in" {
		t.Errorf("got %q", e.Error())
	}

	e2 := New(KindInputValidation, "invalid bech32", "unexpected prefix")
	if e2.Error() != "invalid bech32: unexpected prefix" {
		t.Errorf("got %q", e2.Error())
	}
}

func TestWrapUnwraps(t *testing.T) {
	inner := errors.New("boom")
	wrapped := Wrap(KindStorage, "write failed", inner)
	if !errors.Is(wrapped, inner) {
		t.Errorf("expected errors.Is to find the wrapped error")
	}
}

func TestKindFatalAndRetryable(t *testing.T) {
	if !KindStorage.Fatal() {
		t.Errorf("expected storage errors to be fatal")
	}
	if KindRelay.Fatal() {
		t.Errorf("expected relay errors to not be fatal")
	}
	if !KindRelay.Retryable() {
		t.Errorf("expected relay errors to be retryable")
	}
	if KindAuth.Retryable() {
		t.Errorf("expected auth errors to not be retryable")
	}
}
