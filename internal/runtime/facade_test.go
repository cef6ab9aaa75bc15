package runtime

import (
	"testing"

	"github.com/tenex-go/tenexcore/internal/corerr"
)

func TestReentrantCallFromSameGoroutineFailsFast(t *testing.T) {
	rt := newTestRuntime(t)
	facade := NewCommandFacade(rt)

	release, err := facade.enter()
	if err != nil {
		t.Fatalf("first enter: %v", err)
	}
	defer release()

	if err := facade.RemoveRule("pk", 1); err == nil {
		t.Fatal("expected a fail-fast error on reentrant call, got nil")
	} else if !corerr.Is(err, corerr.KindReentrant) {
		t.Fatalf("expected a KindReentrant error, got %v", err)
	}
}

func TestNonReentrantCallsAreSerializedNotRejected(t *testing.T) {
	rt := newTestRuntime(t)
	facade := NewCommandFacade(rt)

	release, err := facade.enter()
	if err != nil {
		t.Fatalf("first enter: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		r, err := facade.enter()
		if err != nil {
			done <- err
			return
		}
		r()
		done <- nil
	}()

	release()
	if err := <-done; err != nil {
		t.Fatalf("expected the second goroutine's call to succeed once released, got %v", err)
	}
}
