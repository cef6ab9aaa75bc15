package runtime

import (
	"context"
	"testing"

	"github.com/tenex-go/tenexcore/internal/credstore"
	"github.com/tenex-go/tenexcore/internal/eventstore"
	"github.com/tenex-go/tenexcore/internal/projection"
)

func newTestRuntime(t *testing.T) *CoreRuntime {
	t.Helper()
	store := eventstore.NewMemoryStore()
	proj := projection.NewStore(store)
	return New(store, nil, proj, nil, nil, nil, nil)
}

func TestCommandsRequireSignerBeforeLogin(t *testing.T) {
	rt := newTestRuntime(t)
	ctx := context.Background()

	if _, err := rt.SendThread(ctx, "pk", "d", "t", "content", "", nil, nil); err == nil {
		t.Fatal("expected error before Login")
	}
	if _, err := rt.SendMessage(ctx, "thread", "", "content", ""); err == nil {
		t.Fatal("expected error before Login")
	}
	if _, err := rt.CreateProject(ctx, "name", "desc", nil, nil); err == nil {
		t.Fatal("expected error before Login")
	}
	if err := rt.StartBunker(ctx); err == nil {
		t.Fatal("expected error before Login (no bunker wired yet)")
	}

	facade := NewCommandFacade(rt)
	if err := facade.RemoveRule("pk", 1); err == nil {
		t.Fatal("expected error before Login")
	}
	if _, err := facade.Rules(); err == nil {
		t.Fatal("expected error before Login")
	}
	if _, err := facade.AuditLog(); err == nil {
		t.Fatal("expected error before Login")
	}
}

func TestGetProfileNameFallsBackToShortHex(t *testing.T) {
	rt := newTestRuntime(t)
	got := rt.GetProfileName("abcdef0123456789")
	if got != "abcdef01" {
		t.Fatalf("got %q, want short-hex fallback", got)
	}
}

func TestDecodeNsecRejectsWrongPrefix(t *testing.T) {
	_, err := decodeNsec("npub1invalidvalue")
	if err == nil {
		t.Fatal("expected an error decoding a non-nsec bech32 string")
	}
}

func TestAutoLoginIsANoOpWithNoCredentialStoreConfigured(t *testing.T) {
	rt := newTestRuntime(t)
	if err := rt.AutoLogin(context.Background(), t.TempDir()); err != nil {
		t.Fatalf("AutoLogin with no Credentials: %v", err)
	}
	if err := rt.requireSigner(); err == nil {
		t.Fatal("AutoLogin with no stored credential should not log in")
	}
}

func TestAutoLoginLeavesLoggedOutWhenNothingStored(t *testing.T) {
	store := eventstore.NewMemoryStore()
	proj := projection.NewStore(store)
	rt := New(store, nil, proj, nil, nil, nil, credstore.New(t.TempDir()))

	if err := rt.AutoLogin(context.Background(), t.TempDir()); err != nil {
		t.Fatalf("AutoLogin: %v", err)
	}
	if err := rt.requireSigner(); err == nil {
		t.Fatal("expected to remain logged out when no credential is stored")
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"My Cool Project!": "my-cool-project",
		"already-slug":      "already-slug",
		"  leading/trailing ": "leading-trailing",
		"Multi   Space":     "multi-space",
	}
	for in, want := range cases {
		if got := slugify(in); got != want {
			t.Errorf("slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
