package responses

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"testing"

	"fiatjaf.com/nostr"

	"github.com/tenex-go/tenexcore/internal/eventstore"
	gtnostr "github.com/tenex-go/tenexcore/internal/nostr"
	"github.com/tenex-go/tenexcore/internal/projection"
)

// newTestSigner mints a throwaway local signer for signing fixture
// events; no fixture here needs a stable identity across test runs.
func newTestSigner(t *testing.T) *gtnostr.LocalSigner {
	t.Helper()
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	signer, err := gtnostr.NewLocalSigner(hex.EncodeToString(buf))
	if err != nil {
		t.Fatalf("NewLocalSigner: %v", err)
	}
	return signer
}

func signAndIngest(t *testing.T, ctx context.Context, store eventstore.Store, signer *gtnostr.LocalSigner, event *nostr.Event) nostr.Event {
	t.Helper()
	if err := signer.Sign(ctx, event); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := store.Ingest(ctx, []nostr.Event{*event}, ""); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	return *event
}

// newProjectedFixture builds a store+projection with one project
// (dTag) authored by signer, and an online PM status event for that
// project naming pmPubkey as the "pm" assignment.
func newProjectedFixture(t *testing.T, dTag, pmPubkey string) (eventstore.Store, *projection.Store) {
	t.Helper()
	ctx := context.Background()
	store := eventstore.NewMemoryStore()
	signer := newTestSigner(t)

	projectEvent, err := gtnostr.NewProjectEvent(gtnostr.ProjectParams{
		DTag:        dTag,
		Title:       "Test Project",
		Description: "a project used in tests",
	})
	if err != nil {
		t.Fatalf("NewProjectEvent: %v", err)
	}
	signAndIngest(t, ctx, store, signer, projectEvent)

	statusEvent, err := gtnostr.NewProjectStatusEvent(gtnostr.ProjectStatusParams{
		ProjectDTag:  dTag,
		OnlineAgents: []string{pmPubkey},
		Assignments:  map[string]string{pmPubkey: "pm"},
	})
	if err != nil {
		t.Fatalf("NewProjectStatusEvent: %v", err)
	}
	signAndIngest(t, ctx, store, signer, statusEvent)

	proj := projection.NewStore(store)
	if err := proj.Backfill(ctx); err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	return store, proj
}
