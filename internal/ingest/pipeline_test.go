package ingest

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"fiatjaf.com/nostr"

	"github.com/tenex-go/tenexcore/internal/diag"
	"github.com/tenex-go/tenexcore/internal/eventstore"
	gtnostr "github.com/tenex-go/tenexcore/internal/nostr"
)

func mustSignedEvent(t *testing.T, kind int, tags nostr.Tags) nostr.Event {
	t.Helper()

	skHex := nostr.GeneratePrivateKey()
	var sk nostr.SecretKey
	b, err := hex.DecodeString(skHex)
	if err != nil || len(b) != len(sk) {
		t.Fatalf("generating secret key: %v", err)
	}
	copy(sk[:], b)

	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		t.Fatalf("deriving public key: %v", err)
	}

	event := nostr.Event{
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      nostr.Kind(kind),
		Tags:      tags,
		PubKey:    pk,
	}
	if err := event.Sign(sk); err != nil {
		t.Fatalf("signing event: %v", err)
	}
	return event
}

func newTestPipeline(t *testing.T) (*Pipeline, func()) {
	t.Helper()
	store := eventstore.NewMemoryStore()
	p := NewPipeline(store)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	return p, func() {
		cancel()
		p.Close()
	}
}

func TestPipelineEmitsWithDiagAttached(t *testing.T) {
	p, stop := newTestPipeline(t)
	defer stop()

	p.SetDiag(diag.New())

	event := mustSignedEvent(t, 1, nil)
	p.Offer(event, "wss://relay.example")

	select {
	case <-p.Changes():
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected a DataChange after offering a fresh event with diag attached")
	}
}

func TestPipelineDropsDuplicateOffers(t *testing.T) {
	p, stop := newTestPipeline(t)
	defer stop()

	event := mustSignedEvent(t, 1, nil)

	p.Offer(event, "wss://relay.example")
	p.Offer(event, "wss://relay.example")

	var got []DataChange
	timeout := time.After(200 * time.Millisecond)
	for {
		select {
		case c := <-p.Changes():
			got = append(got, c)
		case <-timeout:
			// The one stored kind-1 root yields EventIngested and
			// ThreadUpdated; the duplicate offer adds nothing.
			if len(got) != 2 {
				t.Fatalf("expected exactly 2 DataChanges for a duplicate offer, got %d", len(got))
			}
			return
		}
	}
}

func TestPipelineEmitsProfileUpdated(t *testing.T) {
	p, stop := newTestPipeline(t)
	defer stop()

	event := mustSignedEvent(t, gtnostr.KindProfile, nil)
	p.Offer(event, "")

	var sawProfile bool
	for i := 0; i < 2; i++ {
		select {
		case c := <-p.Changes():
			if _, ok := c.(ProfileUpdated); ok {
				sawProfile = true
			}
		case <-time.After(200 * time.Millisecond):
			t.Fatalf("timed out waiting for DataChange")
		}
	}
	if !sawProfile {
		t.Errorf("expected a ProfileUpdated notification")
	}
}

func TestThreadChangeForDistinguishesRootFromReply(t *testing.T) {
	root := mustSignedEvent(t, gtnostr.KindThreadRoot, nil)
	rootIDHex := gtnostr.IDToString(root.ID)

	rootChanges := threadChangeFor(root)
	if len(rootChanges) != 1 {
		t.Fatalf("expected 1 change for root event, got %d", len(rootChanges))
	}
	tu, ok := rootChanges[0].(ThreadUpdated)
	if !ok || tu.ThreadID != rootIDHex {
		t.Errorf("expected ThreadUpdated{%s}, got %#v", rootIDHex, rootChanges[0])
	}

	reply := mustSignedEvent(t, gtnostr.KindThreadRoot, nostr.Tags{
		gtnostr.RootTag(rootIDHex),
	})
	replyChanges := threadChangeFor(reply)
	if len(replyChanges) != 1 {
		t.Fatalf("expected 1 change for reply event, got %d", len(replyChanges))
	}
	mi, ok := replyChanges[0].(MessageInserted)
	if !ok || mi.ThreadID != rootIDHex || mi.MessageID != gtnostr.IDToString(reply.ID) {
		t.Errorf("expected MessageInserted{%s,...}, got %#v", rootIDHex, replyChanges[0])
	}
}

func TestChangesForProjectStatusUsesDTag(t *testing.T) {
	event := mustSignedEvent(t, gtnostr.KindProjectStatus, nostr.Tags{
		gtnostr.ReplaceableTag("my-project"),
	})

	changes := ChangesFor(event)
	var sawStatus bool
	for _, c := range changes {
		if sc, ok := c.(StatusChanged); ok {
			sawStatus = true
			if sc.ProjectATag != "my-project" {
				t.Errorf("expected ProjectATag %q, got %q", "my-project", sc.ProjectATag)
			}
		}
	}
	if !sawStatus {
		t.Errorf("expected a StatusChanged notification")
	}
}

func TestLRUEvictsOldestBeyondCapacity(t *testing.T) {
	l := newLRU(2)

	if l.SeenAndAdd("a") {
		t.Errorf("expected a to be new")
	}
	if l.SeenAndAdd("b") {
		t.Errorf("expected b to be new")
	}
	if l.SeenAndAdd("c") {
		t.Errorf("expected c to be new")
	}
	// capacity 2: "a" should have been evicted when "c" was added
	if l.SeenAndAdd("a") {
		t.Errorf("expected a to have been evicted and re-counted as new")
	}
	if !l.SeenAndAdd("c") {
		t.Errorf("expected c to still be tracked")
	}
}
