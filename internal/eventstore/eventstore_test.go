package eventstore

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"fiatjaf.com/nostr"

	gtnostr "github.com/tenex-go/tenexcore/internal/nostr"
)

func mustSignedEvent(t *testing.T, kind int, createdAt int64, dTag string) nostr.Event {
	t.Helper()
	var sk nostr.SecretKey
	b, err := hex.DecodeString(nostr.GeneratePrivateKey())
	if err != nil || len(b) != len(sk) {
		t.Fatalf("generating secret key: %v", err)
	}
	copy(sk[:], b)
	return mustSignedEventWithKey(t, sk, kind, createdAt, dTag, "")
}

// mustSignedEventWithKey signs with a caller-supplied secret key so a
// test can mint two events that share a pubkey (and so can genuinely
// collide on a kind/pubkey/d coordinate, unlike mustSignedEvent's
// fresh-key-per-call events). content varies the id when two events
// must otherwise be identical (same kind/createdAt/d) to exercise the
// exact-tie branch of the addressable-replacement rule.
func mustSignedEventWithKey(t *testing.T, sk nostr.SecretKey, kind int, createdAt int64, dTag, content string) nostr.Event {
	t.Helper()

	event := nostr.Event{
		CreatedAt: nostr.Timestamp(createdAt),
		Kind:      nostr.Kind(kind),
		Content:   content,
	}
	if dTag != "" {
		event.Tags = nostr.Tags{nostr.Tag{"d", dTag}}
	}
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		t.Fatalf("deriving public key: %v", err)
	}
	event.PubKey = pk
	if err := event.Sign(sk); err != nil {
		t.Fatalf("signing event: %v", err)
	}
	return event
}

func mustSecretKey(t *testing.T) nostr.SecretKey {
	t.Helper()
	var sk nostr.SecretKey
	b, err := hex.DecodeString(nostr.GeneratePrivateKey())
	if err != nil || len(b) != len(sk) {
		t.Fatalf("generating secret key: %v", err)
	}
	copy(sk[:], b)
	return sk
}

func TestIngestIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	event := mustSignedEvent(t, 1, time.Now().Unix(), "")

	result, err := store.Ingest(ctx, []nostr.Event{event}, "wss://relay.example")
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if result.Inserted != 1 {
		t.Fatalf("expected 1 inserted, got %d", result.Inserted)
	}

	result, err = store.Ingest(ctx, []nostr.Event{event}, "wss://relay.example")
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	if result.Inserted != 0 {
		t.Errorf("expected 0 inserted on duplicate ingest, got %d", result.Inserted)
	}
}

func TestDifferentAuthorsSameDTagDoNotCollide(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	older := mustSignedEvent(t, 31933, 1000, "proj")
	newer := mustSignedEvent(t, 31933, 2000, "proj")
	// Each event is signed with its own freshly generated key, so the two
	// share kind and d tag but not the author: their coordinates differ,
	// both are kept, and Query returns them newest first.

	if _, err := store.Ingest(ctx, []nostr.Event{older, newer}, ""); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	results, err := store.Query(ctx, Filter{Kinds: []int{31933}})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results (different authors don't collide), got %d", len(results))
	}
	if results[0].CreatedAt < results[1].CreatedAt {
		t.Errorf("expected descending created_at order, got %v then %v", results[0].CreatedAt, results[1].CreatedAt)
	}
}

// TestAddressableReplacementSameAuthorNewerWins exercises a genuine
// coordinate collision: both events share a secret key, kind, and d
// tag, so the second Ingest must shadow the first rather than the two
// coexisting as TestDifferentAuthorsSameDTagDoNotCollide's events do.
func TestAddressableReplacementSameAuthorNewerWins(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	sk := mustSecretKey(t)

	older := mustSignedEventWithKey(t, sk, 31933, 1000, "proj", "v1")
	newer := mustSignedEventWithKey(t, sk, 31933, 2000, "proj", "v2")

	if _, err := store.Ingest(ctx, []nostr.Event{older, newer}, ""); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	results, err := store.Query(ctx, Filter{Kinds: []int{31933}})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result (newer shadows older at the same coordinate), got %d", len(results))
	}
	if gtnostr.IDToString(results[0].ID) != gtnostr.IDToString(newer.ID) {
		t.Errorf("expected the newer event to win, got id %s", gtnostr.IDToString(results[0].ID))
	}

	// The shadowed event is still retrievable by id (spec 4.1).
	if _, ok, err := store.GetByID(ctx, gtnostr.IDToString(older.ID)); err != nil || !ok {
		t.Errorf("expected shadowed event still retrievable by id, ok=%v err=%v", ok, err)
	}

	// Ingesting the older event again (e.g. replayed from a relay) must
	// not un-shadow it.
	if _, err := store.Ingest(ctx, []nostr.Event{older}, ""); err != nil {
		t.Fatalf("re-ingest failed: %v", err)
	}
	results, err = store.Query(ctx, Filter{Kinds: []int{31933}})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 1 || gtnostr.IDToString(results[0].ID) != gtnostr.IDToString(newer.ID) {
		t.Errorf("replaying the older event must not un-shadow the newer one")
	}
}

// TestAddressableReplacementSameAuthorExactTieLexIDWins exercises the
// exact-tie branch: same secret key, kind, d tag, and created_at, but
// different content so the two events have different ids. The
// lexically lower id must win regardless of ingest order.
func TestAddressableReplacementSameAuthorExactTieLexIDWins(t *testing.T) {
	sk := mustSecretKey(t)
	a := mustSignedEventWithKey(t, sk, 31933, 5000, "proj", "alpha")
	b := mustSignedEventWithKey(t, sk, 31933, 5000, "proj", "beta")

	aHex, bHex := gtnostr.IDToString(a.ID), gtnostr.IDToString(b.ID)
	if aHex == bHex {
		t.Fatalf("test fixture produced identical ids; need distinct ids for a tie-break test")
	}
	lower, higher := a, b
	if bHex < aHex {
		lower, higher = b, a
	}

	ctx := context.Background()
	run := func(name string, first, second nostr.Event) {
		t.Run(name, func(t *testing.T) {
			store := NewMemoryStore()
			if _, err := store.Ingest(ctx, []nostr.Event{first, second}, ""); err != nil {
				t.Fatalf("Ingest failed: %v", err)
			}
			results, err := store.Query(ctx, Filter{Kinds: []int{31933}})
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(results) != 1 {
				t.Fatalf("expected 1 result, got %d", len(results))
			}
			if gtnostr.IDToString(results[0].ID) != gtnostr.IDToString(lower.ID) {
				t.Errorf("expected the lexically lower id to win on an exact created_at tie, got %s", gtnostr.IDToString(results[0].ID))
			}
		})
	}

	// Order must not matter: lex-lower wins whether it arrives first or second.
	run("lower_first", lower, higher)
	run("higher_first", higher, lower)
}

func TestQueryOrderingStableOnTie(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	now := time.Now().Unix()
	a := mustSignedEvent(t, 1, now, "")
	b := mustSignedEvent(t, 1, now, "")

	if _, err := store.Ingest(ctx, []nostr.Event{a, b}, ""); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	results, err := store.Query(ctx, Filter{Kinds: []int{1}})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	idA := results[0].ID
	idB := results[1].ID
	if hex.EncodeToString(idA[:]) > hex.EncodeToString(idB[:]) {
		t.Errorf("expected lexicographic ascending id order on created_at tie")
	}
}

func TestSubscribeDeliversNewEvents(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ch, unsubscribe := store.Subscribe(ctx, Filter{Kinds: []int{1}})
	defer unsubscribe()

	event := mustSignedEvent(t, 1, time.Now().Unix(), "")
	if _, err := store.Ingest(ctx, []nostr.Event{event}, ""); err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	select {
	case got := <-ch:
		if got.ID != event.ID {
			t.Errorf("delivered wrong event")
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for subscribed event")
	}
}

func TestIngestRejectsBadSignature(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	event := mustSignedEvent(t, 1, time.Now().Unix(), "")
	event.Content = "tampered after signing"

	result, err := store.Ingest(ctx, []nostr.Event{event}, "")
	if err != nil {
		t.Fatalf("Ingest should not return an error for a bad signature: %v", err)
	}
	if result.Rejected != 1 {
		t.Errorf("expected 1 rejected, got %d (inserted=%d)", result.Rejected, result.Inserted)
	}
}
