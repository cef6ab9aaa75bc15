package projection

import (
	"encoding/hex"
	"testing"

	"fiatjaf.com/nostr"

	"github.com/tenex-go/tenexcore/internal/eventstore"
	gtnostr "github.com/tenex-go/tenexcore/internal/nostr"
)

func newTestStore() *Store {
	return NewStore(eventstore.NewMemoryStore())
}

func TestIsPhoneticallySimilar(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"Robert", "Rupert", true},
		{"Smith", "Smyth", true},
		{"Robert", "Smith", false},
		{"robert", "ROBERT", true},
	}
	for _, c := range cases {
		if got := isPhoneticallySimilar(c.a, c.b); got != c.want {
			t.Errorf("isPhoneticallySimilar(%q,%q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestDeterministicColorIsStable(t *testing.T) {
	id := "some-entity-id"
	first := deterministicColor(id)
	for i := 0; i < 100; i++ {
		if got := deterministicColor(id); got != first {
			t.Fatalf("deterministicColor(%q) unstable across repeated calls: %d vs %d", id, got, first)
		}
	}
}

func TestAppTimeWindowCutoff(t *testing.T) {
	now := int64(100000)
	if got := WindowHours4.Cutoff(now); got != now-14400 {
		t.Errorf("hours4 cutoff = %d, want %d", got, now-14400)
	}
	if got := WindowAll.Cutoff(now); got != 0 {
		t.Errorf("all cutoff = %d, want 0", got)
	}
	if got := WindowHours4.Cutoff(100); got != 0 {
		t.Errorf("expected clamp to 0 when now < window, got %d", got)
	}
}

func TestActiveConversationCountEmpty(t *testing.T) {
	s := newTestStore()
	if got := s.ActiveConversationCount(nil); got != 0 {
		t.Errorf("expected 0 for empty input, got %d", got)
	}
}

func TestDelegationActivityByConversationIDEmpty(t *testing.T) {
	s := newTestStore()
	got := s.DelegationActivityByConversationID(nil, nil)
	if len(got) != 0 {
		t.Errorf("expected empty map, got %v", got)
	}
}

func TestDelegationActivityPropagatesFromGrandchild(t *testing.T) {
	s := newTestStore()
	s.threads["C"] = Thread{ID: "C"}
	s.threads["G"] = Thread{ID: "G", ParentConversationID: "C"}
	s.convMeta["G"] = ConversationMetadata{ThreadID: "G", CurrentActivity: "thinking"}

	got := s.DelegationActivityByConversationID([]string{"C"}, []string{"C", "G"})
	if !got["C"] {
		t.Errorf("expected C to be marked active via descendant G, got %v", got)
	}
}

func mustSignedReport(t *testing.T, dTag, projectCoord string) nostr.Event {
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
		Kind: gtnostr.KindReport,
		Tags: nostr.Tags{
			gtnostr.ReplaceableTag(dTag),
			{"a", projectCoord},
		},
	}
	event.PubKey = pk
	if err := event.Sign(sk); err != nil {
		t.Fatalf("signing event: %v", err)
	}
	return event
}

func TestReportsReturnsEverythingWithNoFilter(t *testing.T) {
	s := newTestStore()
	s.apply(mustSignedReport(t, "r1", "30617:abc:proj-a"))
	s.apply(mustSignedReport(t, "r2", "30617:abc:proj-b"))

	got := s.Reports(nil)
	if len(got) != 2 {
		t.Fatalf("expected 2 reports with no filter, got %d", len(got))
	}
}

func TestReportsFiltersByVisibleProjects(t *testing.T) {
	s := newTestStore()
	s.apply(mustSignedReport(t, "r1", "30617:abc:proj-a"))
	s.apply(mustSignedReport(t, "r2", "30617:abc:proj-b"))

	visible := map[string]struct{}{"30617:abc:proj-a": {}}
	got := s.Reports(visible)
	if len(got) != 1 {
		t.Fatalf("expected 1 report restricted to proj-a, got %d", len(got))
	}
	if got[0].ProjectCoord != "30617:abc:proj-a" {
		t.Errorf("expected the proj-a report, got %#v", got[0])
	}
}
