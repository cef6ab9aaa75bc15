package bunker

import (
	"encoding/json"
	"testing"

	"fiatjaf.com/nostr"
)

func TestFindRuleExactKindBeatsAnyKind(t *testing.T) {
	s := &Service{}
	kind4199 := 4199
	s.rules = []AutoApproveRule{
		{ID: "any", RequesterPubkey: "alice"},
		{ID: "exact", RequesterPubkey: "alice", EventKind: &kind4199},
	}

	rule, ok := s.findRule("alice", 4199)
	if !ok || rule.ID != "exact" {
		t.Fatalf("expected exact-kind rule to win, got %+v (ok=%v)", rule, ok)
	}

	rule, ok = s.findRule("alice", 1)
	if !ok || rule.ID != "any" {
		t.Fatalf("expected any-kind rule to match other kinds, got %+v (ok=%v)", rule, ok)
	}

	if _, ok := s.findRule("bob", 1); ok {
		t.Fatalf("expected no rule match for an unrelated requester")
	}
}

func TestRemoveRuleDeletesExactMatchOnly(t *testing.T) {
	s := &Service{}
	k1, k4, k7 := 1, 4, 7
	s.rules = []AutoApproveRule{
		{ID: "pA-1", RequesterPubkey: "pA", EventKind: &k1},
		{ID: "pB-4", RequesterPubkey: "pB", EventKind: &k4},
		{ID: "pB-7", RequesterPubkey: "pB", EventKind: &k7},
	}

	s.RemoveRule("pB", 4)

	got := s.Rules()
	if len(got) != 2 {
		t.Fatalf("expected 2 remaining rules, got %d: %+v", len(got), got)
	}
	for _, r := range got {
		if r.RequesterPubkey == "pB" && r.EventKind != nil && *r.EventKind == 4 {
			t.Fatalf("rule (pB,4) should have been removed, still present: %+v", got)
		}
	}
	if got[0].ID != "pA-1" || got[1].ID != "pB-7" {
		t.Fatalf("expected remaining order [pA-1, pB-7], got %+v", got)
	}
}

func TestRunningReflectsRunningFlag(t *testing.T) {
	s := &Service{}
	if s.Running() {
		t.Fatal("expected Running() false before Start")
	}
	s.running = true
	if !s.Running() {
		t.Fatal("expected Running() true once set")
	}
	s.running = false
	if s.Running() {
		t.Fatal("expected Running() false after reset")
	}
}

func TestAuditLogCapsAtCapacity(t *testing.T) {
	s := &Service{}
	for i := 0; i < auditCapacity+10; i++ {
		s.recordAuditLocked(&Request{RequesterPubkey: "alice", EventKind: 1, State: StateCompleted}, "")
	}
	if len(s.audit) != auditCapacity {
		t.Fatalf("expected audit log capped at %d, got %d", auditCapacity, len(s.audit))
	}
}

func TestDecodeRequestPayloadPrefersFullEventJSON(t *testing.T) {
	content := `{"id":"1","method":"sign_event","params":["{\"kind\":4199}","publish"]}`
	payload, err := decodeRequestPayload(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.Method != "sign_event" || payload.EventKind != 4199 || !payload.Publish {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.RPCID != "1" {
		t.Fatalf("expected the JSON-RPC id to be captured, got %q", payload.RPCID)
	}
}

func TestBuildReplyEventEchoesRequestID(t *testing.T) {
	signed := &nostr.Event{}
	reply := buildReplyEvent("signer-pubkey", "requester-pubkey", "rpc-42", signed)

	var body struct {
		ID     string `json:"id"`
		Result string `json:"result"`
	}
	if err := json.Unmarshal([]byte(reply.Content), &body); err != nil {
		t.Fatalf("unmarshal reply body: %v", err)
	}
	if body.ID != "rpc-42" {
		t.Fatalf("expected reply to echo the request's JSON-RPC id, got %q", body.ID)
	}
}

func TestPreviewAgentDefinitionPrefersEventJSON(t *testing.T) {
	raw, _ := json.Marshal(eventEnvelope{
		Content: "body text",
		Tags: [][]string{
			{"d", "my-agent"},
			{"title", "My Agent"},
			{"tool", "bash"},
			{"tool", "read"},
		},
	})
	req := &Request{EventJSON: string(raw), EventContent: "stale", EventTagsJSON: `[["title","Legacy"]]`}

	preview := PreviewAgentDefinition(req)
	if preview.Title != "My Agent" || preview.DTag != "my-agent" || preview.MarkdownBody != "body text" {
		t.Fatalf("unexpected preview: %+v", preview)
	}
	if len(preview.Tools) != 2 {
		t.Fatalf("expected 2 tools, got %v", preview.Tools)
	}
}

func TestPreviewAgentDefinitionFallsBackToLegacyFields(t *testing.T) {
	req := &Request{
		EventContent:  "legacy body",
		EventTagsJSON: `[["title","Legacy Agent"],["d","legacy"]]`,
	}

	preview := PreviewAgentDefinition(req)
	if preview.Title != "Legacy Agent" || preview.DTag != "legacy" || preview.MarkdownBody != "legacy body" {
		t.Fatalf("unexpected fallback preview: %+v", preview)
	}
}
