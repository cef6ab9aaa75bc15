package responses

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	gtnostr "github.com/tenex-go/tenexcore/internal/nostr"
)

func TestFindProjectAndFindOnlinePM(t *testing.T) {
	_, proj := newProjectedFixture(t, "my-project", "pmpubkeyhex")

	s := NewServer("", nil, proj, nil)

	if _, ok := s.findProject("my-project"); !ok {
		t.Fatal("expected to find the fixture project")
	}
	if _, ok := s.findProject("no-such-project"); ok {
		t.Fatal("expected no match for an unknown d-tag")
	}

	pm, ok := s.findOnlinePM("my-project")
	if !ok || pm != "pmpubkeyhex" {
		t.Fatalf("findOnlinePM = %q, %v; want pmpubkeyhex, true", pm, ok)
	}
	if _, ok := s.findOnlinePM("no-such-project"); ok {
		t.Fatal("expected no PM for an unknown project")
	}
}

func TestExtractInputTextPlainString(t *testing.T) {
	got, err := extractInputText(json.RawMessage(`"hello there"`))
	if err != nil {
		t.Fatalf("extractInputText: %v", err)
	}
	if got != "hello there" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractInputTextRoleContentArray(t *testing.T) {
	raw := json.RawMessage(`[{"role":"user","content":"what is up"},{"role":"assistant","content":"ignored"}]`)
	got, err := extractInputText(raw)
	if err != nil {
		t.Fatalf("extractInputText: %v", err)
	}
	if got != "what is up" {
		t.Fatalf("got %q, want %q", got, "what is up")
	}
}

func TestExtractInputTextRichParts(t *testing.T) {
	raw := json.RawMessage(`[{"role":"user","content":[{"type":"input_text","text":"part one "},{"type":"input_text","text":"part two"}]}]`)
	got, err := extractInputText(raw)
	if err != nil {
		t.Fatalf("extractInputText: %v", err)
	}
	if got != "part one part two" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractInputTextInvalidShapeErrors(t *testing.T) {
	if _, err := extractInputText(json.RawMessage(`42`)); err == nil {
		t.Fatal("expected an error for a shape that is neither a string nor an items array")
	}
}

func postResponses(t *testing.T, s *Server, path string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest("POST", path, bytes.NewReader(payload))
	w := httptest.NewRecorder()
	s.handleResponses(w, req)
	return w
}

func TestHandleResponsesRejectsNonPost(t *testing.T) {
	s := NewServer("", nil, nil, nil)
	req := httptest.NewRequest("GET", "/my-project/responses", nil)
	w := httptest.NewRecorder()
	s.handleResponses(w, req)
	if w.Code != 405 {
		t.Fatalf("status = %d, want 405", w.Code)
	}
}

func TestHandleResponsesRejectsNonStreaming(t *testing.T) {
	_, proj := newProjectedFixture(t, "my-project", "pm-pubkey")
	s := NewServer("", nil, proj, nil)

	w := postResponses(t, s, "/my-project/responses", map[string]any{
		"input":  "hello",
		"stream": false,
	})
	if w.Code != 501 {
		t.Fatalf("status = %d, want 501", w.Code)
	}
}

func TestHandleResponsesUnknownProjectIs404(t *testing.T) {
	_, proj := newProjectedFixture(t, "my-project", "pm-pubkey")
	s := NewServer("", nil, proj, nil)

	w := postResponses(t, s, "/no-such-project/responses", map[string]any{
		"input":  "hello",
		"stream": true,
	})
	if w.Code != 404 {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestHandleResponsesNoPMOnlineIs503(t *testing.T) {
	ctx := t.Context()
	store, proj := newProjectedFixture(t, "my-project", "pm-pubkey")

	// Replace the fixture's status with one carrying no pm assignment.
	signer := newTestSigner(t)
	statusEvent, err := gtnostr.NewProjectStatusEvent(gtnostr.ProjectStatusParams{
		ProjectDTag:  "my-project",
		OnlineAgents: []string{"other-agent"},
		Assignments:  map[string]string{"other-agent": "coder"},
	})
	if err != nil {
		t.Fatalf("NewProjectStatusEvent: %v", err)
	}
	// Strictly newer than the fixture's status, so it replaces it rather
	// than tying on created_at.
	statusEvent.CreatedAt++
	signAndIngest(t, ctx, store, signer, statusEvent)
	if err := proj.Backfill(ctx); err != nil {
		t.Fatalf("Backfill: %v", err)
	}

	s := NewServer("", nil, proj, nil)
	w := postResponses(t, s, "/my-project/responses", map[string]any{
		"input":  "hello",
		"stream": true,
	})
	if w.Code != 503 {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}
