package nostr

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewProjectEventTags(t *testing.T) {
	event, err := NewProjectEvent(ProjectParams{
		DTag:         "my-project",
		Title:        "My Project",
		AgentDefIDs:  []string{"agent1"},
		Participants: []string{"pk1", "pk2"},
	})
	if err != nil {
		t.Fatalf("NewProjectEvent failed: %v", err)
	}
	if event.Kind != KindProject {
		t.Errorf("Kind = %d, want %d", event.Kind, KindProject)
	}

	var sawD, sawAgent bool
	participants := 0
	for _, tag := range event.Tags {
		switch tag[0] {
		case "d":
			sawD = tag[1] == "my-project"
		case "agent":
			sawAgent = tag[1] == "agent1"
		case "p":
			participants++
		}
	}
	if !sawD {
		t.Errorf("expected d tag = my-project")
	}
	if !sawAgent {
		t.Errorf("expected agent tag = agent1")
	}
	if participants != 2 {
		t.Errorf("expected 2 participant tags, got %d", participants)
	}

	var content map[string]interface{}
	if err := json.Unmarshal([]byte(event.Content), &content); err != nil {
		t.Fatalf("content not valid JSON: %v", err)
	}
	if content["schema"] != "core/project@1" {
		t.Errorf("schema = %v, want core/project@1", content["schema"])
	}
}

func TestNewThreadEventTitleDefaultsToFirstLine(t *testing.T) {
	event, err := NewThreadEvent(KindThreadRoot, "pubkeyhex", "proj-d", "", "first line\nsecond line", "", nil, nil)
	if err != nil {
		t.Fatalf("NewThreadEvent failed: %v", err)
	}
	for _, tag := range event.Tags {
		if tag[0] == "title" {
			if tag[1] != "first line" {
				t.Errorf("title = %q, want %q", tag[1], "first line")
			}
			return
		}
	}
	t.Fatalf("no title tag found")
}

func TestNewMessageEventSkipsReplyWhenEqualToRoot(t *testing.T) {
	event, err := NewMessageEvent("root123", "root123", "hello", "", false, "", "")
	if err != nil {
		t.Fatalf("NewMessageEvent failed: %v", err)
	}
	replyTags := 0
	for _, tag := range event.Tags {
		if tag[0] == "e" && len(tag) >= 4 && tag[3] == "reply" {
			replyTags++
		}
	}
	if replyTags != 0 {
		t.Errorf("expected no reply tag when replyTo == root, got %d", replyTags)
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("one\ntwo"); got != "one" {
		t.Errorf("firstLine = %q, want one", got)
	}
	if got := firstLine("no newline here"); got != "no newline here" {
		t.Errorf("firstLine = %q, want unchanged", got)
	}
	if !strings.Contains(firstLine("x\ny\nz"), "x") {
		t.Errorf("expected first line to contain x")
	}
}
