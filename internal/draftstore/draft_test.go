package draftstore

import (
	"encoding/json"
	"testing"
)

func TestKeySchemeNewVsReply(t *testing.T) {
	if got := Key("proj1", ""); got != "new-proj1" {
		t.Fatalf("got %q, want new-proj1", got)
	}
	if got := Key("proj1", "thread1"); got != "reply-proj1-thread1" {
		t.Fatalf("got %q, want reply-proj1-thread1", got)
	}
}

func TestMigrationDefaultsOlderDraftJSON(t *testing.T) {
	raw := `{"id":"draft-1","title":"T","content":"H","isNewConversation":true,"lastEdited":0}`
	d := decodeDraftJSON(t, raw)
	d.applyDefaults()

	if d.ProjectID != "" {
		t.Errorf("ProjectID = %q, want empty", d.ProjectID)
	}
	if len(d.SelectedNudgeIDs) != 0 {
		t.Errorf("SelectedNudgeIDs = %v, want empty", d.SelectedNudgeIDs)
	}
	if d.SelectedNudgeIDs == nil {
		t.Error("SelectedNudgeIDs is nil, want non-nil empty map")
	}
	if len(d.ImageAttachments) != 0 {
		t.Errorf("ImageAttachments = %v, want empty", d.ImageAttachments)
	}
	if d.ImageAttachments == nil {
		t.Error("ImageAttachments is nil, want non-nil empty slice")
	}
	if len(d.ImageAttachments) > 0 {
		t.Error("hasImages should be false")
	}
}

func TestBuildFullContentSubstitutesImageMarkersInline(t *testing.T) {
	d := Draft{
		Content: "Check [Image #1] and [Image #2] done",
		ImageAttachments: []ImageAttachment{
			{ID: 1, URL: "u1"},
			{ID: 2, URL: "u2"},
		},
	}
	got := d.BuildFullContent()
	want := "Check u1 and u2 done"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildFullContentAppendsTextAttachmentSectionOnce(t *testing.T) {
	d := Draft{
		Content: "See [Text Attachment 1]",
		TextAttachments: []TextAttachment{
			{ID: 1, Content: "payload"},
		},
	}
	got := d.BuildFullContent()
	want := "See [Text Attachment 1]\n----\n-- Text Attachment 1 --\npayload"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildFullContentAppendsTextAttachmentOncePerReferencedID(t *testing.T) {
	d := Draft{
		Content: "[Text Attachment 1] then [Text Attachment 1] again",
		TextAttachments: []TextAttachment{
			{ID: 1, Content: "payload"},
		},
	}
	got := d.BuildFullContent()
	want := "[Text Attachment 1] then [Text Attachment 1] again\n----\n-- Text Attachment 1 --\npayload"
	if got != want {
		t.Fatalf("got %q, want %q (appended once, not per occurrence)", got, want)
	}
}

func TestHasContent(t *testing.T) {
	empty := Draft{}
	if empty.HasContent() {
		t.Error("empty draft should have no content")
	}
	withText := Draft{Content: "  hi  "}
	if !withText.HasContent() {
		t.Error("non-blank content should count as content")
	}
	withImage := Draft{ImageAttachments: []ImageAttachment{{ID: 1, URL: "u"}}}
	if !withImage.HasContent() {
		t.Error("an attached image should count as content")
	}
}

func TestAddAttachmentsAssignMonotonicIDsAfterMigration(t *testing.T) {
	d := Draft{
		ImageAttachments: []ImageAttachment{{ID: 5, URL: "old"}},
	}
	d.applyDefaults()
	id := d.AddImageAttachment("new")
	if id != 6 {
		t.Fatalf("got id %d, want 6 (max existing + 1)", id)
	}
}

func decodeDraftJSON(t *testing.T, raw string) Draft {
	t.Helper()
	var d Draft
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return d
}
