// Package draftstore holds per-(project, thread) composition state
// that never touches the event log: what a frontend is still typing
// (spec 4.9). Everything here is local-only and disposable.
package draftstore

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ImageAttachment is one image attached to a draft, id monotonic per
// draft, substituted inline at build-full-content time.
type ImageAttachment struct {
	ID  int    `json:"id"`
	URL string `json:"url"`
}

// TextAttachment is one text attachment, referenced in place by its
// marker and appended as a section at build-full-content time.
type TextAttachment struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
}

// Draft is one in-progress composition (spec 4.9 entity list).
type Draft struct {
	ID                      string            `json:"id"`
	ProjectID               string            `json:"projectId"`
	ThreadID                string            `json:"threadId,omitempty"`
	Title                   string            `json:"title"`
	Content                 string            `json:"content"`
	IsNewConversation       bool              `json:"isNewConversation"`
	AgentPubkey             string            `json:"agentPubkey,omitempty"`
	SelectedNudgeIDs        map[string]bool   `json:"selectedNudgeIds"`
	SelectedSkillIDs        map[string]bool   `json:"selectedSkillIds"`
	ReferenceConversationID string            `json:"referenceConversationId,omitempty"`
	ReferenceReportATag     string            `json:"referenceReportATag,omitempty"`
	ImageAttachments        []ImageAttachment `json:"imageAttachments"`
	TextAttachments         []TextAttachment  `json:"textAttachments"`
	CreatedAt               int64             `json:"createdAt"`
	LastEdited              int64             `json:"lastEdited"`

	nextImageID int
	nextTextID  int
}

// Key returns a draft's identity: "new-{project}" for a fresh
// conversation, "reply-{project}-{thread}" for a reply (spec 4.9).
func Key(projectID, threadID string) string {
	if threadID == "" {
		return "new-" + projectID
	}
	return "reply-" + projectID + "-" + threadID
}

// applyDefaults fills nil collections with empty ones and recomputes
// the monotonic attachment-id counters from the max existing id + 1,
// the migration contract spec 4.9 requires after loading older drafts.
func (d *Draft) applyDefaults() {
	if d.SelectedNudgeIDs == nil {
		d.SelectedNudgeIDs = map[string]bool{}
	}
	if d.SelectedSkillIDs == nil {
		d.SelectedSkillIDs = map[string]bool{}
	}
	if d.ImageAttachments == nil {
		d.ImageAttachments = []ImageAttachment{}
	}
	if d.TextAttachments == nil {
		d.TextAttachments = []TextAttachment{}
	}

	maxImage := 0
	for _, a := range d.ImageAttachments {
		if a.ID > maxImage {
			maxImage = a.ID
		}
	}
	d.nextImageID = maxImage + 1

	maxText := 0
	for _, a := range d.TextAttachments {
		if a.ID > maxText {
			maxText = a.ID
		}
	}
	d.nextTextID = maxText + 1
}

// AddImageAttachment appends an image attachment and returns its id.
func (d *Draft) AddImageAttachment(url string) int {
	d.applyDefaultsIfNeeded()
	id := d.nextImageID
	d.nextImageID++
	d.ImageAttachments = append(d.ImageAttachments, ImageAttachment{ID: id, URL: url})
	return id
}

// AddTextAttachment appends a text attachment and returns its id.
func (d *Draft) AddTextAttachment(content string) int {
	d.applyDefaultsIfNeeded()
	id := d.nextTextID
	d.nextTextID++
	d.TextAttachments = append(d.TextAttachments, TextAttachment{ID: id, Content: content})
	return id
}

func (d *Draft) applyDefaultsIfNeeded() {
	if d.nextImageID == 0 && d.nextTextID == 0 {
		d.applyDefaults()
	}
}

// HasContent is true when trimmed content is non-empty, any image is
// attached, or any text attachment exists (spec 4.9).
func (d *Draft) HasContent() bool {
	return strings.TrimSpace(d.Content) != "" || len(d.ImageAttachments) > 0 || len(d.TextAttachments) > 0
}

var (
	imageMarkerPattern = regexp.MustCompile(`\[Image #(\d+)\]`)
	textMarkerPattern  = regexp.MustCompile(`\[Text Attachment (\d+)\]`)
)

// BuildFullContent renders the draft's content with attachment markers
// resolved (spec 4.9): image markers are substituted inline with their
// URL; text-attachment markers stay in place and each referenced
// attachment is appended once, in order of first reference, as a
// "----" rule, a "-- Text Attachment n --" heading, and its body.
func (d *Draft) BuildFullContent() string {
	imagesByID := make(map[int]string, len(d.ImageAttachments))
	for _, a := range d.ImageAttachments {
		imagesByID[a.ID] = a.URL
	}

	out := imageMarkerPattern.ReplaceAllStringFunc(d.Content, func(match string) string {
		sub := imageMarkerPattern.FindStringSubmatch(match)
		id, err := strconv.Atoi(sub[1])
		if err != nil {
			return match
		}
		url, ok := imagesByID[id]
		if !ok {
			return match
		}
		return url
	})

	textByID := make(map[int]string, len(d.TextAttachments))
	for _, a := range d.TextAttachments {
		textByID[a.ID] = a.Content
	}

	seen := make(map[int]bool)
	var referenced []int
	for _, match := range textMarkerPattern.FindAllStringSubmatch(out, -1) {
		id, err := strconv.Atoi(match[1])
		if err != nil || seen[id] {
			continue
		}
		if _, ok := textByID[id]; !ok {
			continue
		}
		seen[id] = true
		referenced = append(referenced, id)
	}

	var b strings.Builder
	b.WriteString(out)
	for _, id := range referenced {
		b.WriteString("\n----\n-- Text Attachment ")
		b.WriteString(strconv.Itoa(id))
		b.WriteString(" --\n")
		b.WriteString(textByID[id])
	}
	return b.String()
}

func nowUnix() int64 {
	return time.Now().Unix()
}
