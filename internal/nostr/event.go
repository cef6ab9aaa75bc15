package nostr

import (
	"encoding/json"
	"strings"
	"time"

	"fiatjaf.com/nostr"
)

// --- Event Construction Helpers ---
// One constructor per spec data-model entity (section 3.2). Each builds
// tags first, then the content payload, mirroring the teacher's
// event-construction idiom; only some kinds' payloads carry a "schema"
// field.

// NewProfileEvent creates a kind 0 profile event.
func NewProfileEvent(name, displayName, about, picture string) (*nostr.Event, error) {
	content, err := json.Marshal(map[string]interface{}{
		"name":         name,
		"display_name": displayName,
		"about":        about,
		"picture":      picture,
	})
	if err != nil {
		return nil, err
	}
	return &nostr.Event{
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      KindProfile,
		Content:   string(content),
	}, nil
}

// ProjectParams is the input to NewProjectEvent.
type ProjectParams struct {
	DTag          string
	Title         string
	Description   string
	RepoURL       string
	PictureURL    string
	AgentDefIDs   []string
	MCPToolIDs    []string
	Participants  []string
}

// NewProjectEvent creates a kind 31933 project definition event.
func NewProjectEvent(p ProjectParams) (*nostr.Event, error) {
	content, err := json.Marshal(map[string]interface{}{
		"schema":      SchemaVersion("project", 1),
		"title":       p.Title,
		"description": p.Description,
		"repo_url":    p.RepoURL,
		"picture_url": p.PictureURL,
	})
	if err != nil {
		return nil, err
	}

	tags := nostr.Tags{ReplaceableTag(p.DTag)}
	for _, id := range p.AgentDefIDs {
		tags = append(tags, nostr.Tag{"agent", id})
	}
	for _, id := range p.MCPToolIDs {
		tags = append(tags, nostr.Tag{"mcp", id})
	}
	for _, pk := range p.Participants {
		tags = append(tags, ParticipantTag(pk))
	}

	return &nostr.Event{
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      KindProject,
		Tags:      tags,
		Content:   string(content),
	}, nil
}

// AgentDefParams is the input to NewAgentDefEvent.
type AgentDefParams struct {
	DTag         string
	Title        string
	Role         string
	Description  string
	Category     string
	Version      string
	Instructions []string
	UseCriteria  []string
	Tools        []string
	MCPServers   []string
	MarkdownBody string
}

// NewAgentDefEvent creates a kind 4199 agent definition event.
func NewAgentDefEvent(p AgentDefParams) (*nostr.Event, error) {
	tags := nostr.Tags{
		ReplaceableTag(p.DTag),
		nostr.Tag{"title", p.Title},
		nostr.Tag{"role", p.Role},
		nostr.Tag{"description", p.Description},
		nostr.Tag{"category", p.Category},
		nostr.Tag{"ver", p.Version},
	}
	for _, ins := range p.Instructions {
		tags = append(tags, nostr.Tag{"instructions", ins})
	}
	for _, uc := range p.UseCriteria {
		tags = append(tags, nostr.Tag{"use-criteria", uc})
	}
	for _, t := range p.Tools {
		tags = append(tags, nostr.Tag{"tool", t})
	}
	for _, m := range p.MCPServers {
		tags = append(tags, nostr.Tag{"mcp-server", m})
	}

	return &nostr.Event{
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      KindAgentDef,
		Tags:      tags,
		Content:   p.MarkdownBody,
	}, nil
}

// NewThreadEvent creates a root thread event (kind 1 or 11). title comes
// from an explicit title, else the first line of content per spec 3.2.
func NewThreadEvent(kind int, projectPubkeyHex, projectDTag, title, content string, agentPubkey string, nudgeIDs, skillIDs []string) (*nostr.Event, error) {
	if title == "" {
		title = firstLine(content)
	}
	tags := nostr.Tags{
		nostr.Tag{"title", title},
		ProjectCoordTag(projectPubkeyHex, projectDTag),
	}
	if agentPubkey != "" {
		tags = append(tags, ParticipantTag(agentPubkey))
	}
	for _, id := range nudgeIDs {
		tags = append(tags, nostr.Tag{"nudge", id})
	}
	for _, id := range skillIDs {
		tags = append(tags, nostr.Tag{"skill", id})
	}

	return &nostr.Event{
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      nostr.Kind(kind),
		Tags:      tags,
		Content:   content,
	}, nil
}

// NewMessageEvent creates a kind-1 message referencing a thread root and,
// optionally, a parent message it replies to (NIP-10 markers).
func NewMessageEvent(rootEventIDHex, replyToEventIDHex, content string, agentPubkey string, reasoning bool, toolName, toolArgsJSON string) (*nostr.Event, error) {
	tags := nostr.Tags{RootTag(rootEventIDHex)}
	if replyToEventIDHex != "" && replyToEventIDHex != rootEventIDHex {
		tags = append(tags, ReplyTag(replyToEventIDHex))
	}
	if agentPubkey != "" {
		tags = append(tags, ParticipantTag(agentPubkey))
	}
	if reasoning {
		tags = append(tags, nostr.Tag{"reasoning", "true"})
	}
	if toolName != "" {
		tags = append(tags, nostr.Tag{"tool", toolName})
		if toolArgsJSON != "" {
			tags = append(tags, nostr.Tag{"tool-args", toolArgsJSON})
		}
	}

	return &nostr.Event{
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      KindThreadRoot,
		Tags:      tags,
		Content:   content,
	}, nil
}

// NewConversationMetadataEvent creates a kind 513 per-thread metadata event.
func NewConversationMetadataEvent(threadEventIDHex, title, statusLabel, currentActivity string) (*nostr.Event, error) {
	content, err := json.Marshal(map[string]interface{}{
		"schema":           SchemaVersion("conv_metadata", 1),
		"title":            title,
		"status_label":     statusLabel,
		"current_activity": currentActivity,
	})
	if err != nil {
		return nil, err
	}
	return &nostr.Event{
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      KindConvMetadata,
		Tags:      nostr.Tags{RootTag(threadEventIDHex)},
		Content:   string(content),
	}, nil
}

// ReportParams is the input to NewReportEvent.
type ReportParams struct {
	DTag            string
	Title           string
	Summary         string
	MarkdownBody    string
	ProjectPubkey   string
	ProjectDTag     string
}

// NewReportEvent creates a kind 30023 (NIP-23) report/article event.
func NewReportEvent(p ReportParams) (*nostr.Event, error) {
	tags := nostr.Tags{
		ReplaceableTag(p.DTag),
		nostr.Tag{"title", p.Title},
		nostr.Tag{"summary", p.Summary},
	}
	if p.ProjectPubkey != "" {
		tags = append(tags, ProjectCoordTag(p.ProjectPubkey, p.ProjectDTag))
	}
	return &nostr.Event{
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      KindReport,
		Tags:      tags,
		Content:   p.MarkdownBody,
	}, nil
}

// NewAgentLessonEvent creates a kind 4129 agent lesson event.
func NewAgentLessonEvent(agentDefID, lesson string) (*nostr.Event, error) {
	content, err := json.Marshal(map[string]interface{}{
		"schema": SchemaVersion("lesson", 1),
		"lesson": lesson,
	})
	if err != nil {
		return nil, err
	}
	return &nostr.Event{
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      KindAgentLesson,
		Tags:      nostr.Tags{nostr.Tag{"e", agentDefID}},
		Content:   string(content),
	}, nil
}

// NewMCPToolEvent creates a kind 4200 MCP tool definition event.
func NewMCPToolEvent(dTag, name, description, endpoint string) (*nostr.Event, error) {
	content, err := json.Marshal(map[string]interface{}{
		"schema":      SchemaVersion("mcp_tool", 1),
		"name":        name,
		"description": description,
		"endpoint":    endpoint,
	})
	if err != nil {
		return nil, err
	}
	return &nostr.Event{
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      KindMCPTool,
		Tags:      nostr.Tags{ReplaceableTag(dTag)},
		Content:   string(content),
	}, nil
}

// NewNudgeEvent creates a kind 4201 nudge event.
func NewNudgeEvent(dTag, title, body string) (*nostr.Event, error) {
	return simpleDefEvent(KindNudge, "nudge", dTag, title, body)
}

// NewSkillEvent creates a kind 4202 skill event.
func NewSkillEvent(dTag, title, body string) (*nostr.Event, error) {
	return simpleDefEvent(KindSkill, "skill", dTag, title, body)
}

func simpleDefEvent(kind int, schemaName, dTag, title, body string) (*nostr.Event, error) {
	content, err := json.Marshal(map[string]interface{}{
		"schema": SchemaVersion(schemaName, 1),
		"title":  title,
	})
	if err != nil {
		return nil, err
	}
	return &nostr.Event{
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      nostr.Kind(kind),
		Tags:      nostr.Tags{ReplaceableTag(dTag)},
		Content:   string(content) + "\n" + body,
	}, nil
}

// ProjectStatusParams is the input to NewProjectStatusEvent.
type ProjectStatusParams struct {
	ProjectDTag  string
	OnlineAgents []string
	Assignments  map[string]string // pubkey -> model
}

// NewProjectStatusEvent creates an ephemeral kind 24010 project-status event.
func NewProjectStatusEvent(p ProjectStatusParams) (*nostr.Event, error) {
	content, err := json.Marshal(map[string]interface{}{
		"schema":        SchemaVersion("project_status", 1),
		"online_agents": p.OnlineAgents,
		"assignments":   p.Assignments,
	})
	if err != nil {
		return nil, err
	}
	return &nostr.Event{
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      KindProjectStatus,
		Tags:      nostr.Tags{ReplaceableTag(p.ProjectDTag)},
		Content:   string(content),
	}, nil
}

func firstLine(content string) string {
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		return content[:i]
	}
	return content
}
