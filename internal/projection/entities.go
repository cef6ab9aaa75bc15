// Package projection derives the typed, queryable entities the UI
// works with (Project, Thread, Message, AgentDefinition, Profile,
// Report, Nudge, Skill, Tool, Lesson, ProjectStatus) from the raw
// event log. Projections are pure views: they never exist on disk
// separately from the events that define them.
package projection

// Profile is derived from kind 0, keyed by pubkey, latest-wins by
// created_at.
type Profile struct {
	Pubkey      string
	Name        string
	DisplayName string
	About       string
	Picture     string
	CreatedAt   int64
}

// BestName returns the best available human label, falling back to
// a shortened hex pubkey (spec 4.7 GetProfileName).
func (p Profile) BestName() string {
	switch {
	case p.DisplayName != "":
		return p.DisplayName
	case p.Name != "":
		return p.Name
	case len(p.Pubkey) >= 8:
		return p.Pubkey[:8]
	default:
		return p.Pubkey
	}
}

// Project is derived from kind 31933, keyed by "31933:pubkey:d".
type Project struct {
	Coordinate   string
	DTag         string
	AuthorPubkey string
	Title        string
	Description  string
	RepoURL      string
	PictureURL   string
	AgentDefIDs  []string
	MCPToolIDs   []string
	Participants []string
	CreatedAt    int64
}

// AgentDefinition is derived from kind 4199, keyed by event id.
type AgentDefinition struct {
	ID           string
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
	CreatedAt    int64
}

// MCPTool is derived from kind 4200, coordinate-shaped like a report.
type MCPTool struct {
	Coordinate  string
	Name        string
	Description string
	Endpoint    string
	CreatedAt   int64
}

// Nudge is derived from kind 4201.
type Nudge struct {
	Coordinate string
	Title      string
	Body       string
	CreatedAt  int64
}

// Skill is derived from kind 4202.
type Skill struct {
	Coordinate string
	Title      string
	Body       string
	CreatedAt  int64
}

// Thread is a root event (kind 1 or 11) carrying no parent e/a
// reference into another event.
type Thread struct {
	ID                    string
	AuthorPubkey          string
	Title                 string
	LastActivity          int64
	ProjectCoord          string
	Participants          []string
	Scheduling            bool
	StatusLabel           string
	CurrentActivity       string
	ParentConversationID  string
	CreatedAt             int64
}

// Message is a kind-1 or kind-11 event with a "root"-marked e tag naming
// its thread; a "reply"-marked e tag sets ReplyToID.
type Message struct {
	ID           string
	ThreadID     string
	ReplyToID    string
	AuthorPubkey string
	Content      string
	Reasoning    bool
	ToolName     string
	ToolArgsJSON string
	CreatedAt    int64
}

// ConversationMetadata is derived from kind 513.
type ConversationMetadata struct {
	ThreadID        string
	Title           string
	StatusLabel     string
	CurrentActivity string
	CreatedAt       int64
}

// Report is derived from kind 30023 (NIP-23), keyed by "30023:pubkey:d".
type Report struct {
	Coordinate    string
	DTag          string
	AuthorPubkey  string
	Title         string
	Summary       string
	MarkdownBody  string
	ProjectCoord  string
	CreatedAt     int64
}

// AgentLesson is derived from kind 4129.
type AgentLesson struct {
	ID         string
	AgentDefID string
	Lesson     string
	CreatedAt  int64
}

// ProjectStatus is derived from kind 24010; ephemeral, not persisted
// for reconciliation (spec 4.4).
type ProjectStatus struct {
	ProjectDTag  string
	OnlineAgents []string
	Assignments  map[string]string
	CreatedAt    int64
}
