package projection

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"fiatjaf.com/nostr"

	"github.com/tenex-go/tenexcore/internal/eventstore"
	"github.com/tenex-go/tenexcore/internal/ingest"
	gtnostr "github.com/tenex-go/tenexcore/internal/nostr"
)

// projectedKinds is every kind DomainProjection derives entities from.
var projectedKinds = []int{
	gtnostr.KindProfile,
	gtnostr.KindThreadRoot,
	gtnostr.KindChannelMessage,
	gtnostr.KindConvMetadata,
	gtnostr.KindAgentLesson,
	gtnostr.KindAgentDef,
	gtnostr.KindMCPTool,
	gtnostr.KindNudge,
	gtnostr.KindSkill,
	gtnostr.KindProjectStatus,
	gtnostr.KindReport,
	gtnostr.KindProject,
}

// Store is the DomainProjection: a single in-memory, reader-writer-lock-
// guarded view of every typed entity derivable from the event log
// (spec 3.2). It is the single source of truth consumers query; it never
// persists state of its own.
type Store struct {
	mu sync.RWMutex

	profiles  map[string]Profile
	projects  map[string]Project
	agentDefs map[string]AgentDefinition
	mcpTools  map[string]MCPTool
	nudges    map[string]Nudge
	skills    map[string]Skill
	threads   map[string]Thread
	messages  map[string]Message
	convMeta  map[string]ConversationMetadata
	reports   map[string]Report
	lessons   map[string]AgentLesson
	statuses  map[string]ProjectStatus

	backing eventstore.Store
	changes chan ingest.DataChange

	cancel context.CancelFunc
	done   chan struct{}
}

// NewStore creates an empty projection backed by an already-open
// event store.
func NewStore(backing eventstore.Store) *Store {
	return &Store{
		profiles:  make(map[string]Profile),
		projects:  make(map[string]Project),
		agentDefs: make(map[string]AgentDefinition),
		mcpTools:  make(map[string]MCPTool),
		nudges:    make(map[string]Nudge),
		skills:    make(map[string]Skill),
		threads:   make(map[string]Thread),
		messages:  make(map[string]Message),
		convMeta:  make(map[string]ConversationMetadata),
		reports:   make(map[string]Report),
		lessons:   make(map[string]AgentLesson),
		statuses:  make(map[string]ProjectStatus),
		backing:   backing,
		changes:   make(chan ingest.DataChange, 256),
		done:      make(chan struct{}),
	}
}

// Changes returns the DataChange stream DomainProjection re-emits to
// frontends after its own state is updated (spec 2's data-flow diagram:
// ... -> DomainProjection -> DataChange channel -> frontends).
func (s *Store) Changes() <-chan ingest.DataChange {
	return s.changes
}

// Backfill derives entities from every event already in the backing
// store, in ascending created_at order, before Start begins consuming
// live updates.
func (s *Store) Backfill(ctx context.Context) error {
	events, err := s.backing.Query(ctx, eventstore.Filter{Kinds: projectedKinds})
	if err != nil {
		return err
	}
	for i := len(events) - 1; i >= 0; i-- { // Query is descending; apply oldest first
		s.apply(events[i])
	}
	return nil
}

// Start subscribes to the backing store and applies every newly
// ingested event of interest, forwarding a DataChange notification
// for each.
func (s *Store) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	sub, unsubscribe := s.backing.Subscribe(ctx, eventstore.Filter{Kinds: projectedKinds})

	go func() {
		defer close(s.done)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-sub:
				if !ok {
					return
				}
				s.apply(event)
				s.emit(event)
			}
		}
	}()
}

// Close stops the subscription loop.
func (s *Store) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
	close(s.changes)
}

func (s *Store) emit(event nostr.Event) {
	for _, c := range changesForProjection(event) {
		select {
		case s.changes <- c:
		default:
			log.Printf("[projection] DataChange channel full, dropping %T", c)
		}
	}
}

// changesForProjection mirrors ingest's own kind dispatch so projection
// consumers observe the same notification shape regardless of whether
// they subscribe to the pipeline or the projection.
func changesForProjection(event nostr.Event) []ingest.DataChange {
	return ingest.ChangesFor(event)
}

func (s *Store) apply(event nostr.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch int(event.Kind) {
	case gtnostr.KindProfile:
		s.applyProfile(event)
	case gtnostr.KindProject:
		s.applyProject(event)
	case gtnostr.KindAgentDef:
		s.applyAgentDef(event)
	case gtnostr.KindMCPTool:
		s.applyMCPTool(event)
	case gtnostr.KindNudge:
		s.applyNudge(event)
	case gtnostr.KindSkill:
		s.applySkill(event)
	case gtnostr.KindThreadRoot, gtnostr.KindChannelMessage:
		s.applyThreadOrMessage(event)
	case gtnostr.KindConvMetadata:
		s.applyConvMetadata(event)
	case gtnostr.KindReport:
		s.applyReport(event)
	case gtnostr.KindAgentLesson:
		s.applyAgentLesson(event)
	case gtnostr.KindProjectStatus:
		s.applyProjectStatus(event)
	}
}

func (s *Store) applyProfile(event nostr.Event) {
	var body struct {
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
		About       string `json:"about"`
		Picture     string `json:"picture"`
	}
	_ = json.Unmarshal([]byte(event.Content), &body)

	pk := gtnostr.PubKeyToString(event.PubKey)
	existing, ok := s.profiles[pk]
	if ok && existing.CreatedAt > int64(event.CreatedAt) {
		return
	}
	s.profiles[pk] = Profile{
		Pubkey:      pk,
		Name:        body.Name,
		DisplayName: body.DisplayName,
		About:       body.About,
		Picture:     body.Picture,
		CreatedAt:   int64(event.CreatedAt),
	}
}

func (s *Store) applyProject(event nostr.Event) {
	var body struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		RepoURL     string `json:"repo_url"`
		PictureURL  string `json:"picture_url"`
	}
	_ = json.Unmarshal([]byte(event.Content), &body)

	dTag, _ := tagValue(event, "d")
	pk := gtnostr.PubKeyToString(event.PubKey)
	coord := gtnostr.Coordinate(gtnostr.KindProject, pk, dTag)

	if existing, ok := s.projects[coord]; ok && existing.CreatedAt > int64(event.CreatedAt) {
		return
	}

	s.projects[coord] = Project{
		Coordinate:   coord,
		DTag:         dTag,
		AuthorPubkey: pk,
		Title:        body.Title,
		Description:  body.Description,
		RepoURL:      body.RepoURL,
		PictureURL:   body.PictureURL,
		AgentDefIDs:  tagValues(event, "agent"),
		MCPToolIDs:   tagValues(event, "mcp"),
		Participants: tagValues(event, "p"),
		CreatedAt:    int64(event.CreatedAt),
	}
}

func (s *Store) applyAgentDef(event nostr.Event) {
	id := gtnostr.IDToString(event.ID)
	dTag, _ := tagValue(event, "d")
	title, _ := tagValue(event, "title")
	role, _ := tagValue(event, "role")
	description, _ := tagValue(event, "description")
	category, _ := tagValue(event, "category")
	version, _ := tagValue(event, "ver")

	s.agentDefs[id] = AgentDefinition{
		ID:           id,
		DTag:         dTag,
		Title:        title,
		Role:         role,
		Description:  description,
		Category:     category,
		Version:      version,
		Instructions: tagValues(event, "instructions"),
		UseCriteria:  tagValues(event, "use-criteria"),
		Tools:        tagValues(event, "tool"),
		MCPServers:   tagValues(event, "mcp-server"),
		MarkdownBody: event.Content,
		CreatedAt:    int64(event.CreatedAt),
	}
}

func (s *Store) applyMCPTool(event nostr.Event) {
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Endpoint    string `json:"endpoint"`
	}
	_ = json.Unmarshal([]byte(event.Content), &body)

	dTag, _ := tagValue(event, "d")
	pk := gtnostr.PubKeyToString(event.PubKey)
	coord := gtnostr.Coordinate(gtnostr.KindReport, pk, dTag) // coordinate-shaped per spec 3.2

	if existing, ok := s.mcpTools[coord]; ok && existing.CreatedAt > int64(event.CreatedAt) {
		return
	}
	s.mcpTools[coord] = MCPTool{
		Coordinate:  coord,
		Name:        body.Name,
		Description: body.Description,
		Endpoint:    body.Endpoint,
		CreatedAt:   int64(event.CreatedAt),
	}
}

func (s *Store) applyNudge(event nostr.Event) {
	dTag, _ := tagValue(event, "d")
	pk := gtnostr.PubKeyToString(event.PubKey)
	coord := gtnostr.Coordinate(gtnostr.KindNudge, pk, dTag)
	if existing, ok := s.nudges[coord]; ok && existing.CreatedAt > int64(event.CreatedAt) {
		return
	}
	title, body := splitDefContent(event.Content)
	s.nudges[coord] = Nudge{Coordinate: coord, Title: title, Body: body, CreatedAt: int64(event.CreatedAt)}
}

func (s *Store) applySkill(event nostr.Event) {
	dTag, _ := tagValue(event, "d")
	pk := gtnostr.PubKeyToString(event.PubKey)
	coord := gtnostr.Coordinate(gtnostr.KindSkill, pk, dTag)
	if existing, ok := s.skills[coord]; ok && existing.CreatedAt > int64(event.CreatedAt) {
		return
	}
	title, body := splitDefContent(event.Content)
	s.skills[coord] = Skill{Coordinate: coord, Title: title, Body: body, CreatedAt: int64(event.CreatedAt)}
}

func (s *Store) applyThreadOrMessage(event nostr.Event) {
	idHex := gtnostr.IDToString(event.ID)
	rootIDHex, hasRoot, isReply, replyIDHex := threadRefs(event)

	if !hasRoot {
		// Thread root: title/project/participants.
		title, ok := tagValue(event, "title")
		if !ok {
			title, ok = tagValue(event, "subject")
		}
		if !ok {
			title = firstLine(event.Content)
		}
		projectCoord, _ := tagValue(event, "a")
		parentConvID, _ := tagValue(event, "delegate")

		existing, already := s.threads[idHex]
		created := int64(event.CreatedAt)
		if already && created <= existing.LastActivity {
			created = existing.LastActivity
		}
		s.threads[idHex] = Thread{
			ID:                   idHex,
			AuthorPubkey:         gtnostr.PubKeyToString(event.PubKey),
			Title:                title,
			LastActivity:         created,
			ProjectCoord:         projectCoord,
			Participants:         tagValues(event, "p"),
			ParentConversationID: parentConvID,
			CreatedAt:            int64(event.CreatedAt),
		}
		return
	}

	// Message within an existing thread.
	replyTo := ""
	if isReply {
		replyTo = replyIDHex
	}
	_, reasoning := tagValue(event, "reasoning")
	toolName, _ := tagValue(event, "tool")
	toolArgs, _ := tagValue(event, "tool-args")

	s.messages[idHex] = Message{
		ID:           idHex,
		ThreadID:     rootIDHex,
		ReplyToID:    replyTo,
		AuthorPubkey: gtnostr.PubKeyToString(event.PubKey),
		Content:      event.Content,
		Reasoning:    reasoning,
		ToolName:     toolName,
		ToolArgsJSON: toolArgs,
		CreatedAt:    int64(event.CreatedAt),
	}

	if thread, ok := s.threads[rootIDHex]; ok {
		if int64(event.CreatedAt) > thread.LastActivity {
			thread.LastActivity = int64(event.CreatedAt)
			s.threads[rootIDHex] = thread
		}
	}
}

func (s *Store) applyConvMetadata(event nostr.Event) {
	rootIDHex, hasRoot, _, _ := threadRefs(event)
	if !hasRoot {
		return
	}
	var body struct {
		Title           string `json:"title"`
		StatusLabel     string `json:"status_label"`
		CurrentActivity string `json:"current_activity"`
	}
	_ = json.Unmarshal([]byte(event.Content), &body)

	if existing, ok := s.convMeta[rootIDHex]; ok && existing.CreatedAt > int64(event.CreatedAt) {
		return
	}
	s.convMeta[rootIDHex] = ConversationMetadata{
		ThreadID:        rootIDHex,
		Title:           body.Title,
		StatusLabel:     body.StatusLabel,
		CurrentActivity: body.CurrentActivity,
		CreatedAt:       int64(event.CreatedAt),
	}
	if thread, ok := s.threads[rootIDHex]; ok {
		thread.StatusLabel = body.StatusLabel
		thread.CurrentActivity = body.CurrentActivity
		if body.Title != "" {
			thread.Title = body.Title
		}
		s.threads[rootIDHex] = thread
	}
}

func (s *Store) applyReport(event nostr.Event) {
	dTag, _ := tagValue(event, "d")
	pk := gtnostr.PubKeyToString(event.PubKey)
	coord := gtnostr.Coordinate(gtnostr.KindReport, pk, dTag)
	if existing, ok := s.reports[coord]; ok && existing.CreatedAt > int64(event.CreatedAt) {
		return
	}
	title, _ := tagValue(event, "title")
	summary, _ := tagValue(event, "summary")
	projectCoord, _ := tagValue(event, "a")

	s.reports[coord] = Report{
		Coordinate:   coord,
		DTag:         dTag,
		AuthorPubkey: pk,
		Title:        title,
		Summary:      summary,
		MarkdownBody: event.Content,
		ProjectCoord: projectCoord,
		CreatedAt:    int64(event.CreatedAt),
	}
}

func (s *Store) applyAgentLesson(event nostr.Event) {
	var body struct {
		Lesson string `json:"lesson"`
	}
	_ = json.Unmarshal([]byte(event.Content), &body)

	agentDefID, _ := tagValue(event, "e")
	id := gtnostr.IDToString(event.ID)
	s.lessons[id] = AgentLesson{
		ID:         id,
		AgentDefID: agentDefID,
		Lesson:     body.Lesson,
		CreatedAt:  int64(event.CreatedAt),
	}
}

func (s *Store) applyProjectStatus(event nostr.Event) {
	var body struct {
		OnlineAgents []string          `json:"online_agents"`
		Assignments  map[string]string `json:"assignments"`
	}
	_ = json.Unmarshal([]byte(event.Content), &body)

	dTag, _ := tagValue(event, "d")
	if existing, ok := s.statuses[dTag]; ok && existing.CreatedAt > int64(event.CreatedAt) {
		return
	}
	s.statuses[dTag] = ProjectStatus{
		ProjectDTag:  dTag,
		OnlineAgents: body.OnlineAgents,
		Assignments:  body.Assignments,
		CreatedAt:    int64(event.CreatedAt),
	}
}

// --- Snapshot accessors (return copies; callers never see internal maps) ---

func (s *Store) Profile(pubkey string) (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[pubkey]
	return p, ok
}

func (s *Store) Projects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	return out
}

func (s *Store) Thread(id string) (Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[id]
	return t, ok
}

func (s *Store) ThreadsByProject(projectCoord string) []Thread {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Thread
	for _, t := range s.threads {
		if t.ProjectCoord == projectCoord {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) MessagesByThread(threadID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Message
	for _, m := range s.messages {
		if m.ThreadID == threadID {
			out = append(out, m)
		}
	}
	return out
}

func (s *Store) AgentDefinitions() []AgentDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]AgentDefinition, 0, len(s.agentDefs))
	for _, a := range s.agentDefs {
		out = append(out, a)
	}
	return out
}

func (s *Store) Skills() []Skill {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Skill, 0, len(s.skills))
	for _, sk := range s.skills {
		out = append(out, sk)
	}
	return out
}

func (s *Store) Nudges() []Nudge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Nudge, 0, len(s.nudges))
	for _, n := range s.nudges {
		out = append(out, n)
	}
	return out
}

func (s *Store) ProjectStatusFor(dTag string) (ProjectStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[dTag]
	return st, ok
}

// Reports returns every report, or only those whose ProjectCoord is in
// visibleProjects when it's non-empty. Spec §9 leaves "visible
// projects" an opaque, caller-owned set (a UI preference in the
// original source) that DomainProjection doesn't interpret itself —
// it's membership-tested here exactly as given, never derived.
func (s *Store) Reports(visibleProjects map[string]struct{}) []Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Report, 0, len(s.reports))
	for _, r := range s.reports {
		if len(visibleProjects) > 0 {
			if _, ok := visibleProjects[r.ProjectCoord]; !ok {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

// --- tag helpers ---

func tagValue(event nostr.Event, name string) (string, bool) {
	for _, tag := range event.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1], true
		}
	}
	return "", false
}

func tagValues(event nostr.Event, name string) []string {
	var out []string
	for _, tag := range event.Tags {
		if len(tag) >= 2 && tag[0] == name {
			out = append(out, tag[1])
		}
	}
	return out
}

// threadRefs extracts the root/reply "e" tag references for a kind-1/11
// event. hasRoot is false for a genuine thread root.
func threadRefs(event nostr.Event) (rootIDHex string, hasRoot bool, isReply bool, replyIDHex string) {
	for _, tag := range event.Tags {
		if len(tag) >= 1 && tag[0] == "e" {
			marker := ""
			if len(tag) >= 4 {
				marker = tag[3]
			}
			switch marker {
			case "root":
				rootIDHex, hasRoot = tag[1], true
			case "reply":
				replyIDHex, isReply = tag[1], true
			}
		}
	}
	return
}

func splitDefContent(content string) (title string, body string) {
	var header struct {
		Title string `json:"title"`
	}
	nl := indexByte(content, '\n')
	if nl < 0 {
		_ = json.Unmarshal([]byte(content), &header)
		return header.Title, ""
	}
	_ = json.Unmarshal([]byte(content[:nl]), &header)
	return header.Title, content[nl+1:]
}

func firstLine(content string) string {
	if i := indexByte(content, '\n'); i >= 0 {
		return content[:i]
	}
	return content
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
