// Package responses implements ResponsesServer: the HTTP/SSE surface
// that maps an external chat-completion-shaped request onto a posted
// Nostr event and streams the agent's reply back as an OpenAI
// Responses API-shaped SSE sequence (spec 4.8). Its listen/serve/
// graceful-shutdown shape is the standard net/http pattern: a plain
// http.Server with ListenAndServe run in a goroutine and Shutdown
// called on context cancellation.
package responses

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tenex-go/tenexcore/internal/eventstore"
	gtnostr "github.com/tenex-go/tenexcore/internal/nostr"
	"github.com/tenex-go/tenexcore/internal/projection"
	"github.com/tenex-go/tenexcore/internal/runtime"
)

const (
	// DefaultBindAddress is spec 4.8: "Binds to 127.0.0.1:3000 by default".
	DefaultBindAddress = "127.0.0.1:3000"

	// DefaultShutdownTimeout bounds how long Shutdown waits for
	// in-flight SSE streams to drain before Start returns.
	DefaultShutdownTimeout = 10 * time.Second

	// idleTimeout is spec 5's "HTTP/SSE idle timeout 60s (reset on each delta)".
	idleTimeout = 60 * time.Second

	responseIDPrefix = "resp_"
)

// Server is the ResponsesServer. It has no authentication of its own
// (spec 4.8: "operator is responsible for network placement").
type Server struct {
	addr   string
	facade *runtime.CommandFacade
	proj   *projection.Store
	store  eventstore.Store

	httpServer *http.Server
	started    bool
}

// NewServer wires a ResponsesServer. facade issues the commands that
// post events; proj and store are read directly, the same objects
// CoreRuntime holds, since reads bypass CommandFacade by design (spec
// 4.7: the facade serializes mutating commands, not queries).
func NewServer(addr string, facade *runtime.CommandFacade, proj *projection.Store, store eventstore.Store) *Server {
	if addr == "" {
		addr = DefaultBindAddress
	}
	return &Server{addr: addr, facade: facade, proj: proj, store: store}
}

// Start begins serving. It blocks until the context is canceled or
// the server fails to bind.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleResponses)

	s.httpServer = &http.Server{
		Addr:        s.addr,
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: idleTimeout,
	}
	s.started = true
	log.Printf("[responses] listening on %s", s.addr)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("responses server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if !s.started || s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	s.started = false
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the server's listen address.
func (s *Server) Addr() string { return s.addr }

type responsesRequest struct {
	Input              json.RawMessage `json:"input"`
	Stream             bool            `json:"stream"`
	PreviousResponseID string          `json:"previous_response_id"`
	Instructions       string          `json:"instructions"`
}

// handleResponses implements POST /{project-d-tag}/responses (spec 4.8).
func (s *Server) handleResponses(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	log.Printf("[responses] %s request %s %s", requestID, r.Method, r.URL.Path)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	dTag := strings.TrimSuffix(strings.Trim(r.URL.Path, "/"), "/responses")

	var req responsesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if !req.Stream {
		http.Error(w, "non-streaming responses are not implemented", http.StatusNotImplemented)
		return
	}

	text, err := extractInputText(req.Input)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	project, ok := s.findProject(dTag)
	if !ok {
		http.Error(w, "project not found", http.StatusNotFound)
		return
	}

	agentPubkey, ok := s.findOnlinePM(dTag)
	if !ok {
		http.Error(w, "no agent online for this project", http.StatusServiceUnavailable)
		return
	}

	eventID, threadID, err := s.postInput(r.Context(), project, agentPubkey, req.PreviousResponseID, text)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	s.streamReplies(w, r, eventID, threadID)
}

func (s *Server) findProject(dTag string) (projection.Project, bool) {
	for _, p := range s.proj.Projects() {
		if p.DTag == dTag {
			return p, true
		}
	}
	return projection.Project{}, false
}

// findOnlinePM selects the PM agent from the latest kind-24010
// project-status event (spec 4.8 step 2): the online agent whose
// assignment is "pm".
func (s *Server) findOnlinePM(dTag string) (string, bool) {
	status, ok := s.proj.ProjectStatusFor(dTag)
	if !ok {
		return "", false
	}
	for _, agent := range status.OnlineAgents {
		if strings.EqualFold(status.Assignments[agent], "pm") {
			return agent, true
		}
	}
	return "", false
}

// postInput publishes the kind-1 text event (spec 4.8 step 3) and
// returns its id plus the thread id it belongs to. A previous_response_id
// reopens that thread as a reply; otherwise a new thread root is posted.
func (s *Server) postInput(ctx context.Context, project projection.Project, agentPubkey, previousResponseID, text string) (eventID, threadID string, err error) {
	if previousResponseID != "" {
		threadID = strings.TrimPrefix(previousResponseID, responseIDPrefix)
		eventID, err = s.facade.SendMessage(ctx, threadID, "", text, agentPubkey)
		return eventID, threadID, err
	}

	eventID, err = s.facade.SendThread(ctx, project.AuthorPubkey, project.DTag, "", text, agentPubkey, nil, nil)
	return eventID, eventID, err
}

func extractInputText(raw json.RawMessage) (string, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}

	var items []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}

	var b strings.Builder
	for _, item := range items {
		if item.Role != "" && item.Role != "user" {
			continue
		}

		var asText string
		if err := json.Unmarshal(item.Content, &asText); err == nil {
			b.WriteString(asText)
			continue
		}

		var parts []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(item.Content, &parts); err == nil {
			for _, p := range parts {
				if p.Type == "input_text" {
					b.WriteString(p.Text)
				}
			}
		}
	}
	return b.String(), nil
}

// gtnostrKindsForReply are the kinds a reply to the posted event can
// arrive as.
var gtnostrKindsForReply = []int{gtnostr.KindThreadRoot, gtnostr.KindChannelMessage}
