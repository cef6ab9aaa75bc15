// Package bunker implements BunkerService, the NIP-46 remote-signer
// session manager (spec 4.6): it receives inbound signing requests
// over the event log, applies auto-approval rules or waits on a user
// decision, and replies with a signed event.
package bunker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"fiatjaf.com/nostr"
	"github.com/google/uuid"

	"github.com/tenex-go/tenexcore/internal/corerr"
	"github.com/tenex-go/tenexcore/internal/diag"
	"github.com/tenex-go/tenexcore/internal/eventstore"
	gtnostr "github.com/tenex-go/tenexcore/internal/nostr"
)

// RequestState is a pending request's position in the approval state
// machine (spec 4.6 table).
type RequestState int

const (
	StatePending RequestState = iota
	StateAutoApproved
	StateUserApproved
	StateDenied
	StateCompleted
)

func (s RequestState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateAutoApproved:
		return "auto-approved"
	case StateUserApproved:
		return "user-approved"
	case StateDenied:
		return "denied"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// AutoApproveRule matches requests that should sign without prompting.
// EventKind nil means "any kind". Rules are never inferred; they're
// only added by explicit user action (spec 4.6).
type AutoApproveRule struct {
	ID              string
	RequesterPubkey string
	EventKind       *int
}

// AuditEntry records one approval decision. The service keeps at most
// auditCapacity entries, oldest first dropped.
type AuditEntry struct {
	ID              string
	Time            time.Time
	RequesterPubkey string
	EventKind       int
	Decision        RequestState
	RuleID          string
}

const auditCapacity = 1000

// Request is one inbound sign_event request awaiting or past
// disposition.
type Request struct {
	ID              string
	RPCID           string // the inbound JSON-RPC "id", echoed back in the reply for correlation
	RequesterPubkey string
	EventKind       int
	EventJSON       string
	EventContent    string
	EventTagsJSON   string
	Publish         bool
	State           RequestState
	CreatedAt       time.Time
}

// Session tracks one requester pubkey's NIP-46 connection.
type Session struct {
	RequesterPubkey string
	FirstSeen       time.Time
	LastSeen        time.Time
}

// Service is BunkerService: the NIP-46 remote-signer state machine.
type Service struct {
	signer gtnostr.Signer
	pool   *gtnostr.RelayPool
	store  eventstore.Store
	diag   *diag.Channel

	mu       sync.Mutex
	rules    []AutoApproveRule
	pending  map[string]*Request
	sessions map[string]*Session
	audit    []AuditEntry
	running  bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a BunkerService. store is the event log to watch for
// inbound kind-24133 requests (spec 4.6); pool publishes replies.
func New(signer gtnostr.Signer, pool *gtnostr.RelayPool, store eventstore.Store, diagCh *diag.Channel) *Service {
	return &Service{
		signer:   signer,
		pool:     pool,
		store:    store,
		diag:     diagCh,
		pending:  make(map[string]*Request),
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}
}

// AddAutoApproveRule registers a rule by explicit user action.
func (s *Service) AddAutoApproveRule(rule AutoApproveRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule)
}

// RemoveRule deletes the rule matching requesterPubkey and kind exactly
// (including "any kind" rules, identified by kind -1). Matching a rule
// by its ID directly is also supported via RemoveRuleByID.
func (s *Service) RemoveRule(requesterPubkey string, kind int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.rules[:0]
	for _, r := range s.rules {
		match := r.RequesterPubkey == requesterPubkey &&
			((r.EventKind == nil && kind == -1) || (r.EventKind != nil && *r.EventKind == kind))
		if !match {
			out = append(out, r)
		}
	}
	s.rules = out
}

// RemoveRuleByID deletes the rule with the given ID, if any.
func (s *Service) RemoveRuleByID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.rules[:0]
	for _, r := range s.rules {
		if r.ID != id {
			out = append(out, r)
		}
	}
	s.rules = out
}

// Rules returns a snapshot copy of the current auto-approve rules.
func (s *Service) Rules() []AutoApproveRule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AutoApproveRule, len(s.rules))
	copy(out, s.rules)
	return out
}

// RevokeSession destroys a requester's session record. Auto-approve
// rules are not touched: a later request from the same requester opens
// a new session and is still matched against the standing rules.
func (s *Service) RevokeSession(requesterPubkey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, requesterPubkey)
}

// Start subscribes to inbound bunker requests addressed to this
// signer's pubkey and dispatches each to the approval pipeline.
func (s *Service) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	pubkey := s.signer.GetPublicKey()
	sub, unsubscribe := s.store.Subscribe(ctx, eventstore.Filter{
		Kinds: []int{gtnostr.KindBunkerRequest},
		Tags:  map[string][]string{"p": {pubkey}},
	})

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
				s.handleInbound(ctx, event)
			}
		}
	}()
}

// Stop halts the subscription loop.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// Running reports whether the inbound-request subscription loop is
// currently active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Service) handleInbound(ctx context.Context, event nostr.Event) {
	requester := gtnostr.PubKeyToString(event.PubKey)

	payload, err := decodeRequestPayload(event.Content)
	if err != nil {
		s.diag.Error(corerr.KindInputValidation, "bunker: malformed request from "+requester+": "+err.Error())
		return
	}
	if payload.Method != "sign_event" {
		return
	}
	s.diag.BunkerRequest()

	req := &Request{
		ID:              gtnostr.IDToString(event.ID),
		RPCID:           payload.RPCID,
		RequesterPubkey: requester,
		EventKind:       payload.EventKind,
		EventJSON:       payload.EventJSON,
		EventContent:    payload.EventContent,
		EventTagsJSON:   payload.EventTagsJSON,
		Publish:         payload.Publish,
		State:           StatePending,
		CreatedAt:       time.Now(),
	}

	s.touchSession(requester)

	if rule, ok := s.findRule(requester, payload.EventKind); ok {
		req.State = StateAutoApproved
		s.recordAudit(req, rule.ID)
		s.complete(ctx, req)
		return
	}

	s.mu.Lock()
	s.pending[req.ID] = req
	s.mu.Unlock()
}

func (s *Service) touchSession(requester string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	sess, ok := s.sessions[requester]
	if !ok {
		s.sessions[requester] = &Session{RequesterPubkey: requester, FirstSeen: now, LastSeen: now}
		return
	}
	sess.LastSeen = now
}

// findRule applies spec 4.6's lookup order: exact (requester, kind)
// wins, then (requester, any), else no match.
func (s *Service) findRule(requester string, kind int) (AutoApproveRule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var anyKindMatch *AutoApproveRule
	for i := range s.rules {
		r := s.rules[i]
		if r.RequesterPubkey != requester {
			continue
		}
		if r.EventKind != nil && *r.EventKind == kind {
			return r, true
		}
		if r.EventKind == nil && anyKindMatch == nil {
			anyKindMatch = &s.rules[i]
		}
	}
	if anyKindMatch != nil {
		return *anyKindMatch, true
	}
	return AutoApproveRule{}, false
}

// PendingRequests lists requests awaiting a user decision.
func (s *Service) PendingRequests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, 0, len(s.pending))
	for _, r := range s.pending {
		if r.State == StatePending {
			out = append(out, *r)
		}
	}
	return out
}

// Approve transitions a pending request to UserApproved and signs it.
func (s *Service) Approve(ctx context.Context, requestID string) bool {
	s.mu.Lock()
	req, ok := s.pending[requestID]
	if !ok || req.State != StatePending {
		s.mu.Unlock()
		return false
	}
	req.State = StateUserApproved
	s.mu.Unlock()

	s.recordAudit(req, "")
	s.complete(ctx, req)
	return true
}

// Deny transitions a pending request to Denied, a terminal state.
func (s *Service) Deny(requestID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.pending[requestID]
	if !ok || req.State != StatePending {
		return false
	}
	req.State = StateDenied
	delete(s.pending, requestID)
	s.recordAuditLocked(req, "")
	return true
}

func (s *Service) recordAudit(req *Request, ruleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordAuditLocked(req, ruleID)
}

func (s *Service) recordAuditLocked(req *Request, ruleID string) {
	entry := AuditEntry{
		ID:              uuid.NewString(),
		Time:            time.Now(),
		RequesterPubkey: req.RequesterPubkey,
		EventKind:       req.EventKind,
		Decision:        req.State,
		RuleID:          ruleID,
	}
	s.audit = append(s.audit, entry)
	if len(s.audit) > auditCapacity {
		s.audit = s.audit[len(s.audit)-auditCapacity:]
	}
}

// AuditLog returns a copy of the capped audit ring buffer.
func (s *Service) AuditLog() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}

// complete signs the request's event, publishes the NIP-46 reply (and
// the signed event itself, if requested), and marks the request
// Completed (spec 4.6 state table).
func (s *Service) complete(ctx context.Context, req *Request) {
	event, err := parseEventJSON(req.EventJSON)
	if err != nil {
		s.diag.Error(corerr.KindInputValidation, "bunker: request "+req.ID+" carries no usable event payload: "+err.Error())
		s.finish(req, StateDenied)
		return
	}

	if err := s.signer.Sign(ctx, event); err != nil {
		s.diag.Error(corerr.KindRemoteSigner, "bunker: signing request "+req.ID+" failed: "+err.Error())
		s.finish(req, StateDenied)
		return
	}

	reply := buildReplyEvent(s.signer.GetPublicKey(), req.RequesterPubkey, req.RPCID, event)
	if err := s.signer.Sign(ctx, &reply); err != nil {
		s.diag.Error(corerr.KindRemoteSigner, "bunker: signing reply for "+req.ID+" failed: "+err.Error())
		return
	}
	if _, err := s.pool.Publish(ctx, reply); err != nil {
		s.diag.Error(corerr.KindRelay, "bunker: publishing reply for "+req.ID+" failed: "+err.Error())
	}

	if req.Publish {
		if _, err := s.pool.Publish(ctx, *event); err != nil {
			s.diag.Error(corerr.KindRelay, "bunker: publishing signed event for "+req.ID+" failed: "+err.Error())
		}
	}

	s.finish(req, StateCompleted)
}

func (s *Service) finish(req *Request, state RequestState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req.State = state
	delete(s.pending, req.ID)
}

// requestPayload is the decoded body of an inbound NIP-46 sign_event
// request. Wire-level encryption (NIP-44, per spec 4.6 "requests/
// responses are encrypted direct messages") is not implemented:
// event.Content is read as the JSON-RPC payload directly.
type requestPayload struct {
	RPCID         string
	Method        string
	EventKind     int
	EventJSON     string
	EventContent  string
	EventTagsJSON string
	Publish       bool
}

type jsonRPCRequest struct {
	ID     string   `json:"id"`
	Method string   `json:"method"`
	Params []string `json:"params"`
}

// decodeRequestPayload parses the JSON-RPC envelope per spec 4.6's NIP-46
// payload schema: params[0] is the full event JSON (its "kind" sets
// EventKind) and params[1] == "publish" sets Publish. The legacy
// EventContent/EventTagsJSON fields are not filled from the envelope.
func decodeRequestPayload(content string) (requestPayload, error) {
	var rpc jsonRPCRequest
	if err := json.Unmarshal([]byte(content), &rpc); err != nil {
		return requestPayload{}, err
	}

	payload := requestPayload{RPCID: rpc.ID, Method: rpc.Method}
	if len(rpc.Params) > 0 {
		payload.EventJSON = rpc.Params[0]
	}
	if len(rpc.Params) > 1 && rpc.Params[1] == "publish" {
		payload.Publish = true
	}

	if payload.EventJSON != "" {
		var ev struct {
			Kind int `json:"kind"`
		}
		if err := json.Unmarshal([]byte(payload.EventJSON), &ev); err == nil {
			payload.EventKind = ev.Kind
		}
	}

	return payload, nil
}

func parseEventJSON(eventJSON string) (*nostr.Event, error) {
	var event nostr.Event
	if err := json.Unmarshal([]byte(eventJSON), &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// buildReplyEvent wraps the signed event's id back into a NIP-46
// response addressed to the requester. The reply echoes the inbound
// request's JSON-RPC id so the requester can correlate it with its own
// outstanding call.
func buildReplyEvent(signerPubkey, requesterPubkey, rpcID string, signed *nostr.Event) nostr.Event {
	body, _ := json.Marshal(struct {
		ID     string `json:"id"`
		Result string `json:"result"`
	}{ID: rpcID, Result: gtnostr.IDToString(signed.ID)})

	return nostr.Event{
		Kind:      gtnostr.KindBunkerRequest,
		Content:   string(body),
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Tags: nostr.Tags{
			nostr.Tag{"p", requesterPubkey},
		},
	}
}
