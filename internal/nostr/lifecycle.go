package nostr

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultProjectStatusInterval is how often a ProjectStatus heartbeat
// (kind 24010, ephemeral) is republished while a project is active.
const DefaultProjectStatusInterval = 30 * time.Second

// StatusStaleMultiplier is the number of missed heartbeats before a
// project's online-agent set is considered stale by a reader.
const StatusStaleMultiplier = 3

// PresencePublisher periodically republishes a project's ProjectStatus
// event so viewers can tell which agents are currently online and what
// they're assigned to, without requiring a persisted status entity.
type PresencePublisher struct {
	publisher   *Publisher
	projectDTag string
	interval    time.Duration

	mu          sync.Mutex
	onlineAgents []string
	assignments  map[string]string

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPresencePublisher creates a presence publisher for one project.
func NewPresencePublisher(publisher *Publisher, projectDTag string) *PresencePublisher {
	return &PresencePublisher{
		publisher:    publisher,
		projectDTag:  projectDTag,
		interval:     DefaultProjectStatusInterval,
		assignments:  make(map[string]string),
		done:         make(chan struct{}),
	}
}

// Start begins periodic ProjectStatus publishing.
func (p *PresencePublisher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.publish(ctx)

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.publish(ctx)
			}
		}
	}()
}

// Stop cancels the heartbeat loop and waits for it to exit.
func (p *PresencePublisher) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	select {
	case <-p.done:
	case <-time.After(5 * time.Second):
	}
}

// SetOnline replaces the set of currently-online agent pubkeys.
func (p *PresencePublisher) SetOnline(pubkeys []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onlineAgents = pubkeys
}

// SetAssignment records which model an agent pubkey is currently running.
func (p *PresencePublisher) SetAssignment(pubkey, model string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assignments[pubkey] = model
}

// ClearAssignment removes an agent's model assignment.
func (p *PresencePublisher) ClearAssignment(pubkey string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.assignments, pubkey)
}

func (p *PresencePublisher) publish(ctx context.Context) {
	p.mu.Lock()
	online := append([]string{}, p.onlineAgents...)
	assignments := make(map[string]string, len(p.assignments))
	for k, v := range p.assignments {
		assignments[k] = v
	}
	p.mu.Unlock()

	event, err := NewProjectStatusEvent(ProjectStatusParams{
		ProjectDTag:  p.projectDTag,
		OnlineAgents: online,
		Assignments:  assignments,
	})
	if err != nil {
		log.Printf("[nostr/presence] building status event: %v", err)
		return
	}

	if err := p.publisher.Publish(ctx, event); err != nil {
		log.Printf("[nostr/presence] publishing status: %v", err)
	}
}

// StaleAfter returns how long without a fresh ProjectStatus event before
// a project's presence is considered stale.
func StaleAfter(interval time.Duration) time.Duration {
	if interval <= 0 {
		interval = DefaultProjectStatusInterval
	}
	return interval * StatusStaleMultiplier
}
