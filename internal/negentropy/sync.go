// Package negentropy runs the periodic reconciliation loop that closes
// gaps left by live relay subscriptions (spec section 4.4). It issues
// a bounded query per configured filter each cycle and adapts its
// interval to observed activity.
//
// The wire-level NEG-OPEN/NEG-MSG/NEG-CLOSE set-reconciliation
// extension is out of scope here (spec's relay wire framing is an
// assumed dependency, section 1 Non-goals): each cycle instead issues
// a bounded REQ-style fetch per filter through RelayPool.QueryOnce and
// lets EventStore's own idempotent Ingest absorb anything already
// known, which is observably equivalent from IngestPipeline's point of
// view and is the same fallback path the rest of the ecosystem uses
// when a relay doesn't speak the negentropy extension.
package negentropy

import (
	"context"
	"sync"
	"time"

	"fiatjaf.com/nostr"

	"github.com/tenex-go/tenexcore/internal/corerr"
	"github.com/tenex-go/tenexcore/internal/diag"
	"github.com/tenex-go/tenexcore/internal/eventstore"
	gtnostr "github.com/tenex-go/tenexcore/internal/nostr"
)

const (
	minInterval  = 60 * time.Second
	maxInterval  = 900 * time.Second
	cycleTimeout = 120 * time.Second // spec 5: negentropy cycle bounded by 120s
)

// ProjectLookup resolves the a-tag coordinates of the user's own
// projects, used to bound the kind-1 message filter (spec 4.4:
// "messages (1) constrained by a-tag of user's project list").
type ProjectLookup func() []string

// Syncer runs the adaptive reconciliation loop.
type Syncer struct {
	pool    *gtnostr.RelayPool
	store   eventstore.Store
	diag    *diag.Channel
	ownerPK string
	projects ProjectLookup

	mu       sync.Mutex
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Syncer. ownerPubkeyHex scopes the "authored projects"
// filter to the logged-in user; projects resolves the current project
// list for the message filter.
func New(pool *gtnostr.RelayPool, store eventstore.Store, diagCh *diag.Channel, ownerPubkeyHex string, projects ProjectLookup) *Syncer {
	return &Syncer{
		pool:     pool,
		store:    store,
		diag:     diagCh,
		ownerPK:  ownerPubkeyHex,
		projects: projects,
		interval: minInterval,
		done:     make(chan struct{}),
	}
}

// Start begins the adaptive loop. Ephemeral kinds (24010) are never
// reconciled here; they're handled by live subscription in RelayPool.
func (s *Syncer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go func() {
		defer close(s.done)
		for {
			s.mu.Lock()
			wait := s.interval
			s.mu.Unlock()

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			inserted := s.runCycle(ctx)
			s.adapt(inserted)
		}
	}()
}

// RunOnce runs a single reconciliation cycle immediately and adapts the
// interval from its result, independent of the running ticker. Used by
// CoreRuntime's on-demand Sync() command (spec 4.7).
func (s *Syncer) RunOnce(ctx context.Context) int {
	inserted := s.runCycle(ctx)
	s.adapt(inserted)
	return inserted
}

// Stop halts the loop.
func (s *Syncer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

// Interval returns the current adaptive interval (for tests/diagnostics).
func (s *Syncer) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Syncer) adapt(insertedThisCycle int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if insertedThisCycle > 0 {
		s.interval = minInterval
		return
	}
	next := s.interval * 2
	if next > maxInterval {
		next = maxInterval
	}
	s.interval = next
}

func (s *Syncer) runCycle(ctx context.Context) int {
	total := 0
	for _, f := range s.filters() {
		cycleCtx, cancel := context.WithTimeout(ctx, cycleTimeout)
		inserted := s.syncFilter(cycleCtx, f)
		cancel()

		total += inserted
		s.diag.Cycle(f.label, inserted)
	}
	return total
}

type namedFilter struct {
	label  string
	filter nostr.Filter
}

// filters builds spec 4.4's reconciliation filter table.
func (s *Syncer) filters() []namedFilter {
	out := []namedFilter{
		{"authored-projects", nostr.Filter{Kinds: []int{gtnostr.KindProject}, Authors: []string{s.ownerPK}}},
		{"agent-definitions", nostr.Filter{Kinds: []int{gtnostr.KindAgentDef}}},
		{"conversation-metadata", nostr.Filter{Kinds: []int{gtnostr.KindConvMetadata}}},
		{"agent-lessons", nostr.Filter{Kinds: []int{gtnostr.KindAgentLesson}}},
		{"content-types", nostr.Filter{Kinds: []int{gtnostr.KindNudge, gtnostr.KindSkill, gtnostr.KindMCPTool, gtnostr.KindReport}}},
	}

	projectCoords := s.projects()
	if len(projectCoords) > 0 {
		out = append(out, namedFilter{
			label: "project-messages",
			filter: nostr.Filter{
				Kinds: []int{gtnostr.KindThreadRoot, gtnostr.KindChannelMessage},
				Tags:  nostr.TagMap{"a": projectCoords},
			},
		})
	}

	return out
}

func (s *Syncer) syncFilter(ctx context.Context, f namedFilter) int {
	collector := &eventCollector{}
	s.pool.QueryOnce(ctx, f.filter, collector)

	events := collector.drain()
	if len(events) == 0 {
		return 0
	}

	result, err := s.store.Ingest(ctx, events, "")
	if err != nil {
		s.diag.Error(corerr.KindStorage, "negentropy ingest failed for "+f.label+": "+err.Error())
		return 0
	}
	return result.Inserted
}

// eventCollector implements gtnostr.IngestSink, buffering events for a
// single synchronous Ingest call so the exact insert count is known.
type eventCollector struct {
	mu     sync.Mutex
	events []nostr.Event
}

func (c *eventCollector) Offer(event nostr.Event, relayURL string) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

func (c *eventCollector) drain() []nostr.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.events
	c.events = nil
	return out
}
