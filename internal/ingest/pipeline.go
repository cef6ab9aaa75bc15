// Package ingest validates, deduplicates, and stores events arriving
// from RelayPool or NegentropySync, then fans out typed DataChange
// notifications to interested consumers (primarily DomainProjection).
package ingest

import (
	"context"
	"log"

	"fiatjaf.com/nostr"

	"github.com/tenex-go/tenexcore/internal/diag"
	"github.com/tenex-go/tenexcore/internal/eventstore"
	gtnostr "github.com/tenex-go/tenexcore/internal/nostr"
)

// arrival is a single (event, source relay) tuple queued for ingestion.
type arrival struct {
	event nostr.Event
	relay string
}

// queueDepth bounds the single-writer channel (spec 4.2: "bounded
// channel of (Event, source) tuples").
const queueDepth = 1024

// Pipeline is the single-writer event ingestion loop: dedup -> verify
// -> store -> notify. Implements nostr.IngestSink so it can be wired
// directly as a RelayPool's sink.
type Pipeline struct {
	store   eventstore.Store
	dedup   *lru
	queue   chan arrival
	changes chan DataChange
	diag    *diag.Channel

	cancel context.CancelFunc
	done   chan struct{}
}

// NewPipeline creates a pipeline over an already-open event store. The
// caller must call Start to begin processing and Close to stop.
func NewPipeline(store eventstore.Store) *Pipeline {
	return &Pipeline{
		store:   store,
		dedup:   newLRU(1024),
		queue:   make(chan arrival, queueDepth),
		changes: make(chan DataChange, queueDepth),
		done:    make(chan struct{}),
	}
}

// Offer implements nostr.IngestSink: called from a RelayPool
// subscription goroutine for each event received.
func (p *Pipeline) Offer(event nostr.Event, relayURL string) {
	select {
	case p.queue <- arrival{event: event, relay: relayURL}:
	default:
		log.Printf("[ingest] queue full, dropping event from %s", relayURL)
	}
}

// SetDiag attaches a diagnostics channel for ingest-side metrics
// (events_ingested_total). Optional; a nil channel is never required.
func (p *Pipeline) SetDiag(c *diag.Channel) {
	p.diag = c
}

// Changes returns the channel DataChange notifications are published
// on. Consumers (DomainProjection, presence logic) range over it.
func (p *Pipeline) Changes() <-chan DataChange {
	return p.changes
}

// Start begins the single-writer processing loop.
func (p *Pipeline) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	go func() {
		defer close(p.done)
		for {
			select {
			case <-ctx.Done():
				return
			case a := <-p.queue:
				p.process(ctx, a)
			}
		}
	}()
}

// Close stops the processing loop.
func (p *Pipeline) Close() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
	close(p.changes)
}

func (p *Pipeline) process(ctx context.Context, a arrival) {
	idHex := gtnostr.IDToString(a.event.ID)

	if p.dedup.SeenAndAdd(idHex) {
		return // relay echo, already processed within the dedup window
	}

	result, err := p.store.Ingest(ctx, []nostr.Event{a.event}, a.relay)
	if err != nil {
		log.Printf("[ingest] storage error ingesting %s: %v", idHex, err)
		return
	}
	if result.Inserted == 0 {
		return // rejected (bad signature) or already stored
	}
	if p.diag != nil {
		p.diag.IngestedEvent()
	}

	p.emit(ChangesFor(a.event))
}

func (p *Pipeline) emit(changes []DataChange) {
	for _, c := range changes {
		select {
		case p.changes <- c:
		default:
			log.Printf("[ingest] DataChange channel full, dropping %T", c)
		}
	}
}
