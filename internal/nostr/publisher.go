package nostr

import (
	"context"
	"fmt"
	"log"

	"fiatjaf.com/nostr"
)

// Publisher is the high-level API for publishing events: sign, broadcast
// to the relay pool, and spool locally on failure so nothing is lost
// while offline.
type Publisher struct {
	signer Signer
	pool   *RelayPool
	spool  *Spool
}

// NewPublisher wires a signer, an already-connected relay pool, and a
// local spool directory into a Publisher.
func NewPublisher(signer Signer, pool *RelayPool, runtimeDir string) *Publisher {
	return &Publisher{
		signer: signer,
		pool:   pool,
		spool:  NewSpool(runtimeDir),
	}
}

// Publish signs and broadcasts a regular (non-addressable) event. If all
// relays fail, the event is spooled locally for later drain. An error is
// returned if signing fails, or if both publishing and spooling fail.
func (p *Publisher) Publish(ctx context.Context, event *nostr.Event) error {
	if err := p.signer.Sign(ctx, event); err != nil {
		return fmt.Errorf("signing event: %w", err)
	}

	if _, err := p.pool.Publish(ctx, *event); err != nil {
		log.Printf("[nostr] publish failed, spooling event %s: %v", IDToString(event.ID), err)
		if spoolErr := p.spool.Enqueue(event, p.pool.WriteRelayURLs()); spoolErr != nil {
			return fmt.Errorf("publish failed (%v) and spool failed: %w", err, spoolErr)
		}
		return nil
	}

	return nil
}

// PublishReplaceable signs and broadcasts an addressable event. Requires
// a "d" tag. Same spool-on-failure behavior as Publish.
func (p *Publisher) PublishReplaceable(ctx context.Context, event *nostr.Event) error {
	hasD := false
	for _, tag := range event.Tags {
		if len(tag) >= 2 && tag[0] == "d" {
			hasD = true
			break
		}
	}
	if !hasD {
		return fmt.Errorf("replaceable event must have a 'd' tag")
	}
	return p.Publish(ctx, event)
}

// DrainSpool attempts to send all spooled events to relays.
func (p *Publisher) DrainSpool(ctx context.Context) (sent int, failed int, err error) {
	return p.spool.Drain(ctx, p.pool)
}

// SpoolCount returns the number of events waiting in the spool.
func (p *Publisher) SpoolCount() int { return p.spool.Count() }

// Signer returns the publisher's signer.
func (p *Publisher) Signer() Signer { return p.signer }

// Pool returns the publisher's relay pool.
func (p *Publisher) Pool() *RelayPool { return p.pool }

// Close releases the signer; the pool's lifecycle is owned by the caller
// since CoreRuntime may share one pool across several publishers.
func (p *Publisher) Close() error {
	return p.signer.Close()
}
