package nostr

import (
	"context"
	"fmt"
	"time"

	"fiatjaf.com/nostr"
)

// IdentityPublisher publishes the profile and relay-list events a Nostr
// client announces on login: kind 0 (profile), kind 10002 (relay list),
// and kind 10050 (DM relay list).
type IdentityPublisher struct {
	publisher   *Publisher
	readRelays  []string
	writeRelays []string
	dmRelays    []string
}

// NewIdentityPublisher wires a publisher and the configured relay sets.
func NewIdentityPublisher(publisher *Publisher, readRelays, writeRelays, dmRelays []string) *IdentityPublisher {
	return &IdentityPublisher{
		publisher:   publisher,
		readRelays:  readRelays,
		writeRelays: writeRelays,
		dmRelays:    dmRelays,
	}
}

// PublishProfile publishes a kind 0 profile event.
func (ip *IdentityPublisher) PublishProfile(ctx context.Context, name, displayName, about, picture string) error {
	event, err := NewProfileEvent(name, displayName, about, picture)
	if err != nil {
		return fmt.Errorf("building profile event: %w", err)
	}
	return ip.publisher.Publish(ctx, event)
}

// PublishRelayLists publishes kind 10002 (relay list) and, if DM relays
// are configured, kind 10050 (DM relay list) so other clients can
// discover where to reach this identity.
func (ip *IdentityPublisher) PublishRelayLists(ctx context.Context) error {
	var relayTags nostr.Tags
	for _, url := range ip.readRelays {
		relayTags = append(relayTags, nostr.Tag{"r", url, "read"})
	}
	for _, url := range ip.writeRelays {
		relayTags = append(relayTags, nostr.Tag{"r", url, "write"})
	}

	relayListEvent := &nostr.Event{
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      KindRelayList,
		Tags:      relayTags,
	}
	if err := ip.publisher.Publish(ctx, relayListEvent); err != nil {
		return fmt.Errorf("publishing relay list: %w", err)
	}

	if len(ip.dmRelays) == 0 {
		return nil
	}

	var dmTags nostr.Tags
	for _, url := range ip.dmRelays {
		dmTags = append(dmTags, nostr.Tag{"relay", url})
	}
	dmRelayEvent := &nostr.Event{
		CreatedAt: nostr.Timestamp(time.Now().Unix()),
		Kind:      KindDMRelayList,
		Tags:      dmTags,
	}
	if err := ip.publisher.Publish(ctx, dmRelayEvent); err != nil {
		return fmt.Errorf("publishing DM relay list: %w", err)
	}
	return nil
}
