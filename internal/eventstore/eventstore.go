// Package eventstore is the persistent, indexed log of signed Nostr
// events every other core component reads from: id/kind/author/tag
// indexes, a replaceable-coordinate index for NIP-33 addressable
// events, and a live subscribe() feed for newly ingested events.
package eventstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"fiatjaf.com/nostr"

	gtnostr "github.com/tenex-go/tenexcore/internal/nostr"
)

// Filter is a storage-level query, independent of RelayPool's wire
// filter: ids/authors are hex strings, Tags keys by single-letter tag
// name (spec 4.1).
type Filter struct {
	IDs     []string
	Authors []string
	Kinds   []int
	Tags    map[string][]string
	Since   *time.Time
	Until   *time.Time
	Limit   int
}

// IngestResult is the outcome of a batch ingest call.
type IngestResult struct {
	Inserted int
	Rejected int
}

// Store is the EventStore's public surface (spec 4.1).
type Store interface {
	Ingest(ctx context.Context, events []nostr.Event, relay string) (IngestResult, error)
	GetByID(ctx context.Context, id string) (*nostr.Event, bool, error)
	Query(ctx context.Context, filter Filter) ([]nostr.Event, error)
	Subscribe(ctx context.Context, filter Filter) (<-chan nostr.Event, func())
	Close() error
}

// verifyEvent checks the event's id and signature. Malformed events are
// dropped and counted, never returned as an ingest error (spec 4.1
// failure semantics).
func verifyEvent(event nostr.Event) error {
	ok, err := event.CheckSignature()
	if err != nil {
		return fmt.Errorf("checking signature: %w", err)
	}
	if !ok {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

// matchesFilter reports whether event satisfies filter. Shared by the
// badger and in-memory backends so query and subscribe behave
// identically regardless of storage.
func matchesFilter(event nostr.Event, filter Filter) bool {
	idHex := gtnostr.IDToString(event.ID)
	if len(filter.IDs) > 0 && !containsString(filter.IDs, idHex) {
		return false
	}

	authorHex := gtnostr.PubKeyToString(event.PubKey)
	if len(filter.Authors) > 0 && !containsString(filter.Authors, authorHex) {
		return false
	}

	if len(filter.Kinds) > 0 && !containsInt(filter.Kinds, int(event.Kind)) {
		return false
	}

	createdAt := time.Unix(int64(event.CreatedAt), 0)
	if filter.Since != nil && createdAt.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && createdAt.After(*filter.Until) {
		return false
	}

	for tagName, values := range filter.Tags {
		if !eventHasTagValue(event, tagName, values) {
			return false
		}
	}

	return true
}

func eventHasTagValue(event nostr.Event, tagName string, wanted []string) bool {
	for _, tag := range event.Tags {
		if len(tag) < 2 || tag[0] != tagName {
			continue
		}
		if containsString(wanted, tag[1]) {
			return true
		}
	}
	return false
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func containsInt(haystack []int, needle int) bool {
	for _, n := range haystack {
		if n == needle {
			return true
		}
	}
	return false
}

// sortResults orders by created_at descending, then id lexicographic
// ascending (spec 4.1 query ordering).
func sortResults(events []nostr.Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt > events[j].CreatedAt
		}
		return gtnostr.IDToString(events[i].ID) < gtnostr.IDToString(events[j].ID)
	})
}

// coordinateOf returns the "kind:pubkey:d" coordinate for an
// addressable event, or "" if it has no "d" tag.
func coordinateOf(event nostr.Event) string {
	for _, tag := range event.Tags {
		if len(tag) >= 2 && tag[0] == "d" {
			return gtnostr.Coordinate(int(event.Kind), gtnostr.PubKeyToString(event.PubKey), tag[1])
		}
	}
	return ""
}
