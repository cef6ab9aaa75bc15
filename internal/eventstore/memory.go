package eventstore

import (
	"context"
	"sync"

	"fiatjaf.com/nostr"

	gtnostr "github.com/tenex-go/tenexcore/internal/nostr"
)

// MemoryStore is a map-backed Store for tests — same matching and
// addressable-replacement semantics as BadgerStore, no disk I/O.
type MemoryStore struct {
	mu          sync.RWMutex
	byID        map[string]nostr.Event
	coordToID   map[string]string

	subsMu sync.Mutex
	subs   []*subscription
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[string]nostr.Event),
		coordToID: make(map[string]string),
	}
}

func (s *MemoryStore) Ingest(ctx context.Context, events []nostr.Event, relay string) (IngestResult, error) {
	var result IngestResult

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, event := range events {
		if err := verifyEvent(event); err != nil {
			result.Rejected++
			continue
		}

		idHex := gtnostr.IDToString(event.ID)
		if _, exists := s.byID[idHex]; exists {
			continue // idempotent per id
		}

		coord := coordinateOf(event)
		if coord != "" {
			if existingID, ok := s.coordToID[coord]; ok {
				existing := s.byID[existingID]
				switch {
				case event.CreatedAt < existing.CreatedAt:
					continue // shadowed, drop
				case event.CreatedAt == existing.CreatedAt && idHex >= existingID:
					continue // tie: lex-lower wins, keep existing
				}
			}
			s.coordToID[coord] = idHex
		}

		s.byID[idHex] = event
		result.Inserted++
		s.notify(event)
	}

	return result, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*nostr.Event, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.byID[id]
	if !ok {
		return nil, false, nil
	}
	return &event, true, nil
}

func (s *MemoryStore) Query(ctx context.Context, filter Filter) ([]nostr.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []nostr.Event
	for idHex, event := range s.byID {
		if coord := coordinateOf(event); coord != "" && s.coordToID[coord] != idHex {
			continue // shadowed by a newer event at the same coordinate
		}
		if matchesFilter(event, filter) {
			results = append(results, event)
		}
	}

	sortResults(results)
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, filter Filter) (<-chan nostr.Event, func()) {
	return subscribeCommon(&s.subsMu, &s.subs, filter)
}

func (s *MemoryStore) notify(event nostr.Event) {
	notifyCommon(&s.subsMu, &s.subs, event)
}

func (s *MemoryStore) Close() error { return nil }
