package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"fiatjaf.com/nostr"

	gtnostr "github.com/tenex-go/tenexcore/internal/nostr"
)

// Key prefixes for the badger-backed indexes (spec 4.1 "Required indexes").
const (
	prefixEvent = "ev:" // ev:<idhex> -> event JSON
	prefixKind  = "ik:" // ik:<kind><revts><idhex> -> idhex
	prefixAuth  = "ia:" // ia:<authorhex><revts><idhex> -> idhex
	prefixTag   = "it:" // it:<tagname>:<tagvalue>\x00<revts><idhex> -> idhex
	prefixCoord = "ic:" // ic:<coordinate> -> idhex (latest)
)

// BadgerStore is the production Store backend: an embedded ordered
// key-value log with id/kind/author/tag/coordinate indexes.
type BadgerStore struct {
	db *badger.DB

	subsMu sync.Mutex
	subs   []*subscription
}

// NewBadgerStore opens (creating if absent) a badger database at dir.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Ingest validates and persists a batch of events, updating all indexes
// and the replaceable-coordinate index, then notifies live subscribers.
func (s *BadgerStore) Ingest(ctx context.Context, events []nostr.Event, relay string) (IngestResult, error) {
	var result IngestResult

	for _, event := range events {
		if err := verifyEvent(event); err != nil {
			result.Rejected++
			continue
		}

		inserted, err := s.ingestOne(event)
		if err != nil {
			return result, fmt.Errorf("storage I/O error: %w", err)
		}
		if inserted {
			result.Inserted++
			s.notify(event)
		}
	}

	return result, nil
}

func (s *BadgerStore) ingestOne(event nostr.Event) (bool, error) {
	idHex := gtnostr.IDToString(event.ID)

	var alreadyPresent bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(prefixEvent + idHex))
		if err == nil {
			alreadyPresent = true
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if alreadyPresent {
		return false, nil // idempotent per id
	}

	coord := coordinateOf(event)

	inserted := false
	err = s.db.Update(func(txn *badger.Txn) error {
		if coord != "" {
			shadowed, err := s.resolveAddressableConflict(txn, coord, event)
			if err != nil {
				return err
			}
			if shadowed {
				return nil // older by created_at/id tie-break, drop without shadowing newer
			}
		}

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if err := txn.Set([]byte(prefixEvent+idHex), data); err != nil {
			return err
		}

		revTS := reverseTimestamp(int64(event.CreatedAt))
		authorHex := gtnostr.PubKeyToString(event.PubKey)

		if err := txn.Set(kindKey(int(event.Kind), revTS, idHex), []byte(idHex)); err != nil {
			return err
		}
		if err := txn.Set(authorKey(authorHex, revTS, idHex), []byte(idHex)); err != nil {
			return err
		}
		for _, tag := range event.Tags {
			if len(tag) >= 2 && len(tag[0]) == 1 {
				if err := txn.Set(tagKey(tag[0], tag[1], revTS, idHex), []byte(idHex)); err != nil {
					return err
				}
			}
		}
		if coord != "" {
			if err := txn.Set([]byte(prefixCoord+coord), []byte(idHex)); err != nil {
				return err
			}
		}
		inserted = true
		return nil
	})
	return inserted, err
}

// resolveAddressableConflict implements spec 4.1's addressable
// replacement rule: strictly newer created_at wins; on an exact tie,
// the lex-lower id wins. Returns true if the incoming event loses and
// should be dropped (not stored).
func (s *BadgerStore) resolveAddressableConflict(txn *badger.Txn, coord string, incoming nostr.Event) (bool, error) {
	item, err := txn.Get([]byte(prefixCoord + coord))
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var existingIDHex string
	if err := item.Value(func(val []byte) error {
		existingIDHex = string(val)
		return nil
	}); err != nil {
		return false, err
	}

	existingItem, err := txn.Get([]byte(prefixEvent + existingIDHex))
	if err != nil {
		return false, err
	}
	var existing nostr.Event
	if err := existingItem.Value(func(val []byte) error {
		return json.Unmarshal(val, &existing)
	}); err != nil {
		return false, err
	}

	incomingIDHex := gtnostr.IDToString(incoming.ID)
	switch {
	case incoming.CreatedAt > existing.CreatedAt:
		return false, nil
	case incoming.CreatedAt < existing.CreatedAt:
		return true, nil
	default:
		// Exact tie: lex-lower id wins (Nostr convention). The incoming
		// event is dropped unless its id sorts below the existing one's.
		return incomingIDHex >= existingIDHex, nil
	}
}

// GetByID returns the event with the given hex id, if present. A
// shadowed (replaced) event is still retrievable by id (spec 4.1).
func (s *BadgerStore) GetByID(ctx context.Context, id string) (*nostr.Event, bool, error) {
	var event nostr.Event
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixEvent + id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &event)
		})
	})
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return &event, true, nil
}

// Query runs filter against the indexes, falling back to a kind-index
// scan (or full scan if no kind is given) and filtering in-process for
// the remaining predicates — the indexes narrow the candidate set but
// matchesFilter is the single source of truth for semantics.
func (s *BadgerStore) Query(ctx context.Context, filter Filter) ([]nostr.Event, error) {
	var results []nostr.Event

	err := s.db.View(func(txn *badger.Txn) error {
		ids, err := s.candidateIDs(txn, filter)
		if err != nil {
			return err
		}
		for _, idHex := range ids {
			item, err := txn.Get([]byte(prefixEvent + idHex))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			var event nostr.Event
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &event)
			}); err != nil {
				return err
			}
			if coord := coordinateOf(event); coord != "" {
				if latest, err := txn.Get([]byte(prefixCoord + coord)); err == nil {
					if v, err := latest.ValueCopy(nil); err == nil && string(v) != idHex {
						continue // shadowed by a newer event at the same coordinate
					}
				}
			}
			if matchesFilter(event, filter) {
				results = append(results, event)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortResults(results)
	if filter.Limit > 0 && len(results) > filter.Limit {
		results = results[:filter.Limit]
	}
	return results, nil
}

// candidateIDs narrows the scan: the requested ids if any are given,
// else the kind index for every requested kind, else a full scan of the
// primary index.
func (s *BadgerStore) candidateIDs(txn *badger.Txn, filter Filter) ([]string, error) {
	seen := map[string]struct{}{}
	var ids []string

	add := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	if len(filter.IDs) > 0 {
		for _, id := range filter.IDs {
			add(id)
		}
		return ids, nil
	}

	if len(filter.Kinds) > 0 {
		for _, kind := range filter.Kinds {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			prefix := []byte(fmt.Sprintf("%s%020d", prefixKind, kind))
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				_ = it.Item().Value(func(val []byte) error {
					add(string(val))
					return nil
				})
			}
			it.Close()
		}
		return ids, nil
	}

	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	prefix := []byte(prefixEvent)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		add(string(it.Item().Key()[len(prefixEvent):]))
	}
	return ids, nil
}

// Subscribe registers filter and returns a channel of newly ingested
// matching events plus an unsubscribe func.
func (s *BadgerStore) Subscribe(ctx context.Context, filter Filter) (<-chan nostr.Event, func()) {
	return subscribeCommon(&s.subsMu, &s.subs, filter)
}

func (s *BadgerStore) notify(event nostr.Event) {
	notifyCommon(&s.subsMu, &s.subs, event)
}

// Close releases the badger database handle.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func kindKey(kind int, revTS int64, idHex string) []byte {
	return []byte(fmt.Sprintf("%s%020d%020d%s", prefixKind, kind, revTS, idHex))
}

func authorKey(authorHex string, revTS int64, idHex string) []byte {
	return []byte(fmt.Sprintf("%s%s%020d%s", prefixAuth, authorHex, revTS, idHex))
}

func tagKey(tagName, tagValue string, revTS int64, idHex string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s\x00%020d%s", prefixTag, tagName, tagValue, revTS, idHex))
}

// reverseTimestamp inverts created_at so lexicographic key order
// ascending corresponds to created_at descending.
func reverseTimestamp(createdAt int64) int64 {
	return int64(^uint64(0)>>1) - createdAt
}
