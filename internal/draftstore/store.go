package draftstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const fileName = "drafts.json"

// ErrSaveForbidden is returned by Save while the store is quarantined
// after a corrupted on-disk file was found (spec 4.9).
var ErrSaveForbidden = fmt.Errorf("draftstore: save forbidden until quarantine is cleared")

// Store is the on-disk draft store. Writes are serialized through a
// single goroutine the way `internal/ingest`'s single-writer pipeline
// serializes inserts; readers take a value snapshot under the
// same lock (spec 8: "DraftStore serializes file writes via a
// dedicated actor task; readers obtain snapshots by value").
type Store struct {
	path string
	lock *flock.Flock

	mu          sync.Mutex
	drafts      map[string]Draft
	quarantined bool

	writes chan writeRequest
	done   chan struct{}
}

type writeRequest struct {
	snapshot map[string]Draft
	result   chan error
}

// Open loads (or initializes) a draft store rooted at dir/drafts.json
// and starts its write actor.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("draftstore: create dir: %w", err)
	}
	path := filepath.Join(dir, fileName)
	s := &Store{
		path:   path,
		lock:   flock.New(path + ".lock"),
		drafts: map[string]Draft{},
		writes: make(chan writeRequest),
		done:   make(chan struct{}),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	go s.runWriter()
	return s, nil
}

// load reads drafts.json. A corrupted file is quarantined by renaming
// it to "drafts.json.corrupted-{unix timestamp}"; the in-memory store then
// starts empty and Save is rejected until Unquarantine is called (spec
// 4.9's corruption-recovery contract).
func (s *Store) load() error {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("draftstore: read %s: %w", s.path, err)
	}

	var onDisk map[string]Draft
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		quarantinePath := fmt.Sprintf("%s.corrupted-%d", s.path, time.Now().Unix())
		if renameErr := os.Rename(s.path, quarantinePath); renameErr != nil {
			return fmt.Errorf("draftstore: quarantine corrupted file: %w", renameErr)
		}
		s.quarantined = true
		return nil
	}

	for key, d := range onDisk {
		d.applyDefaults()
		onDisk[key] = d
	}
	s.drafts = onDisk
	return nil
}

// Quarantined reports whether the store is currently rejecting writes
// after finding a corrupted file on disk.
func (s *Store) Quarantined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quarantined
}

// Unquarantine explicitly allows the next save to proceed and persist
// a fresh drafts.json, per spec 4.9's "explicitly allowed" wording.
func (s *Store) Unquarantine() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quarantined = false
}

// Get returns a snapshot of the draft at key, if any.
func (s *Store) Get(key string) (Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[key]
	return d, ok
}

// All returns a snapshot copy of every draft, keyed the same as Save.
func (s *Store) All() map[string]Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Draft, len(s.drafts))
	for k, v := range s.drafts {
		out[k] = v
	}
	return out
}

// Save upserts the draft at key and persists the whole store. Before
// storing, it fills nil collections with empty ones, sets LastEdited to
// the current time, and sets CreatedAt when it is zero; every other
// field is kept as given. Saving a contentless draft keeps it (spec 8: "after
// save(K, D) followed by load(), the returned map contains D exactly",
// for every D); a caller that wants a key gone calls Delete instead.
func (s *Store) Save(key string, d Draft) error {
	s.mu.Lock()
	if s.quarantined {
		s.mu.Unlock()
		return ErrSaveForbidden
	}
	d.applyDefaults()
	d.LastEdited = nowUnix()
	if d.CreatedAt == 0 {
		d.CreatedAt = d.LastEdited
	}
	s.drafts[key] = d
	snapshot := make(map[string]Draft, len(s.drafts))
	for k, v := range s.drafts {
		snapshot[k] = v
	}
	s.mu.Unlock()

	return s.persist(snapshot)
}

// Delete removes the draft at key and persists the store.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	if s.quarantined {
		s.mu.Unlock()
		return ErrSaveForbidden
	}
	delete(s.drafts, key)
	snapshot := make(map[string]Draft, len(s.drafts))
	for k, v := range s.drafts {
		snapshot[k] = v
	}
	s.mu.Unlock()

	return s.persist(snapshot)
}

func (s *Store) persist(snapshot map[string]Draft) error {
	result := make(chan error, 1)
	s.writes <- writeRequest{snapshot: snapshot, result: result}
	return <-result
}

// runWriter is the single actor goroutine that serializes every file
// write, so two concurrent Save calls never interleave their temp
// file creation or rename.
func (s *Store) runWriter() {
	defer close(s.done)
	for req := range s.writes {
		req.result <- s.writeSnapshot(req.snapshot)
	}
}

// writeSnapshot does the atomic temp-file-plus-rename write spec 4.9
// names explicitly ("Atomic write (temp file + rename)"), guarded by
// an flock so a second process touching the same runtime dir can't
// interleave writes either.
func (s *Store) writeSnapshot(snapshot map[string]Draft) error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("draftstore: acquire lock: %w", err)
	}
	defer s.lock.Unlock()

	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("draftstore: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "drafts-*.tmp")
	if err != nil {
		return fmt.Errorf("draftstore: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("draftstore: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("draftstore: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("draftstore: rename temp file: %w", err)
	}
	return nil
}

// Close stops the write actor. Pending writes already queued are
// still flushed before the actor exits.
func (s *Store) Close() {
	close(s.writes)
	<-s.done
}
