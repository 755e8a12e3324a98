package state

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and local dry runs. It
// honors the same version and locking semantics as the real backends.
type MemoryStore struct {
	mu      sync.Mutex
	records map[Location]*Record
	locks   map[Location]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[Location]*Record),
		locks:   make(map[Location]string),
	}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, loc Location) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[loc]
	if !ok {
		return nil, nil
	}
	cp := *rec
	cp.Outputs = copyOutputs(rec.Outputs)
	return &cp, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, loc Location, rec *Record, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if existing, ok := s.records[loc]; ok {
		current = existing.Version
	}
	if current != expectedVersion {
		return fmt.Errorf("put %s: expected version %d, stored %d: %w",
			loc, expectedVersion, current, ErrVersionConflict)
	}

	cp := *rec
	cp.Version = expectedVersion + 1
	cp.Outputs = copyOutputs(rec.Outputs)
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	s.records[loc] = &cp
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, loc Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, loc)
	return nil
}

// Lock implements Store.
func (s *MemoryStore) Lock(_ context.Context, loc Location) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.locks[loc]; held {
		return Token{}, fmt.Errorf("lock %s: %w", loc, ErrLockConflict)
	}
	id := newLockID()
	s.locks[loc] = id
	return Token{Location: loc, ID: id}, nil
}

// Unlock implements Store.
func (s *MemoryStore) Unlock(_ context.Context, token Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	held, ok := s.locks[token.Location]
	if !ok || held != token.ID {
		return fmt.Errorf("unlock %s: %w", token.Location, ErrNotLocked)
	}
	delete(s.locks, token.Location)
	return nil
}

func copyOutputs(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func newLockID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("failed to generate lock id: %v", err))
	}
	return hex.EncodeToString(b)
}
