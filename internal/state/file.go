package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// FileStore keeps state records under a local directory, one YAML file per
// location. Locks are sidecar files created with O_EXCL, so two processes
// sharing the directory still exclude each other.
type FileStore struct {
	root string

	// mu serializes read-modify-write cycles within this process.
	mu sync.Mutex
}

// NewFileStore creates a store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", dir, err)
	}
	return &FileStore{root: dir}, nil
}

func (s *FileStore) path(loc Location) string {
	return filepath.Join(s.root, filepath.FromSlash(string(loc)))
}

func (s *FileStore) lockPath(loc Location) string {
	return s.path(loc) + ".lock"
}

// Get implements Store.
func (s *FileStore) Get(_ context.Context, loc Location) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(loc)
}

func (s *FileStore) read(loc Location) (*Record, error) {
	data, err := os.ReadFile(s.path(loc))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state at %s: %w", loc, err)
	}
	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode state at %s: %w", loc, err)
	}
	return &rec, nil
}

// Put implements Store.
func (s *FileStore) Put(_ context.Context, loc Location, rec *Record, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.read(loc)
	if err != nil {
		return err
	}
	var current int64
	if existing != nil {
		current = existing.Version
	}
	if current != expectedVersion {
		return fmt.Errorf("put %s: expected version %d, stored %d: %w",
			loc, expectedVersion, current, ErrVersionConflict)
	}

	cp := *rec
	cp.Version = expectedVersion + 1
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	data, err := yaml.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("failed to encode state for %s: %w", loc, err)
	}

	path := s.path(loc)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory for %s: %w", loc, err)
	}

	// Write-then-rename keeps readers from ever seeing a torn record.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write state for %s: %w", loc, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to commit state for %s: %w", loc, err)
	}
	return nil
}

// Delete implements Store.
func (s *FileStore) Delete(_ context.Context, loc Location) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(loc)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete state at %s: %w", loc, err)
	}
	return nil
}

// Lock implements Store.
func (s *FileStore) Lock(_ context.Context, loc Location) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.lockPath(loc)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Token{}, fmt.Errorf("failed to create state directory for %s: %w", loc, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if os.IsExist(err) {
		return Token{}, fmt.Errorf("lock %s: %w", loc, ErrLockConflict)
	}
	if err != nil {
		return Token{}, fmt.Errorf("failed to create lock for %s: %w", loc, err)
	}
	defer f.Close()

	id := newLockID()
	if _, err := f.WriteString(id); err != nil {
		os.Remove(path)
		return Token{}, fmt.Errorf("failed to write lock for %s: %w", loc, err)
	}
	return Token{Location: loc, ID: id}, nil
}

// Unlock implements Store.
func (s *FileStore) Unlock(_ context.Context, token Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.lockPath(token.Location)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("unlock %s: %w", token.Location, ErrNotLocked)
	}
	if err != nil {
		return fmt.Errorf("failed to read lock for %s: %w", token.Location, err)
	}
	if strings.TrimSpace(string(data)) != token.ID {
		return fmt.Errorf("unlock %s: %w", token.Location, ErrNotLocked)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove lock for %s: %w", token.Location, err)
	}
	return nil
}
