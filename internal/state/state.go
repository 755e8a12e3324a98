// Package state computes per-tenant state addressing and defines the
// backing store contract.
//
// The partitioner is a pure function from (tenant, stage) to a location:
// the same pair always yields the same location, distinct pairs never
// collide, and there is no global default path. The store behind it is an
// external key/value service; this package ships an S3-backed
// implementation, a local file-backed one, and an in-memory one for
// tests.
package state

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Location is the deterministic address of one (tenant, stage) record.
type Location string

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Partition computes the state location for a tenant/stage pair. Both ids
// are validated so distinct pairs can never alias each other inside the
// key space.
func Partition(tenant, stageID string) (Location, error) {
	if !idPattern.MatchString(tenant) {
		return "", fmt.Errorf("invalid tenant id %q: must match %s", tenant, idPattern)
	}
	if !idPattern.MatchString(stageID) {
		return "", fmt.Errorf("invalid stage id %q: must match %s", stageID, idPattern)
	}
	return Location(fmt.Sprintf("tenants/%s/stages/%s/state.yaml", tenant, stageID)), nil
}

// Record is the persisted result of one stage apply.
type Record struct {
	// Version increments on every write; Put rejects stale writers.
	Version int64 `yaml:"version"`

	Status        string         `yaml:"status"`
	ModuleVersion string         `yaml:"module_version"`
	Outputs       map[string]any `yaml:"outputs"`
	UpdatedAt     time.Time      `yaml:"updated_at"`
}

// Record statuses.
const (
	StatusApplied   = "applied"
	StatusDestroyed = "destroyed"
)

// Token proves lock ownership of a location.
type Token struct {
	Location Location
	ID       string
}

var (
	// ErrLockConflict means the location is locked by another run.
	// Retryable with backoff; fatal to the stage if the cap is reached.
	ErrLockConflict = errors.New("state location is locked by another run")

	// ErrVersionConflict means a Put raced a concurrent write: the stored
	// version no longer matches the version the writer read.
	ErrVersionConflict = errors.New("state record version conflict")

	// ErrNotLocked means an Unlock presented a token that no longer holds
	// the lock.
	ErrNotLocked = errors.New("lock token does not hold the lock")
)

// Store is the backing state store contract. Implementations must treat
// Lock as exclusive per location: a second Lock before Unlock returns
// ErrLockConflict rather than blocking or corrupting state.
type Store interface {
	// Get returns the record at loc, or (nil, nil) when absent.
	Get(ctx context.Context, loc Location) (*Record, error)

	// Put writes rec when the stored version equals expectedVersion (0
	// for a location with no record). The stored record's version becomes
	// expectedVersion+1.
	Put(ctx context.Context, loc Location, rec *Record, expectedVersion int64) error

	// Delete removes the record at loc. Deleting an absent record is not
	// an error.
	Delete(ctx context.Context, loc Location) error

	// Lock acquires the exclusive lock on loc.
	Lock(ctx context.Context, loc Location) (Token, error)

	// Unlock releases a lock previously acquired with Lock.
	Unlock(ctx context.Context, token Token) error
}
