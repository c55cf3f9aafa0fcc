package storage

import (
	"context"
	"errors"
	"time"

	"weaver/internal/audit"
)

// ErrNotFound is returned when a unit or launch is not stored.
var ErrNotFound = errors.New("not found")

// Store combines unit and audit persistence.
type Store interface {
	UnitStore
	AuditStore
	Close() error
}

// StoredUnit is one encoded unit as imported from a source file.
type StoredUnit struct {
	Name        string
	Source      string
	ContentHash string
	Data        []byte
}

// UnitStore persists encoded units between import and rewrite.
type UnitStore interface {
	// SaveUnits upserts units by name.
	SaveUnits(ctx context.Context, units []StoredUnit) error

	// GetUnit retrieves a unit by name.
	GetUnit(ctx context.Context, name string) (*StoredUnit, error)

	// ListUnits returns every stored unit name, sorted.
	ListUnits(ctx context.Context) ([]string, error)
}

// Launch describes one rewriting run.
type Launch struct {
	ID        string
	Root      string
	StartedAt time.Time
}

// AuditStore persists audit trails per launch.
type AuditStore interface {
	// SaveTrail replaces the stored trail of launch with trail.
	SaveTrail(ctx context.Context, launch Launch, trail *audit.Trail) error

	// LoadTrail rebuilds the trail recorded for a launch.
	LoadTrail(ctx context.Context, launchID string) (*audit.Trail, error)

	// LatestLaunch returns the most recently started launch.
	LatestLaunch(ctx context.Context) (*Launch, error)
}
