package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"weaver/internal/audit"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS units (
			name TEXT PRIMARY KEY,
			source TEXT,
			content_hash TEXT,
			data BLOB
		);`,
		`CREATE TABLE IF NOT EXISTS launches (
			id TEXT PRIMARY KEY,
			root TEXT,
			started_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS activities (
			launch_id TEXT,
			unit TEXT,
			seq INTEGER,
			kind TEXT,
			context JSON,
			PRIMARY KEY (launch_id, unit, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_activities_unit ON activities(unit);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// --- UnitStore Implementation ---

func (s *SQLiteStore) SaveUnits(ctx context.Context, units []StoredUnit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO units (name, source, content_hash, data) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			source=excluded.source,
			content_hash=excluded.content_hash,
			data=excluded.data
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, u := range units {
		if _, err := stmt.ExecContext(ctx, u.Name, u.Source, u.ContentHash, u.Data); err != nil {
			return fmt.Errorf("save unit %s: %w", u.Name, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetUnit(ctx context.Context, name string) (*StoredUnit, error) {
	row := s.db.QueryRowContext(ctx, "SELECT name, source, content_hash, data FROM units WHERE name = ?", name)

	var u StoredUnit
	if err := row.Scan(&u.Name, &u.Source, &u.ContentHash, &u.Data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("unit %s: %w", name, ErrNotFound)
		}
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteStore) ListUnits(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM units ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query units: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// --- AuditStore Implementation ---

func (s *SQLiteStore) SaveTrail(ctx context.Context, launch Launch, trail *audit.Trail) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO launches (id, root, started_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET root=excluded.root, started_at=excluded.started_at
	`, launch.ID, launch.Root, launch.StartedAt.UnixNano()); err != nil {
		return err
	}

	// The stored trail is a snapshot: entries no longer present go away.
	if _, err := tx.ExecContext(ctx, "DELETE FROM activities WHERE launch_id = ?", launch.ID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO activities (launch_id, unit, seq, kind, context) VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, unit := range trail.Units() {
		for seq, a := range trail.ActivitiesFor(unit) {
			ctxJSON, err := json.Marshal(a.Context)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, launch.ID, unit, seq, a.Type.Label(), ctxJSON); err != nil {
				return fmt.Errorf("save activity %s#%d: %w", unit, seq, err)
			}
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) LoadTrail(ctx context.Context, launchID string) (*audit.Trail, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM launches WHERE id = ?", launchID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, fmt.Errorf("launch %s: %w", launchID, ErrNotFound)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT unit, kind, context FROM activities WHERE launch_id = ? ORDER BY unit, seq", launchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	trail := audit.NewTrail()
	for rows.Next() {
		var unit, kind string
		var ctxJSON []byte
		if err := rows.Scan(&unit, &kind, &ctxJSON); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		typ, ok := audit.ParseActivityType(kind)
		if !ok {
			return nil, fmt.Errorf("unknown activity kind %q for %s", kind, unit)
		}
		var a audit.Activity
		a.Type = typ
		if len(ctxJSON) > 0 {
			if err := json.Unmarshal(ctxJSON, &a.Context); err != nil {
				return nil, fmt.Errorf("decode activity for %s: %w", unit, err)
			}
		}
		trail.Record(unit, a)
	}
	return trail, rows.Err()
}

func (s *SQLiteStore) LatestLaunch(ctx context.Context) (*Launch, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, root, started_at FROM launches ORDER BY started_at DESC LIMIT 1")

	var l Launch
	var started int64
	if err := row.Scan(&l.ID, &l.Root, &started); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("latest launch: %w", ErrNotFound)
		}
		return nil, err
	}
	l.StartedAt = time.Unix(0, started)
	return &l, nil
}
