package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// Store persists coordinator state.
type Store interface {
	LoadScout(ctx context.Context) (*ScoutState, error)
	SaveScout(ctx context.Context, s *ScoutState) error
	LoadBackfill(ctx context.Context) (*BackfillState, error)
	SaveBackfill(ctx context.Context, b *BackfillState) error
	Close() error
}

const (
	scoutKey    = "scout"
	backfillKey = "backfill"
)

// SQLiteStore implements Store on modernc.org/sqlite. Each coordinator's
// state is one JSON row keyed by name.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the state database at the given path and
// configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "state: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "state: exec %s", pragma)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS agent_state (
	name       TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);`)
	return eris.Wrap(err, "state: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadScout returns the persisted scout state, or a fresh state when none
// has been saved yet.
func (s *SQLiteStore) LoadScout(ctx context.Context) (*ScoutState, error) {
	var st ScoutState
	found, err := s.load(ctx, scoutKey, &st)
	if err != nil {
		return nil, err
	}
	if !found {
		return &ScoutState{SeenNoticeIDs: []string{}, Runs: []RunSummary{}}, nil
	}
	return &st, nil
}

func (s *SQLiteStore) SaveScout(ctx context.Context, st *ScoutState) error {
	return s.save(ctx, scoutKey, st)
}

// LoadBackfill returns the persisted backfill state, or the default idle
// state when none has been saved yet.
func (s *SQLiteStore) LoadBackfill(ctx context.Context) (*BackfillState, error) {
	var st BackfillState
	found, err := s.load(ctx, backfillKey, &st)
	if err != nil {
		return nil, err
	}
	if !found {
		return NewBackfillState(), nil
	}
	return &st, nil
}

func (s *SQLiteStore) SaveBackfill(ctx context.Context, st *BackfillState) error {
	return s.save(ctx, backfillKey, st)
}

func (s *SQLiteStore) load(ctx context.Context, name string, v any) (bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM agent_state WHERE name = ?`, name,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "state: load %s", name)
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return false, eris.Wrapf(err, "state: unmarshal %s", name)
	}
	return true, nil
}

func (s *SQLiteStore) save(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "state: marshal %s", name)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_state (name, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		name, string(data), time.Now().UTC(),
	)
	return eris.Wrapf(err, "state: save %s", name)
}
